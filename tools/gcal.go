package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

const GOOGLE_CALENDAR_API_BASE = "https://www.googleapis.com/calendar/v3"

// CalendarClient manages entries on one Google Calendar.
type CalendarClient struct {
	CalendarID  string
	AccessToken string
	APIBase     string
	HTTPClient  *http.Client
}

func NewCalendarClient(calendarID, accessToken string) *CalendarClient {
	return &CalendarClient{
		CalendarID:  calendarID,
		AccessToken: accessToken,
		APIBase:     GOOGLE_CALENDAR_API_BASE,
		HTTPClient:  &http.Client{Timeout: 30 * time.Second},
	}
}

type calendarEventBody struct {
	Summary     string            `json:"summary"`
	Description string            `json:"description,omitempty"`
	Location    string            `json:"location,omitempty"`
	Start       calendarEventTime `json:"start"`
	End         calendarEventTime `json:"end"`
}

type calendarEventTime struct {
	DateTime string `json:"dateTime"`
	TimeZone string `json:"timeZone"`
}

func eventBody(summary, description, location string, start, end time.Time, tz string) calendarEventBody {
	return calendarEventBody{
		Summary:     summary,
		Description: description,
		Location:    location,
		Start:       calendarEventTime{DateTime: start.Format(time.RFC3339), TimeZone: tz},
		End:         calendarEventTime{DateTime: end.Format(time.RFC3339), TimeZone: tz},
	}
}

// CreateEvent inserts an event and returns its calendar-assigned id.
func (c *CalendarClient) CreateEvent(ctx context.Context, summary, description, location string, start, end time.Time, tz string) (string, error) {
	endpoint := fmt.Sprintf("%s/calendars/%s/events", c.APIBase, url.PathEscape(c.CalendarID))

	var created struct {
		ID string `json:"id"`
	}
	if err := c.do(ctx, http.MethodPost, endpoint,
		eventBody(summary, description, location, start, end, tz), &created); err != nil {
		return "", err
	}
	if created.ID == "" {
		return "", fmt.Errorf("calendar create returned no id")
	}
	return created.ID, nil
}

// UpdateEvent replaces the stored event in place.
func (c *CalendarClient) UpdateEvent(ctx context.Context, eventID, summary, description, location string, start, end time.Time, tz string) error {
	endpoint := fmt.Sprintf("%s/calendars/%s/events/%s",
		c.APIBase, url.PathEscape(c.CalendarID), url.PathEscape(eventID))
	return c.do(ctx, http.MethodPut, endpoint,
		eventBody(summary, description, location, start, end, tz), nil)
}

// DeleteEvent removes the event. A 404 or 410 counts as already deleted.
func (c *CalendarClient) DeleteEvent(ctx context.Context, eventID string) error {
	endpoint := fmt.Sprintf("%s/calendars/%s/events/%s",
		c.APIBase, url.PathEscape(c.CalendarID), url.PathEscape(eventID))

	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, endpoint, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.AccessToken)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone {
		return nil
	}
	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("calendar delete error: status=%d body=%s", resp.StatusCode, string(body))
	}
	return nil
}

func (c *CalendarClient) do(ctx context.Context, method, endpoint string, payload any, out any) error {
	b, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, bytes.NewReader(b))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.AccessToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("calendar api error: status=%d body=%s", resp.StatusCode, string(body))
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

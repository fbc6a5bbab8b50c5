package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"yondaime/metrics"
)

const LINE_API_BASE = "https://api.line.me"
const LINE_DATA_API_BASE = "https://api-data.line.me"

// Outbound messages are passed through as raw JSON so that flex bubbles and
// quick replies built elsewhere survive untouched.
type LineMessage = json.RawMessage

// TextMessage builds the simplest outbound message.
func TextMessage(text string) LineMessage {
	raw, _ := json.Marshal(map[string]string{"type": "text", "text": text})
	return raw
}

type LineProfile struct {
	UserID        string `json:"userId"`
	DisplayName   string `json:"displayName"`
	PictureURL    string `json:"pictureUrl"`
	Language      string `json:"language"`
	StatusMessage string `json:"statusMessage"`
}

// LineClient talks to the LINE Messaging API. APIBase and DataAPIBase exist
// so tests can point it at a local server.
type LineClient struct {
	AccessToken   string
	APIBase       string
	DataAPIBase   string
	RetryAttempts int
	RetryDelay    time.Duration
	HTTPClient    *http.Client
}

func NewLineClient(accessToken string, retryAttempts int, retryDelay time.Duration) *LineClient {
	return &LineClient{
		AccessToken:   accessToken,
		APIBase:       LINE_API_BASE,
		DataAPIBase:   LINE_DATA_API_BASE,
		RetryAttempts: retryAttempts,
		RetryDelay:    retryDelay,
		HTTPClient:    &http.Client{Timeout: 30 * time.Second},
	}
}

// Reply answers a webhook event on its reply token. Reply tokens expire
// quickly, so on failure the messages are re-sent as a push to userID.
func (c *LineClient) Reply(ctx context.Context, replyToken string, userID string, messages []LineMessage) error {
	if len(messages) == 0 {
		return nil
	}

	body := map[string]any{
		"replyToken": replyToken,
		"messages":   messages,
	}
	err := c.post(ctx, c.APIBase+"/v2/bot/message/reply", body)
	if err == nil {
		metrics.MessagesSent.WithLabelValues("reply", "ok").Inc()
		return nil
	}
	metrics.MessagesSent.WithLabelValues("reply", "error").Inc()

	if userID == "" {
		return err
	}
	log.Printf("line: reply failed (%v), falling back to push for %s", err, userID)
	return c.Push(ctx, userID, messages)
}

// Push sends messages outside the reply window.
func (c *LineClient) Push(ctx context.Context, userID string, messages []LineMessage) error {
	if len(messages) == 0 {
		return nil
	}

	body := map[string]any{
		"to":       userID,
		"messages": messages,
	}
	if err := c.post(ctx, c.APIBase+"/v2/bot/message/push", body); err != nil {
		metrics.MessagesSent.WithLabelValues("push", "error").Inc()
		return err
	}
	metrics.MessagesSent.WithLabelValues("push", "ok").Inc()
	return nil
}

// Profile fetches the user's profile. When LINE is unreachable it returns a
// placeholder so that callers can still record the interaction.
func (c *LineClient) Profile(ctx context.Context, userID string) *LineProfile {
	var profile LineProfile
	err := Retry(ctx, c.RetryAttempts, c.RetryDelay, func() error {
		return c.get(ctx, c.APIBase+"/v2/bot/profile/"+userID, &profile)
	})
	if err != nil {
		log.Printf("line: profile lookup failed for %s: %v", userID, err)
		return &LineProfile{UserID: userID, DisplayName: "Unknown"}
	}
	profile.UserID = userID
	return &profile
}

// StartLoading shows the typing indicator for up to loadingSeconds.
// Best effort, failures are only logged.
func (c *LineClient) StartLoading(ctx context.Context, userID string, loadingSeconds int) {
	body := map[string]any{
		"chatId":         userID,
		"loadingSeconds": loadingSeconds,
	}
	if err := c.post(ctx, c.APIBase+"/v2/bot/chat/loading/start", body); err != nil {
		log.Printf("line: loading animation failed for %s: %v", userID, err)
	}
}

// MarkAsRead marks every message up to the triggering one as read.
func (c *LineClient) MarkAsRead(ctx context.Context, userID string) error {
	body := map[string]any{
		"chat": map[string]string{"userId": userID},
	}
	return Retry(ctx, c.RetryAttempts, c.RetryDelay, func() error {
		return c.post(ctx, c.APIBase+"/v2/bot/chat/markAsRead", body)
	})
}

// MediaContent downloads the binary payload of a message (images live on the
// data host, not the main API host).
func (c *LineClient) MediaContent(ctx context.Context, messageID string) ([]byte, error) {
	var data []byte
	err := Retry(ctx, c.RetryAttempts, c.RetryDelay, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet,
			c.DataAPIBase+"/v2/bot/message/"+messageID+"/content", nil)
		if err != nil {
			return err
		}
		req.Header.Set("Authorization", "Bearer "+c.AccessToken)

		resp, err := c.HTTPClient.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 300 {
			body, _ := io.ReadAll(resp.Body)
			return fmt.Errorf("line content api error: status=%d body=%s", resp.StatusCode, string(body))
		}
		data, err = io.ReadAll(resp.Body)
		return err
	})
	if err != nil {
		return nil, err
	}
	return data, nil
}

func (c *LineClient) post(ctx context.Context, url string, payload any) error {
	b, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(b))
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
		return fmt.Errorf("line api error: status=%d body=%s", resp.StatusCode, string(body))
	}
	return nil
}

func (c *LineClient) get(ctx context.Context, url string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.AccessToken)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("line api error: status=%d body=%s", resp.StatusCode, string(body))
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

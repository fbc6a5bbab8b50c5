package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/jinzhu/gorm"

	"yondaime/models"
	"yondaime/tools"
)

// CalendarProvider is the external calendar behind the workflow.
type CalendarProvider interface {
	CreateEvent(ctx context.Context, summary, description, location string, start, end time.Time, tz string) (string, error)
	UpdateEvent(ctx context.Context, eventID, summary, description, location string, start, end time.Time, tz string) error
	DeleteEvent(ctx context.Context, eventID string) error
}

// Pusher delivers workflow notifications to the staff group chat.
type Pusher interface {
	Push(ctx context.Context, to string, messages []tools.LineMessage) error
}

// CalendarService drives event rows through the confirm/create/cancel
// workflow. TestMode keeps everything local: rows move through their states
// but the external calendar is never touched.
type CalendarService struct {
	DB       *gorm.DB
	Provider CalendarProvider
	Notifier Pusher
	GroupID  string
	TestMode bool
	Location *time.Location
}

func NewCalendarService(db *gorm.DB, provider CalendarProvider, notifier Pusher, groupID string, testMode bool, loc *time.Location) *CalendarService {
	return &CalendarService{
		DB:       db,
		Provider: provider,
		Notifier: notifier,
		GroupID:  groupID,
		TestMode: testMode,
		Location: loc,
	}
}

// Submit records a new pending event and asks the group to confirm it.
func (s *CalendarService) Submit(ctx context.Context, ev *models.CalendarEvent) error {
	ev.ConfirmStatus = models.CALENDAR_CONFIRM_PENDING
	ev.CreationStatus = models.CALENDAR_CREATION_NONE
	if err := s.DB.Create(ev).Error; err != nil {
		return err
	}
	s.notify(ctx, s.eventMessage(ev, "มีนัดหมายใหม่รอยืนยัน"))
	return nil
}

// Confirm marks the event confirmed and creates it on the external
// calendar. Confirming an already-created event does nothing; confirming a
// cancelled event is rejected.
func (s *CalendarService) Confirm(ctx context.Context, id int64) (*models.CalendarEvent, error) {
	ev, err := s.byID(id)
	if err != nil {
		return nil, err
	}
	if ev.CreationStatus == models.CALENDAR_CREATION_CANCELLED {
		return nil, fmt.Errorf("event %d is cancelled", id)
	}
	if ev.CreationStatus == models.CALENDAR_CREATION_CREATED {
		return ev, nil
	}

	ev.ConfirmStatus = models.CALENDAR_CONFIRM_CONFIRMED

	if s.TestMode || s.Provider == nil {
		ev.CreationStatus = models.CALENDAR_CREATION_CREATED
	} else {
		start, end := s.eventTimes(ev)
		externalID, err := s.Provider.CreateEvent(ctx, ev.EventName, ev.Detail, ev.Location, start, end, s.Location.String())
		if err != nil {
			// Keep the confirmation, the creation can be retried.
			if dbErr := s.DB.Save(ev).Error; dbErr != nil {
				return nil, dbErr
			}
			return nil, fmt.Errorf("create calendar event: %w", err)
		}
		ev.ExternalEventID = externalID
		ev.CreationStatus = models.CALENDAR_CREATION_CREATED
	}

	if err := s.DB.Save(ev).Error; err != nil {
		return nil, err
	}
	s.notify(ctx, s.eventMessage(ev, "ยืนยันนัดหมายเรียบร้อย"))
	return ev, nil
}

// Cancel tears the event down from any state. Cancelling twice is a no-op;
// the external id is replaced with a sentinel once the remote entry is gone
// so a retry never deletes someone else's event.
func (s *CalendarService) Cancel(ctx context.Context, id int64) (*models.CalendarEvent, error) {
	ev, err := s.byID(id)
	if err != nil {
		return nil, err
	}
	if ev.CreationStatus == models.CALENDAR_CREATION_CANCELLED {
		return ev, nil
	}

	if ev.ExternalEventID != "" && ev.ExternalEventID != models.CALENDAR_EVENT_ID_REMOVED &&
		!s.TestMode && s.Provider != nil {
		if err := s.Provider.DeleteEvent(ctx, ev.ExternalEventID); err != nil {
			return nil, fmt.Errorf("delete calendar event: %w", err)
		}
	}

	ev.ExternalEventID = models.CALENDAR_EVENT_ID_REMOVED
	ev.CreationStatus = models.CALENDAR_CREATION_CANCELLED
	if err := s.DB.Save(ev).Error; err != nil {
		return nil, err
	}
	s.notify(ctx, s.eventMessage(ev, "ยกเลิกนัดหมายแล้ว"))
	return ev, nil
}

// Update edits a row and, for already-created events, pushes the change to
// the external calendar in place.
func (s *CalendarService) Update(ctx context.Context, id int64, changes *models.CalendarEvent) (*models.CalendarEvent, error) {
	ev, err := s.byID(id)
	if err != nil {
		return nil, err
	}
	if ev.CreationStatus == models.CALENDAR_CREATION_CANCELLED {
		return nil, fmt.Errorf("event %d is cancelled", id)
	}

	if changes.EventName != "" {
		ev.EventName = changes.EventName
	}
	if changes.Detail != "" {
		ev.Detail = changes.Detail
	}
	if changes.Location != "" {
		ev.Location = changes.Location
	}
	if changes.UserName != "" {
		ev.UserName = changes.UserName
	}
	if changes.StartAt != nil {
		ev.StartAt = changes.StartAt
	}
	if changes.EndAt != nil {
		ev.EndAt = changes.EndAt
	}

	if ev.CreationStatus == models.CALENDAR_CREATION_CREATED &&
		ev.ExternalEventID != "" && ev.ExternalEventID != models.CALENDAR_EVENT_ID_REMOVED &&
		!s.TestMode && s.Provider != nil {
		start, end := s.eventTimes(ev)
		if err := s.Provider.UpdateEvent(ctx, ev.ExternalEventID, ev.EventName, ev.Detail, ev.Location, start, end, s.Location.String()); err != nil {
			return nil, fmt.Errorf("update calendar event: %w", err)
		}
	}

	if err := s.DB.Save(ev).Error; err != nil {
		return nil, err
	}
	s.notify(ctx, s.eventMessage(ev, "แก้ไขนัดหมายแล้ว"))
	return ev, nil
}

// Pending lists events still waiting for confirmation.
func (s *CalendarService) Pending() ([]models.CalendarEvent, error) {
	var events []models.CalendarEvent
	err := s.DB.Where("confirm_status = ? AND creation_status <> ?",
		models.CALENDAR_CONFIRM_PENDING, models.CALENDAR_CREATION_CANCELLED).
		Order("start_at asc").
		Find(&events).Error
	return events, err
}

// MorningReminders pushes one reminder per event starting today. Meant to
// run from a daily scheduler early in the morning.
func (s *CalendarService) MorningReminders(ctx context.Context) (int, error) {
	now := time.Now().In(s.Location)
	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, s.Location)
	dayEnd := dayStart.Add(24 * time.Hour)

	var events []models.CalendarEvent
	err := s.DB.Where("start_at >= ? AND start_at < ? AND creation_status = ?",
		dayStart, dayEnd, models.CALENDAR_CREATION_CREATED).
		Order("start_at asc").
		Find(&events).Error
	if err != nil {
		return 0, err
	}

	for i := range events {
		s.notify(ctx, s.eventMessage(&events[i], "เตือนนัดหมายวันนี้"))
	}
	return len(events), nil
}

func (s *CalendarService) byID(id int64) (*models.CalendarEvent, error) {
	var ev models.CalendarEvent
	if err := s.DB.First(&ev, id).Error; err != nil {
		if gorm.IsRecordNotFoundError(err) {
			return nil, fmt.Errorf("event %d not found", id)
		}
		return nil, err
	}
	return &ev, nil
}

func (s *CalendarService) eventTimes(ev *models.CalendarEvent) (time.Time, time.Time) {
	start := time.Now().In(s.Location)
	if ev.StartAt != nil {
		start = ev.StartAt.In(s.Location)
	}
	end := start.Add(time.Hour)
	if ev.EndAt != nil {
		end = ev.EndAt.In(s.Location)
	}
	return start, end
}

func (s *CalendarService) notify(ctx context.Context, message tools.LineMessage) {
	if s.Notifier == nil || s.GroupID == "" {
		return
	}
	if err := s.Notifier.Push(ctx, s.GroupID, []tools.LineMessage{message}); err != nil {
		log.Printf("calendar: group notification failed: %v", err)
	}
}

// eventMessage builds the notification bubble shown in the group chat.
func (s *CalendarService) eventMessage(ev *models.CalendarEvent, title string) tools.LineMessage {
	when := ""
	if ev.StartAt != nil {
		when = ev.StartAt.In(s.Location).Format("2006-01-02 15:04")
	}

	lines := []map[string]any{
		{"type": "text", "text": title, "weight": "bold", "size": "lg"},
		{"type": "text", "text": ev.EventName},
	}
	if ev.UserName != "" {
		lines = append(lines, map[string]any{"type": "text", "text": "ผู้จอง: " + ev.UserName})
	}
	if when != "" {
		lines = append(lines, map[string]any{"type": "text", "text": "เวลา: " + when})
	}
	if ev.Location != "" {
		lines = append(lines, map[string]any{"type": "text", "text": "สถานที่: " + ev.Location})
	}

	bubble := map[string]any{
		"type":    "flex",
		"altText": fmt.Sprintf("%s: %s", title, ev.EventName),
		"contents": map[string]any{
			"type": "bubble",
			"body": map[string]any{
				"type":     "box",
				"layout":   "vertical",
				"contents": lines,
			},
		},
	}
	raw, _ := json.Marshal(bubble)
	return raw
}

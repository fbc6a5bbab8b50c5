package models

import "time"

/************************************************
/**** MARK: CALENDAR EVENT STATUS ****/
/************************************************/
const CALENDAR_CONFIRM_PENDING = "PENDING"
const CALENDAR_CONFIRM_CONFIRMED = "CONFIRMED"

const CALENDAR_CREATION_NONE = ""
const CALENDAR_CREATION_CREATED = "CREATED"
const CALENDAR_CREATION_CANCELLED = "CANCELLED"

// CALENDAR_EVENT_ID_REMOVED marks a cancelled row whose external calendar
// entry was already deleted, so a repeated cancel does not try again.
const CALENDAR_EVENT_ID_REMOVED = "REMOVED"

// CalendarEvent is one workflow row. ConfirmStatus is the manual gate
// (PENDING until a human confirms); CreationStatus tracks the external
// calendar side effect.
type CalendarEvent struct {
	ID              int64      `gorm:"primary_key;AUTO_INCREMENT" json:"id"`
	EventName       string     `gorm:"not null" json:"event_name"`
	Detail          string     `gorm:"type:text" json:"detail"`
	UserName        string     `gorm:"default:''" json:"user_name"`
	Location        string     `gorm:"default:''" json:"location"`
	StartAt         *time.Time `gorm:"index" json:"start_at"`
	EndAt           *time.Time `json:"end_at"`
	ConfirmStatus   string     `gorm:"not null;default:'PENDING'" json:"confirm_status"`
	CreationStatus  string     `gorm:"not null;default:''" json:"creation_status"`
	ExternalEventID string     `gorm:"default:''" json:"external_event_id"`
	CreatedAt       *time.Time `json:"created_at"`
	UpdatedAt       *time.Time `json:"updated_at"`
}

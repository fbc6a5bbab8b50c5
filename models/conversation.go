package models

import "time"

// Conversation is one logged exchange (or system event) for a user.
// Append-only audit log, written from the deferred phase.
type Conversation struct {
	ID          int64      `gorm:"primary_key;AUTO_INCREMENT" json:"id"`
	UserID      string     `gorm:"not null;index" json:"user_id"`
	DisplayName string     `gorm:"default:''" json:"display_name"`
	UserMessage string     `gorm:"type:text" json:"user_message"`
	Response    string     `gorm:"type:text" json:"response"`
	Intent      string     `gorm:"default:''" json:"intent"`
	Timestamp   *time.Time `gorm:"index" json:"timestamp"`
	CreatedAt   *time.Time `json:"created_at"`
}

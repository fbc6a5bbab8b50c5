package models

import "time"

/************************************************
/**** MARK: FOLLOWER STATUS ****/
/************************************************/
const FOLLOWER_STATUS_ACTIVE = "active"
const FOLLOWER_STATUS_BLOCKED = "blocked"

const FOLLOWER_DEFAULT_SOURCE = "unknown"
const FOLLOWER_DEFAULT_TAGS = "new-customer"

// Follower is one subscribed user of the LINE account. There is exactly one
// row per user id; unfollow flips Status to blocked, the row is never deleted.
type Follower struct {
	ID              int64      `gorm:"primary_key;AUTO_INCREMENT" json:"id"`
	UserID          string     `gorm:"not null;unique_index" json:"user_id"`
	DisplayName     string     `gorm:"default:''" json:"display_name"`
	PictureURL      string     `gorm:"default:''" json:"picture_url"`
	Language        string     `gorm:"default:'unknown'" json:"language"`
	StatusMessage   string     `gorm:"default:''" json:"status_message"`
	FirstFollowDate *time.Time `json:"first_follow_date"`
	LastFollowDate  *time.Time `json:"last_follow_date"`
	FollowCount     int        `gorm:"not null;default:0" json:"follow_count"`
	Status          string     `gorm:"not null;default:'active';index" json:"status"`
	SourceChannel   string     `gorm:"default:'unknown'" json:"source_channel"`
	Tags            string     `gorm:"default:''" json:"tags"` // comma-joined set
	LastInteraction *time.Time `json:"last_interaction"`
	TotalMessages   int        `gorm:"not null;default:0" json:"total_messages"`
	CreatedAt       *time.Time `json:"created_at"`
	UpdatedAt       *time.Time `json:"updated_at"`
}

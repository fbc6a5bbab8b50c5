package services

import (
	"time"

	"github.com/jinzhu/gorm"

	"yondaime/models"
)

// ConversationService appends to the conversation log. Rows are never
// updated after insert.
type ConversationService struct {
	DB *gorm.DB
}

func NewConversationService(db *gorm.DB) *ConversationService {
	return &ConversationService{DB: db}
}

func (s *ConversationService) Save(userID, displayName, userMessage, response, intent string) error {
	now := time.Now()
	row := models.Conversation{
		UserID:      userID,
		DisplayName: displayName,
		UserMessage: userMessage,
		Response:    response,
		Intent:      intent,
		Timestamp:   &now,
	}
	return s.DB.Create(&row).Error
}

// History returns the latest n rows for a user, newest first.
func (s *ConversationService) History(userID string, n int) ([]models.Conversation, error) {
	var rows []models.Conversation
	err := s.DB.Where("user_id = ?", userID).
		Order("timestamp desc").
		Limit(n).
		Find(&rows).Error
	return rows, err
}

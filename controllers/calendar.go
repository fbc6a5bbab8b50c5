package controllers

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"yondaime/models"
	"yondaime/services"
)

type CalendarController struct {
	Calendar *services.CalendarService
}

type calendarEventBody struct {
	EventName string     `json:"event_name"`
	Detail    string     `json:"detail"`
	UserName  string     `json:"user_name"`
	Location  string     `json:"location"`
	StartAt   *time.Time `json:"start_at"`
	EndAt     *time.Time `json:"end_at"`
}

func (b *calendarEventBody) toModel() *models.CalendarEvent {
	return &models.CalendarEvent{
		EventName: b.EventName,
		Detail:    b.Detail,
		UserName:  b.UserName,
		Location:  b.Location,
		StartAt:   b.StartAt,
		EndAt:     b.EndAt,
	}
}

func (cc *CalendarController) Submit(c *gin.Context) {
	var body calendarEventBody
	if err := c.BindJSON(&body); err != nil {
		RespondError(c, "invalid body", 400)
		return
	}
	if body.EventName == "" {
		RespondError(c, "event_name is required", 400)
		return
	}

	ev := body.toModel()
	if err := cc.Calendar.Submit(c.Request.Context(), ev); err != nil {
		RespondError(c, err.Error(), 500)
		return
	}
	RespondSuccess(c, ev)
}

func (cc *CalendarController) Confirm(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		RespondError(c, "invalid event id", 400)
		return
	}

	ev, err := cc.Calendar.Confirm(c.Request.Context(), id)
	if err != nil {
		RespondError(c, err.Error(), 500)
		return
	}
	RespondSuccess(c, ev)
}

func (cc *CalendarController) Cancel(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		RespondError(c, "invalid event id", 400)
		return
	}

	ev, err := cc.Calendar.Cancel(c.Request.Context(), id)
	if err != nil {
		RespondError(c, err.Error(), 500)
		return
	}
	RespondSuccess(c, ev)
}

func (cc *CalendarController) Update(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		RespondError(c, "invalid event id", 400)
		return
	}

	var body calendarEventBody
	if err := c.BindJSON(&body); err != nil {
		RespondError(c, "invalid body", 400)
		return
	}

	ev, err := cc.Calendar.Update(c.Request.Context(), id, body.toModel())
	if err != nil {
		RespondError(c, err.Error(), 500)
		return
	}
	RespondSuccess(c, ev)
}

func (cc *CalendarController) Pending(c *gin.Context) {
	events, err := cc.Calendar.Pending()
	if err != nil {
		RespondError(c, err.Error(), 500)
		return
	}
	RespondSuccess(c, events)
}

// Reminders triggers the morning sweep by hand, the same code the daily
// scheduler runs.
func (cc *CalendarController) Reminders(c *gin.Context) {
	sent, err := cc.Calendar.MorningReminders(c.Request.Context())
	if err != nil {
		RespondError(c, err.Error(), 500)
		return
	}
	RespondSuccess(c, gin.H{"reminders_sent": sent})
}

// Package events defines the inbound webhook event shapes shared by the
// controller, the queue, and the deferred worker.
package events

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

/************************************************
/**** MARK: EVENT TYPES ****/
/************************************************/
const EVENT_TYPE_MESSAGE = "message"
const EVENT_TYPE_POSTBACK = "postback"
const EVENT_TYPE_FOLLOW = "follow"
const EVENT_TYPE_UNFOLLOW = "unfollow"
const EVENT_TYPE_JOIN = "join"
const EVENT_TYPE_LEAVE = "leave"

const MESSAGE_TYPE_TEXT = "text"
const MESSAGE_TYPE_IMAGE = "image"

// Source identifies where an event came from. UserID is always set for
// one-to-one chats; GroupID or RoomID are set for multi-person sources.
type Source struct {
	Type    string `json:"type"`
	UserID  string `json:"userId"`
	GroupID string `json:"groupId,omitempty"`
	RoomID  string `json:"roomId,omitempty"`
}

type Message struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

type Postback struct {
	Data   string            `json:"data"`
	Params map[string]string `json:"params,omitempty"`
}

// Event is one entry of a webhook batch. Fields beyond the common ones are
// populated according to Type.
type Event struct {
	Type           string    `json:"type"`
	WebhookEventID string    `json:"webhookEventId"`
	ReplyToken     string    `json:"replyToken,omitempty"`
	Source         Source    `json:"source"`
	Timestamp      int64     `json:"timestamp"`
	Message        *Message  `json:"message,omitempty"`
	Postback       *Postback `json:"postback,omitempty"`
}

// Payload is the webhook request body.
type Payload struct {
	Destination string  `json:"destination"`
	Events      []Event `json:"events"`
}

var knownTypes = map[string]bool{
	EVENT_TYPE_MESSAGE:  true,
	EVENT_TYPE_POSTBACK: true,
	EVENT_TYPE_FOLLOW:   true,
	EVENT_TYPE_UNFOLLOW: true,
	EVENT_TYPE_JOIN:     true,
	EVENT_TYPE_LEAVE:    true,
}

// ParsePayload decodes a raw webhook body. Events with an unknown type are
// dropped with an error per event rather than failing the whole batch, and
// a missing webhookEventId is filled in so downstream dedup always has one.
func ParsePayload(body []byte) (*Payload, []error, error) {
	var p Payload
	if err := json.Unmarshal(body, &p); err != nil {
		return nil, nil, fmt.Errorf("decode payload: %w", err)
	}

	kept := p.Events[:0]
	var dropped []error
	for _, e := range p.Events {
		if !knownTypes[e.Type] {
			dropped = append(dropped, fmt.Errorf("unknown event type %q", e.Type))
			continue
		}
		if e.WebhookEventID == "" {
			e.WebhookEventID = uuid.NewString()
		}
		kept = append(kept, e)
	}
	p.Events = kept
	return &p, dropped, nil
}

// IsText reports whether the event carries a plain text message.
func (e *Event) IsText() bool {
	return e.Type == EVENT_TYPE_MESSAGE && e.Message != nil && e.Message.Type == MESSAGE_TYPE_TEXT
}

// IsImage reports whether the event carries an image message.
func (e *Event) IsImage() bool {
	return e.Type == EVENT_TYPE_MESSAGE && e.Message != nil && e.Message.Type == MESSAGE_TYPE_IMAGE
}

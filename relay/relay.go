// Package relay is the edge in front of the bot: it verifies webhook
// signatures once, keeps a copy of text messages, and fans each delivery
// out to every configured backend.
package relay

import (
	"bytes"
	"context"
	"io"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/jinzhu/gorm"

	"yondaime/events"
	"yondaime/tools"
)

// StoredMessage is one inbound text message kept for audit.
type StoredMessage struct {
	ID             int64      `gorm:"primary_key;AUTO_INCREMENT" json:"id"`
	WebhookEventID string     `gorm:"index" json:"webhook_event_id"`
	UserID         string     `gorm:"index" json:"user_id"`
	Text           string     `gorm:"type:text" json:"text"`
	ReceivedAt     *time.Time `json:"received_at"`
}

// Handler verifies and fans out webhook deliveries. DB is optional; with no
// database the relay only forwards.
type Handler struct {
	ChannelSecret string
	Targets       []string
	DB            *gorm.DB
	HTTPClient    *http.Client
}

func NewHandler(channelSecret string, targets []string, db *gorm.DB) *Handler {
	return &Handler{
		ChannelSecret: channelSecret,
		Targets:       targets,
		DB:            db,
		HTTPClient:    &http.Client{Timeout: 10 * time.Second},
	}
}

// ServeHTTP accepts POSTs only and answers 200 whenever the signature
// checks out, whatever happens downstream. The upstream channel must never
// see a downstream outage, it would start redelivering.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "cannot read body", http.StatusBadRequest)
		return
	}

	signature := r.Header.Get("X-Line-Signature")
	if !tools.ValidateLineSignature(h.ChannelSecret, body, signature) {
		log.Printf("relay: rejected request with invalid signature")
		http.Error(w, "invalid signature", http.StatusForbidden)
		return
	}

	h.persistTexts(body)
	h.fanOut(r.Context(), body, signature)

	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"ok"}`))
}

// persistTexts stores the text messages of the batch. Failures only log,
// persistence is best effort.
func (h *Handler) persistTexts(body []byte) {
	if h.DB == nil {
		return
	}

	payload, _, err := events.ParsePayload(body)
	if err != nil {
		log.Printf("relay: cannot decode payload for persistence: %v", err)
		return
	}

	now := time.Now()
	for _, ev := range payload.Events {
		if !ev.IsText() {
			continue
		}
		row := StoredMessage{
			WebhookEventID: ev.WebhookEventID,
			UserID:         ev.Source.UserID,
			Text:           ev.Message.Text,
			ReceivedAt:     &now,
		}
		if err := h.DB.Create(&row).Error; err != nil {
			log.Printf("relay: persist failed for %s: %v", ev.WebhookEventID, err)
		}
	}
}

// fanOut forwards body and signature to every target in parallel so the
// slowest backend does not delay the others. Each outcome is logged.
func (h *Handler) fanOut(ctx context.Context, body []byte, signature string) {
	var wg sync.WaitGroup
	for _, target := range h.Targets {
		wg.Add(1)
		go func(target string) {
			defer wg.Done()
			if err := h.forward(ctx, target, body, signature); err != nil {
				log.Printf("relay: forward to %s failed: %v", target, err)
			}
		}(target)
	}
	wg.Wait()
}

func (h *Handler) forward(ctx context.Context, target string, body []byte, signature string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Line-Signature", signature)

	resp, err := h.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	log.Printf("relay: forwarded to %s -> %d", target, resp.StatusCode)
	return nil
}

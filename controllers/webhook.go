package controllers

import (
	"context"
	"io"
	"log"

	"github.com/gin-gonic/gin"

	"yondaime/events"
	"yondaime/metrics"
	"yondaime/queue"
	"yondaime/tools"
)

// Scheduler arms the deferred processing run after events are queued.
type Scheduler interface {
	Schedule()
}

// Responder answers an event while its reply token is still fresh.
type Responder interface {
	HandleEvent(ctx context.Context, ev *events.Event)
}

// syncTypes is the latency-critical set: these are answered inside the
// webhook request. Everything else waits for the deferred run.
var syncTypes = map[string]bool{
	events.EVENT_TYPE_MESSAGE:  true,
	events.EVENT_TYPE_POSTBACK: true,
	events.EVENT_TYPE_FOLLOW:   true,
}

// WebhookController splits each delivery in two: the user-visible reply
// happens synchronously through the Responder, then the whole batch is
// queued for the deferred bookkeeping run. Queue loss is tolerable exactly
// because the reply has already been sent by then.
type WebhookController struct {
	ChannelSecret string
	Queue         *queue.EventQueue
	Scheduler     Scheduler
	Responder     Responder
}

func (w *WebhookController) Handle(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		metrics.WebhooksReceived.WithLabelValues("read_error").Inc()
		RespondError(c, "cannot read body", 400)
		return
	}

	signature := c.GetHeader("X-Line-Signature")
	if !tools.ValidateLineSignature(w.ChannelSecret, body, signature) {
		metrics.WebhooksReceived.WithLabelValues("bad_signature").Inc()
		log.Printf("webhook: rejected request with invalid signature")
		RespondError(c, "invalid signature", 403)
		return
	}

	// Past the signature gate the channel always gets its ack, whatever
	// goes wrong internally; anything else triggers redelivery.
	payload, dropped, err := events.ParsePayload(body)
	if err != nil {
		metrics.WebhooksReceived.WithLabelValues("bad_payload").Inc()
		log.Printf("webhook: undecodable payload: %v", err)
		RespondSuccess(c, gin.H{"status": "ok"})
		return
	}
	for _, dropErr := range dropped {
		metrics.EventsDropped.Inc()
		log.Printf("webhook: %v", dropErr)
	}

	for i := range payload.Events {
		w.respond(c.Request.Context(), &payload.Events[i])
	}

	if len(payload.Events) > 0 {
		if err := w.Queue.Enqueue(payload.Events...); err != nil {
			// Only bookkeeping is lost, the replies already went out.
			log.Printf("webhook: enqueue failed: %v", err)
		} else {
			metrics.EventsEnqueued.Add(float64(len(payload.Events)))
			if depth, err := w.Queue.Depth(); err == nil {
				metrics.QueueDepth.Set(float64(depth))
			}
			w.Scheduler.Schedule()
		}
	}

	metrics.WebhooksReceived.WithLabelValues("ok").Inc()
	RespondSuccess(c, gin.H{"status": "ok"})
}

// respond runs the synchronous reply phase for one event. A panic in one
// event's handler must not take down the rest of the batch or the ack.
func (w *WebhookController) respond(ctx context.Context, ev *events.Event) {
	if !syncTypes[ev.Type] {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			log.Printf("webhook: panic answering event %s: %v", ev.WebhookEventID, r)
		}
	}()
	w.Responder.HandleEvent(ctx, ev)
}

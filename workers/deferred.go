// Package workers holds the deferred side of the webhook. The user-visible
// reply already happened synchronously in the request; what lands here is
// the slow bookkeeping: profile fetches, follower upserts, conversation
// logging, read receipts.
package workers

import (
	"context"
	"log"
	"sync/atomic"
	"time"

	"yondaime/events"
	"yondaime/metrics"
	"yondaime/models"
	"yondaime/queue"
	"yondaime/services"
	"yondaime/tools"
)

// Scheduler coalesces webhook bursts into single deferred runs. Schedule is
// called on every webhook; only the first call while no run is pending arms
// the timer, so a burst of deliveries ends in exactly one drain.
type Scheduler struct {
	delay   time.Duration
	run     func()
	pending atomic.Bool
}

func NewScheduler(delay time.Duration, run func()) *Scheduler {
	return &Scheduler{delay: delay, run: run}
}

func (s *Scheduler) Schedule() {
	if !s.pending.CompareAndSwap(false, true) {
		return
	}
	time.AfterFunc(s.delay, func() {
		// Clear before running so events arriving mid-run get a new slot.
		s.pending.Store(false)
		s.run()
	})
}

// Processor drains the queue and records each event.
type Processor struct {
	Queue         *queue.EventQueue
	Followers     *services.FollowerService
	Conversations *services.ConversationService
	Line          services.Messenger
	Analytics     bool
}

// Run drains everything queued since the last run. One bad event never
// takes down the batch.
func (p *Processor) Run() {
	metrics.DeferredRuns.Inc()

	evs, err := p.Queue.DrainAll()
	if err != nil {
		log.Printf("deferred worker: drain error: %v", err)
		return
	}
	metrics.QueueDepth.Set(0)
	if len(evs) == 0 {
		return
	}
	log.Printf("deferred worker: processing %d events", len(evs))

	for i := range evs {
		p.dispatch(&evs[i])
	}
}

func (p *Processor) dispatch(ev *events.Event) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("deferred worker: panic on event %s: %v", ev.WebhookEventID, r)
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	metrics.EventsProcessed.WithLabelValues(ev.Type).Inc()

	switch ev.Type {
	case events.EVENT_TYPE_MESSAGE:
		p.handleMessage(ctx, ev)
	case events.EVENT_TYPE_POSTBACK:
		p.handlePostback(ctx, ev)
	case events.EVENT_TYPE_FOLLOW:
		p.handleFollow(ctx, ev)
	case events.EVENT_TYPE_UNFOLLOW:
		p.handleUnfollow(ev)
	default:
		// join/leave are logged only.
		log.Printf("deferred worker: %s event from %s", ev.Type, ev.Source.UserID)
	}
}

func (p *Processor) handleMessage(ctx context.Context, ev *events.Event) {
	userID := ev.Source.UserID
	profile := p.Line.Profile(ctx, userID)

	if err := p.Followers.UpdateInteraction(userID); err != nil {
		log.Printf("deferred worker: interaction update failed for %s: %v", userID, err)
	}
	if err := p.Line.MarkAsRead(ctx, userID); err != nil {
		log.Printf("deferred worker: mark as read failed for %s: %v", userID, err)
	}

	text := "[" + ev.Message.Type + "]"
	if ev.IsText() {
		text = ev.Message.Text
	}
	p.logConversation(profile, text)
}

func (p *Processor) handlePostback(ctx context.Context, ev *events.Event) {
	userID := ev.Source.UserID
	profile := p.Line.Profile(ctx, userID)

	if err := p.Followers.UpdateInteraction(userID); err != nil {
		log.Printf("deferred worker: interaction update failed for %s: %v", userID, err)
	}
	p.logConversation(profile, ev.Postback.Data)
}

func (p *Processor) handleFollow(ctx context.Context, ev *events.Event) {
	userID := ev.Source.UserID
	profile := p.Line.Profile(ctx, userID)

	if _, err := p.Followers.RecordFollow(profile, "line"); err != nil {
		log.Printf("deferred worker: follow upsert failed for %s: %v", userID, err)
	}
}

func (p *Processor) handleUnfollow(ev *events.Event) {
	userID := ev.Source.UserID
	if err := p.Followers.UpdateStatus(userID, models.FOLLOWER_STATUS_BLOCKED); err != nil {
		log.Printf("deferred worker: unfollow update failed for %s: %v", userID, err)
	}
}

func (p *Processor) logConversation(profile *tools.LineProfile, userMessage string) {
	if !p.Analytics {
		return
	}
	if err := p.Conversations.Save(profile.UserID, profile.DisplayName, userMessage, "", ""); err != nil {
		log.Printf("deferred worker: conversation log failed for %s: %v", profile.UserID, err)
	}
}

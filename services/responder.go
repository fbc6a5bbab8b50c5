package services

import (
	"context"
	"log"
	"net/url"
	"time"

	"yondaime/events"
	"yondaime/tools"
)

// Messenger is the outbound chat surface.
type Messenger interface {
	Reply(ctx context.Context, replyToken, userID string, messages []tools.LineMessage) error
	Push(ctx context.Context, to string, messages []tools.LineMessage) error
	Profile(ctx context.Context, userID string) *tools.LineProfile
	StartLoading(ctx context.Context, userID string, loadingSeconds int)
	MarkAsRead(ctx context.Context, userID string) error
}

// IntentDetector resolves free text into an intent with fulfillment
// messages. Nil means intent detection is disabled.
type IntentDetector interface {
	DetectIntent(ctx context.Context, sessionID, text string) (*tools.IntentResult, error)
}

// Answerer is the generative fallback used when no intent matches.
type Answerer interface {
	Answer(ctx context.Context, prompt string) string
}

// Responder is the synchronous half of webhook handling: everything the
// user sees (report flow steps, intent answers, fallback replies) happens
// here, inside the webhook request, while the reply token is still fresh.
// Slow bookkeeping is left to the deferred worker.
type Responder struct {
	Reports        *ReportService
	Line           Messenger
	Intents        IntentDetector
	Gemini         Answerer
	IgnoredIntents []string
	LoadingSeconds int
}

// HandleEvent answers one event. Failures are logged, never propagated:
// the webhook must ack whatever happens here.
func (r *Responder) HandleEvent(ctx context.Context, ev *events.Event) {
	switch ev.Type {
	case events.EVENT_TYPE_MESSAGE:
		r.handleMessage(ctx, ev)
	case events.EVENT_TYPE_POSTBACK:
		r.handlePostback(ctx, ev)
	case events.EVENT_TYPE_FOLLOW:
		// No welcome message, the account manager greets new followers.
	}
}

func (r *Responder) handleMessage(ctx context.Context, ev *events.Event) {
	userID := ev.Source.UserID

	switch {
	case ev.IsText():
		r.Line.StartLoading(ctx, userID, r.LoadingSeconds)
		r.handleText(ctx, ev)
	case ev.IsImage():
		handled, replies, err := r.Reports.HandleImage(ctx, userID, ev.Message.ID)
		if err != nil {
			log.Printf("responder: report image failed for %s: %v", userID, err)
			return
		}
		if handled {
			r.reply(ctx, ev, replies)
		}
	default:
		log.Printf("responder: ignoring %s message from %s", ev.Message.Type, userID)
	}
}

func (r *Responder) handleText(ctx context.Context, ev *events.Event) {
	userID := ev.Source.UserID
	text := ev.Message.Text

	// A running report flow takes the message before any intent matching.
	handled, replies, err := r.Reports.HandleText(userID, text)
	if err != nil {
		log.Printf("responder: report flow failed for %s: %v", userID, err)
		return
	}
	if handled {
		r.reply(ctx, ev, replies)
		return
	}

	var messages []tools.LineMessage
	if r.Intents != nil {
		result, err := r.Intents.DetectIntent(ctx, userID, text)
		if err != nil {
			log.Printf("responder: intent detection failed for %s: %v", userID, err)
		} else if !r.ignored(result.Intent) && len(result.Messages) > 0 {
			messages = r.renderMessages(result, userID)
		}
	}

	if len(messages) == 0 {
		answer := r.Gemini.Answer(ctx, text)
		messages = []tools.LineMessage{tools.TextMessage(answer)}
	}

	r.reply(ctx, ev, messages)
}

// renderMessages substitutes placeholder tokens in the fulfillment payloads
// and attaches branch quick replies when the intent carries a branch.
func (r *Responder) renderMessages(result *tools.IntentResult, userID string) []tools.LineMessage {
	branch := ""
	if b, ok := result.Parameters["branch"].(string); ok {
		branch = b
	}

	values := map[string]string{
		tools.PLACEHOLDER_DATE:    time.Now().In(r.Reports.Location).Format("2006-01-02"),
		tools.PLACEHOLDER_USER_ID: userID,
	}
	if branch != "" {
		if branchValues, err := r.Reports.PlaceholderValues(userID, branch); err == nil {
			for k, v := range branchValues {
				values[k] = v
			}
		} else {
			log.Printf("responder: balance lookup failed for branch %s: %v", branch, err)
		}
	}

	out := make([]tools.LineMessage, 0, len(result.Messages))
	for _, m := range result.Messages {
		out = append(out, tools.RenderPlaceholders(m, values))
	}
	if branch != "" && len(out) > 0 {
		out[len(out)-1] = AttachQuickReply(out[len(out)-1], QuickReplyBranches(branch))
	}
	return out
}

func (r *Responder) handlePostback(ctx context.Context, ev *events.Event) {
	userID := ev.Source.UserID

	data, err := url.ParseQuery(ev.Postback.Data)
	if err != nil {
		log.Printf("responder: bad postback data %q: %v", ev.Postback.Data, err)
		return
	}

	if branch := data.Get("branch"); branch != "" {
		replies, err := r.Reports.Start(userID, branch)
		if err != nil {
			log.Printf("responder: report start failed for %s: %v", userID, err)
			return
		}
		r.reply(ctx, ev, replies)
		return
	}

	log.Printf("responder: unhandled postback %q from %s", ev.Postback.Data, userID)
}

func (r *Responder) reply(ctx context.Context, ev *events.Event, messages []tools.LineMessage) {
	if len(messages) == 0 {
		return
	}
	if err := r.Line.Reply(ctx, ev.ReplyToken, ev.Source.UserID, messages); err != nil {
		log.Printf("responder: reply failed for %s: %v", ev.Source.UserID, err)
	}
}

func (r *Responder) ignored(intent string) bool {
	for _, name := range r.IgnoredIntents {
		if name == intent {
			return true
		}
	}
	return false
}

package services

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"yondaime/events"
	"yondaime/tools"
)

type stubLine struct {
	replies [][]tools.LineMessage
	tokens  []string
	loading int
	pushed  int
}

func (l *stubLine) Reply(ctx context.Context, replyToken, userID string, messages []tools.LineMessage) error {
	l.tokens = append(l.tokens, replyToken)
	l.replies = append(l.replies, messages)
	return nil
}

func (l *stubLine) Push(ctx context.Context, to string, messages []tools.LineMessage) error {
	l.pushed++
	return nil
}

func (l *stubLine) Profile(ctx context.Context, userID string) *tools.LineProfile {
	return &tools.LineProfile{UserID: userID}
}

func (l *stubLine) StartLoading(ctx context.Context, userID string, loadingSeconds int) {
	l.loading++
}

func (l *stubLine) MarkAsRead(ctx context.Context, userID string) error { return nil }

func (l *stubLine) lastText(t *testing.T) string {
	t.Helper()
	if len(l.replies) == 0 {
		t.Fatal("no reply sent")
	}
	last := l.replies[len(l.replies)-1]
	var msg struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal(last[len(last)-1], &msg); err != nil {
		t.Fatalf("decode reply: %v", err)
	}
	return msg.Text
}

type stubIntents struct {
	result *tools.IntentResult
	err    error
}

func (s *stubIntents) DetectIntent(ctx context.Context, sessionID, text string) (*tools.IntentResult, error) {
	return s.result, s.err
}

type stubGemini struct {
	answer string
	calls  int
}

func (s *stubGemini) Answer(ctx context.Context, prompt string) string {
	s.calls++
	return s.answer
}

func newTestResponder(t *testing.T) (*Responder, *stubLine, *stubGemini) {
	reports, _ := newTestReportService(t, &fakeFetcher{data: []byte("jpeg")})
	line := &stubLine{}
	gemini := &stubGemini{answer: "ขออภัยค่ะ"}
	r := &Responder{
		Reports:        reports,
		Line:           line,
		Gemini:         gemini,
		LoadingSeconds: 20,
	}
	return r, line, gemini
}

func postbackEvent(userID, data string) events.Event {
	return events.Event{
		Type:       events.EVENT_TYPE_POSTBACK,
		ReplyToken: "rt-" + userID,
		Source:     events.Source{Type: "user", UserID: userID},
		Postback:   &events.Postback{Data: data},
	}
}

func messageEvent(userID, text string) events.Event {
	return events.Event{
		Type:       events.EVENT_TYPE_MESSAGE,
		ReplyToken: "rt-" + userID,
		Source:     events.Source{Type: "user", UserID: userID},
		Message:    &events.Message{ID: "m1", Type: events.MESSAGE_TYPE_TEXT, Text: text},
	}
}

func TestResponderDrivesReportFlow(t *testing.T) {
	r, line, gemini := newTestResponder(t)
	ctx := context.Background()

	// Branch postback opens the flow and prompts for an amount.
	ev := postbackEvent("u1", "branch=EMQ")
	r.HandleEvent(ctx, &ev)
	if !strings.Contains(line.lastText(t), "EmQuartier") {
		t.Errorf("start prompt = %q", line.lastText(t))
	}
	if line.tokens[0] != "rt-u1" {
		t.Errorf("replied on token %q", line.tokens[0])
	}

	// A running flow takes the typed amount before any intent matching.
	ev = messageEvent("u1", "1,250.50")
	r.HandleEvent(ctx, &ev)
	if !strings.Contains(line.lastText(t), "1250.50") {
		t.Errorf("amount ack = %q", line.lastText(t))
	}
	if gemini.calls != 0 {
		t.Errorf("fallback ran %d times during the flow", gemini.calls)
	}
	if line.loading != 1 {
		t.Errorf("loading indicator shown %d times, want 1", line.loading)
	}

	// The proof photo closes the flow with the month summary.
	img := events.Event{
		Type:       events.EVENT_TYPE_MESSAGE,
		ReplyToken: "rt-u1",
		Source:     events.Source{Type: "user", UserID: "u1"},
		Message:    &events.Message{ID: "m2", Type: events.MESSAGE_TYPE_IMAGE},
	}
	r.HandleEvent(ctx, &img)
	if len(line.replies) != 3 {
		t.Fatalf("sent %d replies, want 3", len(line.replies))
	}

	state, _ := r.Reports.State("u1")
	if state != nil {
		t.Errorf("flow still open after summary: %+v", state)
	}
}

func TestResponderIntentWithBranchQuickReplies(t *testing.T) {
	r, line, gemini := newTestResponder(t)
	r.Intents = &stubIntents{result: &tools.IntentResult{
		Intent:     "check-balance",
		Parameters: map[string]any{"branch": "EMQ"},
		Messages:   []json.RawMessage{tools.TextMessage("ยอดสะสมสาขา ###BRANCH### คือ ###BALANCE### บาท")},
	}}

	ev := messageEvent("u1", "ยอดเดือนนี้เท่าไหร่")
	r.HandleEvent(context.Background(), &ev)

	if gemini.calls != 0 {
		t.Error("fallback ran despite matched intent")
	}
	text := line.lastText(t)
	if !strings.Contains(text, "EmQuartier") || !strings.Contains(text, "0.00") {
		t.Errorf("rendered text = %q", text)
	}

	// The last message carries quick replies for the other branches only.
	var tree struct {
		QuickReply struct {
			Items []struct {
				Action struct {
					Data string `json:"data"`
				} `json:"action"`
			} `json:"items"`
		} `json:"quickReply"`
	}
	last := line.replies[len(line.replies)-1]
	if err := json.Unmarshal(last[len(last)-1], &tree); err != nil {
		t.Fatalf("decode reply: %v", err)
	}
	if len(tree.QuickReply.Items) != 2 {
		t.Fatalf("quick reply items = %d, want 2", len(tree.QuickReply.Items))
	}
	for _, item := range tree.QuickReply.Items {
		if item.Action.Data == "branch=EMQ" {
			t.Error("quick replies offer the branch already selected")
		}
	}
}

func TestResponderFallsBackToGemini(t *testing.T) {
	r, line, gemini := newTestResponder(t)
	r.Intents = &stubIntents{result: &tools.IntentResult{Intent: "input.unknown"}}

	ev := messageEvent("u1", "คุยเล่นหน่อย")
	r.HandleEvent(context.Background(), &ev)

	if gemini.calls != 1 {
		t.Fatalf("fallback ran %d times, want 1", gemini.calls)
	}
	if line.lastText(t) != "ขออภัยค่ะ" {
		t.Errorf("fallback reply = %q", line.lastText(t))
	}
}

func TestResponderIgnoredIntentFallsThrough(t *testing.T) {
	r, line, gemini := newTestResponder(t)
	r.IgnoredIntents = []string{"smalltalk"}
	r.Intents = &stubIntents{result: &tools.IntentResult{
		Intent:   "smalltalk",
		Messages: []json.RawMessage{tools.TextMessage("canned")},
	}}

	ev := messageEvent("u1", "สวัสดี")
	r.HandleEvent(context.Background(), &ev)

	if gemini.calls != 1 {
		t.Errorf("fallback ran %d times, want 1", gemini.calls)
	}
	if line.lastText(t) == "canned" {
		t.Error("ignored intent was still answered with its fulfillment")
	}
}

func TestResponderFollowStaysSilent(t *testing.T) {
	r, line, _ := newTestResponder(t)

	ev := events.Event{
		Type:   events.EVENT_TYPE_FOLLOW,
		Source: events.Source{Type: "user", UserID: "u1"},
	}
	r.HandleEvent(context.Background(), &ev)

	if len(line.replies) != 0 || line.pushed != 0 {
		t.Error("follow event produced outbound messages")
	}
}

func TestAttachQuickReply(t *testing.T) {
	msg := AttachQuickReply(tools.TextMessage("เลือกสาขา"), QuickReplyBranches("ONB"))

	var tree map[string]any
	if err := json.Unmarshal(msg, &tree); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if tree["text"] != "เลือกสาขา" {
		t.Errorf("original text lost: %v", tree["text"])
	}
	if _, ok := tree["quickReply"]; !ok {
		t.Fatal("quickReply block missing")
	}

	// Undecodable input passes through untouched.
	bad := tools.LineMessage(`{broken`)
	if got := AttachQuickReply(bad, QuickReplyBranches("EMQ")); string(got) != string(bad) {
		t.Errorf("broken message rewritten: %s", got)
	}
}

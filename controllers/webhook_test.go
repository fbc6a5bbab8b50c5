package controllers

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"yondaime/cache"
	"yondaime/events"
	"yondaime/queue"
)

const testSecret = "channel-secret"

type fakeScheduler struct {
	calls int
}

func (s *fakeScheduler) Schedule() { s.calls++ }

type fakeResponder struct {
	events []events.Event
}

func (f *fakeResponder) HandleEvent(ctx context.Context, ev *events.Event) {
	f.events = append(f.events, *ev)
}

// brokenStore fails every operation, so enqueueing into a queue backed by
// it always errors.
type brokenStore struct{}

func (brokenStore) Get(key string) (string, error)              { return "", errors.New("store down") }
func (brokenStore) Put(key, value string, ttlSeconds int) error { return errors.New("store down") }
func (brokenStore) Remove(key string) error                     { return errors.New("store down") }

func sign(body []byte) string {
	mac := hmac.New(sha256.New, []byte(testSecret))
	mac.Write(body)
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

func newWebhookRig(store cache.Store) (*gin.Engine, *queue.EventQueue, *fakeScheduler, *fakeResponder) {
	gin.SetMode(gin.TestMode)
	q := queue.New(store, 3600)
	sched := &fakeScheduler{}
	resp := &fakeResponder{}
	w := &WebhookController{ChannelSecret: testSecret, Queue: q, Scheduler: sched, Responder: resp}

	r := gin.New()
	r.POST("/webhook", w.Handle)
	return r, q, sched, resp
}

func post(r *gin.Engine, body []byte, signature string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/webhook", bytes.NewReader(body))
	req.Header.Set("X-Line-Signature", signature)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestWebhookRejectsInvalidSignature(t *testing.T) {
	r, q, sched, resp := newWebhookRig(cache.NewMemory())
	body := []byte(`{"events":[{"type":"follow","source":{"type":"user","userId":"u1"}}]}`)

	rec := post(r, body, "bogus")
	if rec.Code != 403 {
		t.Errorf("got %d, want 403", rec.Code)
	}

	// No side effects: no reply, nothing queued, nothing scheduled.
	if len(resp.events) != 0 {
		t.Errorf("responder saw %d events after rejected webhook", len(resp.events))
	}
	if depth, _ := q.Depth(); depth != 0 {
		t.Errorf("queue depth = %d after rejected webhook", depth)
	}
	if sched.calls != 0 {
		t.Errorf("scheduler armed %d times after rejected webhook", sched.calls)
	}
}

func TestWebhookAcksBadJSON(t *testing.T) {
	r, _, sched, resp := newWebhookRig(cache.NewMemory())
	body := []byte(`{not json`)

	// A verified sender always gets a 200 so the channel does not retry
	// an unparseable delivery forever.
	rec := post(r, body, sign(body))
	if rec.Code != 200 {
		t.Errorf("got %d, want 200", rec.Code)
	}
	if len(resp.events) != 0 || sched.calls != 0 {
		t.Error("unparseable body reached the processing path")
	}
}

func TestWebhookRepliesBeforeQueueing(t *testing.T) {
	r, q, sched, resp := newWebhookRig(cache.NewMemory())
	body := []byte(`{"events":[
		{"type":"message","webhookEventId":"w1","replyToken":"r1",
		 "source":{"type":"user","userId":"u1"},
		 "message":{"id":"m1","type":"text","text":"350"}},
		{"type":"follow","source":{"type":"user","userId":"u2"}}
	]}`)

	rec := post(r, body, sign(body))
	if rec.Code != 200 {
		t.Fatalf("got %d, want 200", rec.Code)
	}
	if rec.Body.String() != `{"status":"ok"}` {
		t.Errorf("body = %s", rec.Body.String())
	}

	// Both events are in the latency-critical set: the responder handled
	// them inside the request.
	if len(resp.events) != 2 {
		t.Fatalf("responder saw %d events, want 2", len(resp.events))
	}
	if resp.events[0].ReplyToken != "r1" || resp.events[0].Message.Text != "350" {
		t.Errorf("first responded event = %+v", resp.events[0])
	}

	if depth, _ := q.Depth(); depth != 2 {
		t.Errorf("queue depth = %d, want 2", depth)
	}
	if sched.calls != 1 {
		t.Errorf("scheduler armed %d times, want 1", sched.calls)
	}
}

func TestWebhookSkipsResponderForUnfollow(t *testing.T) {
	r, q, _, resp := newWebhookRig(cache.NewMemory())
	body := []byte(`{"events":[{"type":"unfollow","source":{"type":"user","userId":"u1"}}]}`)

	rec := post(r, body, sign(body))
	if rec.Code != 200 {
		t.Fatalf("got %d, want 200", rec.Code)
	}

	// Unfollow has nothing to say to the user; it only gets queued.
	if len(resp.events) != 0 {
		t.Errorf("responder saw %d events for unfollow", len(resp.events))
	}
	if depth, _ := q.Depth(); depth != 1 {
		t.Errorf("queue depth = %d, want 1", depth)
	}
}

func TestWebhookAcksWhenQueueUnavailable(t *testing.T) {
	r, _, sched, resp := newWebhookRig(brokenStore{})
	body := []byte(`{"events":[
		{"type":"message","webhookEventId":"w1","replyToken":"r1",
		 "source":{"type":"user","userId":"u1"},
		 "message":{"id":"m1","type":"text","text":"hello"}}
	]}`)

	rec := post(r, body, sign(body))

	// The reply phase ran even though the backlog store is down, and the
	// delivery is still acknowledged so the channel does not retry it.
	if len(resp.events) != 1 || resp.events[0].ReplyToken != "r1" {
		t.Fatalf("responder saw %+v", resp.events)
	}
	if rec.Code != 200 {
		t.Errorf("got %d, want 200", rec.Code)
	}
	if sched.calls != 0 {
		t.Errorf("scheduler armed %d times with no backlog", sched.calls)
	}
}

func TestWebhookEmptyBatch(t *testing.T) {
	r, _, sched, resp := newWebhookRig(cache.NewMemory())
	body := []byte(`{"events":[]}`)

	rec := post(r, body, sign(body))
	if rec.Code != 200 {
		t.Errorf("got %d, want 200", rec.Code)
	}
	// Nothing to process, no deferred run scheduled.
	if len(resp.events) != 0 || sched.calls != 0 {
		t.Error("empty batch reached the processing path")
	}
}

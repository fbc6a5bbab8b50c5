package tools

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func testLineClient(apiBase string) *LineClient {
	c := NewLineClient("token", 2, time.Millisecond)
	c.APIBase = apiBase
	c.DataAPIBase = apiBase
	return c
}

func TestReplyFallsBackToPush(t *testing.T) {
	var pushed map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v2/bot/message/reply":
			// Expired reply token.
			w.WriteHeader(http.StatusBadRequest)
		case "/v2/bot/message/push":
			json.NewDecoder(r.Body).Decode(&pushed)
			w.WriteHeader(http.StatusOK)
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	c := testLineClient(srv.URL)
	err := c.Reply(context.Background(), "stale-token", "u1", []LineMessage{TextMessage("hi")})
	if err != nil {
		t.Fatalf("reply with push fallback: %v", err)
	}
	if pushed == nil || pushed["to"] != "u1" {
		t.Errorf("push body = %v, want to=u1", pushed)
	}
}

func TestProfilePlaceholderOnFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	p := testLineClient(srv.URL).Profile(context.Background(), "u1")
	if p.UserID != "u1" || p.DisplayName != "Unknown" {
		t.Errorf("got %+v, want placeholder profile", p)
	}
}

func TestProfileSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer token" {
			t.Errorf("missing bearer token")
		}
		json.NewEncoder(w).Encode(map[string]string{
			"displayName": "Somchai",
			"pictureUrl":  "https://example.com/p.jpg",
		})
	}))
	defer srv.Close()

	p := testLineClient(srv.URL).Profile(context.Background(), "u1")
	if p.DisplayName != "Somchai" {
		t.Errorf("got %q, want Somchai", p.DisplayName)
	}
	if p.UserID != "u1" {
		t.Errorf("user id not carried over: %q", p.UserID)
	}
}

func TestMediaContentRetries(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Write([]byte("jpeg-bytes"))
	}))
	defer srv.Close()

	data, err := testLineClient(srv.URL).MediaContent(context.Background(), "m1")
	if err != nil {
		t.Fatalf("media content: %v", err)
	}
	if string(data) != "jpeg-bytes" {
		t.Errorf("got %q", data)
	}
	if calls != 2 {
		t.Errorf("got %d calls, want 2", calls)
	}
}

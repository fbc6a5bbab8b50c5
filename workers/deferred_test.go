package workers

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jinzhu/gorm"
	_ "github.com/jinzhu/gorm/dialects/sqlite"

	"yondaime/cache"
	"yondaime/events"
	"yondaime/models"
	"yondaime/queue"
	"yondaime/services"
	"yondaime/tools"
)

type fakeMessenger struct {
	markedRead []string
	replied    int
}

func (m *fakeMessenger) Reply(ctx context.Context, replyToken, userID string, messages []tools.LineMessage) error {
	m.replied++
	return nil
}

func (m *fakeMessenger) Push(ctx context.Context, to string, messages []tools.LineMessage) error {
	return nil
}

func (m *fakeMessenger) Profile(ctx context.Context, userID string) *tools.LineProfile {
	return &tools.LineProfile{UserID: userID, DisplayName: "Name " + userID}
}

func (m *fakeMessenger) StartLoading(ctx context.Context, userID string, loadingSeconds int) {}

func (m *fakeMessenger) MarkAsRead(ctx context.Context, userID string) error {
	m.markedRead = append(m.markedRead, userID)
	return nil
}

func workerTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	db.AutoMigrate(&models.Follower{}, &models.Conversation{})
	return db
}

func newTestProcessor(t *testing.T) (*Processor, *queue.EventQueue, *fakeMessenger, *gorm.DB) {
	db := workerTestDB(t)
	q := queue.New(cache.NewMemory(), 3600)
	line := &fakeMessenger{}
	p := &Processor{
		Queue:         q,
		Followers:     services.NewFollowerService(db, cache.NewMemory(), 3600, 300, time.UTC),
		Conversations: services.NewConversationService(db),
		Line:          line,
		Analytics:     true,
	}
	return p, q, line, db
}

func textEvent(userID, text string) events.Event {
	return events.Event{
		Type:           events.EVENT_TYPE_MESSAGE,
		WebhookEventID: "w-" + userID,
		ReplyToken:     "r-" + userID,
		Source:         events.Source{Type: "user", UserID: userID},
		Message:        &events.Message{ID: "m-" + userID, Type: events.MESSAGE_TYPE_TEXT, Text: text},
	}
}

func TestProcessorRunRecordsBookkeeping(t *testing.T) {
	p, q, line, db := newTestProcessor(t)

	q.Enqueue(
		events.Event{
			Type:   events.EVENT_TYPE_FOLLOW,
			Source: events.Source{Type: "user", UserID: "u1"},
		},
		textEvent("u1", "สวัสดี"),
		events.Event{
			Type:     events.EVENT_TYPE_POSTBACK,
			Source:   events.Source{Type: "user", UserID: "u1"},
			Postback: &events.Postback{Data: "branch=EMQ"},
		},
	)

	p.Run()

	// Follow created the follower row from the fetched profile.
	f, err := p.Followers.GetFollower("u1")
	if err != nil || f == nil {
		t.Fatalf("follower after run = %v, %v", f, err)
	}
	if f.DisplayName != "Name u1" || f.FollowCount != 1 {
		t.Errorf("follower = %+v", f)
	}
	// Message and postback each bumped the interaction counter.
	if f.TotalMessages != 2 {
		t.Errorf("total messages = %d, want 2", f.TotalMessages)
	}

	// Message and postback were logged.
	var rows []models.Conversation
	if err := db.Order("id asc").Find(&rows).Error; err != nil {
		t.Fatalf("load conversations: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("logged %d conversations, want 2", len(rows))
	}
	if rows[0].UserMessage != "สวัสดี" || rows[1].UserMessage != "branch=EMQ" {
		t.Errorf("logged messages = %q, %q", rows[0].UserMessage, rows[1].UserMessage)
	}

	if len(line.markedRead) != 1 || line.markedRead[0] != "u1" {
		t.Errorf("marked read = %v", line.markedRead)
	}
	// The deferred phase never sends messages.
	if line.replied != 0 {
		t.Errorf("deferred run sent %d replies", line.replied)
	}

	// The batch was consumed.
	if depth, _ := q.Depth(); depth != 0 {
		t.Errorf("queue depth after run = %d", depth)
	}
}

func TestProcessorUnfollowBlocks(t *testing.T) {
	p, q, _, _ := newTestProcessor(t)

	q.Enqueue(events.Event{
		Type:   events.EVENT_TYPE_FOLLOW,
		Source: events.Source{Type: "user", UserID: "u1"},
	})
	p.Run()

	q.Enqueue(events.Event{
		Type:   events.EVENT_TYPE_UNFOLLOW,
		Source: events.Source{Type: "user", UserID: "u1"},
	})
	p.Run()

	f, err := p.Followers.GetFollower("u1")
	if err != nil || f == nil {
		t.Fatalf("follower = %v, %v", f, err)
	}
	if f.Status != models.FOLLOWER_STATUS_BLOCKED {
		t.Errorf("status after unfollow = %s, want blocked", f.Status)
	}
}

func TestProcessorEmptyQueue(t *testing.T) {
	p, _, line, _ := newTestProcessor(t)

	p.Run()

	if len(line.markedRead) != 0 || line.replied != 0 {
		t.Error("empty run touched the chat API")
	}
}

func TestSchedulerCoalescesBurst(t *testing.T) {
	var runs int32
	done := make(chan struct{}, 8)
	s := NewScheduler(20*time.Millisecond, func() {
		atomic.AddInt32(&runs, 1)
		done <- struct{}{}
	})

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.Schedule()
		}()
	}
	wg.Wait()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("deferred run never fired")
	}
	// Grace period for any extra timers that should not exist.
	time.Sleep(50 * time.Millisecond)
	if got := atomic.LoadInt32(&runs); got != 1 {
		t.Errorf("burst produced %d runs, want 1", got)
	}
}

func TestSchedulerReArmsAfterRun(t *testing.T) {
	done := make(chan struct{}, 2)
	s := NewScheduler(5*time.Millisecond, func() { done <- struct{}{} })

	s.Schedule()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("first run never fired")
	}

	s.Schedule()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("second run never fired")
	}
}

package scheduler

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/DevSkits916/postdeck/internal/metrics"
	"github.com/DevSkits916/postdeck/internal/queue"
	"github.com/DevSkits916/postdeck/internal/schema"
	"github.com/DevSkits916/postdeck/internal/store"
)

type fakeSender struct {
	mu   sync.Mutex
	sent []*schema.Message
	fail bool
}

func (f *fakeSender) Send(_ context.Context, m *schema.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return fmt.Errorf("transport down")
	}
	f.sent = append(f.sent, m)
	return nil
}

func (f *fakeSender) byType(t schema.MessageType) []*schema.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*schema.Message
	for _, m := range f.sent {
		if m.Type == t {
			out = append(out, m)
		}
	}
	return out
}

func newTestScheduler(t *testing.T) (*Scheduler, *queue.Queue, *fakeSender, *metrics.Collector) {
	t.Helper()
	st := store.New(filepath.Join(t.TempDir(), "state.json"), nil)
	q, err := queue.New(st, nil, 0)
	if err != nil {
		t.Fatalf("failed to create queue: %v", err)
	}

	sender := &fakeSender{}
	collector := &metrics.Collector{}
	s := New(Options{Queue: q, Sender: sender, Metrics: collector})
	return s, q, sender, collector
}

func seedJob(t *testing.T, q *queue.Queue, text string) (*schema.Job, *schema.Account) {
	t.Helper()
	account := schema.NewAccount("Test", "test@example.com")
	if err := q.AddAccount(account); err != nil {
		t.Fatalf("failed to add account: %v", err)
	}
	job := schema.NewJob(account.ID, schema.Target{Type: schema.TargetProfile},
		schema.PostContent{Text: text}, schema.Schedule{Type: schema.ScheduleNone})
	if err := q.Enqueue(job); err != nil {
		t.Fatalf("enqueue failed: %v", err)
	}
	return job, account
}

func TestTick_DispatchesPromotedJobs(t *testing.T) {
	s, q, sender, collector := newTestScheduler(t)
	job, account := seedJob(t, q, "go live")

	s.Tick(context.Background(), time.Now())

	dispatches := sender.byType(schema.TypeRunNow)
	if len(dispatches) != 1 {
		t.Fatalf("expected 1 run-now dispatch, got %d", len(dispatches))
	}
	p, err := dispatches[0].RunNowPayload()
	if err != nil {
		t.Fatalf("failed to decode dispatch: %v", err)
	}
	if p.Item.ID != job.ID || p.Account.ID != account.ID {
		t.Error("dispatch carries the wrong job or account")
	}

	snap := collector.Snapshot()
	if snap.Ticks != 1 || snap.Promotions != 1 || snap.Dispatches != 1 {
		t.Errorf("unexpected counters: %+v", snap)
	}
}

func TestTick_IdleHasNoSideEffects(t *testing.T) {
	s, _, sender, collector := newTestScheduler(t)

	s.Tick(context.Background(), time.Now())
	s.Tick(context.Background(), time.Now())

	if len(sender.byType(schema.TypeRunNow)) != 0 {
		t.Error("idle ticks must not dispatch anything")
	}
	if snap := collector.Snapshot(); snap.Ticks != 2 || snap.Promotions != 0 {
		t.Errorf("unexpected counters: %+v", snap)
	}
}

func TestTick_RepromotionOnlyOnChange(t *testing.T) {
	s, q, sender, _ := newTestScheduler(t)
	seedJob(t, q, "go live")

	s.Tick(context.Background(), time.Now())
	// Second tick: the job is already running, nothing was promoted, so
	// no redispatch happens.
	s.Tick(context.Background(), time.Now())

	if got := len(sender.byType(schema.TypeRunNow)); got != 1 {
		t.Errorf("expected exactly 1 dispatch across both ticks, got %d", got)
	}
}

func TestHandleMessage_StatusUpdateRedispatches(t *testing.T) {
	s, q, sender, collector := newTestScheduler(t)
	first, _ := seedJob(t, q, "first post about apples")

	account := q.Accounts()[0]
	second := schema.NewJob(account.ID, schema.Target{Type: schema.TargetProfile},
		schema.PostContent{Text: "second post about oranges"},
		schema.Schedule{Type: schema.ScheduleNone})
	if err := q.Enqueue(second); err != nil {
		t.Fatalf("enqueue failed: %v", err)
	}

	s.Tick(context.Background(), time.Now())
	if got := len(sender.byType(schema.TypeRunNow)); got != 2 {
		t.Fatalf("expected both jobs dispatched, got %d", got)
	}

	// The agent finishes the first job; the second gets redelivered so the
	// freed lease is reused immediately.
	report := schema.MustMessage(schema.TypeStatusUpdate, schema.StatusUpdatePayload{
		QueueID:   first.ID,
		Status:    schema.StatusSuccess,
		PostID:    "post-1",
		Timestamp: time.Now().UTC(),
	})
	s.HandleMessage(context.Background(), report)

	dispatches := sender.byType(schema.TypeRunNow)
	if len(dispatches) != 3 {
		t.Fatalf("expected a redispatch after the status change, got %d total", len(dispatches))
	}
	p, err := dispatches[2].RunNowPayload()
	if err != nil {
		t.Fatalf("failed to decode dispatch: %v", err)
	}
	if p.Item.ID != second.ID {
		t.Error("redispatch must carry the still-running job")
	}

	if snap := collector.Snapshot(); snap.Successes != 1 {
		t.Errorf("expected 1 success counted, got %+v", snap)
	}
}

func TestHandleMessage_DuplicateEnvelopeDropped(t *testing.T) {
	s, q, _, collector := newTestScheduler(t)
	job, _ := seedJob(t, q, "dedup me")
	s.Tick(context.Background(), time.Now())

	report := schema.MustMessage(schema.TypeStatusUpdate, schema.StatusUpdatePayload{
		QueueID:   job.ID,
		Status:    schema.StatusSuccess,
		Timestamp: time.Now().UTC(),
	})

	// Same envelope delivered on two channels.
	s.HandleMessage(context.Background(), report)
	s.HandleMessage(context.Background(), report)

	if got := len(q.Analytics()); got != 1 {
		t.Errorf("expected exactly one analytics record, got %d", got)
	}
	if snap := collector.Snapshot(); snap.DuplicatesDropped != 1 {
		t.Errorf("expected 1 duplicate counted, got %+v", snap)
	}
}

func TestHandleMessage_StateTracksAgent(t *testing.T) {
	s, _, sender, _ := newTestScheduler(t)

	if s.Connected() {
		t.Error("agent must start disconnected")
	}

	s.HandleMessage(context.Background(), schema.MustMessage(schema.TypeState,
		schema.StatePayload{Connected: true, ActiveAccountID: "acc-1"}))
	if !s.Connected() {
		t.Error("expected the agent to be marked connected")
	}

	// request-state gets the current view echoed back.
	s.HandleMessage(context.Background(), schema.MustMessage(schema.TypeRequestState, struct{}{}))
	replies := sender.byType(schema.TypeState)
	if len(replies) != 1 {
		t.Fatalf("expected a state reply, got %d", len(replies))
	}
	p, err := replies[0].StatePayload()
	if err != nil {
		t.Fatalf("failed to decode state reply: %v", err)
	}
	if !p.Connected || p.ActiveAccountID != "acc-1" {
		t.Errorf("state reply does not match the tracked view: %+v", p)
	}
}

func TestHandleMessage_RemoteEnqueue(t *testing.T) {
	s, q, _, _ := newTestScheduler(t)
	account := schema.NewAccount("Remote", "remote@example.com")
	if err := q.AddAccount(account); err != nil {
		t.Fatalf("failed to add account: %v", err)
	}

	job := schema.NewJob(account.ID, schema.Target{Type: schema.TargetGroup, Value: "g1"},
		schema.PostContent{Text: "enqueued from the other context"},
		schema.Schedule{Type: schema.ScheduleNone})

	s.HandleMessage(context.Background(), schema.MustMessage(schema.TypeEnqueue,
		schema.EnqueuePayload{Item: *job, Account: *account}))

	if got := q.Job(job.ID); got == nil {
		t.Fatal("expected the remote job in the queue")
	}
}

func TestHandleMessage_LogRingIsBounded(t *testing.T) {
	s, _, _, _ := newTestScheduler(t)

	for i := 0; i < logRingCapacity+50; i++ {
		s.HandleMessage(context.Background(), schema.MustMessage(schema.TypeLog,
			schema.LogPayload{
				Level:     "info",
				Message:   fmt.Sprintf("line %d", i),
				Timestamp: time.Now().UTC(),
			}))
	}

	logs := s.AgentLogs()
	if len(logs) != logRingCapacity {
		t.Fatalf("expected the tail capped at %d, got %d", logRingCapacity, len(logs))
	}
	if logs[len(logs)-1].Message != fmt.Sprintf("line %d", logRingCapacity+49) {
		t.Error("expected the newest line at the end of the tail")
	}
}

func TestDispatch_SendFailureIsCounted(t *testing.T) {
	s, q, sender, collector := newTestScheduler(t)
	seedJob(t, q, "unreachable agent")
	sender.fail = true

	s.Tick(context.Background(), time.Now())

	snap := collector.Snapshot()
	if snap.SendErrors != 1 {
		t.Errorf("expected 1 send error, got %+v", snap)
	}
	if snap.Dispatches != 0 {
		t.Errorf("failed sends must not count as dispatches: %+v", snap)
	}
}

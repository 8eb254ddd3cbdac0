package sla

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/civora/approvals/internal/events"
	"github.com/civora/approvals/internal/model"
	"github.com/civora/approvals/internal/notify"
	"github.com/civora/approvals/internal/store"
)

// sweepStore is an in-memory Store for sweeper tests. The embedded interface
// panics on any store method the sweeper has no business calling.
type sweepStore struct {
	store.Store

	mu       sync.Mutex
	requests map[string]*model.ApprovalRequest
	recorded []*model.EscalationEvent

	listErr   error
	recordErr error
}

func newSweepStore() *sweepStore {
	return &sweepStore{requests: make(map[string]*model.ApprovalRequest)}
}

func (s *sweepStore) ListOpenRequests(_ context.Context) ([]*model.ApprovalRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listErr != nil {
		return nil, s.listErr
	}
	var out []*model.ApprovalRequest
	for _, r := range s.requests {
		if r.Status == model.RequestOpen {
			clone := *r
			out = append(out, &clone)
		}
	}
	return out, nil
}

func (s *sweepStore) EscalateRequest(_ context.Context, id string, fromLevel, toLevel int) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.requests[id]
	if !ok || r.Status != model.RequestOpen || r.EscalationLevel != fromLevel || toLevel <= fromLevel {
		return false, nil
	}
	r.EscalationLevel = toLevel
	return true, nil
}

func (s *sweepStore) RecordEscalation(_ context.Context, ev *model.EscalationEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.recordErr != nil {
		return s.recordErr
	}
	s.recorded = append(s.recorded, ev)
	return nil
}

// RunInTransaction snapshots request state up front and restores it when fn
// fails, mirroring a database rollback.
func (s *sweepStore) RunInTransaction(_ context.Context, fn func(tx store.Store) error) error {
	s.mu.Lock()
	snapshot := make(map[string]*model.ApprovalRequest, len(s.requests))
	for id, r := range s.requests {
		clone := *r
		snapshot[id] = &clone
	}
	s.mu.Unlock()

	if err := fn(s); err != nil {
		s.mu.Lock()
		s.requests = snapshot
		s.mu.Unlock()
		return err
	}
	return nil
}

// capturePublisher collects published events; optionally fails every publish.
type capturePublisher struct {
	mu     sync.Mutex
	topics []string
	err    error
}

func (p *capturePublisher) Publish(_ context.Context, topic string, _ any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.topics = append(p.topics, topic)
	return p.err
}

func (p *capturePublisher) Close() error { return nil }

type captureNotifier struct {
	mu   sync.Mutex
	sent []notify.Notification
}

func (n *captureNotifier) Notify(_ context.Context, msg notify.Notification) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, msg)
	return nil
}

func (n *captureNotifier) Close() error { return nil }

func testSweeper(s Store, p events.Publisher, n notify.Notifier) *Sweeper {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewSweeper(s, p, n, time.Minute, logger)
}

func openRequest(id string, openedAt time.Time, slaDays, level int) *model.ApprovalRequest {
	return &model.ApprovalRequest{
		ID:              id,
		WorkflowID:      "wf-" + id,
		RequesterID:     "user-1",
		GateName:        "intake",
		Status:          model.RequestOpen,
		OpenedAt:        openedAt,
		DueAt:           DueAt(openedAt, slaDays),
		EscalationLevel: level,
	}
}

func TestSweepOnce_RaisesLevelAndEmitsOneEvent(t *testing.T) {
	// Opened at day 0 with a 7-day SLA; swept at day 10.
	opened := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	st := newSweepStore()
	st.requests["ar-1"] = openRequest("ar-1", opened, 7, 0)

	pub := &capturePublisher{}
	not := &captureNotifier{}
	sw := testSweeper(st, pub, not)
	sw.now = func() time.Time { return opened.Add(10 * 24 * time.Hour) }

	sw.SweepOnce(context.Background())

	if got := st.requests["ar-1"].EscalationLevel; got != LevelOverdue {
		t.Errorf("escalation level = %d, want %d", got, LevelOverdue)
	}
	if len(st.recorded) != 1 {
		t.Fatalf("recorded %d escalations, want 1", len(st.recorded))
	}
	ev := st.recorded[0]
	if ev.FromLevel != 0 || ev.ToLevel != 1 || ev.DaysOverdue != 3 {
		t.Errorf("escalation = %+v, want 0→1 at 3 days overdue", ev)
	}
	if len(pub.topics) != 1 || pub.topics[0] != events.TopicRequestEscalated {
		t.Errorf("published topics = %v, want one %q", pub.topics, events.TopicRequestEscalated)
	}
	if len(not.sent) != 1 || not.sent[0].RecipientID != "user-1" {
		t.Errorf("notifications = %+v, want one to user-1", not.sent)
	}

	// Running the sweep again within the same tick is a no-op.
	sw.SweepOnce(context.Background())
	if len(st.recorded) != 1 {
		t.Errorf("second sweep recorded %d escalations, want still 1", len(st.recorded))
	}
	if len(pub.topics) != 1 {
		t.Errorf("second sweep published %d events, want still 1", len(pub.topics))
	}
}

func TestSweepOnce_DelayedSweepJumpsStraightToCritical(t *testing.T) {
	opened := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	st := newSweepStore()
	st.requests["ar-1"] = openRequest("ar-1", opened, 7, 0)

	pub := &capturePublisher{}
	sw := testSweeper(st, pub, &captureNotifier{})
	// First sweep happens only after the request is already 20 days overdue.
	sw.now = func() time.Time { return opened.Add(27 * 24 * time.Hour) }

	sw.SweepOnce(context.Background())

	if got := st.requests["ar-1"].EscalationLevel; got != LevelCritical {
		t.Errorf("escalation level = %d, want %d", got, LevelCritical)
	}
	if len(st.recorded) != 1 {
		t.Fatalf("recorded %d escalations, want 1 (single 0→2 jump)", len(st.recorded))
	}
	if ev := st.recorded[0]; ev.FromLevel != 0 || ev.ToLevel != 2 {
		t.Errorf("escalation = %+v, want 0→2", ev)
	}
}

func TestSweepOnce_LevelNeverRegresses(t *testing.T) {
	opened := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	st := newSweepStore()
	// Stored level 2, but the clock says the request is only 1 day overdue
	// (e.g. the request was re-dated or the clock was adjusted).
	st.requests["ar-1"] = openRequest("ar-1", opened, 7, 2)

	sw := testSweeper(st, &capturePublisher{}, &captureNotifier{})
	sw.now = func() time.Time { return opened.Add(8 * 24 * time.Hour) }

	sw.SweepOnce(context.Background())

	if got := st.requests["ar-1"].EscalationLevel; got != 2 {
		t.Errorf("escalation level = %d, want 2 (monotonic)", got)
	}
	if len(st.recorded) != 0 {
		t.Errorf("recorded %d escalations, want 0", len(st.recorded))
	}
}

func TestSweepOnce_OnTimeRequestUntouched(t *testing.T) {
	opened := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	st := newSweepStore()
	st.requests["ar-1"] = openRequest("ar-1", opened, 7, 0)

	sw := testSweeper(st, &capturePublisher{}, &captureNotifier{})
	sw.now = func() time.Time { return opened.Add(2 * 24 * time.Hour) }

	sw.SweepOnce(context.Background())

	if got := st.requests["ar-1"].EscalationLevel; got != 0 {
		t.Errorf("escalation level = %d, want 0", got)
	}
	if len(st.recorded) != 0 {
		t.Errorf("recorded %d escalations, want 0", len(st.recorded))
	}
}

func TestSweepOnce_PublishFailureDoesNotUndoLevel(t *testing.T) {
	opened := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	st := newSweepStore()
	st.requests["ar-1"] = openRequest("ar-1", opened, 7, 0)

	pub := &capturePublisher{err: errors.New("nats down")}
	sw := testSweeper(st, pub, &captureNotifier{})
	sw.now = func() time.Time { return opened.Add(10 * 24 * time.Hour) }

	sw.SweepOnce(context.Background())

	if got := st.requests["ar-1"].EscalationLevel; got != LevelOverdue {
		t.Errorf("escalation level = %d, want %d despite publish failure", got, LevelOverdue)
	}
	if len(st.recorded) != 1 {
		t.Errorf("recorded %d escalations, want 1", len(st.recorded))
	}
}

func TestSweepOnce_FailedEventInsertRollsBackLevel(t *testing.T) {
	opened := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	st := newSweepStore()
	st.requests["ar-1"] = openRequest("ar-1", opened, 7, 0)
	st.recordErr = errors.New("insert failed")

	pub := &capturePublisher{}
	sw := testSweeper(st, pub, &captureNotifier{})
	sw.now = func() time.Time { return opened.Add(10 * 24 * time.Hour) }

	sw.SweepOnce(context.Background())

	// The level update and the event commit together or not at all. A raised
	// level without its event would block the retry forever, since levels
	// never regress.
	if got := st.requests["ar-1"].EscalationLevel; got != 0 {
		t.Errorf("escalation level = %d, want 0 after failed event insert", got)
	}
	if len(st.recorded) != 0 {
		t.Errorf("recorded %d escalations, want 0", len(st.recorded))
	}
	if len(pub.topics) != 0 {
		t.Errorf("published %d events, want 0", len(pub.topics))
	}

	// The next sweep retries and lands both writes.
	st.mu.Lock()
	st.recordErr = nil
	st.mu.Unlock()
	sw.SweepOnce(context.Background())

	if got := st.requests["ar-1"].EscalationLevel; got != LevelOverdue {
		t.Errorf("escalation level = %d, want %d after retry", got, LevelOverdue)
	}
	if len(st.recorded) != 1 {
		t.Errorf("recorded %d escalations, want 1 after retry", len(st.recorded))
	}
}

func TestSweepOnce_CancelledContextStopsEarly(t *testing.T) {
	opened := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	st := newSweepStore()
	for _, id := range []string{"ar-1", "ar-2", "ar-3"} {
		st.requests[id] = openRequest(id, opened, 7, 0)
	}

	sw := testSweeper(st, &capturePublisher{}, &captureNotifier{})
	sw.now = func() time.Time { return opened.Add(10 * 24 * time.Hour) }

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	sw.SweepOnce(ctx)

	// No request was escalated after cancellation; untouched requests keep
	// their prior state.
	for id, r := range st.requests {
		if r.EscalationLevel != 0 {
			t.Errorf("request %s level = %d, want 0 after cancelled sweep", id, r.EscalationLevel)
		}
	}
}

func TestSweeper_StartStop(t *testing.T) {
	opened := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	st := newSweepStore()
	st.requests["ar-1"] = openRequest("ar-1", opened, 7, 0)

	sw := testSweeper(st, &capturePublisher{}, &captureNotifier{})
	sw.now = func() time.Time { return opened.Add(10 * 24 * time.Hour) }

	sw.Start()
	sw.Stop() // must not hang; initial sweep may or may not have completed

	st.mu.Lock()
	defer st.mu.Unlock()
	if len(st.recorded) > 1 {
		t.Errorf("recorded %d escalations, want at most 1", len(st.recorded))
	}
}

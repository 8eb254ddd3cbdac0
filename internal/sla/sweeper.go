package sla

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/civora/approvals/internal/events"
	"github.com/civora/approvals/internal/model"
	"github.com/civora/approvals/internal/notify"
	"github.com/civora/approvals/internal/store"
)

// Store is the slice of the persistence layer the sweeper needs. The level
// update and its escalation event commit in one transaction, so every applied
// level increase has exactly one recorded event.
type Store interface {
	ListOpenRequests(ctx context.Context) ([]*model.ApprovalRequest, error)
	RunInTransaction(ctx context.Context, fn func(tx store.Store) error) error
}

// Sweeper periodically recomputes escalation levels for every open approval
// request. Level updates are compare-and-swap per request, so a sweep can be
// cancelled mid-flight without corrupting untouched requests, and two sweeps
// racing over the same request raise at most one escalation.
type Sweeper struct {
	store     Store
	publisher events.Publisher
	notifier  notify.Notifier
	interval  time.Duration
	logger    *slog.Logger

	// now is the clock source; replaceable in tests.
	now func() time.Time

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewSweeper creates a sweeper over the given store that raises escalation
// events through the publisher and notifier at the specified interval.
func NewSweeper(s Store, p events.Publisher, n notify.Notifier, interval time.Duration, logger *slog.Logger) *Sweeper {
	return &Sweeper{
		store:     s,
		publisher: p,
		notifier:  n,
		interval:  interval,
		logger:    logger,
		now:       time.Now,
	}
}

// Start begins the periodic sweep. It runs an initial sweep immediately,
// then on each tick.
func (s *Sweeper) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.run(ctx)
	}()
}

// Stop cancels the sweeper and waits for the current sweep (if any) to finish.
func (s *Sweeper) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
}

func (s *Sweeper) run(ctx context.Context) {
	s.SweepOnce(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.SweepOnce(ctx)
		}
	}
}

// SweepOnce runs a single pass over all open requests. It is idempotent:
// a request whose stored level already matches its computed level is skipped,
// so repeating a sweep within the same tick raises no duplicate events.
func (s *Sweeper) SweepOnce(ctx context.Context) {
	open, err := s.store.ListOpenRequests(ctx)
	if err != nil {
		s.logger.Error("sla sweep: list open requests failed", "err", err)
		return
	}

	now := s.now().UTC()
	raised := 0
	for _, req := range open {
		if ctx.Err() != nil {
			return
		}
		applied, err := s.sweepRequest(ctx, req, now)
		if err != nil {
			s.logger.Error("sla sweep: request failed", "request_id", req.ID, "err", err)
			continue
		}
		if applied {
			raised++
		}
	}

	s.logger.Info("sla sweep completed", "open_requests", len(open), "escalations", raised)
}

// sweepRequest raises one request to its computed level. Returns true when an
// escalation was applied and emitted.
func (s *Sweeper) sweepRequest(ctx context.Context, req *model.ApprovalRequest, now time.Time) (bool, error) {
	level := Level(now, req.DueAt)
	if level <= req.EscalationLevel {
		return false, nil
	}

	ev := &model.EscalationEvent{
		RequestID:   req.ID,
		FromLevel:   req.EscalationLevel,
		ToLevel:     level,
		DaysOverdue: DaysOverdue(now, req.DueAt),
		RaisedAt:    now,
	}
	var applied bool
	err := s.store.RunInTransaction(ctx, func(tx store.Store) error {
		var err error
		applied, err = tx.EscalateRequest(ctx, req.ID, req.EscalationLevel, level)
		if err != nil {
			return fmt.Errorf("escalate request: %w", err)
		}
		if !applied {
			// Another sweep raised it first, or the request was decided meanwhile.
			return nil
		}
		return tx.RecordEscalation(ctx, ev)
	})
	if err != nil {
		return false, err
	}
	if !applied {
		return false, nil
	}

	// Event and notification are best-effort; the level update is the source
	// of truth.
	if err := s.publisher.Publish(ctx, events.TopicRequestEscalated, events.RequestEscalated{Escalation: ev}); err != nil {
		s.logger.Warn("sla sweep: publish failed", "request_id", req.ID, "err", err)
	}
	if err := s.notifier.Notify(ctx, notify.Notification{
		Kind:        notify.KindEscalation,
		RecipientID: req.RequesterID,
		WorkflowID:  req.WorkflowID,
		RequestID:   req.ID,
		Subject:     fmt.Sprintf("Approval request %s is %d day(s) overdue", req.ID, ev.DaysOverdue),
		Data: map[string]any{
			"gate_name": req.GateName,
			"level":     level,
		},
		RaisedAt: now,
	}); err != nil {
		s.logger.Warn("sla sweep: notify failed", "request_id", req.ID, "err", err)
	}

	return true, nil
}

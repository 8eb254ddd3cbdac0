package export

import (
	"bytes"
	"context"
	"crypto/sha256"
	"log/slog"
	"sync"
	"time"

	"github.com/civora/approvals/internal/store"
)

// Destination is an export target for audit snapshots (S3 and similar).
type Destination interface {
	// Name identifies the destination in logs.
	Name() string
	// Write sends the JSONL snapshot to the destination.
	Write(ctx context.Context, data []byte) error
}

// Scheduler periodically snapshots the store as JSONL and ships it to every
// configured destination. Unchanged snapshots are not re-uploaded unless a
// previous upload failed.
type Scheduler struct {
	store        store.Store
	destinations []Destination
	interval     time.Duration
	logger       *slog.Logger

	lastDigest [sha256.Size]byte
	retry      bool

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewScheduler(s store.Store, destinations []Destination, interval time.Duration, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		store:        s,
		destinations: destinations,
		interval:     interval,
		logger:       logger,
	}
}

// Start launches the export loop. The first snapshot is taken immediately so
// a fresh deployment has an export before the first tick.
func (s *Scheduler) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		s.exportOnce(ctx)

		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.exportOnce(ctx)
			}
		}
	}()
}

// Stop cancels the loop and waits for an in-flight export to finish. Safe to
// call more than once.
func (s *Scheduler) Stop() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	s.wg.Wait()
	s.cancel = nil
}

// snapshotBody strips the header line, whose timestamp changes on every
// snapshot, so the digest reflects only workflow and request records.
func snapshotBody(data []byte) []byte {
	if i := bytes.IndexByte(data, '\n'); i >= 0 {
		return data[i+1:]
	}
	return data
}

func (s *Scheduler) exportOnce(ctx context.Context) {
	var buf bytes.Buffer
	if err := WriteJSONL(ctx, s.store, &buf); err != nil {
		s.logger.Error("snapshot export failed", "err", err)
		return
	}
	data := buf.Bytes()

	digest := sha256.Sum256(snapshotBody(data))
	if digest == s.lastDigest && !s.retry {
		s.logger.Debug("snapshot unchanged, skipping export")
		return
	}

	failed := 0
	for _, dest := range s.destinations {
		if err := dest.Write(ctx, data); err != nil {
			failed++
			s.logger.Error("export upload failed", "destination", dest.Name(), "err", err)
		}
	}

	s.lastDigest = digest
	// A failed upload forces a retry on the next tick even if nothing changed.
	s.retry = failed > 0

	s.logger.Info("export completed",
		"destinations", len(s.destinations),
		"failed", failed,
		"bytes", len(data))
}

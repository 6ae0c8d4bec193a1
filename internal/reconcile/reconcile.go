// Package reconcile sweeps orphaned calendar events: external events that
// were created but whose local booking insert failed. The sweep announces
// each orphan on the bus so an operator (or a future cleanup consumer) can
// act on it.
package reconcile

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/mjdelacruz/slotbook/internal/outbox"
	"github.com/mjdelacruz/slotbook/internal/storage"
	"github.com/mjdelacruz/slotbook/libs/db"
)

type Sweeper struct {
	pool      *db.Pool
	orphans   *storage.OrphanRepository
	outbox    *outbox.Repository
	logger    *slog.Logger
	schedule  string
	batchSize int
}

type Config struct {
	Schedule  string // cron spec, e.g. "@every 5m"
	BatchSize int
}

func NewSweeper(pool *db.Pool, orphans *storage.OrphanRepository, outboxRepo *outbox.Repository, logger *slog.Logger, cfg Config) *Sweeper {
	if cfg.Schedule == "" {
		cfg.Schedule = "@every 5m"
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	return &Sweeper{
		pool:      pool,
		orphans:   orphans,
		outbox:    outboxRepo,
		logger:    logger,
		schedule:  cfg.Schedule,
		batchSize: cfg.BatchSize,
	}
}

// Run schedules the sweep and blocks until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) error {
	c := cron.New()
	_, err := c.AddFunc(s.schedule, func() {
		if err := s.Sweep(ctx); err != nil {
			s.logger.Error("orphan sweep failed", "err", err)
		}
	})
	if err != nil {
		return err
	}
	c.Start()
	<-ctx.Done()

	stopCtx := c.Stop()
	select {
	case <-stopCtx.Done():
	case <-time.After(10 * time.Second):
		s.logger.Warn("orphan sweep did not stop in time")
	}
	return nil
}

// Sweep announces every unresolved orphan on the bus and marks it resolved.
// "Resolved" here means "reported"; deleting or re-attaching the external
// event is a manual decision.
func (s *Sweeper) Sweep(ctx context.Context) error {
	orphans, err := s.orphans.ListUnresolved(ctx, s.batchSize)
	if err != nil {
		return err
	}
	if len(orphans) == 0 {
		return nil
	}

	for _, o := range orphans {
		if err := s.report(ctx, o); err != nil {
			s.logger.Error("orphan report failed", "err", err, "calendar_event_id", o.CalendarEventID)
			continue
		}
		if err := s.orphans.MarkResolved(ctx, o.ID); err != nil {
			s.logger.Error("orphan mark failed", "err", err, "orphan_id", o.ID)
		}
	}
	s.logger.Info("orphan sweep complete", "count", len(orphans))
	return nil
}

func (s *Sweeper) report(ctx context.Context, o storage.OrphanEvent) error {
	payload, err := orphanPayload(o)
	if err != nil {
		return err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := s.outbox.Insert(ctx, tx, outbox.Event{
		AggregateType: "orphan",
		AggregateID:   o.CalendarEventID,
		EventType:     outbox.TopicOrphanDetected,
		Payload:       payload,
	}); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func orphanPayload(o storage.OrphanEvent) ([]byte, error) {
	return json.Marshal(map[string]any{
		"calendar_event_id": o.CalendarEventID,
		"event_id":          o.EventID,
		"attendee_email":    o.AttendeeEmail,
		"start_time":        o.StartTime.UTC().Format(time.RFC3339),
		"reason":            o.Reason,
		"detected_at":       o.CreatedAt.UTC().Format(time.RFC3339),
	})
}

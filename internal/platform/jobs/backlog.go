package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/upstac/upstac/internal/domain/testrequest"
)

// BacklogStore is the read side of the test request store the report needs.
type BacklogStore interface {
	CountByStatus(ctx context.Context) (map[testrequest.RequestStatus]int, error)
	ListByStatus(ctx context.Context, status testrequest.RequestStatus) ([]*testrequest.TestRequest, error)
}

// Backlog is one snapshot of the consultation queue.
type Backlog struct {
	Pending          int
	InConsultation   int
	Completed        int
	OldestPendingAge time.Duration
	ByStatus         map[testrequest.RequestStatus]int
}

// BacklogReporter logs how many requests are waiting for a doctor and how
// long the oldest has waited.
type BacklogReporter struct {
	store  BacklogStore
	logger zerolog.Logger
	now    func() time.Time
}

func NewBacklogReporter(store BacklogStore, logger zerolog.Logger) *BacklogReporter {
	return &BacklogReporter{
		store:  store,
		logger: logger.With().Str("job", "consultation_backlog").Logger(),
		now:    time.Now,
	}
}

// Snapshot computes the current backlog without logging it.
func (r *BacklogReporter) Snapshot(ctx context.Context) (Backlog, error) {
	counts, err := r.store.CountByStatus(ctx)
	if err != nil {
		return Backlog{}, fmt.Errorf("count test requests: %w", err)
	}
	b := Backlog{
		Pending:        counts[testrequest.StatusLabTestCompleted],
		InConsultation: counts[testrequest.StatusDoctorAssigned],
		Completed:      counts[testrequest.StatusCompleted],
		ByStatus:       counts,
	}
	if b.Pending > 0 {
		pending, err := r.store.ListByStatus(ctx, testrequest.StatusLabTestCompleted)
		if err != nil {
			return Backlog{}, fmt.Errorf("list pending test requests: %w", err)
		}
		if len(pending) > 0 {
			b.OldestPendingAge = r.now().Sub(pending[0].CreatedAt)
		}
	}
	return b, nil
}

// Run takes a snapshot and logs it. It has the signature Scheduler.Add expects.
func (r *BacklogReporter) Run(ctx context.Context) error {
	b, err := r.Snapshot(ctx)
	if err != nil {
		return err
	}
	evt := r.logger.Info()
	if b.Pending > 0 && b.InConsultation == 0 {
		evt = r.logger.Warn()
	}
	evt.
		Int("pending", b.Pending).
		Int("in_consultation", b.InConsultation).
		Int("completed", b.Completed).
		Dur("oldest_pending_age", b.OldestPendingAge).
		Msg("consultation backlog")
	return nil
}

package testrequest

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/sync/errgroup"

	"github.com/upstac/upstac/internal/platform/db"
	"github.com/upstac/upstac/migrations"
)

// pgTestPool connects to TEST_DATABASE_URL, applies the migrations and empties
// the tables. Tests using it are skipped when the variable is unset.
func pgTestPool(t *testing.T) *pgxpool.Pool {
	t.Helper()
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	ctx := context.Background()
	pool, err := db.NewPool(ctx, db.PoolConfig{URL: url, MaxConns: 20})
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(pool.Close)

	if _, err := db.NewMigrator(pool, migrations.FS).Up(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	if _, err := pool.Exec(ctx, `TRUNCATE test_request_flow, test_request RESTART IDENTITY CASCADE`); err != nil {
		t.Fatalf("truncate: %v", err)
	}
	return pool
}

func TestRepoPG_CreateAndGet(t *testing.T) {
	pool := pgTestPool(t)
	repo := NewTestRequestRepoPG(pool)
	ctx := context.Background()

	age := 40
	labAt := time.Now().UTC().Truncate(time.Microsecond)
	tr := &TestRequest{
		Name:      "Asha",
		Age:       &age,
		Status:    StatusLabTestCompleted,
		LabResult: &LabResult{Result: "POSITIVE", UpdatedOn: &labAt},
	}
	if err := repo.Create(ctx, tr); err != nil {
		t.Fatalf("create: %v", err)
	}
	if tr.ID == 0 || tr.CreatedAt.IsZero() {
		t.Fatalf("expected id and created_at to be set, got %+v", tr)
	}

	got, err := repo.GetByID(ctx, tr.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Name != "Asha" || got.Age == nil || *got.Age != 40 {
		t.Errorf("unexpected demographics %+v", got)
	}
	if got.LabResult == nil || got.LabResult.Result != "POSITIVE" {
		t.Errorf("expected lab result, got %+v", got.LabResult)
	}
	if got.Consultation != nil {
		t.Errorf("expected no consultation yet, got %+v", got.Consultation)
	}

	if _, err := repo.GetByID(ctx, tr.ID+1000); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestRepoPG_ConditionalUpdates(t *testing.T) {
	pool := pgTestPool(t)
	repo := NewTestRequestRepoPG(pool)
	ctx := context.Background()

	tr := &TestRequest{Name: "Rahul", Status: StatusLabTestCompleted}
	if err := repo.Create(ctx, tr); err != nil {
		t.Fatalf("create: %v", err)
	}

	if _, err := repo.Complete(ctx, tr.ID, "doctor-a", &Consultation{Suggestion: SuggestionAdmit, Comments: "x"}); !errors.Is(err, ErrConditionFailed) {
		t.Fatalf("complete before assign: expected ErrConditionFailed, got %v", err)
	}

	assigned, err := repo.Assign(ctx, tr.ID, "doctor-a")
	if err != nil {
		t.Fatalf("assign: %v", err)
	}
	if !assigned.AssignedTo("doctor-a") || assigned.Status != StatusDoctorAssigned {
		t.Fatalf("unexpected assigned row %+v", assigned)
	}
	if _, err := repo.Assign(ctx, tr.ID, "doctor-b"); !errors.Is(err, ErrConditionFailed) {
		t.Fatalf("second assign: expected ErrConditionFailed, got %v", err)
	}
	if _, err := repo.Complete(ctx, tr.ID, "doctor-b", &Consultation{Suggestion: SuggestionAdmit, Comments: "x"}); !errors.Is(err, ErrConditionFailed) {
		t.Fatalf("complete by other doctor: expected ErrConditionFailed, got %v", err)
	}

	on := time.Now().UTC().Truncate(time.Microsecond)
	done, err := repo.Complete(ctx, tr.ID, "doctor-a", &Consultation{Suggestion: SuggestionNoIssues, Comments: "fine", UpdatedOn: on})
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if done.Status != StatusCompleted || done.Consultation == nil {
		t.Fatalf("unexpected completed row %+v", done)
	}
	if done.Consultation.DoctorID != "doctor-a" || !done.Consultation.UpdatedOn.Equal(on) {
		t.Errorf("unexpected consultation %+v", done.Consultation)
	}

	counts, err := repo.CountByStatus(ctx)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if counts[StatusCompleted] != 1 {
		t.Errorf("expected 1 completed, got %v", counts)
	}
}

func TestRepoPG_ConcurrentAssign(t *testing.T) {
	pool := pgTestPool(t)
	repo := NewTestRequestRepoPG(pool)
	ctx := context.Background()

	tr := &TestRequest{Name: "Meera", Status: StatusLabTestCompleted}
	if err := repo.Create(ctx, tr); err != nil {
		t.Fatalf("create: %v", err)
	}

	var wins atomic.Int32
	var g errgroup.Group
	for i := 0; i < 10; i++ {
		doctor := fmt.Sprintf("doctor-%d", i)
		g.Go(func() error {
			_, err := repo.Assign(ctx, tr.ID, doctor)
			if err == nil {
				wins.Add(1)
				return nil
			}
			if errors.Is(err, ErrConditionFailed) {
				return nil
			}
			return err
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatalf("assign: %v", err)
	}
	if wins.Load() != 1 {
		t.Errorf("expected exactly one winner, got %d", wins.Load())
	}
}

func TestRepoPG_ListsOldestFirst(t *testing.T) {
	pool := pgTestPool(t)
	repo := NewTestRequestRepoPG(pool)
	ctx := context.Background()
	base := time.Now().UTC().Add(-time.Hour).Truncate(time.Microsecond)

	for _, tr := range []*TestRequest{
		{Name: "newer", Status: StatusLabTestCompleted, CreatedAt: base.Add(time.Minute)},
		{Name: "older", Status: StatusLabTestCompleted, CreatedAt: base},
		{Name: "elsewhere", Status: StatusInitiated},
	} {
		if err := repo.Create(ctx, tr); err != nil {
			t.Fatalf("create: %v", err)
		}
	}

	pending, err := repo.ListByStatus(ctx, StatusLabTestCompleted)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(pending) != 2 || pending[0].Name != "older" || pending[1].Name != "newer" {
		t.Errorf("unexpected order %v", names(pending))
	}

	none, err := repo.ListByAssignee(ctx, "nobody")
	if err != nil {
		t.Fatalf("list by assignee: %v", err)
	}
	if none == nil || len(none) != 0 {
		t.Errorf("expected empty non-nil list, got %v", none)
	}
}

func TestRepoPG_FlowRollsBackWithTransition(t *testing.T) {
	pool := pgTestPool(t)
	repo := NewTestRequestRepoPG(pool)
	flows := NewFlowRepoPG(pool)
	tx := db.NewTxManager(pool)
	ctx := context.Background()

	tr := &TestRequest{Name: "Vikram", Status: StatusLabTestCompleted}
	if err := repo.Create(ctx, tr); err != nil {
		t.Fatalf("create: %v", err)
	}

	boom := errors.New("abort")
	err := tx.InTx(ctx, func(ctx context.Context) error {
		if _, err := repo.Assign(ctx, tr.ID, "doctor-a"); err != nil {
			return err
		}
		if err := flows.Record(ctx, &FlowEntry{RequestID: tr.ID, FromStatus: StatusLabTestCompleted, ToStatus: StatusDoctorAssigned, ChangedBy: "doctor-a"}); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected abort error, got %v", err)
	}

	got, err := repo.GetByID(ctx, tr.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != StatusLabTestCompleted || got.AssigneeID != nil {
		t.Errorf("assignment should have rolled back, got %+v", got)
	}
	entries, err := flows.ListByRequest(ctx, tr.ID)
	if err != nil {
		t.Fatalf("list flow: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("flow entry should have rolled back, got %d", len(entries))
	}

	err = tx.InTx(ctx, func(ctx context.Context) error {
		if _, err := repo.Assign(ctx, tr.ID, "doctor-a"); err != nil {
			return err
		}
		return flows.Record(ctx, &FlowEntry{RequestID: tr.ID, FromStatus: StatusLabTestCompleted, ToStatus: StatusDoctorAssigned, ChangedBy: "doctor-a"})
	})
	if err != nil {
		t.Fatalf("commit: %v", err)
	}
	entries, _ = flows.ListByRequest(ctx, tr.ID)
	if len(entries) != 1 || entries[0].HappenedAt.IsZero() {
		t.Errorf("expected one committed flow entry, got %+v", entries)
	}
}

func names(items []*TestRequest) []string {
	out := make([]string, 0, len(items))
	for _, t := range items {
		out = append(out, t.Name)
	}
	return out
}

package testrequest

import (
	"context"
	"testing"
	"time"
)

func TestSeedDemo(t *testing.T) {
	m := NewMemoryStore()
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

	created, err := SeedDemo(context.Background(), m, now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(created) != 5 {
		t.Fatalf("expected 5 demo requests, got %d", len(created))
	}

	pending, _ := m.ListByStatus(context.Background(), StatusLabTestCompleted)
	if len(pending) != 3 {
		t.Errorf("expected 3 pending, got %d", len(pending))
	}
	for i := 1; i < len(pending); i++ {
		if !pending[i-1].CreatedAt.Before(pending[i].CreatedAt) {
			t.Errorf("pending queue is not oldest first at %d", i)
		}
	}
	for _, p := range pending {
		if p.LabResult == nil || p.LabResult.Result == "" {
			t.Errorf("pending request %d has no lab result", p.ID)
		}
	}

	mine, _ := m.ListByAssignee(context.Background(), DemoDoctorID)
	if len(mine) != 1 || mine[0].Status != StatusDoctorAssigned {
		t.Errorf("expected one request assigned to %s, got %+v", DemoDoctorID, mine)
	}
}

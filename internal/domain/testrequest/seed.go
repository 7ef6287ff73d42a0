package testrequest

import (
	"context"
	"fmt"
	"time"
)

// DemoDoctorID holds the one demo request that starts out assigned.
const DemoDoctorID = "dev-doctor"

// SeedDemo creates a small set of requests spread over the lifecycle so a
// fresh development server has something in the consultation queue. Requests
// are backdated from now so the queue order is stable.
func SeedDemo(ctx context.Context, repo Repository, now time.Time) ([]*TestRequest, error) {
	type demo struct {
		name   string
		age    int
		gender string
		status RequestStatus
		result string
	}
	demos := []demo{
		{"Asha Verma", 34, "FEMALE", StatusLabTestCompleted, "POSITIVE"},
		{"Rahul Nair", 52, "MALE", StatusLabTestCompleted, "NEGATIVE"},
		{"Meera Iyer", 27, "FEMALE", StatusLabTestCompleted, "POSITIVE"},
		{"Vikram Singh", 61, "MALE", StatusDoctorAssigned, "POSITIVE"},
		{"Kiran Das", 45, "OTHER", StatusInitiated, ""},
	}

	created := make([]*TestRequest, 0, len(demos))
	for i, d := range demos {
		age, gender := d.age, d.gender
		createdAt := now.Add(-time.Duration(len(demos)-i) * time.Hour).UTC()
		t := &TestRequest{
			Name:      d.name,
			Age:       &age,
			Gender:    &gender,
			Status:    d.status,
			CreatedAt: createdAt,
		}
		if d.result != "" {
			labAt := createdAt.Add(30 * time.Minute)
			t.LabResult = &LabResult{Result: d.result, UpdatedOn: &labAt}
		}
		if d.status == StatusDoctorAssigned {
			doctor := DemoDoctorID
			t.AssigneeID = &doctor
		}
		if err := repo.Create(ctx, t); err != nil {
			return created, fmt.Errorf("create demo request %q: %w", d.name, err)
		}
		created = append(created, t)
	}
	return created, nil
}

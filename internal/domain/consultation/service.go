package consultation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/upstac/upstac/internal/domain/testrequest"
)

// Transactor runs fn so that every store call made with the context it
// receives commits or rolls back together.
type Transactor interface {
	InTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// Lifecycle moves test requests through the consultation phase:
//
//	LAB_TEST_COMPLETED --Assign--> DOCTOR_ASSIGNED --Complete--> COMPLETED
//
// It trusts the Doctor it is given; authentication and role checks belong to
// the caller.
type Lifecycle struct {
	requests testrequest.Repository
	flows    testrequest.FlowRepository
	tx       Transactor
	validate *validator.Validate
	now      func() time.Time
}

func NewLifecycle(requests testrequest.Repository, flows testrequest.FlowRepository, tx Transactor) *Lifecycle {
	return &Lifecycle{
		requests: requests,
		flows:    flows,
		tx:       tx,
		validate: newValidator(),
		now:      time.Now,
	}
}

// ListPending returns requests whose lab results are ready, oldest first.
func (l *Lifecycle) ListPending(ctx context.Context) ([]*testrequest.TestRequest, error) {
	items, err := l.requests.ListByStatus(ctx, testrequest.StatusLabTestCompleted)
	if err != nil {
		return nil, fmt.Errorf("list pending consultations: %w", err)
	}
	return items, nil
}

// ListAssignedTo returns every request assigned to doctor, whatever its status.
func (l *Lifecycle) ListAssignedTo(ctx context.Context, doctor testrequest.Doctor) ([]*testrequest.TestRequest, error) {
	if doctor.ID == "" {
		return nil, doctorRequired()
	}
	items, err := l.requests.ListByAssignee(ctx, doctor.ID)
	if err != nil {
		return nil, fmt.Errorf("list consultations for %s: %w", doctor.ID, err)
	}
	return items, nil
}

// Assign claims the request for doctor. Exactly one of any set of concurrent
// claims succeeds; the others get ErrInvalidState.
func (l *Lifecycle) Assign(ctx context.Context, id int64, doctor testrequest.Doctor) (*testrequest.TestRequest, error) {
	if doctor.ID == "" {
		return nil, doctorRequired()
	}

	var assigned *testrequest.TestRequest
	err := l.tx.InTx(ctx, func(ctx context.Context) error {
		t, err := l.requests.Assign(ctx, id, doctor.ID)
		if errors.Is(err, testrequest.ErrConditionFailed) {
			return l.assignFailure(ctx, id)
		}
		if err != nil {
			return fmt.Errorf("assign test request %d: %w", id, err)
		}
		if err := l.recordFlow(ctx, id, testrequest.StatusLabTestCompleted, testrequest.StatusDoctorAssigned, doctor.ID, nil); err != nil {
			return err
		}
		assigned = t
		return nil
	})
	if err != nil {
		return nil, err
	}
	return assigned, nil
}

// Complete records the consultation result and closes the request. The
// payload is validated before the store is touched.
func (l *Lifecycle) Complete(ctx context.Context, id int64, req *ConsultationRequest, doctor testrequest.Doctor) (*testrequest.TestRequest, error) {
	if doctor.ID == "" {
		return nil, doctorRequired()
	}
	if err := ValidateRequest(l.validate, req); err != nil {
		return nil, err
	}

	result := &testrequest.Consultation{
		Suggestion: req.Suggestion,
		Comments:   req.Comments,
		DoctorID:   doctor.ID,
		UpdatedOn:  l.now().UTC(),
	}

	var completed *testrequest.TestRequest
	err := l.tx.InTx(ctx, func(ctx context.Context) error {
		t, err := l.requests.Complete(ctx, id, doctor.ID, result)
		if errors.Is(err, testrequest.ErrConditionFailed) {
			return l.completeFailure(ctx, id, doctor.ID)
		}
		if err != nil {
			return fmt.Errorf("complete test request %d: %w", id, err)
		}
		comments := req.Comments
		if err := l.recordFlow(ctx, id, testrequest.StatusDoctorAssigned, testrequest.StatusCompleted, doctor.ID, &comments); err != nil {
			return err
		}
		completed = t
		return nil
	})
	if err != nil {
		return nil, err
	}
	return completed, nil
}

// Flow returns the transitions recorded for a request, oldest first.
func (l *Lifecycle) Flow(ctx context.Context, id int64) ([]*testrequest.FlowEntry, error) {
	if _, err := l.load(ctx, id); err != nil {
		return nil, err
	}
	entries, err := l.flows.ListByRequest(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("list flow for test request %d: %w", id, err)
	}
	return entries, nil
}

// assignFailure explains why the conditional assign matched no row.
func (l *Lifecycle) assignFailure(ctx context.Context, id int64) error {
	t, err := l.load(ctx, id)
	if err != nil {
		return err
	}
	return fmt.Errorf("%w: test request %d is %s, expected %s",
		ErrInvalidState, id, t.Status, testrequest.StatusLabTestCompleted)
}

// completeFailure explains why the conditional complete matched no row.
// Status is checked before ownership.
func (l *Lifecycle) completeFailure(ctx context.Context, id int64, doctorID string) error {
	t, err := l.load(ctx, id)
	if err != nil {
		return err
	}
	if t.Status != testrequest.StatusDoctorAssigned {
		return fmt.Errorf("%w: test request %d is %s, expected %s",
			ErrInvalidState, id, t.Status, testrequest.StatusDoctorAssigned)
	}
	if !t.AssignedTo(doctorID) {
		return fmt.Errorf("%w: test request %d", ErrNotAssignee, id)
	}
	// The row changed between the update and this read.
	return fmt.Errorf("%w: test request %d changed concurrently", ErrInvalidState, id)
}

func (l *Lifecycle) load(ctx context.Context, id int64) (*testrequest.TestRequest, error) {
	t, err := l.requests.GetByID(ctx, id)
	if errors.Is(err, testrequest.ErrNotFound) {
		return nil, fmt.Errorf("%w: id %d", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("get test request %d: %w", id, err)
	}
	return t, nil
}

func (l *Lifecycle) recordFlow(ctx context.Context, id int64, from, to testrequest.RequestStatus, by string, comments *string) error {
	if !testrequest.CanTransition(from, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidState, from, to)
	}
	entry := &testrequest.FlowEntry{
		RequestID:  id,
		FromStatus: from,
		ToStatus:   to,
		ChangedBy:  by,
		Comments:   comments,
	}
	if err := l.flows.Record(ctx, entry); err != nil {
		return fmt.Errorf("record flow for test request %d: %w", id, err)
	}
	return nil
}

func doctorRequired() error {
	return &ValidationError{Fields: []FieldError{{Field: "doctor", Rule: "required", Message: "doctor is required"}}}
}

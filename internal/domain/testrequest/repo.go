package testrequest

import (
	"context"
	"errors"
)

var (
	ErrNotFound        = errors.New("test request not found")
	ErrConditionFailed = errors.New("test request did not match update condition")
)

// Repository stores test requests. Assign and Complete are conditional
// updates: each one checks and changes the status as a single atomic step
// and returns ErrConditionFailed when the guard does not hold.
type Repository interface {
	Create(ctx context.Context, t *TestRequest) error
	GetByID(ctx context.Context, id int64) (*TestRequest, error)
	ListByStatus(ctx context.Context, status RequestStatus) ([]*TestRequest, error)
	ListByAssignee(ctx context.Context, doctorID string) ([]*TestRequest, error)
	CountByStatus(ctx context.Context) (map[RequestStatus]int, error)
	Assign(ctx context.Context, id int64, doctorID string) (*TestRequest, error)
	Complete(ctx context.Context, id int64, doctorID string, c *Consultation) (*TestRequest, error)
}

type FlowRepository interface {
	Record(ctx context.Context, e *FlowEntry) error
	ListByRequest(ctx context.Context, requestID int64) ([]*FlowEntry, error)
}

package testrequest

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore is an in-memory Repository and FlowRepository. The conditional
// updates hold the write lock for the whole check-and-set, which gives the
// same single-winner guarantee as the PostgreSQL repository.
type MemoryStore struct {
	mu       sync.RWMutex
	nextID   int64
	requests map[int64]*TestRequest
	flows    map[int64][]*FlowEntry
	now      func() time.Time
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		requests: make(map[int64]*TestRequest),
		flows:    make(map[int64][]*FlowEntry),
		now:      time.Now,
	}
}

// InTx runs fn directly; every MemoryStore call is already atomic on its own.
func (m *MemoryStore) InTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

// Ping always succeeds; it lets the store back the database health check.
func (m *MemoryStore) Ping(context.Context) error { return nil }

func (m *MemoryStore) Create(_ context.Context, t *TestRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if t.ID == 0 {
		m.nextID++
		t.ID = m.nextID
	} else if t.ID > m.nextID {
		m.nextID = t.ID
	}
	now := m.now()
	if t.CreatedAt.IsZero() {
		t.CreatedAt = now
	}
	t.UpdatedAt = now
	m.requests[t.ID] = cloneRequest(t)
	return nil
}

func (m *MemoryStore) GetByID(_ context.Context, id int64) (*TestRequest, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.requests[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneRequest(t), nil
}

func (m *MemoryStore) ListByStatus(_ context.Context, status RequestStatus) ([]*TestRequest, error) {
	return m.filter(func(t *TestRequest) bool { return t.Status == status }), nil
}

func (m *MemoryStore) ListByAssignee(_ context.Context, doctorID string) ([]*TestRequest, error) {
	return m.filter(func(t *TestRequest) bool { return t.AssignedTo(doctorID) }), nil
}

func (m *MemoryStore) CountByStatus(_ context.Context) (map[RequestStatus]int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	counts := make(map[RequestStatus]int)
	for _, t := range m.requests {
		counts[t.Status]++
	}
	return counts, nil
}

func (m *MemoryStore) Assign(_ context.Context, id int64, doctorID string) (*TestRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.requests[id]
	if !ok || t.Status != StatusLabTestCompleted {
		return nil, ErrConditionFailed
	}
	assignee := doctorID
	t.AssigneeID = &assignee
	t.Status = StatusDoctorAssigned
	t.UpdatedAt = m.now()
	return cloneRequest(t), nil
}

func (m *MemoryStore) Complete(_ context.Context, id int64, doctorID string, c *Consultation) (*TestRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.requests[id]
	if !ok || t.Status != StatusDoctorAssigned || !t.AssignedTo(doctorID) {
		return nil, ErrConditionFailed
	}
	stored := *c
	stored.DoctorID = doctorID
	t.Consultation = &stored
	t.Status = StatusCompleted
	t.UpdatedAt = m.now()
	return cloneRequest(t), nil
}

func (m *MemoryStore) Record(_ context.Context, e *FlowEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	if e.HappenedAt.IsZero() {
		e.HappenedAt = m.now()
	}
	stored := *e
	m.flows[e.RequestID] = append(m.flows[e.RequestID], &stored)
	return nil
}

func (m *MemoryStore) ListByRequest(_ context.Context, requestID int64) ([]*FlowEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	items := make([]*FlowEntry, 0, len(m.flows[requestID]))
	for _, e := range m.flows[requestID] {
		cp := *e
		items = append(items, &cp)
	}
	return items, nil
}

func (m *MemoryStore) filter(keep func(t *TestRequest) bool) []*TestRequest {
	m.mu.RLock()
	defer m.mu.RUnlock()
	items := []*TestRequest{}
	for _, t := range m.requests {
		if keep(t) {
			items = append(items, cloneRequest(t))
		}
	}
	sort.Slice(items, func(i, j int) bool {
		if items[i].CreatedAt.Equal(items[j].CreatedAt) {
			return items[i].ID < items[j].ID
		}
		return items[i].CreatedAt.Before(items[j].CreatedAt)
	})
	return items
}

// cloneRequest copies t so callers never share the stored value.
func cloneRequest(t *TestRequest) *TestRequest {
	cp := *t
	if t.AssigneeID != nil {
		a := *t.AssigneeID
		cp.AssigneeID = &a
	}
	if t.LabResult != nil {
		lab := *t.LabResult
		cp.LabResult = &lab
	}
	if t.Consultation != nil {
		c := *t.Consultation
		cp.Consultation = &c
	}
	return &cp
}

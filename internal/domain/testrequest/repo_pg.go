package testrequest

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/upstac/upstac/internal/platform/db"
)

type queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

type testRequestRepoPG struct{ pool *pgxpool.Pool }

func NewTestRequestRepoPG(pool *pgxpool.Pool) Repository {
	return &testRequestRepoPG{pool: pool}
}

func (r *testRequestRepoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

const testRequestCols = `id, name, gender, age, email, phone_number, address, pin_code,
	status, created_by, assignee_id,
	lab_blood_pressure, lab_heart_beat, lab_temperature, lab_oxygen_level,
	lab_comments, lab_result, lab_updated_on,
	consultation_suggestion, consultation_comments, consultation_doctor_id,
	consultation_updated_on, created_at, updated_at`

func (r *testRequestRepoPG) scanTestRequest(row pgx.Row) (*TestRequest, error) {
	var t TestRequest
	var lab LabResult
	var labResult *string
	var suggestion, comments, doctorID *string
	var consultedOn *time.Time
	err := row.Scan(&t.ID, &t.Name, &t.Gender, &t.Age, &t.Email, &t.PhoneNumber, &t.Address, &t.PinCode,
		&t.Status, &t.CreatedBy, &t.AssigneeID,
		&lab.BloodPressure, &lab.HeartBeat, &lab.Temperature, &lab.OxygenLevel,
		&lab.Comments, &labResult, &lab.UpdatedOn,
		&suggestion, &comments, &doctorID,
		&consultedOn, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if labResult != nil {
		lab.Result = *labResult
		t.LabResult = &lab
	}
	if suggestion != nil {
		c := &Consultation{Suggestion: Suggestion(*suggestion)}
		if comments != nil {
			c.Comments = *comments
		}
		if doctorID != nil {
			c.DoctorID = *doctorID
		}
		if consultedOn != nil {
			c.UpdatedOn = *consultedOn
		}
		t.Consultation = c
	}
	return &t, nil
}

func (r *testRequestRepoPG) Create(ctx context.Context, t *TestRequest) error {
	var lab LabResult
	var labResult *string
	if t.LabResult != nil {
		lab = *t.LabResult
		labResult = &lab.Result
	}
	var createdAt *time.Time
	if !t.CreatedAt.IsZero() {
		createdAt = &t.CreatedAt
	}
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO test_request (name, gender, age, email, phone_number, address, pin_code,
			status, created_by, assignee_id,
			lab_blood_pressure, lab_heart_beat, lab_temperature, lab_oxygen_level,
			lab_comments, lab_result, lab_updated_on, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17, COALESCE($18, NOW()))
		RETURNING id, created_at, updated_at`,
		t.Name, t.Gender, t.Age, t.Email, t.PhoneNumber, t.Address, t.PinCode,
		t.Status, t.CreatedBy, t.AssigneeID,
		lab.BloodPressure, lab.HeartBeat, lab.Temperature, lab.OxygenLevel,
		lab.Comments, labResult, lab.UpdatedOn, createdAt,
	).Scan(&t.ID, &t.CreatedAt, &t.UpdatedAt)
}

func (r *testRequestRepoPG) GetByID(ctx context.Context, id int64) (*TestRequest, error) {
	return r.scanTestRequest(r.conn(ctx).QueryRow(ctx, `SELECT `+testRequestCols+` FROM test_request WHERE id = $1`, id))
}

func (r *testRequestRepoPG) list(ctx context.Context, sql string, args ...interface{}) ([]*TestRequest, error) {
	rows, err := r.conn(ctx).Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := []*TestRequest{}
	for rows.Next() {
		t, err := r.scanTestRequest(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, t)
	}
	return items, rows.Err()
}

func (r *testRequestRepoPG) ListByStatus(ctx context.Context, status RequestStatus) ([]*TestRequest, error) {
	return r.list(ctx, `SELECT `+testRequestCols+` FROM test_request
		WHERE status = $1 ORDER BY created_at ASC, id ASC`, status)
}

func (r *testRequestRepoPG) ListByAssignee(ctx context.Context, doctorID string) ([]*TestRequest, error) {
	return r.list(ctx, `SELECT `+testRequestCols+` FROM test_request
		WHERE assignee_id = $1 ORDER BY created_at ASC, id ASC`, doctorID)
}

func (r *testRequestRepoPG) CountByStatus(ctx context.Context) (map[RequestStatus]int, error) {
	rows, err := r.conn(ctx).Query(ctx, `SELECT status, COUNT(*) FROM test_request GROUP BY status`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	counts := make(map[RequestStatus]int)
	for rows.Next() {
		var s RequestStatus
		var n int
		if err := rows.Scan(&s, &n); err != nil {
			return nil, err
		}
		counts[s] = n
	}
	return counts, rows.Err()
}

// Assign claims the request for doctorID in one conditional UPDATE, so two
// concurrent claims can never both match the LAB_TEST_COMPLETED guard.
func (r *testRequestRepoPG) Assign(ctx context.Context, id int64, doctorID string) (*TestRequest, error) {
	t, err := r.scanTestRequest(r.conn(ctx).QueryRow(ctx, `
		UPDATE test_request SET status = $3, assignee_id = $2, updated_at = NOW()
		WHERE id = $1 AND status = $4
		RETURNING `+testRequestCols,
		id, doctorID, StatusDoctorAssigned, StatusLabTestCompleted))
	if errors.Is(err, ErrNotFound) {
		return nil, ErrConditionFailed
	}
	return t, err
}

func (r *testRequestRepoPG) Complete(ctx context.Context, id int64, doctorID string, c *Consultation) (*TestRequest, error) {
	t, err := r.scanTestRequest(r.conn(ctx).QueryRow(ctx, `
		UPDATE test_request SET status = $3,
			consultation_suggestion = $5, consultation_comments = $6,
			consultation_doctor_id = $2, consultation_updated_on = $7,
			updated_at = NOW()
		WHERE id = $1 AND assignee_id = $2 AND status = $4
		RETURNING `+testRequestCols,
		id, doctorID, StatusCompleted, StatusDoctorAssigned,
		c.Suggestion, c.Comments, c.UpdatedOn))
	if errors.Is(err, ErrNotFound) {
		return nil, ErrConditionFailed
	}
	return t, err
}

// -- Flow --

type flowRepoPG struct{ pool *pgxpool.Pool }

func NewFlowRepoPG(pool *pgxpool.Pool) FlowRepository {
	return &flowRepoPG{pool: pool}
}

func (r *flowRepoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

func (r *flowRepoPG) Record(ctx context.Context, e *FlowEntry) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO test_request_flow (id, request_id, from_status, to_status, changed_by, comments)
		VALUES ($1,$2,$3,$4,$5,$6)
		RETURNING happened_at`,
		e.ID, e.RequestID, e.FromStatus, e.ToStatus, e.ChangedBy, e.Comments,
	).Scan(&e.HappenedAt)
}

func (r *flowRepoPG) ListByRequest(ctx context.Context, requestID int64) ([]*FlowEntry, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT id, request_id, from_status, to_status, changed_by, comments, happened_at
		FROM test_request_flow WHERE request_id = $1 ORDER BY happened_at ASC, id ASC`, requestID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := []*FlowEntry{}
	for rows.Next() {
		var e FlowEntry
		if err := rows.Scan(&e.ID, &e.RequestID, &e.FromStatus, &e.ToStatus, &e.ChangedBy, &e.Comments, &e.HappenedAt); err != nil {
			return nil, err
		}
		items = append(items, &e)
	}
	return items, rows.Err()
}

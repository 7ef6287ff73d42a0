package testrequest

import (
	"time"

	"github.com/google/uuid"
)

// RequestStatus is the lifecycle status of a test request.
type RequestStatus string

const (
	StatusCreated           RequestStatus = "CREATED"
	StatusInitiated         RequestStatus = "INITIATED"
	StatusLabTestInProgress RequestStatus = "LAB_TEST_IN_PROGRESS"
	StatusLabTestCompleted  RequestStatus = "LAB_TEST_COMPLETED"
	StatusDoctorAssigned    RequestStatus = "DOCTOR_ASSIGNED"
	StatusCompleted         RequestStatus = "COMPLETED"
)

// statusRank orders statuses along the request's journey. Transitions only
// ever move to a higher rank.
var statusRank = map[RequestStatus]int{
	StatusCreated:           1,
	StatusInitiated:         2,
	StatusLabTestInProgress: 3,
	StatusLabTestCompleted:  4,
	StatusDoctorAssigned:    5,
	StatusCompleted:         6,
}

// AllStatuses lists every status in lifecycle order.
func AllStatuses() []RequestStatus {
	return []RequestStatus{
		StatusCreated,
		StatusInitiated,
		StatusLabTestInProgress,
		StatusLabTestCompleted,
		StatusDoctorAssigned,
		StatusCompleted,
	}
}

// Valid reports whether s is a known status.
func (s RequestStatus) Valid() bool {
	_, ok := statusRank[s]
	return ok
}

// Rank returns the position of s in the lifecycle, or 0 for unknown values.
func (s RequestStatus) Rank() int { return statusRank[s] }

// consultationEdges are the transitions owned by the consultation phase.
var consultationEdges = map[RequestStatus]RequestStatus{
	StatusLabTestCompleted: StatusDoctorAssigned,
	StatusDoctorAssigned:   StatusCompleted,
}

// CanTransition reports whether the consultation phase may move a request
// from one status to another.
func CanTransition(from, to RequestStatus) bool {
	next, ok := consultationEdges[from]
	return ok && next == to && to.Rank() > from.Rank()
}

// Doctor identifies the physician acting on a request.
type Doctor struct {
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
}

// TestRequest maps to the test_request table.
type TestRequest struct {
	ID           int64         `db:"id" json:"request_id"`
	Name         string        `db:"name" json:"name"`
	Gender       *string       `db:"gender" json:"gender,omitempty"`
	Age          *int          `db:"age" json:"age,omitempty"`
	Email        *string       `db:"email" json:"email,omitempty"`
	PhoneNumber  *string       `db:"phone_number" json:"phone_number,omitempty"`
	Address      *string       `db:"address" json:"address,omitempty"`
	PinCode      *int          `db:"pin_code" json:"pin_code,omitempty"`
	Status       RequestStatus `db:"status" json:"status"`
	CreatedBy    *string       `db:"created_by" json:"created_by,omitempty"`
	AssigneeID   *string       `db:"assignee_id" json:"assignee_id,omitempty"`
	LabResult    *LabResult    `json:"lab_result,omitempty"`
	Consultation *Consultation `json:"consultation,omitempty"`
	CreatedAt    time.Time     `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time     `db:"updated_at" json:"updated_at"`
}

// AssignedTo reports whether the request is currently held by doctorID.
func (t *TestRequest) AssignedTo(doctorID string) bool {
	return t.AssigneeID != nil && *t.AssigneeID == doctorID
}

// LabResult is recorded by the lab workflow before consultation starts.
type LabResult struct {
	BloodPressure *string    `db:"lab_blood_pressure" json:"blood_pressure,omitempty"`
	HeartBeat     *string    `db:"lab_heart_beat" json:"heart_beat,omitempty"`
	Temperature   *string    `db:"lab_temperature" json:"temperature,omitempty"`
	OxygenLevel   *string    `db:"lab_oxygen_level" json:"oxygen_level,omitempty"`
	Comments      *string    `db:"lab_comments" json:"comments,omitempty"`
	Result        string     `db:"lab_result" json:"result"`
	UpdatedOn     *time.Time `db:"lab_updated_on" json:"updated_on,omitempty"`
}

// Suggestion is the doctor's recommendation recorded on consultation.
type Suggestion string

const (
	SuggestionNoIssues       Suggestion = "NO_ISSUES"
	SuggestionHomeQuarantine Suggestion = "HOME_QUARANTINE"
	SuggestionAdmit          Suggestion = "ADMIT"
)

// Consultation is the doctor's result for a request.
type Consultation struct {
	Suggestion Suggestion `db:"consultation_suggestion" json:"suggestion"`
	Comments   string     `db:"consultation_comments" json:"comments"`
	DoctorID   string     `db:"consultation_doctor_id" json:"doctor_id"`
	UpdatedOn  time.Time  `db:"consultation_updated_on" json:"updated_on"`
}

// FlowEntry records a single status transition of a request.
type FlowEntry struct {
	ID         uuid.UUID     `db:"id" json:"id"`
	RequestID  int64         `db:"request_id" json:"request_id"`
	FromStatus RequestStatus `db:"from_status" json:"from_status"`
	ToStatus   RequestStatus `db:"to_status" json:"to_status"`
	ChangedBy  string        `db:"changed_by" json:"changed_by"`
	Comments   *string       `db:"comments" json:"comments,omitempty"`
	HappenedAt time.Time     `db:"happened_at" json:"happened_at"`
}

package consultation

import (
	"errors"
	"strings"
)

// Error kinds returned by the lifecycle. Callers match them with errors.Is;
// validation failures are returned as *ValidationError.
var (
	ErrNotFound     = errors.New("test request not found")
	ErrInvalidState = errors.New("test request is not in a valid state for this operation")
	ErrNotAssignee  = errors.New("test request is not assigned to this doctor")
)

// FieldError describes one rejected field of a request payload.
type FieldError struct {
	Field   string `json:"field"`
	Rule    string `json:"rule"`
	Message string `json:"message"`
}

// ValidationError is returned when a consultation payload is incomplete or
// malformed. No state is changed when it is returned.
type ValidationError struct {
	Fields []FieldError `json:"fields"`
}

func (e *ValidationError) Error() string {
	msgs := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		msgs = append(msgs, f.Message)
	}
	return "invalid consultation request: " + strings.Join(msgs, "; ")
}

// IsValidation reports whether err is or wraps a *ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

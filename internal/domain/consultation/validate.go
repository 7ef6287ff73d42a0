package consultation

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/upstac/upstac/internal/domain/testrequest"
)

// ConsultationRequest is the payload a doctor submits to close a consultation.
type ConsultationRequest struct {
	Suggestion testrequest.Suggestion `json:"suggestion" validate:"required,oneof=NO_ISSUES HOME_QUARANTINE ADMIT"`
	Comments   string                 `json:"comments" validate:"required,max=2000"`
}

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// ValidateRequest normalizes req in place and checks every field, returning
// a *ValidationError listing all failures.
func ValidateRequest(v *validator.Validate, req *ConsultationRequest) error {
	if req == nil {
		return &ValidationError{Fields: []FieldError{{Field: "body", Rule: "required", Message: "request body is required"}}}
	}
	req.Suggestion = testrequest.Suggestion(strings.ToUpper(strings.TrimSpace(string(req.Suggestion))))
	req.Comments = strings.TrimSpace(req.Comments)

	err := v.Struct(req)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("validate consultation request: %w", err)
	}
	out := &ValidationError{}
	for _, fe := range verrs {
		out.Fields = append(out.Fields, FieldError{
			Field:   fe.Field(),
			Rule:    fe.Tag(),
			Message: fieldMessage(fe),
		})
	}
	return out
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", fe.Field())
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", fe.Field(), strings.ReplaceAll(fe.Param(), " ", ", "))
	case "max":
		return fmt.Sprintf("%s must be at most %s characters", fe.Field(), fe.Param())
	default:
		return fmt.Sprintf("%s failed %s validation", fe.Field(), fe.Tag())
	}
}

package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/upstac/upstac/internal/platform/auth"
)

const consultationsPrefix = "/api/v1/consultations"

// AuditEntry records one access to the consultation API: who touched which
// test request, how, and with what outcome.
type AuditEntry struct {
	UserID        string
	UserRoles     []string
	TestRequestID int64
	Action        string // list_pending, list_assigned, assign, complete, flow
	IPAddress     string
	UserAgent     string
	Path          string
	Method        string
	Timestamp     time.Time
	RequestID     string
	StatusCode    int
}

// AuditRecorder persists audit entries somewhere other than the log.
type AuditRecorder interface {
	RecordAccess(entry AuditEntry) error
}

// AuditRecorderFunc is a function adapter for AuditRecorder.
type AuditRecorderFunc func(entry AuditEntry) error

func (f AuditRecorderFunc) RecordAccess(entry AuditEntry) error {
	return f(entry)
}

// Audit logs every request under /api/v1/consultations after it is handled.
// Entries are also passed to recorder when one is given.
func Audit(logger zerolog.Logger, recorder AuditRecorder) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			path := req.URL.Path
			if !strings.HasPrefix(path, consultationsPrefix) {
				return next(c)
			}

			err := next(c)

			status := c.Response().Status
			if he, ok := err.(*echo.HTTPError); ok {
				status = he.Code
			} else if err != nil {
				status = http.StatusInternalServerError
			}

			ctx := req.Context()
			action, requestID := classifyConsultationPath(req.Method, strings.TrimPrefix(path, consultationsPrefix))
			entry := AuditEntry{
				UserID:        auth.UserIDFromContext(ctx),
				UserRoles:     auth.RolesFromContext(ctx),
				TestRequestID: requestID,
				Action:        action,
				IPAddress:     c.RealIP(),
				UserAgent:     req.UserAgent(),
				Path:          path,
				Method:        req.Method,
				Timestamp:     time.Now().UTC(),
				RequestID:     RequestIDFromContext(ctx),
				StatusCode:    status,
			}

			if recorder != nil {
				if recErr := recorder.RecordAccess(entry); recErr != nil {
					logger.Error().Err(recErr).
						Str("request_id", entry.RequestID).
						Msg("failed to record audit entry")
				}
			}

			evt := logger.Info()
			if status == http.StatusForbidden || status == http.StatusUnauthorized {
				evt = logger.Warn()
			}
			evt.
				Str("type", "consultation_audit").
				Str("request_id", entry.RequestID).
				Str("user_id", entry.UserID).
				Strs("user_roles", entry.UserRoles).
				Int64("test_request_id", entry.TestRequestID).
				Str("action", entry.Action).
				Str("method", entry.Method).
				Str("path", entry.Path).
				Str("remote_ip", entry.IPAddress).
				Int("status", entry.StatusCode).
				Msg("consultation_access")

			return err
		}
	}
}

// classifyConsultationPath names the operation behind a path relative to
// /api/v1/consultations and extracts the test request id when there is one.
//
//	GET  ""            -> list_assigned
//	GET  /in-queue     -> list_pending
//	PUT  /assign/7     -> assign, 7
//	PUT  /update/7     -> complete, 7
//	GET  /7/flow       -> flow, 7
func classifyConsultationPath(method, rest string) (string, int64) {
	segments := strings.Split(strings.Trim(rest, "/"), "/")
	switch {
	case len(segments) == 1 && segments[0] == "" && method == http.MethodGet:
		return "list_assigned", 0
	case len(segments) == 1 && segments[0] == "in-queue":
		return "list_pending", 0
	case len(segments) == 2 && segments[0] == "assign":
		return "assign", parseRequestID(segments[1])
	case len(segments) == 2 && segments[0] == "update":
		return "complete", parseRequestID(segments[1])
	case len(segments) == 2 && segments[1] == "flow":
		return "flow", parseRequestID(segments[0])
	default:
		return "unknown", 0
	}
}

func parseRequestID(s string) int64 {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0
	}
	return id
}

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/upstac/upstac/internal/config"
	"github.com/upstac/upstac/internal/domain/testrequest"
	"github.com/upstac/upstac/internal/platform/auth"
	"github.com/upstac/upstac/internal/platform/db"
)

const testSigningKey = "test-signing-key-that-is-long-enough"

func testConfig() *config.Config {
	return &config.Config{
		Port:           "0",
		Env:            "development",
		StoreDriver:    config.StoreDriverMemory,
		CORSOrigins:    []string{"http://localhost:3000"},
		RateLimitRPS:   1000,
		RateLimitBurst: 1000,
		RequestTimeout: 5 * time.Second,
	}
}

func memoryStores(t *testing.T) (*stores, []*testrequest.TestRequest) {
	t.Helper()
	mem := testrequest.NewMemoryStore()
	seeded, err := testrequest.SeedDemo(context.Background(), mem, time.Now())
	require.NoError(t, err)
	return &stores{requests: mem, flows: mem, tx: mem, health: mem, close: func() {}}, seeded
}

func firstWithStatus(items []*testrequest.TestRequest, status testrequest.RequestStatus) *testrequest.TestRequest {
	for _, it := range items {
		if it.Status == status {
			return it
		}
	}
	return nil
}

func call(t *testing.T, srv *httptest.Server, method, path, user, body string) (int, []byte) {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, srv.URL+path, r)
	require.NoError(t, err)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if user != "" {
		req.Header.Set(auth.DevUserHeader, user)
	}
	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, data
}

func TestServer_ConsultationRoundTrip(t *testing.T) {
	st, seeded := memoryStores(t)
	srv := httptest.NewServer(newServer(testConfig(), zerolog.Nop(), st))
	defer srv.Close()

	status, body := call(t, srv, http.MethodGet, "/api/v1/consultations/in-queue", "", "")
	require.Equal(t, http.StatusOK, status)
	var queue []testrequest.TestRequest
	require.NoError(t, json.Unmarshal(body, &queue))
	require.Len(t, queue, 3)
	for i := 1; i < len(queue); i++ {
		assert.False(t, queue[i].CreatedAt.Before(queue[i-1].CreatedAt), "queue must be oldest first")
	}

	target := firstWithStatus(seeded, testrequest.StatusLabTestCompleted)
	require.NotNil(t, target)
	id := target.ID

	status, body = call(t, srv, http.MethodPut, fmt.Sprintf("/api/v1/consultations/assign/%d", id), "doctor-a", "")
	require.Equal(t, http.StatusOK, status, string(body))
	var assigned testrequest.TestRequest
	require.NoError(t, json.Unmarshal(body, &assigned))
	assert.Equal(t, testrequest.StatusDoctorAssigned, assigned.Status)
	require.NotNil(t, assigned.AssigneeID)
	assert.Equal(t, "doctor-a", *assigned.AssigneeID)

	status, _ = call(t, srv, http.MethodPut, fmt.Sprintf("/api/v1/consultations/assign/%d", id), "doctor-b", "")
	assert.Equal(t, http.StatusConflict, status)

	result := `{"suggestion":"HOME_QUARANTINE","comments":"isolate for 14 days"}`
	status, _ = call(t, srv, http.MethodPut, fmt.Sprintf("/api/v1/consultations/update/%d", id), "doctor-b", result)
	assert.Equal(t, http.StatusForbidden, status)

	status, _ = call(t, srv, http.MethodPut, fmt.Sprintf("/api/v1/consultations/update/%d", id), "doctor-a", `{"suggestion":"MAYBE","comments":"x"}`)
	assert.Equal(t, http.StatusUnprocessableEntity, status)

	status, body = call(t, srv, http.MethodPut, fmt.Sprintf("/api/v1/consultations/update/%d", id), "doctor-a", result)
	require.Equal(t, http.StatusOK, status, string(body))
	var completed testrequest.TestRequest
	require.NoError(t, json.Unmarshal(body, &completed))
	assert.Equal(t, testrequest.StatusCompleted, completed.Status)
	require.NotNil(t, completed.Consultation)
	assert.Equal(t, testrequest.SuggestionHomeQuarantine, completed.Consultation.Suggestion)
	assert.Equal(t, "doctor-a", completed.Consultation.DoctorID)

	status, body = call(t, srv, http.MethodGet, "/api/v1/consultations", "doctor-a", "")
	require.Equal(t, http.StatusOK, status)
	var mine []testrequest.TestRequest
	require.NoError(t, json.Unmarshal(body, &mine))
	require.Len(t, mine, 1)
	assert.Equal(t, id, mine[0].ID)

	status, body = call(t, srv, http.MethodGet, fmt.Sprintf("/api/v1/consultations/%d/flow", id), "doctor-a", "")
	require.Equal(t, http.StatusOK, status)
	var flow []testrequest.FlowEntry
	require.NoError(t, json.Unmarshal(body, &flow))
	require.Len(t, flow, 2)
	assert.Equal(t, testrequest.StatusDoctorAssigned, flow[0].ToStatus)
	assert.Equal(t, testrequest.StatusCompleted, flow[1].ToStatus)

	status, body = call(t, srv, http.MethodGet, "/api/v1/consultations/in-queue", "", "")
	require.Equal(t, http.StatusOK, status)
	require.NoError(t, json.Unmarshal(body, &queue))
	assert.Len(t, queue, 2)
}

func TestServer_DevDoctorSeesSeededAssignment(t *testing.T) {
	st, _ := memoryStores(t)
	srv := httptest.NewServer(newServer(testConfig(), zerolog.Nop(), st))
	defer srv.Close()

	status, body := call(t, srv, http.MethodGet, "/api/v1/consultations", "", "")
	require.Equal(t, http.StatusOK, status)
	var mine []testrequest.TestRequest
	require.NoError(t, json.Unmarshal(body, &mine))
	require.Len(t, mine, 1)
	assert.Equal(t, testrequest.StatusDoctorAssigned, mine[0].Status)
}

func TestServer_Health(t *testing.T) {
	st, _ := memoryStores(t)
	srv := httptest.NewServer(newServer(testConfig(), zerolog.Nop(), st))
	defer srv.Close()

	status, body := call(t, srv, http.MethodGet, "/health", "", "")
	assert.Equal(t, http.StatusOK, status)
	assert.Contains(t, string(body), version)

	status, _ = call(t, srv, http.MethodGet, "/health/db", "", "")
	assert.Equal(t, http.StatusOK, status)
}

func TestServer_RequestIDEchoed(t *testing.T) {
	st, _ := memoryStores(t)
	srv := httptest.NewServer(newServer(testConfig(), zerolog.Nop(), st))
	defer srv.Close()

	req, err := http.NewRequest(http.MethodGet, srv.URL+"/health", nil)
	require.NoError(t, err)
	req.Header.Set("X-Request-ID", "trace-123")
	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, "trace-123", resp.Header.Get("X-Request-ID"))
}

func signedToken(t *testing.T, subject string, roles ...string) string {
	t.Helper()
	claims := auth.Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
		Roles: roles,
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSigningKey))
	require.NoError(t, err)
	return token
}

func TestServer_TokenAuth(t *testing.T) {
	cfg := testConfig()
	cfg.Env = "staging"
	cfg.AuthSigningKey = testSigningKey
	st, _ := memoryStores(t)
	srv := httptest.NewServer(newServer(cfg, zerolog.Nop(), st))
	defer srv.Close()

	get := func(token string) int {
		req, err := http.NewRequest(http.MethodGet, srv.URL+"/api/v1/consultations/in-queue", nil)
		require.NoError(t, err)
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
		resp, err := srv.Client().Do(req)
		require.NoError(t, err)
		resp.Body.Close()
		return resp.StatusCode
	}

	assert.Equal(t, http.StatusUnauthorized, get(""))
	assert.Equal(t, http.StatusUnauthorized, get("not-a-token"))
	assert.Equal(t, http.StatusForbidden, get(signedToken(t, "tester-1", "tester")))
	assert.Equal(t, http.StatusOK, get(signedToken(t, "doctor-1", "DOCTOR")))

	// The dev header is ignored once tokens are configured.
	req, err := http.NewRequest(http.MethodGet, srv.URL+"/api/v1/consultations", nil)
	require.NoError(t, err)
	req.Header.Set(auth.DevUserHeader, "dev-doctor")
	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestOpenStores_MemoryWithSeed(t *testing.T) {
	cfg := testConfig()
	cfg.SeedDemoData = true
	st, err := openStores(context.Background(), cfg, zerolog.Nop())
	require.NoError(t, err)
	defer st.close()

	pending, err := st.requests.ListByStatus(context.Background(), testrequest.StatusLabTestCompleted)
	require.NoError(t, err)
	assert.Len(t, pending, 3)
	assert.NoError(t, st.health.Ping(context.Background()))
}

func TestOpenStores_UnknownDriver(t *testing.T) {
	cfg := testConfig()
	cfg.StoreDriver = "sqlite"
	_, err := openStores(context.Background(), cfg, zerolog.Nop())
	assert.ErrorContains(t, err, "unknown store driver")
}

func TestMigrationFiles_Embedded(t *testing.T) {
	names, err := fs.Glob(migrationFiles(""), "*.sql")
	require.NoError(t, err)
	assert.Contains(t, names, "001_test_requests.sql")
	assert.Contains(t, names, "002_test_request_flow.sql")
}

func TestPrintStatus(t *testing.T) {
	applied := time.Date(2024, 5, 1, 9, 30, 0, 0, time.UTC)
	var buf bytes.Buffer
	printStatus(&buf, []db.MigrationStatus{
		{Version: 1, Name: "test_requests", Applied: true, AppliedAt: &applied},
		{Version: 2, Name: "test_request_flow"},
	})

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 4)
	assert.Contains(t, lines[2], "applied")
	assert.Contains(t, lines[2], "2024-05-01 09:30:00")
	assert.Contains(t, lines[3], "pending")
	assert.Contains(t, lines[3], "test_request_flow")
}

func TestNewLogger_ProductionIsJSON(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(&config.Config{Env: "production"}, &buf)
	logger.Info().Msg("hello")

	var line map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "upstac", line["service"])
	assert.Equal(t, "hello", line["message"])
}

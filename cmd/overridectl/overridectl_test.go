package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/Special-Olympics-Ireland/SOI-Volunteer-Management-System-sub001/pkg/audit"
	"github.com/Special-Olympics-Ireland/SOI-Volunteer-Management-System-sub001/pkg/authz"
	"github.com/Special-Olympics-Ireland/SOI-Volunteer-Management-System-sub001/pkg/jobs"
	"github.com/Special-Olympics-Ireland/SOI-Volunteer-Management-System-sub001/pkg/override"
)

// newTestServer runs the override, audit and jobs routers on sqlite.
func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	auditStore := audit.NewStore(db)
	require.NoError(t, override.NewStore(db).AutoMigrate())
	require.NoError(t, auditStore.AutoMigrate())
	svc := override.NewService(db, auditStore)

	r := chi.NewRouter()
	r.Use(authz.IdentityMiddleware())
	r.Mount("/overrides", override.NewRouter(svc, nil))
	r.Mount("/audit", audit.Router(auditStore, nil))
	r.Mount("/jobs", jobs.Router(jobs.NewSweeper(svc, nil, nil), nil))

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv
}

// run executes overridectl with args and returns its stdout.
func run(t *testing.T, srv *httptest.Server, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append([]string{"--server", srv.URL}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func createArgs() []string {
	return []string{
		"--actor", "coordinator", "create",
		"--type", "AGE_REQUIREMENT",
		"--title", "Age exception for J. Smith",
		"--target-type", "volunteer_profile", "--target-id", "vp-1",
		"--risk", "MEDIUM", "--impact", "LOW",
		"--justification", "Parental consent on file and adult supervision at all times during the event.",
		"--tags", "Youth,youth",
		"--until", "72h",
		"-o", "json",
	}
}

func createOverride(t *testing.T, srv *httptest.Server) string {
	t.Helper()
	out, err := run(t, srv, createArgs()...)
	require.NoError(t, err, out)
	var resp override.CreateResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	require.NotNil(t, resp.Override)
	return resp.Override.ID
}

func TestCreateAndWorkflow(t *testing.T) {
	srv := newTestServer(t)
	id := createOverride(t, srv)

	out, err := run(t, srv, "--actor", "manager", "approve", id, "--notes", "ok")
	require.NoError(t, err)
	assert.Contains(t, out, "is now APPROVED (version 2)")

	out, err = run(t, srv, "--actor", "manager", "activate", id)
	require.NoError(t, err)
	assert.Contains(t, out, "is now ACTIVE")

	out, err = run(t, srv, "get", id, "-o", "json")
	require.NoError(t, err)
	var o override.Override
	require.NoError(t, json.Unmarshal([]byte(out), &o))
	assert.Equal(t, override.StatusActive, o.Status)
	assert.Equal(t, "manager", o.ApprovedBy)
	assert.Equal(t, []string{"youth"}, o.Tags)
	require.NotNil(t, o.EffectiveUntil)

	out, err = run(t, srv, "get", id)
	require.NoError(t, err)
	assert.Contains(t, out, "Approved By:")
	assert.Contains(t, out, "volunteer_profile/vp-1")

	out, err = run(t, srv, "list", "active")
	require.NoError(t, err)
	assert.Contains(t, out, "AGE_REQUIREMENT")
	assert.Contains(t, out, "Total: 1")

	out, err = run(t, srv, "history", id)
	require.NoError(t, err)
	assert.Contains(t, out, "PENDING")
	assert.Contains(t, out, "ACTIVE")
	assert.Contains(t, out, "manager")
}

func TestActionErrorsCarryCode(t *testing.T) {
	srv := newTestServer(t)
	id := createOverride(t, srv)

	_, err := run(t, srv, "--actor", "coordinator", "approve", id)
	require.Error(t, err)
	var apiErr *apiError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusForbidden, apiErr.Status)
	assert.Equal(t, "PERMISSION_DENIED", apiErr.Body.Code)

	_, err = run(t, srv, "--actor", "manager", "activate", id)
	require.Error(t, err)
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusConflict, apiErr.Status)
	assert.Contains(t, err.Error(), "OVERRIDE_INVALID_TRANSITION")

	_, err = run(t, srv, "--actor", "manager", "reject", id)
	require.Error(t, err, "reject requires --reason")
	assert.Contains(t, err.Error(), "reason")
}

func TestCreateFromFile(t *testing.T) {
	srv := newTestServer(t)
	path := filepath.Join(t.TempDir(), "override.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
title: Late registration for the relay
overrideType: DEADLINE_EXTENSION
justification: Portal outage blocked registration for two days before the deadline.
target:
  type: assignment
  id: as-7
riskLevel: LOW
impactLevel: MINIMAL
priorityLevel: 8
`), 0o600))

	out, err := run(t, srv, "--actor", "coordinator", "create", "-f", path, "--priority", "2", "-o", "json")
	require.NoError(t, err, out)
	var resp override.CreateResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, 2, resp.Override.PriorityLevel, "flags win over the file")
	assert.Equal(t, "as-7", resp.Override.Target.ID)

	out, err = run(t, srv, "list")
	require.NoError(t, err)
	assert.Contains(t, out, "DEADLINE_EXTENSION")
	assert.Contains(t, out, "PENDING")
}

func TestDeleteAndStats(t *testing.T) {
	srv := newTestServer(t)
	first := createOverride(t, srv)
	createOverride(t, srv)

	out, err := run(t, srv, "stats", "-o", "json")
	require.NoError(t, err)
	var stats override.Statistics
	require.NoError(t, json.Unmarshal([]byte(out), &stats))
	assert.Equal(t, 2, stats.Total)
	assert.Equal(t, 2, stats.ByStatus[override.StatusPending])

	out, err = run(t, srv, "--actor", "coordinator", "delete", first, "--reason", "duplicate")
	require.NoError(t, err)
	assert.Contains(t, out, "Deleted override "+first)

	out, err = run(t, srv, "stats")
	require.NoError(t, err)
	assert.Contains(t, out, "Total: 1")
	assert.Contains(t, out, "PENDING")
}

func TestSearch(t *testing.T) {
	srv := newTestServer(t)
	createOverride(t, srv)
	createOverride(t, srv)

	out, err := run(t, srv, "search", `override_type = "AGE_REQUIREMENT"`, "--page-size", "1")
	require.NoError(t, err)
	assert.Contains(t, out, "Total: 2")
	assert.Contains(t, out, "Next page: --page-token")

	_, err = run(t, srv, "search", `bogus = "x"`)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "400")
}

func TestSweep(t *testing.T) {
	srv := newTestServer(t)
	out, err := run(t, srv, "sweep")
	require.NoError(t, err)
	assert.Contains(t, out, "Expired 0 overrides in 1 batches")
}

func TestClientSendsIdentityHeaders(t *testing.T) {
	var user, groups string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, groups = r.Header.Get("X-Remote-User"), r.Header.Get("X-Remote-Group")
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(override.OverrideList{})
	}))
	defer srv.Close()

	c := &overrideClient{baseURL: srv.URL, actor: "alice", groups: "admins,leads", http: srv.Client()}
	var list override.OverrideList
	require.NoError(t, c.getJSON("/overrides/", &list))
	assert.Equal(t, "alice", user)
	assert.Equal(t, "admins,leads", groups)
}

func TestClientPlainErrorBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "upstream down", http.StatusBadGateway)
	}))
	defer srv.Close()

	c := &overrideClient{baseURL: srv.URL, http: srv.Client()}
	err := c.getJSON("/overrides/", nil)
	require.Error(t, err)
	assert.Equal(t, "server returned 502: upstream down", err.Error())
}

func TestParseWhen(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	got, err := parseWhen("36h", now)
	require.NoError(t, err)
	assert.Equal(t, now.Add(36*time.Hour), got)

	got, err = parseWhen("2026-04-01T00:00:00Z", now)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC), got)

	_, err = parseWhen("next tuesday", now)
	assert.Error(t, err)
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "abcdefg...", truncate("abcdefghijklmnop", 10))
	assert.Equal(t, "ab", truncate("abcdef", 2))
	assert.Equal(t, "Éir...", truncate("Éireannach", 6))
}

func TestOutputFormats(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, printOutput(&buf, "yaml", override.OverrideList{TotalSize: 3}))
	assert.Contains(t, buf.String(), "totalSize: 3")

	buf.Reset()
	require.Error(t, printOutput(&buf, "table", nil))
	assert.True(t, structured("json"))
	assert.False(t, structured("table"))
}

func TestHealth(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/healthz" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok","leader":true}`))
	}))
	defer srv.Close()

	out, err := run(t, srv, "health")
	require.NoError(t, err)
	assert.Equal(t, "Server: ok (leader)\n", out)

	down := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"status":"database unavailable","leader":false}`))
	}))
	defer down.Close()
	_, err = run(t, down, "health")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "503")
}

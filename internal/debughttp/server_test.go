package debughttp

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/essmehdi/flowd/internal/store"
)

func newTestServer(t *testing.T) (*Server, *store.Store) {
	t.Helper()
	st, err := store.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	return New(st, slog.New(slog.DiscardHandler)), st
}

func serve(t *testing.T, s *Server, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	req.RemoteAddr = "127.0.0.1:54321"
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func TestHealthzReportsUP(t *testing.T) {
	s, _ := newTestServer(t)
	rec := serve(t, s, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "UP")
}

func TestListJobsReturnsSortedJobs(t *testing.T) {
	s, st := newTestServer(t)
	_, err := st.Insert(&store.Job{URL: "u1", Status: store.StatusPending, TempFile: "t1", DateAdded: 1})
	require.NoError(t, err)

	rec := serve(t, s, httptest.NewRequest(http.MethodGet, "/jobs", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var jobs []store.Job
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &jobs))
	require.Len(t, jobs, 1)
}

func TestGetJobNotFound(t *testing.T) {
	s, _ := newTestServer(t)
	rec := serve(t, s, httptest.NewRequest(http.MethodGet, "/jobs/999", nil))
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetJobByID(t *testing.T) {
	s, st := newTestServer(t)
	id, err := st.Insert(&store.Job{URL: "u1", Status: store.StatusPending, TempFile: "t1", DateAdded: 1})
	require.NoError(t, err)

	rec := serve(t, s, httptest.NewRequest(http.MethodGet, "/jobs/1", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var job store.Job
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &job))
	require.Equal(t, id, job.ID)
}

func TestNonLoopbackRequestForbidden(t *testing.T) {
	s, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.RemoteAddr = "203.0.113.5:1234"
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusForbidden, rec.Code)
}

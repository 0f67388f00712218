package api

import (
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/smazurov/camfeed/internal/api/models"
	"github.com/smazurov/camfeed/internal/cache"
	"github.com/smazurov/camfeed/internal/connection"
	"github.com/smazurov/camfeed/internal/feed"
	"github.com/smazurov/camfeed/internal/logging"
	"github.com/smazurov/camfeed/internal/session"
)

type mockConnection struct {
	stats      connection.Stats
	err        error
	reconnects atomic.Int32
}

func (m *mockConnection) Stats() connection.Stats { return m.stats }

func (m *mockConnection) RequestReconnect(connection.Params) error {
	if m.err != nil {
		return m.err
	}
	m.reconnects.Add(1)
	return nil
}

type mockFeed struct{ state feed.State }

func (m mockFeed) State() feed.State { return m.state }

func newTestServer(t *testing.T, conn *mockConnection) (*Server, *session.Session) {
	t.Helper()
	c, err := cache.New(1024, cache.PolicyOverwrite)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := c.Write([]byte("hello")); err != nil {
		t.Fatal(err)
	}
	sess := session.New("cam1", c, nil)
	sess.SetStatus(0)
	sess.SetOffline(false)
	sess.RecordFrame(session.Frame{Size: 5, KeyFrame: true})

	s := NewServer(&Options{
		AuthUsername: "admin",
		AuthPassword: "secret",
		Session:      sess,
		Connection:   conn,
		Feed:         mockFeed{state: feed.StateFeeding},
		MetricsHandler: http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte("camfeed_up 1\n"))
		}),
	})
	return s, sess
}

func do(t *testing.T, s *Server, method, path string, auth bool, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if auth {
		req.Header.Set("Authorization", "Basic "+base64.StdEncoding.EncodeToString([]byte("admin:secret")))
	}
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func TestHealthNeedsNoAuth(t *testing.T) {
	s, _ := newTestServer(t, &mockConnection{})
	rec := do(t, s, http.MethodGet, "/api/health", false, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	var body models.HealthData
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body.Status != "ok" {
		t.Errorf("status field = %q", body.Status)
	}
}

func TestStatusRequiresAuth(t *testing.T) {
	s, _ := newTestServer(t, &mockConnection{})

	if rec := do(t, s, http.MethodGet, "/api/status", false, ""); rec.Code != http.StatusUnauthorized {
		t.Errorf("without credentials: status = %d", rec.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/status", nil)
	req.SetBasicAuth("admin", "wrong")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("wrong password: status = %d", rec.Code)
	}
	if rec.Header().Get("WWW-Authenticate") == "" {
		t.Error("missing WWW-Authenticate header")
	}
}

func TestStatusReportsBridgeState(t *testing.T) {
	conn := &mockConnection{stats: connection.Stats{
		State:    connection.StateConnected,
		Attempts: 3,
		Failures: 2,
	}}
	s, _ := newTestServer(t, conn)

	rec := do(t, s, http.MethodGet, "/api/status", true, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}

	var body models.StatusData
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body.CameraID != "cam1" {
		t.Errorf("camera_id = %q", body.CameraID)
	}
	if body.Connection.State != "connected" || body.Connection.Attempts != 3 || body.Connection.Failures != 2 {
		t.Errorf("unexpected connection: %+v", body.Connection)
	}
	if body.Connection.Status != 0 || body.Connection.Offline {
		t.Errorf("unexpected session fields: %+v", body.Connection)
	}
	if body.Feed.State != "feeding" {
		t.Errorf("feed state = %q", body.Feed.State)
	}
	if body.Frames.Frames != 1 || body.Frames.KeyFrames != 1 {
		t.Errorf("unexpected frames: %+v", body.Frames)
	}
	if body.Cache.Available != 5 || body.Cache.Capacity != 1024 {
		t.Errorf("unexpected cache: %+v", body.Cache)
	}
}

func TestReconnect(t *testing.T) {
	conn := &mockConnection{}
	s, _ := newTestServer(t, conn)

	rec := do(t, s, http.MethodPost, "/api/reconnect", true, "")
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	if conn.reconnects.Load() != 1 {
		t.Errorf("reconnects = %d", conn.reconnects.Load())
	}

	conn.err = connection.ErrShutdown
	if rec := do(t, s, http.MethodPost, "/api/reconnect", true, ""); rec.Code != http.StatusServiceUnavailable {
		t.Errorf("during shutdown: status = %d", rec.Code)
	}
}

func TestLogs(t *testing.T) {
	s, _ := newTestServer(t, &mockConnection{})
	logging.GetLogger("apitest").Warn("camera unreachable", "attempt", 2)

	rec := do(t, s, http.MethodGet, "/api/logs?module=apitest&level=warn&limit=10", true, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	var body models.LogsData
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body.Count != 1 || body.Entries[0].Message != "camera unreachable" {
		t.Errorf("unexpected logs: %+v", body)
	}
}

func TestSetLogLevel(t *testing.T) {
	s, _ := newTestServer(t, &mockConnection{})

	rec := do(t, s, http.MethodPut, "/api/logs/level", true, `{"module":"apitest-level","level":"debug"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	var body models.LogLevelData
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	found := false
	for _, m := range body.Modules {
		if m == "apitest-level" {
			found = true
		}
	}
	if !found {
		t.Errorf("module not listed: %v", body.Modules)
	}

	if rec := do(t, s, http.MethodPut, "/api/logs/level", true, `{"module":"x","level":"loud"}`); rec.Code != http.StatusUnprocessableEntity {
		t.Errorf("invalid level: status = %d", rec.Code)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	s, _ := newTestServer(t, &mockConnection{})
	rec := do(t, s, http.MethodGet, "/metrics", false, "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "camfeed_up") {
		t.Errorf("status = %d, body %q", rec.Code, rec.Body.String())
	}
}

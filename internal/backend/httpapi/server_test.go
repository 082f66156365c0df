package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/quickdock/quickdock/internal/backend/docker"
)

type fakeManager struct {
	health    docker.Health
	healthErr error

	containers []docker.ContainerInfo
	projects   []docker.Project

	actions []string

	logLines []string
	logErr   error

	composeErr error
}

func (f *fakeManager) Ping(ctx context.Context) (docker.Health, error) {
	return f.health, f.healthErr
}

func (f *fakeManager) ListContainers(ctx context.Context) ([]docker.ContainerInfo, error) {
	return f.containers, nil
}

func (f *fakeManager) ListProjects(ctx context.Context) ([]docker.Project, error) {
	return f.projects, nil
}

func (f *fakeManager) ContainerAction(ctx context.Context, id, action string) error {
	f.actions = append(f.actions, id+":"+action)
	return nil
}

func (f *fakeManager) ComposeAction(ctx context.Context, project, action string) (string, error) {
	if f.composeErr != nil {
		return "", f.composeErr
	}
	f.actions = append(f.actions, project+":"+action)
	return "done", nil
}

func (f *fakeManager) ContainerLogs(ctx context.Context, id string, tail int, w io.Writer) error {
	if f.logErr != nil {
		return f.logErr
	}
	for _, line := range f.logLines {
		fmt.Fprintln(w, line)
	}
	return nil
}

func newTestServer(t *testing.T, mgr Manager) *Server {
	t.Helper()
	server, err := NewServer(Config{Manager: mgr})
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	return server
}

func do(server *Server, method, target string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, nil)
	rec := httptest.NewRecorder()
	server.srv.Handler.ServeHTTP(rec, req)
	return rec
}

func TestHealthReportsDaemonState(t *testing.T) {
	mgr := &fakeManager{health: docker.Health{Containers: 3, Images: 7, ServerVersion: "26.0"}}
	server := newTestServer(t, mgr)

	rec := do(server, http.MethodGet, "/api/health")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var health docker.Health
	if err := json.Unmarshal(rec.Body.Bytes(), &health); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if health.Containers != 3 || health.ServerVersion != "26.0" {
		t.Fatalf("unexpected health payload: %+v", health)
	}

	mgr.healthErr = errors.New("daemon unreachable")
	rec = do(server, http.MethodGet, "/api/health")
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status with daemon down = %d", rec.Code)
	}

	rec = do(server, http.MethodPost, "/api/health")
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("status for POST = %d", rec.Code)
	}
}

func TestListEndpoints(t *testing.T) {
	mgr := &fakeManager{
		containers: []docker.ContainerInfo{{ID: "abc", Name: "web_1"}},
		projects:   []docker.Project{{Name: "web", Status: "running"}},
	}
	server := newTestServer(t, mgr)

	rec := do(server, http.MethodGet, "/api/containers")
	if rec.Code != http.StatusOK {
		t.Fatalf("containers status = %d", rec.Code)
	}
	var containers []docker.ContainerInfo
	if err := json.Unmarshal(rec.Body.Bytes(), &containers); err != nil {
		t.Fatalf("decode containers: %v", err)
	}
	if len(containers) != 1 || containers[0].Name != "web_1" {
		t.Fatalf("unexpected containers: %v", containers)
	}

	rec = do(server, http.MethodGet, "/api/projects")
	if rec.Code != http.StatusOK {
		t.Fatalf("projects status = %d", rec.Code)
	}
	var projects []docker.Project
	if err := json.Unmarshal(rec.Body.Bytes(), &projects); err != nil {
		t.Fatalf("decode projects: %v", err)
	}
	if len(projects) != 1 || projects[0].Status != "running" {
		t.Fatalf("unexpected projects: %v", projects)
	}
}

func TestComposeActionValidation(t *testing.T) {
	mgr := &fakeManager{}
	server := newTestServer(t, mgr)

	rec := do(server, http.MethodPost, "/api/compose/web/up")
	if rec.Code != http.StatusOK {
		t.Fatalf("compose up status = %d body=%s", rec.Code, rec.Body.String())
	}
	if len(mgr.actions) != 1 || mgr.actions[0] != "web:up" {
		t.Fatalf("unexpected actions: %v", mgr.actions)
	}

	rec = do(server, http.MethodPost, "/api/compose/web/pause")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("invalid action status = %d", rec.Code)
	}

	rec = do(server, http.MethodPost, "/api/compose/web")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("missing action status = %d", rec.Code)
	}

	rec = do(server, http.MethodGet, "/api/compose/web/up")
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("GET compose status = %d", rec.Code)
	}
}

func TestContainerActions(t *testing.T) {
	mgr := &fakeManager{}
	server := newTestServer(t, mgr)

	rec := do(server, http.MethodPost, "/api/container/abc/restart")
	if rec.Code != http.StatusOK {
		t.Fatalf("restart status = %d", rec.Code)
	}

	rec = do(server, http.MethodDelete, "/api/container/abc")
	if rec.Code != http.StatusOK {
		t.Fatalf("delete status = %d", rec.Code)
	}

	want := []string{"abc:restart", "abc:remove"}
	if len(mgr.actions) != len(want) {
		t.Fatalf("actions = %v, want %v", mgr.actions, want)
	}
	for i, action := range want {
		if mgr.actions[i] != action {
			t.Fatalf("actions = %v, want %v", mgr.actions, want)
		}
	}

	rec = do(server, http.MethodPost, "/api/container/abc/pause")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("invalid action status = %d", rec.Code)
	}
}

func TestContainerLogsStreamsSSE(t *testing.T) {
	mgr := &fakeManager{logLines: []string{"hello", "world"}}
	server := newTestServer(t, mgr)

	rec := do(server, http.MethodGet, "/api/container/abc/logs?tail=50")
	if rec.Code != http.StatusOK {
		t.Fatalf("logs status = %d body=%s", rec.Code, rec.Body.String())
	}
	if got := rec.Header().Get("Content-Type"); got != "text/event-stream" {
		t.Fatalf("content type = %q", got)
	}
	body := rec.Body.String()
	if !strings.Contains(body, `data: "hello\n"`) || !strings.Contains(body, `data: "world\n"`) {
		t.Fatalf("unexpected SSE body: %q", body)
	}
}

func TestContainerLogsRejectsBadTail(t *testing.T) {
	server := newTestServer(t, &fakeManager{})

	rec := do(server, http.MethodGet, "/api/container/abc/logs?tail=many")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("bad tail status = %d", rec.Code)
	}
}

func TestEventsEmitsStateSnapshot(t *testing.T) {
	mgr := &fakeManager{projects: []docker.Project{{Name: "web", Status: "running"}}}
	server := newTestServer(t, mgr)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	req := httptest.NewRequest(http.MethodGet, "/api/events", nil).WithContext(ctx)
	rec := httptest.NewRecorder()
	server.srv.Handler.ServeHTTP(rec, req)

	body := rec.Body.String()
	if !strings.Contains(body, `"type":"state"`) || !strings.Contains(body, `"web"`) {
		t.Fatalf("unexpected events body: %q", body)
	}
}

func TestNormalizeAddr(t *testing.T) {
	cases := map[string]string{
		"":              defaultAddr,
		"0.0.0.0:9000":  "127.0.0.1:9000",
		":9000":         "127.0.0.1:9000",
		"127.0.0.1:900": "127.0.0.1:900",
		"bogus":         "bogus",
	}
	for in, want := range cases {
		if got := normalizeAddr(in); got != want {
			t.Fatalf("normalizeAddr(%q) = %q, want %q", in, got, want)
		}
	}
}

package web

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/crypto/bcrypt"

	"github.com/sorcerai/storm-mcp/internal/config"
	"github.com/sorcerai/storm-mcp/internal/executor"
	"github.com/sorcerai/storm-mcp/internal/llm"
	"github.com/sorcerai/storm-mcp/internal/pipeline"
	"github.com/sorcerai/storm-mcp/internal/registry"
	"github.com/sorcerai/storm-mcp/internal/router"
	"github.com/sorcerai/storm-mcp/internal/store"
	"github.com/sorcerai/storm-mcp/internal/swarm"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.New(config.StoreConfig{Path: filepath.Join(t.TempDir(), "test.db")})
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func newTestServer(t *testing.T, st *store.Store, cfg config.WebConfig) *Server {
	t.Helper()
	return newTestServerWith(t, st, cfg, nil, pipeline.DefaultOptions())
}

func newTestServerWith(t *testing.T, st *store.Store, cfg config.WebConfig, roster []swarm.AgentSpec, defaults pipeline.Options) *Server {
	t.Helper()
	reg := registry.Default()
	rtr, err := router.New(reg, reg.IDs(), router.Config{})
	if err != nil {
		t.Fatal(err)
	}
	backends := make(map[registry.BackendID]llm.Backend)
	for _, id := range reg.IDs() {
		backends[id] = llm.NewSimulated(string(id))
	}
	pc := pipeline.Config{
		Registry: reg,
		Router:   rtr,
		Executor: executor.New(rtr, backends, time.Second),
		Roster:   roster,
	}
	if st != nil {
		pc.Recorder = st
	}
	return NewServer(Deps{
		Orchestrator: pipeline.New(pc),
		Store:        st,
		Registry:     reg,
		Router:       rtr,
		Defaults:     defaults,
	}, cfg, "test")
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, bytes.NewBufferString(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return v
}

type metricsResponse struct {
	Metrics swarm.Metrics `json:"metrics"`
	Error   string        `json:"error"`
}

func waitDone(t *testing.T, h http.Handler, id string) swarm.Metrics {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for {
		rec := do(t, h, "GET", "/api/swarms/"+id, "")
		if rec.Code != http.StatusOK {
			t.Fatalf("get swarm: %d %s", rec.Code, rec.Body.String())
		}
		m := decode[metricsResponse](t, rec).Metrics
		if m.Status == swarm.StatusCompleted || m.Status == swarm.StatusFailed {
			return m
		}
		if time.Now().After(deadline) {
			t.Fatalf("timeout waiting for swarm %s (phase %s)", id, m.Phase)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

// waitArticle polls until the result is published, which trails the final
// status change slightly.
func waitArticle(t *testing.T, h http.Handler, id string) *httptest.ResponseRecorder {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for {
		rec := do(t, h, "GET", "/api/swarms/"+id+"/article", "")
		if rec.Code != http.StatusConflict {
			if rec.Code != http.StatusOK {
				t.Fatalf("get article: %d %s", rec.Code, rec.Body.String())
			}
			return rec
		}
		if time.Now().After(deadline) {
			t.Fatal("article never became ready")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestRunPipelineEndToEnd(t *testing.T) {
	st := newTestStore(t)
	h := newTestServer(t, st, config.WebConfig{}).Handler()

	rec := do(t, h, "POST", "/api/pipelines", `{"topic":"Distributed consensus","article_length":"short"}`)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", rec.Code, rec.Body.String())
	}
	id := decode[map[string]string](t, rec)["swarm_id"]

	m := waitDone(t, h, id)
	if m.Status != swarm.StatusCompleted {
		t.Fatalf("expected completed swarm, got %+v", m)
	}

	rec = waitArticle(t, h, id)
	if !strings.Contains(rec.Body.String(), "## Introduction") {
		t.Fatalf("unexpected article %d: %s", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/markdown") {
		t.Errorf("unexpected content type %s", ct)
	}

	rec = do(t, h, "GET", "/api/swarms/"+id+"/article.html", "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "<h2>Introduction</h2>") {
		t.Fatalf("unexpected html %d: %s", rec.Code, rec.Body.String())
	}

	rec = do(t, h, "GET", "/api/swarms/"+id+"/tasks", "")
	tasks := decode[[]map[string]any](t, rec)
	if len(tasks) != m.TasksTotal {
		t.Errorf("expected %d tasks, got %d", m.TasksTotal, len(tasks))
	}

	rec = do(t, h, "GET", "/api/swarms", "")
	list := decode[[]swarmSummary](t, rec)
	if len(list) != 1 || list[0].ID != id || !list[0].Live {
		t.Errorf("unexpected listing %+v", list)
	}
}

func TestCreateThenRunSwarm(t *testing.T) {
	h := newTestServer(t, nil, config.WebConfig{}).Handler()

	rec := do(t, h, "POST", "/api/swarms", `{"topic":"CRDTs","topology":"mesh"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	created := decode[struct {
		SwarmID string        `json:"swarm_id"`
		Agents  []swarm.Agent `json:"agents"`
	}](t, rec)
	if len(created.Agents) != 10 {
		t.Errorf("expected 10 agents, got %d", len(created.Agents))
	}

	rec = do(t, h, "GET", "/api/swarms/"+created.SwarmID+"/article", "")
	if rec.Code != http.StatusConflict {
		t.Errorf("expected 409 before run, got %d", rec.Code)
	}

	rec = do(t, h, "POST", "/api/swarms/"+created.SwarmID+"/run", `{"research_depth":"shallow"}`)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", rec.Code, rec.Body.String())
	}
	rec = do(t, h, "POST", "/api/swarms/"+created.SwarmID+"/run", "")
	if rec.Code != http.StatusConflict {
		t.Errorf("expected 409 on second run, got %d", rec.Code)
	}

	if m := waitDone(t, h, created.SwarmID); m.Topology != swarm.TopologyMesh {
		t.Errorf("expected mesh topology, got %s", m.Topology)
	}
}

func TestConfiguredSwarmSettingsApply(t *testing.T) {
	roster := append(swarm.DefaultRoster(),
		swarm.AgentSpec{Backend: registry.Claude, Role: swarm.RoleReviewer, Name: "Second Reviewer"},
		swarm.AgentSpec{Backend: registry.Gemini, Role: swarm.RoleAnalyst, Name: "Data Analyst"},
	)
	defaults := pipeline.DefaultOptions()
	defaults.ArticleLength = "short"
	defaults.Swarm = swarm.Config{Topology: swarm.TopologyMesh, MaxAgents: 12, Strategy: "balanced"}
	srv := newTestServerWith(t, nil, config.WebConfig{}, roster, defaults)
	h := srv.Handler()

	rec := do(t, h, "POST", "/api/pipelines", `{"topic":"Consistent hashing"}`)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", rec.Code, rec.Body.String())
	}
	id := decode[map[string]string](t, rec)["swarm_id"]
	m := waitDone(t, h, id)
	if m.Status != swarm.StatusCompleted || m.TotalAgents != 12 || m.Topology != swarm.TopologyMesh {
		t.Errorf("unexpected metrics %+v", m)
	}
	if sw, _ := srv.orch.Swarm(id); sw.Config.Strategy != "balanced" {
		t.Errorf("expected configured strategy, got %q", sw.Config.Strategy)
	}

	rec = do(t, h, "POST", "/api/swarms", `{"topic":"Bloom filters","strategy":"adaptive"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	created := decode[map[string]any](t, rec)
	sw, _ := srv.orch.Swarm(created["swarm_id"].(string))
	if sw.Config.Topology != swarm.TopologyMesh || sw.Config.MaxAgents != 12 || sw.Config.Strategy != "adaptive" {
		t.Errorf("expected request strategy over configured swarm, got %+v", sw.Config)
	}
	if n := len(sw.Agents()); n != 12 {
		t.Errorf("expected 12 agents, got %d", n)
	}
}

func TestBadRequests(t *testing.T) {
	h := newTestServer(t, nil, config.WebConfig{}).Handler()

	tests := []struct {
		method, path, body string
		want               int
	}{
		{"POST", "/api/pipelines", `{"topic":""}`, http.StatusBadRequest},
		{"POST", "/api/pipelines", `{"topic":"x","research_depth":"bottomless"}`, http.StatusBadRequest},
		{"POST", "/api/pipelines", `{"topic":"x","article_length":"epic"}`, http.StatusBadRequest},
		{"POST", "/api/pipelines", `not json`, http.StatusBadRequest},
		{"POST", "/api/swarms", `{"topic":"x","topology":"tree"}`, http.StatusBadRequest},
		{"POST", "/api/swarms/missing/run", "", http.StatusNotFound},
		{"GET", "/api/swarms/missing", "", http.StatusNotFound},
		{"GET", "/api/swarms/missing/tasks", "", http.StatusNotFound},
		{"GET", "/api/swarms/missing/article", "", http.StatusNotFound},
		{"DELETE", "/api/swarms/missing", "", http.StatusNotImplemented},
	}
	for _, tt := range tests {
		rec := do(t, h, tt.method, tt.path, tt.body)
		if rec.Code != tt.want {
			t.Errorf("%s %s: expected %d, got %d: %s", tt.method, tt.path, tt.want, rec.Code, rec.Body.String())
		}
	}
}

func TestPersistedRunsServedFromStore(t *testing.T) {
	st := newTestStore(t)
	first := newTestServer(t, st, config.WebConfig{}).Handler()

	rec := do(t, first, "POST", "/api/pipelines", `{"topic":"Distributed consensus"}`)
	id := decode[map[string]string](t, rec)["swarm_id"]
	waitDone(t, first, id)

	// Give the recorder time to finish writing after the result is visible.
	deadline := time.Now().Add(2 * time.Second)
	for {
		if a, _ := st.GetArticle(id); a != nil {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("article never persisted")
		}
		time.Sleep(10 * time.Millisecond)
	}

	second := newTestServer(t, st, config.WebConfig{}).Handler()
	rec = do(t, second, "GET", "/api/swarms/"+id, "")
	if rec.Code != http.StatusOK || decode[metricsResponse](t, rec).Metrics.SwarmID != id {
		t.Fatalf("expected persisted run, got %d: %s", rec.Code, rec.Body.String())
	}
	rec = do(t, second, "GET", "/api/swarms/"+id+"/article", "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "## Conclusion") {
		t.Errorf("expected persisted article, got %d", rec.Code)
	}
	list := decode[[]swarmSummary](t, do(t, second, "GET", "/api/swarms", ""))
	if len(list) != 1 || list[0].Live {
		t.Errorf("expected one persisted run, got %+v", list)
	}

	if rec := do(t, second, "DELETE", "/api/swarms/"+id, ""); rec.Code != http.StatusOK {
		t.Errorf("delete: %d", rec.Code)
	}
	if rec := do(t, second, "GET", "/api/swarms/"+id, ""); rec.Code != http.StatusNotFound {
		t.Errorf("expected 404 after delete, got %d", rec.Code)
	}
}

func TestStatusAndBackends(t *testing.T) {
	h := newTestServer(t, nil, config.WebConfig{}).Handler()

	status := decode[map[string]any](t, do(t, h, "GET", "/api/status", ""))
	if status["version"] != "test" || status["store"] != false {
		t.Errorf("unexpected status %+v", status)
	}

	backends := decode[[]backendInfo](t, do(t, h, "GET", "/api/backends", ""))
	if len(backends) != 3 {
		t.Fatalf("expected 3 backends, got %d", len(backends))
	}
	for _, b := range backends {
		if !b.Available {
			t.Errorf("%s: expected available", b.ID)
		}
		if b.ID == registry.Kimi && b.Tier != registry.TierPremium.String() {
			t.Errorf("expected kimi premium tier, got %s", b.Tier)
		}
	}
}

func TestAuth(t *testing.T) {
	h := newTestServer(t, nil, config.WebConfig{Auth: "secret"}).Handler()

	if rec := do(t, h, "GET", "/api/status", ""); rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401 without credentials, got %d", rec.Code)
	}

	req := httptest.NewRequest("GET", "/api/status", nil)
	req.SetBasicAuth("storm", "secret")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200 with basic auth, got %d", rec.Code)
	}

	if rec := do(t, h, "POST", "/api/login", `{"password":"wrong"}`); rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401 for wrong password, got %d", rec.Code)
	}
	rec = do(t, h, "POST", "/api/login", `{"password":"secret"}`)
	cookies := rec.Result().Cookies()
	if rec.Code != http.StatusOK || len(cookies) == 0 {
		t.Fatalf("expected session cookie, got %d", rec.Code)
	}

	req = httptest.NewRequest("GET", "/api/status", nil)
	req.AddCookie(cookies[0])
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200 with session, got %d", rec.Code)
	}
}

func TestAuthWithHashedPassword(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("secret"), bcrypt.MinCost)
	if err != nil {
		t.Fatal(err)
	}
	h := newTestServer(t, nil, config.WebConfig{Auth: string(hash)}).Handler()

	for pass, want := range map[string]int{"secret": http.StatusOK, "wrong": http.StatusUnauthorized} {
		req := httptest.NewRequest("GET", "/api/status", nil)
		req.SetBasicAuth("storm", pass)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		if rec.Code != want {
			t.Errorf("password %q: expected %d, got %d", pass, want, rec.Code)
		}
	}
}

func TestWebSocketBroadcast(t *testing.T) {
	srv := newTestServer(t, nil, config.WebConfig{})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go srv.hub.Run(ctx)

	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http")+"/api/ws?swarm=s1", nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	ev := pipeline.Event{Type: pipeline.EventPhaseStarted, SwarmID: "s1", Phase: swarm.PhaseWriting}
	other := pipeline.Event{Type: pipeline.EventTaskStarted, SwarmID: "s2"}
	// Registration races the handshake.
	deadline := time.Now().Add(2 * time.Second)
	for srv.hub.clientCount() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("client never registered")
		}
		time.Sleep(5 * time.Millisecond)
	}

	srv.Events().Publish(other)
	srv.Events().Publish(ev)

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var got struct {
		Type    string         `json:"type"`
		Payload pipeline.Event `json:"payload"`
	}
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatal(err)
	}
	if got.Type != "phase_started" || got.Payload.SwarmID != "s1" || got.Payload.Phase != swarm.PhaseWriting {
		t.Errorf("unexpected event %+v", got)
	}
}

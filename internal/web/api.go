package web

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/sorcerai/storm-mcp/internal/article"
	"github.com/sorcerai/storm-mcp/internal/pipeline"
	"github.com/sorcerai/storm-mcp/internal/registry"
	"github.com/sorcerai/storm-mcp/internal/swarm"
)

func (s *Server) registerAPI(r chi.Router) {
	r.Route("/api/swarms", func(r chi.Router) {
		r.Get("/", s.listSwarms)
		r.Post("/", s.createSwarm)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", s.getSwarm)
			r.Delete("/", s.deleteSwarm)
			r.Post("/run", s.runSwarm)
			r.Get("/tasks", s.getSwarmTasks)
			r.Get("/article", s.getArticle)
			r.Get("/article.html", s.getArticleHTML)
		})
	})
	r.Post("/api/pipelines", s.runPipeline)
	r.Get("/api/backends", s.listBackends)
	r.Get("/api/status", s.getStatus)
}

type createSwarmRequest struct {
	Topic string `json:"topic"`
	swarm.Config
}

type pipelineRequest struct {
	Topic           string       `json:"topic"`
	ResearchDepth   string       `json:"research_depth"`
	ArticleLength   string       `json:"article_length"`
	Parallelization *bool        `json:"parallelization"`
	Swarm           swarm.Config `json:"swarm"`
}

// options overlays the request onto the server's default run options.
func (s *Server) options(req pipelineRequest) pipeline.Options {
	opts := s.defaults
	if req.ResearchDepth != "" {
		opts.ResearchDepth = req.ResearchDepth
	}
	if req.ArticleLength != "" {
		opts.ArticleLength = req.ArticleLength
	}
	if req.Parallelization != nil {
		opts.Parallelization = *req.Parallelization
	}
	opts.Swarm = overlaySwarm(s.defaults.Swarm, req.Swarm)
	return opts
}

// overlaySwarm applies the fields a request set onto the configured swarm.
func overlaySwarm(base, req swarm.Config) swarm.Config {
	if req.Topology != "" {
		base.Topology = req.Topology
	}
	if req.MaxAgents > 0 {
		base.MaxAgents = req.MaxAgents
	}
	if req.Strategy != "" {
		base.Strategy = req.Strategy
	}
	return base
}

// swarmSummary is one entry of the swarm listing, live or persisted.
type swarmSummary struct {
	ID        string       `json:"id"`
	Topic     string       `json:"topic"`
	Status    swarm.Status `json:"status"`
	Phase     swarm.Phase  `json:"phase"`
	Tasks     int          `json:"tasks"`
	StartedAt time.Time    `json:"started_at"`
	Live      bool         `json:"live"`
}

func (s *Server) listSwarms(w http.ResponseWriter, r *http.Request) {
	out := []swarmSummary{}
	live := make(map[string]bool)
	for _, sw := range s.orch.Swarms() {
		m := sw.Metrics()
		out = append(out, swarmSummary{
			ID:        sw.ID,
			Topic:     sw.Topic,
			Status:    m.Status,
			Phase:     m.Phase,
			Tasks:     m.TasksTotal,
			StartedAt: sw.CreatedAt,
			Live:      true,
		})
		live[sw.ID] = true
	}

	if s.store != nil {
		runs, err := s.store.ListSwarmRuns()
		if err != nil {
			jsonError(w, err.Error(), http.StatusInternalServerError)
			return
		}
		for _, run := range runs {
			if live[run.ID] {
				continue
			}
			out = append(out, swarmSummary{
				ID:        run.ID,
				Topic:     run.Topic,
				Status:    run.Status,
				Phase:     run.Phase,
				Tasks:     run.Metrics.TasksTotal,
				StartedAt: run.StartedAt,
			})
		}
	}
	jsonResponse(w, out)
}

func (s *Server) createSwarm(w http.ResponseWriter, r *http.Request) {
	var req createSwarmRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Topic == "" {
		jsonError(w, "topic is required", http.StatusBadRequest)
		return
	}

	sw, err := s.orch.CreateSwarm(req.Topic, overlaySwarm(s.defaults.Swarm, req.Config))
	if err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}
	w.Header().Set("Location", "/api/swarms/"+sw.ID)
	jsonStatus(w, http.StatusCreated, map[string]any{
		"swarm_id": sw.ID,
		"agents":   sw.Agents(),
	})
}

func (s *Server) runSwarm(w http.ResponseWriter, r *http.Request) {
	var req pipelineRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			jsonError(w, "invalid request body", http.StatusBadRequest)
			return
		}
	}

	sw, err := s.orch.StartSwarm(s.runCtx, chi.URLParam(r, "id"), s.options(req))
	switch {
	case errors.Is(err, pipeline.ErrUnknownSwarm):
		jsonError(w, err.Error(), http.StatusNotFound)
		return
	case errors.Is(err, pipeline.ErrSwarmStarted):
		jsonError(w, err.Error(), http.StatusConflict)
		return
	case err != nil:
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}
	jsonStatus(w, http.StatusAccepted, map[string]string{"swarm_id": sw.ID, "status": "started"})
}

func (s *Server) runPipeline(w http.ResponseWriter, r *http.Request) {
	var req pipelineRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Topic == "" {
		jsonError(w, "topic is required", http.StatusBadRequest)
		return
	}

	sw, err := s.orch.RunAsync(s.runCtx, req.Topic, s.options(req))
	if err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}
	w.Header().Set("Location", "/api/swarms/"+sw.ID)
	jsonStatus(w, http.StatusAccepted, map[string]string{"swarm_id": sw.ID, "status": "started"})
}

func (s *Server) getSwarm(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if m, err := s.orch.Metrics(id); err == nil {
		res, _ := s.orch.Result(id)
		out := map[string]any{"metrics": m}
		if res != nil && res.Err != "" {
			out["error"] = res.Err
		}
		jsonResponse(w, out)
		return
	}

	if s.store != nil {
		run, err := s.store.GetSwarmRun(id)
		if err != nil {
			jsonError(w, err.Error(), http.StatusInternalServerError)
			return
		}
		if run != nil {
			out := map[string]any{"metrics": run.Metrics}
			if run.Error != "" {
				out["error"] = run.Error
			}
			jsonResponse(w, out)
			return
		}
	}
	jsonError(w, "swarm not found", http.StatusNotFound)
}

func (s *Server) deleteSwarm(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		jsonError(w, "no run history configured", http.StatusNotImplemented)
		return
	}
	if err := s.store.DeleteSwarmRun(chi.URLParam(r, "id")); err != nil {
		jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	jsonResponse(w, map[string]string{"status": "deleted"})
}

func (s *Server) getSwarmTasks(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if sw, ok := s.orch.Swarm(id); ok {
		jsonResponse(w, sw.Tasks())
		return
	}
	if s.store != nil {
		tasks, err := s.store.ListTasks(id)
		if err != nil {
			jsonError(w, err.Error(), http.StatusInternalServerError)
			return
		}
		if len(tasks) > 0 {
			jsonResponse(w, tasks)
			return
		}
	}
	jsonError(w, "swarm not found", http.StatusNotFound)
}

var errArticleNotReady = errors.New("article not ready")

// article finds the finished article of a live or persisted run.
func (s *Server) article(id string) (string, int, error) {
	if _, ok := s.orch.Swarm(id); ok {
		res, done := s.orch.Result(id)
		if !done || res.Article == "" {
			return "", http.StatusConflict, errArticleNotReady
		}
		return res.Article, http.StatusOK, nil
	}
	if s.store != nil {
		a, err := s.store.GetArticle(id)
		if err != nil {
			return "", http.StatusInternalServerError, err
		}
		if a != nil {
			return a.Body, http.StatusOK, nil
		}
	}
	return "", http.StatusNotFound, fmt.Errorf("no article for swarm %s", id)
}

func (s *Server) getArticle(w http.ResponseWriter, r *http.Request) {
	body, code, err := s.article(chi.URLParam(r, "id"))
	if err != nil {
		jsonError(w, err.Error(), code)
		return
	}
	w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
	w.Write([]byte(body))
}

func (s *Server) getArticleHTML(w http.ResponseWriter, r *http.Request) {
	body, code, err := s.article(chi.URLParam(r, "id"))
	if err != nil {
		jsonError(w, err.Error(), code)
		return
	}
	html, err := article.HTML(body)
	if err != nil {
		jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write([]byte(html))
}

type backendInfo struct {
	registry.Profile
	Tier      string `json:"tier"`
	Available bool   `json:"available"`
}

func (s *Server) listBackends(w http.ResponseWriter, r *http.Request) {
	out := make([]backendInfo, 0)
	for _, id := range s.registry.IDs() {
		p, err := s.registry.Profile(id)
		if err != nil {
			continue
		}
		out = append(out, backendInfo{Profile: p, Tier: p.QualityTier.String(), Available: s.router.Available(id)})
	}
	jsonResponse(w, out)
}

func (s *Server) getStatus(w http.ResponseWriter, r *http.Request) {
	counts := make(map[swarm.Status]int)
	for _, sw := range s.orch.Swarms() {
		counts[sw.Status()]++
	}

	available := []registry.BackendID{}
	for _, id := range s.registry.IDs() {
		if s.router.Available(id) {
			available = append(available, id)
		}
	}

	jsonResponse(w, map[string]any{
		"status":   "ok",
		"version":  s.version,
		"uptime":   formatUptime(time.Since(s.startedAt)),
		"swarms":   counts,
		"backends": available,
		"store":    s.store != nil,
		"nats":     s.nats != nil && s.nats.Connected(),
	})
}

func formatUptime(d time.Duration) string {
	days := int(d.Hours()) / 24
	hours := int(d.Hours()) % 24
	minutes := int(d.Minutes()) % 60
	if days > 0 {
		return fmt.Sprintf("%dd %dh %dm", days, hours, minutes)
	}
	if hours > 0 {
		return fmt.Sprintf("%dh %dm", hours, minutes)
	}
	return fmt.Sprintf("%dm", minutes)
}

func jsonResponse(w http.ResponseWriter, data any) {
	jsonStatus(w, http.StatusOK, data)
}

func jsonStatus(w http.ResponseWriter, code int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(data)
}

func jsonError(w http.ResponseWriter, msg string, code int) {
	jsonStatus(w, code, map[string]string{"error": msg})
}

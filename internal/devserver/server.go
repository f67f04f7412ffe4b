// Package devserver hosts a stub authoring backend for local
// development and end-to-end tests.
//
// Submitted jobs progress through queued, running, and succeeded on a
// fixed schedule and the progression is published on both the status
// endpoint and the push stream, so the client's reconciliation paths
// can be exercised without a real backend.
package devserver

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/wmsyw/aiWriter-sub000/pkg/job"
	"github.com/wmsyw/aiWriter-sub000/pkg/stream"
)

// DefaultStepDelay is the pause between scripted status transitions.
const DefaultStepDelay = 500 * time.Millisecond

// Options configures the stub backend.
type Options struct {
	// StepDelay is the pause between status transitions. Zero means
	// DefaultStepDelay; tests use very small values.
	StepDelay time.Duration

	// Logger receives request and job lifecycle logs. Nil means no logging.
	Logger *zap.Logger

	// Heartbeat is the interval between stream heartbeat records.
	// Zero disables heartbeats.
	Heartbeat time.Duration
}

// Server is the stub backend.
type Server struct {
	host string
	port int
	opts Options
	log  *zap.Logger

	mu       sync.Mutex
	jobs     map[string]job.Job
	chapters map[string]map[string]any
	subs     map[int]chan []job.Job
	nextSub  int

	router chi.Router
}

// New constructs a stub backend bound to host:port. The listener is
// not opened until ListenAndServe; Handler() serves without one.
func New(host string, port int, opts Options) *Server {
	if opts.StepDelay <= 0 {
		opts.StepDelay = DefaultStepDelay
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}

	s := &Server{
		host:     host,
		port:     port,
		opts:     opts,
		log:      log,
		jobs:     map[string]job.Job{},
		chapters: map[string]map[string]any{},
		subs:     map[int]chan []job.Job{},
	}
	s.router = s.buildRouter()
	return s
}

// Handler returns the HTTP handler, for tests and embedding.
func (s *Server) Handler() http.Handler { return s.router }

// Port returns the configured port.
func (s *Server) Port() int { return s.port }

// ListenAndServe blocks serving HTTP until the listener fails.
func (s *Server) ListenAndServe() error {
	addr := fmt.Sprintf("%s:%d", s.host, s.port)
	s.log.Info("dev backend listening", zap.String("addr", addr))
	return http.ListenAndServe(addr, s.router)
}

func (s *Server) buildRouter() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.logRequests)

	r.Route("/api", func(r chi.Router) {
		r.Post("/jobs", s.handleSubmit)
		r.Get("/jobs/stream", s.handleStream)
		r.Get("/jobs/{id}", s.handleGetJob)
		r.Get("/chapters/{key}", s.handleGetChapter)
		r.Patch("/chapters/{key}", s.handlePatchChapter)
	})

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "resource not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "method not allowed")
	})
	return r
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.log.Debug("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("elapsed", time.Since(start)))
	})
}

type submitRequest struct {
	Type  job.Type       `json:"type"`
	Input map[string]any `json:"input"`
}

type jobEnvelope struct {
	Job job.Job `json:"job"`
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid request body")
		return
	}
	if _, ok := job.Registry[req.Type]; !ok {
		writeError(w, http.StatusUnprocessableEntity, "UNKNOWN_JOB_TYPE",
			fmt.Sprintf("unknown job type %q", req.Type))
		return
	}

	now := time.Now().UTC()
	j := job.Job{
		ID:        uuid.NewString(),
		Type:      req.Type,
		Status:    job.StatusQueued,
		Input:     req.Input,
		CreatedAt: now,
		UpdatedAt: now,
	}

	s.mu.Lock()
	s.jobs[j.ID] = j
	s.mu.Unlock()
	s.publish(j)

	s.log.Info("job accepted", zap.String("job_id", j.ID), zap.String("type", string(j.Type)))
	go s.runScript(j.ID)

	writeJSON(w, http.StatusAccepted, jobEnvelope{Job: j})
}

// runScript walks a job through running and succeeded.
func (s *Server) runScript(id string) {
	time.Sleep(s.opts.StepDelay)
	s.transition(id, job.StatusRunning, nil)
	time.Sleep(s.opts.StepDelay)
	s.transition(id, job.StatusSucceeded, s.scriptedOutput(id))
}

func (s *Server) scriptedOutput(id string) json.RawMessage {
	s.mu.Lock()
	j, ok := s.jobs[id]
	s.mu.Unlock()
	if !ok {
		return nil
	}
	out := map[string]any{"job_id": id}
	switch job.ClassOf(j.Type) {
	case job.ClassGeneration:
		out["content"] = "generated chapter content"
	case job.ClassBranch:
		out["branches"] = []map[string]any{
			{"content": "branch one", "continuity_score": 7.4},
			{"content": "branch two", "continuity_score": 5.2},
		}
	case job.ClassReview:
		out["dimensions"] = map[string]any{
			"plot":   map[string]any{"score": 8, "comment": "solid"},
			"pacing": map[string]any{"score": 7, "comment": "steady"},
		}
		out["avg_score"] = 7.5
	case job.ClassReport:
		out["issues"] = []string{}
		out["score"] = 8.1
	}
	raw, _ := json.Marshal(out)
	return raw
}

func (s *Server) transition(id string, status job.Status, output json.RawMessage) {
	s.mu.Lock()
	j, ok := s.jobs[id]
	if !ok {
		s.mu.Unlock()
		return
	}
	j.Status = status
	j.UpdatedAt = time.Now().UTC()
	if output != nil {
		j.Output = output
	}
	s.jobs[id] = j
	s.mu.Unlock()
	s.publish(j)
}

func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	s.mu.Lock()
	j, ok := s.jobs[id]
	s.mu.Unlock()
	if !ok {
		writeError(w, http.StatusNotFound, "NOT_FOUND", fmt.Sprintf("job %s not found", id))
		return
	}
	writeJSON(w, http.StatusOK, jobEnvelope{Job: j})
}

func (s *Server) handleGetChapter(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	s.mu.Lock()
	ch, ok := s.chapters[key]
	// Snapshot under the lock; encoding must not read a map a
	// concurrent PATCH is mutating.
	snap := copyFields(ch)
	s.mu.Unlock()
	if !ok {
		writeError(w, http.StatusNotFound, "NOT_FOUND", fmt.Sprintf("chapter %s not found", key))
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handlePatchChapter(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	var fields map[string]any
	if err := json.NewDecoder(r.Body).Decode(&fields); err != nil {
		writeError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid request body")
		return
	}

	s.mu.Lock()
	ch, ok := s.chapters[key]
	if !ok {
		ch = map[string]any{}
		s.chapters[key] = ch
	}
	for k, v := range fields {
		ch[k] = v
	}
	snap := copyFields(ch)
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, snap)
}

func copyFields(fields map[string]any) map[string]any {
	out := make(map[string]any, len(fields))
	for k, v := range fields {
		out[k] = v
	}
	return out
}

// SeedChapter installs chapter fields, for tests.
func (s *Server) SeedChapter(key string, fields map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.chapters[key] = copyFields(fields)
}

func (s *Server) publish(j job.Job) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ch := range s.subs {
		select {
		case ch <- []job.Job{j}:
		default:
			// slow subscriber, drop rather than block the scripter
		}
	}
}

func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "INTERNAL", "streaming unsupported")
		return
	}

	ch := make(chan []job.Job, 64)
	s.mu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = ch
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		delete(s.subs, id)
		s.mu.Unlock()
	}()

	w.Header().Set("Content-Type", "application/x-ndjson")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	sw := stream.NewWriter(w)
	var heartbeat <-chan time.Time
	if s.opts.Heartbeat > 0 {
		ticker := time.NewTicker(s.opts.Heartbeat)
		defer ticker.Stop()
		heartbeat = ticker.C
	}

	for {
		select {
		case <-r.Context().Done():
			return
		case jobs := <-ch:
			if err := sw.WriteBatch(stream.Batch{Jobs: jobs}); err != nil {
				return
			}
			flusher.Flush()
		case <-heartbeat:
			if err := sw.WriteHeartbeat(); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

type errorBody struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	var body errorBody
	body.Error.Code = code
	body.Error.Message = msg
	writeJSON(w, status, body)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

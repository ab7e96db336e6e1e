package server

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/bookdepot/coverdl/internal/config"
	"github.com/bookdepot/coverdl/internal/domain"
	"github.com/bookdepot/coverdl/internal/id"
	"github.com/bookdepot/coverdl/internal/pipeline"
	"github.com/bookdepot/coverdl/internal/store"
	"github.com/bookdepot/coverdl/internal/table"
)

const defaultMaxUploadBytes = 32 << 20

type Server struct {
	logger      *log.Logger
	runStore    store.RunStore
	history     store.RunStore
	publisher   ArchivePublisher
	fetcher     pipeline.Fetcher
	normalizer  pipeline.Normalizer
	rateLimiter RateLimiter
	defaults    config.PipelineConfig
	maxUpload   int64
	metrics     *metrics
	tracer      trace.Tracer
	mux         *http.ServeMux

	runSlot chan struct{}

	mu       sync.Mutex
	rows     map[string][]table.Row
	archives map[string][]byte
}

type Deps struct {
	RunStore    store.RunStore
	History     store.RunStore
	Publisher   ArchivePublisher
	Fetcher     pipeline.Fetcher
	Normalizer  pipeline.Normalizer
	RateLimiter RateLimiter
	Defaults    config.PipelineConfig
	MaxUpload   int64
}

func NewServer(logger *log.Logger, deps Deps) (*Server, error) {
	if deps.Fetcher == nil {
		return nil, fmt.Errorf("fetcher is required")
	}
	if deps.Normalizer == nil {
		return nil, fmt.Errorf("normalizer is required")
	}
	if deps.RunStore == nil {
		deps.RunStore = store.NewMemoryRunStore()
	}
	if deps.MaxUpload <= 0 {
		deps.MaxUpload = defaultMaxUploadBytes
	}

	s := &Server{
		logger:      logger,
		runStore:    deps.RunStore,
		history:     deps.History,
		publisher:   deps.Publisher,
		fetcher:     deps.Fetcher,
		normalizer:  deps.Normalizer,
		rateLimiter: deps.RateLimiter,
		defaults:    deps.Defaults,
		maxUpload:   deps.MaxUpload,
		metrics:     newMetrics(),
		tracer:      otel.Tracer("coverdl/server"),
		mux:         http.NewServeMux(),
		runSlot:     make(chan struct{}, 1),
		rows:        make(map[string][]table.Row),
		archives:    make(map[string][]byte),
	}
	s.routes()
	return s, nil
}

func (s *Server) Handler() http.Handler {
	return s.metrics.withHTTPMetrics(s.withTracing(s.withRateLimit(s.mux)))
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /{$}", s.handleForm)
	s.mux.HandleFunc("GET /healthz", s.handleHealthz)
	s.mux.HandleFunc("POST /runs", s.handleCreateRun)
	s.mux.HandleFunc("GET /runs", s.handleListRuns)
	s.mux.HandleFunc("GET /runs/{id}", s.handleGetRun)
	s.mux.HandleFunc("GET /runs/{id}/archive", s.handleArchive)
	s.mux.Handle("GET /metrics", s.metrics.metricsHandler())
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleCreateRun(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(s.maxUpload); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": fmt.Sprintf("invalid multipart form: %v", err)})
		return
	}

	file, header, err := r.FormFile("table")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "table file is required"})
		return
	}
	defer file.Close()

	req := s.requestFromForm(r)
	if err := req.Validate(); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	var tbl *table.Table
	switch strings.ToLower(filepath.Ext(header.Filename)) {
	case ".csv":
		tbl, err = table.ReadCSV(file)
	default:
		tbl, err = table.ReadXLSX(file)
	}
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": fmt.Sprintf("unreadable table: %v", err)})
		return
	}

	rows, err := tbl.Pairs(req.IdentifierColumn, req.LinkColumn)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	now := time.Now().UTC()
	run := domain.Run{
		ID:         id.New(),
		Status:     domain.RunStatusPending,
		SourceName: header.Filename,
		Request:    req,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	if err := s.runStore.Create(r.Context(), run); err != nil {
		s.logger.Printf("create run failed run_id=%s err=%v", run.ID, err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to create run"})
		return
	}
	if s.history != nil {
		if err := s.history.Create(r.Context(), run); err != nil {
			s.logger.Printf("history create failed run_id=%s err=%v", run.ID, err)
		}
	}

	s.mu.Lock()
	s.rows[run.ID] = rows
	s.mu.Unlock()

	go s.executeRun(run)

	writeJSON(w, http.StatusAccepted, map[string]any{
		"run_id":      run.ID,
		"status":      run.Status,
		"rows":        len(rows),
		"status_url":  fmt.Sprintf("/runs/%s", run.ID),
		"archive_url": fmt.Sprintf("/runs/%s/archive", run.ID),
	})
}

func (s *Server) requestFromForm(r *http.Request) domain.CreateRunRequest {
	req := domain.CreateRunRequest{
		IdentifierColumn:   formValue(r, "identifier_column", s.defaults.IdentifierColumn),
		LinkColumn:         formValue(r, "link_column", s.defaults.LinkColumn),
		ConvertWebP:        formBool(r, "convert_webp", s.defaults.ConvertWebP),
		HandleTransparency: formBool(r, "handle_transparency", s.defaults.HandleTransparency),
		Overwrite:          formBool(r, "overwrite", s.defaults.Overwrite),
		DelaySeconds:       formFloat(r, "delay_seconds", s.defaults.Delay.Seconds()),
		DefaultExtension:   formValue(r, "default_extension", s.defaults.DefaultExtension),
	}

	if allowlist := strings.TrimSpace(r.FormValue("allowlist")); allowlist != "" {
		req.Allowlist = strings.Split(allowlist, "\n")
	}
	return req
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	runs, err := s.runStore.List(r.Context())
	if err != nil {
		s.logger.Printf("list runs failed err=%v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to list runs"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"runs": runs})
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	runID := r.PathValue("id")

	run, ok, err := s.runStore.Get(r.Context(), runID)
	if err != nil {
		s.logger.Printf("fetch run failed run_id=%s err=%v", runID, err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to load run"})
		return
	}
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "run not found"})
		return
	}

	body := map[string]any{"run": run}
	if report, ok, err := s.runStore.GetReport(r.Context(), runID); err == nil && ok {
		body["report"] = report
	}
	writeJSON(w, http.StatusOK, body)
}

func (s *Server) handleArchive(w http.ResponseWriter, r *http.Request) {
	runID := r.PathValue("id")

	run, ok, err := s.runStore.Get(r.Context(), runID)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to load run"})
		return
	}
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "run not found"})
		return
	}

	switch run.Status {
	case domain.RunStatusPending, domain.RunStatusRunning:
		writeJSON(w, http.StatusConflict, map[string]string{"error": "run has not finished"})
		return
	}

	s.mu.Lock()
	archive, ok := s.archives[runID]
	s.mu.Unlock()
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "run produced no archive"})
		return
	}

	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", "covers_"+runID+".zip"))
	w.Header().Set("Content-Length", strconv.Itoa(len(archive)))
	w.Write(archive)
}

func formValue(r *http.Request, key, fallback string) string {
	value := strings.TrimSpace(r.FormValue(key))
	if value == "" {
		return fallback
	}
	return value
}

// formBool reads a checkbox-style field. The form pairs every checkbox with a
// hidden "off" value so an unchecked box still submits the key; a checked box
// submits both values and the "on" wins.
func formBool(r *http.Request, key string, fallback bool) bool {
	values, ok := r.Form[key]
	if !ok {
		return fallback
	}
	for _, value := range values {
		switch strings.ToLower(strings.TrimSpace(value)) {
		case "on", "true", "1", "yes":
			return true
		}
	}
	return false
}

func formFloat(r *http.Request, key string, fallback float64) float64 {
	value := strings.TrimSpace(r.FormValue(key))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fallback
	}
	return parsed
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

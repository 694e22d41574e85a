package api

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/bit2swaz/tmpsweep/internal/history"
	"github.com/bit2swaz/tmpsweep/internal/runner"
	"github.com/bit2swaz/tmpsweep/internal/sweeper"
)

const (
	defaultRunsLimit = 20
	maxRunsLimit     = 500
)

// FailureResult is one isolated failure in a SweepResult.
type FailureResult struct {
	Path  string `json:"path"`
	Op    string `json:"op"`
	Error string `json:"error"`
}

// SweepResult is the JSON body returned by POST /v1/sweep.
type SweepResult struct {
	Root        string          `json:"root"`
	Cutoff      time.Time       `json:"cutoff"`
	DryRun      bool            `json:"dry_run"`
	Files       int             `json:"files"`
	Bytes       int64           `json:"bytes"`
	Size        string          `json:"size"`
	DirsRemoved int             `json:"dirs_removed"`
	Undated     int             `json:"undated"`
	Excluded    int             `json:"excluded"`
	Failures    []FailureResult `json:"failures"`
	RootError   string          `json:"root_error,omitempty"`
	Canceled    bool            `json:"canceled"`
}

func newSweepResult(sum sweeper.Summary) SweepResult {
	resp := SweepResult{
		Root:        sum.Root,
		Cutoff:      sum.Cutoff,
		DryRun:      sum.DryRun,
		Files:       sum.Files,
		Bytes:       sum.Bytes,
		Size:        sweeper.FormatSize(sum.Bytes),
		DirsRemoved: sum.DirsRemoved,
		Undated:     sum.Undated,
		Excluded:    sum.Excluded,
		Failures:    make([]FailureResult, 0, len(sum.Failures)),
		Canceled:    sum.Canceled,
	}
	for _, f := range sum.Failures {
		resp.Failures = append(resp.Failures, FailureResult{Path: f.Path, Op: f.Op, Error: f.Err.Error()})
	}
	if sum.RootErr != nil {
		resp.RootError = sum.RootErr.Error()
	}
	return resp
}

// HandleSweep runs a sweep now. Query parameters: dry_run (bool) and days
// (non-negative int).
func (s *Server) HandleSweep(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Limiter != nil {
		if ok, retryAfter := s.cfg.Limiter.Allow(clientIP(r)); !ok {
			w.Header().Set("Retry-After", formatRetryAfter(retryAfter))
			http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
			return
		}
	}

	q := r.URL.Query()
	req := runner.Request{
		WindowDays:  s.cfg.WindowDays,
		Concurrency: s.cfg.Concurrency,
		Trigger:     "api",
	}

	if raw := strings.TrimSpace(q.Get("dry_run")); raw != "" {
		dryRun, err := strconv.ParseBool(raw)
		if err != nil {
			http.Error(w, "dry_run must be a boolean", http.StatusBadRequest)
			return
		}
		req.DryRun = dryRun
	}
	if raw := strings.TrimSpace(q.Get("days")); raw != "" {
		days, err := strconv.Atoi(raw)
		if err != nil || days < 0 {
			http.Error(w, "days must be a non-negative integer", http.StatusBadRequest)
			return
		}
		req.WindowDays = days
	}

	sum, err := s.runner.Run(r.Context(), req)
	if err != nil {
		if runner.IsConfigError(err) {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		s.logger.Error("manual sweep failed", zap.Error(err))
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	respondJSON(w, http.StatusOK, newSweepResult(sum), s.logger)
}

// RunsResult is the JSON body returned by GET /v1/runs.
type RunsResult struct {
	Runs []history.Run `json:"runs"`
}

// HandleRuns lists recorded runs, newest first. Query parameter: limit.
func (s *Server) HandleRuns(w http.ResponseWriter, r *http.Request) {
	if s.runs == nil {
		http.Error(w, "run history is not configured", http.StatusNotImplemented)
		return
	}

	limit := defaultRunsLimit
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			http.Error(w, "limit must be a positive integer", http.StatusBadRequest)
			return
		}
		limit = min(n, maxRunsLimit)
	}

	runs, err := s.runs.Recent(r.Context(), limit)
	if err != nil {
		s.logger.Error("list sweep runs failed", zap.Error(err))
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	if runs == nil {
		runs = []history.Run{}
	}

	respondJSON(w, http.StatusOK, RunsResult{Runs: runs}, s.logger)
}

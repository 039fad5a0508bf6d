package api

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/david/campsite-finder/internal/auth"
)

const rebuildTimeout = 2 * time.Hour

type backgroundJob struct {
	ID        string             `json:"id"`
	Kind      string             `json:"kind"`
	Status    string             `json:"status"` // running, completed, failed
	StartedBy string             `json:"startedBy,omitempty"`
	StartedAt time.Time          `json:"startedAt"`
	EndedAt   time.Time          `json:"endedAt,omitempty"`
	Result    any                `json:"result,omitempty"`
	Error     string             `json:"error,omitempty"`
	Cancel    context.CancelFunc `json:"-"`
}

func (s *Server) handleRebuildCatalog(c echo.Context) error {
	if s.deps.Builder == nil {
		return c.JSON(http.StatusServiceUnavailable, map[string]string{"error": "catalog rebuild is not configured"})
	}

	s.jobMu.Lock()
	if s.runningJob != nil && s.runningJob.Status == "running" {
		id := s.runningJob.ID
		s.jobMu.Unlock()
		return c.JSON(http.StatusConflict, map[string]string{"error": "a rebuild is already running", "jobId": id})
	}
	ctx, cancel := context.WithTimeout(context.Background(), rebuildTimeout)
	job := &backgroundJob{
		ID:        uuid.NewString(),
		Kind:      "catalog_rebuild",
		Status:    "running",
		StartedBy: auth.SubjectFromContext(c),
		StartedAt: time.Now(),
		Cancel:    cancel,
	}
	s.runningJob = job
	s.jobMu.Unlock()

	log.Printf("[Catalog] rebuild %s started by %q", job.ID, job.StartedBy)
	go s.runRebuild(ctx, job)

	return c.JSON(http.StatusAccepted, map[string]string{"jobId": job.ID, "status": "running"})
}

func (s *Server) runRebuild(ctx context.Context, job *backgroundJob) {
	defer job.Cancel()
	counts, err := s.deps.Builder.BuildAll(ctx, s.deps.Catalog)
	if s.deps.Children != nil {
		s.deps.Children.Purge()
	}

	s.jobMu.Lock()
	defer s.jobMu.Unlock()
	job.EndedAt = time.Now()
	if len(counts) > 0 {
		job.Result = counts
	}
	if err != nil {
		job.Status = "failed"
		job.Error = err.Error()
		log.Printf("[Catalog] rebuild %s failed after %s: %v", job.ID, job.EndedAt.Sub(job.StartedAt), err)
		return
	}
	job.Status = "completed"
	log.Printf("[Catalog] rebuild %s completed in %s: %v", job.ID, job.EndedAt.Sub(job.StartedAt), counts)
}

func (s *Server) handleJobStatus(c echo.Context) error {
	queried := c.Param("id")

	s.jobMu.Lock()
	defer s.jobMu.Unlock()
	job := s.runningJob
	if job == nil || job.ID != queried {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "job not found"})
	}

	resp := map[string]any{
		"id":        job.ID,
		"kind":      job.Kind,
		"status":    job.Status,
		"startedAt": job.StartedAt,
	}
	if job.StartedBy != "" {
		resp["startedBy"] = job.StartedBy
	}
	if !job.EndedAt.IsZero() {
		resp["endedAt"] = job.EndedAt
		resp["duration"] = job.EndedAt.Sub(job.StartedAt).String()
	}
	if job.Result != nil {
		resp["result"] = job.Result
	}
	if job.Error != "" {
		resp["error"] = job.Error
	}
	return c.JSON(http.StatusOK, resp)
}

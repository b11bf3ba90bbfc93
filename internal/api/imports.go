package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/david/opportunity-importer/internal/ingest"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

type importRequest struct {
	URLs []string `json:"urls" validate:"required,min=1,dive,required,url"`
}

// readImportRequest binds the body and checks every URL is a public
// http(s) address.
func (s *Server) readImportRequest(c echo.Context) ([]string, error) {
	var req importRequest
	if err := bindAndValidate(c, &req); err != nil {
		return nil, err
	}
	if len(req.URLs) > s.opts.MaxImportURLs {
		return nil, echo.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("at most %d urls per import", s.opts.MaxImportURLs))
	}
	for _, u := range req.URLs {
		if err := s.checkURL(c.Request().Context(), u); err != nil {
			if errors.Is(err, ingest.ErrBlockedHost) {
				return nil, echo.NewHTTPError(http.StatusForbidden, "Internal network access forbidden")
			}
			return nil, echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
	}
	return req.URLs, nil
}

func importErrorStatus(err error) *echo.HTTPError {
	switch {
	case errors.Is(err, ingest.ErrNoURLs):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, ingest.ErrStagingUnavailable):
		return echo.NewHTTPError(http.StatusServiceUnavailable, err.Error())
	default:
		return echo.NewHTTPError(http.StatusBadGateway, err.Error())
	}
}

func (s *Server) handleImport(c echo.Context) error {
	urls, err := s.readImportRequest(c)
	if err != nil {
		return err
	}

	res, err := s.importer.Import(c.Request().Context(), urls)
	if err != nil {
		s.logger.Error("import failed", zap.Strings("urls", urls), zap.Error(err))
		return importErrorStatus(err)
	}
	return c.JSON(http.StatusOK, res)
}

func (s *Server) handlePreview(c echo.Context) error {
	urls, err := s.readImportRequest(c)
	if err != nil {
		return err
	}

	res, err := s.importer.Preview(c.Request().Context(), urls)
	if err != nil {
		return importErrorStatus(err)
	}
	return c.JSON(http.StatusOK, res)
}

func (s *Server) handleAdminImport(c echo.Context) error {
	urls, err := s.readImportRequest(c)
	if err != nil {
		return err
	}

	s.jobMu.Lock()
	if s.runningJob != nil && s.runningJob.Status == "running" {
		job := s.runningJob
		s.jobMu.Unlock()
		return c.JSON(http.StatusConflict, map[string]interface{}{
			"error":  "An import job is already running",
			"job_id": job.ID,
		})
	}

	// Detached from the request; the job outlives the 202 response.
	jobCtx, jobCancel := context.WithTimeout(context.WithoutCancel(c.Request().Context()), s.opts.JobTimeout)

	jobID := uuid.New().String()[:8]
	job := &backgroundJob{
		ID:        jobID,
		Status:    "running",
		URLs:      urls,
		StartedAt: time.Now(),
		Cancel:    jobCancel,
	}
	s.runningJob = job
	s.jobMu.Unlock()

	go func() {
		defer jobCancel()
		log := s.logger.With(zap.String("job_id", jobID))

		res, err := s.importer.Import(jobCtx, urls)

		s.jobMu.Lock()
		defer s.jobMu.Unlock()
		job.EndedAt = time.Now()
		if err != nil {
			job.Status = "failed"
			job.Error = err.Error()
			log.Error("import job failed", zap.Error(err))
			return
		}
		job.Status = "completed"
		job.Result = res
		log.Info("import job completed",
			zap.String("outcome", string(res.Outcome)),
			zap.Int("stored", res.Stored),
			zap.Int("skipped", res.SkippedDuplicates))
	}()

	return c.JSON(http.StatusAccepted, map[string]interface{}{
		"message": "Import job started",
		"job_id":  jobID,
		"poll":    fmt.Sprintf("/api/v1/admin/job/%s", jobID),
	})
}

func (s *Server) handleJobStatus(c echo.Context) error {
	queried := c.Param("id")

	s.jobMu.Lock()
	defer s.jobMu.Unlock()
	job := s.runningJob
	if job == nil || job.ID != queried {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "job not found"})
	}

	resp := map[string]interface{}{
		"id":         job.ID,
		"status":     job.Status,
		"urls":       job.URLs,
		"started_at": job.StartedAt,
	}
	if !job.EndedAt.IsZero() {
		resp["ended_at"] = job.EndedAt
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

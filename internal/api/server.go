package api

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/david/opportunity-importer/internal/auth"
	"github.com/david/opportunity-importer/internal/db"
	"github.com/david/opportunity-importer/internal/ingest"
	"github.com/david/opportunity-importer/internal/models"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"
)

// ImportRunner runs or previews an import batch.
type ImportRunner interface {
	Import(ctx context.Context, urls []string) (*ingest.ImportResult, error)
	Preview(ctx context.Context, urls []string) (*ingest.PreviewResult, error)
}

// StagingReader is the read side of the staging store.
type StagingReader interface {
	ListTempRecords(ctx context.Context, params db.ListParams) (*db.ListResult, error)
	GetTempRecord(ctx context.Context, id uuid.UUID) (*models.TempRecord, error)
	FindSimilar(ctx context.Context, id uuid.UUID, limit int) ([]models.TempRecord, error)
	ListImportRuns(ctx context.Context, limit int) ([]models.ImportRun, error)
}

type Options struct {
	AllowedOrigins []string
	MaxImportURLs  int
	RequestTimeout time.Duration
	JobTimeout     time.Duration
}

type Server struct {
	Echo     *echo.Echo
	importer ImportRunner
	staging  StagingReader
	verifier *auth.Verifier
	admin    *auth.AdminGuard
	health   func(ctx context.Context) error
	logger   *zap.Logger
	opts     Options

	// checkURL rejects hosts that are not publicly routable.
	checkURL func(ctx context.Context, rawURL string) error

	// Background job tracking
	jobMu      sync.Mutex
	runningJob *backgroundJob
}

type backgroundJob struct {
	ID        string             `json:"id"`
	Status    string             `json:"status"` // running, completed, failed
	URLs      []string           `json:"urls"`
	StartedAt time.Time          `json:"started_at"`
	EndedAt   time.Time          `json:"ended_at,omitempty"`
	Result    any                `json:"result,omitempty"`
	Error     string             `json:"error,omitempty"`
	Cancel    context.CancelFunc `json:"-"`
}

func NewServer(importer ImportRunner, staging StagingReader, verifier *auth.Verifier, admin *auth.AdminGuard,
	health func(ctx context.Context) error, logger *zap.Logger, opts Options) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.MaxImportURLs <= 0 {
		opts.MaxImportURLs = 20
	}
	if opts.JobTimeout <= 0 {
		opts.JobTimeout = 30 * time.Minute
	}

	e := echo.New()
	e.HideBanner = true
	e.Validator = newRequestValidator()
	e.HTTPErrorHandler = errorHandler(logger)
	e.Use(middleware.RequestID())
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogURI:       true,
		LogStatus:    true,
		LogMethod:    true,
		LogLatency:   true,
		LogRequestID: true,
		LogError:     true,
		HandleError:  true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			fields := []zap.Field{
				zap.String("method", v.Method),
				zap.String("uri", v.URI),
				zap.Int("status", v.Status),
				zap.Duration("latency", v.Latency),
				zap.String("request_id", v.RequestID),
			}
			if v.Error != nil {
				logger.Warn("request failed", append(fields, zap.Error(v.Error))...)
				return nil
			}
			logger.Info("request", fields...)
			return nil
		},
	}))
	e.Use(middleware.Recover())

	allowedOrigins := opts.AllowedOrigins
	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"http://localhost:4200"}
	}
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: allowedOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost},
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization, "X-Admin-Secret"},
	}))
	if opts.RequestTimeout > 0 {
		e.Use(middleware.ContextTimeoutWithConfig(middleware.ContextTimeoutConfig{Timeout: opts.RequestTimeout}))
	}

	s := &Server{
		Echo:     e,
		importer: importer,
		staging:  staging,
		verifier: verifier,
		admin:    admin,
		health:   health,
		logger:   logger,
		opts:     opts,
		checkURL: ingest.CheckPublicURL,
	}

	s.routes()
	return s
}

func (s *Server) routes() {
	s.Echo.GET("/health", s.handleHealth)
	api := s.Echo.Group("/api/v1")

	// Protected Routes
	user := api.Group("")
	user.Use(s.verifier.Middleware)
	user.POST("/imports", s.handleImport)
	user.POST("/imports/preview", s.handlePreview)
	user.GET("/staging", s.handleListStaging)
	user.GET("/staging/:id", s.handleGetStaging)
	user.GET("/staging/:id/similar", s.handleSimilarStaging)

	// Admin Routes
	admin := api.Group("/admin")
	admin.Use(s.admin.Middleware)
	admin.POST("/imports", s.handleAdminImport)
	admin.GET("/job/:id", s.handleJobStatus)
	admin.GET("/import-runs", s.handleListImportRuns)
}

func (s *Server) handleHealth(c echo.Context) error {
	if s.health != nil {
		if err := s.health(c.Request().Context()); err != nil {
			return c.JSON(http.StatusServiceUnavailable, map[string]string{"status": "degraded", "error": err.Error()})
		}
	}
	return c.String(http.StatusOK, "OK")
}

func (s *Server) Start(addr string) error {
	return s.Echo.Start(addr)
}

// Shutdown stops accepting requests and cancels a running background job.
func (s *Server) Shutdown(ctx context.Context) error {
	s.jobMu.Lock()
	if s.runningJob != nil && s.runningJob.Cancel != nil {
		s.runningJob.Cancel()
	}
	s.jobMu.Unlock()
	return s.Echo.Shutdown(ctx)
}

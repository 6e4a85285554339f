// Package server exposes the search service over HTTP.
package server

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/recover"
	"github.com/google/uuid"
	"github.com/viant/filesearch/catalog"
	"github.com/viant/filesearch/ingest"
	"github.com/viant/filesearch/service"
	"github.com/viant/filesearch/similarity"
)

// Service is the command surface served over HTTP. *service.Service
// satisfies it.
type Service interface {
	Index(ctx context.Context, dir string) (ingest.Report, error)
	Search(ctx context.Context, query string, topK int) ([]similarity.Result, error)
	Recent(ctx context.Context, limit int) ([]catalog.FileRecord, error)
	Stats(ctx context.Context) (catalog.Stats, error)
	Forget(ctx context.Context, path string) (bool, error)
	Lookup(ctx context.Context, path string) (catalog.FileRecord, bool, error)
}

// Config holds server settings.
type Config struct {
	Addr        string
	DefaultTopK int
	RecentLimit int
	AppName     string
}

// Server is the HTTP front end.
type Server struct {
	cfg     Config
	svc     Service
	tracker *JobTracker
	logger  *slog.Logger
	app     *fiber.App

	// ctx bounds background jobs; it is cancelled by Shutdown.
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	closing bool
}

// New creates a Server and registers its routes.
func New(cfg Config, svc Service, logger *slog.Logger) *Server {
	if cfg.Addr == "" {
		cfg.Addr = ":8080"
	}
	if cfg.DefaultTopK <= 0 {
		cfg.DefaultTopK = 5
	}
	if cfg.RecentLimit <= 0 {
		cfg.RecentLimit = 20
	}
	if cfg.AppName == "" {
		cfg.AppName = "filesearch"
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		cfg:     cfg,
		svc:     svc,
		tracker: NewJobTracker(),
		logger:  logger,
		ctx:     ctx,
		cancel:  cancel,
	}
	s.app = fiber.New(fiber.Config{
		AppName:      cfg.AppName,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	})
	s.app.Use(recover.New())
	s.app.Use(s.logRequests)
	s.routes()
	return s
}

// App returns the underlying fiber application.
func (s *Server) App() *fiber.App { return s.app }

// Listen serves until the app is shut down.
func (s *Server) Listen() error {
	s.logger.Info("http server listening", "addr", s.cfg.Addr)
	return s.app.Listen(s.cfg.Addr, fiber.ListenConfig{DisableStartupMessage: true})
}

// Shutdown stops accepting requests, cancels running jobs and waits for them.
func (s *Server) Shutdown(ctx context.Context) error {
	s.stopJobs()
	s.cancel()
	err := s.app.ShutdownWithContext(ctx)
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}
	return err
}

func (s *Server) routes() {
	api := s.app.Group("/api/v1")
	api.Get("/health", s.health)
	api.Get("/search", s.search)
	api.Get("/files", s.files)
	api.Delete("/files", s.forget)
	api.Get("/files/lookup", s.lookup)
	api.Get("/stats", s.stats)
	api.Post("/index", s.startIndex)
	api.Get("/jobs", s.listJobs)
	api.Get("/jobs/:id", s.getJob)
}

func (s *Server) logRequests(c fiber.Ctx) error {
	start := time.Now()
	err := c.Next()
	s.logger.Debug("http request",
		"method", c.Method(),
		"path", c.Path(),
		"status", c.Response().StatusCode(),
		"elapsed", time.Since(start))
	return err
}

func (s *Server) health(c fiber.Ctx) error {
	return c.JSON(fiber.Map{"status": "healthy", "app": s.cfg.AppName})
}

func (s *Server) search(c fiber.Ctx) error {
	q := strings.TrimSpace(c.Query("q"))
	if q == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "query parameter q is required"})
	}
	k := queryInt(c, "k", s.cfg.DefaultTopK)
	results, err := s.svc.Search(c.Context(), q, k)
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(fiber.Map{"query": q, "k": k, "results": results})
}

func (s *Server) files(c fiber.Ctx) error {
	limit := queryInt(c, "limit", s.cfg.RecentLimit)
	records, err := s.svc.Recent(c.Context(), limit)
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(fiber.Map{"files": records})
}

func (s *Server) forget(c fiber.Ctx) error {
	removed, err := s.svc.Forget(c.Context(), c.Query("path"))
	if err != nil {
		return s.fail(c, err)
	}
	if !removed {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "file not in catalog"})
	}
	return c.JSON(fiber.Map{"removed": true})
}

func (s *Server) lookup(c fiber.Ctx) error {
	record, found, err := s.svc.Lookup(c.Context(), c.Query("path"))
	if err != nil {
		return s.fail(c, err)
	}
	if !found {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "file not in catalog"})
	}
	return c.JSON(record)
}

func (s *Server) stats(c fiber.Ctx) error {
	st, err := s.svc.Stats(c.Context())
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(st)
}

func (s *Server) startIndex(c fiber.Ctx) error {
	var body struct {
		Path string `json:"path"`
	}
	if err := c.Bind().JSON(&body); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}
	if strings.TrimSpace(body.Path) == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "path is required"})
	}

	if !s.beginJob() {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": "server is shutting down"})
	}
	job := s.tracker.Create(uuid.New().String(), body.Path)
	go s.runIndex(job.ID, body.Path)
	return c.Status(fiber.StatusAccepted).JSON(job)
}

// beginJob registers a background job unless Shutdown has started.
func (s *Server) beginJob() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closing {
		return false
	}
	s.wg.Add(1)
	return true
}

func (s *Server) stopJobs() {
	s.mu.Lock()
	s.closing = true
	s.mu.Unlock()
}

func (s *Server) runIndex(id, path string) {
	defer s.wg.Done()
	s.logger.Info("index job started", "job", id, "path", path)
	report, err := s.svc.Index(s.ctx, path)
	s.tracker.Finish(id, report, err)
	if err != nil {
		s.logger.Error("index job failed", "job", id, "path", path, "error", err)
		return
	}
	s.logger.Info("index job complete", "job", id, "embedded", report.Embedded, "failed", report.SkippedFailed)
}

func (s *Server) listJobs(c fiber.Ctx) error {
	return c.JSON(fiber.Map{"jobs": s.tracker.List()})
}

func (s *Server) getJob(c fiber.Ctx) error {
	job, ok := s.tracker.Get(c.Params("id"))
	if !ok {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "job not found"})
	}
	return c.JSON(job)
}

func (s *Server) fail(c fiber.Ctx, err error) error {
	if errors.Is(err, service.ErrInvalidArgument) {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}
	s.logger.Error("request failed", "path", c.Path(), "error", err)
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
}

// queryInt reads an integer query param with a default value.
func queryInt(c fiber.Ctx, key string, defaultVal int) int {
	v := c.Query(key)
	if v == "" {
		return defaultVal
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return n
}

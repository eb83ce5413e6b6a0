// Package server exposes the detection engine over HTTP: scan intake,
// baseline reports, quarantine records, health and metrics.
package server

import (
	"context"
	"errors"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/TryMightyAI/ragshield/pkg/baseline"
	"github.com/TryMightyAI/ragshield/pkg/config"
	"github.com/TryMightyAI/ragshield/pkg/corpus"
	"github.com/TryMightyAI/ragshield/pkg/detect"
	"github.com/TryMightyAI/ragshield/pkg/quarantine"
)

const Version = "0.1.0"

// Options wires a Server. Pipeline is required; the quarantine
// coordinator is optional and disables the record endpoints when absent.
type Options struct {
	Pipeline    *detect.Pipeline
	Coordinator *quarantine.Coordinator
	Policies    *config.Provider
	Logger      *zap.Logger
}

// Server is the HTTP gateway in front of the scoring pipeline.
type Server struct {
	app         *fiber.App
	pipeline    *detect.Pipeline
	coordinator *quarantine.Coordinator
	policies    *config.Provider
	logger      *zap.Logger
}

func New(opts Options) *Server {
	if opts.Policies == nil {
		opts.Policies = config.NewStaticProvider(config.NewDefaultPolicy())
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	s := &Server{
		app: fiber.New(fiber.Config{
			AppName: "RAG-Shield",
		}),
		pipeline:    opts.Pipeline,
		coordinator: opts.Coordinator,
		policies:    opts.Policies,
		logger:      opts.Logger,
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.app.Get("/health", func(c fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok", "version": Version})
	})

	s.app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	s.app.Post("/v1/scan", s.handleScan)
	s.app.Get("/v1/baseline/:population", s.handleBaselineReport)
	s.app.Get("/v1/quarantine", s.handleQuarantineList)
	s.app.Get("/v1/quarantine/:id", s.handleQuarantineRecord)
}

// handleScan runs one full scoring pass over the posted document and
// returns the verdict. An indeterminate pass is 422: the caller should
// retry once the failing extractor input is fixed.
func (s *Server) handleScan(c fiber.Ctx) error {
	var doc corpus.Document
	if err := c.Bind().Body(&doc); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}
	if err := doc.Validate(); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	verdict, err := s.pipeline.ScanDocument(c.Context(), doc)
	if err != nil {
		if detect.IsIncompleteEvidence(err) {
			return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{
				"error":       "scoring pass indeterminate",
				"document_id": doc.ID,
				"detail":      err.Error(),
			})
		}
		s.logger.Error("scan failed", zap.String("document_id", doc.ID), zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "scan failed"})
	}
	return c.JSON(verdict)
}

func (s *Server) handleBaselineReport(c fiber.Ctx) error {
	name := c.Params("population")
	snap, ok := s.pipeline.Tracker().SnapshotOf(name)
	if !ok {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "unknown population", "population": name})
	}

	report, err := snap.Report(s.policies.Snapshot().OutlierZ)
	if err != nil {
		if baseline.IsEmptyPopulation(err) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "population has no observations", "population": name})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(report)
}

func (s *Server) handleQuarantineList(c fiber.Ctx) error {
	if s.coordinator == nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "quarantine disabled"})
	}
	recs, err := s.coordinator.Records(c.Context())
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(fiber.Map{"records": recs, "count": len(recs)})
}

func (s *Server) handleQuarantineRecord(c fiber.Ctx) error {
	if s.coordinator == nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "quarantine disabled"})
	}
	rec, err := s.coordinator.Record(c.Context(), c.Params("id"))
	if err != nil {
		var notFound *quarantine.RecordNotFoundError
		if errors.As(err, &notFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": err.Error()})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(rec)
}

// App exposes the underlying fiber application for tests.
func (s *Server) App() *fiber.App { return s.app }

// Listen blocks serving HTTP on addr.
func (s *Server) Listen(addr string) error {
	s.logger.Info("http server starting", zap.String("addr", addr))
	return s.app.Listen(addr)
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.app.ShutdownWithContext(ctx)
}

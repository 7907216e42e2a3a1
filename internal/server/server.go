// Package server exposes the HTTP triggers: event upserts, response intake,
// check-in and check-out, direct task dispatch and the manual export run.
package server

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/roach88/surveyops/internal/model"
	"github.com/roach88/surveyops/internal/partner"
	"github.com/roach88/surveyops/internal/queue"
	"github.com/roach88/surveyops/internal/schedule"
)

// Store is the store surface the HTTP layer needs.
type Store interface {
	Ping(ctx context.Context) error
	PutEvent(ctx context.Context, e model.Event) error
	GetEvent(ctx context.Context, id string) (model.Event, error)
	PutResponse(ctx context.Context, r model.Response) error
	GetResponse(ctx context.Context, id string) (model.Response, error)
	ReadResults(ctx context.Context, eventID string) (*model.Results, error)
}

// Scheduler reacts to response triggers. *schedule.Engine implements it.
type Scheduler interface {
	OnResponseCreated(ctx context.Context, resp model.Response) (schedule.Plan, error)
	OnCheckIn(ctx context.Context, responseID string) (schedule.Plan, error)
	OnCheckOut(ctx context.Context, responseID string) (schedule.Plan, error)
}

// Exporter runs one partner export batch. *partner.Batcher implements it.
type Exporter interface {
	Run(ctx context.Context) (partner.BatchReport, error)
}

// Server wires the HTTP routes to the pipeline components.
type Server struct {
	app      *fiber.App
	store    Store
	engine   Scheduler
	exporter Exporter
	handlers map[queue.Name]queue.Handler
	ids      queue.IDGenerator
	now      func() time.Time
}

// Option configures a Server.
type Option func(*Server)

// WithExporter enables POST /exports/run.
func WithExporter(e Exporter) Option {
	return func(s *Server) { s.exporter = e }
}

// WithHandler makes a queue reachable through POST /tasks/:queue.
func WithHandler(name queue.Name, h queue.Handler) Option {
	return func(s *Server) { s.handlers[name] = h }
}

// WithIDGenerator sets the generator for response and direct task ids.
func WithIDGenerator(g queue.IDGenerator) Option {
	return func(s *Server) { s.ids = g }
}

// WithClock overrides the clock stamped on new responses.
func WithClock(now func() time.Time) Option {
	return func(s *Server) { s.now = now }
}

// New builds the fiber app and registers every route.
func New(st Store, engine Scheduler, opts ...Option) *Server {
	s := &Server{
		store:    st,
		engine:   engine,
		handlers: make(map[queue.Name]queue.Handler),
		ids:      queue.UUIDv7Generator{},
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}

	s.app = fiber.New(fiber.Config{
		AppName:               "surveyops",
		DisableStartupMessage: true,
		ReadTimeout:           30 * time.Second,
		WriteTimeout:          30 * time.Second,
	})
	s.routes()
	return s
}

func (s *Server) routes() {
	s.app.Get("/healthz", s.health)

	s.app.Put("/events/:id", s.putEvent)
	s.app.Get("/events/:id/results", s.getResults)

	s.app.Post("/responses", s.createResponse)
	s.app.Post("/responses/:id/checkin", s.checkIn)
	s.app.Post("/responses/:id/checkout", s.checkOut)

	s.app.Post("/tasks/:queue", s.dispatchTask)
	s.app.Post("/exports/run", s.runExport)
}

// App returns the underlying fiber app, mainly for app.Test in tests.
func (s *Server) App() *fiber.App { return s.app }

// Listen serves until Shutdown is called.
func (s *Server) Listen(addr string) error {
	return s.app.Listen(addr)
}

// Shutdown stops accepting connections and waits for in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.app.ShutdownWithContext(ctx)
}

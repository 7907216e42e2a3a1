package cli

import (
	"fmt"
	"log/slog"

	"github.com/roach88/surveyops/internal/checkout"
	"github.com/roach88/surveyops/internal/config"
	"github.com/roach88/surveyops/internal/email"
	"github.com/roach88/surveyops/internal/partner"
	"github.com/roach88/surveyops/internal/queue"
	"github.com/roach88/surveyops/internal/schedule"
	"github.com/roach88/surveyops/internal/store"
	"github.com/roach88/surveyops/internal/tally"
)

// app is the fully wired pipeline shared by the commands.
type app struct {
	cfg        config.Config
	store      *store.Store
	dispatcher *queue.Dispatcher
	worker     *queue.Worker
	engine     *schedule.Engine
	batcher    *partner.Batcher // nil when partner export is disabled
	handlers   map[queue.Name]queue.Handler
}

func loadConfig(opts *RootOptions) (config.Config, error) {
	cfg, err := config.Load(opts.ConfigPath, opts.EnvFile)
	if err != nil {
		return config.Config{}, WrapExitError(ExitCommandError, "failed to load config", err)
	}
	return cfg, nil
}

// openStore opens only the database, for read-only commands.
func openStore(opts *RootOptions) (*store.Store, error) {
	cfg, err := loadConfig(opts)
	if err != nil {
		return nil, err
	}
	st, err := store.Open(cfg.Database)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open database", err)
	}
	return st, nil
}

// newApp opens the store and builds every component from cfg.
func newApp(cfg config.Config) (*app, error) {
	startZone, endZone, err := cfg.Locations()
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "invalid zones", err)
	}

	slog.Debug("opening database", "path", cfg.Database)
	st, err := store.Open(cfg.Database)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open database", err)
	}

	a := &app{
		cfg:        cfg,
		store:      st,
		dispatcher: queue.NewDispatcher(st),
		handlers:   make(map[queue.Name]queue.Handler),
	}
	a.worker = queue.NewWorker(st,
		queue.WithPollInterval(cfg.PollInterval),
		queue.WithWake(a.dispatcher.Wake()),
	)

	agg := tally.NewAggregator(st, a.dispatcher)
	engineOpts := []schedule.Option{
		schedule.WithZones(schedule.Zones{Start: startZone, End: endZone}),
	}

	a.register(queue.UpdateReporting, tally.NewUpdater(st))
	a.register(queue.AutoCheckout, checkout.NewExecutor(st, a.dispatcher, cfg.SurveyBaseURL))

	if cfg.Email.APIKey != "" {
		sender := email.NewSender(
			email.NewClient(cfg.Email.BaseURL, cfg.Email.APIKey, nil),
			email.Policy{TreatProviderErrorAsFailure: cfg.Email.TreatProviderErrorAsFailure},
		)
		for _, name := range queue.EmailQueues {
			a.register(name, sender)
		}
	} else {
		slog.Warn("email API key not set: email tasks stay queued")
	}

	if cfg.Partner.Enabled() {
		client := partner.NewClient(cfg.Partner.BaseURL, cfg.Partner.Token, nil)
		uploader := partner.NewUploader(st, client)
		a.register(queue.PartnerUpload, uploader)
		engineOpts = append(engineOpts, schedule.WithUploader(uploader))
		a.batcher = partner.NewBatcher(st, client, cfg.Partner.BrandID,
			partner.WithExportWindow(cfg.Partner.ExportWindow),
			partner.WithExportPolicy(partner.ExportPolicy{MarkExportedOnFailure: cfg.Partner.MarkExportedOnFailure}),
		)
	}

	a.engine = schedule.NewEngine(st, a.dispatcher, agg, engineOpts...)
	return a, nil
}

func (a *app) register(name queue.Name, h queue.Handler) {
	a.worker.Register(name, h)
	a.handlers[name] = h
}

func (a *app) Close() error {
	if err := a.store.Close(); err != nil {
		return fmt.Errorf("close store: %w", err)
	}
	return nil
}

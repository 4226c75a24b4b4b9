package server

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"Watchdog/internal/handler/api"
	mid "Watchdog/internal/middleware"
	"Watchdog/internal/repository"
	"Watchdog/internal/usecase"
	"Watchdog/pkg/config"
	xhttp "Watchdog/pkg/http"
	pkgkafka "Watchdog/pkg/kafka"
	"Watchdog/pkg/logger"
)

// Components are the wired parts of the application. Optional parts are nil
// when their feature is disabled in config.
type Components struct {
	Config    *config.Config
	Logger    *logger.Logger
	Watchdog  *usecase.Watchdog
	Pipeline  *mid.SnapshotPipeline
	HTTP      *xhttp.Server
	Hub       *api.AlertHub
	Collector *usecase.SnapshotCollector
	Consumer  *pkgkafka.Consumer
	Handler   pkgkafka.MessageHandler
	Publisher *repository.KafkaDeliveryPublisher
}

// App encapsulates the entire application lifecycle.
type App struct {
	c    Components
	log  *logger.Logger
	subs []string
}

// New creates a new App from wired components.
func New(c Components) *App {
	if c.Logger == nil {
		c.Logger = logger.NewNop()
	}
	return &App{c: c, log: c.Logger.With("app")}
}

// Run starts every component and blocks until ctx is cancelled or an
// interrupt arrives, then shuts down.
func (a *App) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := a.Start(ctx); err != nil {
		_ = a.Shutdown(context.Background())
		return err
	}
	<-ctx.Done()
	a.log.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.shutdownTimeout())
	defer cancel()
	return a.Shutdown(shutdownCtx)
}

// Start brings components up in dependency order: delivery listeners, the
// watchdog, ingest, then HTTP.
func (a *App) Start(ctx context.Context) error {
	cfg := a.c.Config
	r := a.c.Watchdog.Router()

	if a.c.Hub != nil {
		a.subs = append(a.subs, r.Subscribe(a.c.Hub))
	}
	if a.c.Publisher != nil {
		a.subs = append(a.subs, r.Subscribe(a.c.Publisher))
		a.log.Info("publishing alert deliveries", logger.String("topic", cfg.Kafka.AlertTopic))
	}

	if err := a.c.Watchdog.Start(ctx); err != nil {
		return fmt.Errorf("start watchdog: %w", err)
	}
	if a.c.Pipeline != nil {
		a.c.Pipeline.Start(ctx)
	}

	if a.c.Collector != nil {
		if err := a.c.Collector.Start(ctx); err != nil {
			return fmt.Errorf("start collector: %w", err)
		}
		a.log.Info("collector started", logger.Strings("symbols", cfg.Symbols), logger.String("url", cfg.Feed.URL))
	}

	if a.c.Consumer != nil && a.c.Handler != nil {
		if err := a.c.Consumer.RegisterHandler(a.c.Handler); err != nil {
			return fmt.Errorf("register kafka handler: %w", err)
		}
		if err := a.c.Consumer.Start(); err != nil && !errors.Is(err, pkgkafka.ErrConsumerStarted) {
			return fmt.Errorf("start kafka consumer: %w", err)
		}
		a.log.Info("kafka consumer started", logger.String("topic", a.c.Handler.Topic()))
	}

	if a.c.HTTP != nil {
		if err := a.c.HTTP.Start(); err != nil {
			return fmt.Errorf("start http: %w", err)
		}
	}

	a.log.Info("watchdog running",
		logger.String("env", cfg.App.Environment),
		logger.String("ingest", cfg.Ingest.Type),
		logger.Duration("scan_interval", cfg.ScanInterval),
	)
	return nil
}

// Shutdown stops ingest first so no new snapshots arrive, then the scan
// loop, then delivery and HTTP. Errors are logged and the first is returned.
func (a *App) Shutdown(ctx context.Context) error {
	a.log.Info("shutting down")
	var first error
	keep := func(what string, err error) {
		if err == nil {
			return
		}
		a.log.Warn(what+" stop error", logger.Error(err))
		if first == nil {
			first = err
		}
	}

	if a.c.Collector != nil {
		keep("collector", a.c.Collector.Shutdown(ctx))
	}
	if a.c.Consumer != nil {
		keep("kafka consumer", a.c.Consumer.Stop(ctx))
	}
	if a.c.Pipeline != nil {
		a.c.Pipeline.Stop()
	}

	a.c.Watchdog.Stop()

	r := a.c.Watchdog.Router()
	for _, id := range a.subs {
		r.Unsubscribe(id)
	}
	a.subs = nil

	if a.c.HTTP != nil {
		keep("http", a.c.HTTP.Stop(ctx))
	}
	if a.c.Hub != nil {
		a.c.Hub.Close()
	}
	if a.c.Publisher != nil {
		keep("delivery publisher", a.c.Publisher.Close())
	}

	a.log.Info("shutdown complete")
	return first
}

func (a *App) shutdownTimeout() time.Duration {
	if a.c.Config != nil && a.c.Config.HTTP.ShutdownTimeout > 0 {
		return a.c.Config.HTTP.ShutdownTimeout
	}
	return 10 * time.Second
}

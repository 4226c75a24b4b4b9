package di

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"Watchdog/internal/domain/models"
	domrepo "Watchdog/internal/domain/repository"
	"Watchdog/internal/handler/api"
	mid "Watchdog/internal/middleware"
	internalrepo "Watchdog/internal/repository"
	"Watchdog/internal/service/feed"
	"Watchdog/internal/services/narrator"
	"Watchdog/internal/services/router"
	"Watchdog/internal/usecase"
	"Watchdog/pkg/cache"
	"Watchdog/pkg/config"
	xhttp "Watchdog/pkg/http"
	pkgkafka "Watchdog/pkg/kafka"
	"Watchdog/pkg/logger"
	"Watchdog/pkg/metrics"
	"Watchdog/pkg/server"
)

// ProvideLogger creates the root logger from config.
func ProvideLogger(cfg *config.Config) (*logger.Logger, error) {
	l, err := logger.New(&cfg.Log)
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	return l, nil
}

// ProvideRegistry creates the Prometheus registry served on /metrics.
func ProvideRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// ProvideMetrics creates a Prometheus metrics recorder.
func ProvideMetrics(reg *prometheus.Registry) domrepo.Metrics {
	return metrics.New(reg)
}

// ProvideCache builds the synthesis cache backend selected by cache.type.
func ProvideCache(cfg *config.Config, log *logger.Logger) (cache.Service, func(), error) {
	var svc cache.Service
	switch cfg.Cache.Type {
	case "redis", "layered":
		rc, err := cache.NewRedisCache(
			cache.WithRedisHost(cfg.Redis.Host),
			cache.WithRedisPort(cfg.Redis.Port),
			cache.WithRedisPassword(cfg.Redis.Password),
			cache.WithRedisDB(cfg.Redis.DB),
			cache.WithRedisPool(cfg.Redis.PoolSize, cfg.Redis.PoolSize/2, 5*time.Second),
			cache.WithRedisPrefix(cfg.Redis.Prefix),
		)
		if err != nil {
			return nil, nil, fmt.Errorf("redis cache: %w", err)
		}
		svc = rc
		if cfg.Cache.Type == "layered" {
			svc = cache.NewLayeredCache(rc,
				cache.WithLayeredMemorySize(cfg.Cache.MaxSize),
				cache.WithLayeredL1TTL(cfg.Cache.L1TTL),
			)
		}
	default:
		svc = cache.NewMemoryCache(cache.WithMemoryMaxSize(cfg.Cache.MaxSize), cache.WithMemoryCleanup(time.Minute))
	}
	log.Info("synthesis cache ready", logger.String("type", cfg.Cache.Type))
	cleanup := func() {
		if err := svc.Close(); err != nil {
			log.Warn("cache close", logger.Error(err))
		}
	}
	return svc, cleanup, nil
}

// ProvideSynthesisStore stores the latest synthesis per symbol in the cache.
func ProvideSynthesisStore(c cache.Service, cfg *config.Config) domrepo.SynthesisStore {
	return internalrepo.NewCacheSynthesisStore(c, cfg.Cache.SynthesisTTL)
}

// ProvideRouter creates the shared alert router.
func ProvideRouter(cfg *config.Config, log *logger.Logger, m domrepo.Metrics) *router.Router {
	return router.New(router.WithConfig(cfg.Router), router.WithLogger(log), router.WithMetrics(m))
}

func ProvideNarrator() *narrator.Narrator {
	return narrator.New()
}

// ProvideSettings maps the orchestrator section of config.
func ProvideSettings(cfg *config.Config) usecase.Settings {
	s := usecase.DefaultSettings()
	s.ScanInterval = cfg.ScanInterval
	s.PressureAlertScore = cfg.Watchdog.PressureAlertScore
	if sev, ok := models.ParseSeverity(cfg.Watchdog.AnomalyAlertSeverity); ok {
		s.AnomalyMinSeverity = sev
	}
	if sev, ok := models.ParseSeverity(cfg.Watchdog.ManipulationSeverity); ok {
		s.ManipulationMinSeverity = sev
	}
	s.NarrativeLength = narrator.Length(cfg.Watchdog.NarrativeLength)
	s.NarrativeMaxLength = cfg.Watchdog.NarrativeMaxLength
	return s
}

// ProvideWatchdog creates the orchestrator with one detector set per configured symbol.
func ProvideWatchdog(
	cfg *config.Config,
	settings usecase.Settings,
	log *logger.Logger,
	m domrepo.Metrics,
	r *router.Router,
	n *narrator.Narrator,
	store domrepo.SynthesisStore,
) *usecase.Watchdog {
	return usecase.NewWatchdog(
		usecase.WithSymbols(cfg.Symbols...),
		usecase.WithSettings(settings),
		usecase.WithDetectorConfigs(usecase.DetectorConfigs{
			Pressure:     cfg.Pressure,
			Anomaly:      cfg.Anomaly,
			Fragility:    cfg.Fragility,
			Manipulation: cfg.Manipulation,
		}),
		usecase.WithRouter(r),
		usecase.WithNarrator(n),
		usecase.WithSynthesisStore(store),
		usecase.WithMetrics(m),
		usecase.WithLogger(log),
	)
}

// ProvideSnapshotPipeline creates the validation and throttling stage shared by all ingest paths.
func ProvideSnapshotPipeline(cfg *config.Config, wd *usecase.Watchdog, m domrepo.Metrics, log *logger.Logger) *mid.SnapshotPipeline {
	return mid.NewSnapshotPipeline(wd,
		mid.WithMaxRPS(cfg.Ingest.MaxRPS, cfg.Ingest.Burst),
		mid.WithBufferSize(cfg.Ingest.BufferSize),
		mid.WithPipelineMetrics(m),
		mid.WithPipelineLogger(log),
	)
}

func ProvideAlertHub(cfg *config.Config, log *logger.Logger) *api.AlertHub {
	return api.NewAlertHub(log, cfg.Watchdog.WebSocketAlertsBuffer)
}

func ProvideWatchdogHandler(log *logger.Logger, wd *usecase.Watchdog, pipe *mid.SnapshotPipeline, hub *api.AlertHub) *api.WatchdogHandler {
	return api.NewWatchdogHandler(log, wd, pipe, hub)
}

// ProvideHTTPServer returns nil when http.enabled is false.
func ProvideHTTPServer(cfg *config.Config, log *logger.Logger, reg *prometheus.Registry, h *api.WatchdogHandler) *xhttp.Server {
	if !cfg.HTTP.Enabled {
		return nil
	}
	return xhttp.NewServer([]xhttp.Handler{h},
		xhttp.WithHost(cfg.HTTP.Host),
		xhttp.WithPort(cfg.HTTP.Port),
		xhttp.WithTimeouts(cfg.HTTP.ReadTimeout, cfg.HTTP.WriteTimeout, cfg.HTTP.ShutdownTimeout),
		xhttp.WithCORS(cfg.HTTP.CORS),
		xhttp.WithLogger(log),
		xhttp.WithPrometheus(reg, reg),
	)
}

// ProvideKafkaProducer creates the alert producer. It returns nil unless Kafka
// is enabled and deliveries are published.
func ProvideKafkaProducer(cfg *config.Config, log *logger.Logger, reg *prometheus.Registry) (*pkgkafka.Producer, error) {
	if !cfg.Kafka.Enabled || !cfg.Watchdog.PublishDeliveries {
		return nil, nil
	}
	producer, err := pkgkafka.NewProducer(
		pkgkafka.WithBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithCompression(cfg.Kafka.Compression),
		pkgkafka.WithRequiredAcks(cfg.Kafka.RequiredAcks),
		pkgkafka.WithBatch(cfg.Kafka.Producer.BatchSize, cfg.Kafka.Producer.BatchBytes, cfg.Kafka.Producer.Linger),
		pkgkafka.WithTimeouts(cfg.Kafka.Producer.WriteTimeout, cfg.Kafka.Producer.ReadTimeout),
		pkgkafka.WithMaxAttempts(cfg.Kafka.Producer.MaxAttempts),
		pkgkafka.WithAsync(cfg.Kafka.Producer.Async),
		pkgkafka.WithHashByKey(true),
		pkgkafka.WithProducerLogger(log),
		pkgkafka.WithProducerRegisterer(reg),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka producer: %w", err)
	}
	return producer, nil
}

// ProvideDeliveryPublisher owns the producer and forwards routed alerts to the alert topic.
func ProvideDeliveryPublisher(cfg *config.Config, producer *pkgkafka.Producer, m domrepo.Metrics, log *logger.Logger) *internalrepo.KafkaDeliveryPublisher {
	if producer == nil {
		return nil
	}
	return internalrepo.NewKafkaDeliveryPublisher(producer, cfg.Kafka.AlertTopic, cfg.Watchdog.WebSocketAlertsBuffer*4, m, log)
}

// ProvideKafkaConsumer creates the snapshot consumer when ingest.type is kafka.
func ProvideKafkaConsumer(cfg *config.Config, log *logger.Logger, reg *prometheus.Registry) (*pkgkafka.Consumer, error) {
	if cfg.Ingest.Type != "kafka" {
		return nil, nil
	}
	consumer, err := pkgkafka.NewConsumer(
		pkgkafka.WithConsumerBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithConsumerGroupID(cfg.Kafka.Consumer.GroupID),
		pkgkafka.WithConsumerWorkers(cfg.Kafka.Consumer.Workers),
		pkgkafka.WithConsumerBufferSize(cfg.Kafka.Consumer.BufferSize),
		pkgkafka.WithConsumerRetry(cfg.Kafka.Consumer.RetryMax, cfg.Kafka.Consumer.BackoffMin, cfg.Kafka.Consumer.BackoffMax),
		pkgkafka.WithConsumerDLQ(cfg.Kafka.Consumer.DLQTopic),
		pkgkafka.WithConsumerFetch(cfg.Kafka.Consumer.MinBytes, cfg.Kafka.Consumer.MaxBytes),
		pkgkafka.WithConsumerLogger(log),
		pkgkafka.WithConsumerRegisterer(reg),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka consumer: %w", err)
	}
	consumer.SetHook(pkgkafka.NewHookChain(pkgkafka.TraceHook()))
	return consumer, nil
}

// ProvideSnapshotHandler decodes snapshot records into the pipeline. It is
// nil unless ingest.type is kafka.
func ProvideSnapshotHandler(cfg *config.Config, pipe *mid.SnapshotPipeline, m domrepo.Metrics, log *logger.Logger) pkgkafka.MessageHandler {
	if cfg.Ingest.Type != "kafka" {
		return nil
	}
	return usecase.NewSnapshotHandler(cfg.Kafka.SnapshotTopic, pipe, m, log)
}

// ProvideSnapshotCollector streams snapshots from the websocket feed when
// ingest.type is websocket.
func ProvideSnapshotCollector(cfg *config.Config, pipe *mid.SnapshotPipeline, m domrepo.Metrics, log *logger.Logger) *usecase.SnapshotCollector {
	if cfg.Ingest.Type != "websocket" {
		return nil
	}
	stream := feed.New(feed.Config{
		URL:            cfg.Feed.URL,
		Symbols:        cfg.Symbols,
		ReconnectDelay: cfg.Feed.ReconnectDelay,
		PingInterval:   cfg.Feed.PingInterval,
		ReadTimeout:    cfg.Feed.ReadTimeout,
		BufferSize:     cfg.Ingest.BufferSize,
	}, feed.WithLogger(log))
	return usecase.NewSnapshotCollector(stream, pipe, m, log)
}

// ProvideApp creates the application server.
func ProvideApp(c server.Components) *server.App {
	return server.New(c)
}

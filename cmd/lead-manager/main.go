// cmd/lead-manager/main.go
package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"lead-engine/internal/common/aws"
	"lead-engine/internal/common/camunda"
	"lead-engine/internal/common/config"
	"lead-engine/internal/common/database"
	"lead-engine/internal/common/logger"
	"lead-engine/internal/common/observability"
	"lead-engine/internal/common/retry"
	"lead-engine/internal/crm"
	"lead-engine/internal/crm/docstore"
	"lead-engine/internal/crm/records"
	crmsync "lead-engine/internal/crm/sync"
	"lead-engine/internal/crm/zoho"
	"lead-engine/internal/lead/qualifier"
	"lead-engine/internal/lead/store"
	"lead-engine/internal/notify"
	"lead-engine/internal/nurture"

	cls "lead-engine/internal/workers/crm/crm-lead-sync"
	cl "lead-engine/internal/workers/lead/capture-lead"
	la "lead-engine/internal/workers/lead/lead-analytics"
	ql "lead-engine/internal/workers/lead/qualify-lead"
)

// handler is what every job worker package exposes.
type handler interface {
	camunda.JobHandler
	WorkerConfig() camunda.WorkerConfig
	IsEnabled() bool
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.New("info", "console").Fatal("config load failed", zap.Error(err))
	}

	zapLog, err := logger.NewWithOutput(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output)
	if err != nil {
		zapLog = logger.New(cfg.Logging.Level, cfg.Logging.Format)
	}
	defer zapLog.Sync()
	log := logger.NewZapAdapter(zapLog)

	zapLog.Info("Starting lead manager...", zap.String("environment", cfg.App.Environment))

	obs := observability.New(cfg.Observability.ServiceName)
	defer obs.Shutdown()

	tracing, err := observability.NewTracing(cfg.Observability.ServiceName, cfg.Observability.JaegerEndpoint, cfg.Observability.SampleRatio)
	if err != nil {
		zapLog.Fatal("tracing setup failed", zap.Error(err))
	}
	defer tracing.Shutdown()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// --- Redis: lead cache and nurturing queue ---
	var rdb *database.RedisClient
	if cfg.Storage.CacheEnabled || cfg.Scheduler.Enabled {
		err = database.WithBackoff(ctx, func() error {
			var err error
			rdb, err = database.NewRedis(cfg.Database.Redis)
			if err != nil {
				return err
			}
			return rdb.Ping(ctx)
		}, 10, 2*time.Second, log, "Redis connection")
		if err != nil {
			zapLog.Fatal("redis failed after retries", zap.Error(err))
		}
		defer rdb.Close()
		zapLog.Info("Redis connected successfully")
	}

	// --- Lead store ---
	leads, closeStore := buildStore(ctx, cfg, rdb, log, zapLog)
	defer closeStore()

	// --- CRM backends ---
	adapters := buildAdapters(ctx, cfg, log, zapLog)
	var syncer qualifier.Syncer
	if len(adapters) > 0 {
		manager, err := crmsync.NewManager(adapters, config.GetDuration(cfg.CRM.Sync.TimeoutMs), log, crmsync.WithObservability(obs))
		if err != nil {
			zapLog.Fatal("crm sync manager setup failed", zap.Error(err))
		}
		syncer = manager
		zapLog.Info("CRM backends configured", zap.Strings("backends", manager.Backends()))
	} else {
		zapLog.Warn("no CRM backend enabled, leads will not be synced")
	}

	// --- Notification sinks ---
	dispatcher, closeSinks := buildDispatcher(ctx, cfg, log, zapLog)
	defer closeSinks()

	// --- Qualifier ---
	criteria, err := cfg.Qualification.ToCriteria()
	if err != nil {
		zapLog.Fatal("invalid qualification criteria", zap.Error(err))
	}

	opts := []qualifier.Option{
		qualifier.WithPublisher(dispatcher),
		qualifier.WithPhoneRegion(cfg.Qualification.DefaultPhoneRegion),
	}
	if syncer != nil {
		opts = append(opts, qualifier.WithSyncer(syncer))
	}
	if cfg.Qualification.ManualMinutesPerLead > 0 {
		opts = append(opts, qualifier.WithManualMinutesPerLead(cfg.Qualification.ManualMinutesPerLead))
	}

	var nurtureWorker *nurture.Worker
	if cfg.Scheduler.Enabled {
		redisOpts := database.RedisOptions(cfg.Database.Redis)
		queueClient := nurture.NewClient(redisOpts)
		defer queueClient.Close()
		opts = append(opts, qualifier.WithScheduler(nurture.NewScheduler(queueClient, cfg.Scheduler.Queue, cfg.Scheduler.MaxRetry, log)))

		nurtureWorker = nurture.NewWorker(
			nurture.RedisClientOpt(redisOpts),
			cfg.Scheduler.Queue,
			cfg.Scheduler.Concurrency,
			nurture.NewHandler(leads, dispatcher, log),
			log,
		)
	}

	svc, err := qualifier.NewService(leads, criteria, log, opts...)
	if err != nil {
		zapLog.Fatal("qualifier setup failed", zap.Error(err))
	}

	// --- Zeebe ---
	var zeebe *camunda.Client
	err = database.WithBackoff(ctx, func() error {
		var err error
		zeebe, err = camunda.NewClientWithConfig(camunda.ConfigFrom(cfg.Camunda))
		return err
	}, 10, 2*time.Second, log, "Zeebe client initialization")
	if err != nil {
		zapLog.Fatal("zeebe client failed after retries", zap.Error(err))
	}
	defer zeebe.Close()
	zapLog.Info("Zeebe client connected successfully")

	handlers := buildHandlers(cfg, svc, log, zapLog)
	var workers []*camunda.CamundaWorker
	for _, h := range handlers {
		if !h.IsEnabled() {
			zapLog.Info("worker disabled", zap.String("taskType", h.WorkerConfig().TaskType))
			continue
		}
		w := camunda.NewWorker(h.WorkerConfig(), h, obs, log)
		w.Open(zeebe.GetClient())
		workers = append(workers, w)
	}
	zapLog.Info("Workers registered", zap.Int("count", len(workers)))

	if nurtureWorker != nil {
		go func() {
			if err := nurtureWorker.Run(ctx); err != nil {
				zapLog.Error("nurture worker failed", zap.Error(err))
				stop()
			}
		}()
	}

	// --- Health & Metrics Server ---
	server := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           opsRouter(zeebe, leads),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		zapLog.Info("Health/Metrics server listening", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zapLog.Error("Health/Metrics server failed", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	zapLog.Info("Shutdown signal received, stopping workers...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	for _, w := range workers {
		w.Close()
	}
	if err := server.Shutdown(shutdownCtx); err != nil {
		zapLog.Error("Error stopping Health/Metrics server", zap.Error(err))
	}

	zapLog.Info("Lead manager stopped")
}

func buildStore(ctx context.Context, cfg *config.Config, rdb *database.RedisClient, log logger.Logger, zapLog *zap.Logger) (store.Store, func()) {
	var (
		st      store.Store
		closeFn = func() {}
	)

	switch cfg.Storage.Driver {
	case "memory":
		st = store.NewMemory()
	default:
		var pg *database.PostgresClient
		err := database.WithBackoff(ctx, func() error {
			var err error
			pg, err = database.NewPostgres(cfg.Database.Postgres)
			if err != nil {
				return err
			}
			return pg.Ping(ctx)
		}, 15, 2*time.Second, log, "PostgreSQL connection")
		if err != nil {
			zapLog.Fatal("postgres failed after retries", zap.Error(err))
		}
		closeFn = func() { pg.Close() }

		postgres := store.NewPostgres(pg.DB)
		if err := postgres.EnsureSchema(ctx); err != nil {
			zapLog.Fatal("lead schema setup failed", zap.Error(err))
		}
		st = postgres
		zapLog.Info("PostgreSQL connected successfully")
	}

	if cfg.Storage.CacheEnabled && rdb != nil {
		st = store.NewCached(st, rdb.Client, cfg.Storage.CacheTTL, log)
	}
	return st, closeFn
}

func buildAdapters(ctx context.Context, cfg *config.Config, log logger.Logger, zapLog *zap.Logger) []crm.Adapter {
	if err := cfg.CRM.Validate(); err != nil {
		zapLog.Fatal("invalid CRM configuration", zap.Error(err))
	}

	policy := retry.Policy{
		MaxAttempts: cfg.CRM.Sync.MaxAttempts,
		Delay:       config.GetDuration(cfg.CRM.Sync.RetryDelayMs),
	}.Normalized()

	var adapters []crm.Adapter
	if z := cfg.CRM.Zoho; z.Enabled {
		adapters = append(adapters, zoho.New(zoho.Config{
			BaseURL:    z.BaseURL,
			OAuthToken: z.AuthToken,
			Module:     z.Module,
			Timeout:    config.GetDuration(z.TimeoutMs),
			RateLimit:  z.RateLimit,
			Retry:      policy,
		}, log))
	}

	if r := cfg.CRM.Records; r.Enabled {
		adapter, err := records.New(records.Config{
			BaseURL:   r.BaseURL,
			APIKey:    r.APIKey,
			BaseID:    r.BaseID,
			Table:     r.Table,
			Timeout:   config.GetDuration(r.TimeoutMs),
			RateLimit: r.RateLimit,
			Retry:     policy,
		}, log)
		if err != nil {
			zapLog.Fatal("records backend setup failed", zap.Error(err))
		}
		adapters = append(adapters, adapter)
	}

	if d := cfg.CRM.Docstore; d.Enabled {
		var es *database.ElasticsearchClient
		err := database.WithBackoff(ctx, func() error {
			var err error
			es, err = database.NewElasticsearch(cfg.Database.Elasticsearch)
			if err != nil {
				return err
			}
			return es.Ping(ctx)
		}, 15, 2*time.Second, log, "Elasticsearch connection")
		if err != nil {
			zapLog.Fatal("elasticsearch failed after retries", zap.Error(err))
		}
		adapter := docstore.New(es.Client, docstore.Config{
			Index:   d.Index,
			Refresh: d.Refresh,
			Retry:   policy,
		}, log)
		if err := adapter.EnsureIndex(ctx); err != nil {
			zapLog.Fatal("docstore index setup failed", zap.String("index", d.Index), zap.Error(err))
		}
		adapters = append(adapters, adapter)
		zapLog.Info("Elasticsearch connected successfully")
	}

	return adapters
}

func buildDispatcher(ctx context.Context, cfg *config.Config, log logger.Logger, zapLog *zap.Logger) (*notify.Dispatcher, func()) {
	n := cfg.Notifications
	templates := make(map[string]notify.Template, len(n.Templates))
	for name, t := range n.Templates {
		templates[name] = notify.Template{Subject: t.Subject, Body: t.Body}
	}

	var (
		sinks   []notify.Sink
		closers []func() error
	)

	if n.Email.Enabled {
		ses, err := aws.NewSESClient(ctx, n.AWS.Region)
		if err != nil {
			zapLog.Fatal("ses client setup failed", zap.Error(err))
		}
		sinks = append(sinks, notify.NewSESNotifier(ses, notify.EmailConfig{
			FromEmail:  n.Email.FromEmail,
			SalesInbox: n.Email.SalesInbox,
			Templates:  templates,
		}, log))
	}

	if n.SMS.Enabled {
		sns, err := aws.NewSNSClient(ctx, n.AWS.Region)
		if err != nil {
			zapLog.Fatal("sns client setup failed", zap.Error(err))
		}
		sinks = append(sinks, notify.NewSNSNotifier(sns, notify.SMSConfig{
			SalesPhone: n.SMS.SalesPhone,
			SenderID:   n.SMS.SenderID,
			Template:   templates[notify.TemplateSalesAlert],
		}))
	}

	if n.AMQP.Enabled {
		var publisher *notify.AMQPPublisher
		err := database.WithBackoff(ctx, func() error {
			var (
				err     error
				closeFn func() error
			)
			publisher, closeFn, err = notify.DialAMQP(n.AMQP.URL, n.AMQP.Exchange)
			if err == nil {
				closers = append(closers, closeFn)
			}
			return err
		}, 10, 2*time.Second, log, "AMQP connection")
		if err != nil {
			zapLog.Fatal("amqp failed after retries", zap.Error(err))
		}
		sinks = append(sinks, publisher)
	}

	dispatcher := notify.NewDispatcher(log, sinks...)
	zapLog.Info("Notification sinks configured", zap.Strings("sinks", dispatcher.Sinks()))

	return dispatcher, func() {
		for _, c := range closers {
			if err := c(); err != nil {
				zapLog.Warn("closing notification sink failed", zap.Error(err))
			}
		}
	}
}

func buildHandlers(cfg *config.Config, svc *qualifier.Service, log logger.Logger, zapLog *zap.Logger) []handler {
	capture, err := cl.NewHandler(cl.HandlerOptions{AppConfig: cfg, Service: svc, Logger: log})
	if err != nil {
		zapLog.Fatal("capture-lead handler setup failed", zap.Error(err))
	}
	qualify, err := ql.NewHandler(ql.HandlerOptions{AppConfig: cfg, Service: svc, Logger: log})
	if err != nil {
		zapLog.Fatal("qualify-lead handler setup failed", zap.Error(err))
	}
	sync, err := cls.NewHandler(cls.HandlerOptions{AppConfig: cfg, Service: svc, Logger: log})
	if err != nil {
		zapLog.Fatal("crm-lead-sync handler setup failed", zap.Error(err))
	}
	analytics, err := la.NewHandler(la.HandlerOptions{AppConfig: cfg, Service: svc, Logger: log})
	if err != nil {
		zapLog.Fatal("lead-analytics handler setup failed", zap.Error(err))
	}
	return []handler{capture, qualify, sync, analytics}
}

type pinger interface {
	Ping(ctx context.Context) error
}

func opsRouter(zeebe *camunda.Client, leads store.Store) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeStatus(w, http.StatusOK, "healthy")
	})
	r.Get("/ready", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
		defer cancel()

		if err := zeebe.HealthCheck(ctx); err != nil {
			writeStatus(w, http.StatusServiceUnavailable, "zeebe unavailable")
			return
		}
		if p, ok := leads.(pinger); ok {
			if err := p.Ping(ctx); err != nil {
				writeStatus(w, http.StatusServiceUnavailable, "store unavailable")
				return
			}
		}
		writeStatus(w, http.StatusOK, "ready")
	})
	r.Handle("/metrics", promhttp.Handler())
	return r
}

func writeStatus(w http.ResponseWriter, code int, status string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"status": status})
}

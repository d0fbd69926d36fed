// Command sokoflow runs the commerce workflow orchestration service: it
// accepts inbound conversation events over HTTP, advances the matching
// workflow through the orchestrator, and delivers outbound messages through
// the configured gateway.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/redis/go-redis/v9"
	mongodriver "go.mongodb.org/mongo-driver/v2/mongo"
	mongooptions "go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.temporal.io/sdk/client"
	"goa.design/clue/log"

	"github.com/sokoflow/sokoflow/config"
	pulsearchive "github.com/sokoflow/sokoflow/features/archive/pulse"
	pulseclients "github.com/sokoflow/sokoflow/features/archive/pulse/clients/pulse"
	gormcatalog "github.com/sokoflow/sokoflow/features/catalog/gorm"
	temporaldispatch "github.com/sokoflow/sokoflow/features/dispatch/temporal"
	redislease "github.com/sokoflow/sokoflow/features/lease/redis"
	"github.com/sokoflow/sokoflow/features/notify/whatsapp"
	anthropicreason "github.com/sokoflow/sokoflow/features/reason/anthropic"
	bedrockreason "github.com/sokoflow/sokoflow/features/reason/bedrock"
	"github.com/sokoflow/sokoflow/features/reason/middleware"
	openaireason "github.com/sokoflow/sokoflow/features/reason/openai"
	mongosession "github.com/sokoflow/sokoflow/features/session/mongo"
	redissession "github.com/sokoflow/sokoflow/features/session/redis"
	"github.com/sokoflow/sokoflow/runtime/dispatch"
	"github.com/sokoflow/sokoflow/runtime/orchestrator"
	"github.com/sokoflow/sokoflow/runtime/reason"
	"github.com/sokoflow/sokoflow/runtime/session"
	"github.com/sokoflow/sokoflow/runtime/session/inmem"
	"github.com/sokoflow/sokoflow/runtime/telemetry"
)

func main() {
	var (
		configF = flag.String("config", "", "Path to YAML configuration file")
		dbgF    = flag.Bool("debug", false, "Enable debug logs")
	)
	flag.Parse()

	format := log.FormatJSON
	if log.IsTerminal() {
		format = log.FormatTerminal
	}
	ctx := log.Context(context.Background(), log.WithFormat(format))
	if *dbgF {
		ctx = log.Context(ctx, log.WithDebug())
		log.Debugf(ctx, "debug logs enabled")
	}

	cfg, err := config.Load(*configF)
	if err != nil {
		log.Fatalf(ctx, err, "load configuration")
	}
	log.Print(ctx, log.KV{K: "http-addr", V: cfg.HTTP.Addr},
		log.KV{K: "session-backend", V: cfg.Session.Backend},
		log.KV{K: "reason-provider", V: cfg.Reason.Provider})

	logger := telemetry.NewClueLogger()
	metrics := telemetry.NewClueMetrics()
	tracer := telemetry.NewClueTracer()

	// Shared Redis connection for the session cache, lease, and archive. The
	// lease and archive are wired whenever the connection exists, whatever
	// the session backend.
	var rdb *redis.Client
	needsRedis := cfg.Redis.Enabled || cfg.Session.Backend == "redis"
	if needsRedis {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			log.Fatalf(ctx, err, "connect redis at %s", cfg.Redis.Addr)
		}
		defer rdb.Close()
	}

	store, cleanup, err := buildSessionStore(ctx, cfg, rdb)
	if err != nil {
		log.Fatalf(ctx, err, "build session store")
	}
	defer cleanup()

	reasoner, err := buildReasoner(ctx, cfg)
	if err != nil {
		log.Fatalf(ctx, err, "build reasoner")
	}
	if tpm := cfg.Reason.TokensPerMinute; tpm > 0 {
		limiter := middleware.NewAdaptiveRateLimiter(tpm, tpm*2)
		reasoner = limiter.Middleware()(reasoner)
	}

	catalog, err := gormcatalog.Open(cfg.Catalog.Driver, cfg.Catalog.DSN)
	if err != nil {
		log.Fatalf(ctx, err, "open catalog")
	}

	opts := orchestrator.Options{
		Sessions:      store,
		Reasoner:      reasoner,
		Catalog:       catalog,
		ReasonTimeout: cfg.Reason.Timeout,
		Logger:        logger,
		Metrics:       metrics,
		Tracer:        tracer,
	}
	if rdb != nil {
		lease, err := redislease.New(redislease.Options{Client: rdb})
		if err != nil {
			log.Fatalf(ctx, err, "build lease")
		}
		opts.Lease = lease

		pc, err := pulseclients.New(pulseclients.Options{Redis: rdb})
		if err != nil {
			log.Fatalf(ctx, err, "build pulse client")
		}
		archiver, err := pulsearchive.New(pulsearchive.Options{Client: pc})
		if err != nil {
			log.Fatalf(ctx, err, "build archiver")
		}
		opts.Archiver = archiver
	}
	if cfg.WhatsApp.AccessToken != "" && cfg.WhatsApp.PhoneNumberID != "" {
		notifier, err := whatsapp.New(whatsapp.Options{
			AccessToken:   cfg.WhatsApp.AccessToken,
			PhoneNumberID: cfg.WhatsApp.PhoneNumberID,
		})
		if err != nil {
			log.Fatalf(ctx, err, "build whatsapp notifier")
		}
		opts.Notifier = notifier
	}
	orch, err := orchestrator.New(opts)
	if err != nil {
		log.Fatalf(ctx, err, "build orchestrator")
	}

	background, failures, stopDispatch, err := buildDispatcher(ctx, cfg, orch, logger, metrics)
	if err != nil {
		log.Fatalf(ctx, err, "build dispatcher")
	}
	defer stopDispatch()

	mux := http.NewServeMux()
	srv := &server{
		orch:       orch,
		background: background,
		verify:     cfg.WhatsApp.VerifyToken,
		appSecret:  cfg.WhatsApp.AppSecret,
		store:      store,
		failures:   failures,
	}
	srv.register(mux)

	httpServer := &http.Server{
		Addr:         cfg.HTTP.Addr,
		Handler:      log.HTTP(ctx)(mux),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
	}

	errc := make(chan error)
	go func() {
		c := make(chan os.Signal, 1)
		signal.Notify(c, syscall.SIGINT, syscall.SIGTERM)
		errc <- fmt.Errorf("%s", <-c)
	}()
	go func() {
		log.Printf(ctx, "HTTP server listening on %s", cfg.HTTP.Addr)
		errc <- httpServer.ListenAndServe()
	}()

	log.Printf(ctx, "exiting (%v)", <-errc)
	shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Errorf(ctx, err, "http shutdown")
	}
	log.Printf(ctx, "exited")
}

// buildSessionStore selects the session backend. The returned cleanup closes
// backend connections owned by the store.
func buildSessionStore(ctx context.Context, cfg *config.Config, rdb *redis.Client) (session.Store, func(), error) {
	switch cfg.Session.Backend {
	case "memory":
		return inmem.New(), func() {}, nil
	case "redis":
		store, err := redissession.New(redissession.Options{Client: rdb, TTL: cfg.Session.TTL})
		return store, func() {}, err
	case "mongo":
		mc, err := mongodriver.Connect(mongooptions.Client().ApplyURI(cfg.Session.Mongo.URI))
		if err != nil {
			return nil, nil, fmt.Errorf("connect mongo: %w", err)
		}
		cleanup := func() { _ = mc.Disconnect(context.Background()) }
		store, err := mongosession.New(mongosession.Options{
			Client:     mc,
			Database:   cfg.Session.Mongo.Database,
			Collection: cfg.Session.Mongo.Collection,
		})
		if err != nil {
			cleanup()
			return nil, nil, err
		}
		return store, cleanup, nil
	}
	return nil, nil, fmt.Errorf("unknown session backend %q", cfg.Session.Backend)
}

// buildReasoner selects the model provider.
func buildReasoner(ctx context.Context, cfg *config.Config) (reason.Reasoner, error) {
	switch cfg.Reason.Provider {
	case "openai":
		return openaireason.NewFromAPIKey(cfg.Reason.APIKey, cfg.Reason.Model)
	case "anthropic":
		return anthropicreason.NewFromAPIKey(cfg.Reason.APIKey, cfg.Reason.Model)
	case "bedrock":
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
		if err != nil {
			return nil, fmt.Errorf("load aws config: %w", err)
		}
		return bedrockreason.New(bedrockreason.Options{
			Runtime:      bedrockruntime.NewFromConfig(awsCfg),
			DefaultModel: cfg.Reason.Model,
		})
	}
	return nil, fmt.Errorf("unknown reason provider %q", cfg.Reason.Provider)
}

// enqueuer abstracts the two background dispatch backends for the HTTP layer.
type enqueuer interface {
	Enqueue(ctx context.Context, ev orchestrator.Event) error
}

type queueEnqueuer struct{ q *dispatch.Queue }

func (e queueEnqueuer) Enqueue(_ context.Context, ev orchestrator.Event) error {
	return e.q.Enqueue(ev)
}

// buildDispatcher wires either the in-process queue or the Temporal backend.
// The failures accessor is only available for the in-process queue; Temporal
// deployments inspect failures through its own tooling.
func buildDispatcher(ctx context.Context, cfg *config.Config, orch *orchestrator.Orchestrator, logger telemetry.Logger, metrics telemetry.Metrics) (enqueuer, func() []failureView, func(), error) {
	switch cfg.Dispatch.Mode {
	case "inprocess":
		q, err := dispatch.New(dispatch.Options{
			Handler: orch,
			Workers: cfg.Dispatch.Workers,
			Buffer:  cfg.Dispatch.Buffer,
			Logger:  logger,
			Metrics: metrics,
		})
		if err != nil {
			return nil, nil, nil, err
		}
		q.Start(ctx)
		stop := func() {
			drainCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			if err := q.Stop(drainCtx); err != nil {
				log.Errorf(ctx, err, "dispatch drain")
			}
		}
		failures := func() []failureView {
			recs := q.Failures()
			out := make([]failureView, 0, len(recs))
			for _, f := range recs {
				out = append(out, failureView{
					Key:      f.Key.String(),
					Error:    f.Err.Error(),
					Attempts: f.Attempts,
				})
			}
			return out
		}
		return queueEnqueuer{q: q}, failures, stop, nil
	case "temporal":
		tc, err := client.Dial(client.Options{
			HostPort:  cfg.Dispatch.Temporal.HostPort,
			Namespace: cfg.Dispatch.Temporal.Namespace,
		})
		if err != nil {
			return nil, nil, nil, fmt.Errorf("dial temporal: %w", err)
		}
		d, err := temporaldispatch.New(temporaldispatch.Options{
			Client:    tc,
			TaskQueue: cfg.Dispatch.Temporal.TaskQueue,
		})
		if err != nil {
			tc.Close()
			return nil, nil, nil, err
		}
		w := temporaldispatch.NewWorker(tc, cfg.Dispatch.Temporal.TaskQueue, &temporaldispatch.Activities{Handler: orch})
		if err := w.Start(); err != nil {
			tc.Close()
			return nil, nil, nil, fmt.Errorf("start temporal worker: %w", err)
		}
		stop := func() {
			w.Stop()
			tc.Close()
		}
		return d, nil, stop, nil
	}
	return nil, nil, nil, fmt.Errorf("unknown dispatch mode %q", cfg.Dispatch.Mode)
}

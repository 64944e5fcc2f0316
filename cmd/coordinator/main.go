package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"google.golang.org/grpc"

	"github.com/Strob0t/CodeForge/internal/adapter/credentialstore"
	"github.com/Strob0t/CodeForge/internal/adapter/gitlocal"
	"github.com/Strob0t/CodeForge/internal/adapter/grpchealth"
	gridhttp "github.com/Strob0t/CodeForge/internal/adapter/http"
	"github.com/Strob0t/CodeForge/internal/adapter/jobschema"
	"github.com/Strob0t/CodeForge/internal/adapter/memgridregistry"
	"github.com/Strob0t/CodeForge/internal/adapter/memjobregistry"
	"github.com/Strob0t/CodeForge/internal/adapter/memledger"
	"github.com/Strob0t/CodeForge/internal/adapter/nats"
	"github.com/Strob0t/CodeForge/internal/adapter/otel"
	"github.com/Strob0t/CodeForge/internal/adapter/redisheartbeat"
	"github.com/Strob0t/CodeForge/internal/adapter/ristretto"
	"github.com/Strob0t/CodeForge/internal/adapter/s3resultstore"
	"github.com/Strob0t/CodeForge/internal/adapter/ws"
	"github.com/Strob0t/CodeForge/internal/auditlog"
	"github.com/Strob0t/CodeForge/internal/config"
	"github.com/Strob0t/CodeForge/internal/git"
	"github.com/Strob0t/CodeForge/internal/logger"
	"github.com/Strob0t/CodeForge/internal/middleware"
	"github.com/Strob0t/CodeForge/internal/resilience"
	"github.com/Strob0t/CodeForge/internal/secrets"
	"github.com/Strob0t/CodeForge/internal/service/coordinator"
	"github.com/Strob0t/CodeForge/internal/service/scheduler"
)

func main() {
	if err := run(); err != nil {
		slog.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	log, closeLog := logger.New(cfg.Logging)
	defer closeLog.Close()
	slog.SetDefault(log)

	ctx := context.Background()

	shutdownOtel, err := otel.Setup(ctx, otel.Config{
		ServiceName:    "grid-coordinator",
		ServiceVersion: "dev",
		OTLPEndpoint:   cfg.Otel.OTLPEndpoint,
		Enabled:        cfg.Otel.Enabled,
	})
	if err != nil {
		return fmt.Errorf("otel: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownOtel(shutdownCtx)
	}()

	// --- Infrastructure ---

	queue, err := nats.Connect(ctx, cfg.NATS.URL)
	if err != nil {
		return fmt.Errorf("nats: %w", err)
	}
	defer func() { _ = queue.Close() }()

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer func() { _ = redisClient.Close() }()
	heartbeatMonitor := redisheartbeat.New(redisClient, cfg.Redis.HeartbeatTTL)

	l1Cache, err := ristretto.New(cfg.Credential.L1MaxSizeMiB * 1024 * 1024)
	if err != nil {
		return fmt.Errorf("ristretto: %w", err)
	}
	defer l1Cache.Close()

	vault, err := secrets.NewVault(secrets.EnvLoader("GRID_SECRET_STORE_TOKEN", "GRID_SECRET_STORE_URL"))
	if err != nil {
		return fmt.Errorf("secrets vault: %w", err)
	}
	fetchSecret := func(_ context.Context, name string) ([]byte, error) {
		v := vault.Get(name)
		if v == "" {
			return nil, fmt.Errorf("secret %q not found", name)
		}
		return []byte(v), nil
	}
	credentials := credentialstore.New(fetchSecret, l1Cache)

	secretBreaker := resilience.NewBreaker(cfg.Breaker.MaxFailures, cfg.Breaker.Timeout)
	s3Breaker := resilience.NewBreaker(cfg.Breaker.MaxFailures, cfg.Breaker.Timeout)

	results, err := s3resultstore.New(ctx, s3resultstore.Config{
		Endpoint:        cfg.S3.Endpoint,
		Bucket:          cfg.S3.Bucket,
		Region:          cfg.S3.Region,
		AccessKeyID:     cfg.S3.AccessKeyID,
		SecretAccessKey: cfg.S3.SecretAccessKey,
		UseSSL:          cfg.S3.UseSSL,
		Prefix:          "results/",
	})
	if err != nil {
		return fmt.Errorf("s3 result store: %w", err)
	}

	schema, err := jobschema.New(cfg.Coordinator.JobSchemaPath)
	if err != nil {
		return fmt.Errorf("job schema: %w", err)
	}

	audit := auditlog.NewRecorder(cfg.Coordinator.AuditLogSize)

	var streamHub *ws.Hub
	streamHub = ws.NewHub("grid-coordinator", func(jobID string, msg ws.Message) {
		var out ws.TaskOutputEvent
		if err := json.Unmarshal(msg.Payload, &out); err != nil {
			slog.Warn("dropping malformed agent stream message", "job_id", jobID, "error", err)
			return
		}
		audit.Record(jobID, "stream", out.WorkerID, out.Stream+": "+out.Line)
		streamHub.BroadcastToJob(context.Background(), jobID, msg)
	})

	gitPool := git.NewPool(cfg.Git.MaxConcurrent)
	gitResolver := gitlocal.NewProvider(gitPool)

	// --- Coordinator ---

	coord := coordinator.New(coordinator.Deps{
		Jobs:          memjobregistry.New(),
		Grid:          memgridregistry.New(),
		Ledger:        memledger.New(),
		Credentials:   credentials,
		Heartbeat:     heartbeatMonitor,
		Queue:         queue,
		Results:       results,
		Schema:        schema,
		Audit:         audit,
		Git:           gitResolver,
		SecretBreaker: secretBreaker,
		S3Breaker:     s3Breaker,
		Log:           log,
	})

	sched := scheduler.New(coord, coord, coord, cfg.Coordinator.SchedulerTickRPS, cfg.Coordinator.SchedulerTickBurst)

	schedCtx, cancelSched := context.WithCancel(ctx)
	defer cancelSched()
	wake := make(chan struct{}, 1)
	go sched.Run(schedCtx, wake)
	go coord.WatchLostAgents(schedCtx)
	heartbeatMonitor.Start(schedCtx)

	// --- gRPC health server ---

	health := grpchealth.New()
	grpcServer := grpc.NewServer()
	health.Register(grpcServer, "grid-coordinator")

	healthLis, err := net.Listen("tcp", cfg.Coordinator.HealthGRPCAddr)
	if err != nil {
		return fmt.Errorf("health listener: %w", err)
	}
	go func() {
		slog.Info("starting grpc health server", "addr", cfg.Coordinator.HealthGRPCAddr)
		if err := grpcServer.Serve(healthLis); err != nil {
			slog.Error("grpc health server failed", "error", err)
		}
	}()
	defer grpcServer.GracefulStop()

	// --- HTTP ---

	kv, err := queue.KV(ctx, cfg.Idempotency.Bucket, cfg.Idempotency.TTL)
	if err != nil {
		return fmt.Errorf("idempotency kv: %w", err)
	}

	rateLimiter := middleware.NewRateLimiter(cfg.Rate.RequestsPerSecond, cfg.Rate.Burst)
	stopCleanup := rateLimiter.StartCleanup(cfg.Rate.CleanupInterval, cfg.Rate.MaxIdleTime)
	defer stopCleanup()

	handlers := gridhttp.NewHandlers(coord)

	r := chi.NewRouter()
	r.Use(gridhttp.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(chimw.Timeout(30 * time.Second))
	r.Use(gridhttp.Logger)
	r.Use(gridhttp.Metrics)
	r.Use(otel.HTTPMiddleware("grid-coordinator"))
	r.Use(rateLimiter.Handler)

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/ws/stream", streamHub.HandleWS)

	gridhttp.MountRoutes(r, handlers, middleware.Idempotency(kv))
	gridhttp.MountSchedulerRoutes(r, handlers)

	srv := &http.Server{
		Addr:              cfg.Coordinator.BindAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGTERM)

	go func() {
		slog.Info("starting coordinator", "addr", cfg.Coordinator.BindAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server failed", "error", err)
		}
	}()

	<-done
	slog.Info("shutting down coordinator")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	return srv.Shutdown(shutdownCtx)
}

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"expenseflow/internal/audit"
	auditkafka "expenseflow/internal/audit/kafka"
	auditmem "expenseflow/internal/audit/store/memory"
	auditpg "expenseflow/internal/audit/store/postgres"
	claimshandler "expenseflow/internal/claims/handler"
	"expenseflow/internal/claims/ledger"
	claimsmetrics "expenseflow/internal/claims/metrics"
	claimstore "expenseflow/internal/claims/store"
	"expenseflow/internal/claims/workflow"
	"expenseflow/internal/directory"
	"expenseflow/internal/jwttoken"
	"expenseflow/internal/platform/config"
	"expenseflow/internal/platform/httpserver"
	"expenseflow/internal/platform/logger"
	"expenseflow/internal/platform/metrics"
	"expenseflow/internal/platform/postgres"
	"expenseflow/internal/platform/redis"
	ruleshandler "expenseflow/internal/rules/handler"
	rulesservice "expenseflow/internal/rules/service"
	rulestore "expenseflow/internal/rules/store"
	httptransport "expenseflow/internal/transport/http"
)

// main wires the dependency graph and owns the process lifecycle. Business
// logic lives in the internal services; nothing here makes domain decisions.
func main() {
	cfg := config.FromEnv()
	log := logger.New()

	if err := run(context.Background(), cfg, log); err != nil {
		log.Error("server exited", "error", err.Error())
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Server, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := postgres.Open(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	if db != nil {
		defer db.Close()
		if err := postgres.EnsureSchema(ctx, db); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}

	redisClient, err := redis.New(cfg.Redis)
	if err != nil {
		return fmt.Errorf("connect redis: %w", err)
	}
	if redisClient != nil {
		defer redisClient.Close()
	}

	// Store selection: Postgres when DATABASE_URL is set, in-memory
	// otherwise. The in-memory stores serve local development and tests;
	// they forget everything on restart.
	var (
		ruleStore  rulesservice.Store
		claims     workflow.ClaimStore
		decisions  workflow.DecisionLedger
		users      directory.Store
		auditStore audit.Store
		outbox     auditkafka.Outbox
		transactor workflow.Transactor = workflow.NopTransactor{}
	)
	if db != nil {
		ruleStore = rulestore.NewPostgres(db)
		claims = claimstore.NewPostgres(db)
		decisions = ledger.NewPostgres(db)
		users = directory.NewPostgres(db)
		pgAudit := auditpg.New(db)
		auditStore = pgAudit
		outbox = pgAudit
		transactor = workflow.NewSQLTransactor(db)
		log.Info("using postgres stores")
	} else {
		ruleStore = rulestore.NewInMemory()
		claims = claimstore.NewInMemory()
		decisions = ledger.NewInMemory()
		users = directory.NewInMemory()
		auditStore = auditmem.New()
		log.Warn("DATABASE_URL not set, using in-memory stores")
	}

	auditor := audit.NewPublisher(auditStore)

	var statusCache workflow.StatusCache
	if redisClient != nil {
		statusCache = workflow.NewRedisStatusCache(redisClient.Client, cfg.StatusCacheTTL)
		log.Info("status cache enabled", "ttl", cfg.StatusCacheTTL.String())
	}

	jwtService := jwttoken.NewJWTService(cfg.JWTSigningKey, "expenseflow", "expenseflow-api")
	jwtValidator := jwttoken.NewJWTServiceAdapter(jwtService)

	httpMetrics := metrics.New()
	workflowMetrics := claimsmetrics.New()

	directoryService := directory.NewService(users, jwtService, auditor)
	resolver := directory.NewResolver(users)
	rulesService := rulesservice.NewService(ruleStore, auditor)
	workflowService := workflow.NewService(
		claims,
		decisions,
		rulesService,
		resolver,
		auditor,
		transactor,
		statusCache,
		workflowMetrics,
		log,
	)

	checks := map[string]httptransport.HealthChecker{}
	if db != nil {
		checks["postgres"] = db.PingContext
	}
	if redisClient != nil {
		checks["redis"] = redisClient.Health
	}

	router := httptransport.NewRouter(httptransport.Deps{
		Directory: directory.NewHandler(directoryService, log, httpMetrics, jwtValidator),
		Rules:     ruleshandler.New(rulesService, log, httpMetrics, jwtValidator),
		Claims:    claimshandler.New(workflowService, log, httpMetrics, jwtValidator),
		Checks:    checks,
	})

	srv := httpserver.New(cfg.Addr, router)

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info("starting expenseflow", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	// The audit relay ships outbox rows to Kafka. It needs the durable
	// outbox, so it only runs alongside Postgres.
	if len(cfg.Kafka.Brokers) > 0 && outbox != nil {
		kafkaClient, err := auditkafka.NewClient(cfg.Kafka.Brokers)
		if err != nil {
			return fmt.Errorf("connect kafka: %w", err)
		}
		defer kafkaClient.Close()
		if err := auditkafka.EnsureTopic(ctx, kafkaClient, cfg.Kafka.AuditTopic); err != nil {
			return fmt.Errorf("ensure audit topic: %w", err)
		}
		relay := auditkafka.NewRelay(kafkaClient, outbox, cfg.Kafka.AuditTopic, log)
		g.Go(func() error { return relay.Run(ctx) })
		log.Info("audit relay started", "topic", cfg.Kafka.AuditTopic)
	} else if len(cfg.Kafka.Brokers) > 0 {
		log.Warn("KAFKA_BROKERS set without DATABASE_URL, audit relay disabled")
	}

	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		log.Info("shutting down")
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

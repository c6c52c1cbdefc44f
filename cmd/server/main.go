// Command server starts the interview engine HTTP server.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	ai "github.com/prepwise/interview-engine/internal/adapter/ai"
	"github.com/prepwise/interview-engine/internal/adapter/ai/provider"
	httpserver "github.com/prepwise/interview-engine/internal/adapter/httpserver"
	"github.com/prepwise/interview-engine/internal/adapter/observability"
	"github.com/prepwise/interview-engine/internal/adapter/repo/memory"
	"github.com/prepwise/interview-engine/internal/adapter/repo/postgres"
	"github.com/prepwise/interview-engine/internal/adapter/repo/redisstore"
	tikaext "github.com/prepwise/interview-engine/internal/adapter/textextractor/tika"
	"github.com/prepwise/interview-engine/internal/app"
	"github.com/prepwise/interview-engine/internal/config"
	"github.com/prepwise/interview-engine/internal/domain"
	"github.com/prepwise/interview-engine/internal/pipeline"
	"github.com/prepwise/interview-engine/internal/usecase"
)

// jobStore is the full repository surface main needs: the domain port plus
// the maintenance operations used by the sweeper.
type jobStore interface {
	domain.JobRepository
	app.Maintainer
}

// redisPinger adapts *redis.Client to the readiness check interface.
type redisPinger struct{ c *redis.Client }

func (r redisPinger) Ping(ctx context.Context) app.RedisPingResult { return r.c.Ping(ctx) }

func buildProviders(ctx context.Context, cfg config.Config) []domain.ProviderClient {
	var clients []domain.ProviderClient
	for _, name := range cfg.ProviderOrder {
		switch strings.ToLower(strings.TrimSpace(name)) {
		case "groq":
			if cfg.GroqAPIKey == "" {
				continue
			}
			c, err := provider.NewOpenAICompat("groq", cfg.GroqAPIKey, cfg.GroqBaseURL, cfg.GroqModel)
			if err != nil {
				slog.Error("groq client init failed", slog.Any("error", err))
				continue
			}
			clients = append(clients, c)
		case "together":
			if cfg.TogetherAPIKey == "" {
				continue
			}
			c, err := provider.NewOpenAICompat("together", cfg.TogetherAPIKey, cfg.TogetherBaseURL, cfg.TogetherModel)
			if err != nil {
				slog.Error("together client init failed", slog.Any("error", err))
				continue
			}
			clients = append(clients, c)
		case "gemini":
			if cfg.GeminiAPIKey == "" {
				continue
			}
			c, err := provider.NewGemini(ctx, cfg.GeminiAPIKey, cfg.GeminiModel)
			if err != nil {
				slog.Error("gemini client init failed", slog.Any("error", err))
				continue
			}
			clients = append(clients, c)
		case "anthropic":
			if cfg.AnthropicAPIKey == "" {
				continue
			}
			c, err := provider.NewAnthropic(cfg.AnthropicAPIKey, cfg.AnthropicModel)
			if err != nil {
				slog.Error("anthropic client init failed", slog.Any("error", err))
				continue
			}
			clients = append(clients, c)
		default:
			slog.Warn("unknown provider in PROVIDER_ORDER", slog.String("provider", name))
		}
	}
	return clients
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := observability.SetupLogger(cfg)
	slog.SetDefault(logger)

	// Register all Prometheus metrics once per process so that /metrics
	// exposes HTTP, provider and job instrumentation.
	observability.InitMetrics()

	shutdownTracer, err := observability.SetupTracing(cfg)
	if err != nil {
		slog.Error("failed to setup tracing", slog.Any("error", err))
	}
	defer func() {
		if shutdownTracer != nil {
			_ = shutdownTracer(context.Background())
		}
	}()

	ctx := context.Background()

	// Job store selection
	var (
		jobs    jobStore
		dbCheck func(context.Context) error
	)
	var redisCheck func(context.Context) error
	switch strings.ToLower(cfg.JobStore) {
	case "postgres":
		pool, perr := postgres.NewPool(ctx, cfg.DBURL)
		if perr != nil {
			slog.Error("db connect failed", slog.Any("error", perr))
			os.Exit(1)
		}
		defer pool.Close()
		jobs = postgres.NewJobsRepo(pool)
		dbCheck, _, _ = app.BuildReadinessChecks(cfg, pool, nil)
	case "redis":
		opt, perr := redis.ParseURL(cfg.RedisURL)
		if perr != nil {
			slog.Error("redis url invalid", slog.Any("error", perr))
			os.Exit(1)
		}
		rdb := redis.NewClient(opt)
		defer func() { _ = rdb.Close() }()
		jobs = redisstore.NewJobsRepo(rdb, time.Duration(cfg.DataRetentionDays)*24*time.Hour)
		_, redisCheck, _ = app.BuildReadinessChecks(cfg, nil, redisPinger{rdb})
	case "memory":
		jobs = memory.NewJobsRepo()
		slog.Warn("using in-memory job store; jobs are lost on restart")
	default:
		slog.Error("unknown job store", slog.String("job_store", cfg.JobStore))
		os.Exit(1)
	}
	_, _, tikaCheck := app.BuildReadinessChecks(cfg, nil, nil)

	// Provider chain in configured fallback order
	clients := buildProviders(ctx, cfg)
	if len(clients) == 0 {
		slog.Error("no providers configured; set at least one provider API key")
		os.Exit(1)
	}
	router := ai.NewRouter(clients...)
	slog.Info("provider chain initialized", slog.Any("providers", router.Providers()))

	parser := ai.NewRepairParser()
	gen := &pipeline.Generator{
		Router:        router,
		Parser:        parser,
		QuestionCount: cfg.QuestionCount,
		MaxRetries:    cfg.MaxRetries,
		RetryWait:     cfg.RetryWait(),
	}
	ev := &pipeline.Evaluator{
		Router:     router,
		Parser:     parser,
		SkillCount: 5,
		MaxRetries: cfg.MaxRetries,
		RetryWait:  cfg.RetryWait(),
	}
	runner := &pipeline.Runner{
		Jobs:      jobs,
		Generator: gen,
		Evaluator: ev,
		Deadline:  cfg.PipelineDeadline,
	}

	// Background maintenance: fail stale jobs, purge expired terminal jobs
	sweepCtx, stopSweeper := context.WithCancel(ctx)
	defer stopSweeper()
	sweeper := app.NewSweeper(jobs,
		cfg.PipelineDeadline+cfg.StaleJobGrace,
		cfg.SweepInterval,
		time.Duration(cfg.DataRetentionDays)*24*time.Hour,
		cfg.CleanupInterval)
	go sweeper.Run(sweepCtx)

	// Usecases
	genSvc := usecase.NewGenerateService(jobs, runner)
	evalSvc := usecase.NewEvaluateService(jobs, runner)
	statusSvc := usecase.NewStatusService(jobs)
	cleanupSvc := usecase.NewCleanupService(jobs)

	// External text extractor (Apache Tika)
	ext := tikaext.New(cfg.TikaURL)

	srv := httpserver.NewServer(cfg, genSvc, evalSvc, statusSvc, cleanupSvc, ext, dbCheck, redisCheck, tikaCheck)
	handler := app.BuildRouter(cfg, srv)

	srvHTTP := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           handler,
		ReadTimeout:       cfg.HTTPReadTimeout,
		WriteTimeout:      cfg.HTTPWriteTimeout,
		IdleTimeout:       cfg.HTTPIdleTimeout,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Graceful shutdown
	errCh := make(chan error, 1)
	go func() {
		slog.Info("http server starting", slog.Int("port", cfg.Port))
		errCh <- srvHTTP.ListenAndServe()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		slog.Info("shutdown signal received", slog.String("signal", sig.String()))
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server error", slog.Any("error", err))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ServerShutdownTimeout)
	defer cancel()
	_ = srvHTTP.Shutdown(shutdownCtx)
	stopSweeper()
	// Let in-flight pipeline jobs write their terminal state before exit.
	runner.Wait()
}

package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bryanwahyu/finsight/internal/application"
	appai "github.com/bryanwahyu/finsight/internal/application/ai"
	appanalysis "github.com/bryanwahyu/finsight/internal/application/analysis"
	"github.com/bryanwahyu/finsight/internal/config"
	domai "github.com/bryanwahyu/finsight/internal/domain/ai"
	domain "github.com/bryanwahyu/finsight/internal/domain/analysis"
	"github.com/bryanwahyu/finsight/internal/infra/ai/openai"
	"github.com/bryanwahyu/finsight/internal/infra/ai/prompt"
	"github.com/bryanwahyu/finsight/internal/infra/executor/process"
	"github.com/bryanwahyu/finsight/internal/infra/httpserver"
	"github.com/bryanwahyu/finsight/internal/infra/workfile"
	"github.com/bryanwahyu/finsight/internal/logger"
	"github.com/bryanwahyu/finsight/internal/middleware"
)

func main() {
	logger.Init(logger.FromEnv())
	log := logger.Named("api")

	// path config.yaml
	path := "config.yaml"
	if v := os.Getenv("CONFIG_PATH"); v != "" {
		path = v
	}

	cfg, err := config.Load(path)
	if err != nil {
		log.Fatal().Err(err).Str("path", path).Msg("config load error")
	}
	if err := middleware.ValidateWorkingFile(cfg.Analysis.WorkingFile); err != nil {
		log.Fatal().Err(err).Msg("invalid working file")
	}

	// init runner
	runner := process.NewRunner(cfg.Analysis.Command, cfg.Analysis.Args, cfg.Analysis.WorkDir, cfg.Analysis.Env)
	runner.MaxStdout = cfg.Analysis.MaxOutput
	if p, err := runner.LookPath(); err != nil {
		log.Warn().Err(err).Str("command", cfg.Analysis.Command).Msg("analysis command not found, uploads will fail")
	} else {
		log.Info().Str("command", p).Strs("args", cfg.Analysis.Args).Msg("analysis command resolved")
	}

	// init service
	svc := appanalysis.NewService(runner, workfile.NewWriter(), application.SystemClock{}, appanalysis.Options{
		Layout:        domain.Layout(cfg.Analysis.Layout),
		WorkDir:       cfg.Analysis.WorkDir,
		WorkingFile:   cfg.Analysis.WorkingFile,
		MaxConcurrent: cfg.Analysis.MaxConcurrent,
		Timeout:       cfg.Analysis.Timeout,
		QueueTimeout:  cfg.Analysis.QueueTimeout,
	})

	var explainer domai.Client = prompt.LocalExplainer{}
	if cfg.AI.APIKey != "" {
		explainer = openai.NewClient(cfg.AI.APIKey, cfg.AI.Model)
	}
	aiSvc := appai.NewService(explainer)

	var limiter *middleware.RateLimiter
	if cfg.Server.RateLimit.Capacity > 0 {
		limiter = middleware.NewRateLimiter(cfg.Server.RateLimit.Capacity, cfg.Server.RateLimit.RefillRate)
		defer limiter.Stop()
	}

	handler := httpserver.NewRouter(svc, aiSvc, httpserver.Options{
		AllowedOrigins: cfg.Server.AllowedOrigins,
		MaxBodyBytes:   cfg.Server.MaxBodyBytes,
		SlowRequest:    5 * time.Second,
		Limiter:        limiter,
		HealthChecks: map[string]middleware.HealthChecker{
			"analysis_command": middleware.CommandChecker{LookPath: runner.LookPath},
			"work_dir":         middleware.WorkDirChecker{Dir: cfg.Analysis.WorkDir},
		},
	})

	// the handler blocks for the slot wait and the whole analysis
	writeTimeout := cfg.WriteTimeout()

	addr := cfg.Addr()
	srv := &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: writeTimeout,
		IdleTimeout:  60 * time.Second,
	}

	// run server
	go func() {
		log.Info().Str("addr", addr).Str("layout", string(svc.Layout())).Str("working_file", svc.SharedPath()).Msg("server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	// graceful shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop
	log.Info().Msg("shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("shutdown error")
	}
}

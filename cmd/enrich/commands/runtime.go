package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/MikeSquared-Agency/enrich/internal/anthropic"
	"github.com/MikeSquared-Agency/enrich/internal/api"
	"github.com/MikeSquared-Agency/enrich/internal/config"
	"github.com/MikeSquared-Agency/enrich/internal/events"
	"github.com/MikeSquared-Agency/enrich/internal/extractor"
	"github.com/MikeSquared-Agency/enrich/internal/logging"
	"github.com/MikeSquared-Agency/enrich/internal/pipeline"
	"github.com/MikeSquared-Agency/enrich/internal/progress"
	"github.com/MikeSquared-Agency/enrich/internal/slack"
	"github.com/MikeSquared-Agency/enrich/internal/tracker"
)

const shutdownTimeout = 10 * time.Second

// runtime holds everything one command invocation shares: config, logger,
// model client, tracker, and the optional event, status and Slack outlets.
type runtime struct {
	cfg    config.Config
	logger *slog.Logger
	deps   pipeline.Deps

	logFile io.Closer
	nats    *events.Client
	status  *api.Server
	slack   *slack.Poster
}

// outcome is what a command reports back for the run summary.
type outcome struct {
	interrupted bool
	failures    []string
}

// loadConfig reads .env and the environment, then applies flag overrides.
func loadConfig(opts *options, applyInput func(*config.Config, string)) (config.Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return config.Config{}, fmt.Errorf("load .env: %w", err)
	}

	cfg := config.Load()
	if opts.outputDir != "" {
		cfg.ResultsDir = opts.outputDir
	}
	if opts.workers > 0 {
		cfg.Workers = opts.workers
	}
	if opts.input != "" && applyInput != nil {
		applyInput(&cfg, opts.input)
	}

	if err := cfg.Validate(); err != nil {
		return config.Config{}, err
	}
	if cfg.AnthropicAPIKey == "" {
		return config.Config{}, errors.New("ANTHROPIC_API_KEY is required")
	}
	return cfg, nil
}

func newRuntime(ctx context.Context, cmd *cobra.Command, command string, cfg config.Config) (*runtime, error) {
	logger, logFile, err := logging.Setup(cfg.LogLevel, cfg.ResultsDir, cmd.OutOrStdout())
	if err != nil {
		return nil, err
	}
	logger = logger.With("command", command)
	logger.Info("enrich starting", "version", versionInfo.Version, "model", cfg.Model, "workers", cfg.Workers, "results_dir", cfg.ResultsDir)

	llm := anthropic.NewClient(cfg.AnthropicAPIKey, cfg.Model)
	llm.SetBaseURL(cfg.AnthropicBaseURL)

	tr := tracker.New(cfg.MaxAttempts, cfg.RetryDelay, logger)
	run := progress.NewRun(command, tr)

	rt := &runtime{cfg: cfg, logger: logger, logFile: logFile}

	var pub events.Publisher
	if cfg.NatsURL != "" {
		client, err := events.NewClient(ctx, cfg.NatsURL, cfg.NatsToken, logger)
		if err != nil {
			logger.Warn("nats unavailable, events disabled", "error", err)
		} else {
			rt.nats = client
			pub = client
			logger.Info("nats connected", "url", cfg.NatsURL)
		}
	}

	if cfg.StatusPort > 0 {
		rt.status = api.NewServer(cfg.StatusPort, run, logger)
		go func() {
			if err := rt.status.Start(); err != nil {
				logger.Error("status API error", "error", err)
			}
		}()
	}

	if cfg.SlackBotToken != "" && cfg.SlackChannel != "" {
		rt.slack = slack.NewPoster(cfg.SlackBotToken, cfg.SlackChannel, logger)
		logger.Info("slack poster ready", "channel", cfg.SlackChannel)
	}

	rt.deps = pipeline.Deps{
		Extractor: extractor.New(llm, logger),
		Tracker:   tr,
		Run:       run,
		Events:    events.NewEmitter(pub, logger),
		Logger:    logger,
	}
	return rt, nil
}

// finish reports the run and releases the runtime's resources.
func (rt *runtime) finish(o outcome) {
	run := rt.deps.Run
	snap := run.Snapshot()
	elapsed := run.Elapsed()

	rt.deps.Events.RunCompleted(events.RunCompleted{
		RunID:       snap.RunID,
		Command:     snap.Command,
		Documents:   snap.DocumentsDone,
		Records:     snap.Records,
		TotalCost:   snap.Usage.TotalCost,
		ElapsedSecs: elapsed.Seconds(),
		Interrupted: o.interrupted,
	})

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	summary := progress.FormatSummary(snap, elapsed)
	if rt.slack != nil {
		if _, err := rt.slack.PostRunSummary(ctx, summary, o.failures); err != nil {
			rt.logger.Warn("failed to post run summary", "error", err)
		}
	}
	rt.logger.Info("run summary",
		"run_id", snap.RunID,
		"done", snap.DocumentsDone,
		"total", snap.DocumentsTotal,
		"records", snap.Records,
		"calls", snap.Usage.Calls,
		"input_tokens", snap.Usage.InputTokens,
		"output_tokens", snap.Usage.OutputTokens,
		"total_cost", snap.Usage.TotalCost,
		"elapsed", elapsed.Round(time.Millisecond),
		"interrupted", o.interrupted,
	)

	if rt.status != nil {
		if err := rt.status.Shutdown(ctx); err != nil {
			rt.logger.Warn("status API shutdown", "error", err)
		}
	}
	if rt.nats != nil {
		rt.nats.Close()
	}
	rt.logFile.Close()
}

// signalContext is cancelled by the first SIGINT or SIGTERM. After that the
// handler is released, so a second signal terminates the process.
func signalContext(parent context.Context, logger *slog.Logger) (context.Context, func()) {
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			stop()
			if parent.Err() == nil {
				logger.Warn("interrupt received, finishing in-flight work and saving results; interrupt again to abort")
			}
		case <-done:
		}
	}()
	return ctx, func() {
		close(done)
		stop()
	}
}

// execute wires a runtime, runs body under interrupt handling and reports
// the outcome.
func execute(cmd *cobra.Command, command string, opts *options, applyInput func(*config.Config, string), body func(ctx context.Context, rt *runtime) (outcome, error)) error {
	cfg, err := loadConfig(opts, applyInput)
	if err != nil {
		return err
	}

	rt, err := newRuntime(cmd.Context(), cmd, command, cfg)
	if err != nil {
		return err
	}

	ctx, release := signalContext(cmd.Context(), rt.logger)
	defer release()

	o, err := body(ctx, rt)
	if err != nil {
		rt.logger.Error("run failed", "error", err)
	}
	if ctx.Err() != nil {
		o.interrupted = true
	}
	rt.finish(o)
	return err
}

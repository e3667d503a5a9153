package cmd

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/prepstand/interviewd/internal/ai"
	"github.com/prepstand/interviewd/internal/ai/gemini"
	"github.com/prepstand/interviewd/internal/interview"
	"github.com/prepstand/interviewd/internal/logger"
	"github.com/prepstand/interviewd/internal/secrets"
	"github.com/prepstand/interviewd/internal/server"
)

const defaultListen = ":8080"

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the interviewd HTTP API",
	Run: func(_ *cobra.Command, _ []string) {
		serve()
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringP("listen", "l", "", "address to listen on (default :8080)")

	viper.BindPFlag("server.listen", serveCmd.Flags().Lookup("listen"))
}

func serve() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	zlog, err := logger.New(viper.GetBool("json"), viper.GetBool("debug"))
	if err != nil {
		log.Fatalf("creating a logger: %s", err)
	}

	config, err := getConfig()
	if err != nil {
		zlog.Fatal("getting a config", zap.Error(err))
	}

	if config == nil {
		zlog.Fatal("config is required")
	}

	zlog.Info("starting interviewd", zap.String("version", version))

	interviewer, err := newInterviewer(ctx, config.AI, zlog)
	if err != nil {
		zlog.Fatal("building the interviewer", zap.Error(err))
	}

	registry, orchestrator := buildCore(config.Interview, interviewer, zlog)
	go registry.Run(ctx)

	listen := defaultListen
	if config.Server != nil && config.Server.Listen != "" {
		listen = config.Server.Listen
	}

	maxTurns, maxTurnsLimit := turnLimits(config.Interview)

	srv := server.New(server.Config{
		Addr:            listen,
		DefaultMaxTurns: maxTurns,
		MaxTurnsCeiling: maxTurnsLimit,
	}, registry, orchestrator, zlog)

	if err := srv.Run(ctx); err != nil {
		zlog.Fatal("http server failed", zap.Error(err))
	}
}

func buildCore(cfg *InterviewConfig, interviewer ai.Interviewer, zlog *zap.Logger) (*interview.Registry, *interview.Orchestrator) {
	var (
		sessionTTL     = interview.DefaultTTL
		sweepInterval  = interview.DefaultSweepInterval
		maxAnswerBytes = interview.DefaultMaxAnswerBytes
	)

	if cfg != nil {
		if cfg.SessionTTL > 0 {
			sessionTTL = cfg.SessionTTL
		}
		if cfg.SweepInterval > 0 {
			sweepInterval = cfg.SweepInterval
		}
		if cfg.MaxAnswerBytes > 0 {
			maxAnswerBytes = cfg.MaxAnswerBytes
		}
	}

	registry := interview.NewRegistry(sessionTTL, sweepInterval, zlog)
	orchestrator := interview.NewOrchestrator(interviewer, zlog, maxAnswerBytes)

	return registry, orchestrator
}

func turnLimits(cfg *InterviewConfig) (defaultTurns, limit int) {
	defaultTurns = 5
	limit = 20

	if cfg != nil {
		if cfg.MaxTurns > 0 {
			defaultTurns = cfg.MaxTurns
		}
		if cfg.MaxTurnsLimit > 0 {
			limit = cfg.MaxTurnsLimit
		}
	}

	return defaultTurns, limit
}

func newInterviewer(ctx context.Context, cfg *AIConfig, zlog *zap.Logger) (ai.Interviewer, error) {
	if cfg == nil || cfg.Gemini == nil {
		return nil, errors.New("gemini configuration is required under the ai section")
	}

	provider := strings.TrimSpace(strings.ToLower(cfg.Provider))
	if provider != "" && provider != "gemini" {
		return nil, fmt.Errorf("unsupported ai provider: %s", cfg.Provider)
	}

	apiKey, err := secrets.Load(secrets.Source{
		Name:  "gemini api key",
		Value: cfg.Gemini.APIKey,
		File:  cfg.Gemini.APIKeyFile,
		Env:   "GEMINI_API_KEY",
	})
	if err != nil {
		return nil, fmt.Errorf("%w (set ai.gemini.api-key-file or GEMINI_API_KEY_FILE)", err)
	}

	genLogger := zlog.With(
		zap.String(logger.FieldProvider, "gemini"),
		zap.String(logger.FieldModel, cfg.Gemini.Model),
		zap.Int("ai_retry_attempts", cfg.Gemini.MaxRetries),
	)

	generator, err := gemini.NewGenerator(ctx, apiKey, cfg.Gemini.Model, cfg.Gemini.MaxRetries, cfg.Gemini.Timeout, genLogger)
	if err != nil {
		return nil, err
	}

	return gemini.NewInterviewer(generator, zlog, cfg.Gemini.MaxLogLength), nil
}

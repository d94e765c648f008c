package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/clinika/medanswer/internal/config"
	"github.com/clinika/medanswer/internal/httpapi"
	"github.com/clinika/medanswer/internal/llm"
	"github.com/clinika/medanswer/internal/pipeline"
	"github.com/clinika/medanswer/internal/search"
	"github.com/clinika/medanswer/internal/session"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger, err := buildLogger(cfg.Logging)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	// Lexicon store with hot reload
	lexicons, err := config.NewLexiconStore(cfg.Lexicon.Path, logger)
	if err != nil {
		logger.Fatal("Failed to load lexicon", zap.Error(err))
	}
	if err := lexicons.Watch(); err != nil {
		logger.Warn("Lexicon watcher failed, reloads disabled", zap.Error(err))
	}
	defer lexicons.Stop()

	// Session store. Startup proceeds without it; answers run statelessly
	// until Redis comes back.
	var sessions *session.Manager
	sessions, err = session.NewManager(
		cfg.Redis.Addr,
		cfg.RedisPassword(),
		cfg.Redis.DB,
		session.Options{TTL: cfg.Session.TTL, MaxHistory: cfg.Session.MaxHistory},
		logger,
	)
	if err != nil {
		logger.Warn("Session store unavailable, running stateless", zap.Error(err))
		sessions = nil
	} else {
		defer sessions.Close()
	}

	providers := buildProviders(cfg.LLM.Providers, logger)
	if len(providers) == 0 {
		logger.Fatal("No generative providers configured")
	}
	chain := llm.NewChain(logger, providers...)

	searchClient := search.NewClient(search.Options{
		Endpoint:  cfg.Search.Endpoint,
		APIKeyEnv: cfg.Search.APIKeyEnv,
		Timeout:   cfg.Search.Timeout,
	}, logger)

	var prober pipeline.LinkProber
	if cfg.Search.ProbeLinks {
		prober = search.NewProber(cfg.Search.ProbeTimeout, logger)
	}
	cascade := pipeline.NewCascade(searchClient, pipeline.CascadeOptions{
		TrustedScopeID: cfg.Search.TrustedScopeID,
		BroadScopeID:   cfg.Search.BroadScopeID,
		TrustedDomains: cfg.Search.TrustedDomains,
		Prober:         prober,
	}, logger)

	resolver := pipeline.NewTopicResolver(logger,
		pipeline.NewLLMTopicStrategy(chain, 5*time.Second),
		pipeline.NewGazetteerTopicStrategy(lexicons.Get),
		pipeline.LastWordTopicStrategy{},
	)

	synth := pipeline.NewSynthesizer(chain, pipeline.SynthesizerOptions{
		Temperature:     cfg.LLM.Temperature,
		MaxOutputTokens: cfg.LLM.MaxOutputTokens,
		HistoryWindow:   cfg.Pipeline.HistoryWindow,
	}, logger)

	p := pipeline.New(
		pipeline.NewSafetyFilter(lexicons.Get),
		resolver,
		pipeline.NewRewriter(lexicons.Get),
		cascade,
		synth,
		pipeline.NewEvaluator(lexicons.Get),
		pipeline.PipelineOptions{
			ResultCount:    cfg.Search.ResultCount,
			EscalatedCount: cfg.Search.EscalatedCount,
			FilterCited:    cfg.Pipeline.FilterCited,
		},
		logger,
	)

	// Prometheus metrics endpoint
	go func() {
		http.Handle("/metrics", promhttp.Handler())
		addr := fmt.Sprintf(":%d", cfg.Server.MetricsPort)
		logger.Info("Metrics server listening", zap.String("address", addr))
		if err := http.ListenAndServe(addr, nil); err != nil {
			logger.Error("Failed to start metrics server", zap.Error(err))
		}
	}()

	handler := httpapi.NewAnswerHandler(p, sessions, logger)
	srv := httpapi.StartServer(cfg.Server.Port, handler, logger)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan
	logger.Info("Shutting down answer service")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Failed to shutdown HTTP server", zap.Error(err))
	}
}

func buildLogger(cfg config.LoggingConfig) (*zap.Logger, error) {
	zcfg := zap.NewProductionConfig()
	if cfg.Format == "console" {
		zcfg = zap.NewDevelopmentConfig()
	}
	if cfg.Level != "" {
		level, err := zap.ParseAtomicLevel(cfg.Level)
		if err != nil {
			return nil, fmt.Errorf("parse log level: %w", err)
		}
		zcfg.Level = level
	}
	return zcfg.Build()
}

func buildProviders(configs []config.ProviderConfig, logger *zap.Logger) []llm.Provider {
	providers := make([]llm.Provider, 0, len(configs))
	for _, pc := range configs {
		switch pc.Kind {
		case "gemini":
			providers = append(providers, llm.NewGemini(llm.GeminiOptions{
				Name:      pc.Name,
				Endpoint:  pc.Endpoint,
				Model:     pc.Model,
				APIKeyEnv: pc.APIKeyEnv,
				Timeout:   pc.Timeout,
				RPM:       pc.RPM,
			}, logger))
		case "openai":
			providers = append(providers, llm.NewOpenAI(llm.OpenAIOptions{
				Name:      pc.Name,
				Endpoint:  pc.Endpoint,
				Model:     pc.Model,
				APIKeyEnv: pc.APIKeyEnv,
				Timeout:   pc.Timeout,
				RPM:       pc.RPM,
			}, logger))
		default:
			logger.Warn("Unknown provider kind, skipping", zap.String("kind", pc.Kind))
		}
	}
	return providers
}

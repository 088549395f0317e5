package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/banklens/enrichcascade/internal/api"
	"github.com/banklens/enrichcascade/internal/config"
	"github.com/banklens/enrichcascade/internal/graph"
	"github.com/banklens/enrichcascade/internal/jobs"
	"github.com/banklens/enrichcascade/internal/llmclient"
	"github.com/banklens/enrichcascade/internal/orchestrator"
	"github.com/banklens/enrichcascade/internal/providers"
	"github.com/banklens/enrichcascade/internal/receiptingest"
	"github.com/banklens/enrichcascade/internal/store"
	"github.com/banklens/enrichcascade/internal/subscription"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
)

func main() {
	var (
		httpAddr    = flag.String("http-addr", "", "HTTP server address (overrides HTTP_ADDR)")
		showVersion = flag.Bool("version", false, "Show version and exit")
	)
	flag.Parse()

	if *showVersion {
		fmt.Println("enrichcascade v1.0.0")
		os.Exit(0)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	if *httpAddr != "" {
		cfg.HTTPAddr = *httpAddr
	}

	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}).With().Timestamp().Logger()
	if cfg.Env == "production" {
		logger = zerolog.New(os.Stdout).With().Timestamp().Logger()
	}

	catalog, err := buildCatalog(cfg, &logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to build subscription catalog")
	}

	merchantProvider := buildMerchantProvider(cfg, &logger)
	webSearcher := buildWebSearcher(cfg)
	llm := buildLLM(cfg, &logger)

	subMatcher := subscription.New(catalog, webSearcher, llm)

	orch := orchestrator.New(orchestrator.Dependencies{
		MerchantProvider: merchantProvider,
		AgenticDeps: graph.Dependencies{
			Subscription: subMatcher,
			LLM:          llm,
		},
		ReceiptProvider:     buildReceiptProvider(llm),
		AgenticDrainTimeout: cfg.AgenticDrainTimeout,
		AgenticQueueWorkers: cfg.AgenticQueueWorkers,
	})

	tracker := jobs.NewTracker()
	server := api.NewServer(cfg.HTTPAddr, orch, tracker, logger)

	signalChan := make(chan os.Signal, 1)
	signal.Notify(signalChan, syscall.SIGINT, syscall.SIGTERM)
	errChan := make(chan error, 1)

	go func() {
		if err := server.Start(); err != nil {
			errChan <- err
		}
	}()

	logger.Info().Str("addr", cfg.HTTPAddr).Msg("enrichment cascade started")

	select {
	case sig := <-signalChan:
		logger.Info().Str("signal", sig.String()).Msg("received shutdown signal")
	case err := <-errChan:
		logger.Error().Err(err).Msg("server error")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Stop(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("error during shutdown")
	}
}

// buildCatalog picks the subscription catalog's storage backend: Postgres
// when DATABASE_URL is set (giving section 6's logical schema a literal SQL
// table; a connection failure there is returned as an error), otherwise
// Redis (the default REDIS_URL already points at a local instance), falling
// back to an in-process MemoryCatalog when Redis does not answer a ping or
// REDIS_URL is empty.
func buildCatalog(cfg *config.Config, logger *zerolog.Logger) (store.Catalog, error) {
	if cfg.DatabaseURL != "" {
		return store.NewPostgresCatalog(context.Background(), cfg.DatabaseURL)
	}
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		client := redis.NewClient(opts)
		if err := client.Ping(context.Background()).Err(); err != nil {
			logger.Warn().Err(err).Msg("redis unreachable, falling back to in-process subscription catalog")
			return store.NewMemoryCatalog(), nil
		}
		return store.NewRedisCatalog(client), nil
	}
	return store.NewMemoryCatalog(), nil
}

func buildMerchantProvider(cfg *config.Config, logger *zerolog.Logger) providers.MerchantEnricher {
	if cfg.MerchantProviderAPIKey == "" {
		return providers.KeywordFallbackEnricher{}
	}
	http := providers.NewHTTPMerchantEnricher(cfg.MerchantProviderBaseURL, cfg.MerchantProviderAPIKey)
	cached, err := providers.NewCachingMerchantEnricher(http)
	if err != nil {
		logger.Warn().Err(err).Msg("failed to build merchant enrichment cache, calling provider uncached")
		return http
	}
	return cached
}

// buildReceiptProvider wires the Receipt Ingestion collaborator (A5). No
// mail SDK (Nylas or otherwise) is available in this deployment's dependency
// set, so it is backed by NoopEmailFetcher; a real mail-provider client
// plugs in behind receiptingest.EmailFetcher without anything downstream
// changing.
func buildReceiptProvider(llm llms.Model) receiptingest.Provider {
	if llm == nil {
		return receiptingest.NoopProvider{}
	}
	return receiptingest.NewLLMProvider(receiptingest.NoopEmailFetcher{}, llm)
}

func buildWebSearcher(cfg *config.Config) providers.WebSearcher {
	if cfg.SerperAPIKey == "" {
		return providers.NoopWebSearcher{}
	}
	return providers.NewSerperWebSearcher(cfg.SerperAPIKey)
}

// buildLLM returns the llms.Model interface directly, rather than the
// concrete *llmclient.RetryWrapper, so a missing/failed configuration
// yields a true nil interface: assigning a nil *RetryWrapper through an
// interface-typed struct field would otherwise leave a non-nil interface
// wrapping a nil pointer, and every "LLM == nil" guard downstream
// (Sherlock, the Subscription Matcher, receipt ingestion) would silently
// stop working.
func buildLLM(cfg *config.Config, logger *zerolog.Logger) llms.Model {
	if cfg.OpenAIAPIKey == "" {
		return nil
	}

	opts := []openai.Option{
		openai.WithModel(cfg.LLMModel),
		openai.WithToken(cfg.OpenAIAPIKey),
	}
	if cfg.LLMBaseURL != "" {
		opts = append(opts, openai.WithBaseURL(cfg.LLMBaseURL))
	}

	model, err := openai.New(opts...)
	if err != nil {
		logger.Warn().Err(err).Msg("failed to initialize LLM client, agentic sherlock fallback disabled")
		return nil
	}
	return llmclient.NewRetryWrapper(model, llmclient.DefaultRetryConfig())
}

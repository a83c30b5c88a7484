package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/quarrydocs/quarry/internal/cache/redis"
	"github.com/quarrydocs/quarry/internal/chunker"
	"github.com/quarrydocs/quarry/internal/config"
	"github.com/quarrydocs/quarry/internal/core/ports/driven"
	"github.com/quarrydocs/quarry/internal/core/services"
	embopenai "github.com/quarrydocs/quarry/internal/embedding/openai"
	"github.com/quarrydocs/quarry/internal/embedding/voyage"
	"github.com/quarrydocs/quarry/internal/extraction"
	"github.com/quarrydocs/quarry/internal/extraction/azuredi"
	"github.com/quarrydocs/quarry/internal/extraction/plaintext"
	"github.com/quarrydocs/quarry/internal/extraction/unstructured"
	llmopenai "github.com/quarrydocs/quarry/internal/llm/openai"
	"github.com/quarrydocs/quarry/internal/logger"
	"github.com/quarrydocs/quarry/internal/queue"
	"github.com/quarrydocs/quarry/internal/rerank/cohere"
	"github.com/quarrydocs/quarry/internal/storage/fsblob"
	"github.com/quarrydocs/quarry/internal/storage/memory"
	"github.com/quarrydocs/quarry/internal/storage/postgres"
	"github.com/quarrydocs/quarry/internal/tokenizer"
)

// defaultConfigPath is ~/.quarry/config.toml.
func defaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "config.toml"
	}
	return filepath.Join(home, ".quarry", "config.toml")
}

// bootstrap wires services from the configuration. When any service
// is already set the wiring is skipped entirely; tests inject their
// own.
func bootstrap(ctx context.Context) error {
	if ingestService != nil || retrievalService != nil || conversationService != nil {
		return nil
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	var (
		docs    driven.DocumentStore
		vectors driven.VectorSlotStore
		texts   driven.TextSearcher
		convs   driven.ConversationStore
	)
	switch cfg.Storage.Driver {
	case config.StoragePostgres:
		store, err := postgres.NewStore(ctx, cfg.Storage.ConnString, cfg.Slots())
		if err != nil {
			return fmt.Errorf("open postgres store: %w", err)
		}
		docs = store.DocumentStore()
		vectors = store.VectorStore()
		texts = store.TextSearcher()
		convs = store.ConversationStore()
	default:
		memStore := memory.NewDocumentStore()
		docs = memStore
		vectors = memory.NewVectorStore(memStore)
		texts = memory.NewTextSearcher(memStore)
		convs = memory.NewConversationStore()
	}

	textEmbed, err := embopenai.NewEmbeddingService(embopenai.Config{
		APIKey:     cfg.Embedding.Text.APIKey,
		Model:      cfg.Embedding.Text.Model,
		Dimensions: cfg.Embedding.Text.Dimensions,
	})
	if err != nil {
		return err
	}

	writerOpts := []services.EmbedWriterOption{
		services.WithEmbedBatchSize(cfg.Embedding.BatchSize),
	}
	if cfg.Embedding.Media != nil {
		media, err := voyage.NewEmbeddingService(voyage.Config{
			APIKey:     cfg.Embedding.Media.APIKey,
			Model:      cfg.Embedding.Media.Model,
			Dimensions: cfg.Embedding.Media.Dimensions,
		})
		if err != nil {
			return err
		}
		writerOpts = append(writerOpts, services.WithMediaEmbedder(media))
	}
	writer := services.NewEmbedWriter(vectors, textEmbed, writerOpts...)

	providers, err := buildProviders(cfg)
	if err != nil {
		return err
	}
	chainOpts := []extraction.Option{
		extraction.WithAnalyzeOptions(driven.AnalyzeOptions{
			ExtractTables:  cfg.Extraction.ExtractTables,
			ExtractFigures: cfg.Extraction.ExtractFigures,
		}),
	}
	if cfg.Extraction.MaxRetries > 0 {
		policy := extraction.DefaultRetryPolicy()
		policy.MaxRetries = cfg.Extraction.MaxRetries
		chainOpts = append(chainOpts, extraction.WithRetryPolicy(policy))
	}
	if cfg.Extraction.RatePerSecond > 0 {
		chainOpts = append(chainOpts, extraction.WithRateLimit(cfg.Extraction.RatePerSecond, 1))
	}
	chain := extraction.NewChain(providers, chainOpts...)

	healthCheck(ctx, textEmbed, providers)

	tasks := queue.New(queue.WithVisibilityTimeout(cfg.Ingestion.VisibilityTimeout))
	splitter := chunker.New(
		chunker.WithWindowSize(cfg.Ingestion.WindowSize),
		chunker.WithWindowOverlap(cfg.Ingestion.WindowOverlap),
	)

	orchestrator = services.NewOrchestrator(docs, fsblob.New(""), tasks, chain, splitter, writer,
		services.WithWorkers(cfg.Ingestion.Workers))
	ingestService = orchestrator

	reranker, err := buildReranker(cfg)
	if err != nil {
		return err
	}
	retrievalService = services.NewRetriever(docs, vectors, texts, textEmbed, reranker,
		services.WithSignalLimit(cfg.Retrieval.SignalLimit),
		services.WithScoreFloor(cfg.Retrieval.ScoreFloor, cfg.Retrieval.RelaxedScoreFloor),
	)

	var cache driven.TurnCache
	if cfg.Cache.Enabled {
		cache = redis.New(redis.Config{
			Addr:     cfg.Cache.Addr,
			Password: cfg.Cache.Password,
		})
	}
	conversationService = services.NewConversations(convs, cache,
		services.WithTurnTTL(cfg.Cache.SessionTTL))

	return nil
}

// healthCheck pings the configured providers. Failures are warnings,
// not startup errors: a provider can be down while the rest of the
// surface still works.
func healthCheck(ctx context.Context, embedder driven.EmbeddingService, providers []driven.ExtractionProvider) {
	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := embedder.Ping(pingCtx); err != nil {
		logger.Warn("Embedding service unreachable: %v", err)
	}
	for _, p := range providers {
		if err := p.Ping(pingCtx); err != nil {
			logger.Warn("Extraction provider %s unreachable: %v", p.Name(), err)
		}
	}
}

// buildProviders instantiates the extraction chain in configured
// order.
func buildProviders(cfg *config.Config) ([]driven.ExtractionProvider, error) {
	providers := make([]driven.ExtractionProvider, 0, len(cfg.Extraction.Providers))
	for _, name := range cfg.Extraction.Providers {
		switch name {
		case "azuredi":
			p, err := azuredi.New(azuredi.Config{
				Endpoint: cfg.Extraction.Azure.Endpoint,
				APIKey:   cfg.Extraction.Azure.APIKey,
			})
			if err != nil {
				return nil, err
			}
			providers = append(providers, p)
		case "unstructured":
			p, err := unstructured.New(unstructured.Config{
				BaseURL: cfg.Extraction.Unstructured.BaseURL,
				APIKey:  cfg.Extraction.Unstructured.APIKey,
			})
			if err != nil {
				return nil, err
			}
			providers = append(providers, p)
		case "plaintext":
			providers = append(providers, plaintext.New())
		}
	}
	return providers, nil
}

// buildReranker assembles the rerank resolution chain: dedicated
// endpoint, then LLM scoring, nil when neither is configured.
func buildReranker(cfg *config.Config) (*services.Reranker, error) {
	var endpoint driven.RerankService
	if cfg.Rerank.Enabled {
		svc, err := cohere.NewRerankService(cohere.Config{
			APIKey: cfg.Rerank.APIKey,
			Model:  cfg.Rerank.Model,
		})
		if err != nil {
			return nil, err
		}
		endpoint = svc
	}

	var llm driven.LLMService
	if cfg.LLM.APIKey != "" {
		svc, err := llmopenai.NewLLMService(llmopenai.Config{
			APIKey:  cfg.LLM.APIKey,
			BaseURL: cfg.LLM.BaseURL,
			Model:   cfg.LLM.Model,
		})
		if err != nil {
			return nil, err
		}
		llm = svc
	}

	if endpoint == nil && llm == nil {
		logger.Debug("No reranker configured, results keep similarity order")
		return nil, nil
	}

	var counter tokenizer.Counter
	if tk, err := tokenizer.New(tokenizer.DefaultEncoding); err == nil {
		counter = tk
	} else {
		logger.Warn("Tokenizer unavailable, using character heuristic: %v", err)
		counter = tokenizer.Heuristic{}
	}

	opts := []services.RerankerOption{
		services.WithTokenBudget(cfg.Rerank.TokenBudget),
	}
	if temp := cfg.LLM.ResolveTemperature(); temp != nil {
		opts = append(opts, services.WithTemperature(*temp))
	}
	return services.NewReranker(endpoint, llm, counter, opts...), nil
}

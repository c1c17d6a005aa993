package app

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/kapu/taro-go/internal/config"
	"github.com/kapu/taro-go/internal/domain"
	"github.com/kapu/taro-go/internal/prompt"
	"github.com/kapu/taro-go/internal/server"
	"github.com/kapu/taro-go/internal/service/ai"
	"github.com/kapu/taro-go/internal/service/astrology"
	"github.com/kapu/taro-go/internal/service/cache"
	"github.com/kapu/taro-go/internal/service/database"
	"github.com/kapu/taro-go/internal/service/reading"
)

// Container owns every long-lived dependency. It is built once at startup,
// passed by reference to the HTTP surface and released by Close.
type Container struct {
	Config *config.Config
	Logger *zap.Logger

	Catalog   *domain.Catalog
	Templates *prompt.Registry
	Model     *ai.ModelClient
	Astrology *astrology.Service
	Readings  *reading.Service
	Server    *server.Server

	closers []func()
}

// Build assembles all services. Any failure releases what was already opened.
func Build(ctx context.Context, cfg *config.Config, logger *zap.Logger) (container *Container, err error) {
	if cfg == nil {
		return nil, fmt.Errorf("config must not be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger must not be nil")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	c := &Container{Config: cfg, Logger: logger}
	defer func() {
		if err != nil {
			c.Close()
		}
	}()

	c.Catalog = domain.DefaultCatalog()

	c.Templates, err = prompt.LoadRegistry(cfg.Templates.Path, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to load templates: %w", err)
	}

	provider, err := newProvider(ctx, cfg.LLM, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create model provider: %w", err)
	}
	c.Model = ai.NewModelClient(provider, ai.ClientConfig{
		ModelID:        cfg.LLM.ModelID,
		Defaults:       cfg.LLM.Decode,
		MaxConcurrency: cfg.LLM.MaxConcurrency,
		CircuitBreaker: cfg.LLM.CircuitBreaker,
	}, logger)

	sessions, decoders, err := c.buildStore(ctx)
	if err != nil {
		return nil, err
	}

	c.Astrology = astrology.NewService(
		astrology.NewNominatimGeocoder(cfg.Astrology.NominatimURL, logger),
		astrology.NewEphemerisCalculator(),
		logger,
	)

	c.Readings = reading.NewService(reading.Deps{
		Catalog:   c.Catalog,
		Templates: c.Templates,
		Model:     c.Model,
		Sessions:  sessions,
		Decoders:  decoders,
		Logger:    logger,
	})

	c.Server = server.New(server.Config{
		Addr:           cfg.Server.Addr,
		AllowedOrigins: cfg.Server.AllowedOrigins,
		RateLimit:      cfg.Server.RateLimit,
		Debug:          cfg.Debug,
	}, server.Deps{
		Readings:  c.Readings,
		Astrology: c.Astrology,
		Model:     c.Model,
		Logger:    logger,
	})

	logger.Info("Application assembled",
		zap.String("provider", c.Model.ProviderName()),
		zap.String("model", c.Model.Model()),
		zap.Strings("actions", c.Templates.Actions()),
		zap.Bool("store", !cfg.Database.Disabled),
		zap.Bool("redis", cfg.Redis.Enabled),
	)
	return c, nil
}

func newProvider(ctx context.Context, cfg config.LLMConfig, logger *zap.Logger) (ai.Provider, error) {
	switch cfg.Provider {
	case config.ProviderOllama:
		ollama, err := ai.NewOllamaProvider(cfg.ServerURL, nil, logger)
		if err != nil {
			return nil, err
		}
		return ollama, nil
	case config.ProviderOpenAI:
		return ai.NewOpenAIProvider(cfg.ServerURL, cfg.APIKey, nil, logger), nil
	case config.ProviderGemini:
		gemini, err := ai.NewGeminiProvider(ctx, cfg.APIKey, logger)
		if err != nil {
			return nil, err
		}
		return gemini, nil
	default:
		return nil, fmt.Errorf("unsupported provider %q", cfg.Provider)
	}
}

func (c *Container) buildStore(ctx context.Context) (reading.SessionStore, reading.DecoderStates, error) {
	cfg := c.Config
	if cfg.Database.Disabled {
		c.Logger.Warn("Persistence disabled, sessions are kept in memory only")
		mem := database.NewMemoryStore()
		return mem, mem, nil
	}

	postgresSvc, err := database.NewPostgresService(ctx, cfg.Database.URL, c.Logger)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create postgres service: %w", err)
	}
	c.closers = append(c.closers, func() {
		_ = postgresSvc.Close()
	})
	if err := postgresSvc.EnsureSchema(ctx); err != nil {
		return nil, nil, err
	}

	store := database.NewStore(postgresSvc, c.Logger)
	if !cfg.Redis.Enabled {
		return store, store, nil
	}

	cacheSvc, err := cache.NewCacheService(ctx, cache.CacheConfig{
		Host:     cfg.Redis.Host,
		Port:     cfg.Redis.Port,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	}, c.Logger)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create cache service: %w", err)
	}
	c.closers = append(c.closers, func() {
		_ = cacheSvc.Close()
	})

	return store, cache.NewDecoderStateCache(cacheSvc, store, c.Logger), nil
}

// Shutdown stops the HTTP server, waits for background session writes and
// then releases the store and cache connections.
func (c *Container) Shutdown(ctx context.Context) error {
	var firstErr error
	if c.Server != nil {
		if err := c.Server.Shutdown(ctx); err != nil {
			firstErr = err
		}
	}
	if c.Readings != nil {
		if err := c.Readings.Wait(ctx); err != nil {
			c.Logger.Warn("Pending session writes abandoned", zap.Error(err))
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	c.Close()
	return firstErr
}

// Close releases resources in reverse order of acquisition.
func (c *Container) Close() {
	for i := len(c.closers) - 1; i >= 0; i-- {
		c.closers[i]()
	}
	c.closers = nil
}

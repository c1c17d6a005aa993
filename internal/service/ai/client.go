package ai

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/kapu/taro-go/internal/constants"
	"github.com/kapu/taro-go/internal/domain"
	"github.com/kapu/taro-go/internal/prompt"
	"github.com/kapu/taro-go/internal/util"
)

type ClientConfig struct {
	ModelID        string
	Defaults       domain.DecodeOptions
	MaxConcurrency int
	// CircuitBreaker suspends calls after repeated failures. Off by default so
	// each call is a single independent attempt.
	CircuitBreaker bool
}

// ModelClient is the one entry point for model calls. It verifies the model
// is loaded before the first call and bounds concurrent in-flight calls.
type ModelClient struct {
	provider Provider
	model    string
	defaults domain.DecodeOptions
	sem      *semaphore.Weighted
	breaker  *util.CircuitBreaker
	logger   *zap.Logger

	setupMu sync.Mutex
	ready   bool
}

func NewModelClient(provider Provider, cfg ClientConfig, logger *zap.Logger) *ModelClient {
	if cfg.MaxConcurrency < 1 {
		cfg.MaxConcurrency = 1
	}
	c := &ModelClient{
		provider: provider,
		model:    cfg.ModelID,
		defaults: cfg.Defaults,
		sem:      semaphore.NewWeighted(int64(cfg.MaxConcurrency)),
		logger:   logger,
	}
	if cfg.CircuitBreaker {
		c.breaker = util.NewCircuitBreaker(
			provider.Name(),
			constants.CircuitBreakerConfig.FailureThreshold,
			constants.CircuitBreakerConfig.ResetTimeout,
			logger,
		)
	}
	return c
}

func (c *ModelClient) Model() string {
	return c.model
}

func (c *ModelClient) ProviderName() string {
	return c.provider.Name()
}

// Defaults returns a copy of the process-wide decode options.
func (c *ModelClient) Defaults() domain.DecodeOptions {
	return c.defaults
}

// DecodeWith layers per-call overrides on the defaults. Unknown keys fail.
func (c *ModelClient) DecodeWith(overrides map[string]any) (domain.DecodeOptions, error) {
	return c.defaults.Apply(overrides)
}

// Setup checks that the configured model is listed by the endpoint.
// It returns a ConnectionError when the endpoint cannot be reached and a
// BadSetupError when it answers without the model.
func (c *ModelClient) Setup(ctx context.Context) error {
	c.setupMu.Lock()
	defer c.setupMu.Unlock()

	if c.ready {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, constants.Timeouts.ModelSetup)
	defer cancel()

	models, err := c.provider.ListModels(ctx)
	if err != nil {
		var connErr *ConnectionError
		if errors.As(err, &connErr) {
			return connErr
		}
		return NewConnectionError(c.provider.Endpoint(), err)
	}

	if !hasModel(models, c.model) {
		c.logger.Error("Configured model is not loaded",
			zap.String("provider", c.provider.Name()),
			zap.String("model", c.model),
			zap.Strings("available", models),
		)
		return NewBadSetupError(c.provider.Name(), c.model, models)
	}

	c.ready = true
	c.logger.Info("Model client ready",
		zap.String("provider", c.provider.Name()),
		zap.String("model", c.model),
	)
	return nil
}

// Ready reports whether Setup has succeeded.
func (c *ModelClient) Ready() bool {
	c.setupMu.Lock()
	defer c.setupMu.Unlock()
	return c.ready
}

// Chat runs one blocking completion. There is no retry: a failed call is
// returned to the caller as is.
func (c *ModelClient) Chat(ctx context.Context, messages []prompt.ChatMessage, opts domain.DecodeOptions) (string, error) {
	if err := c.Setup(ctx); err != nil {
		return "", err
	}

	if c.breaker != nil && !c.breaker.Allow() {
		return "", newCircuitOpenError(c.provider.Name())
	}

	if err := c.sem.Acquire(ctx, 1); err != nil {
		return "", err
	}
	defer c.sem.Release(1)

	start := time.Now()
	text, err := c.provider.Chat(ctx, c.model, messages, opts)
	c.record(err)
	if err != nil {
		return "", err
	}

	c.logger.Debug("Model call completed",
		zap.String("provider", c.provider.Name()),
		zap.Duration("elapsed", time.Since(start)),
		zap.Int("num_predict", opts.NumPredict),
	)
	return text, nil
}

func (c *ModelClient) record(err error) {
	if c.breaker == nil {
		return
	}
	if err == nil {
		c.breaker.RecordSuccess()
		return
	}
	if errors.Is(err, context.Canceled) {
		return
	}
	c.breaker.RecordFailure()
}

package cache

import (
	"context"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/kapu/taro-go/internal/constants"
	"github.com/kapu/taro-go/internal/domain"
)

// DecoderStateSource is the backing store of decoder states.
type DecoderStateSource interface {
	Latest(ctx context.Context, user domain.UserRef) (*domain.DecoderState, error)
	Insert(ctx context.Context, state domain.DecoderState) error
}

type store interface {
	Get(ctx context.Context, key string, dest any) (bool, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	Del(ctx context.Context, key string) error
}

// DecoderStateCache is a read-through cache in front of a user's latest
// decoder state. Cache failures fall back to the source.
type DecoderStateCache struct {
	cache  store
	source DecoderStateSource
	ttl    time.Duration
	logger *zap.Logger
}

func NewDecoderStateCache(cache *CacheService, source DecoderStateSource, logger *zap.Logger) *DecoderStateCache {
	return newDecoderStateCache(cache, source, logger)
}

func newDecoderStateCache(cache store, source DecoderStateSource, logger *zap.Logger) *DecoderStateCache {
	return &DecoderStateCache{
		cache:  cache,
		source: source,
		ttl:    constants.CacheTTL.DecoderState,
		logger: logger,
	}
}

// DecoderStateKey query-escapes each part so a ':' inside a name cannot
// shift the boundary between parts.
func DecoderStateKey(user domain.UserRef) string {
	parts := []string{user.Username, user.FirstName, user.LastName}
	for i, p := range parts {
		parts[i] = url.QueryEscape(p)
	}
	return "taro:decoder:" + strings.Join(parts, ":")
}

func (c *DecoderStateCache) Latest(ctx context.Context, user domain.UserRef) (*domain.DecoderState, error) {
	key := DecoderStateKey(user)

	var cached domain.DecoderState
	found, err := c.cache.Get(ctx, key, &cached)
	if err == nil && found {
		return &cached, nil
	}

	state, err := c.source.Latest(ctx, user)
	if err != nil || state == nil {
		return state, err
	}

	if err := c.cache.Set(ctx, key, state, c.ttl); err != nil {
		c.logger.Warn("Decoder state not cached", zap.String("username", user.Username), zap.Error(err))
	}
	return state, nil
}

// Insert writes through to the source and drops the cached entry.
func (c *DecoderStateCache) Insert(ctx context.Context, state domain.DecoderState) error {
	if err := c.source.Insert(ctx, state); err != nil {
		return err
	}
	user := domain.UserRef{Username: state.Username, FirstName: state.FirstName, LastName: state.LastName}
	if err := c.cache.Del(ctx, DecoderStateKey(user)); err != nil {
		c.logger.Warn("Decoder state cache not invalidated", zap.String("username", state.Username), zap.Error(err))
	}
	return nil
}

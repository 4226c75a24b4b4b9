package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"Watchdog/internal/domain/models"
	domrepo "Watchdog/internal/domain/repository"
	"Watchdog/pkg/cache"
)

// CacheSynthesisStore keeps the latest synthesis per symbol in a cache.Service.
type CacheSynthesisStore struct {
	cache cache.Service
	ttl   time.Duration
}

// NewCacheSynthesisStore returns a store writing entries that expire after ttl.
// ttl <= 0 keeps entries until evicted.
func NewCacheSynthesisStore(c cache.Service, ttl time.Duration) *CacheSynthesisStore {
	return &CacheSynthesisStore{cache: c, ttl: ttl}
}

func synthesisKey(symbol string) string {
	return cache.GenerateKey("synthesis", strings.ToUpper(symbol))
}

func (s *CacheSynthesisStore) Save(ctx context.Context, syn models.Synthesis) error {
	if syn.Symbol == "" {
		return errors.New("synthesis without symbol")
	}
	if err := cache.SetValue(ctx, s.cache, synthesisKey(syn.Symbol), syn, s.ttl); err != nil {
		return fmt.Errorf("save synthesis %s: %w", syn.Symbol, err)
	}
	return nil
}

// Get returns models.ErrNoData when nothing is stored for symbol.
func (s *CacheSynthesisStore) Get(ctx context.Context, symbol string) (models.Synthesis, error) {
	syn, err := cache.GetValue[models.Synthesis](ctx, s.cache, synthesisKey(symbol))
	if errors.Is(err, cache.ErrCacheMiss) {
		return models.Synthesis{}, models.ErrNoData
	}
	if err != nil {
		return models.Synthesis{}, fmt.Errorf("load synthesis %s: %w", symbol, err)
	}
	return syn, nil
}

var _ domrepo.SynthesisStore = (*CacheSynthesisStore)(nil)

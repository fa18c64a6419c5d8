package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/pocketwealth/market-sim/internal/model"
)

// CachedStore wraps a primary Store (PostgreSQL) with a Redis read-through
// cache. Writes go to the primary store and invalidate the cache; reads
// check Redis first then fall back to the primary.
//
// Last prices are cached as plain strings since the UI polls them far more
// often than anything else.
type CachedStore struct {
	primary Store
	rdb     *redis.Client
	ttl     time.Duration
}

// NewCachedStore creates a cached wrapper around a primary store.
func NewCachedStore(primary Store, rdb *redis.Client, ttl time.Duration) *CachedStore {
	return &CachedStore{
		primary: primary,
		rdb:     rdb,
		ttl:     ttl,
	}
}

// --- Accounts (read-through, invalidate on write) ---

func (s *CachedStore) CreateAccount(ctx context.Context, a *model.Account) error {
	if err := s.primary.CreateAccount(ctx, a); err != nil {
		return err
	}
	s.cacheAccount(ctx, a)
	return nil
}

func (s *CachedStore) GetAccount(ctx context.Context, email string) (*model.Account, error) {
	data, err := s.rdb.Get(ctx, accountKey(email)).Bytes()
	if err == nil {
		var a model.Account
		if json.Unmarshal(data, &a) == nil {
			return &a, nil
		}
	}

	a, err := s.primary.GetAccount(ctx, email)
	if err != nil {
		return nil, err
	}
	s.cacheAccount(ctx, a)
	return a, nil
}

func (s *CachedStore) UpdateAccount(ctx context.Context, a *model.Account) error {
	if err := s.primary.UpdateAccount(ctx, a); err != nil {
		return err
	}
	// Invalidate rather than re-cache; next read re-populates.
	s.rdb.Del(ctx, accountKey(a.Email))
	return nil
}

func (s *CachedStore) DeleteAccount(ctx context.Context, email string) error {
	if err := s.primary.DeleteAccount(ctx, email); err != nil {
		return err
	}
	s.rdb.Del(ctx, accountKey(email))
	return nil
}

// --- Last prices (hot path for the UI) ---

func (s *CachedStore) SaveLastPrice(ctx context.Context, symbol string, price decimal.Decimal) error {
	if err := s.primary.SaveLastPrice(ctx, symbol, price); err != nil {
		return err
	}
	s.rdb.Set(ctx, lastPriceKey(symbol), price.String(), s.ttl)
	return nil
}

func (s *CachedStore) LoadLastPrices(ctx context.Context) (map[string]decimal.Decimal, error) {
	return s.primary.LoadLastPrices(ctx)
}

// --- Passthrough (bulk engine state, not worth caching) ---

func (s *CachedStore) ListAccounts(ctx context.Context) ([]model.Account, error) {
	return s.primary.ListAccounts(ctx)
}

func (s *CachedStore) SaveInstruments(ctx context.Context, ins []model.Instrument) error {
	return s.primary.SaveInstruments(ctx, ins)
}

func (s *CachedStore) LoadInstruments(ctx context.Context) ([]model.Instrument, error) {
	return s.primary.LoadInstruments(ctx)
}

func (s *CachedStore) SaveSeries(ctx context.Context, symbol string, series []model.PricePoint) error {
	return s.primary.SaveSeries(ctx, symbol, series)
}

func (s *CachedStore) LoadSeries(ctx context.Context, symbol string) ([]model.PricePoint, error) {
	return s.primary.LoadSeries(ctx, symbol)
}

func (s *CachedStore) ClearMarketData(ctx context.Context) error {
	if err := s.primary.ClearMarketData(ctx); err != nil {
		return err
	}
	// Drop all cached prices; scan is fine at this key cardinality.
	iter := s.rdb.Scan(ctx, 0, lastPriceKey("*"), 0).Iterator()
	for iter.Next(ctx) {
		s.rdb.Del(ctx, iter.Val())
	}
	return nil
}

func (s *CachedStore) SaveEngineFlags(ctx context.Context, running bool, mood model.Mood) error {
	return s.primary.SaveEngineFlags(ctx, running, mood)
}

func (s *CachedStore) LoadEngineFlags(ctx context.Context) (bool, model.Mood, error) {
	return s.primary.LoadEngineFlags(ctx)
}

// --- Cache helpers ---

func (s *CachedStore) cacheAccount(ctx context.Context, a *model.Account) {
	if data, err := json.Marshal(a); err == nil {
		s.rdb.Set(ctx, accountKey(a.Email), data, s.ttl)
	}
}

func accountKey(email string) string { return fmt.Sprintf("account:%s", strings.ToLower(email)) }
func lastPriceKey(sym string) string { return fmt.Sprintf("lastprice:%s", sym) }

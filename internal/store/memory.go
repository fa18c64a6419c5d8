package store

import (
	"context"
	"strings"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/pocketwealth/market-sim/internal/model"
)

// MemoryStore implements Store with in-memory maps. Used for testing and
// for demo runs without a database. Values are copied on the way in and
// out to avoid shared mutable state.
type MemoryStore struct {
	mu          sync.RWMutex
	accounts    map[string]*model.Account // lowercase email -> account
	instruments []model.Instrument
	series      map[string][]model.PricePoint
	lastPrices  map[string]decimal.Decimal
	running     bool
	hasFlags    bool
	mood        model.Mood
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		accounts:   make(map[string]*model.Account),
		series:     make(map[string][]model.PricePoint),
		lastPrices: make(map[string]decimal.Decimal),
	}
}

func key(email string) string { return strings.ToLower(email) }

func (s *MemoryStore) CreateAccount(_ context.Context, acct *model.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.accounts[key(acct.Email)]; ok {
		return model.ErrAccountExists
	}
	s.accounts[key(acct.Email)] = acct.Clone()
	return nil
}

func (s *MemoryStore) GetAccount(_ context.Context, email string) (*model.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	acct, ok := s.accounts[key(email)]
	if !ok {
		return nil, model.ErrAccountNotFound
	}
	return acct.Clone(), nil
}

func (s *MemoryStore) UpdateAccount(_ context.Context, acct *model.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.accounts[key(acct.Email)]; !ok {
		return model.ErrAccountNotFound
	}
	s.accounts[key(acct.Email)] = acct.Clone()
	return nil
}

func (s *MemoryStore) ListAccounts(_ context.Context) ([]model.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	accts := make([]model.Account, 0, len(s.accounts))
	for _, a := range s.accounts {
		accts = append(accts, *a.Clone())
	}
	return accts, nil
}

func (s *MemoryStore) DeleteAccount(_ context.Context, email string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.accounts[key(email)]; !ok {
		return model.ErrAccountNotFound
	}
	delete(s.accounts, key(email))
	return nil
}

func (s *MemoryStore) SaveInstruments(_ context.Context, ins []model.Instrument) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.instruments = append([]model.Instrument(nil), ins...)
	return nil
}

func (s *MemoryStore) LoadInstruments(_ context.Context) ([]model.Instrument, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.instruments == nil {
		return nil, nil
	}
	return append([]model.Instrument(nil), s.instruments...), nil
}

func (s *MemoryStore) SaveSeries(_ context.Context, symbol string, series []model.PricePoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.series[symbol] = append([]model.PricePoint(nil), series...)
	return nil
}

func (s *MemoryStore) LoadSeries(_ context.Context, symbol string) ([]model.PricePoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	pts := s.series[symbol]
	if pts == nil {
		return nil, nil
	}
	return append([]model.PricePoint(nil), pts...), nil
}

func (s *MemoryStore) SaveLastPrice(_ context.Context, symbol string, price decimal.Decimal) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.lastPrices[symbol] = price
	return nil
}

func (s *MemoryStore) LoadLastPrices(_ context.Context) (map[string]decimal.Decimal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]decimal.Decimal, len(s.lastPrices))
	for sym, p := range s.lastPrices {
		out[sym] = p
	}
	return out, nil
}

func (s *MemoryStore) ClearMarketData(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.series = make(map[string][]model.PricePoint)
	s.lastPrices = make(map[string]decimal.Decimal)
	return nil
}

func (s *MemoryStore) SaveEngineFlags(_ context.Context, running bool, mood model.Mood) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.running = running
	s.mood = mood
	s.hasFlags = true
	return nil
}

func (s *MemoryStore) LoadEngineFlags(_ context.Context) (bool, model.Mood, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.hasFlags {
		return true, model.MoodNormal, nil
	}
	return s.running, s.mood, nil
}

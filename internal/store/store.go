// Package store defines the persistence interface for accounts and market
// state. Implementations include PostgreSQL (source of truth), Redis
// (read-through cache), and in-memory (for testing and single-process demo
// runs).
package store

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/pocketwealth/market-sim/internal/model"
)

// Store is the persistence interface. Accounts carry their ledger and
// holdings; the whole record is written in one Update so a trade's
// {holding, cash, ledger} mutation lands atomically or not at all.
type Store interface {
	// --- Accounts ---

	// CreateAccount persists a new account. Fails with
	// model.ErrAccountExists when the email is taken.
	CreateAccount(ctx context.Context, acct *model.Account) error

	// GetAccount retrieves an account by email (case-insensitive).
	// Fails with model.ErrAccountNotFound on a miss.
	GetAccount(ctx context.Context, email string) (*model.Account, error)

	// UpdateAccount persists the full account record, including any newly
	// appended ledger entries.
	UpdateAccount(ctx context.Context, acct *model.Account) error

	// ListAccounts returns all accounts.
	ListAccounts(ctx context.Context) ([]model.Account, error)

	// DeleteAccount removes an account and its ledger.
	DeleteAccount(ctx context.Context, email string) error

	// --- Market state ---

	// SaveInstruments replaces the persisted instrument registry.
	SaveInstruments(ctx context.Context, ins []model.Instrument) error

	// LoadInstruments returns the persisted registry (nil when empty).
	LoadInstruments(ctx context.Context) ([]model.Instrument, error)

	// SaveSeries replaces the bounded price series for one symbol.
	SaveSeries(ctx context.Context, symbol string, series []model.PricePoint) error

	// LoadSeries returns the series for one symbol (nil when empty).
	LoadSeries(ctx context.Context, symbol string) ([]model.PricePoint, error)

	// SaveLastPrice records the current price for a symbol.
	SaveLastPrice(ctx context.Context, symbol string, price decimal.Decimal) error

	// LoadLastPrices returns all current prices.
	LoadLastPrices(ctx context.Context) (map[string]decimal.Decimal, error)

	// ClearMarketData drops all series and last prices (engine reset).
	ClearMarketData(ctx context.Context) error

	// SaveEngineFlags persists the running flag and volatility mood.
	SaveEngineFlags(ctx context.Context, running bool, mood model.Mood) error

	// LoadEngineFlags returns the persisted engine control flags.
	// Defaults to (true, normal) when nothing is stored.
	LoadEngineFlags(ctx context.Context) (bool, model.Mood, error)
}

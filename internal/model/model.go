// Package model defines the core domain types shared across the simulation
// engine, ledger, and reporting layers.
// All monetary values use shopspring/decimal — never float64 for money.
package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// VolClass buckets instruments by volatility. Each class maps to a numeric
// sigma in the price engine.
type VolClass string

const (
	VolLow  VolClass = "low"
	VolMed  VolClass = "med"
	VolHigh VolClass = "high"
)

// Instrument is one tradable synthetic symbol with a simulated price.
// Instruments are created at registry initialization and mutated by admin
// actions and the tick engine; they are never deleted.
type Instrument struct {
	Symbol      string          `json:"symbol" db:"symbol"`
	Name        string          `json:"name" db:"name"`
	Type        string          `json:"type" db:"type"` // "stock", "etf", "bond", ...
	VolClass    VolClass        `json:"vol_class" db:"vol_class"`
	BasePrice   decimal.Decimal `json:"base_price" db:"base_price"`
	Frozen      bool            `json:"frozen" db:"frozen"`
	Drift       float64         `json:"drift,omitempty" db:"drift"` // per-tick static drift
	Certified   bool            `json:"certified,omitempty" db:"certified"`
	Description string          `json:"description,omitempty" db:"description"`
}

// PricePoint is one (timestamp, price) sample in an instrument's series.
// Timestamps within a series are monotonic non-decreasing; price is always > 0.
type PricePoint struct {
	TS    time.Time       `json:"ts"`
	Price decimal.Decimal `json:"price"`
}

// Holding is a position in one instrument: non-negative fractional quantity
// plus weighted-average cost basis. Avg cost is recomputed on every buy and
// held constant on sells until the quantity reaches zero.
type Holding struct {
	Qty     decimal.Decimal `json:"qty"`
	AvgCost decimal.Decimal `json:"avg_cost"`
}

// EntryType classifies ledger entries.
type EntryType string

const (
	EntryBuy          EntryType = "BUY"
	EntrySell         EntryType = "SELL"
	EntryCashIn       EntryType = "CASH_IN"
	EntryWithdraw     EntryType = "WITHDRAW"
	EntryFee          EntryType = "FEE"
	EntryPremiumSub   EntryType = "PREMIUM_SUB"
	EntryPremiumUnsub EntryType = "PREMIUM_UNSUB"
	EntryAdminGiftIn  EntryType = "ADMIN_GIFT_IN"
	EntryDividend     EntryType = "DIVIDEND"
)

// LedgerEntry is an immutable record of one cash-affecting operation.
// Once appended these are never modified or deleted; corrections append a
// compensating entry instead.
//
// Amount is signed: positive = cash inflow, negative = cash outflow.
// Qty is signed: positive for buys, negative for sells.
type LedgerEntry struct {
	ID      string          `json:"id" db:"id"`
	Account string          `json:"account" db:"account"`
	TS      time.Time       `json:"ts" db:"ts"`
	Type    EntryType       `json:"type" db:"type"`
	Symbol  string          `json:"symbol,omitempty" db:"symbol"`
	Qty     decimal.Decimal `json:"qty,omitempty" db:"qty"`
	Price   decimal.Decimal `json:"price,omitempty" db:"price"`
	Amount  decimal.Decimal `json:"amount" db:"amount"`
	Fee     decimal.Decimal `json:"fee,omitempty" db:"fee"`
	Note    string          `json:"note,omitempty" db:"note"`
}

// Snapshot is a daily-deduplicated (timestamp, total portfolio value) pair
// used for performance-chart reconstruction. At most one per calendar day;
// a later snapshot on the same day overwrites the earlier one.
type Snapshot struct {
	TS    time.Time       `json:"ts"`
	Total decimal.Decimal `json:"total"`
}

// Account holds cash, holdings, and the append-only ledger that is the sole
// source of truth for cash. Cash is a cached value of the ledger sum, kept
// consistent on every append and re-derivable by replay.
type Account struct {
	ID        string             `json:"id" db:"id"`
	Email     string             `json:"email" db:"email"`
	Name      string             `json:"name" db:"name"`
	Role      string             `json:"role" db:"role"` // "member" or "admin"
	Cash      decimal.Decimal    `json:"cash" db:"cash"`
	Unlimited bool               `json:"unlimited" db:"unlimited"` // privileged accounts skip cash accounting
	Premium   bool               `json:"premium" db:"premium"`
	Holdings  map[string]Holding `json:"holdings"`
	Ledger    []LedgerEntry      `json:"ledger"`    // newest-first
	Snapshots []Snapshot         `json:"snapshots"` // oldest-first, one per day
	CreatedAt time.Time          `json:"created_at" db:"created_at"`
}

// Clone returns a deep copy so stores can hand out values without sharing
// mutable state with callers.
func (a *Account) Clone() *Account {
	cp := *a
	cp.Holdings = make(map[string]Holding, len(a.Holdings))
	for sym, h := range a.Holdings {
		cp.Holdings[sym] = h
	}
	cp.Ledger = append([]LedgerEntry(nil), a.Ledger...)
	cp.Snapshots = append([]Snapshot(nil), a.Snapshots...)
	return &cp
}

// Side is the direction of an order.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// Mood is the global volatility multiplier applied to all instruments.
type Mood string

const (
	MoodCalm     Mood = "calm"
	MoodNormal   Mood = "normal"
	MoodVolatile Mood = "volatile"
)

// Multiplier returns the sigma scale for the mood. Unknown moods behave
// as normal.
func (m Mood) Multiplier() float64 {
	switch m {
	case MoodCalm:
		return 0.5
	case MoodVolatile:
		return 2.0
	default:
		return 1.0
	}
}

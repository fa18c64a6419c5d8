// Package ledger implements the append-only transaction log and the pure
// replay folds that derive cash, holdings, and realized P&L from it. The
// ledger is the source of truth: cached balances are convenience values
// that must always equal the corresponding fold.
package ledger

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/pocketwealth/market-sim/internal/model"
)

// MaxEntries bounds per-account history; the oldest entry is dropped once
// the cap is exceeded.
const MaxEntries = 5000

// qtyScale and cashScale are the rounding precisions used throughout:
// fractional units to 6 places, cash to 2.
const (
	qtyScale  = 6
	cashScale = 2
)

// Append prepends an entry to the account's ledger (newest-first order).
// A zero ID gets a generated UUID; a caller-supplied ID doubles as an
// idempotency key: if an entry with that ID already exists the ledger is
// left untouched and model.ErrDuplicateOperation is returned. Callers
// treat that as success-no-op.
func Append(acct *model.Account, e model.LedgerEntry) (model.LedgerEntry, error) {
	if e.ID == "" {
		e.ID = uuid.New().String()
	} else if HasEntry(acct, e.ID) {
		return model.LedgerEntry{}, model.ErrDuplicateOperation
	}
	if e.TS.IsZero() {
		e.TS = time.Now().UTC()
	}
	e.Account = acct.Email

	acct.Ledger = append([]model.LedgerEntry{e}, acct.Ledger...)
	if len(acct.Ledger) > MaxEntries {
		acct.Ledger = acct.Ledger[:MaxEntries]
	}
	return e, nil
}

// HasEntry reports whether the account's ledger already contains an entry
// with the given ID.
func HasEntry(acct *model.Account, id string) bool {
	for _, e := range acct.Ledger {
		if e.ID == id {
			return true
		}
	}
	return false
}

// Chronological returns a copy of entries in oldest-first order. Entries
// are stored newest-first, so this is a reversal.
func Chronological(entries []model.LedgerEntry) []model.LedgerEntry {
	out := make([]model.LedgerEntry, len(entries))
	for i, e := range entries {
		out[len(entries)-1-i] = e
	}
	return out
}

// CashBalance folds the signed amounts of all entries. The running sum
// replayed oldest-first equals the account's cash balance at every point;
// addition commutes, so order does not matter for the total.
func CashBalance(entries []model.LedgerEntry) decimal.Decimal {
	sum := decimal.Zero
	for _, e := range entries {
		sum = sum.Add(e.Amount)
	}
	return sum.Round(cashScale)
}

// HoldingsAsOf replays entries with ts < cutoff (exclusive), oldest first,
// and returns quantity plus weighted-average cost per symbol.
//
// BUY increases quantity and recomputes the weighted average cost. SELL
// decreases quantity by min(sold, held) and keeps the average cost
// unchanged unless the position closes completely, at which point it
// resets to zero. Quantity never goes negative.
func HoldingsAsOf(entries []model.LedgerEntry, cutoff time.Time) map[string]model.Holding {
	state := make(map[string]model.Holding)
	for _, e := range Chronological(entries) {
		if !e.TS.Before(cutoff) {
			continue
		}
		switch e.Type {
		case model.EntryBuy:
			state[e.Symbol] = ApplyBuy(state[e.Symbol], e.Qty.Abs(), e.Price)
		case model.EntrySell:
			state[e.Symbol] = ApplySell(state[e.Symbol], e.Qty.Abs())
		}
	}
	return state
}

// ApplyBuy folds one buy into a holding: quantity grows and the weighted
// average cost is recomputed as (prevQty*prevAvg + qty*price) / newQty.
func ApplyBuy(prev model.Holding, qty, price decimal.Decimal) model.Holding {
	newQty := prev.Qty.Add(qty)
	newAvg := price
	if prev.Qty.IsPositive() {
		newAvg = prev.Qty.Mul(prev.AvgCost).Add(qty.Mul(price)).Div(newQty)
	}
	return model.Holding{
		Qty:     newQty.Round(qtyScale),
		AvgCost: newAvg.Round(qtyScale),
	}
}

// ApplySell folds one sell into a holding: quantity drops by at most the
// held amount; the average cost survives a partial sell and resets only
// when the position closes.
func ApplySell(prev model.Holding, qty decimal.Decimal) model.Holding {
	sold := decimal.Min(qty, prev.Qty)
	newQty := prev.Qty.Sub(sold)
	avg := prev.AvgCost
	if !newQty.IsPositive() {
		avg = decimal.Zero
	}
	return model.Holding{Qty: newQty.Round(qtyScale), AvgCost: avg}
}

// RealizedPnL computes profit recognized by sells inside [start, end).
// The cost basis baseline is the holdings state reconstructed as of start;
// buys within the period move the basis as they occur, so a buy-then-sell
// inside one period is priced against the blended average.
//
// Per sell: pnl = (sellPrice − avgCostAtSaleTime) * soldQty − fee.
func RealizedPnL(entries []model.LedgerEntry, start, end time.Time) decimal.Decimal {
	state := HoldingsAsOf(entries, start)
	realized := decimal.Zero

	for _, e := range Chronological(entries) {
		if e.TS.Before(start) || !e.TS.Before(end) {
			continue
		}
		switch e.Type {
		case model.EntryBuy:
			state[e.Symbol] = ApplyBuy(state[e.Symbol], e.Qty.Abs(), e.Price)
		case model.EntrySell:
			prev := state[e.Symbol]
			sold := decimal.Min(e.Qty.Abs(), prev.Qty)
			pnl := e.Price.Sub(prev.AvgCost).Mul(sold).Sub(e.Fee)
			realized = realized.Add(pnl.Round(cashScale))
			state[e.Symbol] = ApplySell(prev, e.Qty.Abs())
		}
	}
	return realized.Round(cashScale)
}

// CashInTotal sums deposit-like inflows (CASH_IN and ADMIN_GIFT_IN) inside
// [start, end).
func CashInTotal(entries []model.LedgerEntry, start, end time.Time) decimal.Decimal {
	total := decimal.Zero
	for _, e := range entries {
		if e.TS.Before(start) || !e.TS.Before(end) {
			continue
		}
		if e.Type == model.EntryCashIn || e.Type == model.EntryAdminGiftIn {
			total = total.Add(e.Amount)
		}
	}
	return total.Round(cashScale)
}

package account

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/pocketwealth/market-sim/internal/ledger"
	"github.com/pocketwealth/market-sim/internal/model"
)

// ActivityRecord is a row of the legacy activity log that predates the
// ledger. Amounts are unsigned; the migration derives the sign from the
// activity type.
type ActivityRecord struct {
	Type   string          `json:"type"`
	Time   time.Time       `json:"time"`
	Symbol string          `json:"symbol,omitempty"`
	Qty    decimal.Decimal `json:"qty,omitempty"`
	Price  decimal.Decimal `json:"price,omitempty"`
	Amount decimal.Decimal `json:"amount,omitempty"`
	Fee    decimal.Decimal `json:"fee,omitempty"`
	Note   string          `json:"note,omitempty"`
}

// MigrateActivity backfills an account's ledger from its legacy activity
// log. Accounts that already have ledger entries are left alone. Records
// are replayed oldest-first so the resulting ledger is internally
// consistent; unrecognized activity types are skipped.
func (s *Service) MigrateActivity(ctx context.Context, email string, activity []ActivityRecord) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	acct, err := s.store.GetAccount(ctx, email)
	if err != nil {
		return 0, err
	}
	if len(acct.Ledger) > 0 {
		return 0, nil
	}

	migrated := 0
	for _, a := range activity {
		e, ok := convertActivity(a)
		if !ok {
			continue
		}
		if _, err := ledger.Append(acct, e); err != nil {
			continue
		}
		migrated++
	}
	if migrated == 0 {
		return 0, nil
	}
	if !acct.Unlimited {
		acct.Cash = ledger.CashBalance(acct.Ledger)
	}
	acct.Holdings = ledger.HoldingsAsOf(acct.Ledger, time.Now().UTC().Add(time.Second))
	for sym, h := range acct.Holdings {
		if !h.Qty.IsPositive() {
			delete(acct.Holdings, sym)
		}
	}
	if err := s.store.UpdateAccount(ctx, acct); err != nil {
		return 0, err
	}
	slog.Info("migrated activity log to ledger", "email", email, "entries", migrated)
	return migrated, nil
}

func convertActivity(a ActivityRecord) (model.LedgerEntry, bool) {
	base := model.LedgerEntry{TS: a.Time, Symbol: a.Symbol, Note: a.Note}
	amount := a.Amount
	if amount.IsZero() {
		amount = a.Qty.Mul(a.Price)
	}
	amount = amount.Abs().Round(2)

	switch {
	case strings.Contains(a.Type, "BUY"):
		base.Type = model.EntryBuy
		base.Qty = a.Qty.Abs()
		base.Price = a.Price
		base.Amount = amount.Add(a.Fee).Neg()
		base.Fee = a.Fee
	case strings.Contains(a.Type, "SELL"):
		base.Type = model.EntrySell
		base.Qty = a.Qty.Abs().Neg()
		base.Price = a.Price
		base.Amount = amount.Sub(a.Fee)
		base.Fee = a.Fee
	case a.Type == "ADMIN_GIFT", a.Type == "ADMIN_GIFT_IN":
		base.Type = model.EntryAdminGiftIn
		base.Amount = amount
	case a.Type == "PREMIUM_CHARGE", a.Type == "PREMIUM_ACTIVATED":
		base.Type = model.EntryPremiumSub
		if amount.IsZero() {
			amount = decimal.NewFromInt(20)
		}
		base.Amount = amount.Neg()
	case a.Type == "PREMIUM_CANCELLED", a.Type == "PREMIUM_CANCEL":
		base.Type = model.EntryPremiumUnsub
		base.Amount = decimal.Zero
	case a.Type == "DEPOSIT", a.Type == "CASH_IN":
		base.Type = model.EntryCashIn
		base.Amount = amount
	case a.Type == "WITHDRAW":
		base.Type = model.EntryWithdraw
		base.Amount = amount.Neg()
	default:
		return model.LedgerEntry{}, false
	}
	return base, true
}

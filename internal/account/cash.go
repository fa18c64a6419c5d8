package account

import (
	"context"
	"log/slog"

	"github.com/shopspring/decimal"

	"github.com/pocketwealth/market-sim/internal/ledger"
	"github.com/pocketwealth/market-sim/internal/metrics"
	"github.com/pocketwealth/market-sim/internal/model"
	"github.com/pocketwealth/market-sim/internal/pubsub"
)

// TopUp credits cash to an account. The idempotency key becomes the ledger
// entry ID: replaying the same key is a success-no-op that changes neither
// the balance nor the ledger.
func (s *Service) TopUp(ctx context.Context, email string, amount decimal.Decimal, idemKey string) (*model.Account, error) {
	if !amount.IsPositive() {
		return nil, &model.ValidationError{Message: "top-up amount must be positive"}
	}
	return s.applyCashOp(ctx, email, model.LedgerEntry{
		ID:     idemKey,
		Type:   model.EntryCashIn,
		Amount: amount.Round(2),
		Note:   "self-service top-up",
	})
}

// Withdraw debits cash. Bounded accounts cannot overdraw.
func (s *Service) Withdraw(ctx context.Context, email string, amount decimal.Decimal) (*model.Account, error) {
	if !amount.IsPositive() {
		return nil, &model.ValidationError{Message: "withdrawal amount must be positive"}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	acct, err := s.store.GetAccount(ctx, email)
	if err != nil {
		return nil, err
	}
	if !acct.Unlimited && acct.Cash.LessThan(amount) {
		return nil, model.ErrInsufficientFunds
	}
	return s.appendAndSaveLocked(ctx, acct, model.LedgerEntry{
		Type:   model.EntryWithdraw,
		Amount: amount.Round(2).Neg(),
		Note:   "withdrawal",
	})
}

// Subscribe activates premium and charges the flat subscription fee.
func (s *Service) Subscribe(ctx context.Context, email string) (*model.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	acct, err := s.store.GetAccount(ctx, email)
	if err != nil {
		return nil, err
	}
	if acct.Premium {
		return acct, nil
	}
	if !acct.Unlimited && acct.Cash.LessThan(s.premiumFee) {
		return nil, model.ErrInsufficientFunds
	}
	acct.Premium = true
	return s.appendAndSaveLocked(ctx, acct, model.LedgerEntry{
		Type:   model.EntryPremiumSub,
		Amount: s.premiumFee.Neg(),
		Note:   "premium subscription",
	})
}

// Unsubscribe deactivates premium. The offsetting entry carries a zero
// amount: history is never mutated, cancellation is just another row.
func (s *Service) Unsubscribe(ctx context.Context, email string) (*model.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	acct, err := s.store.GetAccount(ctx, email)
	if err != nil {
		return nil, err
	}
	if !acct.Premium {
		return acct, nil
	}
	acct.Premium = false
	return s.appendAndSaveLocked(ctx, acct, model.LedgerEntry{
		Type:   model.EntryPremiumUnsub,
		Amount: decimal.Zero,
		Note:   "premium cancelled",
	})
}

// AdminGift credits a recipient account. This is a single-account
// transaction: no cross-account atomicity is guaranteed or needed since
// the gifting admin is an unlimited account.
func (s *Service) AdminGift(ctx context.Context, email string, amount decimal.Decimal) (*model.Account, error) {
	if !amount.IsPositive() {
		return nil, &model.ValidationError{Message: "gift amount must be positive"}
	}
	return s.applyCashOp(ctx, email, model.LedgerEntry{
		Type:   model.EntryAdminGiftIn,
		Amount: amount.Round(2),
		Note:   "admin gift",
	})
}

// applyCashOp appends one cash entry under the service lock and persists.
// A duplicate idempotency key short-circuits to the unchanged account.
func (s *Service) applyCashOp(ctx context.Context, email string, e model.LedgerEntry) (*model.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	acct, err := s.store.GetAccount(ctx, email)
	if err != nil {
		return nil, err
	}
	if e.ID != "" && ledger.HasEntry(acct, e.ID) {
		metrics.IdempotentReplays.Inc()
		slog.Info("duplicate cash operation absorbed", "email", email, "key", e.ID)
		return acct, nil
	}
	return s.appendAndSaveLocked(ctx, acct, e)
}

func (s *Service) appendAndSaveLocked(ctx context.Context, acct *model.Account, e model.LedgerEntry) (*model.Account, error) {
	entry, err := ledger.Append(acct, e)
	if err != nil {
		return nil, err
	}
	s.adjustCash(acct, entry.Amount)
	s.pushSnapshot(acct, entry.TS)
	if err := s.store.UpdateAccount(ctx, acct); err != nil {
		return nil, err
	}
	metrics.LedgerEntriesTotal.WithLabelValues(string(entry.Type)).Inc()
	s.bus.Publish(pubsub.Event{Topic: pubsub.TopicLedgerChanged, Account: acct.Email})
	return acct, nil
}

// Position is one row of a portfolio view: a holding marked at the
// current price.
type Position struct {
	Symbol        string          `json:"symbol"`
	Qty           decimal.Decimal `json:"qty"`
	AvgCost       decimal.Decimal `json:"avg_cost"`
	Price         decimal.Decimal `json:"price"`
	Value         decimal.Decimal `json:"value"`
	UnrealizedPnL decimal.Decimal `json:"unrealized_pnl"`
}

// Portfolio aggregates an account's positions with mark-to-market totals.
type Portfolio struct {
	Email      string          `json:"email"`
	Cash       decimal.Decimal `json:"cash"`
	Unlimited  bool            `json:"unlimited"`
	Positions  []Position      `json:"positions"`
	TotalValue decimal.Decimal `json:"total_value"`
	TotalPnL   decimal.Decimal `json:"total_pnl"`
}

// GetPortfolio marks all holdings at current prices and aggregates
// unrealized P&L against the avg-cost basis.
func (s *Service) GetPortfolio(ctx context.Context, email string) (*Portfolio, error) {
	acct, err := s.store.GetAccount(ctx, email)
	if err != nil {
		return nil, err
	}

	p := &Portfolio{
		Email:     acct.Email,
		Cash:      acct.Cash,
		Unlimited: acct.Unlimited,
		Positions: []Position{},
	}
	totalValue := decimal.Zero
	totalPnL := decimal.Zero

	for sym, h := range acct.Holdings {
		price, err := s.market.CurrentPrice(sym)
		if err != nil {
			continue
		}
		value := h.Qty.Mul(price).Round(2)
		pnl := price.Sub(h.AvgCost).Mul(h.Qty).Round(2)
		p.Positions = append(p.Positions, Position{
			Symbol:        sym,
			Qty:           h.Qty,
			AvgCost:       h.AvgCost,
			Price:         price,
			Value:         value,
			UnrealizedPnL: pnl,
		})
		totalValue = totalValue.Add(value)
		totalPnL = totalPnL.Add(pnl)
	}
	p.TotalValue = totalValue
	p.TotalPnL = totalPnL

	// Cheap self-check: the cached balance must match the ledger fold for
	// bounded accounts whose history fits under the cap.
	if !acct.Unlimited && len(acct.Ledger) < ledger.MaxEntries {
		if derived := ledger.CashBalance(acct.Ledger); !derived.Equal(acct.Cash) {
			slog.Error("cash cache diverged from ledger replay",
				"email", acct.Email, "cached", acct.Cash.String(), "derived", derived.String())
		}
	}
	return p, nil
}

// Package account implements the order execution unit and all other
// cash-affecting account operations: top-ups, withdrawals, premium
// subscription, and admin gifts. Every mutation validates its
// preconditions before touching state and persists the account exactly
// once, so a failed operation leaves nothing behind.
package account

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/pocketwealth/market-sim/internal/ledger"
	"github.com/pocketwealth/market-sim/internal/metrics"
	"github.com/pocketwealth/market-sim/internal/model"
	"github.com/pocketwealth/market-sim/internal/pubsub"
	"github.com/pocketwealth/market-sim/internal/store"
)

// Market is the slice of the engine the account service needs: metadata
// lookups for validation and current prices for snapshot valuation.
type Market interface {
	Instrument(symbol string) (model.Instrument, bool)
	CurrentPrice(symbol string) (decimal.Decimal, error)
}

// Service handles account operations. Uses a mutex for serialized
// execution (single instance); a multi-process deployment must serialize
// writes externally to preserve the ledger invariants.
type Service struct {
	store  store.Store
	market Market
	bus    *pubsub.Bus
	mu     sync.Mutex

	minTrade   decimal.Decimal // minimum buy value for bounded accounts
	premiumFee decimal.Decimal // monthly premium subscription charge
}

// NewService creates an account service with the standard minimum trade
// value of 10.00 and premium fee of 20.00.
func NewService(st store.Store, market Market, bus *pubsub.Bus) *Service {
	return &Service{
		store:      st,
		market:     market,
		bus:        bus,
		minTrade:   decimal.NewFromInt(10),
		premiumFee: decimal.NewFromInt(20),
	}
}

// Register creates a new member account with zero cash.
func (s *Service) Register(ctx context.Context, email, name string) (*model.Account, error) {
	if email == "" {
		return nil, &model.ValidationError{Message: "email is required"}
	}
	acct := &model.Account{
		ID:        uuid.New().String(),
		Email:     email,
		Name:      name,
		Role:      "member",
		Cash:      decimal.Zero,
		Holdings:  make(map[string]model.Holding),
		CreatedAt: time.Now().UTC(),
	}
	if err := s.store.CreateAccount(ctx, acct); err != nil {
		return nil, err
	}
	slog.Info("account registered", "email", email)
	return acct, nil
}

// Get returns the account for an email.
func (s *Service) Get(ctx context.Context, email string) (*model.Account, error) {
	return s.store.GetAccount(ctx, email)
}

// OrderRequest carries one buy or sell with its price lock: the snapshot
// price captured at order-initiation time is used verbatim for execution
// even if the displayed price has since moved.
type OrderRequest struct {
	Email          string
	Symbol         string
	Side           model.Side
	Qty            decimal.Decimal
	SnapPrice      decimal.Decimal
	SnapTime       time.Time
	Fee            decimal.Decimal // optional flat fee (DIY trades)
	Note           string
	IdempotencyKey string
}

// OrderResult reports the outcome of an executed order.
type OrderResult struct {
	NewQty    decimal.Decimal `json:"new_qty"`
	AvgCost   decimal.Decimal `json:"avg_cost"`
	CashDelta decimal.Decimal `json:"cash_delta"`
	Cash      decimal.Decimal `json:"cash"`
	EntryID   string          `json:"entry_id"`
}

// ExecuteOrder converts an order plus a price snapshot into a holdings
// mutation, a signed cash delta, and exactly one BUY/SELL ledger entry
// (plus a FEE entry when a flat fee applies). Execution is atomic from the
// caller's perspective: any precondition failure happens before the first
// mutation, and the account is persisted in a single write.
func (s *Service) ExecuteOrder(ctx context.Context, req OrderRequest) (*OrderResult, error) {
	if err := validateOrder(req); err != nil {
		return nil, err
	}

	in, ok := s.market.Instrument(req.Symbol)
	if !ok {
		metrics.TradeRejections.WithLabelValues("unknown_instrument").Inc()
		return nil, model.ErrUnknownInstrument
	}
	if in.Frozen {
		metrics.TradeRejections.WithLabelValues("frozen").Inc()
		return nil, model.ErrFrozenInstrument
	}

	// Serialize execution; account state is re-fetched under the lock so
	// no stale read spans the mutation.
	s.mu.Lock()
	defer s.mu.Unlock()

	acct, err := s.store.GetAccount(ctx, req.Email)
	if err != nil {
		return nil, err
	}
	if req.IdempotencyKey != "" && ledger.HasEntry(acct, req.IdempotencyKey) {
		metrics.IdempotentReplays.Inc()
		return s.replayResult(acct, req), nil
	}

	qty := req.Qty.Round(6)
	total := qty.Mul(req.SnapPrice).Round(2)
	snapTime := req.SnapTime
	if snapTime.IsZero() {
		snapTime = time.Now().UTC()
	}

	var result *OrderResult
	switch req.Side {
	case model.SideBuy:
		result, err = s.applyBuy(acct, req, qty, total, snapTime)
	case model.SideSell:
		result, err = s.applySell(acct, req, qty, total, snapTime)
	}
	if err != nil {
		return nil, err
	}

	s.pushSnapshot(acct, snapTime)
	if err := s.store.UpdateAccount(ctx, acct); err != nil {
		// Persistence failure is fatal to the operation; nothing was
		// published, and the in-memory mutation is discarded.
		return nil, err
	}

	metrics.TradesTotal.WithLabelValues(string(req.Side)).Inc()
	metrics.LedgerEntriesTotal.WithLabelValues(string(req.Side)).Inc()
	s.bus.Publish(pubsub.Event{Topic: pubsub.TopicLedgerChanged, Account: acct.Email})
	slog.Info("order executed",
		"email", acct.Email,
		"symbol", req.Symbol,
		"side", req.Side,
		"qty", qty.String(),
		"price", req.SnapPrice.String(),
		"cash_delta", result.CashDelta.String(),
	)
	return result, nil
}

func validateOrder(req OrderRequest) error {
	if req.Email == "" {
		return &model.ValidationError{Message: "email is required"}
	}
	if req.Side != model.SideBuy && req.Side != model.SideSell {
		return &model.ValidationError{Message: "side must be BUY or SELL"}
	}
	if !req.Qty.IsPositive() {
		return &model.ValidationError{Message: "quantity must be positive"}
	}
	if !req.SnapPrice.IsPositive() {
		return &model.ValidationError{Message: "snapshot price must be positive"}
	}
	if req.Fee.IsNegative() {
		return &model.ValidationError{Message: "fee must not be negative"}
	}
	return nil
}

func (s *Service) applyBuy(acct *model.Account, req OrderRequest, qty, total decimal.Decimal, ts time.Time) (*OrderResult, error) {
	cost := total.Add(req.Fee)
	if !acct.Unlimited {
		if total.LessThan(s.minTrade) {
			metrics.TradeRejections.WithLabelValues("below_minimum").Inc()
			return nil, model.ErrBelowMinimumTrade
		}
		if acct.Cash.LessThan(cost) {
			metrics.TradeRejections.WithLabelValues("insufficient_funds").Inc()
			return nil, model.ErrInsufficientFunds
		}
	}

	holding := ledger.ApplyBuy(acct.Holdings[req.Symbol], qty, req.SnapPrice)
	acct.Holdings[req.Symbol] = holding

	entry, _ := ledger.Append(acct, model.LedgerEntry{
		ID:     req.IdempotencyKey,
		TS:     ts,
		Type:   model.EntryBuy,
		Symbol: req.Symbol,
		Qty:    qty,
		Price:  req.SnapPrice,
		Amount: total.Neg(),
		Fee:    req.Fee,
		Note:   req.Note,
	})
	s.adjustCash(acct, total.Neg())
	if req.Fee.IsPositive() {
		s.appendFee(acct, req.Fee, ts, "trade fee")
	}

	return &OrderResult{
		NewQty:    holding.Qty,
		AvgCost:   holding.AvgCost,
		CashDelta: cost.Neg(),
		Cash:      acct.Cash,
		EntryID:   entry.ID,
	}, nil
}

func (s *Service) applySell(acct *model.Account, req OrderRequest, qty, total decimal.Decimal, ts time.Time) (*OrderResult, error) {
	holding, ok := acct.Holdings[req.Symbol]
	if !ok || !holding.Qty.IsPositive() {
		metrics.TradeRejections.WithLabelValues("no_holdings").Inc()
		return nil, model.ErrNoHoldings
	}
	if qty.GreaterThan(holding.Qty) {
		metrics.TradeRejections.WithLabelValues("insufficient_quantity").Inc()
		return nil, model.ErrInsufficientQuantity
	}

	next := ledger.ApplySell(holding, qty)
	if next.Qty.IsZero() {
		delete(acct.Holdings, req.Symbol)
	} else {
		acct.Holdings[req.Symbol] = next
	}

	entry, _ := ledger.Append(acct, model.LedgerEntry{
		ID:     req.IdempotencyKey,
		TS:     ts,
		Type:   model.EntrySell,
		Symbol: req.Symbol,
		Qty:    qty.Neg(),
		Price:  req.SnapPrice,
		Amount: total,
		Fee:    req.Fee,
		Note:   req.Note,
	})
	s.adjustCash(acct, total)
	if req.Fee.IsPositive() {
		s.appendFee(acct, req.Fee, ts, "trade fee")
	}

	return &OrderResult{
		NewQty:    next.Qty,
		AvgCost:   next.AvgCost,
		CashDelta: total.Sub(req.Fee),
		Cash:      acct.Cash,
		EntryID:   entry.ID,
	}, nil
}

// replayResult reconstructs a stable response for an idempotent order
// replay from the account's current state.
func (s *Service) replayResult(acct *model.Account, req OrderRequest) *OrderResult {
	h := acct.Holdings[req.Symbol]
	return &OrderResult{
		NewQty:  h.Qty,
		AvgCost: h.AvgCost,
		Cash:    acct.Cash,
		EntryID: req.IdempotencyKey,
	}
}

func (s *Service) appendFee(acct *model.Account, fee decimal.Decimal, ts time.Time, note string) {
	ledger.Append(acct, model.LedgerEntry{
		TS:     ts,
		Type:   model.EntryFee,
		Amount: fee.Neg(),
		Note:   note,
	})
	s.adjustCash(acct, fee.Neg())
	metrics.LedgerEntriesTotal.WithLabelValues(string(model.EntryFee)).Inc()
}

// adjustCash maintains the incremental cash cache. Unlimited accounts skip
// cash accounting entirely; their ledger still records the flow.
func (s *Service) adjustCash(acct *model.Account, delta decimal.Decimal) {
	if acct.Unlimited {
		return
	}
	acct.Cash = acct.Cash.Add(delta).Round(2)
}

// pushSnapshot records (or overwrites) today's portfolio-value snapshot:
// cash plus holdings marked at current prices.
func (s *Service) pushSnapshot(acct *model.Account, ts time.Time) {
	total := decimal.Zero
	if !acct.Unlimited {
		total = acct.Cash
	}
	for sym, h := range acct.Holdings {
		price, err := s.market.CurrentPrice(sym)
		if err != nil {
			continue
		}
		total = total.Add(h.Qty.Mul(price))
	}
	total = total.Round(2)

	day := ts.UTC().Truncate(24 * time.Hour)
	if n := len(acct.Snapshots); n > 0 {
		last := &acct.Snapshots[n-1]
		if last.TS.UTC().Truncate(24*time.Hour).Equal(day) {
			last.TS = ts
			last.Total = total
			return
		}
	}
	acct.Snapshots = append(acct.Snapshots, model.Snapshot{TS: ts, Total: total})
}

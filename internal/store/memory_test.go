package store_test

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/pocketwealth/market-sim/internal/model"
	"github.com/pocketwealth/market-sim/internal/store"
)

func d(f float64) decimal.Decimal {
	return decimal.NewFromFloat(f)
}

func newAccount(email string) *model.Account {
	return &model.Account{
		ID:       "id-" + email,
		Email:    email,
		Role:     "member",
		Cash:     d(100),
		Holdings: map[string]model.Holding{"PWSTK": {Qty: d(2), AvgCost: d(10)}},
	}
}

func TestAccounts_CreateGetUpdateDelete(t *testing.T) {
	ms := store.NewMemoryStore()
	ctx := context.Background()

	if err := ms.CreateAccount(ctx, newAccount("jo@example.com")); err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if err := ms.CreateAccount(ctx, newAccount("jo@example.com")); !errors.Is(err, model.ErrAccountExists) {
		t.Errorf("expected ErrAccountExists, got %v", err)
	}

	got, err := ms.GetAccount(ctx, "jo@example.com")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if !got.Cash.Equal(d(100)) {
		t.Errorf("expected cash 100, got %s", got.Cash)
	}

	got.Cash = d(250)
	if err := ms.UpdateAccount(ctx, got); err != nil {
		t.Fatalf("update failed: %v", err)
	}
	again, _ := ms.GetAccount(ctx, "jo@example.com")
	if !again.Cash.Equal(d(250)) {
		t.Errorf("update not visible, got %s", again.Cash)
	}

	if err := ms.DeleteAccount(ctx, "jo@example.com"); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	if _, err := ms.GetAccount(ctx, "jo@example.com"); !errors.Is(err, model.ErrAccountNotFound) {
		t.Errorf("expected ErrAccountNotFound after delete, got %v", err)
	}
}

func TestAccounts_EmailLookupIsCaseInsensitive(t *testing.T) {
	ms := store.NewMemoryStore()
	ctx := context.Background()
	ms.CreateAccount(ctx, newAccount("Jo@Example.com"))

	if _, err := ms.GetAccount(ctx, "jo@example.com"); err != nil {
		t.Errorf("lowercase lookup failed: %v", err)
	}
}

func TestAccounts_ReturnsCopies(t *testing.T) {
	ms := store.NewMemoryStore()
	ctx := context.Background()
	ms.CreateAccount(ctx, newAccount("jo@example.com"))

	first, _ := ms.GetAccount(ctx, "jo@example.com")
	first.Holdings["PWSTK"] = model.Holding{Qty: d(999), AvgCost: d(1)}
	first.Ledger = append(first.Ledger, model.LedgerEntry{ID: "rogue"})

	second, _ := ms.GetAccount(ctx, "jo@example.com")
	if second.Holdings["PWSTK"].Qty.Equal(d(999)) {
		t.Error("caller mutation leaked into the store")
	}
	if len(second.Ledger) != 0 {
		t.Error("ledger mutation leaked into the store")
	}
}

func TestUpdateAccount_MissingAccount(t *testing.T) {
	ms := store.NewMemoryStore()
	err := ms.UpdateAccount(context.Background(), newAccount("ghost@example.com"))
	if !errors.Is(err, model.ErrAccountNotFound) {
		t.Errorf("expected ErrAccountNotFound, got %v", err)
	}
}

func TestMarketData_SaveAndLoad(t *testing.T) {
	ms := store.NewMemoryStore()
	ctx := context.Background()

	ins := []model.Instrument{{Symbol: "PWSTK", Name: "Stock", BasePrice: d(10), VolClass: model.VolMed}}
	if err := ms.SaveInstruments(ctx, ins); err != nil {
		t.Fatalf("save instruments failed: %v", err)
	}
	loaded, err := ms.LoadInstruments(ctx)
	if err != nil || len(loaded) != 1 {
		t.Fatalf("load instruments: %v (%d)", err, len(loaded))
	}

	if err := ms.SaveLastPrice(ctx, "PWSTK", d(10.5)); err != nil {
		t.Fatalf("save last price failed: %v", err)
	}
	prices, err := ms.LoadLastPrices(ctx)
	if err != nil {
		t.Fatalf("load last prices failed: %v", err)
	}
	if !prices["PWSTK"].Equal(d(10.5)) {
		t.Errorf("expected 10.5, got %s", prices["PWSTK"])
	}

	series := []model.PricePoint{{Price: d(10.5)}}
	if err := ms.SaveSeries(ctx, "PWSTK", series); err != nil {
		t.Fatalf("save series failed: %v", err)
	}
	pts, _ := ms.LoadSeries(ctx, "PWSTK")
	if len(pts) != 1 {
		t.Fatalf("expected 1 point, got %d", len(pts))
	}

	if err := ms.ClearMarketData(ctx); err != nil {
		t.Fatalf("clear failed: %v", err)
	}
	prices, _ = ms.LoadLastPrices(ctx)
	if len(prices) != 0 {
		t.Errorf("expected no prices after clear, got %d", len(prices))
	}
	pts, _ = ms.LoadSeries(ctx, "PWSTK")
	if len(pts) != 0 {
		t.Errorf("expected no series after clear, got %d", len(pts))
	}
	// Instruments survive a market-data clear.
	loaded, _ = ms.LoadInstruments(ctx)
	if len(loaded) != 1 {
		t.Errorf("instruments should survive clear, got %d", len(loaded))
	}
}

func TestEngineFlags_DefaultThenPersisted(t *testing.T) {
	ms := store.NewMemoryStore()
	ctx := context.Background()

	running, mood, err := ms.LoadEngineFlags(ctx)
	if err != nil {
		t.Fatalf("load flags failed: %v", err)
	}
	if !running || mood != model.MoodNormal {
		t.Errorf("expected default running/normal, got %v/%s", running, mood)
	}

	if err := ms.SaveEngineFlags(ctx, false, model.MoodVolatile); err != nil {
		t.Fatalf("save flags failed: %v", err)
	}
	running, mood, _ = ms.LoadEngineFlags(ctx)
	if running || mood != model.MoodVolatile {
		t.Errorf("expected stopped/volatile, got %v/%s", running, mood)
	}
}

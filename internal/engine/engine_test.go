package engine

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/pocketwealth/market-sim/internal/model"
	"github.com/pocketwealth/market-sim/internal/pubsub"
	"github.com/pocketwealth/market-sim/internal/store"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	cfg := DefaultConfig()
	cfg.Seed = 42
	e := New(cfg, store.NewMemoryStore(), pubsub.NewBus())
	if err := e.Load(context.Background()); err != nil {
		t.Fatalf("load failed: %v", err)
	}
	return e
}

// drive advances one symbol n ticks without the jittered timers.
func drive(e *Engine, symbol string, n int) {
	ctx := context.Background()
	e.mu.Lock()
	defer e.mu.Unlock()
	for i := 0; i < n; i++ {
		e.tickLocked(ctx, symbol)
	}
}

func TestLoad_RegistryFromCatalog(t *testing.T) {
	e := newTestEngine(t)
	ins := e.Instruments()
	if len(ins) != 17 {
		t.Fatalf("expected 17 instruments (13 default + 4 certified), got %d", len(ins))
	}
	if _, ok := e.Instrument("PWSTK"); !ok {
		t.Error("PWSTK missing after load")
	}
	if !e.Running() {
		t.Error("engine should default to running on first load")
	}
}

func TestCurrentPrice_FallsBackToBase(t *testing.T) {
	e := newTestEngine(t)
	p, err := e.CurrentPrice("PWETF")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !p.Equal(decimal.RequireFromString("100.00")) {
		t.Errorf("expected base price 100.00, got %s", p)
	}
}

func TestCurrentPrice_UnknownSymbol(t *testing.T) {
	e := newTestEngine(t)
	if _, err := e.CurrentPrice("NOPE"); err != model.ErrUnknownInstrument {
		t.Errorf("expected ErrUnknownInstrument, got %v", err)
	}
}

func TestTick_PriceChangesAndStaysPositive(t *testing.T) {
	e := newTestEngine(t)
	for _, sym := range []string{"PWETF", "PWSTK", "OILFUT"} { // low, med, high vol
		drive(e, sym, 10000)
		p, err := e.CurrentPrice(sym)
		if err != nil {
			t.Fatalf("%s: %v", sym, err)
		}
		if !p.IsPositive() {
			t.Errorf("%s: price must stay positive after 10k ticks, got %s", sym, p)
		}
	}
}

func TestTick_TinyPriceNeverReachesZero(t *testing.T) {
	e := newTestEngine(t)
	e.mu.Lock()
	e.last["PWSTK"] = decimal.RequireFromString("0.0001")
	e.mu.Unlock()

	drive(e, "PWSTK", 1000)
	p, _ := e.CurrentPrice("PWSTK")
	if !p.IsPositive() {
		t.Errorf("price collapsed to %s", p)
	}
}

func TestTick_SeriesCapDropsOldest(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Seed = 7
	cfg.SeriesMax = 10
	e := New(cfg, store.NewMemoryStore(), pubsub.NewBus())
	if err := e.Load(context.Background()); err != nil {
		t.Fatalf("load failed: %v", err)
	}

	drive(e, "PWSTK", 25)
	series, err := e.Series("PWSTK")
	if err != nil {
		t.Fatalf("series failed: %v", err)
	}
	if len(series) != 10 {
		t.Fatalf("expected capped series of 10, got %d", len(series))
	}
	for i := 1; i < len(series); i++ {
		if series[i].TS.Before(series[i-1].TS) {
			t.Errorf("series out of order at %d", i)
		}
	}
}

func TestFreeze_TicksAreNoOps(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	if err := e.Freeze(ctx, "PWSTK", true); err != nil {
		t.Fatalf("freeze failed: %v", err)
	}

	before, _ := e.CurrentPrice("PWSTK")
	seriesBefore, _ := e.Series("PWSTK")

	drive(e, "PWSTK", 100)

	after, _ := e.CurrentPrice("PWSTK")
	seriesAfter, _ := e.Series("PWSTK")

	if !after.Equal(before) {
		t.Errorf("frozen price moved: %s -> %s", before, after)
	}
	if len(seriesAfter) != len(seriesBefore) {
		t.Errorf("frozen series grew: %d -> %d", len(seriesBefore), len(seriesAfter))
	}

	// Unfreezing resumes normal tick behavior.
	if err := e.Freeze(ctx, "PWSTK", false); err != nil {
		t.Fatalf("unfreeze failed: %v", err)
	}
	drive(e, "PWSTK", 50)
	seriesResumed, _ := e.Series("PWSTK")
	if len(seriesResumed) == len(seriesBefore) {
		t.Error("unfrozen instrument should tick again")
	}
}

func TestFreeze_UnknownSymbol(t *testing.T) {
	e := newTestEngine(t)
	if err := e.Freeze(context.Background(), "NOPE", true); err != model.ErrUnknownInstrument {
		t.Errorf("expected ErrUnknownInstrument, got %v", err)
	}
}

func TestStart_SeedsHistory(t *testing.T) {
	e := newTestEngine(t)
	if err := e.Start(context.Background()); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	defer e.Pause(context.Background())

	if !e.Running() {
		t.Error("engine should report running")
	}
	series, err := e.Series("PWSTK")
	if err != nil {
		t.Fatalf("series failed: %v", err)
	}
	if len(series) != DefaultConfig().SeedPoints {
		t.Errorf("expected %d seeded points, got %d", DefaultConfig().SeedPoints, len(series))
	}
	for _, pt := range series {
		if !pt.Price.IsPositive() {
			t.Errorf("seeded price not positive: %s at %s", pt.Price, pt.TS)
		}
	}
}

func TestPause_StopsTimers(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	if err := e.Start(ctx); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	if err := e.Pause(ctx); err != nil {
		t.Fatalf("pause failed: %v", err)
	}
	if e.Running() {
		t.Error("engine should report stopped")
	}
	e.mu.Lock()
	remaining := len(e.timers)
	e.mu.Unlock()
	if remaining != 0 {
		t.Errorf("expected all timers cleared, %d remain", remaining)
	}
}

func TestNudge_AppliesPercentMove(t *testing.T) {
	e := newTestEngine(t)
	p, err := e.Nudge(context.Background(), "PWETF", 5)
	if err != nil {
		t.Fatalf("nudge failed: %v", err)
	}
	if !p.Equal(decimal.RequireFromString("105.00")) {
		t.Errorf("expected 105.00 after +5%% nudge from base 100, got %s", p)
	}
	series, _ := e.Series("PWETF")
	if len(series) == 0 {
		t.Fatal("nudge should append a series point")
	}
	if !series[len(series)-1].Price.Equal(p) {
		t.Errorf("last series point %s != nudged price %s", series[len(series)-1].Price, p)
	}
}

func TestReset_RestoresBasePrices(t *testing.T) {
	e := newTestEngine(t)
	drive(e, "PWSTK", 500)
	if _, err := e.Nudge(context.Background(), "PWSTK", 50); err != nil {
		t.Fatalf("nudge failed: %v", err)
	}

	if err := e.Reset(context.Background()); err != nil {
		t.Fatalf("reset failed: %v", err)
	}
	p, _ := e.CurrentPrice("PWSTK")
	if !p.Equal(decimal.RequireFromString("10.00")) {
		t.Errorf("expected base price 10.00 after reset, got %s", p)
	}
	series, _ := e.Series("PWSTK")
	if len(series) != DefaultConfig().SeedPoints {
		t.Errorf("reset should reseed history, got %d points", len(series))
	}
}

func TestSetMood_Persists(t *testing.T) {
	st := store.NewMemoryStore()
	cfg := DefaultConfig()
	cfg.Seed = 3
	e := New(cfg, st, pubsub.NewBus())
	ctx := context.Background()
	if err := e.Load(ctx); err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if err := e.SetMood(ctx, model.MoodVolatile); err != nil {
		t.Fatalf("set mood failed: %v", err)
	}
	if e.Mood() != model.MoodVolatile {
		t.Errorf("expected volatile, got %s", e.Mood())
	}

	// A second engine on the same store sees the persisted mood.
	e2 := New(cfg, st, pubsub.NewBus())
	if err := e2.Load(ctx); err != nil {
		t.Fatalf("reload failed: %v", err)
	}
	if e2.Mood() != model.MoodVolatile {
		t.Errorf("mood not persisted, got %s", e2.Mood())
	}
}

func TestTick_PublishesPriceEvents(t *testing.T) {
	bus := pubsub.NewBus()
	cfg := DefaultConfig()
	cfg.Seed = 11
	e := New(cfg, store.NewMemoryStore(), bus)
	if err := e.Load(context.Background()); err != nil {
		t.Fatalf("load failed: %v", err)
	}
	sub := bus.Subscribe(64, pubsub.TopicPriceTick)
	defer bus.Unsubscribe(sub)

	drive(e, "PWSTK", 1)

	select {
	case ev := <-sub.C:
		if ev.Symbol != "PWSTK" {
			t.Errorf("unexpected symbol %q", ev.Symbol)
		}
		if _, ok := ev.Data.(string); !ok {
			t.Errorf("expected price string payload, got %T", ev.Data)
		}
	case <-time.After(time.Second):
		t.Fatal("no tick event published")
	}
}

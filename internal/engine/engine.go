// Package engine drives the simulated market: a random-walk price series
// generator per instrument, an independently jittered tick scheduler, and
// the registry of instrument metadata with admin controls (freeze, nudge,
// mood).
//
// The engine is the single writer of price state. Tick handlers run under
// one mutex and are O(1) in series length (bounded by the cap), so ticks
// never queue up behind each other.
package engine

import (
	"context"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/pocketwealth/market-sim/internal/catalog"
	"github.com/pocketwealth/market-sim/internal/metrics"
	"github.com/pocketwealth/market-sim/internal/model"
	"github.com/pocketwealth/market-sim/internal/pubsub"
	"github.com/pocketwealth/market-sim/internal/store"
)

// sigma per volatility class, scaled by the global mood multiplier.
var volSigma = map[model.VolClass]float64{
	model.VolLow:  0.002,
	model.VolMed:  0.006,
	model.VolHigh: 0.02,
}

const (
	priceScale     = 4
	microEventProb = 0.01
)

// Config controls tick cadence and series shape.
type Config struct {
	TickMin    time.Duration // lower bound of the jittered tick delay
	TickMax    time.Duration // exclusive upper bound
	SeriesMax  int           // FIFO cap per series
	SeedPoints int           // synthetic history seeded into an empty series
	Seed       int64         // RNG seed; 0 means time-based
}

// DefaultConfig matches the production cadence: ticks every [3s, 7s),
// series capped at 500 points, 60 minutes of seeded history.
func DefaultConfig() Config {
	return Config{
		TickMin:    3 * time.Second,
		TickMax:    7 * time.Second,
		SeriesMax:  500,
		SeedPoints: 60,
	}
}

// Engine owns all mutable market state: the instrument registry, per-symbol
// price series, last prices, the running flag and mood, and one timer per
// instrument. Admin actions and ticks serialize on the same mutex.
type Engine struct {
	mu    sync.Mutex
	cfg   Config
	store store.Store
	bus   *pubsub.Bus
	rng   *rand.Rand

	instruments map[string]*model.Instrument
	order       []string // registry iteration order (insertion)
	series      map[string][]model.PricePoint
	last        map[string]decimal.Decimal

	running bool
	mood    model.Mood
	timers  map[string]*time.Timer
}

// New creates an engine bound to a store and notification bus. Call Load
// before Start to hydrate persisted state.
func New(cfg Config, st store.Store, bus *pubsub.Bus) *Engine {
	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	if cfg.SeriesMax <= 0 {
		cfg.SeriesMax = DefaultConfig().SeriesMax
	}
	if cfg.SeedPoints <= 0 {
		cfg.SeedPoints = DefaultConfig().SeedPoints
	}
	if cfg.TickMin <= 0 || cfg.TickMax <= cfg.TickMin {
		cfg.TickMin = DefaultConfig().TickMin
		cfg.TickMax = DefaultConfig().TickMax
	}
	return &Engine{
		cfg:         cfg,
		store:       st,
		bus:         bus,
		rng:         rand.New(rand.NewSource(seed)),
		instruments: make(map[string]*model.Instrument),
		series:      make(map[string][]model.PricePoint),
		last:        make(map[string]decimal.Decimal),
		mood:        model.MoodNormal,
		timers:      make(map[string]*time.Timer),
	}
}

// Load hydrates the registry, series, last prices, and control flags from
// the store, running the catalog migration against whatever was persisted.
// The merged registry is written back when the migration changed anything.
func (e *Engine) Load(ctx context.Context) error {
	stored, err := e.store.LoadInstruments(ctx)
	if err != nil {
		return err
	}
	merged, changed := catalog.Migrate(stored)
	if changed {
		if err := e.store.SaveInstruments(ctx, merged); err != nil {
			return err
		}
		slog.Info("instrument registry migrated", "instruments", len(merged))
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	e.instruments = make(map[string]*model.Instrument, len(merged))
	e.order = e.order[:0]
	for i := range merged {
		in := merged[i]
		e.instruments[in.Symbol] = &in
		e.order = append(e.order, in.Symbol)
	}

	prices, err := e.store.LoadLastPrices(ctx)
	if err != nil {
		return err
	}
	e.last = prices

	for _, sym := range e.order {
		pts, err := e.store.LoadSeries(ctx, sym)
		if err != nil {
			return err
		}
		if pts != nil {
			e.series[sym] = pts
		}
	}

	running, mood, err := e.store.LoadEngineFlags(ctx)
	if err != nil {
		return err
	}
	e.running = running
	e.mood = mood
	return nil
}

// Start marks the engine running, (re)seeds last price and series for every
// registered instrument, and arms one jittered timer per instrument.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.running = true
	if err := e.store.SaveEngineFlags(ctx, true, e.mood); err != nil {
		return err
	}
	for _, sym := range e.order {
		e.seedLocked(ctx, sym)
		e.scheduleLocked(sym)
	}
	slog.Info("market engine started", "instruments", len(e.order), "mood", e.mood)
	return nil
}

// Pause clears all pending timers and marks the engine stopped. Timers that
// fire concurrently with Pause see running=false and reschedule as a no-op.
func (e *Engine) Pause(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.running = false
	for sym, t := range e.timers {
		t.Stop()
		delete(e.timers, sym)
	}
	slog.Info("market engine paused")
	return e.store.SaveEngineFlags(ctx, false, e.mood)
}

// Reset restores the registry from the built-in catalogs, drops all series
// and last prices, and reseeds from base prices. Timers are rearmed when
// the engine is running.
func (e *Engine) Reset(ctx context.Context) error {
	merged, _ := catalog.Migrate(nil)
	if err := e.store.SaveInstruments(ctx, merged); err != nil {
		return err
	}
	if err := e.store.ClearMarketData(ctx); err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	e.instruments = make(map[string]*model.Instrument, len(merged))
	e.order = e.order[:0]
	for i := range merged {
		in := merged[i]
		e.instruments[in.Symbol] = &in
		e.order = append(e.order, in.Symbol)
	}
	e.series = make(map[string][]model.PricePoint)
	e.last = make(map[string]decimal.Decimal)

	for _, sym := range e.order {
		e.last[sym] = e.instruments[sym].BasePrice
		e.persistLastLocked(ctx, sym)
		e.seedLocked(ctx, sym)
		if e.running {
			e.scheduleLocked(sym)
		}
	}
	slog.Info("market engine reset", "instruments", len(e.order))
	return nil
}

// SetMood switches the global volatility multiplier.
func (e *Engine) SetMood(ctx context.Context, mood model.Mood) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.mood = mood
	return e.store.SaveEngineFlags(ctx, e.running, mood)
}

// Mood returns the current global mood.
func (e *Engine) Mood() model.Mood {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.mood
}

// Running reports the engine control flag.
func (e *Engine) Running() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.running
}

// Instrument returns registry metadata for one symbol.
func (e *Engine) Instrument(symbol string) (model.Instrument, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	in, ok := e.instruments[symbol]
	if !ok {
		return model.Instrument{}, false
	}
	return *in, true
}

// Instruments returns the registry in insertion order.
func (e *Engine) Instruments() []model.Instrument {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make([]model.Instrument, 0, len(e.order))
	for _, sym := range e.order {
		out = append(out, *e.instruments[sym])
	}
	return out
}

// CurrentPrice returns the last generated price, falling back to the base
// price when no tick has run yet.
func (e *Engine) CurrentPrice(symbol string) (decimal.Decimal, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	in, ok := e.instruments[symbol]
	if !ok {
		return decimal.Zero, model.ErrUnknownInstrument
	}
	if p, ok := e.last[symbol]; ok && p.IsPositive() {
		return p, nil
	}
	return in.BasePrice, nil
}

// Series returns a copy of the bounded price series for one symbol.
func (e *Engine) Series(symbol string) ([]model.PricePoint, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, ok := e.instruments[symbol]; !ok {
		return nil, model.ErrUnknownInstrument
	}
	return append([]model.PricePoint(nil), e.series[symbol]...), nil
}

// Freeze sets or clears the frozen flag. A frozen instrument's ticks skip
// generation entirely; admin reads reflect the flag immediately.
func (e *Engine) Freeze(ctx context.Context, symbol string, frozen bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	in, ok := e.instruments[symbol]
	if !ok {
		return model.ErrUnknownInstrument
	}
	in.Frozen = frozen
	return e.persistInstrumentsLocked(ctx)
}

// Nudge applies an immediate percentage move outside the tick cycle and
// records it as a series point.
func (e *Engine) Nudge(ctx context.Context, symbol string, pct float64) (decimal.Decimal, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	in, ok := e.instruments[symbol]
	if !ok {
		return decimal.Zero, model.ErrUnknownInstrument
	}
	last := e.lastLocked(symbol, in)
	next := last.Mul(decimal.NewFromFloat(1 + pct/100)).Round(priceScale)
	if !next.IsPositive() {
		next = last
	}
	e.appendPointLocked(ctx, symbol, next, time.Now().UTC())
	e.bus.Publish(pubsub.Event{Topic: pubsub.TopicPriceTick, Symbol: symbol, Data: next.String()})
	return next, nil
}

// tick advances one instrument's price and reschedules itself. Fires on a
// timer goroutine; all state access is under the engine mutex.
func (e *Engine) tick(symbol string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.running {
		// Paused: keep the timer chain alive so resume needs no rearm.
		e.scheduleLocked(symbol)
		return
	}
	e.tickLocked(context.Background(), symbol)
	e.scheduleLocked(symbol)
}

func (e *Engine) tickLocked(ctx context.Context, symbol string) {
	in, ok := e.instruments[symbol]
	if !ok || in.Frozen {
		return
	}

	last := e.lastLocked(symbol, in)
	sigma := volSigma[in.VolClass] * e.mood.Multiplier()
	drift := (e.rng.Float64() - 0.5) * sigma * 0.2
	shock := (e.rng.Float64() - 0.5) * sigma * 2

	next := last.Mul(decimal.NewFromFloat(1 + in.Drift + drift + shock)).Round(priceScale)
	if !next.IsPositive() {
		// Numeric-stability guard: reuse the prior price.
		next = last
	}

	if e.rng.Float64() < microEventProb {
		mag := 0.01 + e.rng.Float64()*0.02
		kind := "micro-news-up"
		if e.rng.Float64() < 0.5 {
			mag = -mag
			kind = "micro-news-down"
		}
		bumped := next.Mul(decimal.NewFromFloat(1 + mag)).Round(priceScale)
		if bumped.IsPositive() {
			next = bumped
		}
		metrics.MicroEventsTotal.Inc()
		e.bus.Publish(pubsub.Event{Topic: pubsub.TopicMarketEvent, Symbol: symbol, Data: kind})
	}

	e.appendPointLocked(ctx, symbol, next, time.Now().UTC())
	metrics.TicksTotal.WithLabelValues(string(in.VolClass)).Inc()
	e.bus.Publish(pubsub.Event{Topic: pubsub.TopicPriceTick, Symbol: symbol, Data: next.String()})
}

// appendPointLocked pushes a point onto the capped series, updates the last
// price, and persists both. Persistence failures are logged, never fatal:
// the simulation must not halt on a storage hiccup.
func (e *Engine) appendPointLocked(ctx context.Context, symbol string, price decimal.Decimal, ts time.Time) {
	s := append(e.series[symbol], model.PricePoint{TS: ts, Price: price})
	if len(s) > e.cfg.SeriesMax {
		s = s[len(s)-e.cfg.SeriesMax:]
	}
	e.series[symbol] = s
	e.last[symbol] = price

	if err := e.store.SaveSeries(ctx, symbol, s); err != nil {
		slog.Warn("series persist failed", "symbol", symbol, "err", err)
	}
	e.persistLastLocked(ctx, symbol)
}

func (e *Engine) persistLastLocked(ctx context.Context, symbol string) {
	if err := e.store.SaveLastPrice(ctx, symbol, e.last[symbol]); err != nil {
		slog.Warn("last price persist failed", "symbol", symbol, "err", err)
	}
}

func (e *Engine) persistInstrumentsLocked(ctx context.Context) error {
	ins := make([]model.Instrument, 0, len(e.order))
	for _, sym := range e.order {
		ins = append(ins, *e.instruments[sym])
	}
	return e.store.SaveInstruments(ctx, ins)
}

func (e *Engine) lastLocked(symbol string, in *model.Instrument) decimal.Decimal {
	if p, ok := e.last[symbol]; ok && p.IsPositive() {
		return p
	}
	return in.BasePrice
}

// seedLocked ensures a symbol has a last price and, when its series is
// empty, synthesizes backward-looking history so charts have immediate
// data: one point per minute walked with ±0.5% steps.
func (e *Engine) seedLocked(ctx context.Context, symbol string) {
	in := e.instruments[symbol]
	if _, ok := e.last[symbol]; !ok {
		e.last[symbol] = in.BasePrice
		e.persistLastLocked(ctx, symbol)
	}
	if len(e.series[symbol]) > 0 {
		return
	}

	now := time.Now().UTC()
	p := e.lastLocked(symbol, in)
	pts := make([]model.PricePoint, 0, e.cfg.SeedPoints)
	for i := e.cfg.SeedPoints; i > 0; i-- {
		p = p.Mul(decimal.NewFromFloat(1 + (e.rng.Float64()-0.5)*0.01)).Round(priceScale)
		if !p.IsPositive() {
			p = in.BasePrice
		}
		pts = append(pts, model.PricePoint{TS: now.Add(-time.Duration(i) * time.Minute), Price: p})
	}
	e.series[symbol] = pts
	if err := e.store.SaveSeries(ctx, symbol, pts); err != nil {
		slog.Warn("series seed persist failed", "symbol", symbol, "err", err)
	}
}

// scheduleLocked arms (or rearms) the symbol's timer with a uniformly
// jittered delay in [TickMin, TickMax).
func (e *Engine) scheduleLocked(symbol string) {
	delay := e.cfg.TickMin + time.Duration(e.rng.Int63n(int64(e.cfg.TickMax-e.cfg.TickMin)))
	if t, ok := e.timers[symbol]; ok {
		t.Stop()
	}
	e.timers[symbol] = time.AfterFunc(delay, func() { e.tick(symbol) })
}

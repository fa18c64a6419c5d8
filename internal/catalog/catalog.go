// Package catalog holds the built-in instrument universe and the versioned
// migration that reconciles a persisted registry with it.
package catalog

import (
	"github.com/shopspring/decimal"

	"github.com/pocketwealth/market-sim/internal/model"
)

func price(s string) decimal.Decimal { return decimal.RequireFromString(s) }

// Defaults is the hardcoded default catalog. Every deployment gets these
// symbols regardless of what the persisted registry contains.
func Defaults() []model.Instrument {
	return []model.Instrument{
		{Symbol: "PWSTK", Name: "PocketWealth Stock", BasePrice: price("10.00"), VolClass: model.VolMed, Type: "stock",
			Description: "Our simulated stock representing global equity performance."},
		{Symbol: "PWETF", Name: "Pocket ETF", BasePrice: price("100.00"), VolClass: model.VolLow, Type: "etf",
			Description: "A diversified ETF simulation tracking multiple sectors."},
		{Symbol: "PWGOLD", Name: "Pocket Gold", BasePrice: price("60.00"), VolClass: model.VolLow, Type: "stock",
			Description: "A stock proxy providing gold-linked exposure."},
		{Symbol: "MYSML", Name: "Malaysia SmallCaps Index", BasePrice: price("5.20"), VolClass: model.VolHigh, Type: "stock", Drift: 0.00028,
			Description: "Small-cap Malaysian companies with higher growth and volatility."},
		{Symbol: "TECHSEA", Name: "SEA Technology Basket", BasePrice: price("18.40"), VolClass: model.VolHigh, Type: "etf", Drift: 0.00033,
			Description: "Southeast Asia technology & digital economy exposure."},
		{Symbol: "HEALTHMY", Name: "Malaysia Healthcare Leaders", BasePrice: price("12.75"), VolClass: model.VolMed, Type: "stock", Drift: 0.00018,
			Description: "Leading healthcare and pharma firms in Malaysia."},
		{Symbol: "COMMEX", Name: "Commodities Ex-China", BasePrice: price("21.00"), VolClass: model.VolMed, Type: "etf", Drift: 0.00022,
			Description: "Selected commodities exposure excluding China-heavy names."},
		{Symbol: "OILFUT", Name: "Energy & Oil Futures Proxy", BasePrice: price("34.50"), VolClass: model.VolHigh, Type: "etf", Drift: 0.0004,
			Description: "Energy sector proxy; sensitive to global oil moves."},
		{Symbol: "INFRA", Name: "Malaysia Infrastructure Fund", BasePrice: price("27.10"), VolClass: model.VolLow, Type: "etf", Drift: 0.00012,
			Description: "Infrastructure & tolls; defensive income-oriented exposure."},
		{Symbol: "AGROMY", Name: "Malaysia Agribusiness", BasePrice: price("6.80"), VolClass: model.VolMed, Type: "stock", Drift: 0.0002,
			Description: "Palm oil and agricultural supply-chain companies."},
		{Symbol: "FINBANK", Name: "Malaysia Banking Blend", BasePrice: price("14.20"), VolClass: model.VolMed, Type: "etf", Drift: 0.00016,
			Description: "Major Malaysian banks and financial services."},
		{Symbol: "TELEMY", Name: "Malaysia Telecoms", BasePrice: price("8.90"), VolClass: model.VolLow, Type: "stock", Drift: 0.00011,
			Description: "Telecommunications providers with stable cashflows."},
		{Symbol: "GLOBALESG", Name: "Global ESG Leaders", BasePrice: price("47.50"), VolClass: model.VolMed, Type: "etf", Drift: 0.0002,
			Description: "Global companies screened for strong ESG practices."},
	}
}

// Certified is the curated shariah-certified subset. Symbols present here
// but missing from the persisted registry are inserted lazily on load.
func Certified() []model.Instrument {
	const certNote = "Certified by the Securities Commission Shariah Advisory Council."
	return []model.Instrument{
		{Symbol: "SHR-PETDAG", Name: "PETRONAS Dagangan (Shariah)", BasePrice: price("24.80"), VolClass: model.VolMed, Type: "stock", Certified: true, Description: certNote},
		{Symbol: "SHR-INARI", Name: "INARI Amerton (Shariah)", BasePrice: price("3.70"), VolClass: model.VolMed, Type: "stock", Certified: true, Description: certNote},
		{Symbol: "DJIMS", Name: "DJIM Shariah ETF", BasePrice: price("46.00"), VolClass: model.VolLow, Type: "etf", Certified: true, Description: certNote},
		{Symbol: "SHR-AXIATA", Name: "AXIATA Group (Shariah)", BasePrice: price("1.45"), VolClass: model.VolMed, Type: "stock", Certified: true, Description: certNote},
	}
}

// typeOverrides are explicit type corrections for legacy symbols whose
// definitions changed over time. Overrides always win, even over a
// non-empty stored value.
var typeOverrides = map[string]string{
	"PWGOLD": "stock",
}

// Migrate reconciles a persisted registry with the built-in catalogs and
// returns the merged result. It is idempotent: running it twice yields the
// same registry and changed=false on the second pass.
//
// Rules, in order:
//  1. Symbols in Defaults or Certified but absent from stored are inserted.
//  2. Empty Type or Description on a stored instrument is backfilled from
//     the catalog definition. Non-empty stored values are left alone.
//  3. typeOverrides are applied unconditionally.
//
// Stored is not mutated; the returned slice is a fresh value.
func Migrate(stored []model.Instrument) (merged []model.Instrument, changed bool) {
	bySym := make(map[string]model.Instrument, len(stored))
	order := make([]string, 0, len(stored))
	for _, in := range stored {
		bySym[in.Symbol] = in
		order = append(order, in.Symbol)
	}

	defs := make(map[string]model.Instrument)
	for _, in := range append(Defaults(), Certified()...) {
		defs[in.Symbol] = in
		if _, ok := bySym[in.Symbol]; !ok {
			bySym[in.Symbol] = in
			order = append(order, in.Symbol)
			changed = true
		}
	}

	for _, sym := range order {
		in := bySym[sym]
		def, hasDef := defs[sym]
		if hasDef {
			if in.Type == "" && def.Type != "" {
				in.Type = def.Type
				changed = true
			}
			if in.Description == "" && def.Description != "" {
				in.Description = def.Description
				changed = true
			}
		}
		if typ, ok := typeOverrides[sym]; ok && in.Type != typ {
			in.Type = typ
			changed = true
		}
		bySym[sym] = in
	}

	merged = make([]model.Instrument, 0, len(order))
	for _, sym := range order {
		merged = append(merged, bySym[sym])
	}
	return merged, changed
}

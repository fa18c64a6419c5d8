package catalog_test

import (
	"testing"

	"github.com/shopspring/decimal"

	"github.com/pocketwealth/market-sim/internal/catalog"
	"github.com/pocketwealth/market-sim/internal/model"
)

func TestDefaults_ContainsCoreSymbols(t *testing.T) {
	defs := catalog.Defaults()
	bySym := make(map[string]model.Instrument, len(defs))
	for _, in := range defs {
		bySym[in.Symbol] = in
	}

	stk, ok := bySym["PWSTK"]
	if !ok {
		t.Fatal("PWSTK missing from defaults")
	}
	if !stk.BasePrice.Equal(decimal.RequireFromString("10.00")) {
		t.Errorf("PWSTK base price: got %s", stk.BasePrice)
	}
	if stk.VolClass != model.VolMed {
		t.Errorf("PWSTK vol class: got %s", stk.VolClass)
	}

	if got := len(defs); got != 13 {
		t.Errorf("expected 13 default instruments, got %d", got)
	}
	for _, in := range defs {
		if in.Certified {
			t.Errorf("default %s must not be certified", in.Symbol)
		}
		if !in.BasePrice.IsPositive() {
			t.Errorf("%s has non-positive base price", in.Symbol)
		}
	}
}

func TestCertified_AllFlagged(t *testing.T) {
	certs := catalog.Certified()
	if len(certs) != 4 {
		t.Fatalf("expected 4 certified instruments, got %d", len(certs))
	}
	for _, in := range certs {
		if !in.Certified {
			t.Errorf("%s should carry the certified flag", in.Symbol)
		}
	}
}

func TestMigrate_EmptyStoredGetsFullCatalog(t *testing.T) {
	merged, changed := catalog.Migrate(nil)
	if !changed {
		t.Error("migrating an empty registry should report changed")
	}
	want := len(catalog.Defaults()) + len(catalog.Certified())
	if len(merged) != want {
		t.Errorf("expected %d instruments, got %d", want, len(merged))
	}
}

func TestMigrate_Idempotent(t *testing.T) {
	merged, _ := catalog.Migrate(nil)
	again, changed := catalog.Migrate(merged)
	if changed {
		t.Error("second migration pass must report no changes")
	}
	if len(again) != len(merged) {
		t.Errorf("second pass changed the registry size: %d vs %d", len(again), len(merged))
	}
}

func TestMigrate_BackfillsEmptyFieldsOnly(t *testing.T) {
	stored := []model.Instrument{
		{Symbol: "PWETF", Name: "Renamed ETF", BasePrice: decimal.RequireFromString("101.00"), VolClass: model.VolLow,
			Type: "", Description: ""},
		{Symbol: "TELEMY", Name: "My Telecoms", BasePrice: decimal.RequireFromString("9.00"), VolClass: model.VolLow,
			Type: "custom-type", Description: "hand-written"},
	}
	merged, changed := catalog.Migrate(stored)
	if !changed {
		t.Fatal("expected changed=true")
	}

	bySym := make(map[string]model.Instrument)
	for _, in := range merged {
		bySym[in.Symbol] = in
	}

	etf := bySym["PWETF"]
	if etf.Type != "etf" {
		t.Errorf("empty type should be backfilled, got %q", etf.Type)
	}
	if etf.Description == "" {
		t.Error("empty description should be backfilled")
	}
	if etf.Name != "Renamed ETF" {
		t.Errorf("stored name must survive migration, got %q", etf.Name)
	}
	if !etf.BasePrice.Equal(decimal.RequireFromString("101.00")) {
		t.Errorf("stored base price must survive migration, got %s", etf.BasePrice)
	}

	tel := bySym["TELEMY"]
	if tel.Type != "custom-type" || tel.Description != "hand-written" {
		t.Errorf("non-empty stored fields must not be overwritten: %q %q", tel.Type, tel.Description)
	}
}

func TestMigrate_TypeOverrideAlwaysWins(t *testing.T) {
	stored := []model.Instrument{
		{Symbol: "PWGOLD", Name: "Pocket Gold", BasePrice: decimal.RequireFromString("60.00"),
			VolClass: model.VolLow, Type: "commodity"},
	}
	merged, _ := catalog.Migrate(stored)
	for _, in := range merged {
		if in.Symbol == "PWGOLD" && in.Type != "stock" {
			t.Errorf("override must win over stored type, got %q", in.Type)
		}
	}
}

func TestMigrate_DoesNotMutateInput(t *testing.T) {
	stored := []model.Instrument{
		{Symbol: "PWGOLD", Name: "Pocket Gold", BasePrice: decimal.RequireFromString("60.00"),
			VolClass: model.VolLow, Type: "commodity"},
	}
	catalog.Migrate(stored)
	if stored[0].Type != "commodity" {
		t.Errorf("input slice was mutated: %q", stored[0].Type)
	}
}

// Package statement builds the monthly account statement view: period
// bounded ledger rows with filtering, pagination, and period totals.
package statement

import (
	"strings"
	"time"

	"github.com/Rhymond/go-money"
	"github.com/shopspring/decimal"

	"github.com/pocketwealth/market-sim/internal/ledger"
	"github.com/pocketwealth/market-sim/internal/model"
)

// PageSize is the number of rows per statement page.
const PageSize = 50

// Row is one statement line: a ledger entry plus its display amount in
// ringgit, formatted for rendering.
type Row struct {
	Entry         model.LedgerEntry `json:"entry"`
	DisplayAmount string            `json:"display_amount"`
}

// Result is a single page of a statement query plus period totals. Totals
// cover the whole period regardless of pagination.
type Result struct {
	Rows        []Row           `json:"rows"`
	Page        int             `json:"page"`
	TotalCount  int             `json:"total_count"`
	PeriodStart time.Time       `json:"period_start"`
	PeriodEnd   time.Time       `json:"period_end"`
	CashIn      decimal.Decimal `json:"cash_in"`
	RealizedPnL decimal.Decimal `json:"realized_pnl"`
}

// Query returns one page of the account's statement for [start, end),
// newest first. typeFilter matches the entry type exactly ("" for all);
// textFilter is a case-insensitive substring match over symbol and note.
// Filtering narrows the page rows and the total count, but the realized
// P&L and cash-in totals always cover the full unfiltered period.
func Query(acct *model.Account, start, end time.Time, typeFilter, textFilter string, page int) Result {
	if page < 1 {
		page = 1
	}

	var period []model.LedgerEntry
	for _, e := range acct.Ledger {
		if e.TS.Before(start) || !e.TS.Before(end) {
			continue
		}
		period = append(period, e)
	}

	filtered := period[:0:0]
	needle := strings.ToLower(textFilter)
	for _, e := range period {
		if typeFilter != "" && string(e.Type) != typeFilter {
			continue
		}
		if needle != "" &&
			!strings.Contains(strings.ToLower(e.Symbol), needle) &&
			!strings.Contains(strings.ToLower(e.Note), needle) {
			continue
		}
		filtered = append(filtered, e)
	}

	offset := (page - 1) * PageSize
	rows := []Row{}
	if offset < len(filtered) {
		pageEnd := offset + PageSize
		if pageEnd > len(filtered) {
			pageEnd = len(filtered)
		}
		for _, e := range filtered[offset:pageEnd] {
			rows = append(rows, Row{Entry: e, DisplayAmount: formatMYR(e.Amount)})
		}
	}

	return Result{
		Rows:        rows,
		Page:        page,
		TotalCount:  len(filtered),
		PeriodStart: start,
		PeriodEnd:   end,
		CashIn:      ledger.CashInTotal(acct.Ledger, start, end),
		RealizedPnL: ledger.RealizedPnL(acct.Ledger, start, end),
	}
}

// MonthBounds returns [start, end) for a calendar month in UTC.
func MonthBounds(year int, month time.Month) (time.Time, time.Time) {
	start := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	return start, start.AddDate(0, 1, 0)
}

// LatestActivePeriod returns the month bounds of the newest ledger entry,
// used to jump a statement request for an empty month to the most recent
// month with activity. ok is false when the ledger is empty.
func LatestActivePeriod(acct *model.Account) (start, end time.Time, ok bool) {
	if len(acct.Ledger) == 0 {
		return time.Time{}, time.Time{}, false
	}
	ts := acct.Ledger[0].TS.UTC()
	start, end = MonthBounds(ts.Year(), ts.Month())
	return start, end, true
}

// formatMYR renders a signed decimal amount as ringgit, e.g. "-RM1,234.50".
func formatMYR(amount decimal.Decimal) string {
	cents := amount.Shift(2).Round(0).IntPart()
	return money.New(cents, money.MYR).Display()
}

// Package api provides the HTTP surface of the market simulator: market
// data, trading, account cash operations, statements, and admin controls.
//
// All monetary values use shopspring/decimal — never float64 for money.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/pocketwealth/market-sim/internal/account"
	"github.com/pocketwealth/market-sim/internal/engine"
	"github.com/pocketwealth/market-sim/internal/model"
	"github.com/pocketwealth/market-sim/internal/statement"
)

// Server bundles the services behind the HTTP handlers.
type Server struct {
	engine   *engine.Engine
	accounts *account.Service
	hub      *WSHub
}

// NewServer creates the API server.
func NewServer(eng *engine.Engine, accounts *account.Service, hub *WSHub) *Server {
	return &Server{engine: eng, accounts: accounts, hub: hub}
}

// Routes mounts all API routes on the router.
func (s *Server) Routes(r chi.Router) {
	r.Get("/ws", s.hub.HandleWS)

	r.Get("/market", s.ListInstruments)
	r.Get("/market/{symbol}/price", s.GetPrice)
	r.Get("/market/{symbol}/series", s.GetSeries)

	r.Post("/trade", s.ExecuteTrade)

	r.Post("/accounts", s.Register)
	r.Get("/accounts/{email}/portfolio", s.GetPortfolio)
	r.Post("/accounts/{email}/topup", s.TopUp)
	r.Post("/accounts/{email}/withdraw", s.Withdraw)
	r.Post("/accounts/{email}/subscribe", s.Subscribe)
	r.Post("/accounts/{email}/unsubscribe", s.Unsubscribe)
	r.Get("/accounts/{email}/statement", s.GetStatement)
	r.Post("/accounts/{email}/migrate", s.MigrateActivity)

	r.Route("/admin", func(r chi.Router) {
		r.Post("/freeze", s.AdminFreeze)
		r.Post("/nudge", s.AdminNudge)
		r.Post("/engine/start", s.AdminEngineStart)
		r.Post("/engine/pause", s.AdminEnginePause)
		r.Post("/engine/reset", s.AdminEngineReset)
		r.Post("/mood", s.AdminMood)
		r.Post("/gift", s.AdminGift)
	})
}

// --- Market data ---

// ListInstruments handles GET /api/v1/market
func (s *Server) ListInstruments(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.engine.Instruments())
}

// GetPrice handles GET /api/v1/market/{symbol}/price
func (s *Server) GetPrice(w http.ResponseWriter, r *http.Request) {
	symbol := chi.URLParam(r, "symbol")
	price, err := s.engine.CurrentPrice(symbol)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"symbol": symbol,
		"price":  price,
	})
}

// GetSeries handles GET /api/v1/market/{symbol}/series
func (s *Server) GetSeries(w http.ResponseWriter, r *http.Request) {
	symbol := chi.URLParam(r, "symbol")
	series, err := s.engine.Series(symbol)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, series)
}

// --- Trading ---

// TradeRequest is the JSON body for POST /trade.
type TradeRequest struct {
	Email          string          `json:"email"`
	Symbol         string          `json:"symbol"`
	Side           string          `json:"side"` // "BUY" or "SELL"
	Qty            decimal.Decimal `json:"qty"`
	Fee            decimal.Decimal `json:"fee,omitempty"`
	Note           string          `json:"note,omitempty"`
	IdempotencyKey string          `json:"idempotency_key,omitempty"`
}

// ExecuteTrade handles POST /api/v1/trade. The execution price is the
// current engine price captured server-side at request time; the order is
// filled at that snapshot even if ticks land during processing.
func (s *Server) ExecuteTrade(w http.ResponseWriter, r *http.Request) {
	var req TradeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Side != string(model.SideBuy) && req.Side != string(model.SideSell) {
		writeError(w, "side must be BUY or SELL", http.StatusBadRequest)
		return
	}

	price, err := s.engine.CurrentPrice(req.Symbol)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	res, err := s.accounts.ExecuteOrder(r.Context(), account.OrderRequest{
		Email:          req.Email,
		Symbol:         req.Symbol,
		Side:           model.Side(req.Side),
		Qty:            req.Qty,
		SnapPrice:      price,
		SnapTime:       time.Now().UTC(),
		Fee:            req.Fee,
		Note:           req.Note,
		IdempotencyKey: req.IdempotencyKey,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// --- Accounts ---

// RegisterRequest is the JSON body for POST /accounts.
type RegisterRequest struct {
	Email string `json:"email"`
	Name  string `json:"name"`
}

// Register handles POST /api/v1/accounts
func (s *Server) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	acct, err := s.accounts.Register(r.Context(), req.Email, req.Name)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, acct)
}

// GetPortfolio handles GET /api/v1/accounts/{email}/portfolio
func (s *Server) GetPortfolio(w http.ResponseWriter, r *http.Request) {
	email := chi.URLParam(r, "email")
	p, err := s.accounts.GetPortfolio(r.Context(), email)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// CashRequest is the JSON body for top-up and withdrawal.
type CashRequest struct {
	Amount         decimal.Decimal `json:"amount"`
	IdempotencyKey string          `json:"idempotency_key,omitempty"`
}

// TopUp handles POST /api/v1/accounts/{email}/topup
func (s *Server) TopUp(w http.ResponseWriter, r *http.Request) {
	var req CashRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	email := chi.URLParam(r, "email")
	acct, err := s.accounts.TopUp(r.Context(), email, req.Amount, req.IdempotencyKey)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, acct)
}

// Withdraw handles POST /api/v1/accounts/{email}/withdraw
func (s *Server) Withdraw(w http.ResponseWriter, r *http.Request) {
	var req CashRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	email := chi.URLParam(r, "email")
	acct, err := s.accounts.Withdraw(r.Context(), email, req.Amount)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, acct)
}

// Subscribe handles POST /api/v1/accounts/{email}/subscribe
func (s *Server) Subscribe(w http.ResponseWriter, r *http.Request) {
	email := chi.URLParam(r, "email")
	acct, err := s.accounts.Subscribe(r.Context(), email)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, acct)
}

// Unsubscribe handles POST /api/v1/accounts/{email}/unsubscribe
func (s *Server) Unsubscribe(w http.ResponseWriter, r *http.Request) {
	email := chi.URLParam(r, "email")
	acct, err := s.accounts.Unsubscribe(r.Context(), email)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, acct)
}

// GetStatement handles GET /api/v1/accounts/{email}/statement
// Query params: year, month (default: current month), type, q, page.
// A request for a month with no transactions falls back to the most
// recent month that has any.
func (s *Server) GetStatement(w http.ResponseWriter, r *http.Request) {
	email := chi.URLParam(r, "email")
	acct, err := s.accounts.Get(r.Context(), email)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	now := time.Now().UTC()
	year := queryInt(r, "year", now.Year())
	month := queryInt(r, "month", int(now.Month()))
	if month < 1 || month > 12 {
		writeError(w, "month must be between 1 and 12", http.StatusBadRequest)
		return
	}
	page := queryInt(r, "page", 1)

	start, end := statement.MonthBounds(year, time.Month(month))
	res := statement.Query(acct, start, end, r.URL.Query().Get("type"), r.URL.Query().Get("q"), page)

	if res.TotalCount == 0 && !r.URL.Query().Has("year") && !r.URL.Query().Has("month") {
		if ls, le, ok := statement.LatestActivePeriod(acct); ok {
			res = statement.Query(acct, ls, le, r.URL.Query().Get("type"), r.URL.Query().Get("q"), page)
		}
	}
	writeJSON(w, http.StatusOK, res)
}

// MigrateActivity handles POST /api/v1/accounts/{email}/migrate. The body
// is the account's legacy activity log; accounts that already have ledger
// entries are left untouched.
func (s *Server) MigrateActivity(w http.ResponseWriter, r *http.Request) {
	var activity []account.ActivityRecord
	if err := json.NewDecoder(r.Body).Decode(&activity); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	email := chi.URLParam(r, "email")
	n, err := s.accounts.MigrateActivity(r.Context(), email, activity)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"migrated": n})
}

// --- Admin ---

// FreezeRequest is the JSON body for POST /admin/freeze.
type FreezeRequest struct {
	Symbol string `json:"symbol"`
	Frozen bool   `json:"frozen"`
}

// AdminFreeze handles POST /api/v1/admin/freeze
func (s *Server) AdminFreeze(w http.ResponseWriter, r *http.Request) {
	var req FreezeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if err := s.engine.Freeze(r.Context(), req.Symbol, req.Frozen); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"symbol": req.Symbol, "frozen": req.Frozen})
}

// NudgeRequest is the JSON body for POST /admin/nudge.
type NudgeRequest struct {
	Symbol string  `json:"symbol"`
	Pct    float64 `json:"pct"` // percentage move, e.g. 5 for +5%
}

// AdminNudge handles POST /api/v1/admin/nudge
func (s *Server) AdminNudge(w http.ResponseWriter, r *http.Request) {
	var req NudgeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	price, err := s.engine.Nudge(r.Context(), req.Symbol, req.Pct)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"symbol": req.Symbol, "price": price})
}

// AdminEngineStart handles POST /api/v1/admin/engine/start
func (s *Server) AdminEngineStart(w http.ResponseWriter, r *http.Request) {
	if err := s.engine.Start(r.Context()); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"running": true})
}

// AdminEnginePause handles POST /api/v1/admin/engine/pause
func (s *Server) AdminEnginePause(w http.ResponseWriter, r *http.Request) {
	if err := s.engine.Pause(r.Context()); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"running": false})
}

// AdminEngineReset handles POST /api/v1/admin/engine/reset
func (s *Server) AdminEngineReset(w http.ResponseWriter, r *http.Request) {
	if err := s.engine.Reset(r.Context()); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"reset": true})
}

// MoodRequest is the JSON body for POST /admin/mood.
type MoodRequest struct {
	Mood string `json:"mood"` // calm, normal, volatile
}

// AdminMood handles POST /api/v1/admin/mood
func (s *Server) AdminMood(w http.ResponseWriter, r *http.Request) {
	var req MoodRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	mood := model.Mood(req.Mood)
	switch mood {
	case model.MoodCalm, model.MoodNormal, model.MoodVolatile:
	default:
		writeError(w, "mood must be calm, normal, or volatile", http.StatusBadRequest)
		return
	}
	if err := s.engine.SetMood(r.Context(), mood); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"mood": mood})
}

// GiftRequest is the JSON body for POST /admin/gift.
type GiftRequest struct {
	Email  string          `json:"email"`
	Amount decimal.Decimal `json:"amount"`
}

// AdminGift handles POST /api/v1/admin/gift
func (s *Server) AdminGift(w http.ResponseWriter, r *http.Request) {
	var req GiftRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	acct, err := s.accounts.AdminGift(r.Context(), req.Email, req.Amount)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, acct)
}

// --- Helpers ---

func queryInt(r *http.Request, key string, def int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}

// writeDomainError maps domain errors to HTTP status codes.
func writeDomainError(w http.ResponseWriter, err error) {
	var ve *model.ValidationError
	switch {
	case errors.As(err, &ve):
		writeError(w, ve.Message, http.StatusBadRequest)
	case errors.Is(err, model.ErrAccountNotFound), errors.Is(err, model.ErrUnknownInstrument):
		writeError(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, model.ErrAccountExists):
		writeError(w, err.Error(), http.StatusConflict)
	case errors.Is(err, model.ErrFrozenInstrument),
		errors.Is(err, model.ErrInsufficientFunds),
		errors.Is(err, model.ErrInsufficientQuantity),
		errors.Is(err, model.ErrNoHoldings),
		errors.Is(err, model.ErrBelowMinimumTrade):
		writeError(w, err.Error(), http.StatusConflict)
	default:
		writeError(w, err.Error(), http.StatusInternalServerError)
	}
}

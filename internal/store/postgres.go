package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/pocketwealth/market-sim/internal/model"
)

// ledgerCap mirrors the in-memory bound so reloaded accounts never carry
// more history than a live one.
const ledgerCap = 5000

// PostgresStore implements Store using PostgreSQL as the source of truth.
// Monetary values are stored as NUMERIC for exact decimal precision;
// holdings and snapshots ride along as JSONB on the account row so one
// account update is one transaction.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL-backed store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) CreateAccount(ctx context.Context, a *model.Account) error {
	holdings, snapshots, err := marshalAccountBlobs(a)
	if err != nil {
		return err
	}

	ct, err := s.pool.Exec(ctx,
		`INSERT INTO accounts (id, email, name, role, cash, unlimited, premium, holdings, snapshots, created_at)
		 VALUES ($1, LOWER($2), $3, $4, $5::NUMERIC, $6, $7, $8, $9, $10)
		 ON CONFLICT (email) DO NOTHING`,
		a.ID, a.Email, a.Name, a.Role, a.Cash.String(), a.Unlimited, a.Premium,
		holdings, snapshots, a.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("create account %s: %w", a.Email, err)
	}
	if ct.RowsAffected() == 0 {
		return model.ErrAccountExists
	}
	return s.insertLedgerEntries(ctx, a.Email, a.Ledger)
}

func (s *PostgresStore) GetAccount(ctx context.Context, email string) (*model.Account, error) {
	var a model.Account
	var cash string
	var holdings, snapshots []byte

	err := s.pool.QueryRow(ctx,
		`SELECT id, email, name, role, cash::TEXT, unlimited, premium, holdings, snapshots, created_at
		 FROM accounts WHERE email = LOWER($1)`, email).
		Scan(&a.ID, &a.Email, &a.Name, &a.Role, &cash, &a.Unlimited, &a.Premium,
			&holdings, &snapshots, &a.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, model.ErrAccountNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get account %s: %w", email, err)
	}

	a.Cash, _ = decimal.NewFromString(cash)
	if err := unmarshalAccountBlobs(&a, holdings, snapshots); err != nil {
		return nil, err
	}

	a.Ledger, err = s.loadLedger(ctx, a.Email)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (s *PostgresStore) UpdateAccount(ctx context.Context, a *model.Account) error {
	holdings, snapshots, err := marshalAccountBlobs(a)
	if err != nil {
		return err
	}

	ct, err := s.pool.Exec(ctx,
		`UPDATE accounts
		 SET name = $2, role = $3, cash = $4::NUMERIC, unlimited = $5, premium = $6,
		     holdings = $7, snapshots = $8
		 WHERE email = LOWER($1)`,
		a.Email, a.Name, a.Role, a.Cash.String(), a.Unlimited, a.Premium,
		holdings, snapshots,
	)
	if err != nil {
		return fmt.Errorf("update account %s: %w", a.Email, err)
	}
	if ct.RowsAffected() == 0 {
		return model.ErrAccountNotFound
	}
	return s.insertLedgerEntries(ctx, a.Email, a.Ledger)
}

func (s *PostgresStore) ListAccounts(ctx context.Context) ([]model.Account, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, email, name, role, cash::TEXT, unlimited, premium, holdings, snapshots, created_at
		 FROM accounts ORDER BY created_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var accts []model.Account
	for rows.Next() {
		var a model.Account
		var cash string
		var holdings, snapshots []byte
		if err := rows.Scan(&a.ID, &a.Email, &a.Name, &a.Role, &cash, &a.Unlimited, &a.Premium,
			&holdings, &snapshots, &a.CreatedAt); err != nil {
			return nil, err
		}
		a.Cash, _ = decimal.NewFromString(cash)
		if err := unmarshalAccountBlobs(&a, holdings, snapshots); err != nil {
			return nil, err
		}
		accts = append(accts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range accts {
		if accts[i].Ledger, err = s.loadLedger(ctx, accts[i].Email); err != nil {
			return nil, err
		}
	}
	return accts, nil
}

func (s *PostgresStore) DeleteAccount(ctx context.Context, email string) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM ledger_entries WHERE account = LOWER($1)`, email); err != nil {
		return err
	}
	ct, err := tx.Exec(ctx, `DELETE FROM accounts WHERE email = LOWER($1)`, email)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return model.ErrAccountNotFound
	}
	return tx.Commit(ctx)
}

// insertLedgerEntries appends new entries. Entry IDs double as idempotency
// keys, so replays are absorbed by ON CONFLICT DO NOTHING.
func (s *PostgresStore) insertLedgerEntries(ctx context.Context, email string, entries []model.LedgerEntry) error {
	for _, e := range entries {
		_, err := s.pool.Exec(ctx,
			`INSERT INTO ledger_entries (id, account, ts, type, symbol, qty, price, amount, fee, note)
			 VALUES ($1, LOWER($2), $3, $4, $5, $6::NUMERIC, $7::NUMERIC, $8::NUMERIC, $9::NUMERIC, $10)
			 ON CONFLICT (id) DO NOTHING`,
			e.ID, email, e.TS, string(e.Type), e.Symbol,
			e.Qty.String(), e.Price.String(), e.Amount.String(), e.Fee.String(), e.Note,
		)
		if err != nil {
			return fmt.Errorf("insert ledger entry %s: %w", e.ID, err)
		}
	}
	return nil
}

func (s *PostgresStore) loadLedger(ctx context.Context, email string) ([]model.LedgerEntry, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, account, ts, type, symbol, qty::TEXT, price::TEXT, amount::TEXT, fee::TEXT, note
		 FROM ledger_entries WHERE account = LOWER($1)
		 ORDER BY ts DESC, id DESC
		 LIMIT $2`, email, ledgerCap)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []model.LedgerEntry
	for rows.Next() {
		var e model.LedgerEntry
		var typ, qty, price, amount, fee string
		if err := rows.Scan(&e.ID, &e.Account, &e.TS, &typ, &e.Symbol,
			&qty, &price, &amount, &fee, &e.Note); err != nil {
			return nil, err
		}
		e.Type = model.EntryType(typ)
		e.Qty, _ = decimal.NewFromString(qty)
		e.Price, _ = decimal.NewFromString(price)
		e.Amount, _ = decimal.NewFromString(amount)
		e.Fee, _ = decimal.NewFromString(fee)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// --- Market state ---

func (s *PostgresStore) SaveInstruments(ctx context.Context, ins []model.Instrument) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM instruments`); err != nil {
		return err
	}
	for _, in := range ins {
		_, err := tx.Exec(ctx,
			`INSERT INTO instruments (symbol, name, type, vol_class, base_price, frozen, drift, certified, description)
			 VALUES ($1, $2, $3, $4, $5::NUMERIC, $6, $7, $8, $9)`,
			in.Symbol, in.Name, in.Type, string(in.VolClass), in.BasePrice.String(),
			in.Frozen, in.Drift, in.Certified, in.Description,
		)
		if err != nil {
			return fmt.Errorf("insert instrument %s: %w", in.Symbol, err)
		}
	}
	return tx.Commit(ctx)
}

func (s *PostgresStore) LoadInstruments(ctx context.Context) ([]model.Instrument, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT symbol, name, type, vol_class, base_price::TEXT, frozen, drift, certified, description
		 FROM instruments ORDER BY symbol`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ins []model.Instrument
	for rows.Next() {
		var in model.Instrument
		var volClass, basePrice string
		if err := rows.Scan(&in.Symbol, &in.Name, &in.Type, &volClass, &basePrice,
			&in.Frozen, &in.Drift, &in.Certified, &in.Description); err != nil {
			return nil, err
		}
		in.VolClass = model.VolClass(volClass)
		in.BasePrice, _ = decimal.NewFromString(basePrice)
		ins = append(ins, in)
	}
	return ins, rows.Err()
}

func (s *PostgresStore) SaveSeries(ctx context.Context, symbol string, series []model.PricePoint) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM price_points WHERE symbol = $1`, symbol); err != nil {
		return err
	}
	for _, pt := range series {
		if _, err := tx.Exec(ctx,
			`INSERT INTO price_points (symbol, ts, price) VALUES ($1, $2, $3::NUMERIC)`,
			symbol, pt.TS, pt.Price.String(),
		); err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

func (s *PostgresStore) LoadSeries(ctx context.Context, symbol string) ([]model.PricePoint, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT ts, price::TEXT FROM price_points WHERE symbol = $1 ORDER BY ts`, symbol)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var pts []model.PricePoint
	for rows.Next() {
		var pt model.PricePoint
		var price string
		if err := rows.Scan(&pt.TS, &price); err != nil {
			return nil, err
		}
		pt.Price, _ = decimal.NewFromString(price)
		pts = append(pts, pt)
	}
	return pts, rows.Err()
}

func (s *PostgresStore) SaveLastPrice(ctx context.Context, symbol string, price decimal.Decimal) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO last_prices (symbol, price) VALUES ($1, $2::NUMERIC)
		 ON CONFLICT (symbol) DO UPDATE SET price = EXCLUDED.price`,
		symbol, price.String(),
	)
	return err
}

func (s *PostgresStore) LoadLastPrices(ctx context.Context) (map[string]decimal.Decimal, error) {
	rows, err := s.pool.Query(ctx, `SELECT symbol, price::TEXT FROM last_prices`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	prices := make(map[string]decimal.Decimal)
	for rows.Next() {
		var sym, price string
		if err := rows.Scan(&sym, &price); err != nil {
			return nil, err
		}
		prices[sym], _ = decimal.NewFromString(price)
	}
	return prices, rows.Err()
}

func (s *PostgresStore) ClearMarketData(ctx context.Context) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM price_points`); err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, `DELETE FROM last_prices`); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (s *PostgresStore) SaveEngineFlags(ctx context.Context, running bool, mood model.Mood) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO engine_state (id, running, mood) VALUES (1, $1, $2)
		 ON CONFLICT (id) DO UPDATE SET running = EXCLUDED.running, mood = EXCLUDED.mood`,
		running, string(mood),
	)
	return err
}

func (s *PostgresStore) LoadEngineFlags(ctx context.Context) (bool, model.Mood, error) {
	var running bool
	var mood string
	err := s.pool.QueryRow(ctx, `SELECT running, mood FROM engine_state WHERE id = 1`).
		Scan(&running, &mood)
	if errors.Is(err, pgx.ErrNoRows) {
		return true, model.MoodNormal, nil
	}
	if err != nil {
		return false, model.MoodNormal, err
	}
	return running, model.Mood(mood), nil
}

// --- JSONB helpers ---

func marshalAccountBlobs(a *model.Account) (holdings, snapshots []byte, err error) {
	if holdings, err = json.Marshal(a.Holdings); err != nil {
		return nil, nil, fmt.Errorf("marshal holdings: %w", err)
	}
	if snapshots, err = json.Marshal(a.Snapshots); err != nil {
		return nil, nil, fmt.Errorf("marshal snapshots: %w", err)
	}
	return holdings, snapshots, nil
}

func unmarshalAccountBlobs(a *model.Account, holdings, snapshots []byte) error {
	a.Holdings = make(map[string]model.Holding)
	if len(holdings) > 0 {
		if err := json.Unmarshal(holdings, &a.Holdings); err != nil {
			return fmt.Errorf("unmarshal holdings: %w", err)
		}
	}
	if len(snapshots) > 0 {
		if err := json.Unmarshal(snapshots, &a.Snapshots); err != nil {
			return fmt.Errorf("unmarshal snapshots: %w", err)
		}
	}
	return nil
}

// Package sqlite is the gateway's relational store: broker auth tokens, the
// symbol master, sandbox orders/positions/holdings/funds, and the
// append-only order audit log.
//
// Single-writer discipline: the connection pool is capped at one connection
// and the database runs in WAL mode, which keeps writes cheap and readers
// unblocked.
package sqlite

import (
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"tradegate/internal/model"
)

// Store wraps the sqlite database.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the database at path and applies the schema.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("sqlite open: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := createSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite schema: %w", err)
	}

	slog.Info("sqlite store ready", slog.String("path", path))
	return &Store{db: db}, nil
}

// DB exposes the underlying handle for health checks.
func (s *Store) DB() *sql.DB { return s.db }

// Close closes the database.
func (s *Store) Close() error { return s.db.Close() }

func createSchema(db *sql.DB) error {
	_, err := db.Exec(`
	CREATE TABLE IF NOT EXISTS auth_tokens (
		broker        TEXT PRIMARY KEY,
		auth_token    TEXT NOT NULL,
		feed_token    TEXT,
		refresh_token TEXT,
		user_id       TEXT,
		user_name     TEXT,
		updated_at    INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS symbols (
		exchange        TEXT NOT NULL,
		symbol          TEXT NOT NULL,
		token           TEXT NOT NULL,
		name            TEXT,
		lot_size        INTEGER DEFAULT 1,
		tick_size       REAL DEFAULT 0.05,
		instrument_type TEXT,
		expiry          TEXT,
		strike          REAL DEFAULT 0,
		option_type     TEXT,
		PRIMARY KEY (exchange, symbol)
	);
	CREATE INDEX IF NOT EXISTS idx_symbols_token ON symbols(exchange, token);

	CREATE TABLE IF NOT EXISTS sandbox_orders (
		order_id      TEXT PRIMARY KEY,
		symbol        TEXT NOT NULL,
		exchange      TEXT NOT NULL,
		side          TEXT NOT NULL,
		qty           INTEGER NOT NULL,
		filled_qty    INTEGER NOT NULL DEFAULT 0,
		pending_qty   INTEGER NOT NULL DEFAULT 0,
		price         REAL NOT NULL DEFAULT 0,
		trigger_price REAL NOT NULL DEFAULT 0,
		avg_price     REAL NOT NULL DEFAULT 0,
		order_type    TEXT NOT NULL,
		product       TEXT NOT NULL,
		status        TEXT NOT NULL,
		validity      TEXT,
		created_at    INTEGER NOT NULL,
		updated_at    INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS sandbox_positions (
		exchange     TEXT NOT NULL,
		symbol       TEXT NOT NULL,
		product      TEXT NOT NULL,
		qty          INTEGER NOT NULL DEFAULT 0,
		avg_price    REAL NOT NULL DEFAULT 0,
		ltp          REAL NOT NULL DEFAULT 0,
		realized_pnl REAL NOT NULL DEFAULT 0,
		buy_qty      INTEGER NOT NULL DEFAULT 0,
		buy_value    REAL NOT NULL DEFAULT 0,
		sell_qty     INTEGER NOT NULL DEFAULT 0,
		sell_value   REAL NOT NULL DEFAULT 0,
		PRIMARY KEY (exchange, symbol, product)
	);

	CREATE TABLE IF NOT EXISTS sandbox_holdings (
		exchange  TEXT NOT NULL,
		symbol    TEXT NOT NULL,
		qty       INTEGER NOT NULL DEFAULT 0,
		avg_price REAL NOT NULL DEFAULT 0,
		ltp       REAL NOT NULL DEFAULT 0,
		PRIMARY KEY (exchange, symbol)
	);

	CREATE TABLE IF NOT EXISTS sandbox_trades (
		trade_id   TEXT PRIMARY KEY,
		order_id   TEXT NOT NULL,
		symbol     TEXT NOT NULL,
		exchange   TEXT NOT NULL,
		side       TEXT NOT NULL,
		qty        INTEGER NOT NULL,
		price      REAL NOT NULL,
		product    TEXT NOT NULL,
		created_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS sandbox_funds (
		id             INTEGER PRIMARY KEY CHECK (id = 1),
		available_cash REAL NOT NULL,
		used_margin    REAL NOT NULL DEFAULT 0,
		starting_cash  REAL NOT NULL
	);

	CREATE TABLE IF NOT EXISTS order_audit (
		id       INTEGER PRIMARY KEY AUTOINCREMENT,
		ts       INTEGER NOT NULL,
		broker   TEXT NOT NULL,
		mode     TEXT NOT NULL,
		symbol   TEXT NOT NULL,
		exchange TEXT NOT NULL,
		side     TEXT NOT NULL,
		qty      INTEGER NOT NULL,
		price    REAL NOT NULL,
		status   TEXT NOT NULL,
		message  TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_order_audit_ts ON order_audit(ts);
	`)
	return err
}

// ---- auth tokens ----

// AuthToken is one stored broker session.
type AuthToken struct {
	Broker       string
	AuthToken    string
	FeedToken    string
	RefreshToken string
	UserID       string
	UserName     string
}

// StoreAuthToken upserts the session for a broker (one row per broker id).
func (s *Store) StoreAuthToken(t AuthToken) error {
	_, err := s.db.Exec(`
		INSERT INTO auth_tokens (broker, auth_token, feed_token, refresh_token, user_id, user_name, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(broker) DO UPDATE SET
			auth_token=excluded.auth_token, feed_token=excluded.feed_token,
			refresh_token=excluded.refresh_token, user_id=excluded.user_id,
			user_name=excluded.user_name, updated_at=excluded.updated_at`,
		t.Broker, t.AuthToken, t.FeedToken, t.RefreshToken, t.UserID, t.UserName, time.Now().Unix())
	return err
}

// GetAuthToken loads the stored session for a broker.
func (s *Store) GetAuthToken(brokerID string) (*AuthToken, error) {
	var t AuthToken
	err := s.db.QueryRow(`
		SELECT broker, auth_token, feed_token, refresh_token, user_id, user_name
		FROM auth_tokens WHERE broker = ?`, brokerID).
		Scan(&t.Broker, &t.AuthToken, &t.FeedToken, &t.RefreshToken, &t.UserID, &t.UserName)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// DeleteAuthToken removes the stored session for a broker.
func (s *Store) DeleteAuthToken(brokerID string) error {
	_, err := s.db.Exec(`DELETE FROM auth_tokens WHERE broker = ?`, brokerID)
	return err
}

// ---- symbol master ----

// StoreSymbols replaces the entire symbol table in one transaction.
func (s *Store) StoreSymbols(rows []model.SymbolData) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM symbols`); err != nil {
		return err
	}
	stmt, err := tx.Prepare(`
		INSERT OR REPLACE INTO symbols
		(exchange, symbol, token, name, lot_size, tick_size, instrument_type, expiry, strike, option_type)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, r := range rows {
		if _, err := stmt.Exec(r.Exchange, r.Symbol, r.Token, r.Name, r.LotSize,
			r.TickSize, r.InstrumentType, r.Expiry, r.Strike, r.OptionType); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// LoadSymbols reads the full symbol table.
func (s *Store) LoadSymbols() ([]model.SymbolData, error) {
	rows, err := s.db.Query(`
		SELECT exchange, symbol, token, name, lot_size, tick_size, instrument_type, expiry, strike, option_type
		FROM symbols`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.SymbolData
	for rows.Next() {
		var r model.SymbolData
		if err := rows.Scan(&r.Exchange, &r.Symbol, &r.Token, &r.Name, &r.LotSize,
			&r.TickSize, &r.InstrumentType, &r.Expiry, &r.Strike, &r.OptionType); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// ---- sandbox snapshots ----

// SaveSandboxOrder upserts one simulated order row.
func (s *Store) SaveSandboxOrder(o model.Order) error {
	now := time.Now().Unix()
	_, err := s.db.Exec(`
		INSERT INTO sandbox_orders
		(order_id, symbol, exchange, side, qty, filled_qty, pending_qty, price, trigger_price,
		 avg_price, order_type, product, status, validity, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(order_id) DO UPDATE SET
			qty=excluded.qty, filled_qty=excluded.filled_qty, pending_qty=excluded.pending_qty,
			price=excluded.price, trigger_price=excluded.trigger_price, avg_price=excluded.avg_price,
			order_type=excluded.order_type, status=excluded.status, updated_at=excluded.updated_at`,
		o.OrderID, o.Symbol, o.Exchange, string(o.Side), o.Qty, o.FilledQty, o.PendingQty,
		o.Price, o.TriggerPrice, o.AvgPrice, string(o.OrderType), string(o.Product),
		o.Status, o.Validity, o.OrderTS.Unix(), now)
	return err
}

// SaveSandboxTrade appends one simulated execution.
func (s *Store) SaveSandboxTrade(t model.Trade) error {
	_, err := s.db.Exec(`
		INSERT OR REPLACE INTO sandbox_trades
		(trade_id, order_id, symbol, exchange, side, qty, price, product, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.TradeID, t.OrderID, t.Symbol, t.Exchange, string(t.Side), t.Qty, t.Price,
		string(t.Product), t.ExchangeTS.Unix())
	return err
}

// SaveSandboxPosition upserts one simulated position row, keyed by
// (exchange, symbol, product).
func (s *Store) SaveSandboxPosition(p model.Position) error {
	_, err := s.db.Exec(`
		INSERT INTO sandbox_positions
		(exchange, symbol, product, qty, avg_price, ltp, realized_pnl, buy_qty, buy_value, sell_qty, sell_value)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(exchange, symbol, product) DO UPDATE SET
			qty=excluded.qty, avg_price=excluded.avg_price, ltp=excluded.ltp,
			realized_pnl=excluded.realized_pnl, buy_qty=excluded.buy_qty,
			buy_value=excluded.buy_value, sell_qty=excluded.sell_qty, sell_value=excluded.sell_value`,
		p.Exchange, p.Symbol, string(p.Product), p.Qty, p.AvgPrice, p.LTP, p.RealizedPnL,
		p.BuyQty, p.BuyValue, p.SellQty, p.SellValue)
	return err
}

// SaveSandboxFunds persists the single funds row.
func (s *Store) SaveSandboxFunds(available, used, starting float64) error {
	_, err := s.db.Exec(`
		INSERT INTO sandbox_funds (id, available_cash, used_margin, starting_cash)
		VALUES (1, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			available_cash=excluded.available_cash, used_margin=excluded.used_margin,
			starting_cash=excluded.starting_cash`,
		available, used, starting)
	return err
}

// ClearSandbox wipes every sandbox table in one transaction (reset).
func (s *Store) ClearSandbox() error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()
	for _, table := range []string{"sandbox_orders", "sandbox_trades", "sandbox_positions", "sandbox_holdings"} {
		if _, err := tx.Exec(`DELETE FROM ` + table); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// ---- audit log ----

// AuditRow is one append-only order-audit entry.
type AuditRow struct {
	TS       time.Time
	Broker   string
	Mode     string
	Symbol   string
	Exchange string
	Side     string
	Qty      int64
	Price    float64
	Status   string // SUCCESS or ERROR
	Message  string
}

// LogOrder appends an audit row. Audit failures are logged, never fatal:
// the order outcome has already happened.
func (s *Store) LogOrder(r AuditRow) error {
	if r.TS.IsZero() {
		r.TS = time.Now()
	}
	_, err := s.db.Exec(`
		INSERT INTO order_audit (ts, broker, mode, symbol, exchange, side, qty, price, status, message)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.TS.Unix(), r.Broker, r.Mode, r.Symbol, r.Exchange, r.Side, r.Qty, r.Price, r.Status, r.Message)
	return err
}

// RecentAudit returns the newest limit audit rows.
func (s *Store) RecentAudit(limit int) ([]AuditRow, error) {
	rows, err := s.db.Query(`
		SELECT ts, broker, mode, symbol, exchange, side, qty, price, status, message
		FROM order_audit ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []AuditRow
	for rows.Next() {
		var r AuditRow
		var ts int64
		if err := rows.Scan(&ts, &r.Broker, &r.Mode, &r.Symbol, &r.Exchange,
			&r.Side, &r.Qty, &r.Price, &r.Status, &r.Message); err != nil {
			return nil, err
		}
		r.TS = time.Unix(ts, 0)
		out = append(out, r)
	}
	return out, rows.Err()
}

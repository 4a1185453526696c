package recorder

import (
	"database/sql"
	"fmt"
	"sync"
	"time"

	"CoinSentinel/internal/model"

	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"
)

// SQLiteRecorder persists history to a SQLite database.
type SQLiteRecorder struct {
	db  *sql.DB
	mu  sync.Mutex
	log zerolog.Logger
}

// NewSQLiteRecorder opens (or creates) the SQLite database and runs migrations.
func NewSQLiteRecorder(dbPath string, log zerolog.Logger) (*SQLiteRecorder, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// WAL lets dashboards read while the bot writes.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	r := &SQLiteRecorder{db: db, log: log.With().Str("component", "recorder").Logger()}
	if err := r.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	r.log.Info().Str("path", dbPath).Msg("sqlite recorder opened")
	return r, nil
}

func (r *SQLiteRecorder) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS signals (
			id           INTEGER PRIMARY KEY AUTOINCREMENT,
			timestamp    INTEGER NOT NULL,
			symbol       TEXT NOT NULL,
			timeframe    TEXT,
			price        REAL,
			volume       REAL,
			baseline     REAL,
			volume_ratio REAL,
			price_change REAL,
			alerted      INTEGER NOT NULL DEFAULT 0
		)`,
		`CREATE INDEX IF NOT EXISTS idx_signals_ts ON signals(timestamp)`,
		`CREATE INDEX IF NOT EXISTS idx_signals_symbol ON signals(symbol)`,

		`CREATE TABLE IF NOT EXISTS position_opens (
			id           INTEGER PRIMARY KEY AUTOINCREMENT,
			timestamp    INTEGER NOT NULL,
			position_id  TEXT NOT NULL,
			order_id     TEXT,
			symbol       TEXT NOT NULL,
			price        REAL,
			quantity     REAL,
			cost         REAL,
			volume_ratio REAL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_opens_ts ON position_opens(timestamp)`,

		`CREATE TABLE IF NOT EXISTS position_closes (
			id           INTEGER PRIMARY KEY AUTOINCREMENT,
			timestamp    INTEGER NOT NULL,
			position_id  TEXT NOT NULL,
			order_id     TEXT,
			symbol       TEXT NOT NULL,
			reason       TEXT NOT NULL,
			entry_price  REAL,
			exit_price   REAL,
			quantity     REAL,
			pnl          REAL,
			held_seconds INTEGER,
			cost         REAL,
			proceeds     REAL,
			fee          REAL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_closes_ts ON position_closes(timestamp)`,
		`CREATE INDEX IF NOT EXISTS idx_closes_position ON position_closes(position_id)`,

		`CREATE TABLE IF NOT EXISTS cycles (
			id          INTEGER PRIMARY KEY AUTOINCREMENT,
			timestamp   INTEGER NOT NULL,
			kind        TEXT NOT NULL,
			duration_ms INTEGER,
			symbols     INTEGER,
			bars        INTEGER,
			rejected    INTEGER,
			signals     INTEGER,
			alerts      INTEGER,
			closed      INTEGER,
			error       TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_cycles_ts ON cycles(timestamp)`,
	}

	for _, s := range stmts {
		if _, err := r.db.Exec(s); err != nil {
			return fmt.Errorf("exec %q: %w", s[:40], err)
		}
	}
	return nil
}

func (r *SQLiteRecorder) RecordSignal(evt *SignalEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	s := evt.Signal
	_, err := r.db.Exec(`INSERT INTO signals
		(timestamp, symbol, timeframe, price, volume, baseline, volume_ratio, price_change, alerted)
		VALUES (?,?,?,?,?,?,?,?,?)`,
		s.Time.Unix(), s.Symbol, s.Timeframe, s.Price, s.Volume, s.Baseline,
		s.VolumeRatio, s.PriceChange, evt.Alerted,
	)
	return err
}

func (r *SQLiteRecorder) RecordOpen(evt *OpenEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, err := r.db.Exec(`INSERT INTO position_opens
		(timestamp, position_id, order_id, symbol, price, quantity, cost, volume_ratio)
		VALUES (?,?,?,?,?,?,?,?)`,
		evt.Time.Unix(), evt.PositionID, evt.OrderID, evt.Symbol,
		evt.Price, evt.Quantity, evt.Cost, evt.VolumeRatio,
	)
	return err
}

func (r *SQLiteRecorder) RecordClose(evt *CloseEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	d := evt.Decision
	_, err := r.db.Exec(`INSERT INTO position_closes
		(timestamp, position_id, order_id, symbol, reason, entry_price, exit_price,
		 quantity, pnl, held_seconds, cost, proceeds, fee)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		d.Time.Unix(), d.PositionID, evt.OrderID, d.Symbol, string(d.Reason),
		d.EntryPrice, d.ExitPrice, d.Quantity, d.PnL, int64(d.HeldFor/time.Second),
		evt.Cost, evt.Proceeds, evt.Fee,
	)
	return err
}

func (r *SQLiteRecorder) RecordCycle(evt *CycleEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, err := r.db.Exec(`INSERT INTO cycles
		(timestamp, kind, duration_ms, symbols, bars, rejected, signals, alerts, closed, error)
		VALUES (?,?,?,?,?,?,?,?,?,?)`,
		evt.Started.Unix(), evt.Kind, evt.Duration.Milliseconds(), evt.Symbols, evt.Bars,
		evt.Rejected, evt.Signals, evt.Alerts, evt.Closed, evt.Err,
	)
	return err
}

// RecentCloses returns the latest closes, newest first.
func (r *SQLiteRecorder) RecentCloses(limit int) ([]CloseEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rows, err := r.db.Query(`SELECT timestamp, position_id, order_id, symbol, reason,
		entry_price, exit_price, quantity, pnl, held_seconds, cost, proceeds, fee
		FROM position_closes ORDER BY timestamp DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []CloseEvent
	for rows.Next() {
		var (
			evt    CloseEvent
			ts     int64
			held   int64
			reason string
		)
		d := &evt.Decision
		if err := rows.Scan(&ts, &d.PositionID, &evt.OrderID, &d.Symbol, &reason,
			&d.EntryPrice, &d.ExitPrice, &d.Quantity, &d.PnL, &held, &evt.Cost, &evt.Proceeds, &evt.Fee); err != nil {
			return nil, err
		}
		d.Time = time.Unix(ts, 0).UTC()
		d.HeldFor = time.Duration(held) * time.Second
		d.Reason = model.ExitReason(reason)
		out = append(out, evt)
	}
	return out, rows.Err()
}

func (r *SQLiteRecorder) OpenPositions() ([]OpenEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rows, err := r.db.Query(`SELECT o.timestamp, o.position_id, o.order_id, o.symbol,
		o.price, o.quantity, o.cost, o.volume_ratio
		FROM position_opens o
		WHERE NOT EXISTS (SELECT 1 FROM position_closes c WHERE c.position_id = o.position_id)
		ORDER BY o.timestamp, o.id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []OpenEvent
	for rows.Next() {
		var (
			evt OpenEvent
			ts  int64
		)
		if err := rows.Scan(&ts, &evt.PositionID, &evt.OrderID, &evt.Symbol,
			&evt.Price, &evt.Quantity, &evt.Cost, &evt.VolumeRatio); err != nil {
			return nil, err
		}
		evt.Time = time.Unix(ts, 0).UTC()
		out = append(out, evt)
	}
	return out, rows.Err()
}

func (r *SQLiteRecorder) Close() error {
	r.log.Info().Msg("closing sqlite recorder")
	return r.db.Close()
}

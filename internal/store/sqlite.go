package store

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"

	"StockSentry/internal/model"
)

// SQLiteStore implements Store on a single SQLite database file.
type SQLiteStore struct {
	db  *sql.DB
	log *logrus.Logger
	mu  sync.Mutex
}

// NewSQLiteStore opens (or creates) the SQLite database and runs migrations.
func NewSQLiteStore(dbPath string, log *logrus.Logger) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// WAL mode so report consumers can read while tasks write.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}

	s := &SQLiteStore{db: db, log: log}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	log.WithField("path", dbPath).Info("sqlite store opened")
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS symbols (
			code     TEXT PRIMARY KEY,
			name     TEXT NOT NULL,
			market   TEXT,
			industry TEXT,
			status   TEXT NOT NULL DEFAULT 'active'
		)`,
		`CREATE INDEX IF NOT EXISTS idx_symbols_status ON symbols(status)`,

		`CREATE TABLE IF NOT EXISTS daily_bars (
			symbol   TEXT NOT NULL,
			date     TEXT NOT NULL,
			open     REAL NOT NULL,
			high     REAL NOT NULL,
			low      REAL NOT NULL,
			close    REAL NOT NULL,
			volume   REAL NOT NULL,
			turnover REAL,
			PRIMARY KEY (symbol, date)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_bars_date ON daily_bars(date)`,

		`CREATE TABLE IF NOT EXISTS indicators (
			symbol TEXT NOT NULL,
			date   TEXT NOT NULL,
			name   TEXT NOT NULL,
			value  REAL NOT NULL,
			PRIMARY KEY (symbol, date, name)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_indicators_name_date ON indicators(name, date)`,

		`CREATE TABLE IF NOT EXISTS market_indices (
			code   TEXT NOT NULL,
			date   TEXT NOT NULL,
			value  REAL NOT NULL,
			change REAL,
			PRIMARY KEY (code, date)
		)`,

		`CREATE TABLE IF NOT EXISTS run_logs (
			id            INTEGER PRIMARY KEY AUTOINCREMENT,
			task          TEXT NOT NULL,
			started_at    INTEGER NOT NULL,
			finished_at   INTEGER NOT NULL,
			outcome       TEXT NOT NULL,
			attempted     INTEGER NOT NULL DEFAULT 0,
			succeeded     INTEGER NOT NULL DEFAULT 0,
			failed        INTEGER NOT NULL DEFAULT 0,
			error_summary TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_run_logs_task_ts ON run_logs(task, started_at)`,
	}

	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("exec %.40q: %w", stmt, err)
		}
	}
	return nil
}

func (s *SQLiteStore) UpsertSymbol(sym *model.Symbol) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`INSERT INTO symbols (code, name, market, industry, status)
		VALUES (?,?,?,?,?)
		ON CONFLICT(code) DO UPDATE SET
			name=excluded.name, market=excluded.market,
			industry=excluded.industry, status=excluded.status`,
		sym.Code, sym.Name, sym.Market, sym.Industry, sym.Status,
	)
	return err
}

// UpsertSymbols writes the whole batch in one transaction so a universe
// refresh is all-or-nothing.
func (s *SQLiteStore) UpsertSymbols(syms []model.Symbol) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin symbols tx: %w", err)
	}
	for i := range syms {
		sym := &syms[i]
		if _, err := tx.Exec(`INSERT INTO symbols (code, name, market, industry, status)
			VALUES (?,?,?,?,?)
			ON CONFLICT(code) DO UPDATE SET
				name=excluded.name, market=excluded.market,
				industry=excluded.industry, status=excluded.status`,
			sym.Code, sym.Name, sym.Market, sym.Industry, sym.Status,
		); err != nil {
			tx.Rollback()
			return fmt.Errorf("upsert symbol %s: %w", sym.Code, err)
		}
	}
	return tx.Commit()
}

// Universe returns active symbols in stable code order.
func (s *SQLiteStore) Universe() ([]model.Symbol, error) {
	rows, err := s.db.Query(`SELECT code, name, market, industry, status
		FROM symbols WHERE status = ? ORDER BY code`, model.StatusActive)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var syms []model.Symbol
	for rows.Next() {
		var sym model.Symbol
		if err := rows.Scan(&sym.Code, &sym.Name, &sym.Market, &sym.Industry, &sym.Status); err != nil {
			return nil, err
		}
		syms = append(syms, sym)
	}
	return syms, rows.Err()
}

func (s *SQLiteStore) UpsertDailyBar(bar *model.DailyBar) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`INSERT INTO daily_bars
		(symbol, date, open, high, low, close, volume, turnover)
		VALUES (?,?,?,?,?,?,?,?)
		ON CONFLICT(symbol, date) DO UPDATE SET
			open=excluded.open, high=excluded.high, low=excluded.low,
			close=excluded.close, volume=excluded.volume, turnover=excluded.turnover`,
		bar.Symbol, bar.Date, bar.Open, bar.High, bar.Low, bar.Close, bar.Volume, bar.Turnover,
	)
	return err
}

// GetBars returns bars for one symbol within [from, to], ascending by date.
func (s *SQLiteStore) GetBars(symbol, from, to string) ([]model.DailyBar, error) {
	rows, err := s.db.Query(`SELECT symbol, date, open, high, low, close, volume, turnover
		FROM daily_bars WHERE symbol = ? AND date >= ? AND date <= ?
		ORDER BY date ASC`, symbol, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var bars []model.DailyBar
	for rows.Next() {
		var b model.DailyBar
		var turnover sql.NullFloat64
		if err := rows.Scan(&b.Symbol, &b.Date, &b.Open, &b.High, &b.Low, &b.Close, &b.Volume, &turnover); err != nil {
			return nil, err
		}
		b.Turnover = turnover.Float64
		bars = append(bars, b)
	}
	return bars, rows.Err()
}

// LatestBarDate returns the newest stored trade date for symbol, or ""
// when no bars exist.
func (s *SQLiteStore) LatestBarDate(symbol string) (string, error) {
	var date string
	err := s.db.QueryRow(`SELECT date FROM daily_bars WHERE symbol = ?
		ORDER BY date DESC LIMIT 1`, symbol).Scan(&date)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return date, err
}

func (s *SQLiteStore) UpsertIndicator(row *model.IndicatorRow) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`INSERT INTO indicators (symbol, date, name, value)
		VALUES (?,?,?,?)
		ON CONFLICT(symbol, date, name) DO UPDATE SET value=excluded.value`,
		row.Symbol, row.Date, row.Name, row.Value,
	)
	return err
}

// Indicators returns indicator rows for one symbol within [from, to],
// ascending by date then name.
func (s *SQLiteStore) Indicators(symbol, from, to string) ([]model.IndicatorRow, error) {
	rows, err := s.db.Query(`SELECT symbol, date, name, value
		FROM indicators WHERE symbol = ? AND date >= ? AND date <= ?
		ORDER BY date ASC, name ASC`, symbol, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.IndicatorRow
	for rows.Next() {
		var r model.IndicatorRow
		if err := rows.Scan(&r.Symbol, &r.Date, &r.Name, &r.Value); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) UpsertIndexBar(idx *model.IndexBar) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`INSERT INTO market_indices (code, date, value, change)
		VALUES (?,?,?,?)
		ON CONFLICT(code, date) DO UPDATE SET value=excluded.value, change=excluded.change`,
		idx.Code, idx.Date, idx.Value, idx.Change,
	)
	return err
}

func (s *SQLiteStore) AppendRunLog(rec *model.RunLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.Exec(`INSERT INTO run_logs
		(task, started_at, finished_at, outcome, attempted, succeeded, failed, error_summary)
		VALUES (?,?,?,?,?,?,?,?)`,
		rec.Task, rec.StartedAt.Unix(), rec.FinishedAt.Unix(), rec.Outcome,
		rec.Attempted, rec.Succeeded, rec.Failed, rec.ErrorSummary,
	)
	if err != nil {
		return err
	}
	if id, err := res.LastInsertId(); err == nil {
		rec.ID = id
	}
	return nil
}

// RunLogs returns the most recent run logs for a task, newest first.
// An empty task name matches all tasks.
func (s *SQLiteStore) RunLogs(task string, limit int) ([]model.RunLog, error) {
	query := `SELECT id, task, started_at, finished_at, outcome, attempted, succeeded, failed, error_summary
		FROM run_logs`
	args := []any{}
	if task != "" {
		query += ` WHERE task = ?`
		args = append(args, task)
	}
	query += ` ORDER BY started_at DESC, id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var logs []model.RunLog
	for rows.Next() {
		var rec model.RunLog
		var started, finished int64
		var summary sql.NullString
		if err := rows.Scan(&rec.ID, &rec.Task, &started, &finished, &rec.Outcome,
			&rec.Attempted, &rec.Succeeded, &rec.Failed, &summary); err != nil {
			return nil, err
		}
		rec.StartedAt = time.Unix(started, 0)
		rec.FinishedAt = time.Unix(finished, 0)
		rec.ErrorSummary = summary.String
		logs = append(logs, rec)
	}
	return logs, rows.Err()
}

// LastRunLog returns the newest run log for a task, or nil when none exists.
func (s *SQLiteStore) LastRunLog(task string) (*model.RunLog, error) {
	logs, err := s.RunLogs(task, 1)
	if err != nil {
		return nil, err
	}
	if len(logs) == 0 {
		return nil, nil
	}
	return &logs[0], nil
}

// PruneRunLogs deletes run logs older than the cutoff and reports how many
// rows were removed.
func (s *SQLiteStore) PruneRunLogs(olderThan time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.Exec(`DELETE FROM run_logs WHERE started_at < ?`, olderThan.Unix())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// HealthPing verifies store reachability with a trivial round trip.
func (s *SQLiteStore) HealthPing(ctx context.Context) error {
	var one int
	return s.db.QueryRowContext(ctx, "SELECT 1").Scan(&one)
}

func (s *SQLiteStore) Close() error {
	s.log.Info("closing sqlite store")
	return s.db.Close()
}

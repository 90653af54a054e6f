package storage

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog/log"
)

// SQLiteDB wraps the database connection
type SQLiteDB struct {
	db   *sql.DB
	path string
}

// NewSQLiteDB creates a new SQLite database connection
func NewSQLiteDB(dbPath string) (*SQLiteDB, error) {
	// Connection string with WAL mode and normal synchronous
	connStr := fmt.Sprintf("%s?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000", dbPath)

	db, err := sql.Open("sqlite3", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Test connection
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	// Set connection pool settings
	db.SetMaxOpenConns(1) // SQLite only supports one writer
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	sqliteDB := &SQLiteDB{
		db:   db,
		path: dbPath,
	}

	// Run migrations
	if err := sqliteDB.migrate(); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	log.Info().Str("path", dbPath).Msg("SQLite database initialized")
	return sqliteDB, nil
}

// DB returns the underlying sql.DB
func (s *SQLiteDB) DB() *sql.DB {
	return s.db
}

// Close closes the database connection
func (s *SQLiteDB) Close() error {
	return s.db.Close()
}

// migrate runs database migrations
func (s *SQLiteDB) migrate() error {
	migrations := []string{
		// Candles table
		`CREATE TABLE IF NOT EXISTS candles (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			symbol TEXT NOT NULL,
			timeframe TEXT NOT NULL,
			open_time DATETIME NOT NULL,
			close_time DATETIME NOT NULL,
			open REAL NOT NULL,
			high REAL NOT NULL,
			low REAL NOT NULL,
			close REAL NOT NULL,
			volume REAL NOT NULL,
			trades INTEGER DEFAULT 0,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			UNIQUE(symbol, timeframe, open_time)
		)`,

		// Index for fast candle queries
		`CREATE INDEX IF NOT EXISTS idx_candles_symbol_timeframe_time
		 ON candles(symbol, timeframe, open_time DESC)`,

		// Configuration table
		`CREATE TABLE IF NOT EXISTS config (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,

		// Trading signals table (lifecycle store)
		`CREATE TABLE IF NOT EXISTS signals (
			id TEXT PRIMARY KEY,
			symbol TEXT NOT NULL,
			direction TEXT NOT NULL,
			confidence REAL NOT NULL,
			price REAL NOT NULL,
			entry_price REAL NOT NULL,
			stop_loss REAL NOT NULL,
			tp1 REAL DEFAULT 0,
			tp2 REAL DEFAULT 0,
			tp3 REAL DEFAULT 0,
			position_size REAL DEFAULT 0,
			risk_reward_ratio REAL DEFAULT 0,
			indicators TEXT,
			reasons TEXT,
			status TEXT NOT NULL,
			generated_at DATETIME NOT NULL,
			pending_at DATETIME,
			executed_at DATETIME,
			expired_at DATETIME,
			order_id TEXT,
			outcome TEXT
		)`,

		`CREATE INDEX IF NOT EXISTS idx_signals_symbol_status
		 ON signals(symbol, status)`,

		`CREATE INDEX IF NOT EXISTS idx_signals_order_id
		 ON signals(order_id)`,

		`CREATE INDEX IF NOT EXISTS idx_signals_generated_at
		 ON signals(generated_at DESC)`,

		// Paper futures positions table
		`CREATE TABLE IF NOT EXISTS paper_positions (
			id TEXT PRIMARY KEY,
			symbol TEXT NOT NULL,
			side TEXT NOT NULL,
			status TEXT NOT NULL,
			entry_price REAL NOT NULL,
			quantity REAL NOT NULL,
			leverage REAL NOT NULL,
			margin REAL NOT NULL,
			notional REAL NOT NULL,
			stop_loss REAL DEFAULT 0,
			take_profit REAL DEFAULT 0,
			liquidation_price REAL NOT NULL,
			highest_price REAL DEFAULT 0,
			lowest_price REAL DEFAULT 0,
			realized_pnl REAL DEFAULT 0,
			close_reason TEXT,
			signal_id TEXT,
			open_time DATETIME,
			close_time DATETIME,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,

		`CREATE INDEX IF NOT EXISTS idx_paper_positions_symbol_status
		 ON paper_positions(symbol, status)`,
	}

	for _, migration := range migrations {
		if _, err := s.db.Exec(migration); err != nil {
			return fmt.Errorf("migration failed: %w\nSQL: %s", err, migration)
		}
	}

	log.Debug().Msg("Database migrations completed")
	return nil
}

// Exec executes a query without returning rows
func (s *SQLiteDB) Exec(query string, args ...interface{}) (sql.Result, error) {
	return s.db.Exec(query, args...)
}

// Query executes a query that returns rows
func (s *SQLiteDB) Query(query string, args ...interface{}) (*sql.Rows, error) {
	return s.db.Query(query, args...)
}

// QueryRow executes a query that returns a single row
func (s *SQLiteDB) QueryRow(query string, args ...interface{}) *sql.Row {
	return s.db.QueryRow(query, args...)
}

// Begin starts a transaction
func (s *SQLiteDB) Begin() (*sql.Tx, error) {
	return s.db.Begin()
}

// Vacuum runs VACUUM to optimize the database
func (s *SQLiteDB) Vacuum() error {
	_, err := s.db.Exec("VACUUM")
	return err
}

// Checkpoint forces a WAL checkpoint
func (s *SQLiteDB) Checkpoint() error {
	_, err := s.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
	return err
}

// GetConfig retrieves a config value
func (s *SQLiteDB) GetConfig(key string) (string, error) {
	var value string
	err := s.db.QueryRow("SELECT value FROM config WHERE key = ?", key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return value, err
}

// SetConfig sets a config value
func (s *SQLiteDB) SetConfig(key, value string) error {
	_, err := s.db.Exec(`
		INSERT INTO config (key, value, updated_at) VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = CURRENT_TIMESTAMP
	`, key, value)
	return err
}

// Cleanup removes candles older than retentionDays, keeping the
// durable history table bounded.
func (s *SQLiteDB) Cleanup(candleRetentionDays int) error {
	candleCutoff := time.Now().AddDate(0, 0, -candleRetentionDays)
	if _, err := s.db.Exec("DELETE FROM candles WHERE open_time < ?", candleCutoff); err != nil {
		return fmt.Errorf("failed to cleanup candles: %w", err)
	}
	log.Debug().Msg("Database cleanup completed")
	return nil
}

// DBStats summarizes the durable store's size.
type DBStats struct {
	CandleCount  int64
	SignalCount  int64
	DatabaseSize int64
}

// GetStats returns database statistics
func (s *SQLiteDB) GetStats() (*DBStats, error) {
	stats := &DBStats{}

	if err := s.db.QueryRow("SELECT COUNT(*) FROM candles").Scan(&stats.CandleCount); err != nil {
		return nil, err
	}
	if err := s.db.QueryRow("SELECT COUNT(*) FROM signals").Scan(&stats.SignalCount); err != nil {
		return nil, err
	}

	// Get database size
	var pageCount, pageSize int64
	if err := s.db.QueryRow("PRAGMA page_count").Scan(&pageCount); err != nil {
		return nil, err
	}
	if err := s.db.QueryRow("PRAGMA page_size").Scan(&pageSize); err != nil {
		return nil, err
	}
	stats.DatabaseSize = pageCount * pageSize

	return stats, nil
}

package repository

import (
	"database/sql"
	"fmt"
	"log"

	_ "modernc.org/sqlite" // Pure Go SQLite driver - no CGO required
)

// OpenSQLite opens (or creates) the SQLite database used by the development
// backend, with WAL mode and a single-writer pool.
func OpenSQLite(dbPath string) (*sql.DB, error) {
	dsn := fmt.Sprintf("%s?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000", dbPath)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite: %w", err)
	}

	// SQLite only supports one writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := createSQLiteTables(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	log.Printf("[SQLite] Initialized with database: %s", dbPath)
	return db, nil
}

func createSQLiteTables(db *sql.DB) error {
	query := `
	CREATE TABLE IF NOT EXISTS promotions (
		id INTEGER PRIMARY KEY,
		title TEXT NOT NULL,
		stock INTEGER NOT NULL CHECK (stock >= 0),
		begin_at DATETIME NOT NULL,
		end_at DATETIME NOT NULL
	);
	CREATE TABLE IF NOT EXISTS orders (
		id INTEGER PRIMARY KEY,
		user_id INTEGER NOT NULL,
		promotion_id INTEGER NOT NULL,
		created_at DATETIME NOT NULL,
		UNIQUE (user_id, promotion_id)
	);
	CREATE INDEX IF NOT EXISTS idx_orders_promotion ON orders(promotion_id);
	`
	_, err := db.Exec(query)
	return err
}

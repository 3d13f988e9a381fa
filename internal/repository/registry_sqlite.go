package repository

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
	_ "modernc.org/sqlite" // Pure Go SQLite driver - no CGO required

	"stall-lottery/pkg/logger"
)

// SQLiteRegistry is the default Registry backend.
// Every transaction is opened with BEGIN IMMEDIATE so allocations are write-exclusive.
type SQLiteRegistry struct {
	*sqlRegistry
}

// NewSQLiteRegistry opens (and creates if needed) the database at dbPath.
// dbPath is the path to the SQLite database file (e.g., "./data/stall.db")
func NewSQLiteRegistry(dbPath string) (*SQLiteRegistry, error) {
	if dir := filepath.Dir(dbPath); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
	}

	dsn := fmt.Sprintf("%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_txlock=immediate", dbPath)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite: %w", err)
	}

	// SQLite connection pool settings
	db.SetMaxOpenConns(1) // SQLite only supports 1 writer
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	reg, err := newSQLRegistry(ctx, db, sqliteDialect)
	if err != nil {
		db.Close()
		return nil, err
	}

	logger.Named("registry").Info("sqlite registry initialized", zap.String("path", dbPath))
	return &SQLiteRegistry{sqlRegistry: reg}, nil
}

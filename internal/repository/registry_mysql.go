package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql" // MySQL driver
	"go.uber.org/zap"

	"stall-lottery/pkg/logger"
)

// MySQLRegistry is the MySQL Registry backend.
// Queue allocations lock the category's owner rows with SELECT ... FOR UPDATE.
type MySQLRegistry struct {
	*sqlRegistry
}

// NewMySQLRegistry connects to MySQL and creates the schema.
// dsn format: "user:password@tcp(host:3306)/dbname?parseTime=true"
func NewMySQLRegistry(dsn string, maxOpenConns int) (*MySQLRegistry, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open MySQL: %w", err)
	}

	if maxOpenConns <= 0 {
		maxOpenConns = 10
	}
	db.SetMaxOpenConns(maxOpenConns)
	db.SetMaxIdleConns(maxOpenConns / 2)
	db.SetConnMaxLifetime(5 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping MySQL: %w", err)
	}

	reg, err := newSQLRegistry(ctx, db, mysqlDialect)
	if err != nil {
		db.Close()
		return nil, err
	}

	logger.Named("registry").Info("mysql registry initialized", zap.Int("max_open_conns", maxOpenConns))
	return &MySQLRegistry{sqlRegistry: reg}, nil
}

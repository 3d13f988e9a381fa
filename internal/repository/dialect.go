package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
)

// dialect captures the SQL differences between the supported registry backends.
// Queries are written with '?' placeholders and rebound for numbered-placeholder drivers.
type dialect struct {
	name     string
	numbered bool // $1, $2, ... placeholders
	// returning reports whether INSERT ... RETURNING id is available.
	returning bool
	schema    []string

	upsertConfig      string
	insertOwnerIgnore string
	upsertPersonCount string
	// sizeQuery returns the database size in bytes, empty when unsupported.
	sizeQuery string

	// lockCategory serialises queue allocations of one category inside tx.
	lockCategory func(ctx context.Context, tx *sql.Tx, d *dialect, category string) error
}

// rebind converts '?' placeholders for drivers that need numbered ones.
func (d *dialect) rebind(query string) string {
	if !d.numbered {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

var sqliteDialect = &dialect{
	name:      "sqlite",
	returning: true,
	schema: []string{
		`CREATE TABLE IF NOT EXISTS stall_owner (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT NOT NULL,
			id_card TEXT NOT NULL,
			stall_type TEXT NOT NULL,
			sell_class TEXT NOT NULL DEFAULT '',
			qty INTEGER NOT NULL DEFAULT 1,
			queue_no INTEGER NOT NULL DEFAULT 0,
			is_queued INTEGER NOT NULL DEFAULT 0,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			UNIQUE(id_card, stall_type)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_stall_owner_queue ON stall_owner(stall_type, is_queued, queue_no)`,
		`CREATE TABLE IF NOT EXISTS lottery_result (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT NOT NULL,
			id_card TEXT NOT NULL,
			stall_type TEXT NOT NULL,
			sell_class TEXT NOT NULL DEFAULT '',
			queue_no INTEGER NOT NULL,
			stall_no TEXT NOT NULL,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			UNIQUE(stall_type, stall_no)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_lottery_result_owner ON lottery_result(id_card, stall_type)`,
		`CREATE TABLE IF NOT EXISTS stall_class (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			stall_type TEXT NOT NULL,
			sell_class TEXT NOT NULL,
			person_count INTEGER NOT NULL DEFAULT 0,
			stall_count INTEGER NOT NULL DEFAULT 0,
			order_no INTEGER NOT NULL DEFAULT 0,
			UNIQUE(stall_type, sell_class)
		)`,
		`CREATE TABLE IF NOT EXISTS app_config (
			config_key TEXT PRIMARY KEY,
			config_value TEXT NOT NULL,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
	},
	upsertConfig: `
		INSERT INTO app_config (config_key, config_value, updated_at)
		VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(config_key) DO UPDATE SET
			config_value = excluded.config_value,
			updated_at = CURRENT_TIMESTAMP`,
	insertOwnerIgnore: `
		INSERT OR IGNORE INTO stall_owner (name, id_card, stall_type, qty, sell_class)
		VALUES (?, ?, ?, ?, ?)`,
	upsertPersonCount: `
		INSERT INTO stall_class (stall_type, sell_class, person_count)
		VALUES (?, ?, ?)
		ON CONFLICT(stall_type, sell_class) DO UPDATE SET person_count = excluded.person_count`,
	sizeQuery: `SELECT page_count * page_size FROM pragma_page_count(), pragma_page_size()`,
	// The connection opens every transaction with BEGIN IMMEDIATE, which already
	// takes the database write lock.
	lockCategory: func(context.Context, *sql.Tx, *dialect, string) error { return nil },
}

var postgresDialect = &dialect{
	name:      "postgres",
	numbered:  true,
	returning: true,
	schema: []string{
		`CREATE TABLE IF NOT EXISTS stall_owner (
			id BIGSERIAL PRIMARY KEY,
			name TEXT NOT NULL,
			id_card TEXT NOT NULL,
			stall_type TEXT NOT NULL,
			sell_class TEXT NOT NULL DEFAULT '',
			qty INTEGER NOT NULL DEFAULT 1,
			queue_no INTEGER NOT NULL DEFAULT 0,
			is_queued SMALLINT NOT NULL DEFAULT 0,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			UNIQUE(id_card, stall_type)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_stall_owner_queue ON stall_owner(stall_type, is_queued, queue_no)`,
		`CREATE TABLE IF NOT EXISTS lottery_result (
			id BIGSERIAL PRIMARY KEY,
			name TEXT NOT NULL,
			id_card TEXT NOT NULL,
			stall_type TEXT NOT NULL,
			sell_class TEXT NOT NULL DEFAULT '',
			queue_no INTEGER NOT NULL,
			stall_no TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			UNIQUE(stall_type, stall_no)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_lottery_result_owner ON lottery_result(id_card, stall_type)`,
		`CREATE TABLE IF NOT EXISTS stall_class (
			id BIGSERIAL PRIMARY KEY,
			stall_type TEXT NOT NULL,
			sell_class TEXT NOT NULL,
			person_count INTEGER NOT NULL DEFAULT 0,
			stall_count INTEGER NOT NULL DEFAULT 0,
			order_no INTEGER NOT NULL DEFAULT 0,
			UNIQUE(stall_type, sell_class)
		)`,
		`CREATE TABLE IF NOT EXISTS app_config (
			config_key TEXT PRIMARY KEY,
			config_value TEXT NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
	},
	upsertConfig: `
		INSERT INTO app_config (config_key, config_value, updated_at)
		VALUES (?, ?, NOW())
		ON CONFLICT (config_key) DO UPDATE SET
			config_value = EXCLUDED.config_value,
			updated_at = NOW()`,
	insertOwnerIgnore: `
		INSERT INTO stall_owner (name, id_card, stall_type, qty, sell_class)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (id_card, stall_type) DO NOTHING`,
	upsertPersonCount: `
		INSERT INTO stall_class (stall_type, sell_class, person_count)
		VALUES (?, ?, ?)
		ON CONFLICT (stall_type, sell_class) DO UPDATE SET person_count = EXCLUDED.person_count`,
	sizeQuery: `SELECT pg_database_size(current_database())`,
	lockCategory: func(ctx context.Context, tx *sql.Tx, d *dialect, category string) error {
		_, err := tx.ExecContext(ctx, d.rebind(`SELECT pg_advisory_xact_lock(hashtext(?))`), "stall_owner:"+category)
		if err != nil {
			return fmt.Errorf("failed to take category lock: %w", err)
		}
		return nil
	},
}

var mysqlDialect = &dialect{
	name: "mysql",
	schema: []string{
		`CREATE TABLE IF NOT EXISTS stall_owner (
			id BIGINT AUTO_INCREMENT PRIMARY KEY,
			name VARCHAR(128) NOT NULL,
			id_card VARCHAR(64) NOT NULL,
			stall_type VARCHAR(128) NOT NULL,
			sell_class VARCHAR(128) NOT NULL DEFAULT '',
			qty INT NOT NULL DEFAULT 1,
			queue_no INT NOT NULL DEFAULT 0,
			is_queued TINYINT NOT NULL DEFAULT 0,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			UNIQUE KEY uq_stall_owner (id_card, stall_type),
			KEY idx_stall_owner_queue (stall_type, is_queued, queue_no)
		) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
		`CREATE TABLE IF NOT EXISTS lottery_result (
			id BIGINT AUTO_INCREMENT PRIMARY KEY,
			name VARCHAR(128) NOT NULL,
			id_card VARCHAR(64) NOT NULL,
			stall_type VARCHAR(128) NOT NULL,
			sell_class VARCHAR(128) NOT NULL DEFAULT '',
			queue_no INT NOT NULL,
			stall_no VARCHAR(32) NOT NULL,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			UNIQUE KEY uq_lottery_result (stall_type, stall_no),
			KEY idx_lottery_result_owner (id_card, stall_type)
		) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
		`CREATE TABLE IF NOT EXISTS stall_class (
			id BIGINT AUTO_INCREMENT PRIMARY KEY,
			stall_type VARCHAR(128) NOT NULL,
			sell_class VARCHAR(128) NOT NULL,
			person_count INT NOT NULL DEFAULT 0,
			stall_count INT NOT NULL DEFAULT 0,
			order_no INT NOT NULL DEFAULT 0,
			UNIQUE KEY uq_stall_class (stall_type, sell_class)
		) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
		`CREATE TABLE IF NOT EXISTS app_config (
			config_key VARCHAR(191) PRIMARY KEY,
			config_value TEXT NOT NULL,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
		) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
	},
	upsertConfig: `
		INSERT INTO app_config (config_key, config_value, updated_at)
		VALUES (?, ?, CURRENT_TIMESTAMP)
		ON DUPLICATE KEY UPDATE
			config_value = VALUES(config_value),
			updated_at = CURRENT_TIMESTAMP`,
	insertOwnerIgnore: `
		INSERT IGNORE INTO stall_owner (name, id_card, stall_type, qty, sell_class)
		VALUES (?, ?, ?, ?, ?)`,
	upsertPersonCount: `
		INSERT INTO stall_class (stall_type, sell_class, person_count)
		VALUES (?, ?, ?)
		ON DUPLICATE KEY UPDATE person_count = VALUES(person_count)`,
	sizeQuery: `SELECT COALESCE(SUM(data_length + index_length), 0) FROM information_schema.tables WHERE table_schema = DATABASE()`,
	lockCategory: func(ctx context.Context, tx *sql.Tx, d *dialect, category string) error {
		rows, err := tx.QueryContext(ctx, `SELECT id FROM stall_owner WHERE stall_type = ? FOR UPDATE`, category)
		if err != nil {
			return fmt.Errorf("failed to take category lock: %w", err)
		}
		return rows.Close()
	},
}

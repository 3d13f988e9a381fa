package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"stall-lottery/internal/model"
)

const ownerColumns = `id, name, id_card, stall_type, sell_class, qty, queue_no, is_queued, created_at`

// sqlRegistry implements Registry over database/sql. The backend specific parts
// (placeholders, DDL, upsert syntax and allocation locking) come from the dialect.
type sqlRegistry struct {
	db *sql.DB
	d  *dialect
}

var _ Registry = (*sqlRegistry)(nil)

func newSQLRegistry(ctx context.Context, db *sql.DB, d *dialect) (*sqlRegistry, error) {
	r := &sqlRegistry{db: db, d: d}
	if err := r.createTables(ctx); err != nil {
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	return r, nil
}

func (r *sqlRegistry) createTables(ctx context.Context) error {
	for _, stmt := range r.d.schema {
		if _, err := r.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

// q rebinds a query for the backend.
func (r *sqlRegistry) q(query string) string {
	return r.d.rebind(query)
}

// qtyClause narrows an owner query to a quantity partition.
func qtyClause(f model.QtyFilter) string {
	switch f {
	case model.QtySingle:
		return " AND qty = 1"
	case model.QtyMulti:
		return " AND qty > 1"
	}
	return ""
}

func ownerWhere(filter model.OwnerFilter) (string, []interface{}) {
	where := "stall_type = ?" + qtyClause(filter.QtyFilter)
	if filter.Queued != nil {
		if *filter.Queued {
			where += " AND is_queued = 1"
		} else {
			where += " AND is_queued = 0"
		}
	}
	return where, []interface{}{filter.Category}
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanOwner(s rowScanner) (model.Owner, error) {
	var (
		o         model.Owner
		queued    int
		createdAt sql.NullTime
	)
	if err := s.Scan(&o.ID, &o.Name, &o.IDCard, &o.Category, &o.SubClass, &o.Qty, &o.QueueNo, &queued, &createdAt); err != nil {
		return o, err
	}
	o.Queued = queued != 0
	if createdAt.Valid {
		o.CreatedAt = createdAt.Time
	}
	return o, nil
}

func (r *sqlRegistry) queryOwners(ctx context.Context, query string, args ...interface{}) ([]model.Owner, error) {
	rows, err := r.db.QueryContext(ctx, r.q(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	owners := make([]model.Owner, 0)
	for rows.Next() {
		o, err := scanOwner(rows)
		if err != nil {
			return nil, err
		}
		owners = append(owners, o)
	}
	return owners, rows.Err()
}

// ============================================================================
// Config
// ============================================================================

// GetConfigValue returns the value for key and whether it was present.
func (r *sqlRegistry) GetConfigValue(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := r.db.QueryRowContext(ctx, r.q(`SELECT config_value FROM app_config WHERE config_key = ?`), key).Scan(&value)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("failed to get config %s: %w", key, err)
	}
	return value, true, nil
}

// SetConfigValues upserts all values in a single transaction.
func (r *sqlRegistry) SetConfigValues(ctx context.Context, values map[string]string) error {
	if len(values) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, r.q(r.d.upsertConfig))
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for key, value := range values {
		if _, err := stmt.ExecContext(ctx, key, value); err != nil {
			return fmt.Errorf("failed to set config %s: %w", key, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// ============================================================================
// Owners
// ============================================================================

// ListOwners lists owners of a category. Queued owners are ordered by queue number.
func (r *sqlRegistry) ListOwners(ctx context.Context, filter model.OwnerFilter) ([]model.Owner, error) {
	where, args := ownerWhere(filter)
	order := " ORDER BY id ASC"
	if filter.Queued != nil && *filter.Queued {
		order = " ORDER BY queue_no ASC, id ASC"
	}

	owners, err := r.queryOwners(ctx, `SELECT `+ownerColumns+` FROM stall_owner WHERE `+where+order, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list owners: %w", err)
	}
	return owners, nil
}

// CountOwners counts owners matching the filter.
func (r *sqlRegistry) CountOwners(ctx context.Context, filter model.OwnerFilter) (int, error) {
	where, args := ownerWhere(filter)

	var count int
	if err := r.db.QueryRowContext(ctx, r.q(`SELECT COUNT(*) FROM stall_owner WHERE `+where), args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count owners: %w", err)
	}
	return count, nil
}

// GetOwner returns one registration, or nil if absent.
func (r *sqlRegistry) GetOwner(ctx context.Context, idCard, category string) (*model.Owner, error) {
	row := r.db.QueryRowContext(ctx, r.q(`SELECT `+ownerColumns+` FROM stall_owner WHERE id_card = ? AND stall_type = ?`), idCard, category)

	o, err := scanOwner(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get owner: %w", err)
	}
	return &o, nil
}

// FindOwners returns every registration of one person across categories.
func (r *sqlRegistry) FindOwners(ctx context.Context, idCard, name string) ([]model.Owner, error) {
	owners, err := r.queryOwners(ctx, `SELECT `+ownerColumns+` FROM stall_owner WHERE id_card = ? AND name = ? ORDER BY id ASC`, idCard, name)
	if err != nil {
		return nil, fmt.Errorf("failed to find owners: %w", err)
	}
	return owners, nil
}

// AllocateQueueNo assigns max+1 within the (category, qtyFilter) partition inside one
// write-exclusive transaction. An owner already holding a number gets it back unchanged.
func (r *sqlRegistry) AllocateQueueNo(ctx context.Context, idCard, category string, qtyFilter model.QtyFilter) (int, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := r.d.lockCategory(ctx, tx, r.d, category); err != nil {
		return 0, err
	}

	var queueNo, queued int
	err = tx.QueryRowContext(ctx, r.q(`SELECT queue_no, is_queued FROM stall_owner WHERE id_card = ? AND stall_type = ?`),
		idCard, category).Scan(&queueNo, &queued)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, ErrAllocationLost
		}
		return 0, fmt.Errorf("failed to read owner: %w", err)
	}
	if queued != 0 && queueNo > 0 {
		return queueNo, nil
	}

	var maxNo int
	err = tx.QueryRowContext(ctx, r.q(`SELECT COALESCE(MAX(queue_no), 0) FROM stall_owner WHERE stall_type = ? AND is_queued = 1`+qtyClause(qtyFilter)),
		category).Scan(&maxNo)
	if err != nil {
		return 0, fmt.Errorf("failed to read max queue number: %w", err)
	}
	next := maxNo + 1

	res, err := tx.ExecContext(ctx, r.q(`UPDATE stall_owner SET queue_no = ?, is_queued = 1 WHERE id_card = ? AND stall_type = ? AND is_queued = 0`),
		next, idCard, category)
	if err != nil {
		return 0, fmt.Errorf("failed to assign queue number: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to assign queue number: %w", err)
	}
	if affected == 0 {
		return 0, ErrAllocationLost
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return next, nil
}

// NextQueueNo returns the number the next allocation in the partition would receive.
func (r *sqlRegistry) NextQueueNo(ctx context.Context, category string, qtyFilter model.QtyFilter) (int, error) {
	var maxNo int
	err := r.db.QueryRowContext(ctx, r.q(`SELECT COALESCE(MAX(queue_no), 0) FROM stall_owner WHERE stall_type = ? AND is_queued = 1`+qtyClause(qtyFilter)),
		category).Scan(&maxNo)
	if err != nil {
		return 0, fmt.Errorf("failed to read max queue number: %w", err)
	}
	return maxNo + 1, nil
}

// SumQty sums requested quantities in the partition.
func (r *sqlRegistry) SumQty(ctx context.Context, category string, qtyFilter model.QtyFilter) (int, error) {
	var sum int
	err := r.db.QueryRowContext(ctx, r.q(`SELECT COALESCE(SUM(qty), 0) FROM stall_owner WHERE stall_type = ?`+qtyClause(qtyFilter)),
		category).Scan(&sum)
	if err != nil {
		return 0, fmt.Errorf("failed to sum quantities: %w", err)
	}
	return sum, nil
}

// InsertOwners bulk-inserts registrations, ignoring (id_card, category) pairs that exist.
// It returns the number of rows actually inserted.
func (r *sqlRegistry) InsertOwners(ctx context.Context, owners []model.Owner) (int, error) {
	if len(owners) == 0 {
		return 0, nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, r.q(r.d.insertOwnerIgnore))
	if err != nil {
		return 0, fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	inserted := 0
	for _, o := range owners {
		res, err := stmt.ExecContext(ctx, o.Name, o.IDCard, o.Category, o.Qty, o.SubClass)
		if err != nil {
			return 0, fmt.Errorf("failed to insert owner %s: %w", o.IDCard, err)
		}
		if n, err := res.RowsAffected(); err == nil {
			inserted += int(n)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return inserted, nil
}

// ============================================================================
// Results
// ============================================================================

// CountDrawn counts stall numbers already awarded to an owner in a category.
func (r *sqlRegistry) CountDrawn(ctx context.Context, idCard, category string) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, r.q(`SELECT COUNT(*) FROM lottery_result WHERE id_card = ? AND stall_type = ?`),
		idCard, category).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count drawn: %w", err)
	}
	return count, nil
}

// ListDrawnStallNos lists stall numbers already awarded in a category.
func (r *sqlRegistry) ListDrawnStallNos(ctx context.Context, category string) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, r.q(`SELECT stall_no FROM lottery_result WHERE stall_type = ?`), category)
	if err != nil {
		return nil, fmt.Errorf("failed to list drawn stall numbers: %w", err)
	}
	defer rows.Close()

	var nos []string
	for rows.Next() {
		var no string
		if err := rows.Scan(&no); err != nil {
			return nil, fmt.Errorf("failed to scan stall number: %w", err)
		}
		nos = append(nos, no)
	}
	return nos, rows.Err()
}

// InsertResults appends all rows in one transaction. Any failure, including a
// duplicate (category, stall number), leaves nothing written.
func (r *sqlRegistry) InsertResults(ctx context.Context, results []model.LotteryResult) error {
	if len(results) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, r.q(`
		INSERT INTO lottery_result (name, id_card, stall_type, sell_class, queue_no, stall_no)
		VALUES (?, ?, ?, ?, ?, ?)`))
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, res := range results {
		if _, err := stmt.ExecContext(ctx, res.Name, res.IDCard, res.Category, res.SubClass, res.QueueNo, res.StallNo); err != nil {
			return fmt.Errorf("failed to insert result %s/%s: %w", res.Category, res.StallNo, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// ListResults lists results of a category ordered by queue number.
func (r *sqlRegistry) ListResults(ctx context.Context, category string) ([]model.LotteryResult, error) {
	rows, err := r.db.QueryContext(ctx, r.q(`
		SELECT id, name, id_card, stall_type, sell_class, queue_no, stall_no, created_at
		FROM lottery_result WHERE stall_type = ? ORDER BY queue_no ASC, id ASC`), category)
	if err != nil {
		return nil, fmt.Errorf("failed to list results: %w", err)
	}
	defer rows.Close()

	results := make([]model.LotteryResult, 0)
	for rows.Next() {
		var (
			res       model.LotteryResult
			createdAt sql.NullTime
		)
		if err := rows.Scan(&res.ID, &res.Name, &res.IDCard, &res.Category, &res.SubClass, &res.QueueNo, &res.StallNo, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan result: %w", err)
		}
		if createdAt.Valid {
			res.CreatedAt = createdAt.Time
		}
		results = append(results, res)
	}
	return results, rows.Err()
}

// ============================================================================
// Stall classes
// ============================================================================

// ListStallClasses lists every class ordered by (order_no, id).
func (r *sqlRegistry) ListStallClasses(ctx context.Context) ([]model.StallClass, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, stall_type, sell_class, person_count, stall_count, order_no
		FROM stall_class ORDER BY order_no ASC, id ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list stall classes: %w", err)
	}
	defer rows.Close()

	classes := make([]model.StallClass, 0)
	for rows.Next() {
		var c model.StallClass
		if err := rows.Scan(&c.ID, &c.Category, &c.SubClass, &c.PersonCount, &c.StallCount, &c.OrderNo); err != nil {
			return nil, fmt.Errorf("failed to scan stall class: %w", err)
		}
		classes = append(classes, c)
	}
	return classes, rows.Err()
}

type rowQuerier interface {
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// checkStallClass verifies that class.ID exists (when set) and that no other
// row holds the same (category, sub-class).
func (r *sqlRegistry) checkStallClass(ctx context.Context, q rowQuerier, class model.StallClass) error {
	if class.ID > 0 {
		var one int
		err := q.QueryRowContext(ctx, r.q(`SELECT 1 FROM stall_class WHERE id = ?`), class.ID).Scan(&one)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("stall class %d: %w", class.ID, ErrStallClassNotFound)
		}
		if err != nil {
			return fmt.Errorf("failed to look up stall class %d: %w", class.ID, err)
		}
	}

	var count int
	err := q.QueryRowContext(ctx, r.q(`
		SELECT COUNT(*) FROM stall_class WHERE stall_type = ? AND sell_class = ? AND id <> ?`),
		class.Category, class.SubClass, class.ID).Scan(&count)
	if err != nil {
		return fmt.Errorf("failed to check stall class: %w", err)
	}
	if count > 0 {
		return fmt.Errorf("%s/%s: %w", class.Category, class.SubClass, ErrStallClassExists)
	}
	return nil
}

// AddStallClass inserts a class and returns its id.
func (r *sqlRegistry) AddStallClass(ctx context.Context, class model.StallClass) (int64, error) {
	class.ID = 0

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := r.checkStallClass(ctx, tx, class); err != nil {
		return 0, err
	}

	query := `
		INSERT INTO stall_class (stall_type, sell_class, person_count, stall_count, order_no)
		VALUES (?, ?, ?, ?, ?)`
	args := []interface{}{class.Category, class.SubClass, class.PersonCount, class.StallCount, class.OrderNo}

	var id int64
	if r.d.returning {
		if err := tx.QueryRowContext(ctx, r.q(query+` RETURNING id`), args...).Scan(&id); err != nil {
			return 0, fmt.Errorf("failed to add stall class: %w", err)
		}
	} else {
		res, err := tx.ExecContext(ctx, r.q(query), args...)
		if err != nil {
			return 0, fmt.Errorf("failed to add stall class: %w", err)
		}
		if id, err = res.LastInsertId(); err != nil {
			return 0, fmt.Errorf("failed to read stall class id: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return id, nil
}

const updateStallClassQuery = `
	UPDATE stall_class SET stall_type = ?, sell_class = ?, stall_count = ?, order_no = ?
	WHERE id = ?`

// UpdateStallClass updates one class. person_count is owned by SyncPersonCounts.
func (r *sqlRegistry) UpdateStallClass(ctx context.Context, class model.StallClass) error {
	return r.UpdateStallClasses(ctx, []model.StallClass{class})
}

// UpdateStallClasses updates all rows in one transaction. Existence is checked
// with a SELECT since MySQL reports zero affected rows for unchanged values.
func (r *sqlRegistry) UpdateStallClasses(ctx context.Context, classes []model.StallClass) error {
	if len(classes) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, r.q(updateStallClassQuery))
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, c := range classes {
		if c.ID <= 0 {
			return fmt.Errorf("stall class %d: %w", c.ID, ErrStallClassNotFound)
		}
		if err := r.checkStallClass(ctx, tx, c); err != nil {
			return err
		}
		if _, err := stmt.ExecContext(ctx, c.Category, c.SubClass, c.StallCount, c.OrderNo, c.ID); err != nil {
			return fmt.Errorf("failed to update stall class %d: %w", c.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// DeleteStallClass removes a class by id.
func (r *sqlRegistry) DeleteStallClass(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, r.q(`DELETE FROM stall_class WHERE id = ?`), id)
	if err != nil {
		return fmt.Errorf("failed to delete stall class %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("stall class %d: %w", id, ErrStallClassNotFound)
	}
	return nil
}

// SyncPersonCounts recomputes person_count from registrations, creating classes
// that appear in registrations but have no row yet.
func (r *sqlRegistry) SyncPersonCounts(ctx context.Context) error {
	type stat struct {
		category string
		subClass string
		count    int
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx, `
		SELECT stall_type, sell_class, COUNT(DISTINCT id_card)
		FROM stall_owner
		WHERE sell_class IS NOT NULL AND sell_class <> ''
		GROUP BY stall_type, sell_class`)
	if err != nil {
		return fmt.Errorf("failed to aggregate owners: %w", err)
	}
	var stats []stat
	for rows.Next() {
		var s stat
		if err := rows.Scan(&s.category, &s.subClass, &s.count); err != nil {
			rows.Close()
			return fmt.Errorf("failed to scan owner aggregate: %w", err)
		}
		stats = append(stats, s)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return fmt.Errorf("failed to aggregate owners: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, r.q(r.d.upsertPersonCount))
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, s := range stats {
		if _, err := stmt.ExecContext(ctx, s.category, s.subClass, s.count); err != nil {
			return fmt.Errorf("failed to sync %s/%s: %w", s.category, s.subClass, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// ============================================================================
// Maintenance
// ============================================================================

// Ping checks connectivity.
func (r *sqlRegistry) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// GetStats returns row counts and, where the backend reports it, the database size.
func (r *sqlRegistry) GetStats(ctx context.Context) (map[string]interface{}, error) {
	stats := map[string]interface{}{
		"type": r.d.name,
	}

	for _, table := range []string{"stall_owner", "lottery_result", "stall_class"} {
		var count int64
		if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+table).Scan(&count); err != nil {
			return nil, fmt.Errorf("failed to count %s: %w", table, err)
		}
		stats[strings.TrimPrefix(table, "stall_")+"_rows"] = count
	}

	if r.d.sizeQuery != "" {
		var size int64
		if err := r.db.QueryRowContext(ctx, r.d.sizeQuery).Scan(&size); err == nil {
			stats["db_size_bytes"] = size
			stats["db_size_mb"] = float64(size) / 1024 / 1024
		}
	}

	dbStats := r.db.Stats()
	stats["open_connections"] = dbStats.OpenConnections
	stats["in_use"] = dbStats.InUse

	return stats, nil
}

// Close closes the database connection.
func (r *sqlRegistry) Close() error {
	return r.db.Close()
}

package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // SQLite driver registration.

	"restock_bot/internal/model"
	"restock_bot/migrations"
)

const timeLayout = "2006-01-02T15:04:05Z"

const watchColumns = `id, name, target_kind, target_value, exclude_terms,
	last_known_price, price_ceiling, check_interval_minutes,
	expires_at, status, last_checked_at, next_due_at, created_at`

// SQLite implements Storage backed by a SQLite database.
type SQLite struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at dsn and runs pending migrations.
func NewSQLite(dsn string) (*SQLite, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=OFF"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("disable foreign keys: %w", err)
	}

	if err := migrations.Run(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLite{db: db}, nil
}

// Close closes the underlying database connection.
func (s *SQLite) Close() error {
	return s.db.Close()
}

// CreateWatch inserts a new watch and populates its ID and CreatedAt.
// New watches always start in the monitoring state.
func (s *SQLite) CreateWatch(ctx context.Context, w *model.Watch) error {
	now := time.Now().UTC().Format(timeLayout)
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO watches (name, target_kind, target_value, exclude_terms,
		   last_known_price, price_ceiling, check_interval_minutes,
		   expires_at, status, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		w.Name, string(w.Target.Kind), w.Target.Value, model.JoinTerms(w.Target.ExcludeTerms),
		w.LastKnownPrice, w.PriceCeiling, w.CheckIntervalMinutes,
		formatNullableTime(w.ExpiresAt), string(model.StatusMonitoring), now,
	)
	if err != nil {
		return fmt.Errorf("insert watch: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("last insert id: %w", err)
	}
	w.ID = id
	w.Status = model.StatusMonitoring
	w.CreatedAt, _ = time.Parse(timeLayout, now)
	return nil
}

// GetWatch returns a single watch by its ID.
func (s *SQLite) GetWatch(ctx context.Context, id int64) (*model.Watch, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+watchColumns+` FROM watches WHERE id = ?`, id,
	)
	return scanWatch(row)
}

// ListWatches returns all watches in any state, oldest first.
func (s *SQLite) ListWatches(ctx context.Context) ([]model.Watch, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+watchColumns+` FROM watches ORDER BY id`,
	)
	if err != nil {
		return nil, fmt.Errorf("query watches: %w", err)
	}
	defer func() { _ = rows.Close() }()
	return scanWatches(rows)
}

// ListActiveWatches returns only watches still in the monitoring state.
func (s *SQLite) ListActiveWatches(ctx context.Context) ([]model.Watch, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+watchColumns+` FROM watches WHERE status = ? ORDER BY id`,
		string(model.StatusMonitoring),
	)
	if err != nil {
		return nil, fmt.Errorf("query active watches: %w", err)
	}
	defer func() { _ = rows.Close() }()
	return scanWatches(rows)
}

// UpdateWatch persists changes to an existing watch's configuration.
func (s *SQLite) UpdateWatch(ctx context.Context, w *model.Watch) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE watches SET name = ?, target_kind = ?, target_value = ?, exclude_terms = ?,
		   last_known_price = ?, price_ceiling = ?, check_interval_minutes = ?, expires_at = ?
		 WHERE id = ?`,
		w.Name, string(w.Target.Kind), w.Target.Value, model.JoinTerms(w.Target.ExcludeTerms),
		w.LastKnownPrice, w.PriceCeiling, w.CheckIntervalMinutes,
		formatNullableTime(w.ExpiresAt), w.ID,
	)
	if err != nil {
		return fmt.Errorf("update watch: %w", err)
	}
	return nil
}

// UpdateWatchCheck persists the check timestamps after a probe cycle.
func (s *SQLite) UpdateWatchCheck(ctx context.Context, id int64, lastChecked, nextDue time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE watches SET last_checked_at = ?, next_due_at = ? WHERE id = ?`,
		lastChecked.UTC().Format(timeLayout), nextDue.UTC().Format(timeLayout), id,
	)
	if err != nil {
		return fmt.Errorf("update watch check: %w", err)
	}
	return nil
}

// ClearWatchCheck resets the check timestamps so the watch is due again.
func (s *SQLite) ClearWatchCheck(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE watches SET last_checked_at = NULL, next_due_at = NULL WHERE id = ?`, id,
	)
	if err != nil {
		return fmt.Errorf("clear watch check: %w", err)
	}
	return nil
}

// UpdateWatchPrice records the most recently sighted price.
func (s *SQLite) UpdateWatchPrice(ctx context.Context, id int64, price int64) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE watches SET last_known_price = ? WHERE id = ?`, price, id,
	)
	if err != nil {
		return fmt.Errorf("update watch price: %w", err)
	}
	return nil
}

// UpdateWatchStatus transitions a monitoring watch to the given status.
// Terminal watches are left untouched and the transition fails.
func (s *SQLite) UpdateWatchStatus(ctx context.Context, id int64, status model.WatchStatus) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE watches SET status = ? WHERE id = ? AND status = ?`,
		string(status), id, string(model.StatusMonitoring),
	)
	if err != nil {
		return fmt.Errorf("update watch status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("watch %d not found or not monitoring", id)
	}
	return nil
}

// CompleteWatch marks the watch completed and appends the purchase log
// entry in one transaction, so a confirmed purchase is recorded exactly
// once or not at all.
func (s *SQLite) CompleteWatch(ctx context.Context, id int64, entry *model.PurchaseLogEntry) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx,
		`UPDATE watches SET status = ? WHERE id = ? AND status = ?`,
		string(model.StatusCompleted), id, string(model.StatusMonitoring),
	)
	if err != nil {
		return fmt.Errorf("complete watch: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("watch %d not found or not monitoring", id)
	}

	now := time.Now().UTC().Format(timeLayout)
	logRes, err := tx.ExecContext(ctx,
		`INSERT INTO purchase_log (watch_id, item_name, price, group_key, order_ref, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		entry.WatchID, entry.ItemName, entry.Price, entry.GroupKey, entry.OrderRef, now,
	)
	if err != nil {
		return fmt.Errorf("insert purchase log: %w", err)
	}
	logID, err := logRes.LastInsertId()
	if err != nil {
		return fmt.Errorf("last insert id: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	entry.ID = logID
	entry.CreatedAt, _ = time.Parse(timeLayout, now)
	return nil
}

// ListPurchaseLog returns purchase log entries, newest first.
// A non-positive limit returns all entries.
func (s *SQLite) ListPurchaseLog(ctx context.Context, limit int) ([]model.PurchaseLogEntry, error) {
	q := `SELECT id, watch_id, item_name, price, group_key, order_ref, created_at
	      FROM purchase_log ORDER BY id DESC`
	args := []any{}
	if limit > 0 {
		q += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query purchase log: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var entries []model.PurchaseLogEntry
	for rows.Next() {
		var e model.PurchaseLogEntry
		var created string
		if err := rows.Scan(&e.ID, &e.WatchID, &e.ItemName, &e.Price, &e.GroupKey, &e.OrderRef, &created); err != nil {
			return nil, fmt.Errorf("scan purchase log: %w", err)
		}
		e.CreatedAt, _ = time.Parse(timeLayout, created)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// GetGroupPolicy returns the stored policy for a group, or nil when the
// group has no override.
func (s *SQLite) GetGroupPolicy(ctx context.Context, groupKey string) (*model.GroupPolicy, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT group_key, min_value, max_value, max_items, enabled, updated_at
		 FROM group_policies WHERE group_key = ?`, groupKey,
	)
	var p model.GroupPolicy
	var enabled int
	var updated string
	err := row.Scan(&p.GroupKey, &p.MinValue, &p.MaxValue, &p.MaxItems, &enabled, &updated)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan group policy: %w", err)
	}
	p.Enabled = enabled == 1
	p.UpdatedAt, _ = time.Parse(timeLayout, updated)
	return &p, nil
}

// SetGroupPolicy inserts or replaces the policy for a group.
func (s *SQLite) SetGroupPolicy(ctx context.Context, p *model.GroupPolicy) error {
	now := time.Now().UTC().Format(timeLayout)
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO group_policies (group_key, min_value, max_value, max_items, enabled, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(group_key) DO UPDATE SET
		   min_value = excluded.min_value,
		   max_value = excluded.max_value,
		   max_items = excluded.max_items,
		   enabled = excluded.enabled,
		   updated_at = excluded.updated_at`,
		p.GroupKey, p.MinValue, p.MaxValue, p.MaxItems, boolToInt(p.Enabled), now,
	)
	if err != nil {
		return fmt.Errorf("set group policy: %w", err)
	}
	p.UpdatedAt, _ = time.Parse(timeLayout, now)
	return nil
}

// ListGroupPolicies returns all stored policy overrides.
func (s *SQLite) ListGroupPolicies(ctx context.Context) ([]model.GroupPolicy, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT group_key, min_value, max_value, max_items, enabled, updated_at
		 FROM group_policies ORDER BY group_key`,
	)
	if err != nil {
		return nil, fmt.Errorf("query group policies: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var policies []model.GroupPolicy
	for rows.Next() {
		var p model.GroupPolicy
		var enabled int
		var updated string
		if err := rows.Scan(&p.GroupKey, &p.MinValue, &p.MaxValue, &p.MaxItems, &enabled, &updated); err != nil {
			return nil, fmt.Errorf("scan group policy: %w", err)
		}
		p.Enabled = enabled == 1
		p.UpdatedAt, _ = time.Parse(timeLayout, updated)
		policies = append(policies, p)
	}
	return policies, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func formatNullableTime(t *time.Time) *string {
	if t == nil {
		return nil
	}
	v := t.UTC().Format(timeLayout)
	return &v
}

type scannable interface {
	Scan(dest ...any) error
}

func scanWatch(row scannable) (*model.Watch, error) {
	var w model.Watch
	var kind, status, terms string
	var expires, lastChecked, nextDue, created sql.NullString
	err := row.Scan(&w.ID, &w.Name, &kind, &w.Target.Value, &terms,
		&w.LastKnownPrice, &w.PriceCeiling, &w.CheckIntervalMinutes,
		&expires, &status, &lastChecked, &nextDue, &created)
	if err != nil {
		return nil, fmt.Errorf("scan watch: %w", err)
	}
	w.Target.Kind = model.TargetKind(kind)
	w.Target.ExcludeTerms = model.SplitTerms(terms)
	w.Status = model.WatchStatus(status)
	w.ExpiresAt = parseNullableTime(expires)
	w.LastCheckedAt = parseNullableTime(lastChecked)
	w.NextDueAt = parseNullableTime(nextDue)
	if created.Valid {
		w.CreatedAt, _ = time.Parse(timeLayout, created.String)
	}
	return &w, nil
}

func scanWatches(rows *sql.Rows) ([]model.Watch, error) {
	var watches []model.Watch
	for rows.Next() {
		w, err := scanWatch(rows)
		if err != nil {
			return nil, err
		}
		watches = append(watches, *w)
	}
	return watches, rows.Err()
}

func parseNullableTime(v sql.NullString) *time.Time {
	if !v.Valid {
		return nil
	}
	t, err := time.Parse(timeLayout, v.String)
	if err != nil {
		return nil
	}
	return &t
}

package backend

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/rcliao/tiered-memory/internal/model"
)

// SQLiteBackend implements Backend with one table per tier.
type SQLiteBackend struct {
	db *sql.DB
}

// NewSQLiteBackend opens or creates a SQLite database at the given path.
func NewSQLiteBackend(dbPath string) (*SQLiteBackend, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(wal)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	b := &SQLiteBackend{db: db}
	if err := b.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return b, nil
}

func (b *SQLiteBackend) Name() string { return "sqlite" }

func tableName(tier model.Tier) (string, error) {
	if !tier.Valid() {
		return "", fmt.Errorf("unknown tier %q", tier)
	}
	return "memories_" + string(tier), nil
}

func (b *SQLiteBackend) migrate() error {
	for _, tier := range model.Tiers {
		table, _ := tableName(tier)
		schema := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %[1]s (
			id               TEXT PRIMARY KEY,
			payload          TEXT NOT NULL,
			category         TEXT NOT NULL,
			created_at       TEXT NOT NULL,
			importance       REAL NOT NULL,
			access_count     INTEGER NOT NULL DEFAULT 0,
			last_accessed_at TEXT
		);
		CREATE INDEX IF NOT EXISTS idx_%[1]s_category ON %[1]s(category);
		CREATE INDEX IF NOT EXISTS idx_%[1]s_created ON %[1]s(created_at DESC);
		CREATE INDEX IF NOT EXISTS idx_%[1]s_importance ON %[1]s(importance DESC);
		`, table)
		if _, err := b.db.Exec(schema); err != nil {
			return fmt.Errorf("%s: %w", table, err)
		}
	}
	return nil
}

func (b *SQLiteBackend) Put(ctx context.Context, tier model.Tier, rec model.Record) error {
	table, err := tableName(tier)
	if err != nil {
		return err
	}

	var lastAccessed *string
	if rec.LastAccessedAt != nil {
		s := rec.LastAccessedAt.UTC().Format(time.RFC3339Nano)
		lastAccessed = &s
	}

	_, err = b.db.ExecContext(ctx, fmt.Sprintf(
		`INSERT OR REPLACE INTO %s (id, payload, category, created_at, importance, access_count, last_accessed_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`, table),
		rec.ID, string(rec.Payload), string(rec.Category),
		rec.CreatedAt.UTC().Format(time.RFC3339Nano), rec.Importance, rec.AccessCount, lastAccessed)
	if err != nil {
		return fmt.Errorf("put %s: %w", rec.ID, err)
	}
	return nil
}

const selectColumns = `id, payload, category, created_at, importance, access_count, last_accessed_at`

func (b *SQLiteBackend) Get(ctx context.Context, tier model.Tier, id string) (*model.Record, error) {
	table, err := tableName(tier)
	if err != nil {
		return nil, err
	}

	row := b.db.QueryRowContext(ctx,
		fmt.Sprintf(`SELECT %s FROM %s WHERE id = ?`, selectColumns, table), id)
	rec, err := scanRecord(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	rec.Tier = tier
	return &rec, nil
}

func (b *SQLiteBackend) GetAll(ctx context.Context, tier model.Tier) ([]model.Record, error) {
	table, err := tableName(tier)
	if err != nil {
		return nil, err
	}
	return b.query(ctx, tier,
		fmt.Sprintf(`SELECT %s FROM %s ORDER BY created_at`, selectColumns, table))
}

func (b *SQLiteBackend) GetAllByCategory(ctx context.Context, tier model.Tier, category model.Category) ([]model.Record, error) {
	table, err := tableName(tier)
	if err != nil {
		return nil, err
	}
	return b.query(ctx, tier,
		fmt.Sprintf(`SELECT %s FROM %s WHERE category = ? ORDER BY created_at`, selectColumns, table),
		string(category))
}

func (b *SQLiteBackend) Delete(ctx context.Context, tier model.Tier, id string) error {
	table, err := tableName(tier)
	if err != nil {
		return err
	}
	_, err = b.db.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s WHERE id = ?`, table), id)
	return err
}

func (b *SQLiteBackend) Clear(ctx context.Context, tier model.Tier) error {
	table, err := tableName(tier)
	if err != nil {
		return err
	}
	_, err = b.db.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s`, table))
	return err
}

func (b *SQLiteBackend) Close() error {
	return b.db.Close()
}

func (b *SQLiteBackend) query(ctx context.Context, tier model.Tier, query string, args ...interface{}) ([]model.Record, error) {
	rows, err := b.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []model.Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		rec.Tier = tier
		records = append(records, rec)
	}
	return records, rows.Err()
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanRecord(row scanner) (model.Record, error) {
	var rec model.Record
	var payload, category, createdAt string
	var lastAccessed sql.NullString

	err := row.Scan(&rec.ID, &payload, &category, &createdAt,
		&rec.Importance, &rec.AccessCount, &lastAccessed)
	if err != nil {
		return rec, err
	}

	rec.Payload = []byte(payload)
	rec.Category = model.Category(category)
	rec.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	if lastAccessed.Valid {
		t, _ := time.Parse(time.RFC3339Nano, lastAccessed.String)
		rec.LastAccessedAt = &t
	}
	return rec, nil
}

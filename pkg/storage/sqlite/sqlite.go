// Package sqlite provides a SQLite-backed storage driver for encrypted
// memory items.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/strataworks/strata/pkg/memory"
	"github.com/strataworks/strata/pkg/storage"
)

// Driver implements storage.Driver using SQLite.
type Driver struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewDriver creates a SQLite-backed storage driver. The dbPath can be a
// file path or ":memory:" for an in-memory database.
func NewDriver(dbPath string, logger *zap.Logger) (*Driver, error) {
	if dbPath == "" {
		return nil, fmt.Errorf("database path is required")
	}

	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL: %w", err)
	}

	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS memory_items (
			id         TEXT PRIMARY KEY,
			scope_key  TEXT NOT NULL,
			ciphertext BLOB NOT NULL,
			embedding  BLOB NOT NULL,
			priority   TEXT NOT NULL,
			policy     TEXT NOT NULL,
			created_at TEXT NOT NULL,
			archived   INTEGER NOT NULL DEFAULT 0
		)
	`); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating items table: %w", err)
	}

	if _, err := db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_memory_items_scope
		ON memory_items (scope_key, created_at)
	`); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating scope index: %w", err)
	}

	logger.Info("sqlite storage driver initialized",
		zap.String("db_path", dbPath),
	)

	return &Driver{db: db, logger: logger}, nil
}

func (d *Driver) Put(ctx context.Context, item *memory.EncryptedItem) error {
	_, err := d.db.ExecContext(ctx, `
		INSERT INTO memory_items
			(id, scope_key, ciphertext, embedding, priority, policy, created_at, archived)
		VALUES (?, ?, ?, ?, ?, ?, ?, 0)
	`,
		item.ID,
		item.ScopeKey,
		item.Ciphertext,
		encodeEmbedding(item.Embedding),
		string(item.Priority),
		string(item.Policy),
		item.CreatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		var sqliteErr sqlite3.Error
		if errors.As(err, &sqliteErr) && sqliteErr.Code == sqlite3.ErrConstraint {
			return storage.ErrDuplicate{ID: item.ID}
		}
		return fmt.Errorf("inserting item %s: %w", item.ID, err)
	}

	return nil
}

func (d *Driver) Get(ctx context.Context, scopeKey, id string) (*memory.EncryptedItem, error) {
	row := d.db.QueryRowContext(ctx, `
		SELECT id, scope_key, ciphertext, embedding, priority, policy, created_at, archived
		FROM memory_items
		WHERE id = ? AND scope_key = ?
	`, id, scopeKey)

	item, err := scanItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound{ID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("loading item %s: %w", id, err)
	}

	return item, nil
}

func (d *Driver) List(ctx context.Context, scopeKey string) ([]*memory.EncryptedItem, error) {
	rows, err := d.db.QueryContext(ctx, `
		SELECT id, scope_key, ciphertext, embedding, priority, policy, created_at, archived
		FROM memory_items
		WHERE scope_key = ? AND archived = 0
		ORDER BY created_at ASC
	`, scopeKey)
	if err != nil {
		return nil, fmt.Errorf("listing scope %s: %w", scopeKey, err)
	}
	defer rows.Close()

	return collectItems(rows)
}

func (d *Driver) ListSince(ctx context.Context, since time.Time) ([]*memory.EncryptedItem, error) {
	rows, err := d.db.QueryContext(ctx, `
		SELECT id, scope_key, ciphertext, embedding, priority, policy, created_at, archived
		FROM memory_items
		WHERE archived = 0 AND created_at >= ?
		ORDER BY created_at ASC
	`, since.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return nil, fmt.Errorf("listing items since %s: %w", since, err)
	}
	defer rows.Close()

	return collectItems(rows)
}

func (d *Driver) ListAll(ctx context.Context) ([]*memory.EncryptedItem, error) {
	rows, err := d.db.QueryContext(ctx, `
		SELECT id, scope_key, ciphertext, embedding, priority, policy, created_at, archived
		FROM memory_items
		ORDER BY created_at ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("listing all items: %w", err)
	}
	defer rows.Close()

	return collectItems(rows)
}

func (d *Driver) GetByIDs(ctx context.Context, ids []string) ([]*memory.EncryptedItem, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	placeholders := make([]string, len(ids))
	args := make([]any, len(ids))
	for i, id := range ids {
		placeholders[i] = "?"
		args[i] = id
	}

	query := fmt.Sprintf(`
		SELECT id, scope_key, ciphertext, embedding, priority, policy, created_at, archived
		FROM memory_items
		WHERE id IN (%s)
		ORDER BY created_at ASC
	`, strings.Join(placeholders, ","))

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("loading items by id: %w", err)
	}
	defer rows.Close()

	return collectItems(rows)
}

func (d *Driver) Delete(ctx context.Context, scopeKey string, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	placeholders := make([]string, len(ids))
	args := []any{scopeKey}
	for i, id := range ids {
		placeholders[i] = "?"
		args = append(args, id)
	}

	query := fmt.Sprintf(
		`DELETE FROM memory_items WHERE scope_key = ? AND id IN (%s)`,
		strings.Join(placeholders, ","),
	)
	if _, err := d.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("deleting items: %w", err)
	}

	d.logger.Debug("deleted items",
		zap.String("scope_key", scopeKey),
		zap.Int("count", len(ids)),
	)

	return nil
}

func (d *Driver) SetArchived(ctx context.Context, scopeKey string, ids []string, archived bool) error {
	if len(ids) == 0 {
		return nil
	}

	placeholders := make([]string, len(ids))
	args := []any{archived, scopeKey}
	for i, id := range ids {
		placeholders[i] = "?"
		args = append(args, id)
	}

	query := fmt.Sprintf(
		`UPDATE memory_items SET archived = ? WHERE scope_key = ? AND id IN (%s)`,
		strings.Join(placeholders, ","),
	)
	if _, err := d.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("archiving items: %w", err)
	}

	return nil
}

func (d *Driver) UpdateCiphertext(ctx context.Context, id string, ciphertext []byte) error {
	res, err := d.db.ExecContext(ctx,
		`UPDATE memory_items SET ciphertext = ? WHERE id = ?`, ciphertext, id)
	if err != nil {
		return fmt.Errorf("updating ciphertext for %s: %w", id, err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking update for %s: %w", id, err)
	}
	if affected == 0 {
		return storage.ErrNotFound{ID: id}
	}

	return nil
}

// Close releases the database handle.
func (d *Driver) Close() error {
	return d.db.Close()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanItem(row scanner) (*memory.EncryptedItem, error) {
	var (
		item      memory.EncryptedItem
		embedding []byte
		priority  string
		policy    string
		createdAt string
		archived  int
	)

	if err := row.Scan(
		&item.ID, &item.ScopeKey, &item.Ciphertext, &embedding,
		&priority, &policy, &createdAt, &archived,
	); err != nil {
		return nil, err
	}

	ts, err := time.Parse(time.RFC3339Nano, createdAt)
	if err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}

	item.Embedding = decodeEmbedding(embedding)
	item.Priority = memory.Priority(priority)
	item.Policy = memory.FederationPolicy(policy)
	item.CreatedAt = ts
	item.Archived = archived != 0

	return &item, nil
}

func collectItems(rows *sql.Rows) ([]*memory.EncryptedItem, error) {
	var out []*memory.EncryptedItem
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning item: %w", err)
		}
		out = append(out, item)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating items: %w", err)
	}

	return out, nil
}

// encodeEmbedding converts a float32 slice to a little-endian byte blob.
func encodeEmbedding(v []float32) []byte {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

// decodeEmbedding converts a little-endian byte blob back to float32s.
func decodeEmbedding(b []byte) []float32 {
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return v
}

var _ storage.Driver = (*Driver)(nil)

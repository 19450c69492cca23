// Package sqlitevec provides a SQLite-backed vector driver using sqlite-vec.
// Each collection is an isolated database file, so every layer store owns
// its index handle exclusively.
package sqlitevec

import (
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"path/filepath"
	"strings"

	sqlite_vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/strataworks/strata/pkg/vector"
)

// Config holds configuration for the sqlite-vec provider.
type Config struct {
	// Dir is the directory holding one database file per collection.
	// Use ":memory:" to keep every collection in memory.
	Dir string

	// Dimensions is the embedding dimensionality. Required.
	Dimensions uint
}

// Provider opens one sqlite-vec database per collection.
type Provider struct {
	config Config
	logger *zap.Logger
}

// NewProvider creates a sqlite-vec provider.
func NewProvider(c Config, logger *zap.Logger) (*Provider, error) {
	// enable connections to have the sqlite-vec extension
	sqlite_vec.Auto()

	if c.Dir == "" {
		return nil, fmt.Errorf("directory is required")
	}
	if c.Dimensions == 0 {
		return nil, fmt.Errorf("sqlite-vec embedding dimensions cannot be 0, must be configured")
	}

	return &Provider{config: c, logger: logger}, nil
}

// Open creates or opens the database file backing the named collection.
func (p *Provider) Open(_ context.Context, collection string) (vector.Driver, error) {
	dbPath := ":memory:"
	if p.config.Dir != ":memory:" {
		dbPath = filepath.Join(p.config.Dir, collection+".db")
	}

	return newDriver(dbPath, p.config.Dimensions, p.logger)
}

// Close is a no-op; each opened driver owns its database handle.
func (p *Provider) Close() error {
	return nil
}

// Driver implements vector.Driver over one sqlite-vec database.
type Driver struct {
	db         *sql.DB
	dimensions uint
	logger     *zap.Logger
}

func newDriver(dbPath string, dimensions uint, logger *zap.Logger) (*Driver, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// Verify sqlite-vec is loaded
	var vecVersion string
	if err := db.QueryRow("SELECT vec_version()").Scan(&vecVersion); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite-vec not available: %w", err)
	}

	// vec0 virtual tables use integer rowids, so a mapping table carries
	// the string document ids and the filterable metadata.
	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS vec_documents (
			rowid    INTEGER PRIMARY KEY AUTOINCREMENT,
			doc_id   TEXT NOT NULL UNIQUE,
			metadata TEXT NOT NULL DEFAULT '{}'
		)
	`); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating documents table: %w", err)
	}

	createVec := fmt.Sprintf(
		`CREATE VIRTUAL TABLE IF NOT EXISTS vec_embeddings USING vec0(embedding float[%d])`,
		dimensions,
	)
	if _, err := db.Exec(createVec); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating vec0 table: %w", err)
	}

	logger.Debug("sqlite-vec collection opened",
		zap.String("db_path", dbPath),
		zap.Uint("dimensions", dimensions),
		zap.String("vec_version", vecVersion),
	)

	return &Driver{db: db, dimensions: dimensions, logger: logger}, nil
}

// Add indexes documents; re-adding an existing id updates it.
func (d *Driver) Add(ctx context.Context, docs []vector.Document) error {
	if len(docs) == 0 {
		return nil
	}

	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	for _, doc := range docs {
		if uint(len(doc.Embedding)) != d.dimensions {
			return fmt.Errorf("%w: doc %s has %d dims, want %d",
				vector.ErrDimension, doc.ID, len(doc.Embedding), d.dimensions)
		}

		embBlob := serializeFloat32(doc.Embedding)
		metaJSON, err := json.Marshal(doc.Metadata)
		if err != nil {
			return fmt.Errorf("encoding metadata for doc %s: %w", doc.ID, err)
		}

		var existingRowID int64
		err = tx.QueryRowContext(ctx,
			`SELECT rowid FROM vec_documents WHERE doc_id = ?`, doc.ID,
		).Scan(&existingRowID)

		switch err {
		case nil:
			if _, err := tx.ExecContext(ctx,
				`UPDATE vec_documents SET metadata = ? WHERE rowid = ?`,
				string(metaJSON), existingRowID,
			); err != nil {
				return fmt.Errorf("updating document %s: %w", doc.ID, err)
			}

			// vec0 does not support UPDATE; replace via DELETE + INSERT.
			if _, err := tx.ExecContext(ctx,
				`DELETE FROM vec_embeddings WHERE rowid = ?`, existingRowID,
			); err != nil {
				return fmt.Errorf("deleting old embedding for doc %s: %w", doc.ID, err)
			}

			if _, err := tx.ExecContext(ctx,
				`INSERT INTO vec_embeddings(rowid, embedding) VALUES (?, ?)`,
				existingRowID, embBlob,
			); err != nil {
				return fmt.Errorf("re-inserting embedding for doc %s: %w", doc.ID, err)
			}
		case sql.ErrNoRows:
			result, err := tx.ExecContext(ctx,
				`INSERT INTO vec_documents(doc_id, metadata) VALUES (?, ?)`,
				doc.ID, string(metaJSON),
			)
			if err != nil {
				return fmt.Errorf("inserting document %s: %w", doc.ID, err)
			}

			rowID, err := result.LastInsertId()
			if err != nil {
				return fmt.Errorf("getting rowid for doc %s: %w", doc.ID, err)
			}

			if _, err := tx.ExecContext(ctx,
				`INSERT INTO vec_embeddings(rowid, embedding) VALUES (?, ?)`,
				rowID, embBlob,
			); err != nil {
				return fmt.Errorf("inserting embedding for doc %s: %w", doc.ID, err)
			}
		default:
			return fmt.Errorf("checking for existing document %s: %w", doc.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}

	return nil
}

// Query finds the topK most similar documents, post-filtered on metadata.
// The KNN pass over-fetches when filters are present so filtered-out
// neighbors do not starve the result set.
func (d *Driver) Query(ctx context.Context, embedding []float32, filters map[string]string, topK int) ([]vector.Result, error) {
	if topK <= 0 {
		topK = 10
	}

	k := topK
	if len(filters) > 0 {
		k = topK * 4
	}

	queryBlob := serializeFloat32(embedding)

	rows, err := d.db.QueryContext(ctx, `
		SELECT
			doc.doc_id,
			doc.metadata,
			ve.distance
		FROM vec_embeddings ve
		INNER JOIN vec_documents doc ON doc.rowid = ve.rowid
		WHERE ve.embedding MATCH ?
			AND ve.k = ?
		ORDER BY ve.distance
	`, queryBlob, k)
	if err != nil {
		return nil, fmt.Errorf("querying vectors: %w", err)
	}
	defer rows.Close()

	var results []vector.Result
	for rows.Next() {
		var docID, metaJSON string
		var distance float64
		if err := rows.Scan(&docID, &metaJSON, &distance); err != nil {
			return nil, fmt.Errorf("scanning query result: %w", err)
		}

		meta := map[string]string{}
		if err := json.Unmarshal([]byte(metaJSON), &meta); err != nil {
			return nil, fmt.Errorf("decoding metadata for doc %s: %w", docID, err)
		}

		if !matchesFilters(meta, filters) {
			continue
		}

		results = append(results, vector.Result{
			Document: vector.Document{
				ID:       docID,
				Metadata: meta,
			},
			// Lower distance = higher similarity.
			Score: float32(1.0 / (1.0 + distance)),
		})

		if len(results) == topK {
			break
		}
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating query results: %w", err)
	}

	return results, nil
}

// Get retrieves documents by their IDs.
func (d *Driver) Get(ctx context.Context, ids []string) ([]vector.Document, error) {
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
		SELECT doc.doc_id, doc.metadata, doc.rowid
		FROM vec_documents doc
		WHERE doc.doc_id IN (%s)
	`, strings.Join(placeholders, ","))

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying documents: %w", err)
	}
	defer rows.Close()

	// Collect first so the rows cursor closes before further queries
	// (SQLite uses a single connection).
	type docRow struct {
		docID    string
		metaJSON string
		rowID    int64
	}
	var docRows []docRow

	for rows.Next() {
		var dr docRow
		if err := rows.Scan(&dr.docID, &dr.metaJSON, &dr.rowID); err != nil {
			return nil, fmt.Errorf("scanning document: %w", err)
		}
		docRows = append(docRows, dr)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating documents: %w", err)
	}
	rows.Close()

	docs := make([]vector.Document, 0, len(docRows))
	for _, dr := range docRows {
		meta := map[string]string{}
		if err := json.Unmarshal([]byte(dr.metaJSON), &meta); err != nil {
			return nil, fmt.Errorf("decoding metadata for doc %s: %w", dr.docID, err)
		}

		doc := vector.Document{ID: dr.docID, Metadata: meta}

		var embBlob []byte
		err := d.db.QueryRowContext(ctx,
			`SELECT embedding FROM vec_embeddings WHERE rowid = ?`, dr.rowID,
		).Scan(&embBlob)
		if err == nil && len(embBlob) > 0 {
			doc.Embedding = deserializeFloat32(embBlob)
		}

		docs = append(docs, doc)
	}

	return docs, nil
}

// Delete removes documents by their IDs.
func (d *Driver) Delete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	placeholders := make([]string, len(ids))
	args := make([]any, len(ids))
	for i, id := range ids {
		placeholders[i] = "?"
		args[i] = id
	}
	inClause := strings.Join(placeholders, ",")

	rows, err := tx.QueryContext(ctx, fmt.Sprintf(
		`SELECT rowid FROM vec_documents WHERE doc_id IN (%s)`, inClause,
	), args...)
	if err != nil {
		return fmt.Errorf("querying rowids for deletion: %w", err)
	}

	var rowIDs []int64
	for rows.Next() {
		var rowID int64
		if err := rows.Scan(&rowID); err != nil {
			rows.Close()
			return fmt.Errorf("scanning rowid: %w", err)
		}
		rowIDs = append(rowIDs, rowID)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterating rowids: %w", err)
	}

	for _, rowID := range rowIDs {
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM vec_embeddings WHERE rowid = ?`, rowID,
		); err != nil {
			return fmt.Errorf("deleting embedding rowid %d: %w", rowID, err)
		}
	}

	if _, err := tx.ExecContext(ctx, fmt.Sprintf(
		`DELETE FROM vec_documents WHERE doc_id IN (%s)`, inClause,
	), args...); err != nil {
		return fmt.Errorf("deleting documents: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}

	return nil
}

// Healthy reports whether the sqlite-vec extension answers.
func (d *Driver) Healthy(ctx context.Context) bool {
	var version string
	return d.db.QueryRowContext(ctx, "SELECT vec_version()").Scan(&version) == nil
}

// Close releases the database handle.
func (d *Driver) Close() error {
	return d.db.Close()
}

func matchesFilters(meta, filters map[string]string) bool {
	for k, v := range filters {
		if meta[k] != v {
			return false
		}
	}
	return true
}

// serializeFloat32 converts a float32 slice to the little-endian BLOB
// format sqlite-vec expects.
func serializeFloat32(v []float32) []byte {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

func deserializeFloat32(b []byte) []float32 {
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return v
}

var (
	_ vector.Driver   = (*Driver)(nil)
	_ vector.Provider = (*Provider)(nil)
)

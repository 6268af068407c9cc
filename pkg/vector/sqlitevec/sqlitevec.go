// Package sqlitevec provides a SQLite-backed record store using sqlite-vec.
//
// Each collection is a pair of tables: a records table holding the scalar
// fields, and a vec0 virtual table holding the embeddings keyed by the same
// rowid. Collection dimensions are kept in a catalog table.
package sqlitevec

import (
	"context"
	"database/sql"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"math"

	sqlite_vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
	_ "github.com/mattn/go-sqlite3"

	"github.com/papercomputeco/mnemosyne/pkg/vector"
)

// Driver implements vector.Driver using SQLite with sqlite-vec.
type Driver struct {
	db     *sql.DB
	logger *slog.Logger
}

// Config holds configuration for the SQLite vec driver.
type Config struct {
	// DBPath is the path to the SQLite database file.
	// Use ":memory:" for an in-memory database.
	DBPath string
}

// NewDriver opens the database, verifies sqlite-vec is loaded and creates
// the collection catalog.
func NewDriver(c Config, logger *slog.Logger) (*Driver, error) {
	// enable connection to have sqlite-vec extension
	sqlite_vec.Auto()

	if c.DBPath == "" {
		return nil, errors.New("database path is required")
	}

	db, err := sql.Open("sqlite3", c.DBPath)
	if err != nil {
		return nil, fmt.Errorf("%w: opening database: %w", vector.ErrConnection, err)
	}

	// An in-memory database exists per connection.
	db.SetMaxOpenConns(1)

	var vecVersion string
	if err := db.QueryRow("SELECT vec_version()").Scan(&vecVersion); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite-vec not available: %w", err)
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS mnemosyne_collections (
			name TEXT PRIMARY KEY,
			dim INTEGER NOT NULL
		)
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating collection catalog: %w", err)
	}

	logger.Info("sqlite-vec record store initialized",
		"db_path", c.DBPath,
		"vec_version", vecVersion,
	)

	return &Driver{
		db:     db,
		logger: logger,
	}, nil
}

func recordsTable(collection string) string {
	return `"mem_` + collection + `"`
}

func vecTable(collection string) string {
	return `"vec_` + collection + `"`
}

// HasCollection reports whether the collection is in the catalog.
func (d *Driver) HasCollection(ctx context.Context, name string) (bool, error) {
	if err := vector.ValidateCollectionName(name); err != nil {
		return false, err
	}
	_, err := d.dimension(ctx, name)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, vector.ErrNotFound):
		return false, nil
	default:
		return false, err
	}
}

func (d *Driver) dimension(ctx context.Context, name string) (int, error) {
	var dim int
	err := d.db.QueryRowContext(ctx,
		`SELECT dim FROM mnemosyne_collections WHERE name = ?`, name,
	).Scan(&dim)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return 0, fmt.Errorf("%w: collection %q", vector.ErrNotFound, name)
	case err != nil:
		return 0, fmt.Errorf("reading collection catalog: %w", err)
	}
	return dim, nil
}

// DescribeCollection returns the schema with the cataloged dimension.
func (d *Driver) DescribeCollection(ctx context.Context, name string) (*vector.Schema, error) {
	if err := vector.ValidateCollectionName(name); err != nil {
		return nil, err
	}
	dim, err := d.dimension(ctx, name)
	if err != nil {
		return nil, err
	}
	return vector.NewSchema(name, dim), nil
}

// ListCollections returns the cataloged collection names in name order.
func (d *Driver) ListCollections(ctx context.Context) ([]string, error) {
	rows, err := d.db.QueryContext(ctx, `SELECT name FROM mnemosyne_collections ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("listing collections: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scanning collection name: %w", err)
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating collections: %w", err)
	}
	return names, nil
}

// CreateCollection creates the records and vec0 tables for a collection.
func (d *Driver) CreateCollection(ctx context.Context, name string, dim int) error {
	if err := vector.ValidateCollectionName(name); err != nil {
		return err
	}
	if dim <= 0 {
		return fmt.Errorf("%w: dimension must be positive, got %d", vector.ErrValidation, dim)
	}

	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`INSERT OR IGNORE INTO mnemosyne_collections(name, dim) VALUES (?, ?)`, name, dim,
	)
	if err != nil {
		return fmt.Errorf("cataloging collection %q: %w", name, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: collection %q", vector.ErrAlreadyExists, name)
	}

	createRecords := fmt.Sprintf(`
		CREATE TABLE %s (
			rowid INTEGER PRIMARY KEY AUTOINCREMENT,
			id TEXT NOT NULL UNIQUE,
			content TEXT NOT NULL DEFAULT '',
			session_id TEXT NOT NULL DEFAULT '',
			personality_id TEXT NOT NULL DEFAULT '',
			create_time INTEGER NOT NULL DEFAULT 0
		)`, recordsTable(name))
	if _, err := tx.ExecContext(ctx, createRecords); err != nil {
		return fmt.Errorf("creating records table: %w", err)
	}

	createIndex := fmt.Sprintf(`CREATE INDEX "idx_mem_%s_session" ON %s(session_id)`, name, recordsTable(name))
	if _, err := tx.ExecContext(ctx, createIndex); err != nil {
		return fmt.Errorf("creating session index: %w", err)
	}

	// vec0 virtual tables use integer rowids, matching the records table.
	createVec := fmt.Sprintf(`CREATE VIRTUAL TABLE %s USING vec0(embedding float[%d])`, vecTable(name), dim)
	if _, err := tx.ExecContext(ctx, createVec); err != nil {
		return fmt.Errorf("creating vec0 table: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}

	d.logger.Debug("created sqlite-vec collection", "collection", name, "dimension", dim)
	return nil
}

// DropCollection removes a collection's tables and catalog entry.
func (d *Driver) DropCollection(ctx context.Context, name string) error {
	if err := vector.ValidateCollectionName(name); err != nil {
		return err
	}
	if _, err := d.dimension(ctx, name); err != nil {
		return err
	}

	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	for _, stmt := range []string{
		`DROP TABLE IF EXISTS ` + vecTable(name),
		`DROP TABLE IF EXISTS ` + recordsTable(name),
	} {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("dropping collection %q: %w", name, err)
		}
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM mnemosyne_collections WHERE name = ?`, name); err != nil {
		return fmt.Errorf("removing %q from catalog: %w", name, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}

	d.logger.Debug("dropped sqlite-vec collection", "collection", name)
	return nil
}

// whereClause renders f as a SQL condition over the records table. Values
// are always bound as arguments.
func whereClause(f vector.Filter) (string, []any, error) {
	if err := f.Validate(); err != nil {
		return "", nil, err
	}
	switch f.Op {
	case vector.OpEq:
		return f.Field + " = ?", []any{f.Value}, nil
	case vector.OpGte:
		return f.Field + " >= ?", []any{f.Int}, nil
	default:
		return "1 = 1", nil, nil
	}
}

// Query returns records matching q.Filter in insertion order.
func (d *Driver) Query(ctx context.Context, name string, q vector.Query) ([]vector.Record, error) {
	if err := vector.ValidateCollectionName(name); err != nil {
		return nil, err
	}
	if q.Limit <= 0 || q.Limit > d.MaxPageSize() {
		return nil, fmt.Errorf("%w: limit %d outside 1..%d", vector.ErrValidation, q.Limit, d.MaxPageSize())
	}
	if q.Offset < 0 {
		return nil, fmt.Errorf("%w: negative offset %d", vector.ErrValidation, q.Offset)
	}
	where, args, err := whereClause(q.Filter)
	if err != nil {
		return nil, err
	}
	if _, err := d.dimension(ctx, name); err != nil {
		return nil, err
	}

	query := fmt.Sprintf(`
		SELECT rowid, id, content, session_id, personality_id, create_time
		FROM %s
		WHERE %s
		ORDER BY rowid
		LIMIT ? OFFSET ?
	`, recordsTable(name), where)
	args = append(args, q.Limit, q.Offset)

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying records: %w", err)
	}
	defer rows.Close()

	// Collect results first so we can close the rows cursor before
	// issuing additional queries (SQLite uses a single connection).
	var rowIDs []int64
	var records []vector.Record
	for rows.Next() {
		var rowID int64
		var r vector.Record
		if err := rows.Scan(&rowID, &r.ID, &r.Content, &r.SessionID, &r.PersonalityID, &r.CreateTime); err != nil {
			return nil, fmt.Errorf("scanning record: %w", err)
		}
		rowIDs = append(rowIDs, rowID)
		records = append(records, r.Project(q.OutputFields))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating records: %w", err)
	}
	rows.Close()

	if vector.WantsField(q.OutputFields, vector.FieldEmbedding) {
		stmt := fmt.Sprintf(`SELECT embedding FROM %s WHERE rowid = ?`, vecTable(name))
		for i, rowID := range rowIDs {
			var blob []byte
			if err := d.db.QueryRowContext(ctx, stmt, rowID).Scan(&blob); err != nil {
				return nil, fmt.Errorf("reading embedding for %s: %w", records[i].ID, err)
			}
			if records[i].Embedding, err = deserializeFloat32(blob); err != nil {
				return nil, err
			}
		}
	}

	d.logger.Debug("queried sqlite-vec",
		"collection", name,
		"filter", q.Filter.String(),
		"results", len(records),
	)

	return records, nil
}

// Insert stores records in one transaction.
func (d *Driver) Insert(ctx context.Context, name string, records []vector.Record) ([]string, error) {
	if err := vector.ValidateCollectionName(name); err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, nil
	}
	dim, err := d.dimension(ctx, name)
	if err != nil {
		return nil, err
	}
	if err := vector.CheckDimension(records, dim); err != nil {
		return nil, err
	}

	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	insertRecord := fmt.Sprintf(
		`INSERT INTO %s(id, content, session_id, personality_id, create_time) VALUES (?, ?, ?, ?, ?)`,
		recordsTable(name),
	)
	insertVec := fmt.Sprintf(`INSERT INTO %s(rowid, embedding) VALUES (?, ?)`, vecTable(name))

	ids := make([]string, len(records))
	for i, r := range records {
		if r.ID == "" {
			r.ID = vector.NewRecordID()
		}

		result, err := tx.ExecContext(ctx, insertRecord, r.ID, r.Content, r.SessionID, r.PersonalityID, r.CreateTime)
		if err != nil {
			return nil, fmt.Errorf("inserting record %s: %w", r.ID, err)
		}
		rowID, err := result.LastInsertId()
		if err != nil {
			return nil, fmt.Errorf("getting rowid for record %s: %w", r.ID, err)
		}

		if _, err := tx.ExecContext(ctx, insertVec, rowID, serializeFloat32(r.Embedding)); err != nil {
			return nil, fmt.Errorf("inserting embedding for record %s: %w", r.ID, err)
		}
		ids[i] = r.ID
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing transaction: %w", err)
	}

	d.logger.Debug("inserted records into sqlite-vec", "collection", name, "count", len(ids))
	return ids, nil
}

// Delete removes every record matching filter and returns the count.
func (d *Driver) Delete(ctx context.Context, name string, filter vector.Filter) (int64, error) {
	if err := vector.ValidateCollectionName(name); err != nil {
		return 0, err
	}
	where, args, err := whereClause(filter)
	if err != nil {
		return 0, err
	}
	if _, err := d.dimension(ctx, name); err != nil {
		return 0, err
	}

	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	// vec0 has no join-delete, so remove embeddings by rowid first.
	deleteVec := fmt.Sprintf(
		`DELETE FROM %s WHERE rowid IN (SELECT rowid FROM %s WHERE %s)`,
		vecTable(name), recordsTable(name), where,
	)
	if _, err := tx.ExecContext(ctx, deleteVec, args...); err != nil {
		return 0, fmt.Errorf("deleting embeddings: %w", err)
	}

	deleteRecords := fmt.Sprintf(`DELETE FROM %s WHERE %s`, recordsTable(name), where)
	res, err := tx.ExecContext(ctx, deleteRecords, args...)
	if err != nil {
		return 0, fmt.Errorf("deleting records: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		n = -1
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("committing transaction: %w", err)
	}

	d.logger.Debug("deleted records from sqlite-vec",
		"collection", name,
		"filter", filter.String(),
		"count", n,
	)
	return n, nil
}

// Flush is a no-op: committed SQLite writes are immediately visible.
func (d *Driver) Flush(ctx context.Context, name string) error {
	if err := vector.ValidateCollectionName(name); err != nil {
		return err
	}
	_, err := d.dimension(ctx, name)
	return err
}

// MaxPageSize returns vector.DefaultMaxPageSize.
func (d *Driver) MaxPageSize() int {
	return vector.DefaultMaxPageSize
}

// Close releases resources held by the driver.
func (d *Driver) Close() error {
	return d.db.Close()
}

// serializeFloat32 converts a float32 slice to a little-endian byte slice
// suitable for sqlite-vec BLOB format.
func serializeFloat32(v []float32) []byte {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

// deserializeFloat32 converts a little-endian byte slice back to a float32 slice.
func deserializeFloat32(b []byte) ([]float32, error) {
	if len(b)%4 != 0 {
		return nil, fmt.Errorf("invalid embedding blob length %d: must be divisible by 4", len(b))
	}
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return v, nil
}

// Package chromem provides an embedded record store built on chromem-go.
//
// chromem collections carry no readable schema, so collection dimensions are
// kept as documents of a reserved catalog collection. All metadata values are
// strings; create_time is stored in decimal.
package chromem

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strconv"

	"github.com/philippgille/chromem-go"

	"github.com/papercomputeco/mnemosyne/pkg/vector"
)

// CatalogCollection is the reserved collection holding dimensions.
const CatalogCollection = "_mnemosyne_catalog"

const dimensionKey = "dimension"

var errNoEmbedder = errors.New("chromem record store requires precomputed embeddings")

// noEmbed is handed to chromem so that a record without an embedding fails
// instead of being embedded by a default provider.
func noEmbed(context.Context, string) ([]float32, error) {
	return nil, errNoEmbedder
}

// Driver implements vector.Driver on an in-process chromem database.
type Driver struct {
	db      *chromem.DB
	catalog *chromem.Collection
	logger  *slog.Logger
}

// Config holds configuration for the chromem driver.
type Config struct {
	// Path persists the database to a directory. Empty keeps it in memory.
	Path string

	// Compress gzips persisted documents.
	Compress bool
}

// NewDriver opens or creates the database.
func NewDriver(c Config, logger *slog.Logger) (*Driver, error) {
	var (
		db  *chromem.DB
		err error
	)
	if c.Path == "" {
		db = chromem.NewDB()
	} else {
		db, err = chromem.NewPersistentDB(c.Path, c.Compress)
		if err != nil {
			return nil, fmt.Errorf("%w: opening chromem database at %s: %w", vector.ErrConnection, c.Path, err)
		}
	}

	catalog, err := db.GetOrCreateCollection(CatalogCollection, nil, noEmbed)
	if err != nil {
		return nil, fmt.Errorf("opening collection catalog: %w", err)
	}

	logger.Info("chromem record store initialized", "path", c.Path)

	return &Driver{
		db:      db,
		catalog: catalog,
		logger:  logger,
	}, nil
}

func validateName(name string) error {
	if err := vector.ValidateCollectionName(name); err != nil {
		return err
	}
	if name == CatalogCollection {
		return fmt.Errorf("%w: collection name %q is reserved", vector.ErrValidation, name)
	}
	return nil
}

// collection returns the named collection and its dimension.
func (d *Driver) collection(ctx context.Context, name string) (*chromem.Collection, int, error) {
	if err := validateName(name); err != nil {
		return nil, 0, err
	}

	coll := d.db.GetCollection(name, noEmbed)
	if coll == nil {
		return nil, 0, fmt.Errorf("%w: collection %q", vector.ErrNotFound, name)
	}

	entry, err := d.catalog.GetByID(ctx, name)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: collection %q has no catalog entry", vector.ErrNotFound, name)
	}
	dim, err := strconv.Atoi(entry.Metadata[dimensionKey])
	if err != nil {
		return nil, 0, fmt.Errorf("%w: bad catalog dimension for %q", vector.ErrValidation, name)
	}
	return coll, dim, nil
}

// HasCollection reports whether the named collection exists.
func (d *Driver) HasCollection(ctx context.Context, name string) (bool, error) {
	_, _, err := d.collection(ctx, name)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, vector.ErrNotFound):
		return false, nil
	default:
		return false, err
	}
}

// DescribeCollection returns the schema with the cataloged dimension.
func (d *Driver) DescribeCollection(ctx context.Context, name string) (*vector.Schema, error) {
	_, dim, err := d.collection(ctx, name)
	if err != nil {
		return nil, err
	}
	return vector.NewSchema(name, dim), nil
}

// ListCollections returns every collection except the catalog, sorted.
func (d *Driver) ListCollections(_ context.Context) ([]string, error) {
	var names []string
	for name := range d.db.ListCollections() {
		if name != CatalogCollection {
			names = append(names, name)
		}
	}
	slices.Sort(names)
	return names, nil
}

// CreateCollection creates the collection and its catalog entry.
func (d *Driver) CreateCollection(ctx context.Context, name string, dim int) error {
	if err := validateName(name); err != nil {
		return err
	}
	if dim <= 0 {
		return fmt.Errorf("%w: dimension must be positive, got %d", vector.ErrValidation, dim)
	}
	if d.db.GetCollection(name, noEmbed) != nil {
		return fmt.Errorf("%w: collection %q", vector.ErrAlreadyExists, name)
	}

	if _, err := d.db.CreateCollection(name, nil, noEmbed); err != nil {
		return fmt.Errorf("creating collection %q: %w", name, err)
	}

	err := d.catalog.AddDocument(ctx, chromem.Document{
		ID:        name,
		Metadata:  map[string]string{dimensionKey: strconv.Itoa(dim)},
		Embedding: []float32{1},
		Content:   name,
	})
	if err != nil {
		_ = d.db.DeleteCollection(name)
		return fmt.Errorf("cataloging collection %q: %w", name, err)
	}

	d.logger.Debug("created chromem collection", "collection", name, "dimension", dim)
	return nil
}

// DropCollection deletes the collection and its catalog entry.
func (d *Driver) DropCollection(ctx context.Context, name string) error {
	if _, _, err := d.collection(ctx, name); err != nil {
		return err
	}
	if err := d.db.DeleteCollection(name); err != nil {
		return fmt.Errorf("dropping collection %q: %w", name, err)
	}
	if err := d.catalog.Delete(ctx, nil, nil, name); err != nil {
		return fmt.Errorf("removing %q from catalog: %w", name, err)
	}

	d.logger.Debug("dropped chromem collection", "collection", name)
	return nil
}

func toRecord(id string, md map[string]string, content string, embedding []float32) vector.Record {
	ct, _ := strconv.ParseInt(md[vector.FieldCreateTime], 10, 64)
	return vector.Record{
		ID:            id,
		Content:       content,
		Embedding:     embedding,
		SessionID:     md[vector.FieldSessionID],
		PersonalityID: md[vector.FieldPersonalityID],
		CreateTime:    ct,
	}
}

// scan returns every record matching f, ordered by create_time then id.
// Equality on metadata fields is pushed down to chromem; the rest is
// evaluated in memory.
func (d *Driver) scan(ctx context.Context, coll *chromem.Collection, dim int, f vector.Filter) ([]vector.Record, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}

	if f.Op == vector.OpEq && f.Field == vector.FieldID {
		doc, err := coll.GetByID(ctx, f.Value)
		if err != nil {
			return nil, nil
		}
		return []vector.Record{toRecord(doc.ID, doc.Metadata, doc.Content, doc.Embedding)}, nil
	}

	n := coll.Count()
	if n == 0 {
		return nil, nil
	}

	var where map[string]string
	if f.Op == vector.OpEq {
		where = map[string]string{f.Field: f.Value}
	}

	probe := make([]float32, dim)
	probe[0] = 1
	results, err := coll.QueryEmbedding(ctx, probe, n, where, nil)
	if err != nil {
		return nil, fmt.Errorf("scanning collection %q: %w", coll.Name, err)
	}

	records := make([]vector.Record, 0, len(results))
	for _, res := range results {
		r := toRecord(res.ID, res.Metadata, res.Content, res.Embedding)
		if f.Match(r) {
			records = append(records, r)
		}
	}
	slices.SortFunc(records, func(a, b vector.Record) int {
		return cmp.Or(cmp.Compare(a.CreateTime, b.CreateTime), cmp.Compare(a.ID, b.ID))
	})
	return records, nil
}

// Query returns records matching q.Filter ordered by create_time then id.
func (d *Driver) Query(ctx context.Context, name string, q vector.Query) ([]vector.Record, error) {
	if q.Limit <= 0 || q.Limit > d.MaxPageSize() {
		return nil, fmt.Errorf("%w: limit %d outside 1..%d", vector.ErrValidation, q.Limit, d.MaxPageSize())
	}
	if q.Offset < 0 {
		return nil, fmt.Errorf("%w: negative offset %d", vector.ErrValidation, q.Offset)
	}
	coll, dim, err := d.collection(ctx, name)
	if err != nil {
		return nil, err
	}

	records, err := d.scan(ctx, coll, dim, q.Filter)
	if err != nil {
		return nil, err
	}
	if q.Offset >= len(records) {
		return []vector.Record{}, nil
	}
	records = records[q.Offset:min(q.Offset+q.Limit, len(records))]

	out := make([]vector.Record, len(records))
	for i, r := range records {
		out[i] = r.Project(q.OutputFields)
	}

	d.logger.Debug("queried chromem",
		"collection", name,
		"filter", q.Filter.String(),
		"results", len(out),
	)
	return out, nil
}

// Insert adds records. chromem normalizes embeddings on write, so stored
// vectors are unit length.
func (d *Driver) Insert(ctx context.Context, name string, records []vector.Record) ([]string, error) {
	if len(records) == 0 {
		return nil, nil
	}
	coll, dim, err := d.collection(ctx, name)
	if err != nil {
		return nil, err
	}
	if err := vector.CheckDimension(records, dim); err != nil {
		return nil, err
	}

	docs := make([]chromem.Document, len(records))
	ids := make([]string, len(records))
	for i, r := range records {
		if r.ID == "" {
			r.ID = vector.NewRecordID()
		}
		ids[i] = r.ID
		docs[i] = chromem.Document{
			ID:        r.ID,
			Content:   r.Content,
			Embedding: r.Embedding,
			Metadata: map[string]string{
				vector.FieldSessionID:     r.SessionID,
				vector.FieldPersonalityID: r.PersonalityID,
				vector.FieldCreateTime:    strconv.FormatInt(r.CreateTime, 10),
			},
		}
	}

	if err := coll.AddDocuments(ctx, docs, 1); err != nil {
		return nil, fmt.Errorf("adding records to %q: %w", name, err)
	}

	d.logger.Debug("added records to chromem", "collection", name, "count", len(ids))
	return ids, nil
}

// Delete removes every record matching filter and returns the count.
func (d *Driver) Delete(ctx context.Context, name string, filter vector.Filter) (int64, error) {
	coll, dim, err := d.collection(ctx, name)
	if err != nil {
		return 0, err
	}
	matched, err := d.scan(ctx, coll, dim, filter)
	if err != nil {
		return 0, err
	}
	if len(matched) == 0 {
		return 0, nil
	}

	ids := make([]string, len(matched))
	for i, r := range matched {
		ids[i] = r.ID
	}
	if err := coll.Delete(ctx, nil, nil, ids...); err != nil {
		return 0, fmt.Errorf("deleting records from %q: %w", name, err)
	}

	d.logger.Debug("deleted records from chromem",
		"collection", name,
		"filter", filter.String(),
		"count", len(ids),
	)
	return int64(len(ids)), nil
}

// Flush confirms the collection exists. chromem persists on every write.
func (d *Driver) Flush(ctx context.Context, name string) error {
	_, _, err := d.collection(ctx, name)
	return err
}

// MaxPageSize returns vector.DefaultMaxPageSize.
func (d *Driver) MaxPageSize() int {
	return vector.DefaultMaxPageSize
}

// Close is a no-op; chromem holds no external handles.
func (d *Driver) Close() error {
	return nil
}

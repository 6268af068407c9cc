// Package qdrant provides a record store backed by Qdrant over gRPC.
package qdrant

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"sync"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"

	"github.com/papercomputeco/mnemosyne/pkg/vector"
)

// DefaultPort is Qdrant's gRPC port.
const DefaultPort = 6334

// maxCursors bounds the scroll cursor cache.
const maxCursors = 64

// Driver implements vector.Driver using the Qdrant gRPC client.
//
// Qdrant scrolls by point id rather than by offset. The driver remembers the
// next-page cursor returned by each scroll so sequential pagination does not
// rescan from the start. A cursor is used at most once, and a query at
// offset zero starts a new chain and discards older cursors for the same
// collection and filter, so a cursor never outlives the paging pass that
// produced it. Within one pass, writes by other clients shift pages the same
// way they shift any offset pagination.
type Driver struct {
	client *qdrant.Client
	logger *slog.Logger

	mu      sync.Mutex
	cursors map[cursorKey]*qdrant.PointId
}

type cursorKey struct {
	collection string
	filter     string
	offset     int
}

// Config holds configuration for the Qdrant driver.
type Config struct {
	// Target is "host" or "host:port". The port defaults to DefaultPort.
	Target string
	APIKey string
	UseTLS bool
}

// NewDriver connects to Qdrant and checks the server is healthy.
func NewDriver(c Config, logger *slog.Logger) (*Driver, error) {
	if c.Target == "" {
		return nil, errors.New("qdrant target is required")
	}

	host, port := c.Target, DefaultPort
	if h, p, err := net.SplitHostPort(c.Target); err == nil {
		n, err := strconv.Atoi(p)
		if err != nil {
			return nil, fmt.Errorf("%w: invalid qdrant port %q", vector.ErrValidation, p)
		}
		host, port = h, n
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   host,
		Port:   port,
		APIKey: c.APIKey,
		UseTLS: c.UseTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: creating qdrant client: %w", vector.ErrConnection, err)
	}

	health, err := client.HealthCheck(context.Background())
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("%w: qdrant health check: %w", vector.ErrConnection, err)
	}

	logger.Info("connected to Qdrant",
		"host", host,
		"port", port,
		"version", health.GetVersion(),
	)

	return &Driver{
		client:  client,
		logger:  logger,
		cursors: make(map[cursorKey]*qdrant.PointId),
	}, nil
}

// HasCollection reports whether the named collection exists.
func (d *Driver) HasCollection(ctx context.Context, name string) (bool, error) {
	if err := vector.ValidateCollectionName(name); err != nil {
		return false, err
	}
	ok, err := d.client.CollectionExists(ctx, name)
	if err != nil {
		return false, fmt.Errorf("%w: checking collection %q: %w", vector.ErrConnection, name, err)
	}
	return ok, nil
}

// DescribeCollection reads the vector size from the collection config.
func (d *Driver) DescribeCollection(ctx context.Context, name string) (*vector.Schema, error) {
	ok, err := d.HasCollection(ctx, name)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: collection %q", vector.ErrNotFound, name)
	}

	info, err := d.client.GetCollectionInfo(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("describing collection %q: %w", name, err)
	}

	size := info.GetConfig().GetParams().GetVectorsConfig().GetParams().GetSize()
	if size == 0 {
		return nil, fmt.Errorf("%w: collection %q has no single unnamed vector", vector.ErrNotFound, name)
	}
	return vector.NewSchema(name, int(size)), nil
}

// ListCollections returns the names of all collections.
func (d *Driver) ListCollections(ctx context.Context) ([]string, error) {
	names, err := d.client.ListCollections(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: listing collections: %w", vector.ErrConnection, err)
	}
	return names, nil
}

// CreateCollection creates a cosine collection and indexes the filter fields.
func (d *Driver) CreateCollection(ctx context.Context, name string, dim int) error {
	if dim <= 0 {
		return fmt.Errorf("%w: dimension must be positive, got %d", vector.ErrValidation, dim)
	}
	ok, err := d.HasCollection(ctx, name)
	if err != nil {
		return err
	}
	if ok {
		return fmt.Errorf("%w: collection %q", vector.ErrAlreadyExists, name)
	}

	err = d.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: name,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     uint64(dim),
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil {
		return fmt.Errorf("creating collection %q: %w", name, err)
	}

	indexes := map[string]qdrant.FieldType{
		vector.FieldSessionID:     qdrant.FieldType_FieldTypeKeyword,
		vector.FieldPersonalityID: qdrant.FieldType_FieldTypeKeyword,
		vector.FieldCreateTime:    qdrant.FieldType_FieldTypeInteger,
	}
	for field, ft := range indexes {
		_, err := d.client.CreateFieldIndex(ctx, &qdrant.CreateFieldIndexCollection{
			CollectionName: name,
			Wait:           qdrant.PtrOf(true),
			FieldName:      field,
			FieldType:      qdrant.PtrOf(ft),
		})
		if err != nil {
			return fmt.Errorf("indexing %s on %q: %w", field, name, err)
		}
	}

	d.logger.Debug("created qdrant collection", "collection", name, "dimension", dim)
	return nil
}

// DropCollection deletes a collection.
func (d *Driver) DropCollection(ctx context.Context, name string) error {
	ok, err := d.HasCollection(ctx, name)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: collection %q", vector.ErrNotFound, name)
	}
	if err := d.client.DeleteCollection(ctx, name); err != nil {
		return fmt.Errorf("dropping collection %q: %w", name, err)
	}
	d.forgetCursors(name)

	d.logger.Debug("dropped qdrant collection", "collection", name)
	return nil
}

// toFilter renders f as a Qdrant filter. Nil matches every point.
func toFilter(f vector.Filter) (*qdrant.Filter, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}
	switch f.Op {
	case vector.OpEq:
		if f.Field == vector.FieldID {
			if _, err := uuid.Parse(f.Value); err != nil {
				return nil, fmt.Errorf("%w: qdrant record ids are UUIDs, got %q", vector.ErrValidation, f.Value)
			}
			return &qdrant.Filter{Must: []*qdrant.Condition{qdrant.NewHasID(qdrant.NewID(f.Value))}}, nil
		}
		return &qdrant.Filter{Must: []*qdrant.Condition{qdrant.NewMatch(f.Field, f.Value)}}, nil
	case vector.OpGte:
		gte := float64(f.Int)
		return &qdrant.Filter{Must: []*qdrant.Condition{qdrant.NewRange(f.Field, &qdrant.Range{Gte: &gte})}}, nil
	default:
		return nil, nil
	}
}

func toRecord(p *qdrant.RetrievedPoint) vector.Record {
	payload := p.GetPayload()
	r := vector.Record{
		ID:            p.GetId().GetUuid(),
		Content:       payload[vector.FieldContent].GetStringValue(),
		SessionID:     payload[vector.FieldSessionID].GetStringValue(),
		PersonalityID: payload[vector.FieldPersonalityID].GetStringValue(),
		CreateTime:    payload[vector.FieldCreateTime].GetIntegerValue(),
	}
	if v := p.GetVectors().GetVector(); v != nil {
		if dense := v.GetDense(); dense != nil {
			r.Embedding = dense.GetData()
		} else {
			r.Embedding = v.GetData()
		}
	}
	return r
}

// takeCursor returns and removes the cursor for key.
func (d *Driver) takeCursor(key cursorKey) *qdrant.PointId {
	d.mu.Lock()
	defer d.mu.Unlock()
	next := d.cursors[key]
	delete(d.cursors, key)
	return next
}

// startChain drops every cursor left by earlier passes over collection
// with filter.
func (d *Driver) startChain(collection, filter string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for k := range d.cursors {
		if k.collection == collection && k.filter == filter {
			delete(d.cursors, k)
		}
	}
}

func (d *Driver) rememberCursor(key cursorKey, next *qdrant.PointId) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if next == nil {
		return
	}
	if len(d.cursors) >= maxCursors {
		clear(d.cursors)
	}
	d.cursors[key] = next
}

func (d *Driver) forgetCursors(collection string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for k := range d.cursors {
		if k.collection == collection {
			delete(d.cursors, k)
		}
	}
}

// Query scrolls records matching q.Filter in point id order.
func (d *Driver) Query(ctx context.Context, name string, q vector.Query) ([]vector.Record, error) {
	if q.Limit <= 0 || q.Limit > d.MaxPageSize() {
		return nil, fmt.Errorf("%w: limit %d outside 1..%d", vector.ErrValidation, q.Limit, d.MaxPageSize())
	}
	if q.Offset < 0 {
		return nil, fmt.Errorf("%w: negative offset %d", vector.ErrValidation, q.Offset)
	}
	filter, err := toFilter(q.Filter)
	if err != nil {
		return nil, err
	}
	ok, err := d.HasCollection(ctx, name)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: collection %q", vector.ErrNotFound, name)
	}

	withVectors := vector.WantsField(q.OutputFields, vector.FieldEmbedding)
	filterKey := q.Filter.String()

	// Without a remembered cursor, skip Offset points by scrolling past them.
	var start *qdrant.PointId
	if q.Offset == 0 {
		d.startChain(name, filterKey)
	} else {
		start = d.takeCursor(cursorKey{collection: name, filter: filterKey, offset: q.Offset})
	}
	skip := 0
	if start == nil && q.Offset > 0 {
		skip = q.Offset
	}

	var records []vector.Record
	offset := start
	for len(records) < skip+q.Limit {
		batch := min(skip+q.Limit-len(records), d.MaxPageSize())
		points, next, err := d.client.ScrollAndOffset(ctx, &qdrant.ScrollPoints{
			CollectionName: name,
			Filter:         filter,
			Offset:         offset,
			Limit:          qdrant.PtrOf(uint32(batch)),
			WithPayload:    qdrant.NewWithPayload(true),
			WithVectors:    qdrant.NewWithVectors(withVectors),
		})
		if err != nil {
			return nil, fmt.Errorf("scrolling %q: %w", name, err)
		}
		for _, p := range points {
			records = append(records, toRecord(p))
		}
		offset = next
		if next == nil || len(points) < batch {
			break
		}
	}

	if skip >= len(records) {
		records = nil
	} else {
		records = records[skip:]
	}
	if len(records) == q.Limit {
		d.rememberCursor(cursorKey{collection: name, filter: filterKey, offset: q.Offset + q.Limit}, offset)
	}

	out := make([]vector.Record, len(records))
	for i, r := range records {
		out[i] = r.Project(q.OutputFields)
	}

	d.logger.Debug("queried qdrant",
		"collection", name,
		"filter", filterKey,
		"results", len(out),
	)
	return out, nil
}

// Insert upserts records as points. Record ids must be UUIDs.
func (d *Driver) Insert(ctx context.Context, name string, records []vector.Record) ([]string, error) {
	if len(records) == 0 {
		return nil, nil
	}
	schema, err := d.DescribeCollection(ctx, name)
	if err != nil {
		return nil, err
	}
	dim, err := schema.Dimension()
	if err != nil {
		return nil, err
	}
	if err := vector.CheckDimension(records, dim); err != nil {
		return nil, err
	}

	ids := make([]string, len(records))
	points := make([]*qdrant.PointStruct, len(records))
	for i, r := range records {
		if r.ID == "" {
			r.ID = vector.NewRecordID()
		}
		if _, err := uuid.Parse(r.ID); err != nil {
			return nil, fmt.Errorf("%w: qdrant record ids are UUIDs, got %q", vector.ErrValidation, r.ID)
		}
		ids[i] = r.ID
		points[i] = &qdrant.PointStruct{
			Id:      qdrant.NewID(r.ID),
			Vectors: qdrant.NewVectors(r.Embedding...),
			Payload: qdrant.NewValueMap(map[string]any{
				vector.FieldContent:       r.Content,
				vector.FieldSessionID:     r.SessionID,
				vector.FieldPersonalityID: r.PersonalityID,
				vector.FieldCreateTime:    r.CreateTime,
			}),
		}
	}

	_, err = d.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: name,
		Wait:           qdrant.PtrOf(true),
		Points:         points,
	})
	if err != nil {
		return nil, fmt.Errorf("upserting into %q: %w", name, err)
	}
	d.forgetCursors(name)

	d.logger.Debug("inserted records into qdrant", "collection", name, "count", len(ids))
	return ids, nil
}

// Delete counts the matching points, then deletes them by filter.
func (d *Driver) Delete(ctx context.Context, name string, filter vector.Filter) (int64, error) {
	qf, err := toFilter(filter)
	if err != nil {
		return 0, err
	}
	if qf == nil {
		qf = &qdrant.Filter{}
	}
	ok, err := d.HasCollection(ctx, name)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, fmt.Errorf("%w: collection %q", vector.ErrNotFound, name)
	}

	n, err := d.client.Count(ctx, &qdrant.CountPoints{
		CollectionName: name,
		Filter:         qf,
		Exact:          qdrant.PtrOf(true),
	})
	if err != nil {
		return 0, fmt.Errorf("counting points in %q: %w", name, err)
	}

	_, err = d.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: name,
		Wait:           qdrant.PtrOf(true),
		Points:         qdrant.NewPointsSelectorFilter(qf),
	})
	if err != nil {
		return 0, fmt.Errorf("deleting from %q: %w", name, err)
	}
	d.forgetCursors(name)

	d.logger.Debug("deleted records from qdrant",
		"collection", name,
		"filter", filter.String(),
		"count", n,
	)
	return int64(n), nil
}

// Flush confirms the collection exists. Writes are issued with wait=true,
// so they are already applied.
func (d *Driver) Flush(ctx context.Context, name string) error {
	ok, err := d.HasCollection(ctx, name)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: collection %q", vector.ErrNotFound, name)
	}
	return nil
}

// MaxPageSize returns vector.DefaultMaxPageSize.
func (d *Driver) MaxPageSize() int {
	return vector.DefaultMaxPageSize
}

// Close closes the gRPC connection.
func (d *Driver) Close() error {
	return d.client.Close()
}

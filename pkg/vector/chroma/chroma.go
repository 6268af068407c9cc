// Package chroma provides a record store backed by Chroma's v2 REST API.
package chroma

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/papercomputeco/mnemosyne/pkg/vector"
)

const (
	// dimensionKey is the collection metadata key holding the embedding width.
	dimensionKey = "mnemosyne_dimension"

	defaultMaxRetries    = 5
	defaultRetryDelay    = 500 * time.Millisecond
	defaultMaxRetryDelay = 8 * time.Second
)

// Driver implements vector.Driver using Chroma's REST API.
type Driver struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger

	mu  sync.Mutex
	ids map[string]string // collection name -> chroma id
}

// Config holds configuration for the Chroma driver.
type Config struct {
	// URL is the Chroma server URL (e.g., "http://localhost:8000").
	URL string

	// MaxRetries bounds heartbeat attempts while connecting. Zero uses the default.
	MaxRetries int

	// RetryDelay is the initial delay between heartbeat attempts, doubled
	// after each failure up to MaxRetryDelay.
	RetryDelay    time.Duration
	MaxRetryDelay time.Duration
}

// NewDriver creates a Chroma driver and waits for the server heartbeat.
func NewDriver(c Config, logger *slog.Logger) (*Driver, error) {
	if c.URL == "" {
		return nil, errors.New("chroma URL is required")
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = defaultMaxRetries
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = defaultRetryDelay
	}
	if c.MaxRetryDelay <= 0 {
		c.MaxRetryDelay = defaultMaxRetryDelay
	}

	d := &Driver{
		baseURL: c.URL,
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
		logger: logger,
		ids:    make(map[string]string),
	}

	if err := d.waitForHeartbeat(context.Background(), c); err != nil {
		return nil, err
	}

	logger.Info("connected to Chroma", "url", c.URL)
	return d, nil
}

func (d *Driver) waitForHeartbeat(ctx context.Context, c Config) error {
	delay := c.RetryDelay
	var lastErr error
	for attempt := 1; attempt <= c.MaxRetries; attempt++ {
		lastErr = d.do(ctx, http.MethodGet, d.baseURL+"/api/v2/heartbeat", nil, nil, http.StatusOK)
		if lastErr == nil {
			return nil
		}
		if attempt == c.MaxRetries {
			break
		}

		d.logger.Warn("chroma not ready, retrying",
			"attempt", attempt,
			"delay", delay,
			"error", lastErr,
		)
		time.Sleep(delay)
		delay = time.Duration(math.Min(float64(delay*2), float64(c.MaxRetryDelay)))
	}
	return fmt.Errorf("%w: chroma at %s unreachable after %d attempts: %w",
		vector.ErrConnection, d.baseURL, c.MaxRetries, lastErr)
}

func (d *Driver) collectionsURL() string {
	return d.baseURL + "/api/v2/tenants/default_tenant/databases/default_database/collections"
}

// statusError carries a non-expected HTTP status.
type statusError struct {
	code int
	body string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("status %d: %s", e.code, e.body)
}

// do sends a JSON request and decodes the response into out when non-nil.
func (d *Driver) do(ctx context.Context, method, u string, in, out any, expect ...int) error {
	var body io.Reader
	if in != nil {
		jsonBody, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshaling request: %w", err)
		}
		body = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", vector.ErrConnection, err)
	}
	defer resp.Body.Close()

	ok := false
	for _, code := range expect {
		if resp.StatusCode == code {
			ok = true
			break
		}
	}
	if !ok {
		respBody, _ := io.ReadAll(resp.Body)
		return &statusError{code: resp.StatusCode, body: string(respBody)}
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decoding response: %w", err)
		}
	}
	return nil
}

func isNotFound(err error) bool {
	var se *statusError
	return errors.As(err, &se) && se.code == http.StatusNotFound
}

// getCollection fetches a collection by name.
func (d *Driver) getCollection(ctx context.Context, name string) (*chromaCollection, error) {
	if err := vector.ValidateCollectionName(name); err != nil {
		return nil, err
	}

	var coll chromaCollection
	err := d.do(ctx, http.MethodGet, d.collectionsURL()+"/"+url.PathEscape(name), nil, &coll, http.StatusOK)
	switch {
	case isNotFound(err):
		return nil, fmt.Errorf("%w: collection %q", vector.ErrNotFound, name)
	case err != nil:
		return nil, fmt.Errorf("getting collection %q: %w", name, err)
	}

	d.mu.Lock()
	d.ids[name] = coll.ID
	d.mu.Unlock()
	return &coll, nil
}

// collectionID resolves a collection's chroma id, caching the lookup.
func (d *Driver) collectionID(ctx context.Context, name string) (string, error) {
	d.mu.Lock()
	id, ok := d.ids[name]
	d.mu.Unlock()
	if ok {
		return id, nil
	}

	coll, err := d.getCollection(ctx, name)
	if err != nil {
		return "", err
	}
	return coll.ID, nil
}

// HasCollection reports whether the named collection exists.
func (d *Driver) HasCollection(ctx context.Context, name string) (bool, error) {
	_, err := d.getCollection(ctx, name)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, vector.ErrNotFound):
		return false, nil
	default:
		return false, err
	}
}

// DescribeCollection reads the dimension stored in collection metadata.
func (d *Driver) DescribeCollection(ctx context.Context, name string) (*vector.Schema, error) {
	coll, err := d.getCollection(ctx, name)
	if err != nil {
		return nil, err
	}

	dim, ok := asInt64(coll.Metadata[dimensionKey])
	if !ok {
		return nil, fmt.Errorf("%w: collection %q has no %s metadata", vector.ErrNotFound, name, dimensionKey)
	}
	return vector.NewSchema(name, int(dim)), nil
}

// ListCollections returns the names of all collections in the default database.
func (d *Driver) ListCollections(ctx context.Context) ([]string, error) {
	var colls []chromaCollection
	if err := d.do(ctx, http.MethodGet, d.collectionsURL(), nil, &colls, http.StatusOK); err != nil {
		return nil, fmt.Errorf("listing collections: %w", err)
	}

	names := make([]string, len(colls))
	for i, c := range colls {
		names[i] = c.Name
	}
	return names, nil
}

// CreateCollection creates a collection and records its dimension in metadata.
func (d *Driver) CreateCollection(ctx context.Context, name string, dim int) error {
	if err := vector.ValidateCollectionName(name); err != nil {
		return err
	}
	if dim <= 0 {
		return fmt.Errorf("%w: dimension must be positive, got %d", vector.ErrValidation, dim)
	}

	var coll chromaCollection
	err := d.do(ctx, http.MethodPost, d.collectionsURL(), chromaCreateRequest{
		Name: name,
		Metadata: map[string]any{
			dimensionKey: dim,
			"hnsw:space": "cosine",
		},
	}, &coll, http.StatusOK, http.StatusCreated)

	var se *statusError
	switch {
	case errors.As(err, &se) && se.code == http.StatusConflict:
		return fmt.Errorf("%w: collection %q", vector.ErrAlreadyExists, name)
	case err != nil:
		return fmt.Errorf("creating collection %q: %w", name, err)
	}

	d.mu.Lock()
	d.ids[name] = coll.ID
	d.mu.Unlock()

	d.logger.Debug("created chroma collection", "collection", name, "id", coll.ID, "dimension", dim)
	return nil
}

// DropCollection deletes a collection by name.
func (d *Driver) DropCollection(ctx context.Context, name string) error {
	if err := vector.ValidateCollectionName(name); err != nil {
		return err
	}

	err := d.do(ctx, http.MethodDelete, d.collectionsURL()+"/"+url.PathEscape(name), nil, nil, http.StatusOK, http.StatusNoContent)

	d.mu.Lock()
	delete(d.ids, name)
	d.mu.Unlock()

	switch {
	case isNotFound(err):
		return fmt.Errorf("%w: collection %q", vector.ErrNotFound, name)
	case err != nil:
		return fmt.Errorf("dropping collection %q: %w", name, err)
	}

	d.logger.Debug("dropped chroma collection", "collection", name)
	return nil
}

// where renders f as a Chroma metadata filter. Nil means no filter.
func where(f vector.Filter) (map[string]any, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}
	switch f.Op {
	case vector.OpEq:
		if f.Field == vector.FieldID {
			return nil, nil
		}
		return map[string]any{f.Field: map[string]any{"$eq": f.Value}}, nil
	case vector.OpGte:
		return map[string]any{f.Field: map[string]any{"$gte": f.Int}}, nil
	default:
		return nil, nil
	}
}

func getRequest(f vector.Filter) (chromaGetRequest, error) {
	w, err := where(f)
	if err != nil {
		return chromaGetRequest{}, err
	}
	req := chromaGetRequest{Where: w}
	if f.Op == vector.OpEq && f.Field == vector.FieldID {
		req.IDs = []string{f.Value}
	}
	return req, nil
}

// Query returns records matching q.Filter.
func (d *Driver) Query(ctx context.Context, name string, q vector.Query) ([]vector.Record, error) {
	if q.Limit <= 0 || q.Limit > d.MaxPageSize() {
		return nil, fmt.Errorf("%w: limit %d outside 1..%d", vector.ErrValidation, q.Limit, d.MaxPageSize())
	}
	if q.Offset < 0 {
		return nil, fmt.Errorf("%w: negative offset %d", vector.ErrValidation, q.Offset)
	}
	req, err := getRequest(q.Filter)
	if err != nil {
		return nil, err
	}
	id, err := d.collectionID(ctx, name)
	if err != nil {
		return nil, err
	}

	req.Limit = q.Limit
	req.Offset = q.Offset
	req.Include = []string{"metadatas", "documents"}
	if vector.WantsField(q.OutputFields, vector.FieldEmbedding) {
		req.Include = append(req.Include, "embeddings")
	}

	var getResp chromaGetResponse
	if err := d.do(ctx, http.MethodPost, d.collectionsURL()+"/"+id+"/get", req, &getResp, http.StatusOK); err != nil {
		return nil, fmt.Errorf("querying %q: %w", name, err)
	}

	records := make([]vector.Record, len(getResp.IDs))
	for i, rid := range getResp.IDs {
		r := vector.Record{ID: rid}
		if i < len(getResp.Documents) && getResp.Documents[i] != nil {
			r.Content = *getResp.Documents[i]
		}
		if i < len(getResp.Metadatas) && getResp.Metadatas[i] != nil {
			md := getResp.Metadatas[i]
			r.SessionID, _ = md[vector.FieldSessionID].(string)
			r.PersonalityID, _ = md[vector.FieldPersonalityID].(string)
			r.CreateTime, _ = asInt64(md[vector.FieldCreateTime])
		}
		if i < len(getResp.Embeddings) {
			r.Embedding = getResp.Embeddings[i]
		}
		records[i] = r.Project(q.OutputFields)
	}

	d.logger.Debug("queried chroma",
		"collection", name,
		"filter", q.Filter.String(),
		"results", len(records),
	)
	return records, nil
}

// Insert adds records to a collection. Chroma does not report the collection
// width, so the dimension is checked against the stored metadata.
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
	id, err := d.collectionID(ctx, name)
	if err != nil {
		return nil, err
	}

	req := chromaAddRequest{
		IDs:        make([]string, len(records)),
		Embeddings: make([][]float32, len(records)),
		Metadatas:  make([]map[string]any, len(records)),
		Documents:  make([]string, len(records)),
	}
	for i, r := range records {
		if r.ID == "" {
			r.ID = vector.NewRecordID()
		}
		req.IDs[i] = r.ID
		req.Embeddings[i] = r.Embedding
		req.Documents[i] = r.Content
		req.Metadatas[i] = map[string]any{
			vector.FieldSessionID:     r.SessionID,
			vector.FieldPersonalityID: r.PersonalityID,
			vector.FieldCreateTime:    r.CreateTime,
		}
	}

	if err := d.do(ctx, http.MethodPost, d.collectionsURL()+"/"+id+"/add", req, nil, http.StatusOK, http.StatusCreated); err != nil {
		return nil, fmt.Errorf("adding records to %q: %w", name, err)
	}

	d.logger.Debug("added records to chroma", "collection", name, "count", len(records))
	return req.IDs, nil
}

// Delete resolves the matching ids, then deletes them so the count is exact.
func (d *Driver) Delete(ctx context.Context, name string, filter vector.Filter) (int64, error) {
	req, err := getRequest(filter)
	if err != nil {
		return 0, err
	}
	id, err := d.collectionID(ctx, name)
	if err != nil {
		return 0, err
	}
	req.Include = []string{}

	var matched chromaGetResponse
	if err := d.do(ctx, http.MethodPost, d.collectionsURL()+"/"+id+"/get", req, &matched, http.StatusOK); err != nil {
		return 0, fmt.Errorf("resolving records to delete from %q: %w", name, err)
	}
	if len(matched.IDs) == 0 {
		return 0, nil
	}

	if err := d.do(ctx, http.MethodPost, d.collectionsURL()+"/"+id+"/delete",
		chromaDeleteRequest{IDs: matched.IDs}, nil, http.StatusOK); err != nil {
		return 0, fmt.Errorf("deleting records from %q: %w", name, err)
	}

	d.logger.Debug("deleted records from chroma",
		"collection", name,
		"filter", filter.String(),
		"count", len(matched.IDs),
	)
	return int64(len(matched.IDs)), nil
}

// Flush confirms the collection exists. Chroma writes are visible on return.
func (d *Driver) Flush(ctx context.Context, name string) error {
	_, err := d.collectionID(ctx, name)
	return err
}

// MaxPageSize returns vector.DefaultMaxPageSize.
func (d *Driver) MaxPageSize() int {
	return vector.DefaultMaxPageSize
}

// Close releases resources held by the driver.
func (d *Driver) Close() error {
	d.httpClient.CloseIdleConnections()
	return nil
}

// asInt64 reads a JSON number that may have been decoded as float64 or string.
func asInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case float64:
		return int64(n), true
	case int64:
		return n, true
	case int:
		return int64(n), true
	case json.Number:
		i, err := n.Int64()
		return i, err == nil
	case string:
		i, err := strconv.ParseInt(n, 10, 64)
		return i, err == nil
	default:
		return 0, false
	}
}

// Package vector is the record store adapter: a typed façade over the external
// vector store that holds long-term memory records.
package vector

import "context"

// DefaultMaxPageSize bounds a single Query when a backend has no tighter limit.
const DefaultMaxPageSize = 16384

// Query describes a filtered, paginated read against a collection.
type Query struct {
	// Filter selects the records to return. The zero Filter matches nothing;
	// use All() to match every record.
	Filter Filter

	// OutputFields restricts which fields are populated on returned records.
	// Empty means all scalar fields. FieldEmbedding is only populated when
	// explicitly requested.
	OutputFields []string

	// Limit is the maximum number of records to return.
	Limit int

	// Offset skips this many matching records, in the backend's scan order.
	Offset int
}

// Driver is the record store capability set consumed by the memory core.
type Driver interface {
	// HasCollection reports whether the named collection exists.
	HasCollection(ctx context.Context, name string) (bool, error)

	// DescribeCollection returns the collection's field list. Returns
	// ErrNotFound when the collection does not exist.
	DescribeCollection(ctx context.Context, name string) (*Schema, error)

	// ListCollections returns the names of all collections in the store.
	ListCollections(ctx context.Context) ([]string, error)

	// CreateCollection creates a collection whose embedding field has width dim.
	CreateCollection(ctx context.Context, name string, dim int) error

	// DropCollection removes a collection and every record in it.
	DropCollection(ctx context.Context, name string) error

	// Query returns records matching q.Filter.
	Query(ctx context.Context, name string, q Query) ([]Record, error)

	// Insert stores records and returns their IDs. Records with an empty ID
	// are assigned one.
	Insert(ctx context.Context, name string, records []Record) ([]string, error)

	// Delete removes all records matching filter and returns the number removed.
	// Backends that cannot count deletions return -1.
	Delete(ctx context.Context, name string, filter Filter) (int64, error)

	// Flush makes recently written or deleted records visible to queries.
	Flush(ctx context.Context, name string) error

	// MaxPageSize is the largest Limit a single Query accepts.
	MaxPageSize() int

	// Close releases any resources held by the driver.
	Close() error
}

package testutils

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/papercomputeco/mnemosyne/pkg/vector"
)

// ErrMockFailure is returned by MockRecordStore operations toggled to fail.
var ErrMockFailure = errors.New("mock record store failure")

// Call is one recorded MockRecordStore invocation.
type Call struct {
	Op         string
	Collection string
	Filter     string
	Count      int
}

// Mutating operation names.
var mutatingOps = []string{"CreateCollection", "DropCollection", "Insert", "Delete", "Flush"}

// MockRecordStore is an in-memory vector.Driver that records every call.
type MockRecordStore struct {
	mu sync.Mutex

	collections map[string]int
	records     map[string][]vector.Record
	calls       []Call

	// PageSize overrides MaxPageSize when positive.
	PageSize int

	// DescribeNoDim makes DescribeCollection return a schema without dim.
	DescribeNoDim bool

	// Failure toggles, one per operation.
	FailHas      bool
	FailDescribe bool
	FailList     bool
	FailCreate   bool
	FailDrop     bool
	FailQuery    bool
	FailInsert   bool
	FailDelete   bool
	FailFlush    bool

	// FailInsertContent fails Insert for any record with this content.
	FailInsertContent string
}

func NewMockRecordStore() *MockRecordStore {
	return &MockRecordStore{
		collections: make(map[string]int),
		records:     make(map[string][]vector.Record),
	}
}

// Seed creates collection with width dim holding records, without recording calls.
func (m *MockRecordStore) Seed(collection string, dim int, records ...vector.Record) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.collections[collection] = dim
	for _, r := range records {
		if r.ID == "" {
			r.ID = vector.NewRecordID()
		}
		m.records[collection] = append(m.records[collection], r)
	}
}

// Records returns a copy of the records stored in collection.
func (m *MockRecordStore) Records(collection string) []vector.Record {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.records[collection])
}

// Calls returns every recorded call in order.
func (m *MockRecordStore) Calls() []Call {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.calls)
}

// CallCount returns how many times op was called.
func (m *MockRecordStore) CallCount(op string) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := 0
	for _, c := range m.calls {
		if c.Op == op {
			n++
		}
	}
	return n
}

// MutatingCalls returns how many create, drop, insert, delete and flush calls were made.
func (m *MockRecordStore) MutatingCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := 0
	for _, c := range m.calls {
		if slices.Contains(mutatingOps, c.Op) {
			n++
		}
	}
	return n
}

func (m *MockRecordStore) record(c Call) {
	m.calls = append(m.calls, c)
}

func fail(op string) error {
	return fmt.Errorf("%w: %s", ErrMockFailure, op)
}

func (m *MockRecordStore) HasCollection(_ context.Context, name string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.record(Call{Op: "HasCollection", Collection: name})
	if m.FailHas {
		return false, fail("HasCollection")
	}
	_, ok := m.collections[name]
	return ok, nil
}

func (m *MockRecordStore) DescribeCollection(_ context.Context, name string) (*vector.Schema, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.record(Call{Op: "DescribeCollection", Collection: name})
	if m.FailDescribe {
		return nil, fail("DescribeCollection")
	}
	dim, ok := m.collections[name]
	if !ok {
		return nil, fmt.Errorf("%w: collection %q", vector.ErrNotFound, name)
	}
	schema := vector.NewSchema(name, dim)
	if m.DescribeNoDim {
		for i := range schema.Fields {
			schema.Fields[i].Params = nil
		}
	}
	return schema, nil
}

func (m *MockRecordStore) ListCollections(_ context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.record(Call{Op: "ListCollections"})
	if m.FailList {
		return nil, fail("ListCollections")
	}
	names := make([]string, 0, len(m.collections))
	for name := range m.collections {
		names = append(names, name)
	}
	slices.Sort(names)
	return names, nil
}

func (m *MockRecordStore) CreateCollection(_ context.Context, name string, dim int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.record(Call{Op: "CreateCollection", Collection: name, Count: dim})
	if m.FailCreate {
		return fail("CreateCollection")
	}
	if _, ok := m.collections[name]; ok {
		return fmt.Errorf("%w: collection %q", vector.ErrAlreadyExists, name)
	}
	m.collections[name] = dim
	return nil
}

func (m *MockRecordStore) DropCollection(_ context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.record(Call{Op: "DropCollection", Collection: name})
	if m.FailDrop {
		return fail("DropCollection")
	}
	if _, ok := m.collections[name]; !ok {
		return fmt.Errorf("%w: collection %q", vector.ErrNotFound, name)
	}
	delete(m.collections, name)
	delete(m.records, name)
	return nil
}

func (m *MockRecordStore) Query(_ context.Context, name string, q vector.Query) ([]vector.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.record(Call{Op: "Query", Collection: name, Filter: q.Filter.String(), Count: q.Limit})
	if m.FailQuery {
		return nil, fail("Query")
	}
	if err := q.Filter.Validate(); err != nil {
		return nil, err
	}
	if q.Limit <= 0 || q.Limit > m.maxPageSize() {
		return nil, fmt.Errorf("%w: limit %d outside 1..%d", vector.ErrValidation, q.Limit, m.maxPageSize())
	}
	if _, ok := m.collections[name]; !ok {
		return nil, fmt.Errorf("%w: collection %q", vector.ErrNotFound, name)
	}

	var matched []vector.Record
	for _, r := range m.records[name] {
		if q.Filter.Match(r) {
			matched = append(matched, r)
		}
	}
	if q.Offset >= len(matched) {
		return []vector.Record{}, nil
	}
	matched = matched[q.Offset:min(q.Offset+q.Limit, len(matched))]

	out := make([]vector.Record, len(matched))
	for i, r := range matched {
		out[i] = r.Project(q.OutputFields)
	}
	return out, nil
}

func (m *MockRecordStore) Insert(_ context.Context, name string, records []vector.Record) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.record(Call{Op: "Insert", Collection: name, Count: len(records)})
	if m.FailInsert {
		return nil, fail("Insert")
	}
	dim, ok := m.collections[name]
	if !ok {
		return nil, fmt.Errorf("%w: collection %q", vector.ErrNotFound, name)
	}
	for _, r := range records {
		if m.FailInsertContent != "" && r.Content == m.FailInsertContent {
			return nil, fail("Insert")
		}
	}
	if err := vector.CheckDimension(records, dim); err != nil {
		return nil, err
	}

	ids := make([]string, len(records))
	for i, r := range records {
		if r.ID == "" {
			r.ID = vector.NewRecordID()
		}
		ids[i] = r.ID
		m.records[name] = append(m.records[name], r)
	}
	return ids, nil
}

func (m *MockRecordStore) Delete(_ context.Context, name string, filter vector.Filter) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.record(Call{Op: "Delete", Collection: name, Filter: filter.String()})
	if m.FailDelete {
		return 0, fail("Delete")
	}
	if err := filter.Validate(); err != nil {
		return 0, err
	}
	if _, ok := m.collections[name]; !ok {
		return 0, fmt.Errorf("%w: collection %q", vector.ErrNotFound, name)
	}

	kept := m.records[name][:0:0]
	var n int64
	for _, r := range m.records[name] {
		if filter.Match(r) {
			n++
			continue
		}
		kept = append(kept, r)
	}
	m.records[name] = kept
	return n, nil
}

func (m *MockRecordStore) Flush(_ context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.record(Call{Op: "Flush", Collection: name})
	if m.FailFlush {
		return fail("Flush")
	}
	if _, ok := m.collections[name]; !ok {
		return fmt.Errorf("%w: collection %q", vector.ErrNotFound, name)
	}
	return nil
}

func (m *MockRecordStore) maxPageSize() int {
	if m.PageSize > 0 {
		return m.PageSize
	}
	return vector.DefaultMaxPageSize
}

func (m *MockRecordStore) MaxPageSize() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.maxPageSize()
}

func (m *MockRecordStore) Close() error {
	return nil
}

var _ vector.Driver = (*MockRecordStore)(nil)

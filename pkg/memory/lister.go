// Package memory is the read side and administrative surface of long-term
// memory: listing the latest records of a session, and the Service that
// every outward surface (CLI, HTTP, MCP) calls into.
package memory

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/papercomputeco/mnemosyne/pkg/utils"
	"github.com/papercomputeco/mnemosyne/pkg/vector"
)

const (
	// DefaultListLimit is the limit used when a caller gives none.
	DefaultListLimit = 10

	// MaxListLimit is the largest limit ListLatest accepts.
	MaxListLimit = 50

	// MaxTotalFetch caps how many records ListLatest reads before sorting.
	MaxTotalFetch = 10000

	// PreviewRunes is the display width of a content preview.
	PreviewRunes = 200
)

var listFields = []string{
	vector.FieldID,
	vector.FieldContent,
	vector.FieldSessionID,
	vector.FieldPersonalityID,
	vector.FieldCreateTime,
}

// ListResult is the outcome of ListLatest.
type ListResult struct {
	Collection string          `json:"collection"`
	SessionID  string          `json:"session_id,omitempty"`
	Records    []vector.Record `json:"records"`

	// Fetched is how many records were read before sorting.
	Fetched int `json:"fetched"`

	// Truncated is set when Fetched reached the fetch ceiling, so older
	// records may have been ignored.
	Truncated bool `json:"truncated,omitempty"`
}

// ListerConfig configures a Lister.
type ListerConfig struct {
	Store vector.Driver

	// MaxListLimit overrides the package default when positive.
	MaxListLimit int

	// MaxTotalFetch overrides the package default when positive.
	MaxTotalFetch int

	Logger *slog.Logger
}

// Lister reads the most recent records of a collection.
type Lister struct {
	store         vector.Driver
	maxListLimit  int
	maxTotalFetch int
	logger        *slog.Logger
}

// NewLister returns a Lister with defaults applied.
func NewLister(c ListerConfig) *Lister {
	l := &Lister{
		store:         c.Store,
		maxListLimit:  cmp.Or(max(c.MaxListLimit, 0), MaxListLimit),
		maxTotalFetch: cmp.Or(max(c.MaxTotalFetch, 0), MaxTotalFetch),
		logger:        c.Logger,
	}
	if l.logger == nil {
		l.logger = slog.Default()
	}
	return l
}

// MaxListLimit returns the largest accepted limit.
func (l *Lister) MaxListLimit() int {
	return l.maxListLimit
}

// ListLatest returns up to limit records ordered by create_time, newest
// first. An empty sessionID lists the whole collection.
func (l *Lister) ListLatest(ctx context.Context, collection, sessionID string, limit int) (*ListResult, error) {
	if limit < 1 || limit > l.maxListLimit {
		return nil, fmt.Errorf("%w: limit must be between 1 and %d, got %d", vector.ErrValidation, l.maxListLimit, limit)
	}
	if err := vector.ValidateCollectionName(collection); err != nil {
		return nil, err
	}

	filter := vector.All()
	if sessionID != "" {
		f, err := vector.SessionFilter(sessionID)
		if err != nil {
			return nil, err
		}
		filter = f
	}

	ok, err := l.store.HasCollection(ctx, collection)
	if err != nil {
		return nil, fmt.Errorf("checking collection %q: %w", collection, err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: collection %q", vector.ErrNotFound, collection)
	}

	records, err := l.fetch(ctx, collection, filter)
	if err != nil {
		return nil, err
	}

	res := &ListResult{
		Collection: collection,
		SessionID:  sessionID,
		Fetched:    len(records),
		Truncated:  len(records) >= l.maxTotalFetch,
	}
	if res.Truncated {
		l.logger.Warn("listing reached the fetch ceiling, older records were not considered",
			"collection", collection,
			"session_id", sessionID,
			"max_total_fetch", l.maxTotalFetch,
		)
	}

	slices.SortStableFunc(records, func(a, b vector.Record) int {
		return cmp.Compare(b.CreateTime, a.CreateTime)
	})
	res.Records = records[:min(limit, len(records))]

	l.logger.Debug("listed latest records",
		"collection", collection,
		"session_id", sessionID,
		"fetched", res.Fetched,
		"returned", len(res.Records),
	)
	return res, nil
}

// fetch pages through the store until the filter is exhausted or the
// ceiling is reached.
func (l *Lister) fetch(ctx context.Context, collection string, filter vector.Filter) ([]vector.Record, error) {
	pageSize := max(l.store.MaxPageSize(), 1)

	var records []vector.Record
	for len(records) < l.maxTotalFetch {
		want := min(pageSize, l.maxTotalFetch-len(records))
		page, err := l.store.Query(ctx, collection, vector.Query{
			Filter:       filter,
			OutputFields: listFields,
			Limit:        want,
			Offset:       len(records),
		})
		if err != nil {
			return nil, fmt.Errorf("querying %q: %w", collection, err)
		}
		records = append(records, page...)
		if len(page) < want {
			break
		}
	}
	return records, nil
}

// Preview flattens whitespace in content and cuts it to PreviewRunes.
func Preview(content string) string {
	return utils.Truncate(strings.Join(strings.Fields(content), " "), PreviewRunes)
}

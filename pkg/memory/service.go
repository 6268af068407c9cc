package memory

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/papercomputeco/mnemosyne/pkg/eventstream"
	"github.com/papercomputeco/mnemosyne/pkg/metrics"
	"github.com/papercomputeco/mnemosyne/pkg/migrate"
	"github.com/papercomputeco/mnemosyne/pkg/retention"
	"github.com/papercomputeco/mnemosyne/pkg/summary"
	"github.com/papercomputeco/mnemosyne/pkg/vector"
)

// DefaultHistoryLength is how many messages DebugSummary formats.
const DefaultHistoryLength = 50

// CollectionsView lists the store's collections.
type CollectionsView struct {
	Collections []string `json:"collections"`

	// Configured is the collection the service writes to.
	Configured string `json:"configured"`

	// ConfiguredExists reports whether Configured is among Collections.
	ConfiguredExists bool `json:"configured_exists"`
}

// DropResult describes a collection drop.
type DropResult struct {
	Collection string `json:"collection"`
	Dropped    bool   `json:"dropped"`

	// WasConfigured is set when the dropped collection is the one the
	// service writes to. The next write recreates it through migrate.
	WasConfigured bool `json:"was_configured,omitempty"`

	// Hint is the command that confirms the operation.
	Hint string `json:"hint,omitempty"`
}

// DeleteResult describes a session delete.
type DeleteResult struct {
	Collection string `json:"collection"`
	SessionID  string `json:"session_id"`
	Deleted    int64  `json:"deleted"`

	// FlushErr is set when the delete succeeded but the flush failed. The
	// delete is not reverted.
	FlushErr error `json:"-"`

	// FlushError is FlushErr rendered for JSON output.
	FlushError string `json:"flush_error,omitempty"`

	Hint string `json:"hint,omitempty"`
}

// SessionSource yields the current session identifier.
type SessionSource interface {
	SessionID() (string, error)
}

// SessionSourceFunc adapts a function to SessionSource.
type SessionSourceFunc func() (string, error)

// SessionID calls f.
func (f SessionSourceFunc) SessionID() (string, error) {
	return f()
}

// Config configures a Service. Store and Collection are required; the rest
// enable the operations that need them.
type Config struct {
	Store      vector.Driver
	Collection string

	Lister    *Lister
	Migrator  *migrate.Engine
	Pipeline  *summary.Pipeline
	Sessions  SessionSource
	Publisher eventstream.Publisher

	// History configures DebugSummary formatting.
	History       retention.HistoryOptions
	HistoryLength int

	// SummaryInterval gates ObserveTurn. Zero summarizes every turn.
	SummaryInterval time.Duration

	Logger *slog.Logger
}

// Service implements the administrative operations on long-term memory.
type Service struct {
	config Config
	logger *slog.Logger
}

// NewService validates c and returns a Service.
func NewService(c Config) (*Service, error) {
	if c.Store == nil {
		return nil, fmt.Errorf("%w: memory service requires a record store", vector.ErrValidation)
	}
	if err := vector.ValidateCollectionName(c.Collection); err != nil {
		return nil, err
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	if c.Lister == nil {
		c.Lister = NewLister(ListerConfig{Store: c.Store, Logger: c.Logger})
	}
	if c.HistoryLength <= 0 {
		c.HistoryLength = DefaultHistoryLength
	}
	return &Service{
		config: c,
		logger: c.Logger,
	}, nil
}

// Collection returns the configured collection name.
func (s *Service) Collection() string {
	return s.config.Collection
}

// MaxListLimit returns the largest limit ListLatest accepts.
func (s *Service) MaxListLimit() int {
	return s.config.Lister.MaxListLimit()
}

// ListCollections returns the store's collections.
func (s *Service) ListCollections(ctx context.Context) (CollectionsView, error) {
	names, err := s.config.Store.ListCollections(ctx)
	metrics.RecordAdmin("list_collections", err)
	if err != nil {
		return CollectionsView{}, fmt.Errorf("listing collections: %w", err)
	}

	view := CollectionsView{
		Collections: names,
		Configured:  s.config.Collection,
	}
	if view.Collections == nil {
		view.Collections = []string{}
	}
	for _, n := range names {
		if n == s.config.Collection {
			view.ConfiguredExists = true
			break
		}
	}
	return view, nil
}

// DropCollection drops the named collection. Without confirm it returns
// ErrConfirmationRequired and the confirming command in the result.
func (s *Service) DropCollection(ctx context.Context, name string, confirm bool) (DropResult, error) {
	res := DropResult{
		Collection:    name,
		WasConfigured: name == s.config.Collection,
	}
	if err := vector.ValidateCollectionName(name); err != nil {
		metrics.RecordAdmin("drop_collection", err)
		return res, err
	}
	if !confirm {
		res.Hint = fmt.Sprintf("mnemosyne collections drop %s --confirm", name)
		return res, fmt.Errorf("%w: dropping collection %q deletes every record in it", ErrConfirmationRequired, name)
	}

	err := s.drop(ctx, name)
	metrics.RecordAdmin("drop_collection", err)
	if err != nil {
		return res, err
	}
	res.Dropped = true

	if res.WasConfigured {
		s.logger.Error("dropped the configured memory collection",
			"collection", name,
			"hint", "run `mnemosyne migrate` to recreate it",
		)
	} else {
		s.logger.Info("dropped collection", "collection", name)
	}

	event := eventstream.NewEvent(eventstream.EventTypeCollectionDropped, name)
	s.publish(ctx, event)
	return res, nil
}

func (s *Service) drop(ctx context.Context, name string) error {
	ok, err := s.config.Store.HasCollection(ctx, name)
	if err != nil {
		return fmt.Errorf("checking collection %q: %w", name, err)
	}
	if !ok {
		return fmt.Errorf("%w: collection %q", vector.ErrNotFound, name)
	}
	if err := s.config.Store.DropCollection(ctx, name); err != nil {
		return fmt.Errorf("dropping collection %q: %w", name, err)
	}
	return nil
}

// ListLatest lists the newest records. An empty collection means the
// configured one; an empty sessionID lists every session.
func (s *Service) ListLatest(ctx context.Context, collection, sessionID string, limit int) (*ListResult, error) {
	if collection == "" {
		collection = s.config.Collection
	}
	res, err := s.config.Lister.ListLatest(ctx, collection, CleanSessionID(sessionID), limit)
	metrics.RecordAdmin("list_latest", err)
	return res, err
}

// CleanSessionID trims whitespace and surrounding quotes or backticks that
// tend to come along when ids are copied from chat or shell output.
func CleanSessionID(id string) string {
	return strings.Trim(strings.TrimSpace(id), "\"'`")
}

// DeleteSession deletes every record of a session in the configured
// collection, then flushes.
func (s *Service) DeleteSession(ctx context.Context, sessionID string, confirm bool) (DeleteResult, error) {
	id := CleanSessionID(sessionID)
	res := DeleteResult{
		Collection: s.config.Collection,
		SessionID:  id,
	}

	filter, err := vector.SessionFilter(id)
	if err != nil {
		metrics.RecordAdmin("delete_session", err)
		return res, err
	}
	if !confirm {
		res.Hint = fmt.Sprintf("mnemosyne forget %s --confirm", id)
		return res, fmt.Errorf("%w: deleting every memory of session %q", ErrConfirmationRequired, id)
	}

	n, err := s.config.Store.Delete(ctx, s.config.Collection, filter)
	metrics.RecordAdmin("delete_session", err)
	if err != nil {
		return res, fmt.Errorf("deleting session %q: %w", id, err)
	}
	res.Deleted = n
	metrics.RecordsDeletedTotal.Add(float64(n))

	if err := s.config.Store.Flush(ctx, s.config.Collection); err != nil {
		res.FlushErr = err
		res.FlushError = err.Error()
		s.logger.Error("flush after session delete failed",
			"collection", s.config.Collection,
			"session_id", id,
			"deleted", n,
			"error", err,
		)
	}

	s.logger.Info("deleted session memories",
		"collection", s.config.Collection,
		"session_id", id,
		"deleted", n,
	)

	event := eventstream.NewEvent(eventstream.EventTypeSessionDeleted, s.config.Collection)
	event.SessionID = id
	event.Count = n
	s.publish(ctx, event)
	return res, nil
}

// SessionID returns the current session identifier.
func (s *Service) SessionID() (string, error) {
	if s.config.Sessions == nil {
		return "", fmt.Errorf("%w: no session source", ErrNotConfigured)
	}
	return s.config.Sessions.SessionID()
}

// Migrate runs the migration state machine on the configured collection.
// A width mismatch without force yields StatusNeedsConfirmation.
func (s *Service) Migrate(ctx context.Context, force bool, progress func(migrate.Progress)) (*migrate.Report, error) {
	if s.config.Migrator == nil {
		return nil, fmt.Errorf("%w: no migration engine", ErrNotConfigured)
	}
	report, err := s.config.Migrator.Run(ctx, migrate.Options{Force: force, Progress: progress})
	metrics.RecordAdmin("migrate", err)
	return report, err
}

// Restore re-embeds a backup artifact into the configured collection.
func (s *Service) Restore(ctx context.Context, path string, progress func(migrate.Progress)) (*migrate.Report, error) {
	if s.config.Migrator == nil {
		return nil, fmt.Errorf("%w: no migration engine", ErrNotConfigured)
	}
	report, err := s.config.Migrator.Restore(ctx, path, progress)
	metrics.RecordAdmin("restore", err)
	return report, err
}

// DebugSummary formats history and runs the summary pipeline once,
// regardless of the session's summary interval.
func (s *Service) DebugSummary(ctx context.Context, sessionID, personalityID string, history []retention.Message) (*summary.Result, error) {
	if s.config.Pipeline == nil {
		return nil, fmt.Errorf("%w: no summary pipeline", ErrNotConfigured)
	}

	text := retention.FormatHistory(history, s.config.HistoryLength, s.config.History)
	res, err := s.config.Pipeline.Run(ctx, summary.Request{
		SessionID:     CleanSessionID(sessionID),
		PersonalityID: personalityID,
		History:       text,
	})
	metrics.RecordAdmin("debug_summary", err)
	return res, err
}

// ObserveTurn records a conversation turn and summarizes the history once
// the session's summary interval has elapsed. The boolean reports whether a
// summary was attempted.
func (s *Service) ObserveTurn(ctx context.Context, sessionID, personalityID string, history []retention.Message) (*summary.Result, bool, error) {
	if s.config.Pipeline == nil {
		return nil, false, fmt.Errorf("%w: no summary pipeline", ErrNotConfigured)
	}

	text := retention.FormatHistory(history, s.config.HistoryLength, s.config.History)
	res, ran, err := s.config.Pipeline.MaybeRun(ctx, summary.Request{
		SessionID:     CleanSessionID(sessionID),
		PersonalityID: personalityID,
		History:       text,
	}, s.config.SummaryInterval)
	if ran {
		metrics.RecordAdmin("observe_turn", err)
	}
	return res, ran, err
}

func (s *Service) publish(ctx context.Context, event *eventstream.MemoryEvent) {
	if s.config.Publisher == nil {
		return
	}
	if err := s.config.Publisher.Publish(ctx, event); err != nil {
		s.logger.Warn("failed to publish memory event",
			"event_type", event.EventType,
			"collection", event.Source.Collection,
			"error", err,
		)
	}
}

// Package summary turns a formatted conversation history into a long-term
// memory record: summarize, embed, insert, then mark the session summarized.
package summary

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/papercomputeco/mnemosyne/pkg/embeddings"
	"github.com/papercomputeco/mnemosyne/pkg/eventstream"
	"github.com/papercomputeco/mnemosyne/pkg/metrics"
	"github.com/papercomputeco/mnemosyne/pkg/session"
	"github.com/papercomputeco/mnemosyne/pkg/vector"
)

// ErrEmptySummary is returned when the summarizer produces no text.
var ErrEmptySummary = errors.New("summarizer returned an empty summary")

// SystemPrompt instructs the summarizer model.
const SystemPrompt = `You maintain the long-term memory of a conversational assistant.
Summarize the conversation below into a short memory entry written in the third person.
Keep durable facts: names, preferences, plans, commitments and unresolved questions.
Drop greetings, filler and anything already obvious from context.
Reply with the memory entry only.`

// Summarizer condenses a formatted history into memory text.
type Summarizer interface {
	Summarize(ctx context.Context, history string) (string, error)
	Close() error
}

// Config configures a Pipeline.
type Config struct {
	Store      vector.Driver
	Embedder   embeddings.Embedder
	Summarizer Summarizer
	Tracker    *session.Tracker
	Collection string

	// Publisher receives memory.stored events. Optional.
	Publisher eventstream.Publisher

	Logger *slog.Logger

	// Now replaces time.Now in tests.
	Now func() time.Time
}

// Request is one summarization.
type Request struct {
	SessionID     string
	PersonalityID string
	History       string
}

// Result describes the stored memory.
type Result struct {
	RecordID      string `json:"record_id"`
	Summary       string `json:"summary"`
	SessionID     string `json:"session_id"`
	PersonalityID string `json:"personality_id,omitempty"`
	CreateTime    int64  `json:"create_time"`
	Dimension     int    `json:"dimension"`
}

// Pipeline runs summarize, embed, insert and tracker touch in order.
type Pipeline struct {
	config Config
	logger *slog.Logger
}

// NewPipeline validates c and returns a Pipeline.
func NewPipeline(c Config) (*Pipeline, error) {
	if c.Store == nil || c.Embedder == nil || c.Summarizer == nil || c.Tracker == nil {
		return nil, fmt.Errorf("%w: summary pipeline requires a store, embedder, summarizer and tracker", vector.ErrValidation)
	}
	if err := vector.ValidateCollectionName(c.Collection); err != nil {
		return nil, err
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	return &Pipeline{
		config: c,
		logger: c.Logger.With("collection", c.Collection),
	}, nil
}

// Run summarizes req.History and stores the result as one record.
func (p *Pipeline) Run(ctx context.Context, req Request) (*Result, error) {
	start := time.Now()
	res, err := p.run(ctx, req)
	metrics.RecordSummary(err, time.Since(start))
	if err != nil {
		p.logger.Error("summary pipeline failed", "session_id", req.SessionID, "error", err)
	}
	return res, err
}

func (p *Pipeline) run(ctx context.Context, req Request) (*Result, error) {
	if err := vector.ValidateSessionID(req.SessionID); err != nil {
		return nil, err
	}
	if strings.TrimSpace(req.History) == "" {
		return nil, fmt.Errorf("%w: history is empty", vector.ErrValidation)
	}

	text, err := p.config.Summarizer.Summarize(ctx, req.History)
	if err != nil {
		return nil, fmt.Errorf("summarizing: %w", err)
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrEmptySummary
	}

	emb, err := p.config.Embedder.Embed(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("embedding summary: %w", err)
	}
	if len(emb) == 0 {
		return nil, fmt.Errorf("%w: empty embedding for summary", vector.ErrEmbedding)
	}

	createTime := p.config.Now().Unix()
	ids, err := p.config.Store.Insert(ctx, p.config.Collection, []vector.Record{{
		Content:       text,
		Embedding:     emb,
		SessionID:     req.SessionID,
		PersonalityID: req.PersonalityID,
		CreateTime:    createTime,
	}})
	if err != nil {
		if errors.Is(err, vector.ErrDimensionMismatch) {
			return nil, fmt.Errorf("storing summary: %w (run `mnemosyne migrate`)", err)
		}
		return nil, fmt.Errorf("storing summary: %w", err)
	}
	if len(ids) != 1 {
		return nil, fmt.Errorf("storing summary: store returned %d ids for one record", len(ids))
	}

	if err := p.config.Store.Flush(ctx, p.config.Collection); err != nil {
		p.logger.Warn("flush after summary insert failed", "record_id", ids[0], "error", err)
	}

	p.config.Tracker.Ensure(req.SessionID)
	p.config.Tracker.Touch(req.SessionID)
	metrics.TrackedSessions.Set(float64(p.config.Tracker.Len()))

	res := &Result{
		RecordID:      ids[0],
		Summary:       text,
		SessionID:     req.SessionID,
		PersonalityID: req.PersonalityID,
		CreateTime:    createTime,
		Dimension:     len(emb),
	}
	p.publish(ctx, res)

	p.logger.Info("stored memory summary",
		"session_id", req.SessionID,
		"record_id", res.RecordID,
		"chars", len(text),
	)
	return res, nil
}

// MaybeRun runs the pipeline only when the session is due. Unknown sessions
// are registered and wait a full interval. The boolean reports whether the
// pipeline ran.
func (p *Pipeline) MaybeRun(ctx context.Context, req Request, interval time.Duration) (*Result, bool, error) {
	if err := vector.ValidateSessionID(req.SessionID); err != nil {
		return nil, false, err
	}
	if p.config.Tracker.Ensure(req.SessionID) {
		metrics.TrackedSessions.Set(float64(p.config.Tracker.Len()))
	}
	if !p.config.Tracker.Due(req.SessionID, interval) {
		return nil, false, nil
	}

	res, err := p.Run(ctx, req)
	return res, true, err
}

func (p *Pipeline) publish(ctx context.Context, res *Result) {
	if p.config.Publisher == nil {
		return
	}
	event := eventstream.NewEvent(eventstream.EventTypeMemoryStored, p.config.Collection)
	event.SessionID = res.SessionID
	event.PersonalityID = res.PersonalityID
	event.RecordID = res.RecordID
	event.Count = 1
	if err := p.config.Publisher.Publish(ctx, event); err != nil {
		p.logger.Warn("failed to publish memory event", "record_id", res.RecordID, "error", err)
	}
}

// Package migrate moves a memory collection to a new embedding width.
//
// A run probes the embedder, compares its width with the collection schema and,
// on an explicit Force, exports every record, writes a backup artifact, drops
// and recreates the collection, then re-embeds and reinserts the records
// through a bounded worker pool. Nothing destructive happens before the
// backup is on disk.
package migrate

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/papercomputeco/mnemosyne/pkg/embeddings"
	"github.com/papercomputeco/mnemosyne/pkg/eventstream"
	"github.com/papercomputeco/mnemosyne/pkg/metrics"
	"github.com/papercomputeco/mnemosyne/pkg/vector"
)

const (
	// DefaultWorkers is the re-embed pool size.
	DefaultWorkers = 4

	// DefaultProgressEvery is the progress reporting interval in records.
	DefaultProgressEvery = 10

	// MaxReportedFailures bounds Report.Failures. Counts stay exact.
	MaxReportedFailures = 100

	// ConfirmHint is the command that confirms a destructive migration.
	ConfirmHint = "mnemosyne migrate --force"
)

// exportFields are the fields carried through a migration.
var exportFields = []string{
	vector.FieldContent,
	vector.FieldCreateTime,
	vector.FieldSessionID,
	vector.FieldPersonalityID,
}

// Status is the outcome of a run.
type Status string

const (
	// StatusCreated means the collection did not exist and was created.
	StatusCreated Status = "created"

	// StatusUpToDate means the widths already matched. Nothing was changed.
	StatusUpToDate Status = "up_to_date"

	// StatusNeedsConfirmation means the widths differ and Force was not set.
	StatusNeedsConfirmation Status = "needs_confirmation"

	// StatusCompleted means the collection was rebuilt at the new width.
	StatusCompleted Status = "completed"

	// StatusRestored means a backup was re-embedded into the collection.
	StatusRestored Status = "restored"
)

// Failure is one record that could not be migrated.
type Failure struct {
	RecordID string `json:"record_id"`
	Reason   string `json:"reason"`
}

// Report describes a run.
type Report struct {
	Status       Status        `json:"status"`
	Collection   string        `json:"collection"`
	OldDimension int           `json:"old_dimension,omitempty"`
	NewDimension int           `json:"new_dimension"`
	Exported     int           `json:"exported"`
	Succeeded    int64         `json:"succeeded"`
	Failed       int64         `json:"failed"`
	Failures     []Failure     `json:"failures,omitempty"`
	BackupPath   string        `json:"backup_path,omitempty"`
	Hint         string        `json:"hint,omitempty"`
	Duration     time.Duration `json:"duration"`
}

// Partial reports whether records were lost in an otherwise finished run.
func (r *Report) Partial() bool {
	return (r.Status == StatusCompleted || r.Status == StatusRestored) && r.Failed > 0
}

// Progress is a snapshot of the re-embed phase.
type Progress struct {
	Done      int   `json:"done"`
	Total     int   `json:"total"`
	Succeeded int64 `json:"succeeded"`
	Failed    int64 `json:"failed"`
}

// Options controls a single run.
type Options struct {
	// Force confirms the destructive rebuild on a width mismatch.
	Force bool

	// Progress is called every ProgressEvery records and once at the end.
	// Calls are serialized.
	Progress func(Progress)
}

// Config configures an Engine.
type Config struct {
	Store      vector.Driver
	Embedder   embeddings.Embedder
	Collection string

	// BatchSize is the export page size, capped by the store's MaxPageSize.
	BatchSize int

	// Workers is the re-embed pool size.
	Workers int

	// ProgressEvery is the progress interval in records.
	ProgressEvery int

	// BackupDir receives backup artifacts.
	BackupDir string

	// Publisher receives completion events. Optional.
	Publisher eventstream.Publisher

	Logger *slog.Logger

	// Now replaces time.Now in tests.
	Now func() time.Time
}

// Engine runs dimension migrations for one collection.
type Engine struct {
	config Config
	logger *slog.Logger

	// mu serializes runs; a second concurrent run waits.
	mu sync.Mutex
}

// NewEngine returns an Engine with defaults applied.
func NewEngine(c Config) (*Engine, error) {
	if c.Store == nil || c.Embedder == nil {
		return nil, fmt.Errorf("%w: migration requires a record store and an embedder", vector.ErrValidation)
	}
	if err := vector.ValidateCollectionName(c.Collection); err != nil {
		return nil, err
	}
	if c.BackupDir == "" {
		return nil, fmt.Errorf("%w: migration requires a backup directory", vector.ErrValidation)
	}
	if c.BatchSize <= 0 {
		c.BatchSize = vector.DefaultMaxPageSize
	}
	if c.Workers <= 0 {
		c.Workers = DefaultWorkers
	}
	if c.ProgressEvery <= 0 {
		c.ProgressEvery = DefaultProgressEvery
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}

	return &Engine{
		config: c,
		logger: c.Logger.With("collection", c.Collection),
	}, nil
}

func fatal(step string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrFatalMigration, step, err)
}

// Run executes one migration.
func (e *Engine) Run(ctx context.Context, opts Options) (*Report, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	start := e.config.Now()
	store := e.config.Store
	name := e.config.Collection
	report := &Report{Collection: name}

	newDim, err := e.config.Embedder.Dimensions(ctx)
	if err != nil {
		return nil, fatal("probing embedding dimension", err)
	}
	if newDim <= 0 {
		return nil, fatal("probing embedding dimension", fmt.Errorf("%w: non-positive width %d", vector.ErrEmbedding, newDim))
	}
	report.NewDimension = newDim

	exists, err := store.HasCollection(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("checking collection %q: %w", name, err)
	}
	if !exists {
		if err := store.CreateCollection(ctx, name, newDim); err != nil {
			return nil, fmt.Errorf("creating collection %q: %w", name, err)
		}
		report.Status = StatusCreated
		e.logger.Info("created collection", "dimension", newDim)
		return e.finish(report, start), nil
	}

	schema, err := store.DescribeCollection(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("describing collection %q: %w", name, err)
	}
	oldDim, err := schema.Dimension()
	if err != nil {
		return nil, fmt.Errorf("reading dimension of %q: %w", name, err)
	}
	report.OldDimension = oldDim

	if oldDim == newDim {
		report.Status = StatusUpToDate
		e.logger.Debug("collection dimension matches embedder", "dimension", newDim)
		return e.finish(report, start), nil
	}

	if !opts.Force {
		report.Status = StatusNeedsConfirmation
		report.Hint = ConfirmHint
		e.logger.Warn("collection dimension differs from embedder; migration needs confirmation",
			"old_dimension", oldDim,
			"new_dimension", newDim,
			"hint", ConfirmHint,
		)
		return e.finish(report, start), nil
	}

	e.logger.Info("starting migration", "old_dimension", oldDim, "new_dimension", newDim)

	records, err := e.export(ctx)
	if err != nil {
		return nil, fatal("export", err)
	}
	report.Exported = len(records)

	path, err := WriteBackup(e.config.BackupDir, &Backup{
		CollectionName: name,
		OldDimension:   oldDim,
		NewDimension:   newDim,
		Timestamp:      start.Unix(),
		Records:        records,
	})
	if err != nil {
		return nil, fatal("backup", err)
	}
	report.BackupPath = path
	e.logger.Info("wrote migration backup", "path", path, "records", len(records))

	if err := ctx.Err(); err != nil {
		return nil, fatal("before drop", err)
	}

	if err := store.DropCollection(ctx, name); err != nil {
		return nil, fatal("drop collection", err)
	}
	if err := store.CreateCollection(ctx, name, newDim); err != nil {
		return nil, fatal("recreate collection", fmt.Errorf("%w; records are preserved in %s", err, path))
	}

	flushErr := e.reinsert(ctx, records, report, opts.Progress)
	report.Status = StatusCompleted
	e.finish(report, start)
	e.publish(ctx, report)

	if flushErr != nil {
		return report, fmt.Errorf("flushing %q after migration: %w", name, flushErr)
	}

	e.logger.Info("migration completed",
		"succeeded", report.Succeeded,
		"failed", report.Failed,
		"duration", report.Duration,
	)
	return report, nil
}

// Restore re-embeds the records of a backup artifact into the collection,
// creating it at the embedder's width if needed.
func (e *Engine) Restore(ctx context.Context, path string, progress func(Progress)) (*Report, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	start := e.config.Now()
	name := e.config.Collection

	b, err := ReadBackup(path)
	if err != nil {
		return nil, err
	}

	newDim, err := e.config.Embedder.Dimensions(ctx)
	if err != nil {
		return nil, fmt.Errorf("probing embedding dimension: %w", err)
	}

	exists, err := e.config.Store.HasCollection(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("checking collection %q: %w", name, err)
	}
	if exists {
		schema, err := e.config.Store.DescribeCollection(ctx, name)
		if err != nil {
			return nil, fmt.Errorf("describing collection %q: %w", name, err)
		}
		dim, err := schema.Dimension()
		if err != nil {
			return nil, err
		}
		if dim != newDim {
			return nil, fmt.Errorf("%w: collection %q has %d dimensions, embedder produces %d; run %q first",
				vector.ErrDimensionMismatch, name, dim, newDim, ConfirmHint)
		}
	} else if err := e.config.Store.CreateCollection(ctx, name, newDim); err != nil {
		return nil, fmt.Errorf("creating collection %q: %w", name, err)
	}

	report := &Report{
		Status:       StatusRestored,
		Collection:   name,
		OldDimension: b.OldDimension,
		NewDimension: newDim,
		Exported:     len(b.Records),
		BackupPath:   path,
	}

	e.logger.Info("restoring backup", "path", path, "records", len(b.Records), "source_collection", b.CollectionName)

	flushErr := e.reinsert(ctx, b.Records, report, progress)
	e.finish(report, start)
	if flushErr != nil {
		return report, fmt.Errorf("flushing %q after restore: %w", name, flushErr)
	}
	return report, nil
}

// export pages through every record with the match-all filter.
func (e *Engine) export(ctx context.Context) ([]vector.Record, error) {
	batch := min(e.config.BatchSize, e.config.Store.MaxPageSize())

	var out []vector.Record
	for offset := 0; ; offset += batch {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		page, err := e.config.Store.Query(ctx, e.config.Collection, vector.Query{
			Filter:       vector.All(),
			OutputFields: exportFields,
			Limit:        batch,
			Offset:       offset,
		})
		if err != nil {
			return nil, fmt.Errorf("querying offset %d: %w", offset, err)
		}
		out = append(out, page...)

		e.logger.Debug("exported batch", "offset", offset, "rows", len(page))
		if len(page) < batch {
			return out, nil
		}
	}
}

// tally accumulates re-embed outcomes from concurrent workers.
type tally struct {
	succeeded atomic.Int64
	failed    atomic.Int64
	done      atomic.Int64

	mu       sync.Mutex
	failures []Failure
}

func (t *tally) fail(id, reason string) {
	t.failed.Add(1)
	t.mu.Lock()
	if len(t.failures) < MaxReportedFailures {
		t.failures = append(t.failures, Failure{RecordID: id, Reason: reason})
	}
	t.mu.Unlock()
}

// reinsert re-embeds records into the collection, then flushes exactly once.
// Per-record failures are counted in report; only the flush error is returned.
func (e *Engine) reinsert(ctx context.Context, records []vector.Record, report *Report, progress func(Progress)) error {
	var (
		t      tally
		progMu sync.Mutex
		total  = len(records)
		every  = int64(e.config.ProgressEvery)
	)

	emit := func() {
		p := Progress{
			Done:      int(t.done.Load()),
			Total:     total,
			Succeeded: t.succeeded.Load(),
			Failed:    t.failed.Load(),
		}
		progMu.Lock()
		defer progMu.Unlock()
		e.logger.Info("migration progress", "done", p.Done, "total", p.Total, "failed", p.Failed)
		if progress != nil {
			progress(p)
		}
	}

	step := func() {
		if n := t.done.Add(1); n%every == 0 && int(n) < total {
			emit()
		}
	}

	p, err := newPool(ctx, &poolConfig{
		NumWorkers: uint(e.config.Workers),
		Logger:     e.logger,
		Process: func(ctx context.Context, r vector.Record) {
			defer step()
			if err := e.reembed(ctx, r); err != nil {
				t.fail(r.ID, err.Error())
				e.logger.Error("failed to migrate record", "record_id", r.ID, "session_id", r.SessionID, "error", err)
				return
			}
			t.succeeded.Add(1)
		},
	})
	if err != nil {
		return err
	}

	for i, r := range records {
		if r.Content == "" {
			t.fail(r.ID, "empty content")
			e.logger.Warn("skipping record with empty content", "record_id", r.ID)
			step()
			continue
		}
		if !p.Enqueue(ctx, r) {
			e.logger.Warn("migration cancelled; remaining records not re-embedded", "remaining", total-i)
			for _, rest := range records[i:] {
				t.fail(rest.ID, "cancelled")
				t.done.Add(1)
			}
			break
		}
	}
	p.Close()

	emit()

	report.Succeeded = t.succeeded.Load()
	report.Failed = t.failed.Load()
	report.Failures = t.failures

	return e.config.Store.Flush(context.WithoutCancel(ctx), e.config.Collection)
}

// reembed embeds one record and inserts it with a fresh ID.
func (e *Engine) reembed(ctx context.Context, r vector.Record) error {
	emb, err := e.config.Embedder.Embed(ctx, r.Content)
	if err != nil {
		return fmt.Errorf("embedding: %w", err)
	}
	if len(emb) == 0 {
		return fmt.Errorf("%w: empty embedding", vector.ErrEmbedding)
	}

	_, err = e.config.Store.Insert(ctx, e.config.Collection, []vector.Record{{
		Content:       r.Content,
		Embedding:     emb,
		SessionID:     r.SessionID,
		PersonalityID: r.PersonalityID,
		CreateTime:    r.CreateTime,
	}})
	if err != nil {
		return fmt.Errorf("inserting: %w", err)
	}
	return nil
}

func (e *Engine) finish(report *Report, start time.Time) *Report {
	report.Duration = e.config.Now().Sub(start)
	metrics.RecordMigration(report.Collection, string(report.Status), report.NewDimension,
		report.Succeeded, report.Failed, report.Duration)
	return report
}

func (e *Engine) publish(ctx context.Context, report *Report) {
	if e.config.Publisher == nil {
		return
	}

	event := eventstream.NewEvent(eventstream.EventTypeMigrationCompleted, report.Collection)
	event.Count = report.Succeeded
	event.Migration = &eventstream.MigrationMeta{
		OldDimension: report.OldDimension,
		NewDimension: report.NewDimension,
		Exported:     report.Exported,
		Succeeded:    report.Succeeded,
		Failed:       report.Failed,
		BackupPath:   report.BackupPath,
		DurationMs:   report.Duration.Milliseconds(),
	}
	if err := e.config.Publisher.Publish(context.WithoutCancel(ctx), event); err != nil {
		e.logger.Warn("failed to publish migration event", "error", err)
	}
}

// Package memoryutils assembles a memory.Service and its collaborators from
// configuration.
package memoryutils

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/papercomputeco/mnemosyne/pkg/config"
	"github.com/papercomputeco/mnemosyne/pkg/credentials"
	"github.com/papercomputeco/mnemosyne/pkg/dotdir"
	"github.com/papercomputeco/mnemosyne/pkg/embeddings"
	embeddingutils "github.com/papercomputeco/mnemosyne/pkg/embeddings/utils"
	"github.com/papercomputeco/mnemosyne/pkg/eventstream"
	eventstreamutils "github.com/papercomputeco/mnemosyne/pkg/eventstream/utils"
	"github.com/papercomputeco/mnemosyne/pkg/memory"
	"github.com/papercomputeco/mnemosyne/pkg/migrate"
	"github.com/papercomputeco/mnemosyne/pkg/retention"
	"github.com/papercomputeco/mnemosyne/pkg/session"
	"github.com/papercomputeco/mnemosyne/pkg/summary"
	summaryutils "github.com/papercomputeco/mnemosyne/pkg/summary/utils"
	"github.com/papercomputeco/mnemosyne/pkg/vector"
	vectorutils "github.com/papercomputeco/mnemosyne/pkg/vector/utils"
)

type NewServiceOpts struct {
	Config *config.Config

	// ConfigDir overrides dot directory resolution for the default sqlite
	// database and backup directory.
	ConfigDir string

	// Sessions supplies the current session id. Optional.
	Sessions memory.SessionSource

	Logger *slog.Logger
}

// Stack is a Service together with the handles it was built from.
type Stack struct {
	Service    *memory.Service
	Store      vector.Driver
	Embedder   embeddings.Embedder
	Summarizer summary.Summarizer
	Publisher  eventstream.Publisher
	Tracker    *session.Tracker
	Budget     retention.Budget
}

// Close releases every handle, reporting all failures.
func (s *Stack) Close() error {
	var errs []error
	if s.Publisher != nil {
		errs = append(errs, s.Publisher.Close())
	}
	if s.Summarizer != nil {
		errs = append(errs, s.Summarizer.Close())
	}
	if s.Embedder != nil {
		errs = append(errs, s.Embedder.Close())
	}
	if s.Store != nil {
		errs = append(errs, s.Store.Close())
	}
	return errors.Join(errs...)
}

// NewService builds the full stack. On error every handle opened so far is
// closed.
func NewService(ctx context.Context, o *NewServiceOpts) (_ *Stack, err error) {
	cfg := o.Config
	logger := o.Logger
	if logger == nil {
		logger = slog.Default()
	}
	ddm := dotdir.NewManager()

	interval, err := cfg.SummaryIntervalDuration()
	if err != nil {
		return nil, err
	}

	st := &Stack{
		Tracker: session.NewTracker(),
		Budget: retention.Budget{
			Blocks:         cfg.Memory.Retention,
			SystemMessages: cfg.Memory.SystemRetention,
		},
	}
	defer func() {
		if err != nil {
			_ = st.Close()
		}
	}()

	creds, err := credentials.NewManager(o.ConfigDir)
	if err != nil {
		return nil, err
	}
	vectorKey, err := creds.Resolve(cfg.VectorStore.Provider, cfg.VectorStore.APIKey)
	if err != nil {
		return nil, err
	}
	embeddingKey, err := creds.Resolve(cfg.Embedding.Provider, cfg.Embedding.APIKey)
	if err != nil {
		return nil, err
	}
	summaryKey, err := creds.Resolve(cfg.Summary.Provider, cfg.Summary.APIKey)
	if err != nil {
		return nil, err
	}

	sqlitePath := cfg.VectorStore.SQLitePath
	if cfg.VectorStore.Provider == vectorutils.ProviderSQLite && sqlitePath == "" {
		sqlitePath, err = ddm.DatabasePath(o.ConfigDir)
		if err != nil {
			return nil, err
		}
	}

	store, err := vectorutils.NewVectorDriver(ctx, &vectorutils.NewVectorDriverOpts{
		ProviderType: cfg.VectorStore.Provider,
		Target:       cfg.VectorStore.Target,
		SQLitePath:   sqlitePath,
		APIKey:       vectorKey,
		Logger:       logger,
	})
	if err != nil {
		return nil, fmt.Errorf("creating record store: %w", err)
	}
	st.Store = store

	embedder, err := embeddingutils.NewEmbedder(&embeddingutils.NewEmbedderOpts{
		ProviderType: cfg.Embedding.Provider,
		TargetURL:    cfg.Embedding.Target,
		Model:        cfg.Embedding.Model,
		APIKey:       embeddingKey,
		Dimensions:   int(cfg.Embedding.Dimensions),
		CacheSize:    cfg.Embedding.CacheSize,
		Logger:       logger,
	})
	if err != nil {
		return nil, fmt.Errorf("creating embedder: %w", err)
	}
	st.Embedder = embedder

	summarizer, err := summaryutils.NewSummarizer(&summaryutils.NewSummarizerOpts{
		ProviderType: cfg.Summary.Provider,
		TargetURL:    cfg.Summary.Target,
		Model:        cfg.Summary.Model,
		APIKey:       summaryKey,
	})
	if err != nil {
		return nil, fmt.Errorf("creating summarizer: %w", err)
	}
	st.Summarizer = summarizer

	publisher, err := eventstreamutils.NewPublisher(&eventstreamutils.NewPublisherOpts{
		ProviderType: cfg.EventStream.Provider,
		Brokers:      cfg.EventStream.Brokers,
		Topic:        cfg.EventStream.Topic,
		Logger:       logger,
	})
	if err != nil {
		return nil, fmt.Errorf("creating event publisher: %w", err)
	}
	st.Publisher = publisher

	backupDir := cfg.Migration.BackupDir
	if backupDir == "" {
		backupDir, err = ddm.BackupPath(o.ConfigDir)
		if err != nil {
			return nil, err
		}
	}

	collection := cfg.VectorStore.Collection
	migrator, err := migrate.NewEngine(migrate.Config{
		Store:         st.Store,
		Embedder:      st.Embedder,
		Collection:    collection,
		BatchSize:     cfg.Migration.BatchSize,
		Workers:       cfg.Migration.Workers,
		ProgressEvery: cfg.Migration.ProgressEvery,
		BackupDir:     backupDir,
		Publisher:     st.Publisher,
		Logger:        logger.With("component", "migrate"),
	})
	if err != nil {
		return nil, err
	}

	pipeline, err := summary.NewPipeline(summary.Config{
		Store:      st.Store,
		Embedder:   st.Embedder,
		Summarizer: st.Summarizer,
		Tracker:    st.Tracker,
		Collection: collection,
		Publisher:  st.Publisher,
		Logger:     logger.With("component", "summary"),
	})
	if err != nil {
		return nil, err
	}

	st.Service, err = memory.NewService(memory.Config{
		Store:      st.Store,
		Collection: collection,
		Lister: memory.NewLister(memory.ListerConfig{
			Store:         st.Store,
			MaxListLimit:  cfg.Memory.ListLimitMax,
			MaxTotalFetch: cfg.Memory.MaxTotalFetch,
			Logger:        logger,
		}),
		Migrator:        migrator,
		Pipeline:        pipeline,
		Sessions:        o.Sessions,
		Publisher:       st.Publisher,
		History:         retention.HistoryOptions{AssistantName: cfg.Memory.AssistantName},
		HistoryLength:   cfg.Memory.HistoryLength,
		SummaryInterval: interval,
		Logger:          logger,
	})
	if err != nil {
		return nil, err
	}
	return st, nil
}

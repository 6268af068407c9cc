// Package vectorutils builds a vector.Driver from configuration.
package vectorutils

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/papercomputeco/mnemosyne/pkg/vector"
	"github.com/papercomputeco/mnemosyne/pkg/vector/chroma"
	"github.com/papercomputeco/mnemosyne/pkg/vector/chromem"
	"github.com/papercomputeco/mnemosyne/pkg/vector/pgvector"
	"github.com/papercomputeco/mnemosyne/pkg/vector/qdrant"
	"github.com/papercomputeco/mnemosyne/pkg/vector/sqlitevec"
)

// Supported record store providers.
const (
	ProviderSQLite   = "sqlite"
	ProviderChroma   = "chroma"
	ProviderQdrant   = "qdrant"
	ProviderChromem  = "chromem"
	ProviderPGVector = "pgvector"
)

// Providers lists the accepted ProviderType values.
var Providers = []string{ProviderSQLite, ProviderChroma, ProviderQdrant, ProviderChromem, ProviderPGVector}

type NewVectorDriverOpts struct {
	ProviderType string

	// Target is the provider address: a URL for chroma, host:port for
	// qdrant, a DSN for pgvector, and a directory for chromem.
	Target string

	// SQLitePath is the database file for the sqlite provider.
	SQLitePath string

	APIKey string
	Logger *slog.Logger
}

func NewVectorDriver(ctx context.Context, o *NewVectorDriverOpts) (vector.Driver, error) {
	switch o.ProviderType {
	case ProviderSQLite:
		return sqlitevec.NewDriver(sqlitevec.Config{
			DBPath: o.SQLitePath,
		}, o.Logger)
	case ProviderChroma:
		return chroma.NewDriver(chroma.Config{
			URL: o.Target,
		}, o.Logger)
	case ProviderQdrant:
		return qdrant.NewDriver(qdrant.Config{
			Target: o.Target,
			APIKey: o.APIKey,
		}, o.Logger)
	case ProviderChromem:
		return chromem.NewDriver(chromem.Config{
			Path:     o.Target,
			Compress: true,
		}, o.Logger)
	case ProviderPGVector:
		return pgvector.NewDriver(ctx, pgvector.Config{
			DSN: o.Target,
		}, o.Logger)
	default:
		return nil, fmt.Errorf("unsupported vector store provider: %s", o.ProviderType)
	}
}

package summaryutils

import (
	"fmt"

	"github.com/papercomputeco/mnemosyne/pkg/summary"
	"github.com/papercomputeco/mnemosyne/pkg/summary/ollama"
	"github.com/papercomputeco/mnemosyne/pkg/summary/openai"
)

// Supported summary providers.
const (
	ProviderOllama = "ollama"
	ProviderOpenAI = "openai"
)

type NewSummarizerOpts struct {
	ProviderType string
	TargetURL    string
	Model        string
	APIKey       string
}

func NewSummarizer(o *NewSummarizerOpts) (summary.Summarizer, error) {
	switch o.ProviderType {
	case ProviderOllama:
		return ollama.NewSummarizer(ollama.Config{
			BaseURL: o.TargetURL,
			Model:   o.Model,
		}), nil
	case ProviderOpenAI:
		return openai.NewSummarizer(openai.Config{
			BaseURL: o.TargetURL,
			APIKey:  o.APIKey,
			Model:   o.Model,
		})
	default:
		return nil, fmt.Errorf("unsupported summary provider: %s", o.ProviderType)
	}
}

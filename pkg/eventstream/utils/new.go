package eventstreamutils

import (
	"fmt"
	"log/slog"

	"github.com/papercomputeco/mnemosyne/pkg/eventstream"
	"github.com/papercomputeco/mnemosyne/pkg/eventstream/kafka"
	"github.com/papercomputeco/mnemosyne/pkg/eventstream/nop"
)

const (
	ProviderNone  = ""
	ProviderNop   = "nop"
	ProviderKafka = "kafka"
)

type NewPublisherOpts struct {
	ProviderType string
	Brokers      []string
	Topic        string
	Logger       *slog.Logger
}

// NewPublisher returns the configured event publisher. An empty provider
// disables publishing.
func NewPublisher(o *NewPublisherOpts) (eventstream.Publisher, error) {
	switch o.ProviderType {
	case ProviderNone, ProviderNop:
		return nop.NewPublisher(), nil
	case ProviderKafka:
		return kafka.NewPublisher(kafka.Config{
			Brokers: o.Brokers,
			Topic:   o.Topic,
		}, o.Logger)
	default:
		return nil, fmt.Errorf("unsupported eventstream provider: %s", o.ProviderType)
	}
}

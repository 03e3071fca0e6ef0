package pipeline

import (
	"context"

	"github.com/Ramsey-B/fern/pkg/errors"
	"github.com/Ramsey-B/fern/pkg/kafka"
)

// HandleMessage runs a raw payload message through Process. The message key
// is the source ID and the source header names the provider.
func (p *Pipeline) HandleMessage(ctx context.Context, msg *kafka.IncomingMessage) error {
	source := msg.Source()
	if source == "" {
		return errors.NewUnsupportedSourceError("")
	}
	_, err := p.Process(ctx, source, msg.SourceID(), msg.Value)
	return err
}

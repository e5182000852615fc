package archive

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/nhle/mailvault/internal/model"
	"github.com/nhle/mailvault/internal/source"
)

// Pipeline archives a record by fetching its message, storing it as a
// document and optionally acknowledging it at the provider.
type Pipeline struct {
	fetcher source.ContentFetcher
	store   DocumentStore
	ack     source.Acknowledger
	logger  *slog.Logger
}

// NewPipeline wires a fetcher to a document store. ack may be nil.
func NewPipeline(
	fetcher source.ContentFetcher,
	store DocumentStore,
	ack source.Acknowledger,
	logger *slog.Logger,
) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{fetcher: fetcher, store: store, ack: ack, logger: logger}
}

// Archive fetches, stores and acknowledges one record. An acknowledgement
// failure is logged and does not fail the archive.
func (p *Pipeline) Archive(ctx context.Context, rec model.ChangeRecord) (string, error) {
	msg, err := p.fetcher.FetchMessage(ctx, rec.ID)
	if err != nil {
		return "", fmt.Errorf("fetching record %s: %w", rec.ID, err)
	}

	artifactID, err := p.store.Put(ctx, NewDocument(rec, msg))
	if err != nil {
		return "", fmt.Errorf("storing record %s: %w", rec.ID, err)
	}

	if p.ack != nil {
		if err := p.ack.Acknowledge(ctx, rec.ID); err != nil {
			p.logger.Warn("acknowledging archived record failed",
				"record", rec.ID, "artifact", artifactID, "error", err)
		}
	}
	return artifactID, nil
}

package archive

import (
	"context"
	"log/slog"

	"github.com/nhle/mailvault/internal/model"
	"github.com/nhle/mailvault/internal/store"
)

// Dedupe skips records the ledger already holds an artifact for, and
// records new artifacts after the inner archiver succeeds.
//
// A crash between the inner archive and the ledger write still produces
// a duplicate on retry; Dedupe narrows duplicates, it does not remove them.
type Dedupe struct {
	inner  Archiver
	ledger store.Ledger
	slot   string
	logger *slog.Logger
}

// NewDedupe wraps inner with the ledger entries of slot.
func NewDedupe(inner Archiver, ledger store.Ledger, slot string, logger *slog.Logger) *Dedupe {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dedupe{inner: inner, ledger: ledger, slot: slot, logger: logger}
}

// Archive returns the recorded artifact for known records and archives
// the rest.
func (d *Dedupe) Archive(ctx context.Context, rec model.ChangeRecord) (string, error) {
	artifactID, found, err := d.ledger.LookupArtifact(ctx, d.slot, rec.ID)
	if err != nil {
		return "", err
	}
	if found {
		d.logger.Debug("record already archived", "record", rec.ID, "artifact", artifactID)
		return artifactID, nil
	}

	artifactID, err = d.inner.Archive(ctx, rec)
	if err != nil {
		return "", err
	}

	if err := d.ledger.RecordArtifact(ctx, model.ArchivedRecord{
		Slot:       d.slot,
		RecordID:   rec.ID,
		ArtifactID: artifactID,
	}); err != nil {
		// The artifact exists, so the record counts as archived.
		d.logger.Warn("recording archived record failed",
			"record", rec.ID, "artifact", artifactID, "error", err)
	}
	return artifactID, nil
}

package archive

import (
	"context"
	"regexp"
	"strings"

	"github.com/nhle/mailvault/internal/model"
)

// Archiver turns one change record into a durable artifact and returns
// the artifact's ID. Implementations must tolerate being called again for
// a record that was already archived.
type Archiver interface {
	Archive(ctx context.Context, rec model.ChangeRecord) (string, error)
}

// ArchiverFunc adapts a function to Archiver.
type ArchiverFunc func(ctx context.Context, rec model.ChangeRecord) (string, error)

// Archive calls f.
func (f ArchiverFunc) Archive(ctx context.Context, rec model.ChangeRecord) (string, error) {
	return f(ctx, rec)
}

// Document is what a DocumentStore persists.
type Document struct {
	// Key is stable per change record; stores that can overwrite use it
	// to make repeated archiving idempotent.
	Key      string
	Name     string
	MIMEType string
	Body     []byte
}

// DocumentStore persists documents and returns their IDs.
type DocumentStore interface {
	Put(ctx context.Context, doc Document) (string, error)
}

const noteMIMEType = "text/markdown"

// NewDocument builds the note stored for a fetched message. The name is
// the message subject, or the record ID when the subject is empty.
func NewDocument(rec model.ChangeRecord, msg *model.Message) Document {
	title := strings.TrimSpace(msg.Subject)
	if title == "" {
		title = rec.ID
	}
	return Document{
		Key:      rec.ID,
		Name:     title + ".md",
		MIMEType: noteMIMEType,
		Body:     []byte(msg.Text),
	}
}

var unsafeNameChars = regexp.MustCompile(`[^\p{L}\p{N} ._-]+`)

// safeName reduces s to characters that are safe in file names.
func safeName(s string) string {
	s = unsafeNameChars.ReplaceAllString(s, "_")
	s = strings.Trim(s, " ._")
	if runes := []rune(s); len(runes) > 80 {
		s = string(runes[:80])
	}
	return s
}

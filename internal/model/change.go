package model

import "time"

// SourceType identifies the mailbox provider behind a change source.
type SourceType string

const (
	SourceTypeGmail SourceType = "gmail"
	SourceTypeIMAP  SourceType = "imap"
)

// ChangeRecord is one unit of new content discovered since a cursor.
type ChangeRecord struct {
	// ID identifies the underlying message within its provider.
	ID string `json:"id"`

	// ThreadID is the provider thread, when the provider has one.
	ThreadID string `json:"thread_id,omitempty"`

	// Position is the provider position at which the change was recorded.
	Position Position `json:"position"`

	// Sequence breaks ties between records sharing a Position, in the
	// order the provider returned them.
	Sequence int `json:"sequence"`

	// Labels holds provider labels or IMAP flags attached to the change.
	Labels []string `json:"labels,omitempty"`
}

// Message is the fetched content behind a ChangeRecord.
type Message struct {
	ID      string
	Subject string
	From    string
	Date    time.Time
	Text    string
}

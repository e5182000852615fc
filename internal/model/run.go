package model

import "time"

// SyncRun is the audit record of one sync engine invocation.
type SyncRun struct {
	ID                   string    `json:"id" db:"id"`
	Slot                 string    `json:"slot" db:"slot"`
	DeliveryID           string    `json:"delivery_id" db:"delivery_id"`
	Decision             string    `json:"decision" db:"decision"`
	Outcome              string    `json:"outcome" db:"outcome"`
	NotificationPosition Position  `json:"notification_position" db:"notification_position"`
	CursorBefore         Position  `json:"cursor_before" db:"cursor_before"`
	CursorAfter          Position  `json:"cursor_after" db:"cursor_after"`
	Fetched              int       `json:"fetched" db:"fetched"`
	Archived             int       `json:"archived" db:"archived"`
	Error                string    `json:"error,omitempty" db:"error"`
	StartedAt            time.Time `json:"started_at" db:"started_at"`
	FinishedAt           time.Time `json:"finished_at" db:"finished_at"`
}

// ArchivedRecord links a change record to the artifact it produced.
type ArchivedRecord struct {
	Slot       string    `json:"slot" db:"slot"`
	RecordID   string    `json:"record_id" db:"record_id"`
	ArtifactID string    `json:"artifact_id" db:"artifact_id"`
	ArchivedAt time.Time `json:"archived_at" db:"archived_at"`
}

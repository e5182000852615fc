package sync

import "fmt"

// TransportError reports a failure talking to the cursor store or the
// change source. Nothing was mutated; redelivery retries the whole run.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// PartialArchiveError reports that archiving stopped at RecordID after
// Archived of Total records succeeded. The cursor was not advanced.
type PartialArchiveError struct {
	Archived int
	Total    int
	RecordID string
	Err      error
}

func (e *PartialArchiveError) Error() string {
	return fmt.Sprintf("archived %d of %d records, failed at %s: %v",
		e.Archived, e.Total, e.RecordID, e.Err)
}

func (e *PartialArchiveError) Unwrap() error {
	return e.Err
}

package sync

import "github.com/nhle/mailvault/internal/model"

// Decision is the gate's verdict on an inbound notification.
type Decision int

const (
	// Undecided is reported when a run fails before the gate ran.
	Undecided Decision = iota
	// Stale notifications carry a position the cursor already covers.
	Stale
	// FirstRun means no cursor exists yet for the slot.
	FirstRun
	// Actionable notifications are ahead of the stored cursor.
	Actionable
)

func (d Decision) String() string {
	switch d {
	case Undecided:
		return "undecided"
	case Stale:
		return "stale"
	case FirstRun:
		return "first_run"
	case Actionable:
		return "actionable"
	default:
		return "unknown"
	}
}

// Accept decides what to do with n given the stored cursor.
func Accept(n model.Notification, stored *model.Cursor) Decision {
	if stored == nil {
		return FirstRun
	}
	if n.Position <= stored.Position {
		return Stale
	}
	return Actionable
}

package model

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"time"
)

// Position is a provider high-water mark in an ordered change stream
// (a Gmail historyId, or an IMAP UIDVALIDITY and UID pair).
type Position uint64

// MaxStorablePosition is the largest position a cursor store can hold.
// SQL backends keep positions in a signed BIGINT column.
const MaxStorablePosition Position = math.MaxInt64

// ErrPositionOutOfRange reports a position above MaxStorablePosition.
var ErrPositionOutOfRange = errors.New("position out of range")

// CheckStorable returns an error wrapping ErrPositionOutOfRange when p
// cannot be stored.
func (p Position) CheckStorable() error {
	if p > MaxStorablePosition {
		return fmt.Errorf("%w: %d exceeds %d", ErrPositionOutOfRange, uint64(p), uint64(MaxStorablePosition))
	}
	return nil
}

// Cursor is the durable marker of the last processed position for a slot.
type Cursor struct {
	// Slot names the cursor, usually the mailbox address.
	Slot string `json:"slot" db:"slot"`

	// Position is the last position whose changes were fully processed.
	Position Position `json:"position" db:"position"`

	// UpdatedAt is when the cursor last advanced.
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

func (p Position) String() string {
	return strconv.FormatUint(uint64(p), 10)
}

// Ptr returns a pointer to p.
func (p Position) Ptr() *Position {
	return &p
}

// Minus subtracts margin from p, saturating at zero.
func (p Position) Minus(margin uint64) Position {
	if uint64(p) <= margin {
		return 0
	}
	return p - Position(margin)
}

// MaxPosition returns the larger of a and b.
func MaxPosition(a, b Position) Position {
	if a > b {
		return a
	}
	return b
}

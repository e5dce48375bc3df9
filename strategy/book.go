package strategy

import "regime-trader/models"

// Book tracks pyramiding order counts per mode and side. Each counter is the
// number of stacked entries currently open for that mode/side; a counter is
// reset to zero in the same step that emits the flattening intent.
type Book struct {
	ReversionLong  int
	ReversionShort int
	BreakoutLong   int
	BreakoutShort  int
}

// Count returns the open order count for a mode/side pair.
func (b *Book) Count(side models.Side, mode models.Mode) int {
	return *b.slot(side, mode)
}

// Add records one more stacked entry for a mode/side pair.
func (b *Book) Add(side models.Side, mode models.Mode) {
	*b.slot(side, mode)++
}

// Flatten resets the counter for a mode/side pair.
func (b *Book) Flatten(side models.Side, mode models.Mode) {
	*b.slot(side, mode) = 0
}

// Snapshot returns the counters for status reporting.
func (b *Book) Snapshot() models.BookSnapshot {
	return models.BookSnapshot{
		ReversionLong:  b.ReversionLong,
		ReversionShort: b.ReversionShort,
		BreakoutLong:   b.BreakoutLong,
		BreakoutShort:  b.BreakoutShort,
	}
}

func (b *Book) slot(side models.Side, mode models.Mode) *int {
	if mode == models.ModeReversion {
		if side == models.SideLong {
			return &b.ReversionLong
		}
		return &b.ReversionShort
	}
	if side == models.SideLong {
		return &b.BreakoutLong
	}
	return &b.BreakoutShort
}

package timeutil

import "time"

// Timer measures elapsed time from construction, from a soft mark, and from a
// hard mark that is only placed if not already set.
type Timer struct {
	clock      Clock
	first      time.Time
	last       time.Time
	mark       time.Time
	hardMark   time.Time
	repeatMark time.Time
}

func NewTimer(clock Clock) *Timer {
	now := clock.Now()
	return &Timer{clock: clock, first: now, last: now, mark: now}
}

// Dt returns the time since the previous Dt call.
func (t *Timer) Dt() time.Duration {
	now := t.clock.Now()
	dt := now.Sub(t.last)
	t.last = now
	return dt
}

func (t *Timer) DtFromStart() time.Duration {
	return t.clock.Now().Sub(t.first)
}

func (t *Timer) PlaceMark() {
	t.mark = t.clock.Now()
}

func (t *Timer) DtFromMark() time.Duration {
	return t.clock.Now().Sub(t.mark)
}

// PlaceHardMark sets the hard mark unless one is already placed.
func (t *Timer) PlaceHardMark() {
	if t.hardMark.IsZero() {
		t.hardMark = t.clock.Now()
	}
}

// ClearHardMark removes the hard mark and returns its old value.
func (t *Timer) ClearHardMark() time.Time {
	old := t.hardMark
	t.hardMark = time.Time{}
	return old
}

func (t *Timer) HasHardMark() bool {
	return !t.hardMark.IsZero()
}

// DtFromHardMark is zero when no hard mark is placed.
func (t *Timer) DtFromHardMark() time.Duration {
	if t.hardMark.IsZero() {
		return 0
	}
	return t.clock.Now().Sub(t.hardMark)
}

// Repeat returns true at most once per period.
func (t *Timer) Repeat(period time.Duration) bool {
	now := t.clock.Now()
	if t.repeatMark.IsZero() {
		t.repeatMark = now
	}
	if now.Sub(t.repeatMark) >= period {
		t.repeatMark = time.Time{}
		return true
	}
	return false
}

package retro

// Tracker counts resolved faults for one color.
type Tracker struct {
	index int
	total int
}

// NewTracker creates a tracker for total faults.
func NewTracker(total int) *Tracker {
	if total < 0 {
		total = 0
	}
	return &Tracker{total: total}
}

// Advance records one resolved fault. The index never passes the total.
func (t *Tracker) Advance() {
	if t.index < t.total {
		t.index++
	}
}

// Reset starts counting again from zero.
func (t *Tracker) Reset() {
	t.index = 0
}

// Done reports whether every fault has been resolved.
func (t *Tracker) Done() bool {
	return t.index >= t.total
}

// Completion returns the current index and total.
func (t *Tracker) Completion() Completion {
	return Completion{Index: t.index, Total: t.total}
}

// Package batch implements the micro-batch accumulator feeding the
// detector: flush at the size threshold or when the oldest queued frame
// has waited the timeout, whichever comes first.
package batch

import (
	"time"

	"github.com/trinetra-vision/trinetra/common/framebus"
)

// Accumulator collects frames into micro-batches. Single-goroutine use.
type Accumulator struct {
	size     int
	timeout  time.Duration
	entries  []framebus.Entry
	deadline time.Time

	now func() time.Time
}

// New builds an accumulator with the given flush threshold and partial
// batch timeout.
func New(size int, timeout time.Duration) *Accumulator {
	return &Accumulator{size: size, timeout: timeout, now: time.Now}
}

// Add queues an entry. When the size threshold is reached the full
// batch is returned and the accumulator resets; otherwise nil.
func (a *Accumulator) Add(e framebus.Entry) []framebus.Entry {
	if len(a.entries) == 0 {
		a.deadline = a.now().Add(a.timeout)
	}
	a.entries = append(a.entries, e)
	if len(a.entries) >= a.size {
		return a.Flush()
	}
	return nil
}

// Due reports whether a non-empty partial batch has hit its timeout.
func (a *Accumulator) Due() bool {
	return len(a.entries) > 0 && !a.now().Before(a.deadline)
}

// Flush returns the pending entries, leaving the accumulator empty.
func (a *Accumulator) Flush() []framebus.Entry {
	out := a.entries
	a.entries = nil
	return out
}

// Len returns the number of pending entries.
func (a *Accumulator) Len() int {
	return len(a.entries)
}

// Wait returns how long the consume loop may block before the pending
// partial batch is due. With nothing pending the full timeout applies.
// Never returns less than a millisecond: redis treats a zero BLOCK as
// block-forever, which would strand a due partial batch.
func (a *Accumulator) Wait() time.Duration {
	if len(a.entries) == 0 {
		return a.timeout
	}
	d := a.deadline.Sub(a.now())
	if d < time.Millisecond {
		return time.Millisecond
	}
	return d
}

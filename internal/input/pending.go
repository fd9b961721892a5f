package input

import (
	"errors"

	"github.com/1ureka/lockstep/internal/protocol"
)

var ErrNotReady = errors.New("input: not every slot holds input for the awaited step")

// Pending collects, per remote slot, that participant's input for the step
// currently awaited. A filled slot always holds a record for that step.
type Pending struct {
	step   int32
	slots  []protocol.InputRecord
	filled []bool
}

// NewPending creates collection state for n remote slots awaiting step 0.
func NewPending(n int) *Pending {
	return &Pending{
		slots:  make([]protocol.InputRecord, n),
		filled: make([]bool, n),
	}
}

// Await sets the awaited step. Moving to a different step discards every
// collected record, since none of them can belong to the new step.
func (p *Pending) Await(step int32) {
	if step != p.step {
		p.Clear()
		p.step = step
	}
}

// Step returns the awaited step.
func (p *Pending) Step() int32 { return p.step }

// Ingest scans msg for the record of forStep and stores it in slot.
// Records for other steps are discarded. It reports whether a record was
// stored.
func (p *Pending) Ingest(slot int, msg protocol.InputState, forStep int32) bool {
	if slot < 0 || slot >= len(p.slots) {
		return false
	}
	p.Await(forStep)

	for _, r := range msg.Records {
		if r.Step != forStep {
			continue
		}
		p.slots[slot] = r
		p.filled[slot] = true
		return true
	}
	return false
}

// Filled reports whether every slot holds a record for the awaited step.
// With zero slots it is trivially true.
func (p *Pending) Filled() bool {
	for _, f := range p.filled {
		if !f {
			return false
		}
	}
	return true
}

// Has reports whether slot holds a record for the awaited step.
func (p *Pending) Has(slot int) bool {
	return slot >= 0 && slot < len(p.filled) && p.filled[slot]
}

// Len returns the number of slots.
func (p *Pending) Len() int { return len(p.slots) }

// ConsumeAndClear returns one record per slot in slot order and empties
// every slot.
func (p *Pending) ConsumeAndClear() ([]protocol.InputRecord, error) {
	if !p.Filled() {
		return nil, ErrNotReady
	}
	out := make([]protocol.InputRecord, len(p.slots))
	copy(out, p.slots)
	p.Clear()
	return out, nil
}

// Clear empties every slot without changing the awaited step.
func (p *Pending) Clear() {
	for i := range p.slots {
		p.slots[i] = protocol.InputRecord{}
		p.filled[i] = false
	}
}

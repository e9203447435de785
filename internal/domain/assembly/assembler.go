// Package assembly buffers, validates and orders generated frames before
// they reach the encoder.
package assembly

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/vidforge/lipsync/internal/types"
)

// State is the lifecycle of one assembly run: Collecting until the declared
// frame count has arrived with no gaps (Sealed) or the grace period expires
// with gaps (Failed).
type State int

const (
	Collecting State = iota
	Sealed
	Failed
)

func (s State) String() string {
	switch s {
	case Collecting:
		return "collecting"
	case Sealed:
		return "sealed"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// DuplicateFrameError reports a second arrival of an already-integrated
// index. Fatal: the service contract guarantees unique indices.
type DuplicateFrameError struct {
	Index int
}

func (e *DuplicateFrameError) Error() string {
	return fmt.Sprintf("duplicate frame index %d", e.Index)
}

// MissingFramesError reports the gaps left when a run fails to complete.
type MissingFramesError struct {
	Expected int
	Received int
	Missing  []int
}

func (e *MissingFramesError) Error() string {
	return fmt.Sprintf("missing %d of %d frames (received %d): indices %v",
		len(e.Missing), e.Expected, e.Received, e.Missing)
}

var errTotalUndeclared = errors.New("assembly: total frame count was never declared")

// Assembler integrates frames arriving in any order and releases the
// contiguous prefix from index 0 on its Output channel, so encoding can
// start while later frames are still in flight. Released frames are dropped
// from the buffer; ownership moves to the consumer.
//
// Add must be called from a single goroutine. Expect and Finish may be
// called from others.
type Assembler struct {
	mu       sync.Mutex
	expected int // -1 until Expect
	pending  map[int]types.Frame
	next     int // next index to release
	received int
	state    State
	failErr  error
	// releasing is set while Add sends a released run outside the lock;
	// sealing is deferred to Add's own post-send check so out is never
	// closed under a pending send.
	releasing bool
	out       chan types.Frame
	sealedC   chan struct{}
}

// New returns a collecting assembler releasing frames through a buffer of
// the given depth.
func New(buffer int) *Assembler {
	if buffer <= 0 {
		buffer = 16
	}
	return &Assembler{
		expected: -1,
		pending:  make(map[int]types.Frame),
		out:      make(chan types.Frame, buffer),
		sealedC:  make(chan struct{}),
	}
}

// Output streams the contiguous prefix in index order. The channel is
// closed only on Sealed; a failed run leaves it open so a consumer cannot
// mistake an aborted sequence for a complete one.
func (a *Assembler) Output() <-chan types.Frame { return a.out }

// Expect declares the authoritative total frame count. Declaring a
// different total twice is an error.
func (a *Assembler) Expect(total int) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if total <= 0 {
		return fmt.Errorf("assembly: declared total %d must be > 0", total)
	}
	if a.expected >= 0 && a.expected != total {
		return fmt.Errorf("assembly: total re-declared as %d, was %d", total, a.expected)
	}
	a.expected = total
	a.sealIfCompleteLocked()
	return nil
}

// Add integrates one frame, releasing any newly contiguous run to Output.
// Blocks when the output buffer is full; that is the backpressure point.
func (a *Assembler) Add(ctx context.Context, f types.Frame) error {
	a.mu.Lock()
	if a.state != Collecting {
		a.mu.Unlock()
		return fmt.Errorf("assembly: frame %d arrived in state %s", f.Index, a.state)
	}
	if f.Index < 0 {
		a.mu.Unlock()
		return fmt.Errorf("assembly: negative frame index %d", f.Index)
	}
	if a.expected >= 0 && f.Index >= a.expected {
		a.mu.Unlock()
		return fmt.Errorf("assembly: frame index %d out of range, expected 0..%d", f.Index, a.expected-1)
	}
	if f.Index < a.next {
		a.mu.Unlock()
		return &DuplicateFrameError{Index: f.Index}
	}
	if _, ok := a.pending[f.Index]; ok {
		a.mu.Unlock()
		return &DuplicateFrameError{Index: f.Index}
	}
	a.pending[f.Index] = f
	a.received++

	var run []types.Frame
	for {
		nf, ok := a.pending[a.next]
		if !ok {
			break
		}
		delete(a.pending, a.next)
		run = append(run, nf)
		a.next++
	}
	a.releasing = true
	a.mu.Unlock()

	for _, nf := range run {
		select {
		case a.out <- nf:
		case <-ctx.Done():
			a.mu.Lock()
			a.releasing = false
			a.mu.Unlock()
			return ctx.Err()
		}
	}

	a.mu.Lock()
	a.releasing = false
	a.sealIfCompleteLocked()
	a.mu.Unlock()
	return nil
}

func (a *Assembler) sealIfCompleteLocked() {
	if a.state != Collecting || a.releasing {
		return
	}
	if a.expected >= 0 && a.next == a.expected && len(a.pending) == 0 {
		a.state = Sealed
		close(a.out)
		close(a.sealedC)
	}
}

// Finish waits up to grace for the run to seal, then fails it if gaps
// remain. Safe to call with grace 0 when the caller knows no more frames
// can arrive.
func (a *Assembler) Finish(grace time.Duration) error {
	if grace > 0 {
		t := time.NewTimer(grace)
		defer t.Stop()
		select {
		case <-a.sealedC:
			return nil
		case <-t.C:
		}
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.state == Sealed {
		return nil
	}
	if a.state == Failed {
		return a.failErr
	}
	a.state = Failed
	if a.expected < 0 {
		a.failErr = errTotalUndeclared
	} else {
		a.failErr = &MissingFramesError{
			Expected: a.expected,
			Received: a.received,
			Missing:  a.missingLocked(),
		}
	}
	return a.failErr
}

func (a *Assembler) missingLocked() []int {
	var missing []int
	for i := a.next; i < a.expected; i++ {
		if _, ok := a.pending[i]; !ok {
			missing = append(missing, i)
		}
	}
	return missing
}

// State reports the current lifecycle state.
func (a *Assembler) State() State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

// Received reports how many frames have been integrated so far.
func (a *Assembler) Received() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.received
}

// Err returns the failure cause, nil unless Failed.
func (a *Assembler) Err() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.failErr
}

// Package runtimepm reference-counts device activity and lazily powers a
// device up on first use and down when the last user is gone. The device
// supplies the actual resume/suspend work; this package only orders it.
package runtimepm

import (
	"errors"
	"sync"
	"time"
)

// Ops are the device's power transition callbacks. Resume powers the
// device up to an operational state, Suspend powers it down. Both may
// block.
type Ops interface {
	Resume() error
	Suspend() error
}

var ErrDisabled = errors.New("runtimepm: disabled")

// PM tracks usage of one device.
type PM struct {
	ops Ops

	// IdleDelay, when non-zero, defers the suspend after the last Put by
	// that duration so quick stop/start cycles skip a power cycle. Must be
	// set before Enable.
	IdleDelay time.Duration

	mu      sync.Mutex
	enabled bool
	resumed bool
	refs    int
	wake    chan struct{}
}

func New(ops Ops) *PM {
	return &PM{ops: ops}
}

// SetActive marks the device as already resumed without invoking Resume.
// Used when probe code powered the device up by hand.
func (p *PM) SetActive() {
	p.mu.Lock()
	p.resumed = true
	p.mu.Unlock()
}

// Enable allows Get to resume the device.
func (p *PM) Enable() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.enabled {
		return
	}
	p.enabled = true
	if p.IdleDelay > 0 {
		p.wake = make(chan struct{}, 1)
		go p.idleWorker(p.wake)
	}
}

// Disable stops further resumes. It does not change the power state; the
// caller decides whether a final suspend is needed (see Suspended).
func (p *PM) Disable() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.enabled {
		return
	}
	p.enabled = false
	if p.wake != nil {
		close(p.wake)
		p.wake = nil
	}
}

// Get takes a usage reference, resuming the device first if it is
// suspended. On error no reference is held.
func (p *PM) Get() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.enabled {
		return ErrDisabled
	}
	if !p.resumed {
		if err := p.ops.Resume(); err != nil {
			return err
		}
		p.resumed = true
	}
	p.refs++
	return nil
}

// TryGet takes a usage reference only if the device is already resumed.
// It never blocks on a power transition. Reports whether a reference was
// taken; if false the caller must not touch the device.
func (p *PM) TryGet() bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.enabled || !p.resumed {
		return false
	}
	p.refs++
	return true
}

// Put drops a usage reference. When the last reference is dropped the
// device is suspended, either immediately or after IdleDelay. The suspend
// error, if any, is returned on the immediate path.
func (p *PM) Put() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.refs == 0 {
		return nil
	}
	p.refs--
	if p.refs > 0 || !p.resumed {
		return nil
	}

	if p.wake != nil {
		select {
		case p.wake <- struct{}{}:
		default:
		}
		return nil
	}
	return p.suspendLocked()
}

// Idle suspends the device now if nothing holds a reference. Probe calls
// this after SetActive+Enable so the first user request drives power-up.
func (p *PM) Idle() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.refs > 0 || !p.resumed {
		return nil
	}
	return p.suspendLocked()
}

// Suspended reports whether the device is currently powered down.
func (p *PM) Suspended() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return !p.resumed
}

func (p *PM) suspendLocked() error {
	err := p.ops.Suspend()
	p.resumed = false
	return err
}

func (p *PM) idleWorker(wake chan struct{}) {
	for range wake {
		time.Sleep(p.IdleDelay)

		p.mu.Lock()
		if p.enabled && p.refs == 0 && p.resumed {
			p.suspendLocked()
		}
		p.mu.Unlock()
	}
}

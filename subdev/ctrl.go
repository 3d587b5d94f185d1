package subdev

import (
	"errors"
	"fmt"
	"sync"
)

// CtrlID names a control.
type CtrlID uint32

const (
	CtrlLinkFreq CtrlID = iota
	CtrlPixelRate
	CtrlHBlank
	CtrlVBlank
	CtrlExposure
	CtrlAnalogGain
	CtrlDigitalGain
	CtrlTestPattern
)

var ctrlNames = map[CtrlID]string{
	CtrlLinkFreq:    "link_freq",
	CtrlPixelRate:   "pixel_rate",
	CtrlHBlank:      "hblank",
	CtrlVBlank:      "vblank",
	CtrlExposure:    "exposure",
	CtrlAnalogGain:  "analogue_gain",
	CtrlDigitalGain: "digital_gain",
	CtrlTestPattern: "test_pattern",
}

func (id CtrlID) String() string {
	if n, ok := ctrlNames[id]; ok {
		return n
	}
	return fmt.Sprintf("ctrl(0x%x)", uint32(id))
}

var (
	ErrRange    = errors.New("subdev: control value out of range")
	ErrReadOnly = errors.New("subdev: control is read-only")
	ErrNoCtrl   = errors.New("subdev: no such control")
)

// SetFunc programs a control's current value into the device. It is always
// invoked with the handler lock held. A nil SetFunc means the control is
// bookkeeping only.
type SetFunc func(c *Ctrl) error

// Ctrl is one logical control with a clamped integer value.
type Ctrl struct {
	ID      CtrlID
	Minimum int64
	Maximum int64
	Step    int64
	Default int64

	// ReadOnly rejects external Set calls. The driver may still move the
	// value through SetLocked.
	ReadOnly bool

	// Menu holds the item names of menu controls; the value is the index.
	Menu []string
	// IntMenu holds the values of integer menu controls.
	IntMenu []int64

	val int64
	set SetFunc
	h   *Handler
}

// Handler owns the controls of one subdevice. Lock serializes every setter
// dispatch and is shared with the driver so control writes and state
// machine transitions cannot interleave.
type Handler struct {
	Lock *sync.Mutex

	ctrls []*Ctrl
	err   error
}

func NewHandler(lock *sync.Mutex) *Handler {
	return &Handler{Lock: lock}
}

// Err returns the first control registration failure, if any.
func (h *Handler) Err() error {
	return h.err
}

func (h *Handler) add(c *Ctrl) *Ctrl {
	c.h = h
	c.val = c.Default
	h.ctrls = append(h.ctrls, c)
	return c
}

func (h *Handler) fail(err error) {
	if h.err == nil {
		h.err = err
	}
}

// NewStd registers an integer control.
func (h *Handler) NewStd(id CtrlID, set SetFunc, min, max, step, def int64) *Ctrl {
	if step <= 0 || min > max || def < min || def > max {
		h.fail(fmt.Errorf("subdev: %v: bad range [%d,%d] step %d default %d",
			id, min, max, step, def))
	}
	return h.add(&Ctrl{ID: id, Minimum: min, Maximum: max, Step: step, Default: def, set: set})
}

// NewMenu registers a menu control whose value is an index into items.
func (h *Handler) NewMenu(id CtrlID, set SetFunc, items []string, def int64) *Ctrl {
	if len(items) == 0 || def < 0 || def >= int64(len(items)) {
		h.fail(fmt.Errorf("subdev: %v: bad menu", id))
	}
	return h.add(&Ctrl{
		ID: id, Minimum: 0, Maximum: int64(len(items) - 1), Step: 1,
		Default: def, Menu: items, set: set,
	})
}

// NewIntMenu registers a read-only integer menu control. Its value is an
// index into items.
func (h *Handler) NewIntMenu(id CtrlID, items []int64) *Ctrl {
	if len(items) == 0 {
		h.fail(fmt.Errorf("subdev: %v: empty int menu", id))
	}
	return h.add(&Ctrl{
		ID: id, Minimum: 0, Maximum: int64(len(items) - 1), Step: 1,
		Menu: nil, IntMenu: items, ReadOnly: true,
	})
}

// Find returns the control with the given ID.
func (h *Handler) Find(id CtrlID) *Ctrl {
	for _, c := range h.ctrls {
		if c.ID == id {
			return c
		}
	}
	return nil
}

// SetValue validates and applies a control value on behalf of an external
// caller.
func (h *Handler) SetValue(id CtrlID, val int64) error {
	c := h.Find(id)
	if c == nil {
		return fmt.Errorf("%w: %v", ErrNoCtrl, id)
	}
	return c.Set(val)
}

// Setup replays the current value of every settable control into the
// device, in registration order. It takes the handler lock per control, so
// the caller must not hold it. Used after mode programming to bring the
// device in sync with values set while it was powered down.
func (h *Handler) Setup() error {
	for _, c := range h.ctrls {
		if c.set == nil {
			continue
		}
		h.Lock.Lock()
		err := c.set(c)
		h.Lock.Unlock()
		if err != nil {
			return fmt.Errorf("subdev: setup %v: %w", c.ID, err)
		}
	}
	return nil
}

// Set validates, stores and dispatches a new value.
func (c *Ctrl) Set(val int64) error {
	if c.ReadOnly {
		return fmt.Errorf("%w: %v", ErrReadOnly, c.ID)
	}
	c.h.Lock.Lock()
	defer c.h.Lock.Unlock()
	return c.SetLocked(val)
}

// SetLocked is Set for callers that already hold the handler lock, such as
// the driver's format negotiation updating blanking controls.
func (c *Ctrl) SetLocked(val int64) error {
	if val < c.Minimum || val > c.Maximum || (val-c.Minimum)%c.Step != 0 {
		return fmt.Errorf("%w: %v=%d not in [%d,%d]/%d",
			ErrRange, c.ID, val, c.Minimum, c.Maximum, c.Step)
	}
	c.val = val
	if c.set == nil {
		return nil
	}
	return c.set(c)
}

// Get returns the current value.
func (c *Ctrl) Get() int64 {
	c.h.Lock.Lock()
	defer c.h.Lock.Unlock()
	return c.val
}

// Val returns the current value without locking, for use inside a SetFunc
// or with the handler lock held.
func (c *Ctrl) Val() int64 {
	return c.val
}

// IntMenuValue resolves the current index of an integer menu control.
func (c *Ctrl) IntMenuValue() int64 {
	c.h.Lock.Lock()
	defer c.h.Lock.Unlock()
	return c.IntMenu[c.val]
}

// ModifyRange updates the bounds of a control, clamping the current value
// into the new range. No setter dispatch happens; the clamped value reaches
// the device on the next write or replay. The handler lock must be held.
func (c *Ctrl) ModifyRange(min, max, step, def int64) {
	c.Minimum, c.Maximum, c.Step, c.Default = min, max, step, def
	if c.val < min {
		c.val = min
	}
	if c.val > max {
		c.val = max
	}
}

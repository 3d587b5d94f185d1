package ov9281

import (
	"errors"
	"fmt"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/physic"
)

// rig wires a Sensor to fakes that record every bus transaction, clock,
// regulator and GPIO transition into one ordered trace.
type rig struct {
	trace []string

	mem     map[uint16]byte
	failOn  map[uint16]error
	chipID  uint16
	clock   *fakeClock
	pinsErr error
}

func newRig() *rig {
	r := &rig{
		mem:    map[uint16]byte{},
		failOn: map[uint16]error{},
		chipID: ChipID,
	}
	r.clock = &fakeClock{r: r, rate: XVCLKFreq}
	return r
}

func (r *rig) add(ev string) {
	r.trace = append(r.trace, ev)
}

func (r *rig) reset() {
	r.trace = nil
}

func (r *rig) tx(w, rd []byte) error {
	if len(w) < 2 {
		return errors.New("short address write")
	}
	addr := uint16(w[0])<<8 | uint16(w[1])

	if len(rd) > 0 {
		r.add(fmt.Sprintf("r %04x/%d", addr, len(rd)))
		for i := range rd {
			rd[i] = r.readByte(addr + uint16(i))
		}
		return nil
	}

	if err := r.failOn[addr]; err != nil {
		return err
	}
	var val uint32
	for i, b := range w[2:] {
		val = val<<8 | uint32(b)
		r.mem[addr+uint16(i)] = b
	}
	r.add(fmt.Sprintf("w %04x/%d %x", addr, len(w)-2, val))
	return nil
}

func (r *rig) readByte(addr uint16) byte {
	switch addr {
	case regChipID:
		return byte(r.chipID >> 8)
	case regChipID + 1:
		return byte(r.chipID)
	}
	return r.mem[addr]
}

// writes filters the trace down to bus writes.
func (r *rig) writes() []string {
	var out []string
	for _, ev := range r.trace {
		if len(ev) > 0 && ev[0] == 'w' {
			out = append(out, ev)
		}
	}
	return out
}

func (r *rig) config() Config {
	return Config{
		Tx:    r.tx,
		XVCLK: r.clock,
		Reset: &fakePin{r: r, name: "reset"},
		Pwdn:  &fakePin{r: r, name: "pwdn"},
		Supplies: []Regulator{
			&fakeRegulator{r: r, name: "avdd"},
			&fakeRegulator{r: r, name: "dovdd"},
			&fakeRegulator{r: r, name: "dvdd"},
		},
	}
}

type fakeClock struct {
	r    *rig
	rate physic.Frequency
}

func (c *fakeClock) SetFrequency(f physic.Frequency) error { c.rate = f; return nil }
func (c *fakeClock) Frequency() physic.Frequency           { return c.rate }

func (c *fakeClock) Enable() error {
	c.r.add("xvclk.on")
	return nil
}

func (c *fakeClock) Disable() error {
	c.r.add("xvclk.off")
	return nil
}

type fakeRegulator struct {
	r         *rig
	name      string
	enableErr error
}

func (f *fakeRegulator) Enable() error {
	if f.enableErr != nil {
		return f.enableErr
	}
	f.r.add(f.name + ".on")
	return nil
}

func (f *fakeRegulator) Disable() error {
	f.r.add(f.name + ".off")
	return nil
}

type fakePin struct {
	r    *rig
	name string
}

func (p *fakePin) String() string   { return p.name }
func (p *fakePin) Name() string     { return p.name }
func (p *fakePin) Number() int      { return -1 }
func (p *fakePin) Function() string { return "Out" }
func (p *fakePin) Halt() error      { return nil }

func (p *fakePin) Out(l gpio.Level) error {
	if p.r.pinsErr != nil {
		return p.r.pinsErr
	}
	v := 0
	if l {
		v = 1
	}
	p.r.add(fmt.Sprintf("%s=%d", p.name, v))
	return nil
}

func (p *fakePin) PWM(d gpio.Duty, f physic.Frequency) error {
	return errors.New("not supported")
}

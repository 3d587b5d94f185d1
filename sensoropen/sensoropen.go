// Package sensoropen acquires the bus, clock, GPIO and supply resources an
// OV9281 needs and hands them to the driver. Two transports are supported:
// the platform I²C controller (through periph.io) and an MCP2221A USB
// bridge, so the sensor can be brought up from a development workstation.
package sensoropen

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/host/v3"

	"github.com/BertoldVdb/ov9281/ov9281"
	"github.com/BertoldVdb/ov9281/sensoropen/mcp2221a"
)

// DefaultAddr is the SCCB address of the OV9281.
const DefaultAddr = 0x60

// ErrNoDevice is returned when the requested transport device cannot be
// found.
var ErrNoDevice = errors.New("sensoropen: device not found")

// Device couples an opened sensor with the transport resources behind it.
// Closing the device shuts the sensor down and releases the transport.
type Device struct {
	Sensor *ov9281.Sensor

	closers []func() error
}

func (d *Device) Close() error {
	var first error
	if d.Sensor != nil {
		first = d.Sensor.Close()
	}
	for _, c := range d.closers {
		if err := c(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// FixedClock is a crystal or board-provided oscillator: the rate cannot be
// changed, so SetFrequency only succeeds when asked for the rate it already
// runs at. Enable and Disable are no-ops.
type FixedClock struct {
	Rate physic.Frequency
}

func (c *FixedClock) SetFrequency(f physic.Frequency) error {
	if f != c.Rate {
		return fmt.Errorf("sensoropen: clock is fixed at %s", c.Rate)
	}
	return nil
}

func (c *FixedClock) Frequency() physic.Frequency { return c.Rate }
func (c *FixedClock) Enable() error               { return nil }
func (c *FixedClock) Disable() error              { return nil }

// FixedRegulator is an always-on board rail.
type FixedRegulator struct{}

func (FixedRegulator) Enable() error  { return nil }
func (FixedRegulator) Disable() error { return nil }

// PinRegulator is a rail switched by a GPIO-driven load switch.
type PinRegulator struct {
	Pin gpio.PinOut
}

func (p *PinRegulator) Enable() error  { return p.Pin.Out(gpio.High) }
func (p *PinRegulator) Disable() error { return p.Pin.Out(gpio.Low) }

// OpenUSB opens the sensor behind an MCP2221A bridge. The bridge's GP0 pin
// drives the reset line and GP1 the power-down line. An empty serial matches
// the first bridge found.
func OpenUSB(serial string, addr uint16, logFunc ov9281.LogFunc) (*Device, error) {
	var dev *mcp2221a.MCP2221A

	for _, m := range mcp2221a.AttachedDevices(mcp2221a.VID, mcp2221a.PID) {
		if m.Serial == serial || serial == "" {
			hid, err := m.Open()
			if err != nil {
				return nil, err
			}

			dev, err = mcp2221a.NewFromDev(hid)
			if err != nil {
				hid.Close()
				return nil, err
			}
			break
		}
	}
	if dev == nil {
		return nil, ErrNoDevice
	}

	if err := dev.I2C.SetConfig(mcp2221a.I2CBaudRate); err != nil {
		dev.Close()
		return nil, fmt.Errorf("sensoropen: i2c config: %w", err)
	}

	tx := func(w, r []byte) error {
		if len(w) > 0 {
			// No stop before a read: the read issues a repeated start.
			if err := dev.I2C.Write(len(r) == 0, uint8(addr), w); err != nil {
				return err
			}
		}

		if len(r) > 0 {
			data, err := dev.I2C.Read(len(w) > 0, uint8(addr), uint16(len(r)))
			if err != nil {
				return err
			}
			copy(r, data)
		}

		return nil
	}

	sensor, err := ov9281.New(ov9281.Config{
		Tx:    tx,
		XVCLK: &FixedClock{Rate: ov9281.XVCLKFreq},
		Reset: &usbPin{dev: dev, pin: 0, name: "GP0/reset"},
		Pwdn:  &usbPin{dev: dev, pin: 1, name: "GP1/pwdn"},
		Supplies: []ov9281.Regulator{
			FixedRegulator{}, FixedRegulator{}, FixedRegulator{},
		},
		Log: logFunc,
	})
	if err != nil {
		dev.Close()
		return nil, fmt.Errorf("sensoropen: usb sensor probe: %w", err)
	}

	return &Device{Sensor: sensor, closers: []func() error{dev.Close}}, nil
}

// OpenPlatform opens the sensor on a platform I²C bus. pins maps line names
// to host GPIO names: "reset" and "pwdn" for the control lines, and any of
// the supply names for GPIO-switched rails. Lines that are absent are left
// unconnected; supplies without a pin are treated as always on.
func OpenPlatform(busID string, addr uint16, pins map[string]string, logFunc ov9281.LogFunc) (*Device, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("sensoropen: could not init host: %w", err)
	}

	bus, err := i2creg.Open(busID)
	if err != nil {
		return nil, fmt.Errorf("sensoropen: could not open bus: %w", err)
	}

	i2cDev := &i2c.Dev{Bus: bus, Addr: addr}

	byName := func(line string) (gpio.PinOut, error) {
		name, ok := pins[line]
		if !ok {
			return nil, nil
		}
		pin := gpioreg.ByName(name)
		if pin == nil {
			return nil, fmt.Errorf("%w: gpio %q for %s", ErrNoDevice, name, line)
		}
		return pin, nil
	}

	cfg := ov9281.Config{
		Tx:    i2cDev.Tx,
		XVCLK: &FixedClock{Rate: ov9281.XVCLKFreq},
		Log:   logFunc,
	}

	if cfg.Reset, err = byName("reset"); err != nil {
		bus.Close()
		return nil, err
	}
	if cfg.Pwdn, err = byName("pwdn"); err != nil {
		bus.Close()
		return nil, err
	}

	for _, supply := range ov9281.SupplyNames {
		pin, err := byName(supply)
		if err != nil {
			bus.Close()
			return nil, err
		}
		if pin == nil {
			cfg.Supplies = append(cfg.Supplies, FixedRegulator{})
		} else {
			cfg.Supplies = append(cfg.Supplies, &PinRegulator{Pin: pin})
		}
	}

	sensor, err := ov9281.New(cfg)
	if err != nil {
		bus.Close()
		return nil, fmt.Errorf("sensoropen: sensor probe: %w", err)
	}

	return &Device{Sensor: sensor, closers: []func() error{bus.Close}}, nil
}

func getPart(parts []string, index int, def string) string {
	if index >= len(parts) {
		return def
	}
	return parts[index]
}

// parsePins splits a "reset=GPIO17,pwdn=GPIO27" list.
func parsePins(s string) (map[string]string, error) {
	pins := map[string]string{}
	if s == "" {
		return pins, nil
	}

	for _, kv := range strings.Split(s, ",") {
		k, v, ok := strings.Cut(kv, "=")
		if !ok || k == "" || v == "" {
			return nil, fmt.Errorf("sensoropen: bad pin assignment %q", kv)
		}
		pins[k] = v
	}
	return pins, nil
}

// Open opens a sensor from a ':'-separated device path:
//
//	platform:<bus>:<addr>:<pins>   e.g. platform:/dev/i2c-1:0x60:reset=GPIO17,pwdn=GPIO27
//	usb:<serial>:<addr>            e.g. usb::0x60
//
// Omitted fields take their defaults.
func Open(path string, logFunc ov9281.LogFunc) (*Device, error) {
	parts := strings.Split(path, ":")

	switch parts[0] {
	case "usb":
		serial := getPart(parts, 1, "")
		addr, err := strconv.ParseUint(getPart(parts, 2, "0x60"), 0, 8)
		if err != nil {
			return nil, err
		}
		return OpenUSB(serial, uint16(addr), logFunc)

	case "platform":
		bus := getPart(parts, 1, "/dev/i2c-1")
		addr, err := strconv.ParseUint(getPart(parts, 2, "0x60"), 0, 8)
		if err != nil {
			return nil, err
		}
		pins, err := parsePins(getPart(parts, 3, ""))
		if err != nil {
			return nil, err
		}
		return OpenPlatform(bus, uint16(addr), pins, logFunc)
	}

	return nil, errors.New("sensoropen: device type not supported, use 'usb' or 'platform'")
}

// usbPin adapts one MCP2221A GPIO output to gpio.PinOut.
type usbPin struct {
	dev  *mcp2221a.MCP2221A
	pin  byte
	name string
}

func (p *usbPin) String() string   { return p.name }
func (p *usbPin) Name() string     { return p.name }
func (p *usbPin) Number() int      { return int(p.pin) }
func (p *usbPin) Function() string { return "Out" }
func (p *usbPin) Halt() error      { return nil }

func (p *usbPin) Out(l gpio.Level) error {
	v := byte(0)
	if l {
		v = 1
	}
	return p.dev.GPIO.Set(p.pin, v)
}

func (p *usbPin) PWM(d gpio.Duty, f physic.Frequency) error {
	return errors.New("not supported")
}

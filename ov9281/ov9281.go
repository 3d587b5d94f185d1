// Package ov9281 drives the Omnivision OV9281, a 1280x800 10-bit
// monochrome global-shutter image sensor with a 2-lane MIPI CSI-2 output
// and an SCCB (I²C) control channel. The package brings the sensor to an
// electrically valid state, programs the capture mode, exposes the runtime
// controls an image pipeline needs and starts/stops pixel streaming.
//
// The sensor powers up lazily: after probe it sits suspended until the
// first stream or power request, and powers back down when the last user
// is gone.
package ov9281

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/physic"

	"github.com/BertoldVdb/ov9281/runtimepm"
	"github.com/BertoldVdb/ov9281/sccb"
	"github.com/BertoldVdb/ov9281/subdev"
)

// Bus and timing constants of the only supported configuration.
const (
	LinkFreq      int64 = 400000000
	Lanes               = 2
	BitsPerSample       = 10

	// pixel rate = link frequency * 2 * lanes / bits per sample
	PixelRate = LinkFreq * 2 * Lanes / BitsPerSample

	ChipID = 0x9281
)

// XVCLKFreq is the required external clock rate. The mode table assumes it.
const XVCLKFreq = 24 * physic.MegaHertz

const (
	regChipID = 0x300a

	regCtrlMode   = 0x0100
	modeSWStandby = 0x00
	modeStreaming = 0x01

	regExposure  = 0x3500
	exposureMin  = 4
	exposureStep = 1
	vtsMax       = 0x7fff

	regGainH    = 0x3508
	regGainL    = 0x3509
	gainHMask   = 0x07
	gainHShift  = 8
	gainLMask   = 0xff
	gainMin     = 0x10
	gainMax     = 0xf8
	gainStep    = 1
	gainDefault = 0x10

	regTestPattern     = 0x5e00
	testPatternEnable  = 0x80
	testPatternDisable = 0x00

	regVTS = 0x380e

	reg8Bit  = 1
	reg16Bit = 2
	reg24Bit = 3
)

// Native and active pixel array size. Datasheet not available to confirm
// these values, so assume there are no border pixels.
const (
	nativeWidth  = 1280
	nativeHeight = 800

	pixelArrayLeft   = 0
	pixelArrayTop    = 0
	pixelArrayWidth  = 1280
	pixelArrayHeight = 800
)

// SupplyNames lists the regulators the sensor needs, in enable order.
var SupplyNames = []string{
	"avdd",  // Analog power
	"dovdd", // Digital I/O power
	"dvdd",  // Digital core power
}

// ErrWrongChip is returned by New when the chip identity readback does not
// match the OV9281.
var ErrWrongChip = errors.New("ov9281: unexpected sensor id")

type LogFunc func(format string, params ...interface{})

// Clock is the external reference clock (XVCLK) feeding the sensor.
type Clock interface {
	SetFrequency(f physic.Frequency) error
	Frequency() physic.Frequency
	Enable() error
	Disable() error
}

// Regulator is one switchable supply rail.
type Regulator interface {
	Enable() error
	Disable() error
}

// Config holds the resources the host hands to the driver.
type Config struct {
	// Tx is the SCCB transfer function, addressed to the sensor.
	Tx sccb.TxFunc

	// XVCLK is the reference clock. Required.
	XVCLK Clock

	// Reset and Pwdn are the control lines. Either may be nil on boards
	// that tie them off; the driver warns and carries on.
	Reset gpio.PinOut
	Pwdn  gpio.PinOut

	// Supplies are the rails named by SupplyNames, in that order.
	Supplies []Regulator

	// IdleDelay, when non-zero, keeps the sensor powered that long after
	// its last user leaves.
	IdleDelay time.Duration

	Log LogFunc
}

// Sensor is one OV9281. All externally invoked operations serialize on an
// internal mutex which is also the control handler lock.
type Sensor struct {
	sccb     *sccb.Conn
	xvclk    Clock
	resetPin gpio.PinOut
	pwdnPin  gpio.PinOut
	supplies []Regulator
	logFunc  LogFunc

	pm *runtimepm.PM

	mu      sync.Mutex
	handler *subdev.Handler

	exposure    *subdev.Ctrl
	analGain    *subdev.Ctrl
	digiGain    *subdev.Ctrl // never created, kept for parity with the register map
	hblank      *subdev.Ctrl
	vblank      *subdev.Ctrl
	testPattern *subdev.Ctrl

	streaming bool
	powered   bool
	curMode   *Mode
}

func (s *Sensor) log(format string, params ...interface{}) {
	if s.logFunc != nil {
		s.logFunc("ov9281: "+format, params...)
	}
}

type pmOps struct{ s *Sensor }

func (o pmOps) Resume() error  { return o.s.powerOn() }
func (o pmOps) Suspend() error { o.s.powerOff(); return nil }

// New probes the sensor: it powers it up, verifies the chip identity, sets
// up the control set and then lets the sensor suspend again so the first
// user request drives power-up.
func New(cfg Config) (*Sensor, error) {
	if cfg.Tx == nil {
		return nil, errors.New("ov9281: no bus transfer function")
	}
	if cfg.XVCLK == nil {
		return nil, errors.New("ov9281: no xvclk")
	}
	if len(cfg.Supplies) != len(SupplyNames) {
		return nil, fmt.Errorf("ov9281: need %d supplies (%v), got %d",
			len(SupplyNames), SupplyNames, len(cfg.Supplies))
	}

	s := &Sensor{
		sccb:     sccb.New(cfg.Tx),
		xvclk:    cfg.XVCLK,
		resetPin: cfg.Reset,
		pwdnPin:  cfg.Pwdn,
		supplies: cfg.Supplies,
		logFunc:  cfg.Log,
		curMode:  &supportedModes[0],
	}
	if s.resetPin == nil {
		s.log("no reset line")
	}
	if s.pwdnPin == nil {
		s.log("no pwdn line")
	}

	s.pm = runtimepm.New(pmOps{s})
	s.pm.IdleDelay = cfg.IdleDelay

	if err := s.initControls(); err != nil {
		return nil, err
	}

	if err := s.powerOn(); err != nil {
		return nil, err
	}

	if err := s.checkSensorID(); err != nil {
		s.powerOff()
		return nil, err
	}

	s.pm.SetActive()
	s.pm.Enable()
	s.pm.Idle()

	return s, nil
}

// Close shuts the sensor down. Pending PM state is resolved by forcing a
// power-off if the device is not already suspended.
func (s *Sensor) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.pm.Disable()
	if !s.pm.Suspended() {
		s.powerOff()
	}
	return nil
}

func (s *Sensor) checkSensorID() error {
	id, err := s.sccb.ReadReg(regChipID+1, reg8Bit)
	if err == nil {
		var msb uint32
		msb, err = s.sccb.ReadReg(regChipID, reg8Bit)
		id |= msb << 8
	}
	if err != nil {
		return fmt.Errorf("%w: %v", ErrWrongChip, err)
	}
	if id != ChipID {
		return fmt.Errorf("%w: 0x%04x", ErrWrongChip, id)
	}

	s.log("detected OV%06x sensor", ChipID)
	return nil
}

// SetPower takes or drops an explicit power reference. Repeated calls with
// the same state are no-ops.
func (s *Sensor) SetPower(on bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.powered == on {
		return nil
	}

	if on {
		if err := s.pm.Get(); err != nil {
			return err
		}
		s.powered = true
	} else {
		s.pm.Put()
		s.powered = false
	}
	return nil
}

// SetStream starts or stops pixel output. Starting programs the current
// mode, replays all control values and sets the streaming bit; stopping
// clears the streaming bit. Repeated calls with the same state are no-ops.
func (s *Sensor) SetStream(on bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if on == s.streaming {
		return nil
	}

	if on {
		if err := s.pm.Get(); err != nil {
			return err
		}
		if err := s.startStream(); err != nil {
			s.log("start stream failed while writing regs: %v", err)
			s.pm.Put()
			return err
		}
	} else {
		s.stopStream()
		s.pm.Put()
	}

	s.streaming = on
	return nil
}

// Streaming reports whether the sensor is producing frames.
func (s *Sensor) Streaming() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.streaming
}

func (s *Sensor) startStream() error {
	if err := s.sccb.WriteTable(s.curMode.Regs); err != nil {
		return err
	}

	// In case controls were set before streaming. The replay re-takes the
	// handler lock per control, so drop it across the call.
	s.mu.Unlock()
	err := s.handler.Setup()
	s.mu.Lock()
	if err != nil {
		return err
	}

	return s.sccb.WriteReg(regCtrlMode, reg8Bit, modeStreaming)
}

func (s *Sensor) stopStream() {
	// Not propagated: the PM reference must be dropped regardless.
	if err := s.sccb.WriteReg(regCtrlMode, reg8Bit, modeSWStandby); err != nil {
		s.log("stop stream: %v", err)
	}
}

// Handler exposes the control set.
func (s *Sensor) Handler() *subdev.Handler {
	return s.handler
}

package ov9281

import (
	"fmt"
	"time"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/physic"
)

// xvclkCycles converts a cycle count at the XVCLK rate into a duration,
// rounding up.
func xvclkCycles(cycles int64) time.Duration {
	mhz := int64(XVCLKFreq / physic.MegaHertz)
	us := (cycles + mhz - 1) / mhz
	return time.Duration(us) * time.Microsecond
}

func (s *Sensor) pinOut(pin gpio.PinOut, l gpio.Level) {
	if pin == nil {
		return
	}
	if err := pin.Out(l); err != nil {
		s.log("gpio %s: %v", pin, err)
	}
}

// powerOn runs the power-up sequence from the datasheet: clock, reset
// asserted, rails up, reset released, power-down released, then the
// 8192-cycle wait before the first SCCB transaction.
func (s *Sensor) powerOn() error {
	if err := s.xvclk.SetFrequency(XVCLKFreq); err != nil {
		s.log("failed to set xvclk rate (24MHz): %v", err)
	}
	if rate := s.xvclk.Frequency(); rate != XVCLKFreq {
		s.log("xvclk mismatched, modes are based on 24MHz - rate is %s", rate)
	}

	if err := s.xvclk.Enable(); err != nil {
		return fmt.Errorf("ov9281: enable xvclk: %w", err)
	}

	s.pinOut(s.resetPin, gpio.Low)

	if err := s.enableSupplies(); err != nil {
		s.xvclk.Disable()
		return err
	}

	s.pinOut(s.resetPin, gpio.High)

	time.Sleep(500 * time.Microsecond)
	s.pinOut(s.pwdnPin, gpio.High)

	// 8192 cycles prior to the first SCCB transaction.
	time.Sleep(xvclkCycles(8192))

	return nil
}

func (s *Sensor) powerOff() {
	s.pinOut(s.pwdnPin, gpio.Low)
	s.xvclk.Disable()
	s.pinOut(s.resetPin, gpio.Low)
	for i := len(s.supplies) - 1; i >= 0; i-- {
		if err := s.supplies[i].Disable(); err != nil {
			s.log("disable %s: %v", SupplyNames[i], err)
		}
	}
}

func (s *Sensor) enableSupplies() error {
	for i, r := range s.supplies {
		if err := r.Enable(); err != nil {
			for j := i - 1; j >= 0; j-- {
				s.supplies[j].Disable()
			}
			return fmt.Errorf("ov9281: enable %s: %w", SupplyNames[i], err)
		}
	}
	return nil
}

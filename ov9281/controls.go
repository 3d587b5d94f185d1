package ov9281

import (
	"github.com/BertoldVdb/ov9281/subdev"
)

var testPatternMenu = []string{
	"Disabled",
	"Vertical Color Bar Type 1",
	"Vertical Color Bar Type 2",
	"Vertical Color Bar Type 3",
	"Vertical Color Bar Type 4",
}

func (s *Sensor) initControls() error {
	h := subdev.NewHandler(&s.mu)
	s.handler = h
	mode := s.curMode

	h.NewIntMenu(subdev.CtrlLinkFreq, []int64{LinkFreq})

	h.NewStd(subdev.CtrlPixelRate, nil, 0, PixelRate, 1, PixelRate)

	hBlank := int64(mode.HTSDef - mode.Width)
	s.hblank = h.NewStd(subdev.CtrlHBlank, nil, hBlank, hBlank, 1, hBlank)
	s.hblank.ReadOnly = true

	vblankDef := int64(mode.VTSDef - mode.Height)
	s.vblank = h.NewStd(subdev.CtrlVBlank, s.setCtrl,
		vblankDef, vtsMax-int64(mode.Height), 1, vblankDef)

	exposureMax := int64(mode.VTSDef) - 4
	s.exposure = h.NewStd(subdev.CtrlExposure, s.setCtrl,
		exposureMin, exposureMax, exposureStep, int64(mode.ExpDef))

	s.analGain = h.NewStd(subdev.CtrlAnalogGain, s.setCtrl,
		gainMin, gainMax, gainStep, gainDefault)

	s.testPattern = h.NewMenu(subdev.CtrlTestPattern, s.setCtrl,
		testPatternMenu, 0)

	// The sensor has digital gain registers but no control is created for
	// them; s.digiGain stays nil.

	return h.Err()
}

// setCtrl translates one control value into register writes. It runs with
// the handler lock (== the sensor mutex) held, either from an external Set
// or from the stream-start replay.
func (s *Sensor) setCtrl(c *subdev.Ctrl) error {
	// Propagate cross-control coupling first, independent of power state.
	switch c.ID {
	case subdev.CtrlVBlank:
		// Update max exposure while meeting the expected vblanking.
		max := int64(s.curMode.Height) + c.Val() - 4
		s.exposure.ModifyRange(s.exposure.Minimum, max,
			s.exposure.Step, s.exposure.Default)
	}

	// Suspended: keep the stored value, write nothing. It is replayed on
	// the next stream start. Never force a resume for a control write.
	if !s.pm.TryGet() {
		return nil
	}
	defer s.pm.Put()

	var err error
	switch c.ID {
	case subdev.CtrlExposure:
		// 4 least significant bits of exposure are the fractional part.
		err = s.sccb.WriteReg(regExposure, reg24Bit, uint32(c.Val())<<4)
	case subdev.CtrlAnalogGain:
		err = s.sccb.WriteReg(regGainH, reg8Bit,
			uint32(c.Val()>>gainHShift)&gainHMask)
		if err == nil {
			err = s.sccb.WriteReg(regGainL, reg8Bit,
				uint32(c.Val())&gainLMask)
		}
	case subdev.CtrlVBlank:
		err = s.sccb.WriteReg(regVTS, reg16Bit,
			uint32(c.Val())+s.curMode.Height)
	case subdev.CtrlTestPattern:
		err = s.writeTestPattern(uint32(c.Val()))
	default:
		s.log("unhandled control %v=0x%x", c.ID, c.Val())
	}

	if err != nil {
		s.log("set %v: %v", c.ID, err)
	}
	return err
}

func (s *Sensor) writeTestPattern(pattern uint32) error {
	var val uint32
	if pattern != 0 {
		val = (pattern - 1) | testPatternEnable
	} else {
		val = testPatternDisable
	}
	return s.sccb.WriteReg(regTestPattern, reg8Bit, val)
}

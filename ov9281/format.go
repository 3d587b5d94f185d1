package ov9281

import (
	"fmt"

	"github.com/BertoldVdb/ov9281/subdev"
)

// FrameSize is one entry of the frame size enumeration.
type FrameSize struct {
	MinWidth  uint32
	MaxWidth  uint32
	MinHeight uint32
	MaxHeight uint32
}

// fillFormat populates f for the given frame size. The colorimetry fields
// are meaningless for a monochrome sensor but downstream consumers expect
// them populated deterministically.
func fillFormat(f *subdev.Format, width, height uint32) {
	f.Width = width
	f.Height = height
	f.Code = subdev.CodeY10
	f.Field = subdev.FieldNone
	f.Colorspace = subdev.ColorspaceSRGB
	f.YCbCrEnc = subdev.DefaultYCbCrEnc(f.Colorspace)
	f.Quantization = subdev.DefaultQuantization(true, f.Colorspace, f.YCbCrEnc)
	f.XferFunc = subdev.DefaultXferFunc(f.Colorspace)
}

// Open initializes the negotiation state of a new handle on the subdevice.
// The try format starts at the default mode. No crop or compose.
func (s *Sensor) Open() *subdev.State {
	s.mu.Lock()
	defer s.mu.Unlock()

	def := &supportedModes[0]
	st := &subdev.State{TryCrop: def.Crop}
	fillFormat(&st.TryFormat, def.Width, def.Height)
	return st
}

// SetFormat negotiates the capture format. The requested size snaps to the
// best-fitting mode; the code is always Y10. Active set also reprograms the
// blanking controls for the new mode.
func (s *Sensor) SetFormat(st *subdev.State, which subdev.Which, f *subdev.Format) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	mode := findBestFit(f.Width, f.Height)
	fillFormat(f, mode.Width, mode.Height)

	if which == subdev.WhichTry {
		st.TryFormat = *f
		return nil
	}

	s.curMode = mode

	hBlank := int64(mode.HTSDef - mode.Width)
	s.hblank.ModifyRange(hBlank, hBlank, 1, hBlank)
	if err := s.hblank.SetLocked(hBlank); err != nil {
		return err
	}

	vblankDef := int64(mode.VTSDef - mode.Height)
	s.vblank.ModifyRange(vblankDef, vtsMax-int64(mode.Height), 1, vblankDef)
	return s.vblank.SetLocked(vblankDef)
}

// GetFormat returns the current (or try) format.
func (s *Sensor) GetFormat(st *subdev.State, which subdev.Which) subdev.Format {
	s.mu.Lock()
	defer s.mu.Unlock()

	if which == subdev.WhichTry {
		return st.TryFormat
	}

	var f subdev.Format
	fillFormat(&f, s.curMode.Width, s.curMode.Height)
	return f
}

// GetSelection answers the cropping queries of the host.
func (s *Sensor) GetSelection(st *subdev.State, which subdev.Which, target subdev.Target) (subdev.Rect, error) {
	switch target {
	case subdev.TargetCrop:
		s.mu.Lock()
		defer s.mu.Unlock()
		if which == subdev.WhichTry {
			return st.TryCrop, nil
		}
		return s.curMode.Crop, nil

	case subdev.TargetNativeSize:
		return subdev.Rect{Width: nativeWidth, Height: nativeHeight}, nil

	case subdev.TargetCropDefault, subdev.TargetCropBounds:
		return subdev.Rect{
			Left:   pixelArrayLeft,
			Top:    pixelArrayTop,
			Width:  pixelArrayWidth,
			Height: pixelArrayHeight,
		}, nil
	}

	return subdev.Rect{}, fmt.Errorf("ov9281: unsupported selection target %d", target)
}

// EnumMbusCode enumerates the media bus codes the source pad produces.
func (s *Sensor) EnumMbusCode(index int) (subdev.MbusCode, error) {
	if index != 0 {
		return 0, fmt.Errorf("ov9281: no mbus code at index %d", index)
	}
	return subdev.CodeY10, nil
}

// EnumFrameSizes enumerates the discrete frame sizes of a bus code.
func (s *Sensor) EnumFrameSizes(code subdev.MbusCode, index int) (FrameSize, error) {
	if code != subdev.CodeY10 {
		return FrameSize{}, fmt.Errorf("ov9281: unsupported mbus code 0x%x", code)
	}
	if index < 0 || index >= len(supportedModes) {
		return FrameSize{}, fmt.Errorf("ov9281: no frame size at index %d", index)
	}

	m := &supportedModes[index]
	return FrameSize{
		MinWidth:  m.Width,
		MaxWidth:  m.Width,
		MinHeight: m.Height,
		MaxHeight: m.Height,
	}, nil
}

// Package subdev carries the surface a camera sensor driver exposes to the
// host media layer: media bus formats, selection rectangles, per-handle try
// state and a control handler that stores logical control values and
// dispatches them to the driver under a shared lock.
package subdev

// MbusCode identifies the pixel layout on the media bus.
type MbusCode uint32

// CodeY10 is 10-bit greyscale, one pixel per sample.
const CodeY10 MbusCode = 0x200a

// Field is the interlacing mode.
type Field uint32

const FieldNone Field = 1 // progressive

// Colorspace and its derived colorimetry fields. A monochrome sensor still
// populates all of these; downstream components expect them filled.
type (
	Colorspace   uint32
	YCbCrEnc     uint32
	Quantization uint32
	XferFunc     uint32
)

const (
	ColorspaceSRGB Colorspace = 8

	YCbCrEnc601 YCbCrEnc = 1

	QuantizationFullRange    Quantization = 1
	QuantizationLimitedRange Quantization = 2

	XferFuncSRGB XferFunc = 2
)

// DefaultYCbCrEnc maps a colorspace to its default YCbCr encoding.
func DefaultYCbCrEnc(c Colorspace) YCbCrEnc {
	return YCbCrEnc601
}

// DefaultQuantization maps a colorspace to its default quantization range.
// isRGB covers RGB and greyscale formats, which default to full range.
func DefaultQuantization(isRGB bool, c Colorspace, e YCbCrEnc) Quantization {
	if isRGB {
		return QuantizationFullRange
	}
	return QuantizationLimitedRange
}

// DefaultXferFunc maps a colorspace to its default transfer function.
func DefaultXferFunc(c Colorspace) XferFunc {
	return XferFuncSRGB
}

// Format describes the frames produced on a pad.
type Format struct {
	Width        uint32
	Height       uint32
	Code         MbusCode
	Field        Field
	Colorspace   Colorspace
	YCbCrEnc     YCbCrEnc
	Quantization Quantization
	XferFunc     XferFunc
}

// Rect is a selection rectangle on the pixel array.
type Rect struct {
	Left   uint32
	Top    uint32
	Width  uint32
	Height uint32
}

// Which selects between the active device state and the try state of one
// open handle.
type Which int

const (
	WhichActive Which = iota
	WhichTry
)

// Target selects which rectangle a selection query returns.
type Target int

const (
	TargetCrop Target = iota
	TargetNativeSize
	TargetCropDefault
	TargetCropBounds
)

// State is the negotiation scratch space of one open handle. Try formats
// and crops live here and never touch the device.
type State struct {
	TryFormat Format
	TryCrop   Rect
}

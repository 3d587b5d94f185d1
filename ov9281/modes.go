package ov9281

import (
	"github.com/BertoldVdb/ov9281/sccb"
	"github.com/BertoldVdb/ov9281/subdev"
)

// Mode is one supported capture configuration. HTSDef and VTSDef are the
// full line length in pixels and frame length in lines, blanking included.
type Mode struct {
	Width  uint32
	Height uint32
	HTSDef uint32
	VTSDef uint32
	ExpDef uint32
	Crop   subdev.Rect
	Regs   []sccb.RegVal
}

// Xclk 24MHz, max framerate 120fps, MIPI data rate 800Mbps per lane.
// Vendor-supplied table, programmed verbatim.
var mode1280x800Regs = []sccb.RegVal{
	{Addr: 0x0103, Val: 0x01},
	{Addr: 0x0302, Val: 0x32},
	{Addr: 0x030d, Val: 0x50},
	{Addr: 0x030e, Val: 0x02},
	{Addr: 0x3001, Val: 0x00},
	{Addr: 0x3004, Val: 0x00},
	{Addr: 0x3005, Val: 0x00},
	{Addr: 0x3006, Val: 0x04},
	{Addr: 0x3011, Val: 0x0a},
	{Addr: 0x3013, Val: 0x18},
	{Addr: 0x3022, Val: 0x01},
	{Addr: 0x3023, Val: 0x00},
	{Addr: 0x302c, Val: 0x00},
	{Addr: 0x302f, Val: 0x00},
	{Addr: 0x3030, Val: 0x04},
	{Addr: 0x3039, Val: 0x32},
	{Addr: 0x303a, Val: 0x00},
	{Addr: 0x303f, Val: 0x01},
	{Addr: 0x3500, Val: 0x00},
	{Addr: 0x3501, Val: 0x2a},
	{Addr: 0x3502, Val: 0x90},
	{Addr: 0x3503, Val: 0x08},
	{Addr: 0x3505, Val: 0x8c},
	{Addr: 0x3507, Val: 0x03},
	{Addr: 0x3508, Val: 0x00},
	{Addr: 0x3509, Val: 0x10},
	{Addr: 0x3610, Val: 0x80},
	{Addr: 0x3611, Val: 0xa0},
	{Addr: 0x3620, Val: 0x6f},
	{Addr: 0x3632, Val: 0x56},
	{Addr: 0x3633, Val: 0x78},
	{Addr: 0x3662, Val: 0x05},
	{Addr: 0x3666, Val: 0x00},
	{Addr: 0x366f, Val: 0x5a},
	{Addr: 0x3680, Val: 0x84},
	{Addr: 0x3712, Val: 0x80},
	{Addr: 0x372d, Val: 0x22},
	{Addr: 0x3731, Val: 0x80},
	{Addr: 0x3732, Val: 0x30},
	{Addr: 0x3778, Val: 0x00},
	{Addr: 0x377d, Val: 0x22},
	{Addr: 0x3788, Val: 0x02},
	{Addr: 0x3789, Val: 0xa4},
	{Addr: 0x378a, Val: 0x00},
	{Addr: 0x378b, Val: 0x4a},
	{Addr: 0x3799, Val: 0x20},
	{Addr: 0x3800, Val: 0x00},
	{Addr: 0x3801, Val: 0x00},
	{Addr: 0x3802, Val: 0x00},
	{Addr: 0x3803, Val: 0x00},
	{Addr: 0x3804, Val: 0x05},
	{Addr: 0x3805, Val: 0x0f},
	{Addr: 0x3806, Val: 0x03},
	{Addr: 0x3807, Val: 0x2f},
	{Addr: 0x3808, Val: 0x05},
	{Addr: 0x3809, Val: 0x00},
	{Addr: 0x380a, Val: 0x03},
	{Addr: 0x380b, Val: 0x20},
	{Addr: 0x380c, Val: 0x02},
	{Addr: 0x380d, Val: 0xd8},
	{Addr: 0x380e, Val: 0x03},
	{Addr: 0x380f, Val: 0x8e},
	{Addr: 0x3810, Val: 0x00},
	{Addr: 0x3811, Val: 0x08},
	{Addr: 0x3812, Val: 0x00},
	{Addr: 0x3813, Val: 0x08},
	{Addr: 0x3814, Val: 0x11},
	{Addr: 0x3815, Val: 0x11},
	{Addr: 0x3820, Val: 0x40},
	{Addr: 0x3821, Val: 0x00},
	{Addr: 0x3881, Val: 0x42},
	{Addr: 0x38b1, Val: 0x00},
	{Addr: 0x3920, Val: 0xff},
	{Addr: 0x4003, Val: 0x40},
	{Addr: 0x4008, Val: 0x04},
	{Addr: 0x4009, Val: 0x0b},
	{Addr: 0x400c, Val: 0x00},
	{Addr: 0x400d, Val: 0x07},
	{Addr: 0x4010, Val: 0x40},
	{Addr: 0x4043, Val: 0x40},
	{Addr: 0x4307, Val: 0x30},
	{Addr: 0x4317, Val: 0x00},
	{Addr: 0x4501, Val: 0x00},
	{Addr: 0x4507, Val: 0x00},
	{Addr: 0x4509, Val: 0x00},
	{Addr: 0x450a, Val: 0x08},
	{Addr: 0x4601, Val: 0x04},
	{Addr: 0x470f, Val: 0x00},
	{Addr: 0x4f07, Val: 0x00},
	{Addr: 0x4800, Val: 0x00},
	{Addr: 0x5000, Val: 0x9f},
	{Addr: 0x5001, Val: 0x00},
	{Addr: 0x5e00, Val: 0x00},
	{Addr: 0x5d00, Val: 0x07},
	{Addr: 0x5d01, Val: 0x00},
	{Addr: sccb.RegNull, Val: 0x00},
}

var supportedModes = []Mode{
	{
		Width:  1280,
		Height: 800,
		ExpDef: 0x0320,
		HTSDef: 0x05b0, // 0x2d8*2
		VTSDef: 0x038e,
		Crop: subdev.Rect{
			Left:   0,
			Top:    0,
			Width:  1280,
			Height: 800,
		},
		Regs: mode1280x800Regs,
	},
}

func resoDist(m *Mode, w, h uint32) int64 {
	dw := int64(m.Width) - int64(w)
	if dw < 0 {
		dw = -dw
	}
	dh := int64(m.Height) - int64(h)
	if dh < 0 {
		dh = -dh
	}
	return dw + dh
}

// findBestFit returns the supported mode closest to the requested size,
// earliest table entry winning ties.
func findBestFit(w, h uint32) *Mode {
	best := 0
	bestDist := int64(-1)
	for i := range supportedModes {
		dist := resoDist(&supportedModes[i], w, h)
		if bestDist == -1 || dist < bestDist {
			bestDist = dist
			best = i
		}
	}
	return &supportedModes[best]
}

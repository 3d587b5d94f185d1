package ov9281

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/BertoldVdb/ov9281/subdev"
)

func TestExposureEncoding(t *testing.T) {
	r, s := newTestSensor(t)
	require.NoError(t, s.SetStream(true))
	r.reset()

	require.NoError(t, s.Handler().SetValue(subdev.CtrlExposure, 0x0320))
	require.Equal(t, []string{"w 3500/3 3200"}, r.trace)
}

func TestAnalogGainSplit(t *testing.T) {
	r, s := newTestSensor(t)
	require.NoError(t, s.SetStream(true))

	tests := []struct {
		gain int64
		high string
		low  string
	}{
		{0x20, "w 3508/1 0", "w 3509/1 20"},
		{0xf8, "w 3508/1 0", "w 3509/1 f8"},
		{0x10, "w 3508/1 0", "w 3509/1 10"},
	}
	for _, tc := range tests {
		r.reset()
		require.NoError(t, s.Handler().SetValue(subdev.CtrlAnalogGain, tc.gain))
		require.Equal(t, []string{tc.high, tc.low}, r.trace)
	}

	require.ErrorIs(t, s.Handler().SetValue(subdev.CtrlAnalogGain, 0x0f), subdev.ErrRange)
	require.ErrorIs(t, s.Handler().SetValue(subdev.CtrlAnalogGain, 0xf9), subdev.ErrRange)
}

func TestTestPatternEncoding(t *testing.T) {
	r, s := newTestSensor(t)
	require.NoError(t, s.SetStream(true))

	want := []string{"w 5e00/1 0", "w 5e00/1 80", "w 5e00/1 81", "w 5e00/1 82", "w 5e00/1 83"}
	for i := int64(0); i <= 4; i++ {
		r.reset()
		require.NoError(t, s.Handler().SetValue(subdev.CtrlTestPattern, i))
		require.Equal(t, []string{want[i]}, r.trace)
	}

	require.ErrorIs(t, s.Handler().SetValue(subdev.CtrlTestPattern, 5), subdev.ErrRange)
}

func TestVBlankWritesVTSAndBoundsExposure(t *testing.T) {
	r, s := newTestSensor(t)
	require.NoError(t, s.SetStream(true))
	r.reset()

	require.NoError(t, s.Handler().SetValue(subdev.CtrlVBlank, 0x1000))
	require.Equal(t, []string{"w 380e/2 1320"}, r.trace) // 0x1000 + 800

	// exposure max follows: height + vblank - 4
	require.Equal(t, int64(800+0x1000-4), s.exposure.Maximum)
	require.NoError(t, s.Handler().SetValue(subdev.CtrlExposure, 0x12fc))
	require.ErrorIs(t, s.Handler().SetValue(subdev.CtrlExposure, 0x12fd), subdev.ErrRange)
}

func TestVBlankCouplingSequence(t *testing.T) {
	_, s := newTestSensor(t)

	for _, vb := range []int64{110, 0x1000, 500, 31967} {
		require.NoError(t, s.Handler().SetValue(subdev.CtrlVBlank, vb))
		require.Equal(t, int64(800)+vb-4, s.exposure.Maximum,
			fmt.Sprintf("vblank %d", vb))
	}
}

func TestSuspendedWritesAbsorbed(t *testing.T) {
	r, s := newTestSensor(t)
	r.reset()

	// Device suspended after probe: control writes must cause no traffic.
	require.NoError(t, s.Handler().SetValue(subdev.CtrlExposure, 0x100))
	require.NoError(t, s.Handler().SetValue(subdev.CtrlAnalogGain, 0x20))
	require.NoError(t, s.Handler().SetValue(subdev.CtrlVBlank, 0x200))
	require.Empty(t, r.trace)

	// Exposure bound still moved while suspended.
	require.Equal(t, int64(800+0x200-4), s.exposure.Maximum)

	// The stored values are written once on the next stream start.
	require.NoError(t, s.SetStream(true))
	writes := r.writes()
	tail := writes[len(modeWrites()):]
	require.Equal(t, []string{
		"w 380e/2 520", // vblank 0x200 -> VTS 0x200+800
		"w 3500/3 1000",
		"w 3508/1 0",
		"w 3509/1 20",
		"w 5e00/1 0",
		"w 0100/1 1",
	}, tail)
}

func TestControlRanges(t *testing.T) {
	_, s := newTestSensor(t)
	h := s.Handler()

	lf := h.Find(subdev.CtrlLinkFreq)
	require.NotNil(t, lf)
	require.Equal(t, int64(400000000), lf.IntMenuValue())
	require.ErrorIs(t, lf.Set(0), subdev.ErrReadOnly)

	pr := h.Find(subdev.CtrlPixelRate)
	require.Equal(t, int64(PixelRate), pr.Get())

	hb := h.Find(subdev.CtrlHBlank)
	require.Equal(t, int64(0x05b0-1280), hb.Get())
	require.ErrorIs(t, hb.Set(100), subdev.ErrReadOnly)

	vb := h.Find(subdev.CtrlVBlank)
	require.Equal(t, int64(0x038e-800), vb.Minimum)
	require.Equal(t, int64(0x7fff-800), vb.Maximum)

	exp := h.Find(subdev.CtrlExposure)
	require.Equal(t, int64(4), exp.Minimum)
	require.Equal(t, int64(0x038e-4), exp.Maximum)
	require.Equal(t, int64(0x0320), exp.Get())

	// No digital gain control is created.
	require.Nil(t, h.Find(subdev.CtrlDigitalGain))
	require.Nil(t, s.digiGain)
}

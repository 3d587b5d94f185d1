package subdev

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func newTestHandler() (*Handler, *[]CtrlID) {
	var mu sync.Mutex
	var trace []CtrlID
	h := NewHandler(&mu)
	return h, &trace
}

func recordSet(trace *[]CtrlID) SetFunc {
	return func(c *Ctrl) error {
		*trace = append(*trace, c.ID)
		return nil
	}
}

func TestSetValidatesRange(t *testing.T) {
	h, trace := newTestHandler()
	c := h.NewStd(CtrlExposure, recordSet(trace), 4, 906, 1, 800)
	require.NoError(t, h.Err())

	require.ErrorIs(t, c.Set(3), ErrRange)
	require.ErrorIs(t, c.Set(907), ErrRange)
	require.Empty(t, *trace)
	require.Equal(t, int64(800), c.Get())

	require.NoError(t, c.Set(500))
	require.Equal(t, []CtrlID{CtrlExposure}, *trace)
	require.Equal(t, int64(500), c.Get())
}

func TestReadOnlyRejectsExternalSet(t *testing.T) {
	h, _ := newTestHandler()
	c := h.NewStd(CtrlHBlank, nil, 176, 176, 1, 176)
	c.ReadOnly = true

	require.ErrorIs(t, c.Set(176), ErrReadOnly)

	h.Lock.Lock()
	require.NoError(t, c.SetLocked(176))
	h.Lock.Unlock()
}

func TestModifyRangeClampsValue(t *testing.T) {
	h, trace := newTestHandler()
	c := h.NewStd(CtrlExposure, recordSet(trace), 4, 906, 1, 800)
	require.NoError(t, c.Set(900))
	*trace = nil

	h.Lock.Lock()
	c.ModifyRange(4, 500, 1, 400)
	h.Lock.Unlock()

	// Clamped without a setter dispatch.
	require.Equal(t, int64(500), c.Get())
	require.Empty(t, *trace)
}

func TestSetupReplaysInOrder(t *testing.T) {
	h, trace := newTestHandler()
	h.NewIntMenu(CtrlLinkFreq, []int64{400000000})
	h.NewStd(CtrlPixelRate, nil, 0, 160000000, 1, 160000000)
	h.NewStd(CtrlVBlank, recordSet(trace), 110, 31967, 1, 110)
	h.NewStd(CtrlExposure, recordSet(trace), 4, 906, 1, 800)
	h.NewMenu(CtrlTestPattern, recordSet(trace), []string{"Disabled", "Type 1"}, 0)
	require.NoError(t, h.Err())

	require.NoError(t, h.Setup())
	require.Equal(t, []CtrlID{CtrlVBlank, CtrlExposure, CtrlTestPattern}, *trace)
}

func TestIntMenu(t *testing.T) {
	h, _ := newTestHandler()
	c := h.NewIntMenu(CtrlLinkFreq, []int64{400000000})
	require.NoError(t, h.Err())

	require.Equal(t, int64(400000000), c.IntMenuValue())
	require.ErrorIs(t, c.Set(0), ErrReadOnly)
}

func TestHandlerStickyError(t *testing.T) {
	h, _ := newTestHandler()
	h.NewStd(CtrlExposure, nil, 10, 4, 1, 4) // min > max
	h.NewStd(CtrlVBlank, nil, 0, 10, 1, 5)
	require.Error(t, h.Err())
}

func TestSetValueByID(t *testing.T) {
	h, trace := newTestHandler()
	h.NewStd(CtrlAnalogGain, recordSet(trace), 0x10, 0xf8, 1, 0x10)

	require.NoError(t, h.SetValue(CtrlAnalogGain, 0x20))
	require.ErrorIs(t, h.SetValue(CtrlDigitalGain, 1), ErrNoCtrl)
}

package sccb

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

type txRecord struct {
	w []byte
	r int
}

type fakeBus struct {
	log  []txRecord
	read []byte
	err  error
}

func (f *fakeBus) tx(w, r []byte) error {
	f.log = append(f.log, txRecord{w: append([]byte(nil), w...), r: len(r)})
	if f.err != nil {
		return f.err
	}
	copy(r, f.read)
	return nil
}

func TestWriteRegEncoding(t *testing.T) {
	tests := []struct {
		reg  uint16
		size int
		val  uint32
		want []byte
	}{
		{0x0100, 1, 0x01, []byte{0x01, 0x00, 0x01}},
		{0x380e, 2, 0x1320, []byte{0x38, 0x0e, 0x13, 0x20}},
		{0x3500, 3, 0x003200, []byte{0x35, 0x00, 0x00, 0x32, 0x00}},
		{0x3500, 4, 0xdeadbeef, []byte{0x35, 0x00, 0xde, 0xad, 0xbe, 0xef}},
	}

	for _, tc := range tests {
		bus := &fakeBus{}
		c := New(bus.tx)
		require.NoError(t, c.WriteReg(tc.reg, tc.size, tc.val))
		require.Len(t, bus.log, 1)
		require.Equal(t, tc.want, bus.log[0].w)
		require.Zero(t, bus.log[0].r)
	}
}

func TestWriteRegBadSize(t *testing.T) {
	bus := &fakeBus{}
	c := New(bus.tx)

	require.ErrorIs(t, c.WriteReg(0x0100, 0, 0), ErrValueSize)
	require.ErrorIs(t, c.WriteReg(0x0100, 5, 0), ErrValueSize)
	// Value wider than the declared size.
	require.ErrorIs(t, c.WriteReg(0x0100, 1, 0x100), ErrValueSize)
	require.Empty(t, bus.log)
}

func TestWriteRegIOError(t *testing.T) {
	busErr := errors.New("nack")
	c := New((&fakeBus{err: busErr}).tx)

	err := c.WriteReg(0x0100, 1, 1)
	require.ErrorIs(t, err, busErr)
}

func TestReadRegRepeatedStart(t *testing.T) {
	bus := &fakeBus{read: []byte{0x92, 0x81}}
	c := New(bus.tx)

	val, err := c.ReadReg(0x300a, 2)
	require.NoError(t, err)
	require.Equal(t, uint32(0x9281), val)

	// One transaction: 2-byte address write plus a 2-byte read.
	require.Len(t, bus.log, 1)
	require.Equal(t, []byte{0x30, 0x0a}, bus.log[0].w)
	require.Equal(t, 2, bus.log[0].r)
}

func TestReadRegBadSize(t *testing.T) {
	c := New((&fakeBus{}).tx)

	_, err := c.ReadReg(0x300a, 0)
	require.ErrorIs(t, err, ErrValueSize)
	_, err = c.ReadReg(0x300a, 5)
	require.ErrorIs(t, err, ErrValueSize)
}

func TestWriteTableStopsAtSentinel(t *testing.T) {
	bus := &fakeBus{}
	c := New(bus.tx)

	table := []RegVal{
		{0x0103, 0x01},
		{0x0302, 0x32},
		{RegNull, 0x00},
		{0x3500, 0xaa}, // must never be written
	}
	require.NoError(t, c.WriteTable(table))
	require.Len(t, bus.log, 2)
	require.Equal(t, []byte{0x01, 0x03, 0x01}, bus.log[0].w)
	require.Equal(t, []byte{0x03, 0x02, 0x32}, bus.log[1].w)
}

func TestWriteTableStopsAtFirstError(t *testing.T) {
	busErr := errors.New("bus gone")
	bus := &fakeBus{}
	calls := 0
	c := New(func(w, r []byte) error {
		calls++
		if calls == 2 {
			return busErr
		}
		return bus.tx(w, r)
	})

	table := []RegVal{
		{0x0103, 0x01},
		{0x0302, 0x32},
		{0x030d, 0x50},
		{RegNull, 0x00},
	}
	require.ErrorIs(t, c.WriteTable(table), busErr)
	require.Equal(t, 2, calls)
}

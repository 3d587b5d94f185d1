// Package sccb implements the register transport of Omnivision sensors:
// 16-bit register addresses carrying 1 to 4 byte big-endian values over an
// I²C-compatible bus. The bus itself is injected as a transfer function so
// the same code runs on a platform controller, a USB bridge or a test fake.
package sccb

import (
	"errors"
	"fmt"
)

// TxFunc performs one bus transaction: write w, then read len(r) bytes into
// r using a repeated start. Either slice may be empty. This matches the
// shape of periph.io conn.Conn.Tx.
type TxFunc func(w, r []byte) error

// ErrValueSize is returned when a register access specifies a value width
// outside 1..4 bytes, or a value that does not fit the width.
var ErrValueSize = errors.New("sccb: invalid value size")

// RegVal is one entry of a register table.
type RegVal struct {
	Addr uint16
	Val  uint8
}

// RegNull terminates a register table.
const RegNull uint16 = 0xFFFF

// Conn talks to one device on the bus.
type Conn struct {
	tx TxFunc
}

func New(tx TxFunc) *Conn {
	return &Conn{tx: tx}
}

// WriteReg writes the low size bytes of val to reg, most significant byte
// first. size must be 1..4.
func (c *Conn) WriteReg(reg uint16, size int, val uint32) error {
	if size < 1 || size > 4 {
		return ErrValueSize
	}
	if size < 4 && val>>(8*size) != 0 {
		return ErrValueSize
	}

	buf := make([]byte, size+2)
	buf[0] = byte(reg >> 8)
	buf[1] = byte(reg)
	for i := 0; i < size; i++ {
		buf[2+i] = byte(val >> (8 * (size - 1 - i)))
	}

	if err := c.tx(buf, nil); err != nil {
		return fmt.Errorf("sccb: write reg 0x%04x: %w", reg, err)
	}
	return nil
}

// ReadReg reads size bytes (1..4) from reg and assembles them as a
// big-endian integer. The address write and the data read happen in a
// single transaction with a repeated start.
func (c *Conn) ReadReg(reg uint16, size int) (uint32, error) {
	if size < 1 || size > 4 {
		return 0, ErrValueSize
	}

	addr := [2]byte{byte(reg >> 8), byte(reg)}
	data := make([]byte, size)
	if err := c.tx(addr[:], data); err != nil {
		return 0, fmt.Errorf("sccb: read reg 0x%04x: %w", reg, err)
	}

	var val uint32
	for _, b := range data {
		val = val<<8 | uint32(b)
	}
	return val, nil
}

// WriteTable writes a RegNull-terminated register table in order, one 8-bit
// write per entry, and stops at the first failure.
func (c *Conn) WriteTable(regs []RegVal) error {
	for _, r := range regs {
		if r.Addr == RegNull {
			break
		}
		if err := c.WriteReg(r.Addr, 1, uint32(r.Val)); err != nil {
			return err
		}
	}
	return nil
}

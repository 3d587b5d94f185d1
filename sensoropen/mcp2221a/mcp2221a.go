// Package mcp2221a drives the USB HID interface of the Microchip MCP2221A
// USB to I²C/GPIO protocol converter. Only the subset needed to talk to a
// camera sensor is implemented: the I²C engine and the GPIO output pins used
// for the reset and power-down lines.
//
// Datasheet: http://ww1.microchip.com/downloads/en/devicedoc/20005565b.pdf
package mcp2221a

// Derived from https://github.com/ardnew/mcp2221a
// MIT License
//
// Copyright (c) 2020 ardnew
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in all
// copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
// SOFTWARE.

import (
	"fmt"
	"time"

	usb "github.com/karalabe/hid"
)

// VID and PID are the official vendor and product identifiers assigned by the
// USB-IF.
const (
	VID = 0x04D8 // 16-bit vendor ID for Microchip Technology Inc.
	PID = 0x00DD // 16-bit product ID for the Microchip MCP2221A.
)

// MsgSz is the size (in bytes) of all command and response messages.
const MsgSz = 64

// ClkHz is the internal clock frequency of the MCP2221A.
const ClkHz = 12000000

// WordSet and WordClr are the logical true and false values for a single word
// (byte) in a message.
const (
	WordSet byte = 0xFF
	WordClr byte = 0x00
)

// Command bytes. Sent as the first word of a command message and echoed back
// as the first word of the response.
const (
	cmdStatus    byte = 0x10
	cmdSetParams byte = 0x10

	cmdI2CWrite        byte = 0x90
	cmdI2CRead         byte = 0x91
	cmdI2CReadRepStart byte = 0x93
	cmdI2CReadGetData  byte = 0x40

	cmdGPIOSet byte = 0x50

	cmdReset byte = 0x70
)

// makeMsg creates a new zero'd slice with the required length of command and
// response messages, both of which are always 64 bytes.
func makeMsg() []byte { return make([]byte, MsgSz) }

// MCP2221A is the primary object used for interacting with the device. All
// USB communication goes through the embedded HID device; use the I2C and
// GPIO modules rather than writing to it directly. Call Close() when done.
type MCP2221A struct {
	Device *usb.Device

	GPIO *GPIO // 4x GPIO pins
	I2C  *I2C  // dedicated I²C SDA/SCL pins, up to 400 kHz
}

// AttachedDevices returns a slice of all connected USB HID device descriptors
// matching the given VID and PID.
func AttachedDevices(vid uint16, pid uint16) []usb.DeviceInfo {
	var info []usb.DeviceInfo

	for _, i := range usb.Enumerate(vid, pid) {
		info = append(info, i)
	}

	return info
}

// NewFromDev wraps an already-opened HID device.
func NewFromDev(dev *usb.Device) (*MCP2221A, error) {
	mcp := &MCP2221A{Device: dev}

	// the modules embed the common *MCP2221A instance so that they can refer
	// to each others' functions.
	mcp.GPIO, mcp.I2C = &GPIO{mcp}, &I2C{mcp}

	return mcp, nil
}

// New opens the idx'th attached device with the given VID and PID (an index
// of 0 uses the first device found).
func New(idx byte, vid uint16, pid uint16) (*MCP2221A, error) {
	info := AttachedDevices(vid, pid)
	if int(idx) >= len(info) {
		return nil, fmt.Errorf("device index %d out of range [0, %d]", idx, len(info)-1)
	}

	dev, err := info[idx].Open()
	if err != nil {
		return nil, err
	}

	return NewFromDev(dev)
}

func (mcp *MCP2221A) valid() (bool, error) {
	if mcp == nil {
		return false, fmt.Errorf("nil MCP2221A")
	}

	if mcp.Device == nil {
		return false, fmt.Errorf("nil USB HID device")
	}

	return true, nil
}

// Close closes the USB HID connection.
func (mcp *MCP2221A) Close() error {
	if ok, err := mcp.valid(); !ok {
		return err
	}

	return mcp.Device.Close()
}

// send transmits a command message and returns the response message. The data
// argument is a byte slice created by makeMsg(); the cmd byte is inserted at
// the appropriate position automatically.
//
// If any data was read from the device, that slice is returned along with an
// error if fewer than expected bytes were received or if the status byte does
// not indicate success.
func (mcp *MCP2221A) send(cmd byte, data []byte) ([]byte, error) {
	if ok, err := mcp.valid(); !ok {
		return nil, err
	}

	data[0] = cmd
	if _, err := mcp.Device.Write(data); err != nil {
		return nil, fmt.Errorf("Write([cmd=0x%02X]): %v", cmd, err)
	}

	if cmd == cmdReset {
		// reset is the only command that does not have a response packet
		return nil, nil
	}

	rsp := makeMsg()
	recv, err := mcp.Device.Read(rsp)
	if err != nil {
		return nil, fmt.Errorf("Read([cmd=0x%02X]): %v", cmd, err)
	}
	if recv < MsgSz {
		return rsp, fmt.Errorf("Read([cmd=0x%02X]): short read (%d of %d bytes)", cmd, recv, MsgSz)
	}
	if rsp[0] != cmd || rsp[1] != WordClr {
		return rsp, fmt.Errorf("Read([cmd=0x%02X]): command failed", cmd)
	}

	return rsp, nil
}

// status holds the fields of a parsed status response that the I²C engine
// needs to sequence transfers.
type status struct {
	ok        bool
	i2cCancel byte
	i2cSpdChg byte
	i2cState  byte
}

func parseStatus(msg []byte) *status {
	if msg == nil || len(msg) < MsgSz {
		return nil
	}
	return &status{
		ok:        msg[1] == 0,
		i2cCancel: msg[2],
		i2cSpdChg: msg[3],
		i2cState:  msg[8],
	}
}

// status sends a status command request and parses the response.
func (mcp *MCP2221A) status() (*status, error) {
	if ok, err := mcp.valid(); !ok {
		return nil, err
	}

	cmd := makeMsg()
	rsp, err := mcp.send(cmdStatus, cmd)
	if err != nil {
		return nil, fmt.Errorf("send(): %v", err)
	}
	return parseStatus(rsp), nil
}

// GPIO contains the methods associated with the GPIO module of the MCP2221A.
type GPIO struct {
	*MCP2221A
}

// GPPinCount is the number of GPIO pins available.
const GPPinCount = 4

// Set drives a given pin as a digital output with the given value.
//
// Returns an error if the receiver is invalid, the pin index is invalid, or
// if the pin value could not be set (e.g. pin not configured for GPIO
// operation).
func (mod *GPIO) Set(pin byte, val byte) error {
	if ok, err := mod.valid(); !ok {
		return err
	}

	if pin >= GPPinCount {
		return fmt.Errorf("invalid GPIO pin: %d", pin)
	}

	cmd := makeMsg()

	i := 2 + 4*pin
	cmd[i+0] = WordSet // alter output value (to val)
	cmd[i+1] = val
	cmd[i+2] = WordSet // alter GPIO direction (to output)
	cmd[i+3] = 0x00    // output

	if _, err := mod.send(cmdGPIOSet, cmd); err != nil {
		return fmt.Errorf("send(): %v", err)
	}

	return nil
}

// I2C contains the methods associated with the I²C module of the MCP2221A.
type I2C struct {
	*MCP2221A
}

// I2CBaudRate is the default I²C baud rate.
const I2CBaudRate = 100000

// Internal I²C engine constants. The state machine values come from the
// datasheet and the Adafruit Blinka mcp2221 driver.
const (
	i2cReadMax  = 60 // maximum number of bytes per read chunk
	i2cWriteMax = 60 // maximum number of bytes per write chunk

	i2cStateStartTimeout    byte = 0x12
	i2cStateRepStartTimeout byte = 0x17
	i2cStateStopTimeout     byte = 0x62

	i2cStateAddrTimeout byte = 0x23
	i2cStateAddrNACK    byte = 0x25

	i2cStatePartialData  byte = 0x41
	i2cStateWriteTimeout byte = 0x44
	i2cStateReadTimeout  byte = 0x52
	i2cStateReadPartial  byte = 0x54
	i2cStateReadComplete byte = 0x55

	i2cStateReadError byte = 0x7F

	i2cReadRetry  = 50
	i2cWriteRetry = 50
)

func i2cStateNACK(state byte) bool {
	return state == i2cStateAddrNACK
}

func i2cStateTimeout(state byte) bool {
	return state == i2cStateStartTimeout ||
		state == i2cStateRepStartTimeout ||
		state == i2cStateStopTimeout ||
		state == i2cStateReadTimeout ||
		state == i2cStateWriteTimeout ||
		state == i2cStateAddrTimeout
}

// SetConfig configures the I²C bus clock divider calculated from a given baud
// rate (BPS). If in doubt, use I2CBaudRate. The setting is not retained
// across device resets.
func (mod *I2C) SetConfig(baud uint32) error {
	if ok, err := mod.valid(); !ok {
		return err
	}

	if baud > ClkHz/3 || baud < ClkHz/258 {
		return fmt.Errorf("invalid baud rate: %d", baud)
	}

	cmd := makeMsg()
	cmd[3] = 0x20
	cmd[4] = byte(ClkHz/baud - 3)

	rsp, err := mod.send(cmdSetParams, cmd)
	if err != nil {
		return fmt.Errorf("send(): %v", err)
	}
	if stat := parseStatus(rsp); stat.i2cSpdChg == 0x21 {
		return fmt.Errorf("transfer in progress")
	}

	return nil
}

// Cancel aborts any I²C transfer currently in progress.
func (mod *I2C) Cancel() error {
	if ok, err := mod.valid(); !ok {
		return err
	}

	cmd := makeMsg()
	cmd[2] = 0x10

	rsp, err := mod.send(cmdSetParams, cmd)
	if err != nil {
		return fmt.Errorf("send(): %v", err)
	}
	if stat := parseStatus(rsp); stat.i2cCancel == 0x10 {
		time.Sleep(300 * time.Microsecond)
	}

	return nil
}

// Write writes raw data to the I²C bus. A STOP condition is generated after
// the last byte only when stop is true; otherwise the bus remains active for
// a subsequent repeated-start read.
func (mod *I2C) Write(stop bool, addr uint8, out []byte) error {
	cnt := uint16(len(out))
	if cnt == 0 {
		return nil
	}

	stat, err := mod.status()
	if err != nil {
		return fmt.Errorf("status(): %v", err)
	}

	if stat.i2cState != WordClr {
		if err := mod.Cancel(); err != nil {
			return fmt.Errorf("I2C.Cancel(): %v", err)
		}
	}

	// The no-stop variant (0x94) is only needed for chunked transfers, which
	// register writes never are; a write-then-read still uses cmdI2CWrite for
	// the pointer because the read side issues a repeated start.
	pos := uint16(0)
	for pos < cnt {
		sz := cnt - pos
		if sz > i2cWriteMax {
			sz = i2cWriteMax
		}

		cmd := makeMsg()
		cmd[1] = byte(cnt & 0xFF)
		cmd[2] = byte((cnt >> 8) & 0xFF)
		cmd[3] = addr << 1
		copy(cmd[4:], out[pos:pos+sz])

		retry := 0
		for ; retry < i2cWriteRetry; retry++ {
			rsp, err := mod.send(cmdI2CWrite, cmd)
			if err == nil {
				for mod.writingPartial() {
					time.Sleep(300 * time.Microsecond)
				}
				pos += sz
				break
			}
			if rsp != nil {
				if i2cStateNACK(rsp[2]) {
					return fmt.Errorf("send(): I²C NACK from address (0x%02X)", addr)
				}
				if i2cStateTimeout(rsp[2]) {
					return fmt.Errorf("send(): I²C write timed out")
				}
			} else {
				return fmt.Errorf("send(): %v", err)
			}
			time.Sleep(300 * time.Microsecond)
		}
		if retry >= i2cWriteRetry {
			return fmt.Errorf("too many retries")
		}
	}

	// Wait for the engine to go idle so back-to-back transfers don't trip
	// over each other.
	for retry := 0; retry < i2cWriteRetry; retry++ {
		stat, err := mod.status()
		if err != nil {
			return fmt.Errorf("status(): %v", err)
		}
		if stat.i2cState == WordClr {
			break
		}
		if i2cStateNACK(stat.i2cState) {
			return fmt.Errorf("status(): I²C NACK from address (0x%02X)", addr)
		}
		if i2cStateTimeout(stat.i2cState) {
			return fmt.Errorf("status(): I²C write timed out")
		}
		time.Sleep(300 * time.Microsecond)
	}

	return nil
}

// writingPartial reports whether the engine is still shifting out a partial
// write. Errors are not handled here; if one persists the idle loop in
// Write() returns it to the caller.
func (mod *I2C) writingPartial() bool {
	stat, err := mod.status()
	return err == nil && stat.i2cState == i2cStatePartialData
}

// Read reads cnt raw bytes from the I²C bus. If rep is true a repeated-start
// condition is generated instead of the usual START, for reading from a slave
// subaddress set up by a preceding Write() without stop.
func (mod *I2C) Read(rep bool, addr uint8, cnt uint16) ([]byte, error) {
	if ok, err := mod.valid(); !ok {
		return nil, err
	}

	if cnt == 0 {
		return []byte{}, nil
	}

	cmd := makeMsg()
	cmd[1] = byte(cnt & 0xFF)
	cmd[2] = byte((cnt >> 8) & 0xFF)
	cmd[3] = (addr << 1) | 0x01

	cmdID := cmdI2CRead
	if rep {
		cmdID = cmdI2CReadRepStart
	}

	if _, err := mod.send(cmdID, cmd); err != nil {
		return nil, fmt.Errorf("send(): %v", err)
	}

	in := make([]byte, cnt)

	pos := uint16(0)
	for pos < cnt {
		var rsp []byte

		retry := 0
		for ; retry < i2cReadRetry; retry++ {
			var err error
			cmd := makeMsg()
			if rsp, err = mod.send(cmdI2CReadGetData, cmd); err != nil {
				return nil, fmt.Errorf("send(): %v", err)
			}
			if rsp[1] == i2cStatePartialData || rsp[3] == i2cStateReadError {
				time.Sleep(300 * time.Microsecond)
				continue
			}
			if i2cStateNACK(rsp[2]) {
				return nil, fmt.Errorf("send(): I²C NACK from address (0x%02X)", addr)
			}
			if (rsp[2] == WordClr && rsp[3] == 0) ||
				rsp[2] == i2cStateReadPartial || rsp[2] == i2cStateReadComplete {
				break
			}
		}
		if retry >= i2cReadRetry {
			return nil, fmt.Errorf("too many retries")
		}

		sz := cnt - pos
		if sz > i2cReadMax {
			sz = i2cReadMax
		}
		copy(in[pos:], rsp[4:4+sz])
		pos += sz
	}

	return in, nil
}

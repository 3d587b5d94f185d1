package sensoropen

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/physic"

	"github.com/BertoldVdb/ov9281/ov9281"
)

func TestFixedClock(t *testing.T) {
	c := &FixedClock{Rate: ov9281.XVCLKFreq}

	require.Equal(t, ov9281.XVCLKFreq, c.Frequency())
	require.NoError(t, c.SetFrequency(ov9281.XVCLKFreq))
	require.Error(t, c.SetFrequency(25*physic.MegaHertz))
	require.NoError(t, c.Enable())
	require.NoError(t, c.Disable())
}

type recordPin struct {
	levels []gpio.Level
	err    error
}

func (p *recordPin) String() string   { return "rec" }
func (p *recordPin) Name() string     { return "rec" }
func (p *recordPin) Number() int      { return -1 }
func (p *recordPin) Function() string { return "Out" }
func (p *recordPin) Halt() error      { return nil }

func (p *recordPin) Out(l gpio.Level) error {
	if p.err != nil {
		return p.err
	}
	p.levels = append(p.levels, l)
	return nil
}

func (p *recordPin) PWM(d gpio.Duty, f physic.Frequency) error {
	return errors.New("not supported")
}

func TestPinRegulator(t *testing.T) {
	pin := &recordPin{}
	r := &PinRegulator{Pin: pin}

	require.NoError(t, r.Enable())
	require.NoError(t, r.Disable())
	require.Equal(t, []gpio.Level{gpio.High, gpio.Low}, pin.levels)

	pin.err = errors.New("stuck")
	require.Error(t, r.Enable())
}

func TestParsePins(t *testing.T) {
	pins, err := parsePins("reset=GPIO17,pwdn=GPIO27,avdd=GPIO5")
	require.NoError(t, err)
	require.Equal(t, map[string]string{
		"reset": "GPIO17",
		"pwdn":  "GPIO27",
		"avdd":  "GPIO5",
	}, pins)

	pins, err = parsePins("")
	require.NoError(t, err)
	require.Empty(t, pins)

	_, err = parsePins("reset")
	require.Error(t, err)
	_, err = parsePins("=GPIO17")
	require.Error(t, err)
}

func TestGetPart(t *testing.T) {
	parts := []string{"platform", "/dev/i2c-1"}
	require.Equal(t, "/dev/i2c-1", getPart(parts, 1, "x"))
	require.Equal(t, "0x60", getPart(parts, 2, "0x60"))
}

func TestOpenRejectsBadPaths(t *testing.T) {
	_, err := Open("serial:/dev/ttyUSB0", nil)
	require.Error(t, err)

	_, err = Open("usb:sn:notanumber", nil)
	require.Error(t, err)

	_, err = Open("platform:/dev/i2c-1:0x60:reset", nil)
	require.Error(t, err)
}

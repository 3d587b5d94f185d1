// Command ov9281ctl brings up an OV9281 sensor, applies capture controls
// and optionally streams for a while. It is mainly a bring-up and board
// debugging tool.
package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"github.com/BertoldVdb/ov9281/ov9281"
	"github.com/BertoldVdb/ov9281/sensoropen"
	"github.com/BertoldVdb/ov9281/subdev"
)

type config struct {
	Device   string   `yaml:"device"`
	LogLevel string   `yaml:"loglevel"`
	Exposure int64    `yaml:"exposure"`
	Gain     int64    `yaml:"gain"`
	VBlank   int64    `yaml:"vblank"`
	Pattern  int64    `yaml:"pattern"`
	Stream   duration `yaml:"stream"`
}

// duration accepts the flag syntax ("5s", "1m30s") in the config file;
// yaml.v3 has no native time.Duration handling.
type duration time.Duration

func (d *duration) UnmarshalYAML(node *yaml.Node) error {
	v, err := time.ParseDuration(node.Value)
	if err != nil {
		return fmt.Errorf("bad duration %q: %w", node.Value, err)
	}
	*d = duration(v)
	return nil
}

func defaultConfig() config {
	return config{
		Device:   "platform:/dev/i2c-1:0x60",
		LogLevel: "info",
		Exposure: -1,
		Gain:     -1,
		VBlank:   -1,
		Pattern:  -1,
	}
}

func main() {
	cfgFile := flag.String("config", "", "YAML config file")
	dev := flag.String("dev", "", "Device path (platform:<bus>:<addr>:<pins> or usb:<serial>:<addr>)")
	exposure := flag.Int64("exposure", -1, "Exposure in lines (-1 leaves the default)")
	gain := flag.Int64("gain", -1, "Analogue gain, 16 = 1x (-1 leaves the default)")
	vblank := flag.Int64("vblank", -1, "Vertical blanking in lines (-1 leaves the default)")
	pattern := flag.Int64("pattern", -1, "Test pattern index, 0 disables (-1 leaves the default)")
	stream := flag.Duration("stream", 0, "Stream for this long (0 does not stream)")
	logLevel := flag.String("loglevel", "", "Log level (trace..error)")

	flag.Parse()

	cfg := defaultConfig()
	if *cfgFile != "" {
		data, err := os.ReadFile(*cfgFile)
		if err == nil {
			err = yaml.Unmarshal(data, &cfg)
		}
		if err != nil {
			l := zerolog.New(os.Stderr)
			l.Error().Err(err).Msg("config")
			os.Exit(1)
		}
	}

	// Explicit flags win over the config file.
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "dev":
			cfg.Device = *dev
		case "exposure":
			cfg.Exposure = *exposure
		case "gain":
			cfg.Gain = *gain
		case "vblank":
			cfg.VBlank = *vblank
		case "pattern":
			cfg.Pattern = *pattern
		case "stream":
			cfg.Stream = duration(*stream)
		case "loglevel":
			cfg.LogLevel = *logLevel
		}
	})

	writer := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: "15:04:05.000"}
	lvl, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	log := zerolog.New(writer).With().Timestamp().Logger().Level(lvl)

	os.Exit(run(cfg, log))
}

func run(cfg config, log zerolog.Logger) int {
	device, err := sensoropen.Open(cfg.Device, func(format string, params ...interface{}) {
		log.Debug().Msgf(format, params...)
	})
	if err != nil {
		log.Error().Err(err).Str("device", cfg.Device).Msg("open sensor")
		return 1
	}
	defer device.Close()

	sensor := device.Sensor
	st := sensor.Open()
	f := sensor.GetFormat(st, subdev.WhichActive)
	log.Info().
		Str("chip", fmt.Sprintf("OV%04X", ov9281.ChipID)).
		Uint32("width", f.Width).Uint32("height", f.Height).
		Int64("pixel_rate", ov9281.PixelRate).
		Msg("sensor ready")

	apply := func(id subdev.CtrlID, val int64) bool {
		if val < 0 {
			return true
		}
		if err := sensor.Handler().SetValue(id, val); err != nil {
			log.Error().Err(err).Stringer("ctrl", id).Int64("value", val).Msg("set control")
			return false
		}
		log.Info().Stringer("ctrl", id).Int64("value", val).Msg("control set")
		return true
	}

	if !apply(subdev.CtrlVBlank, cfg.VBlank) ||
		!apply(subdev.CtrlExposure, cfg.Exposure) ||
		!apply(subdev.CtrlAnalogGain, cfg.Gain) ||
		!apply(subdev.CtrlTestPattern, cfg.Pattern) {
		return 1
	}

	if cfg.Stream <= 0 {
		return 0
	}

	if err := sensor.SetStream(true); err != nil {
		log.Error().Err(err).Msg("start stream")
		return 1
	}
	log.Info().Dur("duration", time.Duration(cfg.Stream)).Msg("streaming")

	closeChan := make(chan os.Signal, 1)
	signal.Notify(closeChan, os.Interrupt)

	select {
	case <-time.After(time.Duration(cfg.Stream)):
	case <-closeChan:
		log.Info().Msg("interrupted")
	}

	if err := sensor.SetStream(false); err != nil {
		log.Error().Err(err).Msg("stop stream")
		return 1
	}

	return 0
}

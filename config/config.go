// Package config loads the parkcal configuration file.
//
// Settings are read from a YAML file and may be overridden by
// PARKCAL_ prefixed environment variables, e.g. PARKCAL_MACHINE_ADDRESS.
package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/mitchellh/mapstructure"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"

	"github.com/mastercactapus/parkcal/calibration"
	"github.com/mastercactapus/parkcal/macro"
	"github.com/mastercactapus/parkcal/machine"
	"github.com/mastercactapus/parkcal/machine/duet"
	"github.com/mastercactapus/parkcal/machine/serial"
)

// EnvPrefix is the prefix of environment overrides.
const EnvPrefix = "PARKCAL"

// DefaultFile is the config file looked for when none is given.
const DefaultFile = "parkcal.yaml"

// Transports accepted by machine.transport.
const (
	TransportRRF        = "rrf"
	TransportStandalone = "standalone"
	TransportDSF        = "dsf"
	TransportSerial     = "serial"
)

type Config struct {
	Machine     MachineConfig     `mapstructure:"machine"`
	Calibration CalibrationConfig `mapstructure:"calibration"`
	Macros      MacroConfig       `mapstructure:"macros"`
	Tools       []Tool            `mapstructure:"tools"`

	// Session is the path of the calibration session file.
	Session string `mapstructure:"session"`
}

type MachineConfig struct {
	// Transport is one of rrf (HTTP, detect standalone or DSF),
	// standalone, dsf or serial.
	Transport string `mapstructure:"transport"`
	Address   string `mapstructure:"address"`
	Password  string `mapstructure:"password"`

	Port string `mapstructure:"port"`
	Baud int    `mapstructure:"baud"`

	ReplyTimeout time.Duration `mapstructure:"reply_timeout"`

	LockMacro   string  `mapstructure:"lock_macro"`
	UnlockMacro string  `mapstructure:"unlock_macro"`
	TravelFeed  float64 `mapstructure:"travel_feed"`
}

type CalibrationConfig struct {
	ManhattanOffset float64 `mapstructure:"manhattan_offset"`
	Home            bool    `mapstructure:"home"`
}

type MacroConfig struct {
	OutputDir   string  `mapstructure:"output_dir"`
	TemplateDir string  `mapstructure:"template_dir"`
	ParkFeed    float64 `mapstructure:"park_feed"`
}

// Tool describes a tool on the machine. ApproachX and ApproachY are an
// optional rough park position the wizard moves to before fine tuning.
type Tool struct {
	Number    int      `mapstructure:"number"`
	Name      string   `mapstructure:"name"`
	ApproachX *float64 `mapstructure:"approach_x"`
	ApproachY *float64 `mapstructure:"approach_y"`
}

// SetDefaults registers the default of every setting on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("machine.transport", TransportRRF)
	v.SetDefault("machine.address", "http://jubilee.local")
	v.SetDefault("machine.password", "")
	v.SetDefault("machine.port", "/dev/ttyACM0")
	v.SetDefault("machine.baud", 115200)
	v.SetDefault("machine.reply_timeout", 2*time.Minute)
	v.SetDefault("machine.lock_macro", machine.DefaultOptions.LockMacro)
	v.SetDefault("machine.unlock_macro", machine.DefaultOptions.UnlockMacro)
	v.SetDefault("machine.travel_feed", macro.DefaultOptions.TravelFeed)

	v.SetDefault("calibration.manhattan_offset", calibration.DefaultManhattanOffset)
	v.SetDefault("calibration.home", true)

	v.SetDefault("macros.output_dir", "./macros")
	v.SetDefault("macros.template_dir", "")
	v.SetDefault("macros.park_feed", macro.DefaultOptions.ParkFeed)

	v.SetDefault("session", ".parkcal/session.yaml")
}

// New returns a viper instance with defaults and environment overrides
// set, reading path if it exists. An empty path looks for parkcal.yaml in
// the working directory and the user config directory.
func New(path string) (*viper.Viper, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName(strings.TrimSuffix(DefaultFile, filepath.Ext(DefaultFile)))
		v.AddConfigPath(".")
		if dir, err := os.UserConfigDir(); err == nil {
			v.AddConfigPath(filepath.Join(dir, "parkcal"))
		}
	}

	err := v.ReadInConfig()
	var notFound viper.ConfigFileNotFoundError
	switch {
	case errors.As(err, &notFound):
		logrus.Debug("no config file found, using defaults")
	case os.IsNotExist(err):
		logrus.WithField("file", path).Debug("config file does not exist, using defaults")
	case err != nil:
		return nil, fmt.Errorf("reading config file failed (%s): %w", path, err)
	default:
		logrus.WithField("file", v.ConfigFileUsed()).Debug("loaded config")
	}
	return v, nil
}

// Decode reads the settings of v into a Config.
func Decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	err := v.Unmarshal(&cfg, func(dc *mapstructure.DecoderConfig) {
		dc.WeaklyTypedInput = true
	})
	if err != nil {
		return nil, fmt.Errorf("parsing config failed: %w", err)
	}
	if err = cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Load is New followed by Decode.
func Load(path string) (*Config, error) {
	v, err := New(path)
	if err != nil {
		return nil, err
	}
	return Decode(v)
}

// Watch calls fn with the new config each time the config file changes.
// Invalid changes are logged and skipped.
func Watch(v *viper.Viper, fn func(*Config)) {
	v.OnConfigChange(func(evt fsnotify.Event) {
		cfg, err := Decode(v)
		if err != nil {
			logrus.WithError(err).WithField("file", evt.Name).Error("config reload failed")
			return
		}
		logrus.WithField("file", evt.Name).Info("config reloaded")
		fn(cfg)
	})
	v.WatchConfig()
}

func (c *Config) Validate() error {
	switch c.Machine.Transport {
	case TransportRRF, TransportStandalone, TransportDSF:
		if c.Machine.Address == "" {
			return errors.New("machine.address is required")
		}
	case TransportSerial:
		if c.Machine.Port == "" {
			return errors.New("machine.port is required")
		}
		if c.Machine.Baud <= 0 {
			return errors.Errorf("invalid machine.baud %d", c.Machine.Baud)
		}
	default:
		return errors.Errorf("unknown machine.transport %q", c.Machine.Transport)
	}

	seen := make(map[int]bool, len(c.Tools))
	for _, t := range c.Tools {
		if t.Number < 0 {
			return errors.Errorf("invalid tool number %d", t.Number)
		}
		if seen[t.Number] {
			return errors.Errorf("tool %d defined twice", t.Number)
		}
		seen[t.Number] = true
	}
	return nil
}

// Tool returns the configured tool with the given number.
func (c *Config) Tool(n int) (Tool, bool) {
	for _, t := range c.Tools {
		if t.Number == n {
			return t, true
		}
	}
	return Tool{Number: n}, false
}

// NewCalibration starts a calibration for tool n using the configured
// name and Manhattan offset.
func (c *Config) NewCalibration(n int) calibration.ToolCalibration {
	t, _ := c.Tool(n)
	cal := calibration.New(n, t.Name)
	cal.ManhattanOffset = c.Calibration.ManhattanOffset
	return cal
}

// MachineOptions returns the options for machine.NewMachine.
func (c *Config) MachineOptions() machine.Options {
	return machine.Options{
		LockMacro:   c.Machine.LockMacro,
		UnlockMacro: c.Machine.UnlockMacro,
		TravelFeed:  c.Machine.TravelFeed,
	}
}

// MacroOptions returns the options for macro.NewGenerator.
func (c *Config) MacroOptions() macro.Options {
	return macro.Options{
		TravelFeed:  c.Machine.TravelFeed,
		ParkFeed:    c.Macros.ParkFeed,
		LockMacro:   c.Machine.LockMacro,
		UnlockMacro: c.Machine.UnlockMacro,
		TemplateDir: c.Macros.TemplateDir,
	}
}

func (c *Config) httpMode() duet.Mode {
	switch c.Machine.Transport {
	case TransportStandalone:
		return duet.ModeStandalone
	case TransportDSF:
		return duet.ModeDSF
	}
	return duet.ModeAuto
}

// Dial opens the configured transport.
func (c *Config) Dial(ctx context.Context) (machine.Adapter, error) {
	if c.Machine.Transport == TransportSerial {
		conn, err := serial.Open(c.Machine.Port, c.Machine.Baud)
		if err != nil {
			return nil, err
		}
		return conn, nil
	}

	a, err := duet.Dial(ctx, c.Machine.Address, duet.HTTPOptions{
		Mode:         c.httpMode(),
		Password:     c.Machine.Password,
		ReplyTimeout: c.Machine.ReplyTimeout,
	})
	if err != nil {
		return nil, errors.Wrapf(err, "connect %s", c.Machine.Address)
	}
	return a, nil
}

// Connect dials the machine and wraps it in a Machine. The caller must
// Close it.
func (c *Config) Connect(ctx context.Context) (*machine.Machine, error) {
	a, err := c.Dial(ctx)
	if err != nil {
		return nil, err
	}
	return machine.NewMachine(a, c.MachineOptions()), nil
}

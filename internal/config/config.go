// Package config holds the typed settings for the instrument chain: the
// GPIB-LAN controller address, the configured relay cards, the meter, and
// where results go.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/adrg/xdg"
	"github.com/spf13/pflag"

	"github.com/stabnet/muxsweep/internal/mux"
	"github.com/stabnet/muxsweep/internal/visa"
)

const (
	defaultTimeoutMS   = 5000
	defaultTermination = "\n"
	defaultGPIBAddress = 9
	defaultFunction    = "READ?"
	defaultMQTTTopic   = "muxsweep/measurements"
)

// ICSConfig addresses the GPIB-LAN controller the multiplexer hangs off.
type ICSConfig struct {
	Host        string `mapstructure:"host"`
	GPIBBoard   int    `mapstructure:"gpib_board"`
	GPIBAddress int    `mapstructure:"gpib_address"`
}

// ResourceString builds the multiplexer's VISA resource string.
func (c *ICSConfig) ResourceString() string {
	return visa.GPIBResourceString(c.Host, c.GPIBBoard, c.GPIBAddress)
}

// CardConfig is one multiplexer card as declared in the config file.
// Exclusive defaults to true; only set it false for card types that
// genuinely support multiple closed channels.
type CardConfig struct {
	Name      string `mapstructure:"name"`
	Slot      int    `mapstructure:"slot"`
	Channels  []int  `mapstructure:"channels"`
	Exclusive *bool  `mapstructure:"exclusive"`
}

// MultiplexerConfig holds the declared card set.
type MultiplexerConfig struct {
	Cards []CardConfig `mapstructure:"cards"`
}

// DMMConfig addresses the multimeter. An empty resource means no meter is
// attached; switching commands still work.
type DMMConfig struct {
	Resource string `mapstructure:"resource"`
	Function string `mapstructure:"function"`
	Digits   int    `mapstructure:"digits"`
}

// MQTTConfig enables live streaming of measurements when a broker is set.
type MQTTConfig struct {
	Broker   string `mapstructure:"broker"`
	ClientID string `mapstructure:"client_id"`
	Topic    string `mapstructure:"topic"`
}

// Config aggregates everything the CLI commands need.
type Config struct {
	ConfigFile  string            `mapstructure:"config_file"`
	TimeoutMS   int               `mapstructure:"timeout_ms"`
	Termination string            `mapstructure:"termination"`
	OutputDir   string            `mapstructure:"output_dir"`
	ICS         ICSConfig         `mapstructure:"ics"`
	Multiplexer MultiplexerConfig `mapstructure:"multiplexer"`
	DMM         DMMConfig         `mapstructure:"dmm"`
	MQTT        MQTTConfig        `mapstructure:"mqtt"`
}

// DefaultConfigFile returns the XDG location of the config file.
func DefaultConfigFile() string {
	return filepath.Join(xdg.ConfigHome, "muxsweep", "muxsweep.yaml")
}

// defaultOutputDir prefers the user's desktop so result files are easy to
// find on the lab machine, falling back to the XDG data dir.
func defaultOutputDir() string {
	if xdg.UserDirs.Desktop != "" {
		return xdg.UserDirs.Desktop
	}
	return filepath.Join(xdg.DataHome, "muxsweep")
}

// NewConfig creates a Config with defaults applied.
func NewConfig() *Config {
	return &Config{
		ConfigFile:  DefaultConfigFile(),
		TimeoutMS:   defaultTimeoutMS,
		Termination: defaultTermination,
		OutputDir:   defaultOutputDir(),
		ICS:         ICSConfig{GPIBAddress: defaultGPIBAddress},
		DMM:         DMMConfig{Function: defaultFunction},
		MQTT:        MQTTConfig{Topic: defaultMQTTTopic},
	}
}

// AddFlags adds the config-level flags to fs.
func (c *Config) AddFlags(fs *pflag.FlagSet) {
	fs.StringVar(&c.ConfigFile, "config", c.ConfigFile, "Config file to use")
	fs.IntVar(&c.TimeoutMS, "timeout-ms", c.TimeoutMS, "Instrument response timeout in milliseconds")
	fs.StringVar(&c.OutputDir, "output-dir", c.OutputDir, "Directory for result files")
}

// LoadConfig loads the config file and applies explicit flag overrides.
func (c *Config) LoadConfig() error {
	return c.LoadConfigWithFlagSet(pflag.CommandLine)
}

// LoadConfigWithFlagSet is LoadConfig with an injectable flag set for
// tests.
func (c *Config) LoadConfigWithFlagSet(fs *pflag.FlagSet) error {
	configFile := c.ConfigFile
	explicit := configFile != DefaultConfigFile()

	if _, err := os.Stat(configFile); os.IsNotExist(err) {
		if explicit {
			return fmt.Errorf("%w: %s does not exist", ErrConfigFileRead, configFile)
		}
		// default config file is optional
		configFile = ""
	}

	loader := NewConfigLoader()
	loader.SetConfigFile(configFile)
	loader.SetDefaults(map[string]any{
		"timeout_ms":       defaultTimeoutMS,
		"termination":      defaultTermination,
		"output_dir":       defaultOutputDir(),
		"ics.gpib_address": defaultGPIBAddress,
		"dmm.function":     defaultFunction,
		"mqtt.topic":       defaultMQTTTopic,
	})

	if err := loader.LoadConfigWithFlagSet(c, fs); err != nil {
		return err
	}
	c.ConfigFile = configFile

	return c.Validate()
}

// Validate checks the loaded configuration.
func (c *Config) Validate() error {
	if c.TimeoutMS <= 0 {
		return fmt.Errorf("%w: timeout_ms must be positive", ErrConfigInvalid)
	}
	if c.ICS.Host == "" {
		return fmt.Errorf("%w: ics.host is required", ErrConfigInvalid)
	}
	if _, err := c.CardSet(); err != nil {
		return fmt.Errorf("%w: %v", ErrConfigInvalid, err)
	}
	if c.DMM.Resource != "" {
		if _, err := visa.ParseResource(c.DMM.Resource); err != nil {
			return fmt.Errorf("%w: dmm.resource: %v", ErrConfigInvalid, err)
		}
	}
	return nil
}

// Timeout returns the instrument response timeout.
func (c *Config) Timeout() time.Duration {
	return time.Duration(c.TimeoutMS) * time.Millisecond
}

// SessionOptions builds the session options every instrument shares.
func (c *Config) SessionOptions() visa.Options {
	return visa.Options{
		Timeout:    c.Timeout(),
		Terminator: c.Termination,
	}
}

// HasDMM reports whether a meter is configured.
func (c *Config) HasDMM() bool {
	return c.DMM.Resource != ""
}

// HasMQTT reports whether a streaming broker is configured.
func (c *Config) HasMQTT() bool {
	return c.MQTT.Broker != ""
}

// CardSet converts the declared cards into a validated mux.CardSet.
func (c *Config) CardSet() (*mux.CardSet, error) {
	cards := make([]mux.Card, 0, len(c.Multiplexer.Cards))
	for _, cc := range c.Multiplexer.Cards {
		exclusive := true
		if cc.Exclusive != nil {
			exclusive = *cc.Exclusive
		}
		cards = append(cards, mux.Card{
			Name:      cc.Name,
			Slot:      cc.Slot,
			Channels:  cc.Channels,
			Exclusive: exclusive,
		})
	}
	return mux.NewCardSet(cards)
}

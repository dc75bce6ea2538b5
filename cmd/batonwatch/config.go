package main

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/creachadair/baton/bundle"
)

// Settings are the values watched by the program. Each field is delivered on
// its own channel, so a change to one does not disturb watchers of another.
type Settings struct {
	LogLevel string        `mapstructure:"logLevel"`
	Interval time.Duration `mapstructure:"interval"`
	Greeting string        `mapstructure:"greeting"`
}

// newConfig returns a viper instance with the program defaults, reading the
// file at path and overrides from the environment and from fs.
func newConfig(path string, fs *pflag.FlagSet) (*viper.Viper, error) {
	v := viper.New()
	v.SetDefault("logLevel", "info")
	v.SetDefault("interval", time.Second)
	v.SetDefault("greeting", "hello")

	v.SetEnvPrefix("BATON")
	v.AutomaticEnv()
	if fs != nil {
		if f := fs.Lookup("log-level"); f != nil {
			if err := v.BindPFlag("logLevel", f); err != nil {
				return nil, fmt.Errorf("binding flag: %w", err)
			}
		}
	}

	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}
	return v, nil
}

// loadSettings decodes the current settings from v.
func loadSettings(v *viper.Viper) (Settings, error) {
	var s Settings
	if err := v.Unmarshal(&s); err != nil {
		return Settings{}, fmt.Errorf("decoding settings: %w", err)
	}
	if _, err := zerolog.ParseLevel(s.LogLevel); err != nil {
		return Settings{}, fmt.Errorf("invalid log level %q: %w", s.LogLevel, err)
	}
	if s.Interval <= 0 {
		return Settings{}, fmt.Errorf("invalid interval %v", s.Interval)
	}
	return s, nil
}

// reload decodes the settings from v and sends those that changed. It
// returns the names of the settings sent.
func reload(v *viper.Viper, send *bundle.Senders) ([]string, error) {
	s, err := loadSettings(v)
	if err != nil {
		return nil, err
	}
	return send.Update(s)
}

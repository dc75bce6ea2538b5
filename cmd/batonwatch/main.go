// Program batonwatch watches a configuration file and reports changes to its
// settings as they occur.
//
// Usage:
//
//	batonwatch --config settings.yaml [--log-level debug]
//
// Each setting is delivered on its own latest-value channel. Rapid edits to
// the file are coalesced, so a slow consumer sees only the newest value of
// each setting. Settings may be overridden by BATON_* environment variables.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog"
	"github.com/spf13/pflag"

	"github.com/creachadair/baton"
	"github.com/creachadair/baton/bundle"
)

func main() {
	fs := pflag.NewFlagSet("batonwatch", pflag.ExitOnError)
	configPath := fs.String("config", "", "Path of the configuration file (required)")
	fs.String("log-level", "info", "Log level (debug, info, warn, error)")
	fs.Parse(os.Args[1:])

	log := newLogger(os.Stderr)
	if *configPath == "" {
		log.Fatal().Msg("You must provide a --config file")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, *configPath, fs, log); err != nil {
		log.Fatal().Err(err).Msg("batonwatch failed")
	}
}

func newLogger(f *os.File) zerolog.Logger {
	if isatty.IsTerminal(f.Fd()) {
		return zerolog.New(zerolog.ConsoleWriter{Out: f, TimeFormat: time.Kitchen}).With().Timestamp().Logger()
	}
	return zerolog.New(f).With().Timestamp().Logger()
}

func run(ctx context.Context, path string, fs *pflag.FlagSet, log zerolog.Logger) error {
	v, err := newConfig(path, fs)
	if err != nil {
		return err
	}
	initial, err := loadSettings(v)
	if err != nil {
		return err
	}
	applyLevel(initial.LogLevel, log)

	send, recv, err := bundle.Split(initial, baton.SkipInitial())
	if err != nil {
		return fmt.Errorf("splitting settings: %w", err)
	}
	defer send.Close()

	v.OnConfigChange(func(e fsnotify.Event) {
		changed, err := reload(v, send)
		if err != nil {
			log.Error().Err(err).Str("file", e.Name).Msg("Reload failed")
			return
		}
		log.Debug().Str("file", e.Name).Strs("changed", changed).Msg("Configuration reloaded")
	})
	v.WatchConfig()
	log.Info().Str("file", v.ConfigFileUsed()).Msg("Watching configuration")

	// The greeter reads the current values on each tick. It has its own
	// receivers, so it does not steal updates from the watcher below.
	ticker := time.NewTicker(initial.Interval)
	defer ticker.Stop()
	greet := send.Receivers()
	defer greet.Close()
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				msg, _ := bundle.Get[string](greet, "Greeting")
				log.Info().Msg(msg)
			}
		}
	}()

	wctx, cancel := context.WithCancel(ctx)
	defer cancel()
	err = recv.Watch(wctx, func(name string, val any) {
		log.Info().Str("setting", name).Interface("value", val).Msg("Setting changed")
		switch name {
		case "LogLevel":
			applyLevel(val.(string), log)
		case "Interval":
			ticker.Reset(val.(time.Duration))
		}
	})
	if errors.Is(err, context.Canceled) && ctx.Err() != nil {
		log.Info().Msg("Shutting down")
		return nil
	}
	return err
}

// applyLevel sets the global log level. The level was validated when the
// settings were loaded.
func applyLevel(s string, log zerolog.Logger) {
	lvl, err := zerolog.ParseLevel(s)
	if err != nil {
		log.Warn().Str("level", s).Msg("Ignoring invalid log level")
		return
	}
	zerolog.SetGlobalLevel(lvl)
}

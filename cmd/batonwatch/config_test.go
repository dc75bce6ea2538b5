package main

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"testing"
	"time"

	"github.com/spf13/pflag"

	"github.com/creachadair/baton"
	"github.com/creachadair/baton/bundle"
)

func writeConfig(t *testing.T, path, text string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(text), 0644); err != nil {
		t.Fatalf("Write config: %v", err)
	}
}

func TestLoadSettings(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.json")
	writeConfig(t, path, `{"greeting": "howdy", "interval": "250ms"}`)

	v, err := newConfig(path, nil)
	if err != nil {
		t.Fatalf("newConfig: unexpected error: %v", err)
	}
	got, err := loadSettings(v)
	if err != nil {
		t.Fatalf("loadSettings: unexpected error: %v", err)
	}
	want := Settings{LogLevel: "info", Interval: 250 * time.Millisecond, Greeting: "howdy"}
	if got != want {
		t.Errorf("loadSettings: got %+v, want %+v", got, want)
	}
}

func TestOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.yaml")
	writeConfig(t, path, "greeting: hi\n")
	t.Setenv("BATON_GREETING", "from env")

	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	fs.String("log-level", "info", "")
	if err := fs.Parse([]string{"--log-level", "debug"}); err != nil {
		t.Fatalf("Parse: %v", err)
	}

	v, err := newConfig(path, fs)
	if err != nil {
		t.Fatalf("newConfig: unexpected error: %v", err)
	}
	got, err := loadSettings(v)
	if err != nil {
		t.Fatalf("loadSettings: unexpected error: %v", err)
	}
	if got.Greeting != "from env" {
		t.Errorf("Greeting: got %q, want %q", got.Greeting, "from env")
	}
	if got.LogLevel != "debug" {
		t.Errorf("LogLevel: got %q, want debug", got.LogLevel)
	}
}

func TestBadConfig(t *testing.T) {
	dir := t.TempDir()
	if _, err := newConfig(filepath.Join(dir, "missing.json"), nil); err == nil {
		t.Error("newConfig with a missing file: got nil, want error")
	}

	for _, text := range []string{
		`{"logLevel": "loud"}`,
		`{"interval": "-1s"}`,
	} {
		path := filepath.Join(dir, "bad.json")
		writeConfig(t, path, text)
		v, err := newConfig(path, nil)
		if err != nil {
			t.Fatalf("newConfig: unexpected error: %v", err)
		}
		if s, err := loadSettings(v); err == nil {
			t.Errorf("loadSettings(%s): got %+v, want error", text, s)
		}
	}
}

func TestReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.json")
	writeConfig(t, path, `{"greeting": "hello", "interval": "1s"}`)

	v, err := newConfig(path, nil)
	if err != nil {
		t.Fatalf("newConfig: unexpected error: %v", err)
	}
	initial, err := loadSettings(v)
	if err != nil {
		t.Fatalf("loadSettings: unexpected error: %v", err)
	}
	send, recv, err := bundle.Split(initial, baton.SkipInitial())
	if err != nil {
		t.Fatalf("Split: unexpected error: %v", err)
	}
	defer send.Close()

	// Two edits land before anyone looks; only the last greeting is seen.
	for _, g := range []string{"bonjour", "hola"} {
		writeConfig(t, path, `{"greeting": "`+g+`", "interval": "1s"}`)
		if err := v.ReadInConfig(); err != nil {
			t.Fatalf("ReadInConfig: %v", err)
		}
		changed, err := reload(v, send)
		if err != nil {
			t.Fatalf("reload: unexpected error: %v", err)
		}
		if want := []string{"Greeting"}; !slices.Equal(changed, want) {
			t.Errorf("reload: changed %q, want %q", changed, want)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if g, err := bundle.Next[string](ctx, recv, "Greeting"); g != "hola" || err != nil {
		t.Errorf("Next Greeting: got %q, %v; want hola, nil", g, err)
	}
	if _, err := recv.Next(ctx, "Interval"); !errors.Is(err, context.Canceled) {
		t.Errorf("Next Interval: got %v, want %v", err, context.Canceled)
	}
}

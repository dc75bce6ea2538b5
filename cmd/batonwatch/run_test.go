package main

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

// logBuffer is a concurrency-safe log sink.
type logBuffer struct {
	μ   sync.Mutex
	buf bytes.Buffer
}

func (b *logBuffer) Write(p []byte) (int, error) {
	b.μ.Lock()
	defer b.μ.Unlock()
	return b.buf.Write(p)
}

func (b *logBuffer) String() string {
	b.μ.Lock()
	defer b.μ.Unlock()
	return b.buf.String()
}

func waitFor(t *testing.T, label string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(10 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("Timed out waiting for %s", label)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestRun(t *testing.T) {
	t.Cleanup(func() { zerolog.SetGlobalLevel(zerolog.DebugLevel) })

	path := filepath.Join(t.TempDir(), "settings.json")
	writeConfig(t, path, `{"greeting": "hello", "interval": "10ms"}`)

	var logs logBuffer
	log := zerolog.New(&logs)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- run(ctx, path, nil, log) }()

	contains := func(s string) func() bool {
		return func() bool { return strings.Contains(logs.String(), s) }
	}
	waitFor(t, "watch to start", contains(`"message":"Watching configuration"`))
	waitFor(t, "initial greeting", contains(`"message":"hello"`))

	// An edit to the greeting is reported, and the greeter picks it up.
	writeConfig(t, path, `{"greeting": "howdy", "interval": "10ms"}`)
	waitFor(t, "greeting change", contains(`"setting":"Greeting","value":"howdy"`))
	waitFor(t, "new greeting", contains(`"message":"howdy"`))

	// A log level change applies globally.
	writeConfig(t, path, `{"greeting": "howdy", "interval": "10ms", "logLevel": "warn"}`)
	waitFor(t, "log level change", contains(`"setting":"LogLevel","value":"warn"`))
	waitFor(t, "global level", func() bool { return zerolog.GlobalLevel() == zerolog.WarnLevel })

	// An invalid edit is rejected without stopping the program.
	writeConfig(t, path, `{"greeting": "howdy", "interval": "10ms", "logLevel": "loud"}`)
	waitFor(t, "reload error", contains(`"message":"Reload failed"`))

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("run: unexpected error: %v", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("Timed out waiting for run to exit")
	}
}

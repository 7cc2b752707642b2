package config

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWatcherReloadsOnChange(t *testing.T) {
	isolate(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "chordsync.yml")
	writeFile(t, path, "base_url: https://one.example\n")

	reloads := make(chan *Config, 4)
	w, err := NewWatcher(path, 20*time.Millisecond, func(cfg *Config, err error) {
		if err == nil {
			reloads <- cfg
		}
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Start(ctx)

	// A burst of writes collapses into a single reload of the final content.
	writeFile(t, path, "base_url: https://two.example\n")
	writeFile(t, path, "base_url: https://three.example\n")

	select {
	case cfg := <-reloads:
		assert.Equal(t, "https://three.example", cfg.BaseURL)
	case <-time.After(5 * time.Second):
		t.Fatal("no reload after config change")
	}
}

func TestWatcherReportsInvalidReload(t *testing.T) {
	isolate(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "chordsync.yml")
	writeFile(t, path, "base_url: https://one.example\n")

	errs := make(chan error, 4)
	w, err := NewWatcher(path, 10*time.Millisecond, func(cfg *Config, err error) {
		errs <- err
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Start(ctx)

	writeFile(t, path, "base_url: ftp://broken\n")

	select {
	case err := <-errs:
		assert.Error(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("no reload after config change")
	}
}

func TestWatcherIgnoresUnrelatedFiles(t *testing.T) {
	isolate(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "chordsync.yml")
	writeFile(t, path, "base_url: https://one.example\n")

	called := make(chan struct{}, 1)
	w, err := NewWatcher(path, 10*time.Millisecond, func(*Config, error) {
		called <- struct{}{}
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Start(ctx)

	writeFile(t, filepath.Join(dir, "notes.yml"), "x: 1\n")

	select {
	case <-called:
		t.Fatal("reload triggered by an unrelated file")
	case <-time.After(200 * time.Millisecond):
	}
}

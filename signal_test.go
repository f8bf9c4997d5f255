package main

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"sync/atomic"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestShutdown_FirstSignalCancelsSecondRunsCleanup(t *testing.T) {
	exited := make(chan int, 1)
	s := newShutdown(quietLogger(), func(code int) { exited <- code })

	sigCh := make(chan os.Signal, 1)
	ctx := s.watch(context.Background(), sigCh)

	partial := filepath.Join(t.TempDir(), "report.pdf.partial")
	require.NoError(t, os.WriteFile(partial, []byte("half"), 0o600))

	var released atomic.Bool

	trackCleanup(ctx, func() { _ = os.Remove(partial) })
	done := trackCleanup(ctx, func() { released.Store(true) })
	done()
	assert.Equal(t, 1, s.pending())

	sigCh <- syscall.SIGINT

	select {
	case <-ctx.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("context not cancelled by the first signal")
	}

	_, err := os.Stat(partial)
	require.NoError(t, err, "first signal leaves cleanup to the cancelled command")

	sigCh <- syscall.SIGTERM

	select {
	case code := <-exited:
		assert.Equal(t, 1, code)
	case <-time.After(2 * time.Second):
		t.Fatal("second signal did not force an exit")
	}

	_, err = os.Stat(partial)
	assert.True(t, os.IsNotExist(err), "partial download removed before exit")
	assert.False(t, released.Load(), "released cleanup never runs")
	assert.Zero(t, s.pending())
}

func TestShutdown_ParentCancelStopsWatching(t *testing.T) {
	exited := make(chan int, 1)
	s := newShutdown(quietLogger(), func(code int) { exited <- code })

	parent, cancel := context.WithCancel(context.Background())
	ctx := s.watch(parent, make(chan os.Signal))

	cancel()

	select {
	case <-ctx.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("context not cancelled with its parent")
	}

	assert.Empty(t, exited)
}

func TestTrackCleanup_NoTracker(t *testing.T) {
	ran := false
	release := trackCleanup(context.Background(), func() { ran = true })
	release()

	assert.False(t, ran)
}

func TestShutdownContext_ProcessSignal(t *testing.T) {
	parent, cancel := context.WithCancel(context.Background())
	defer cancel()

	ctx := shutdownContext(parent, quietLogger())

	require.NoError(t, syscall.Kill(os.Getpid(), syscall.SIGINT))

	select {
	case <-ctx.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("context not cancelled within 2 seconds of SIGINT")
	}

	_, ok := ctx.Value(shutdownKey{}).(*shutdown)
	assert.True(t, ok)
}

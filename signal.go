package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
)

// shutdown cancels the command on the first SIGINT/SIGTERM and exits on the
// second. Cleanup registered with trackCleanup, such as removing a .partial
// download, runs before that forced exit since deferred code will not.
type shutdown struct {
	logger *slog.Logger
	exit   func(code int)

	mu       sync.Mutex
	next     int
	cleanups map[int]func()
}

type shutdownKey struct{}

func newShutdown(logger *slog.Logger, exit func(int)) *shutdown {
	return &shutdown{logger: logger, exit: exit, cleanups: make(map[int]func())}
}

// shutdownContext wires the process signals to a new shutdown tracker.
func shutdownContext(parent context.Context, logger *slog.Logger) context.Context {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	return newShutdown(logger, os.Exit).watch(parent, sigCh)
}

// watch returns a context carrying s that is cancelled by the first signal.
func (s *shutdown) watch(parent context.Context, sigCh <-chan os.Signal) context.Context {
	ctx, cancel := context.WithCancel(context.WithValue(parent, shutdownKey{}, s))

	go func() {
		select {
		case sig := <-sigCh:
			s.logger.Info("received signal, cancelling", slog.String("signal", sig.String()))
			cancel()
		case <-ctx.Done():
			return
		}

		select {
		case sig := <-sigCh:
			s.logger.Warn("received second signal, forcing exit", slog.String("signal", sig.String()))
			s.forceExit()
		case <-parent.Done():
		}
	}()

	return ctx
}

func (s *shutdown) track(fn func()) func() {
	s.mu.Lock()
	id := s.next
	s.next++
	s.cleanups[id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.cleanups, id)
		s.mu.Unlock()
	}
}

func (s *shutdown) pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.cleanups)
}

func (s *shutdown) forceExit() {
	s.mu.Lock()
	fns := make([]func(), 0, len(s.cleanups))
	for _, fn := range s.cleanups {
		fns = append(fns, fn)
	}
	s.cleanups = make(map[int]func())
	s.mu.Unlock()

	for _, fn := range fns {
		fn()
	}

	s.exit(1)
}

// trackCleanup registers fn to run if the process is forced out while the
// returned release func has not been called. Without a tracker in ctx it
// does nothing.
func trackCleanup(ctx context.Context, fn func()) (release func()) {
	s, ok := ctx.Value(shutdownKey{}).(*shutdown)
	if !ok {
		return func() {}
	}

	return s.track(fn)
}

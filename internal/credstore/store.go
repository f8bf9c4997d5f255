// Package credstore persists session secrets (access token, refresh token,
// cached user record) in platform-appropriate storage. Every backend shares
// the same contract: reads never fail outward (a storage error reads as
// "absent"), while writes and removals surface failures as *Error so the
// caller can decide whether to proceed.
package credstore

import (
	"context"
	"errors"
	"fmt"
)

// Well-known keys.
const (
	KeyAuthToken       = "authToken"
	KeyRefreshToken    = "refreshToken"
	KeyCurrentUser     = "currentUser"
	KeyThemePreference = "themePreference"
)

// ManagedKeys is the fixed set of keys removed by Clear. The theme
// preference is owned by the UI layer and survives a logout.
var ManagedKeys = []string{KeyAuthToken, KeyRefreshToken, KeyCurrentUser}

// ErrStorage is the sentinel for any write or remove failure.
// Use errors.Is(err, credstore.ErrStorage) to check.
var ErrStorage = errors.New("credstore: storage failure")

// Store is the key/value contract implemented by every backend.
// Values are copied in and out; no live references are shared.
type Store interface {
	// Get returns the stored value and true, or "" and false when the key is
	// absent or the backend could not be read.
	Get(ctx context.Context, key string) (string, bool)
	// Set stores value under key, replacing any previous value.
	Set(ctx context.Context, key, value string) error
	// Remove deletes key. Removing an absent key succeeds.
	Remove(ctx context.Context, key string) error
	// Clear removes ManagedKeys. Clearing an empty store succeeds.
	Clear(ctx context.Context) error
}

// Error describes a failed write or remove. It wraps ErrStorage and the
// backend's own error.
type Error struct {
	Op      string // "set", "remove", "clear"
	Key     string
	Backend string
	Err     error
}

func (e *Error) Error() string {
	if e.Key == "" {
		return fmt.Sprintf("credstore: %s %s: %v", e.Backend, e.Op, e.Err)
	}

	return fmt.Sprintf("credstore: %s %s %q: %v", e.Backend, e.Op, e.Key, e.Err)
}

func (e *Error) Unwrap() []error {
	return []error{ErrStorage, e.Err}
}

// clearKeys removes each managed key, continuing past failures so a single
// bad entry cannot leave the others behind. The first failure is returned.
func clearKeys(ctx context.Context, s Store, backend string) error {
	var errs []error

	for _, key := range ManagedKeys {
		if err := s.Remove(ctx, key); err != nil {
			errs = append(errs, err)
		}
	}

	if len(errs) == 0 {
		return nil
	}

	return &Error{Op: "clear", Backend: backend, Err: errors.Join(errs...)}
}

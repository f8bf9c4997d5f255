package credstore

import (
	"context"
	"errors"
	"log/slog"

	"github.com/zalando/go-keyring"
)

// DefaultKeyringService is the service name entries are filed under.
const DefaultKeyringService = "filevault"

// KeyringStore keeps each key as a separate secret in the OS keyring
// (Keychain, Secret Service, Windows Credential Manager). The key is the
// keyring account name. Tests run against keyring.MockInit().
type KeyringStore struct {
	service string
	logger  *slog.Logger
}

// NewKeyringStore returns a store filing secrets under service.
func NewKeyringStore(service string, logger *slog.Logger) *KeyringStore {
	if service == "" {
		service = DefaultKeyringService
	}

	if logger == nil {
		logger = slog.Default()
	}

	return &KeyringStore{service: service, logger: logger}
}

func (s *KeyringStore) Get(_ context.Context, key string) (string, bool) {
	v, err := keyring.Get(s.service, key)
	if errors.Is(err, keyring.ErrNotFound) {
		return "", false
	}

	if err != nil {
		s.logger.Warn("credstore: keyring read failed, treating as absent",
			slog.String("service", s.service),
			slog.String("key", key),
			slog.String("error", err.Error()),
		)

		return "", false
	}

	return v, true
}

func (s *KeyringStore) Set(_ context.Context, key, value string) error {
	if err := keyring.Set(s.service, key, value); err != nil {
		return &Error{Op: "set", Key: key, Backend: "keyring", Err: err}
	}

	return nil
}

func (s *KeyringStore) Remove(_ context.Context, key string) error {
	err := keyring.Delete(s.service, key)
	if err == nil || errors.Is(err, keyring.ErrNotFound) {
		return nil
	}

	return &Error{Op: "remove", Key: key, Backend: "keyring", Err: err}
}

func (s *KeyringStore) Clear(ctx context.Context) error {
	return clearKeys(ctx, s, "keyring")
}

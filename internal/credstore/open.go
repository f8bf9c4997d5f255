package credstore

import (
	"context"
	"fmt"
	"log/slog"
)

// Backend names accepted by Open.
const (
	BackendFile    = "file"
	BackendKeyring = "keyring"
	BackendSQLite  = "sqlite"
	BackendMemory  = "memory"
)

// Open returns the store for backend. path is the credentials file for
// "file", the database for "sqlite", and the keyring service name for
// "keyring". Stores that hold resources (sqlite) implement io.Closer.
func Open(ctx context.Context, backend, path string, logger *slog.Logger) (Store, error) {
	switch backend {
	case BackendFile, "":
		if path == "" {
			return nil, fmt.Errorf("credstore: file backend requires a path")
		}

		return NewFileStore(path, logger), nil
	case BackendKeyring:
		return NewKeyringStore(path, logger), nil
	case BackendSQLite:
		if path == "" {
			return nil, fmt.Errorf("credstore: sqlite backend requires a path")
		}

		return OpenSQLiteStore(ctx, path, logger)
	case BackendMemory:
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("credstore: unknown backend %q", backend)
	}
}

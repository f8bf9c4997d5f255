package credstore

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zalando/go-keyring"
)

// backends returns one fresh store per backend for contract tests.
func backends(t *testing.T) map[string]Store {
	t.Helper()

	keyring.MockInit()

	sqliteStore, err := OpenSQLiteStore(context.Background(), filepath.Join(t.TempDir(), "creds.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { sqliteStore.Close() })

	return map[string]Store{
		"memory":  NewMemoryStore(),
		"file":    NewFileStore(filepath.Join(t.TempDir(), "credentials.json"), nil),
		"sqlite":  sqliteStore,
		"keyring": NewKeyringStore("filevault-test-"+t.Name(), nil),
	}
}

func TestStore_SetGet(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			require.NoError(t, s.Set(ctx, KeyAuthToken, "A1"))

			v, ok := s.Get(ctx, KeyAuthToken)
			assert.True(t, ok)
			assert.Equal(t, "A1", v)

			require.NoError(t, s.Set(ctx, KeyAuthToken, "A2"))

			v, ok = s.Get(ctx, KeyAuthToken)
			assert.True(t, ok)
			assert.Equal(t, "A2", v, "last writer wins")
		})
	}
}

func TestStore_AbsentIsDistinctFromEmpty(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			_, ok := s.Get(ctx, KeyRefreshToken)
			assert.False(t, ok)

			require.NoError(t, s.Set(ctx, KeyRefreshToken, ""))

			v, ok := s.Get(ctx, KeyRefreshToken)
			assert.True(t, ok)
			assert.Empty(t, v)
		})
	}
}

func TestStore_RemoveIsIdempotent(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			require.NoError(t, s.Remove(ctx, KeyCurrentUser))
			require.NoError(t, s.Set(ctx, KeyCurrentUser, `{"id":1}`))
			require.NoError(t, s.Remove(ctx, KeyCurrentUser))
			require.NoError(t, s.Remove(ctx, KeyCurrentUser))

			_, ok := s.Get(ctx, KeyCurrentUser)
			assert.False(t, ok)
		})
	}
}

func TestStore_ClearRemovesManagedKeysOnly(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			require.NoError(t, s.Clear(ctx), "clearing an empty store succeeds")

			require.NoError(t, s.Set(ctx, KeyAuthToken, "A1"))
			require.NoError(t, s.Set(ctx, KeyRefreshToken, "R1"))
			require.NoError(t, s.Set(ctx, KeyCurrentUser, `{"id":1}`))
			require.NoError(t, s.Set(ctx, KeyThemePreference, "dark"))

			require.NoError(t, s.Clear(ctx))
			require.NoError(t, s.Clear(ctx))

			for _, key := range ManagedKeys {
				_, ok := s.Get(ctx, key)
				assert.False(t, ok, key)
			}

			theme, ok := s.Get(ctx, KeyThemePreference)
			assert.True(t, ok)
			assert.Equal(t, "dark", theme)
		})
	}
}

func TestFileStore_Permissions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "credentials.json")
	s := NewFileStore(path, nil)

	require.NoError(t, s.Set(context.Background(), KeyAuthToken, "secret"))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(FilePerms), info.Mode().Perm())

	dirInfo, err := os.Stat(filepath.Dir(path))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(DirPerms), dirInfo.Mode().Perm())
}

func TestFileStore_CorruptFileReadsAsAbsent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "credentials.json")
	require.NoError(t, os.WriteFile(path, []byte(`{corrupt`), 0o600))

	s := NewFileStore(path, nil)

	_, ok := s.Get(context.Background(), KeyAuthToken)
	assert.False(t, ok)

	err := s.Set(context.Background(), KeyAuthToken, "A1")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrStorage)

	var storeErr *Error
	require.ErrorAs(t, err, &storeErr)
	assert.Equal(t, "set", storeErr.Op)
	assert.Equal(t, KeyAuthToken, storeErr.Key)
}

func TestFileStore_WriteFailureSurfaces(t *testing.T) {
	dir := t.TempDir()
	// A regular file where the parent directory should be makes MkdirAll fail.
	blocker := filepath.Join(dir, "blocker")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o600))

	s := NewFileStore(filepath.Join(blocker, "credentials.json"), nil)

	err := s.Set(context.Background(), KeyAuthToken, "A1")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrStorage)
	assert.Contains(t, err.Error(), "file set")
}

func TestFileStore_PersistsAcrossInstances(t *testing.T) {
	path := filepath.Join(t.TempDir(), "credentials.json")
	ctx := context.Background()

	require.NoError(t, NewFileStore(path, nil).Set(ctx, KeyRefreshToken, "R1"))

	v, ok := NewFileStore(path, nil).Get(ctx, KeyRefreshToken)
	assert.True(t, ok)
	assert.Equal(t, "R1", v)
}

func TestSQLiteStore_PersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "creds.db")
	ctx := context.Background()

	s, err := OpenSQLiteStore(ctx, path, nil)
	require.NoError(t, err)
	require.NoError(t, s.Set(ctx, KeyAuthToken, "A1"))
	require.NoError(t, s.Close())

	s, err = OpenSQLiteStore(ctx, path, nil)
	require.NoError(t, err)
	defer s.Close()

	v, ok := s.Get(ctx, KeyAuthToken)
	assert.True(t, ok)
	assert.Equal(t, "A1", v)
}

func TestKeyringStore_FailuresDegradeOnRead(t *testing.T) {
	keyring.MockInitWithError(errors.New("secret service unavailable"))
	t.Cleanup(keyring.MockInit)

	s := NewKeyringStore("filevault-test", nil)
	ctx := context.Background()

	_, ok := s.Get(ctx, KeyAuthToken)
	assert.False(t, ok)

	err := s.Set(ctx, KeyAuthToken, "A1")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrStorage)

	err = s.Clear(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrStorage)
}

func TestKeyringStore_UsesServiceNamespace(t *testing.T) {
	keyring.MockInit()

	ctx := context.Background()
	a := NewKeyringStore("filevault-a", nil)
	require.NoError(t, a.Set(ctx, KeyAuthToken, "A1"))

	// Entries live in the OS keyring, not the store value.
	v, err := keyring.Get("filevault-a", KeyAuthToken)
	require.NoError(t, err)
	assert.Equal(t, "A1", v)

	v, ok := NewKeyringStore("filevault-a", nil).Get(ctx, KeyAuthToken)
	assert.True(t, ok)
	assert.Equal(t, "A1", v)

	_, ok = NewKeyringStore("filevault-b", nil).Get(ctx, KeyAuthToken)
	assert.False(t, ok)

	require.NoError(t, a.Remove(ctx, KeyAuthToken))
	_, err = keyring.Get("filevault-a", KeyAuthToken)
	assert.ErrorIs(t, err, keyring.ErrNotFound)

	assert.Equal(t, DefaultKeyringService, NewKeyringStore("", nil).service)
}

func TestOpen_Backends(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	s, err := Open(ctx, BackendFile, filepath.Join(dir, "c.json"), nil)
	require.NoError(t, err)
	assert.IsType(t, &FileStore{}, s)

	s, err = Open(ctx, BackendMemory, "", nil)
	require.NoError(t, err)
	assert.IsType(t, &MemoryStore{}, s)

	s, err = Open(ctx, BackendSQLite, filepath.Join(dir, "c.db"), nil)
	require.NoError(t, err)
	assert.IsType(t, &SQLiteStore{}, s)
	require.NoError(t, s.(*SQLiteStore).Close())

	s, err = Open(ctx, BackendKeyring, "", nil)
	require.NoError(t, err)
	assert.IsType(t, &KeyringStore{}, s)

	_, err = Open(ctx, "floppy", "", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown backend")

	_, err = Open(ctx, BackendFile, "", nil)
	require.Error(t, err)
}

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tonimelisma/filevault-go/internal/api"
)

func TestCleanRemotePath(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"", ""},
		{"/", ""},
		{"/docs/", "docs"},
		{"docs/reports", "docs/reports"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, cleanRemotePath(tt.input), "input %q", tt.input)
	}
}

func TestPrintListingTable(t *testing.T) {
	var buf bytes.Buffer

	printListingTable(&buf, &api.Listing{
		Files: []api.File{{
			Name:         "b-1700000000.txt",
			OriginalName: "b.txt",
			Size:         2048,
			StoragePath:  "users/1/docs/b.txt",
			UploadedAt:   time.Now(),
		}},
		Folders: []api.Folder{{Name: "reports"}},
	})

	out := buf.String()
	assert.Contains(t, out, "NAME")
	assert.Contains(t, out, "reports/")
	assert.Contains(t, out, "b.txt")
	assert.Contains(t, out, "2.0 KB")
	assert.Contains(t, out, "docs/b.txt")
	assert.Less(t, bytes.Index(buf.Bytes(), []byte("reports/")), bytes.Index(buf.Bytes(), []byte("b.txt")))
}

func writeLocal(t *testing.T, dir, name, content string) string {
	t.Helper()

	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, []byte(content), 0o600))

	return p
}

func TestFiles_PutLsGetRm(t *testing.T) {
	h := newHarness(t)
	h.login(t)

	local := writeLocal(t, h.dir, "notes.txt", "hello vault")

	_, stderr := h.mustRun(t, "put", local, "docs")
	assert.Contains(t, stderr, "Uploaded notes.txt (11 B) as docs/notes.txt")

	content, ok := h.srv.FileContent(h.userID, "docs/notes.txt")
	require.True(t, ok)
	assert.Equal(t, "hello vault", string(content))

	stdout, _ := h.mustRun(t, "--json", "ls", "/docs/")

	var items []lsJSONItem
	require.NoError(t, json.Unmarshal([]byte(stdout), &items))
	require.Len(t, items, 1)
	assert.Equal(t, "notes.txt", items[0].Name)
	assert.Equal(t, "docs/notes.txt", items[0].Key)
	assert.Equal(t, int64(11), items[0].Size)
	assert.False(t, items[0].IsFolder)

	stdout, _ = h.mustRun(t, "info", "docs/notes.txt")
	assert.Contains(t, stdout, "Key:      docs/notes.txt")
	assert.Contains(t, stdout, "Size:     11 B (11 bytes)")

	target := filepath.Join(h.dir, "copy.txt")
	_, stderr = h.mustRun(t, "get", "docs/notes.txt", target)
	assert.Contains(t, stderr, "Downloaded "+target)

	got, err := os.ReadFile(target)
	require.NoError(t, err)
	assert.Equal(t, "hello vault", string(got))

	_, err = os.Stat(target + ".partial")
	assert.True(t, os.IsNotExist(err))

	_, stderr = h.mustRun(t, "rm", "docs/notes.txt")
	assert.Contains(t, stderr, "Deleted docs/notes.txt")

	_, ok = h.srv.FileContent(h.userID, "docs/notes.txt")
	assert.False(t, ok)
}

func TestFiles_GetReleasesPartialCleanup(t *testing.T) {
	h := newHarness(t)
	h.login(t)

	local := writeLocal(t, h.dir, "notes.txt", "hello vault")
	h.mustRun(t, "put", local)

	s := newShutdown(slog.Default(), func(int) { t.Fatal("unexpected exit") })
	ctx := s.watch(context.Background(), make(chan os.Signal))

	target := filepath.Join(h.dir, "copy.txt")
	_, stderr, err := h.runContext(t, ctx, "", "get", "notes.txt", target)
	require.NoError(t, err, stderr)

	assert.Zero(t, s.pending(), "a finished download leaves nothing for a forced exit")
}

func TestFiles_QuietSuppressesStatus(t *testing.T) {
	h := newHarness(t)
	h.login(t)

	_, stderr := h.mustRun(t, "--quiet", "mkdir", "reports")
	assert.Empty(t, stderr)
}

func TestFiles_GetMissing(t *testing.T) {
	h := newHarness(t)
	h.login(t)

	target := filepath.Join(h.dir, "missing.txt")

	_, _, err := h.run(t, "", "get", "nope.txt", target)
	require.Error(t, err)
	assert.ErrorIs(t, err, api.ErrNotFound)

	_, statErr := os.Stat(target)
	assert.True(t, os.IsNotExist(statErr))
}

func TestFiles_PutDirectoryRejected(t *testing.T) {
	h := newHarness(t)
	h.login(t)

	_, _, err := h.run(t, "", "put", h.dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "is a directory")
}

func TestFiles_RequireLogin(t *testing.T) {
	h := newHarness(t)

	_, _, err := h.run(t, "", "ls")
	require.Error(t, err)
	assert.True(t, api.RequiresLogin(err), "got %v", err)
}

func TestFiles_ShareAndShares(t *testing.T) {
	h := newHarness(t)
	h.login(t)

	local := writeLocal(t, h.dir, "photo.jpg", "jpeg bytes")
	h.mustRun(t, "put", local)

	stdout, _ := h.mustRun(t, "--json", "ls")

	var items []lsJSONItem
	require.NoError(t, json.Unmarshal([]byte(stdout), &items))
	require.Len(t, items, 1)

	stdout, _ = h.mustRun(t, "share", items[0].ID)
	assert.Contains(t, stdout, h.srv.URL+"/s/")

	stdout, _ = h.mustRun(t, "shares")
	assert.Contains(t, stdout, "photo.jpg")
	assert.Contains(t, stdout, h.srv.URL+"/s/")
}

func TestFolders_MkdirLsRmdir(t *testing.T) {
	h := newHarness(t)
	h.login(t)

	_, stderr := h.mustRun(t, "mkdir", "reports")
	assert.Contains(t, stderr, "Created folder reports in /")

	_, stderr = h.mustRun(t, "mkdir", "2024", "reports")
	assert.Contains(t, stderr, "Created folder 2024 in reports")

	stdout, _ := h.mustRun(t, "ls", "--folders", "reports")
	assert.Contains(t, stdout, "2024/")

	stdout, _ = h.mustRun(t, "info", "--folder", "reports/2024")
	assert.Contains(t, stdout, "Name:  2024")
	assert.Contains(t, stdout, "Path:  reports")

	_, stderr = h.mustRun(t, "rmdir", "reports/2024")
	assert.Contains(t, stderr, "Deleted folder reports/2024")

	stdout, _ = h.mustRun(t, "ls", "--folders", "reports")
	assert.NotContains(t, stdout, "2024")
}

func TestFolders_RmdirRootRefused(t *testing.T) {
	h := newHarness(t)
	h.login(t)

	_, _, err := h.run(t, "", "rmdir", "/")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "root folder")
}

func TestFolders_MkdirDuplicate(t *testing.T) {
	h := newHarness(t)
	h.login(t)

	h.mustRun(t, "mkdir", "reports")

	_, _, err := h.run(t, "", "mkdir", "reports")
	require.Error(t, err)
	assert.ErrorIs(t, err, api.ErrConflict)
}

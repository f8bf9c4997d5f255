package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// ErrNoDownloadURL is returned when the download endpoint answers without a URL.
var ErrNoDownloadURL = errors.New("api: response has no download URL")

// escapeSegment URL-encodes s as a single path segment, slashes included.
func escapeSegment(s string) string {
	return url.PathEscape(s)
}

// normalizeName converts a file or folder name to NFC so names typed on
// macOS (NFD) and elsewhere compare equal on the server.
func normalizeName(s string) string {
	return norm.NFC.String(s)
}

// pathQuery returns ?path=<folderPath>, or nothing for the root folder.
func pathQuery(folderPath string) url.Values {
	if folderPath == "" {
		return nil
	}

	return url.Values{"path": {normalizeName(folderPath)}}
}

// ListFiles returns the files and subfolders of folderPath ("" is the root).
func (c *Client) ListFiles(ctx context.Context, folderPath string) (*Listing, error) {
	var listing Listing

	req := &request{method: http.MethodGet, path: "/files/list", query: pathQuery(folderPath)}
	if _, err := c.call(ctx, req, &listing); err != nil {
		return nil, err
	}

	c.logger.Debug("listed folder",
		slog.String("folder", folderPath),
		slog.Int("files", len(listing.Files)),
		slog.Int("folders", len(listing.Folders)),
	)

	return &listing, nil
}

// DownloadURL returns a pre-signed URL for the file with the given key.
// The server has placed the URL both at the top level and inside data.
func (c *Client) DownloadURL(ctx context.Context, key string) (string, error) {
	var data struct {
		DownloadURL string `json:"downloadUrl"`
	}

	req := &request{method: http.MethodGet, path: "/files/download/" + escapeSegment(key)}

	env, err := c.call(ctx, req, &data)
	if err != nil {
		return "", err
	}

	switch {
	case env.DownloadURL != "":
		return env.DownloadURL, nil
	case data.DownloadURL != "":
		return data.DownloadURL, nil
	default:
		return "", fmt.Errorf("api: download %q: %w", key, ErrNoDownloadURL)
	}
}

// DeleteFile removes the file with the given key.
func (c *Client) DeleteFile(ctx context.Context, key string) error {
	req := &request{method: http.MethodDelete, path: "/files/" + escapeSegment(key)}
	if _, err := c.call(ctx, req, nil); err != nil {
		return err
	}

	c.logger.Info("deleted file", slog.String("key", key))

	return nil
}

// FileInfo returns the metadata of the file with the given key.
func (c *Client) FileInfo(ctx context.Context, key string) (*File, error) {
	var data struct {
		File *File `json:"file"`
	}

	req := &request{method: http.MethodGet, path: "/files/info/" + escapeSegment(key)}
	if _, err := c.call(ctx, req, &data); err != nil {
		return nil, err
	}

	if data.File == nil {
		return nil, c.malformed("file info", key)
	}

	return data.File, nil
}

// ShareFile creates a public link for the file with the given id.
func (c *Client) ShareFile(ctx context.Context, id ID) (*Share, error) {
	var data struct {
		ShareURL string `json:"shareUrl"`
		Share    *Share `json:"share"`
	}

	req := &request{method: http.MethodPost, path: "/files/share/" + escapeSegment(id.String())}
	if _, err := c.call(ctx, req, &data); err != nil {
		return nil, err
	}

	share := data.Share
	if share == nil {
		share = &Share{}
	}

	if share.URL == "" {
		share.URL = data.ShareURL
	}

	if share.URL == "" {
		return nil, c.malformed("share", id.String())
	}

	c.logger.Info("shared file", slog.String("file_id", id.String()))

	return share, nil
}

// SharedFiles lists the caller's active shares.
func (c *Client) SharedFiles(ctx context.Context) ([]Share, error) {
	var data struct {
		Shares []Share `json:"shares"`
	}

	if _, err := c.call(ctx, &request{method: http.MethodGet, path: "/files/shares"}, &data); err != nil {
		return nil, err
	}

	return data.Shares, nil
}

// malformed reports a successful envelope missing its expected payload.
func (c *Client) malformed(what, subject string) error {
	return c.fail(&Error{
		Kind:       KindServer,
		StatusCode: http.StatusOK,
		Message:    "malformed response",
		Err:        fmt.Errorf("api: %s response for %q missing data", what, strings.TrimSpace(subject)),
	})
}

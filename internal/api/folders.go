package api

import (
	"context"
	"log/slog"
	"net/http"
)

// CreateFolder creates folder name under parent ("" is the root).
func (c *Client) CreateFolder(ctx context.Context, name, parent string) (*Folder, error) {
	req, err := jsonRequest(http.MethodPost, "/folders/create", map[string]string{
		"name": normalizeName(name),
		"path": normalizeName(parent),
	})
	if err != nil {
		return nil, err
	}

	var data struct {
		Folder *Folder `json:"folder"`
	}

	if _, err := c.call(ctx, req, &data); err != nil {
		return nil, err
	}

	if data.Folder == nil {
		return nil, c.malformed("create folder", name)
	}

	c.logger.Info("created folder",
		slog.String("name", data.Folder.Name),
		slog.String("path", data.Folder.Path),
	)

	return data.Folder, nil
}

// ListFolders returns the subfolders of path ("" is the root).
func (c *Client) ListFolders(ctx context.Context, path string) ([]Folder, error) {
	var data struct {
		Folders []Folder `json:"folders"`
	}

	req := &request{method: http.MethodGet, path: "/folders/list", query: pathQuery(path)}
	if _, err := c.call(ctx, req, &data); err != nil {
		return nil, err
	}

	return data.Folders, nil
}

// DeleteFolder removes the folder at path.
func (c *Client) DeleteFolder(ctx context.Context, path string) error {
	req := &request{method: http.MethodDelete, path: "/folders/" + escapeSegment(normalizeName(path))}
	if _, err := c.call(ctx, req, nil); err != nil {
		return err
	}

	c.logger.Info("deleted folder", slog.String("path", path))

	return nil
}

// FolderInfo returns the metadata of the folder at path.
func (c *Client) FolderInfo(ctx context.Context, path string) (*Folder, error) {
	var data struct {
		Folder *Folder `json:"folder"`
	}

	req := &request{method: http.MethodGet, path: "/folders/info/" + escapeSegment(normalizeName(path))}
	if _, err := c.call(ctx, req, &data); err != nil {
		return nil, err
	}

	if data.Folder == nil {
		return nil, c.malformed("folder info", path)
	}

	return data.Folder, nil
}

package api

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
)

// Download streams the content behind a pre-signed URL (from DownloadURL) to
// w and returns the number of bytes written. The URL carries its own
// authorization, so no bearer token is sent and the URL is never logged.
func (c *Client) Download(ctx context.Context, downloadURL string, w io.Writer) (int64, error) {
	reqID := uuid.NewString()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, downloadURL, http.NoBody)
	if err != nil {
		return 0, fmt.Errorf("api: creating download request: %w", err)
	}

	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.uploadClient.Do(req)
	if err != nil {
		return 0, c.fail(c.networkError(err, reqID))
	}

	c.metrics.RecordRequest(http.MethodGet, resp.StatusCode)

	if resp.StatusCode != http.StatusOK {
		apiErr := c.responseError(resp, KindServer, reqID)
		if apiErr.Message == "" {
			apiErr.Message = http.StatusText(resp.StatusCode)
		}

		return 0, c.fail(apiErr)
	}
	defer resp.Body.Close()

	n, copyErr := io.Copy(w, resp.Body)
	if copyErr != nil {
		c.logger.Error("streaming download content failed",
			slog.String("error", copyErr.Error()),
			slog.Int64("bytes_before_error", n),
		)

		return n, fmt.Errorf("api: streaming download content: %w", copyErr)
	}

	c.logger.Debug("download complete", slog.Int64("bytes_written", n))

	return n, nil
}

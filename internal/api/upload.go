package api

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"sync"
)

// uploadPart is the multipart field name the upload endpoint reads files from.
const uploadPart = "files"

// ProgressFunc receives upload progress as a whole percentage in [0,100].
// Values never decrease across a single UploadFile call.
type ProgressFunc func(percent int)

// UploadRequest describes one file upload.
type UploadRequest struct {
	Name        string
	Content     io.ReadSeeker // rewound before every attempt
	Size        int64         // -1 if unknown; progress is then not reported
	FolderPath  string        // destination folder, "" for the root
	ContentType string        // defaults to application/octet-stream
}

// UploadFile sends a file as multipart form data and returns the records the
// server created. progress may be nil.
func (c *Client) UploadFile(ctx context.Context, up UploadRequest, progress ProgressFunc) ([]File, error) {
	if up.Content == nil {
		return nil, errors.New("api: upload has no content")
	}

	name := normalizeName(up.Name)
	if name == "" {
		return nil, errors.New("api: upload has no file name")
	}

	head, tail, contentType, err := multipartFrame(name, normalizeName(up.FolderPath), up.ContentType)
	if err != nil {
		return nil, err
	}

	c.logger.Info("uploading file",
		slog.String("name", name),
		slog.String("folder", up.FolderPath),
		slog.Int64("size", up.Size),
	)

	tracker := newProgressTracker(up.Size, progress)

	req := &request{
		method:      http.MethodPost,
		path:        "/files/upload",
		contentType: contentType,
		upload:      true,
		body: func() (io.Reader, int64, error) {
			if err := rewindBody(up.Content); err != nil {
				return nil, 0, err
			}

			tracker.restart()

			var content io.Reader = up.Content
			if up.Size >= 0 {
				content = io.LimitReader(up.Content, up.Size)
			}

			content = c.limiter.WrapReader(ctx, content)
			content = &countingReader{r: content, onRead: tracker.add}

			length := int64(-1)
			if up.Size >= 0 {
				length = int64(len(head)) + up.Size + int64(len(tail))
			}

			return io.MultiReader(bytes.NewReader(head), content, bytes.NewReader(tail)), length, nil
		},
	}

	var data struct {
		Files []File `json:"files"`
	}

	if _, err := c.call(ctx, req, &data); err != nil {
		return nil, err
	}

	tracker.finish()

	if up.Size > 0 {
		c.metrics.RecordUploadBytes(up.Size)
	}

	c.logger.Info("upload complete",
		slog.String("name", name),
		slog.Int("records", len(data.Files)),
	)

	return data.Files, nil
}

// multipartFrame renders everything of the multipart body except the file
// content: the folderPath field and the file part header (head), and the
// closing boundary (tail).
func multipartFrame(name, folderPath, fileType string) (head, tail []byte, contentType string, err error) {
	var buf bytes.Buffer

	mw := multipart.NewWriter(&buf)

	if folderPath != "" {
		if err := mw.WriteField("folderPath", folderPath); err != nil {
			return nil, nil, "", fmt.Errorf("api: writing folderPath field: %w", err)
		}
	}

	if fileType == "" {
		fileType = "application/octet-stream"
	}

	hdr := make(textproto.MIMEHeader)
	hdr.Set("Content-Disposition", fmt.Sprintf(`form-data; name="%s"; filename="%s"`, uploadPart, escapeQuotes(name)))
	hdr.Set("Content-Type", fileType)

	if _, err := mw.CreatePart(hdr); err != nil {
		return nil, nil, "", fmt.Errorf("api: writing file part header: %w", err)
	}

	head = bytes.Clone(buf.Bytes())
	buf.Reset()

	if err := mw.Close(); err != nil {
		return nil, nil, "", fmt.Errorf("api: closing multipart body: %w", err)
	}

	return head, bytes.Clone(buf.Bytes()), mw.FormDataContentType(), nil
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

func escapeQuotes(s string) string {
	return quoteEscaper.Replace(s)
}

// progressTracker converts bytes sent into percentages. The highest value
// reported survives resubmissions, so a retried upload never goes backwards.
type progressTracker struct {
	mu    sync.Mutex
	total int64
	sent  int64
	last  int
	fn    ProgressFunc
}

func newProgressTracker(total int64, fn ProgressFunc) *progressTracker {
	return &progressTracker{total: total, last: -1, fn: fn}
}

func (p *progressTracker) restart() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.sent = 0
}

func (p *progressTracker) add(n int) {
	if p.fn == nil || p.total < 0 {
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	p.sent += int64(n)

	percent := 100
	if p.total > 0 {
		percent = int(math.Round(float64(p.sent) * 100 / float64(p.total)))
	}

	p.emit(min(max(percent, 0), 100))
}

func (p *progressTracker) finish() {
	if p.fn == nil || p.total < 0 {
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	p.emit(100)
}

func (p *progressTracker) emit(percent int) {
	if percent <= p.last {
		return
	}

	p.last = percent
	p.fn(percent)
}

// countingReader reports every successful read to onRead.
type countingReader struct {
	r      io.Reader
	onRead func(int)
}

func (r *countingReader) Read(p []byte) (int, error) {
	n, err := r.r.Read(p)
	if n > 0 {
		r.onRead(n)
	}

	return n, err
}

package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"math/rand/v2"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/tonimelisma/filevault-go/internal/credstore"
)

// Default timeouts and retry policy.
const (
	DefaultRequestTimeout = 30 * time.Second
	DefaultUploadTimeout  = 120 * time.Second
	DefaultMaxRetries     = 3
	DefaultUserAgent      = "filevault-go/0.1"

	baseBackoff    = 1 * time.Second
	maxBackoff     = 30 * time.Second
	backoffFactor  = 2.0
	jitterFraction = 0.25

	// maxErrorBody caps how much of an error response is read for its message.
	maxErrorBody = 64 * 1024

	refreshPath = "/auth/refresh"
)

// Metrics receives pipeline events. internal/metrics provides the
// Prometheus implementation; a nil Metrics records nothing.
type Metrics interface {
	RecordRequest(method string, status int)
	RecordFailure(kind string)
	RecordRefresh(outcome string)
	RecordUploadBytes(n int64)
}

type noopMetrics struct{}

func (noopMetrics) RecordRequest(string, int) {}
func (noopMetrics) RecordFailure(string)      {}
func (noopMetrics) RecordRefresh(string)      {}
func (noopMetrics) RecordUploadBytes(int64)   {}

// Options tunes a Client. Zero values select the defaults.
type Options struct {
	HTTPClient   *http.Client // ordinary calls; default timeout DefaultRequestTimeout
	UploadClient *http.Client // uploads and downloads; default timeout DefaultUploadTimeout
	UserAgent    string
	MaxRetries   int      // transient retries for idempotent calls; negative disables
	NetworkHints []string // attached to every network failure
	Limiter      *BandwidthLimiter
	Metrics      Metrics
}

// Client is the request pipeline. It is safe for concurrent use; every
// logical request reads the current access token from the store, so
// several clients may share one store.
type Client struct {
	baseURL      string
	store        credstore.Store
	httpClient   *http.Client
	uploadClient *http.Client
	userAgent    string
	maxRetries   int
	hints        []string
	limiter      *BandwidthLimiter
	metrics      Metrics
	logger       *slog.Logger

	// refreshGroup collapses concurrent refreshes into one in-flight call.
	refreshGroup singleflight.Group

	hookMu    sync.Mutex
	onExpired []func()

	// sleepFunc waits between retries. Tests override it to avoid real delays.
	sleepFunc func(ctx context.Context, d time.Duration) error
}

// NewClient creates a pipeline for the API rooted at baseURL
// (e.g. "http://localhost:3001/api").
func NewClient(baseURL string, store credstore.Store, opts Options, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}

	c := &Client{
		baseURL:      baseURL,
		store:        store,
		httpClient:   opts.HTTPClient,
		uploadClient: opts.UploadClient,
		userAgent:    opts.UserAgent,
		maxRetries:   opts.MaxRetries,
		hints:        opts.NetworkHints,
		limiter:      opts.Limiter,
		metrics:      opts.Metrics,
		logger:       logger,
		sleepFunc:    timeSleep,
	}

	if c.httpClient == nil {
		c.httpClient = &http.Client{Timeout: DefaultRequestTimeout}
	}

	if c.uploadClient == nil {
		c.uploadClient = &http.Client{Timeout: DefaultUploadTimeout}
	}

	if c.userAgent == "" {
		c.userAgent = DefaultUserAgent
	}

	if c.maxRetries == 0 {
		c.maxRetries = DefaultMaxRetries
	}

	if c.maxRetries < 0 {
		c.maxRetries = 0
	}

	if c.metrics == nil {
		c.metrics = noopMetrics{}
	}

	return c
}

// OnSessionExpired registers fn to run after the pipeline itself clears the
// credential store because the session could not be renewed.
func (c *Client) OnSessionExpired(fn func()) {
	c.hookMu.Lock()
	defer c.hookMu.Unlock()

	c.onExpired = append(c.onExpired, fn)
}

// request is one logical API call. body is invoked once per attempt so the
// payload can be resent after a token refresh; it returns the reader and
// its length (-1 when unknown).
type request struct {
	method      string
	path        string
	query       url.Values
	contentType string
	body        func() (io.Reader, int64, error)
	upload      bool
}

func (r *request) idempotent() bool {
	return r.method == http.MethodGet || r.method == http.MethodHead
}

// Do executes an authenticated request. The path is appended to the base
// URL. For non-nil bodies Content-Type is application/json; the body is
// rewound before a resubmission. The caller closes the response body.
func (c *Client) Do(ctx context.Context, method, path string, body io.ReadSeeker) (*http.Response, error) {
	req := &request{method: method, path: path}

	if body != nil {
		req.contentType = "application/json"
		req.body = func() (io.Reader, int64, error) {
			if err := rewindBody(body); err != nil {
				return nil, 0, err
			}

			return body, -1, nil
		}
	}

	return c.send(ctx, req)
}

// rewindBody seeks body back to its start.
func rewindBody(body io.Seeker) error {
	if _, err := body.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("api: rewinding request body: %w", err)
	}

	return nil
}

// send runs the pipeline for one logical request: attach the stored access
// token, and on a 401 renew the session and resubmit exactly once.
func (c *Client) send(ctx context.Context, req *request) (*http.Response, error) {
	reqID := uuid.NewString()

	token, _ := c.store.Get(ctx, credstore.KeyAuthToken)

	resp, err := c.attempt(ctx, req, token, reqID)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode != http.StatusUnauthorized {
		return c.checkResponse(resp, req, reqID)
	}

	rejected := c.responseError(resp, KindAuthentication, reqID)

	if req.path == refreshPath {
		return nil, c.fail(rejected)
	}

	c.logger.Info("access token rejected, renewing session",
		slog.String("method", req.method),
		slog.String("path", req.path),
		slog.String("request_id", reqID),
	)

	newToken, err := c.renew(ctx, token)
	if err != nil {
		return nil, withRejection(err, rejected)
	}

	resp, err = c.attempt(ctx, req, newToken, reqID)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode == http.StatusUnauthorized {
		c.logger.Warn("retried request rejected again, login required",
			slog.String("method", req.method),
			slog.String("path", req.path),
			slog.String("request_id", reqID),
		)

		return nil, c.fail(c.responseError(resp, KindAuthentication, reqID))
	}

	return c.checkResponse(resp, req, reqID)
}

// attempt sends the request with the given bearer token. Idempotent requests
// are retried with backoff after network failures and transient statuses.
// A returned response may carry any status; a returned error is classified.
func (c *Client) attempt(ctx context.Context, req *request, token, reqID string) (*http.Response, error) {
	for n := 0; ; n++ {
		resp, err := c.doOnce(ctx, req, token, reqID)
		if err != nil {
			var apiErr *Error
			if errors.As(err, &apiErr) {
				return nil, c.fail(apiErr)
			}

			if ctx.Err() == nil && req.idempotent() && n < c.maxRetries {
				backoff := c.calcBackoff(n)
				c.logger.Warn("retrying after network error",
					slog.String("method", req.method),
					slog.String("path", req.path),
					slog.Int("attempt", n+1),
					slog.Duration("backoff", backoff),
					slog.String("error", err.Error()),
				)

				if sleepErr := c.sleepFunc(ctx, backoff); sleepErr != nil {
					return nil, c.fail(c.networkError(sleepErr, reqID))
				}

				continue
			}

			return nil, c.fail(c.networkError(err, reqID))
		}

		c.metrics.RecordRequest(req.method, resp.StatusCode)

		if req.idempotent() && isRetryable(resp.StatusCode) && n < c.maxRetries {
			backoff := c.retryBackoff(resp, n)
			drainAndClose(resp)

			c.logger.Warn("retrying after HTTP error",
				slog.String("method", req.method),
				slog.String("path", req.path),
				slog.Int("status", resp.StatusCode),
				slog.Int("attempt", n+1),
				slog.Duration("backoff", backoff),
			)

			if sleepErr := c.sleepFunc(ctx, backoff); sleepErr != nil {
				return nil, c.fail(c.networkError(sleepErr, reqID))
			}

			continue
		}

		return resp, nil
	}
}

// doOnce executes a single HTTP exchange. Errors building the request are
// returned as *Error; transport errors are returned raw for attempt to
// classify.
func (c *Client) doOnce(ctx context.Context, req *request, token, reqID string) (*http.Response, error) {
	target := c.baseURL + req.path
	if len(req.query) > 0 {
		target += "?" + req.query.Encode()
	}

	var (
		body   io.Reader = http.NoBody
		length int64
	)

	if req.body != nil {
		b, n, err := req.body()
		if err != nil {
			return nil, &Error{Kind: KindServer, RequestID: reqID, Message: "could not prepare request body", Err: err}
		}

		body, length = b, n
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.method, target, body)
	if err != nil {
		return nil, &Error{Kind: KindServer, RequestID: reqID, Message: "could not build request", Err: err}
	}

	if req.body != nil {
		httpReq.ContentLength = length
	}

	if token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+token)
	}

	if req.contentType != "" {
		httpReq.Header.Set("Content-Type", req.contentType)
	}

	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("User-Agent", c.userAgent)
	httpReq.Header.Set("X-Request-ID", reqID)

	client := c.httpClient
	if req.upload {
		client = c.uploadClient
	}

	return client.Do(httpReq)
}

// checkResponse passes 2xx responses through and converts the rest into
// server failures.
func (c *Client) checkResponse(resp *http.Response, req *request, reqID string) (*http.Response, error) {
	if resp.StatusCode >= http.StatusOK && resp.StatusCode < http.StatusMultipleChoices {
		c.logger.Debug("request succeeded",
			slog.String("method", req.method),
			slog.String("path", req.path),
			slog.Int("status", resp.StatusCode),
		)

		return resp, nil
	}

	return nil, c.fail(c.responseError(resp, KindServer, reqID))
}

// responseError reads and closes an error response, extracting the server's
// message when the body is a JSON envelope.
func (c *Client) responseError(resp *http.Response, kind Kind, reqID string) *Error {
	defer resp.Body.Close()

	data, readErr := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if readErr != nil {
		c.logger.Debug("reading error response body failed", slog.String("error", readErr.Error()))
	}

	apiErr := &Error{
		Kind:       kind,
		StatusCode: resp.StatusCode,
		RequestID:  reqID,
	}

	var env envelope
	if json.Unmarshal(data, &env) == nil {
		apiErr.Message = env.serverMessage()
	}

	if kind == KindAuthentication {
		apiErr.RequiresLogin = true
	}

	return apiErr
}

// withRejection gives a failed renewal the request's own identity and, when
// the server explained the original 401, its message.
func withRejection(err error, rejected *Error) error {
	var apiErr *Error
	if !errors.As(err, &apiErr) || apiErr.Kind != KindAuthentication {
		return err
	}

	merged := *apiErr
	merged.RequestID = rejected.RequestID

	if rejected.Message != "" {
		merged.Message = rejected.Message
	}

	return &merged
}

// networkError classifies a transport failure: no response was received.
func (c *Client) networkError(err error, reqID string) *Error {
	return &Error{
		Kind:      KindNetwork,
		RequestID: reqID,
		Message:   ConnectionFailedMessage,
		Detail:    transportReason(err),
		Hints:     c.hints,
		Err:       err,
	}
}

// fail records the failure and returns it unchanged.
func (c *Client) fail(err *Error) *Error {
	c.metrics.RecordFailure(err.Kind.String())

	if err.Kind == KindNetwork {
		c.logger.Warn("request got no response",
			slog.String("reason", err.Detail),
			slog.String("request_id", err.RequestID),
		)
	}

	return err
}

// call runs req and decodes the response envelope. A 2xx envelope with
// success:false is a server failure. When out is non-nil, data is decoded
// into it.
func (c *Client) call(ctx context.Context, req *request, out any) (*envelope, error) {
	resp, err := c.send(ctx, req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var env envelope
	if decErr := json.NewDecoder(resp.Body).Decode(&env); decErr != nil {
		return nil, c.fail(&Error{
			Kind:       KindServer,
			StatusCode: resp.StatusCode,
			Message:    "malformed response",
			Err:        fmt.Errorf("api: decoding %s %s response: %w", req.method, req.path, decErr),
		})
	}

	if !env.Success {
		return nil, c.fail(&Error{
			Kind:       KindServer,
			StatusCode: resp.StatusCode,
			Message:    env.serverMessage(),
		})
	}

	if out != nil && len(env.Data) > 0 && string(env.Data) != "null" {
		if decErr := json.Unmarshal(env.Data, out); decErr != nil {
			return nil, c.fail(&Error{
				Kind:       KindServer,
				StatusCode: resp.StatusCode,
				Message:    "malformed response data",
				Err:        fmt.Errorf("api: decoding %s %s data: %w", req.method, req.path, decErr),
			})
		}
	}

	return &env, nil
}

// jsonRequest builds a request whose body is v encoded once as JSON.
func jsonRequest(method, path string, v any) (*request, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("api: encoding %s %s body: %w", method, path, err)
	}

	return &request{
		method:      method,
		path:        path,
		contentType: "application/json",
		body: func() (io.Reader, int64, error) {
			return bytes.NewReader(data), int64(len(data)), nil
		},
	}, nil
}

// drainAndClose discards the rest of a response so the connection is reused.
func drainAndClose(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxErrorBody)) //nolint:errcheck // best-effort drain
	resp.Body.Close()
}

// retryBackoff returns the backoff duration for a retryable response.
// For 429 responses with a Retry-After header, that value is used.
func (c *Client) retryBackoff(resp *http.Response, attempt int) time.Duration {
	if resp.StatusCode == http.StatusTooManyRequests {
		if ra := resp.Header.Get("Retry-After"); ra != "" {
			if seconds, err := strconv.Atoi(ra); err == nil && seconds > 0 {
				return time.Duration(seconds) * time.Second
			}
		}
	}

	return c.calcBackoff(attempt)
}

// calcBackoff computes exponential backoff with ±25% jitter.
func (c *Client) calcBackoff(attempt int) time.Duration {
	backoff := float64(baseBackoff) * math.Pow(backoffFactor, float64(attempt))
	if backoff > float64(maxBackoff) {
		backoff = float64(maxBackoff)
	}

	jitter := backoff * jitterFraction * (rand.Float64()*2 - 1) //nolint:gosec // jitter does not need crypto rand
	backoff += jitter

	return time.Duration(backoff)
}

// timeSleep waits for the given duration or until the context is canceled.
func timeSleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

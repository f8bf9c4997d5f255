// Package api is the authenticated request pipeline for the filevault HTTP
// API. It attaches the stored bearer token to every call, renews an expired
// session once per request through the refresh endpoint, and classifies
// every failure as a network, authentication, server or storage failure.
package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"syscall"
)

// ConnectionFailedMessage is the user-facing text for network failures.
const ConnectionFailedMessage = "Unable to connect to server. Please check your connection."

// SessionExpiredMessage is the user-facing text when a session cannot be renewed.
const SessionExpiredMessage = "Your session has expired. Please log in again."

// Kind is the failure class of an *Error.
type Kind int

const (
	// KindNetwork means no response was received at all.
	KindNetwork Kind = iota + 1
	// KindAuthentication means the session is expired, invalid or absent.
	KindAuthentication
	// KindServer means a response arrived but reported failure.
	KindServer
	// KindStorage means the credential store could not be written.
	KindStorage
)

func (k Kind) String() string {
	switch k {
	case KindNetwork:
		return "network"
	case KindAuthentication:
		return "authentication"
	case KindServer:
		return "server"
	case KindStorage:
		return "storage"
	default:
		return "unknown"
	}
}

// Kind sentinels. Use errors.Is(err, api.ErrNetwork) to branch on cause.
var (
	ErrNetwork        = errors.New("api: network failure")
	ErrAuthentication = errors.New("api: authentication failure")
	ErrServer         = errors.New("api: server failure")
	ErrStorage        = errors.New("api: storage failure")
)

// Status sentinels, layered under the kind sentinels.
var (
	ErrBadRequest   = errors.New("api: bad request")
	ErrUnauthorized = errors.New("api: unauthorized")
	ErrForbidden    = errors.New("api: forbidden")
	ErrNotFound     = errors.New("api: not found")
	ErrConflict     = errors.New("api: conflict")
	ErrTooLarge     = errors.New("api: payload too large")
	ErrThrottled    = errors.New("api: throttled")
	ErrServerError  = errors.New("api: internal server error")
)

// Error is the classified failure returned by every Client operation.
type Error struct {
	Kind          Kind
	StatusCode    int    // 0 for network and storage failures
	RequestID     string // X-Request-ID sent with the call
	Message       string // server-provided message, or a fixed user-facing text
	Detail        string // transport reason for network failures ("timeout", "connection refused", ...)
	RequiresLogin bool   // always true for KindAuthentication
	Hints         []string
	Err           error // underlying cause, if any
}

func (e *Error) Error() string {
	switch {
	case e.Kind == KindNetwork:
		return fmt.Sprintf("api: network failure (%s): %v", e.Detail, e.Err)
	case e.Kind == KindStorage:
		return fmt.Sprintf("api: storage failure: %v", e.Err)
	case e.StatusCode == 0 && e.Err != nil:
		return fmt.Sprintf("api: %s failure: %s: %v", e.Kind, e.Message, e.Err)
	case e.StatusCode == 0:
		return fmt.Sprintf("api: %s failure: %s", e.Kind, e.Message)
	case e.RequestID != "":
		return fmt.Sprintf("api: HTTP %d (request-id: %s): %s", e.StatusCode, e.RequestID, e.Message)
	default:
		return fmt.Sprintf("api: HTTP %d: %s", e.StatusCode, e.Message)
	}
}

// Unwrap exposes the kind sentinel, the status sentinel (if any) and the cause.
func (e *Error) Unwrap() []error {
	errs := []error{kindSentinel(e.Kind)}

	if s := classifyStatus(e.StatusCode); s != nil {
		errs = append(errs, s)
	}

	if e.Err != nil {
		errs = append(errs, e.Err)
	}

	return errs
}

func kindSentinel(k Kind) error {
	switch k {
	case KindNetwork:
		return ErrNetwork
	case KindAuthentication:
		return ErrAuthentication
	case KindStorage:
		return ErrStorage
	default:
		return ErrServer
	}
}

// IsKind reports whether err is an *Error of kind k.
func IsKind(err error, k Kind) bool {
	var apiErr *Error
	return errors.As(err, &apiErr) && apiErr.Kind == k
}

// RequiresLogin reports whether err tells the caller to route back to login.
func RequiresLogin(err error) bool {
	var apiErr *Error
	return errors.As(err, &apiErr) && apiErr.RequiresLogin
}

// classifyStatus maps an HTTP status code to a status sentinel.
// Returns nil for 2xx and unmapped codes.
func classifyStatus(code int) error {
	switch code {
	case http.StatusBadRequest:
		return ErrBadRequest
	case http.StatusUnauthorized:
		return ErrUnauthorized
	case http.StatusForbidden:
		return ErrForbidden
	case http.StatusNotFound:
		return ErrNotFound
	case http.StatusConflict:
		return ErrConflict
	case http.StatusRequestEntityTooLarge:
		return ErrTooLarge
	case http.StatusTooManyRequests:
		return ErrThrottled
	default:
		if code >= http.StatusInternalServerError {
			return ErrServerError
		}

		return nil
	}
}

// isRetryable reports whether an idempotent request may be retried after
// this status code.
func isRetryable(code int) bool {
	switch code {
	case http.StatusRequestTimeout,
		http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	default:
		return false
	}
}

// transportReason names why a request got no response. It looks only at
// the transport error: its type, errno and message text.
func transportReason(err error) string {
	var dnsErr *net.DNSError

	switch {
	case errors.Is(err, context.Canceled):
		return "canceled"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.As(err, &dnsErr):
		return "dns lookup failed"
	case errors.Is(err, syscall.ECONNREFUSED):
		return "connection refused"
	case errors.Is(err, syscall.ECONNRESET):
		return "connection reset"
	case errors.Is(err, syscall.ENETUNREACH), errors.Is(err, syscall.EHOSTUNREACH):
		return "network unreachable"
	case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
		return "connection closed"
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return "timeout"
	}

	msg := strings.ToLower(err.Error())

	for _, m := range []struct{ substr, reason string }{
		{"connection refused", "connection refused"},
		{"no such host", "dns lookup failed"},
		{"timeout", "timeout"},
		{"connection reset", "connection reset"},
		{"network is unreachable", "network unreachable"},
		{"aborted", "aborted"},
	} {
		if strings.Contains(msg, m.substr) {
			return m.reason
		}
	}

	return "no response"
}

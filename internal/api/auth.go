package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// Login authenticates with an identifier (username or email) and a password.
// The result is returned, not persisted; the session manager owns persistence.
func (c *Client) Login(ctx context.Context, identifier, password string) (*AuthResult, error) {
	return c.authenticate(ctx, "/auth/login", map[string]string{
		"identifier": identifier,
		"password":   password,
	})
}

// Register creates an account and returns its first session.
func (c *Client) Register(ctx context.Context, reg Registration) (*AuthResult, error) {
	return c.authenticate(ctx, "/auth/register", reg)
}

func (c *Client) authenticate(ctx context.Context, path string, body any) (*AuthResult, error) {
	req, err := jsonRequest(http.MethodPost, path, body)
	if err != nil {
		return nil, err
	}

	var result AuthResult
	if _, err := c.call(ctx, req, &result); err != nil {
		return nil, err
	}

	if result.AccessToken == "" || result.User == nil {
		return nil, c.fail(&Error{
			Kind:       KindServer,
			StatusCode: http.StatusOK,
			Message:    "malformed response",
			Err:        fmt.Errorf("api: %s response missing token or user", path),
		})
	}

	return &result, nil
}

// Logout tells the server to end the session. Failures are returned for the
// caller to log; local state is not touched here.
func (c *Client) Logout(ctx context.Context) error {
	_, err := c.call(ctx, &request{method: http.MethodPost, path: "/auth/logout"}, nil)
	return err
}

// Me fetches the identity record of the current session.
func (c *Client) Me(ctx context.Context) (*User, error) {
	var data struct {
		User *User `json:"user"`
	}

	if _, err := c.call(ctx, &request{method: http.MethodGet, path: "/auth/me"}, &data); err != nil {
		return nil, err
	}

	if data.User == nil {
		return nil, c.fail(&Error{
			Kind:       KindServer,
			StatusCode: http.StatusOK,
			Message:    "malformed response",
			Err:        errors.New("api: /auth/me response missing user"),
		})
	}

	return data.User, nil
}

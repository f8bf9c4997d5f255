package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/tonimelisma/filevault-go/internal/credstore"
)

const refreshKey = "refresh"

// renew obtains a fresh access token after staleToken was rejected. If
// another request already renewed the session the stored token is reused;
// otherwise concurrent callers share one refresh call.
func (c *Client) renew(ctx context.Context, staleToken string) (string, error) {
	if current, ok := c.store.Get(ctx, credstore.KeyAuthToken); ok && current != "" && current != staleToken {
		c.logger.Debug("session already renewed, reusing stored token")
		return current, nil
	}

	// The shared call must not die with whichever caller started it.
	ch := c.refreshGroup.DoChan(refreshKey, func() (any, error) {
		return c.refreshSession(context.WithoutCancel(ctx))
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}

		token, _ := res.Val.(string)

		return token, nil
	case <-ctx.Done():
		return "", c.fail(c.networkError(ctx.Err(), ""))
	}
}

// refreshSession performs the refresh call. The refresh request carries no
// bearer token and is never itself renewed.
func (c *Client) refreshSession(ctx context.Context) (string, error) {
	refreshToken, ok := c.store.Get(ctx, credstore.KeyRefreshToken)
	if !ok || refreshToken == "" {
		c.logger.Info("no refresh token stored, ending session")
		c.metrics.RecordRefresh("no_token")

		return "", c.expire(ctx, nil)
	}

	req, err := jsonRequest(http.MethodPost, refreshPath, map[string]string{"refreshToken": refreshToken})
	if err != nil {
		return "", c.expire(ctx, err)
	}

	reqID := uuid.NewString()

	resp, err := c.attempt(ctx, req, "", reqID)
	if err != nil {
		c.metrics.RecordRefresh("failed")
		return "", c.expire(ctx, err)
	}

	var pair tokenPair

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		rejected := c.responseError(resp, KindAuthentication, reqID)
		c.metrics.RecordRefresh("rejected")

		return "", c.expire(ctx, rejected)
	}

	env, err := c.decodeRefresh(resp, &pair)
	if err != nil || !env.Success || pair.AccessToken == "" {
		c.metrics.RecordRefresh("rejected")

		if err == nil {
			err = errors.New("api: refresh response carried no access token")
		}

		return "", c.expire(ctx, err)
	}

	if err := c.store.Set(ctx, credstore.KeyAuthToken, pair.AccessToken); err != nil {
		return "", c.fail(&Error{Kind: KindStorage, Message: "could not save session", Err: err})
	}

	if pair.RefreshToken != "" {
		if err := c.store.Set(ctx, credstore.KeyRefreshToken, pair.RefreshToken); err != nil {
			return "", c.fail(&Error{Kind: KindStorage, Message: "could not save session", Err: err})
		}
	}

	c.metrics.RecordRefresh("renewed")
	c.logger.Info("session renewed", slog.Bool("rotated_refresh_token", pair.RefreshToken != ""))

	return pair.AccessToken, nil
}

// decodeRefresh decodes the refresh envelope into pair and closes the body.
func (c *Client) decodeRefresh(resp *http.Response, pair *tokenPair) (*envelope, error) {
	defer resp.Body.Close()

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return nil, fmt.Errorf("api: decoding refresh response: %w", err)
	}

	if env.Success && len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, pair); err != nil {
			return nil, fmt.Errorf("api: decoding refresh data: %w", err)
		}
	}

	return &env, nil
}

// expire clears the session, notifies listeners and returns the
// authentication failure that ends the request.
func (c *Client) expire(ctx context.Context, cause error) error {
	if err := c.store.Clear(ctx); err != nil {
		c.logger.Error("clearing credentials after failed refresh", slog.String("error", err.Error()))
	}

	c.hookMu.Lock()
	hooks := append([]func(){}, c.onExpired...)
	c.hookMu.Unlock()

	for _, fn := range hooks {
		fn()
	}

	authErr := &Error{
		Kind:          KindAuthentication,
		Message:       SessionExpiredMessage,
		RequiresLogin: true,
		Err:           cause,
	}

	// The status is only carried when the refresh call itself was answered.
	var apiErr *Error
	if errors.As(cause, &apiErr) {
		authErr.StatusCode = apiErr.StatusCode
		authErr.RequestID = apiErr.RequestID
		if apiErr.Kind == KindNetwork {
			authErr.Detail = apiErr.Detail
		}
	}

	c.logger.Warn("session expired, credentials cleared")

	return c.fail(authErr)
}

package netdiag

import (
	"errors"
	"fmt"
	"strings"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
)

// nowFunc returns the current time; tests replace it.
var nowFunc = time.Now

// ErrNotJWT is returned for tokens that are not three-part JWTs.
var ErrNotJWT = errors.New("netdiag: token is not a JWT")

// TokenInfo is what can be read from an access token without its signing key.
type TokenInfo struct {
	Subject   string     `json:"subject,omitempty"`
	UserID    string     `json:"userId,omitempty"`
	IssuedAt  *time.Time `json:"issuedAt,omitempty"`
	ExpiresAt *time.Time `json:"expiresAt,omitempty"`
	Expired   bool       `json:"expired"`
}

// InspectToken decodes a JWT's claims without verifying its signature. The
// result is for diagnostics only and must never gate access.
func InspectToken(raw string) (*TokenInfo, error) {
	raw = strings.TrimSpace(raw)
	if strings.Count(raw, ".") != 2 {
		return nil, ErrNotJWT
	}

	token, _, err := jwtlib.NewParser().ParseUnverified(raw, jwtlib.MapClaims{})
	if err != nil {
		return nil, fmt.Errorf("netdiag: decoding token: %w", err)
	}

	claims, ok := token.Claims.(jwtlib.MapClaims)
	if !ok {
		return nil, errors.New("netdiag: unexpected claims type")
	}

	info := &TokenInfo{}
	info.Subject, _ = claims.GetSubject() //nolint:errcheck // absent subject is fine

	switch id := claims["userId"].(type) {
	case string:
		info.UserID = id
	case float64:
		info.UserID = fmt.Sprintf("%.0f", id)
	}

	if iat, err := claims.GetIssuedAt(); err == nil && iat != nil {
		t := iat.Time
		info.IssuedAt = &t
	}

	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
		t := exp.Time
		info.ExpiresAt = &t
		info.Expired = nowFunc().After(t)
	}

	return info, nil
}

package netdiag

import (
	"context"
	"log/slog"
	"time"

	"github.com/tonimelisma/filevault-go/internal/api"
	"github.com/tonimelisma/filevault-go/internal/credstore"
)

// previewLen is how much of the access token a report shows.
const previewLen = 12

// Validator checks the stored session against the server.
type Validator interface {
	Me(ctx context.Context) (*api.User, error)
}

// AuthReport describes the stored session and whether the server accepts it.
type AuthReport struct {
	CheckedAt       time.Time  `json:"checkedAt"`
	HasToken        bool       `json:"hasToken"`
	TokenLength     int        `json:"tokenLength"`
	TokenPreview    string     `json:"tokenPreview"`
	HasRefreshToken bool       `json:"hasRefreshToken"`
	HasUser         bool       `json:"hasUser"`
	Token           *TokenInfo `json:"token,omitempty"`
	Valid           bool       `json:"valid"`
	User            *api.User  `json:"user,omitempty"`
	Error           string     `json:"error,omitempty"`
	NetworkError    bool       `json:"networkError"`
	AuthError       bool       `json:"authError"`
	Recommendations []string   `json:"recommendations"`
}

// DebugAuth inspects the stored session and, if there is a token, asks the
// server to validate it. Validation goes through the normal pipeline, so an
// expired token may be renewed (or the session cleared) as a side effect.
func DebugAuth(ctx context.Context, store credstore.Store, v Validator, logger *slog.Logger) AuthReport {
	if logger == nil {
		logger = slog.Default()
	}

	report := AuthReport{CheckedAt: nowFunc().UTC(), TokenPreview: "none"}

	token, hasToken := store.Get(ctx, credstore.KeyAuthToken)
	report.HasToken = hasToken && token != ""
	report.TokenLength = len(token)

	if report.HasToken {
		report.TokenPreview = preview(token)

		if info, err := InspectToken(token); err == nil {
			report.Token = info
		} else {
			logger.Debug("access token is not a decodable JWT", slog.String("error", err.Error()))
		}
	}

	refresh, hasRefresh := store.Get(ctx, credstore.KeyRefreshToken)
	report.HasRefreshToken = hasRefresh && refresh != ""

	_, report.HasUser = store.Get(ctx, credstore.KeyCurrentUser)

	if report.HasToken && v != nil {
		user, err := v.Me(ctx)
		if err != nil {
			report.Error = err.Error()
			report.NetworkError = api.IsKind(err, api.KindNetwork)
			report.AuthError = api.IsKind(err, api.KindAuthentication)
		} else {
			report.Valid = true
			report.User = user
		}
	}

	report.Recommendations = recommend(report)

	return report
}

func recommend(r AuthReport) []string {
	switch {
	case !r.HasToken:
		return []string{"No token found: log in"}
	case r.NetworkError:
		return []string{"Server unreachable: run the connectivity probe and check the troubleshooting tips"}
	case r.Token != nil && r.Token.Expired && !r.Valid:
		return []string{"Token is expired: refresh the session or log in again"}
	case !r.Valid:
		return []string{"Token is invalid: log out and log in again"}
	default:
		return []string{"Token appears valid: check the endpoint's permissions"}
	}
}

func preview(token string) string {
	if len(token) <= previewLen {
		return "..."
	}

	return token[:previewLen] + "..."
}

package netdiag

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tonimelisma/filevault-go/internal/api"
	"github.com/tonimelisma/filevault-go/internal/credstore"
)

func TestResolveBaseURL(t *testing.T) {
	ep := Endpoints{ProductionURL: "https://api.filevault.example/api/", DevHost: "192.168.1.23"}

	tests := []struct {
		name   string
		target Target
		want   string
	}{
		{"release", Target{Platform: PlatformAndroid, Mode: ModeRelease}, "https://api.filevault.example/api"},
		{"android emulator", Target{Platform: PlatformAndroid, Device: DeviceEmulator, Mode: ModeDevelopment}, "http://10.0.2.2:3001/api"},
		{"ios simulator", Target{Platform: PlatformIOS, Device: DeviceEmulator, Mode: ModeDevelopment}, "http://localhost:3001/api"},
		{"android device", Target{Platform: PlatformAndroid, Device: DevicePhysical, Mode: ModeDevelopment}, "http://192.168.1.23:3001/api"},
		{"ios device", Target{Platform: PlatformIOS, Device: DevicePhysical, Mode: ModeDevelopment}, "http://192.168.1.23:3001/api"},
		{"web", Target{Platform: PlatformWeb, Mode: ModeDevelopment}, "http://localhost:3001/api"},
		{"desktop", Target{Platform: PlatformDesktop, Mode: ModeDevelopment}, "http://localhost:3001/api"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ResolveBaseURL(tc.target, ep)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestResolveBaseURL_CustomPortAndScheme(t *testing.T) {
	got, err := ResolveBaseURL(Target{Platform: PlatformDesktop, Mode: ModeDevelopment},
		Endpoints{DevPort: 8443, DevScheme: "https"})
	require.NoError(t, err)
	assert.Equal(t, "https://localhost:8443/api", got)
}

func TestResolveBaseURL_Errors(t *testing.T) {
	_, err := ResolveBaseURL(Target{Platform: PlatformIOS, Device: DevicePhysical, Mode: ModeDevelopment}, Endpoints{})
	require.ErrorIs(t, err, ErrDevHostRequired)

	_, err = ResolveBaseURL(Target{Platform: PlatformAndroid, Device: DevicePhysical, Mode: ModeDevelopment},
		Endpoints{DevHost: "YOUR_IP_HERE"})
	require.ErrorIs(t, err, ErrDevHostRequired)

	_, err = ResolveBaseURL(Target{Mode: ModeRelease}, Endpoints{})
	require.ErrorIs(t, err, ErrProductionURLRequired)

	_, err = ResolveBaseURL(Target{Platform: "symbian", Mode: ModeDevelopment}, Endpoints{})
	require.Error(t, err)
}

func TestProbe_AnyResponseIsReachable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/health", r.URL.Path)
		assert.Empty(t, r.Header.Get("Authorization"))
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	res := NewProber(nil, 0, slog.Default()).Probe(context.Background(), srv.URL+"/api")
	assert.True(t, res.Reachable)
	assert.Equal(t, http.StatusServiceUnavailable, res.Status)
	assert.Empty(t, res.Error)
	assert.Equal(t, srv.URL+"/api", res.URL)
}

func TestProbe_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	res := NewProber(nil, time.Second, slog.Default()).Probe(context.Background(), url)
	assert.False(t, res.Reachable)
	assert.Zero(t, res.Status)
	assert.Contains(t, res.Error, "connection refused")
}

func TestProbe_Timeout(t *testing.T) {
	release := make(chan struct{})

	srv := httptest.NewServer(http.HandlerFunc(func(_ http.ResponseWriter, _ *http.Request) {
		<-release
	}))
	defer srv.Close()
	defer close(release)

	res := NewProber(nil, 50*time.Millisecond, slog.Default()).Probe(context.Background(), srv.URL)
	assert.False(t, res.Reachable)
	assert.NotEmpty(t, res.Error)
}

func TestTroubleshootingTips(t *testing.T) {
	android := TroubleshootingTips(Target{Platform: PlatformAndroid, Device: DeviceEmulator, Mode: ModeDevelopment}, "http://10.0.2.2:3001/api")
	assert.Contains(t, android, "Verify the server is accessible at: http://10.0.2.2:3001/api")
	assert.Contains(t, android[len(android)-1], "10.0.2.2")

	ios := TroubleshootingTips(Target{Platform: PlatformIOS, Device: DevicePhysical, Mode: ModeDevelopment}, "http://192.168.1.23:3001/api")
	assert.Contains(t, ios[len(ios)-1], "actual IP address")

	release := TroubleshootingTips(Target{Platform: PlatformWeb, Mode: ModeRelease}, "https://api.example")
	assert.Len(t, release, 4)
}

func signedToken(t *testing.T, claims jwtlib.MapClaims) string {
	t.Helper()

	s, err := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
	require.NoError(t, err)

	return s
}

func TestInspectToken(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	nowFunc = func() time.Time { return now }
	t.Cleanup(func() { nowFunc = time.Now })

	raw := signedToken(t, jwtlib.MapClaims{
		"sub":    "alice",
		"userId": 1,
		"iat":    now.Add(-time.Hour).Unix(),
		"exp":    now.Add(-time.Minute).Unix(),
	})

	info, err := InspectToken(raw)
	require.NoError(t, err)
	assert.Equal(t, "alice", info.Subject)
	assert.Equal(t, "1", info.UserID)
	require.NotNil(t, info.ExpiresAt)
	assert.True(t, info.Expired)
	assert.Equal(t, now.Add(-time.Hour).Unix(), info.IssuedAt.Unix())
}

func TestInspectToken_NotJWT(t *testing.T) {
	_, err := InspectToken("opaque-token")
	require.ErrorIs(t, err, ErrNotJWT)

	_, err = InspectToken("a.b.c")
	require.Error(t, err)
}

type fakeValidator struct {
	user *api.User
	err  error
}

func (f fakeValidator) Me(context.Context) (*api.User, error) {
	return f.user, f.err
}

func TestDebugAuth(t *testing.T) {
	ctx := context.Background()

	t.Run("no token", func(t *testing.T) {
		r := DebugAuth(ctx, credstore.NewMemoryStore(), fakeValidator{err: errors.New("not called")}, nil)
		assert.False(t, r.HasToken)
		assert.Equal(t, "none", r.TokenPreview)
		assert.Empty(t, r.Error, "no validation without a token")
		assert.Equal(t, []string{"No token found: log in"}, r.Recommendations)
	})

	t.Run("valid", func(t *testing.T) {
		store := credstore.NewMemoryStore()
		token := signedToken(t, jwtlib.MapClaims{"sub": "alice", "exp": time.Now().Add(time.Hour).Unix()})
		require.NoError(t, store.Set(ctx, credstore.KeyAuthToken, token))
		require.NoError(t, store.Set(ctx, credstore.KeyRefreshToken, "R1"))
		require.NoError(t, store.Set(ctx, credstore.KeyCurrentUser, `{"id":1}`))

		r := DebugAuth(ctx, store, fakeValidator{user: &api.User{Username: "alice"}}, nil)
		assert.True(t, r.HasToken)
		assert.True(t, r.HasRefreshToken)
		assert.True(t, r.HasUser)
		assert.True(t, r.Valid)
		assert.Equal(t, len(token), r.TokenLength)
		assert.Equal(t, token[:previewLen]+"...", r.TokenPreview)
		require.NotNil(t, r.Token)
		assert.False(t, r.Token.Expired)
	})

	t.Run("unreachable", func(t *testing.T) {
		store := credstore.NewMemoryStore()
		require.NoError(t, store.Set(ctx, credstore.KeyAuthToken, "opaque-token-value"))

		r := DebugAuth(ctx, store, fakeValidator{err: &api.Error{Kind: api.KindNetwork, Detail: "timeout"}}, nil)
		assert.True(t, r.NetworkError)
		assert.False(t, r.Valid)
		assert.Nil(t, r.Token)
		assert.Contains(t, r.Recommendations[0], "unreachable")
	})

	t.Run("rejected", func(t *testing.T) {
		store := credstore.NewMemoryStore()
		require.NoError(t, store.Set(ctx, credstore.KeyAuthToken, "opaque-token-value"))

		r := DebugAuth(ctx, store, fakeValidator{err: &api.Error{Kind: api.KindAuthentication, RequiresLogin: true}}, nil)
		assert.True(t, r.AuthError)
		assert.Contains(t, r.Recommendations[0], "invalid")
	})
}

// Package session owns the signed-in state of the client: the current user,
// whether the session is authenticated, and whether a check is in progress.
// The persisted half of a session (tokens and the cached user record) lives
// in a credstore.Store; the manager derives its in-memory state from that
// store and from auth responses.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/tonimelisma/filevault-go/internal/api"
	"github.com/tonimelisma/filevault-go/internal/credstore"
)

// Failure messages used when the server supplies none.
const (
	LoginFailedMessage        = "Login failed"
	RegistrationFailedMessage = "Registration failed"
)

// State is a point in the session lifecycle.
type State int

const (
	Uninitialized State = iota
	Loading
	Authenticated
	Unauthenticated
)

func (s State) String() string {
	switch s {
	case Uninitialized:
		return "uninitialized"
	case Loading:
		return "loading"
	case Authenticated:
		return "authenticated"
	case Unauthenticated:
		return "unauthenticated"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// AuthAPI is the slice of the request pipeline the manager needs.
// *api.Client satisfies it.
type AuthAPI interface {
	Login(ctx context.Context, identifier, password string) (*api.AuthResult, error)
	Register(ctx context.Context, reg api.Registration) (*api.AuthResult, error)
	Logout(ctx context.Context) error
	Me(ctx context.Context) (*api.User, error)
}

// expiryNotifier is implemented by pipelines that clear the store on their own.
type expiryNotifier interface {
	OnSessionExpired(fn func())
}

// Result is the outcome of Login or Register. On failure Message is
// suitable for display and Err is the classified cause.
type Result struct {
	Success bool
	Message string
	User    *api.User
	Err     error
}

// Snapshot is a copy of the in-memory session.
type Snapshot struct {
	State State
	User  *api.User
}

// IsAuthenticated reports whether the snapshot holds a signed-in session.
func (s Snapshot) IsAuthenticated() bool {
	return s.State == Authenticated
}

// IsLoading reports whether a session check is in progress.
func (s Snapshot) IsLoading() bool {
	return s.State == Loading
}

// Manager is the single owner of session state for a process.
type Manager struct {
	auth   AuthAPI
	store  credstore.Store
	logger *slog.Logger

	// opMu serializes Initialize, Login, Register and Logout.
	opMu sync.Mutex

	mu    sync.RWMutex
	state State
	user  *api.User
}

// NewManager creates a manager in the Uninitialized state. If auth can
// report pipeline-triggered logouts, the manager subscribes to them.
func NewManager(auth AuthAPI, store credstore.Store, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}

	m := &Manager{auth: auth, store: store, logger: logger}

	if n, ok := auth.(expiryNotifier); ok {
		n.OnSessionExpired(m.handleExpired)
	}

	return m
}

// Snapshot returns a copy of the current session state.
func (m *Manager) Snapshot() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return Snapshot{State: m.state, User: m.user}
}

func (m *Manager) set(state State, user *api.User) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.state = state
	m.user = user
}

func (m *Manager) setState(state State) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.state = state
}

// Initialize restores a persisted session. A cached user record is
// validated against the server; any failure ends in a local logout. It
// never fails and always leaves the manager Authenticated or Unauthenticated.
func (m *Manager) Initialize(ctx context.Context) Snapshot {
	m.opMu.Lock()
	defer m.opMu.Unlock()

	m.setState(Loading)

	raw, ok := m.store.Get(ctx, credstore.KeyCurrentUser)
	if !ok || raw == "" {
		m.logger.Debug("no cached user, session starts signed out")
		m.set(Unauthenticated, nil)

		return m.Snapshot()
	}

	var cached api.User
	if err := json.Unmarshal([]byte(raw), &cached); err != nil {
		m.logger.Warn("cached user record is unreadable, signing out", slog.String("error", err.Error()))
		m.clearLocal(ctx)

		return m.Snapshot()
	}

	user, err := m.auth.Me(ctx)
	if err != nil {
		m.logger.Info("stored session is no longer valid, signing out",
			slog.String("error", err.Error()),
			slog.Bool("network", api.IsKind(err, api.KindNetwork)),
		)
		m.clearLocal(ctx)

		return m.Snapshot()
	}

	if err := m.persistUser(ctx, user); err != nil {
		m.logger.Warn("could not cache refreshed user record", slog.String("error", err.Error()))
	}

	m.set(Authenticated, user)
	m.logger.Info("session restored", slog.String("username", user.Username))

	return m.Snapshot()
}

// RefreshAuth re-validates the persisted session.
func (m *Manager) RefreshAuth(ctx context.Context) Snapshot {
	return m.Initialize(ctx)
}

// Login signs in and persists the new session.
func (m *Manager) Login(ctx context.Context, identifier, password string) Result {
	m.opMu.Lock()
	defer m.opMu.Unlock()

	res, err := m.auth.Login(ctx, identifier, password)

	return m.establish(ctx, "login", res, err, LoginFailedMessage)
}

// Register creates an account; the new account is signed in at once.
func (m *Manager) Register(ctx context.Context, reg api.Registration) Result {
	m.opMu.Lock()
	defer m.opMu.Unlock()

	res, err := m.auth.Register(ctx, reg)

	return m.establish(ctx, "register", res, err, RegistrationFailedMessage)
}

// establish persists a confirmed auth response. Tokens and the user record
// are written together; if any write fails the partial session is cleared.
func (m *Manager) establish(ctx context.Context, op string, res *api.AuthResult, err error, fallback string) Result {
	if err == nil && (res == nil || res.User == nil || res.AccessToken == "") {
		err = &api.Error{Kind: api.KindServer, Message: fallback}
	}

	if err != nil {
		err = classify(err)
		msg := FailureMessage(err, fallback)

		m.logger.Info(op+" failed",
			slog.String("message", msg),
			slog.String("error", err.Error()),
		)

		return Result{Message: msg, Err: err}
	}

	if err := m.persist(ctx, res); err != nil {
		if clearErr := m.store.Clear(ctx); clearErr != nil {
			m.logger.Error("rolling back partial session failed", slog.String("error", clearErr.Error()))
		}

		m.set(Unauthenticated, nil)

		storageErr := &api.Error{Kind: api.KindStorage, Message: "could not save session", Err: err}

		m.logger.Error(op+" succeeded but the session could not be saved", slog.String("error", err.Error()))

		return Result{Message: "Could not save your session on this device.", Err: storageErr}
	}

	m.set(Authenticated, res.User)
	m.logger.Info(op+" succeeded", slog.String("username", res.User.Username))

	return Result{Success: true, User: res.User}
}

func (m *Manager) persist(ctx context.Context, res *api.AuthResult) error {
	if err := m.store.Set(ctx, credstore.KeyAuthToken, res.AccessToken); err != nil {
		return err
	}

	// A response without a refresh token leaves none stored.
	if res.RefreshToken == "" {
		if err := m.store.Remove(ctx, credstore.KeyRefreshToken); err != nil {
			return err
		}
	} else if err := m.store.Set(ctx, credstore.KeyRefreshToken, res.RefreshToken); err != nil {
		return err
	}

	return m.persistUser(ctx, res.User)
}

func (m *Manager) persistUser(ctx context.Context, user *api.User) error {
	data, err := json.Marshal(user)
	if err != nil {
		return fmt.Errorf("session: encoding user record: %w", err)
	}

	return m.store.Set(ctx, credstore.KeyCurrentUser, string(data))
}

// Logout ends the session. The server is told on a best-effort basis; the
// local session is cleared regardless. The returned error reports only a
// failure to clear the store.
func (m *Manager) Logout(ctx context.Context) error {
	m.opMu.Lock()
	defer m.opMu.Unlock()

	if err := m.auth.Logout(ctx); err != nil {
		m.logger.Debug("logout request failed, clearing local session anyway", slog.String("error", err.Error()))
	}

	return m.clearLocal(ctx)
}

// clearLocal wipes the persisted and in-memory session.
func (m *Manager) clearLocal(ctx context.Context) error {
	m.set(Unauthenticated, nil)

	if err := m.store.Clear(ctx); err != nil {
		m.logger.Error("clearing credentials failed", slog.String("error", err.Error()))
		return fmt.Errorf("session: clearing credentials: %w", err)
	}

	return nil
}

// handleExpired runs after the pipeline cleared the store itself.
func (m *Manager) handleExpired() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state == Authenticated {
		m.logger.Info("session expired, signed out")
	}

	// A concurrent Initialize keeps its Loading state and settles on its own.
	if m.state != Loading {
		m.state = Unauthenticated
	}

	m.user = nil
}

// FailureMessage picks the text to show for a failed auth operation: the
// fixed connection message for network failures, else the server's
// message, else fallback.
func FailureMessage(err error, fallback string) string {
	var apiErr *api.Error
	if !errors.As(err, &apiErr) {
		return fallback
	}

	switch {
	case apiErr.Kind == api.KindNetwork:
		return api.ConnectionFailedMessage
	case apiErr.Message != "":
		return apiErr.Message
	default:
		return fallback
	}
}

// classify ensures err is an *api.Error.
func classify(err error) error {
	var apiErr *api.Error
	if errors.As(err, &apiErr) {
		return err
	}

	return &api.Error{Kind: api.KindServer, Err: err}
}

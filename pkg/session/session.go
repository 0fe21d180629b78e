// Package session owns the process-wide login state. Everything that needs to
// know whether the agent is logged in, or who they are, asks the Manager.
package session

import (
	"context"
	"sync"

	"github.com/mousybusiness/moroccoview/internal/errs"
	"github.com/mousybusiness/moroccoview/pkg/creds"
	"github.com/mousybusiness/moroccoview/pkg/identity"
	"github.com/mousybusiness/moroccoview/pkg/tokenstore"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"golang.org/x/oauth2"
	"golang.org/x/sync/singleflight"
)

// Exchanger talks to the identity provider.
type Exchanger interface {
	Login(username, password string) (*creds.Grant, error)
	Refresh(refreshToken creds.RefreshToken) (*creds.Grant, error)
}

type State int

const (
	// StateAnonymous means no tokens are stored.
	StateAnonymous State = iota
	// StateAuthenticated means a usable access token is stored.
	StateAuthenticated
	// StateExpired means tokens are stored but a new login is required.
	StateExpired
)

func (s State) String() string {
	switch s {
	case StateAuthenticated:
		return "authenticated"
	case StateExpired:
		return "expired"
	}
	return "anonymous"
}

type EventType int

const (
	EventLogin EventType = iota
	EventRefresh
	EventRefreshFailed
	EventLogout
	EventUnauthorized
)

func (e EventType) String() string {
	return [...]string{"login", "refresh", "refresh_failed", "logout", "unauthorized"}[e]
}

type Event struct {
	Type EventType
	Err  error
}

type Config struct {
	// DedupeRefresh makes concurrent callers share one refresh exchange.
	// Without it every caller that finds an expired token refreshes on its own.
	DedupeRefresh bool
}

type Manager struct {
	store     *tokenstore.Store
	exchanger Exchanger
	config    Config
	group     singleflight.Group

	mu     sync.RWMutex
	nextID int
	subs   map[int]func(Event)
}

func New(store *tokenstore.Store, exchanger Exchanger, config Config) *Manager {
	return &Manager{
		store:     store,
		exchanger: exchanger,
		config:    config,
		subs:      map[int]func(Event){},
	}
}

// Login runs the credential exchange and persists the resulting pair.
func (m *Manager) Login(ctx context.Context, username, password string) (creds.TokenPair, error) {
	grant, err := m.exchanger.Login(username, password)
	if err != nil {
		if errs.IsInvalidCredentials(err) {
			log.Infof("login rejected for %v", redact(username))
		} else {
			log.Errorf("login failed for %v, err: %v", redact(username), err)
		}
		return creds.TokenPair{}, err
	}

	pair, err := m.store.Save(ctx, *grant)
	if err != nil {
		return creds.TokenPair{}, err
	}

	log.Infof("logged in as %v", redact(username))
	m.publish(Event{Type: EventLogin})
	return pair, nil
}

// Logout invalidates the session by clearing every stored token.
func (m *Manager) Logout(ctx context.Context) error {
	if err := m.store.Clear(ctx); err != nil {
		return err
	}
	m.publish(Event{Type: EventLogout})
	return nil
}

// Authenticated reports session presence: an access token is stored.
// An expired token still counts until a refresh fails.
func (m *Manager) Authenticated(ctx context.Context) (bool, error) {
	pair, err := m.store.Read(ctx)
	if err != nil {
		return false, err
	}
	return pair.Present(), nil
}

// Identity decodes whatever access token is stored right now.
func (m *Manager) Identity(ctx context.Context) (identity.Identity, bool, error) {
	pair, err := m.store.Read(ctx)
	if err != nil {
		return identity.Identity{}, false, err
	}
	id, ok := identity.FromToken(pair.AccessToken)
	return id, ok, nil
}

// Tokens returns the stored pair as is.
func (m *Manager) Tokens(ctx context.Context) (creds.TokenPair, error) {
	return m.store.Read(ctx)
}

// Restore checks a stored session at start up, refreshing it if the access
// token is expired and the refresh token is not.
func (m *Manager) Restore(ctx context.Context) (State, error) {
	pair, err := m.store.Read(ctx)
	if err != nil {
		return StateAnonymous, err
	}

	if pair.AccessToken == "" || pair.RefreshToken == "" {
		return StateAnonymous, nil
	}

	now := m.store.Now()
	if !pair.AccessExpired(now) {
		return StateAuthenticated, nil
	}

	if pair.RefreshExpired(now) {
		log.Debugf("both tokens expired")
		return StateExpired, nil
	}

	if _, err := m.refresh(ctx); err != nil {
		log.Warnf("failed to restore session: %v", err)
		return StateExpired, nil
	}
	return StateAuthenticated, nil
}

// Token returns the bearer token to attach to an outbound request, refreshing
// first when the stored one is expired. It returns nil without error when no
// session exists, and a RefreshFailure when renewing failed.
func (m *Manager) Token(ctx context.Context) (*oauth2.Token, error) {
	pair, err := m.store.Read(ctx)
	if err != nil {
		return nil, err
	}

	if !pair.Present() {
		return nil, nil
	}

	if !m.store.Expired(pair.AccessExpiresAt) {
		return bearer(pair), nil
	}

	fresh, err := m.refresh(ctx)
	if err != nil {
		return nil, err
	}
	return bearer(fresh), nil
}

func (m *Manager) refresh(ctx context.Context) (creds.TokenPair, error) {
	if !m.config.DedupeRefresh {
		return m.doRefresh(ctx)
	}

	v, err, shared := m.group.Do("refresh", func() (interface{}, error) {
		return m.doRefresh(ctx)
	})
	if err != nil {
		return creds.TokenPair{}, err
	}
	if shared {
		log.Debugf("joined in-flight refresh")
	}
	return v.(creds.TokenPair), nil
}

func (m *Manager) doRefresh(ctx context.Context) (creds.TokenPair, error) {
	pair, err := m.store.Read(ctx)
	if err != nil {
		return creds.TokenPair{}, errs.NewRefreshFailure(err)
	}

	if pair.RefreshToken == "" {
		return creds.TokenPair{}, m.refreshFailed(errs.ErrNoRefreshToken)
	}

	grant, err := m.exchanger.Refresh(pair.RefreshToken)
	if err != nil {
		return creds.TokenPair{}, m.refreshFailed(err)
	}

	fresh, err := m.store.Save(ctx, *grant)
	if err != nil {
		return creds.TokenPair{}, m.refreshFailed(errors.Wrap(err, "failed to persist refreshed tokens"))
	}

	m.publish(Event{Type: EventRefresh})
	return fresh, nil
}

func (m *Manager) refreshFailed(err error) error {
	err = errs.NewRefreshFailure(err)
	m.publish(Event{Type: EventRefreshFailed, Err: err})
	return err
}

// Unauthorized records that the backend rejected a request with 401. The
// stored tokens are left alone; subscribers decide what, if anything, to do.
func (m *Manager) Unauthorized() {
	m.publish(Event{Type: EventUnauthorized})
}

// Subscribe registers fn for session events; call the returned func to stop.
// fn runs synchronously on the goroutine that caused the event.
func (m *Manager) Subscribe(fn func(Event)) func() {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := m.nextID
	m.nextID++
	m.subs[id] = fn
	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.subs, id)
	}
}

func (m *Manager) publish(e Event) {
	m.mu.RLock()
	fns := make([]func(Event), 0, len(m.subs))
	for _, fn := range m.subs {
		fns = append(fns, fn)
	}
	m.mu.RUnlock()

	for _, fn := range fns {
		fn(e)
	}
}

func bearer(pair creds.TokenPair) *oauth2.Token {
	return &oauth2.Token{
		AccessToken:  string(pair.AccessToken),
		TokenType:    "Bearer",
		RefreshToken: string(pair.RefreshToken),
		Expiry:       pair.AccessExpiresAt,
	}
}

func redact(username string) string {
	if len(username) > 2 {
		return username[:2] + "***"
	}
	return "***"
}

// Package tokenstore persists the session token pair under the four keys the
// dashboard has always used, so any client sharing the storage sees one session.
package tokenstore

import (
	"context"
	"strconv"
	"time"

	"github.com/mousybusiness/moroccoview/pkg/creds"
	"github.com/pkg/errors"
)

const (
	AccessTokenKey           = "access_token"
	RefreshTokenKey          = "refresh_token"
	TokenExpiresAtKey        = "token_expires_at"
	RefreshTokenExpiresAtKey = "refresh_token_expires_at"
)

var keys = []string{AccessTokenKey, RefreshTokenKey, TokenExpiresAtKey, RefreshTokenExpiresAtKey}

type Store struct {
	storage Storage
	now     func() time.Time
}

type Option func(*Store)

// WithClock replaces time.Now when computing expiry instants.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

func New(storage Storage, options ...Option) *Store {
	s := &Store{storage: storage, now: time.Now}
	for _, opt := range options {
		opt(s)
	}
	return s
}

// Now is the store's clock.
func (s *Store) Now() time.Time {
	return s.now()
}

// Save anchors the grant at the current time and overwrites the stored pair.
func (s *Store) Save(ctx context.Context, grant creds.Grant) (creds.TokenPair, error) {
	pair := grant.Pair(s.now())

	values := map[string]string{
		AccessTokenKey:           string(pair.AccessToken),
		RefreshTokenKey:          string(pair.RefreshToken),
		TokenExpiresAtKey:        formatMillis(pair.AccessExpiresAt),
		RefreshTokenExpiresAtKey: formatMillis(pair.RefreshExpiresAt),
	}
	for _, k := range keys {
		if err := s.storage.Set(ctx, k, values[k]); err != nil {
			return creds.TokenPair{}, errors.Wrapf(err, "failed to save %v", k)
		}
	}

	// read back what a later Read would see, millisecond precision included
	pair.AccessExpiresAt = time.UnixMilli(pair.AccessExpiresAt.UnixMilli())
	pair.RefreshExpiresAt = time.UnixMilli(pair.RefreshExpiresAt.UnixMilli())
	return pair, nil
}

// Read returns whatever is stored. Absent or unparseable fields come back
// zero; only storage failures are errors.
func (s *Store) Read(ctx context.Context) (creds.TokenPair, error) {
	values := make(map[string]string, len(keys))
	for _, k := range keys {
		v, ok, err := s.storage.Get(ctx, k)
		if err != nil {
			return creds.TokenPair{}, errors.Wrapf(err, "failed to read %v", k)
		}
		if ok {
			values[k] = v
		}
	}

	return creds.TokenPair{
		AccessToken:      creds.AccessToken(values[AccessTokenKey]),
		RefreshToken:     creds.RefreshToken(values[RefreshTokenKey]),
		AccessExpiresAt:  parseMillis(values[TokenExpiresAtKey]),
		RefreshExpiresAt: parseMillis(values[RefreshTokenExpiresAtKey]),
	}, nil
}

// Clear removes all four keys. Clearing an empty store is not an error.
func (s *Store) Clear(ctx context.Context) error {
	if err := s.storage.Delete(ctx, keys...); err != nil {
		return errors.Wrap(err, "failed to clear tokens")
	}
	return nil
}

// Expired applies the store's clock to at.
func (s *Store) Expired(at time.Time) bool {
	return creds.Expired(at, s.now())
}

func formatMillis(t time.Time) string {
	return strconv.FormatInt(t.UnixMilli(), 10)
}

func parseMillis(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	ms, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return time.Time{}
	}
	return time.UnixMilli(ms)
}

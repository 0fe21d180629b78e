package creds

import (
	"time"
)

type (
	// AccessToken is a short-lived bearer credential for API calls.
	AccessToken string

	// RefreshToken is used to refresh user credentials
	// without requiring user input. Keep this secure.
	RefreshToken string

	// Grant is what the identity provider hands back from a token exchange.
	// Lifetimes are relative to the moment the reply was received.
	Grant struct {
		AccessToken
		RefreshToken
		ExpiresIn        time.Duration
		RefreshExpiresIn time.Duration
		TokenType        string
		Scope            string
		IDToken          string
	}

	// TokenPair is the persisted session. A zero instant means the value
	// was absent or could not be parsed.
	TokenPair struct {
		AccessToken
		RefreshToken
		AccessExpiresAt  time.Time
		RefreshExpiresAt time.Time
	}
)

// Pair anchors the grant's lifetimes at now.
func (g Grant) Pair(now time.Time) TokenPair {
	return TokenPair{
		AccessToken:      g.AccessToken,
		RefreshToken:     g.RefreshToken,
		AccessExpiresAt:  now.Add(g.ExpiresIn),
		RefreshExpiresAt: now.Add(g.RefreshExpiresIn),
	}
}

// Present reports whether an access token is stored, valid or not.
func (p TokenPair) Present() bool {
	return p.AccessToken != ""
}

// AccessExpired reports whether the access token needs refreshing at now.
func (p TokenPair) AccessExpired(now time.Time) bool {
	return Expired(p.AccessExpiresAt, now)
}

// RefreshExpired reports whether the refresh token can no longer be used at now.
func (p TokenPair) RefreshExpired(now time.Time) bool {
	return Expired(p.RefreshExpiresAt, now)
}

// Expired is true when at is absent or now has reached it.
func Expired(at time.Time, now time.Time) bool {
	if at.IsZero() {
		return true
	}
	return !now.Before(at)
}

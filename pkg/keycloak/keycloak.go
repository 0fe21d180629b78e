// Package keycloak exchanges credentials with a Keycloak realm's
// OpenID Connect token endpoint.
package keycloak

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/mousybusiness/go-web/web"
	"github.com/mousybusiness/moroccoview/internal/errs"
	"github.com/mousybusiness/moroccoview/pkg/creds"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

const (
	defaultTimeout = time.Second * 60

	invalidCredentials = "Invalid credentials"
	exchangeFailed     = "error response from token exchange"
)

type Config struct {
	// URL of the Keycloak server
	// e.g. "http://localhost:8080"
	URL string
	// Realm holding the agency users
	// e.g. "morocco-view"
	Realm string
	// ClientID of the public client the dashboard logs in through
	// e.g. "morocco-view-client"
	ClientID string
	// Timeout per token request
	// default 60s
	Timeout time.Duration

	tokenURL string // generated from URL and Realm
}

type Client struct {
	config Config
}

// tokenResponse is the subset of the token endpoint reply we consume.
type tokenResponse struct {
	AccessToken      string `json:"access_token"`
	RefreshToken     string `json:"refresh_token"`
	ExpiresIn        int64  `json:"expires_in"`
	RefreshExpiresIn int64  `json:"refresh_expires_in"`
	TokenType        string `json:"token_type"`
	Scope            string `json:"scope"`
	IDToken          string `json:"id_token"`
}

func New(config Config) (*Client, error) {
	if config.URL == "" {
		return nil, errors.New("require URL")
	}

	if config.Realm == "" {
		return nil, errors.New("require Realm")
	}

	if config.ClientID == "" {
		return nil, errors.New("require ClientID")
	}

	if config.Timeout <= 0 {
		config.Timeout = defaultTimeout
	}

	if strings.HasPrefix(config.URL, "http://") && !isLocal(config.URL) {
		log.Warn("identity provider URL is unencrypted")
	}

	config.tokenURL = TokenURL(config.URL, config.Realm)

	return &Client{config: config}, nil
}

// TokenURL is the realm's token endpoint.
func TokenURL(base, realm string) string {
	return fmt.Sprintf("%s/realms/%s/protocol/openid-connect/token", strings.TrimRight(base, "/"), url.PathEscape(realm))
}

// Login trades a username and password for a token pair using the password grant.
// Client errors from the provider come back as errs.InvalidCredentials.
func (c *Client) Login(username, password string) (*creds.Grant, error) {
	params := url.Values{}
	params.Add("grant_type", "password")
	params.Add("client_id", c.config.ClientID)
	params.Add("username", username)
	params.Add("password", password)

	code, body, err := c.post(params)
	if err != nil {
		return nil, err
	}

	if code >= http.StatusBadRequest && code < http.StatusInternalServerError {
		log.Debugf("credential exchange rejected, code: %d", code)
		return nil, errs.InvalidCredentials{HttpError: errs.NewHttpError(code, body, invalidCredentials)}
	}

	if code != http.StatusOK {
		return nil, errs.NewHttpError(code, body, exchangeFailed)
	}

	return parse(body)
}

// Refresh trades a refresh token for a new token pair.
func (c *Client) Refresh(refreshToken creds.RefreshToken) (*creds.Grant, error) {
	params := url.Values{}
	params.Add("grant_type", "refresh_token")
	params.Add("client_id", c.config.ClientID)
	params.Add("refresh_token", string(refreshToken))

	code, body, err := c.post(params)
	if err != nil {
		return nil, err
	}

	if code != http.StatusOK {
		return nil, errs.NewHttpError(code, body, exchangeFailed)
	}

	g, err := parse(body)
	if err != nil {
		return nil, err
	}

	log.Debugf("refresh successful!")
	return g, nil
}

func (c *Client) post(params url.Values) (int, []byte, error) {
	code, body, err := web.Post(c.config.tokenURL, c.config.Timeout, []byte(params.Encode()),
		web.KV{Key: "Accept", Value: "application/json"},
		web.KV{Key: "Content-Type", Value: "application/x-www-form-urlencoded"},
		web.KV{Key: "Cache-Control", Value: "no-cache"},
	)
	if err != nil {
		return 0, nil, errors.Wrap(err, "token request failed")
	}
	return code, body, nil
}

func parse(body []byte) (*creds.Grant, error) {
	var r tokenResponse
	if err := json.Unmarshal(body, &r); err != nil {
		return nil, errors.Wrap(errs.ErrMalformedGrant, err.Error())
	}

	if r.AccessToken == "" {
		return nil, errs.ErrMalformedGrant
	}

	return &creds.Grant{
		AccessToken:      creds.AccessToken(r.AccessToken),
		RefreshToken:     creds.RefreshToken(r.RefreshToken),
		ExpiresIn:        time.Duration(r.ExpiresIn) * time.Second,
		RefreshExpiresIn: time.Duration(r.RefreshExpiresIn) * time.Second,
		TokenType:        r.TokenType,
		Scope:            r.Scope,
		IDToken:          r.IDToken,
	}, nil
}

func isLocal(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	h := u.Hostname()
	return h == "localhost" || h == "127.0.0.1" || h == "::1"
}

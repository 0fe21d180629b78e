// Package authn assembles the session, provider, storage and API client from
// configuration.
package authn

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/mousybusiness/moroccoview/internal/config"
	"github.com/mousybusiness/moroccoview/pkg/agency"
	"github.com/mousybusiness/moroccoview/pkg/keycloak"
	"github.com/mousybusiness/moroccoview/pkg/session"
	"github.com/mousybusiness/moroccoview/pkg/tokenstore"
	"github.com/mousybusiness/moroccoview/pkg/transport"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

type Client struct {
	Session *session.Manager
	Agency  *agency.Client

	config  config.Config
	closers []func() error
}

type options struct {
	storage   tokenstore.Storage
	clock     func() time.Time
	transport http.RoundTripper
}

type Option func(*options)

// WithStorage overrides the configured storage backend.
func WithStorage(storage tokenstore.Storage) Option {
	return func(o *options) { o.storage = storage }
}

// WithClock replaces time.Now for expiry decisions.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.clock = now }
}

// WithTransport sets the transport under the bearer round tripper.
func WithTransport(rt http.RoundTripper) Option {
	return func(o *options) { o.transport = rt }
}

func New(ctx context.Context, cfg config.Config, opts ...Option) (*Client, error) {
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}

	c := &Client{config: cfg}

	storage := o.storage
	if storage == nil {
		var err error
		if storage, err = c.openStorage(ctx); err != nil {
			return nil, err
		}
	}

	var storeOpts []tokenstore.Option
	if o.clock != nil {
		storeOpts = append(storeOpts, tokenstore.WithClock(o.clock))
	}
	store := tokenstore.New(storage, storeOpts...)

	provider, err := keycloak.New(keycloak.Config{
		URL:      cfg.Provider.URL,
		Realm:    cfg.Provider.Realm,
		ClientID: cfg.Provider.ClientID,
		Timeout:  cfg.Provider.Timeout,
	})
	if err != nil {
		_ = c.Close()
		return nil, errors.Wrap(err, "invalid provider config")
	}

	c.Session = session.New(store, provider, session.Config{DedupeRefresh: cfg.Refresh.Dedupe})

	rtOpts := []transport.Option{
		transport.WithUnauthorized(func(*http.Response) { c.Session.Unauthorized() }),
	}
	if o.transport != nil {
		rtOpts = append(rtOpts, transport.WithTransport(o.transport))
	}
	httpClient := transport.New(c.Session, rtOpts...).Client()
	httpClient.Timeout = cfg.API.Timeout

	if c.Agency, err = agency.New(cfg.API.BaseURL, httpClient); err != nil {
		_ = c.Close()
		return nil, err
	}

	return c, nil
}

func (c *Client) openStorage(ctx context.Context) (tokenstore.Storage, error) {
	switch c.config.Storage.Driver {
	case config.DriverMemory:
		log.Warn("memory storage selected, the session ends with the process")
		return tokenstore.NewMemory(), nil
	case config.DriverRedis:
		storage, closeFn, err := tokenstore.NewRedis(ctx, c.config.Storage.RedisURL, c.config.Storage.Prefix)
		if err != nil {
			return nil, err
		}
		c.closers = append(c.closers, closeFn)
		return storage, nil
	case config.DriverFile, "":
		return tokenstore.NewFile(c.config.Storage.URL), nil
	}
	return nil, errors.Errorf("unknown storage driver %q", c.config.Storage.Driver)
}

// AccountURL is the realm's self-service account console.
func (c *Client) AccountURL() string {
	return fmt.Sprintf("%s/realms/%s/account", strings.TrimRight(c.config.Provider.URL, "/"), c.config.Provider.Realm)
}

func (c *Client) Close() error {
	var first error
	for _, fn := range c.closers {
		if err := fn(); err != nil && first == nil {
			first = err
		}
	}
	c.closers = nil
	return first
}

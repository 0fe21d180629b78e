// Package transport attaches the session's bearer token to outbound API requests.
package transport

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"golang.org/x/oauth2"
)

const requestIDHeader = "X-Request-Id"

// TokenSource yields the token for a request, or nil when there is no session.
type TokenSource interface {
	Token(ctx context.Context) (*oauth2.Token, error)
}

type RoundTripper struct {
	source         TokenSource
	transport      http.RoundTripper
	onUnauthorized func(*http.Response)
}

type Option func(*RoundTripper)

// WithTransport sets the underlying transport, http.DefaultTransport by default.
func WithTransport(transport http.RoundTripper) Option {
	return func(r *RoundTripper) {
		r.transport = transport
	}
}

// WithUnauthorized registers fn for responses with status 401.
func WithUnauthorized(fn func(*http.Response)) Option {
	return func(r *RoundTripper) {
		r.onUnauthorized = fn
	}
}

func New(source TokenSource, options ...Option) *RoundTripper {
	ret := &RoundTripper{
		source:    source,
		transport: http.DefaultTransport,
	}
	for _, opt := range options {
		opt(ret)
	}
	return ret
}

// RoundTrip sends req with the current bearer token. When the token could not
// be refreshed the request still goes out, unauthenticated.
func (r *RoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	out := req.Clone(req.Context())

	if out.Header.Get(requestIDHeader) == "" {
		out.Header.Set(requestIDHeader, uuid.NewString())
	}

	tok, err := r.source.Token(req.Context())
	switch {
	case err != nil:
		log.Warnf("failed to refresh token, sending %v %v unauthenticated: %v", req.Method, req.URL.Path, err)
	case tok != nil:
		tok.SetAuthHeader(out)
	}

	resp, err := r.transport.RoundTrip(out)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode == http.StatusUnauthorized {
		log.Warnf("unauthorized: %v %v", req.Method, req.URL.Path)
		if r.onUnauthorized != nil {
			r.onUnauthorized(resp)
		}
	}
	return resp, nil
}

// Client wraps the round tripper in an http.Client.
func (r *RoundTripper) Client() *http.Client {
	return &http.Client{Transport: r}
}

package keycloak

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/mousybusiness/moroccoview/internal/errs"
	"github.com/mousybusiness/moroccoview/pkg/creds"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const tokenPath = "/realms/morocco-view/protocol/openid-connect/token"

func newClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c, err := New(Config{URL: srv.URL, Realm: "morocco-view", ClientID: "morocco-view-client", Timeout: 5 * time.Second})
	require.NoError(t, err)
	return c
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func TestNew(t *testing.T) {
	_, err := New(Config{Realm: "r", ClientID: "c"})
	assert.EqualError(t, err, "require URL")
	_, err = New(Config{URL: "http://localhost:8080", ClientID: "c"})
	assert.EqualError(t, err, "require Realm")
	_, err = New(Config{URL: "http://localhost:8080", Realm: "r"})
	assert.EqualError(t, err, "require ClientID")

	c, err := New(Config{URL: "http://localhost:8080/", Realm: "morocco-view", ClientID: "c"})
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:8080"+tokenPath, c.config.tokenURL)
	assert.Equal(t, defaultTimeout, c.config.Timeout)
}

func TestLogin(t *testing.T) {
	c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, tokenPath, r.URL.Path)
		assert.Equal(t, "application/x-www-form-urlencoded", r.Header.Get("Content-Type"))
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "password", r.PostForm.Get("grant_type"))
		assert.Equal(t, "morocco-view-client", r.PostForm.Get("client_id"))
		assert.Equal(t, "agent@atlas.ma", r.PostForm.Get("username"))
		assert.Equal(t, "s3cret", r.PostForm.Get("password"))

		writeJSON(w, http.StatusOK, map[string]interface{}{
			"access_token":       "access-1",
			"refresh_token":      "refresh-1",
			"expires_in":         300,
			"refresh_expires_in": 1800,
			"token_type":         "Bearer",
		})
	})

	g, err := c.Login("agent@atlas.ma", "s3cret")
	require.NoError(t, err)
	assert.Equal(t, creds.AccessToken("access-1"), g.AccessToken)
	assert.Equal(t, creds.RefreshToken("refresh-1"), g.RefreshToken)
	assert.Equal(t, 300*time.Second, g.ExpiresIn)
	assert.Equal(t, 1800*time.Second, g.RefreshExpiresIn)
	assert.Equal(t, "Bearer", g.TokenType)
}

func TestLoginClientErrors(t *testing.T) {
	tests := []struct {
		name string
		code int
		body interface{}
		want string
	}{
		{
			name: "provider description",
			code: http.StatusUnauthorized,
			body: map[string]string{"error": "invalid_grant", "error_description": "Invalid user credentials"},
			want: "Invalid user credentials",
		},
		{
			name: "no description",
			code: http.StatusBadRequest,
			body: map[string]string{"error": "invalid_request"},
			want: invalidCredentials,
		},
		{
			name: "account disabled",
			code: http.StatusBadRequest,
			body: map[string]string{"error": "invalid_grant", "error_description": "Account disabled"},
			want: "Account disabled",
		},
		{
			name: "upper bound",
			code: 499,
			body: nil,
			want: invalidCredentials,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
				writeJSON(w, tt.code, tt.body)
			})

			_, err := c.Login("agent", "wrong")
			require.Error(t, err)
			assert.True(t, errs.IsInvalidCredentials(err))
			assert.Equal(t, errs.KindInvalidCredentials, errs.Kind(err))
			assert.Equal(t, tt.want, err.Error())

			code, ok := errs.ExtractHttpError(err)
			require.True(t, ok)
			assert.Equal(t, tt.code, code)
		})
	}
}

func TestLoginServerErrorPropagates(t *testing.T) {
	c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error_description": "maintenance"})
	})

	_, err := c.Login("agent", "s3cret")
	require.Error(t, err)
	assert.False(t, errs.IsInvalidCredentials(err))
	assert.Equal(t, errs.KindTransportFailure, errs.Kind(err))

	code, ok := errs.ExtractHttpError(err)
	require.True(t, ok)
	assert.Equal(t, http.StatusServiceUnavailable, code)
}

func TestLoginNetworkError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()

	c, err := New(Config{URL: srv.URL, Realm: "morocco-view", ClientID: "c", Timeout: time.Second})
	require.NoError(t, err)

	_, err = c.Login("agent", "s3cret")
	require.Error(t, err)
	assert.False(t, errs.IsInvalidCredentials(err))
	_, ok := errs.ExtractHttpError(err)
	assert.False(t, ok)
}

func TestRefresh(t *testing.T) {
	var calls int32
	c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "refresh_token", r.PostForm.Get("grant_type"))
		assert.Equal(t, "morocco-view-client", r.PostForm.Get("client_id"))
		assert.Equal(t, "refresh-1", r.PostForm.Get("refresh_token"))

		writeJSON(w, http.StatusOK, map[string]interface{}{
			"access_token":       "access-2",
			"refresh_token":      "refresh-2",
			"expires_in":         300,
			"refresh_expires_in": 1800,
		})
	})

	g, err := c.Refresh("refresh-1")
	require.NoError(t, err)
	assert.Equal(t, creds.AccessToken("access-2"), g.AccessToken)
	assert.Equal(t, creds.RefreshToken("refresh-2"), g.RefreshToken)
	assert.EqualValues(t, 1, atomic.LoadInt32(&calls))
}

func TestRefreshErrorsAreNotClassified(t *testing.T) {
	var calls int32
	c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid_grant", "error_description": "Token is not active"})
	})

	_, err := c.Refresh("stale")
	require.Error(t, err)
	assert.False(t, errs.IsInvalidCredentials(err))
	code, ok := errs.ExtractHttpError(err)
	require.True(t, ok)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Contains(t, err.Error(), "Token is not active")
	assert.EqualValues(t, 1, atomic.LoadInt32(&calls), "no retry")
}

func TestMalformedGrant(t *testing.T) {
	c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]interface{}{"refresh_token": "r"})
	})

	_, err := c.Refresh("r")
	assert.True(t, errors.Is(err, errs.ErrMalformedGrant))

	c = newClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("not json"))
	})
	_, err = c.Login("a", "b")
	assert.True(t, errors.Is(err, errs.ErrMalformedGrant))
}

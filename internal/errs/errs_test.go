package errs

import (
	"net/http"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMessage(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{name: "description", body: `{"error":"invalid_grant","error_description":"Invalid user credentials"}`, want: "Invalid user credentials"},
		{name: "backend message", body: `{"message":"email taken"}`, want: "email taken"},
		{name: "code only", body: `{"error":"invalid_grant"}`, want: "fallback"},
		{name: "not json", body: `<html>oops</html>`, want: "fallback"},
		{name: "empty", body: ``, want: "fallback"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Message([]byte(tt.body), "fallback"))
		})
	}
}

func TestHttpError(t *testing.T) {
	err := error(NewHttpError(http.StatusBadGateway, nil, "error response from token exchange"))

	code, ok := ExtractHttpError(errors.Wrap(err, "login"))
	require.True(t, ok)
	assert.Equal(t, http.StatusBadGateway, code)
	assert.Contains(t, err.Error(), "HttpError[502]")

	_, ok = ExtractHttpError(errors.New("dial tcp: refused"))
	assert.False(t, ok)
}

func TestKind(t *testing.T) {
	invalid := InvalidCredentials{NewHttpError(http.StatusUnauthorized, nil, "Invalid credentials")}

	assert.Equal(t, KindNone, Kind(nil))
	assert.Equal(t, KindInvalidCredentials, Kind(invalid))
	assert.Equal(t, "Invalid credentials", invalid.Error())
	assert.Equal(t, KindRefreshFailure, Kind(NewRefreshFailure(errors.New("boom"))))
	assert.Equal(t, KindDecodeFailure, Kind(NewDecodeFailure(errors.New("bad segment"))))
	assert.Equal(t, KindTransportFailure, Kind(NewHttpError(http.StatusInternalServerError, nil, "x")))
	assert.Equal(t, KindTransportFailure, Kind(errors.New("connection reset")))
	assert.Nil(t, NewRefreshFailure(nil))
}

package identity

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/mousybusiness/moroccoview/internal/errs"
	"github.com/mousybusiness/moroccoview/pkg/creds"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sign(t *testing.T, claims jwt.MapClaims) creds.AccessToken {
	t.Helper()
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("not-checked"))
	require.NoError(t, err)
	return creds.AccessToken(s)
}

func TestFromToken(t *testing.T) {
	token := sign(t, jwt.MapClaims{
		"sub":          "f2a1",
		"exp":          time.Now().Add(-time.Hour).Unix(),
		"given_name":   "Yasmine",
		"family_name":  "Alaoui",
		"email":        "yasmine@atlas.ma",
		"address":      map[string]interface{}{"formatted": "12 Rue Souika, Rabat"},
		"phone_number": "+212600000000",
	})

	id, ok := FromToken(token)
	require.True(t, ok, "expired tokens still decode")
	assert.Equal(t, Identity{
		Name:        "Yasmine Alaoui",
		Email:       "yasmine@atlas.ma",
		Address:     "12 Rue Souika, Rabat",
		PhoneNumber: "+212600000000",
	}, id)
}

func TestFromTokenMissingNames(t *testing.T) {
	id, ok := FromToken(sign(t, jwt.MapClaims{"email": "ops@atlas.ma"}))
	require.True(t, ok)
	assert.Equal(t, "", id.Name)
	assert.Equal(t, "ops@atlas.ma", id.Email)

	id, ok = FromToken(sign(t, jwt.MapClaims{"family_name": "Bennani"}))
	require.True(t, ok)
	assert.Equal(t, "Bennani", id.Name)
}

func TestAddressShapes(t *testing.T) {
	id, _ := FromToken(sign(t, jwt.MapClaims{"address": "Marrakech"}))
	assert.Equal(t, "Marrakech", id.Address)

	id, _ = FromToken(sign(t, jwt.MapClaims{"address": map[string]interface{}{
		"street_address": "5 Derb Sidi", "locality": "Fes", "country": "MA",
	}}))
	assert.Equal(t, "5 Derb Sidi, Fes, MA", id.Address)

	id, ok := FromToken(sign(t, jwt.MapClaims{"address": 42}))
	assert.True(t, ok)
	assert.Equal(t, "", id.Address)
}

func TestMalformedTokens(t *testing.T) {
	for _, token := range []creds.AccessToken{"", "abc", "a.b.c", "a.%%%.c"} {
		id, ok := FromToken(token)
		assert.False(t, ok, "token %q", token)
		assert.Equal(t, Identity{}, id)
	}

	_, err := Decode("a.b")
	require.Error(t, err)
	assert.Equal(t, errs.KindDecodeFailure, errs.Kind(err))
}

// Package identity reads the user profile carried in an access token's payload.
// Signatures are not verified; the token is only ever shown back to its holder.
package identity

import (
	"encoding/json"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/mousybusiness/moroccoview/internal/errs"
	"github.com/mousybusiness/moroccoview/pkg/creds"
	log "github.com/sirupsen/logrus"
)

type Identity struct {
	Name        string `json:"name"`
	Email       string `json:"email"`
	Address     string `json:"address"`
	PhoneNumber string `json:"phone_number"`
}

// Claims are the OIDC profile claims Keycloak puts in access tokens.
type Claims struct {
	jwt.RegisteredClaims
	GivenName   string  `json:"given_name"`
	FamilyName  string  `json:"family_name"`
	Email       string  `json:"email"`
	Address     Address `json:"address"`
	PhoneNumber string  `json:"phone_number"`
}

// Address accepts both a plain string and an OIDC address object.
type Address string

func (a *Address) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*a = Address(s)
		return nil
	}

	var obj struct {
		Formatted     string `json:"formatted"`
		StreetAddress string `json:"street_address"`
		Locality      string `json:"locality"`
		Country       string `json:"country"`
	}
	if err := json.Unmarshal(b, &obj); err != nil {
		// unknown shapes resolve to no address
		*a = ""
		return nil
	}

	if obj.Formatted != "" {
		*a = Address(obj.Formatted)
		return nil
	}

	var parts []string
	for _, p := range []string{obj.StreetAddress, obj.Locality, obj.Country} {
		if p != "" {
			parts = append(parts, p)
		}
	}
	*a = Address(strings.Join(parts, ", "))
	return nil
}

// Decode parses the payload segment of token into Claims.
func Decode(token creds.AccessToken) (*Claims, error) {
	claims := &Claims{}
	parser := jwt.NewParser()
	if _, _, err := parser.ParseUnverified(string(token), claims); err != nil {
		return nil, errs.NewDecodeFailure(err)
	}
	return claims, nil
}

func (c *Claims) Identity() Identity {
	return Identity{
		Name:        strings.TrimSpace(c.GivenName + " " + c.FamilyName),
		Email:       c.Email,
		Address:     string(c.Address),
		PhoneNumber: c.PhoneNumber,
	}
}

// FromToken returns the identity in token, or false when there is no token
// or it cannot be decoded.
func FromToken(token creds.AccessToken) (Identity, bool) {
	if token == "" {
		return Identity{}, false
	}

	claims, err := Decode(token)
	if err != nil {
		log.Debugf("no identity: %v", err)
		return Identity{}, false
	}

	return claims.Identity(), true
}

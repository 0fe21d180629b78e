package errs

import (
	"encoding/json"
	"fmt"

	"github.com/pkg/errors"
)

var (
	// ErrMalformedGrant is returned when a token endpoint reply lacks an access token.
	ErrMalformedGrant = errors.New("malformed token response")

	// ErrNoRefreshToken is returned when a refresh is needed but none is stored.
	ErrNoRefreshToken = errors.New("no refresh token stored")

	// ErrRefreshExpired is returned when the stored refresh token is past its expiry.
	ErrRefreshExpired = errors.New("refresh token expired")
)

// httpError defines an error which contains
// an http status code from an API request.
type httpError interface {
	Code() int
}

type HttpError struct {
	code int
	err  error
}

// errorResponse covers both the identity provider's error body
// and the agency backend's.
type errorResponse struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
	Message          string `json:"message"`
}

// NewHttpError builds an HttpError from a response body, using the most
// human readable message the body carries, or fallback when it carries none.
func NewHttpError(code int, b []byte, fallback string) HttpError {
	return HttpError{
		code: code,
		err:  errors.New(Message(b, fallback)),
	}
}

// Message extracts error_description or message from a JSON error body.
func Message(b []byte, fallback string) string {
	if len(b) == 0 {
		return fallback
	}

	var r errorResponse
	if err := json.Unmarshal(b, &r); err != nil {
		return fallback
	}

	switch {
	case r.ErrorDescription != "":
		return r.ErrorDescription
	case r.Message != "":
		return r.Message
	}
	return fallback
}

func (e HttpError) Error() string {
	return errors.Wrap(e.err, fmt.Sprintf("HttpError[%v]", e.code)).Error()
}

func (e HttpError) Code() int {
	return e.code
}

// Reason is the message without the status prefix.
func (e HttpError) Reason() string {
	return e.err.Error()
}

func ExtractHttpError(err error) (int, bool) {
	var e httpError
	if !errors.As(err, &e) {
		return 0, false
	}
	return e.Code(), true
}

// InvalidCredentials is returned by the credential exchange when the
// provider rejects the request with a client error.
type InvalidCredentials struct {
	HttpError
}

func (e InvalidCredentials) Error() string {
	return e.Reason()
}

func (e InvalidCredentials) Unwrap() error {
	return e.HttpError
}

func IsInvalidCredentials(err error) bool {
	var e InvalidCredentials
	return errors.As(err, &e)
}

// RefreshFailure wraps any error raised while renewing a token pair.
type RefreshFailure struct {
	err error
}

func NewRefreshFailure(err error) error {
	if err == nil {
		return nil
	}
	return RefreshFailure{err: err}
}

func (e RefreshFailure) Error() string {
	return errors.Wrap(e.err, "refresh failed").Error()
}

func (e RefreshFailure) Unwrap() error {
	return e.err
}

// DecodeFailure is raised when a token payload cannot be decoded.
type DecodeFailure struct {
	err error
}

func NewDecodeFailure(err error) error {
	return DecodeFailure{err: err}
}

func (e DecodeFailure) Error() string {
	return errors.Wrap(e.err, "decode token").Error()
}

func (e DecodeFailure) Unwrap() error {
	return e.err
}

type ErrorKind int

const (
	KindNone ErrorKind = iota
	KindInvalidCredentials
	KindTransportFailure
	KindDecodeFailure
	KindRefreshFailure
)

func (k ErrorKind) String() string {
	switch k {
	case KindInvalidCredentials:
		return "InvalidCredentials"
	case KindTransportFailure:
		return "TransportFailure"
	case KindDecodeFailure:
		return "DecodeFailure"
	case KindRefreshFailure:
		return "RefreshFailure"
	}
	return "None"
}

// Kind classifies err. Anything not recognised is a transport failure.
func Kind(err error) ErrorKind {
	if err == nil {
		return KindNone
	}

	var (
		refresh RefreshFailure
		decode  DecodeFailure
	)
	switch {
	case IsInvalidCredentials(err):
		return KindInvalidCredentials
	case errors.As(err, &refresh):
		return KindRefreshFailure
	case errors.As(err, &decode):
		return KindDecodeFailure
	}
	return KindTransportFailure
}

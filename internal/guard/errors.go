package guard

import "errors"

// Verification failures. Each one terminates the request with 401.
var (
	ErrAuthenticationMissing = errors.New("authentication missing")
	ErrSignatureInvalid      = errors.New("signature invalid")
	ErrTokenExpired          = errors.New("token expired")
	ErrClaimsInvalid         = errors.New("claims invalid")
)

// ErrorCode is the machine readable code written in 401 bodies.
func ErrorCode(err error) string {
	switch {
	case errors.Is(err, ErrTokenExpired):
		return "token_expired"
	case errors.Is(err, ErrSignatureInvalid):
		return "signature_invalid"
	case errors.Is(err, ErrClaimsInvalid):
		return "claims_invalid"
	default:
		return "authentication_missing"
	}
}

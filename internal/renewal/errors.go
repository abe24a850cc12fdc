package renewal

import (
	"errors"
	"fmt"
)

var (
	ErrNoRefreshTokenAvailable    = errors.New("no refresh token available")
	ErrUnknownRefreshToken        = errors.New("unknown refresh token")
	ErrUnknownSubject             = errors.New("unknown subject")
	ErrUpstreamRefreshFailed      = errors.New("upstream refresh failed")
	ErrCredentialStoreUnavailable = errors.New("credential store unavailable")
)

// UpstreamError is a non-2xx answer from the provider token endpoint. It
// matches ErrUpstreamRefreshFailed and carries the provider's body.
type UpstreamError struct {
	Status int
	Body   string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("upstream refresh failed: status %d: %s", e.Status, e.Body)
}

func (e *UpstreamError) Is(target error) bool {
	return target == ErrUpstreamRefreshFailed
}

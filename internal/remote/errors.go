// ABOUTME: Error kinds returned by the remote finance API client
// ABOUTME: StatusError carries the HTTP status and unwraps to a sentinel kind

package remote

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrAuth means a credential is missing, malformed or was rejected.
	ErrAuth = errors.New("authentication failed")

	// ErrNetwork means the remote could not be reached or the exchange did
	// not complete. A non-2xx answer from the data endpoint other than 401
	// is reported under this kind as well, alongside ErrBadStatus.
	ErrNetwork = errors.New("network error")

	// ErrBadStatus marks an answer with an unexpected HTTP status, so callers
	// can tell it apart from a transport failure.
	ErrBadStatus = errors.New("unexpected status")

	// ErrDataFormat means a response did not have the expected shape.
	ErrDataFormat = errors.New("unexpected response format")

	// ErrUnauthorized is the kind of a 401 from the data endpoint. Callers
	// react to it by invalidating their token and retrying once.
	ErrUnauthorized = errors.New("unauthorized")
)

// StatusError is returned when an endpoint answers with a non-2xx status.
type StatusError struct {
	Endpoint   string
	StatusCode int
	Body       string

	// Kind overrides the status-derived classification. The auth endpoint
	// sets it to ErrAuth so its rejections never look like a stale token.
	Kind error
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s: status %d", e.Endpoint, e.StatusCode)
	}
	return fmt.Sprintf("%s: status %d: %s", e.Endpoint, e.StatusCode, e.Body)
}

// Unwrap lets errors.Is match Kind when set, ErrUnauthorized for a 401,
// and ErrBadStatus plus ErrNetwork for any other status.
func (e *StatusError) Unwrap() []error {
	switch {
	case e.Kind != nil:
		return []error{e.Kind}
	case e.StatusCode == http.StatusUnauthorized:
		return []error{ErrUnauthorized}
	default:
		return []error{ErrBadStatus, ErrNetwork}
	}
}

// IsUnauthorized reports whether err is a 401 from the remote.
func IsUnauthorized(err error) bool {
	return errors.Is(err, ErrUnauthorized)
}

package inference

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
)

// RemoteError is a non-2xx response from the inference gateway.
type RemoteError struct {
	StatusCode int
	Message    string
}

func (e *RemoteError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("inference gateway: http %d", e.StatusCode)
	}
	return fmt.Sprintf("inference gateway: http %d: %s", e.StatusCode, e.Message)
}

// Retryable reports whether the failure is worth retrying: rate limiting,
// request timeouts, and server-side errors. Other client errors mean the
// request itself is wrong and will not improve on retry.
func (e *RemoteError) Retryable() bool {
	switch {
	case e.StatusCode == http.StatusRequestTimeout:
		return true
	case e.StatusCode == http.StatusTooManyRequests:
		return true
	case e.StatusCode >= http.StatusInternalServerError:
		return true
	}
	return false
}

// IsRetryable reports whether err is a gateway failure worth retrying.
// Transport errors (no response at all) count as retryable; local failures
// such as a missing upload file do not.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var remote *RemoteError
	if errors.As(err, &remote) {
		return remote.Retryable()
	}
	var transport *url.Error
	return errors.As(err, &transport)
}

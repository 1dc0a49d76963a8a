package githubapi

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/google/go-github/v75/github"
)

// RemoteError is any non-success response from the GitHub API. Callers must
// treat 4xx as non-retryable (bad credential or bad reference); 5xx and
// network timeouts are left to the caller's retry policy. This client never
// retries on its own.
type RemoteError struct {
	Status  int
	Message string
}

// Error implements the error interface.
func (e *RemoteError) Error() string {
	return fmt.Sprintf("github api error: status %d: %s", e.Status, e.Message)
}

// NotFound reports whether the error is a missing-resource response.
func (e *RemoteError) NotFound() bool {
	return e.Status == http.StatusNotFound
}

// Retryable reports whether a caller-side retry could plausibly succeed.
func (e *RemoteError) Retryable() bool {
	return e.Status >= 500 || e.Status == http.StatusTooManyRequests
}

// wrapRemoteError normalizes go-github error values into RemoteError for
// non-success HTTP statuses. Transport-level failures pass through wrapped.
func wrapRemoteError(op string, err error) error {
	if err == nil {
		return nil
	}

	var errResp *github.ErrorResponse
	if errors.As(err, &errResp) {
		status := 0
		if errResp.Response != nil {
			status = errResp.Response.StatusCode
		}
		return &RemoteError{Status: status, Message: errResp.Message}
	}

	var rateErr *github.RateLimitError
	if errors.As(err, &rateErr) {
		status := http.StatusForbidden
		if rateErr.Response != nil {
			status = rateErr.Response.StatusCode
		}
		return &RemoteError{Status: status, Message: "rate limit exceeded"}
	}

	var abuseErr *github.AbuseRateLimitError
	if errors.As(err, &abuseErr) {
		status := http.StatusForbidden
		if abuseErr.Response != nil {
			status = abuseErr.Response.StatusCode
		}
		return &RemoteError{Status: status, Message: "secondary rate limit exceeded"}
	}

	return fmt.Errorf("%s: %w", op, err)
}

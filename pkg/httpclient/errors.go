package httpclient

import (
	"errors"
	"fmt"
	"io"
	"net/http"
)

// APIError is the normalized failure shape of the client. Details holds an
// opaque diagnostic payload: the response body text for a non-2xx status, or
// the last underlying error once the retry budget is spent.
type APIError struct {
	Message string
	Status  int
	Details any
}

func (e *APIError) Error() string {
	return e.Message
}

// Unwrap exposes Details when it is itself an error.
func (e *APIError) Unwrap() error {
	if err, ok := e.Details.(error); ok {
		return err
	}
	return nil
}

// ParseResponseError reads the body of a non-2xx HTTP response into an
// *APIError. The caller closes the body.
func ParseResponseError(resp *http.Response) *APIError {
	bodyBytes, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20)) // 1 MB limit
	details := string(bodyBytes)
	if err != nil {
		details = fmt.Sprintf("failed to read body: %v", err)
	}

	return &APIError{
		Message: fmt.Sprintf("HTTP error %d: %s", resp.StatusCode, http.StatusText(resp.StatusCode)),
		Status:  resp.StatusCode,
		Details: details,
	}
}

// exhausted builds the error returned once every attempt has failed. The
// status is the last real HTTP status seen, or 500 when none arrived.
func exhausted(attempts int, lastErr error) *APIError {
	status := http.StatusInternalServerError
	var apiErr *APIError
	if errors.As(lastErr, &apiErr) && apiErr.Status > 0 {
		status = apiErr.Status
	}

	msg := "unknown error"
	if lastErr != nil {
		msg = lastErr.Error()
	}

	return &APIError{
		Message: fmt.Sprintf("request failed after %d attempts: %s", attempts, msg),
		Status:  status,
		Details: lastErr,
	}
}

// StatusCode returns the HTTP status carried by err, or 0.
func StatusCode(err error) int {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Status
	}
	return 0
}

// IsClientError returns true if the HTTP status code is a 4xx client error.
func IsClientError(status int) bool {
	return status >= 400 && status < 500
}

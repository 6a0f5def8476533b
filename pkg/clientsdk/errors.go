package clientsdk

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// ErrRateLimited is returned when the client side limiter gives up before a
// request was sent. No transport was involved, so it is not an *APIError.
var ErrRateLimited = errors.New("rate limit wait failed")

// APIError describes a failed call. StatusCode is zero when no response was
// received at all.
type APIError struct {
	StatusCode int
	Method     string
	URL        string

	// Message is the server supplied message when the body carried one,
	// otherwise a description of the failure.
	Message string

	// Body is the raw response body, possibly empty.
	Body string

	// Err is the underlying transport or decoding error, if any.
	Err error
}

func (e *APIError) Error() string {
	return e.Message
}

func (e *APIError) Unwrap() error {
	return e.Err
}

// errorResponse covers the shapes the backend uses for failures.
type errorResponse struct {
	Message string `json:"message"`
	Error   string `json:"error"`
}

// parseErrorResponse builds an *APIError from a non-2xx response.
func parseErrorResponse(resp *http.Response, body []byte) error {
	apiErr := responseError(resp)
	apiErr.Body = string(body)

	var errResp errorResponse
	if err := json.Unmarshal(body, &errResp); err == nil {
		switch {
		case strings.TrimSpace(errResp.Message) != "":
			apiErr.Message = errResp.Message
		case strings.TrimSpace(errResp.Error) != "":
			apiErr.Message = errResp.Error
		}
	}

	if apiErr.Message == "" {
		apiErr.Message = fmt.Sprintf("HTTP %d: %s", resp.StatusCode, http.StatusText(resp.StatusCode))
	}

	return apiErr
}

// responseError seeds an *APIError with what is known about resp.
func responseError(resp *http.Response) *APIError {
	apiErr := &APIError{StatusCode: resp.StatusCode}
	if resp.Request != nil {
		apiErr.Method = resp.Request.Method
		apiErr.URL = resp.Request.URL.String()
	}
	return apiErr
}

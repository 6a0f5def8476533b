package clientsdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
)

// maxBodyBytes caps how much of a response is buffered.
const maxBodyBytes = 4 << 20

func (c *Client) apiURL(path string) string {
	return c.BaseURL + path
}

func (c *Client) authURL(path string) string {
	return c.AuthBaseURL + path
}

// escape makes an opaque id safe to use as a single path segment.
func escape(id string) string {
	return url.PathEscape(id)
}

// do sends a JSON request to fullURL and decodes a 2xx response into target
// (skipped when target is nil or the body is empty). Transport and response
// failures come back as *APIError, a limiter timeout as ErrRateLimited.
func (c *Client) do(ctx context.Context, method, fullURL string, body, target any) error {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("%w: %w", ErrRateLimited, err)
		}
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, fullURL, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return &APIError{
			Method:  method,
			URL:     fullURL,
			Message: fmt.Sprintf("failed to send request: %v", err),
			Err:     err,
		}
	}

	return decodeJSON(resp, target)
}

// decodeJSON reads resp once and either decodes it into target or turns it
// into an *APIError.
func decodeJSON(resp *http.Response, target any) error {
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		apiErr := responseError(resp)
		apiErr.Message = fmt.Sprintf("failed to read response body: %v", err)
		apiErr.Err = err
		return apiErr
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return parseErrorResponse(resp, bodyBytes)
	}

	if target == nil || len(bytes.TrimSpace(bodyBytes)) == 0 {
		return nil
	}

	if err := json.Unmarshal(bodyBytes, target); err != nil {
		// A 2xx that is not JSON usually means something other than the API
		// answered, so keep the body for the caller to inspect.
		apiErr := responseError(resp)
		apiErr.Message = fmt.Sprintf("failed to decode response: %v", err)
		apiErr.Body = string(bodyBytes)
		apiErr.Err = err
		return apiErr
	}

	return nil
}

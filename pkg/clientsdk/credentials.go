package clientsdk

import (
	"context"
	"net/http"
	"strings"
)

// DefaultAPIPaths are the URL fragments that mark a request as bound for
// the backend and therefore eligible for a bearer token.
var DefaultAPIPaths = []string{"/api/v1", "/api/auth"}

// TokenSource yields the current bearer token. ok is false when no
// credential is available, in which case the request is sent as is.
type TokenSource interface {
	Token(ctx context.Context) (token string, ok bool)
}

// TokenSourceFunc adapts a function to TokenSource.
type TokenSourceFunc func(ctx context.Context) (string, bool)

func (f TokenSourceFunc) Token(ctx context.Context) (string, bool) {
	return f(ctx)
}

// StaticToken is a fixed token. The empty string means no credential.
type StaticToken string

func (s StaticToken) Token(context.Context) (string, bool) {
	return string(s), s != ""
}

// BearerTransport attaches "Authorization: Bearer <token>" to matching
// requests. Requests that do not match, or that are made while the source
// has no token, pass through unchanged.
type BearerTransport struct {
	Base   http.RoundTripper
	Source TokenSource

	// Match lists URL fragments that select requests. DefaultAPIPaths is
	// used when empty.
	Match []string
}

func (t *BearerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	base := t.Base
	if base == nil {
		base = http.DefaultTransport
	}

	if t.Source == nil || !t.matches(req.URL.String()) {
		return base.RoundTrip(req)
	}

	token, ok := t.Source.Token(req.Context())
	if !ok || token == "" {
		return base.RoundTrip(req)
	}

	// RoundTrippers must not modify the caller's request.
	authed := req.Clone(req.Context())
	authed.Header.Set("Authorization", "Bearer "+token)
	return base.RoundTrip(authed)
}

func (t *BearerTransport) matches(rawURL string) bool {
	match := t.Match
	if len(match) == 0 {
		match = DefaultAPIPaths
	}
	for _, fragment := range match {
		if strings.Contains(rawURL, fragment) {
			return true
		}
	}
	return false
}

package service

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"

	"github.com/aussiebroadwan/clientdesk/pkg/clientsdk"
)

type ErrorKind string

const (
	KindConnectivity       ErrorKind = "connectivity"
	KindBackendMisbehaving ErrorKind = "backend_misbehaving"
	KindEndpointNotFound   ErrorKind = "endpoint_not_found"
	KindServerError        ErrorKind = "server_error"
	KindUnclassified       ErrorKind = "unclassified_transport"
)

// Sentinels matched by errors.Is against a *ClassifiedError of that kind.
var (
	ErrConnectivity          = errors.New("connectivity failure")
	ErrBackendMisbehaving    = errors.New("backend misbehaving")
	ErrEndpointNotFound      = errors.New("endpoint not found")
	ErrServerError           = errors.New("server error")
	ErrUnclassifiedTransport = errors.New("unclassified transport failure")
)

// Display messages, one per kind.
const (
	MsgConnectivity       = "CORS Error: Unable to connect to the server. Please check if the backend is configured to allow requests from this domain."
	MsgBackendMisbehaving = "Backend server is not responding correctly. Please check if the server is running."
	MsgEndpointNotFound   = "Client API endpoint not found. Please check the backend configuration."
	MsgServerError        = "Server error occurred. Please try again later."
	msgUnknown            = "Request failed"
)

// ClassifiedError is a transport failure mapped onto a fixed kind. Message
// is safe to show to an operator as is.
type ClassifiedError struct {
	Kind    ErrorKind
	Status  int
	Message string
	Err     error
}

func (e *ClassifiedError) Error() string { return e.Message }
func (e *ClassifiedError) Unwrap() error { return e.Err }

func (e *ClassifiedError) Is(target error) bool {
	return target == sentinelFor(e.Kind)
}

func sentinelFor(kind ErrorKind) error {
	switch kind {
	case KindConnectivity:
		return ErrConnectivity
	case KindBackendMisbehaving:
		return ErrBackendMisbehaving
	case KindEndpointNotFound:
		return ErrEndpointNotFound
	case KindServerError:
		return ErrServerError
	default:
		return ErrUnclassifiedTransport
	}
}

// Classify maps err onto the error taxonomy. Rules are checked in order and
// the first match wins:
//
//  1. a client side rate limit wait that gave up: unclassified
//  2. no response, or a cross-origin refusal: connectivity
//  3. an HTML document instead of JSON: backend misbehaving
//  4. 404: endpoint not found
//  5. 5xx: server error
//  6. anything else: unclassified, keeping the original message
//
// Classify returns nil for a nil error and returns an already classified
// error unchanged.
func Classify(err error) *ClassifiedError {
	if err == nil {
		return nil
	}

	var classified *ClassifiedError
	if errors.As(err, &classified) {
		return classified
	}

	if errors.Is(err, clientsdk.ErrRateLimited) {
		return &ClassifiedError{Kind: KindUnclassified, Message: messageOf(err), Err: err}
	}

	var apiErr *clientsdk.APIError
	if !errors.As(err, &apiErr) {
		if isConnectivity(err) {
			return &ClassifiedError{Kind: KindConnectivity, Message: MsgConnectivity, Err: err}
		}
		return &ClassifiedError{Kind: KindUnclassified, Message: messageOf(err), Err: err}
	}

	status := apiErr.StatusCode
	switch {
	case status == 0 && !errors.Is(apiErr, context.Canceled), mentionsCORS(apiErr.Message):
		return &ClassifiedError{Kind: KindConnectivity, Status: status, Message: MsgConnectivity, Err: err}
	case isMarkup(apiErr.Body):
		return &ClassifiedError{Kind: KindBackendMisbehaving, Status: status, Message: MsgBackendMisbehaving, Err: err}
	case status == http.StatusNotFound:
		return &ClassifiedError{Kind: KindEndpointNotFound, Status: status, Message: MsgEndpointNotFound, Err: err}
	case status >= http.StatusInternalServerError:
		return &ClassifiedError{Kind: KindServerError, Status: status, Message: MsgServerError, Err: err}
	default:
		return &ClassifiedError{Kind: KindUnclassified, Status: status, Message: messageOf(apiErr), Err: err}
	}
}

// isConnectivity catches transport failures that did not come through the
// SDK, such as a raw dial error or an expired deadline.
func isConnectivity(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}

func mentionsCORS(msg string) bool {
	return strings.Contains(msg, "CORS") || strings.Contains(msg, "Access-Control-Allow-Origin")
}

func isMarkup(body string) bool {
	if body == "" {
		return false
	}
	lower := strings.ToLower(body)
	return strings.Contains(lower, "<!doctype") || strings.Contains(lower, "<html")
}

func messageOf(err error) string {
	if msg := strings.TrimSpace(err.Error()); msg != "" {
		return msg
	}
	return msgUnknown
}

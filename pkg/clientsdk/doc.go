/*
Package clientsdk is an HTTP client for the salon booking backend's client
and user administration endpoints.

# Overview

Two base URLs are involved. The resource API (typically ending in /api/v1)
serves client records, appointment history, bans and the user directory.
The auth API (typically ending in /api/auth) accepts registrations:

	sdk := clientsdk.NewClient(
		"https://salon.example.com/api/v1",
		"https://salon.example.com/api/auth",
		clientsdk.WithRateLimit(5, 10),
	)

	clients, err := sdk.ListClients(ctx)

# Credentials

Requests carry no credential unless the HTTP client's transport adds one.
BearerTransport attaches "Authorization: Bearer <token>" to requests whose
URL contains one of its match fragments (DefaultAPIPaths when unset), and
leaves every other request untouched:

	hc := &http.Client{Transport: &clientsdk.BearerTransport{
		Source: clientsdk.StaticToken(token),
	}}
	sdk := clientsdk.NewClient(apiURL, authURL, clientsdk.WithHTTPClient(hc))

InspectToken decodes the claims of a JWT bearer without verifying it, so
callers can warn about expired credentials before a request is made.

# Error Handling

Every failed call returns a *APIError. StatusCode is zero when the request
never produced a response (refused connection, DNS failure, timeout). Body
holds the raw response body so callers can detect a non-API responder such
as an HTML fallback page:

	var apiErr *clientsdk.APIError
	if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound {
		// endpoint missing
	}
*/
package clientsdk

package clientsdk

import (
	"context"
	"net/http"
)

// ListUsers fetches the user directory.
func (c *Client) ListUsers(ctx context.Context) ([]User, error) {
	var out []User
	if err := c.do(ctx, http.MethodGet, c.apiURL("/users"), nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// DeleteUser removes one user. The response body is ignored.
func (c *Client) DeleteUser(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, c.apiURL("/users/"+escape(id)), nil, nil)
}

// Register creates an account through the auth API.
func (c *Client) Register(ctx context.Context, req RegisterRequest) (*RegisterResponse, error) {
	var out RegisterResponse
	if err := c.do(ctx, http.MethodPost, c.authURL("/register"), req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

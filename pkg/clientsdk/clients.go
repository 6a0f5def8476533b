package clientsdk

import (
	"context"
	"net/http"
)

// ListClients fetches every client record.
func (c *Client) ListClients(ctx context.Context) ([]ClientRecord, error) {
	var out []ClientRecord
	if err := c.do(ctx, http.MethodGet, c.apiURL("/clients"), nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// ListClientsWithStats fetches every client with appointment statistics.
func (c *Client) ListClientsWithStats(ctx context.Context) ([]ClientRecord, error) {
	var out []ClientRecord
	if err := c.do(ctx, http.MethodGet, c.apiURL("/clients/with-stats"), nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// GetClient fetches one client by id.
func (c *Client) GetClient(ctx context.Context, id string) (*ClientRecord, error) {
	var out ClientRecord
	if err := c.do(ctx, http.MethodGet, c.apiURL("/clients/"+escape(id)), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// CreateClient submits a new client. Only the populated fields are sent.
func (c *Client) CreateClient(ctx context.Context, client ClientRecord) (*MessageResponse, error) {
	var out MessageResponse
	if err := c.do(ctx, http.MethodPost, c.apiURL("/clients"), client, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// UpdateClient applies a partial update to the client with the given id.
func (c *Client) UpdateClient(ctx context.Context, id string, patch ClientRecord) (*MessageResponse, error) {
	var out MessageResponse
	if err := c.do(ctx, http.MethodPut, c.apiURL("/clients/"+escape(id)), patch, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// DeleteClient removes the client with the given id.
func (c *Client) DeleteClient(ctx context.Context, id string) (*MessageResponse, error) {
	var out MessageResponse
	if err := c.do(ctx, http.MethodDelete, c.apiURL("/clients/"+escape(id)), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetAppointmentHistory fetches a client's appointment history summary.
func (c *Client) GetAppointmentHistory(ctx context.Context, id string) (*AppointmentHistory, error) {
	var out AppointmentHistory
	path := "/clients/" + escape(id) + "/appointments"
	if err := c.do(ctx, http.MethodGet, c.apiURL(path), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// BanClient bans a client, optionally cancelling their upcoming appointments.
func (c *Client) BanClient(ctx context.Context, id string, cancelAppointments bool) (*BanResponse, error) {
	var out BanResponse
	path := "/admin/clients/" + escape(id) + "/ban"
	body := BanRequest{CancelAppointments: cancelAppointments}
	if err := c.do(ctx, http.MethodPost, c.apiURL(path), body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// UnbanClient lifts a ban.
func (c *Client) UnbanClient(ctx context.Context, id string) (*BanResponse, error) {
	var out BanResponse
	path := "/admin/clients/" + escape(id) + "/unban"
	if err := c.do(ctx, http.MethodPost, c.apiURL(path), struct{}{}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

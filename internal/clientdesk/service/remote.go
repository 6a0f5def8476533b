package service

import (
	"context"

	"github.com/aussiebroadwan/clientdesk/internal/clientdesk/domain"
	"github.com/aussiebroadwan/clientdesk/pkg/clientsdk"
)

// ClientsAPI is the authoritative store for client records.
type ClientsAPI interface {
	ListClients(ctx context.Context) ([]domain.Client, error)
	ListClientsWithStats(ctx context.Context) ([]domain.Client, error)
	GetClient(ctx context.Context, id string) (domain.Client, error)
	CreateClient(ctx context.Context, patch domain.ClientPatch) (domain.Confirmation, error)
	UpdateClient(ctx context.Context, id string, patch domain.ClientPatch) (domain.Confirmation, error)
	DeleteClient(ctx context.Context, id string) (domain.Confirmation, error)
	BanClient(ctx context.Context, id string, cancelAppointments bool) (domain.BanResult, error)
	UnbanClient(ctx context.Context, id string) (domain.BanResult, error)
	GetAppointmentHistory(ctx context.Context, id string) (domain.ClientAppointmentHistory, error)
}

// UsersAPI is the slice of the user directory the reset workflow needs.
type UsersAPI interface {
	ListUsers(ctx context.Context) ([]domain.User, error)
	DeleteUser(ctx context.Context, id string) error
	RegisterAdmin(ctx context.Context, req domain.AdminProvisionRequest) (domain.Confirmation, error)
}

// RemoteAPI serves ClientsAPI and UsersAPI over the HTTP SDK. Errors are
// returned untouched; classification happens in the services.
type RemoteAPI struct {
	sdk *clientsdk.Client
}

var (
	_ ClientsAPI = (*RemoteAPI)(nil)
	_ UsersAPI   = (*RemoteAPI)(nil)
)

func NewRemoteAPI(sdk *clientsdk.Client) *RemoteAPI {
	return &RemoteAPI{sdk: sdk}
}

func (r *RemoteAPI) ListClients(ctx context.Context) ([]domain.Client, error) {
	out, err := r.sdk.ListClients(ctx)
	if err != nil {
		return nil, err
	}
	return mapClients(out), nil
}

func (r *RemoteAPI) ListClientsWithStats(ctx context.Context) ([]domain.Client, error) {
	out, err := r.sdk.ListClientsWithStats(ctx)
	if err != nil {
		return nil, err
	}
	return mapClients(out), nil
}

func (r *RemoteAPI) GetClient(ctx context.Context, id string) (domain.Client, error) {
	out, err := r.sdk.GetClient(ctx, id)
	if err != nil {
		return domain.Client{}, err
	}
	return mapClient(*out), nil
}

func (r *RemoteAPI) CreateClient(ctx context.Context, patch domain.ClientPatch) (domain.Confirmation, error) {
	out, err := r.sdk.CreateClient(ctx, mapPatch(patch))
	if err != nil {
		return domain.Confirmation{}, err
	}
	return domain.Confirmation{Message: out.Message}, nil
}

func (r *RemoteAPI) UpdateClient(ctx context.Context, id string, patch domain.ClientPatch) (domain.Confirmation, error) {
	out, err := r.sdk.UpdateClient(ctx, id, mapPatch(patch))
	if err != nil {
		return domain.Confirmation{}, err
	}
	return domain.Confirmation{Message: out.Message}, nil
}

func (r *RemoteAPI) DeleteClient(ctx context.Context, id string) (domain.Confirmation, error) {
	out, err := r.sdk.DeleteClient(ctx, id)
	if err != nil {
		return domain.Confirmation{}, err
	}
	return domain.Confirmation{Message: out.Message}, nil
}

func (r *RemoteAPI) BanClient(ctx context.Context, id string, cancelAppointments bool) (domain.BanResult, error) {
	out, err := r.sdk.BanClient(ctx, id, cancelAppointments)
	if err != nil {
		return domain.BanResult{}, err
	}
	return domain.BanResult{Message: out.Message, IsBanned: out.IsBanned}, nil
}

func (r *RemoteAPI) UnbanClient(ctx context.Context, id string) (domain.BanResult, error) {
	out, err := r.sdk.UnbanClient(ctx, id)
	if err != nil {
		return domain.BanResult{}, err
	}
	return domain.BanResult{Message: out.Message, IsBanned: out.IsBanned}, nil
}

func (r *RemoteAPI) GetAppointmentHistory(ctx context.Context, id string) (domain.ClientAppointmentHistory, error) {
	out, err := r.sdk.GetAppointmentHistory(ctx, id)
	if err != nil {
		return domain.ClientAppointmentHistory{}, err
	}
	return domain.ClientAppointmentHistory{
		Client:          mapClient(out.Client),
		Appointments:    out.Appointments,
		TotalSpent:      out.TotalSpent,
		FavoriteService: out.FavoriteService,
	}, nil
}

func (r *RemoteAPI) ListUsers(ctx context.Context) ([]domain.User, error) {
	out, err := r.sdk.ListUsers(ctx)
	if err != nil {
		return nil, err
	}

	users := make([]domain.User, 0, len(out))
	for _, u := range out {
		users = append(users, domain.User{
			ID:    u.Identifier(),
			Name:  u.Name,
			Email: u.Email,
			Role:  u.Role,
		})
	}
	return users, nil
}

func (r *RemoteAPI) DeleteUser(ctx context.Context, id string) error {
	return r.sdk.DeleteUser(ctx, id)
}

func (r *RemoteAPI) RegisterAdmin(ctx context.Context, req domain.AdminProvisionRequest) (domain.Confirmation, error) {
	out, err := r.sdk.Register(ctx, clientsdk.RegisterRequest{
		Email:    req.Email,
		Password: req.Password,
		Name:     req.Name,
		Phone:    req.Phone,
		Role:     req.Role,
	})
	if err != nil {
		return domain.Confirmation{}, err
	}
	return domain.Confirmation{Message: out.Message}, nil
}

func mapClients(in []clientsdk.ClientRecord) []domain.Client {
	out := make([]domain.Client, 0, len(in))
	for _, c := range in {
		out = append(out, mapClient(c))
	}
	return out
}

func mapClient(c clientsdk.ClientRecord) domain.Client {
	client := domain.Client{
		ID:                c.ID,
		Name:              c.Name,
		Email:             c.Email,
		Phone:             c.Phone,
		DateJoined:        c.DateJoined,
		LastUpdated:       c.LastUpdated,
		Notes:             c.Notes,
		IsBanned:          c.IsBanned,
		Roles:             c.Roles,
		TotalAppointments: c.TotalAppointments,
		LastAppointment:   c.LastAppointment,
	}
	if c.Preferences != nil {
		client.Preferences = &domain.Preferences{
			FavoriteServices: c.Preferences.FavoriteServices,
			PreferredTimes:   c.Preferences.PreferredTimes,
			Allergies:        c.Preferences.Allergies,
			SpecialRequests:  c.Preferences.SpecialRequests,
		}
	}
	return client
}

func mapPatch(p domain.ClientPatch) clientsdk.ClientRecord {
	var c clientsdk.ClientRecord
	if p.Name != nil {
		c.Name = *p.Name
	}
	if p.Email != nil {
		c.Email = *p.Email
	}
	if p.Phone != nil {
		c.Phone = *p.Phone
	}
	if p.Notes != nil {
		c.Notes = *p.Notes
	}
	c.Roles = p.Roles
	if p.Preferences != nil {
		c.Preferences = &clientsdk.Preferences{
			FavoriteServices: p.Preferences.FavoriteServices,
			PreferredTimes:   p.Preferences.PreferredTimes,
			Allergies:        p.Preferences.Allergies,
			SpecialRequests:  p.Preferences.SpecialRequests,
		}
	}
	return c
}

package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/aussiebroadwan/clientdesk/internal/clientdesk/audit"
	"github.com/aussiebroadwan/clientdesk/internal/clientdesk/domain"
	"github.com/aussiebroadwan/clientdesk/internal/clientdesk/store"
	"github.com/aussiebroadwan/clientdesk/pkg/slogx"
)

var ErrRemoteUnavailable = errors.New("remote client API not configured")

type ClientRepositoryConfig struct {
	// Remote may be nil only when no operation is routed to it.
	Remote ClientsAPI

	// Local may be nil; local-routed operations then fail with
	// ErrLocalStoreUnavailable.
	Local store.Slots

	// Routes defaults to DefaultRoutes.
	Routes Routes

	// LocalLatency defaults to DefaultLocalLatency. Negative disables it.
	LocalLatency time.Duration

	Clock func() time.Time
	Audit audit.Recorder
}

// ClientRepository serves client operations from the backend or the offline
// slot according to its routing table. Remote failures come back as
// *ClassifiedError; the repository never retries and never falls back from
// one backend to the other.
type ClientRepository struct {
	remote ClientsAPI
	local  *offlineClients
	routes Routes
	audit  audit.Recorder
}

func NewClientRepository(cfg ClientRepositoryConfig) (*ClientRepository, error) {
	routes := cfg.Routes
	if routes == nil {
		routes = DefaultRoutes()
	}
	if err := routes.Validate(); err != nil {
		return nil, err
	}
	routes = routes.Clone()

	if cfg.Remote == nil {
		for _, op := range Operations() {
			if routes.Backend(op) == BackendRemote {
				return nil, fmt.Errorf("%w: %s is routed remote", ErrRemoteUnavailable, op)
			}
		}
	}

	r := &ClientRepository{
		remote: cfg.Remote,
		routes: routes,
		audit:  cfg.Audit,
	}

	if cfg.Local != nil {
		latency := cfg.LocalLatency
		switch {
		case latency == 0:
			latency = DefaultLocalLatency
		case latency < 0:
			latency = 0
		}

		clock := cfg.Clock
		if clock == nil {
			clock = time.Now
		}

		r.local = &offlineClients{slots: cfg.Local, latency: latency, now: clock}
	}

	return r, nil
}

// Routes returns a copy of the routing table.
func (r *ClientRepository) Routes() Routes {
	return r.routes.Clone()
}

func (r *ClientRepository) logger(ctx context.Context, op Operation) *slog.Logger {
	return slogx.FromContext(ctx).With(
		slog.String("operation", string(op)),
		slog.String("backend", string(r.routes.Backend(op))),
	)
}

func (r *ClientRepository) isLocal(op Operation) bool {
	return r.routes.Backend(op) == BackendLocal
}

// offline returns the local layer or ErrLocalStoreUnavailable.
func (r *ClientRepository) offline() (*offlineClients, error) {
	if r.local == nil {
		return nil, ErrLocalStoreUnavailable
	}
	return r.local, nil
}

// fail classifies a remote error and logs it once.
func fail(l *slog.Logger, err error) error {
	classified := Classify(err)
	l.Error("remote call failed",
		slog.String("kind", string(classified.Kind)),
		slog.Int("status", classified.Status),
		slog.Any("error", err),
	)
	return classified
}

func (r *ClientRepository) List(ctx context.Context) ([]domain.Client, error) {
	l := r.logger(ctx, OpList)

	if r.isLocal(OpList) {
		local, err := r.offline()
		if err != nil {
			return nil, err
		}
		clients, err := local.list(ctx)
		if err != nil {
			l.Error("failed to list offline clients", slog.Any("error", err))
			return nil, err
		}
		l.Debug("listed offline clients", slog.Int("count", len(clients)))
		return clients, nil
	}

	clients, err := r.remote.ListClients(ctx)
	if err != nil {
		return nil, fail(l, err)
	}
	l.Debug("listed clients", slog.Int("count", len(clients)))
	return clients, nil
}

func (r *ClientRepository) ListWithStatistics(ctx context.Context) ([]domain.Client, error) {
	l := r.logger(ctx, OpListWithStatistics)

	clients, err := r.remote.ListClientsWithStats(ctx)
	if err != nil {
		return nil, fail(l, err)
	}
	return clients, nil
}

func (r *ClientRepository) GetByID(ctx context.Context, id string) (domain.Client, error) {
	l := r.logger(ctx, OpGetByID).With(slog.String("client_id", id))

	client, err := r.remote.GetClient(ctx, id)
	if err != nil {
		return domain.Client{}, fail(l, err)
	}
	return client, nil
}

func (r *ClientRepository) Create(ctx context.Context, patch domain.ClientPatch) (domain.Confirmation, error) {
	l := r.logger(ctx, OpCreate)

	conf, err := r.remote.CreateClient(ctx, patch)
	if err != nil {
		return domain.Confirmation{}, fail(l, err)
	}
	l.Info("client created")
	return conf, nil
}

func (r *ClientRepository) Update(ctx context.Context, id string, patch domain.ClientPatch) (domain.Confirmation, error) {
	l := r.logger(ctx, OpUpdate).With(slog.String("client_id", id))

	conf, err := r.remote.UpdateClient(ctx, id, patch)
	if err != nil {
		return domain.Confirmation{}, fail(l, err)
	}
	l.Info("client updated")
	return conf, nil
}

func (r *ClientRepository) Delete(ctx context.Context, id string) (domain.Confirmation, error) {
	l := r.logger(ctx, OpDelete).With(slog.String("client_id", id))

	var (
		conf domain.Confirmation
		err  error
	)

	if r.isLocal(OpDelete) {
		local, lerr := r.offline()
		if lerr != nil {
			return domain.Confirmation{}, lerr
		}
		if conf, err = local.delete(ctx, id); err != nil {
			l.Error("failed to delete offline client", slog.Any("error", err))
			return domain.Confirmation{}, err
		}
	} else {
		if conf, err = r.remote.DeleteClient(ctx, id); err != nil {
			return domain.Confirmation{}, fail(l, err)
		}
	}

	l.Info("client deleted")
	r.record(audit.ActionClientDeleted, id, OpDelete, nil)
	return conf, nil
}

// Ban bans a client. Through the offline slot this toggles the flag; an id
// that is not stored reports banned without touching storage.
func (r *ClientRepository) Ban(ctx context.Context, id string, cancelAppointments bool) (domain.BanResult, error) {
	l := r.logger(ctx, OpBan).With(slog.String("client_id", id))

	var (
		res domain.BanResult
		err error
	)

	if r.isLocal(OpBan) {
		local, lerr := r.offline()
		if lerr != nil {
			return domain.BanResult{}, lerr
		}
		if res, err = local.toggleBan(ctx, id); err != nil {
			l.Error("failed to ban offline client", slog.Any("error", err))
			return domain.BanResult{}, err
		}
	} else {
		if res, err = r.remote.BanClient(ctx, id, cancelAppointments); err != nil {
			return domain.BanResult{}, fail(l, err)
		}
	}

	l.Info("client ban updated", slog.Bool("is_banned", res.IsBanned))

	action := audit.ActionClientBanned
	if !res.IsBanned {
		action = audit.ActionClientUnbanned
	}
	r.record(action, id, OpBan, map[string]any{"cancelAppointments": cancelAppointments})

	return res, nil
}

func (r *ClientRepository) Unban(ctx context.Context, id string) (domain.BanResult, error) {
	l := r.logger(ctx, OpUnban).With(slog.String("client_id", id))

	var (
		res domain.BanResult
		err error
	)

	if r.isLocal(OpUnban) {
		local, lerr := r.offline()
		if lerr != nil {
			return domain.BanResult{}, lerr
		}
		if res, err = local.unban(ctx, id); err != nil {
			l.Error("failed to unban offline client", slog.Any("error", err))
			return domain.BanResult{}, err
		}
	} else {
		if res, err = r.remote.UnbanClient(ctx, id); err != nil {
			return domain.BanResult{}, fail(l, err)
		}
	}

	l.Info("client unbanned")
	r.record(audit.ActionClientUnbanned, id, OpUnban, nil)
	return res, nil
}

func (r *ClientRepository) GetAppointmentHistory(ctx context.Context, clientID string) (domain.ClientAppointmentHistory, error) {
	l := r.logger(ctx, OpGetAppointmentHistory).With(slog.String("client_id", clientID))

	hist, err := r.remote.GetAppointmentHistory(ctx, clientID)
	if err != nil {
		return domain.ClientAppointmentHistory{}, fail(l, err)
	}
	return hist, nil
}

// SyncLocal replaces the offline slot with the backend's current client
// list and returns how many records were stored.
func (r *ClientRepository) SyncLocal(ctx context.Context) (int, error) {
	l := slogx.FromContext(ctx).With(slog.String("operation", "syncLocal"))

	local, err := r.offline()
	if err != nil {
		return 0, err
	}
	if r.remote == nil {
		return 0, ErrRemoteUnavailable
	}

	clients, err := r.remote.ListClients(ctx)
	if err != nil {
		return 0, fail(l, err)
	}

	kept := make([]domain.Client, 0, len(clients))
	for _, c := range clients {
		if c.ID != "" {
			kept = append(kept, c)
		}
	}

	if err := local.replace(ctx, kept); err != nil {
		l.Error("failed to store offline clients", slog.Any("error", err))
		return 0, err
	}

	l.Info("offline clients synced", slog.Int("count", len(kept)))
	return len(kept), nil
}

func (r *ClientRepository) record(action, clientID string, op Operation, meta map[string]any) {
	if meta == nil {
		meta = map[string]any{}
	}
	meta["backend"] = string(r.routes.Backend(op))

	audit.Record(r.audit, audit.Event{
		Action:   action,
		Entity:   "client",
		EntityID: clientID,
		Metadata: meta,
	})
}

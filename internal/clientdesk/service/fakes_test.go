package service

import (
	"context"
	"sync"

	"github.com/aussiebroadwan/clientdesk/internal/clientdesk/audit"
	"github.com/aussiebroadwan/clientdesk/internal/clientdesk/domain"
)

// fakeClientsAPI answers from canned values and counts calls. Unset funcs
// return zero values.
type fakeClientsAPI struct {
	mu    sync.Mutex
	calls map[string]int

	list    func() ([]domain.Client, error)
	get     func(id string) (domain.Client, error)
	ban     func(id string, cancel bool) (domain.BanResult, error)
	del     func(id string) (domain.Confirmation, error)
	history func(id string) (domain.ClientAppointmentHistory, error)
}

func (f *fakeClientsAPI) hit(name string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.calls == nil {
		f.calls = make(map[string]int)
	}
	f.calls[name]++
}

func (f *fakeClientsAPI) count(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[name]
}

func (f *fakeClientsAPI) ListClients(context.Context) ([]domain.Client, error) {
	f.hit("list")
	if f.list == nil {
		return nil, nil
	}
	return f.list()
}

func (f *fakeClientsAPI) ListClientsWithStats(context.Context) ([]domain.Client, error) {
	f.hit("listWithStats")
	if f.list == nil {
		return nil, nil
	}
	return f.list()
}

func (f *fakeClientsAPI) GetClient(_ context.Context, id string) (domain.Client, error) {
	f.hit("get")
	if f.get == nil {
		return domain.Client{ID: id}, nil
	}
	return f.get(id)
}

func (f *fakeClientsAPI) CreateClient(context.Context, domain.ClientPatch) (domain.Confirmation, error) {
	f.hit("create")
	return domain.Confirmation{Message: "Client created successfully"}, nil
}

func (f *fakeClientsAPI) UpdateClient(context.Context, string, domain.ClientPatch) (domain.Confirmation, error) {
	f.hit("update")
	return domain.Confirmation{Message: "Client updated successfully"}, nil
}

func (f *fakeClientsAPI) DeleteClient(_ context.Context, id string) (domain.Confirmation, error) {
	f.hit("delete")
	if f.del == nil {
		return domain.Confirmation{Message: "Client deleted successfully"}, nil
	}
	return f.del(id)
}

func (f *fakeClientsAPI) BanClient(_ context.Context, id string, cancel bool) (domain.BanResult, error) {
	f.hit("ban")
	if f.ban == nil {
		return domain.BanResult{Message: "Client banned", IsBanned: true}, nil
	}
	return f.ban(id, cancel)
}

func (f *fakeClientsAPI) UnbanClient(context.Context, string) (domain.BanResult, error) {
	f.hit("unban")
	return domain.BanResult{Message: "Client unbanned"}, nil
}

func (f *fakeClientsAPI) GetAppointmentHistory(_ context.Context, id string) (domain.ClientAppointmentHistory, error) {
	f.hit("history")
	if f.history == nil {
		return domain.ClientAppointmentHistory{Client: domain.Client{ID: id}}, nil
	}
	return f.history(id)
}

// fakeUsersAPI records every remote call the reset workflow makes.
type fakeUsersAPI struct {
	mu sync.Mutex

	users      []domain.User
	listErr    error
	deleteErrs map[string]error
	registerFn func(req domain.AdminProvisionRequest) (domain.Confirmation, error)
	onList     func()

	// onDelete runs before the delete is recorded and outside the lock, so
	// concurrent deletes can observe each other.
	onDelete func(id string) error

	listCalls int
	deleted   []string
	registers []domain.AdminProvisionRequest
}

func (f *fakeUsersAPI) ListUsers(context.Context) ([]domain.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.listCalls++
	if f.onList != nil {
		f.onList()
	}
	if f.listErr != nil {
		return nil, f.listErr
	}
	return append([]domain.User(nil), f.users...), nil
}

func (f *fakeUsersAPI) DeleteUser(ctx context.Context, id string) error {
	if f.onDelete != nil {
		if err := f.onDelete(id); err != nil {
			return err
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	if err := f.deleteErrs[id]; err != nil {
		return err
	}
	f.deleted = append(f.deleted, id)
	return nil
}

func (f *fakeUsersAPI) RegisterAdmin(_ context.Context, req domain.AdminProvisionRequest) (domain.Confirmation, error) {
	f.mu.Lock()
	f.registers = append(f.registers, req)
	fn := f.registerFn
	f.mu.Unlock()

	if fn != nil {
		return fn(req)
	}
	return domain.Confirmation{Message: "User registered successfully"}, nil
}

func (f *fakeUsersAPI) snapshot() (lists int, deleted []string, registers []domain.AdminProvisionRequest) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.listCalls, append([]string(nil), f.deleted...), append([]domain.AdminProvisionRequest(nil), f.registers...)
}

// recorder keeps dispatched audit events in memory.
type recorder struct {
	mu     sync.Mutex
	events []audit.Event
}

func (r *recorder) Dispatch(ev audit.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recorder) actions() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]string, 0, len(r.events))
	for _, ev := range r.events {
		out = append(out, ev.Action)
	}
	return out
}

func (r *recorder) last() audit.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.events[len(r.events)-1]
}

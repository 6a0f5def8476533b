package service

import (
	"errors"
	"fmt"
	"maps"
	"strings"
)

var (
	ErrUnsupportedRoute = errors.New("operation cannot be served by the local store")
	ErrUnknownOperation = errors.New("unknown operation")
	ErrUnknownBackend   = errors.New("unknown backend")
)

// Operation names a logical client repository call.
type Operation string

const (
	OpList                  Operation = "list"
	OpListWithStatistics    Operation = "listWithStatistics"
	OpGetByID               Operation = "getById"
	OpCreate                Operation = "create"
	OpUpdate                Operation = "update"
	OpDelete                Operation = "delete"
	OpBan                   Operation = "ban"
	OpUnban                 Operation = "unban"
	OpGetAppointmentHistory Operation = "getAppointmentHistory"
)

// Operations lists every operation in a stable order.
func Operations() []Operation {
	return []Operation{
		OpList,
		OpListWithStatistics,
		OpGetByID,
		OpCreate,
		OpUpdate,
		OpDelete,
		OpBan,
		OpUnban,
		OpGetAppointmentHistory,
	}
}

// localCapable are the operations the offline slot can serve.
var localCapable = map[Operation]bool{
	OpList:   true,
	OpDelete: true,
	OpBan:    true,
	OpUnban:  true,
}

type Backend string

const (
	BackendRemote Backend = "remote"
	BackendLocal  Backend = "local"
)

// Routes maps each operation to the backend that serves it.
type Routes map[Operation]Backend

// DefaultRoutes serves reads and creation from the backend while delete,
// ban and unban stay on the offline slot.
func DefaultRoutes() Routes {
	return Routes{
		OpList:                  BackendRemote,
		OpListWithStatistics:    BackendRemote,
		OpGetByID:               BackendRemote,
		OpCreate:                BackendRemote,
		OpUpdate:                BackendRemote,
		OpDelete:                BackendLocal,
		OpBan:                   BackendLocal,
		OpUnban:                 BackendLocal,
		OpGetAppointmentHistory: BackendRemote,
	}
}

// Backend returns the backend for op. Operations missing from the table are
// served remotely.
func (r Routes) Backend(op Operation) Backend {
	if b, ok := r[op]; ok {
		return b
	}
	return BackendRemote
}

func (r Routes) Clone() Routes {
	return maps.Clone(r)
}

// Validate rejects unknown names and local routes for operations that have
// no local implementation.
func (r Routes) Validate() error {
	ops := Operations()
	known := make(map[Operation]bool, len(ops))
	for _, op := range ops {
		known[op] = true
	}

	for op, b := range r {
		if !known[op] {
			return fmt.Errorf("%w: %q", ErrUnknownOperation, op)
		}
		switch b {
		case BackendRemote:
		case BackendLocal:
			if !localCapable[op] {
				return fmt.Errorf("%w: %s", ErrUnsupportedRoute, op)
			}
		default:
			return fmt.Errorf("%w: %q for %s", ErrUnknownBackend, b, op)
		}
	}

	return nil
}

// ParseRoutes applies overrides of the form "list=local,ban=remote" on top
// of base. Operation names are matched case-insensitively.
func ParseRoutes(s string, base Routes) (Routes, error) {
	out := base.Clone()
	if out == nil {
		out = DefaultRoutes()
	}

	byName := make(map[string]Operation)
	for _, op := range Operations() {
		byName[strings.ToLower(string(op))] = op
	}

	for _, pair := range strings.Split(s, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}

		name, backend, ok := strings.Cut(pair, "=")
		if !ok {
			return nil, fmt.Errorf("route %q: want operation=backend", pair)
		}

		op, ok := byName[strings.ToLower(strings.TrimSpace(name))]
		if !ok {
			return nil, fmt.Errorf("route %q: %w", pair, ErrUnknownOperation)
		}

		out[op] = Backend(strings.ToLower(strings.TrimSpace(backend)))
	}

	if err := out.Validate(); err != nil {
		return nil, err
	}

	return out, nil
}

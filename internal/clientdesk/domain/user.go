package domain

import (
	"fmt"
	"log/slog"
)

// AdminRole is the only role the reset workflow provisions.
const AdminRole = "admin"

// User is an entry of the remote user directory. The reset workflow only
// needs its ID.
type User struct {
	ID    string `json:"id"`
	Name  string `json:"name,omitempty"`
	Email string `json:"email,omitempty"`
	Role  string `json:"role,omitempty"`
}

// AdminProvisionRequest is the input of the admin registration. It lives for
// a single reset run and the password must never reach a log or a store.
type AdminProvisionRequest struct {
	Email    string
	Name     string
	Password string
	Phone    string
	Role     string
}

// LogValue keeps the password out of structured logs.
func (r AdminProvisionRequest) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("email", r.Email),
		slog.String("name", r.Name),
		slog.String("phone", r.Phone),
		slog.String("role", r.Role),
		slog.Bool("password_set", r.Password != ""),
	)
}

func (r AdminProvisionRequest) String() string {
	return fmt.Sprintf("AdminProvisionRequest{email=%s name=%s phone=%s role=%s password=[REDACTED]}",
		r.Email, r.Name, r.Phone, r.Role)
}

// GoString covers %#v.
func (r AdminProvisionRequest) GoString() string {
	return r.String()
}

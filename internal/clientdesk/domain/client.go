package domain

import "time"

// Client is a salon client. The JSON shape is shared by the remote API and
// the local offline slot, so a record can move between them unchanged.
type Client struct {
	ID          string       `json:"_id,omitempty"`
	Name        string       `json:"name"`
	Email       string       `json:"email"`
	Phone       string       `json:"phone"`
	DateJoined  *time.Time   `json:"dateJoined,omitempty"`
	LastUpdated *time.Time   `json:"lastUpdated,omitempty"`
	Notes       string       `json:"notes,omitempty"`
	IsBanned    bool         `json:"isBanned"`
	Roles       []string     `json:"roles"`
	Preferences *Preferences `json:"preferences,omitempty"`

	// Server computed, never set locally.
	TotalAppointments *int       `json:"totalAppointments,omitempty"`
	LastAppointment   *time.Time `json:"lastAppointment,omitempty"`
}

// Preferences is passed through untouched.
type Preferences struct {
	FavoriteServices []string `json:"favoriteServices,omitempty"`
	PreferredTimes   []string `json:"preferredTimes,omitempty"`
	Allergies        []string `json:"allergies,omitempty"`
	SpecialRequests  string   `json:"specialRequests,omitempty"`
}

// ClientPatch carries the fields of a create or partial update. Nil fields
// are left out of the request.
type ClientPatch struct {
	Name        *string
	Email       *string
	Phone       *string
	Notes       *string
	Roles       []string
	Preferences *Preferences
}

// ClientAppointmentHistory summarises a client's bookings. Appointment
// entries are kept as the backend sent them.
type ClientAppointmentHistory struct {
	Client          Client           `json:"client"`
	Appointments    []map[string]any `json:"appointments"`
	TotalSpent      float64          `json:"totalSpent"`
	FavoriteService string           `json:"favoriteService"`
}

// Confirmation is the backend's acknowledgement text, returned verbatim.
type Confirmation struct {
	Message string `json:"message"`
}

type BanResult struct {
	Message  string `json:"message"`
	IsBanned bool   `json:"isBanned"`
}

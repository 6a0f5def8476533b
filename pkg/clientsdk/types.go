package clientsdk

import "time"

// ClientRecord is a salon client record as the backend serialises it.
type ClientRecord struct {
	ID          string       `json:"_id,omitempty"`
	Name        string       `json:"name,omitempty"`
	Email       string       `json:"email,omitempty"`
	Phone       string       `json:"phone,omitempty"`
	DateJoined  *time.Time   `json:"dateJoined,omitempty"`
	LastUpdated *time.Time   `json:"lastUpdated,omitempty"`
	Preferences *Preferences `json:"preferences,omitempty"`
	Notes       string       `json:"notes,omitempty"`
	IsBanned    bool         `json:"isBanned,omitempty"`
	Roles       []string     `json:"roles,omitempty"`

	TotalAppointments *int       `json:"totalAppointments,omitempty"`
	LastAppointment   *time.Time `json:"lastAppointment,omitempty"`
}

// Preferences is the free-form preference sub-record of a client.
type Preferences struct {
	FavoriteServices []string `json:"favoriteServices,omitempty"`
	PreferredTimes   []string `json:"preferredTimes,omitempty"`
	Allergies        []string `json:"allergies,omitempty"`
	SpecialRequests  string   `json:"specialRequests,omitempty"`
}

// AppointmentHistory is the response of the appointment history endpoint.
// Appointment entries are not interpreted by this package.
type AppointmentHistory struct {
	Client          ClientRecord     `json:"client"`
	Appointments    []map[string]any `json:"appointments"`
	TotalSpent      float64          `json:"totalSpent"`
	FavoriteService string           `json:"favoriteService"`
}

// MessageResponse is the acknowledgement returned by mutating calls.
type MessageResponse struct {
	Message string `json:"message"`
}

// BanRequest is the body of the ban endpoint.
type BanRequest struct {
	CancelAppointments bool `json:"cancelAppointments"`
}

// BanResponse acknowledges a ban or unban.
type BanResponse struct {
	Message  string `json:"message"`
	IsBanned bool   `json:"isBanned"`
}

// User is an entry of the user directory. The backend identifies users by
// either "_id" or "id" depending on the endpoint.
type User struct {
	DocumentID string `json:"_id,omitempty"`
	ID         string `json:"id,omitempty"`
	Name       string `json:"name,omitempty"`
	Email      string `json:"email,omitempty"`
	Phone      string `json:"phone,omitempty"`
	Role       string `json:"role,omitempty"`
}

// Identifier returns "_id" when present and "id" otherwise.
func (u User) Identifier() string {
	if u.DocumentID != "" {
		return u.DocumentID
	}
	return u.ID
}

// RegisterRequest is the body of the registration endpoint.
type RegisterRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
	Phone    string `json:"phone"`
	Role     string `json:"role"`
}

// RegisterResponse acknowledges a registration. The backend may return the
// new user, a message, or both.
type RegisterResponse struct {
	Message string `json:"message,omitempty"`
	User    *User  `json:"user,omitempty"`
}

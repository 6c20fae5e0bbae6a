package user

import "time"

// User is an authenticated account created from a Google login. Binding
// fields associate the account with a roster student (see internal/binding).
type User struct {
	ID            int64      `db:"id" json:"id"`
	GoogleID      string     `db:"google_id" json:"google_id"`
	Email         string     `db:"email" json:"email"`
	Name          string     `db:"name" json:"name"`
	AvatarURL     *string    `db:"avatar_url" json:"avatar_url,omitempty"`
	Locale        string     `db:"locale" json:"locale"`
	VerifiedEmail bool       `db:"verified_email" json:"verified_email"`
	CreatedAt     time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time  `db:"updated_at" json:"updated_at"`
	LastLogin     *time.Time `db:"last_login" json:"last_login,omitempty"`
	LoginCount    int        `db:"login_count" json:"login_count"`
	IsActive      bool       `db:"is_active" json:"is_active"`
	Role          string     `db:"role" json:"role"`
	StudentID     *string    `db:"student_id" json:"student_id,omitempty"`
	BindingStatus string     `db:"binding_status" json:"binding_status"`
}

// GoogleProfile is the subset of the verified Google identity the service
// stores.
type GoogleProfile struct {
	GoogleID      string
	Email         string
	Name          string
	AvatarURL     string
	Locale        string
	VerifiedEmail bool
}

// Stats summarizes the user table for the admin surface.
type Stats struct {
	TotalUsers        int64 `db:"total_users" json:"total_users"`
	NewUsersToday     int64 `db:"new_users_today" json:"new_users_today"`
	NewUsersThisMonth int64 `db:"new_users_this_month" json:"new_users_this_month"`
	ActiveUsersToday  int64 `db:"active_users_today" json:"active_users_today"`
	TotalLogins       int64 `db:"total_logins" json:"total_logins"`
}

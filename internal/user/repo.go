package user

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
)

// ErrNotFound is returned when no active user matches the lookup.
var ErrNotFound = errors.New("user not found")

// Repository persists users in SQLite. Deactivated accounts are invisible
// to every lookup.
type Repository struct {
	db *sqlx.DB
}

// NewRepository creates a repo.
func NewRepository(db *sqlx.DB) *Repository {
	return &Repository{db: db}
}

const userColumns = `id, google_id, email, name, avatar_url, locale, verified_email,
	created_at, updated_at, last_login, login_count, is_active, role,
	student_id, binding_status`

// FindByGoogleID returns the active user for a Google identity.
func (r *Repository) FindByGoogleID(ctx context.Context, googleID string) (*User, error) {
	var u User
	err := r.db.GetContext(ctx, &u,
		`SELECT `+userColumns+` FROM users WHERE google_id = ? AND is_active = 1`, googleID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find user by google id: %w", err)
	}
	return &u, nil
}

// FindByEmail returns the active user for an email address.
func (r *Repository) FindByEmail(ctx context.Context, email string) (*User, error) {
	var u User
	err := r.db.GetContext(ctx, &u,
		`SELECT `+userColumns+` FROM users WHERE email = ? AND is_active = 1`, email)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find user by email: %w", err)
	}
	return &u, nil
}

// FindByID returns the active user by database id.
func (r *Repository) FindByID(ctx context.Context, id int64) (*User, error) {
	var u User
	err := r.db.GetContext(ctx, &u,
		`SELECT `+userColumns+` FROM users WHERE id = ? AND is_active = 1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find user by id: %w", err)
	}
	return &u, nil
}

// Create inserts a new user from a verified Google profile and returns the
// stored row.
func (r *Repository) Create(ctx context.Context, p GoogleProfile) (*User, error) {
	locale := p.Locale
	if locale == "" {
		locale = "zh-TW"
	}
	var avatar *string
	if p.AvatarURL != "" {
		avatar = &p.AvatarURL
	}
	now := time.Now()
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO users (google_id, email, name, avatar_url, locale, verified_email,
			created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		p.GoogleID, p.Email, p.Name, avatar, locale, boolToInt(p.VerifiedEmail), now, now)
	if err != nil {
		return nil, fmt.Errorf("insert user: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("insert user id: %w", err)
	}
	return r.FindByID(ctx, id)
}

// UpdateProfile refreshes profile fields from a Google login.
func (r *Repository) UpdateProfile(ctx context.Context, p GoogleProfile) error {
	var avatar *string
	if p.AvatarURL != "" {
		avatar = &p.AvatarURL
	}
	_, err := r.db.ExecContext(ctx, `
		UPDATE users
		SET email = ?, name = ?, avatar_url = COALESCE(?, avatar_url),
		    verified_email = ?, updated_at = ?
		WHERE google_id = ?`,
		p.Email, p.Name, avatar, boolToInt(p.VerifiedEmail), time.Now(), p.GoogleID)
	if err != nil {
		return fmt.Errorf("update user profile: %w", err)
	}
	return nil
}

// TouchLogin records a successful login.
func (r *Repository) TouchLogin(ctx context.Context, googleID string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE users
		SET last_login = ?, login_count = login_count + 1
		WHERE google_id = ?`, time.Now(), googleID)
	if err != nil {
		return fmt.Errorf("touch login: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// Deactivate disables an account without deleting its history.
func (r *Repository) Deactivate(ctx context.Context, googleID string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE users SET is_active = 0, updated_at = ? WHERE google_id = ?`,
		time.Now(), googleID)
	if err != nil {
		return fmt.Errorf("deactivate user: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// GetStats aggregates user counts for the admin surface. Day and month
// boundaries are computed in the server's local zone, matching the calendar
// day the attendance aggregator uses.
func (r *Repository) GetStats(ctx context.Context) (Stats, error) {
	now := time.Now()
	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())

	var s Stats
	err := r.db.GetContext(ctx, &s, `
		SELECT
			COUNT(*) AS total_users,
			COUNT(CASE WHEN created_at >= ? THEN 1 END) AS new_users_today,
			COUNT(CASE WHEN created_at >= ? THEN 1 END) AS new_users_this_month,
			COUNT(CASE WHEN last_login >= ? THEN 1 END) AS active_users_today,
			COALESCE(SUM(login_count), 0) AS total_logins
		FROM users
		WHERE is_active = 1`, dayStart, monthStart, dayStart)
	if err != nil {
		return Stats{}, fmt.Errorf("user stats: %w", err)
	}
	return s, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

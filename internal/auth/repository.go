package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/infest-events/registration/internal/models"
)

// ErrStaffNotFound is returned when no staff account has the username.
var ErrStaffNotFound = errors.New("staff not found")

// Directory looks up staff accounts for login.
type Directory interface {
	GetByUsername(ctx context.Context, username string) (*models.Staff, error)
}

// Repository handles staff persistence in staff_users.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a staff repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// GetByUsername returns a staff account by username.
func (r *Repository) GetByUsername(ctx context.Context, username string) (*models.Staff, error) {
	const q = `SELECT id, username, password_hash, COALESCE(full_name,''), role, created_at
		FROM staff_users WHERE username = $1`
	var s models.Staff
	err := r.pool.QueryRow(ctx, q, strings.ToLower(username)).Scan(&s.ID, &s.Username, &s.PasswordHash, &s.FullName, &s.Role, &s.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrStaffNotFound
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// List returns all staff accounts.
func (r *Repository) List(ctx context.Context) ([]models.Staff, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, username, COALESCE(full_name,''), role, created_at
		FROM staff_users ORDER BY username`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []models.Staff
	for rows.Next() {
		var s models.Staff
		if err := rows.Scan(&s.ID, &s.Username, &s.FullName, &s.Role, &s.CreatedAt); err != nil {
			return nil, err
		}
		list = append(list, s)
	}
	return list, rows.Err()
}

// Upsert creates a staff account or resets its password and role.
func (r *Repository) Upsert(ctx context.Context, username, passwordHash, fullName string, role models.Role) (*models.Staff, error) {
	if !role.Valid() {
		return nil, fmt.Errorf("unknown role %q", role)
	}
	const q = `INSERT INTO staff_users (id, username, password_hash, full_name, role)
		VALUES ($1, $2, $3, NULLIF($4,''), $5)
		ON CONFLICT (username) DO UPDATE
		SET password_hash = EXCLUDED.password_hash, full_name = EXCLUDED.full_name, role = EXCLUDED.role
		RETURNING id, username, password_hash, COALESCE(full_name,''), role, created_at`
	var s models.Staff
	err := r.pool.QueryRow(ctx, q, uuid.New(), strings.ToLower(username), passwordHash, fullName, string(role)).
		Scan(&s.ID, &s.Username, &s.PasswordHash, &s.FullName, &s.Role, &s.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// StaticDirectory serves a single account configured through the environment.
type StaticDirectory struct {
	staff *models.Staff
}

// NewStaticDirectory returns nil when username or hash is empty.
func NewStaticDirectory(username, passwordHash string) *StaticDirectory {
	if username == "" || passwordHash == "" {
		return nil
	}
	return &StaticDirectory{staff: &models.Staff{
		ID:           uuid.NewSHA1(uuid.NameSpaceOID, []byte("staff:"+strings.ToLower(username))),
		Username:     strings.ToLower(username),
		PasswordHash: passwordHash,
		Role:         models.RoleAdmin,
	}}
}

func (d *StaticDirectory) GetByUsername(_ context.Context, username string) (*models.Staff, error) {
	if d == nil || !strings.EqualFold(username, d.staff.Username) {
		return nil, ErrStaffNotFound
	}
	s := *d.staff
	return &s, nil
}

// Chain tries each directory in order until one knows the username.
type Chain []Directory

func (c Chain) GetByUsername(ctx context.Context, username string) (*models.Staff, error) {
	for _, d := range c {
		s, err := d.GetByUsername(ctx, username)
		if errors.Is(err, ErrStaffNotFound) {
			continue
		}
		return s, err
	}
	return nil, ErrStaffNotFound
}

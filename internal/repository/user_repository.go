package repository

import (
	"context"
	"database/sql"
	"strings"

	"github.com/gateleaf/ticket-engine/internal/model"
	"github.com/gateleaf/ticket-engine/internal/utils"
)

const userSelect = `SELECT id, email, password_hash, role, tier, is_active, created_at, updated_at FROM users`

type UserRepo struct{ DB *sql.DB }

func NewUserRepo(db *sql.DB) *UserRepo { return &UserRepo{DB: db} }

// Create inserts a user with the given role and tier and returns its ID.
// The tier must already be validated against the registry by the caller.
func (r *UserRepo) Create(ctx context.Context, email, password, role string, tier model.Tier, cost int) (uint64, error) {
	hash, err := utils.HashPassword(password, cost)
	if err != nil {
		return 0, err
	}
	res, err := r.DB.ExecContext(ctx,
		"INSERT INTO users (email, password_hash, role, tier) VALUES (?,?,?,?)",
		normalizeEmail(email), hash, role, string(tier))
	if err != nil {
		if isDuplicateKey(err) {
			return 0, ErrEmailExists
		}
		return 0, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	return uint64(id), nil
}

// GetByEmail fetches a user by normalized email.
func (r *UserRepo) GetByEmail(ctx context.Context, email string) (model.User, error) {
	return scanUser(r.DB.QueryRowContext(ctx, userSelect+" WHERE email=? LIMIT 1", normalizeEmail(email)))
}

// GetByID fetches a user by id.
func (r *UserRepo) GetByID(ctx context.Context, id uint64) (model.User, error) {
	return scanUser(r.DB.QueryRowContext(ctx, userSelect+" WHERE id=? LIMIT 1", id))
}

// SetTier updates a user's membership tier, typically driven by the
// external billing system on subscription changes.
func (r *UserRepo) SetTier(ctx context.Context, id uint64, tier model.Tier) error {
	res, err := r.DB.ExecContext(ctx, "UPDATE users SET tier=? WHERE id=?", string(tier), id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func scanUser(row *sql.Row) (model.User, error) {
	var (
		u   model.User
		raw string
	)
	err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.Role, &raw, &u.IsActive, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return model.User{}, err
	}
	// A tier outside the registry is a data problem; fall back to BASIC
	// so the user can still authenticate while eligibility stays narrow.
	if t, ok := model.ParseTier(raw); ok {
		u.Tier = t
	} else {
		u.Tier = model.TierBasic
	}
	return u, nil
}

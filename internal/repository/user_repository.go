package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/onurcolak/broadcast-dispatch-service/internal/domain"
)

// UserRepository reads the user directory. It never writes.
type UserRepository struct {
	db *sqlx.DB
}

func NewUserRepository(db *sqlx.DB) *UserRepository {
	return &UserRepository{db: db}
}

// FindUsers returns directory users matching q in user id order.
func (r *UserRepository) FindUsers(ctx context.Context, q domain.UserQuery) ([]domain.DirectoryUser, error) {
	conds := []string{"contact_id <> ''"}
	var args []any

	if q.PremiumOnly {
		conds = append(conds, "is_premium = ?")
		args = append(args, true)
	}
	if q.InactiveBefore != nil {
		conds = append(conds, "(last_active_at IS NULL OR last_active_at < ?)")
		args = append(args, q.InactiveBefore.UTC())
	}
	if q.ZodiacSign != "" {
		conds = append(conds, "LOWER(zodiac_sign) = ?")
		args = append(args, strings.ToLower(q.ZodiacSign))
	}

	query := r.db.Rebind(`
		SELECT id, contact_id, display_name, is_premium, last_active_at, zodiac_sign
		FROM users
		WHERE ` + strings.Join(conds, " AND ") + `
		ORDER BY id ASC
	`)

	var users []domain.DirectoryUser
	if err := r.db.SelectContext(ctx, &users, query, args...); err != nil {
		return nil, fmt.Errorf("failed to find users: %w", err)
	}

	return users, nil
}

package store

import (
	"context"
	"database/sql"
	"fmt"

	"chatcore/internal/domain"
)

type UserRepo struct {
	c conn
}

var _ domain.UserRepository = (*UserRepo)(nil)

func (r *UserRepo) Create(ctx context.Context, u *domain.User) error {
	if u.CreatedAt.IsZero() {
		u.CreatedAt = Now()
	}
	return r.c.queryRow(ctx, `
		INSERT INTO users (email, name, avatar_url, created_at)
		VALUES (?, ?, ?, ?)
		RETURNING id
	`, u.Email, u.Name, u.AvatarURL, u.CreatedAt).Scan(&u.ID)
}

func (r *UserRepo) GetByID(ctx context.Context, id int64) (*domain.User, error) {
	u := &domain.User{}
	err := r.c.queryRow(ctx, `
		SELECT id, email, name, avatar_url, created_at FROM users WHERE id = ?
	`, id).Scan(&u.ID, &u.Email, &u.Name, &u.AvatarURL, &u.CreatedAt)
	if err != nil {
		return nil, notFound(err, "user")
	}
	return u, nil
}

// GetByIDs returns the users that exist among ids, ordered by id.
func (r *UserRepo) GetByIDs(ctx context.Context, ids []int64) ([]*domain.User, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := r.c.query(ctx, `
		SELECT id, email, name, avatar_url, created_at FROM users
		WHERE id IN (`+placeholders(len(ids))+`)
		ORDER BY id ASC
	`, int64Args(ids)...)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	return scanUsers(rows)
}

func scanUsers(rows *sql.Rows) ([]*domain.User, error) {
	defer rows.Close()
	var users []*domain.User
	for rows.Next() {
		u := &domain.User{}
		if err := rows.Scan(&u.ID, &u.Email, &u.Name, &u.AvatarURL, &u.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

package postgres

import (
	"context"

	"github.com/and161185/cems/internal/model"
)

// UserRepo implements UserRepository using PostgreSQL.
type UserRepo struct{ q querier }

// NewUserRepo constructs a user repository.
func NewUserRepo(db *DB) *UserRepo { return &UserRepo{q: db.Pool} }

// Create inserts a new user row.
func (r *UserRepo) Create(ctx context.Context, u *model.User) error {
	const q = `
INSERT INTO users (username, email, pwd_hash)
VALUES ($1, $2, $3)
RETURNING id, created_at`
	err := r.q.QueryRow(ctx, q, u.Username, u.Email, u.PwdHash).Scan(&u.ID, &u.CreatedAt)
	return wrap("create user", err)
}

// GetByEmail selects a user by login email.
func (r *UserRepo) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	const q = `
SELECT id, username, email, pwd_hash, created_at
FROM users WHERE email=$1`
	return r.scanOne(ctx, "get user", q, email)
}

func (r *UserRepo) scanOne(ctx context.Context, op, q string, arg any) (*model.User, error) {
	var u model.User
	err := r.q.QueryRow(ctx, q, arg).Scan(&u.ID, &u.Username, &u.Email, &u.PwdHash, &u.CreatedAt)
	if err != nil {
		return nil, wrap(op, err)
	}
	return &u, nil
}

// Existing returns the ids among the input that reference existing users.
func (r *UserRepo) Existing(ctx context.Context, ids []int64) ([]int64, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	const q = `SELECT id FROM users WHERE id = ANY($1) ORDER BY id`
	rows, err := r.q.Query(ctx, q, ids)
	if err != nil {
		return nil, wrap("existing users", err)
	}
	defer rows.Close()

	out := make([]int64, 0, len(ids))
	for rows.Next() {
		var id int64
		if err = rows.Scan(&id); err != nil {
			return nil, wrap("existing users", err)
		}
		out = append(out, id)
	}
	return out, wrap("existing users", rows.Err())
}

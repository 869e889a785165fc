package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/and161185/cems/internal/repository"
)

// Store implements repository.Store on top of a pool.
type Store struct{ db *DB }

var _ repository.Store = (*Store)(nil)

// NewStore constructs a transactional store.
func NewStore(db *DB) *Store { return &Store{db: db} }

// Users returns a pool-bound user repository.
func (s *Store) Users() repository.UserRepository { return &UserRepo{q: s.db.Pool} }

// Events returns a pool-bound event repository.
func (s *Store) Events() repository.EventRepository { return &EventRepo{q: s.db.Pool} }

// Versions returns a pool-bound version ledger.
func (s *Store) Versions() repository.VersionRepository { return &VersionRepo{q: s.db.Pool} }

// Grants returns a pool-bound permission store.
func (s *Store) Grants() repository.GrantRepository { return &GrantRepo{q: s.db.Pool} }

// WithTx runs fn inside one transaction; every repository handed to fn shares it.
func (s *Store) WithTx(ctx context.Context, fn func(r repository.Repos) error) (err error) {
	tx, err := s.db.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return wrap("begin", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
			return
		}
		if e := tx.Commit(ctx); e != nil {
			err = wrap("commit", e)
		}
	}()
	return fn(txRepos{tx: tx})
}

type txRepos struct{ tx pgx.Tx }

func (r txRepos) Users() repository.UserRepository       { return &UserRepo{q: r.tx} }
func (r txRepos) Events() repository.EventRepository     { return &EventRepo{q: r.tx} }
func (r txRepos) Versions() repository.VersionRepository { return &VersionRepo{q: r.tx} }
func (r txRepos) Grants() repository.GrantRepository     { return &GrantRepo{q: r.tx} }

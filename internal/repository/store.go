package repository

import "context"

// Repos groups repositories that share one connection or transaction.
type Repos interface {
	Users() UserRepository
	Events() EventRepository
	Versions() VersionRepository
	Grants() GrantRepository
}

// Store is the injected durable store with transactional scopes.
type Store interface {
	Repos
	// WithTx runs fn in a single transaction: committed if fn returns nil, rolled back otherwise.
	WithTx(ctx context.Context, fn func(r Repos) error) error
}

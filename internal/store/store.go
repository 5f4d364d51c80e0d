// Package store defines narrow persistence interfaces for the gifting
// domain. The engine always re-fetches an aggregate, mutates it in memory and
// writes it back whole; nothing holds a stored reference across operations.
package store

import (
	"context"
	"errors"

	"giftpool/internal/models"
)

// ErrNotFound is returned when the requested entity does not exist.
var ErrNotFound = errors.New("store: not found")

// Users persists Telegram identities.
type Users interface {
	Get(ctx context.Context, id int64) (*models.User, error)
	Save(ctx context.Context, u *models.User) error
	List(ctx context.Context) ([]models.User, error)
}

// Collections persists collection aggregates including participants and
// gift options.
type Collections interface {
	Get(ctx context.Context, id string) (*models.Collection, error)
	Save(ctx context.Context, c *models.Collection) error
	ListByUser(ctx context.Context, userID int64) ([]models.Collection, error)
}

// Transactions persists the append-only contribution ledger.
type Transactions interface {
	Get(ctx context.Context, id string) (*models.Transaction, error)
	Save(ctx context.Context, t *models.Transaction) error
	ListByCollection(ctx context.Context, collectionID string) ([]models.Transaction, error)
}

// AdminLog appends audit entries for privileged mutations.
type AdminLog interface {
	Append(ctx context.Context, e *models.AdminLog) error
}

// Store bundles all repositories behind one dependency.
type Store interface {
	Users() Users
	Collections() Collections
	Transactions() Transactions
	AdminLog() AdminLog
}

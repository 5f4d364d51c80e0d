package store

import (
	"context"
	"sort"
	"sync"

	"giftpool/internal/models"
)

// NewMemory returns an in-memory Store for tests and local development.
// Every read returns a deep copy so callers must write back to persist, the
// same re-fetch-then-save discipline the Postgres store enforces.
func NewMemory() Store {
	return &memStore{
		users:        make(map[int64]models.User),
		collections:  make(map[string]models.Collection),
		transactions: make(map[string]models.Transaction),
	}
}

type memStore struct {
	mu           sync.RWMutex
	users        map[int64]models.User
	collections  map[string]models.Collection
	transactions map[string]models.Transaction
	adminLog     []models.AdminLog
}

func (s *memStore) Users() Users               { return (*memUsers)(s) }
func (s *memStore) Collections() Collections   { return (*memCollections)(s) }
func (s *memStore) Transactions() Transactions { return (*memTransactions)(s) }
func (s *memStore) AdminLog() AdminLog         { return (*memAdminLog)(s) }

// AdminEntries exposes the audit trail for test assertions.
func (s *memStore) AdminEntries() []models.AdminLog {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]models.AdminLog(nil), s.adminLog...)
}

func copyCollection(c models.Collection) models.Collection {
	c.Participants = append([]models.Participant(nil), c.Participants...)
	c.GiftOptions = append([]models.GiftOption(nil), c.GiftOptions...)
	return c
}

type memUsers memStore

func (r *memUsers) Get(_ context.Context, id int64) (*models.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	u, ok := r.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &u, nil
}

func (r *memUsers) Save(_ context.Context, u *models.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.users[u.ID] = *u
	return nil
}

func (r *memUsers) List(_ context.Context) ([]models.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]models.User, 0, len(r.users))
	for _, u := range r.users {
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

type memCollections memStore

func (r *memCollections) Get(_ context.Context, id string) (*models.Collection, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.collections[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := copyCollection(c)
	return &cp, nil
}

func (r *memCollections) Save(_ context.Context, c *models.Collection) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.collections[c.ID] = copyCollection(*c)
	return nil
}

func (r *memCollections) ListByUser(_ context.Context, userID int64) ([]models.Collection, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []models.Collection
	for _, c := range r.collections {
		if c.OrganizerID == userID {
			out = append(out, copyCollection(c))
			continue
		}
		for _, p := range c.Participants {
			if p.UserID == userID {
				out = append(out, copyCollection(c))
				break
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

type memTransactions memStore

func (r *memTransactions) Get(_ context.Context, id string) (*models.Transaction, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.transactions[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &t, nil
}

func (r *memTransactions) Save(_ context.Context, t *models.Transaction) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.transactions[t.ID] = *t
	return nil
}

func (r *memTransactions) ListByCollection(_ context.Context, collectionID string) ([]models.Transaction, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []models.Transaction
	for _, t := range r.transactions {
		if t.CollectionID == collectionID {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

type memAdminLog memStore

func (r *memAdminLog) Append(_ context.Context, e *models.AdminLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	e.ID = int64(len(r.adminLog) + 1)
	r.adminLog = append(r.adminLog, *e)
	return nil
}

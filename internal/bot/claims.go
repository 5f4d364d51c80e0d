package bot

import (
	"sync"

	"github.com/shopspring/decimal"
)

// claimBox holds manual payment claims awaiting organizer review.
// A claim exists between the "I paid" button and the organizer's
// confirm/reject decision; only confirmation mutates the ledger.
type claimBox struct {
	mu     sync.Mutex
	claims map[claimKey]decimal.Decimal
}

type claimKey struct {
	collectionID string
	userID       int64
}

func newClaimBox() *claimBox {
	return &claimBox{claims: make(map[claimKey]decimal.Decimal)}
}

// Put records a claim, replacing any earlier one from the same user.
func (b *claimBox) Put(collectionID string, userID int64, amount decimal.Decimal) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.claims[claimKey{collectionID, userID}] = amount
}

// Take removes and returns the claim if present.
func (b *claimBox) Take(collectionID string, userID int64) (decimal.Decimal, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	key := claimKey{collectionID, userID}
	amount, ok := b.claims[key]
	if ok {
		delete(b.claims, key)
	}
	return amount, ok
}

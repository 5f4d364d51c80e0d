package models

import (
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// CollectionStatus enumerates the lifecycle states of a collection.
type CollectionStatus string

const (
	StatusPending   CollectionStatus = "pending"
	StatusActive    CollectionStatus = "active"
	StatusCompleted CollectionStatus = "completed"
	StatusCancelled CollectionStatus = "cancelled"
	StatusFrozen    CollectionStatus = "frozen"
)

// Terminal reports whether no further transitions are allowed from the status.
func (s CollectionStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// User is a Telegram identity known to the bot. Users are created lazily on
// first interaction and never deleted.
type User struct {
	ID          int64      `db:"id"`
	Username    *string    `db:"username"`
	FirstName   string     `db:"first_name"`
	LastName    *string    `db:"last_name"`
	ChatID      int64      `db:"chat_id"`
	IsBlocked   bool       `db:"is_blocked"`
	BlockReason *string    `db:"block_reason"`
	BlockedAt   *time.Time `db:"blocked_at"`
	CreatedAt   time.Time  `db:"created_at"`
}

// DisplayName returns the best human-readable name for the user.
func (u *User) DisplayName() string {
	if u == nil {
		return ""
	}
	if u.Username != nil && *u.Username != "" {
		return "@" + *u.Username
	}
	if u.LastName != nil && *u.LastName != "" {
		return u.FirstName + " " + *u.LastName
	}
	return u.FirstName
}

// Participant is a user enrolled in a collection's contribution and voting
// pool. A user appears at most once per collection; Vote references a
// GiftOption id within the same collection or is nil.
type Participant struct {
	CollectionID string          `db:"collection_id"`
	UserID       int64           `db:"user_id"`
	Contribution decimal.Decimal `db:"contribution"`
	HasPaid      bool            `db:"has_paid"`
	Vote         *string         `db:"vote"`
}

// NewParticipant builds a zero-contribution participant bound to its parent
// collection id. The parent id is an input so the back-reference can never be
// assigned out of phase.
func NewParticipant(collectionID string, userID int64) Participant {
	return Participant{
		CollectionID: collectionID,
		UserID:       userID,
		Contribution: decimal.Zero,
	}
}

// GiftOption is a candidate gift participants vote on. Votes mirrors the
// number of participants whose Vote equals this option's id.
type GiftOption struct {
	ID           string  `db:"id"`
	CollectionID string  `db:"collection_id"`
	Title        string  `db:"title"`
	Description  *string `db:"description"`
	Votes        int     `db:"votes"`
}

// Collection is a single pooled-money gifting campaign. It exclusively owns
// its participants and gift options.
type Collection struct {
	ID              string           `db:"id"`
	Title           string           `db:"title"`
	Description     *string          `db:"description"`
	TargetAmount    decimal.Decimal  `db:"target_amount"`
	CurrentAmount   decimal.Decimal  `db:"current_amount"`
	Status          CollectionStatus `db:"status"`
	OrganizerID     int64            `db:"organizer_id"`
	GiftRecipientID *int64           `db:"gift_recipient_id"`
	GroupChatID     *int64           `db:"group_chat_id"`
	Deadline        *time.Time       `db:"deadline"`
	CreatedAt       time.Time        `db:"created_at"`
	UpdatedAt       time.Time        `db:"updated_at"`

	Participants []Participant `db:"-"`
	GiftOptions  []GiftOption  `db:"-"`
}

// Participant returns the participant entry for userID, or nil.
func (c *Collection) Participant(userID int64) *Participant {
	for i := range c.Participants {
		if c.Participants[i].UserID == userID {
			return &c.Participants[i]
		}
	}
	return nil
}

// Option returns the gift option with the given id, or nil.
func (c *Collection) Option(optionID string) *GiftOption {
	for i := range c.GiftOptions {
		if c.GiftOptions[i].ID == optionID {
			return &c.GiftOptions[i]
		}
	}
	return nil
}

// TargetReached reports whether the pooled amount covers the target.
func (c *Collection) TargetReached() bool {
	return c.CurrentAmount.GreaterThanOrEqual(c.TargetAmount)
}

// TransactionType distinguishes ledger entry kinds.
type TransactionType string

const (
	TxContribution TransactionType = "contribution"
	TxRefund       TransactionType = "refund"
)

// Transaction is an append-only ledger entry. Cancellation is a flag plus a
// reversal of the owning collection's running amount, never a deletion.
type Transaction struct {
	ID           string          `db:"id"`
	CollectionID string          `db:"collection_id"`
	UserID       int64           `db:"user_id"`
	Amount       decimal.Decimal `db:"amount"`
	Type         TransactionType `db:"type"`
	Cancelled    bool            `db:"cancelled"`
	CancelReason *string         `db:"cancel_reason"`
	CancelledAt  *time.Time      `db:"cancelled_at"`
	CreatedAt    time.Time       `db:"created_at"`
}

// AdminLog records a single privileged mutation for the audit trail.
type AdminLog struct {
	ID        int64     `db:"id"`
	AdminID   int64     `db:"admin_id"`
	Action    string    `db:"action"`
	TargetRef string    `db:"target_ref"`
	CreatedAt time.Time `db:"created_at"`
}

// NewID returns an opaque unique token used for collections, options and
// transactions.
func NewID() string {
	return uuid.NewString()
}

// UserRef formats a user id as an audit-log target reference.
func UserRef(id int64) string {
	return "user:" + strconv.FormatInt(id, 10)
}

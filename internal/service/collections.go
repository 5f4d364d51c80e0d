package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"giftpool/core/logger"
	"giftpool/internal/models"
	"giftpool/internal/store"
	"log/slog"
)

// transitions is the single source of truth for lifecycle legality.
// Terminal states have no outgoing edges.
var transitions = map[models.CollectionStatus][]models.CollectionStatus{
	models.StatusPending: {models.StatusActive, models.StatusCancelled},
	models.StatusActive:  {models.StatusFrozen, models.StatusCompleted, models.StatusCancelled},
	models.StatusFrozen:  {models.StatusActive, models.StatusCancelled},
}

func transitionAllowed(from, to models.CollectionStatus) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Collections is the collection lifecycle engine. All mutating operations
// re-fetch the aggregate under a per-collection lock, mutate and persist, and
// return notification intents for the caller to deliver.
type Collections struct {
	store store.Store
	locks *keyedMutex
	now   func() time.Time
}

// NewCollections builds the lifecycle engine on top of a store.
func NewCollections(st store.Store) *Collections {
	return &Collections{
		store: st,
		locks: newKeyedMutex(),
		now:   func() time.Time { return time.Now().UTC() },
	}
}

// CreateParams carries the input for Create.
type CreateParams struct {
	OrganizerID     int64
	Title           string
	Description     string
	TargetAmount    decimal.Decimal
	ParticipantIDs  []int64
	GiftRecipientID *int64
	GroupChatID     *int64
	Deadline        *time.Time
}

// Create validates the input, persists a pending collection with
// zero-contribution participants and returns invitation notifications.
func (s *Collections) Create(ctx context.Context, p CreateParams) (*models.Collection, []Notification, error) {
	title := strings.TrimSpace(p.Title)
	if title == "" {
		return nil, nil, Validationf("title must not be empty")
	}
	if !p.TargetAmount.IsPositive() {
		return nil, nil, Validationf("target amount must be greater than zero")
	}

	now := s.now()
	c := &models.Collection{
		ID:              models.NewID(),
		Title:           title,
		TargetAmount:    p.TargetAmount,
		CurrentAmount:   decimal.Zero,
		Status:          models.StatusPending,
		OrganizerID:     p.OrganizerID,
		GiftRecipientID: p.GiftRecipientID,
		GroupChatID:     p.GroupChatID,
		Deadline:        p.Deadline,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if desc := strings.TrimSpace(p.Description); desc != "" {
		c.Description = &desc
	}

	seen := make(map[int64]struct{}, len(p.ParticipantIDs))
	for _, id := range p.ParticipantIDs {
		if id == 0 {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		c.Participants = append(c.Participants, models.NewParticipant(c.ID, id))
	}

	if err := s.store.Collections().Save(ctx, c); err != nil {
		return nil, nil, err
	}

	logger.Info(ctx, "service.collections", "collection.created",
		slog.String("status", "ok"),
		slog.String("collection_id", c.ID),
		slog.String("target", c.TargetAmount.String()),
		slog.Int("participants", len(c.Participants)),
	)

	chats, err := s.chatsFor(ctx, c)
	if err != nil {
		return c, nil, nil
	}
	return c, FanOut(EventInvited, c, chats), nil
}

// SetStatus applies a lifecycle transition after validating it against the
// state table and returns the status-specific notification batch.
func (s *Collections) SetStatus(ctx context.Context, id string, newStatus models.CollectionStatus) (*models.Collection, []Notification, error) {
	s.locks.Lock(id)
	defer s.locks.Unlock(id)

	c, err := s.getCollection(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	if !transitionAllowed(c.Status, newStatus) {
		return nil, nil, &InvalidTransitionError{From: c.Status, To: newStatus}
	}

	from := c.Status
	c.Status = newStatus
	if err := s.store.Collections().Save(ctx, c); err != nil {
		return nil, nil, err
	}

	logger.Info(ctx, "service.collections", "collection.status",
		slog.String("status", "ok"),
		slog.String("collection_id", c.ID),
		slog.String("from_status", string(from)),
		slog.String("to_status", string(newStatus)),
	)

	if newStatus == models.StatusCancelled {
		s.recordRefunds(ctx, c)
	}

	var event Event
	switch newStatus {
	case models.StatusActive:
		if from != models.StatusPending {
			// Unfreeze is silent; only first activation is announced.
			return c, nil, nil
		}
		event = EventActivated
	case models.StatusCompleted:
		event = EventCompleted
	case models.StatusCancelled:
		event = EventCancelled
	default:
		return c, nil, nil
	}

	chats, err := s.chatsFor(ctx, c)
	if err != nil {
		return c, nil, nil
	}
	return c, FanOut(event, c, chats), nil
}

// recordRefunds appends a refund ledger entry for every contribution still
// held by a cancelled collection. Ledger write failures are logged and do not
// block the cancellation itself.
func (s *Collections) recordRefunds(ctx context.Context, c *models.Collection) {
	now := s.now()
	for _, p := range c.Participants {
		if !p.Contribution.IsPositive() {
			continue
		}
		tx := &models.Transaction{
			ID:           models.NewID(),
			CollectionID: c.ID,
			UserID:       p.UserID,
			Amount:       p.Contribution,
			Type:         models.TxRefund,
			CreatedAt:    now,
		}
		if err := s.store.Transactions().Save(ctx, tx); err != nil {
			logger.Warn(ctx, "service.ledger", "refund.write.fail",
				slog.String("collection_id", c.ID),
				slog.Int64("user_id", p.UserID),
				slog.String("err", err.Error()),
			)
		}
	}
}

// AddPayment records a contribution for an existing participant of an active
// collection. It returns false with no side effects when the collection or
// participant is missing or the status is wrong; the caller decides the
// user-facing message.
func (s *Collections) AddPayment(ctx context.Context, id string, userID int64, amount decimal.Decimal) (bool, []Notification, error) {
	if !amount.IsPositive() {
		return false, nil, Validationf("amount must be greater than zero")
	}

	s.locks.Lock(id)
	defer s.locks.Unlock(id)

	c, err := s.getCollection(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return false, nil, nil
		}
		return false, nil, err
	}
	if c.Status != models.StatusActive {
		logger.Debug(ctx, "service.collections", "payment.rejected",
			slog.String("status", "skip"),
			slog.String("collection_id", c.ID),
			slog.String("from_status", string(c.Status)),
		)
		return false, nil, nil
	}
	participant := c.Participant(userID)
	if participant == nil {
		return false, nil, nil
	}

	reachedBefore := c.TargetReached()
	participant.Contribution = participant.Contribution.Add(amount)
	participant.HasPaid = true
	c.CurrentAmount = c.CurrentAmount.Add(amount)

	// The ledger entry goes first: if the collection write fails the ledger
	// over-reports, which CancelTransaction can repair, while a contribution
	// with no backing entry could never be audited or reversed.
	tx := &models.Transaction{
		ID:           models.NewID(),
		CollectionID: c.ID,
		UserID:       userID,
		Amount:       amount,
		Type:         models.TxContribution,
		CreatedAt:    s.now(),
	}
	if err := s.store.Transactions().Save(ctx, tx); err != nil {
		return false, nil, err
	}
	if err := s.store.Collections().Save(ctx, c); err != nil {
		return false, nil, err
	}

	logger.Info(ctx, "service.ledger", "payment.recorded",
		slog.String("status", "ok"),
		slog.String("collection_id", c.ID),
		slog.String("tx_id", tx.ID),
		slog.String("amount", amount.String()),
		slog.String("current", c.CurrentAmount.String()),
	)

	chats, err := s.chatsFor(ctx, c)
	if err != nil {
		return true, nil, nil
	}
	notes := FanOut(EventProgress, c, chats)
	if !reachedBefore && c.TargetReached() {
		notes = append(notes, FanOut(EventTargetReached, c, chats)...)
	}
	return true, notes, nil
}

// CancelTransaction flags a ledger entry cancelled and reverses the owning
// collection's running amount and the participant's paid state. A second
// cancellation of the same transaction is a no-op returning false.
func (s *Collections) CancelTransaction(ctx context.Context, txID, reason string, adminID int64) (bool, error) {
	tx, err := s.store.Transactions().Get(ctx, txID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	if tx.Cancelled {
		return false, nil
	}

	s.locks.Lock(tx.CollectionID)
	defer s.locks.Unlock(tx.CollectionID)

	// Re-fetch under the lock; another cancel may have won the race.
	tx, err = s.store.Transactions().Get(ctx, txID)
	if err != nil || tx.Cancelled {
		return false, err
	}

	c, err := s.getCollection(ctx, tx.CollectionID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return false, nil
		}
		return false, err
	}

	c.CurrentAmount = c.CurrentAmount.Sub(tx.Amount)
	if c.CurrentAmount.IsNegative() {
		c.CurrentAmount = decimal.Zero
	}
	if p := c.Participant(tx.UserID); p != nil {
		p.Contribution = p.Contribution.Sub(tx.Amount)
		if p.Contribution.IsNegative() {
			p.Contribution = decimal.Zero
		}
		p.HasPaid = false
	}
	if err := s.store.Collections().Save(ctx, c); err != nil {
		return false, err
	}

	now := s.now()
	tx.Cancelled = true
	tx.CancelReason = &reason
	tx.CancelledAt = &now
	if err := s.store.Transactions().Save(ctx, tx); err != nil {
		return false, err
	}

	if err := s.store.AdminLog().Append(ctx, &models.AdminLog{
		AdminID:   adminID,
		Action:    "cancel_transaction",
		TargetRef: txID,
		CreatedAt: now,
	}); err != nil {
		return false, err
	}

	logger.Info(ctx, "service.ledger", "transaction.cancelled",
		slog.String("status", "ok"),
		slog.String("tx_id", txID),
		slog.String("collection_id", tx.CollectionID),
		slog.String("amount", tx.Amount.String()),
	)
	return true, nil
}

// AddGiftOption appends a zero-vote option to the collection.
func (s *Collections) AddGiftOption(ctx context.Context, id, title, description string) (*models.GiftOption, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, Validationf("option title must not be empty")
	}

	s.locks.Lock(id)
	defer s.locks.Unlock(id)

	c, err := s.getCollection(ctx, id)
	if err != nil {
		return nil, err
	}

	opt := models.GiftOption{
		ID:           models.NewID(),
		CollectionID: c.ID,
		Title:        title,
	}
	if desc := strings.TrimSpace(description); desc != "" {
		opt.Description = &desc
	}
	c.GiftOptions = append(c.GiftOptions, opt)
	if err := s.store.Collections().Save(ctx, c); err != nil {
		return nil, err
	}
	return &opt, nil
}

// Vote applies toggle voting semantics: voting for the current choice clears
// it; voting for a different option moves the vote. At most one option holds
// a participant's vote.
func (s *Collections) Vote(ctx context.Context, id string, userID int64, optionID string) (bool, error) {
	s.locks.Lock(id)
	defer s.locks.Unlock(id)

	c, err := s.getCollection(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	participant := c.Participant(userID)
	if participant == nil {
		return false, nil
	}
	option := c.Option(optionID)
	if option == nil {
		return false, nil
	}

	if participant.Vote != nil {
		if prev := c.Option(*participant.Vote); prev != nil && prev.Votes > 0 {
			prev.Votes--
		}
		if *participant.Vote == optionID {
			// Same option again: un-vote.
			participant.Vote = nil
			return true, s.store.Collections().Save(ctx, c)
		}
	}

	v := optionID
	participant.Vote = &v
	option.Votes++
	return true, s.store.Collections().Save(ctx, c)
}

// UpdateTargetAmount changes the target while the collection is still open
// for contributions.
func (s *Collections) UpdateTargetAmount(ctx context.Context, id string, amount decimal.Decimal) (bool, error) {
	if !amount.IsPositive() {
		return false, Validationf("target amount must be greater than zero")
	}
	return s.updateOpen(ctx, id, func(c *models.Collection) {
		c.TargetAmount = amount
	})
}

// UpdateDeadline changes the deadline while the collection is still open.
func (s *Collections) UpdateDeadline(ctx context.Context, id string, deadline time.Time) (bool, error) {
	return s.updateOpen(ctx, id, func(c *models.Collection) {
		c.Deadline = &deadline
	})
}

func (s *Collections) updateOpen(ctx context.Context, id string, mutate func(*models.Collection)) (bool, error) {
	s.locks.Lock(id)
	defer s.locks.Unlock(id)

	c, err := s.getCollection(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	if c.Status != models.StatusPending && c.Status != models.StatusActive {
		return false, &InvalidTransitionError{From: c.Status, To: c.Status}
	}
	mutate(c)
	if err := s.store.Collections().Save(ctx, c); err != nil {
		return false, err
	}
	return true, nil
}

// Join enrolls a new participant while the collection is pending or active.
func (s *Collections) Join(ctx context.Context, id string, userID int64) (*models.Collection, error) {
	s.locks.Lock(id)
	defer s.locks.Unlock(id)

	c, err := s.getCollection(ctx, id)
	if err != nil {
		return nil, err
	}
	if c.Status != models.StatusPending && c.Status != models.StatusActive {
		return nil, &InvalidTransitionError{From: c.Status, To: c.Status}
	}
	if c.Participant(userID) != nil {
		return nil, Validationf("already a participant")
	}
	c.Participants = append(c.Participants, models.NewParticipant(c.ID, userID))
	if err := s.store.Collections().Save(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

// Decline removes an invited participant who has not contributed yet.
// Paid participants cannot leave; their money is already in the pool.
func (s *Collections) Decline(ctx context.Context, id string, userID int64) error {
	s.locks.Lock(id)
	defer s.locks.Unlock(id)

	c, err := s.getCollection(ctx, id)
	if err != nil {
		return err
	}
	if c.Status != models.StatusPending && c.Status != models.StatusActive {
		return &InvalidTransitionError{From: c.Status, To: c.Status}
	}
	p := c.Participant(userID)
	if p == nil {
		return Validationf("not a participant")
	}
	if p.Contribution.IsPositive() {
		return Validationf("cannot decline after contributing")
	}
	if p.Vote != nil {
		if opt := c.Option(*p.Vote); opt != nil && opt.Votes > 0 {
			opt.Votes--
		}
	}
	kept := c.Participants[:0]
	for _, cand := range c.Participants {
		if cand.UserID != userID {
			kept = append(kept, cand)
		}
	}
	c.Participants = kept
	return s.store.Collections().Save(ctx, c)
}

// Get returns the collection aggregate by id.
func (s *Collections) Get(ctx context.Context, id string) (*models.Collection, error) {
	return s.getCollection(ctx, id)
}

// ListByUser returns collections the user organizes or participates in.
func (s *Collections) ListByUser(ctx context.Context, userID int64) ([]models.Collection, error) {
	return s.store.Collections().ListByUser(ctx, userID)
}

// Reminders builds reminder notifications for unpaid participants.
func (s *Collections) Reminders(ctx context.Context, id string) ([]Notification, error) {
	c, err := s.getCollection(ctx, id)
	if err != nil {
		return nil, err
	}
	chats, err := s.chatsFor(ctx, c)
	if err != nil {
		return nil, err
	}
	return FanOut(EventReminder, c, chats), nil
}

// Freeze suspends an active collection. Admin only; audited.
func (s *Collections) Freeze(ctx context.Context, id string, adminID int64) error {
	return s.adminTransition(ctx, id, models.StatusFrozen, adminID, "freeze_collection")
}

// Unfreeze resumes a frozen collection. Admin only; audited.
func (s *Collections) Unfreeze(ctx context.Context, id string, adminID int64) error {
	return s.adminTransition(ctx, id, models.StatusActive, adminID, "unfreeze_collection")
}

// CancelByAdmin cancels a collection on behalf of an administrator; audited.
func (s *Collections) CancelByAdmin(ctx context.Context, id string, adminID int64) ([]Notification, error) {
	_, notes, err := s.SetStatus(ctx, id, models.StatusCancelled)
	if err != nil {
		return nil, err
	}
	if err := s.store.AdminLog().Append(ctx, &models.AdminLog{
		AdminID:   adminID,
		Action:    "cancel_collection",
		TargetRef: id,
		CreatedAt: s.now(),
	}); err != nil {
		return notes, err
	}
	return notes, nil
}

func (s *Collections) adminTransition(ctx context.Context, id string, to models.CollectionStatus, adminID int64, action string) error {
	if _, _, err := s.SetStatus(ctx, id, to); err != nil {
		return err
	}
	return s.store.AdminLog().Append(ctx, &models.AdminLog{
		AdminID:   adminID,
		Action:    action,
		TargetRef: id,
		CreatedAt: s.now(),
	})
}

func (s *Collections) getCollection(ctx context.Context, id string) (*models.Collection, error) {
	c, err := s.store.Collections().Get(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return c, nil
}

// chatsFor resolves direct chat ids for everyone the fan-out may address.
func (s *Collections) chatsFor(ctx context.Context, c *models.Collection) (map[int64]int64, error) {
	ids := make([]int64, 0, len(c.Participants)+2)
	for _, p := range c.Participants {
		ids = append(ids, p.UserID)
	}
	ids = append(ids, c.OrganizerID)
	if c.GiftRecipientID != nil {
		ids = append(ids, *c.GiftRecipientID)
	}

	chats := make(map[int64]int64, len(ids))
	for _, id := range ids {
		if _, ok := chats[id]; ok {
			continue
		}
		u, err := s.store.Users().Get(ctx, id)
		if errors.Is(err, store.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		chats[id] = u.ChatID
	}
	return chats, nil
}

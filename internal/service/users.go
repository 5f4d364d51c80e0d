package service

import (
	"context"
	"errors"
	"time"

	"giftpool/core/logger"
	"giftpool/internal/models"
	"giftpool/internal/store"
	"log/slog"
)

// Users manages Telegram identities and admin moderation actions.
type Users struct {
	store store.Store
	now   func() time.Time
}

// NewUsers builds the user service.
func NewUsers(st store.Store) *Users {
	return &Users{
		store: st,
		now:   func() time.Time { return time.Now().UTC() },
	}
}

// Profile carries the identity fields arriving with each update.
type Profile struct {
	ID        int64
	Username  string
	FirstName string
	LastName  string
	ChatID    int64
}

// Ensure creates the user on first interaction and refreshes identity fields
// on subsequent ones. Users are never deleted.
func (s *Users) Ensure(ctx context.Context, p Profile) (*models.User, error) {
	u, err := s.store.Users().Get(ctx, p.ID)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}
	if u == nil {
		u = &models.User{
			ID:        p.ID,
			CreatedAt: s.now(),
		}
		logger.Info(ctx, "service.users", "user.created",
			slog.String("status", "ok"),
			slog.Int64("user_id", p.ID),
		)
	}

	u.FirstName = p.FirstName
	if p.Username != "" {
		v := p.Username
		u.Username = &v
	}
	if p.LastName != "" {
		v := p.LastName
		u.LastName = &v
	}
	// Only a direct chat is a valid notification target.
	if p.ChatID > 0 {
		u.ChatID = p.ChatID
	}

	if err := s.store.Users().Save(ctx, u); err != nil {
		return nil, err
	}
	return u, nil
}

// Get returns the user by Telegram id.
func (s *Users) Get(ctx context.Context, id int64) (*models.User, error) {
	u, err := s.store.Users().Get(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrNotFound
	}
	return u, err
}

// Block marks the user as blocked with a reason; audited.
func (s *Users) Block(ctx context.Context, userID int64, reason string, adminID int64) error {
	u, err := s.Get(ctx, userID)
	if err != nil {
		return err
	}
	now := s.now()
	u.IsBlocked = true
	u.BlockReason = &reason
	u.BlockedAt = &now
	if err := s.store.Users().Save(ctx, u); err != nil {
		return err
	}
	return s.audit(ctx, adminID, "block_user", userID)
}

// Unblock clears the blocked state; audited.
func (s *Users) Unblock(ctx context.Context, userID int64, adminID int64) error {
	u, err := s.Get(ctx, userID)
	if err != nil {
		return err
	}
	u.IsBlocked = false
	u.BlockReason = nil
	u.BlockedAt = nil
	if err := s.store.Users().Save(ctx, u); err != nil {
		return err
	}
	return s.audit(ctx, adminID, "unblock_user", userID)
}

// IsBlocked reports whether a user is currently blocked. Unknown users are
// not blocked.
func (s *Users) IsBlocked(ctx context.Context, userID int64) bool {
	u, err := s.store.Users().Get(ctx, userID)
	if err != nil {
		return false
	}
	return u.IsBlocked
}

func (s *Users) audit(ctx context.Context, adminID int64, action string, userID int64) error {
	err := s.store.AdminLog().Append(ctx, &models.AdminLog{
		AdminID:   adminID,
		Action:    action,
		TargetRef: models.UserRef(userID),
		CreatedAt: s.now(),
	})
	if err == nil {
		logger.Info(ctx, "admin", "user.moderated",
			slog.String("status", "ok"),
			slog.String("operation", action),
			slog.Int64("user_id", userID),
		)
	}
	return err
}

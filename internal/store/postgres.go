package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"

	"giftpool/internal/models"
)

// NewPostgres returns a Store backed by the given sqlx connection.
func NewPostgres(db *sqlx.DB) Store {
	return &pgStore{db: db}
}

type pgStore struct {
	db *sqlx.DB
}

func (s *pgStore) Users() Users               { return &pgUsers{db: s.db} }
func (s *pgStore) Collections() Collections   { return &pgCollections{db: s.db} }
func (s *pgStore) Transactions() Transactions { return &pgTransactions{db: s.db} }
func (s *pgStore) AdminLog() AdminLog         { return &pgAdminLog{db: s.db} }

type pgUsers struct {
	db *sqlx.DB
}

func (r *pgUsers) Get(ctx context.Context, id int64) (*models.User, error) {
	var u models.User
	err := r.db.GetContext(ctx, &u, `SELECT * FROM users WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (r *pgUsers) Save(ctx context.Context, u *models.User) error {
	_, err := r.db.NamedExecContext(ctx, `
		INSERT INTO users (id, username, first_name, last_name, chat_id, is_blocked, block_reason, blocked_at, created_at)
		VALUES (:id, :username, :first_name, :last_name, :chat_id, :is_blocked, :block_reason, :blocked_at, :created_at)
		ON CONFLICT (id) DO UPDATE SET
			username = EXCLUDED.username,
			first_name = EXCLUDED.first_name,
			last_name = EXCLUDED.last_name,
			chat_id = EXCLUDED.chat_id,
			is_blocked = EXCLUDED.is_blocked,
			block_reason = EXCLUDED.block_reason,
			blocked_at = EXCLUDED.blocked_at`, u)
	return err
}

func (r *pgUsers) List(ctx context.Context) ([]models.User, error) {
	var out []models.User
	if err := r.db.SelectContext(ctx, &out, `SELECT * FROM users ORDER BY id`); err != nil {
		return nil, err
	}
	return out, nil
}

type pgCollections struct {
	db *sqlx.DB
}

func (r *pgCollections) Get(ctx context.Context, id string) (*models.Collection, error) {
	var c models.Collection
	err := r.db.GetContext(ctx, &c, `SELECT * FROM collections WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if err := r.loadChildren(ctx, &c); err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *pgCollections) loadChildren(ctx context.Context, c *models.Collection) error {
	if err := r.db.SelectContext(ctx, &c.Participants,
		`SELECT * FROM collection_participants WHERE collection_id = $1 ORDER BY user_id`, c.ID); err != nil {
		return err
	}
	return r.db.SelectContext(ctx, &c.GiftOptions,
		`SELECT * FROM gift_options WHERE collection_id = $1 ORDER BY id`, c.ID)
}

// Save writes the whole aggregate: the collection row is upserted and the
// owned participants and options are replaced.
func (r *pgCollections) Save(ctx context.Context, c *models.Collection) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	c.UpdatedAt = time.Now().UTC()
	if _, err := tx.NamedExecContext(ctx, `
		INSERT INTO collections (id, title, description, target_amount, current_amount, status,
			organizer_id, gift_recipient_id, group_chat_id, deadline, created_at, updated_at)
		VALUES (:id, :title, :description, :target_amount, :current_amount, :status,
			:organizer_id, :gift_recipient_id, :group_chat_id, :deadline, :created_at, :updated_at)
		ON CONFLICT (id) DO UPDATE SET
			title = EXCLUDED.title,
			description = EXCLUDED.description,
			target_amount = EXCLUDED.target_amount,
			current_amount = EXCLUDED.current_amount,
			status = EXCLUDED.status,
			gift_recipient_id = EXCLUDED.gift_recipient_id,
			group_chat_id = EXCLUDED.group_chat_id,
			deadline = EXCLUDED.deadline,
			updated_at = EXCLUDED.updated_at`, c); err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM collection_participants WHERE collection_id = $1`, c.ID); err != nil {
		return err
	}
	for i := range c.Participants {
		if _, err := tx.NamedExecContext(ctx, `
			INSERT INTO collection_participants (collection_id, user_id, contribution, has_paid, vote)
			VALUES (:collection_id, :user_id, :contribution, :has_paid, :vote)`, &c.Participants[i]); err != nil {
			return err
		}
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM gift_options WHERE collection_id = $1`, c.ID); err != nil {
		return err
	}
	for i := range c.GiftOptions {
		if _, err := tx.NamedExecContext(ctx, `
			INSERT INTO gift_options (id, collection_id, title, description, votes)
			VALUES (:id, :collection_id, :title, :description, :votes)`, &c.GiftOptions[i]); err != nil {
			return err
		}
	}

	return tx.Commit()
}

func (r *pgCollections) ListByUser(ctx context.Context, userID int64) ([]models.Collection, error) {
	var out []models.Collection
	err := r.db.SelectContext(ctx, &out, `
		SELECT c.* FROM collections c
		WHERE c.organizer_id = $1
		   OR EXISTS (SELECT 1 FROM collection_participants p
		              WHERE p.collection_id = c.id AND p.user_id = $1)
		ORDER BY c.created_at DESC`, userID)
	if err != nil {
		return nil, err
	}
	for i := range out {
		if err := r.loadChildren(ctx, &out[i]); err != nil {
			return nil, err
		}
	}
	return out, nil
}

type pgTransactions struct {
	db *sqlx.DB
}

func (r *pgTransactions) Get(ctx context.Context, id string) (*models.Transaction, error) {
	var t models.Transaction
	err := r.db.GetContext(ctx, &t, `SELECT * FROM transactions WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (r *pgTransactions) Save(ctx context.Context, t *models.Transaction) error {
	_, err := r.db.NamedExecContext(ctx, `
		INSERT INTO transactions (id, collection_id, user_id, amount, type, cancelled, cancel_reason, cancelled_at, created_at)
		VALUES (:id, :collection_id, :user_id, :amount, :type, :cancelled, :cancel_reason, :cancelled_at, :created_at)
		ON CONFLICT (id) DO UPDATE SET
			cancelled = EXCLUDED.cancelled,
			cancel_reason = EXCLUDED.cancel_reason,
			cancelled_at = EXCLUDED.cancelled_at`, t)
	return err
}

func (r *pgTransactions) ListByCollection(ctx context.Context, collectionID string) ([]models.Transaction, error) {
	var out []models.Transaction
	err := r.db.SelectContext(ctx, &out,
		`SELECT * FROM transactions WHERE collection_id = $1 ORDER BY created_at`, collectionID)
	if err != nil {
		return nil, err
	}
	return out, nil
}

type pgAdminLog struct {
	db *sqlx.DB
}

func (r *pgAdminLog) Append(ctx context.Context, e *models.AdminLog) error {
	_, err := r.db.NamedExecContext(ctx, `
		INSERT INTO admin_log (admin_id, action, target_ref, created_at)
		VALUES (:admin_id, :action, :target_ref, :created_at)`, e)
	return err
}

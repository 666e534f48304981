package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"gitlab.com/dirk.krummacker/birthday-service/internal/model"
)

// ErrLocked is returned when a locked contact is about to be mutated.
var ErrLocked = errors.New("contact is locked")

// Session gives serialized access to one user's contact set. All calls run inside a single
// transaction that holds the user's row lock.
type Session interface {
	// User is the locked user row as read at the start of the session.
	User() model.User
	// ContactStates returns id and lock flag of all contacts, oldest first.
	ContactStates(ctx context.Context) ([]model.ContactState, error)
	// SetLocked sets the lock flag of the given contacts and returns the number changed.
	SetLocked(ctx context.Context, ids []int64, locked bool, at time.Time) (int64, error)
	// SetPlan stores the plan status and the time of the billing event that caused it.
	SetPlan(ctx context.Context, plan model.PlanStatus, eventAt time.Time) error
	// SetCanceled marks a subscription the user canceled as resumable, or clears the mark when at
	// is nil.
	SetCanceled(ctx context.Context, at *time.Time) error
	// SetSharing stores the public birthday page settings.
	SetSharing(ctx context.Context, enabled bool, token *string) error
	CountUnlocked(ctx context.Context) (int, error)
	EmailExists(ctx context.Context, email string) (bool, error)
	Contact(ctx context.Context, id int64) (*model.Contact, error)
	InsertContact(ctx context.Context, c *model.Contact) error
	UpdateContact(ctx context.Context, c *model.Contact) error
	DeleteContact(ctx context.Context, id int64) error
}

// Locker serializes mutations of a user's contact set.
type Locker interface {
	WithUser(ctx context.Context, userID int64, fn func(Session) error) error
}

// WithUser runs fn in a transaction that holds the user's row lock (SELECT ... FOR UPDATE). The
// transaction commits when fn returns nil and rolls back otherwise.
func (s *Store) WithUser(ctx context.Context, userID int64, fn func(Session) error) (err error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var user model.User
	if err = tx.GetContext(ctx, &user, `SELECT * FROM users WHERE id = ? FOR UPDATE`, userID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			err = ErrUserNotFound
			return err
		}
		return fmt.Errorf("lock user %d: %w", userID, err)
	}
	if err = fn(&txSession{tx: tx, user: user}); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

type txSession struct {
	tx   *sqlx.Tx
	user model.User
}

func (t *txSession) User() model.User {
	return t.user
}

func (t *txSession) ContactStates(ctx context.Context) ([]model.ContactState, error) {
	var states []model.ContactState
	err := t.tx.SelectContext(ctx, &states, `
		SELECT id, is_locked FROM contacts WHERE user_id = ? ORDER BY id`, t.user.Id)
	if err != nil {
		return nil, fmt.Errorf("select contact states: %w", err)
	}
	return states, nil
}

func (t *txSession) SetLocked(ctx context.Context, ids []int64, locked bool, at time.Time) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	var lockedAt *time.Time
	if locked {
		lockedAt = &at
	}
	query, args, err := inClause(t.tx, `
		UPDATE contacts SET is_locked = ?, locked_at = ? WHERE user_id = ? AND id IN (?)`,
		locked, lockedAt, t.user.Id, ids)
	if err != nil {
		return 0, err
	}
	result, err := t.tx.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("update lock flags: %w", err)
	}
	return result.RowsAffected()
}

func (t *txSession) SetPlan(ctx context.Context, plan model.PlanStatus, eventAt time.Time) error {
	_, err := t.tx.ExecContext(ctx, `
		UPDATE users SET plan = ?, billing_event_at = ? WHERE id = ?`, plan, eventAt, t.user.Id)
	if err != nil {
		return fmt.Errorf("update plan: %w", err)
	}
	t.user.Plan = plan
	t.user.BillingEventAt = sql.NullTime{Time: eventAt, Valid: true}
	return nil
}

func (t *txSession) SetCanceled(ctx context.Context, at *time.Time) error {
	_, err := t.tx.ExecContext(ctx, `
		UPDATE users SET subscription_canceled_at = ? WHERE id = ?`, at, t.user.Id)
	if err != nil {
		return fmt.Errorf("update cancellation: %w", err)
	}
	t.user.CanceledAt = sql.NullTime{}
	if at != nil {
		t.user.CanceledAt = sql.NullTime{Time: *at, Valid: true}
	}
	return nil
}

func (t *txSession) SetSharing(ctx context.Context, enabled bool, token *string) error {
	_, err := t.tx.ExecContext(ctx, `
		UPDATE users SET share_enabled = ?, share_token = ? WHERE id = ?`, enabled, token, t.user.Id)
	if err != nil {
		return fmt.Errorf("update sharing: %w", err)
	}
	t.user.ShareEnabled, t.user.ShareToken = enabled, token
	return nil
}

func (t *txSession) CountUnlocked(ctx context.Context) (int, error) {
	var n int
	err := t.tx.GetContext(ctx, &n, `
		SELECT COUNT(*) FROM contacts WHERE user_id = ? AND is_locked = FALSE`, t.user.Id)
	if err != nil {
		return 0, fmt.Errorf("count unlocked contacts: %w", err)
	}
	return n, nil
}

// EmailExists matches case-sensitively. The column collation is utf8mb4_bin so that the unique
// index agrees with this check.
func (t *txSession) EmailExists(ctx context.Context, email string) (bool, error) {
	var n int
	err := t.tx.GetContext(ctx, &n, `
		SELECT COUNT(*) FROM contacts WHERE user_id = ? AND email = ? COLLATE utf8mb4_bin`, t.user.Id, email)
	if err != nil {
		return false, fmt.Errorf("look up email: %w", err)
	}
	return n > 0, nil
}

func (t *txSession) Contact(ctx context.Context, id int64) (*model.Contact, error) {
	var contact model.Contact
	err := t.tx.GetContext(ctx, &contact, `
		SELECT * FROM contacts WHERE id = ? AND user_id = ?`, id, t.user.Id)
	if err != nil {
		return nil, notFound(err)
	}
	return &contact, nil
}

func (t *txSession) InsertContact(ctx context.Context, c *model.Contact) error {
	c.UserId = t.user.Id
	result, err := t.tx.NamedExecContext(ctx, `
		INSERT INTO contacts (user_id, category_id, name, email, phone, birthday, birth_year_known,
			status, is_locked, locked_at, notes)
		VALUES (:user_id, :category_id, :name, :email, :phone, :birthday, :birth_year_known,
			:status, :is_locked, :locked_at, :notes)`, c)
	if err != nil {
		return fmt.Errorf("insert contact: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("insert contact: %w", err)
	}
	c.Id = id
	return nil
}

func (t *txSession) UpdateContact(ctx context.Context, c *model.Contact) error {
	c.UserId = t.user.Id
	result, err := t.tx.NamedExecContext(ctx, `
		UPDATE contacts
		SET category_id = :category_id, name = :name, email = :email, phone = :phone,
			birthday = :birthday, birth_year_known = :birth_year_known, status = :status,
			notes = :notes
		WHERE id = :id AND user_id = :user_id`, c)
	if err != nil {
		return fmt.Errorf("update contact: %w", err)
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		// MySQL reports zero affected rows when nothing changed, so check existence.
		if _, err := t.Contact(ctx, c.Id); err != nil {
			return err
		}
	}
	return nil
}

func (t *txSession) DeleteContact(ctx context.Context, id int64) error {
	result, err := t.tx.ExecContext(ctx, `
		DELETE FROM contacts WHERE id = ? AND user_id = ?`, id, t.user.Id)
	if err != nil {
		return fmt.Errorf("delete contact: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

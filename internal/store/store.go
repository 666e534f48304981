package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"
	"gitlab.com/dirk.krummacker/birthday-service/internal/model"
)

var (
	// ErrNotFound is returned when a looked-up record does not exist or belongs to another user.
	ErrNotFound = errors.New("record not found")
	// ErrUserNotFound is returned when a per-user session is requested for an unknown user.
	ErrUserNotFound = errors.New("user not found")
)

// Store is the MySQL backed contact store.
type Store struct {
	db *sqlx.DB

	// selectUserWhereId is a prepared statement for selecting a user with a given id.
	selectUserWhereId *sqlx.Stmt

	// selectContactWhereId is a prepared statement for selecting a contact of a user.
	selectContactWhereId *sqlx.Stmt

	// selectCategoriesWhereUser is a prepared statement for listing a user's categories.
	selectCategoriesWhereUser *sqlx.Stmt

	// insertNotification is a prepared statement for creating a notification.
	insertNotification *sqlx.NamedStmt
}

// CreateDatabase opens a database handle for the given MySQL data source name.
func CreateDatabase(dsn string) (*sql.DB, error) {
	sqlDB, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	sqlDB.SetConnMaxLifetime(3 * time.Minute)
	return sqlDB, nil
}

// New wraps the specified sql database and prepares all statements. The database argument can
// be a real database for production use or a mock database within unit tests.
func New(sqlDB *sql.DB) (*Store, error) {
	s := &Store{db: sqlx.NewDb(sqlDB, "mysql")}
	var err error

	// Prepared statements offer a significant speed increase if executed many times.
	s.selectUserWhereId, err = s.db.Preparex(`
		SELECT * FROM users WHERE id = ?
	`)
	if err != nil {
		return nil, fmt.Errorf("prepare user select: %w", err)
	}
	s.selectContactWhereId, err = s.db.Preparex(`
		SELECT * FROM contacts WHERE id = ? AND user_id = ?
	`)
	if err != nil {
		return nil, fmt.Errorf("prepare contact select: %w", err)
	}
	s.selectCategoriesWhereUser, err = s.db.Preparex(`
		SELECT * FROM categories WHERE user_id = ? ORDER BY name
	`)
	if err != nil {
		return nil, fmt.Errorf("prepare category select: %w", err)
	}
	s.insertNotification, err = s.db.PrepareNamed(`
		INSERT INTO notifications (user_id, title, message, type, link)
		VALUES (:user_id, :title, :message, :type, :link)
	`)
	if err != nil {
		return nil, fmt.Errorf("prepare notification insert: %w", err)
	}
	return s, nil
}

// DB exposes the wrapped handle, e.g. for health checks.
func (s *Store) DB() *sqlx.DB {
	return s.db
}

// UserByID returns the user with the given id.
func (s *Store) UserByID(ctx context.Context, id int64) (*model.User, error) {
	var user model.User
	if err := s.selectUserWhereId.GetContext(ctx, &user, id); err != nil {
		return nil, notFound(err)
	}
	return &user, nil
}

// UserByBillingCustomer returns the user linked to a billing provider customer id.
func (s *Store) UserByBillingCustomer(ctx context.Context, customer string) (*model.User, error) {
	var user model.User
	err := s.db.GetContext(ctx, &user, `SELECT * FROM users WHERE billing_customer_id = ?`, customer)
	if err != nil {
		return nil, notFound(err)
	}
	return &user, nil
}

// UserByShareToken returns the user whose public birthday page has the given token. Users that
// turned sharing off are reported as ErrNotFound.
func (s *Store) UserByShareToken(ctx context.Context, token string) (*model.User, error) {
	var user model.User
	err := s.db.GetContext(ctx, &user, `
		SELECT * FROM users WHERE share_token = ? AND share_enabled = TRUE`, token)
	if err != nil {
		return nil, notFound(err)
	}
	return &user, nil
}

// UsersByIDs returns the users with the given ids. Unknown ids are silently absent.
func (s *Store) UsersByIDs(ctx context.Context, ids []int64) ([]model.User, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	query, args, err := sqlx.In(`SELECT * FROM users WHERE id IN (?) ORDER BY id`, ids)
	if err != nil {
		return nil, err
	}
	var users []model.User
	if err := s.db.SelectContext(ctx, &users, s.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("select users: %w", err)
	}
	return users, nil
}

// Categories returns all categories of a user ordered by name.
func (s *Store) Categories(ctx context.Context, userID int64) ([]model.Category, error) {
	var categories []model.Category
	if err := s.selectCategoriesWhereUser.SelectContext(ctx, &categories, userID); err != nil {
		return nil, fmt.Errorf("select categories: %w", err)
	}
	return categories, nil
}

func notFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

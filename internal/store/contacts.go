package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"gitlab.com/dirk.krummacker/birthday-service/internal/model"
)

// AllowedOrderBy are the contact columns a listing may be sorted by.
var AllowedOrderBy = []string{"id", "name", "email", "phone", "birthday", "created_at"}

// ContactQuery filters and pages a user's contacts. Zero values mean "no restriction"; a zero
// Limit returns all matches.
type ContactQuery struct {
	// Name is interpreted as the beginning of the contact's name.
	Name string
	// Month and Day select contacts born on this month and day, regardless of the year.
	Month int
	Day   int
	// OrderBy must be one of AllowedOrderBy; it defaults to id.
	OrderBy    string
	Descending bool
	Limit      int
	Offset     int
}

// Contact returns a contact of the given user.
func (s *Store) Contact(ctx context.Context, userID, id int64) (*model.Contact, error) {
	var contact model.Contact
	if err := s.selectContactWhereId.GetContext(ctx, &contact, id, userID); err != nil {
		return nil, notFound(err)
	}
	return &contact, nil
}

// Contacts returns the contacts of a user matching q.
func (s *Store) Contacts(ctx context.Context, userID int64, q ContactQuery) ([]model.Contact, error) {
	orderBy := q.OrderBy
	if orderBy == "" {
		orderBy = "id"
	}
	if !contains(AllowedOrderBy, orderBy) {
		return nil, fmt.Errorf("invalid order column %q", orderBy)
	}
	direction := "ASC"
	if q.Descending {
		direction = "DESC"
	}

	where := []string{"user_id = ?"}
	args := []interface{}{userID}
	if q.Name != "" {
		where = append(where, "name LIKE ?")
		args = append(args, escapeLike(q.Name)+"%")
	}
	if q.Month != 0 || q.Day != 0 {
		where = append(where, "MONTH(birthday) = ?", "DAY(birthday) = ?")
		args = append(args, q.Month, q.Day)
	}
	query := fmt.Sprintf(`
		SELECT *
		FROM contacts
		WHERE %s
		ORDER BY %s %s, id ASC`, strings.Join(where, " AND "), orderBy, direction)
	if q.Limit > 0 {
		query += " LIMIT ? OFFSET ?"
		args = append(args, q.Limit, q.Offset)
	}

	var contacts []model.Contact
	if err := s.db.SelectContext(ctx, &contacts, query, args...); err != nil {
		return nil, fmt.Errorf("select contacts: %w", err)
	}
	return contacts, nil
}

// CountContacts returns the number of contacts of a user, locked and inactive ones included.
func (s *Store) CountContacts(ctx context.Context, userID int64) (int, error) {
	var n int
	if err := s.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM contacts WHERE user_id = ?`, userID); err != nil {
		return 0, fmt.Errorf("count contacts: %w", err)
	}
	return n, nil
}

// ActiveContacts returns the active, unlocked contacts of a user.
func (s *Store) ActiveContacts(ctx context.Context, userID int64) ([]model.Contact, error) {
	var contacts []model.Contact
	err := s.db.SelectContext(ctx, &contacts, `
		SELECT *
		FROM contacts
		WHERE user_id = ? AND status = TRUE AND is_locked = FALSE
		ORDER BY id`, userID)
	if err != nil {
		return nil, fmt.Errorf("select active contacts: %w", err)
	}
	return contacts, nil
}

// BirthdayCandidates returns all active, unlocked contacts of all users whose stored month and
// day match today. On February 28 of a common year, February 29 birthdays are included as well.
// The result is ordered by user and creation order.
func (s *Store) BirthdayCandidates(ctx context.Context, today time.Time) ([]model.Contact, error) {
	leapFallback := today.Month() == time.February && today.Day() == 28 && model.DaysIn(today.Year(), time.February) == 28
	var contacts []model.Contact
	err := s.db.SelectContext(ctx, &contacts, `
		SELECT *
		FROM contacts
		WHERE status = TRUE
			AND is_locked = FALSE
			AND ((MONTH(birthday) = ? AND DAY(birthday) = ?)
				OR (? AND MONTH(birthday) = 2 AND DAY(birthday) = 29))
		ORDER BY user_id, id`, int(today.Month()), today.Day(), leapFallback)
	if err != nil {
		return nil, fmt.Errorf("select birthday candidates: %w", err)
	}
	return contacts, nil
}

// ToggleStatus flips the active flag of an unlocked contact. It returns ErrNotFound for unknown
// contacts and ErrLocked for locked ones.
func (s *Store) ToggleStatus(ctx context.Context, userID, id int64) (*model.Contact, error) {
	var result *model.Contact
	err := s.WithUser(ctx, userID, func(session Session) error {
		contact, err := session.Contact(ctx, id)
		if err != nil {
			return err
		}
		if contact.Locked {
			return ErrLocked
		}
		contact.Active = !contact.Active
		if err := session.UpdateContact(ctx, contact); err != nil {
			return err
		}
		result = contact
		return nil
	})
	return result, err
}

func contains(slice []string, str string) bool {
	for _, v := range slice {
		if v == str {
			return true
		}
	}
	return false
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}

// inClause expands query with ids into a statement usable on a transaction.
func inClause(tx *sqlx.Tx, query string, args ...interface{}) (string, []interface{}, error) {
	q, a, err := sqlx.In(query, args...)
	if err != nil {
		return "", nil, err
	}
	return tx.Rebind(q), a, nil
}

package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-sql-driver/mysql"
	"gitlab.com/dirk.krummacker/birthday-service/internal/model"
)

// ErrDuplicate is returned when an insert violates a unique key.
var ErrDuplicate = errors.New("record already exists")

// mysqlDuplicateEntry is the server error number for a unique key violation.
const mysqlDuplicateEntry = 1062

// InsertCategory stores c and assigns its id. Category names are unique per user, compared
// case-insensitively.
func (s *Store) InsertCategory(ctx context.Context, c *model.Category) error {
	result, err := s.db.ExecContext(ctx, `
		INSERT INTO categories (user_id, name) VALUES (?, ?)`, c.UserId, c.Name)
	if err != nil {
		var mysqlErr *mysql.MySQLError
		if errors.As(err, &mysqlErr) && mysqlErr.Number == mysqlDuplicateEntry {
			return ErrDuplicate
		}
		return fmt.Errorf("insert category: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("insert category: %w", err)
	}
	c.Id = id
	return nil
}

package csvimport

import (
	"encoding/csv"
	"fmt"
	"io"

	"gitlab.com/dirk.krummacker/birthday-service/internal/model"
)

// Header is the column order of the template and of exports.
var Header = []string{"Name", "Email", "Phone", "Birthday", "Category"}

// Template is offered to users as a starting point for their own import files.
const Template = `Name,Email,Phone,Birthday,Category
John Doe,john@example.com,+1234567890,1990-05-15,Friends
Jane Smith,jane@example.com,+0987654321,1985-12-25,Family
`

// Export writes contacts in the import format so that an export can be imported again.
// categories maps category ids to names.
func Export(w io.Writer, contacts []model.Contact, categories map[int64]string) error {
	out := csv.NewWriter(w)
	if err := out.Write(Header); err != nil {
		return err
	}
	for _, c := range contacts {
		record := []string{c.Name, deref(c.Email), deref(c.Phone), c.BirthDate().String(), ""}
		if c.CategoryId != nil {
			record[4] = categories[*c.CategoryId]
		}
		if err := out.Write(record); err != nil {
			return fmt.Errorf("write contact %d: %w", c.Id, err)
		}
	}
	out.Flush()
	return out.Error()
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

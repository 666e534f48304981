// Package csvimport turns user supplied CSV files into contacts.
//
// Files come from spreadsheets, address books and hand editing, so the reader is lenient: the
// delimiter is guessed from the header line, a byte-order mark and an Excel "sep=" line are
// skipped, and header names are matched case-insensitively. Every row is committed on its own; a
// bad row is reported and skipped without affecting the others.
package csvimport

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/google/uuid"
	"gitlab.com/dirk.krummacker/birthday-service/internal/clock"
	"gitlab.com/dirk.krummacker/birthday-service/internal/entitlement"
	"gitlab.com/dirk.krummacker/birthday-service/internal/logger"
	"gitlab.com/dirk.krummacker/birthday-service/internal/metrics"
	"gitlab.com/dirk.krummacker/birthday-service/internal/model"
	"gitlab.com/dirk.krummacker/birthday-service/internal/store"
	pkgmodel "gitlab.com/dirk.krummacker/birthday-service/pkg/model"
)

// MaxReportedErrors bounds the number of row errors returned to the caller.
const MaxReportedErrors = 10

var (
	// ErrMissingColumns means the header lacks name or birthday.
	ErrMissingColumns = errors.New("CSV must contain at least 'name' and 'birthday' columns")
	// ErrEmptyFile means there is no header row at all.
	ErrEmptyFile = errors.New("CSV file is empty")
)

var bom = []byte{0xEF, 0xBB, 0xBF}

// Store is what the importer needs from the contact store.
type Store interface {
	store.Locker
	Categories(ctx context.Context, userID int64) ([]model.Category, error)
}

// Notifier is told about every contact that was created.
type Notifier interface {
	ContactAdded(ctx context.Context, c model.Contact)
}

// Importer imports CSV files into a user's contacts.
type Importer struct {
	store    Store
	notifier Notifier
	clock    clock.Clock
	quota    int
	log      *logger.Logger
}

func NewImporter(s Store, notifier Notifier, clk clock.Clock, quota int, log *logger.Logger) *Importer {
	return &Importer{store: s, notifier: notifier, clock: clk, quota: quota, log: log.With("component", "csvimport")}
}

// columns maps the known lower-cased header names to their positions; -1 means absent.
type columns struct {
	name, email, phone, birthday, category int
}

func (c columns) get(record []string, i int) string {
	if i < 0 || i >= len(record) {
		return ""
	}
	return strings.TrimSpace(record[i])
}

// Import reads data and creates one contact per valid row. A header problem yields a report with a
// single error together with ErrMissingColumns or ErrEmptyFile. Other errors come from the store
// and abort the import; rows committed before that remain.
func (im *Importer) Import(ctx context.Context, userID int64, data []byte) (pkgmodel.ImportReport, error) {
	batch := uuid.NewString()
	log := im.log.With("user_id", userID, "batch_id", batch)
	report := pkgmodel.ImportReport{Errors: []string{}}

	data = bytes.TrimPrefix(data, bom)
	reader := csv.NewReader(bytes.NewReader(data))
	reader.Comma = DetectDelimiter(data)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	header, err := reader.Read()
	if err == nil && len(header) > 0 && strings.HasPrefix(strings.ToLower(strings.TrimSpace(header[0])), "sep=") {
		header, err = reader.Read()
	}
	if err != nil {
		if errors.Is(err, io.EOF) {
			err = ErrEmptyFile
		}
		report.Errors = append(report.Errors, err.Error())
		report.Message = "Import failed: " + err.Error()
		return report, err
	}
	cols, ok := headerColumns(header)
	if !ok {
		report.Errors = append(report.Errors, ErrMissingColumns.Error())
		report.Message = "Import failed: " + ErrMissingColumns.Error()
		return report, ErrMissingColumns
	}
	report.Success = true

	categories, err := im.store.Categories(ctx, userID)
	if err != nil {
		return report, fmt.Errorf("load categories: %w", err)
	}
	byName := categoryIndex(categories)

	var rowErrors []string
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			var parseErr *csv.ParseError
			if errors.As(err, &parseErr) {
				rowErrors = append(rowErrors, fmt.Sprintf("Row %d: %v", parseErr.StartLine, parseErr.Err))
				report.Skipped++
				continue
			}
			return report, fmt.Errorf("read CSV: %w", err)
		}
		if blank(record) {
			continue
		}
		line, _ := reader.FieldPos(0)

		contact, rowErr := im.contactFromRecord(cols, record, byName)
		if rowErr == "" {
			rowErr, err = im.insert(ctx, userID, contact)
			if err != nil {
				log.Error("Import aborted", "row", line, "imported", report.Imported, "error", err)
				return report, err
			}
		}
		if rowErr != "" {
			rowErrors = append(rowErrors, fmt.Sprintf("Row %d: %s", line, rowErr))
			report.Skipped++
			continue
		}
		report.Imported++
		im.notifier.ContactAdded(ctx, *contact)
	}

	if len(rowErrors) > MaxReportedErrors {
		rowErrors = rowErrors[:MaxReportedErrors]
	}
	report.Errors = append(report.Errors, rowErrors...)
	report.Message = summary(report)
	metrics.ContactsImported.Add(float64(report.Imported))
	metrics.ImportRowsSkipped.Add(float64(report.Skipped))
	log.Info("CSV import finished", "imported", report.Imported, "skipped", report.Skipped)
	return report, nil
}

// contactFromRecord validates a row. A non-empty second result is the user facing reason for
// skipping it.
func (im *Importer) contactFromRecord(cols columns, record []string, categories map[string]int64) (*model.Contact, string) {
	name := cols.get(record, cols.name)
	birthday := cols.get(record, cols.birthday)
	if name == "" || birthday == "" {
		return nil, "Name and birthday are required"
	}
	date, err := model.ParseBirthDate(birthday)
	if err != nil {
		return nil, fmt.Sprintf("Invalid birthday format '%s'", birthday)
	}

	contact := &model.Contact{Name: name, Active: true}
	contact.SetBirthDate(date)
	if email := cols.get(record, cols.email); email != "" {
		contact.Email = &email
	}
	if phone := cols.get(record, cols.phone); phone != "" {
		contact.Phone = &phone
	}
	if id, ok := categories[strings.ToLower(cols.get(record, cols.category))]; ok {
		contact.CategoryId = &id
	}
	return contact, ""
}

// insert stores one contact while holding the user's lock. New contacts of a free user at quota
// start out locked.
func (im *Importer) insert(ctx context.Context, userID int64, contact *model.Contact) (string, error) {
	var rowErr string
	err := im.store.WithUser(ctx, userID, func(session store.Session) error {
		if contact.Email != nil {
			exists, err := session.EmailExists(ctx, *contact.Email)
			if err != nil {
				return err
			}
			if exists {
				rowErr = fmt.Sprintf("Contact with email %s already exists", *contact.Email)
				return nil
			}
		}
		unlocked, err := session.CountUnlocked(ctx)
		if err != nil {
			return err
		}
		if !entitlement.Admit(session.User(), unlocked, im.quota) {
			now := im.clock.Now()
			contact.Locked, contact.LockedAt = true, &now
		}
		return session.InsertContact(ctx, contact)
	})
	return rowErr, err
}

func headerColumns(header []string) (columns, bool) {
	cols := columns{name: -1, email: -1, phone: -1, birthday: -1, category: -1}
	for i, h := range header {
		h = strings.ToLower(strings.TrimSpace(h))
		var target *int
		switch h {
		case "name":
			target = &cols.name
		case "email":
			target = &cols.email
		case "phone":
			target = &cols.phone
		case "birthday":
			target = &cols.birthday
		case "category":
			target = &cols.category
		default:
			continue
		}
		if *target < 0 {
			*target = i
		}
	}
	return cols, cols.name >= 0 && cols.birthday >= 0
}

// categoryIndex maps lower-cased category names to ids. When names differ only in case the lowest
// id wins.
func categoryIndex(categories []model.Category) map[string]int64 {
	index := make(map[string]int64, len(categories))
	for _, c := range categories {
		key := strings.ToLower(strings.TrimSpace(c.Name))
		if key == "" {
			continue
		}
		if id, ok := index[key]; !ok || c.Id < id {
			index[key] = c.Id
		}
	}
	return index
}

// DetectDelimiter picks comma, semicolon or tab, whichever occurs most often in the first line.
// Comma wins ties. An Excel "sep=X" first line names the delimiter explicitly.
func DetectDelimiter(data []byte) rune {
	data = bytes.TrimPrefix(data, bom)
	first, _, _ := bytes.Cut(data, []byte("\n"))
	first = bytes.TrimRight(first, "\r")
	if hint, ok := bytes.CutPrefix(bytes.ToLower(bytes.TrimSpace(first)), []byte("sep=")); ok && len(hint) == 1 {
		switch hint[0] {
		case ',', ';', '\t', '|':
			return rune(hint[0])
		}
	}
	best, count := ',', bytes.Count(first, []byte(","))
	for _, d := range []rune{';', '\t'} {
		if n := bytes.Count(first, []byte(string(d))); n > count {
			best, count = d, n
		}
	}
	return best
}

func blank(record []string) bool {
	for _, f := range record {
		if strings.TrimSpace(f) != "" {
			return false
		}
	}
	return true
}

func summary(r pkgmodel.ImportReport) string {
	msg := fmt.Sprintf("Import completed. %d contacts imported", r.Imported)
	if r.Skipped > 0 {
		msg += fmt.Sprintf(", %d skipped", r.Skipped)
	}
	return msg + "."
}

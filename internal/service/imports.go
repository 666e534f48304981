package service

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"gitlab.com/dirk.krummacker/birthday-service/internal/csvimport"
	"gitlab.com/dirk.krummacker/birthday-service/internal/store"
)

// importContacts reads the CSV file of the multipart field 'file' and creates a contact per
// valid row. The answer is the import report; rows with problems are listed in its errors.
//
// Example REST API call:
//
//	> curl -H "X-User-ID: 1" http://localhost:8080/contacts-import --form "file=@contacts.csv"
func (s *Server) importContacts(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, s.maxImportBytes()+1<<16)
	header, err := c.FormFile("file")
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"message": "missing or oversized file upload"})
		return
	}
	if header.Size > s.maxImportBytes() {
		c.AbortWithStatusJSON(http.StatusRequestEntityTooLarge, gin.H{"message": "file too large"})
		return
	}
	file, err := header.Open()
	if err != nil {
		s.internalError(c, err)
		return
	}
	defer file.Close()
	data, err := io.ReadAll(io.LimitReader(file, s.maxImportBytes()))
	if err != nil {
		s.internalError(c, err)
		return
	}

	report, err := s.importer.Import(c.Request.Context(), userID(c), data)
	switch {
	case errors.Is(err, csvimport.ErrMissingColumns), errors.Is(err, csvimport.ErrEmptyFile):
		c.IndentedJSON(http.StatusUnprocessableEntity, report)
	case err != nil:
		s.fail(c, err, "")
	default:
		c.IndentedJSON(http.StatusOK, report)
	}
}

// importTemplate offers a small CSV file showing the expected columns.
//
// Example REST API call:
//
//	> curl -H "X-User-ID: 1" http://localhost:8080/contacts-import/template
func (s *Server) importTemplate(c *gin.Context) {
	c.Header("Content-Disposition", `attachment; filename="contacts_template.csv"`)
	c.Data(http.StatusOK, "text/csv; charset=utf-8", []byte(csvimport.Template))
}

// exportContacts writes all contacts of the user as CSV in the import format.
//
// Example REST API call:
//
//	> curl -H "X-User-ID: 1" http://localhost:8080/contacts-export
func (s *Server) exportContacts(c *gin.Context) {
	ctx := c.Request.Context()
	contacts, err := s.store.Contacts(ctx, userID(c), store.ContactQuery{})
	if err != nil {
		s.internalError(c, err)
		return
	}
	categories, err := s.store.Categories(ctx, userID(c))
	if err != nil {
		s.internalError(c, err)
		return
	}
	names := make(map[int64]string, len(categories))
	for _, category := range categories {
		names[category.Id] = category.Name
	}
	c.Header("Content-Disposition", `attachment; filename="contacts.csv"`)
	c.Header("Content-Type", "text/csv; charset=utf-8")
	c.Status(http.StatusOK)
	if err := csvimport.Export(c.Writer, contacts, names); err != nil {
		s.log.Error("Export failed", "user_id", userID(c), "error", err)
	}
}

func (s *Server) maxImportBytes() int64 {
	if s.cfg.MaxImportBytes > 0 {
		return s.cfg.MaxImportBytes
	}
	return 2 << 20
}

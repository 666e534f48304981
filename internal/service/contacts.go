package service

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"gitlab.com/dirk.krummacker/birthday-service/internal/entitlement"
	"gitlab.com/dirk.krummacker/birthday-service/internal/model"
	"gitlab.com/dirk.krummacker/birthday-service/internal/store"
	pkgmodel "gitlab.com/dirk.krummacker/birthday-service/pkg/model"
)

var (
	errDuplicateEmail  = errors.New("a contact with this email already exists")
	errInvalidCategory = errors.New("unknown category")
)

// allowedAscending are the allowed values for the 'ascending' URL parameter.
var allowedAscending = []string{"true", "false"}

// toAPI converts a stored contact to its public representation.
func toAPI(c model.Contact) pkgmodel.Contact {
	return pkgmodel.Contact{
		Id:         c.Id,
		Name:       c.Name,
		Email:      c.Email,
		Phone:      c.Phone,
		Birthday:   c.BirthDate().String(),
		CategoryId: c.CategoryId,
		Active:     c.Active,
		Locked:     c.Locked,
		LockedAt:   c.LockedAt,
		Notes:      c.Notes,
	}
}

// findContacts responds with a list of the user's contacts as JSON.
//
// The URL parameter 'name' is interpreted as the beginning of the contact's name.
//
// The URL parameter 'birthday' consists of a month part and a day part, separated by '-'. The call
// returns all contacts that have their birthday on this month and day, regardless of the year.
//
// The URL parameters 'limit' and 'offset' page through the result. 'orderby' names the sort
// column (id, name, email, phone, birthday or created_at) and 'ascending=false' reverses the order.
//
// REST API calls:
//
//	> curl -H "X-User-ID: 1" "http://localhost:8080/contacts"
//	> curl -H "X-User-ID: 1" "http://localhost:8080/contacts?name=Ji"
//	> curl -H "X-User-ID: 1" "http://localhost:8080/contacts?birthday=11-29"
//	> curl -H "X-User-ID: 1" "http://localhost:8080/contacts?limit=20&offset=60"
//	> curl -H "X-User-ID: 1" "http://localhost:8080/contacts?orderby=birthday&ascending=false"
func (s *Server) findContacts(c *gin.Context) {
	query := store.ContactQuery{Name: c.Query("name")}
	var ok bool
	if query.Month, query.Day, ok = parseBirthday(c); !ok {
		return
	}
	if query.Limit, query.Offset, ok = parseLimitAndOffset(c); !ok {
		return
	}
	if query.OrderBy, query.Descending, ok = parseOrderbyAndAscending(c); !ok {
		return
	}
	contacts, err := s.store.Contacts(c.Request.Context(), userID(c), query)
	if err != nil {
		s.internalError(c, err)
		return
	}
	result := make([]pkgmodel.Contact, 0, len(contacts))
	for _, contact := range contacts {
		result = append(result, toAPI(contact))
	}
	c.IndentedJSON(http.StatusOK, result)
}

// parseBirthday reads the 'birthday' URL parameter in the form MM-DD.
func parseBirthday(c *gin.Context) (month int, day int, success bool) {
	birthday := c.Query("birthday")
	if birthday == "" {
		return 0, 0, true
	}
	before, after, found := strings.Cut(birthday, "-")
	month, errMonth := strconv.Atoi(before)
	day, errDay := strconv.Atoi(after)
	if !found || errMonth != nil || errDay != nil || month < 1 || month > 12 || day < 1 || day > 31 {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"message": "invalid birthday URL parameter"})
		return 0, 0, false
	}
	return month, day, true
}

// parseLimitAndOffset inspects the URL parameters and determines values for limit and offset of
// the result set. A limit of 0 means no limit.
func parseLimitAndOffset(c *gin.Context) (limit int, offset int, success bool) {
	var err error
	if raw := c.Query("limit"); raw != "" {
		if limit, err = strconv.Atoi(raw); err != nil || limit < 1 {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"message": "invalid limit parameter"})
			return 0, 0, false
		}
	}
	if raw := c.Query("offset"); raw != "" {
		if offset, err = strconv.Atoi(raw); err != nil || offset < 0 {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"message": "invalid offset parameter"})
			return 0, 0, false
		}
	}
	return limit, offset, true
}

// parseOrderbyAndAscending inspects the URL parameters and determines the sort column and
// direction of the result set.
func parseOrderbyAndAscending(c *gin.Context) (orderby string, descending bool, success bool) {
	orderby = c.DefaultQuery("orderby", "id")
	if !contains(store.AllowedOrderBy, orderby) {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"message": "invalid orderby parameter"})
		return "", false, false
	}
	ascending := c.DefaultQuery("ascending", "true")
	if !contains(allowedAscending, ascending) {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"message": "invalid ascending parameter"})
		return "", false, false
	}
	return orderby, ascending == "false", true
}

// contains returns true if a string is present in a slice.
func contains(slice []string, str string) bool {
	for _, v := range slice {
		if v == str {
			return true
		}
	}
	return false
}

// findContactByID responds with the contact whose id matches the id parameter of the request URL.
// Locked contacts can still be read.
//
// Example REST API call:
//
//	> curl -H "X-User-ID: 1" http://localhost:8080/contacts/56
func (s *Server) findContactByID(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	contact, err := s.store.Contact(c.Request.Context(), userID(c), id)
	if err != nil {
		s.fail(c, err, "contact not found")
		return
	}
	c.IndentedJSON(http.StatusOK, toAPI(*contact))
}

// createContact stores the contact specified in the request's JSON and responds with the full
// contact including the newly assigned id. Name and birthday are required. A user on the free
// plan who already has the maximum number of unlocked contacts gets the new contact locked.
//
// Example REST API call:
//
//	> curl http://localhost:8080/contacts --request "POST" --include --header "X-User-ID: 1" --header "Content-Type: application/json" --data '{"name": "Hans Wurst", "phone": "0815", "birthday": "1969-03-02"}'
func (s *Server) createContact(c *gin.Context) {
	var input pkgmodel.ContactInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"message": "invalid JSON"})
		return
	}
	if input.Name == nil || strings.TrimSpace(*input.Name) == "" || input.Birthday == nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"message": "name and birthday are required"})
		return
	}
	birthday, ok := parseInputBirthday(c, input)
	if !ok {
		return
	}
	contact := model.Contact{Active: true}
	applyInput(&contact, input, birthday)
	ctx := c.Request.Context()
	if err := s.checkCategory(c, contact.CategoryId); err != nil {
		s.fail(c, err, "")
		return
	}

	err := s.store.WithUser(ctx, userID(c), func(session store.Session) error {
		if err := ensureUniqueEmail(ctx, session, contact.Email); err != nil {
			return err
		}
		unlocked, err := session.CountUnlocked(ctx)
		if err != nil {
			return err
		}
		if !entitlement.Admit(session.User(), unlocked, s.applier.Quota()) {
			now := s.clock.Now()
			contact.Locked, contact.LockedAt = true, &now
		}
		return session.InsertContact(ctx, &contact)
	})
	if err != nil {
		s.fail(c, err, "contact not found")
		return
	}
	s.notifier.ContactAdded(ctx, contact)
	c.IndentedJSON(http.StatusCreated, toAPI(contact))
}

// updateContactByID changes the values specified in the JSON (and only those) of the contact
// whose id matches the id parameter of the request URL, and responds with the new version of the
// contact. Locked contacts are refused with 423.
//
// Example REST API calls:
//
//	> curl http://localhost:8080/contacts/56 --request "PUT" --include --header "X-User-ID: 1" --header "Content-Type: application/json" --data '{"phone": "81970"}'
//	> curl http://localhost:8080/contacts/56 --request "PUT" --include --header "X-User-ID: 1" --header "Content-Type: application/json" --data '{"birthday": "--06-06"}'
func (s *Server) updateContactByID(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	var input pkgmodel.ContactInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"message": "invalid JSON"})
		return
	}
	if input == (pkgmodel.ContactInput{}) {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"message": "no values to be updated"})
		return
	}
	if input.Name != nil && strings.TrimSpace(*input.Name) == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"message": "name must not be empty"})
		return
	}
	birthday, ok := parseInputBirthday(c, input)
	if !ok {
		return
	}
	ctx := c.Request.Context()
	if err := s.checkCategory(c, input.CategoryId); err != nil {
		s.fail(c, err, "")
		return
	}

	var updated *model.Contact
	err := s.store.WithUser(ctx, userID(c), func(session store.Session) error {
		contact, err := session.Contact(ctx, id)
		if err != nil {
			return err
		}
		if contact.Locked {
			return store.ErrLocked
		}
		previous := contact.Email
		applyInput(contact, input, birthday)
		if contact.Email != nil && (previous == nil || *previous != *contact.Email) {
			if err := ensureUniqueEmail(ctx, session, contact.Email); err != nil {
				return err
			}
		}
		if err := session.UpdateContact(ctx, contact); err != nil {
			return err
		}
		updated = contact
		return nil
	})
	if err != nil {
		s.fail(c, err, "contact not found")
		return
	}
	c.IndentedJSON(http.StatusOK, toAPI(*updated))
}

// deleteContactByID deletes the contact whose id matches the id parameter of the request URL.
// Locked contacts are refused with 423.
//
// Example REST API call:
//
//	> curl -H "X-User-ID: 1" http://localhost:8080/contacts/56 --request "DELETE"
func (s *Server) deleteContactByID(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()
	err := s.store.WithUser(ctx, userID(c), func(session store.Session) error {
		contact, err := session.Contact(ctx, id)
		if err != nil {
			return err
		}
		if contact.Locked {
			return store.ErrLocked
		}
		return session.DeleteContact(ctx, id)
	})
	if err != nil {
		s.fail(c, err, "contact not found")
		return
	}
	c.IndentedJSON(http.StatusOK, gin.H{"message": "contact deleted"})
}

// toggleContactStatus switches reminders for a contact on or off.
//
// Example REST API call:
//
//	> curl -H "X-User-ID: 1" http://localhost:8080/contacts/56/toggle-status --request "PATCH"
func (s *Server) toggleContactStatus(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	contact, err := s.store.ToggleStatus(c.Request.Context(), userID(c), id)
	if err != nil {
		s.fail(c, err, "contact not found")
		return
	}
	c.IndentedJSON(http.StatusOK, toAPI(*contact))
}

// parseInputBirthday parses the optional birthday of input. It answers 400 and returns false
// when the birthday cannot be parsed.
func parseInputBirthday(c *gin.Context, input pkgmodel.ContactInput) (*model.BirthDate, bool) {
	if input.Birthday == nil {
		return nil, true
	}
	date, err := model.ParseBirthDate(*input.Birthday)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"message": "invalid birthday"})
		return nil, false
	}
	return &date, true
}

// applyInput copies the specified fields of input onto contact. Empty strings clear optional
// fields and a category id of 0 removes the category.
func applyInput(contact *model.Contact, input pkgmodel.ContactInput, birthday *model.BirthDate) {
	if input.Name != nil {
		contact.Name = strings.TrimSpace(*input.Name)
	}
	if birthday != nil {
		contact.SetBirthDate(*birthday)
	}
	if input.Email != nil {
		contact.Email = optional(*input.Email)
	}
	if input.Phone != nil {
		contact.Phone = optional(*input.Phone)
	}
	if input.Notes != nil {
		contact.Notes = optional(*input.Notes)
	}
	if input.Active != nil {
		contact.Active = *input.Active
	}
	if input.CategoryId != nil {
		if *input.CategoryId == 0 {
			contact.CategoryId = nil
		} else {
			id := *input.CategoryId
			contact.CategoryId = &id
		}
	}
}

func optional(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}

// ensureUniqueEmail fails when a contact of the session's user already uses email.
func ensureUniqueEmail(ctx context.Context, session store.Session, email *string) error {
	if email == nil {
		return nil
	}
	exists, err := session.EmailExists(ctx, *email)
	if err != nil {
		return err
	}
	if exists {
		return errDuplicateEmail
	}
	return nil
}

// checkCategory verifies that a referenced category belongs to the user. 0 clears the category.
func (s *Server) checkCategory(c *gin.Context, id *int64) error {
	if id == nil || *id == 0 {
		return nil
	}
	categories, err := s.store.Categories(c.Request.Context(), userID(c))
	if err != nil {
		return err
	}
	for _, category := range categories {
		if category.Id == *id {
			return nil
		}
	}
	return errInvalidCategory
}

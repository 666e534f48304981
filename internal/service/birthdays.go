package service

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"gitlab.com/dirk.krummacker/birthday-service/internal/occurrence"
	pkgmodel "gitlab.com/dirk.krummacker/birthday-service/pkg/model"
)

const (
	defaultUpcomingDays = 30
	maxUpcomingDays     = 366
)

func upcomingToAPI(entries []occurrence.Upcoming) []pkgmodel.UpcomingBirthday {
	result := make([]pkgmodel.UpcomingBirthday, 0, len(entries))
	for _, e := range entries {
		entry := pkgmodel.UpcomingBirthday{
			ContactId: e.Contact.Id,
			Name:      e.Contact.Name,
			Date:      e.Occurrence.Date.Format("2006-01-02"),
			DaysUntil: e.Occurrence.DaysUntil,
		}
		if e.Occurrence.AgeKnown {
			age := e.Occurrence.AgeTurning
			entry.AgeTurning = &age
		}
		result = append(result, entry)
	}
	return result
}

// upcomingBirthdays lists the active contacts whose birthday is at most 'days' days away
// (default 30), nearest first.
//
// Example REST API call:
//
//	> curl -H "X-User-ID: 1" "http://localhost:8080/contacts/upcoming?days=7"
func (s *Server) upcomingBirthdays(c *gin.Context) {
	days := defaultUpcomingDays
	if raw := c.Query("days"); raw != "" {
		var err error
		if days, err = strconv.Atoi(raw); err != nil || days < 0 || days > maxUpcomingDays {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"message": "invalid days parameter"})
			return
		}
	}
	contacts, err := s.store.ActiveContacts(c.Request.Context(), userID(c))
	if err != nil {
		s.internalError(c, err)
		return
	}
	c.IndentedJSON(http.StatusOK, upcomingToAPI(occurrence.Within(contacts, s.clock.Today(), days)))
}

// dashboard summarizes the user's contacts: their number, today's birthdays and the birthdays of
// the next 30 days.
//
// Example REST API call:
//
//	> curl -H "X-User-ID: 1" http://localhost:8080/dashboard
func (s *Server) dashboard(c *gin.Context) {
	contacts, err := s.store.ActiveContacts(c.Request.Context(), userID(c))
	if err != nil {
		s.internalError(c, err)
		return
	}
	upcoming := occurrence.Within(contacts, s.clock.Today(), defaultUpcomingDays)
	today := 0
	for _, u := range upcoming {
		if u.Occurrence.DaysUntil == 0 {
			today++
		}
	}
	total, err := s.store.CountContacts(c.Request.Context(), userID(c))
	if err != nil {
		s.internalError(c, err)
		return
	}
	c.IndentedJSON(http.StatusOK, pkgmodel.Dashboard{
		Contacts:       total,
		BirthdaysToday: today,
		Upcoming:       upcomingToAPI(upcoming),
	})
}

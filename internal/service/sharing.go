package service

import (
	"net/http"
	"sort"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"gitlab.com/dirk.krummacker/birthday-service/internal/model"
	"gitlab.com/dirk.krummacker/birthday-service/internal/store"
	pkgmodel "gitlab.com/dirk.krummacker/birthday-service/pkg/model"
)

// newShareToken returns 32 random hex characters.
func newShareToken() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

func sharingToAPI(user model.User) pkgmodel.Sharing {
	sharing := pkgmodel.Sharing{Enabled: user.ShareEnabled}
	if user.ShareToken != nil {
		sharing.Path = "/birthdays/" + *user.ShareToken
	}
	return sharing
}

// sharedBirthdays responds with the public birthday page behind a share token: the owner's name
// and the active contacts ordered by month and day. Unknown tokens and pages whose owner turned
// sharing off answer 404. No user header is needed.
//
// Example REST API call:
//
//	> curl http://localhost:8080/birthdays/0f1e2d3c4b5a69788796a5b4c3d2e1f0
func (s *Server) sharedBirthdays(c *gin.Context) {
	ctx := c.Request.Context()
	owner, err := s.store.UserByShareToken(ctx, c.Param("token"))
	if err != nil {
		s.fail(c, err, "birthday page not found or sharing is disabled")
		return
	}
	contacts, err := s.store.ActiveContacts(ctx, owner.Id)
	if err != nil {
		s.internalError(c, err)
		return
	}
	categories, err := s.store.Categories(ctx, owner.Id)
	if err != nil {
		s.internalError(c, err)
		return
	}
	names := make(map[int64]string, len(categories))
	for _, category := range categories {
		names[category.Id] = category.Name
	}

	sort.SliceStable(contacts, func(i, j int) bool {
		a, b := contacts[i].Birthday, contacts[j].Birthday
		if a.Month() != b.Month() {
			return a.Month() < b.Month()
		}
		return a.Day() < b.Day()
	})
	page := pkgmodel.BirthdayPage{Name: owner.Name, Birthdays: make([]pkgmodel.SharedBirthday, 0, len(contacts))}
	for _, contact := range contacts {
		entry := pkgmodel.SharedBirthday{
			Name:     contact.Name,
			Birthday: model.BirthDateFromStorage(contact.Birthday, contact.BirthYearKnown).String(),
		}
		if contact.CategoryId != nil {
			if name, ok := names[*contact.CategoryId]; ok {
				entry.Category = &name
			}
		}
		page.Birthdays = append(page.Birthdays, entry)
	}
	c.IndentedJSON(http.StatusOK, page)
}

// toggleSharing turns the calling user's public birthday page on or off. The first time it is
// turned on a share token is generated; turning it off keeps the token for later.
//
// Example REST API call:
//
//	> curl http://localhost:8080/sharing --request "POST" --header "X-User-ID: 1" --header "Content-Type: application/json" --data '{"enabled": true}'
func (s *Server) toggleSharing(c *gin.Context) {
	var input struct {
		Enabled *bool `json:"enabled"`
	}
	if err := c.ShouldBindJSON(&input); err != nil || input.Enabled == nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"message": "enabled is required"})
		return
	}
	s.changeSharing(c, func(user model.User) (bool, *string) {
		token := user.ShareToken
		if *input.Enabled && token == nil {
			generated := newShareToken()
			token = &generated
		}
		return *input.Enabled, token
	})
}

// regenerateShareToken replaces the calling user's share token, so that the old link stops
// working.
//
// Example REST API call:
//
//	> curl -H "X-User-ID: 1" http://localhost:8080/sharing/regenerate --request "POST"
func (s *Server) regenerateShareToken(c *gin.Context) {
	s.changeSharing(c, func(user model.User) (bool, *string) {
		token := newShareToken()
		return user.ShareEnabled, &token
	})
}

func (s *Server) changeSharing(c *gin.Context, change func(model.User) (bool, *string)) {
	ctx := c.Request.Context()
	var sharing pkgmodel.Sharing
	err := s.store.WithUser(ctx, userID(c), func(session store.Session) error {
		enabled, token := change(session.User())
		if err := session.SetSharing(ctx, enabled, token); err != nil {
			return err
		}
		sharing = sharingToAPI(session.User())
		return nil
	})
	if err != nil {
		s.fail(c, err, "")
		return
	}
	s.log.Info("Birthday sharing changed", "user_id", userID(c), "enabled", sharing.Enabled)
	c.IndentedJSON(http.StatusOK, sharing)
}


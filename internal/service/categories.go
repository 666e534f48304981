package service

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"gitlab.com/dirk.krummacker/birthday-service/internal/model"
	"gitlab.com/dirk.krummacker/birthday-service/internal/store"
	pkgmodel "gitlab.com/dirk.krummacker/birthday-service/pkg/model"
)

var errDuplicateCategory = errors.New("a category with this name already exists")

// findCategories lists the user's categories by name.
//
// Example REST API call:
//
//	> curl -H "X-User-ID: 1" http://localhost:8080/categories
func (s *Server) findCategories(c *gin.Context) {
	categories, err := s.store.Categories(c.Request.Context(), userID(c))
	if err != nil {
		s.internalError(c, err)
		return
	}
	result := make([]pkgmodel.Category, 0, len(categories))
	for _, category := range categories {
		result = append(result, pkgmodel.Category{Id: category.Id, Name: category.Name})
	}
	c.IndentedJSON(http.StatusOK, result)
}

// createCategory stores a new category for the user and announces it with a notification. Names
// already in use, ignoring case, answer 409.
//
// Example REST API call:
//
//	> curl http://localhost:8080/categories --request "POST" --header "X-User-ID: 1" --header "Content-Type: application/json" --data '{"name": "Family"}'
func (s *Server) createCategory(c *gin.Context) {
	var input struct {
		Name string `json:"name"`
	}
	if err := c.ShouldBindJSON(&input); err != nil || strings.TrimSpace(input.Name) == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"message": "name is required"})
		return
	}
	category := model.Category{UserId: userID(c), Name: strings.TrimSpace(input.Name)}
	ctx := c.Request.Context()
	if err := s.store.InsertCategory(ctx, &category); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			err = errDuplicateCategory
		}
		s.fail(c, err, "")
		return
	}
	s.notifier.CategoryAdded(ctx, category)
	c.IndentedJSON(http.StatusCreated, pkgmodel.Category{Id: category.Id, Name: category.Name})
}

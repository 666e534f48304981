package service

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"gitlab.com/dirk.krummacker/birthday-service/internal/billing"
	"gitlab.com/dirk.krummacker/birthday-service/internal/clock"
	"gitlab.com/dirk.krummacker/birthday-service/internal/config"
	"gitlab.com/dirk.krummacker/birthday-service/internal/csvimport"
	"gitlab.com/dirk.krummacker/birthday-service/internal/entitlement"
	"gitlab.com/dirk.krummacker/birthday-service/internal/logger"
	"gitlab.com/dirk.krummacker/birthday-service/internal/notify"
	"gitlab.com/dirk.krummacker/birthday-service/internal/store"
	pkgmodel "gitlab.com/dirk.krummacker/birthday-service/pkg/model"
)

const (
	// UserHeader carries the id of the authenticated user. It is set by the authentication
	// proxy in front of this service.
	UserHeader = "X-User-ID"
	// RequestIDHeader is echoed back or generated for every request.
	RequestIDHeader = "X-Request-ID"
	// OperatorUser is the basic auth user name for the operator endpoints.
	OperatorUser = "operator"

	userKey = "user_id"
)

// ReminderRunner runs the daily reminder batch on demand.
type ReminderRunner interface {
	Run(ctx context.Context) (pkgmodel.ReminderRun, error)
}

// Server holds the dependencies of the HTTP handlers.
type Server struct {
	store     *store.Store
	applier   *entitlement.Applier
	importer  *csvimport.Importer
	billing   *billing.Reconciler
	notifier  *notify.Sink
	reminders ReminderRunner
	clock     clock.Clock
	cfg       config.Config
	log       *logger.Logger
}

// New wires the domain components on top of st. reminders may be nil, in which case the
// run-now endpoint answers 503.
func New(cfg config.Config, st *store.Store, reminders ReminderRunner, clk clock.Clock, log *logger.Logger) *Server {
	if cfg.FreeQuota <= 0 {
		cfg.FreeQuota = entitlement.FreeQuota
	}
	notifier := notify.NewSink(st, log)
	applier := entitlement.NewApplier(st, clk, cfg.FreeQuota, log)
	return &Server{
		store:     st,
		applier:   applier,
		importer:  csvimport.NewImporter(st, notifier, clk, cfg.FreeQuota, log),
		billing:   billing.NewReconciler(st, applier, log),
		notifier:  notifier,
		reminders: reminders,
		clock:     clk,
		cfg:       cfg,
		log:       log.With("component", "http"),
	}
}

// Router initializes the REST API router and registers all endpoints.
func (s *Server) Router() *gin.Engine {
	var router *gin.Engine
	if strings.EqualFold(s.cfg.GinLogging, "off") {
		s.log.Info("Turning off HTTP request logging.")
		router = gin.New()
		router.Use(gin.Recovery())
	} else {
		router = gin.Default()
	}
	router.Use(requestID())

	router.GET("/healthz", s.health)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	router.POST("/webhooks/billing", s.billingWebhook)
	router.GET("/birthdays/:token", s.sharedBirthdays)

	operator := router.Group("/", s.requireOperator())
	operator.POST("/reminders/run", s.runReminders)

	user := router.Group("/", s.requireUser)
	user.GET("/contacts", s.findContacts)
	user.POST("/contacts", s.createContact)
	user.GET("/contacts/upcoming", s.upcomingBirthdays)
	user.GET("/contacts/:id", s.findContactByID)
	user.PUT("/contacts/:id", s.updateContactByID)
	user.DELETE("/contacts/:id", s.deleteContactByID)
	user.PATCH("/contacts/:id/toggle-status", s.toggleContactStatus)
	user.GET("/dashboard", s.dashboard)

	user.GET("/categories", s.findCategories)
	user.POST("/categories", s.createCategory)

	user.POST("/contacts-import", s.importContacts)
	user.GET("/contacts-import/template", s.importTemplate)
	user.GET("/contacts-export", s.exportContacts)

	user.GET("/notifications", s.listNotifications)
	user.GET("/notifications/unread-count", s.unreadNotificationCount)
	user.PATCH("/notifications/read-all", s.markAllNotificationsRead)
	user.PATCH("/notifications/:id/read", s.markNotificationRead)
	user.DELETE("/notifications/read", s.deleteReadNotifications)
	user.DELETE("/notifications/:id", s.deleteNotification)

	user.POST("/subscription/cancel", s.cancelSubscription)
	user.POST("/subscription/resume", s.resumeSubscription)

	user.POST("/sharing", s.toggleSharing)
	user.POST("/sharing/regenerate", s.regenerateShareToken)
	return router
}

// requestID tags every request with an id, reusing one sent by the client.
func requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(RequestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set("request_id", id)
		c.Header(RequestIDHeader, id)
		c.Next()
	}
}

// requireUser rejects requests without a valid user header.
func (s *Server) requireUser(c *gin.Context) {
	id, err := strconv.ParseInt(c.GetHeader(UserHeader), 10, 64)
	if err != nil || id < 1 {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"message": "missing or invalid " + UserHeader + " header"})
		return
	}
	c.Set(userKey, id)
	c.Next()
}

// requireOperator guards the operator endpoints with HTTP basic auth for the user "operator" and
// the configured token. Without a token they are disabled.
func (s *Server) requireOperator() gin.HandlerFunc {
	if s.cfg.OperatorToken == "" {
		return func(c *gin.Context) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"message": "operator endpoints are disabled"})
		}
	}
	return gin.BasicAuthForRealm(gin.Accounts{OperatorUser: s.cfg.OperatorToken}, "operator")
}

func userID(c *gin.Context) int64 {
	return c.GetInt64(userKey)
}

// health reports whether the database is reachable.
//
// Example REST API call:
//
//	> curl http://localhost:8080/healthz
func (s *Server) health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()
	if err := s.store.DB().PingContext(ctx); err != nil {
		c.IndentedJSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
		return
	}
	c.IndentedJSON(http.StatusOK, gin.H{"status": "ok"})
}

// runReminders runs the reminder batch immediately. The sent-markers make it safe to call on a
// day the scheduled run already happened.
//
// Example REST API call:
//
//	> curl -u "operator:$OPERATOR_TOKEN" http://localhost:8080/reminders/run --request "POST"
func (s *Server) runReminders(c *gin.Context) {
	if s.reminders == nil {
		c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"message": "reminders are not configured"})
		return
	}
	result, err := s.reminders.Run(c.Request.Context())
	if err != nil {
		s.internalError(c, err)
		return
	}
	c.IndentedJSON(http.StatusOK, result)
}

// parseID reads a numeric URL parameter. Like the contact lookups it answers 404 for ids that
// cannot exist.
func parseID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id < 1 {
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"message": "invalid id parameter"})
		return 0, false
	}
	return id, true
}

// fail maps domain errors to HTTP answers. notFound is the message for ErrNotFound.
func (s *Server) fail(c *gin.Context, err error, notFound string) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"message": notFound})
	case errors.Is(err, store.ErrUserNotFound):
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"message": "unknown user"})
	case errors.Is(err, store.ErrLocked):
		c.AbortWithStatusJSON(http.StatusLocked, gin.H{"message": "contact is locked, upgrade your plan to edit it"})
	case errors.Is(err, errDuplicateEmail), errors.Is(err, errDuplicateCategory):
		c.AbortWithStatusJSON(http.StatusConflict, gin.H{"message": err.Error()})
	case errors.Is(err, entitlement.ErrNotSubscribed), errors.Is(err, entitlement.ErrNotResumable):
		c.AbortWithStatusJSON(http.StatusConflict, gin.H{"message": err.Error()})
	case errors.Is(err, errInvalidCategory):
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"message": err.Error()})
	default:
		s.internalError(c, err)
	}
}

func (s *Server) internalError(c *gin.Context, err error) {
	s.log.Error("Request failed",
		"method", c.Request.Method,
		"path", c.FullPath(),
		"request_id", c.GetString("request_id"),
		"error", err,
	)
	c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"message": "internal error"})
}

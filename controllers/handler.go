package controllers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/vnkhanh/course-tracker-backend/auth"
	"github.com/vnkhanh/course-tracker-backend/errs"
	"github.com/vnkhanh/course-tracker-backend/logger"
	"github.com/vnkhanh/course-tracker-backend/middleware"
	"github.com/vnkhanh/course-tracker-backend/models"
	"github.com/vnkhanh/course-tracker-backend/services"
	"github.com/vnkhanh/course-tracker-backend/ws"
)

// Handler carries every dependency the HTTP layer needs.
type Handler struct {
	svc *services.Services
	db  *gorm.DB
	hub *ws.Hub
	log zerolog.Logger
}

func NewHandler(svc *services.Services, db *gorm.DB, hub *ws.Hub) *Handler {
	return &Handler{svc: svc, db: db, hub: hub, log: logger.Component("api")}
}

var errNoUser = errors.New("no user on request")

func currentUser(c *gin.Context) (models.User, error) {
	v, ok := c.Get(middleware.CtxUser)
	if !ok {
		return models.User{}, errNoUser
	}
	u, ok := v.(models.User)
	if !ok {
		return models.User{}, errNoUser
	}
	return u, nil
}

func currentIdentity(c *gin.Context) (auth.Identity, bool) {
	v, ok := c.Get(middleware.CtxIdentity)
	if !ok {
		return auth.Identity{}, false
	}
	id, ok := v.(auth.Identity)
	return id, ok
}

// requestNow is the instant sampled by RequestClock for this request.
func requestNow(c *gin.Context) time.Time {
	if v, ok := c.Get(middleware.CtxNow); ok {
		if t, ok := v.(time.Time); ok {
			return t
		}
	}
	return time.Now()
}

// mustUser writes 401 and returns false when no user is attached.
func mustUser(c *gin.Context) (models.User, bool) {
	u, err := currentUser(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthenticated", "code": "unauthorized"})
		return models.User{}, false
	}
	return u, true
}

func parseUUIDParam(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		respondError(c, errs.Validation(name, "invalid id"))
		return uuid.Nil, false
	}
	return id, true
}

func bindJSON(c *gin.Context, dst interface{}) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		respondError(c, errs.Validation("body", "invalid request body").With("reason", err.Error()))
		return false
	}
	return true
}

func statusFor(kind errs.Kind) int {
	switch kind {
	case errs.KindNotFound:
		return http.StatusNotFound
	case errs.KindForbidden:
		return http.StatusForbidden
	case errs.KindDuplicateAssignment, errs.KindNotAssigned,
		errs.KindAlreadySubmitted, errs.KindNotSubmitted, errs.KindNotGraded:
		return http.StatusConflict
	case errs.KindAssignmentClosed, errs.KindAttemptLimitExceeded:
		return http.StatusUnprocessableEntity
	case errs.KindValidationFailed:
		return http.StatusBadRequest
	case errs.KindUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// respondError is the single place domain errors become HTTP responses.
func respondError(c *gin.Context, err error) {
	var e *errs.Error
	if !errors.As(err, &e) {
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error", "code": errs.KindInternal})
		return
	}
	status := statusFor(e.Kind)
	if status >= 500 {
		_ = c.Error(err)
	}
	body := gin.H{"error": e.Message, "code": e.Kind}
	if len(e.Details) > 0 {
		body["details"] = e.Details
	}
	c.JSON(status, body)
}

package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/vnkhanh/course-tracker-backend/auth"
	"github.com/vnkhanh/course-tracker-backend/errs"
	"github.com/vnkhanh/course-tracker-backend/models"
)

const (
	CtxIdentity = "identity"
	CtxUser     = "user"
	CtxUserID   = "user_id"
	CtxRole     = "role"
)

type UserLookup interface {
	FindByExternalID(ctx context.Context, externalID string) (models.User, error)
}

// BearerToken reads "Authorization: Bearer <token>", falling back to
// X-Auth-Token for clients that cannot set Authorization.
func BearerToken(c *gin.Context) string {
	header := c.GetHeader("Authorization")
	if header == "" {
		return strings.TrimSpace(c.GetHeader("X-Auth-Token"))
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

// AuthMiddleware verifies the identity assertion and stores it under
// CtxIdentity. It does not require a local user.
func AuthMiddleware(verifier auth.Verifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := BearerToken(c)
		if token == "" {
			abort(c, http.StatusUnauthorized, "missing or malformed Authorization header")
			return
		}
		id, err := verifier.Verify(c.Request.Context(), token)
		if err != nil {
			abort(c, http.StatusUnauthorized, "invalid or expired token")
			return
		}
		c.Set(CtxIdentity, id)
		c.Next()
	}
}

// LoadUser resolves the verified identity to an active local user.
func LoadUser(users UserLookup) gin.HandlerFunc {
	return func(c *gin.Context) {
		v, ok := c.Get(CtxIdentity)
		if !ok {
			abort(c, http.StatusUnauthorized, "unauthenticated")
			return
		}
		id := v.(auth.Identity)

		user, err := users.FindByExternalID(c.Request.Context(), id.Subject)
		if err != nil {
			if errs.Is(err, errs.KindNotFound) {
				abort(c, http.StatusUnauthorized, "user is not registered")
				return
			}
			if errs.Is(err, errs.KindUnavailable) {
				abort(c, http.StatusServiceUnavailable, "user store unavailable")
				return
			}
			abort(c, http.StatusInternalServerError, "could not load user")
			return
		}
		if !user.Active {
			abort(c, http.StatusForbidden, "account is deactivated")
			return
		}

		c.Set(CtxUser, user)
		c.Set(CtxUserID, user.ID.String())
		c.Set(CtxRole, string(user.Role))
		c.Next()
	}
}

func abort(c *gin.Context, status int, msg string) {
	code := "unauthorized"
	switch status {
	case http.StatusForbidden:
		code = string(errs.KindForbidden)
	case http.StatusServiceUnavailable:
		code = string(errs.KindUnavailable)
	case http.StatusInternalServerError:
		code = string(errs.KindInternal)
	}
	c.AbortWithStatusJSON(status, gin.H{"error": msg, "code": code})
}

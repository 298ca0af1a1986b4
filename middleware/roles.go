package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/vnkhanh/course-tracker-backend/errs"
	"github.com/vnkhanh/course-tracker-backend/models"
)

// RequireRoles lets the request through only for the listed roles. It must
// run after LoadUser.
func RequireRoles(allowed ...models.UserRole) gin.HandlerFunc {
	return func(c *gin.Context) {
		v, ok := c.Get(CtxUser)
		if !ok {
			abort(c, http.StatusUnauthorized, "unauthenticated")
			return
		}
		user := v.(models.User)
		for _, r := range allowed {
			if user.Role == r {
				c.Next()
				return
			}
		}
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
			"error": "role not permitted for this resource",
			"code":  errs.KindForbidden,
			"details": gin.H{
				"role":    user.Role,
				"allowed": allowed,
			},
		})
	}
}

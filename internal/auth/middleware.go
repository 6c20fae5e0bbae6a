package auth

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"campusattend/internal/binding"
)

const claimsKey = "session"

// RequireSession enforces a valid session cookie. Browser requests are
// redirected to the login entry point; API clients get 401.
func RequireSession(signingKey string) gin.HandlerFunc {
	return func(c *gin.Context) {
		cookie, err := c.Cookie(SessionCookie)
		if err != nil || cookie == "" {
			reject(c)
			return
		}
		claims, err := ParseSession(cookie, signingKey)
		if err != nil {
			reject(c)
			return
		}
		c.Set(claimsKey, claims)
		c.Next()
	}
}

// RequireBinding gates check-in and history behind a confirmed student
// binding, resolving it fresh per request.
func RequireBinding(gate *binding.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, ok := Session(c)
		if !ok {
			reject(c)
			return
		}
		res, err := gate.ResolveBinding(c.Request.Context(), claims.UserID)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "try again later"})
			return
		}
		if !res.Bound {
			if wantsHTML(c) {
				c.Redirect(http.StatusFound, "/bind-student")
				c.Abort()
				return
			}
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "binding_required"})
			return
		}
		c.Set("binding", res)
		c.Next()
	}
}

// RequireAdmin allows only sessions with the admin role.
func RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, ok := Session(c)
		if !ok || claims.Role != "admin" {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "admin required"})
			return
		}
		c.Next()
	}
}

// Session returns the parsed claims set by RequireSession.
func Session(c *gin.Context) (SessionClaims, bool) {
	v, exists := c.Get(claimsKey)
	if !exists {
		return SessionClaims{}, false
	}
	claims, ok := v.(SessionClaims)
	return claims, ok
}

// Binding returns the resolution set by RequireBinding.
func Binding(c *gin.Context) (binding.Resolution, bool) {
	v, exists := c.Get("binding")
	if !exists {
		return binding.Resolution{}, false
	}
	res, ok := v.(binding.Resolution)
	return res, ok
}

func reject(c *gin.Context) {
	if wantsHTML(c) {
		c.Redirect(http.StatusFound, "/auth/google")
		c.Abort()
		return
	}
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "login required"})
}

func wantsHTML(c *gin.Context) bool {
	return strings.Contains(c.GetHeader("Accept"), "text/html")
}

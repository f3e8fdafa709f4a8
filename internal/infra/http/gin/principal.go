package ginserver

import (
	"net/http"
	"strings"

	gin "github.com/gin-gonic/gin"
)

const (
	principalContextKey = "carchat.principal"

	headerUserID         = "X-User-ID"
	headerActingAs       = "X-Acting-As"
	headerIdempotencyKey = "Idempotency-Key"
)

// principal is the caller as asserted by the upstream gateway.
type principal struct {
	UserID   string
	ActingAs string
}

// Actor is the participant id the caller speaks as: the dealership when acting for one.
func (p principal) Actor() string {
	if p.ActingAs != "" {
		return p.ActingAs
	}
	return p.UserID
}

func Principal() gin.HandlerFunc {
	return func(c *gin.Context) {
		user := strings.TrimSpace(c.GetHeader(headerUserID))
		if user != "" {
			c.Set(principalContextKey, principal{
				UserID:   user,
				ActingAs: strings.TrimSpace(c.GetHeader(headerActingAs)),
			})
		}
		c.Next()
	}
}

func currentPrincipal(c *gin.Context) (principal, bool) {
	val, exists := c.Get(principalContextKey)
	if !exists {
		return principal{}, false
	}
	p, ok := val.(principal)
	return p, ok
}

func requirePrincipal(c *gin.Context) (principal, bool) {
	p, ok := currentPrincipal(c)
	if !ok {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "auth required"})
		return principal{}, false
	}
	return p, true
}

package api

import (
	"net/http"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"
)

// keyGuard performs API key checks against a hot-reloadable key set.
type keyGuard struct {
	mu   sync.RWMutex
	keys map[string]struct{}
}

func newKeyGuard(keys []string) *keyGuard {
	g := &keyGuard{}
	g.setKeys(keys)
	return g
}

func (g *keyGuard) setKeys(keys []string) {
	set := make(map[string]struct{}, len(keys))
	for _, key := range keys {
		if trimmed := strings.TrimSpace(key); trimmed != "" {
			set[trimmed] = struct{}{}
		}
	}
	g.mu.Lock()
	g.keys = set
	g.mu.Unlock()
}

// allowed reports whether the request carries a valid key. An empty key set
// leaves the API open for local use.
func (g *keyGuard) allowed(c *gin.Context) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if len(g.keys) == 0 {
		return true
	}
	candidate := strings.TrimSpace(c.GetHeader("x-api-key"))
	if candidate == "" {
		authorization := c.GetHeader("Authorization")
		if strings.HasPrefix(authorization, "Bearer ") {
			candidate = strings.TrimSpace(strings.TrimPrefix(authorization, "Bearer "))
		}
	}
	if candidate == "" {
		return false
	}
	_, ok := g.keys[candidate]
	return ok
}

// authMiddleware rejects requests without a valid API key.
func (g *keyGuard) middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !g.allowed(c) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": gin.H{
					"type":    "authentication_error",
					"message": "missing or invalid API key",
				},
			})
			return
		}
		c.Next()
	}
}

package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/KimADR/smt-finalV2-sub001/internal/auth"
	"github.com/KimADR/smt-finalV2-sub001/internal/model"
)

const principalKey = "principal"

// authMiddleware verifies the bearer token and stores the principal in the
// gin context. Browsers cannot set headers on websocket upgrades, so the
// token query parameter is accepted too.
func authMiddleware(signer *auth.Signer) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := ""
		if authz := strings.TrimSpace(c.GetHeader("Authorization")); authz != "" {
			if strings.HasPrefix(strings.ToLower(authz), "bearer ") {
				token = strings.TrimSpace(authz[len("bearer "):])
			}
		}
		if token == "" {
			token = c.Query("token")
		}
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing token"})
			return
		}

		p, err := signer.Verify(token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		c.Set(principalKey, p)
		c.Next()
	}
}

// requireRole rejects principals whose role is not listed.
func requireRole(roles ...model.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		p := principalFrom(c)
		for _, r := range roles {
			if p.Role == r {
				c.Next()
				return
			}
		}
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "forbidden"})
	}
}

func principalFrom(c *gin.Context) model.Principal {
	v, ok := c.Get(principalKey)
	if !ok {
		return model.Principal{}
	}
	p, _ := v.(model.Principal)
	return p
}

package middleware

import (
	"context"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sustainability-assessment-api/internal/models"
	appErrors "github.com/noah-isme/sustainability-assessment-api/pkg/errors"
	"github.com/noah-isme/sustainability-assessment-api/pkg/logger"
	"github.com/noah-isme/sustainability-assessment-api/pkg/response"
)

// ContextPrincipalKey is the gin context key storing the authenticated principal.
const ContextPrincipalKey = "principal"

// PrincipalResolver turns a raw bearer token into a principal.
type PrincipalResolver interface {
	Resolve(ctx context.Context, raw string) (*models.Principal, error)
}

// Authenticate requires a valid bearer token and stores the resolved principal.
func Authenticate(resolver PrincipalResolver) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := bearerToken(c.GetHeader("Authorization"))
		if !ok {
			response.Error(c, appErrors.ErrUnauthenticated)
			c.Abort()
			return
		}

		principal, err := resolver.Resolve(c.Request.Context(), token)
		if err != nil {
			response.Error(c, err)
			c.Abort()
			return
		}

		c.Set(ContextPrincipalKey, principal)
		c.Set(logger.SubjectKey, principal.UserID)
		c.Next()
	}
}

// Principal returns the principal stored by Authenticate, or nil.
func Principal(c *gin.Context) *models.Principal {
	value, exists := c.Get(ContextPrincipalKey)
	if !exists {
		return nil
	}
	p, _ := value.(*models.Principal)
	return p
}

func bearerToken(header string) (string, bool) {
	parts := strings.SplitN(strings.TrimSpace(header), " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", false
	}
	token := strings.TrimSpace(parts[1])
	return token, token != ""
}

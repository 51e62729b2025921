package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sustainability-assessment-api/internal/middleware"
	"github.com/noah-isme/sustainability-assessment-api/internal/models"
	appErrors "github.com/noah-isme/sustainability-assessment-api/pkg/errors"
)

const maxPageSize = 200

func principalFromContext(c *gin.Context) *models.Principal {
	return middleware.Principal(c)
}

func bindJSON(c *gin.Context, dest interface{}, message string) error {
	if err := c.ShouldBindJSON(dest); err != nil {
		return appErrors.Wrap(err, appErrors.ErrBadInput.Code, http.StatusBadRequest, message)
	}
	return nil
}

func parseQueryInt(c *gin.Context, key string, def int) int {
	raw := c.Query(key)
	if raw == "" {
		return def
	}
	val, err := strconv.Atoi(raw)
	if err != nil || val < 0 {
		return def
	}
	return val
}

// pageWindow reads limit/offset query parameters, capping the limit.
func pageWindow(c *gin.Context) (limit, offset int) {
	limit = parseQueryInt(c, "limit", 50)
	if limit == 0 || limit > maxPageSize {
		limit = maxPageSize
	}
	return limit, parseQueryInt(c, "offset", 0)
}

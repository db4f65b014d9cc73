// Package handler provides HTTP handlers for the API.
package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	pkgerrors "github.com/reviewhub/reviewhub/pkg/errors"
)

// respondError writes the standard error envelope
func respondError(c *gin.Context, status int, code pkgerrors.ErrorCode, message string) {
	c.JSON(status, gin.H{
		"code":    code,
		"message": message,
	})
}

// bindingStatus distinguishes a malformed body (400) from one that
// parsed but failed validation (422)
func bindingStatus(err error) (int, pkgerrors.ErrorCode) {
	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) {
		return http.StatusUnprocessableEntity, pkgerrors.ErrCodeUnprocessable
	}
	return http.StatusBadRequest, pkgerrors.ErrCodeValidation
}

// pagination reads limit/offset query parameters with bounds applied
func pagination(c *gin.Context, defaultLimit, maxLimit int) (limit, offset int) {
	limit = intQuery(c, "limit", defaultLimit)
	if limit < 1 {
		limit = defaultLimit
	}
	if limit > maxLimit {
		limit = maxLimit
	}
	offset = intQuery(c, "offset", 0)
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

func intQuery(c *gin.Context, name string, fallback int) int {
	raw := c.Query(name)
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return value
}

// pathRepoID joins the owner and repo route parameters into a repo_id
func pathRepoID(c *gin.Context) string {
	return c.Param("owner") + "/" + c.Param("repo")
}

package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/princeprakhar/reviewnext-backend/internal/catalog"
	"github.com/princeprakhar/reviewnext-backend/internal/rating"
	"github.com/princeprakhar/reviewnext-backend/internal/services"
	"github.com/princeprakhar/reviewnext-backend/internal/store"
	"github.com/princeprakhar/reviewnext-backend/internal/utils"
	"github.com/princeprakhar/reviewnext-backend/pkg/logger"
	"github.com/sirupsen/logrus"
)

type errorMapping struct {
	target    error
	status    int
	code      string
	retryable bool
}

// Checked in order; the first match wins.
var errorMappings = []errorMapping{
	{store.ErrNotFound, http.StatusNotFound, "not_found", false},
	{catalog.ErrUnknownCategory, http.StatusNotFound, "unknown_category", false},
	{rating.ErrInvalidRating, http.StatusBadRequest, "invalid_rating", false},
	{services.ErrInvalidInput, http.StatusBadRequest, "invalid_input", false},
	{services.ErrForbidden, http.StatusForbidden, "forbidden", false},
	{services.ErrInvalidCredentials, http.StatusUnauthorized, "invalid_credentials", false},
	{store.ErrDuplicate, http.StatusConflict, "duplicate", false},
	{store.ErrConflict, http.StatusConflict, "conflict", true},
	{store.ErrTransport, http.StatusServiceUnavailable, "transport_failure", true},
}

// respondError writes the error response for a service failure.
func respondError(c *gin.Context, message string, err error) {
	for _, m := range errorMappings {
		if errors.Is(err, m.target) {
			if m.status >= http.StatusInternalServerError {
				logFailure(c, message, err)
			}
			utils.SendCodedError(c, m.status, m.code, message, m.retryable, err)
			return
		}
	}

	logFailure(c, message, err)
	utils.SendCodedError(c, http.StatusInternalServerError, "internal", message, false, nil)
}

func logFailure(c *gin.Context, message string, err error) {
	logger.WithFields(logrus.Fields{
		"path":  c.FullPath(),
		"error": err,
	}).Error(message)
}

package handlers

import (
	"errors"
	"net/http"

	"github.com/chachabrian/mooveit-dispatch/internal/dispatch"
	"github.com/gin-gonic/gin"
)

// respondError writes the status and client message for a dispatch error.
func respondError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, dispatch.ErrValidation):
		status = http.StatusBadRequest
	case errors.Is(err, dispatch.ErrConflict):
		status = http.StatusConflict
	case errors.Is(err, dispatch.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, dispatch.ErrForbidden):
		status = http.StatusForbidden
	}
	if status == http.StatusInternalServerError {
		_ = c.Error(err)
	}
	c.JSON(status, gin.H{"error": dispatch.Message(err)})
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, gin.H{"error": msg})
}

package httpapi

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/danielpatrickdp/deskmate/go-controller/internal/navigation"
)

type APIError struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

type ErrorEnvelope struct {
	Error APIError `json:"error"`
}

func respondError(c *gin.Context, status int, code string, err error) {
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}
	c.AbortWithStatusJSON(status, ErrorEnvelope{Error: APIError{Message: msg, Code: code}})
}

// navigationStatus maps navigator errors to an HTTP status and error code.
func navigationStatus(err error) (int, string) {
	switch {
	case errors.Is(err, navigation.ErrAssistantNotFound):
		return http.StatusNotFound, "assistant_not_found"
	case errors.Is(err, navigation.ErrRoomNotFound):
		return http.StatusNotFound, "room_not_found"
	case errors.Is(err, navigation.ErrNoActiveFloorPlan):
		return http.StatusConflict, "no_active_floor_plan"
	case errors.Is(err, navigation.ErrNoPath):
		return http.StatusUnprocessableEntity, "no_path"
	default:
		return http.StatusInternalServerError, "navigation_failed"
	}
}

package httpapi

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/danielpatrickdp/deskmate/go-controller/internal/council"
	"github.com/danielpatrickdp/deskmate/go-controller/internal/geometry"
	"github.com/danielpatrickdp/deskmate/go-controller/internal/navigation"
)

// #region navigation

type navigateRequest struct {
	AssistantID   string  `json:"assistant_id" binding:"required"`
	X             float64 `json:"x"`
	Y             float64 `json:"y"`
	TargetRoomID  string  `json:"target_room_id"`
	UserInitiated *bool   `json:"user_initiated"`
}

func (r navigateRequest) toNavigation() navigation.Request {
	user := true
	if r.UserInitiated != nil {
		user = *r.UserInitiated
	}
	return navigation.Request{
		AssistantID:   r.AssistantID,
		Target:        geometry.Position{X: r.X, Y: r.Y},
		TargetRoomID:  r.TargetRoomID,
		UserInitiated: user,
	}
}

// POST /api/navigation
func (h *handler) navigate(c *gin.Context) {
	var req navigateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	resp, err := h.nav.NavigateToPosition(c.Request.Context(), req.toNavigation())
	if err != nil {
		status, code := navigationStatus(err)
		respondError(c, status, code, err)
		return
	}
	c.JSON(http.StatusAccepted, resp)
}

// POST /api/navigation/preview
func (h *handler) preview(c *gin.Context) {
	var req navigateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	resp, err := h.nav.PreviewPath(c.Request.Context(), req.toNavigation())
	if err != nil {
		status, code := navigationStatus(err)
		respondError(c, status, code, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// DELETE /api/navigation/:id
func (h *handler) cancel(c *gin.Context) {
	id := c.Param("id")
	if !h.nav.CancelNavigation(id) {
		respondError(c, http.StatusNotFound, "navigation_not_found", errors.New("no active navigation "+id))
		return
	}
	c.JSON(http.StatusOK, gin.H{"cancelled": true, "navigation_id": id})
}

// GET /api/assistants/:id/navigation
func (h *handler) active(c *gin.Context) {
	s, ok := h.nav.ActiveNavigation(c.Param("id"))
	if !ok {
		respondError(c, http.StatusNotFound, "navigation_not_found", errors.New("assistant is not navigating"))
		return
	}
	c.JSON(http.StatusOK, s)
}

// #endregion navigation

// #region chat

type chatRequest struct {
	AssistantID string           `json:"assistant_id" binding:"required"`
	Message     string           `json:"message" binding:"required"`
	Persona     *council.Persona `json:"persona"`
}

// POST /api/chat
func (h *handler) chatTurn(c *gin.Context) {
	var req chatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		respondError(c, http.StatusBadRequest, "invalid_request", errors.New("message is empty"))
		return
	}
	persona := req.Persona
	if persona == nil {
		persona = h.persona
	}
	c.JSON(http.StatusOK, h.chat.ProcessUserMessage(c.Request.Context(), req.AssistantID, req.Message, persona))
}

// #endregion chat

// #region events

// GET /api/events streams notifications as server-sent events until the client leaves.
func (h *handler) stream(c *gin.Context) {
	events, unsubscribe := h.events.Subscribe(64)
	defer unsubscribe()
	h.log.Debug("event stream opened", zap.String("remote", c.ClientIP()))

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Status(http.StatusOK)
	c.Writer.Flush()

	c.Stream(func(w io.Writer) bool {
		select {
		case <-c.Request.Context().Done():
			return false
		case ev, ok := <-events:
			if !ok {
				return false
			}
			c.SSEvent(ev.Type, ev)
			return true
		}
	})
}

// #endregion events

// Package httpapi exposes navigation and chat over HTTP.
package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.uber.org/zap"

	"github.com/danielpatrickdp/deskmate/go-controller/internal/companion"
	"github.com/danielpatrickdp/deskmate/go-controller/internal/council"
	"github.com/danielpatrickdp/deskmate/go-controller/internal/logging"
	"github.com/danielpatrickdp/deskmate/go-controller/internal/navigation"
	"github.com/danielpatrickdp/deskmate/go-controller/internal/notify"
)

// #region collaborators

// Navigator is the navigation API served over HTTP.
type Navigator interface {
	NavigateToPosition(ctx context.Context, req navigation.Request) (navigation.Response, error)
	PreviewPath(ctx context.Context, req navigation.Request) (navigation.Response, error)
	ActiveNavigation(assistantID string) (navigation.Session, bool)
	CancelNavigation(navigationID string) bool
}

// Chat answers user messages.
type Chat interface {
	ProcessUserMessage(ctx context.Context, assistantID, msg string, persona *council.Persona) companion.Response
}

// Events is the source for the server-sent event stream.
type Events interface {
	Subscribe(buffer int) (<-chan notify.Event, func())
}

// #endregion collaborators

// #region router

// RouterConfig wires the handlers. Events, Persona and AllowOrigins are optional.
type RouterConfig struct {
	Navigator    Navigator
	Chat         Chat
	Events       Events
	Persona      *council.Persona // used when a chat request names none
	AllowOrigins []string         // CORS is off when empty
	Logger       *zap.Logger
}

type handler struct {
	nav     Navigator
	chat    Chat
	events  Events
	persona *council.Persona
	log     *zap.Logger
}

// NewRouter builds the gin engine.
func NewRouter(cfg RouterConfig) *gin.Engine {
	h := &handler{
		nav:     cfg.Navigator,
		chat:    cfg.Chat,
		events:  cfg.Events,
		persona: cfg.Persona,
		log:     logging.OrNop(cfg.Logger).Named("http"),
	}

	router := gin.New()
	router.Use(gin.Recovery(), otelgin.Middleware("companion"), h.accessLog())
	if len(cfg.AllowOrigins) > 0 {
		router.Use(cors.New(cors.Config{
			AllowOrigins: cfg.AllowOrigins,
			AllowMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
			AllowHeaders: []string{"Content-Type", "Last-Event-ID"},
			MaxAge:       12 * time.Hour,
		}))
	}

	router.GET("/healthz", healthz)
	api := router.Group("/api")
	{
		api.POST("/navigation", h.navigate)
		api.POST("/navigation/preview", h.preview)
		api.DELETE("/navigation/:id", h.cancel)
		api.GET("/assistants/:id/navigation", h.active)
		api.POST("/chat", h.chatTurn)
		if h.events != nil {
			api.GET("/events", h.stream)
		}
	}
	return router
}

func healthz(c *gin.Context) {
	c.String(http.StatusOK, "ok")
}

func (h *handler) accessLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		h.log.Debug("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("elapsed", time.Since(start)))
	}
}

// #endregion router

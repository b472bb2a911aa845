// routes.go - Route registration helpers
package api

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/docchat/client/internal/storage"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"
)

// Dependencies holds all handler dependencies
type Dependencies struct {
	Conversation Conversation
	Stager       *storage.Stager
	Logger       *zap.Logger
	Version      string
	BackendURL   string

	// Bounds of the backend calls a ?wait=true request may block on
	AskTimeout    time.Duration
	UploadTimeout time.Duration
}

// Handlers holds all handler instances
type Handlers struct {
	Health    HealthHandler
	Chat      ChatHandler
	Upload    UploadHandler
	WebSocket *WebSocketHandler
}

// NewHandlers creates all handler instances
func NewHandlers(deps *Dependencies) *Handlers {
	return &Handlers{
		Health:    NewHealthHandler(deps.Version, deps.BackendURL),
		Chat:      NewChatHandler(deps.Conversation, deps.AskTimeout, deps.Logger),
		Upload:    NewUploadHandler(deps.Conversation, deps.Stager, deps.UploadTimeout, deps.Logger),
		WebSocket: NewWebSocketHandler(deps.Conversation, deps.Stager, deps.Logger),
	}
}

// RegisterRoutes registers all API routes with the Echo instance
func RegisterRoutes(e *echo.Echo, handlers *Handlers) {
	apiGroup := e.Group("/api")

	apiGroup.GET("/health", handlers.Health.HandleHealth)

	// Read models
	apiGroup.GET("/state", handlers.Chat.HandleGetState)
	apiGroup.GET("/state/msgpack", handlers.Chat.HandleGetStateMsgpack)
	apiGroup.GET("/messages", handlers.Chat.HandleGetMessages)

	// Chat intents
	apiGroup.PUT("/draft", handlers.Chat.HandleUpdateDraft)
	apiGroup.POST("/questions", handlers.Chat.HandleSendQuestion)

	// Upload surface intents
	uploadGroup := apiGroup.Group("/upload")
	uploadGroup.POST("/open", handlers.Upload.HandleOpenSurface)
	uploadGroup.POST("/close", handlers.Upload.HandleCloseSurface)
	uploadGroup.POST("/select", handlers.Upload.HandleSelectFile)
	uploadGroup.POST("/submit", handlers.Upload.HandleSubmitUpload)
	uploadGroup.POST("/cancel", handlers.Upload.HandleCancelUpload)
	uploadGroup.GET("/staged", handlers.Upload.HandleListStaged)
	uploadGroup.GET("/staged/:id", handlers.Upload.HandleGetStaged)

	apiGroup.GET("/ws", handlers.WebSocket.HandleWebSocket)
}

// MiddlewareOptions configures SetupMiddleware
type MiddlewareOptions struct {
	Logger         *zap.Logger
	LogRequests    bool
	BodyLimit      string
	RequestTimeout time.Duration
	AllowOrigins   []string // nil disables CORS
}

// SetupMiddleware configures common middleware
func SetupMiddleware(e *echo.Echo, opts MiddlewareOptions) {
	e.HTTPErrorHandler = ErrorHandler

	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("http")

	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		Skipper: func(c echo.Context) bool {
			if !opts.LogRequests {
				return true
			}
			path := c.Request().URL.Path
			return path == "/api/health" || path == "/api/ws"
		},
		LogMethod:   true,
		LogURI:      true,
		LogStatus:   true,
		LogLatency:  true,
		LogError:    true,
		HandleError: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			fields := []zap.Field{
				zap.String("method", v.Method),
				zap.String("uri", v.URI),
				zap.Int("status", v.Status),
				zap.Duration("latency", v.Latency),
			}
			if v.Error != nil {
				logger.Warn("request failed", append(fields, zap.Error(v.Error))...)
				return nil
			}
			logger.Info("request", fields...)
			return nil
		},
	}))

	e.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{
		StackSize: 1024 * 4,
		LogErrorFunc: func(c echo.Context, err error, stack []byte) error {
			logger.Error("handler panicked", zap.Error(err), zap.ByteString("stack", stack))
			return err
		},
	}))

	if opts.RequestTimeout > 0 {
		e.Use(middleware.TimeoutWithConfig(middleware.TimeoutConfig{
			Timeout: opts.RequestTimeout,
			Skipper: func(c echo.Context) bool {
				path := c.Request().URL.Path
				return strings.HasSuffix(path, "/ws") || wantsWait(c)
			},
			ErrorMessage: "Request timeout",
		}))
	}

	if opts.BodyLimit != "" {
		e.Use(middleware.BodyLimit(opts.BodyLimit))
	}

	if opts.AllowOrigins != nil {
		e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
			AllowOrigins: opts.AllowOrigins,
			AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodOptions},
			AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept},
		}))
	}
}

// ParseOrigins splits a comma-separated origin list, defaulting to "*".
func ParseOrigins(s string) []string {
	origins := strings.Split(s, ",")
	out := origins[:0]
	for _, o := range origins {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	if len(out) == 0 {
		return []string{"*"}
	}
	return out
}

// waitMargin covers writing the final response once the awaited call ended.
const waitMargin = 10 * time.Second

// wantsWait reports whether the request asked to block until completion.
func wantsWait(c echo.Context) bool {
	wait, _ := strconv.ParseBool(c.QueryParam("wait"))
	return wait
}

// extendWriteDeadline lets a waiting response outlive the server's
// WriteTimeout. A non-positive d removes the deadline.
func extendWriteDeadline(c echo.Context, d time.Duration, logger *zap.Logger) {
	var deadline time.Time
	if d > 0 {
		deadline = time.Now().Add(d + waitMargin)
	}
	rc := http.NewResponseController(c.Response().Writer)
	if err := rc.SetWriteDeadline(deadline); err != nil && !errors.Is(err, http.ErrNotSupported) {
		logger.Warn("failed to extend write deadline", zap.Error(err))
	}
}

package ginserver

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	gin "github.com/gin-gonic/gin"

	"propchat/internal/infra/config"
	"propchat/internal/infra/obs"
)

type Handlers struct {
	Chat           ChatHTTP
	Admin          AdminHTTP
	Auth           AuthHTTP
	Socket         SocketHTTP
	AuthMiddleware gin.HandlerFunc
}

func NewServer(cfg config.Config, obsMW obs.Middleware, health obs.HealthHandlers, h Handlers) *http.Server {
	mode := configureGinMode(cfg.Env)
	if obsMW.Logger != nil {
		obsMW.Logger.Info("gin initialized", "mode", mode)
	}
	return &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           NewRouter(obsMW, health, h),
		ReadHeaderTimeout: 10 * time.Second,
	}
}

// NewRouter builds the HTTP surface. Route groups are only mounted when their
// handler is wired.
func NewRouter(obsMW obs.Middleware, health obs.HealthHandlers, h Handlers) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(obsMW.RequestID())
	router.Use(obsMW.LoggerMiddleware())
	router.Use(cors.New(cors.Config{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{"GET", "POST", "OPTIONS"},
		AllowHeaders: []string{"Origin", "Content-Type", "Accept", "Authorization"},
		ExposeHeaders: []string{
			"Content-Length",
			"Content-Type",
			"X-Request-ID",
		},
		MaxAge: 12 * time.Hour,
	}))
	if h.AuthMiddleware != nil {
		router.Use(h.AuthMiddleware)
	}

	router.GET("/livez", health.Livez)
	router.GET("/readyz", health.Readyz)
	if obsMW.Metrics != nil {
		router.GET("/metrics", gin.WrapH(obsMW.Metrics.Handler()))
	}
	if h.Socket != nil {
		router.GET("/ws", h.Socket.Connect)
	}

	api := router.Group("/api/v1")
	if h.Auth != nil {
		api.POST("/auth/register", h.Auth.Register)
		api.POST("/auth/login", h.Auth.Login)
		api.POST("/auth/logout", h.Auth.Logout)
		api.GET("/auth/me", h.Auth.Me)
	}
	if h.Chat != nil {
		convGroup := api.Group("/conversations")
		convGroup.POST("/find-or-create", h.Chat.FindOrCreate)
		convGroup.GET("/my", h.Chat.ListMine)
		convGroup.GET("/:id", h.Chat.Get)
		convGroup.GET("/:id/messages", h.Chat.ListMessages)
		convGroup.POST("/:id/messages", h.Chat.SendMessage)
		convGroup.POST("/:id/read", h.Chat.MarkRead)
	}
	if h.Admin != nil {
		adminGroup := api.Group("/admin/conversations")
		adminGroup.GET("", h.Admin.ListInbox)
		adminGroup.POST("/:id/export", h.Admin.Export)
	}
	return router
}

func configureGinMode(env string) string {
	switch strings.ToLower(strings.TrimSpace(env)) {
	case "debug", "dev", "local":
		gin.SetMode(gin.DebugMode)
		return gin.DebugMode
	case "test", "testing":
		gin.SetMode(gin.TestMode)
		return gin.TestMode
	default:
		gin.SetMode(gin.ReleaseMode)
		return gin.ReleaseMode
	}
}

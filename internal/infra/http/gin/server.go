package ginserver

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	gin "github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"carchat/internal/infra/config"
	"carchat/internal/infra/obs"
)

type ChatHTTP interface {
	Ensure(c *gin.Context)
	ListConversations(c *gin.Context)
	GetConversation(c *gin.Context)
	ListMessages(c *gin.Context)
	SendMessage(c *gin.Context)
	MarkRead(c *gin.Context)
}

type StreamHTTP interface {
	Subscribe(c *gin.Context)
}

type Handlers struct {
	Chat   ChatHTTP
	Stream StreamHTTP
	// SendLimiter guards message appends only.
	SendLimiter gin.HandlerFunc
}

func NewServer(cfg config.Config, obsMW obs.Middleware, health obs.HealthHandlers, h Handlers) *http.Server {
	return &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           NewRouter(cfg, obsMW, health, h),
		ReadHeaderTimeout: 10 * time.Second,
	}
}

func NewRouter(cfg config.Config, obsMW obs.Middleware, health obs.HealthHandlers, h Handlers) *gin.Engine {
	mode := configureGinMode(cfg.Env)
	if obsMW.Logger != nil {
		obsMW.Logger.Info("gin initialized", "mode", mode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(obsMW.RequestID())
	router.Use(obsMW.LoggerMiddleware())
	router.Use(cors.New(cors.Config{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{"GET", "POST", "OPTIONS"},
		AllowHeaders: []string{"Origin", "Content-Type", "Accept", headerUserID, headerActingAs, headerIdempotencyKey},
		ExposeHeaders: []string{
			"Content-Length",
			"Content-Type",
			"X-Request-ID",
		},
		MaxAge: 12 * time.Hour,
	}))
	router.Use(Principal())

	router.GET("/livez", health.Livez)
	router.GET("/readyz", health.Readyz)
	if reg := obsMW.Metrics.Registry(); reg != nil {
		router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})))
	}

	api := router.Group("/api/v1")
	if h.Chat != nil {
		conversations := api.Group("/conversations")
		conversations.POST("", h.Chat.Ensure)
		conversations.GET("", h.Chat.ListConversations)
		conversations.GET("/:id", h.Chat.GetConversation)
		conversations.GET("/:id/messages", h.Chat.ListMessages)
		send := []gin.HandlerFunc{h.Chat.SendMessage}
		if h.SendLimiter != nil {
			send = append([]gin.HandlerFunc{h.SendLimiter}, send...)
		}
		conversations.POST("/:id/messages", send...)
		conversations.POST("/:id/read", h.Chat.MarkRead)
	}
	if h.Stream != nil {
		api.GET("/conversations/:id/stream", h.Stream.Subscribe)
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

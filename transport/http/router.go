package http

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/layer-3/credex/adapters/widget"
	"github.com/layer-3/credex/service"
)

// RouterConfig wires the router to the services behind it
type RouterConfig struct {
	Orchestrator *service.Orchestrator
	Registry     *widget.HostedRegistry
	Programs     ProgramResolver
	PollInterval time.Duration

	// AuthService enables the development login endpoint when set
	AuthService *service.AuthService
}

// SetupRouter sets up the Gin router
func SetupRouter(cfg RouterConfig) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), RequestLogger())

	handlers := NewHandlers(cfg.Orchestrator, cfg.Registry, cfg.Programs, cfg.PollInterval)

	router.GET("/healthcheck", handlers.Healthcheck)

	requests := router.Group("/requests")
	{
		requests.POST("", handlers.CreateRequest)
		requests.GET("", handlers.ListRequests)
		requests.GET("/:id", handlers.GetRequest)
		requests.POST("/:id/issue", handlers.IssueRequest)
		requests.POST("/:id/reject", handlers.RejectRequest)
	}

	router.POST("/verifications", handlers.Verify)
	router.GET("/holders/:wallet/pending/stream", handlers.PendingStream)

	widgets := router.Group("/widget")
	{
		widgets.GET("/session", handlers.WidgetSession)
		widgets.DELETE("/session", handlers.TeardownWidget)
		widgets.POST("/sessions/:id/events", handlers.WidgetEvent)
	}

	if cfg.AuthService != nil {
		authHandlers := NewAuthHandlers(cfg.AuthService)

		auth := router.Group("/auth/:role")
		{
			auth.POST("/login", authHandlers.Login)
			auth.GET("/introspect", AuthMiddleware(cfg.AuthService), authHandlers.Introspect)
		}
	}

	return router
}

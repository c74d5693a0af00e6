package api

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/ammar1510/chatty/internal/metrics"
	"github.com/ammar1510/chatty/internal/websocket"
)

// Handlers bundles everything the router mounts
type Handlers struct {
	Auth      *AuthHandler
	Messages  *MessageHandler
	Bot       *BotHandler
	Friends   *FriendHandler
	WebSocket *websocket.Manager
}

func corsConfig(allowedOrigins []string) cors.Config {
	cfg := cors.Config{
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}

	allowAll := len(allowedOrigins) == 0
	for _, o := range allowedOrigins {
		if o == "*" {
			allowAll = true
		}
	}
	if allowAll {
		// Echo the caller's origin; "*" is not valid with credentials
		cfg.AllowOriginFunc = func(string) bool { return true }
	} else {
		cfg.AllowOrigins = allowedOrigins
	}
	return cfg
}

// NewRouter wires every route under /api plus /health and /metrics
func NewRouter(allowedOrigins []string, h Handlers) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), RequestLogger(), metrics.Middleware(), cors.New(corsConfig(allowedOrigins)))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/metrics", gin.WrapH(metrics.Handler()))

	api := router.Group("/api")
	protected := AuthMiddleware()

	authRoutes := api.Group("/auth")
	{
		authRoutes.POST("/signup", h.Auth.Signup)
		authRoutes.POST("/login", h.Auth.Login)
		authRoutes.POST("/logout", h.Auth.Logout)
		authRoutes.POST("/verify-email", h.Auth.VerifyEmail)
		authRoutes.PUT("/update-profile", protected, h.Auth.UpdateProfile)
		authRoutes.GET("/check", protected, h.Auth.CheckAuth)
		authRoutes.POST("/request-password-reset", h.Auth.RequestPasswordReset)
		authRoutes.PUT("/reset-password", h.Auth.ResetPassword)
	}

	messageRoutes := api.Group("/messages", protected)
	{
		messageRoutes.GET("/users", h.Messages.GetUsers)
		messageRoutes.GET("/:id", h.Messages.GetConversation)
		messageRoutes.POST("/send/:id", h.Messages.SendMessage)
		messageRoutes.POST("/clear-chat", h.Messages.ClearChat)
		messageRoutes.DELETE("/delete/:messageId", h.Messages.DeleteMessage)
	}

	botRoutes := api.Group("/bot", protected)
	{
		botRoutes.POST("/chat", h.Bot.Chat)
		botRoutes.GET("/messages/:senderId", h.Bot.GetMessages)
		botRoutes.DELETE("/clear-bot-chat", h.Bot.ClearChat)
	}

	friendRoutes := api.Group("/friends", protected)
	{
		friendRoutes.POST("/send", h.Friends.Send)
		friendRoutes.POST("/accept", h.Friends.Accept)
		friendRoutes.POST("/reject", h.Friends.Reject)
		friendRoutes.GET("/search", h.Friends.Search)
		friendRoutes.GET("/requests", h.Friends.Requests)
		friendRoutes.GET("/list", h.Friends.List)
		friendRoutes.DELETE("/delete/:friendId", h.Friends.Delete)
	}

	api.GET("/ws", protected, h.WebSocket.HandleWebSocket)

	return router
}

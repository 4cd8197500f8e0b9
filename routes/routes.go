package routes

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"secondserve/handlers"
	"secondserve/middleware"
	"secondserve/models"
	"secondserve/websocket"
)

type Deps struct {
	Food           *handlers.FoodHandler
	Pickup         *handlers.PickupHandler
	Push           *handlers.PushHandler
	WS             *websocket.Manager
	JWTSecret      string
	AllowedOrigins []string
	RateLimiter    *middleware.RateLimiter
	Logger         *zap.Logger
	// Health, when set, is called by /health to probe the store.
	Health func(ctx context.Context) error
}

func SetupRouter(d Deps) *gin.Engine {
	router := gin.New()
	router.Use(middleware.Recovery(d.Logger), middleware.RequestLogger(d.Logger))

	corsConfig := cors.Config{
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS", "PATCH"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", "Accept", "X-Requested-With"},
		ExposeHeaders:    []string{"Content-Length", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	if len(d.AllowedOrigins) == 0 || d.AllowedOrigins[0] == "*" {
		corsConfig.AllowAllOrigins = true
		corsConfig.AllowCredentials = false
	} else {
		corsConfig.AllowOrigins = d.AllowedOrigins
	}
	router.Use(cors.New(corsConfig))

	router.GET("/health", func(c *gin.Context) {
		status, code := "ok", http.StatusOK
		if d.Health != nil {
			ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
			defer cancel()
			if err := d.Health(ctx); err != nil {
				status, code = "degraded", http.StatusServiceUnavailable
			}
		}
		c.JSON(code, gin.H{
			"success": code == http.StatusOK,
			"status":  status,
			"time":    time.Now().Unix(),
		})
	})

	auth := middleware.JWTAuthMiddleware(d.JWTSecret)
	donorOnly := middleware.RequireUserType(models.UserTypeDonor)
	collectorOnly := middleware.RequireUserType(models.UserTypeNGO, models.UserTypeVolunteer)

	if d.WS != nil {
		router.GET("/ws", auth, d.WS.Handler())
	}

	api := router.Group("/api")
	if d.RateLimiter != nil {
		api.Use(middleware.RateLimitMiddleware(d.RateLimiter))
	}
	api.GET("/vapid-public-key", d.Push.VapidPublicKey)

	protected := api.Group("")
	protected.Use(auth)

	protected.POST("/subscribe", d.Push.Subscribe)

	food := protected.Group("/food")
	food.POST("/create", donorOnly, d.Food.Create)
	food.GET("/nearby", d.Food.Nearby)
	food.GET("/my/posts", donorOnly, d.Food.MyPosts)
	food.GET("/:id", d.Food.Get)
	food.PUT("/:id/cancel", donorOnly, d.Food.Cancel)

	pickup := protected.Group("/pickup")
	pickup.POST("/request/:foodId", collectorOnly, d.Pickup.Request)
	pickup.PUT("/approve/:foodId/:requesterId", donorOnly, d.Pickup.Approve)
	pickup.POST("/verify/:foodId", collectorOnly, d.Pickup.Verify)
	pickup.POST("/complete/:foodId", collectorOnly, d.Pickup.Complete)
	pickup.GET("/my-pickups", collectorOnly, d.Pickup.MyPickups)

	router.NoRoute(func(c *gin.Context) {
		if strings.HasPrefix(c.Request.URL.Path, "/api") {
			c.JSON(http.StatusNotFound, gin.H{
				"success":   false,
				"message":   "Endpoint not found",
				"errorKind": "not_found",
				"path":      c.Request.URL.Path,
			})
			return
		}
		c.Next()
	})

	return router
}

package handler

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/xxxsen/docqa/internal/middleware"
)

type RouterDeps struct {
	Auth            *AuthHandler
	Documents       *DocumentHandler
	Query           *QueryHandler
	JWTSecret       []byte
	RateLimitWindow time.Duration
}

func RegisterRoutes(api *gin.RouterGroup, deps RouterDeps) {
	// One limiter instance so every throttled route shares the window
	// table; keys are per caller and per path. Read routes stay open so
	// list and job polling are never throttled.
	limit := middleware.RateLimit(deps.RateLimitWindow)
	api.POST("/auth/token", limit, deps.Auth.Token)

	authGroup := api.Group("")
	authGroup.Use(middleware.JWTAuth(deps.JWTSecret))
	authGroup.POST("/documents", limit, deps.Documents.Create)
	authGroup.GET("/documents", deps.Documents.List)
	authGroup.GET("/documents/:id", deps.Documents.Get)
	authGroup.DELETE("/documents/:id", deps.Documents.Delete)
	authGroup.GET("/jobs/:id", deps.Documents.Job)
	authGroup.POST("/parse", limit, deps.Documents.Parse)
	authGroup.POST("/query", deps.Query.Query)
}

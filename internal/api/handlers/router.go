package handlers

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/novelmaze/novelmaze/internal/config"
	"github.com/novelmaze/novelmaze/pkg/logger"
)

// NewRouter builds the gin engine with middleware and every API route.
func NewRouter(cfg *config.Config, h *Handler, log *logger.Logger) *gin.Engine {
	if cfg.Server.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(RequestLogger(log.Component("http")))
	r.Use(cors.New(corsConfig(cfg.CORS)))

	r.GET("/health", h.Health)

	api := r.Group("/api/v1")
	api.Use(h.Identity())
	h.RegisterRoutes(api)

	r.NoRoute(func(c *gin.Context) {
		h.errorResponse(c, http.StatusNotFound, "route not found")
	})
	return r
}

func corsConfig(cfg config.CORSConfig) cors.Config {
	c := cors.DefaultConfig()
	if len(cfg.AllowedOrigins) == 0 {
		c.AllowAllOrigins = true
	} else {
		c.AllowOrigins = cfg.AllowedOrigins
		c.AllowCredentials = true
	}
	c.AddAllowHeaders(UserIDHeader, "Authorization")
	c.MaxAge = 12 * time.Hour
	return c
}

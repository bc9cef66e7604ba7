package api

import (
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

// NewServer creates the HTTP control surface with all routes configured.
func NewServer(handler *Handler, apiAccessKey string) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()

	r.Use(gin.LoggerWithConfig(gin.LoggerConfig{
		Formatter: func(param gin.LogFormatterParams) string {
			return fmt.Sprintf("%s - [%s] \"%s %s %s %d %s \"%s\" %s\"\n",
				param.ClientIP,
				param.TimeStamp.Format(time.RFC3339),
				param.Method,
				param.Path,
				param.Request.Proto,
				param.StatusCode,
				param.Latency,
				param.Request.UserAgent(),
				param.ErrorMessage,
			)
		},
	}))

	r.Use(gin.Recovery())

	setupRoutes(r, handler, apiAccessKey)

	return r
}

func setupRoutes(r *gin.Engine, handler *Handler, apiAccessKey string) {
	r.GET("/health", handler.GetHealth)
	r.GET("/status", handler.GetStatus)

	// Control endpoints, authenticated when an access key is configured.
	control := r.Group("/")
	if apiAccessKey != "" {
		control.Use(authMiddleware(apiAccessKey))
		slog.Info("Control endpoints enabled with authentication")
	} else {
		slog.Warn("Control endpoints enabled without authentication (no API access key set)")
	}
	{
		control.POST("/scheduler/start", handler.StartScheduler)
		control.POST("/scheduler/stop", handler.StopScheduler)
		control.GET("/sources", handler.ListSources)
		control.GET("/sources/:name", handler.GetSource)
		control.POST("/sources/trigger", handler.TriggerAll)
		control.POST("/sources/:name/trigger", handler.TriggerSource)
		control.POST("/sources/:name/fetch", handler.FetchSource)
	}

	r.GET("/", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"service":     "Feedspider",
			"description": "RSS/Atom ingestion pipeline with deduplication and filtering",
			"endpoints": map[string]string{
				"health":  "/health",
				"status":  "/status",
				"sources": "/sources",
				"trigger": "/sources/trigger (POST)",
				"fetch":   "/sources/<name>/fetch (POST, ?force=true)",
			},
			"auth": map[string]interface{}{
				"required": apiAccessKey != "",
				"header":   "X-API-Key",
			},
		})
	})

	r.GET("/favicon.ico", func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})
}

func authMiddleware(apiAccessKey string) gin.HandlerFunc {
	return func(c *gin.Context) {
		providedKey := c.GetHeader("X-API-Key")

		if providedKey == "" {
			authHeader := c.GetHeader("Authorization")
			if strings.HasPrefix(authHeader, "Bearer ") {
				providedKey = strings.TrimPrefix(authHeader, "Bearer ")
			}
		}

		if providedKey == "" {
			c.JSON(http.StatusUnauthorized, gin.H{
				"error":   "API key required",
				"message": "Provide API key in X-API-Key header or Authorization: Bearer <key>",
			})
			c.Abort()
			return
		}

		if providedKey != apiAccessKey {
			c.JSON(http.StatusUnauthorized, gin.H{
				"error":   "Invalid API key",
				"message": "The provided API key is not valid",
			})
			c.Abort()
			return
		}

		c.Next()
	}
}

package transport

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/san-kum/simhost/internal/config"
	"github.com/san-kum/simhost/internal/engine"
	"github.com/san-kum/simhost/internal/session"
)

type RouterConfig struct {
	Manager        *session.Manager
	Registry       *engine.Registry
	Handler        *Handler
	Socket         http.Handler
	Gatherer       prometheus.Gatherer
	AllowedOrigins []string
	Logger         *slog.Logger
}

// NewRouter serves the HTTP status endpoints next to the Socket.IO mount.
func NewRouter(rc RouterConfig) *gin.Engine {
	if rc.Logger == nil {
		rc.Logger = slog.Default()
	}
	router := gin.New()
	router.Use(gin.Recovery())

	corsCfg := cors.Config{
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	if len(rc.AllowedOrigins) == 0 || (len(rc.AllowedOrigins) == 1 && rc.AllowedOrigins[0] == "*") {
		corsCfg.AllowOriginFunc = func(string) bool { return true }
	} else {
		corsCfg.AllowOrigins = rc.AllowedOrigins
	}
	router.Use(cors.New(corsCfg))
	router.Use(LoggingMiddleware(rc.Logger))

	router.GET("/healthz", func(c *gin.Context) {
		body := gin.H{"status": "ok", "sessions": rc.Manager.Len()}
		if rc.Handler != nil {
			body["clients"] = rc.Handler.Clients()
		}
		c.JSON(http.StatusOK, body)
	})

	router.GET("/sessions", func(c *gin.Context) {
		c.JSON(http.StatusOK, rc.Manager.List())
	})

	router.GET("/sessions/:id", func(c *gin.Context) {
		s, ok := rc.Manager.Get(c.Param("id"))
		if !ok {
			c.JSON(http.StatusNotFound, ErrorPayload{Message: "no such session"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"info": s.Info(), "snapshot": s.Snapshot()})
	})

	router.GET("/sims", func(c *gin.Context) {
		sims := make([]gin.H, 0)
		for _, name := range rc.Registry.Names() {
			sims = append(sims, gin.H{"name": name, "presets": config.ListPresets(name)})
		}
		c.JSON(http.StatusOK, sims)
	})

	if rc.Gatherer != nil {
		router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(rc.Gatherer, promhttp.HandlerOpts{})))
	}

	if rc.Socket != nil {
		router.Any("/socket.io/*any", gin.WrapH(rc.Socket))
	}
	return router
}

// LoggingMiddleware logs one line per request.
func LoggingMiddleware(log *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		raw := c.Request.URL.RawQuery

		c.Next()

		if raw != "" {
			path = path + "?" + raw
		}
		status := c.Writer.Status()
		level := slog.LevelDebug
		if status >= http.StatusInternalServerError {
			level = slog.LevelError
		}
		log.Log(c.Request.Context(), level, "http request",
			"method", c.Request.Method,
			"path", path,
			"status", status,
			"latency", time.Since(start),
		)
	}
}

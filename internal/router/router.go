package router

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"swarm-deploy/internal/handler"
	"swarm-deploy/internal/pkg/logger"
)

// NewEngine returns a gin engine with recovery, request logging and CORS for
// the given origins.
func NewEngine(allowOrigins []string, log *logger.Logger) *gin.Engine {
	r := gin.New()
	r.Use(requestLogger(log))
	r.Use(gin.Recovery())

	config := cors.DefaultConfig()
	config.AllowOrigins = allowOrigins
	config.AllowMethods = []string{"GET", "POST", "OPTIONS"}
	config.AllowHeaders = []string{"Origin", "Content-Length", "Content-Type", "Authorization"}
	r.Use(cors.New(config))

	return r
}

func RegisterRoutes(r *gin.Engine, sshHandler *handler.SSHHandler, deployHandler *handler.DeployHandler) {
	r.GET("/health", handler.Health)

	api := r.Group("/api")
	{
		ssh := api.Group("/ssh")
		{
			ssh.POST("/test", sshHandler.TestConnection)
			ssh.POST("/test-batch", sshHandler.BatchTestConnection)
		}

		deploy := api.Group("/deploy")
		{
			deploy.POST("", deployHandler.Deploy)
			deploy.GET("/:taskId", deployHandler.Progress)
			deploy.GET("/:taskId/stream", deployHandler.Stream)
		}
	}
}

func requestLogger(log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Debugw("request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"latency", time.Since(start),
		)
	}
}

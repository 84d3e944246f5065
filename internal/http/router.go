package http

import (
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"patient-llm/internal/service"
)

// NewRouter configura el router de Gin con middlewares y rutas.
func NewRouter(
	logger *zap.Logger,
	jwtSvc *service.JWTService,
	chatH *ChatHandler,
	reviewH *ReviewHandler,
) *gin.Engine {
	r := gin.New()

	// Middlewares basicos: logging, recovery y JSON content-type.
	r.Use(zapLoggerMiddleware(logger), gin.Recovery(), jsonContentTypeMiddleware())

	r.POST("/session", chatH.CreateSession)
	r.POST("/chat", chatH.PostTurn)
	r.GET("/session/:id/summary", chatH.GetSessionSummary)

	auth := r.Group("/auth")
	auth.POST("/login", reviewH.Login)

	runs := r.Group("/runs")
	runs.Use(JWTAuthMiddleware(jwtSvc))
	runs.GET("/:id", reviewH.GetRun)
	runs.GET("/:id/report", reviewH.GetRunReport)
	runs.POST("/:id/reviews", reviewH.SubmitReview)

	return r
}

// zapLoggerMiddleware crea un middleware simple de logging con zap.
func zapLoggerMiddleware(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		latency := time.Since(start)
		logger.Info("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", latency),
			zap.String("client_ip", c.ClientIP()),
		)
	}
}

// jsonContentTypeMiddleware fuerza Content-Type: application/json en responses.
func jsonContentTypeMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Content-Type", "application/json")
		c.Next()
	}
}

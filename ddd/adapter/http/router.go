package http

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"medkit-service/pkg/manager"
	"medkit-service/pkg/middleware"
)

// NewEngine 创建 gin 引擎并挂载中间件与全部控制器路由
func NewEngine(mode string) *gin.Engine {
	if mode != "" {
		gin.SetMode(mode)
	}
	engine := gin.New()
	SetupMiddleware(engine)

	// 健康检查路由
	engine.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"service": "medkit-service",
		})
	})
	manager.RegisterAllRoutes(engine)
	return engine
}

// SetupMiddleware 设置中间件
func SetupMiddleware(engine *gin.Engine) {
	// CORS中间件
	engine.Use(func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type, X-Owner-ID, X-Request-ID")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	})
	engine.Use(middleware.RequestContextMiddleware())
	engine.Use(middleware.AccessLog())
	engine.Use(gin.Recovery())
}

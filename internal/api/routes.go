package api

import (
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	"github.com/taoyao-code/dreamscreen-gateway/internal/api/docs"
	"github.com/taoyao-code/dreamscreen-gateway/internal/api/middleware"
)

// RegisterDeviceRoutes 注册 /api/devices 路由与 /swagger 文档
func RegisterDeviceRoutes(r *gin.Engine, reg DeviceRegistry, authCfg middleware.AuthConfig, logger *zap.Logger) {
	if r == nil || reg == nil {
		return
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	h := NewDeviceHandler(reg, logger)

	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler, ginSwagger.InstanceName(docs.SwaggerInfo.InstanceName())))

	api := r.Group("/api")
	if authCfg.Enabled {
		api.Use(middleware.APIKeyAuth(authCfg, logger))
		logger.Info("api authentication enabled", zap.Int("api_keys_count", len(authCfg.APIKeys)))
	} else {
		logger.Warn("api authentication disabled")
	}

	api.GET("/devices", h.ListDevices)
	api.POST("/devices", h.RegisterDevice)
	api.GET("/devices/:serial", h.GetDevice)
	api.DELETE("/devices/:serial", h.DeleteDevice)

	api.POST("/devices/:serial/power", h.SetPower)
	api.POST("/devices/:serial/mode", h.SetMode)
	api.POST("/devices/:serial/scene", h.SetScene)
	api.POST("/devices/:serial/color", h.SetColor)
	api.POST("/devices/:serial/input", h.SetInput)
	api.POST("/devices/:serial/refresh", h.Refresh)
}

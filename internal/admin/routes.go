package admin

import (
	"github.com/gin-gonic/gin"
	"github.com/matrix-construct/construct-sub003/internal/admin/handlers"
	"github.com/matrix-construct/construct-sub003/internal/admin/middleware"
	"github.com/matrix-construct/construct-sub003/internal/config"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/matrix-construct/construct-sub003/internal/admin/docs" // swagger docs
)

func RegisterRoutes(r *gin.Engine, h *handlers.Handler, cfg *config.Config) {
	// Swagger UI at /swagger/*
	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	api := r.Group("/api/v1")

	// Optional API key protection.
	if cfg != nil && cfg.Admin.APIKey != "" {
		api.Use(middleware.RequireAPIKey(cfg.Admin.APIKey))
	}

	api.GET("/health", h.Health)
	api.GET("/stats", h.Stats)

	api.GET("/config", h.GetConfig)
	api.PUT("/config", h.PutConfig)
	api.POST("/config/reload", h.ReloadConfig)

	api.GET("/policy/allow", h.GetAllowList)
	api.POST("/policy/allow", h.AddAllowList)
	api.DELETE("/policy/allow", h.RemoveAllowList)

	api.GET("/policy/deny", h.GetDenyList)
	api.POST("/policy/deny", h.AddDenyList)
	api.DELETE("/policy/deny", h.RemoveDenyList)

	api.GET("/policy/stats", h.PolicyStats)
	api.PUT("/policy/enabled", h.SetPolicyEnabled)
	api.GET("/policy/deny-lists", h.GetDenyLists)
	api.PUT("/policy/deny-lists/:name/enabled", h.SetDenyListEnabled)
	api.POST("/policy/deny-lists/:name/refresh", h.RefreshDenyList)

	// Static peer directory endpoints (destination -> address overrides).
	api.GET("/directory/zones", h.ListZones)
	api.POST("/directory/zones", h.CreateZone)
	api.GET("/directory/zones/:name", h.GetZone)
	api.PUT("/directory/zones/:name", h.UpdateZone)
	api.DELETE("/directory/zones/:name", h.DeleteZone)

	// Cluster config sync endpoints.
	api.GET("/cluster/status", h.GetClusterStatus)
	api.GET("/cluster/export", h.GetClusterExport)
	api.POST("/cluster/sync", h.PostClusterSync)
	api.GET("/cluster/config", h.GetClusterConfig)
	api.PUT("/cluster/config", h.PutClusterConfig)
}

package handlers_test

import (
	"github.com/gin-gonic/gin"
	"github.com/matrix-construct/construct-sub003/internal/admin/handlers"
)

func setupTestRouter(h *handlers.Handler) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()

	api := r.Group("/api/v1")
	api.GET("/health", h.Health)
	api.GET("/stats", h.Stats)
	api.GET("/config", h.GetConfig)
	api.PUT("/config", h.PutConfig)
	api.POST("/config/reload", h.ReloadConfig)
	api.GET("/directory/zones", h.ListZones)
	api.GET("/directory/zones/:name", h.GetZone)
	api.GET("/policy/allow", h.GetAllowList)
	api.POST("/policy/allow", h.AddAllowList)
	api.DELETE("/policy/allow", h.RemoveAllowList)
	api.GET("/policy/deny", h.GetDenyList)
	api.POST("/policy/deny", h.AddDenyList)
	api.DELETE("/policy/deny", h.RemoveDenyList)
	api.GET("/policy/stats", h.PolicyStats)
	api.PUT("/policy/enabled", h.SetPolicyEnabled)

	return r
}

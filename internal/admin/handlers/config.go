package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/matrix-construct/construct-sub003/internal/admin/models"
)

// GetConfig godoc
// @Summary Get current configuration
// @Description Returns the current broker configuration (sensitive fields redacted)
// @Tags config
// @Produce json
// @Success 200 {object} models.ConfigResponse
// @Failure 500 {object} models.ErrorResponse
// @Security ApiKeyAuth
// @Router /config [get]
func (h *Handler) GetConfig(c *gin.Context) {
	if h.cfg == nil {
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{Error: "config unavailable"})
		return
	}

	resp := models.ConfigResponse{
		Broker: models.BrokerConfigResponse{
			Workers:    h.cfg.Broker.Workers.String(),
			EnableIPv6: h.cfg.Broker.EnableIPv6,
		},
		Resolver:  h.cfg.Resolver,
		Logging:   h.cfg.Logging,
		Policy:    h.cfg.Policy,
		RateLimit: h.cfg.RateLimit,
		Admin: models.AdminConfigResponse{
			Enabled: h.cfg.Admin.Enabled,
			Host:    h.cfg.Admin.Host,
			Port:    h.cfg.Admin.Port,
		},
		Cluster: models.ClusterConfigResponse{
			Mode:         string(h.cfg.Cluster.Mode),
			NodeID:       h.cfg.Cluster.NodeID,
			PrimaryURL:   h.cfg.Cluster.PrimaryURL,
			SyncInterval: h.cfg.Cluster.SyncInterval,
			SyncTimeout:  h.cfg.Cluster.SyncTimeout,
		},
	}

	c.JSON(http.StatusOK, resp)
}

// PutConfig godoc
// @Summary Update configuration
// @Description Configuration updates are not supported; always responds 501 Not Implemented
// @Tags config
// @Accept json
// @Produce json
// @Param config body models.ConfigResponse true "Configuration update"
// @Success 200 {object} models.StatusResponse
// @Failure 400 {object} models.ErrorResponse
// @Failure 501 {object} models.ErrorResponse
// @Security ApiKeyAuth
// @Router /config [put]
func (h *Handler) PutConfig(c *gin.Context) {
	c.JSON(http.StatusNotImplemented, models.ErrorResponse{Error: "config updates not yet implemented"})
}

// ReloadConfig godoc
// @Summary Reload configuration
// @Description Hot reload is not supported; always responds 501 Not Implemented
// @Tags config
// @Produce json
// @Success 200 {object} models.StatusResponse
// @Failure 500 {object} models.ErrorResponse
// @Failure 501 {object} models.ErrorResponse
// @Security ApiKeyAuth
// @Router /config/reload [post]
func (h *Handler) ReloadConfig(c *gin.Context) {
	c.JSON(http.StatusNotImplemented, models.ErrorResponse{Error: "config reload not yet implemented"})
}

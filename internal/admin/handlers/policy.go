package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/matrix-construct/construct-sub003/internal/admin/models"
	"github.com/matrix-construct/construct-sub003/internal/policy"
)

// listOps defines operations for a destination list (allow or deny).
type listOps struct {
	name             string
	getFromDB        func(context.Context) ([]string, error)
	addToDB          func(context.Context, string) error
	deleteFromDB     func(context.Context, string) error
	addToEngine      func(*policy.PolicyEngine, string)
	removeFromEngine func(*policy.PolicyEngine, string)
}

func (h *Handler) allowOps() listOps {
	return listOps{
		name:             "allow list",
		getFromDB:        h.db.GetAllowDestinations,
		addToDB:          h.db.AddAllowDestination,
		deleteFromDB:     h.db.DeleteAllowDestination,
		addToEngine:      func(pe *policy.PolicyEngine, d string) { pe.AddToWhitelist(d) },
		removeFromEngine: func(pe *policy.PolicyEngine, d string) { pe.RemoveFromWhitelist(d) },
	}
}

func (h *Handler) denyOps() listOps {
	return listOps{
		name:             "deny list",
		getFromDB:        h.db.GetDenyDestinations,
		addToDB:          h.db.AddDenyDestination,
		deleteFromDB:     h.db.DeleteDenyDestination,
		addToEngine:      func(pe *policy.PolicyEngine, d string) { pe.AddToBlacklist(d) },
		removeFromEngine: func(pe *policy.PolicyEngine, d string) { pe.RemoveFromBlacklist(d) },
	}
}

func (h *Handler) getDomainList(c *gin.Context, ops listOps) {
	if h.db == nil {
		c.JSON(http.StatusServiceUnavailable, models.ErrorResponse{Error: "database not available"})
		return
	}

	domains, err := ops.getFromDB(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, models.ErrorResponse{Error: err.Error()})
		return
	}

	c.JSON(http.StatusOK, models.DomainListResponse{Domains: domains, Count: len(domains)})
}

func (h *Handler) addToDomainList(c *gin.Context, ops listOps) {
	pe := h.GetPolicyEngine()
	if h.db == nil {
		c.JSON(http.StatusServiceUnavailable, models.ErrorResponse{Error: "database not available"})
		return
	}

	var req models.DomainRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: err.Error()})
		return
	}

	for _, domain := range req.Domains {
		if err := ops.addToDB(c.Request.Context(), domain); err != nil {
			c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: err.Error()})
			return
		}
		if pe != nil {
			ops.addToEngine(pe, domain)
		}
	}

	if h.logger != nil {
		h.logger.Info("added destinations to "+ops.name, "count", len(req.Domains))
	}

	domains, err := ops.getFromDB(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, models.ErrorResponse{Error: err.Error()})
		return
	}
	c.JSON(http.StatusOK, models.DomainListResponse{Domains: domains, Count: len(domains)})
}

func (h *Handler) removeFromDomainList(c *gin.Context, ops listOps) {
	pe := h.GetPolicyEngine()
	if h.db == nil {
		c.JSON(http.StatusServiceUnavailable, models.ErrorResponse{Error: "database not available"})
		return
	}

	var req models.DomainDeleteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: err.Error()})
		return
	}

	for _, domain := range req.Domains {
		if err := ops.deleteFromDB(c.Request.Context(), domain); err != nil {
			c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: err.Error()})
			return
		}
		if pe != nil {
			ops.removeFromEngine(pe, domain)
		}
	}

	domains, err := ops.getFromDB(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, models.ErrorResponse{Error: err.Error()})
		return
	}
	c.JSON(http.StatusOK, models.DomainListResponse{Domains: domains, Count: len(domains)})
}

// GetAllowList godoc
// @Summary Get allow-listed destinations
// @Description Returns all destinations in the allow list
// @Tags policy
// @Produce json
// @Success 200 {object} models.DomainListResponse
// @Failure 503 {object} models.ErrorResponse
// @Security ApiKeyAuth
// @Router /policy/allow [get]
func (h *Handler) GetAllowList(c *gin.Context) {
	h.getDomainList(c, h.allowOps())
}

// AddAllowList godoc
// @Summary Add destinations to the allow list
// @Description Adds one or more destinations to the allow list
// @Tags policy
// @Accept json
// @Produce json
// @Param domains body models.DomainRequest true "Destinations to add"
// @Success 200 {object} models.DomainListResponse
// @Failure 400 {object} models.ErrorResponse
// @Failure 503 {object} models.ErrorResponse
// @Security ApiKeyAuth
// @Router /policy/allow [post]
func (h *Handler) AddAllowList(c *gin.Context) {
	h.addToDomainList(c, h.allowOps())
}

// RemoveAllowList godoc
// @Summary Remove destinations from the allow list
// @Description Removes one or more destinations from the allow list
// @Tags policy
// @Accept json
// @Produce json
// @Param domains body models.DomainDeleteRequest true "Destinations to remove"
// @Success 200 {object} models.DomainListResponse
// @Failure 400 {object} models.ErrorResponse
// @Security ApiKeyAuth
// @Router /policy/allow [delete]
func (h *Handler) RemoveAllowList(c *gin.Context) {
	h.removeFromDomainList(c, h.allowOps())
}

// GetDenyList godoc
// @Summary Get deny-listed destinations
// @Description Returns all destinations in the deny list
// @Tags policy
// @Produce json
// @Success 200 {object} models.DomainListResponse
// @Failure 503 {object} models.ErrorResponse
// @Security ApiKeyAuth
// @Router /policy/deny [get]
func (h *Handler) GetDenyList(c *gin.Context) {
	h.getDomainList(c, h.denyOps())
}

// AddDenyList godoc
// @Summary Add destinations to the deny list
// @Description Adds one or more destinations to the deny list
// @Tags policy
// @Accept json
// @Produce json
// @Param domains body models.DomainRequest true "Destinations to add"
// @Success 200 {object} models.DomainListResponse
// @Failure 400 {object} models.ErrorResponse
// @Failure 503 {object} models.ErrorResponse
// @Security ApiKeyAuth
// @Router /policy/deny [post]
func (h *Handler) AddDenyList(c *gin.Context) {
	h.addToDomainList(c, h.denyOps())
}

// RemoveDenyList godoc
// @Summary Remove destinations from the deny list
// @Description Removes one or more destinations from the deny list
// @Tags policy
// @Accept json
// @Produce json
// @Param domains body models.DomainDeleteRequest true "Destinations to remove"
// @Success 200 {object} models.DomainListResponse
// @Failure 400 {object} models.ErrorResponse
// @Security ApiKeyAuth
// @Router /policy/deny [delete]
func (h *Handler) RemoveDenyList(c *gin.Context) {
	h.removeFromDomainList(c, h.denyOps())
}

// PolicyStats godoc
// @Summary Get destination policy statistics
// @Description Returns detailed policy evaluation statistics
// @Tags policy
// @Produce json
// @Success 200 {object} models.FilteringStatsResponse
// @Failure 503 {object} models.ErrorResponse
// @Security ApiKeyAuth
// @Router /policy/stats [get]
func (h *Handler) PolicyStats(c *gin.Context) {
	h.mu.RLock()
	pe := h.policyEngine
	h.mu.RUnlock()

	if pe == nil {
		c.JSON(http.StatusServiceUnavailable, models.ErrorResponse{Error: "policy engine not enabled"})
		return
	}

	stats := pe.Stats()
	c.JSON(http.StatusOK, models.FilteringStatsResponse{
		Enabled:        stats.Enabled,
		QueriesTotal:   stats.QueriesTotal,
		QueriesBlocked: stats.QueriesBlocked,
		QueriesAllowed: stats.QueriesAllowed,
		WhitelistSize:  stats.WhitelistSize,
		BlacklistSize:  stats.BlacklistSize,
	})
}

// GetDenyLists lists all configured remote deny-list sources.
// @Summary Get deny lists
// @Description Returns all configured remote deny-list sources
// @Tags policy
// @Produce json
// @Success 200 {object} models.DenyListsResponse
// @Failure 503 {object} models.ErrorResponse
// @Security ApiKeyAuth
// @Router /policy/deny-lists [get]
func (h *Handler) GetDenyLists(c *gin.Context) {
	if h.db == nil {
		c.JSON(http.StatusServiceUnavailable, models.ErrorResponse{Error: "database not available"})
		return
	}

	lists, err := h.db.GetDenyLists(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, models.ErrorResponse{Error: err.Error()})
		return
	}

	resp := models.DenyListsResponse{DenyLists: make([]models.DenyListEntry, 0, len(lists)), Count: len(lists)}
	for _, l := range lists {
		resp.DenyLists = append(resp.DenyLists, models.DenyListEntry{
			Name:        l.Name,
			URL:         l.URL,
			Format:      l.Format,
			Enabled:     l.Enabled,
			LastFetched: l.LastFetched,
		})
	}

	c.JSON(http.StatusOK, resp)
}

// SetDenyListEnabled godoc
// @Summary Enable or disable a deny-list source
// @Description Toggles a specific deny-list source on or off (takes effect after restart until hot-reload is implemented)
// @Tags policy
// @Accept json
// @Produce json
// @Param name path string true "Deny-list name"
// @Param enabled body models.FilteringEnabledRequest true "Enable state"
// @Success 200 {object} models.StatusResponse
// @Failure 400 {object} models.ErrorResponse
// @Failure 503 {object} models.ErrorResponse
// @Security ApiKeyAuth
// @Router /policy/deny-lists/{name}/enabled [put]
func (h *Handler) SetDenyListEnabled(c *gin.Context) {
	if h.db == nil {
		c.JSON(http.StatusServiceUnavailable, models.ErrorResponse{Error: "database not available"})
		return
	}

	name := c.Param("name")
	if name == "" {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "missing deny-list name"})
		return
	}

	var req models.FilteringEnabledRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: err.Error()})
		return
	}

	if err := h.db.EnableDenyList(c.Request.Context(), name, req.Enabled); err != nil {
		c.JSON(http.StatusServiceUnavailable, models.ErrorResponse{Error: err.Error()})
		return
	}

	if h.logger != nil {
		h.logger.Info("deny-list enabled state changed", "name", name, "enabled", req.Enabled)
	}

	c.JSON(http.StatusOK, models.StatusResponse{Status: "ok"})
}

// RefreshDenyList godoc
// @Summary Refresh a deny-list source
// @Description Marks a deny-list source as refreshed (updates last_fetched); engine reload pending future hot-reload
// @Tags policy
// @Produce json
// @Param name path string true "Deny-list name"
// @Success 200 {object} models.StatusResponse
// @Failure 400 {object} models.ErrorResponse
// @Failure 503 {object} models.ErrorResponse
// @Security ApiKeyAuth
// @Router /policy/deny-lists/{name}/refresh [post]
func (h *Handler) RefreshDenyList(c *gin.Context) {
	if h.db == nil {
		c.JSON(http.StatusServiceUnavailable, models.ErrorResponse{Error: "database not available"})
		return
	}

	name := c.Param("name")
	if name == "" {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "missing deny-list name"})
		return
	}

	if err := h.db.UpdateDenyListFetchTime(c.Request.Context(), name); err != nil {
		c.JSON(http.StatusServiceUnavailable, models.ErrorResponse{Error: err.Error()})
		return
	}

	if h.logger != nil {
		h.logger.Info("deny-list refreshed", "name", name)
	}

	c.JSON(http.StatusOK, models.StatusResponse{Status: "ok"})
}

// SetPolicyEnabled godoc
// @Summary Enable or disable destination policy enforcement
// @Description Toggles the policy engine on or off
// @Tags policy
// @Accept json
// @Produce json
// @Param enabled body models.FilteringEnabledRequest true "Enable state"
// @Success 200 {object} models.StatusResponse
// @Failure 400 {object} models.ErrorResponse
// @Failure 503 {object} models.ErrorResponse
// @Security ApiKeyAuth
// @Router /policy/enabled [put]
func (h *Handler) SetPolicyEnabled(c *gin.Context) {
	h.mu.RLock()
	pe := h.policyEngine
	h.mu.RUnlock()

	if pe == nil {
		c.JSON(http.StatusServiceUnavailable, models.ErrorResponse{Error: "policy engine not available"})
		return
	}

	var req models.FilteringEnabledRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: err.Error()})
		return
	}

	// Persist to database if available
	if h.db != nil {
		if err := h.db.SetPolicyEnabled(c.Request.Context(), req.Enabled); err != nil {
			c.JSON(
				http.StatusServiceUnavailable,
				models.ErrorResponse{Error: "failed to persist setting: " + err.Error()},
			)
			return
		}
	}

	pe.SetEnabled(req.Enabled)

	if h.logger != nil {
		h.logger.Info("policy enabled state changed", "enabled", req.Enabled)
	}

	c.JSON(http.StatusOK, models.StatusResponse{Status: "ok"})
}

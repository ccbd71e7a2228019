package handlers_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/matrix-construct/construct-sub003/internal/admin/handlers"
	"github.com/matrix-construct/construct-sub003/internal/admin/models"
	"github.com/matrix-construct/construct-sub003/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetConfig(t *testing.T) {
	cfg := &config.Config{
		Broker: config.BrokerConfig{
			EnableIPv6: true,
		},
		Resolver: config.ResolverConfig{
			Servers: []string{"8.8.8.8"},
		},
		Admin: config.AdminConfig{
			Enabled: true,
			Host:    "127.0.0.1",
			Port:    8080,
		},
	}
	h := handlers.New(cfg, nil)
	r := setupTestRouter(h)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/config", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	var resp models.ConfigResponse
	err := json.Unmarshal(w.Body.Bytes(), &resp)
	require.NoError(t, err)
	assert.True(t, resp.Broker.EnableIPv6)
	assert.Equal(t, []string{"8.8.8.8"}, resp.Resolver.Servers)
	assert.Equal(t, 8080, resp.Admin.Port)
}

func TestGetConfig_NilConfig(t *testing.T) {
	h := handlers.New(nil, nil)
	r := setupTestRouter(h)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/config", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestPutConfig_NotImplemented(t *testing.T) {
	cfg := &config.Config{}
	h := handlers.New(cfg, nil)
	r := setupTestRouter(h)

	req := httptest.NewRequest(http.MethodPut, "/api/v1/config", bytes.NewReader([]byte("{}")))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotImplemented, w.Code)
}

func TestReloadConfig_NotImplemented(t *testing.T) {
	cfg := &config.Config{}
	h := handlers.New(cfg, nil)
	r := setupTestRouter(h)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/config/reload", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotImplemented, w.Code)
}

package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandleHealthNoDatabases(t *testing.T) {
	h := NewSystemHandlers(zerolog.Nop(), nil, nil)

	rec := httptest.NewRecorder()
	h.HandleHealth(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, rec.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
	assert.NotEmpty(t, body["uptime"])
}

func TestHandleSystemStatus(t *testing.T) {
	h := NewSystemHandlers(zerolog.Nop(), nil, nil)

	rec := httptest.NewRecorder()
	h.HandleSystemStatus(rec, httptest.NewRequest(http.MethodGet, "/api/system/status", nil))

	assert.Equal(t, http.StatusOK, rec.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Contains(t, body, "cpuPercent")
	assert.Contains(t, body, "memPercent")
}

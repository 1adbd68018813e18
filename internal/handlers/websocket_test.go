package handlers

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/ternarybob/darkwatch/internal/collectors"
	"github.com/ternarybob/darkwatch/internal/common"
	"github.com/ternarybob/darkwatch/internal/models"
	"github.com/ternarybob/darkwatch/internal/orchestrator"
)

func newTestHandler(t *testing.T, wsCfg *common.WebSocketConfig) *WebSocketHandler {
	t.Helper()
	cfg := common.NewDefaultConfig()
	registry := collectors.NewRegistry(common.GetLogger())
	orch := orchestrator.New(cfg, registry, nil, common.GetLogger())
	return NewWebSocketHandler(orch, wsCfg, common.GetLogger())
}

func TestShouldSend_Whitelist(t *testing.T) {
	h := newTestHandler(t, &common.WebSocketConfig{
		AllowedEvents: []string{"finding"},
	})

	assert.True(t, h.shouldSend(models.ObserverEvent{Type: models.ObserverFinding}))
	assert.False(t, h.shouldSend(models.ObserverEvent{Type: models.ObserverProgress}),
		"progress is not whitelisted")

	// Terminal events bypass the whitelist
	assert.True(t, h.shouldSend(models.ObserverEvent{Type: models.ObserverComplete}))
	assert.True(t, h.shouldSend(models.ObserverEvent{Type: models.ObserverError}))
	assert.True(t, h.shouldSend(models.ObserverEvent{Type: models.ObserverSuperseded}))
}

func TestShouldSend_EmptyWhitelistAllowsAll(t *testing.T) {
	h := newTestHandler(t, &common.WebSocketConfig{})

	assert.True(t, h.shouldSend(models.ObserverEvent{Type: models.ObserverProgress}))
	assert.True(t, h.shouldSend(models.ObserverEvent{Type: models.ObserverFinding}))
}

func TestShouldSend_Throttling(t *testing.T) {
	h := newTestHandler(t, &common.WebSocketConfig{
		ThrottleIntervals: map[string]string{"progress": "1h"},
	})

	ev := models.ObserverEvent{Type: models.ObserverProgress, Progress: 10, Timestamp: time.Now()}
	assert.True(t, h.shouldSend(ev), "first event passes the limiter")
	assert.False(t, h.shouldSend(ev), "second event inside the interval is dropped")

	// Findings have no configured throttle
	assert.True(t, h.shouldSend(models.ObserverEvent{Type: models.ObserverFinding}))
	assert.True(t, h.shouldSend(models.ObserverEvent{Type: models.ObserverFinding}))
}

func TestNewWebSocketHandler_InvalidThrottleIntervalIgnored(t *testing.T) {
	h := newTestHandler(t, &common.WebSocketConfig{
		ThrottleIntervals: map[string]string{"progress": "not-a-duration"},
	})

	assert.Empty(t, h.throttlers)
	assert.True(t, h.shouldSend(models.ObserverEvent{Type: models.ObserverProgress}))
}

package server

import (
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"

	"handoff/internal/events"
	"handoff/internal/hil"
)

// Health statuses reported by component probes.
const (
	HealthStatusReady    = "ready"
	HealthStatusNotReady = "not_ready"
)

// ComponentHealth is one probe's answer.
type ComponentHealth struct {
	Name    string         `json:"name"`
	Status  string         `json:"status"`
	Message string         `json:"message,omitempty"`
	Details map[string]any `json:"details,omitempty"`
}

// HealthProbe checks the health of one component.
type HealthProbe interface {
	Check() ComponentHealth
}

// HealthChecker aggregates health probes for all components.
type HealthChecker struct {
	mu     sync.RWMutex
	probes []HealthProbe
}

// NewHealthChecker creates an empty health checker.
func NewHealthChecker() *HealthChecker {
	return &HealthChecker{}
}

// RegisterProbe adds a health probe.
func (h *HealthChecker) RegisterProbe(probe HealthProbe) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.probes = append(h.probes, probe)
}

// CheckAll returns health status for all components.
func (h *HealthChecker) CheckAll() []ComponentHealth {
	h.mu.RLock()
	defer h.mu.RUnlock()

	results := make([]ComponentHealth, 0, len(h.probes))
	for _, probe := range h.probes {
		results = append(results, probe.Check())
	}
	return results
}

// Handler serves GET /health as a liveness probe for process supervisors.
func (h *HealthChecker) Handler(c *gin.Context) {
	components := h.CheckAll()

	status := "ok"
	code := http.StatusOK
	for _, comp := range components {
		if comp.Status != HealthStatusReady {
			status = "degraded"
			code = http.StatusServiceUnavailable
			break
		}
	}

	c.JSON(code, gin.H{"status": status, "components": components})
}

// RegistryProbe reports HIL registry health.
type RegistryProbe struct {
	registry *hil.Registry
}

// NewRegistryProbe creates a probe over the HIL registry.
func NewRegistryProbe(registry *hil.Registry) *RegistryProbe {
	return &RegistryProbe{registry: registry}
}

// Check implements HealthProbe.
func (p *RegistryProbe) Check() ComponentHealth {
	return ComponentHealth{
		Name:   "hil_registry",
		Status: HealthStatusReady,
		Details: map[string]any{
			"waiting_tasks": p.registry.WaitingCount(),
			"total_tasks":   len(p.registry.List()),
		},
	}
}

// EmitterProbe reports event emitter health.
type EmitterProbe struct {
	emitter *events.Emitter
}

// NewEmitterProbe creates a probe over the event emitter.
func NewEmitterProbe(emitter *events.Emitter) *EmitterProbe {
	return &EmitterProbe{emitter: emitter}
}

// Check implements HealthProbe.
func (p *EmitterProbe) Check() ComponentHealth {
	return ComponentHealth{
		Name:   "event_emitter",
		Status: HealthStatusReady,
		Details: map[string]any{
			"handlers": p.emitter.HandlerCount(),
		},
	}
}

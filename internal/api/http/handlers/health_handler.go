package handlers

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/helpdesk/internal/api/dto"
)

// HealthHandler responds to the health probe.
type HealthHandler struct {
	serviceName string
	version     string
}

// NewHealthHandler returns a new handler instance.
func NewHealthHandler(serviceName, version string) *HealthHandler {
	return &HealthHandler{serviceName: serviceName, version: version}
}

// Check GET /health.
func (h *HealthHandler) Check(c *fiber.Ctx) error {
	return c.JSON(dto.OKMessage(h.serviceName+" is running", fiber.Map{
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"version":   h.version,
	}))
}

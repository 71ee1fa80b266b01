// internal/handler/health_handler.go
package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"siggen-service/internal/config"
	"siggen-service/internal/model"
	"siggen-service/internal/service"
	"siggen-service/internal/utils"
)

const (
	statusHealthy  = "healthy"
	statusDegraded = "degraded"
)

// HealthHandler serves the probe endpoints
type HealthHandler struct {
	session   *service.Session
	config    *config.Config
	startedAt time.Time
	logger    *utils.ServiceLogger
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(session *service.Session, config *config.Config, logger *zap.Logger) *HealthHandler {
	return &HealthHandler{
		session:   session,
		config:    config,
		startedAt: time.Now(),
		logger:    utils.NewServiceLogger(logger, "health-handler"),
	}
}

// RegisterRoutes registers health check routes
func (h *HealthHandler) RegisterRoutes(router gin.IRoutes) {
	router.GET("/health", h.HealthCheck)
	router.GET("/ready", h.ReadinessCheck)
	router.GET("/live", h.LivenessCheck)
}

// HealthCheck reports the registry state and per-port stream counters
// @Summary Health check
// @Description Service health including the connection registry state
// @Tags Health
// @Produce json
// @Success 200 {object} HealthResponse "Service is healthy or degraded"
// @Router /health [get]
func (h *HealthHandler) HealthCheck(c *gin.Context) {
	device := h.deviceCheck(h.session.Status())

	c.JSON(http.StatusOK, &HealthResponse{
		Status:    device.Status,
		Timestamp: time.Now(),
		Service:   h.config.App.Name,
		Version:   h.config.App.Version,
		Uptime:    time.Since(h.startedAt).Round(time.Second).String(),
		Checks:    map[string]CheckResult{"device": device},
	})
}

// deviceCheck is degraded while no port is active; the simulated port counts as active
func (h *HealthHandler) deviceCheck(status model.RegistryStatus) CheckResult {
	check := CheckResult{
		Status:  statusHealthy,
		Message: "Device port open",
		Data: map[string]interface{}{
			"active":     status.Active,
			"selected":   status.Selected,
			"open_ports": status.OpenPorts,
			"simulated":  status.Simulated,
			"profile":    status.Profile,
			"streams":    h.session.PortStats(),
		},
	}

	switch {
	case status.Active == "":
		check.Status = statusDegraded
		check.Message = "No active port"
	case status.Simulated:
		check.Message = "Running against the simulated port"
	}
	return check
}

// ReadinessCheck answers 503 until a port is active
// @Summary Readiness check
// @Tags Health
// @Produce json
// @Success 200 {object} object{status=string,port=string} "Service is ready"
// @Failure 503 {object} object{status=string,reason=string} "Service is not ready"
// @Router /ready [get]
func (h *HealthHandler) ReadinessCheck(c *gin.Context) {
	active := h.session.Status().Active
	if active == "" {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status": "not ready",
			"reason": "no active port",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ready", "port": active})
}

// LivenessCheck always answers while the process serves HTTP
// @Summary Liveness check
// @Tags Health
// @Produce json
// @Success 200 {object} object{status=string,uptime=string} "Service is alive"
// @Router /live [get]
func (h *HealthHandler) LivenessCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "alive",
		"uptime": time.Since(h.startedAt).Round(time.Second).String(),
	})
}

// HealthResponse represents health check response
type HealthResponse struct {
	Status    string                 `json:"status"`
	Timestamp time.Time              `json:"timestamp"`
	Service   string                 `json:"service"`
	Version   string                 `json:"version"`
	Uptime    string                 `json:"uptime"`
	Checks    map[string]CheckResult `json:"checks"`
}

// CheckResult is one named health check
type CheckResult struct {
	Status  string                 `json:"status"`
	Message string                 `json:"message,omitempty"`
	Data    map[string]interface{} `json:"data,omitempty"`
}

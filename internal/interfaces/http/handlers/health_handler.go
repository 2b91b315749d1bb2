package handlers

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/turtacn/argproxy/internal/domain/repository"
	"github.com/turtacn/argproxy/pkg/logger"
)

// HealthHandler provides health check endpoints.
type HealthHandler struct {
	checkers map[string]repository.HealthChecker
	timeout  time.Duration
	log      logger.Logger
}

// NewHealthHandler creates a new HealthHandler. checkers maps a dependency name to its pinger.
func NewHealthHandler(checkers map[string]repository.HealthChecker, log logger.Logger) *HealthHandler {
	if log == nil {
		log = logger.NewNoopLogger()
	}
	return &HealthHandler{
		checkers: checkers,
		timeout:  3 * time.Second,
		log:      log.WithComponent("health_handler"),
	}
}

// HealthCheck godoc
// @Summary      Health Check
// @Description  Checks the health of the service and its dependencies.
// @Tags         health
// @Produce      json
// @Success      200  {object}  map[string]interface{}
// @Failure      503  {object}  map[string]interface{}
// @Router       /health [get]
func (h *HealthHandler) HealthCheck(c *gin.Context) {
	status := "healthy"
	checks := h.performChecks(c.Request.Context())

	httpStatus := http.StatusOK
	for _, checkStatus := range checks {
		if checkStatus != "ok" {
			status = "unhealthy"
			httpStatus = http.StatusServiceUnavailable
			break
		}
	}

	c.JSON(httpStatus, gin.H{
		"status":    status,
		"timestamp": time.Now().UTC(),
		"checks":    checks,
	})
}

// ReadinessCheck godoc
// @Summary      Readiness Check
// @Description  Checks if the service is ready to accept traffic.
// @Tags         health
// @Produce      json
// @Success      200  {object}  map[string]interface{}
// @Failure      503  {object}  map[string]interface{}
// @Router       /ready [get]
func (h *HealthHandler) ReadinessCheck(c *gin.Context) {
	h.HealthCheck(c) // readiness is the same as healthiness
}

// LivenessCheck reports that the process is up without touching dependencies.
func (h *HealthHandler) LivenessCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "alive"})
}

// Check pings every dependency and reports whether all of them answered.
func (h *HealthHandler) Check(ctx context.Context) bool {
	for _, status := range h.performChecks(ctx) {
		if status != "ok" {
			return false
		}
	}
	return true
}

func (h *HealthHandler) performChecks(ctx context.Context) map[string]string {
	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	var wg sync.WaitGroup
	checks := make(map[string]string, len(h.checkers))
	mu := &sync.Mutex{}

	wg.Add(len(h.checkers))
	for name, checker := range h.checkers {
		go func(name string, checker repository.HealthChecker) {
			defer wg.Done()
			status := "ok"
			if err := checker.Ping(ctx); err != nil {
				h.log.Warn(ctx, "dependency health check failed", logger.String("dependency", name), logger.Err(err))
				status = "error: " + err.Error()
			}
			mu.Lock()
			checks[name] = status
			mu.Unlock()
		}(name, checker)
	}
	wg.Wait()
	return checks
}

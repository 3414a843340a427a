package handlers

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/carbonaware/faas-scheduler/internal/dispatch"
)

// DispatcherHandler serves the dispatcher service endpoints.
type DispatcherHandler struct {
	service *dispatch.Service
	logger  *slog.Logger
	config  *Config
}

// NewDispatcherHandler creates the dispatcher HTTP handler.
func NewDispatcherHandler(s *dispatch.Service, logger *slog.Logger, config *Config) *DispatcherHandler {
	return &DispatcherHandler{service: s, logger: logger, config: config}
}

// RegisterDispatcherRoutes wires the dispatcher endpoints onto the router.
func RegisterDispatcherRoutes(r *gin.Engine, h *DispatcherHandler) {
	r.POST("/dispatch", h.HandleDispatch)
	r.GET("/health", h.HandleHealth)
}

// HandleDispatch selects the best feasible slot for the event and enqueues
// the deferred invocation.
func (h *DispatcherHandler) HandleDispatch(c *gin.Context) {
	var event dispatch.Event
	if err := c.ShouldBindJSON(&event); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"status":  "error",
			"message": "invalid JSON body: " + err.Error(),
		})
		return
	}

	response, schedErr := h.service.Dispatch(c.Request.Context(), event)
	if schedErr != nil {
		respondError(c, h.logger, schedErr)
		return
	}

	c.JSON(http.StatusOK, response)
}

// HandleHealth reports dispatcher readiness.
func (h *DispatcherHandler) HandleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":         "healthy",
		"service":        h.config.ServiceName,
		"version":        h.config.Version,
		"timestamp":      time.Now().UTC(),
		"store_backend":  h.config.StoreBackend,
		"bucket":         h.config.BucketName,
		"has_task_queue": h.config.TaskQueueSet,
	})
}

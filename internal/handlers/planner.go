package handlers

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/carbonaware/faas-scheduler/internal/planner"
)

// PlannerHandler serves the planner service endpoints.
type PlannerHandler struct {
	planner *planner.Planner
	logger  *slog.Logger
	config  *Config
}

// NewPlannerHandler creates the planner HTTP handler.
func NewPlannerHandler(p *planner.Planner, logger *slog.Logger, config *Config) *PlannerHandler {
	return &PlannerHandler{planner: p, logger: logger, config: config}
}

// RegisterPlannerRoutes wires the planner endpoints onto the router.
func RegisterPlannerRoutes(r *gin.Engine, h *PlannerHandler) {
	r.POST("/run", h.HandleRun)
	r.GET("/run", h.HandleRun)
	r.GET("/health", h.HandleHealth)
	r.POST("/submit", h.HandleSubmit)
}

// HandleRun triggers one planning pass and reports per-function outcomes.
func (h *PlannerHandler) HandleRun(c *gin.Context) {
	h.logger.Info("planning pass requested", "remote", c.ClientIP())

	result, err := h.planner.PlanAll(c.Request.Context())
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":            "success",
		"message":           "carbon-aware schedules generated and functions deployed",
		"forecast_location": result.ForecastLocation,
		"functions":         result.Functions,
	})
}

// HealthResponse is the planner's readiness payload.
type HealthResponse struct {
	Status           string    `json:"status"`
	Service          string    `json:"service"`
	Version          string    `json:"version"`
	Timestamp        time.Time `json:"timestamp"`
	StoreBackend     string    `json:"store_backend"`
	Bucket           string    `json:"bucket"`
	ForecastTokenSet bool      `json:"has_emaps_token"`
	LLMKeySet        bool      `json:"has_llm_key"`
	DeployerURL      string    `json:"deployer_url"`
}

// HandleHealth reports readiness and a configuration summary.
func (h *PlannerHandler) HandleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, HealthResponse{
		Status:           "healthy",
		Service:          h.config.ServiceName,
		Version:          h.config.Version,
		Timestamp:        time.Now().UTC(),
		StoreBackend:     h.config.StoreBackend,
		Bucket:           h.config.BucketName,
		ForecastTokenSet: h.config.ForecastTokenSet,
		LLMKeySet:        h.config.LLMKeySet,
		DeployerURL:      h.config.DeployerURL,
	})
}

// HandleSubmit accepts one-off code, plans it, and deploys it to the
// top-priority region.
func (h *PlannerHandler) HandleSubmit(c *gin.Context) {
	var req planner.SubmitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"status":  "error",
			"message": "invalid JSON body: " + err.Error(),
		})
		return
	}

	result, schedErr := h.planner.Submit(c.Request.Context(), req)
	if schedErr != nil {
		respondError(c, h.logger, schedErr)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":                "success",
		"submission_id":         result.SubmissionID,
		"function_name":         result.FunctionName,
		"deployment":            result.Deployment,
		"schedule":              gin.H{"total_recommendations": result.TotalSlots, "top_5": result.Top5},
		"optimal_execution":     result.OptimalExecution,
		"dispatch_instructions": gin.H{"function_name": result.FunctionName, "deadline": "ISO-8601 UTC deadline, or delay=\"false\" for immediate execution"},
	})
}

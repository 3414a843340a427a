// Package handlers provides the HTTP surface of the planner and dispatcher
// services. Handlers are dependency-injected and contain no business logic
// beyond request decoding and error mapping.
package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/carbonaware/faas-scheduler/internal/types"
)

// Config holds service identity exposed by health endpoints.
type Config struct {
	Version     string
	ServiceName string
	// Presence flags reported by /health; secrets themselves stay out of
	// responses.
	ForecastTokenSet bool
	LLMKeySet        bool
	StoreBackend     string
	BucketName       string
	DeployerURL      string
	TaskQueueSet     bool
}

// respondError maps a SchedulerError (or any error) onto the wire shape.
func respondError(c *gin.Context, logger *slog.Logger, err error) {
	var schedErr *types.SchedulerError
	if !errors.As(err, &schedErr) {
		schedErr = types.NewError(types.ErrorCodeInternal, err.Error())
	}

	status := schedErr.HTTPStatus
	if status == 0 {
		status = http.StatusInternalServerError
	}

	logger.Error("request failed",
		"path", c.FullPath(), "code", schedErr.Code, "error", schedErr.Error())
	c.JSON(status, types.NewErrorResponse(schedErr))
}

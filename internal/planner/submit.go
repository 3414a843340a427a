package planner

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/carbonaware/faas-scheduler/internal/deploy"
	"github.com/carbonaware/faas-scheduler/internal/llm"
	"github.com/carbonaware/faas-scheduler/internal/scheduling"
	"github.com/carbonaware/faas-scheduler/internal/selection"
	"github.com/carbonaware/faas-scheduler/internal/storage"
	"github.com/carbonaware/faas-scheduler/internal/types"
)

// SubmitRequest is a one-off function submission.
type SubmitRequest struct {
	Code           string `json:"code"`
	Deadline       string `json:"deadline"`
	Requirements   string `json:"requirements,omitempty"`
	Description    string `json:"description,omitempty"`
	MemoryMB       int    `json:"memory_mb,omitempty"`
	VCPUs          *int   `json:"vcpus,omitempty"`
	GPURequired    bool   `json:"gpu_required,omitempty"`
	TimeoutSeconds int    `json:"timeout_seconds,omitempty"`
	Priority       string `json:"priority,omitempty"`
}

// OptimalExecution summarizes the best slot of a submission's schedule.
type OptimalExecution struct {
	Datetime        string `json:"datetime"`
	Region          string `json:"region"`
	CarbonIntensity int    `json:"carbon_intensity"`
}

// SubmitResult is the response to a one-off submission.
type SubmitResult struct {
	SubmissionID     string                      `json:"submission_id"`
	FunctionName     string                      `json:"function_name"`
	Deployment       deploy.Outcome              `json:"deployment"`
	Top5             []scheduling.Recommendation `json:"top_5_recommendations"`
	TotalSlots       int                         `json:"total_recommendations"`
	OptimalExecution OptimalExecution            `json:"optimal_execution"`
}

// submissionRecord is the persisted submission document.
type submissionRecord struct {
	SubmissionID  string                      `json:"submission_id"`
	FunctionName  string                      `json:"function_name"`
	Deadline      string                      `json:"deadline"`
	SubmittedAt   string                      `json:"submitted_at"`
	OptimalRegion string                      `json:"optimal_region"`
	FunctionURL   string                      `json:"function_url"`
	Schedule      *scheduling.Schedule        `json:"schedule"`
	Metadata      scheduling.FunctionMetadata `json:"metadata"`
}

// Submit runs a one-function plan for ad-hoc code, deploys it to the
// top-priority region, and persists a submission record.
func (p *Planner) Submit(ctx context.Context, req SubmitRequest) (*SubmitResult, *types.SchedulerError) {
	if req.Code == "" {
		return nil, types.NewDispatchError("missing 'code' field")
	}
	if req.Deadline == "" {
		return nil, types.NewDispatchError("missing 'deadline' field")
	}

	submissionID := uuid.NewString()
	functionName := "user-func-" + submissionID[:8]

	description := req.Description
	if description == "" {
		description = "User-submitted function"
	}
	priority := scheduling.Priority(req.Priority)
	if priority == "" {
		priority = scheduling.PriorityBalanced
	}
	if !priority.Valid() {
		return nil, types.NewDispatchError(fmt.Sprintf("invalid 'priority' %q", req.Priority))
	}

	meta := scheduling.ApplyDefaults(scheduling.FunctionMetadata{
		FunctionID:           functionName,
		Description:          description,
		MemoryMB:             req.MemoryMB,
		VCPUs:                req.VCPUs,
		GPURequired:          req.GPURequired,
		DataInputGB:          0.001,
		DataOutputGB:         0.001,
		Priority:             priority,
		Code:                 req.Code,
		Requirements:         req.Requirements,
		TimeoutSeconds:       req.TimeoutSeconds,
		AllowScheduleCaching: false,
	})

	p.logger.Info("function submission received",
		"submission_id", submissionID, "function", functionName,
		"deadline", req.Deadline, "priority", priority)

	forecasts, _, err := p.fetchForecasts(ctx, selection.ApplyRegionFilters(&meta, p.cfg))
	if err != nil {
		if schedErr, ok := err.(*types.SchedulerError); ok {
			return nil, schedErr
		}
		return nil, types.NewForecastError("forecast fetch failed", err)
	}

	candidates := selection.FilterForecasts(forecasts, meta.AllowedRegions)
	metrics := selection.ComputeRegionMetrics(candidates, &meta, p.cfg)

	regionsUsed := make([]string, 0, len(candidates))
	for code := range candidates {
		regionsUsed = append(regionsUsed, code)
	}
	sort.Strings(regionsUsed)

	recommendations, err := llm.RankSchedule(ctx, p.generator, &meta, candidates, metrics, p.cfg)
	if err != nil {
		return nil, types.NewRankingError(functionName, err.Error(), err)
	}

	now := p.now().UTC().Format(time.RFC3339)
	schedule := &scheduling.Schedule{
		Recommendations: recommendations,
		Metadata: scheduling.ScheduleMetadata{
			GeneratedAt:      now,
			CreatedAt:        now,
			MetadataHash:     scheduling.ComputeMetadataHash(meta),
			FunctionMetadata: meta,
			RegionsUsed:      regionsUsed,
		},
	}

	best, _ := schedule.Best()
	p.logger.Info("optimal region selected",
		"function", functionName, "region", best.Region, "carbon_intensity", best.CarbonIntensity)

	timeoutSeconds := req.TimeoutSeconds
	if timeoutSeconds == 0 {
		timeoutSeconds = 60
	}
	deployResult, err := p.deployer.DeployFunction(ctx, deploy.Request{
		Name:           functionName,
		Code:           req.Code,
		Region:         best.Region,
		Runtime:        "python312",
		MemoryMB:       meta.MemoryMB,
		CPU:            strconv.Itoa(meta.ResolveVCPUs(p.cfg.AgentDefaults)),
		TimeoutSeconds: timeoutSeconds,
		EntryPoint:     "main",
		Requirements:   req.Requirements,
	})
	if err != nil {
		return nil, types.NewDeployError(functionName, err.Error())
	}
	if !deployResult.Success {
		return nil, types.NewDeployError(functionName, deployResult.Error)
	}

	schedule.Deployment = &scheduling.Deployment{
		FunctionURL: deployResult.FunctionURL,
		Region:      best.Region,
		DeployedAt:  now,
	}
	schedule.InjectFunctionURL(deployResult.FunctionURL)

	if _, err := p.store.Write(ctx, storage.ScheduleKey(functionName), schedule); err != nil {
		return nil, types.NewPersistenceError(storage.ScheduleKey(functionName), err)
	}

	record := submissionRecord{
		SubmissionID:  submissionID,
		FunctionName:  functionName,
		Deadline:      req.Deadline,
		SubmittedAt:   now,
		OptimalRegion: best.Region,
		FunctionURL:   deployResult.FunctionURL,
		Schedule:      schedule,
		Metadata:      meta,
	}
	if _, err := p.store.Write(ctx, storage.SubmissionKey(submissionID), record); err != nil {
		return nil, types.NewPersistenceError(storage.SubmissionKey(submissionID), err)
	}

	return &SubmitResult{
		SubmissionID: submissionID,
		FunctionName: functionName,
		Deployment: deploy.Outcome{
			Deployed:    true,
			Reason:      deploy.ReasonNewFunction,
			FunctionURL: deployResult.FunctionURL,
			Region:      best.Region,
		},
		Top5:       schedule.TopN(5),
		TotalSlots: len(schedule.Recommendations),
		OptimalExecution: OptimalExecution{
			Datetime:        best.Datetime,
			Region:          best.Region,
			CarbonIntensity: best.CarbonIntensity,
		},
	}, nil
}

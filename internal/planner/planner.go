// Package planner drives one planning pass per function: cache check,
// forecast fetch, candidate selection, LLM ranking, persistence, and the
// deployment trigger. The planner is single-threaded per run; functions are
// processed sequentially and the operator serializes runs.
package planner

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/carbonaware/faas-scheduler/internal/config"
	"github.com/carbonaware/faas-scheduler/internal/deploy"
	"github.com/carbonaware/faas-scheduler/internal/forecast"
	"github.com/carbonaware/faas-scheduler/internal/llm"
	"github.com/carbonaware/faas-scheduler/internal/scheduling"
	"github.com/carbonaware/faas-scheduler/internal/selection"
	"github.com/carbonaware/faas-scheduler/internal/storage"
	"github.com/carbonaware/faas-scheduler/internal/types"
)

// ForecastService fetches per-region carbon forecasts.
type ForecastService interface {
	FetchRegions(ctx context.Context, regions []forecast.RegionZone) (map[string]forecast.RegionForecast, []string, error)
}

// FunctionResult is the per-function outcome surfaced by /run.
type FunctionResult struct {
	Status               string                      `json:"status"`
	Message              string                      `json:"message,omitempty"`
	ScheduleLocation     string                      `json:"schedule_location,omitempty"`
	Top5                 []scheduling.Recommendation `json:"top_5_recommendations,omitempty"`
	TotalRecommendations int                         `json:"total_recommendations,omitempty"`
	Deployment           *deploy.Outcome             `json:"deployment,omitempty"`
}

// RunResult is the outcome of one full planning pass.
type RunResult struct {
	ForecastLocation string                    `json:"forecast_location,omitempty"`
	Functions        map[string]FunctionResult `json:"functions"`
}

// Planner orchestrates planning passes.
type Planner struct {
	store      storage.Store
	forecaster ForecastService
	generator  llm.Generator
	deployer   deploy.Deployer
	cfg        *scheduling.StaticConfig
	logger     *slog.Logger
	now        func() time.Time
}

// New creates a planner over an eagerly loaded static configuration.
func New(
	store storage.Store,
	forecaster ForecastService,
	generator llm.Generator,
	deployer deploy.Deployer,
	cfg *scheduling.StaticConfig,
	logger *slog.Logger,
) *Planner {
	return &Planner{
		store:      store,
		forecaster: forecaster,
		generator:  generator,
		deployer:   deployer,
		cfg:        cfg,
		logger:     logger,
		now:        time.Now,
	}
}

// LoadStaticConfig reads and validates the static configuration document.
// Called once at startup; the result is shared read-only.
func LoadStaticConfig(ctx context.Context, store storage.Store) (*scheduling.StaticConfig, error) {
	var cfg scheduling.StaticConfig
	if err := store.Read(ctx, storage.KeyStaticConfig, &cfg); err != nil {
		return nil, types.NewConfigError("could not load static_config", err)
	}
	if len(cfg.Regions) == 0 {
		return nil, types.NewConfigError("static_config has no regions", nil)
	}
	return &cfg, nil
}

// resolvedFunction carries one function through the pass.
type resolvedFunction struct {
	name     string
	meta     scheduling.FunctionMetadata
	hash     string
	cached   *scheduling.Schedule
	schedule *scheduling.Schedule
	location string
	failure  *types.SchedulerError
}

// PlanAll runs one planning pass for every function in function_metadata.
func (p *Planner) PlanAll(ctx context.Context) (*RunResult, error) {
	var metadataFile scheduling.MetadataFile
	if err := p.store.Read(ctx, storage.KeyFunctionMetadata, &metadataFile); err != nil {
		return nil, types.NewMetadataError("could not load function_metadata", err)
	}
	if len(metadataFile.Functions) == 0 {
		return nil, types.NewMetadataError("no functions found in function_metadata", nil)
	}

	p.logger.Info("planning pass started", "functions", len(metadataFile.Functions))

	functions := p.resolveMetadata(ctx, metadataFile)

	// Cache check happens before any forecast fetch so a fully cached pass
	// costs no external calls.
	needFetch := false
	for _, fn := range functions {
		if fn.failure != nil {
			continue
		}
		fn.cached = p.validCachedSchedule(ctx, fn)
		if fn.cached == nil {
			needFetch = true
		}
	}

	var forecastLocation string
	var forecasts map[string]forecast.RegionForecast

	if needFetch {
		union := p.assembleRegions(functions)
		var err error
		forecasts, forecastLocation, err = p.fetchForecasts(ctx, union)
		if err != nil {
			return nil, err
		}
	} else {
		p.logger.Info("all functions have valid cached schedules, skipping forecast fetch")
	}

	for _, fn := range functions {
		if fn.failure != nil {
			continue
		}
		if fn.cached != nil {
			p.refreshCached(ctx, fn)
		} else {
			p.generateSchedule(ctx, fn, forecasts)
		}
	}

	outcomes := p.deployAll(ctx, functions)

	result := &RunResult{
		ForecastLocation: forecastLocation,
		Functions:        make(map[string]FunctionResult, len(functions)),
	}
	for _, fn := range functions {
		result.Functions[fn.name] = p.functionResult(fn, outcomes)
	}

	p.logger.Info("planning pass complete", "functions", len(functions))
	return result, nil
}

// resolveMetadata expands natural-language entries, applies defaults, and
// computes the metadata hash before any region filtering so the hash
// represents user intent.
func (p *Planner) resolveMetadata(ctx context.Context, file scheduling.MetadataFile) []*resolvedFunction {
	names := make([]string, 0, len(file.Functions))
	for name := range file.Functions {
		names = append(names, name)
	}
	sort.Strings(names)

	functions := make([]*resolvedFunction, 0, len(names))
	for _, name := range names {
		entry := file.Functions[name]
		fn := &resolvedFunction{name: name}

		if entry.IsNaturalLanguage() {
			p.logger.Info("extracting metadata from natural language", "function", name)
			meta, err := llm.ExtractMetadata(ctx, p.generator, entry.Description)
			if err != nil {
				p.logger.Error("metadata extraction failed", "function", name, "error", err)
				fn.failure = types.NewExtractionError(name, err)
				functions = append(functions, fn)
				continue
			}
			p.logger.Info("metadata extracted",
				"function", name, "confidence", meta.ConfidenceScore, "warnings", len(meta.Warnings))
			fn.meta = meta
		} else {
			fn.meta = *entry.Structured
		}

		fn.meta.FunctionID = name
		fn.meta = scheduling.ApplyDefaults(fn.meta)
		fn.hash = scheduling.ComputeMetadataHash(fn.meta)
		functions = append(functions, fn)
	}

	return functions
}

// validCachedSchedule returns the persisted schedule when it may be reused:
// caching allowed, hash unchanged, and not older than the forecast-age
// bound.
func (p *Planner) validCachedSchedule(ctx context.Context, fn *resolvedFunction) *scheduling.Schedule {
	if !fn.meta.AllowScheduleCaching {
		return nil
	}

	var cached scheduling.Schedule
	if err := p.store.Read(ctx, storage.ScheduleKey(fn.name), &cached); err != nil {
		if !storage.IsNotFound(err) {
			p.logger.Warn("could not read cached schedule", "function", fn.name, "error", err)
		}
		return nil
	}

	if cached.Metadata.MetadataHash != fn.hash {
		return nil
	}

	createdAt, err := time.Parse(time.RFC3339, cached.Metadata.CreatedAt)
	if err != nil {
		return nil
	}
	ageDays := int(p.now().Sub(createdAt).Hours() / 24)
	if ageDays > config.MaxForecastAgeDays {
		return nil
	}

	p.logger.Info("valid cached schedule found", "function", fn.name, "age_days", ageDays)
	return &cached
}

// assembleRegions applies the per-function region filters and returns the
// union of regions to fetch. The union never shrinks from the GPU filter;
// other functions may still need non-GPU regions.
func (p *Planner) assembleRegions(functions []*resolvedFunction) []string {
	unionSet := make(map[string]struct{})

	for _, fn := range functions {
		if fn.failure != nil || fn.cached != nil {
			continue
		}
		for _, code := range selection.ApplyRegionFilters(&fn.meta, p.cfg) {
			unionSet[code] = struct{}{}
		}
		p.logger.Info("region filters applied",
			"function", fn.name,
			"latency_important", fn.meta.LatencyImportant,
			"gpu_required", fn.meta.GPURequired,
			"allowed_regions", fn.meta.AllowedRegions)
	}

	union := make([]string, 0, len(unionSet))
	for code := range unionSet {
		union = append(union, code)
	}
	sort.Strings(union)
	return union
}

// fetchForecasts retrieves the 24-hour forecast for every region in the
// union (or all configured regions when no function constrains the set),
// persists the bundle, and tolerates per-region failures.
func (p *Planner) fetchForecasts(ctx context.Context, union []string) (map[string]forecast.RegionForecast, string, error) {
	var zones []forecast.RegionZone
	if len(union) > 0 {
		zones = selection.RegionZones(union, p.cfg)
	} else {
		zones = selection.AllRegionZones(p.cfg)
	}

	forecasts, failed, err := p.forecaster.FetchRegions(ctx, zones)
	if err != nil {
		return nil, "", types.NewForecastError("failed to fetch forecasts for all regions", err)
	}

	bundle := forecast.Bundle{
		Timestamp:     p.now().UTC().Format(time.RFC3339),
		Regions:       forecasts,
		FailedRegions: failed,
	}
	location, err := p.store.Write(ctx, storage.KeyCarbonForecasts, bundle)
	if err != nil {
		return nil, "", types.NewPersistenceError(storage.KeyCarbonForecasts, err)
	}

	return forecasts, location, nil
}

// refreshCached re-stamps a cached schedule's slots to today, preserving
// the hour of day and the ranking, and persists it.
func (p *Planner) refreshCached(ctx context.Context, fn *resolvedFunction) {
	schedule := fn.cached
	now := p.now().UTC()

	if err := schedule.RestampToDay(now); err != nil {
		fn.failure = types.NewRankingError(fn.name, "cached schedule has malformed slots", err)
		return
	}
	schedule.Metadata.GeneratedAt = now.Format(time.RFC3339)

	location, err := p.store.Write(ctx, storage.ScheduleKey(fn.name), schedule)
	if err != nil {
		fn.failure = types.NewPersistenceError(storage.ScheduleKey(fn.name), err)
		return
	}

	fn.schedule = schedule
	fn.location = location
	p.logger.Info("cached schedule refreshed", "function", fn.name, "slots", len(schedule.Recommendations))
}

// generateSchedule runs selection, ranking, and persistence for one
// function. On failure the previous schedule (if any) is left intact.
func (p *Planner) generateSchedule(ctx context.Context, fn *resolvedFunction, forecasts map[string]forecast.RegionForecast) {
	candidates := selection.FilterForecasts(forecasts, fn.meta.AllowedRegions)
	if len(candidates) == 0 {
		fn.failure = types.NewForecastError(
			fmt.Sprintf("no forecasts available for the allowed regions of %q", fn.name), nil)
		return
	}

	metrics := selection.ComputeRegionMetrics(candidates, &fn.meta, p.cfg)

	p.logger.Info("ranking schedule", "function", fn.name, "candidate_regions", len(candidates))
	recommendations, err := llm.RankSchedule(ctx, p.generator, &fn.meta, candidates, metrics, p.cfg)
	if err != nil {
		p.logger.Error("ranking failed, previous schedule left intact", "function", fn.name, "error", err)
		fn.failure = types.NewRankingError(fn.name, err.Error(), err)
		return
	}

	regionsUsed := make([]string, 0, len(candidates))
	for code := range candidates {
		regionsUsed = append(regionsUsed, code)
	}
	sort.Strings(regionsUsed)

	now := p.now().UTC().Format(time.RFC3339)
	schedule := &scheduling.Schedule{
		Recommendations: recommendations,
		Metadata: scheduling.ScheduleMetadata{
			GeneratedAt:      now,
			CreatedAt:        now,
			MetadataHash:     fn.hash,
			FunctionMetadata: fn.meta,
			RegionsUsed:      regionsUsed,
		},
	}

	location, err := p.store.Write(ctx, storage.ScheduleKey(fn.name), schedule)
	if err != nil {
		fn.failure = types.NewPersistenceError(storage.ScheduleKey(fn.name), err)
		return
	}

	fn.schedule = schedule
	fn.location = location
	p.logger.Info("schedule generated", "function", fn.name, "slots", len(recommendations))
}

// deployAll triggers deployment for every function with a schedule, cached
// and regenerated alike.
func (p *Planner) deployAll(ctx context.Context, functions []*resolvedFunction) map[string]deploy.Outcome {
	schedules := make(map[string]*scheduling.Schedule)
	metas := make(map[string]scheduling.FunctionMetadata)
	for _, fn := range functions {
		if fn.schedule == nil {
			continue
		}
		schedules[fn.name] = fn.schedule
		metas[fn.name] = fn.meta
	}
	if len(schedules) == 0 {
		return nil
	}

	orchestrator := deploy.NewOrchestrator(p.deployer, p.store, p.cfg, p.logger)
	return orchestrator.DeployAll(ctx, schedules, metas)
}

func (p *Planner) functionResult(fn *resolvedFunction, outcomes map[string]deploy.Outcome) FunctionResult {
	if fn.failure != nil {
		return FunctionResult{
			Status:  "error",
			Message: fn.failure.Error(),
		}
	}

	result := FunctionResult{
		Status:               "success",
		ScheduleLocation:     fn.location,
		Top5:                 fn.schedule.TopN(5),
		TotalRecommendations: len(fn.schedule.Recommendations),
	}
	if outcome, ok := outcomes[fn.name]; ok {
		result.Deployment = &outcome
	}
	return result
}

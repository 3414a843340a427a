package deploy

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	"github.com/carbonaware/faas-scheduler/internal/scheduling"
	"github.com/carbonaware/faas-scheduler/internal/storage"
)

// Deployment skip/redeploy reasons surfaced in the /run response.
const (
	ReasonNewFunction       = "new_function"
	ReasonCodeChanged       = "code_changed"
	ReasonRegionChanged     = "region_changed"
	ReasonNotActive         = "not_active"
	ReasonStatusCheckFailed = "status_check_failed"
	ReasonAlreadyDeployed   = "already_deployed"
	ReasonNoCode            = "no_code"
	ReasonNoRecommendations = "no_recommendations"
	ReasonDeploymentFailed  = "deployment_failed"
)

// defaultFunctionRuntime is the language runtime requested from the deploy
// contract for user-submitted code.
const defaultFunctionRuntime = "python312"

// Outcome records what happened to one function during a deployment pass.
type Outcome struct {
	Deployed    bool   `json:"deployed"`
	Reason      string `json:"reason"`
	FunctionURL string `json:"function_url,omitempty"`
	Region      string `json:"region,omitempty"`
	Error       string `json:"error,omitempty"`
}

// Orchestrator aligns deployed function instances with the top-ranked
// region of each schedule, minimizing redeploys.
type Orchestrator struct {
	deployer Deployer
	store    storage.Store
	cfg      *scheduling.StaticConfig
	logger   *slog.Logger
	now      func() time.Time
}

// NewOrchestrator creates a deployment orchestrator.
func NewOrchestrator(deployer Deployer, store storage.Store, cfg *scheduling.StaticConfig, logger *slog.Logger) *Orchestrator {
	return &Orchestrator{
		deployer: deployer,
		store:    store,
		cfg:      cfg,
		logger:   logger,
		now:      time.Now,
	}
}

// DeployAll processes every function with a successful schedule. The
// deployment state is loaded once, updated locally per function, and
// written back exactly once at the end of the pass.
func (o *Orchestrator) DeployAll(
	ctx context.Context,
	schedules map[string]*scheduling.Schedule,
	metas map[string]scheduling.FunctionMetadata,
) map[string]Outcome {
	state := o.loadState(ctx)
	outcomes := make(map[string]Outcome, len(schedules))

	for name, schedule := range schedules {
		meta := metas[name]
		outcomes[name] = o.deployOne(ctx, name, schedule, meta, state)
	}

	if _, err := o.store.Write(ctx, storage.KeyDeploymentState, state); err != nil {
		o.logger.Error("failed to persist deployment state", "error", err)
	}

	return outcomes
}

func (o *Orchestrator) loadState(ctx context.Context) scheduling.DeploymentState {
	state := scheduling.DeploymentState{}
	if err := o.store.Read(ctx, storage.KeyDeploymentState, &state); err != nil {
		if !storage.IsNotFound(err) {
			o.logger.Warn("could not load deployment state, starting fresh", "error", err)
		}
		state = scheduling.DeploymentState{}
	}
	return state
}

func (o *Orchestrator) deployOne(
	ctx context.Context,
	name string,
	schedule *scheduling.Schedule,
	meta scheduling.FunctionMetadata,
	state scheduling.DeploymentState,
) Outcome {
	if meta.Code == "" {
		o.logger.Info("skipping deployment, no code provided", "function", name)
		return Outcome{Deployed: false, Reason: ReasonNoCode}
	}

	best, ok := schedule.Best()
	if !ok {
		return Outcome{Deployed: false, Reason: ReasonNoRecommendations}
	}
	optimalRegion := best.Region
	codeHash := scheduling.ComputeCodeHash(meta.Code)

	existing, hasExisting := state[name]

	needsDeploy, reason := o.redeployDecision(ctx, name, codeHash, optimalRegion, existing, hasExisting)
	if !needsDeploy {
		// Already deployed and active; make sure the persisted schedule
		// still carries the URL in every slot.
		o.backfillURL(ctx, name, schedule, existing)
		return Outcome{
			Deployed:    false,
			Reason:      ReasonAlreadyDeployed,
			FunctionURL: existing.FunctionURL,
			Region:      existing.DeployedRegion,
		}
	}

	o.logger.Info("deploying function",
		"function", name, "region", optimalRegion, "reason", reason)

	timeoutSeconds := meta.TimeoutSeconds
	if timeoutSeconds == 0 {
		timeoutSeconds = 60
	}

	result, err := o.deployer.DeployFunction(ctx, Request{
		Name:           name,
		Code:           meta.Code,
		Region:         optimalRegion,
		Runtime:        defaultFunctionRuntime,
		MemoryMB:       meta.MemoryMB,
		CPU:            strconv.Itoa(meta.ResolveVCPUs(o.cfg.AgentDefaults)),
		TimeoutSeconds: timeoutSeconds,
		EntryPoint:     "main",
		Requirements:   meta.Requirements,
	})
	if err != nil {
		o.logger.Error("deployment request failed", "function", name, "error", err)
		return Outcome{Deployed: false, Reason: ReasonDeploymentFailed, Error: err.Error()}
	}
	if !result.Success {
		o.logger.Error("deployment rejected", "function", name, "error", result.Error)
		return Outcome{Deployed: false, Reason: ReasonDeploymentFailed, Error: result.Error}
	}

	deployedAt := o.now().UTC().Format(time.RFC3339)
	state[name] = scheduling.DeploymentRecord{
		CodeHash:       codeHash,
		DeployedRegion: optimalRegion,
		FunctionURL:    result.FunctionURL,
		DeployedAt:     deployedAt,
	}

	schedule.Deployment = &scheduling.Deployment{
		FunctionURL: result.FunctionURL,
		Region:      optimalRegion,
		DeployedAt:  deployedAt,
	}
	schedule.InjectFunctionURL(result.FunctionURL)
	if _, err := o.store.Write(ctx, storage.ScheduleKey(name), schedule); err != nil {
		o.logger.Error("failed to persist schedule with deployment info", "function", name, "error", err)
	}

	return Outcome{
		Deployed:    true,
		Reason:      reason,
		FunctionURL: result.FunctionURL,
		Region:      optimalRegion,
	}
}

// redeployDecision applies the state-comparison rules: deploy when there
// is no prior record, the code changed, the optimal region moved, or the
// remote service is no longer active.
func (o *Orchestrator) redeployDecision(
	ctx context.Context,
	name, codeHash, optimalRegion string,
	existing scheduling.DeploymentRecord,
	hasExisting bool,
) (bool, string) {
	switch {
	case !hasExisting || existing.CodeHash == "":
		return true, ReasonNewFunction
	case existing.CodeHash != codeHash:
		return true, ReasonCodeChanged
	case existing.DeployedRegion != optimalRegion:
		return true, ReasonRegionChanged
	}

	status, err := o.deployer.GetFunctionStatus(ctx, name, existing.DeployedRegion)
	if err != nil {
		o.logger.Warn("could not verify function status, redeploying",
			"function", name, "error", err)
		return true, ReasonStatusCheckFailed
	}
	if !status.Exists || status.Status != StatusActive {
		return true, ReasonNotActive
	}
	return false, ReasonAlreadyDeployed
}

// backfillURL ensures a skipped deployment still leaves function_url on the
// schedule and every recommendation slot.
func (o *Orchestrator) backfillURL(ctx context.Context, name string, schedule *scheduling.Schedule, existing scheduling.DeploymentRecord) {
	needsUpdate := schedule.Deployment == nil || schedule.Deployment.FunctionURL != existing.FunctionURL
	if !needsUpdate {
		for _, rec := range schedule.Recommendations {
			if rec.FunctionURL != existing.FunctionURL {
				needsUpdate = true
				break
			}
		}
	}
	if !needsUpdate {
		return
	}

	schedule.Deployment = &scheduling.Deployment{
		FunctionURL: existing.FunctionURL,
		Region:      existing.DeployedRegion,
		DeployedAt:  existing.DeployedAt,
	}
	schedule.InjectFunctionURL(existing.FunctionURL)

	if _, err := o.store.Write(ctx, storage.ScheduleKey(name), schedule); err != nil {
		o.logger.Error("failed to backfill schedule deployment info", "function", name, "error", err)
		return
	}
	o.logger.Info("schedule updated with deployment info", "function", name)
}

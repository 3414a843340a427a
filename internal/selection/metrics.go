package selection

import (
	"github.com/carbonaware/faas-scheduler/internal/energy"
	"github.com/carbonaware/faas-scheduler/internal/forecast"
	"github.com/carbonaware/faas-scheduler/internal/scheduling"
)

// RegionMetrics holds the per-execution and yearly figures of one candidate
// region for one function.
type RegionMetrics struct {
	AvgCarbonIntensity float64 `json:"avg_carbon_intensity"`

	TransferCostPerExecution float64 `json:"transfer_cost_per_execution"`
	TransferCostYearly       float64 `json:"transfer_cost_yearly"`

	ComputeCostPerExecution float64 `json:"compute_cost_per_execution"`
	ComputeCostYearly       float64 `json:"compute_cost_yearly"`

	EmissionsPerExecutionG float64 `json:"emissions_per_execution"`
	EmissionsYearlyKg      float64 `json:"emissions_yearly"`
}

// ComputeRegionMetrics produces the metric table consumed by the ranking
// prompt. Carbon intensity is averaged over the 24-hour forecast window;
// per-execution figures scale linearly to yearly projections.
func ComputeRegionMetrics(
	forecasts map[string]forecast.RegionForecast,
	meta *scheduling.FunctionMetadata,
	cfg *scheduling.StaticConfig,
) map[string]RegionMetrics {
	vcpus := meta.ResolveVCPUs(cfg.AgentDefaults)
	gpuCount := 0
	if meta.GPURequired {
		gpuCount = cfg.AgentDefaults.GPUCount
	}

	metrics := make(map[string]RegionMetrics, len(forecasts))

	for code, fc := range forecasts {
		region, ok := cfg.RegionInfo(code)
		if !ok {
			continue
		}

		avgIntensity := forecast.AverageIntensity(fc.Forecast)

		profile := energy.PerExecutionEnergy(energy.Input{
			VCPUs:        vcpus,
			MemoryMB:     float64(meta.MemoryMB),
			RuntimeMS:    meta.RuntimeMS,
			CPUUtil:      cfg.PowerConstants.CPUUtilization,
			DataInputGB:  meta.DataInputGB,
			DataOutputGB: meta.DataOutputGB,
			RequestCount: meta.InvocationsPerDay,
			GPURequired:  meta.GPURequired,
			GPUCount:     gpuCount,
			GPUType:      cfg.AgentDefaults.GPUType,
		}, cfg.PowerConstants)

		emissionsPerExec := energy.EmissionsGrams(profile.TotalKWh, avgIntensity)
		transferPerExec := energy.TransferCostUSD(region, code, meta.SourceLocation, meta.DataInputGB, meta.DataOutputGB)
		computePerExec := computeCostPerExecution(region, cfg, meta, vcpus, gpuCount)

		metrics[code] = RegionMetrics{
			AvgCarbonIntensity:       avgIntensity,
			TransferCostPerExecution: transferPerExec,
			TransferCostYearly:       energy.Yearly(transferPerExec, meta.InvocationsPerDay),
			ComputeCostPerExecution:  computePerExec,
			ComputeCostYearly:        energy.Yearly(computePerExec, meta.InvocationsPerDay),
			EmissionsPerExecutionG:   emissionsPerExec,
			EmissionsYearlyKg:        energy.Yearly(emissionsPerExec, meta.InvocationsPerDay) / 1000,
		}
	}

	return metrics
}

// computeCostPerExecution prices one invocation from the region's pricing
// tier: invocation fee plus vCPU-seconds, memory-GiB-seconds, and
// GPU-seconds when a GPU is attached.
func computeCostPerExecution(region scheduling.Region, cfg *scheduling.StaticConfig, meta *scheduling.FunctionMetadata, vcpus, gpuCount int) float64 {
	tier, ok := cfg.Pricing.Tiers[region.PricingTier]
	if !ok {
		return 0
	}

	runtimeSeconds := meta.RuntimeMS / 1000
	memoryGiB := float64(meta.MemoryMB) / 1024

	cost := tier.PerInvocationUSD
	cost += float64(vcpus) * runtimeSeconds * tier.VCPUSecondUSD
	cost += memoryGiB * runtimeSeconds * tier.MemoryGiBSecondUSD

	if gpuCount > 0 {
		cost += float64(gpuCount) * runtimeSeconds * cfg.Pricing.GPUSecondUSD[cfg.AgentDefaults.GPUType]
	}

	return cost
}

// Package energy implements the pure energy, emissions, and transfer-cost
// model. All functions are deterministic over their inputs; the planner
// feeds them forecast averages and the selection engine scales the results
// to yearly projections.
package energy

import (
	"github.com/carbonaware/faas-scheduler/internal/scheduling"
)

// Breakdown itemizes the power draw behind a compute-energy figure.
type Breakdown struct {
	CPUPowerW    float64 `json:"cpu_power_w"`
	MemoryPowerW float64 `json:"memory_power_w"`
	GPUPowerW    float64 `json:"gpu_power_w"`
}

// PerExecution is the energy profile of a single invocation.
type PerExecution struct {
	ComputeKWh float64   `json:"compute_kwh"`
	NetworkKWh float64   `json:"network_kwh"`
	TotalKWh   float64   `json:"total_kwh"`
	Breakdown  Breakdown `json:"breakdown"`
}

// Input carries the workload shape for one energy computation. CPUUtil is a
// measured utilization in [0,1] when available; planning passes the default
// assumption from the power constants.
type Input struct {
	VCPUs        int
	MemoryMB     float64
	RuntimeMS    float64
	CPUUtil      float64
	DataInputGB  float64
	DataOutputGB float64
	RequestCount int
	GPURequired  bool
	GPUCount     int
	GPUType      string
}

// assumed GPU utilization at planning time; no ground truth is available
// before the function has run.
const plannedGPUUtilization = 0.5

// PerExecutionEnergy computes the kWh consumed by one invocation.
//
// CPU power follows the CCF min/max model: each vCPU draws its idle wattage
// plus utilization times the idle-to-peak span. Memory power is
// allocation-based, not utilization-based: DRAM refresh draw is
// approximately independent of access rate. Network energy is amortized
// over the request count because transfers are batched per day, not per
// invocation.
func PerExecutionEnergy(in Input, pc scheduling.PowerConstants) PerExecution {
	cpuPowerW := float64(in.VCPUs) * (pc.CPUMinWattsPerVCPU + in.CPUUtil*(pc.CPUMaxWattsPerVCPU-pc.CPUMinWattsPerVCPU))
	memoryPowerW := (in.MemoryMB / 1024) * pc.MemoryWattsPerGiB

	gpuPowerW := 0.0
	if in.GPURequired && in.GPUCount > 0 {
		gpu := pc.GPUWatts[in.GPUType]
		gpuPowerW = float64(in.GPUCount) * (gpu.MinWatts + plannedGPUUtilization*(gpu.MaxWatts-gpu.MinWatts))
	}

	runtimeHours := (in.RuntimeMS / 1000) / 3600
	computeKWh := (cpuPowerW + memoryPowerW + gpuPowerW) * runtimeHours * pc.DatacenterPUE

	networkKWhTotal := (in.DataInputGB + in.DataOutputGB) * pc.NetworkKWhPerGB
	requestCount := in.RequestCount
	if requestCount < 1 {
		requestCount = 1
	}
	networkKWh := networkKWhTotal / float64(requestCount)

	return PerExecution{
		ComputeKWh: computeKWh,
		NetworkKWh: networkKWh,
		TotalKWh:   computeKWh + networkKWh,
		Breakdown: Breakdown{
			CPUPowerW:    cpuPowerW,
			MemoryPowerW: memoryPowerW,
			GPUPowerW:    gpuPowerW,
		},
	}
}

// EmissionsGrams converts an energy figure to grams of CO2 at the given
// grid carbon intensity (gCO2/kWh).
func EmissionsGrams(totalKWh, carbonIntensity float64) float64 {
	return totalKWh * carbonIntensity
}

// TransferCostUSD prices the data moved by one invocation into region.
// Executing where the data already lives costs nothing.
func TransferCostUSD(region scheduling.Region, regionCode, sourceLocation string, dataInputGB, dataOutputGB float64) float64 {
	if sourceLocation != "" && regionCode == sourceLocation {
		return 0
	}
	return (dataInputGB + dataOutputGB) * region.TransferCostPerGB
}

// Yearly scales a per-execution figure to a yearly projection. Scaling is
// linear and idempotent.
func Yearly(perExecution float64, invocationsPerDay int) float64 {
	return perExecution * float64(invocationsPerDay) * 365
}

package energy

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/carbonaware/faas-scheduler/internal/scheduling"
)

func testPowerConstants() scheduling.PowerConstants {
	return scheduling.PowerConstants{
		CPUMinWattsPerVCPU: 0.71,
		CPUMaxWattsPerVCPU: 4.26,
		CPUUtilization:     0.5,
		MemoryWattsPerGiB:  0.392,
		DatacenterPUE:      1.1,
		NetworkKWhPerGB:    0.001,
		GPUWatts: map[string]scheduling.GPUPower{
			"nvidia-l4": {MinWatts: 10, MaxWatts: 72},
		},
	}
}

func baseInput() Input {
	return Input{
		VCPUs:        1,
		MemoryMB:     512,
		RuntimeMS:    1000,
		CPUUtil:      0.5,
		DataInputGB:  1,
		DataOutputGB: 1,
		RequestCount: 10,
	}
}

func TestComputeEnergyMonotonicInRuntime(t *testing.T) {
	pc := testPowerConstants()
	short := PerExecutionEnergy(baseInput(), pc)

	longer := baseInput()
	longer.RuntimeMS = 5000
	assert.Greater(t, PerExecutionEnergy(longer, pc).ComputeKWh, short.ComputeKWh)
}

func TestComputeEnergyMonotonicInMemory(t *testing.T) {
	pc := testPowerConstants()
	small := PerExecutionEnergy(baseInput(), pc)

	big := baseInput()
	big.MemoryMB = 4096
	assert.Greater(t, PerExecutionEnergy(big, pc).ComputeKWh, small.ComputeKWh)
}

func TestNetworkEnergyMonotonicInDataVolume(t *testing.T) {
	pc := testPowerConstants()
	small := PerExecutionEnergy(baseInput(), pc)

	big := baseInput()
	big.DataInputGB = 10
	big.DataOutputGB = 10
	assert.Greater(t, PerExecutionEnergy(big, pc).NetworkKWh, small.NetworkKWh)
}

func TestNetworkEnergyAmortizedOverRequests(t *testing.T) {
	pc := testPowerConstants()

	one := baseInput()
	one.RequestCount = 1
	many := baseInput()
	many.RequestCount = 100

	assert.InDelta(t,
		PerExecutionEnergy(one, pc).NetworkKWh/100,
		PerExecutionEnergy(many, pc).NetworkKWh,
		1e-12)
}

func TestGPUPowerZeroWhenNotRequired(t *testing.T) {
	pc := testPowerConstants()
	profile := PerExecutionEnergy(baseInput(), pc)
	assert.Zero(t, profile.Breakdown.GPUPowerW)
}

func TestGPUPowerUsesAssumedUtilization(t *testing.T) {
	pc := testPowerConstants()

	in := baseInput()
	in.GPURequired = true
	in.GPUCount = 1
	in.GPUType = "nvidia-l4"

	profile := PerExecutionEnergy(in, pc)
	// 10 + 0.5 * (72 - 10) = 41 W
	assert.InDelta(t, 41.0, profile.Breakdown.GPUPowerW, 1e-9)
}

func TestCPUPowerFollowsMinMaxModel(t *testing.T) {
	pc := testPowerConstants()

	idle := baseInput()
	idle.CPUUtil = 0
	busy := baseInput()
	busy.CPUUtil = 1

	idleProfile := PerExecutionEnergy(idle, pc)
	busyProfile := PerExecutionEnergy(busy, pc)

	assert.InDelta(t, pc.CPUMinWattsPerVCPU, idleProfile.Breakdown.CPUPowerW, 1e-9)
	assert.InDelta(t, pc.CPUMaxWattsPerVCPU, busyProfile.Breakdown.CPUPowerW, 1e-9)
}

func TestPUEScalesComputeOnly(t *testing.T) {
	pc := testPowerConstants()
	pcNoPUE := pc
	pcNoPUE.DatacenterPUE = 1.0

	with := PerExecutionEnergy(baseInput(), pc)
	without := PerExecutionEnergy(baseInput(), pcNoPUE)

	assert.InDelta(t, without.ComputeKWh*1.1, with.ComputeKWh, 1e-12)
	assert.InDelta(t, without.NetworkKWh, with.NetworkKWh, 1e-12)
}

func TestEmissionsProportionalToIntensity(t *testing.T) {
	assert.InDelta(t, 50.0, EmissionsGrams(0.5, 100), 1e-9)
	assert.Zero(t, EmissionsGrams(0.5, 0))
}

func TestTransferCostZeroAtSource(t *testing.T) {
	region := scheduling.Region{TransferCostPerGB: 0.02}

	assert.Zero(t, TransferCostUSD(region, "us-east1", "us-east1", 10, 5))
	assert.InDelta(t, 0.3, TransferCostUSD(region, "europe-west1", "us-east1", 10, 5), 1e-9)
}

func TestYearlyScalesLinearly(t *testing.T) {
	assert.InDelta(t, 365000.0, Yearly(1.0, 1000), 1e-9)
	assert.Zero(t, Yearly(0, 1000))
}

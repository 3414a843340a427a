// Package scheduling defines the data model shared by the planner,
// selection engine, deployment orchestrator, and dispatcher: static
// configuration, function metadata, schedules, and deployment state.
package scheduling

// Priority selects the decision framework used when ranking slots.
type Priority string

const (
	PriorityBalanced  Priority = "balanced"
	PriorityCosts     Priority = "costs"
	PriorityEmissions Priority = "emissions"
)

// Valid reports whether p is one of the known priorities.
func (p Priority) Valid() bool {
	switch p {
	case PriorityBalanced, PriorityCosts, PriorityEmissions:
		return true
	}
	return false
}

// SlotTimeLayout is the wire format of a recommendation's datetime.
const SlotTimeLayout = "2006-01-02 15:04"

// Region describes one platform region in the static configuration.
type Region struct {
	Name                string  `json:"name"`
	Zone                string  `json:"electricity_maps_zone"`
	Continent           string  `json:"continent"`
	GPUAvailable        bool    `json:"gpu_available"`
	TransferCostPerGB   float64 `json:"data_transfer_cost_per_gb_usd"`
	PricingTier         string  `json:"pricing_tier"`
}

// GPUPower holds the idle/full-load wattage range for one GPU type.
type GPUPower struct {
	MinWatts float64 `json:"min_watts"`
	MaxWatts float64 `json:"max_watts"`
}

// PowerConstants holds the CCF-style energy coefficients.
type PowerConstants struct {
	CPUMinWattsPerVCPU float64             `json:"cpu_min_watts_per_vcpu"`
	CPUMaxWattsPerVCPU float64             `json:"cpu_max_watts_per_vcpu"`
	CPUUtilization     float64             `json:"cpu_utilization"`
	MemoryWattsPerGiB  float64             `json:"memory_watts_per_gib"`
	DatacenterPUE      float64             `json:"datacenter_pue"`
	NetworkKWhPerGB    float64             `json:"network_kwh_per_gb"`
	GPUWatts           map[string]GPUPower `json:"gpu_watts"`
}

// AgentDefaults holds resource defaults applied when metadata omits them.
type AgentDefaults struct {
	VCPUsDefault   int     `json:"vcpus_default"`
	VCPUsIfGPU     int     `json:"vcpus_if_gpu"`
	GPUCount       int     `json:"gpu_count"`
	GPUType        string  `json:"gpu_type"`
	GPUUtilization float64 `json:"gpu_utilization"`
}

// TierPricing holds the billing rates of one pricing tier.
type TierPricing struct {
	PerInvocationUSD   float64 `json:"per_invocation_usd"`
	VCPUSecondUSD      float64 `json:"vcpu_second_usd"`
	MemoryGiBSecondUSD float64 `json:"memory_gib_second_usd"`
}

// Pricing maps tiers and GPU types to billing rates.
type Pricing struct {
	Tiers        map[string]TierPricing `json:"tiers"`
	GPUSecondUSD map[string]float64     `json:"gpu_second_usd"`
}

// StaticConfig is the process-wide configuration document, loaded once from
// the object store and never mutated.
type StaticConfig struct {
	Regions        map[string]Region `json:"regions"`
	PowerConstants PowerConstants    `json:"power_constants"`
	AgentDefaults  AgentDefaults     `json:"agent_defaults"`
	Pricing        Pricing           `json:"pricing"`
}

// RegionInfo returns the region entry for code, and whether it exists.
func (c *StaticConfig) RegionInfo(code string) (Region, bool) {
	r, ok := c.Regions[code]
	return r, ok
}

// Continent returns the continent of a region code, or "" when unknown.
func (c *StaticConfig) Continent(code string) string {
	if r, ok := c.Regions[code]; ok {
		return r.Continent
	}
	return ""
}

package llm

import (
	"fmt"
	"sort"
	"strings"

	"github.com/carbonaware/faas-scheduler/internal/forecast"
	"github.com/carbonaware/faas-scheduler/internal/scheduling"
	"github.com/carbonaware/faas-scheduler/internal/selection"
)

const costsFramework = `
DECISION FRAMEWORK - COST OPTIMIZATION PRIORITY:

Your PRIMARY goal is cost minimization. Carbon emissions are SECONDARY.

1. PARETO OPTIMALITY: if a region is both cheaper AND cleaner, always choose it.
2. COST-FIRST MINDSET: any non-trivial cost increase requires strong
   justification. Accept higher emissions unless the emissions difference is
   extreme (orders of magnitude) for negligible cost savings.
3. Consider emissions only when the cost difference is negligible in absolute
   terms. Judge "negligible" and "extreme" from the actual numbers.

Your reasoning MUST explain why the cost savings justify the emissions accepted.
`

const emissionsFramework = `
DECISION FRAMEWORK - EMISSIONS OPTIMIZATION PRIORITY:

Your PRIMARY goal is carbon emissions minimization. Cost is SECONDARY.

1. PARETO OPTIMALITY: if a region is both cheaper AND cleaner, always choose it.
2. EMISSIONS-FIRST MINDSET: any non-trivial emissions increase requires strong
   justification. Accept higher cost unless the cost difference is extreme
   (orders of magnitude) for negligible emissions savings.
3. Consider cost only when the emissions difference is negligible in absolute
   terms. Judge "negligible" and "extreme" from the actual numbers.

Your reasoning MUST explain why the emissions reduction justifies the cost accepted.
`

const balancedFramework = `
DECISION FRAMEWORK - BALANCED OPTIMIZATION:

Your goal is the best tradeoff between cost and carbon emissions.

1. PARETO OPTIMALITY: if a region is both cheaper AND cleaner, always choose it.
2. COST-EFFECTIVENESS OF CARBON REDUCTION: compute
   (extra cost per year) / (CO2 saved per year in kg) = cost per kg CO2 avoided,
   and judge whether it is good value.
3. ABSOLUTE MAGNITUDE MATTERS: tiny absolute differences are not worth
   optimizing; large ones deserve careful cost-effectiveness analysis.
4. NO FIXED THRESHOLDS: balance relative percentages against absolute amounts.

Your reasoning MUST include the cost-effectiveness calculation and explain why
the tradeoff makes sense.
`

func decisionFramework(priority scheduling.Priority) string {
	switch priority {
	case scheduling.PriorityCosts:
		return costsFramework
	case scheduling.PriorityEmissions:
		return emissionsFramework
	default:
		return balancedFramework
	}
}

// FormatForecastTable renders the per-region hourly forecast as a compact
// human-readable block for the ranking prompt.
func FormatForecastTable(forecasts map[string]forecast.RegionForecast) string {
	codes := make([]string, 0, len(forecasts))
	for code := range forecasts {
		codes = append(codes, code)
	}
	sort.Strings(codes)

	var b strings.Builder
	if len(codes) > 0 {
		first := forecasts[codes[0]]
		if len(first.Forecast) > 0 {
			fmt.Fprintf(&b, "Carbon Intensity Forecast (gCO2eq/kWh) for next 24 hours starting %s:\n\n",
				first.Forecast[0].Datetime.UTC().Format(scheduling.SlotTimeLayout))
		}
	}

	for _, code := range codes {
		fc := forecasts[code]
		fmt.Fprintf(&b, "%s (%s):\n", code, fc.Name)
		points := fc.Forecast
		if len(points) > forecast.HorizonHours {
			points = points[:forecast.HorizonHours]
		}
		for _, p := range points {
			fmt.Fprintf(&b, "  %s - %.0f gCO2eq/kWh\n",
				p.Datetime.UTC().Format(scheduling.SlotTimeLayout), p.CarbonIntensity)
		}
		b.WriteString("\n")
	}

	return b.String()
}

// FormatRegionMetrics renders the candidate-region comparison: per-execution
// and yearly cost and emissions plus average carbon intensity.
func FormatRegionMetrics(
	metrics map[string]selection.RegionMetrics,
	meta *scheduling.FunctionMetadata,
	cfg *scheduling.StaticConfig,
) string {
	totalDataGB := meta.DataInputGB + meta.DataOutputGB
	yearlyInvocations := meta.InvocationsPerDay * 365

	var b strings.Builder
	b.WriteString("\nFunction Execution Profile:\n")
	fmt.Fprintf(&b, "- Data transfer per execution: %.2f GB (%.2f GB input + %.2f GB output)\n",
		totalDataGB, meta.DataInputGB, meta.DataOutputGB)
	fmt.Fprintf(&b, "- Invocations per day: %d\n", meta.InvocationsPerDay)
	fmt.Fprintf(&b, "- Data source location: %s\n", meta.SourceLocation)
	fmt.Fprintf(&b, "- Note: Executing in %s has ZERO transfer cost\n", meta.SourceLocation)

	fmt.Fprintf(&b, "\nREGION COMPARISON - Yearly Costs and Emissions (%d executions/year)\n\n", yearlyInvocations)

	codes := make([]string, 0, len(metrics))
	for code := range metrics {
		codes = append(codes, code)
	}
	// Cheapest transfer first, mirroring how a reviewer scans the table.
	sort.Slice(codes, func(i, j int) bool {
		if metrics[codes[i]].TransferCostYearly != metrics[codes[j]].TransferCostYearly {
			return metrics[codes[i]].TransferCostYearly < metrics[codes[j]].TransferCostYearly
		}
		return codes[i] < codes[j]
	})

	for _, code := range codes {
		m := metrics[code]
		name := code
		if region, ok := cfg.RegionInfo(code); ok {
			name = region.Name
		}
		fmt.Fprintf(&b, "%s (%s):\n", code, name)
		fmt.Fprintf(&b, "  Transfer Cost: $%.4f/exec -> $%.0f/year\n", m.TransferCostPerExecution, m.TransferCostYearly)
		fmt.Fprintf(&b, "  Compute Cost: $%.6f/exec -> $%.0f/year\n", m.ComputeCostPerExecution, m.ComputeCostYearly)
		fmt.Fprintf(&b, "  CO2 Emissions: %.2fg/exec -> %.1fkg/year\n", m.EmissionsPerExecutionG, m.EmissionsYearlyKg)
		fmt.Fprintf(&b, "  Avg Carbon Intensity: %.0f gCO2/kWh\n\n", m.AvgCarbonIntensity)
	}

	return b.String()
}

// RankingPrompt builds the scheduling prompt for one function.
func RankingPrompt(
	meta *scheduling.FunctionMetadata,
	forecasts map[string]forecast.RegionForecast,
	metrics map[string]selection.RegionMetrics,
	cfg *scheduling.StaticConfig,
) string {
	latencyContext := ""
	if meta.LatencyImportant {
		continent := cfg.Continent(meta.SourceLocation)
		latencyContext = fmt.Sprintf("\nLATENCY REQUIREMENT: This function is latency-sensitive. Only %s regions are included to minimize cross-continent latency.\n", continent)
	}

	return fmt.Sprintf(`You are a carbon-aware serverless function scheduler. Your goal is to optimize execution scheduling based on the specified priority level.

Function Details:
- Function ID: %s
- Runtime: %.0f ms
- Memory: %d MB
- Description: %s
- Optimization Priority: %s

%s%s
%s
%s
Task:
Create a scheduling recommendation for each of the next 24 time slots.
For each time slot, recommend the BEST platform region to execute this function.

Output Format (JSON only, no markdown):
{
  "recommendations": [
    {
      "datetime": "2025-01-17 10:00",
      "region": "europe-north1",
      "carbon_intensity": 45,
      "transfer_cost_usd": <USE EXACT PER-EXECUTION VALUE FROM REGION COMPARISON ABOVE>,
      "emissions_grams": <USE EXACT PER-EXECUTION VALUE FROM REGION COMPARISON ABOVE>,
      "priority": 1,
      "reasoning": "quantified tradeoff: cost difference in $/year, emissions difference in kg CO2/year, cost per kg CO2 avoided when relevant, and the decision under the active priority mode"
    }
  ]
}

CRITICAL REQUIREMENTS:
- Use datetime format "YYYY-MM-DD HH:MM" in UTC, converted from the forecast timestamps
- Use platform region codes, NOT Electricity Maps zone codes
- Provide EXACTLY 24 recommendations, one for each hour in the forecast
- Sort the array in ASCENDING order by priority (1 = BEST, 24 = WORST); priorities must be exactly 1..24 with no repeats
- transfer_cost_usd and emissions_grams must be copied verbatim from the region comparison; do not recompute them
- Include a detailed "reasoning" field for EACH recommendation with specific quantified tradeoff analysis
- Return ONLY valid JSON, no additional text or markdown formatting.`,
		meta.FunctionID,
		meta.RuntimeMS,
		meta.MemoryMB,
		meta.Description,
		strings.ToUpper(string(meta.Priority)),
		FormatRegionMetrics(metrics, meta, cfg),
		latencyContext,
		FormatForecastTable(forecasts),
		decisionFramework(meta.Priority),
	)
}

// ExtractionPrompt builds the fixed prompt that converts a natural-language
// function description into a structured metadata record.
func ExtractionPrompt(description string) string {
	return fmt.Sprintf(`You are a serverless infrastructure expert. Convert this natural language function description into structured metadata for carbon-aware scheduling.

User's description:
"""%s"""

Extract and estimate these parameters:
1. function_id: descriptive ID (snake_case, lowercase, no spaces)
2. runtime_ms: estimated execution time in milliseconds
   - Simple API calls: 50-200ms
   - Image processing: 500-2000ms
   - Video processing: 30,000-300,000ms
   - ML inference: 1,000-10,000ms
   - Data transformations: 100-5,000ms
3. memory_mb: memory requirement, chosen from: 128, 256, 512, 1024, 2048, 4096
4. description: clean one-sentence technical summary
5. data_input_gb / data_output_gb: data size per invocation in GB
6. source_location: region code if mentioned, default "us-east1"
7. invocations_per_day: stated frequency, or an estimate from the use case
8. priority: "balanced" (default), "costs" (cost-sensitive), or "emissions" (green/sustainable)
9. latency_important: true for latency-sensitive, real-time, or interactive workloads
10. gpu_required: true when GPU acceleration is needed (GPU, ML inference, training)
11. vcpus: integer 1-8, only when different from the defaults (1 non-GPU, 8 GPU)
12. allowed_regions: region codes if mentioned, otherwise []

IMPORTANT estimation guidelines:
- Be conservative: overestimate resource needs for safety
- If runtime is uncertain, multiply your estimate by 2x
- For memory, always round UP to the next tier
- Include ALL data transfer (downloads AND uploads)
- Consider peak loads, not just average usage

Return ONLY valid JSON matching this exact schema (no markdown, no explanations):
{
  "function_id": "string",
  "runtime_ms": number,
  "memory_mb": number,
  "description": "string",
  "data_input_gb": number,
  "data_output_gb": number,
  "source_location": "string",
  "invocations_per_day": number,
  "priority": "balanced|costs|emissions",
  "latency_important": boolean,
  "gpu_required": boolean,
  "vcpus": number,
  "allowed_regions": ["array of region codes or empty"],
  "confidence_score": number,
  "assumptions": ["key assumptions made during estimation"],
  "warnings": ["potential concerns or uncertainties"]
}`, description)
}

package scheduling

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// FunctionMetadata is the fully resolved description of one function
// workload. After ApplyDefaults every scheduling-relevant field is present;
// VCPUs stays nil until resolved against the agent defaults because its
// default depends on GPURequired.
type FunctionMetadata struct {
	FunctionID  string `json:"function_id"`
	Description string `json:"description"`

	MemoryMB    int  `json:"memory_mb"`
	VCPUs       *int `json:"vcpus"`
	GPURequired bool `json:"gpu_required"`

	RuntimeMS        float64 `json:"runtime_ms"`
	DataInputGB      float64 `json:"data_input_gb"`
	DataOutputGB     float64 `json:"data_output_gb"`
	InvocationsPerDay int    `json:"invocations_per_day"`
	SourceLocation   string  `json:"source_location"`

	Priority             Priority `json:"priority"`
	LatencyImportant     bool     `json:"latency_important"`
	AllowedRegions       []string `json:"allowed_regions"`
	AllowScheduleCaching bool     `json:"allow_schedule_caching"`

	// Only consulted by deployment.
	Code           string `json:"code,omitempty"`
	Requirements   string `json:"requirements,omitempty"`
	TimeoutSeconds int    `json:"timeout_seconds,omitempty"`

	// Estimation metadata filled by natural-language extraction.
	ConfidenceScore float64  `json:"confidence_score,omitempty"`
	Assumptions     []string `json:"assumptions,omitempty"`
	Warnings        []string `json:"warnings,omitempty"`
}

// UnmarshalJSON decodes a structured record. allow_schedule_caching
// defaults to true when the document omits it, which a plain struct decode
// cannot express.
func (m *FunctionMetadata) UnmarshalJSON(data []byte) error {
	type alias FunctionMetadata
	aux := struct {
		*alias
		AllowScheduleCaching *bool `json:"allow_schedule_caching"`
	}{alias: (*alias)(m)}

	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	m.AllowScheduleCaching = aux.AllowScheduleCaching == nil || *aux.AllowScheduleCaching
	return nil
}

// MetadataEntry is the polymorphic function_metadata value: either a
// natural-language description or a structured record. Exactly one of the
// two fields is set after decoding.
type MetadataEntry struct {
	Description string
	Structured  *FunctionMetadata
}

// IsNaturalLanguage reports whether the entry still needs LLM extraction.
func (e *MetadataEntry) IsNaturalLanguage() bool {
	return e.Structured == nil
}

// UnmarshalJSON decodes either variant.
func (e *MetadataEntry) UnmarshalJSON(data []byte) error {
	trimmed := strings.TrimSpace(string(data))
	if strings.HasPrefix(trimmed, `"`) {
		return json.Unmarshal(data, &e.Description)
	}
	if strings.HasPrefix(trimmed, "{") {
		e.Structured = &FunctionMetadata{}
		return json.Unmarshal(data, e.Structured)
	}
	return fmt.Errorf("function metadata must be a string or an object, got %s", truncate(trimmed, 40))
}

// MarshalJSON encodes whichever variant is populated.
func (e MetadataEntry) MarshalJSON() ([]byte, error) {
	if e.Structured != nil {
		return json.Marshal(e.Structured)
	}
	return json.Marshal(e.Description)
}

// MetadataFile is the persisted function_metadata document.
type MetadataFile struct {
	Functions map[string]MetadataEntry `json:"functions"`
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

// metadataDefaults is the single source of truth for optional fields.
var metadataDefaults = FunctionMetadata{
	RuntimeMS:            1000,
	MemoryMB:             512,
	DataInputGB:          0,
	DataOutputGB:         0,
	SourceLocation:       "us-east1",
	InvocationsPerDay:    1,
	Priority:             PriorityBalanced,
	LatencyImportant:     false,
	GPURequired:          false,
	AllowedRegions:       nil,
	AllowScheduleCaching: true,
}

// ApplyDefaults fills every unset scheduling-relevant field. User-provided
// values win; the zero value counts as unset for the fields where zero is
// not meaningful (runtime, memory, invocations, source location, priority).
func ApplyDefaults(m FunctionMetadata) FunctionMetadata {
	if m.RuntimeMS == 0 {
		m.RuntimeMS = metadataDefaults.RuntimeMS
	}
	if m.MemoryMB == 0 {
		m.MemoryMB = metadataDefaults.MemoryMB
	}
	if m.InvocationsPerDay == 0 {
		m.InvocationsPerDay = metadataDefaults.InvocationsPerDay
	}
	if m.SourceLocation == "" {
		m.SourceLocation = metadataDefaults.SourceLocation
	}
	if m.Priority == "" {
		m.Priority = metadataDefaults.Priority
	}
	if m.AllowedRegions == nil {
		m.AllowedRegions = []string{}
	}
	return m
}

// ResolveVCPUs returns the effective vCPU count, consulting the agent
// defaults when metadata left it unset.
func (m *FunctionMetadata) ResolveVCPUs(defaults AgentDefaults) int {
	if m.VCPUs != nil {
		return *m.VCPUs
	}
	if m.GPURequired {
		return defaults.VCPUsIfGPU
	}
	return defaults.VCPUsDefault
}

// ComputeMetadataHash fingerprints the scheduling-relevant metadata fields.
// The hash deliberately excludes allow_schedule_caching and normalizes
// allowed_regions ordering, so equivalent intents produce equal hashes.
func ComputeMetadataHash(m FunctionMetadata) string {
	regions := append([]string(nil), m.AllowedRegions...)
	sort.Strings(regions)
	if regions == nil {
		regions = []string{}
	}

	// Maps marshal with sorted keys, giving a canonical JSON encoding.
	relevant := map[string]any{
		"runtime_ms":          m.RuntimeMS,
		"memory_mb":           m.MemoryMB,
		"data_input_gb":       m.DataInputGB,
		"data_output_gb":      m.DataOutputGB,
		"source_location":     m.SourceLocation,
		"invocations_per_day": m.InvocationsPerDay,
		"priority":            m.Priority,
		"latency_important":   m.LatencyImportant,
		"gpu_required":        m.GPURequired,
		"vcpus":               m.VCPUs,
		"allowed_regions":     regions,
	}

	encoded, err := json.Marshal(relevant)
	if err != nil {
		// Only reachable with non-serializable values, which the struct
		// cannot contain.
		panic(err)
	}

	sum := sha256.Sum256(encoded)
	return hex.EncodeToString(sum[:])
}

// ComputeCodeHash fingerprints function source code, trimming surrounding
// whitespace so formatting-only differences do not force redeploys.
func ComputeCodeHash(code string) string {
	sum := sha256.Sum256([]byte(strings.TrimSpace(code)))
	return hex.EncodeToString(sum[:])
}

package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carbonaware/faas-scheduler/internal/forecast"
	"github.com/carbonaware/faas-scheduler/internal/scheduling"
)

type stubGenerator struct {
	response string
	err      error
	prompts  []string
}

func (s *stubGenerator) Generate(_ context.Context, prompt string) (string, error) {
	s.prompts = append(s.prompts, prompt)
	return s.response, s.err
}

func TestStripFences(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"plain", `{"a": 1}`, `{"a": 1}`},
		{"json fence", "```json\n{\"a\": 1}\n```", `{"a": 1}`},
		{"bare fence", "```\n{\"a\": 1}\n```", `{"a": 1}`},
		{"surrounding whitespace", "  \n```json\n{\"a\": 1}\n```\n  ", `{"a": 1}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, StripFences(tt.input))
		})
	}
}

func TestGenerateJSONRejectsNonJSON(t *testing.T) {
	g := &stubGenerator{response: "I cannot help with that."}
	var out map[string]any
	err := GenerateJSON(context.Background(), g, "prompt", &out)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not valid JSON")
}

func testForecasts() map[string]forecast.RegionForecast {
	start := time.Date(2025, 12, 10, 0, 0, 0, 0, time.UTC)
	points := make([]forecast.Point, 24)
	for i := range points {
		points[i] = forecast.Point{Datetime: start.Add(time.Duration(i) * time.Hour), CarbonIntensity: 100}
	}
	return map[string]forecast.RegionForecast{
		"europe-west1":  {Name: "Belgium", Zone: "BE", Forecast: points},
		"europe-north1": {Name: "Finland", Zone: "FI", Forecast: points},
	}
}

func validRecommendations() []scheduling.Recommendation {
	start := time.Date(2025, 12, 10, 0, 0, 0, 0, time.UTC)
	recs := make([]scheduling.Recommendation, 24)
	for i := range recs {
		region := "europe-west1"
		if i%2 == 1 {
			region = "europe-north1"
		}
		recs[i] = scheduling.Recommendation{
			Datetime:        start.Add(time.Duration(i) * time.Hour).Format(scheduling.SlotTimeLayout),
			Region:          region,
			CarbonIntensity: 100,
			Priority:        i + 1,
			Reasoning:       "test",
		}
	}
	return recs
}

func TestValidateRecommendationsAcceptsValidSet(t *testing.T) {
	assert.NoError(t, ValidateRecommendations(validRecommendations(), testForecasts()))
}

func TestValidateRecommendationsWrongCount(t *testing.T) {
	err := ValidateRecommendations(validRecommendations()[:23], testForecasts())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "expected 24")
}

func TestValidateRecommendationsDuplicatePriority(t *testing.T) {
	recs := validRecommendations()
	recs[5].Priority = recs[4].Priority
	assert.Error(t, ValidateRecommendations(recs, testForecasts()))
}

func TestValidateRecommendationsPriorityOutOfRange(t *testing.T) {
	recs := validRecommendations()
	recs[0].Priority = 0
	assert.Error(t, ValidateRecommendations(recs, testForecasts()))

	recs = validRecommendations()
	recs[23].Priority = 25
	assert.Error(t, ValidateRecommendations(recs, testForecasts()))
}

func TestValidateRecommendationsNotSorted(t *testing.T) {
	recs := validRecommendations()
	recs[0], recs[1] = recs[1], recs[0]
	err := ValidateRecommendations(recs, testForecasts())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not sorted")
}

func TestValidateRecommendationsUnknownRegion(t *testing.T) {
	recs := validRecommendations()
	recs[3].Region = "mars-north1"
	err := ValidateRecommendations(recs, testForecasts())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "mars-north1")
}

func TestValidateRecommendationsDatetimeOutsideForecast(t *testing.T) {
	recs := validRecommendations()
	recs[0].Datetime = "2026-06-01 00:00"
	err := ValidateRecommendations(recs, testForecasts())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "forecast hour")
}

func TestRankScheduleParsesFencedResponse(t *testing.T) {
	payload, err := json.Marshal(map[string]any{"recommendations": validRecommendations()})
	require.NoError(t, err)

	g := &stubGenerator{response: "```json\n" + string(payload) + "\n```"}
	meta := scheduling.ApplyDefaults(scheduling.FunctionMetadata{
		FunctionID: "f1", Description: "test fn", Priority: scheduling.PriorityBalanced,
	})

	cfg := &scheduling.StaticConfig{Regions: map[string]scheduling.Region{
		"europe-west1":  {Name: "Belgium"},
		"europe-north1": {Name: "Finland"},
	}}

	recs, err := RankSchedule(context.Background(), g, &meta, testForecasts(), nil, cfg)
	require.NoError(t, err)
	assert.Len(t, recs, 24)
	assert.Equal(t, 1, recs[0].Priority)

	// The prompt carried the function identity and the decision framework.
	require.Len(t, g.prompts, 1)
	assert.Contains(t, g.prompts[0], "Function ID: f1")
	assert.Contains(t, g.prompts[0], "BALANCED OPTIMIZATION")
	assert.Contains(t, g.prompts[0], "EXACTLY 24 recommendations")
}

func TestRankSchedulePriorityFrameworks(t *testing.T) {
	payload, _ := json.Marshal(map[string]any{"recommendations": validRecommendations()})
	cfg := &scheduling.StaticConfig{Regions: map[string]scheduling.Region{}}

	for priority, marker := range map[scheduling.Priority]string{
		scheduling.PriorityCosts:     "COST OPTIMIZATION PRIORITY",
		scheduling.PriorityEmissions: "EMISSIONS OPTIMIZATION PRIORITY",
		scheduling.PriorityBalanced:  "BALANCED OPTIMIZATION",
	} {
		g := &stubGenerator{response: string(payload)}
		meta := scheduling.ApplyDefaults(scheduling.FunctionMetadata{FunctionID: "f1", Priority: priority})

		_, err := RankSchedule(context.Background(), g, &meta, testForecasts(), nil, cfg)
		require.NoError(t, err)
		assert.Contains(t, g.prompts[0], marker, "priority %s", priority)
	}
}

func TestExtractMetadata(t *testing.T) {
	g := &stubGenerator{response: `{
		"function_id": "image_resizer",
		"runtime_ms": 1200,
		"memory_mb": 512,
		"description": "Resize user-uploaded images",
		"data_input_gb": 0.008,
		"data_output_gb": 0.012,
		"source_location": "us-east1",
		"invocations_per_day": 500,
		"priority": "balanced",
		"latency_important": false,
		"gpu_required": false,
		"allowed_regions": [],
		"confidence_score": 0.75,
		"assumptions": ["single 8MB image input"],
		"warnings": ["runtime varies with image size"]
	}`}

	meta, err := ExtractMetadata(context.Background(), g, "resize images to thumbnails")
	require.NoError(t, err)

	assert.Equal(t, "image_resizer", meta.FunctionID)
	assert.Equal(t, 1200.0, meta.RuntimeMS)
	assert.Equal(t, 512, meta.MemoryMB)
	assert.InDelta(t, 0.75, meta.ConfidenceScore, 1e-9)
	assert.Len(t, meta.Assumptions, 1)
	assert.Len(t, meta.Warnings, 1)

	require.Len(t, g.prompts, 1)
	assert.True(t, strings.Contains(g.prompts[0], "resize images to thumbnails"))
}

func TestExtractMetadataRejectsMissingEstimates(t *testing.T) {
	g := &stubGenerator{response: `{"function_id": "x", "priority": "balanced"}`}
	_, err := ExtractMetadata(context.Background(), g, "something")
	assert.Error(t, err)
}

func TestExtractMetadataRejectsUnknownPriority(t *testing.T) {
	g := &stubGenerator{response: `{"function_id": "x", "runtime_ms": 100, "memory_mb": 128, "priority": "speed"}`}
	_, err := ExtractMetadata(context.Background(), g, "something")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "priority")
}

func TestGenerateErrorPropagates(t *testing.T) {
	g := &stubGenerator{err: fmt.Errorf("model overloaded")}
	_, err := ExtractMetadata(context.Background(), g, "something")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "model overloaded")
}

package llm

import (
	"context"
	"fmt"
	"time"

	"github.com/carbonaware/faas-scheduler/internal/forecast"
	"github.com/carbonaware/faas-scheduler/internal/scheduling"
	"github.com/carbonaware/faas-scheduler/internal/selection"
)

// rankingResponse is the untrusted wire shape of a ranking answer.
type rankingResponse struct {
	Recommendations []scheduling.Recommendation `json:"recommendations"`
}

// RankSchedule asks the model for a 24-slot ranked schedule and validates
// the answer before anyone else sees it.
func RankSchedule(
	ctx context.Context,
	g Generator,
	meta *scheduling.FunctionMetadata,
	forecasts map[string]forecast.RegionForecast,
	metrics map[string]selection.RegionMetrics,
	cfg *scheduling.StaticConfig,
) ([]scheduling.Recommendation, error) {
	prompt := RankingPrompt(meta, forecasts, metrics, cfg)

	var response rankingResponse
	if err := GenerateJSON(ctx, g, prompt, &response); err != nil {
		return nil, err
	}

	if err := ValidateRecommendations(response.Recommendations, forecasts); err != nil {
		return nil, err
	}

	return response.Recommendations, nil
}

// ValidateRecommendations enforces the ranking output contract: exactly 24
// slots, priorities forming the permutation 1..24 sorted ascending, every
// region from the candidate set, and parseable UTC datetimes matching a
// forecast hour.
func ValidateRecommendations(recs []scheduling.Recommendation, forecasts map[string]forecast.RegionForecast) error {
	if len(recs) != forecast.HorizonHours {
		return fmt.Errorf("expected %d recommendations, got %d", forecast.HorizonHours, len(recs))
	}

	validHours := make(map[time.Time]struct{})
	for _, fc := range forecasts {
		for _, p := range fc.Forecast {
			validHours[p.Datetime.UTC().Truncate(time.Hour)] = struct{}{}
		}
	}

	seen := make(map[int]bool, len(recs))
	for i, rec := range recs {
		if rec.Priority < 1 || rec.Priority > forecast.HorizonHours {
			return fmt.Errorf("slot %d: priority %d out of range 1..%d", i, rec.Priority, forecast.HorizonHours)
		}
		if seen[rec.Priority] {
			return fmt.Errorf("slot %d: duplicate priority %d", i, rec.Priority)
		}
		seen[rec.Priority] = true

		if i > 0 && recs[i].Priority < recs[i-1].Priority {
			return fmt.Errorf("recommendations not sorted ascending by priority at index %d", i)
		}

		if _, ok := forecasts[rec.Region]; !ok {
			return fmt.Errorf("slot %d: region %q was not among the candidate regions", i, rec.Region)
		}

		slotTime, err := rec.SlotTime()
		if err != nil {
			return err
		}
		if len(validHours) > 0 {
			if _, ok := validHours[slotTime.Truncate(time.Hour)]; !ok {
				return fmt.Errorf("slot %d: datetime %q does not match any forecast hour", i, rec.Datetime)
			}
		}
	}

	return nil
}

// ExtractMetadata converts a natural-language function description into a
// structured record. The model additionally reports a confidence score,
// assumptions, and warnings, which are preserved for the schedule metadata.
func ExtractMetadata(ctx context.Context, g Generator, description string) (scheduling.FunctionMetadata, error) {
	var meta scheduling.FunctionMetadata
	if err := GenerateJSON(ctx, g, ExtractionPrompt(description), &meta); err != nil {
		return scheduling.FunctionMetadata{}, err
	}

	if meta.RuntimeMS <= 0 || meta.MemoryMB <= 0 {
		return scheduling.FunctionMetadata{}, fmt.Errorf("extraction missing required resource estimates")
	}
	if !meta.Priority.Valid() {
		return scheduling.FunctionMetadata{}, fmt.Errorf("extraction produced unknown priority %q", meta.Priority)
	}

	return meta, nil
}

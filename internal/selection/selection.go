// Package selection implements the deterministic pre-ranking layer: region
// filtering by latency continent, GPU availability, and caller allow-lists,
// plus per-region cost and emissions metrics for the candidate set.
package selection

import (
	"sort"

	"github.com/carbonaware/faas-scheduler/internal/forecast"
	"github.com/carbonaware/faas-scheduler/internal/scheduling"
)

// fallback when the source region is missing from the static config; the
// original deployment targeted US-homed data sources.
const defaultContinent = "north-america"

// ApplyRegionFilters narrows meta.AllowedRegions in place according to the
// latency and GPU rules and returns the regions this function contributes
// to the forecast-fetch union.
//
// Filtering is monotone for the function itself: the latency filter and
// GPU filter only remove candidates, and the allow-list intersects. The
// GPU filter never shrinks the union, because other functions may still
// need non-GPU regions.
func ApplyRegionFilters(meta *scheduling.FunctionMetadata, cfg *scheduling.StaticConfig) []string {
	var unionAdd []string

	if meta.LatencyImportant {
		continent := cfg.Continent(meta.SourceLocation)
		if continent == "" {
			continent = defaultContinent
		}

		if len(meta.AllowedRegions) > 0 {
			meta.AllowedRegions = intersectContinent(meta.AllowedRegions, continent, cfg)
		} else {
			meta.AllowedRegions = regionsOnContinent(continent, cfg)
		}
		unionAdd = append(unionAdd, meta.AllowedRegions...)
	} else if len(meta.AllowedRegions) > 0 {
		unionAdd = append(unionAdd, meta.AllowedRegions...)
	}

	if meta.GPURequired {
		if len(meta.AllowedRegions) > 0 {
			meta.AllowedRegions = gpuCapable(meta.AllowedRegions, cfg)
		} else {
			meta.AllowedRegions = allGPURegions(cfg)
			unionAdd = append(unionAdd, meta.AllowedRegions...)
		}
	}

	return unionAdd
}

func intersectContinent(regions []string, continent string, cfg *scheduling.StaticConfig) []string {
	kept := make([]string, 0, len(regions))
	for _, code := range regions {
		if cfg.Continent(code) == continent {
			kept = append(kept, code)
		}
	}
	return kept
}

func regionsOnContinent(continent string, cfg *scheduling.StaticConfig) []string {
	var kept []string
	for code, region := range cfg.Regions {
		if region.Continent == continent {
			kept = append(kept, code)
		}
	}
	sort.Strings(kept)
	return kept
}

func gpuCapable(regions []string, cfg *scheduling.StaticConfig) []string {
	kept := make([]string, 0, len(regions))
	for _, code := range regions {
		if region, ok := cfg.RegionInfo(code); ok && region.GPUAvailable {
			kept = append(kept, code)
		}
	}
	return kept
}

func allGPURegions(cfg *scheduling.StaticConfig) []string {
	var kept []string
	for code, region := range cfg.Regions {
		if region.GPUAvailable {
			kept = append(kept, code)
		}
	}
	sort.Strings(kept)
	return kept
}

// AllRegionZones lists every configured region for fetching, sorted by
// code for deterministic request order.
func AllRegionZones(cfg *scheduling.StaticConfig) []forecast.RegionZone {
	codes := make([]string, 0, len(cfg.Regions))
	for code := range cfg.Regions {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	return RegionZones(codes, cfg)
}

// RegionZones resolves region codes to fetch descriptors, skipping codes
// absent from the static config.
func RegionZones(codes []string, cfg *scheduling.StaticConfig) []forecast.RegionZone {
	zones := make([]forecast.RegionZone, 0, len(codes))
	for _, code := range codes {
		region, ok := cfg.RegionInfo(code)
		if !ok {
			continue
		}
		zones = append(zones, forecast.RegionZone{
			Code: code,
			Name: region.Name,
			Zone: region.Zone,
		})
	}
	return zones
}

// FilterForecasts keeps only the forecasts of allowed regions. An empty
// allow-list keeps everything that was fetched.
func FilterForecasts(forecasts map[string]forecast.RegionForecast, allowed []string) map[string]forecast.RegionForecast {
	if len(allowed) == 0 {
		return forecasts
	}
	allowedSet := make(map[string]struct{}, len(allowed))
	for _, code := range allowed {
		allowedSet[code] = struct{}{}
	}
	filtered := make(map[string]forecast.RegionForecast)
	for code, fc := range forecasts {
		if _, ok := allowedSet[code]; ok {
			filtered[code] = fc
		}
	}
	return filtered
}

// Package forecast fetches per-zone 24-hour carbon intensity forecasts
// from the Electricity Maps API. It supports a live mode against the
// premium forecast endpoint and a mock mode that replays the past 24 hours
// of history shifted one day forward.
package forecast

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"
)

// Point is one hour-aligned forecast sample.
type Point struct {
	Datetime        time.Time `json:"datetime"`
	CarbonIntensity float64   `json:"carbonIntensity"`
}

// RegionForecast carries the forecast of one platform region together with
// its display name and grid zone.
type RegionForecast struct {
	Name     string  `json:"name"`
	Zone     string  `json:"emaps_zone"`
	Forecast []Point `json:"forecast"`
}

// Bundle is the persisted carbon_forecasts document: the latest fetch for
// every requested region plus the zones that failed.
type Bundle struct {
	Timestamp     string                    `json:"timestamp"`
	Regions       map[string]RegionForecast `json:"regions"`
	FailedRegions []string                  `json:"failed_regions"`
}

// RegionZone names a platform region and its grid zone for fetching.
type RegionZone struct {
	Code string
	Name string
	Zone string
}

// HorizonHours is the forecast window the planner consumes.
const HorizonHours = 24

// Client talks to the Electricity Maps API.
type Client struct {
	token      string
	baseURL    string
	live       bool
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a forecast client. When live is false the client uses
// the history endpoint and derives a mock forecast from it.
func NewClient(token, baseURL string, live bool, timeout time.Duration, logger *slog.Logger) *Client {
	return &Client{
		token:   token,
		baseURL: baseURL,
		live:    live,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		logger: logger,
	}
}

// FetchZone returns the next-24-hour forecast for one grid zone.
func (c *Client) FetchZone(ctx context.Context, zone string) ([]Point, error) {
	if c.token == "" {
		return nil, fmt.Errorf("electricity maps token not configured")
	}

	if c.live {
		return c.fetchLiveForecast(ctx, zone)
	}

	history, err := c.fetchHistory(ctx, zone)
	if err != nil {
		return nil, err
	}
	return mockForecastFromHistory(history, HorizonHours*time.Hour), nil
}

// FetchRegions fetches forecasts for every requested region. Per-region
// failures are logged and reported in the returned slice; an all-empty
// result is an error.
func (c *Client) FetchRegions(ctx context.Context, regions []RegionZone) (map[string]RegionForecast, []string, error) {
	if c.live {
		c.logger.Info("fetching live carbon intensity forecasts")
	} else {
		c.logger.Info("using mock forecasts (history shifted +24h)")
	}

	forecasts := make(map[string]RegionForecast)
	var failed []string

	for _, region := range regions {
		points, err := c.FetchZone(ctx, region.Zone)
		if err != nil {
			c.logger.Warn("forecast fetch failed",
				"region", region.Code, "zone", region.Zone, "error", err)
			failed = append(failed, region.Code)
			continue
		}

		forecasts[region.Code] = RegionForecast{
			Name:     region.Name,
			Zone:     region.Zone,
			Forecast: points,
		}
		c.logger.Info("forecast fetched",
			"region", region.Code, "zone", region.Zone, "points", len(points))
	}

	if len(forecasts) == 0 {
		return nil, failed, fmt.Errorf("failed to fetch forecasts for all %d regions", len(regions))
	}

	return forecasts, failed, nil
}

func (c *Client) fetchLiveForecast(ctx context.Context, zone string) ([]Point, error) {
	endpoint := fmt.Sprintf("%s/carbon-intensity/forecast?%s", c.baseURL, url.Values{
		"zone":         {zone},
		"horizonHours": {fmt.Sprint(HorizonHours)},
	}.Encode())

	var payload struct {
		Forecast []Point `json:"forecast"`
	}
	if err := c.getJSON(ctx, endpoint, zone, &payload); err != nil {
		return nil, err
	}
	return payload.Forecast, nil
}

func (c *Client) fetchHistory(ctx context.Context, zone string) ([]Point, error) {
	endpoint := fmt.Sprintf("%s/carbon-intensity/history?%s", c.baseURL, url.Values{
		"zone": {zone},
	}.Encode())

	var payload struct {
		History []Point `json:"history"`
	}
	if err := c.getJSON(ctx, endpoint, zone, &payload); err != nil {
		return nil, err
	}
	return payload.History, nil
}

func (c *Client) getJSON(ctx context.Context, endpoint, zone string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("create request for zone %s: %w", zone, err)
	}
	req.Header.Set("auth-token", c.token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("electricity maps request for zone %s: %w", zone, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("electricity maps API failed for zone %s: %d - %s", zone, resp.StatusCode, body)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response for zone %s: %w", zone, err)
	}
	return nil
}

// mockForecastFromHistory shifts every history sample forward by shift and
// keeps only the two fields the forecast endpoint returns.
func mockForecastFromHistory(history []Point, shift time.Duration) []Point {
	mock := make([]Point, 0, len(history))
	for _, point := range history {
		mock = append(mock, Point{
			Datetime:        point.Datetime.Add(shift).UTC(),
			CarbonIntensity: point.CarbonIntensity,
		})
	}
	return mock
}

// AverageIntensity is the mean carbon intensity over a forecast window.
func AverageIntensity(points []Point) float64 {
	if len(points) == 0 {
		return 0
	}
	var sum float64
	for _, p := range points {
		sum += p.CarbonIntensity
	}
	return sum / float64(len(points))
}

package services

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"magiclink/internal/config"
)

// Location sentinels stored in usage entries when no real lookup result is
// available. They are ordinary values, not errors; a redemption always
// succeeds regardless of what the lookup returns.
const (
	LocationUnknownIP    = "Unknown IP"
	LocationLookupFailed = "Location lookup failed"
)

// GeoResolver resolves client IP addresses to a human-readable location via
// an external HTTP lookup service.
type GeoResolver struct {
	endpoint string
	timeout  time.Duration
	client   *http.Client
}

// NewGeoResolver creates a resolver for the configured lookup endpoint.
func NewGeoResolver(cfg *config.GeoConfig) *GeoResolver {
	return &GeoResolver{
		endpoint: strings.TrimRight(cfg.Endpoint, "/"),
		timeout:  cfg.Timeout,
		client:   &http.Client{Timeout: cfg.Timeout},
	}
}

type geoResponse struct {
	Status     string `json:"status"`
	City       string `json:"city"`
	RegionName string `json:"regionName"`
	Country    string `json:"country"`
}

// Resolve returns a "City, Region, Country" string for the given IP, or one
// of the location sentinels. It never returns an error: an unusable IP maps
// to LocationUnknownIP and any lookup failure, timeout, or non-success
// response maps to LocationLookupFailed.
func (g *GeoResolver) Resolve(ctx context.Context, ip string) string {
	if ip == "" || ip == "unknown" {
		return LocationUnknownIP
	}

	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		g.endpoint+"/"+url.PathEscape(ip), nil)
	if err != nil {
		return LocationLookupFailed
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return LocationLookupFailed
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return LocationLookupFailed
	}

	var result geoResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return LocationLookupFailed
	}
	if result.Status != "success" {
		return LocationLookupFailed
	}

	return fmt.Sprintf("%s, %s, %s", result.City, result.RegionName, result.Country)
}

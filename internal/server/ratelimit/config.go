package ratelimit

import (
	"strings"
	"time"
)

// Defaults used when Settings leaves a value unset
const (
	DefaultRequestsPerMinute = 1000
	DefaultRunsPerHour       = 30
)

// EndpointConfig represents rate limiting configuration for a specific endpoint.
type EndpointConfig struct {
	Path   string        // Route pattern, e.g. /templates/{template_id}/runs
	Method string        // HTTP method (GET, POST, etc.)
	Limit  int           // Maximum requests per window
	Window time.Duration // Time window
	Burst  int           // Burst capacity (defaults to Limit if 0)
}

// Settings are the user-facing limits, usually taken from the rate_limit block
// of the config file.
type Settings struct {
	Disabled          bool
	RequestsPerMinute int
	RunsPerHour       int
	Allow             []string // client IPs never limited
	Deny              []string // client IPs always rejected
}

// NewConfig builds a limiter configuration from settings.
func NewConfig(s Settings) *Config {
	if s.Disabled {
		return &Config{Enabled: false}
	}

	perMinute := s.RequestsPerMinute
	if perMinute <= 0 {
		perMinute = DefaultRequestsPerMinute
	}
	runs := s.RunsPerHour
	if runs <= 0 {
		runs = DefaultRunsPerHour
	}

	return &Config{
		Enabled:         true,
		DefaultLimit:    perMinute,
		DefaultWindow:   time.Minute,
		CleanupInterval: 5 * time.Minute,
		Whitelist:       clientSet(s.Allow),
		Blacklist:       clientSet(s.Deny),
		EndpointConfigs: EndpointConfigs(runs),
	}
}

// EndpointConfigs returns the per-endpoint tiers. Document runs are capped at
// runsPerHour; single-subsection generation gets twice that.
func EndpointConfigs(runsPerHour int) []EndpointConfig {
	return []EndpointConfig{
		// Generation
		{Path: "/templates/{template_id}/runs", Method: "POST", Limit: runsPerHour, Window: time.Hour, Burst: max(runsPerHour/6, 1)},
		{Path: "/subsections/{subsection_id}/generate", Method: "POST", Limit: 2 * runsPerHour, Window: time.Hour, Burst: max(runsPerHour/3, 1)},

		// Configuration writes
		{Path: "/subsections/{subsection_id}/inputs", Method: "PUT", Limit: 300, Window: time.Minute, Burst: 30},
		{Path: "/subsections/{subsection_id}/dependencies", Method: "PUT", Limit: 300, Window: time.Minute, Burst: 30},
		{Path: "/templates/{template_id}/runs/{job_id}", Method: "DELETE", Limit: 100, Window: time.Minute, Burst: 10},

		// Reads fall through to the default limit; /health is unlimited in MatchEndpoint
	}
}

func clientSet(ips []string) map[string]bool {
	set := make(map[string]bool, len(ips))
	for _, ip := range ips {
		if ip = strings.TrimSpace(ip); ip != "" {
			set[ip] = true
		}
	}
	return set
}

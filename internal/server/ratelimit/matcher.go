package ratelimit

import (
	"net/http"
	"strings"
)

// MatchEndpoint returns the configuration whose route pattern matches the
// request, or nil when none does. Patterns use the server mux syntax: a
// segment in braces, such as {template_id}, matches any one non-empty segment.
// GET /health is always unlimited.
func MatchEndpoint(path string, method string, configs []EndpointConfig) *EndpointConfig {
	if method == http.MethodGet && path == "/health" {
		return &EndpointConfig{}
	}

	segments := splitPath(path)
	for i := range configs {
		if configs[i].Method == method && matchRoute(configs[i].Path, segments) {
			return &configs[i]
		}
	}
	return nil
}

func matchRoute(pattern string, segments []string) bool {
	want := splitPath(pattern)
	if len(want) != len(segments) {
		return false
	}
	for i, w := range want {
		if isWildcard(w) {
			if segments[i] == "" {
				return false
			}
			continue
		}
		if w != segments[i] {
			return false
		}
	}
	return true
}

func splitPath(p string) []string {
	return strings.Split(strings.Trim(p, "/"), "/")
}

func isWildcard(segment string) bool {
	return len(segment) > 2 && segment[0] == '{' && segment[len(segment)-1] == '}'
}

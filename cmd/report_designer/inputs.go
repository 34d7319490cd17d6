package main

import (
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/alexwday/report-designer/internal/generation"
	"github.com/alexwday/report-designer/internal/period"
)

// parseInputs turns repeated --input name=value flags into run inputs.
// Values stay strings; typed coercion happens when bindings resolve.
func parseInputs(pairs []string) (map[string]any, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	inputs := make(map[string]any, len(pairs))
	for _, pair := range pairs {
		name, value, ok := strings.Cut(pair, "=")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			return nil, fmt.Errorf("invalid --input %q: expected name=value", pair)
		}
		inputs[name] = value
	}
	return inputs, nil
}

// parsePeriod builds an explicit run period from --fiscal-year and
// --fiscal-quarter. Both or neither must be given.
func parsePeriod(year int, quarter string) (*period.Period, error) {
	if year == 0 && quarter == "" {
		return nil, nil
	}
	if year == 0 || quarter == "" {
		return nil, fmt.Errorf("--fiscal-year and --fiscal-quarter must be given together")
	}
	q, err := period.ParseQuarter(quarter)
	if err != nil {
		return nil, err
	}
	p := period.Period{FiscalYear: year, FiscalQuarter: q}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &p, nil
}

// startRequest combines the input and period flags
func startRequest(pairs []string, year int, quarter string) (generation.StartRequest, error) {
	inputs, err := parseInputs(pairs)
	if err != nil {
		return generation.StartRequest{}, err
	}
	p, err := parsePeriod(year, quarter)
	if err != nil {
		return generation.StartRequest{}, err
	}
	return generation.StartRequest{RunInputs: inputs, Period: p}, nil
}

// parseIDs parses UUID flag values, naming the flag on failure
func parseIDs(flag string, values []string) ([]uuid.UUID, error) {
	ids := make([]uuid.UUID, 0, len(values))
	seen := make(map[uuid.UUID]bool, len(values))
	for _, v := range values {
		id, err := uuid.Parse(strings.TrimSpace(v))
		if err != nil {
			return nil, fmt.Errorf("invalid --%s %q: %w", flag, v, err)
		}
		if seen[id] {
			continue
		}
		seen[id] = true
		ids = append(ids, id)
	}
	return ids, nil
}

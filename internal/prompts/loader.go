// Package prompts holds the prompt templates used to generate subsection content.
// Prompts are stored as JSON files of key to template and embedded at compile time.
package prompts

import (
	"embed"
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync"
)

//go:embed *.json
var promptFiles embed.FS

var placeholder = regexp.MustCompile(`\{\{\.([A-Za-z]+)\}\}`)

// Set is the parsed content of one prompt file
type Set map[string]string

var (
	sets   = make(map[string]Set)
	setsMu sync.RWMutex
)

// Load returns the prompts in filename (e.g. "generation.json"), parsing the
// embedded file the first time it is asked for.
func Load(filename string) (Set, error) {
	setsMu.RLock()
	set, ok := sets[filename]
	setsMu.RUnlock()
	if ok {
		return set, nil
	}

	data, err := promptFiles.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read prompt file %s: %w", filename, err)
	}
	if err := json.Unmarshal(data, &set); err != nil {
		return nil, fmt.Errorf("failed to parse prompt file %s: %w", filename, err)
	}

	setsMu.Lock()
	sets[filename] = set
	setsMu.Unlock()
	return set, nil
}

// Get retrieves a prompt by filename and key.
func Get(filename, key string) (string, error) {
	set, err := Load(filename)
	if err != nil {
		return "", err
	}
	prompt, ok := set[key]
	if !ok {
		return "", fmt.Errorf("prompt key %q not found in %s", key, filename)
	}
	return prompt, nil
}

// Render loads a prompt and fills its placeholders. Every placeholder in the
// prompt must have a value in data.
func Render(filename, key string, data map[string]string) (string, error) {
	prompt, err := Get(filename, key)
	if err != nil {
		return "", err
	}
	if missing := Placeholders(prompt, data); len(missing) > 0 {
		return "", fmt.Errorf("prompt %s/%s: no value for %s", filename, key, strings.Join(missing, ", "))
	}
	return Format(prompt, data), nil
}

// Format replaces placeholders of the form {{.Key}} with values from data.
// Unknown placeholders are left in place.
func Format(template string, data map[string]string) string {
	return placeholder.ReplaceAllStringFunc(template, func(m string) string {
		if value, ok := data[placeholder.FindStringSubmatch(m)[1]]; ok {
			return value
		}
		return m
	})
}

// Placeholders returns the sorted placeholder names in template that data has
// no value for.
func Placeholders(template string, data map[string]string) []string {
	seen := make(map[string]bool)
	var missing []string
	for _, m := range placeholder.FindAllStringSubmatch(template, -1) {
		name := m[1]
		if _, ok := data[name]; ok || seen[name] {
			continue
		}
		seen[name] = true
		missing = append(missing, name)
	}
	sort.Strings(missing)
	return missing
}

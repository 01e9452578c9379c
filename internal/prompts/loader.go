// Package prompts holds the externalized generation prompt templates and a
// loader for them. Each JSON file groups the prompts for one concern —
// profiles.json for competitor snapshots, opportunities.json for opportunity
// synthesis, repair.json for the schema-repair retry — as a flat map of key
// to template text. The files are embedded at compile time so a deployed
// binary cannot drift from its prompts.
package prompts

import (
	"embed"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
)

//go:embed *.json
var files embed.FS

// Parsed files are cached; prompt lookups happen on every generation call.
var (
	fileCache = make(map[string]map[string]string)
	cacheMu   sync.RWMutex
)

// Get retrieves a prompt template by filename and key. The filename carries
// no path component (e.g. "profiles.json").
func Get(filename, key string) (string, error) {
	templates, err := load(filename)
	if err != nil {
		return "", err
	}

	template, ok := templates[key]
	if !ok {
		return "", fmt.Errorf("prompt key %q not found in %s", key, filename)
	}
	return template, nil
}

// MustGet retrieves a prompt template, panicking when it is missing. The
// embedded files ship with the binary, so a missing prompt is a build defect
// rather than a runtime condition.
func MustGet(filename, key string) string {
	template, err := Get(filename, key)
	if err != nil {
		panic(fmt.Sprintf("failed to load prompt: %v", err))
	}
	return template
}

// Format substitutes {{.Key}} placeholders in a template with values from
// data. Placeholders without a matching key are left in place.
func Format(template string, data map[string]string) string {
	result := template
	for key, value := range data {
		result = strings.ReplaceAll(result, fmt.Sprintf("{{.%s}}", key), value)
	}
	return result
}

// load parses an embedded prompt file, serving repeat reads from the cache.
func load(filename string) (map[string]string, error) {
	cacheMu.RLock()
	templates, ok := fileCache[filename]
	cacheMu.RUnlock()
	if ok {
		return templates, nil
	}

	data, err := files.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read prompt file %s: %w", filename, err)
	}
	if err := json.Unmarshal(data, &templates); err != nil {
		return nil, fmt.Errorf("failed to parse prompt file %s: %w", filename, err)
	}

	cacheMu.Lock()
	fileCache[filename] = templates
	cacheMu.Unlock()
	return templates, nil
}

// ClearCache drops all parsed files. Only tests need it.
func ClearCache() {
	cacheMu.Lock()
	fileCache = make(map[string]map[string]string)
	cacheMu.Unlock()
}

// List returns the prompt keys available in a file.
func List(filename string) ([]string, error) {
	templates, err := load(filename)
	if err != nil {
		return nil, err
	}

	keys := make([]string, 0, len(templates))
	for key := range templates {
		keys = append(keys, key)
	}
	return keys, nil
}

// Package mapping resolves budget identifiers to the projects they guard.
package mapping

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// EnvVar is the environment variable the deployed function reads the mapping from.
const EnvVar = "BUDGET_ID_TO_PROJECT_ID_MAPPING"

// Mapping maps budget ids to project ids. It is read-only once built.
type Mapping map[string]string

// Parse decodes a JSON object of budget id to project id. Empty input yields an
// empty mapping. Malformed input also yields an empty mapping; the decode error
// is returned alongside so callers can log it.
func Parse(raw string) (Mapping, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Mapping{}, nil
	}

	var m map[string]string
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		return Mapping{}, fmt.Errorf("parse budget mapping: %w", err)
	}
	if m == nil {
		return Mapping{}, nil
	}
	return Mapping(m), nil
}

// Resolve returns the project id for a budget id.
func (m Mapping) Resolve(budgetID string) (string, bool) {
	if budgetID == "" {
		return "", false
	}
	projectID, ok := m[budgetID]
	if !ok || projectID == "" {
		return "", false
	}
	return projectID, true
}

// Marshal encodes the mapping as the JSON object Parse accepts.
func (m Mapping) Marshal() (string, error) {
	if m == nil {
		return "{}", nil
	}
	data, err := json.Marshal(map[string]string(m))
	if err != nil {
		return "", fmt.Errorf("marshal budget mapping: %w", err)
	}
	return string(data), nil
}

// BudgetIDs returns the mapped budget ids in sorted order.
func (m Mapping) BudgetIDs() []string {
	ids := make([]string, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Projects returns the distinct mapped project ids in sorted order.
func (m Mapping) Projects() []string {
	seen := make(map[string]struct{}, len(m))
	projects := make([]string, 0, len(m))
	for _, p := range m {
		if _, ok := seen[p]; ok || p == "" {
			continue
		}
		seen[p] = struct{}{}
		projects = append(projects, p)
	}
	sort.Strings(projects)
	return projects
}

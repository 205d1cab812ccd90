// Package manifest loads the project details the budgets were provisioned
// from and backs them up to object storage.
package manifest

import (
	"fmt"
	"os"
	"sort"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/ogulcanaydogan/billing-killswitch/pkg/mapping"
)

// ProjectDetails describes one guarded project.
type ProjectDetails struct {
	DisplayName  string   `yaml:"projectDisplayName" json:"projectDisplayName"`
	ProjectID    string   `yaml:"projectId" json:"projectId"`
	Owners       []string `yaml:"owners" json:"owners"`
	BudgetAmount string   `yaml:"budgetAmount" json:"budgetAmount"`
}

// Manifest is the list of guarded projects.
type Manifest struct {
	Projects []ProjectDetails `yaml:"projects" json:"projects"`
}

// Load reads and validates a YAML manifest file.
func Load(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read manifest %s: %w", path, err)
	}

	m, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("manifest %s: %w", path, err)
	}
	return m, nil
}

// Parse decodes and validates YAML manifest data.
func Parse(data []byte) (*Manifest, error) {
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse manifest: %w", err)
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

// Validate checks project ids are present and unique and budget amounts are positive decimals.
func (m *Manifest) Validate() error {
	if len(m.Projects) == 0 {
		return fmt.Errorf("no projects defined")
	}

	seen := make(map[string]struct{}, len(m.Projects))
	for i, p := range m.Projects {
		if p.ProjectID == "" {
			return fmt.Errorf("project %d: missing projectId", i)
		}
		if _, ok := seen[p.ProjectID]; ok {
			return fmt.Errorf("project %q: duplicate projectId", p.ProjectID)
		}
		seen[p.ProjectID] = struct{}{}

		amount, err := decimal.NewFromString(p.BudgetAmount)
		if err != nil {
			return fmt.Errorf("project %q: invalid budgetAmount %q: %w", p.ProjectID, p.BudgetAmount, err)
		}
		if !amount.IsPositive() {
			return fmt.Errorf("project %q: budgetAmount must be positive", p.ProjectID)
		}
	}
	return nil
}

// Find returns the details of a project id.
func (m *Manifest) Find(projectID string) (ProjectDetails, bool) {
	for _, p := range m.Projects {
		if p.ProjectID == projectID {
			return p, true
		}
	}
	return ProjectDetails{}, false
}

// Unmapped returns the manifest projects that no budget in bm resolves to.
// Those projects would never be switched off.
func (m *Manifest) Unmapped(bm mapping.Mapping) []string {
	mapped := make(map[string]struct{}, len(bm))
	for _, p := range bm {
		mapped[p] = struct{}{}
	}

	var out []string
	for _, p := range m.Projects {
		if _, ok := mapped[p.ProjectID]; !ok {
			out = append(out, p.ProjectID)
		}
	}
	sort.Strings(out)
	return out
}

// Unknown returns the mapped projects that are absent from the manifest.
func (m *Manifest) Unknown(bm mapping.Mapping) []string {
	var out []string
	for _, p := range bm.Projects() {
		if _, ok := m.Find(p); !ok {
			out = append(out, p)
		}
	}
	return out
}

package training

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/HatiCode/respond/pkg/models"
)

// Candidate is one model configuration evaluated by the trainer.
type Candidate struct {
	Name   string        `yaml:"name"`
	Kind   models.Kind   `yaml:"kind"`
	Params models.Params `yaml:"params,omitempty"`
}

// DefaultPanel returns the standard candidate list in evaluation order.
// Order matters: on a full tie the earlier candidate wins.
func DefaultPanel() []Candidate {
	return []Candidate{
		{Name: "LinearRegression", Kind: models.KindLinear},
		{Name: "Ridge", Kind: models.KindRidge, Params: models.Params{Alpha: 1.0}},
		{Name: "Lasso", Kind: models.KindLasso, Params: models.Params{Alpha: 0.01}},
		{Name: "DecisionTree", Kind: models.KindTree, Params: models.Params{MaxDepth: 6}},
		{Name: "RandomForest", Kind: models.KindForest, Params: models.Params{Seed: 42}},
		{Name: "ExtraTrees", Kind: models.KindExtraTrees, Params: models.Params{Seed: 42}},
		{Name: "GradientBoosting", Kind: models.KindGBM},
		{Name: "Prophet", Kind: models.KindDecomposition},
	}
}

type panelFile struct {
	Candidates []Candidate `yaml:"candidates"`
}

// LoadPanel reads a YAML candidate list:
//
//	candidates:
//	  - name: Ridge
//	    kind: ridge
//	    params: {alpha: 0.5}
func LoadPanel(path string) ([]Candidate, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read panel: %w", err)
	}
	var pf panelFile
	if err := yaml.Unmarshal(raw, &pf); err != nil {
		return nil, fmt.Errorf("parse panel %s: %w", path, err)
	}
	if err := ValidatePanel(pf.Candidates); err != nil {
		return nil, fmt.Errorf("panel %s: %w", path, err)
	}
	return pf.Candidates, nil
}

// ValidatePanel checks that the panel is non-empty, names are unique and
// kinds are known.
func ValidatePanel(panel []Candidate) error {
	if len(panel) == 0 {
		return errors.New("panel has no candidates")
	}
	seen := make(map[string]bool, len(panel))
	for i, c := range panel {
		if c.Name == "" {
			return fmt.Errorf("candidate %d has no name", i)
		}
		if seen[c.Name] {
			return fmt.Errorf("duplicate candidate name %q", c.Name)
		}
		seen[c.Name] = true
		if _, err := models.ParseKind(string(c.Kind)); err != nil {
			return fmt.Errorf("candidate %q: %w", c.Name, err)
		}
	}
	return nil
}

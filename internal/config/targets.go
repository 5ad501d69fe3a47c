package config

import (
	"fmt"
	"os"
	"path"
	"time"

	"github.com/SteelMorgan/rs2-log-harvester/internal/glob"
	"gopkg.in/yaml.v3"
)

// PruneRule describes one remote directory swept by the pruner
type PruneRule struct {
	Path          string `yaml:"path"`
	Pattern       string `yaml:"pattern"`
	RetentionDays int    `yaml:"retention_days"`
}

// Validate checks the rule's pattern and retention
func (r PruneRule) Validate() error {
	if r.Path == "" {
		return fmt.Errorf("prune rule: path is required")
	}
	if !path.IsAbs(r.Path) {
		return fmt.Errorf("prune rule %s: path must be absolute", r.Path)
	}
	if err := glob.Validate(r.Pattern); err != nil {
		return fmt.Errorf("prune rule %s: invalid pattern %q: %w", r.Path, r.Pattern, err)
	}
	if r.RetentionDays < 1 {
		return fmt.Errorf("prune rule %s: retention_days must be at least 1", r.Path)
	}
	return nil
}

// Retention returns the rule's retention window
func (r PruneRule) Retention() time.Duration {
	return time.Duration(r.RetentionDays) * 24 * time.Hour
}

// Targets lists the remote files polled and the directories pruned
type Targets struct {
	Logs  []string    `yaml:"logs"`
	Prune []PruneRule `yaml:"prune"`
}

// LoadTargets loads a targets YAML file
func LoadTargets(path string) (*Targets, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read targets file: %w", err)
	}

	var t Targets
	if err := yaml.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("failed to parse targets file: %w", err)
	}

	return &t, nil
}

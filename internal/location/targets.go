package location

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// targetsFile is the YAML layout of the targets seed file.
//
//	targets:
//	  - id: home
//	    name: Home
//	    coordinates: {latitude: 52.37, longitude: 4.89}
type targetsFile struct {
	Targets []Target `yaml:"targets"`
}

// LoadTargets reads and validates the targets in the YAML file at path.
// A missing file yields no targets.
func LoadTargets(path string) ([]Target, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading targets file: %w", err)
	}

	var f targetsFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parsing targets file: %w", err)
	}

	seen := make(map[string]bool, len(f.Targets))
	for _, t := range f.Targets {
		if err := ValidateTarget(t); err != nil {
			return nil, fmt.Errorf("target %q: %w", t.ID, err)
		}
		if seen[t.ID] {
			return nil, fmt.Errorf("%w: duplicate target %q", ErrInvalidID, t.ID)
		}
		seen[t.ID] = true
	}
	return f.Targets, nil
}

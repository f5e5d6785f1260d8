package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/stuKim0221/smart-lotto/pkg/models"
)

// presetFile is the on-disk layout:
//
//	presets:
//	  balanced:
//	    sum: {min: 100, max: 175}
//	    odd: {min: 2, max: 4}
//	    max_consecutive_run: 2
type presetFile struct {
	Presets map[string]models.FilterPolicy `yaml:"presets"`
}

// DefaultFilterPresets is used when no presets file is configured.
func DefaultFilterPresets() map[string]models.FilterPolicy {
	return map[string]models.FilterPolicy{
		"none": {},
		"balanced": {
			Sum:               &models.IntRange{Min: 100, Max: 175},
			Odd:               &models.IntRange{Min: 2, Max: 4},
			MaxConsecutiveRun: 2,
			Distinct:          true,
		},
		"quality": {
			Sum:        &models.IntRange{Min: 90, Max: 185},
			Distinct:   true,
			MinQuality: 60,
		},
	}
}

// LoadFilterPresets reads named filter policies from a YAML file. An empty
// path yields the defaults. Every preset is validated.
func LoadFilterPresets(path string) (map[string]models.FilterPolicy, error) {
	if path == "" {
		return DefaultFilterPresets(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read presets file: %w", err)
	}

	var file presetFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse presets file %s: %w", path, err)
	}
	if len(file.Presets) == 0 {
		return nil, fmt.Errorf("presets file %s defines no presets", path)
	}

	for name, policy := range file.Presets {
		if err := policy.Validate(); err != nil {
			return nil, fmt.Errorf("preset %q: %w", name, err)
		}
	}
	return file.Presets, nil
}

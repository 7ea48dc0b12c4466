// Package config provides configuration loading, merging and validation
// for vesselexpress. The configuration is a nested key/value tree: a
// default tree is built once at startup, an optional user overlay is
// deep-merged over it, and the merged result is validated and persisted
// into the workspace for the workflow engine. Unknown keys pass through
// the merge untouched so user configs can carry parameters this tool
// does not know about.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"vesselexpress/internal/models"
)

// Config is a nested mapping of string keys to scalars and sub-mappings.
type Config map[string]any

// ValidationError reports a missing or malformed required key.
type ValidationError struct {
	// Key is the dotted path of the offending key.
	Key string

	// Reason explains what is wrong with it.
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid configuration: key %q: %s", e.Key, e.Reason)
}

// DefaultConfig returns the default parameter tree. The key names,
// including the "lenght_limit" spelling, are exactly what the
// downstream pipeline stages read and must not be corrected here.
func DefaultConfig() Config {
	return Config{
		"3d": true,
		"segmentation": Config{
			"threshold":    0.5,
			"smallRAMmode": false,
		},
		"graphAnalysis": Config{
			"pixel_dimensions": "1.0,1.0,1.0",
			"pruning_scale":    1.5,
			"lenght_limit":     3.0,
		},
	}
}

// LoadOverlay reads a user configuration overlay from a YAML or JSON
// file. JSON is a subset of YAML, so the original config.json files
// load unchanged.
func LoadOverlay(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}
	return cfg, nil
}

// Merge deep-merges overlay over base and returns a new tree; neither
// input is modified. When a key holds a nested mapping on both sides
// the mappings merge recursively; any other collision is resolved by
// taking the overlay's value wholesale.
func Merge(base, overlay Config) Config {
	out := make(Config, len(base))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range overlay {
		bm, baseIsMap := asMapping(out[k])
		om, overlayIsMap := asMapping(v)
		if baseIsMap && overlayIsMap {
			out[k] = Merge(bm, om)
		} else {
			out[k] = v
		}
	}
	return out
}

// asMapping normalizes the mapping representations that reach a merge:
// Config literals from DefaultConfig and map[string]any from yaml.
func asMapping(v any) (Config, bool) {
	switch m := v.(type) {
	case Config:
		return m, true
	case map[string]any:
		return Config(m), true
	default:
		return nil, false
	}
}

// Validate checks that every key the downstream pipeline requires is
// present with a value of the expected type. The first problem found is
// returned as a *ValidationError; a run must not proceed past it.
func Validate(cfg Config) error {
	if _, ok := cfg["3d"]; !ok {
		return &ValidationError{Key: "3d", Reason: "missing"}
	}
	if _, ok := cfg["3d"].(bool); !ok {
		return &ValidationError{Key: "3d", Reason: "must be a boolean"}
	}

	seg, ok := asMapping(cfg["segmentation"])
	if !ok {
		return &ValidationError{Key: "segmentation", Reason: "missing or not a mapping"}
	}
	if _, ok := asNumber(seg["threshold"]); !ok {
		return &ValidationError{Key: "segmentation.threshold", Reason: "must be a number"}
	}

	ga, ok := asMapping(cfg["graphAnalysis"])
	if !ok {
		return &ValidationError{Key: "graphAnalysis", Reason: "missing or not a mapping"}
	}
	dims, ok := ga["pixel_dimensions"].(string)
	if !ok {
		return &ValidationError{Key: "graphAnalysis.pixel_dimensions", Reason: "must be a string"}
	}
	if _, err := ParseSpacing(dims); err != nil {
		return &ValidationError{Key: "graphAnalysis.pixel_dimensions", Reason: err.Error()}
	}
	if _, ok := asNumber(ga["pruning_scale"]); !ok {
		return &ValidationError{Key: "graphAnalysis.pruning_scale", Reason: "must be a number"}
	}
	if _, ok := asNumber(ga["lenght_limit"]); !ok {
		return &ValidationError{Key: "graphAnalysis.lenght_limit", Reason: "must be a number"}
	}

	return nil
}

// asNumber accepts the numeric representations yaml produces.
func asNumber(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case float64:
		return n, true
	case float32:
		return float64(n), true
	default:
		return 0, false
	}
}

// ParseSpacing parses a "z,y,x" spacing string into a VoxelSpacing,
// requiring exactly three strictly positive components.
func ParseSpacing(s string) (models.VoxelSpacing, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 3 {
		return models.VoxelSpacing{}, fmt.Errorf("want three comma-separated values, got %d", len(parts))
	}
	vals := make([]float64, 3)
	for i, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return models.VoxelSpacing{}, fmt.Errorf("component %d is not a number: %q", i+1, p)
		}
		if v <= 0 {
			return models.VoxelSpacing{}, fmt.Errorf("component %d must be positive, got %v", i+1, v)
		}
		vals[i] = v
	}
	return models.VoxelSpacing{Z: vals[0], Y: vals[1], X: vals[2]}, nil
}

// WithSpacing returns a copy of cfg with the extracted voxel spacing
// injected into graphAnalysis.pixel_dimensions. Applied to the default
// tree before the user overlay merges, so an explicit user value still
// wins.
func WithSpacing(cfg Config, spacing models.VoxelSpacing) Config {
	return Merge(cfg, Config{
		"graphAnalysis": Config{"pixel_dimensions": spacing.String()},
	})
}

// Save writes the merged configuration into the workspace as JSON (the
// workflow engine reads config.json). The directory is created if
// needed; the file is written via a temporary sibling and rename.
func Save(path string, cfg Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("error creating config directory: %w", err)
	}

	data, err := json.MarshalIndent(cfg, "", "    ")
	if err != nil {
		return fmt.Errorf("error marshaling config: %w", err)
	}
	data = append(data, '\n')

	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("error writing config file: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("error writing config file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("error writing config file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("error writing config file: %w", err)
	}
	return nil
}

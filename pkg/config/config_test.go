package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vesselexpress/internal/models"
)

func TestDefaultConfigValidates(t *testing.T) {
	require.NoError(t, Validate(DefaultConfig()))
}

func TestMergeEmptyOverlayIsIdentity(t *testing.T) {
	def := DefaultConfig()
	merged := Merge(def, Config{})
	assert.Equal(t, def, merged)
}

func TestMergeNestedFieldLevel(t *testing.T) {
	def := DefaultConfig()
	overlay := Config{
		"graphAnalysis": Config{"pixel_dimensions": "2.0,0.5,0.5"},
	}

	merged := Merge(def, overlay)

	ga, ok := asMapping(merged["graphAnalysis"])
	require.True(t, ok)
	assert.Equal(t, "2.0,0.5,0.5", ga["pixel_dimensions"])

	// Siblings inside the nested mapping survive the merge.
	assert.Equal(t, 1.5, ga["pruning_scale"])
	assert.Equal(t, 3.0, ga["lenght_limit"])
}

func TestMergeScalarReplacesWholesale(t *testing.T) {
	base := Config{"3d": true, "tags": []any{"a", "b"}}
	overlay := Config{"tags": []any{"c"}}

	merged := Merge(base, overlay)
	assert.Equal(t, []any{"c"}, merged["tags"])
	assert.Equal(t, true, merged["3d"])
}

func TestMergeUnknownKeysPassThrough(t *testing.T) {
	overlay := Config{
		"rendering": Config{"device": "gpu"},
		"graphAnalysis": Config{
			"experimental_flag": 7,
		},
	}

	merged := Merge(DefaultConfig(), overlay)
	require.NoError(t, Validate(merged))

	r, ok := asMapping(merged["rendering"])
	require.True(t, ok)
	assert.Equal(t, "gpu", r["device"])

	ga, _ := asMapping(merged["graphAnalysis"])
	assert.Equal(t, 7, ga["experimental_flag"])
}

func TestMergeDoesNotMutateInputs(t *testing.T) {
	base := Config{"a": Config{"x": 1}}
	overlay := Config{"a": Config{"x": 2}}

	merged := Merge(base, overlay)

	bm, _ := asMapping(base["a"])
	mm, _ := asMapping(merged["a"])
	assert.Equal(t, 1, bm["x"])
	assert.Equal(t, 2, mm["x"])
}

func TestLoadOverlayJSON(t *testing.T) {
	// The original pipeline configs are JSON; they must load as-is.
	path := filepath.Join(t.TempDir(), "config.json")
	body := `{"segmentation": {"threshold": 0.75}, "graphAnalysis": {"pixel_dimensions": "2.0,1.0,1.0"}}`
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))

	overlay, err := LoadOverlay(path)
	require.NoError(t, err)

	merged := Merge(DefaultConfig(), overlay)
	require.NoError(t, Validate(merged))

	seg, _ := asMapping(merged["segmentation"])
	assert.Equal(t, 0.75, seg["threshold"])
	assert.Equal(t, false, seg["smallRAMmode"])
}

func TestLoadOverlayMissingFile(t *testing.T) {
	_, err := LoadOverlay(filepath.Join(t.TempDir(), "absent.json"))
	assert.Error(t, err)
}

func TestValidateErrors(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(Config) Config
		wantKey string
	}{
		{
			name: "missing 3d",
			mutate: func(c Config) Config {
				delete(c, "3d")
				return c
			},
			wantKey: "3d",
		},
		{
			name: "3d wrong type",
			mutate: func(c Config) Config {
				c["3d"] = "yes"
				return c
			},
			wantKey: "3d",
		},
		{
			name: "segmentation replaced by scalar",
			mutate: func(c Config) Config {
				c["segmentation"] = 1
				return c
			},
			wantKey: "segmentation",
		},
		{
			name: "pixel dimensions not parseable",
			mutate: func(c Config) Config {
				return Merge(c, Config{"graphAnalysis": Config{"pixel_dimensions": "a,b,c"}})
			},
			wantKey: "graphAnalysis.pixel_dimensions",
		},
		{
			name: "pixel dimensions non-positive",
			mutate: func(c Config) Config {
				return Merge(c, Config{"graphAnalysis": Config{"pixel_dimensions": "0,1,1"}})
			},
			wantKey: "graphAnalysis.pixel_dimensions",
		},
		{
			name: "pixel dimensions wrong arity",
			mutate: func(c Config) Config {
				return Merge(c, Config{"graphAnalysis": Config{"pixel_dimensions": "1.0,1.0"}})
			},
			wantKey: "graphAnalysis.pixel_dimensions",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(tt.mutate(DefaultConfig()))
			require.Error(t, err)

			var valErr *ValidationError
			require.ErrorAs(t, err, &valErr)
			assert.Equal(t, tt.wantKey, valErr.Key)
			assert.NotEmpty(t, valErr.Reason)
		})
	}
}

func TestParseSpacing(t *testing.T) {
	got, err := ParseSpacing("2.0,0.5,0.5")
	require.NoError(t, err)
	assert.Equal(t, models.VoxelSpacing{Z: 2.0, Y: 0.5, X: 0.5}, got)

	_, err = ParseSpacing("1.0,1.0")
	assert.Error(t, err)
	_, err = ParseSpacing("1.0,-1.0,1.0")
	assert.Error(t, err)
}

func TestWithSpacing(t *testing.T) {
	cfg := WithSpacing(DefaultConfig(), models.VoxelSpacing{Z: 2, Y: 0.5, X: 0.5})

	ga, _ := asMapping(cfg["graphAnalysis"])
	assert.Equal(t, "2.0,0.5,0.5", ga["pixel_dimensions"])

	// A user overlay applied afterwards still wins.
	merged := Merge(cfg, Config{"graphAnalysis": Config{"pixel_dimensions": "3.0,3.0,3.0"}})
	ga, _ = asMapping(merged["graphAnalysis"])
	assert.Equal(t, "3.0,3.0,3.0", ga["pixel_dimensions"])
}

func TestSaveWritesJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "workspace", "config.json")
	require.NoError(t, Save(path, DefaultConfig()))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)

	var got map[string]any
	require.NoError(t, json.Unmarshal(raw, &got))
	assert.Equal(t, true, got["3d"])
	ga, ok := got["graphAnalysis"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "1.0,1.0,1.0", ga["pixel_dimensions"])
}

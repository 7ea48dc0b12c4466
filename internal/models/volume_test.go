package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestVoxelSpacingString(t *testing.T) {
	tests := []struct {
		name    string
		spacing VoxelSpacing
		want    string
	}{
		{
			name:    "whole numbers keep one decimal",
			spacing: VoxelSpacing{Z: 2.0, Y: 0.5, X: 0.5},
			want:    "2.0,0.5,0.5",
		},
		{
			name:    "unit spacing",
			spacing: VoxelSpacing{Z: 1, Y: 1, X: 1},
			want:    "1.0,1.0,1.0",
		},
		{
			name:    "fractional values unchanged",
			spacing: VoxelSpacing{Z: 0.25, Y: 0.33, X: 1.75},
			want:    "0.25,0.33,1.75",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.spacing.String())
		})
	}
}

func TestVoxelSpacingValid(t *testing.T) {
	assert.True(t, VoxelSpacing{Z: 2, Y: 0.5, X: 0.5}.Valid())
	assert.False(t, VoxelSpacing{Z: 0, Y: 1, X: 1}.Valid())
	assert.False(t, VoxelSpacing{Z: 1, Y: -1, X: 1}.Valid())
}

func TestVolumeIndexing(t *testing.T) {
	// 2x2x2 volume, z outermost.
	vol := &Volume{
		Data:   []float64{0, 1, 2, 3, 4, 5, 6, 7},
		Width:  2,
		Height: 2,
		Depth:  2,
	}

	assert.Equal(t, 0.0, vol.At(0, 0, 0))
	assert.Equal(t, 1.0, vol.At(1, 0, 0))
	assert.Equal(t, 2.0, vol.At(0, 1, 0))
	assert.Equal(t, 4.0, vol.At(0, 0, 1))
	assert.Equal(t, 7.0, vol.At(1, 1, 1))
	assert.Equal(t, "(2, 2, 2)", vol.ShapeString())
}

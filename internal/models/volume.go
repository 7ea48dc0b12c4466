// Package models defines the shared data types passed between the
// decoding, normalization and reporting stages.
package models

import (
	"fmt"
	"strconv"
	"strings"
)

// DType identifies the numeric sample type of a decoded volume.
type DType string

// Sample types produced by the supported container decoders.
const (
	Uint8   DType = "uint8"
	Int8    DType = "int8"
	Int16   DType = "int16"
	Uint16  DType = "uint16"
	Int32   DType = "int32"
	Uint32  DType = "uint32"
	Float32 DType = "float32"
	Float64 DType = "float64"
)

// VoxelSpacing is the physical distance represented by one sample along
// each spatial axis, ordered (z, y, x) to match the downstream pipeline's
// pixel_dimensions convention. All components are strictly positive.
type VoxelSpacing struct {
	Z, Y, X float64
}

// String renders the spacing as "z,y,x" with a consistent decimal form,
// e.g. (2.0, 0.5, 0.5) -> "2.0,0.5,0.5".
func (s VoxelSpacing) String() string {
	return formatMM(s.Z) + "," + formatMM(s.Y) + "," + formatMM(s.X)
}

// Valid reports whether all three components are strictly positive.
func (s VoxelSpacing) Valid() bool {
	return s.Z > 0 && s.Y > 0 && s.X > 0
}

// formatMM formats a physical distance so whole numbers keep one decimal
// place ("2" would be ambiguous next to "2.0" in user-edited configs).
func formatMM(v float64) string {
	str := strconv.FormatFloat(v, 'f', -1, 64)
	if !strings.ContainsAny(str, ".eE") {
		str += ".0"
	}
	return str
}

// Volume is a decoded 3D image volume with calibration metadata.
// Data is stored as a 1D array in row-major order with z outermost:
// index = z*Width*Height + y*Width + x. A planar image is a Volume with
// Depth 1. Data is never mutated after decoding, only replaced.
type Volume struct {
	// Data is the volume data as a 1D array in row-major order.
	// Samples are widened to float64 regardless of the source dtype.
	Data []float64

	// Width, Height and Depth are the dimensions of the volume in voxels.
	Width, Height, Depth int

	// DType is the sample type of the source container, kept for
	// reporting; Data itself is always float64.
	DType DType

	// Spacing is the physical voxel spacing from the container header.
	// Nil when the source format carries no calibration.
	Spacing *VoxelSpacing
}

// ShapeString renders the volume dimensions in (z, y, x) order, matching
// the axis convention used for spacing.
func (v *Volume) ShapeString() string {
	return fmt.Sprintf("(%d, %d, %d)", v.Depth, v.Height, v.Width)
}

// At returns the sample at the given voxel coordinate.
func (v *Volume) At(x, y, z int) float64 {
	return v.Data[z*v.Width*v.Height+y*v.Width+x]
}

// NormalizedVolume is a volume after intensity normalization into the
// fixed 16-bit unsigned range used by the canonical working format.
type NormalizedVolume struct {
	// Data holds one uint16 sample per voxel, same layout as Volume.Data.
	Data []uint16

	// Width, Height and Depth are the dimensions of the volume in voxels.
	Width, Height, Depth int
}

// At returns the sample at the given voxel coordinate.
func (v *NormalizedVolume) At(x, y, z int) uint16 {
	return v.Data[z*v.Width*v.Height+y*v.Width+x]
}

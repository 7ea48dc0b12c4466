// Package format classifies input image paths into the closed set of
// formats the pipeline accepts. Detection is purely extension-driven;
// the compound ".nii.gz" suffix is handled before the single-suffix pass
// so a compressed NIfTI volume is never misread as a plain gzip file.
package format

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

// Kind is the format classification of an input path.
type Kind int

const (
	// KindUnsupported marks a path with no recognized image suffix.
	KindUnsupported Kind = iota

	// KindPlanarRaster is a single-plane raster image (.png, .jpg),
	// passed through to the pipeline unmodified.
	KindPlanarRaster

	// KindMultiPageRaster is a TIFF stack (.tif, .tiff), the canonical
	// working format, passed through unmodified.
	KindMultiPageRaster

	// KindVolumetric is a calibrated volumetric container (.nii,
	// .nii.gz) that is converted into the canonical format.
	KindVolumetric
)

// String returns a human-readable format label.
func (k Kind) String() string {
	switch k {
	case KindPlanarRaster:
		return "planar raster"
	case KindMultiPageRaster:
		return "multi-page raster"
	case KindVolumetric:
		return "volumetric (NIfTI)"
	default:
		return "unsupported"
	}
}

// ErrUnsupportedFormat indicates the input path has no recognized suffix.
var ErrUnsupportedFormat = errors.New("unsupported input format")

// Descriptor describes a classified input path. It is created once per
// invocation and never modified afterwards.
type Descriptor struct {
	// Path is the raw input path as given on the command line.
	Path string

	// Kind is the detected format classification.
	Kind Kind

	// Compound is true when the path matched a two-part suffix
	// (currently only ".nii.gz").
	Compound bool
}

// Detect classifies an input path by extension.
// It returns ErrUnsupportedFormat (wrapped with the path) when no known
// suffix matches.
func Detect(path string) (Descriptor, error) {
	lower := strings.ToLower(filepath.Base(path))

	// Compound suffix first: a naive filepath.Ext would see ".gz".
	if strings.HasSuffix(lower, ".nii.gz") {
		return Descriptor{Path: path, Kind: KindVolumetric, Compound: true}, nil
	}

	switch filepath.Ext(lower) {
	case ".nii":
		return Descriptor{Path: path, Kind: KindVolumetric}, nil
	case ".tif", ".tiff":
		return Descriptor{Path: path, Kind: KindMultiPageRaster}, nil
	case ".png", ".jpg", ".jpeg":
		return Descriptor{Path: path, Kind: KindPlanarRaster}, nil
	}

	return Descriptor{Path: path, Kind: KindUnsupported},
		fmt.Errorf("%w: %s", ErrUnsupportedFormat, path)
}

// Stem returns the base name of the path with its format suffix removed,
// handling the compound ".nii.gz" case, e.g. "brain.nii.gz" -> "brain".
// The canonical working file and the metadata sidecar are named after it.
func Stem(path string) string {
	base := filepath.Base(path)
	lower := strings.ToLower(base)
	if strings.HasSuffix(lower, ".nii.gz") {
		return base[:len(base)-len(".nii.gz")]
	}
	return strings.TrimSuffix(base, filepath.Ext(base))
}

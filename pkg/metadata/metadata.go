// Package metadata extracts calibration and shape facts from inputs and
// presents them two ways: a one-shot report for the user (the --info
// flow, which never touches the filesystem) and a persisted sidecar file
// written alongside the canonical working image during conversion.
package metadata

import (
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"os"
	"path/filepath"
	"strings"

	_ "golang.org/x/image/tiff"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"vesselexpress/internal/models"
	"vesselexpress/pkg/format"
)

// Record holds the flattened facts about one input. It is built once
// and never updated.
type Record struct {
	// OriginalPath is the input path as given by the user.
	OriginalPath string

	// Format is the human-readable format label.
	Format string

	// Shape is the rendered shape, (z, y, x) for volumes and (y, x)
	// for planar inputs.
	Shape string

	// DType is the sample type name of the source container.
	DType string

	// Spacing is the voxel spacing; nil for uncalibrated formats.
	Spacing *models.VoxelSpacing

	// SizeBytes is the on-disk size, reported for pass-through inputs.
	SizeBytes int64

	// Intensity statistics over the decoded buffer; only meaningful
	// when HasStats is set (volumetric inputs).
	Min, Max, Mean, StdDev float64
	HasStats               bool
}

// FromVolume builds a record from a decoded volume.
func FromVolume(path string, desc format.Descriptor, vol *models.Volume) Record {
	rec := Record{
		OriginalPath: path,
		Format:       desc.Kind.String(),
		Shape:        vol.ShapeString(),
		DType:        string(vol.DType),
		Spacing:      vol.Spacing,
	}
	if len(vol.Data) > 0 {
		mean, std := stat.MeanStdDev(vol.Data, nil)
		rec.Min = floats.Min(vol.Data)
		rec.Max = floats.Max(vol.Data)
		rec.Mean = mean
		rec.StdDev = std
		rec.HasStats = true
	}
	return rec
}

// InspectRaster builds a reduced record for a pass-through raster input
// by decoding only the image header. No pixel data is read.
func InspectRaster(path string, desc format.Descriptor) (Record, error) {
	rec := Record{
		OriginalPath: path,
		Format:       desc.Kind.String(),
	}

	info, err := os.Stat(path)
	if err != nil {
		return rec, fmt.Errorf("inspecting %s: %w", path, err)
	}
	rec.SizeBytes = info.Size()

	f, err := os.Open(path)
	if err != nil {
		return rec, fmt.Errorf("inspecting %s: %w", path, err)
	}
	defer f.Close()

	cfg, _, err := image.DecodeConfig(f)
	if err != nil {
		return rec, fmt.Errorf("inspecting %s: %w", path, err)
	}
	rec.Shape = fmt.Sprintf("(%d, %d)", cfg.Height, cfg.Width)
	return rec, nil
}

// Report writes the user-facing information block to w. For calibrated
// inputs it includes a ready-to-paste configuration snippet carrying the
// extracted spacing.
func (r Record) Report(w io.Writer) {
	if r.Spacing != nil {
		fmt.Fprintf(w, "\nNIfTI File Information:\n")
		fmt.Fprintf(w, "  File: %s\n", r.OriginalPath)
		fmt.Fprintf(w, "  Shape: %s\n", r.Shape)
		fmt.Fprintf(w, "  Data type: %s\n", r.DType)
		fmt.Fprintf(w, "  Pixel dimensions (z,y,x): %s\n", r.Spacing)
		if r.HasStats {
			fmt.Fprintf(w, "  Intensity range: [%g, %g]\n", r.Min, r.Max)
			fmt.Fprintf(w, "  Intensity mean/stddev: %.4f / %.4f\n", r.Mean, r.StdDev)
		}
		fmt.Fprintf(w, "\n  Note: Add this to your config.json:\n")
		fmt.Fprintf(w, "    \"graphAnalysis\": {\"pixel_dimensions\": %q, ...}\n", r.Spacing.String())
		return
	}

	fmt.Fprintf(w, "File: %s\n", r.OriginalPath)
	fmt.Fprintf(w, "Format: %s\n", r.Format)
	if r.Shape != "" {
		fmt.Fprintf(w, "Dimensions: %s\n", r.Shape)
	}
	fmt.Fprintf(w, "Size: %d bytes\n", r.SizeBytes)
}

// SidecarPath returns the metadata sidecar path for a canonical working
// image, e.g. out/brain.tiff -> out/brain_nifti_metadata.txt.
func SidecarPath(canonicalPath string) string {
	dir := filepath.Dir(canonicalPath)
	stem := strings.TrimSuffix(filepath.Base(canonicalPath), filepath.Ext(canonicalPath))
	return filepath.Join(dir, stem+"_nifti_metadata.txt")
}

// WriteSidecar persists the record next to the canonical working image.
// Written via a temporary file and rename so an interrupted run leaves
// no partial sidecar.
func WriteSidecar(path string, r Record) error {
	var b strings.Builder
	b.WriteString("NIfTI Metadata\n")
	b.WriteString(strings.Repeat("=", 50) + "\n\n")
	fmt.Fprintf(&b, "Original file: %s\n", r.OriginalPath)
	fmt.Fprintf(&b, "Format: %s\n", r.Format)
	fmt.Fprintf(&b, "Shape: %s\n", r.Shape)
	fmt.Fprintf(&b, "Data type: %s\n", r.DType)
	if r.Spacing != nil {
		fmt.Fprintf(&b, "Pixel dimensions (z,y,x): %s\n", r.Spacing)
	}
	if r.HasStats {
		fmt.Fprintf(&b, "Intensity range: [%g, %g]\n", r.Min, r.Max)
		fmt.Fprintf(&b, "Intensity mean/stddev: %.4f / %.4f\n", r.Mean, r.StdDev)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("writing metadata sidecar: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.WriteString(b.String()); err != nil {
		tmp.Close()
		return fmt.Errorf("writing metadata sidecar: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("writing metadata sidecar: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("writing metadata sidecar: %w", err)
	}
	return nil
}

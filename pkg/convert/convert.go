// Package convert prepares an input image for the pipeline workspace:
// volumetric containers are decoded, intensity-normalized and written
// out in the canonical working format with a metadata sidecar, while
// raster inputs are copied through unchanged.
package convert

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"vesselexpress/internal/models"
	"vesselexpress/pkg/format"
	"vesselexpress/pkg/metadata"
	"vesselexpress/pkg/normalize"
	"vesselexpress/pkg/tiffstack"
)

// Result describes what conversion produced.
type Result struct {
	// CanonicalPath is the working image inside the output directory.
	CanonicalPath string

	// SidecarPath is the metadata sidecar; empty for pass-through inputs.
	SidecarPath string

	// Record holds the extracted metadata facts.
	Record metadata.Record

	// Spacing is the voxel spacing from the container header; nil for
	// pass-through inputs.
	Spacing *models.VoxelSpacing

	// Converted is true when the input was decoded and re-encoded
	// rather than copied.
	Converted bool
}

// Volumetric normalizes a decoded calibrated volume and writes the
// canonical multi-page image plus its metadata sidecar into outputDir.
// Write failures abort with the cause and leave no partial output
// behind. The caller decodes (pkg/nifti) so the spacing can feed the
// configuration merge before any file is written.
func Volumetric(desc format.Descriptor, vol *models.Volume, outputDir string) (*Result, error) {
	norm := normalize.Volume(vol)
	rec := metadata.FromVolume(desc.Path, desc, vol)

	canonical := filepath.Join(outputDir, format.Stem(desc.Path)+".tiff")
	if err := tiffstack.Write(canonical, norm); err != nil {
		return nil, err
	}

	sidecar := metadata.SidecarPath(canonical)
	if err := metadata.WriteSidecar(sidecar, rec); err != nil {
		return nil, err
	}

	return &Result{
		CanonicalPath: canonical,
		SidecarPath:   sidecar,
		Record:        rec,
		Spacing:       vol.Spacing,
		Converted:     true,
	}, nil
}

// PassThrough copies a raster input into outputDir unmodified. Copying
// onto itself (input already inside the output directory) is a no-op.
func PassThrough(desc format.Descriptor, outputDir string) (*Result, error) {
	dst := filepath.Join(outputDir, filepath.Base(desc.Path))

	src, err := filepath.Abs(desc.Path)
	if err == nil {
		if abs, aerr := filepath.Abs(dst); aerr == nil && abs == src {
			return &Result{CanonicalPath: dst}, nil
		}
	}

	if err := copyFile(desc.Path, dst); err != nil {
		return nil, err
	}
	return &Result{CanonicalPath: dst}, nil
}

// copyFile copies src to dst via a temporary sibling and rename.
func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("copying input: %w", err)
	}
	defer in.Close()

	tmp, err := os.CreateTemp(filepath.Dir(dst), "."+filepath.Base(dst)+".tmp-*")
	if err != nil {
		return fmt.Errorf("copying input: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, in); err != nil {
		tmp.Close()
		return fmt.Errorf("copying input: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("copying input: %w", err)
	}
	if err := os.Rename(tmp.Name(), dst); err != nil {
		return fmt.Errorf("copying input: %w", err)
	}
	return nil
}

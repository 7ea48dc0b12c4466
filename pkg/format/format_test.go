package format

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDetect(t *testing.T) {
	tests := []struct {
		path     string
		kind     Kind
		compound bool
	}{
		{"brain.nii", KindVolumetric, false},
		{"brain.nii.gz", KindVolumetric, true},
		{"/data/scans/Brain.NII.GZ", KindVolumetric, true},
		{"sample.tif", KindMultiPageRaster, false},
		{"sample.tiff", KindMultiPageRaster, false},
		{"slice.png", KindPlanarRaster, false},
		{"slice.jpg", KindPlanarRaster, false},
		{"slice.jpeg", KindPlanarRaster, false},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			desc, err := Detect(tt.path)
			require.NoError(t, err)
			assert.Equal(t, tt.kind, desc.Kind)
			assert.Equal(t, tt.compound, desc.Compound)
			assert.Equal(t, tt.path, desc.Path)
		})
	}
}

// A compressed NIfTI must not fall through to the inner .gz suffix.
func TestDetectCompoundBeforeGzip(t *testing.T) {
	desc, err := Detect("x.nii.gz")
	require.NoError(t, err)
	assert.Equal(t, KindVolumetric, desc.Kind)
	assert.True(t, desc.Compound)

	_, err = Detect("archive.tar.gz")
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
}

func TestDetectUnsupported(t *testing.T) {
	for _, path := range []string{"volume.raw", "notes.txt", "image", "x.gz"} {
		_, err := Detect(path)
		assert.ErrorIs(t, err, ErrUnsupportedFormat, path)
		assert.ErrorContains(t, err, path)
	}
}

func TestStem(t *testing.T) {
	assert.Equal(t, "brain", Stem("brain.nii.gz"))
	assert.Equal(t, "brain", Stem("/data/brain.nii"))
	assert.Equal(t, "sample", Stem("sample.tiff"))
	assert.Equal(t, "scan.v2", Stem("scan.v2.png"))
}

// Package normalize rescales decoded volumes into the fixed unsigned
// 16-bit intensity range used by the canonical working format.
package normalize

import (
	"math"

	"gonum.org/v1/gonum/floats"

	"vesselexpress/internal/models"
)

// maxValue is the top of the normalized intensity range.
const maxValue = 65535

// Volume maps the input volume's global intensity range onto
// [0, 65535] and returns the result as a 16-bit unsigned volume.
// The mapping is v -> round((v - min) / (max - min) * 65535) over the
// whole buffer, not per slice. A constant volume (max == min) produces
// an all-zero result; that is the documented policy, not an error.
// The input volume is not modified.
func Volume(vol *models.Volume) *models.NormalizedVolume {
	out := &models.NormalizedVolume{
		Data:   make([]uint16, len(vol.Data)),
		Width:  vol.Width,
		Height: vol.Height,
		Depth:  vol.Depth,
	}
	if len(vol.Data) == 0 {
		return out
	}

	lo := floats.Min(vol.Data)
	hi := floats.Max(vol.Data)
	if hi == lo {
		return out
	}

	scale := maxValue / (hi - lo)
	for i, v := range vol.Data {
		s := math.Round((v - lo) * scale)
		if s < 0 {
			s = 0
		} else if s > maxValue {
			s = maxValue
		}
		out.Data[i] = uint16(s)
	}
	return out
}

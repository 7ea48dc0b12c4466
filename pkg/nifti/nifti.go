// Package nifti decodes NIfTI-1 volumetric containers (.nii, .nii.gz)
// into the in-memory volume model. Only the fields the conversion
// pipeline needs are interpreted: dimensions, sample type, physical
// voxel spacing and the intensity scaling pair.
package nifti

import (
	"bufio"
	"bytes"
	"compress/gzip"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"

	"vesselexpress/internal/models"
)

// ErrDecode indicates a malformed or unreadable NIfTI container.
var ErrDecode = errors.New("NIfTI decode error")

// headerSize is the fixed size of a NIfTI-1 header.
const headerSize = 348

// NIfTI-1 datatype codes for the sample types we decode.
const (
	codeUint8   = 2
	codeInt16   = 4
	codeInt32   = 8
	codeFloat32 = 16
	codeFloat64 = 64
	codeInt8    = 256
	codeUint16  = 512
	codeUint32  = 768
)

// header mirrors the on-disk NIfTI-1 header layout. Field order and
// widths must not change; binary.Read fills it as a packed record.
type header struct {
	SizeofHdr     int32
	DataTypeName  [10]byte
	DBName        [18]byte
	Extents       int32
	SessionError  int16
	Regular       byte
	DimInfo       byte
	Dim           [8]int16
	IntentP1      float32
	IntentP2      float32
	IntentP3      float32
	IntentCode    int16
	Datatype      int16
	Bitpix        int16
	SliceStart    int16
	Pixdim        [8]float32
	VoxOffset     float32
	SclSlope      float32
	SclInter      float32
	SliceEnd      int16
	SliceCode     byte
	XyztUnits     byte
	CalMax        float32
	CalMin        float32
	SliceDuration float32
	Toffset       float32
	Glmax         int32
	Glmin         int32
	Descrip       [80]byte
	AuxFile       [24]byte
	QformCode     int16
	SformCode     int16
	QuaternB      float32
	QuaternC      float32
	QuaternD      float32
	QoffsetX      float32
	QoffsetY      float32
	QoffsetZ      float32
	SrowX         [4]float32
	SrowY         [4]float32
	SrowZ         [4]float32
	IntentName    [16]byte
	Magic         [4]byte
}

// Decode reads a NIfTI-1 file and returns the decoded volume. Gzipped
// containers are detected from the stream's magic bytes, so both .nii
// and .nii.gz inputs work regardless of how the path is spelled.
func Decode(path string) (*models.Volume, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	defer f.Close()

	br := bufio.NewReader(f)
	magic, err := br.Peek(2)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrDecode, path, err)
	}

	// For a plain container the file size bounds what the header may
	// claim; a gzip member's decompressed size is unknown up front.
	srcSize := int64(-1)
	var r io.Reader = br
	if magic[0] == 0x1f && magic[1] == 0x8b {
		gz, err := gzip.NewReader(br)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrDecode, path, err)
		}
		defer gz.Close()
		r = gz
	} else if info, err := f.Stat(); err == nil {
		srcSize = info.Size()
	}

	vol, err := decodeStream(r, srcSize)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrDecode, path, err)
	}
	return vol, nil
}

// decodeStream parses the header and voxel buffer from an uncompressed
// NIfTI-1 byte stream. srcSize is the total stream length when known,
// -1 otherwise; header dims are untrusted and must never drive an
// allocation the stream cannot back.
func decodeStream(r io.Reader, srcSize int64) (*models.Volume, error) {
	raw := make([]byte, headerSize)
	if _, err := io.ReadFull(r, raw); err != nil {
		return nil, fmt.Errorf("reading header: %v", err)
	}

	// sizeof_hdr doubles as the byte-order probe: 348 read with the
	// wrong endianness comes out as 0x5c010000.
	var order binary.ByteOrder = binary.LittleEndian
	if binary.LittleEndian.Uint32(raw[0:4]) != headerSize {
		if binary.BigEndian.Uint32(raw[0:4]) != headerSize {
			return nil, fmt.Errorf("not a NIfTI-1 file (sizeof_hdr mismatch)")
		}
		order = binary.BigEndian
	}

	var hdr header
	if err := binary.Read(bytes.NewReader(raw), order, &hdr); err != nil {
		return nil, fmt.Errorf("parsing header: %v", err)
	}

	if m := hdr.Magic; !(m[0] == 'n' && (m[1] == '+' || m[1] == 'i') && m[2] == '1' && m[3] == 0) {
		return nil, fmt.Errorf("bad magic %q", hdr.Magic[:])
	}
	if m := hdr.Magic; m[1] == 'i' {
		// "ni1" means a detached .img data file, which this tool does
		// not handle; single-file "n+1" containers only.
		return nil, fmt.Errorf("detached header/data pairs are not supported")
	}

	ndim := int(hdr.Dim[0])
	if ndim < 2 || ndim > 7 {
		return nil, fmt.Errorf("invalid dimension count %d", ndim)
	}
	nx, ny := int(hdr.Dim[1]), int(hdr.Dim[2])
	nz := 1
	if ndim >= 3 {
		nz = int(hdr.Dim[3])
	}
	if nx <= 0 || ny <= 0 || nz <= 0 {
		return nil, fmt.Errorf("invalid volume shape %dx%dx%d", nx, ny, nz)
	}
	for i := 4; i <= ndim; i++ {
		if hdr.Dim[i] > 1 {
			return nil, fmt.Errorf("only 3D volumes are supported, dim[%d]=%d", i, hdr.Dim[i])
		}
	}

	dtype, sampleSize, err := sampleType(hdr.Datatype)
	if err != nil {
		return nil, err
	}

	// The voxel buffer starts at vox_offset, normally 352 (header plus
	// a four-byte extension flag). Streams are not seekable once they
	// pass through gzip, so skip by reading.
	offset := int64(hdr.VoxOffset)
	if offset < headerSize {
		return nil, fmt.Errorf("invalid vox_offset %v", hdr.VoxOffset)
	}
	if _, err := io.CopyN(io.Discard, r, offset-headerSize); err != nil {
		return nil, fmt.Errorf("seeking to voxel data: %v", err)
	}

	n := nx * ny * nz
	want := int64(nx) * int64(ny) * int64(nz) * int64(sampleSize)
	if srcSize >= 0 && offset+want > srcSize {
		return nil, fmt.Errorf("header claims %d voxel bytes but only %d are present",
			want, srcSize-offset)
	}
	buf, err := readVoxels(r, want)
	if err != nil {
		return nil, fmt.Errorf("reading %d voxels: %v", n, err)
	}

	data := decodeSamples(buf, n, hdr.Datatype, order)

	// scl_slope/scl_inter calibrate stored values into real-world
	// intensities; slope 0 means "no scaling stored".
	slope, inter := float64(hdr.SclSlope), float64(hdr.SclInter)
	if slope != 0 && !(slope == 1 && inter == 0) {
		for i := range data {
			data[i] = data[i]*slope + inter
		}
	}

	return &models.Volume{
		Data:    data,
		Width:   nx,
		Height:  ny,
		Depth:   nz,
		DType:   dtype,
		Spacing: spacingFromHeader(&hdr, ndim),
	}, nil
}

// readVoxels reads exactly want bytes, growing the buffer one bounded
// chunk at a time so a header claiming more data than the stream holds
// fails with a short read instead of committing the full allocation.
func readVoxels(r io.Reader, want int64) ([]byte, error) {
	const chunk = 1 << 20

	first := want
	if first > chunk {
		first = chunk
	}
	buf := make([]byte, 0, first)
	for int64(len(buf)) < want {
		n := want - int64(len(buf))
		if n > chunk {
			n = chunk
		}
		start := len(buf)
		buf = append(buf, make([]byte, n)...)
		if _, err := io.ReadFull(r, buf[start:]); err != nil {
			return nil, err
		}
	}
	return buf, nil
}

// spacingFromHeader extracts voxel spacing from pixdim. The header
// stores pixdim in (x, y, z) axis order; the returned spacing is
// explicitly reordered to the (z, y, x) convention used everywhere
// downstream. Axes with a missing or non-positive pixdim fall back to
// 1.0, as does everything below three dimensions.
func spacingFromHeader(hdr *header, ndim int) *models.VoxelSpacing {
	s := &models.VoxelSpacing{Z: 1.0, Y: 1.0, X: 1.0}
	if ndim < 3 {
		return s
	}
	if v := float64(hdr.Pixdim[1]); v > 0 {
		s.X = v
	}
	if v := float64(hdr.Pixdim[2]); v > 0 {
		s.Y = v
	}
	if v := float64(hdr.Pixdim[3]); v > 0 {
		s.Z = v
	}
	return s
}

// sampleType maps a NIfTI datatype code to the model dtype and its size
// in bytes.
func sampleType(code int16) (models.DType, int, error) {
	switch code {
	case codeUint8:
		return models.Uint8, 1, nil
	case codeInt8:
		return models.Int8, 1, nil
	case codeInt16:
		return models.Int16, 2, nil
	case codeUint16:
		return models.Uint16, 2, nil
	case codeInt32:
		return models.Int32, 4, nil
	case codeUint32:
		return models.Uint32, 4, nil
	case codeFloat32:
		return models.Float32, 4, nil
	case codeFloat64:
		return models.Float64, 8, nil
	default:
		return "", 0, fmt.Errorf("unsupported datatype code %d", code)
	}
}

// decodeSamples widens n raw samples into float64.
func decodeSamples(buf []byte, n int, code int16, order binary.ByteOrder) []float64 {
	data := make([]float64, n)
	switch code {
	case codeUint8:
		for i := 0; i < n; i++ {
			data[i] = float64(buf[i])
		}
	case codeInt8:
		for i := 0; i < n; i++ {
			data[i] = float64(int8(buf[i]))
		}
	case codeInt16:
		for i := 0; i < n; i++ {
			data[i] = float64(int16(order.Uint16(buf[i*2:])))
		}
	case codeUint16:
		for i := 0; i < n; i++ {
			data[i] = float64(order.Uint16(buf[i*2:]))
		}
	case codeInt32:
		for i := 0; i < n; i++ {
			data[i] = float64(int32(order.Uint32(buf[i*4:])))
		}
	case codeUint32:
		for i := 0; i < n; i++ {
			data[i] = float64(order.Uint32(buf[i*4:]))
		}
	case codeFloat32:
		for i := 0; i < n; i++ {
			data[i] = float64(math.Float32frombits(order.Uint32(buf[i*4:])))
		}
	case codeFloat64:
		for i := 0; i < n; i++ {
			data[i] = math.Float64frombits(order.Uint64(buf[i*8:]))
		}
	}
	return data
}

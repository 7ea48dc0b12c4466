// Package tiffstack reads and writes the canonical working format: a
// multi-page baseline TIFF holding one grayscale 16-bit page per
// z-slice, uncompressed, photometric BlackIsZero. This matches the
// container the downstream pipeline stages consume.
//
// The general-purpose TIFF packages stop at a single image per file, so
// the IFD chain is written and walked here directly.
package tiffstack

import (
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"vesselexpress/internal/models"
)

// ErrCorrupt indicates a TIFF stack that cannot be parsed.
var ErrCorrupt = errors.New("corrupt TIFF stack")

// Baseline TIFF tag numbers used by the codec.
const (
	tagImageWidth      = 256
	tagImageLength     = 257
	tagBitsPerSample   = 258
	tagCompression     = 259
	tagPhotometric     = 262
	tagStripOffsets    = 273
	tagSamplesPerPixel = 277
	tagRowsPerStrip    = 278
	tagStripByteCounts = 279
)

// TIFF field types.
const (
	typeShort = 3
	typeLong  = 4
)

const (
	headerSize    = 8
	entrySize     = 12
	entriesPerIFD = 9
	// ifdSize is entry count + entries + next-IFD pointer.
	ifdSize = 2 + entriesPerIFD*entrySize + 4
)

// Write encodes the volume as a multi-page TIFF at path. The file is
// written to a temporary sibling and renamed into place, so a failed
// write never leaves a partial canonical file behind.
func Write(path string, vol *models.NormalizedVolume) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("creating canonical file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := encode(tmp, vol); err != nil {
		tmp.Close()
		return fmt.Errorf("writing canonical file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("writing canonical file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("writing canonical file: %w", err)
	}
	return nil
}

// encode lays the file out as header, then all pixel strips, then the
// IFD chain. Offsets are fully determined up front.
func encode(f *os.File, vol *models.NormalizedVolume) error {
	w, h, d := vol.Width, vol.Height, vol.Depth
	if w <= 0 || h <= 0 || d <= 0 {
		return fmt.Errorf("invalid volume shape %dx%dx%d", w, h, d)
	}
	sliceBytes := w * h * 2
	dataStart := uint32(headerSize)
	ifdStart := dataStart + uint32(d*sliceBytes)

	buf := make([]byte, headerSize+d*sliceBytes+d*ifdSize)
	le := binary.LittleEndian

	// Header: little-endian byte order mark, magic 42, first IFD offset.
	buf[0], buf[1] = 'I', 'I'
	le.PutUint16(buf[2:], 42)
	le.PutUint32(buf[4:], ifdStart)

	for z := 0; z < d; z++ {
		strip := buf[int(dataStart)+z*sliceBytes:]
		slice := vol.Data[z*w*h : (z+1)*w*h]
		for i, s := range slice {
			le.PutUint16(strip[i*2:], s)
		}

		ifd := buf[int(ifdStart)+z*ifdSize:]
		le.PutUint16(ifd, entriesPerIFD)
		off := 2
		put := func(tag, typ uint16, value uint32) {
			le.PutUint16(ifd[off:], tag)
			le.PutUint16(ifd[off+2:], typ)
			le.PutUint32(ifd[off+4:], 1)
			if typ == typeShort {
				le.PutUint16(ifd[off+8:], uint16(value))
			} else {
				le.PutUint32(ifd[off+8:], value)
			}
			off += entrySize
		}
		put(tagImageWidth, typeLong, uint32(w))
		put(tagImageLength, typeLong, uint32(h))
		put(tagBitsPerSample, typeShort, 16)
		put(tagCompression, typeShort, 1)
		put(tagPhotometric, typeShort, 1)
		put(tagStripOffsets, typeLong, dataStart+uint32(z*sliceBytes))
		put(tagSamplesPerPixel, typeShort, 1)
		put(tagRowsPerStrip, typeLong, uint32(h))
		put(tagStripByteCounts, typeLong, uint32(sliceBytes))

		next := uint32(0)
		if z < d-1 {
			next = ifdStart + uint32((z+1)*ifdSize)
		}
		le.PutUint32(ifd[off:], next)
	}

	_, err := f.Write(buf)
	return err
}

// Read decodes a multi-page TIFF written by Write (or any uncompressed
// single-strip-per-page grayscale 16-bit baseline TIFF) back into a
// normalized volume. Pages must share one width and height.
func Read(path string) (*models.NormalizedVolume, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading TIFF stack: %w", err)
	}
	if len(raw) < headerSize {
		return nil, fmt.Errorf("%w: file too short", ErrCorrupt)
	}

	var order binary.ByteOrder
	switch {
	case raw[0] == 'I' && raw[1] == 'I':
		order = binary.LittleEndian
	case raw[0] == 'M' && raw[1] == 'M':
		order = binary.BigEndian
	default:
		return nil, fmt.Errorf("%w: bad byte order mark", ErrCorrupt)
	}
	if order.Uint16(raw[2:]) != 42 {
		return nil, fmt.Errorf("%w: bad magic", ErrCorrupt)
	}

	vol := &models.NormalizedVolume{}
	ifdOff := order.Uint32(raw[4:])
	for ifdOff != 0 {
		page, next, err := readPage(raw, ifdOff, order)
		if err != nil {
			return nil, err
		}
		if vol.Depth == 0 {
			vol.Width, vol.Height = page.width, page.height
		} else if page.width != vol.Width || page.height != vol.Height {
			return nil, fmt.Errorf("%w: page %d shape %dx%d differs from %dx%d",
				ErrCorrupt, vol.Depth, page.width, page.height, vol.Width, vol.Height)
		}
		vol.Data = append(vol.Data, page.samples...)
		vol.Depth++
		ifdOff = next
	}
	if vol.Depth == 0 {
		return nil, fmt.Errorf("%w: no pages", ErrCorrupt)
	}
	return vol, nil
}

type page struct {
	width, height int
	samples       []uint16
}

// readPage parses one IFD and its pixel strip.
func readPage(raw []byte, off uint32, order binary.ByteOrder) (*page, uint32, error) {
	if int(off)+2 > len(raw) {
		return nil, 0, fmt.Errorf("%w: IFD offset out of range", ErrCorrupt)
	}
	count := int(order.Uint16(raw[off:]))
	end := int(off) + 2 + count*entrySize + 4
	if end > len(raw) {
		return nil, 0, fmt.Errorf("%w: truncated IFD", ErrCorrupt)
	}

	fields := map[uint16]uint32{}
	for i := 0; i < count; i++ {
		e := raw[int(off)+2+i*entrySize:]
		tag := order.Uint16(e)
		typ := order.Uint16(e[2:])
		n := order.Uint32(e[4:])
		if n != 1 {
			// Multi-strip files are not produced by this codec; the
			// tags we interpret are all single-valued.
			continue
		}
		switch typ {
		case typeShort:
			fields[tag] = uint32(order.Uint16(e[8:]))
		case typeLong:
			fields[tag] = order.Uint32(e[8:])
		}
	}
	next := order.Uint32(raw[end-4:])

	w := int(fields[tagImageWidth])
	h := int(fields[tagImageLength])
	if w <= 0 || h <= 0 {
		return nil, 0, fmt.Errorf("%w: missing image dimensions", ErrCorrupt)
	}
	if c := fields[tagCompression]; c != 0 && c != 1 {
		return nil, 0, fmt.Errorf("%w: unsupported compression %d", ErrCorrupt, c)
	}
	if b := fields[tagBitsPerSample]; b != 16 {
		return nil, 0, fmt.Errorf("%w: unsupported bits per sample %d", ErrCorrupt, b)
	}

	stripOff := int(fields[tagStripOffsets])
	stripLen := int(fields[tagStripByteCounts])
	if stripLen != w*h*2 || stripOff+stripLen > len(raw) {
		return nil, 0, fmt.Errorf("%w: bad strip geometry", ErrCorrupt)
	}

	samples := make([]uint16, w*h)
	for i := range samples {
		samples[i] = order.Uint16(raw[stripOff+i*2:])
	}
	return &page{width: w, height: h, samples: samples}, next, nil
}

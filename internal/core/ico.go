package core

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"

	"golang.org/x/image/bmp"
)

// Windows icon container support for image.Decode. Most /favicon.ico files
// are either a PNG or a BMP DIB wrapped in an ICONDIR; we pick the largest entry.

const (
	icoDirLen     = 6
	icoEntryLen   = 16
	bmpFileHdrLen = 14
	dibInfoHdrLen = 40
)

var errInvalidICO = errors.New("ico: invalid format")

var pngMagic = []byte("\x89PNG\r\n\x1a\n")

type icoEntry struct {
	width    int
	height   int
	bitCount uint16
	size     uint32
	offset   uint32
}

func init() {
	image.RegisterFormat("ico", "\x00\x00\x01\x00", decodeICO, decodeICOConfig)
}

// largestICOPayload reads the icon directory from r and returns the bytes of its largest entry.
func largestICOPayload(r io.Reader) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, MaxResourceSize))
	if err != nil {
		return nil, err
	}
	entries, err := readICOEntries(data)
	if err != nil {
		return nil, err
	}
	e := largestICOEntry(entries)
	return data[e.offset : e.offset+e.size], nil
}

func decodeICO(r io.Reader) (image.Image, error) {
	payload, err := largestICOPayload(r)
	if err != nil {
		return nil, err
	}
	if bytes.HasPrefix(payload, pngMagic) {
		return png.Decode(bytes.NewReader(payload))
	}
	return decodeDIB(payload)
}

// decodeICOConfig reports the size of the largest entry from headers only.
func decodeICOConfig(r io.Reader) (image.Config, error) {
	payload, err := largestICOPayload(r)
	if err != nil {
		return image.Config{}, err
	}
	if bytes.HasPrefix(payload, pngMagic) {
		return png.DecodeConfig(bytes.NewReader(payload))
	}
	h, err := readDIBHeader(payload)
	if err != nil {
		return image.Config{}, err
	}
	return image.Config{ColorModel: color.NRGBAModel, Width: h.width, Height: h.height}, nil
}

func readICOEntries(data []byte) ([]icoEntry, error) {
	if len(data) < icoDirLen {
		return nil, errInvalidICO
	}
	le := binary.LittleEndian
	if le.Uint16(data[0:]) != 0 || le.Uint16(data[2:]) != 1 {
		return nil, errInvalidICO
	}
	count := int(le.Uint16(data[4:]))
	if count == 0 || len(data) < icoDirLen+count*icoEntryLen {
		return nil, errInvalidICO
	}

	entries := make([]icoEntry, 0, count)
	for i := 0; i < count; i++ {
		raw := data[icoDirLen+i*icoEntryLen:]
		e := icoEntry{
			width:    int(raw[0]),
			height:   int(raw[1]),
			bitCount: le.Uint16(raw[6:]),
			size:     le.Uint32(raw[8:]),
			offset:   le.Uint32(raw[12:]),
		}
		// 0 means 256 in the directory.
		if e.width == 0 {
			e.width = 256
		}
		if e.height == 0 {
			e.height = 256
		}
		end := uint64(e.offset) + uint64(e.size)
		if e.size == 0 || end > uint64(len(data)) {
			continue
		}
		entries = append(entries, e)
	}
	if len(entries) == 0 {
		return nil, fmt.Errorf("%w: no usable entries", errInvalidICO)
	}
	return entries, nil
}

func largestICOEntry(entries []icoEntry) icoEntry {
	best := entries[0]
	for _, e := range entries[1:] {
		area, bestArea := e.width*e.height, best.width*best.height
		if area > bestArea || (area == bestArea && e.bitCount > best.bitCount) {
			best = e
		}
	}
	return best
}

type dibHeader struct {
	size        int
	width       int
	height      int
	bitCount    uint16
	compression uint32
}

// readDIBHeader parses a headerless bitmap as stored in icon files. The stored
// height covers both the color bitmap and the AND mask, so it is halved.
func readDIBHeader(p []byte) (dibHeader, error) {
	if len(p) < dibInfoHdrLen {
		return dibHeader{}, errInvalidICO
	}
	le := binary.LittleEndian
	h := dibHeader{
		size:        int(le.Uint32(p[0:])),
		width:       int(int32(le.Uint32(p[4:]))),
		height:      int(int32(le.Uint32(p[8:]))) / 2,
		bitCount:    le.Uint16(p[14:]),
		compression: le.Uint32(p[16:]),
	}
	if h.size < dibInfoHdrLen || h.size > len(p) || h.width <= 0 || h.height <= 0 {
		return dibHeader{}, errInvalidICO
	}
	if int64(h.width)*int64(h.height) > MaxImagePixels {
		return dibHeader{}, fmt.Errorf("%w: %w", errInvalidICO, ErrImageTooLarge)
	}
	return h, nil
}

func decodeDIB(p []byte) (image.Image, error) {
	h, err := readDIBHeader(p)
	if err != nil {
		return nil, err
	}
	if h.bitCount == 32 && h.compression == 0 {
		return decodeDIB32(p[h.size:], h.width, h.height)
	}

	le := binary.LittleEndian
	palette := 0
	if h.bitCount <= 8 {
		palette = int(le.Uint32(p[32:]))
		if palette == 0 {
			palette = 1 << h.bitCount
		}
	}

	fileHdr := make([]byte, bmpFileHdrLen)
	fileHdr[0], fileHdr[1] = 'B', 'M'
	le.PutUint32(fileHdr[2:], uint32(bmpFileHdrLen+len(p)))
	le.PutUint32(fileHdr[10:], uint32(bmpFileHdrLen+h.size+palette*4))

	info := append([]byte(nil), p...)
	le.PutUint32(info[8:], uint32(h.height))

	return bmp.Decode(io.MultiReader(bytes.NewReader(fileHdr), bytes.NewReader(info)))
}

// decodeDIB32 reads bottom-up BGRA rows. Icons with an all-zero alpha channel are treated as opaque.
func decodeDIB32(pix []byte, width, height int) (image.Image, error) {
	stride := width * 4
	if len(pix) < stride*height {
		return nil, fmt.Errorf("%w: truncated pixel data", errInvalidICO)
	}

	img := image.NewNRGBA(image.Rect(0, 0, width, height))
	hasAlpha := false
	for y := 0; y < height; y++ {
		row := pix[(height-1-y)*stride:]
		for x := 0; x < width; x++ {
			src := row[x*4 : x*4+4]
			dst := img.Pix[y*img.Stride+x*4:]
			dst[0], dst[1], dst[2], dst[3] = src[2], src[1], src[0], src[3]
			if src[3] != 0 {
				hasAlpha = true
			}
		}
	}
	if !hasAlpha {
		for i := 3; i < len(img.Pix); i += 4 {
			img.Pix[i] = 0xff
		}
	}
	return img, nil
}

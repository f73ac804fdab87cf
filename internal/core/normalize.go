package core

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	"math"

	// Decoders registered with image.Decode.
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"
)

var (
	// ErrEmptyImage is returned for images that decode to zero pixels.
	ErrEmptyImage = errors.New("image has no pixels")
	// ErrImageTooLarge is returned when the header declares more than MaxImagePixels.
	ErrImageTooLarge = errors.New("image dimensions too large")
)

// Normalizer decodes arbitrary image bytes and re-encodes them as PNG inside a
// fixed bounding box per image kind.
type Normalizer struct {
	FaviconSize     int
	ThumbnailWidth  int
	ThumbnailHeight int
}

// NewNormalizer returns a Normalizer with the given boxes. Non-positive values fall back to defaults.
func NewNormalizer(faviconSize, thumbnailWidth, thumbnailHeight int) *Normalizer {
	if faviconSize <= 0 {
		faviconSize = DefaultFaviconSize
	}
	if thumbnailWidth <= 0 {
		thumbnailWidth = DefaultThumbnailWidth
	}
	if thumbnailHeight <= 0 {
		thumbnailHeight = DefaultThumbnailHeight
	}
	return &Normalizer{
		FaviconSize:     faviconSize,
		ThumbnailWidth:  thumbnailWidth,
		ThumbnailHeight: thumbnailHeight,
	}
}

// Box returns the bounding box for kind.
func (n *Normalizer) Box(kind string) (int, int) {
	if kind == KindFavicon {
		return n.FaviconSize, n.FaviconSize
	}
	return n.ThumbnailWidth, n.ThumbnailHeight
}

// Normalize decodes data and returns it as a PNG of exactly the kind's box size.
func (n *Normalizer) Normalize(kind string, data []byte) ([]byte, error) {
	w, h := n.Box(kind)
	return normalizeImage(data, w, h)
}

func normalizeImage(data []byte, width, height int) ([]byte, error) {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to read image header: %w", err)
	}
	if err := checkDimensions(cfg.Width, cfg.Height); err != nil {
		return nil, err
	}

	src, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}
	if src.Bounds().Empty() {
		return nil, ErrEmptyImage
	}

	out := containImage(src, width, height)

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, out, imaging.PNG); err != nil {
		return nil, fmt.Errorf("failed to encode PNG: %w", err)
	}
	return buf.Bytes(), nil
}

// checkDimensions rejects header sizes before any pixel buffer is allocated.
func checkDimensions(width, height int) error {
	if width <= 0 || height <= 0 {
		return ErrEmptyImage
	}
	if int64(width)*int64(height) > MaxImagePixels {
		return fmt.Errorf("%w: %dx%d", ErrImageTooLarge, width, height)
	}
	return nil
}

// containImage scales src to fit inside width x height, keeping its aspect
// ratio, and centers it on a transparent canvas of exactly that size.
func containImage(src image.Image, width, height int) image.Image {
	b := src.Bounds()
	scale := math.Min(float64(width)/float64(b.Dx()), float64(height)/float64(b.Dy()))
	w := clampDim(int(math.Round(float64(b.Dx())*scale)), width)
	h := clampDim(int(math.Round(float64(b.Dy())*scale)), height)

	resized := imaging.Resize(src, w, h, imaging.Lanczos)
	canvas := imaging.New(width, height, color.Transparent)
	return imaging.PasteCenter(canvas, resized)
}

func clampDim(v, limit int) int {
	if v < 1 {
		return 1
	}
	if v > limit {
		return limit
	}
	return v
}

// Package geometry rotates camera frames upright and crops them to the
// on-screen overlay box.
package geometry

import (
	"image"
	"log/slog"
	"math"

	"github.com/disintegration/imaging"
)

// Config describes the overlay box of one analysis mode.
type Config struct {
	// BoxWidth and BoxHeight are fractions of the viewport covered by the overlay.
	BoxWidth  float64 `json:"box_width"`
	BoxHeight float64 `json:"box_height"`
	// Padding grows the crop on every side by this fraction of the crop width.
	Padding float64 `json:"padding"`
	// FlipWhenUpright mirrors the frame vertically when no rotation is needed.
	FlipWhenUpright bool `json:"flip_when_upright"`
}

// DefaultObjectConfig returns the overlay used for object detection.
func DefaultObjectConfig() Config {
	return Config{BoxWidth: 0.8, BoxHeight: 0.5}
}

// DefaultTextConfig returns the narrow overlay used for text recognition.
func DefaultTextConfig() Config {
	return Config{BoxWidth: 0.8, BoxHeight: 0.2, Padding: 0.1, FlipWhenUpright: true}
}

// Normalizer applies rotation and the overlay crop. It is stateless and safe
// for concurrent use.
type Normalizer struct {
	cfg Config
}

// NewNormalizer creates a Normalizer for cfg.
func NewNormalizer(cfg Config) *Normalizer {
	return &Normalizer{cfg: cfg}
}

// Config returns the normalizer configuration.
func (n *Normalizer) Config() Config { return n.cfg }

// Normalize rotates img by the clockwise camera rotation and crops it to the
// overlay box for a viewportW x viewportH preview. The result never shares
// pixels with img, so the frame buffer can be recycled right after.
func (n *Normalizer) Normalize(img image.Image, rotation, viewportW, viewportH int) image.Image {
	if img == nil {
		return nil
	}
	upright := Orient(img, rotation, n.cfg.FlipWhenUpright)

	b := upright.Bounds()
	rect, ok := n.CropRect(b.Dx(), b.Dy(), viewportW, viewportH)
	if !ok {
		slog.Debug("Skipping overlay crop", "width", b.Dx(), "height", b.Dy(),
			"viewport_w", viewportW, "viewport_h", viewportH)
		if normalizeDegrees(rotation) == 0 && !n.cfg.FlipWhenUpright {
			return imaging.Clone(upright)
		}
		return upright
	}
	return imaging.Crop(upright, rect.Add(b.Min))
}

// Orient rotates img clockwise by rotation degrees. With no rotation the frame
// is returned as is, or flipped vertically when flip is set.
func Orient(img image.Image, rotation int, flip bool) image.Image {
	switch normalizeDegrees(rotation) {
	case 90:
		return imaging.Rotate270(img)
	case 180:
		return imaging.Rotate180(img)
	case 270:
		return imaging.Rotate90(img)
	default:
		if flip {
			return imaging.FlipV(img)
		}
		return img
	}
}

// CropRect computes the overlay crop for a w x h frame, relative to the frame
// origin. It reports false when no sensible crop exists.
func (n *Normalizer) CropRect(w, h, viewportW, viewportH int) (image.Rectangle, bool) {
	bw, bh := n.cfg.BoxWidth, n.cfg.BoxHeight
	if w <= 0 || h <= 0 || viewportW <= 0 || viewportH <= 0 || bw <= 0 || bh <= 0 {
		return image.Rectangle{}, false
	}

	aspect := (bw * float64(viewportW)) / (bh * float64(viewportH))
	cropW := math.Round(float64(w) * bw)
	cropH := math.Round(float64(h) * bh)
	if cropW <= 0 || cropH <= 0 {
		return image.Rectangle{}, false
	}
	if cropW/cropH > aspect {
		cropW = math.Round(cropH * aspect)
	} else {
		cropH = math.Round(cropW / aspect)
	}

	cw, ch := int(cropW), int(cropH)
	if cw <= 0 || ch <= 0 {
		return image.Rectangle{}, false
	}
	cw = min(cw, w)
	ch = min(ch, h)

	x := clamp((w-cw)/2, 0, w-cw)
	y := clamp((h-ch)/2, 0, h-ch)
	rect := image.Rect(x, y, x+cw, y+ch)

	if n.cfg.Padding > 0 {
		pad := int(math.Round(float64(cw) * n.cfg.Padding))
		rect = rect.Inset(-pad).Intersect(image.Rect(0, 0, w, h))
	}
	if rect.Empty() {
		return image.Rectangle{}, false
	}
	return rect, true
}

func normalizeDegrees(deg int) int {
	deg %= 360
	if deg < 0 {
		deg += 360
	}
	return deg
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

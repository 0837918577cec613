package geometry

import (
	"image"
	"image/color"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var red = color.NRGBA{R: 255, A: 255}

func markedImage(w, h int) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetNRGBA(x, y, color.NRGBA{A: 255})
		}
	}
	img.SetNRGBA(0, 0, red)
	return img
}

func TestOrient(t *testing.T) {
	src := markedImage(4, 2)

	tests := []struct {
		name     string
		rotation int
		flip     bool
		size     image.Point
		marker   image.Point
	}{
		{"upright", 0, false, image.Pt(4, 2), image.Pt(0, 0)},
		{"upright flipped", 0, true, image.Pt(4, 2), image.Pt(0, 1)},
		{"quarter turn", 90, false, image.Pt(2, 4), image.Pt(1, 0)},
		{"half turn", 180, false, image.Pt(4, 2), image.Pt(3, 1)},
		{"three quarters", 270, false, image.Pt(2, 4), image.Pt(0, 3)},
		{"rotation ignores flip", 90, true, image.Pt(2, 4), image.Pt(1, 0)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := Orient(src, tt.rotation, tt.flip)
			assert.Equal(t, tt.size, out.Bounds().Size())
			r, _, _, _ := out.At(tt.marker.X, tt.marker.Y).RGBA()
			assert.Equal(t, uint32(0xffff), r, "marker not at %v", tt.marker)
		})
	}
}

func TestOrient_UprightReturnsSameImage(t *testing.T) {
	src := markedImage(3, 3)
	assert.Same(t, src, Orient(src, 0, false))
}

func TestCropRect_ObjectOverlay(t *testing.T) {
	n := NewNormalizer(DefaultObjectConfig())

	rect, ok := n.CropRect(640, 480, 1080, 1920)
	require.True(t, ok)
	assert.Equal(t, image.Rect(212, 120, 428, 360), rect)

	rect, ok = n.CropRect(480, 640, 1080, 1920)
	require.True(t, ok)
	assert.Equal(t, image.Rect(96, 160, 384, 480), rect)
}

func TestCropRect_TextOverlayWithPadding(t *testing.T) {
	n := NewNormalizer(DefaultTextConfig())

	rect, ok := n.CropRect(480, 640, 1080, 1920)
	require.True(t, ok)
	assert.Equal(t, image.Rect(67, 227, 413, 413), rect)
}

func TestCropRect_Degenerate(t *testing.T) {
	n := NewNormalizer(DefaultObjectConfig())

	_, ok := n.CropRect(640, 480, 0, 1920)
	assert.False(t, ok)
	_, ok = n.CropRect(0, 480, 1080, 1920)
	assert.False(t, ok)
	_, ok = NewNormalizer(Config{BoxWidth: 0, BoxHeight: 0.5}).CropRect(640, 480, 1080, 1920)
	assert.False(t, ok)
}

func TestNormalize_ReturnsUncroppedOnBadViewport(t *testing.T) {
	n := NewNormalizer(DefaultObjectConfig())
	src := markedImage(64, 48)

	out := n.Normalize(src, 0, 0, 0)
	assert.Equal(t, src.Bounds(), out.Bounds())

	// the copy must not alias the frame buffer
	src.SetNRGBA(1, 1, red)
	assert.NotEqual(t, red, color.NRGBAModel.Convert(out.At(1, 1)))

	assert.Nil(t, n.Normalize(nil, 0, 100, 100))
}

func TestNormalize_RotatesThenCrops(t *testing.T) {
	n := NewNormalizer(DefaultObjectConfig())
	out := n.Normalize(markedImage(640, 480), 90, 1080, 1920)
	assert.Equal(t, image.Pt(288, 320), out.Bounds().Size())
	assert.Equal(t, image.Pt(0, 0), out.Bounds().Min)
}

func TestCropRect_AlwaysInsideFrame(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("crop stays within frame bounds", prop.ForAll(
		func(w, h, vw, vh int, bw, bh, pad float64) bool {
			n := NewNormalizer(Config{BoxWidth: bw, BoxHeight: bh, Padding: pad})
			rect, ok := n.CropRect(w, h, vw, vh)
			if !ok {
				return true
			}
			return rect.In(image.Rect(0, 0, w, h)) && !rect.Empty()
		},
		gen.IntRange(1, 2000), gen.IntRange(1, 2000),
		gen.IntRange(1, 2000), gen.IntRange(1, 2000),
		gen.Float64Range(0.01, 1), gen.Float64Range(0.01, 1),
		gen.Float64Range(0, 0.5),
	))

	properties.TestingRun(t)
}

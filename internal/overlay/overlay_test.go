package overlay

import (
	"image"
	"image/color"
	"sync"
	"testing"

	"github.com/MeKo-Tech/litelens/internal/vision"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderer_ColorIsStablePerLabel(t *testing.T) {
	r := NewRenderer()
	cup := r.Color("cup")
	dog := r.Color("dog")
	assert.NotEqual(t, cup, dog)
	assert.Equal(t, cup, r.Color("cup"))

	other := NewRenderer()
	assert.Equal(t, cup, other.Color("cup"), "first label gets the first palette entry")
}

func TestRenderer_ColorWrapsPalette(t *testing.T) {
	r := NewRenderer()
	for i := range len(defaultPalette) {
		r.Color(string(rune('a' + i)))
	}
	assert.Equal(t, r.Color("a"), r.Color("overflow"))
}

func TestRenderer_ConcurrentColors(t *testing.T) {
	r := NewRenderer()
	var wg sync.WaitGroup
	for i := range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.Color(string(rune('a' + i%5)))
		}()
	}
	wg.Wait()
	assert.Len(t, r.colors, 5)
}

func TestCaption(t *testing.T) {
	assert.Equal(t, "cup 87%", Caption(vision.Detection{Label: "cup", Confidence: 0.879, Kind: vision.KindObject}))
	assert.Equal(t, "Ausgang", Caption(vision.Detection{Label: "Ausgang", Confidence: 1, Kind: vision.KindText}))
}

func TestRender_DrawsRescaledBox(t *testing.T) {
	src := image.NewNRGBA(image.Rect(0, 0, 200, 100))
	det := vision.Detection{
		Box:          image.Rect(30, 60, 150, 120),
		Label:        "cup",
		Confidence:   0.9,
		SourceWidth:  300,
		SourceHeight: 300,
		Kind:         vision.KindObject,
	}

	r := NewRenderer()
	out := r.Render(src, []vision.Detection{det})
	require.NotNil(t, out)
	assert.Equal(t, src.Bounds(), out.Bounds())

	// box maps to (20,20)-(100,40)
	col := r.Color("cup")
	assert.Equal(t, col, out.RGBAAt(60, 39))
	assert.Equal(t, col, out.RGBAAt(20, 30))
	assert.Equal(t, color.RGBA{}, out.RGBAAt(60, 30), "box interior untouched")
	assert.Equal(t, color.RGBA{}, out.RGBAAt(150, 80), "outside untouched")
}

func TestRender_SkipsEmptyAndOutOfRange(t *testing.T) {
	src := image.NewNRGBA(image.Rect(0, 0, 50, 50))
	dets := []vision.Detection{
		{Box: image.Rect(400, 400, 500, 500), Label: "ghost", SourceWidth: 300, SourceHeight: 300},
		{Box: image.Rect(0, 0, 10, 10), Label: "nosource"},
	}
	out := NewRenderer().Render(src, dets)
	for y := range 50 {
		for x := range 50 {
			require.Equal(t, color.RGBA{}, out.RGBAAt(x, y))
		}
	}
}

func TestRender_NilImage(t *testing.T) {
	assert.Nil(t, NewRenderer().Render(nil, nil))
}

func TestRender_OffsetBoundsCopied(t *testing.T) {
	src := image.NewNRGBA(image.Rect(10, 10, 20, 20))
	src.SetNRGBA(10, 10, color.NRGBA{R: 255, A: 255})
	out := NewRenderer().Render(src, nil)
	assert.Equal(t, image.Rect(0, 0, 10, 10), out.Bounds())
	assert.Equal(t, color.RGBA{R: 255, A: 255}, out.RGBAAt(0, 0))
}

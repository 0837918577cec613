// Package overlay draws detections onto captured frames.
package overlay

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"math"
	"sync"

	"github.com/MeKo-Tech/litelens/internal/utils"
	"github.com/MeKo-Tech/litelens/internal/vision"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

var defaultPalette = []color.RGBA{
	{R: 255, G: 0, B: 255, A: 255},
	{R: 0, G: 200, B: 255, A: 255},
	{R: 255, G: 170, B: 0, A: 255},
	{R: 60, G: 220, B: 60, A: 255},
	{R: 255, G: 60, B: 60, A: 255},
	{R: 120, G: 90, B: 255, A: 255},
	{R: 255, G: 230, B: 0, A: 255},
	{R: 0, G: 160, B: 130, A: 255},
}

var captionBackground = color.NRGBA{A: 179}

// Renderer draws labelled boxes. Each label keeps the color it was first
// drawn with.
type Renderer struct {
	mu      sync.Mutex
	palette []color.RGBA
	colors  map[string]color.RGBA
	face    font.Face
}

// NewRenderer creates a Renderer with the default palette.
func NewRenderer() *Renderer {
	return &Renderer{
		palette: defaultPalette,
		colors:  make(map[string]color.RGBA),
		face:    basicfont.Face7x13,
	}
}

// Color returns the stable color of label, assigning the next palette entry
// on first use.
func (r *Renderer) Color(label string) color.RGBA {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.colors[label]; ok {
		return c
	}
	c := r.palette[len(r.colors)%len(r.palette)]
	r.colors[label] = c
	return c
}

// Caption formats the text drawn above a box. Confidence is truncated to a
// whole percent; text detections show the text only.
func Caption(d vision.Detection) string {
	if d.Kind == vision.KindText {
		return d.Label
	}
	return fmt.Sprintf("%s %d%%", d.Label, int(d.Confidence*100))
}

// Render returns an RGBA copy of img with dets drawn on top. Boxes are mapped
// from each detection's source space onto img.
func (r *Renderer) Render(img image.Image, dets []vision.Detection) *image.RGBA {
	if img == nil {
		return nil
	}
	b := img.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), img, b.Min, draw.Src)

	thickness := max(2, int(math.Round(float64(min(b.Dx(), b.Dy()))/150)))
	for _, d := range dets {
		rect := d.Rescale(b.Dx(), b.Dy())
		if rect.Empty() {
			continue
		}
		col := r.Color(d.Label)
		utils.DrawRect(dst, rect, col, thickness)
		r.caption(dst, rect, Caption(d), col)
	}
	return dst
}

// caption draws text on a dark strip above rect, or inside it when there is
// no room above.
func (r *Renderer) caption(dst *image.RGBA, rect image.Rectangle, text string, col color.Color) {
	if text == "" {
		return
	}
	metrics := r.face.Metrics()
	h := (metrics.Ascent + metrics.Descent).Ceil()
	w := font.MeasureString(r.face, text).Ceil()
	const pad = 2

	top := rect.Min.Y - h - 2*pad
	if top < 0 {
		top = rect.Min.Y
	}
	bg := image.Rect(rect.Min.X, top, rect.Min.X+w+2*pad, top+h+2*pad)
	utils.FillRect(dst, bg, captionBackground)

	d := font.Drawer{
		Dst:  dst,
		Src:  image.NewUniform(col),
		Face: r.face,
		Dot:  fixed.P(bg.Min.X+pad, bg.Min.Y+pad+metrics.Ascent.Ceil()),
	}
	d.DrawString(text)
}

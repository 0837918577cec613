package testutil

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/jpeg"
	"image/png"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/require"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// ImageSize represents common frame dimensions.
type ImageSize struct {
	Width  int
	Height int
}

var (
	// Common camera frame sizes.
	PortraitSize  = ImageSize{480, 640}
	LandscapeSize = ImageSize{640, 480}
	ThumbSize     = ImageSize{64, 48}
)

// SceneObject is a filled rectangle standing in for a detectable object.
type SceneObject struct {
	Rect  image.Rectangle
	Color color.Color
}

// SceneConfig describes a synthetic camera frame.
type SceneConfig struct {
	Size       ImageSize
	Background color.Color
	Objects    []SceneObject
	// Text is drawn with its baseline at TextAt when non-empty.
	Text      string
	TextAt    image.Point
	TextColor color.Color
	// Rotation in degrees, counter-clockwise, applied after drawing. Sensor
	// frames arrive rotated relative to the display, so tests rotate scenes
	// to simulate that.
	Rotation float64
}

// DefaultSceneConfig returns a grey portrait frame with one centered object.
func DefaultSceneConfig() SceneConfig {
	return SceneConfig{
		Size:       PortraitSize,
		Background: color.RGBA{90, 110, 130, 255},
		Objects: []SceneObject{{
			Rect:  image.Rect(160, 240, 320, 400),
			Color: color.RGBA{200, 40, 40, 255},
		}},
		TextColor: color.Black,
	}
}

// GenerateScene renders a synthetic camera frame.
func GenerateScene(cfg SceneConfig) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, cfg.Size.Width, cfg.Size.Height))
	bg := cfg.Background
	if bg == nil {
		bg = color.White
	}
	draw.Draw(img, img.Bounds(), &image.Uniform{bg}, image.Point{}, draw.Src)

	for _, obj := range cfg.Objects {
		draw.Draw(img, obj.Rect.Intersect(img.Bounds()), &image.Uniform{obj.Color}, image.Point{}, draw.Src)
	}

	if cfg.Text != "" {
		fg := cfg.TextColor
		if fg == nil {
			fg = color.Black
		}
		d := &font.Drawer{
			Dst:  img,
			Src:  &image.Uniform{fg},
			Face: basicfont.Face7x13,
			Dot:  fixed.P(cfg.TextAt.X, cfg.TextAt.Y),
		}
		d.DrawString(cfg.Text)
	}

	if cfg.Rotation != 0 {
		return imaging.Rotate(img, cfg.Rotation, bg)
	}
	return img
}

// CreateTestImage creates a solid test image with the specified dimensions and color.
func CreateTestImage(width, height int, backgroundColor color.Color) image.Image {
	return GenerateScene(SceneConfig{Size: ImageSize{width, height}, Background: backgroundColor})
}

// CreateGradientImage creates an image whose pixels encode their position,
// which makes crops and rotations easy to check.
func CreateGradientImage(width, height int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := range height {
		for x := range width {
			img.Set(x, y, color.RGBA{byte(x % 256), byte(y % 256), 0, 255})
		}
	}
	return img
}

// CreateTextImage creates a white frame with one line of black text centered
// vertically.
func CreateTextImage(text string, width, height int) image.Image {
	return GenerateScene(SceneConfig{
		Size:       ImageSize{width, height},
		Background: color.White,
		Text:       text,
		TextAt:     image.Pt(8, height/2),
		TextColor:  color.Black,
	})
}

// EncodePNG encodes img as PNG.
func EncodePNG(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

// EncodeJPEG encodes img as JPEG at the given quality.
func EncodeJPEG(t *testing.T, img image.Image, quality int) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}))
	return buf.Bytes()
}

// SaveImage writes img to path; the format follows the file extension.
func SaveImage(t *testing.T, img image.Image, path string) {
	t.Helper()
	require.NoError(t, EnsureDir(filepath.Dir(path)))
	require.NoError(t, imaging.Save(img, path))
}

// LoadImage loads an image from path.
func LoadImage(t *testing.T, path string) image.Image {
	t.Helper()
	img, err := LoadImageFile(path)
	require.NoError(t, err)
	return img
}

// WriteFrames writes n scene frames named frame_000.png... to dir and
// returns their paths. Each frame moves the first object right by step pixels.
func WriteFrames(t *testing.T, dir string, n, step int, cfg SceneConfig) []string {
	t.Helper()
	paths := make([]string, 0, n)
	for i := range n {
		frame := cfg
		frame.Objects = make([]SceneObject, len(cfg.Objects))
		copy(frame.Objects, cfg.Objects)
		if len(frame.Objects) > 0 {
			frame.Objects[0].Rect = frame.Objects[0].Rect.Add(image.Pt(i*step, 0))
		}
		path := filepath.Join(dir, fmt.Sprintf("frame_%03d.png", i))
		SaveImage(t, GenerateScene(frame), path)
		paths = append(paths, path)
	}
	return paths
}

// CompareImages reports whether two images of equal bounds differ by at most
// tolerance, as a fraction of the largest possible average pixel distance.
func CompareImages(img1, img2 image.Image, tolerance float64) bool {
	b := img1.Bounds()
	if b != img2.Bounds() {
		return false
	}
	if b.Empty() {
		return true
	}

	var totalDiff float64
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			r1, g1, b1, a1 := img1.At(x, y).RGBA()
			r2, g2, b2, a2 := img2.At(x, y).RGBA()
			dr := float64(r1) - float64(r2)
			dg := float64(g1) - float64(g2)
			db := float64(b1) - float64(b2)
			da := float64(a1) - float64(a2)
			totalDiff += math.Sqrt(dr*dr + dg*dg + db*db + da*da)
		}
	}

	avgDiff := totalDiff / float64(b.Dx()*b.Dy())
	maxDiff := math.Sqrt(4 * 65535 * 65535)
	return avgDiff/maxDiff <= tolerance
}

// LoadImageFile loads an image from the specified path (non-testing version).
func LoadImageFile(path string) (image.Image, error) {
	file, err := os.Open(path) //nolint:gosec // G304: test images come from test-controlled paths
	if err != nil {
		return nil, fmt.Errorf("failed to open image file %s: %w", path, err)
	}
	defer func() { _ = file.Close() }()

	img, _, err := image.Decode(file)
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}
	return img, nil
}

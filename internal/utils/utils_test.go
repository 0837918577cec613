package utils

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/image/bmp"
)

func TestIsSupportedImage(t *testing.T) {
	cases := []struct {
		path string
		ok   bool
	}{
		{"a.jpg", true},
		{"b.JPEG", true},
		{"c.png", true},
		{"d.bmp", true},
		{"e.tiff", false},
		{"f.gif", false},
	}
	for _, c := range cases {
		assert.Equal(t, c.ok, IsSupportedImage(c.path), c.path)
	}
}

func writeTempPNG(t *testing.T, dir, name string, w, h int) string {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o600))
	return path
}

func TestLoadImageAndMetadata(t *testing.T) {
	p := writeTempPNG(t, t.TempDir(), "frame.png", 10, 20)

	img, meta, err := LoadImage(p)
	require.NoError(t, err)
	require.NotNil(t, img)
	assert.Equal(t, "png", meta.Format)
	assert.Equal(t, 10, meta.Width)
	assert.Equal(t, 20, meta.Height)
	assert.Positive(t, meta.SizeBytes)
}

func TestLoadImage_Errors(t *testing.T) {
	_, _, err := LoadImage("")
	var ipe *ImageProcessingError
	require.ErrorAs(t, err, &ipe)
	assert.Equal(t, "load", ipe.Operation)

	_, _, err = LoadImage("frame.gif")
	assert.Error(t, err)

	_, _, err = LoadImage(filepath.Join(t.TempDir(), "missing.png"))
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestDecodeImage_BMP(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, bmp.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 3, 2))))

	img, format, err := DecodeImage(buf.Bytes())
	require.NoError(t, err)
	assert.Equal(t, "bmp", format)
	assert.Equal(t, image.Pt(3, 2), img.Bounds().Size())

	_, _, err = DecodeImage(nil)
	assert.Error(t, err)
	_, _, err = DecodeImage([]byte("not an image"))
	assert.Error(t, err)
}

func TestListImages(t *testing.T) {
	dir := t.TempDir()
	b := writeTempPNG(t, dir, "b.png", 1, 1)
	a := writeTempPNG(t, dir, "a.png", 1, 1)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o600))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "nested"), 0o750))

	got, err := ListImages([]string{dir})
	require.NoError(t, err)
	assert.Equal(t, []string{a, b}, got)

	got, err = ListImages([]string{b, filepath.Join(dir, "notes.txt")})
	require.NoError(t, err)
	assert.Equal(t, []string{b}, got)

	_, err = ListImages([]string{filepath.Join(dir, "missing")})
	assert.Error(t, err)
}

func TestDrawRect(t *testing.T) {
	dst := image.NewRGBA(image.Rect(0, 0, 10, 10))
	red := color.RGBA{R: 255, A: 255}
	DrawRect(dst, image.Rect(2, 2, 8, 8), red, 1)

	assert.Equal(t, red, dst.RGBAAt(2, 2))
	assert.Equal(t, red, dst.RGBAAt(7, 7))
	assert.Equal(t, red, dst.RGBAAt(2, 5))
	assert.Equal(t, color.RGBA{}, dst.RGBAAt(5, 5))

	// outside the image is a no-op
	assert.NotPanics(t, func() { DrawRect(dst, image.Rect(20, 20, 30, 30), red, 3) })
}

func TestFillRect_Blends(t *testing.T) {
	dst := image.NewRGBA(image.Rect(0, 0, 4, 4))
	FillRect(dst, image.Rect(0, 0, 4, 4), color.RGBA{R: 255, G: 255, B: 255, A: 255})
	FillRect(dst, image.Rect(0, 0, 2, 2), color.NRGBA{A: 128})

	assert.Equal(t, color.RGBA{R: 255, G: 255, B: 255, A: 255}, dst.RGBAAt(3, 3))
	c := dst.RGBAAt(0, 0)
	assert.InDelta(t, 127, int(c.R), 2)
	assert.Equal(t, uint8(255), c.A)
}

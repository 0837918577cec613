// Package enhance implements the pixel passes applied to a cropped frame
// before it reaches a recognition backend.
package enhance

import (
	"image"
	"math"

	"github.com/disintegration/imaging"
)

const (
	maxContrast = 2.0
	// DefaultInputSize is the square side expected by the object detector.
	DefaultInputSize = 300
)

// ColorMatrix scales every color channel by gain and adds offset, clamping the
// result to [0,255]. Alpha is preserved.
func ColorMatrix(img image.Image, gain, offset float64) *image.NRGBA {
	dst := imaging.Clone(img)
	var lut [256]uint8
	for i := range lut {
		lut[i] = clampChannel(float64(i)*gain + offset)
	}
	applyLUT(dst, &lut)
	return dst
}

// Contrast stretches channels linearly. factor is clamped to [0,2].
func Contrast(img image.Image, factor float64) *image.NRGBA {
	return ColorMatrix(img, clampFloat(factor, 0, maxContrast), 0)
}

// Brightness multiplies every channel by factor.
func Brightness(img image.Image, factor float64) *image.NRGBA {
	if factor < 0 {
		factor = 0
	}
	return ColorMatrix(img, factor, 0)
}

// Sharpen convolves the color channels with the edge kernel
//
//	[ 0 -s  0]
//	[-s 1+4s -s]
//	[ 0 -s  0]
//
// The outermost rows and columns and the alpha channel are copied unchanged.
func Sharpen(img image.Image, s float64) *image.NRGBA {
	src := imaging.Clone(img)
	w, h := src.Rect.Dx(), src.Rect.Dy()
	if s == 0 || w < 3 || h < 3 {
		return src
	}

	dst := imaging.Clone(src)
	center := 1 + 4*s
	stride := src.Stride
	for y := 1; y < h-1; y++ {
		row := y * stride
		for x := 1; x < w-1; x++ {
			i := row + x*4
			for c := 0; c < 3; c++ {
				sum := center*float64(src.Pix[i+c]) -
					s*float64(src.Pix[i+c-stride]) -
					s*float64(src.Pix[i+c+stride]) -
					s*float64(src.Pix[i+c-4]) -
					s*float64(src.Pix[i+c+4])
				dst.Pix[i+c] = clampChannel(sum)
			}
		}
	}
	return dst
}

// Downsample resizes img to a size x size square.
func Downsample(img image.Image, size int) *image.NRGBA {
	if size <= 0 {
		size = DefaultInputSize
	}
	return imaging.Resize(img, size, size, imaging.Linear)
}

func applyLUT(img *image.NRGBA, lut *[256]uint8) {
	w, h := img.Rect.Dx(), img.Rect.Dy()
	for y := 0; y < h; y++ {
		row := img.Pix[y*img.Stride : y*img.Stride+w*4]
		for i := 0; i < len(row); i += 4 {
			row[i] = lut[row[i]]
			row[i+1] = lut[row[i+1]]
			row[i+2] = lut[row[i+2]]
		}
	}
}

func clampChannel(v float64) uint8 {
	if v <= 0 {
		return 0
	}
	if v >= 255 {
		return 255
	}
	return uint8(math.Round(v))
}

func clampFloat(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

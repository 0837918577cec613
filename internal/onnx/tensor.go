package onnx

import (
	"errors"
	"fmt"
	"image"

	"github.com/MeKo-Tech/litelens/internal/mempool"
	"github.com/disintegration/imaging"
)

// Tensor is a float32 tensor prepared for ONNX input. Images use NCHW.
type Tensor struct {
	Data  []float32
	Shape []int64

	pooled bool
}

// Release returns a pooled buffer. Data must not be used afterwards.
func (t *Tensor) Release() {
	if t.pooled {
		mempool.PutFloat32(t.Data)
		t.pooled = false
	}
	t.Data = nil
}

// Normalization maps a 0..1 pixel value v to (v - Mean) / Std per channel.
type Normalization struct {
	Mean [3]float32
	Std  [3]float32
}

// UnitRange leaves pixels in 0..1.
var UnitRange = Normalization{Std: [3]float32{1, 1, 1}}

// ImageNet is the usual torchvision normalization.
var ImageNet = Normalization{
	Mean: [3]float32{0.485, 0.456, 0.406},
	Std:  [3]float32{0.229, 0.224, 0.225},
}

// ImageTensor converts img into a [1, 3, H, W] tensor.
func ImageTensor(img image.Image, norm Normalization) (Tensor, error) {
	if img == nil {
		return Tensor{}, errors.New("input image is nil")
	}
	src := imaging.Clone(img)
	w, h := src.Rect.Dx(), src.Rect.Dy()
	if w <= 0 || h <= 0 {
		return Tensor{}, fmt.Errorf("invalid image dimensions %dx%d", w, h)
	}
	for c := range 3 {
		if norm.Std[c] == 0 {
			return Tensor{}, fmt.Errorf("zero std for channel %d", c)
		}
	}

	plane := w * h
	data := mempool.GetFloat32(3 * plane)
	for y := range h {
		row := src.Pix[y*src.Stride:]
		for x := range w {
			i := y*w + x
			for c := range 3 {
				v := float32(row[x*4+c]) / 255
				data[c*plane+i] = (v - norm.Mean[c]) / norm.Std[c]
			}
		}
	}
	t, err := NewImageTensor(data, 3, h, w)
	if err != nil {
		mempool.PutFloat32(data)
		return Tensor{}, err
	}
	t.pooled = true
	return t, nil
}

// NewImageTensor wraps data of length c*h*w as [1, C, H, W].
func NewImageTensor(data []float32, c, h, w int) (Tensor, error) {
	if data == nil {
		return Tensor{}, errors.New("nil data")
	}
	if len(data) != c*h*w {
		return Tensor{}, fmt.Errorf("unexpected data length: got %d, want %d", len(data), c*h*w)
	}
	return Tensor{Data: data, Shape: []int64{1, int64(c), int64(h), int64(w)}}, nil
}

// VerifyImageTensor checks that the shape is a positive NCHW shape matching
// the data length.
func VerifyImageTensor(t Tensor) error {
	if len(t.Shape) != 4 {
		return fmt.Errorf("shape rank %d != 4", len(t.Shape))
	}
	n := int64(1)
	for i, v := range t.Shape {
		if v <= 0 {
			return fmt.Errorf("dimension %d must be > 0, got %d", i, v)
		}
		n *= v
	}
	if int64(len(t.Data)) != n {
		return fmt.Errorf("tensor data length %d != expected %d for shape %v", len(t.Data), n, t.Shape)
	}
	return nil
}

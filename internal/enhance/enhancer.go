package enhance

import (
	"image"
	"log/slog"
	"time"
)

// Config holds the parameters of the object-mode enhancement chain.
type Config struct {
	Contrast   float64 `json:"contrast"`
	Brightness float64 `json:"brightness"`
	Sharpness  float64 `json:"sharpness"`
	InputSize  int     `json:"input_size"`
}

// DefaultConfig returns the object-mode defaults.
func DefaultConfig() Config {
	return Config{Contrast: 1.5, Brightness: 1.2, Sharpness: 0.5, InputSize: DefaultInputSize}
}

// Enhancer runs contrast, brightness and sharpening, then downsamples to the
// detector input size.
type Enhancer struct {
	cfg Config
}

// NewEnhancer creates an Enhancer.
func NewEnhancer(cfg Config) *Enhancer {
	if cfg.InputSize <= 0 {
		cfg.InputSize = DefaultInputSize
	}
	return &Enhancer{cfg: cfg}
}

// Enhance applies the full chain.
func (e *Enhancer) Enhance(img image.Image) image.Image {
	start := time.Now()
	out := Downsample(e.Passes(img), e.cfg.InputSize)
	slog.Debug("Enhanced frame", "input_size", e.cfg.InputSize, "duration", time.Since(start))
	return out
}

// Passes runs the three pixel passes without resizing.
func (e *Enhancer) Passes(img image.Image) *image.NRGBA {
	out := Contrast(img, e.cfg.Contrast)
	out = Brightness(out, e.cfg.Brightness)
	return Sharpen(out, e.cfg.Sharpness)
}

// TextConfig holds the single contrast matrix used before text recognition.
type TextConfig struct {
	Gain   float64 `json:"gain"`
	Offset float64 `json:"offset"`
}

// DefaultTextConfig returns gain 2 and offset -25.
func DefaultTextConfig() TextConfig {
	return TextConfig{Gain: 2, Offset: -25}
}

// TextEnhancer boosts contrast for legibility; it never resizes.
type TextEnhancer struct {
	cfg TextConfig
}

// NewTextEnhancer creates a TextEnhancer.
func NewTextEnhancer(cfg TextConfig) *TextEnhancer {
	return &TextEnhancer{cfg: cfg}
}

// Enhance applies the text contrast matrix.
func (e *TextEnhancer) Enhance(img image.Image) image.Image {
	return ColorMatrix(img, e.cfg.Gain, e.cfg.Offset)
}

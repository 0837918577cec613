// Package pipeline turns camera frames into detections, translations and
// visual search requests. An Analyzer routes each frame to the pipeline of the
// current mode and publishes results through state.Store.
package pipeline

import (
	"errors"
	"fmt"
	"image"
	"net/http"

	"github.com/MeKo-Tech/litelens/internal/enhance"
	"github.com/MeKo-Tech/litelens/internal/geometry"
	"github.com/MeKo-Tech/litelens/internal/state"
	"github.com/MeKo-Tech/litelens/internal/throttle"
	"github.com/MeKo-Tech/litelens/internal/translate"
	"github.com/MeKo-Tech/litelens/internal/vision"
)

// Viewport is the size of the on-screen camera preview the overlay box is
// drawn on.
type Viewport struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// DefaultViewport matches a portrait 1080p phone preview.
func DefaultViewport() Viewport { return Viewport{Width: 1080, Height: 1920} }

// ObjectConfig configures object mode.
type ObjectConfig struct {
	ConfidenceThreshold float64
	MaxResults          int
	FrameInterval       int
	Crop                geometry.Config
	Enhance             enhance.Config
}

// TextConfig configures text mode.
type TextConfig struct {
	FrameInterval  int
	Crop           geometry.Config
	Enhance        enhance.TextConfig
	TargetLanguage string
	// UndeterminedFallback is used as source language when identification
	// returns "und". Empty skips translation instead.
	UndeterminedFallback string
}

// Config holds configuration for both analysis pipelines.
type Config struct {
	Viewport Viewport
	Object   ObjectConfig
	Text     TextConfig
}

// DefaultConfig returns defaults for both modes.
func DefaultConfig() Config {
	return Config{
		Viewport: DefaultViewport(),
		Object: ObjectConfig{
			ConfidenceThreshold: 0.5,
			MaxResults:          1,
			FrameInterval:       throttle.DefaultInterval,
			Crop:                geometry.DefaultObjectConfig(),
			Enhance:             enhance.DefaultConfig(),
		},
		Text: TextConfig{
			FrameInterval:  throttle.DefaultInterval,
			Crop:           geometry.DefaultTextConfig(),
			Enhance:        enhance.DefaultTextConfig(),
			TargetLanguage: "en",
		},
	}
}

// Searcher starts a visual search in the background. visualsearch.Dispatcher
// implements it.
type Searcher interface {
	Dispatch(gen uint64, img image.Image) bool
}

// Builder constructs an Analyzer with fluent configuration.
type Builder struct {
	cfg        Config
	store      *state.Store
	detector   vision.ObjectDetector
	recognizer vision.TextRecognizer
	identifier vision.LanguageIdentifier
	translator vision.Translator
	searcher   Searcher
}

// NewBuilder creates a new builder with defaults.
func NewBuilder() *Builder { return &Builder{cfg: DefaultConfig()} }

// WithConfig replaces the whole configuration.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.cfg = cfg
	return b
}

// WithViewport sets the preview size used for the overlay crop.
func (b *Builder) WithViewport(w, h int) *Builder {
	if w > 0 && h > 0 {
		b.cfg.Viewport = Viewport{Width: w, Height: h}
	}
	return b
}

// WithStore sets the result store.
func (b *Builder) WithStore(s *state.Store) *Builder {
	b.store = s
	return b
}

// WithEngine sets both the detector and the recognizer.
func (b *Builder) WithEngine(e vision.Engine) *Builder {
	b.detector = e
	b.recognizer = e
	return b
}

// WithDetector sets the object detector.
func (b *Builder) WithDetector(d vision.ObjectDetector) *Builder {
	b.detector = d
	return b
}

// WithRecognizer sets the text recognizer.
func (b *Builder) WithRecognizer(r vision.TextRecognizer) *Builder {
	b.recognizer = r
	return b
}

// WithLanguageIdentifier sets the language identifier.
func (b *Builder) WithLanguageIdentifier(id vision.LanguageIdentifier) *Builder {
	b.identifier = id
	return b
}

// WithTranslator sets the translator.
func (b *Builder) WithTranslator(t vision.Translator) *Builder {
	b.translator = t
	return b
}

// WithSearcher sets the visual search dispatcher.
func (b *Builder) WithSearcher(s Searcher) *Builder {
	b.searcher = s
	return b
}

// WithConfidenceThreshold sets the minimum object confidence.
func (b *Builder) WithConfidenceThreshold(th float64) *Builder {
	if th >= 0 && th <= 1 {
		b.cfg.Object.ConfidenceThreshold = th
	}
	return b
}

// WithMaxResults caps detections per frame.
func (b *Builder) WithMaxResults(n int) *Builder {
	if n > 0 {
		b.cfg.Object.MaxResults = n
	}
	return b
}

// WithFrameIntervals sets the per-mode gate intervals.
func (b *Builder) WithFrameIntervals(object, text int) *Builder {
	if object > 0 {
		b.cfg.Object.FrameInterval = object
	}
	if text > 0 {
		b.cfg.Text.FrameInterval = text
	}
	return b
}

// WithTargetLanguage sets the translation target, as a code or English name.
func (b *Builder) WithTargetLanguage(lang string) *Builder {
	if lang != "" {
		b.cfg.Text.TargetLanguage = lang
	}
	return b
}

// WithUndeterminedFallback sets the source language assumed for "und".
func (b *Builder) WithUndeterminedFallback(lang string) *Builder {
	b.cfg.Text.UndeterminedFallback = lang
	return b
}

// Config returns a copy of the current config.
func (b *Builder) Config() Config { return b.cfg }

// Validate checks that the collaborators are present and the config is sane.
func (b *Builder) Validate() error {
	if b.store == nil {
		return errors.New("result store is required")
	}
	if b.detector == nil {
		return errors.New("object detector is required")
	}
	if b.recognizer == nil {
		return errors.New("text recognizer is required")
	}
	if b.identifier == nil {
		return errors.New("language identifier is required")
	}
	if b.translator == nil {
		return errors.New("translator is required")
	}
	if b.cfg.Object.ConfidenceThreshold < 0 || b.cfg.Object.ConfidenceThreshold > 1 {
		return fmt.Errorf("confidence threshold out of range: %v", b.cfg.Object.ConfidenceThreshold)
	}
	if _, err := translate.ResolveLanguage(b.cfg.Text.TargetLanguage); err != nil {
		return fmt.Errorf("invalid target language: %w", err)
	}
	if fb := b.cfg.Text.UndeterminedFallback; fb != "" {
		if _, err := translate.ResolveLanguage(fb); err != nil {
			return fmt.Errorf("invalid undetermined fallback: %w", err)
		}
	}
	return nil
}

// Build validates and wires an Analyzer. A nil searcher disables visual
// search.
func (b *Builder) Build() (*Analyzer, error) {
	if err := b.Validate(); err != nil {
		return nil, err
	}
	object := NewDetectionPipeline(b.cfg.Object, b.detector, b.store, b.searcher)
	text := NewRecognitionPipeline(b.cfg.Text, b.recognizer, b.identifier, b.translator, b.store)

	return newAnalyzer(b.cfg, b.store, object, text), nil
}

// StatusCode maps pipeline errors to HTTP status codes for API surfaces.
func StatusCode(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, vision.ErrBusy), errors.Is(err, vision.ErrSearchInFlight):
		return http.StatusTooManyRequests
	case errors.Is(err, vision.ErrModelNotReady):
		return http.StatusServiceUnavailable
	case errors.Is(err, vision.ErrNoText), errors.Is(err, vision.ErrUndeterminedLanguage):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

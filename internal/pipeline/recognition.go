package pipeline

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/MeKo-Tech/litelens/internal/enhance"
	"github.com/MeKo-Tech/litelens/internal/geometry"
	"github.com/MeKo-Tech/litelens/internal/recognizer"
	"github.com/MeKo-Tech/litelens/internal/translate"
	"github.com/MeKo-Tech/litelens/internal/vision"
)

type textInput struct {
	crop     image.Image
	enhanced image.Image
}

// RecognitionPipeline reads the text block nearest the center of the overlay
// box and translates it into the target language.
type RecognitionPipeline struct {
	cfg        TextConfig
	normalizer *geometry.Normalizer
	enhancer   *enhance.TextEnhancer
	recognizer vision.TextRecognizer
	identifier vision.LanguageIdentifier
	translator vision.Translator
	results    Results
	target     string
	fallback   string
	busy       atomic.Bool
}

// NewRecognitionPipeline creates a RecognitionPipeline. The target language
// and fallback are resolved from cfg; unresolvable values fall back to English
// and no fallback respectively.
func NewRecognitionPipeline(cfg TextConfig, rec vision.TextRecognizer, id vision.LanguageIdentifier,
	tr vision.Translator, results Results,
) *RecognitionPipeline {
	target, err := translate.ResolveLanguage(cfg.TargetLanguage)
	if err != nil {
		slog.Warn("Unknown target language, using English", "language", cfg.TargetLanguage, "error", err)
		target = "en"
	}
	fallback := ""
	if cfg.UndeterminedFallback != "" {
		if fb, err := translate.ResolveLanguage(cfg.UndeterminedFallback); err == nil {
			fallback = fb
		}
	}
	return &RecognitionPipeline{
		cfg:        cfg,
		normalizer: geometry.NewNormalizer(cfg.Crop),
		enhancer:   enhance.NewTextEnhancer(cfg.Enhance),
		recognizer: rec,
		identifier: id,
		translator: tr,
		results:    results,
		target:     target,
		fallback:   fallback,
	}
}

// Target returns the resolved target language code.
func (p *RecognitionPipeline) Target() string { return p.target }

// Process runs the whole text chain synchronously on frame.
func (p *RecognitionPipeline) Process(ctx context.Context, frame vision.Frame, vp Viewport, gen uint64) (*vision.VisualSearchResult, error) {
	if !p.tryAcquire() {
		return nil, vision.ErrBusy
	}
	defer p.release()

	in, err := p.prepare(frame, vp)
	if err != nil {
		return nil, err
	}
	return p.run(ctx, in, gen)
}

func (p *RecognitionPipeline) tryAcquire() bool { return p.busy.CompareAndSwap(false, true) }

func (p *RecognitionPipeline) release() { p.busy.Store(false) }

func (p *RecognitionPipeline) prepare(frame vision.Frame, vp Viewport) (textInput, error) {
	if frame.Image == nil {
		return textInput{}, errors.New("frame has no image")
	}
	start := time.Now()
	crop := p.normalizer.Normalize(frame.Image, frame.Rotation, vp.Width, vp.Height)
	stageDuration.WithLabelValues("normalize").Observe(time.Since(start).Seconds())

	start = time.Now()
	enhanced := p.enhancer.Enhance(crop)
	stageDuration.WithLabelValues("enhance").Observe(time.Since(start).Seconds())

	return textInput{crop: crop, enhanced: enhanced}, nil
}

func (p *RecognitionPipeline) run(ctx context.Context, in textInput, gen uint64) (*vision.VisualSearchResult, error) {
	start := time.Now()
	blocks, err := p.recognizer.Recognize(ctx, in.enhanced)
	stageDuration.WithLabelValues("recognize").Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, p.fail(gen, fmt.Errorf("text recognition failed: %w", err))
	}

	b := in.enhanced.Bounds()
	idx := recognizer.SelectCenterBlock(blocks, b.Dx(), b.Dy())
	text := ""
	if idx >= 0 {
		text = recognizer.CleanText(blocks[idx].Text)
	}
	if text == "" {
		translationsTotal.WithLabelValues("no_text").Inc()
		slog.Debug("No text in frame", "blocks", len(blocks), "generation", gen)
		return nil, vision.ErrNoText
	}

	det := vision.Detection{
		Box:          blocks[idx].Box,
		Label:        text,
		Confidence:   vision.TextConfidence,
		SourceWidth:  b.Dx(),
		SourceHeight: b.Dy(),
		Kind:         vision.KindText,
		Image:        in.crop,
	}.Clamp()
	p.results.PublishDetections(gen, []vision.Detection{det})
	detectionsTotal.WithLabelValues(string(vision.KindText)).Inc()

	start = time.Now()
	source, err := p.identifier.Identify(ctx, text)
	stageDuration.WithLabelValues("identify").Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, p.fail(gen, fmt.Errorf("language identification failed: %w", err))
	}
	if source == "" || source == vision.Undetermined {
		if p.fallback == "" {
			translationsTotal.WithLabelValues("undetermined").Inc()
			slog.Debug("Skipping translation of undetermined language", "text", text)
			return nil, vision.ErrUndeterminedLanguage
		}
		source = p.fallback
	}

	start = time.Now()
	translated, err := p.translator.Translate(ctx, text, source, p.target)
	stageDuration.WithLabelValues("translate").Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, p.fail(gen, fmt.Errorf("translation %s->%s failed: %w", source, p.target, err))
	}

	result := vision.NewTranslation(text, source, translated, p.target)
	p.results.PublishTranslation(gen, result)
	translationsTotal.WithLabelValues("success").Inc()
	slog.Debug("Text translated", "source", source, "target", p.target, "generation", gen)
	return &result, nil
}

// fail records err, surfaces it to observers and returns it.
func (p *RecognitionPipeline) fail(gen uint64, err error) error {
	status := "error"
	if errors.Is(err, vision.ErrModelNotReady) {
		status = "model_not_ready"
		slog.Info("Waiting for model", "error", err)
	} else {
		slog.Warn("Text pipeline failed", "error", err, "generation", gen)
	}
	translationsTotal.WithLabelValues(status).Inc()
	p.results.ReportError(gen, err)
	return err
}

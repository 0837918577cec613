package pipeline

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"sort"
	"sync/atomic"
	"time"

	"github.com/MeKo-Tech/litelens/internal/enhance"
	"github.com/MeKo-Tech/litelens/internal/geometry"
	"github.com/MeKo-Tech/litelens/internal/vision"
)

// Results receives pipeline output. state.Store implements it.
type Results interface {
	PublishDetections(gen uint64, dets []vision.Detection) bool
	PublishTranslation(gen uint64, r vision.VisualSearchResult) bool
	ReportError(gen uint64, err error) bool
	Generation() uint64
}

// objectInput is a prepared object-mode frame. Both images are owned by the
// pipeline.
type objectInput struct {
	crop     image.Image
	enhanced image.Image
}

// DetectionPipeline finds the dominant object in the overlay box and starts a
// visual search for it.
type DetectionPipeline struct {
	cfg        ObjectConfig
	normalizer *geometry.Normalizer
	enhancer   *enhance.Enhancer
	detector   vision.ObjectDetector
	results    Results
	searcher   Searcher
	busy       atomic.Bool
}

// NewDetectionPipeline creates a DetectionPipeline. searcher may be nil.
func NewDetectionPipeline(cfg ObjectConfig, det vision.ObjectDetector, results Results, searcher Searcher) *DetectionPipeline {
	if cfg.MaxResults <= 0 {
		cfg.MaxResults = 1
	}
	return &DetectionPipeline{
		cfg:        cfg,
		normalizer: geometry.NewNormalizer(cfg.Crop),
		enhancer:   enhance.NewEnhancer(cfg.Enhance),
		detector:   det,
		results:    results,
		searcher:   searcher,
	}
}

// Process runs the whole object chain synchronously on frame. The caller keeps
// ownership of the frame. A call while another one is running fails with
// vision.ErrBusy.
func (p *DetectionPipeline) Process(ctx context.Context, frame vision.Frame, vp Viewport, gen uint64) ([]vision.Detection, error) {
	if !p.tryAcquire() {
		return nil, vision.ErrBusy
	}
	defer p.release()

	in, err := p.prepare(frame, vp)
	if err != nil {
		return nil, err
	}
	return p.run(ctx, in, gen), nil
}

func (p *DetectionPipeline) tryAcquire() bool { return p.busy.CompareAndSwap(false, true) }

func (p *DetectionPipeline) release() { p.busy.Store(false) }

// prepare does the synchronous part that needs the frame buffer.
func (p *DetectionPipeline) prepare(frame vision.Frame, vp Viewport) (objectInput, error) {
	if frame.Image == nil {
		return objectInput{}, errors.New("frame has no image")
	}
	start := time.Now()
	crop := p.normalizer.Normalize(frame.Image, frame.Rotation, vp.Width, vp.Height)
	stageDuration.WithLabelValues("normalize").Observe(time.Since(start).Seconds())

	start = time.Now()
	enhanced := p.enhancer.Enhance(crop)
	stageDuration.WithLabelValues("enhance").Observe(time.Since(start).Seconds())

	return objectInput{crop: crop, enhanced: enhanced}, nil
}

// run detects, publishes and dispatches. Detector failures count as an empty
// frame.
func (p *DetectionPipeline) run(ctx context.Context, in objectInput, gen uint64) []vision.Detection {
	threshold := p.cfg.ConfidenceThreshold

	start := time.Now()
	raw, err := p.detector.Detect(ctx, in.enhanced, threshold)
	stageDuration.WithLabelValues("detect").Observe(time.Since(start).Seconds())
	if err != nil {
		detectorErrorsTotal.Inc()
		slog.Warn("Object detection failed", "error", err, "generation", gen)
		raw = nil
	}

	b := in.enhanced.Bounds()
	dets := selectDetections(raw, threshold, p.cfg.MaxResults, b.Dx(), b.Dy(), in.crop)

	p.results.PublishDetections(gen, dets)
	detectionsTotal.WithLabelValues(string(vision.KindObject)).Add(float64(len(dets)))
	if errors.Is(err, vision.ErrModelNotReady) {
		p.results.ReportError(gen, err)
	}

	if len(dets) > 0 && p.searcher != nil {
		if cur := p.results.Generation(); cur != gen {
			slog.Debug("Visual search skipped for stale generation", "generation", gen, "current", cur)
			return dets
		}
		if !p.searcher.Dispatch(gen, in.crop) {
			slog.Debug("Visual search not dispatched", "generation", gen)
		}
	}
	return dets
}

// selectDetections keeps raw objects scoring at least threshold, best first,
// at most maxResults, in a w x h source space.
func selectDetections(raw []vision.RawObject, threshold float64, maxResults, w, h int, crop image.Image) []vision.Detection {
	dets := make([]vision.Detection, 0, len(raw))
	for _, o := range raw {
		if o.Confidence < threshold {
			continue
		}
		d := vision.Detection{
			Box:          o.Box,
			Label:        o.Label,
			Confidence:   o.Confidence,
			SourceWidth:  w,
			SourceHeight: h,
			Kind:         vision.KindObject,
			Image:        crop,
		}.Clamp()
		if d.Box.Empty() {
			continue
		}
		dets = append(dets, d)
	}
	sort.SliceStable(dets, func(i, j int) bool { return dets[i].Confidence > dets[j].Confidence })
	if maxResults > 0 && len(dets) > maxResults {
		dets = dets[:maxResults]
	}
	return dets
}

func (p *DetectionPipeline) String() string {
	return fmt.Sprintf("object(threshold=%.2f, max=%d)", p.cfg.ConfidenceThreshold, p.cfg.MaxResults)
}

package pipeline

import (
	"context"
	"errors"
	"fmt"
	"image"
	"testing"

	"github.com/MeKo-Tech/litelens/internal/vision"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newObjectPipeline(h *harness) *DetectionPipeline {
	return NewDetectionPipeline(DefaultConfig().Object, h.detector, h.store, h.searcher)
}

func TestDetectionPipeline_ThresholdKeepsOnlyConfidentObjects(t *testing.T) {
	h := newHarness()
	h.detector.objects = []vision.RawObject{
		{Box: image.Rect(10, 10, 100, 100), Label: "cup", Confidence: 0.3},
		{Box: image.Rect(20, 20, 200, 200), Label: "plant", Confidence: 0.6},
	}
	p := newObjectPipeline(h)

	dets, err := p.Process(context.Background(), solidFrame(640, 480, nil), DefaultViewport(), h.store.Generation())
	require.NoError(t, err)
	require.Len(t, dets, 1)
	assert.Equal(t, "plant", dets[0].Label)
	assert.InDelta(t, 0.6, dets[0].Confidence, 1e-9)
	assert.Equal(t, vision.KindObject, dets[0].Kind)
	assert.Equal(t, 300, dets[0].SourceWidth)
	assert.Equal(t, 300, dets[0].SourceHeight)

	snap := h.store.Snapshot()
	require.Len(t, snap.Detections, 1)
	assert.Equal(t, "plant", snap.Detections[0].Label)

	require.Equal(t, 1, h.searcher.count())
	// search runs on the crop before enhancement
	assert.Equal(t, image.Pt(216, 240), h.searcher.images[0].Bounds().Size())
	assert.Same(t, dets[0].Image, h.searcher.images[0])
}

func TestDetectionPipeline_SortsAndCaps(t *testing.T) {
	h := newHarness()
	h.detector.objects = []vision.RawObject{
		{Box: image.Rect(0, 0, 10, 10), Label: "a", Confidence: 0.7},
		{Box: image.Rect(0, 0, 10, 10), Label: "b", Confidence: 0.9},
		{Box: image.Rect(0, 0, 10, 10), Label: "c", Confidence: 0.8},
	}
	cfg := DefaultConfig().Object
	cfg.MaxResults = 2
	p := NewDetectionPipeline(cfg, h.detector, h.store, nil)

	dets, err := p.Process(context.Background(), solidFrame(64, 64, nil), DefaultViewport(), h.store.Generation())
	require.NoError(t, err)
	require.Len(t, dets, 2)
	assert.Equal(t, "b", dets[0].Label)
	assert.Equal(t, "c", dets[1].Label)
}

func TestDetectionPipeline_ClampsBoxes(t *testing.T) {
	h := newHarness()
	h.detector.objects = []vision.RawObject{
		{Box: image.Rect(-20, 250, 150, 400), Label: "dog", Confidence: 0.9},
		{Box: image.Rect(400, 400, 500, 500), Label: "ghost", Confidence: 0.95},
	}
	cfg := DefaultConfig().Object
	cfg.MaxResults = 5
	p := NewDetectionPipeline(cfg, h.detector, h.store, nil)

	dets, err := p.Process(context.Background(), solidFrame(64, 64, nil), DefaultViewport(), h.store.Generation())
	require.NoError(t, err)
	require.Len(t, dets, 1)
	assert.Equal(t, image.Rect(0, 250, 150, 300), dets[0].Box)
}

func TestDetectionPipeline_DetectorErrorPublishesEmpty(t *testing.T) {
	h := newHarness()
	gen := h.store.Generation()
	h.store.PublishDetections(gen, []vision.Detection{{Label: "old"}})
	h.detector.err = errors.New("session crashed")
	p := newObjectPipeline(h)

	dets, err := p.Process(context.Background(), solidFrame(64, 64, nil), DefaultViewport(), gen)
	require.NoError(t, err)
	assert.Empty(t, dets)
	assert.Empty(t, h.store.Snapshot().Detections)
	assert.Zero(t, h.searcher.count())
}

func TestDetectionPipeline_ModelNotReadySetsMessage(t *testing.T) {
	h := newHarness()
	h.detector.err = fmt.Errorf("loading: %w", vision.ErrModelNotReady)
	p := newObjectPipeline(h)

	_, err := p.Process(context.Background(), solidFrame(64, 64, nil), DefaultViewport(), h.store.Generation())
	require.NoError(t, err)
	assert.Equal(t, vision.UserMessage(vision.ErrModelNotReady), h.store.Snapshot().Message)
}

func TestDetectionPipeline_SupersededGenerationNotSearched(t *testing.T) {
	h := newHarness()
	h.detector.objects = []vision.RawObject{{Box: image.Rect(0, 0, 50, 50), Label: "cup", Confidence: 0.8}}
	p := newObjectPipeline(h)
	gen := h.store.Generation()
	h.store.SetMode(vision.ModeText)

	dets, err := p.Process(context.Background(), solidFrame(64, 64, nil), DefaultViewport(), gen)
	require.NoError(t, err)
	assert.Len(t, dets, 1)
	assert.Empty(t, h.store.Snapshot().Detections)
	assert.Zero(t, h.searcher.count())
	assert.False(t, h.store.Searching())
}

func TestDetectionPipeline_NoDetectionsNoSearch(t *testing.T) {
	h := newHarness()
	p := newObjectPipeline(h)

	dets, err := p.Process(context.Background(), solidFrame(64, 64, nil), DefaultViewport(), h.store.Generation())
	require.NoError(t, err)
	assert.Empty(t, dets)
	assert.Zero(t, h.searcher.count())
}

func TestDetectionPipeline_BusyRejectsSecondFrame(t *testing.T) {
	h := newHarness()
	p := newObjectPipeline(h)
	require.True(t, p.tryAcquire())

	_, err := p.Process(context.Background(), solidFrame(64, 64, nil), DefaultViewport(), 1)
	assert.ErrorIs(t, err, vision.ErrBusy)
	assert.Zero(t, h.detector.calls.Load())

	p.release()
	_, err = p.Process(context.Background(), solidFrame(64, 64, nil), DefaultViewport(), 1)
	assert.NoError(t, err)
}

func TestDetectionPipeline_NilImage(t *testing.T) {
	h := newHarness()
	p := newObjectPipeline(h)
	_, err := p.Process(context.Background(), vision.Frame{}, DefaultViewport(), 1)
	assert.Error(t, err)
	assert.True(t, p.tryAcquire(), "busy flag must be released after a failure")
}

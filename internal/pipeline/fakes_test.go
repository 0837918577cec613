package pipeline

import (
	"context"
	"image"
	"image/color"
	"sync"
	"sync/atomic"

	"github.com/MeKo-Tech/litelens/internal/state"
	"github.com/MeKo-Tech/litelens/internal/vision"
)

type fakeDetector struct {
	objects []vision.RawObject
	err     error
	block   chan struct{}
	calls   atomic.Int32
}

func (f *fakeDetector) Detect(ctx context.Context, img image.Image, threshold float64) ([]vision.RawObject, error) {
	f.calls.Add(1)
	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return f.objects, f.err
}

type fakeRecognizer struct {
	blocks []vision.TextBlock
	err    error
}

func (f *fakeRecognizer) Recognize(ctx context.Context, img image.Image) ([]vision.TextBlock, error) {
	return f.blocks, f.err
}

type fakeIdentifier struct {
	lang string
	err  error
}

func (f *fakeIdentifier) Identify(ctx context.Context, text string) (string, error) {
	return f.lang, f.err
}

type translateCall struct {
	text, source, target string
}

type fakeTranslator struct {
	mu    sync.Mutex
	calls []translateCall
	out   string
	err   error
}

func (f *fakeTranslator) Translate(ctx context.Context, text, source, target string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, translateCall{text, source, target})
	if f.err != nil {
		return "", f.err
	}
	return f.out, nil
}

func (f *fakeTranslator) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type fakeSearcher struct {
	mu     sync.Mutex
	images []image.Image
	gens   []uint64
}

func (f *fakeSearcher) Dispatch(gen uint64, img image.Image) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.images = append(f.images, img)
	f.gens = append(f.gens, gen)
	return true
}

func (f *fakeSearcher) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.images)
}

// backendSearcher is a vision.VisualSearcher for tests that run the real
// dispatcher.
type backendSearcher struct {
	results []vision.VisualSearchResult
	calls   atomic.Int32
}

func (b *backendSearcher) Search(ctx context.Context, jpeg []byte) ([]vision.VisualSearchResult, error) {
	b.calls.Add(1)
	return b.results, nil
}

func solidFrame(w, h int, released *atomic.Int32) vision.Frame {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i], img.Pix[i+1], img.Pix[i+2], img.Pix[i+3] = 120, 130, 140, 255
	}
	img.SetNRGBA(w/2, h/2, color.NRGBA{R: 255, A: 255})
	var release func()
	if released != nil {
		release = func() { released.Add(1) }
	}
	return vision.NewFrame(img, 0, 0, release)
}

type harness struct {
	store      *state.Store
	detector   *fakeDetector
	recognizer *fakeRecognizer
	identifier *fakeIdentifier
	translator *fakeTranslator
	searcher   *fakeSearcher
}

func newHarness() *harness {
	return &harness{
		store:      state.NewStore(),
		detector:   &fakeDetector{},
		recognizer: &fakeRecognizer{},
		identifier: &fakeIdentifier{lang: "de"},
		translator: &fakeTranslator{out: "exit"},
		searcher:   &fakeSearcher{},
	}
}

func (h *harness) builder() *Builder {
	return NewBuilder().
		WithStore(h.store).
		WithEngine(vision.Compose(h.detector, h.recognizer)).
		WithLanguageIdentifier(h.identifier).
		WithTranslator(h.translator).
		WithSearcher(h.searcher)
}

package support

import (
	"context"
	"errors"
	"fmt"
	"image"
	"sync"
	"sync/atomic"
	"time"

	"github.com/MeKo-Tech/litelens/internal/pipeline"
	"github.com/MeKo-Tech/litelens/internal/state"
	"github.com/MeKo-Tech/litelens/internal/testutil"
	"github.com/MeKo-Tech/litelens/internal/vision"
	"github.com/MeKo-Tech/litelens/internal/visualsearch"
)

// TestContext holds the state of one scenario.
type TestContext struct {
	Store    *state.Store
	Analyzer *pipeline.Analyzer
	Builder  *pipeline.Builder

	Detector   *FakeDetector
	Recognizer *FakeRecognizer
	Identifier *FakeIdentifier
	Translator *FakeTranslator
	Searcher   *FakeSearcher
	Publisher  *RecordingPublisher

	FramesSent int
	Released   atomic.Int32
}

// NewTestContext creates a fresh scenario context.
func NewTestContext() *TestContext {
	return &TestContext{
		Detector:   &FakeDetector{},
		Recognizer: &FakeRecognizer{},
		Identifier: &FakeIdentifier{Lang: "en"},
		Translator: &FakeTranslator{},
		Searcher:   &FakeSearcher{},
	}
}

// setup creates the store and a builder for mode with the given interval.
func (testCtx *TestContext) setup(mode vision.Mode, interval int) {
	testCtx.Store = state.NewStore(state.WithMode(mode))
	testCtx.Publisher = &RecordingPublisher{Store: testCtx.Store}
	dispatcher := visualsearch.NewDispatcher(testCtx.Searcher, testCtx.Publisher,
		visualsearch.DispatcherConfig{Timeout: 2 * time.Second})

	testCtx.Builder = pipeline.NewBuilder().
		WithStore(testCtx.Store).
		WithEngine(vision.Compose(testCtx.Detector, testCtx.Recognizer)).
		WithLanguageIdentifier(testCtx.Identifier).
		WithTranslator(testCtx.Translator).
		WithSearcher(dispatcher).
		WithFrameIntervals(interval, interval)
}

// analyzer builds the analyzer on first use so Given steps can still tune
// the configuration.
func (testCtx *TestContext) analyzer() (*pipeline.Analyzer, error) {
	if testCtx.Analyzer != nil {
		return testCtx.Analyzer, nil
	}
	if testCtx.Builder == nil {
		return nil, errors.New("no analyzer configured")
	}
	a, err := testCtx.Builder.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build analyzer: %w", err)
	}
	testCtx.Analyzer = a
	return a, nil
}

// Frame returns a synthetic camera frame that reports its release.
func (testCtx *TestContext) Frame() vision.Frame {
	scene := testutil.DefaultSceneConfig()
	scene.Size = testutil.ThumbSize
	scene.Objects[0].Rect = image.Rect(24, 16, 40, 32)
	img := testutil.GenerateScene(scene)
	testCtx.FramesSent++
	return vision.NewFrame(img, 0, uint64(testCtx.FramesSent), func() { testCtx.Released.Add(1) })
}

// Cleanup drains the analyzer.
func (testCtx *TestContext) Cleanup() error {
	if testCtx.Analyzer == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return testCtx.Analyzer.Close(ctx)
}

// FakeDetector returns fixed objects.
type FakeDetector struct {
	mu      sync.Mutex
	Objects []vision.RawObject
	calls   int
}

func (f *FakeDetector) Detect(ctx context.Context, img image.Image, threshold float64) ([]vision.RawObject, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.Objects, nil
}

// Calls returns how often Detect ran.
func (f *FakeDetector) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// FakeRecognizer returns fixed blocks.
type FakeRecognizer struct {
	Blocks []vision.TextBlock
}

func (f *FakeRecognizer) Recognize(ctx context.Context, img image.Image) ([]vision.TextBlock, error) {
	return f.Blocks, nil
}

// FakeIdentifier returns a fixed language.
type FakeIdentifier struct {
	Lang string
}

func (f *FakeIdentifier) Identify(ctx context.Context, text string) (string, error) {
	return f.Lang, nil
}

// FakeTranslator returns a fixed translation.
type FakeTranslator struct {
	mu    sync.Mutex
	Out   string
	Err   error
	calls int
}

func (f *FakeTranslator) Translate(ctx context.Context, text, source, target string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.Err != nil {
		return "", f.Err
	}
	return f.Out, nil
}

// Calls returns how often Translate ran.
func (f *FakeTranslator) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// FakeSearcher stands in for the remote visual search service.
type FakeSearcher struct {
	mu      sync.Mutex
	Results []vision.VisualSearchResult
	Err     error
	calls   int
}

func (f *FakeSearcher) Search(ctx context.Context, jpeg []byte) ([]vision.VisualSearchResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if len(jpeg) == 0 {
		return nil, errors.New("empty upload")
	}
	return f.Results, f.Err
}

// Calls returns how often Search ran.
func (f *FakeSearcher) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// RecordingPublisher records searching flag transitions on the way to the
// store.
type RecordingPublisher struct {
	*state.Store
	mu          sync.Mutex
	Transitions []bool
}

func (p *RecordingPublisher) BeginSearch(gen uint64) bool {
	ok := p.Store.BeginSearch(gen)
	if ok {
		p.record(true)
	}
	return ok
}

func (p *RecordingPublisher) EndSearch() {
	p.Store.EndSearch()
	p.record(false)
}

func (p *RecordingPublisher) record(v bool) {
	p.mu.Lock()
	p.Transitions = append(p.Transitions, v)
	p.mu.Unlock()
}

// Recorded returns a copy of the transitions.
func (p *RecordingPublisher) Recorded() []bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]bool(nil), p.Transitions...)
}

package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/MeKo-Tech/litelens/internal/state"
	"github.com/MeKo-Tech/litelens/internal/throttle"
	"github.com/MeKo-Tech/litelens/internal/vision"
)

// waiter is implemented by searchers that run work in the background.
type waiter interface {
	Wait(ctx context.Context) error
}

// closer is implemented by searchers that can cancel background work.
type closer interface {
	Close(ctx context.Context) error
}

// Analyzer is the frame entry point. It gates frames per mode, prepares them
// synchronously and finishes the analysis in the background.
type Analyzer struct {
	store  *state.Store
	object *DetectionPipeline
	text   *RecognitionPipeline
	gates  map[vision.Mode]*throttle.Gate

	mu       sync.RWMutex
	viewport Viewport

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// life guards closed. Analyze holds it shared from the closed check up to
	// wg.Add so Close never overlaps a new Add.
	life   sync.RWMutex
	closed bool
}

func newAnalyzer(cfg Config, store *state.Store, object *DetectionPipeline, text *RecognitionPipeline) *Analyzer {
	ctx, cancel := context.WithCancel(context.Background())
	a := &Analyzer{
		store:  store,
		object: object,
		text:   text,
		gates: map[vision.Mode]*throttle.Gate{
			vision.ModeObject: throttle.NewGate(store, cfg.Object.FrameInterval),
			vision.ModeText:   throttle.NewGate(store, cfg.Text.FrameInterval),
		},
		viewport: cfg.Viewport,
		ctx:      ctx,
		cancel:   cancel,
	}
	slog.Debug("Analyzer initialized", "object", object, "target_language", text.Target(),
		"viewport_w", cfg.Viewport.Width, "viewport_h", cfg.Viewport.Height)
	return a
}

// Store returns the result store.
func (a *Analyzer) Store() *state.Store { return a.store }

// Gate returns the throttle of mode m.
func (a *Analyzer) Gate(m vision.Mode) *throttle.Gate { return a.gates[m] }

// SetViewport updates the preview size used for the overlay crop.
func (a *Analyzer) SetViewport(w, h int) {
	if w <= 0 || h <= 0 {
		return
	}
	a.mu.Lock()
	a.viewport = Viewport{Width: w, Height: h}
	a.mu.Unlock()
}

// Viewport returns the current preview size.
func (a *Analyzer) Viewport() Viewport {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.viewport
}

// SetMode switches the analysis mode and returns the new generation.
func (a *Analyzer) SetMode(m vision.Mode) uint64 { return a.store.SetMode(m) }

// Analyze offers one frame to the pipeline of the current mode. The frame is
// always released before Analyze returns; the returned outcome tells what
// happened to it. Analysis results arrive through the store.
func (a *Analyzer) Analyze(frame vision.Frame) string {
	defer frame.Release()

	mode, gen := a.store.Current()
	outcome := a.analyze(frame, mode, gen)
	framesTotal.WithLabelValues(string(mode), outcome).Inc()
	return outcome
}

func (a *Analyzer) analyze(frame vision.Frame, mode vision.Mode, gen uint64) string {
	a.life.RLock()
	defer a.life.RUnlock()
	if a.closed {
		return OutcomeClosed
	}
	if !a.gates[mode].ShouldProcess() {
		return OutcomeDroppedGate
	}
	vp := a.Viewport()

	switch mode {
	case vision.ModeText:
		if !a.text.tryAcquire() {
			return OutcomeDroppedBusy
		}
		in, err := a.text.prepare(frame, vp)
		if err != nil {
			a.text.release()
			slog.Warn("Dropping frame", "seq", frame.Seq, "error", err)
			return OutcomeDroppedBusy
		}
		a.spawn(func(ctx context.Context) {
			defer a.text.release()
			if _, err := a.text.run(ctx, in, gen); err != nil && !expected(err) {
				slog.Debug("Text analysis finished with error", "seq", frame.Seq, "error", err)
			}
		})
	default:
		if !a.object.tryAcquire() {
			return OutcomeDroppedBusy
		}
		in, err := a.object.prepare(frame, vp)
		if err != nil {
			a.object.release()
			slog.Warn("Dropping frame", "seq", frame.Seq, "error", err)
			return OutcomeDroppedBusy
		}
		a.spawn(func(ctx context.Context) {
			defer a.object.release()
			a.object.run(ctx, in, gen)
		})
	}
	return OutcomeProcessed
}

func (a *Analyzer) spawn(fn func(ctx context.Context)) {
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		fn(a.ctx)
	}()
}

// Drain waits until all in-flight analysis and searches have finished.
func (a *Analyzer) Drain(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		a.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}
	if w, ok := a.object.searcher.(waiter); ok {
		return w.Wait(ctx)
	}
	return nil
}

// Close stops accepting frames and waits for in-flight work. If ctx expires
// first, running collaborators and background searches are cancelled. Frames
// already inside Analyze finish their hand-off before Close proceeds.
func (a *Analyzer) Close(ctx context.Context) error {
	a.life.Lock()
	a.closed = true
	a.life.Unlock()

	err := a.Drain(ctx)
	a.cancel()
	if c, ok := a.object.searcher.(closer); ok {
		if cerr := c.Close(ctx); err == nil {
			err = cerr
		}
	}
	return err
}

func expected(err error) bool {
	return errors.Is(err, vision.ErrNoText) || errors.Is(err, vision.ErrUndeterminedLanguage)
}

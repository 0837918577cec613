package visualsearch

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"sync"
	"time"

	"github.com/MeKo-Tech/litelens/internal/vision"
	"github.com/disintegration/imaging"
	"golang.org/x/sync/semaphore"
)

// Publisher receives the lifecycle of a search. state.Store implements it.
type Publisher interface {
	BeginSearch(gen uint64) bool
	EndSearch()
	PublishSearchResults(gen uint64, results []vision.VisualSearchResult) bool
	Notify(gen uint64, message string) bool
	Generation() uint64
}

// DispatcherConfig tunes the dispatcher.
type DispatcherConfig struct {
	Timeout     time.Duration
	JPEGQuality int
}

// DefaultDispatcherConfig returns a 20s timeout and quality 90.
func DefaultDispatcherConfig() DispatcherConfig {
	return DispatcherConfig{Timeout: 20 * time.Second, JPEGQuality: 90}
}

// Dispatcher runs at most one visual search at a time, whoever calls it.
type Dispatcher struct {
	searcher vision.VisualSearcher
	pub      Publisher
	cfg      DispatcherConfig
	sem      *semaphore.Weighted
	wg       sync.WaitGroup

	// ctx parents background searches; Close cancels it.
	ctx    context.Context
	cancel context.CancelFunc
}

// NewDispatcher creates a Dispatcher.
func NewDispatcher(searcher vision.VisualSearcher, pub Publisher, cfg DispatcherConfig) *Dispatcher {
	def := DefaultDispatcherConfig()
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.JPEGQuality <= 0 || cfg.JPEGQuality > 100 {
		cfg.JPEGQuality = def.JPEGQuality
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Dispatcher{
		searcher: searcher,
		pub:      pub,
		cfg:      cfg,
		sem:      semaphore.NewWeighted(1),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Search runs a search synchronously. A concurrent call fails with
// vision.ErrSearchInFlight, a call for a stale generation with
// vision.ErrStaleGeneration.
func (d *Dispatcher) Search(ctx context.Context, gen uint64, img image.Image) ([]vision.VisualSearchResult, error) {
	if err := d.acquire(gen); err != nil {
		if errors.Is(err, vision.ErrSearchInFlight) {
			searchesTotal.WithLabelValues("rejected").Inc()
		}
		return nil, err
	}
	return d.run(ctx, gen, img)
}

// Dispatch starts a search in the background and reports whether it was
// accepted. The searching flag is already set when Dispatch returns. Searches
// for a generation that is no longer current are refused.
func (d *Dispatcher) Dispatch(gen uint64, img image.Image) bool {
	if err := d.acquire(gen); err != nil {
		if errors.Is(err, vision.ErrSearchInFlight) {
			searchesTotal.WithLabelValues("rejected").Inc()
		}
		return false
	}
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		_, _ = d.run(d.ctx, gen, img)
	}()
	return true
}

// Wait blocks until background searches finish or ctx expires.
func (d *Dispatcher) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close cancels background searches and waits for them until ctx expires.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.cancel()
	return d.Wait(ctx)
}

func (d *Dispatcher) acquire(gen uint64) error {
	if !d.sem.TryAcquire(1) {
		return vision.ErrSearchInFlight
	}
	if !d.pub.BeginSearch(gen) {
		d.sem.Release(1)
		if d.pub.Generation() != gen {
			return vision.ErrStaleGeneration
		}
		return vision.ErrSearchInFlight
	}
	return nil
}

// run owns the semaphore and the searching flag and releases both.
func (d *Dispatcher) run(ctx context.Context, gen uint64, img image.Image) ([]vision.VisualSearchResult, error) {
	defer d.sem.Release(1)
	defer d.pub.EndSearch()

	start := time.Now()
	results, err := d.search(ctx, img)
	searchDuration.Observe(time.Since(start).Seconds())

	if err != nil {
		searchesTotal.WithLabelValues("error").Inc()
		slog.Warn("Visual search failed", "error", err, "generation", gen)
		d.pub.Notify(gen, vision.UserMessage(err))
		return nil, err
	}

	searchesTotal.WithLabelValues("success").Inc()
	d.pub.PublishSearchResults(gen, results)
	slog.Info("Visual search results published", "results", len(results), "duration", time.Since(start))
	return results, nil
}

func (d *Dispatcher) search(ctx context.Context, img image.Image) ([]vision.VisualSearchResult, error) {
	if img == nil {
		return nil, errors.New("visual search: nil image")
	}
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(d.cfg.JPEGQuality)); err != nil {
		return nil, fmt.Errorf("failed to encode search image: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, d.cfg.Timeout)
	defer cancel()
	return d.searcher.Search(ctx, buf.Bytes())
}

package detector

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io/fs"
	"log/slog"
	"os"
	"sync"

	"github.com/MeKo-Tech/litelens/internal/vision"
)

type loadedDetector interface {
	vision.ObjectDetector
	Close() error
}

// Lazy loads the model on first use. While the model file is missing every
// call fails with vision.ErrModelNotReady and the load is retried on the next
// frame, so a model that is still being downloaded is picked up once it lands.
type Lazy struct {
	cfg  Config
	load func(Config) (loadedDetector, error)
	stat func(string) (os.FileInfo, error)

	mu     sync.Mutex
	det    loadedDetector
	err    error
	closed bool
}

// ErrClosed is returned by Detect after Close.
var ErrClosed = errors.New("detector closed")

// NewLazy creates a lazily loading detector.
func NewLazy(cfg Config) *Lazy {
	return &Lazy{
		cfg:  cfg,
		load: func(c Config) (loadedDetector, error) { return NewDetector(c) },
		stat: os.Stat,
	}
}

// Unavailable returns a detector that never becomes ready.
func Unavailable() vision.ObjectDetector { return unavailable{} }

type unavailable struct{}

func (unavailable) Detect(context.Context, image.Image, float64) ([]vision.RawObject, error) {
	return nil, vision.ErrModelNotReady
}

// Detect implements vision.ObjectDetector.
func (l *Lazy) Detect(ctx context.Context, img image.Image, threshold float64) ([]vision.RawObject, error) {
	det, err := l.get()
	if err != nil {
		return nil, err
	}
	return det.Detect(ctx, img, threshold)
}

// Ready reports whether the model has been loaded.
func (l *Lazy) Ready() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.det != nil
}

func (l *Lazy) get() (loadedDetector, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil, ErrClosed
	}
	if l.det != nil {
		return l.det, nil
	}
	// A broken model is not retried.
	if l.err != nil {
		return nil, l.err
	}

	if _, err := l.stat(l.cfg.ModelPath); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", vision.ErrModelNotReady, l.cfg.ModelPath)
		}
		return nil, err
	}

	det, err := l.load(l.cfg)
	if err != nil {
		l.err = fmt.Errorf("failed to load detector: %w", err)
		return nil, l.err
	}
	slog.Info("Object detector loaded", "model_path", l.cfg.ModelPath)
	l.det = det
	return det, nil
}

// Close releases the model if it was loaded. Later calls to Detect fail with
// ErrClosed instead of loading the model again.
func (l *Lazy) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.closed = true
	if l.det == nil {
		return nil
	}
	err := l.det.Close()
	l.det = nil
	return err
}

package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/MeKo-Tech/litelens/internal/config"
	"github.com/MeKo-Tech/litelens/internal/detector"
	"github.com/MeKo-Tech/litelens/internal/langid"
	"github.com/MeKo-Tech/litelens/internal/models"
	"github.com/MeKo-Tech/litelens/internal/pipeline"
	"github.com/MeKo-Tech/litelens/internal/recognizer"
	"github.com/MeKo-Tech/litelens/internal/state"
	"github.com/MeKo-Tech/litelens/internal/store"
	"github.com/MeKo-Tech/litelens/internal/translate"
	"github.com/MeKo-Tech/litelens/internal/vision"
	"github.com/MeKo-Tech/litelens/internal/visualsearch"
)

// backends are the recognition services an analyzer is built on.
type backends struct {
	Detector   vision.ObjectDetector
	Recognizer vision.TextRecognizer
	Identifier vision.LanguageIdentifier
	Translator vision.Translator
	// Searcher is nil when visual search is disabled.
	Searcher vision.VisualSearcher

	close func() error
}

// newBackends builds the configured backends. Tests replace it.
var newBackends = func(cfg *config.Config) (*backends, error) {
	b := &backends{Identifier: langid.NewHeuristic()}

	switch cfg.Detector.Backend {
	case config.BackendNone:
		slog.Warn("Object detection disabled")
		b.Detector = detector.Unavailable()
	default:
		lazy := detector.NewLazy(resolveDetectorPaths(cfg.ToDetectorConfig()))
		b.Detector = lazy
		b.close = lazy.Close
	}

	httpClient := &http.Client{}

	rec, err := recognizer.NewRemoteRecognizer(cfg.ToRecognizerConfig(), httpClient)
	if err != nil {
		return nil, fmt.Errorf("failed to create recognizer: %w", err)
	}
	b.Recognizer = rec

	tr, err := translate.NewClient(cfg.ToTranslateConfig(), httpClient)
	if err != nil {
		return nil, fmt.Errorf("failed to create translator: %w", err)
	}
	b.Translator = tr

	if cfg.SearchEnabled() {
		bing, err := visualsearch.NewBingClient(cfg.ToSearchConfig(), httpClient)
		if err != nil {
			return nil, fmt.Errorf("failed to create visual search client: %w", err)
		}
		b.Searcher = bing
	} else {
		slog.Info("Visual search disabled: no API key configured")
	}
	return b, nil
}

// resolveDetectorPaths looks up configured model files that are not found
// where configured in the models directory.
func resolveDetectorPaths(dc detector.Config) detector.Config {
	dc.ModelPath = models.Resolve(dc.ModelPath, models.TypeDetection)
	dc.LabelsPath = models.Resolve(dc.LabelsPath, models.TypeLabels)
	return dc
}

// app is the running composition: result store, analyzer and optional
// visual search dispatcher.
type app struct {
	cfg        *config.Config
	state      *state.Store
	analyzer   *pipeline.Analyzer
	dispatcher *visualsearch.Dispatcher
	backends   *backends
}

func newApp(cfg *config.Config) (*app, error) {
	b, err := newBackends(cfg)
	if err != nil {
		return nil, err
	}

	st := state.NewStore(
		state.WithAutoPresent(cfg.State.AutoPresent),
		state.WithMode(cfg.StartMode()),
	)

	builder := pipeline.NewBuilder().
		WithConfig(cfg.ToPipelineConfig()).
		WithStore(st).
		WithDetector(b.Detector).
		WithRecognizer(b.Recognizer).
		WithLanguageIdentifier(b.Identifier).
		WithTranslator(b.Translator)

	a := &app{cfg: cfg, state: st, backends: b}
	if b.Searcher != nil {
		dcfg := visualsearch.DefaultDispatcherConfig()
		dcfg.Timeout = cfg.ToSearchConfig().Timeout
		a.dispatcher = visualsearch.NewDispatcher(b.Searcher, st, dcfg)
		builder = builder.WithSearcher(a.dispatcher)
	}

	a.analyzer, err = builder.Build()
	if err != nil {
		if b.close != nil {
			_ = b.close()
		}
		return nil, fmt.Errorf("failed to build analyzer: %w", err)
	}

	slog.Debug("Analyzer ready",
		"mode", st.Mode(),
		"visual_search", a.dispatcher != nil,
		"detector", cfg.Detector.Backend)
	return a, nil
}

// Close stops the analyzer, which also waits for a running visual search,
// and releases the backends.
func (a *app) Close(ctx context.Context) error {
	var errs []error
	if err := a.analyzer.Close(ctx); err != nil {
		errs = append(errs, fmt.Errorf("analyzer: %w", err))
	}
	if a.backends.close != nil {
		if err := a.backends.close(); err != nil {
			errs = append(errs, fmt.Errorf("backends: %w", err))
		}
	}
	return errors.Join(errs...)
}

// openSearches opens the saved search store.
func openSearches(cfg *config.Config) (*store.Store, error) {
	s, err := store.Open(cfg.ToStoreConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to open saved searches: %w", err)
	}
	return s, nil
}

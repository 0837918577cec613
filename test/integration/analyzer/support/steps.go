package support

import (
	"context"
	"errors"
	"fmt"
	"image"
	"strings"
	"time"

	"github.com/MeKo-Tech/litelens/internal/vision"
	"github.com/cucumber/godog"
)

// RegisterSetupSteps registers the Given steps.
func (testCtx *TestContext) RegisterSetupSteps(sc *godog.ScenarioContext) {
	sc.Step(`^an analyzer in "([^"]*)" mode with a frame interval of (\d+)$`, testCtx.anAnalyzerInMode)
	sc.Step(`^a visual search is running$`, testCtx.aVisualSearchIsRunning)
	sc.Step(`^the result sheet is visible$`, testCtx.theResultSheetIsVisible)
	sc.Step(`^the detector sees a "([^"]*)" with confidence ([\d.]+)$`, testCtx.theDetectorSees)
	sc.Step(`^the search service returns (\d+) results$`, testCtx.theSearchServiceReturns)
	sc.Step(`^the search service fails with "([^"]*)"$`, testCtx.theSearchServiceFails)
	sc.Step(`^the target language is "([^"]*)"$`, testCtx.theTargetLanguageIs)
	sc.Step(`^the camera shows the text "([^"]*)" in "([^"]*)"$`, testCtx.theCameraShowsText)
	sc.Step(`^the translator answers "([^"]*)"$`, testCtx.theTranslatorAnswers)
	sc.Step(`^the translation model is still downloading$`, testCtx.theModelIsDownloading)
}

// RegisterActionSteps registers the When steps.
func (testCtx *TestContext) RegisterActionSteps(sc *godog.ScenarioContext) {
	sc.Step(`^(\d+) camera frames arrive$`, testCtx.cameraFramesArrive)
	sc.Step(`^the result sheet is dismissed$`, testCtx.theResultSheetIsDismissed)
	sc.Step(`^the analyzer is drained$`, testCtx.theAnalyzerIsDrained)
}

// RegisterAssertionSteps registers the Then steps.
func (testCtx *TestContext) RegisterAssertionSteps(sc *godog.ScenarioContext) {
	sc.Step(`^(\d+) frames are analyzed$`, testCtx.framesAreAnalyzed)
	sc.Step(`^all (\d+) frames are released$`, testCtx.allFramesAreReleased)
	sc.Step(`^the search service was called (\d+) times$`, testCtx.theSearchServiceWasCalled)
	sc.Step(`^the store holds (\d+) search results$`, testCtx.theStoreHoldsSearchResults)
	sc.Step(`^the store holds (\d+) detections$`, testCtx.theStoreHoldsDetections)
	sc.Step(`^the searching flag was raised and cleared once$`, testCtx.theSearchingFlagWasRaisedAndCleared)
	sc.Step(`^the status message contains "([^"]*)"$`, testCtx.theStatusMessageContains)
	sc.Step(`^the translation reads "([^"]*)" from "([^"]*)" to "([^"]*)"$`, testCtx.theTranslationReads)
	sc.Step(`^no translation was requested$`, testCtx.noTranslationWasRequested)
	sc.Step(`^no translation is shown$`, testCtx.noTranslationIsShown)
}

func (testCtx *TestContext) anAnalyzerInMode(mode string, interval int) error {
	m, ok := vision.ParseMode(mode)
	if !ok {
		return fmt.Errorf("unknown mode %q", mode)
	}
	testCtx.setup(m, interval)
	return nil
}

func (testCtx *TestContext) aVisualSearchIsRunning() error {
	if !testCtx.Store.BeginSearch(testCtx.Store.Generation()) {
		return errors.New("a search was already running")
	}
	return nil
}

func (testCtx *TestContext) theResultSheetIsVisible() error {
	testCtx.Store.ShowSheet()
	return nil
}

func (testCtx *TestContext) theDetectorSees(label string, confidence float64) error {
	testCtx.Detector.mu.Lock()
	defer testCtx.Detector.mu.Unlock()
	testCtx.Detector.Objects = []vision.RawObject{
		{Box: image.Rect(40, 40, 260, 260), Label: label, Confidence: confidence},
	}
	return nil
}

func (testCtx *TestContext) theSearchServiceReturns(n int) error {
	testCtx.Searcher.mu.Lock()
	defer testCtx.Searcher.mu.Unlock()
	testCtx.Searcher.Results = make([]vision.VisualSearchResult, n)
	for i := range testCtx.Searcher.Results {
		testCtx.Searcher.Results[i] = vision.VisualSearchResult{
			Type:  vision.ResultImageSearch,
			Title: fmt.Sprintf("result %d", i+1),
		}
	}
	return nil
}

func (testCtx *TestContext) theSearchServiceFails(msg string) error {
	testCtx.Searcher.mu.Lock()
	defer testCtx.Searcher.mu.Unlock()
	testCtx.Searcher.Err = errors.New(msg)
	return nil
}

func (testCtx *TestContext) theTargetLanguageIs(lang string) error {
	if testCtx.Builder == nil {
		return errors.New("no analyzer configured")
	}
	testCtx.Builder.WithTargetLanguage(lang)
	return nil
}

func (testCtx *TestContext) theCameraShowsText(text, lang string) error {
	testCtx.Recognizer.Blocks = []vision.TextBlock{{Text: text, Box: image.Rect(0, 0, 64, 48)}}
	testCtx.Identifier.Lang = lang
	return nil
}

func (testCtx *TestContext) theTranslatorAnswers(out string) error {
	testCtx.Translator.mu.Lock()
	defer testCtx.Translator.mu.Unlock()
	testCtx.Translator.Out = out
	return nil
}

func (testCtx *TestContext) theModelIsDownloading() error {
	testCtx.Translator.mu.Lock()
	defer testCtx.Translator.mu.Unlock()
	testCtx.Translator.Err = fmt.Errorf("language pair not installed: %w", vision.ErrModelNotReady)
	return nil
}

func (testCtx *TestContext) cameraFramesArrive(n int) error {
	a, err := testCtx.analyzer()
	if err != nil {
		return err
	}
	for range n {
		a.Analyze(testCtx.Frame())
		// frames arrive slower than a fake analysis takes
		if err := testCtx.theAnalyzerIsDrained(); err != nil {
			return err
		}
	}
	return nil
}

func (testCtx *TestContext) theResultSheetIsDismissed() error {
	testCtx.Store.DismissSheet()
	return nil
}

func (testCtx *TestContext) theAnalyzerIsDrained() error {
	a, err := testCtx.analyzer()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return a.Drain(ctx)
}

func (testCtx *TestContext) framesAreAnalyzed(n int) error {
	got := testCtx.Detector.Calls()
	if testCtx.Store.Mode() == vision.ModeText {
		got = testCtx.Translator.Calls()
	}
	if got != n {
		return fmt.Errorf("expected %d analyzed frames, got %d", n, got)
	}
	return nil
}

func (testCtx *TestContext) allFramesAreReleased(n int) error {
	if int(testCtx.Released.Load()) != n || testCtx.FramesSent != n {
		return fmt.Errorf("sent %d frames, %d released, expected %d", testCtx.FramesSent, testCtx.Released.Load(), n)
	}
	return nil
}

func (testCtx *TestContext) theSearchServiceWasCalled(n int) error {
	if got := testCtx.Searcher.Calls(); got != n {
		return fmt.Errorf("expected %d searches, got %d", n, got)
	}
	return nil
}

func (testCtx *TestContext) theStoreHoldsSearchResults(n int) error {
	if got := len(testCtx.Store.Snapshot().SearchResults); got != n {
		return fmt.Errorf("expected %d search results, got %d", n, got)
	}
	return nil
}

func (testCtx *TestContext) theStoreHoldsDetections(n int) error {
	if got := len(testCtx.Store.Snapshot().Detections); got != n {
		return fmt.Errorf("expected %d detections, got %d", n, got)
	}
	return nil
}

func (testCtx *TestContext) theSearchingFlagWasRaisedAndCleared() error {
	got := testCtx.Publisher.Recorded()
	if len(got) != 2 || !got[0] || got[1] {
		return fmt.Errorf("expected searching transitions [true false], got %v", got)
	}
	if testCtx.Store.Searching() {
		return errors.New("searching flag is still set")
	}
	return nil
}

func (testCtx *TestContext) theStatusMessageContains(want string) error {
	if msg := testCtx.Store.Snapshot().Message; !strings.Contains(msg, want) {
		return fmt.Errorf("status message %q does not contain %q", msg, want)
	}
	return nil
}

func (testCtx *TestContext) theTranslationReads(text, source, target string) error {
	tr := testCtx.Store.Snapshot().Translation
	if tr == nil {
		return errors.New("no translation published")
	}
	if tr.TranslatedText != text || tr.SourceLanguage != source || tr.TargetLanguage != target {
		return fmt.Errorf("unexpected translation %q (%s->%s)", tr.TranslatedText, tr.SourceLanguage, tr.TargetLanguage)
	}
	return nil
}

func (testCtx *TestContext) noTranslationWasRequested() error {
	if n := testCtx.Translator.Calls(); n != 0 {
		return fmt.Errorf("translator was called %d times", n)
	}
	return nil
}

func (testCtx *TestContext) noTranslationIsShown() error {
	if testCtx.Store.Snapshot().Translation != nil {
		return errors.New("a translation is shown")
	}
	return nil
}

package vision

import (
	"context"
	"image"
)

// Undetermined is the language code returned when identification fails.
const Undetermined = "und"

// ObjectDetector finds labelled objects whose confidence is at least threshold.
type ObjectDetector interface {
	Detect(ctx context.Context, img image.Image, threshold float64) ([]RawObject, error)
}

// TextRecognizer extracts text blocks from an image.
type TextRecognizer interface {
	Recognize(ctx context.Context, img image.Image) ([]TextBlock, error)
}

// Engine exposes both recognition capabilities behind one value so backends
// can be swapped at composition time.
type Engine interface {
	ObjectDetector
	TextRecognizer
}

type composed struct {
	ObjectDetector
	TextRecognizer
}

// Compose combines independent detector and recognizer backends.
func Compose(det ObjectDetector, rec TextRecognizer) Engine {
	return composed{ObjectDetector: det, TextRecognizer: rec}
}

// LanguageIdentifier returns a BCP-47 code or Undetermined.
type LanguageIdentifier interface {
	Identify(ctx context.Context, text string) (string, error)
}

// Translator converts text between two language codes.
type Translator interface {
	Translate(ctx context.Context, text, source, target string) (string, error)
}

// VisualSearcher submits an encoded image to a remote search service.
type VisualSearcher interface {
	Search(ctx context.Context, jpeg []byte) ([]VisualSearchResult, error)
}

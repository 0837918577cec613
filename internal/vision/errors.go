package vision

import "errors"

var (
	// ErrModelNotReady is returned while an on-demand model is still downloading.
	ErrModelNotReady = errors.New("model not ready")
	// ErrNoText means recognition produced no usable text.
	ErrNoText = errors.New("no text recognized")
	// ErrUndeterminedLanguage means the source language could not be identified.
	ErrUndeterminedLanguage = errors.New("language undetermined")
	// ErrSearchInFlight rejects a visual search while another one is running.
	ErrSearchInFlight = errors.New("visual search already in flight")
	// ErrStaleGeneration refuses work for a mode generation that has ended.
	ErrStaleGeneration = errors.New("stale generation")
	// ErrBusy drops a frame while the previous analysis is still running.
	ErrBusy = errors.New("analyzer busy")
)

// UserMessage turns pipeline errors into a short status line for observers.
func UserMessage(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrModelNotReady):
		return "Waiting for model to be downloaded"
	case errors.Is(err, ErrSearchInFlight):
		return "A search is already running"
	case errors.Is(err, ErrNoText):
		return "No text found"
	case errors.Is(err, ErrUndeterminedLanguage):
		return "Could not identify the language"
	default:
		return err.Error()
	}
}

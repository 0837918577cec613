// Package vision holds the data model shared by every stage of the frame
// pipeline together with the contracts of the external collaborators.
package vision

import (
	"image"
	"sync"
	"time"
)

// Kind distinguishes object detections from recognized text blocks.
type Kind string

const (
	KindObject Kind = "OBJECT"
	KindText   Kind = "TEXT"
)

// Mode selects which analyzer handles incoming frames.
type Mode string

const (
	ModeObject Mode = "OBJECT"
	ModeText   Mode = "TEXT"
)

// ParseMode accepts "object"/"text" in any case.
func ParseMode(s string) (Mode, bool) {
	switch s {
	case "object", "OBJECT", "Object":
		return ModeObject, true
	case "text", "TEXT", "Text":
		return ModeText, true
	default:
		return "", false
	}
}

// TextConfidence is the sentinel confidence carried by text detections.
const TextConfidence = 1.0

// Frame is a single camera image plus its capture metadata. The pixel buffer
// belongs to the producer until Release is called.
type Frame struct {
	Image      image.Image
	Rotation   int
	Seq        uint64
	CapturedAt time.Time

	release func()
	once    *sync.Once
}

// NewFrame wraps img. release may be nil.
func NewFrame(img image.Image, rotation int, seq uint64, release func()) Frame {
	return Frame{
		Image:      img,
		Rotation:   NormalizeRotation(rotation),
		Seq:        seq,
		CapturedAt: time.Now(),
		release:    release,
		once:       &sync.Once{},
	}
}

// Release hands the buffer back to the producer. Safe to call more than once.
func (f Frame) Release() {
	if f.release == nil || f.once == nil {
		return
	}
	f.once.Do(f.release)
}

// NormalizeRotation maps any angle to 0, 90, 180 or 270, snapping to the
// nearest quarter turn.
func NormalizeRotation(deg int) int {
	deg %= 360
	if deg < 0 {
		deg += 360
	}
	return ((deg + 45) / 90 % 4) * 90
}

// Detection is a labelled rectangle found in a frame. Box is expressed in the
// pixel space of a SourceWidth x SourceHeight image.
type Detection struct {
	Box          image.Rectangle `json:"box"`
	Label        string          `json:"label"`
	Confidence   float64         `json:"confidence"`
	SourceWidth  int             `json:"source_width"`
	SourceHeight int             `json:"source_height"`
	Kind         Kind            `json:"kind"`
	Image        image.Image     `json:"-"`
}

// Clamp returns a copy whose box lies inside the source dimensions.
func (d Detection) Clamp() Detection {
	d.Box = d.Box.Canon().Intersect(image.Rect(0, 0, d.SourceWidth, d.SourceHeight))
	return d
}

// Rescale maps the box into a w x h image and returns it clamped.
func (d Detection) Rescale(w, h int) image.Rectangle {
	if d.SourceWidth <= 0 || d.SourceHeight <= 0 {
		return image.Rectangle{}
	}
	sx := float64(w) / float64(d.SourceWidth)
	sy := float64(h) / float64(d.SourceHeight)
	c := d.Clamp().Box
	r := image.Rect(
		int(float64(c.Min.X)*sx+0.5), int(float64(c.Min.Y)*sy+0.5),
		int(float64(c.Max.X)*sx+0.5), int(float64(c.Max.Y)*sy+0.5),
	)
	return r.Intersect(image.Rect(0, 0, w, h))
}

// RawObject is a single detector output before it is mapped to a Detection.
// Box uses the pixel space of the image that was handed to the detector.
type RawObject struct {
	Box        image.Rectangle
	Label      string
	Confidence float64
}

// TextBlock is one block returned by a text recognizer.
type TextBlock struct {
	Text string          `json:"text"`
	Box  image.Rectangle `json:"box"`
}

// ResultType discriminates visual search results from translations.
type ResultType string

const (
	ResultImageSearch ResultType = "ImageSearch"
	ResultTextSearch  ResultType = "TextSearch"
)

// VisualSearchResult is either a hit from the remote visual search service or
// a translation produced by the text pipeline.
type VisualSearchResult struct {
	Type           ResultType `json:"type"`
	ActionType     string     `json:"action_type,omitempty"`
	Title          string     `json:"title,omitempty"`
	URL            string     `json:"url,omitempty"`
	Snippet        string     `json:"snippet,omitempty"`
	ThumbnailURL   string     `json:"thumbnail_url,omitempty"`
	ContentURL     string     `json:"content_url,omitempty"`
	ContentSize    string     `json:"content_size,omitempty"`
	EncodingFormat string     `json:"encoding_format,omitempty"`
	Width          int        `json:"width,omitempty"`
	Height         int        `json:"height,omitempty"`
	OriginalText   string     `json:"original_text,omitempty"`
	SourceLanguage string     `json:"source_language,omitempty"`
	TranslatedText string     `json:"translated_text,omitempty"`
	TargetLanguage string     `json:"target_language,omitempty"`
}

// NewTranslation builds the result published by the text pipeline.
func NewTranslation(original, source, translated, target string) VisualSearchResult {
	return VisualSearchResult{
		Type:           ResultTextSearch,
		Title:          translated,
		OriginalText:   original,
		SourceLanguage: source,
		TranslatedText: translated,
		TargetLanguage: target,
	}
}

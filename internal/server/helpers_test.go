package server

import (
	"bytes"
	"context"
	"image"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/MeKo-Tech/litelens/internal/pipeline"
	"github.com/MeKo-Tech/litelens/internal/state"
	"github.com/MeKo-Tech/litelens/internal/store"
	"github.com/MeKo-Tech/litelens/internal/testutil"
	"github.com/MeKo-Tech/litelens/internal/vision"
	"github.com/stretchr/testify/require"
)

type stubDetector struct{ objects []vision.RawObject }

func (d stubDetector) Detect(context.Context, image.Image, float64) ([]vision.RawObject, error) {
	return d.objects, nil
}

type stubRecognizer struct{}

func (stubRecognizer) Recognize(context.Context, image.Image) ([]vision.TextBlock, error) {
	return nil, nil
}

type stubIdentifier struct{}

func (stubIdentifier) Identify(context.Context, string) (string, error) { return "de", nil }

type stubTranslator struct{}

func (stubTranslator) Translate(_ context.Context, text, _, _ string) (string, error) {
	return "[" + text + "]", nil
}

// newTestAnalyzer builds an analyzer that processes every frame and finds a
// single cup in the middle of the detector input.
func newTestAnalyzer(t *testing.T) *pipeline.Analyzer {
	t.Helper()
	a, err := pipeline.NewBuilder().
		WithStore(state.NewStore()).
		WithDetector(stubDetector{objects: []vision.RawObject{
			{Box: image.Rect(10, 10, 40, 40), Label: "cup", Confidence: 0.9},
		}}).
		WithRecognizer(stubRecognizer{}).
		WithLanguageIdentifier(stubIdentifier{}).
		WithTranslator(stubTranslator{}).
		WithFrameIntervals(1, 1).
		Build()
	require.NoError(t, err)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = a.Close(ctx)
	})
	return a
}

func newTestSearchStore(t *testing.T) *store.Store {
	t.Helper()
	st, err := store.Open(store.Config{Driver: store.DriverSQLite})
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func newTestServer(t *testing.T) (*Server, *pipeline.Analyzer, *store.Store) {
	t.Helper()
	a := newTestAnalyzer(t)
	st := newTestSearchStore(t)
	s, err := NewServer(DefaultConfig(), a, st)
	require.NoError(t, err)
	return s, a, st
}

func serve(s *Server, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	return w
}

// createTestImage creates a gradient test image.
func createTestImage(width, height int) image.Image {
	return testutil.CreateGradientImage(width, height)
}

func encodeImageToPNG(t *testing.T, img image.Image) []byte {
	t.Helper()
	return testutil.EncodePNG(t, img)
}

// createMultipartFrameRequest creates a multipart POST /frames request.
func createMultipartFrameRequest(t *testing.T, imageData []byte) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	part, err := writer.CreateFormFile("image", "frame.png")
	require.NoError(t, err)
	_, err = part.Write(imageData)
	require.NoError(t, err)
	require.NoError(t, writer.Close())

	req := httptest.NewRequest(http.MethodPost, "/frames", &buf)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	return req
}

// publishCapture seeds the store with a detection carrying a captured image
// and one search result.
func publishCapture(t *testing.T, st *state.Store) {
	t.Helper()
	gen := st.Generation()
	det := vision.Detection{
		Box:          image.Rect(10, 10, 40, 40),
		Label:        "cup",
		Confidence:   0.9,
		SourceWidth:  64,
		SourceHeight: 64,
		Kind:         vision.KindObject,
		Image:        createTestImage(64, 64),
	}
	require.True(t, st.PublishDetections(gen, []vision.Detection{det}))
	require.True(t, st.PublishSearchResults(gen, []vision.VisualSearchResult{
		{Type: vision.ResultImageSearch, Title: "Mug", URL: "https://example.com/mug"},
	}))
}

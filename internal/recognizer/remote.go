// Package recognizer provides text recognition backends and the block
// selection used by the text pipeline.
package recognizer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"image/png"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/MeKo-Tech/litelens/internal/version"
	"github.com/MeKo-Tech/litelens/internal/vision"
)

// Config configures the remote OCR backend.
type Config struct {
	// Endpoint is the base URL of an OCR server exposing POST /ocr/image.
	Endpoint string
	Language string
	Timeout  time.Duration
}

// DefaultConfig returns a configuration pointing at a local OCR server.
func DefaultConfig() Config {
	return Config{Endpoint: "http://localhost:8080", Timeout: 10 * time.Second}
}

// RemoteRecognizer sends frames to an OCR HTTP service that answers with
// detected regions and their text.
type RemoteRecognizer struct {
	cfg    Config
	client *http.Client
}

// NewRemoteRecognizer validates cfg and returns a recognizer. client may be nil.
func NewRemoteRecognizer(cfg Config, client *http.Client) (*RemoteRecognizer, error) {
	if cfg.Endpoint == "" {
		return nil, errors.New("recognizer endpoint cannot be empty")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultConfig().Timeout
	}
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}
	return &RemoteRecognizer{cfg: cfg, client: client}, nil
}

type ocrResponse struct {
	OCR struct {
		Width   int `json:"width"`
		Height  int `json:"height"`
		Regions []struct {
			Box           struct{ X, Y, W, H int } `json:"box"`
			Text          string                   `json:"text"`
			RecConfidence float64                  `json:"rec_confidence"`
		} `json:"regions"`
	} `json:"ocr"`
}

// Recognize implements vision.TextRecognizer. A 503 from the service is
// reported as vision.ErrModelNotReady.
func (r *RemoteRecognizer) Recognize(ctx context.Context, img image.Image) ([]vision.TextBlock, error) {
	if img == nil {
		return nil, errors.New("input image is nil")
	}

	body, contentType, err := encodeForm(img, r.cfg.Language)
	if err != nil {
		return nil, err
	}

	url := strings.TrimRight(r.cfg.Endpoint, "/") + "/ocr/image"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, body)
	if err != nil {
		return nil, fmt.Errorf("failed to build OCR request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", version.UserAgent())

	start := time.Now()
	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("OCR request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode == http.StatusServiceUnavailable:
		return nil, fmt.Errorf("OCR service: %w", vision.ErrModelNotReady)
	case resp.StatusCode != http.StatusOK:
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("OCR service returned %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var out ocrResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to decode OCR response: %w", err)
	}

	blocks := make([]vision.TextBlock, 0, len(out.OCR.Regions))
	for _, reg := range out.OCR.Regions {
		blocks = append(blocks, vision.TextBlock{
			Text: reg.Text,
			Box:  image.Rect(reg.Box.X, reg.Box.Y, reg.Box.X+reg.Box.W, reg.Box.Y+reg.Box.H),
		})
	}

	slog.Debug("Text recognized", "blocks", len(blocks), "duration", time.Since(start))
	return blocks, nil
}

func encodeForm(img image.Image, language string) (io.Reader, string, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	part, err := mw.CreateFormFile("image", "frame.png")
	if err != nil {
		return nil, "", fmt.Errorf("failed to create form file: %w", err)
	}
	if err := png.Encode(part, img); err != nil {
		return nil, "", fmt.Errorf("failed to encode frame: %w", err)
	}
	if err := mw.WriteField("format", "json"); err != nil {
		return nil, "", err
	}
	if language != "" {
		if err := mw.WriteField("language", language); err != nil {
			return nil, "", err
		}
	}
	if err := mw.Close(); err != nil {
		return nil, "", err
	}
	return &buf, mw.FormDataContentType(), nil
}

// Package translate talks to a LibreTranslate-compatible translation service.
package translate

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/MeKo-Tech/litelens/internal/version"
	"github.com/MeKo-Tech/litelens/internal/vision"
)

// ErrUnsupportedPair is returned when the service cannot translate between
// the requested languages.
var ErrUnsupportedPair = errors.New("unsupported language pair")

// Config configures the translation client.
type Config struct {
	Endpoint string
	APIKey   string
	Timeout  time.Duration
}

// DefaultConfig returns a configuration for a local LibreTranslate instance.
func DefaultConfig() Config {
	return Config{Endpoint: "http://localhost:5000", Timeout: 10 * time.Second}
}

// Client translates text. Before the first translation of a language pair it
// checks that the service has the pair loaded and caches the answer.
type Client struct {
	cfg    Config
	client *http.Client

	mu    sync.Mutex
	ready map[string]bool
}

// NewClient creates a Client. httpClient may be nil.
func NewClient(cfg Config, httpClient *http.Client) (*Client, error) {
	if cfg.Endpoint == "" {
		return nil, errors.New("translation endpoint cannot be empty")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultConfig().Timeout
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	return &Client{cfg: cfg, client: httpClient, ready: make(map[string]bool)}, nil
}

type languageInfo struct {
	Code    string   `json:"code"`
	Name    string   `json:"name"`
	Targets []string `json:"targets"`
}

// Prepare makes sure the source/target pair is available. It returns
// vision.ErrModelNotReady while the service is still loading models.
func (c *Client) Prepare(ctx context.Context, source, target string) error {
	key := source + ">" + target
	c.mu.Lock()
	ok := c.ready[key]
	c.mu.Unlock()
	if ok {
		return nil
	}

	var langs []languageInfo
	if err := c.do(ctx, http.MethodGet, "/languages", nil, &langs); err != nil {
		return err
	}

	for _, l := range langs {
		if l.Code != source {
			continue
		}
		for _, t := range l.Targets {
			if t == target {
				c.mu.Lock()
				c.ready[key] = true
				c.mu.Unlock()
				slog.Info("Translation model ready", "source", source, "target", target)
				return nil
			}
		}
	}
	return fmt.Errorf("%s to %s: %w", source, target, ErrUnsupportedPair)
}

// Translate implements vision.Translator.
func (c *Client) Translate(ctx context.Context, text, source, target string) (string, error) {
	if source == target {
		return text, nil
	}
	if err := c.Prepare(ctx, source, target); err != nil {
		return "", err
	}

	req := map[string]string{"q": text, "source": source, "target": target, "format": "text"}
	if c.cfg.APIKey != "" {
		req["api_key"] = c.cfg.APIKey
	}
	var resp struct {
		TranslatedText string `json:"translatedText"`
	}
	if err := c.do(ctx, http.MethodPost, "/translate", req, &resp); err != nil {
		return "", err
	}
	return resp.TranslatedText, nil
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	url := strings.TrimRight(c.cfg.Endpoint, "/") + path
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("User-Agent", version.UserAgent())
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("translation request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode == http.StatusServiceUnavailable:
		return fmt.Errorf("translation service: %w", vision.ErrModelNotReady)
	case resp.StatusCode != http.StatusOK:
		var apiErr struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(io.LimitReader(resp.Body, 4096)).Decode(&apiErr)
		return fmt.Errorf("translation service returned %d: %s", resp.StatusCode, apiErr.Error)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

var _ vision.Translator = (*Client)(nil)

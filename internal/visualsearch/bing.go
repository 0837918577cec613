// Package visualsearch submits captured frames to a visual search service and
// keeps at most one search in flight.
package visualsearch

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/url"
	"time"

	"github.com/MeKo-Tech/litelens/internal/version"
	"github.com/MeKo-Tech/litelens/internal/vision"
)

// Action types returned by the Bing visual search API.
const (
	ActionPagesIncluding  = "PagesIncluding"
	ActionVisualSearch    = "VisualSearch"
	ActionRelatedSearches = "RelatedSearches"
)

// DefaultEndpoint is the public Bing visual search endpoint.
const DefaultEndpoint = "https://api.bing.microsoft.com/v7.0/images/visualsearch"

// Config configures the Bing client.
type Config struct {
	Endpoint   string
	APIKey     string
	Market     string
	SafeSearch string
	Timeout    time.Duration
}

// DefaultConfig returns the en-US strict configuration.
func DefaultConfig() Config {
	return Config{
		Endpoint:   DefaultEndpoint,
		Market:     "en-US",
		SafeSearch: "Strict",
		Timeout:    15 * time.Second,
	}
}

// BingClient implements vision.VisualSearcher over the Bing visual search API.
type BingClient struct {
	cfg    Config
	client *http.Client
}

// NewBingClient creates a client. httpClient may be nil.
func NewBingClient(cfg Config, httpClient *http.Client) (*BingClient, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("visual search API key cannot be empty")
	}
	def := DefaultConfig()
	if cfg.Endpoint == "" {
		cfg.Endpoint = def.Endpoint
	}
	if cfg.Market == "" {
		cfg.Market = def.Market
	}
	if cfg.SafeSearch == "" {
		cfg.SafeSearch = def.SafeSearch
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	return &BingClient{cfg: cfg, client: httpClient}, nil
}

type bingResponse struct {
	Tags []struct {
		Actions []bingAction `json:"actions"`
	} `json:"tags"`
}

type bingAction struct {
	ActionType string `json:"actionType"`
	Data       struct {
		Value []bingValue `json:"value"`
	} `json:"data"`
}

type bingValue struct {
	Name           string `json:"name"`
	HostPageURL    string `json:"hostPageUrl"`
	ThumbnailURL   string `json:"thumbnailUrl"`
	ContentURL     string `json:"contentUrl"`
	ContentSize    string `json:"contentSize"`
	EncodingFormat string `json:"encodingFormat"`
	Width          int    `json:"width"`
	Height         int    `json:"height"`
	Text           string `json:"text"`
	DisplayText    string `json:"displayText"`
	WebSearchURL   string `json:"webSearchUrl"`
}

// Search implements vision.VisualSearcher.
func (c *BingClient) Search(ctx context.Context, jpeg []byte) ([]vision.VisualSearchResult, error) {
	if len(jpeg) == 0 {
		return nil, errors.New("empty image")
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("image", "image.jpg")
	if err != nil {
		return nil, fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := part.Write(jpeg); err != nil {
		return nil, fmt.Errorf("failed to write image: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}

	u, err := url.Parse(c.cfg.Endpoint)
	if err != nil {
		return nil, fmt.Errorf("invalid endpoint: %w", err)
	}
	q := u.Query()
	q.Set("mkt", c.cfg.Market)
	q.Set("safesearch", c.cfg.SafeSearch)
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.String(), &body)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Ocp-Apim-Subscription-Key", c.cfg.APIKey)
	req.Header.Set("User-Agent", version.UserAgent())

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("visual search request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("visual search returned %d: %s", resp.StatusCode, bytes.TrimSpace(msg))
	}

	var parsed bingResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("failed to decode visual search response: %w", err)
	}

	results := parseActions(parsed)
	slog.Debug("Visual search completed", "results", len(results), "bytes", len(jpeg))
	return results, nil
}

// parseActions flattens the tag actions into results. Only page, visual and
// related-search actions are kept.
func parseActions(resp bingResponse) []vision.VisualSearchResult {
	var results []vision.VisualSearchResult
	for _, tag := range resp.Tags {
		for _, action := range tag.Actions {
			switch action.ActionType {
			case ActionPagesIncluding, ActionVisualSearch:
				for _, v := range action.Data.Value {
					results = append(results, vision.VisualSearchResult{
						Type:           vision.ResultImageSearch,
						ActionType:     action.ActionType,
						Title:          v.Name,
						URL:            v.HostPageURL,
						Snippet:        v.Name,
						ThumbnailURL:   v.ThumbnailURL,
						ContentURL:     v.ContentURL,
						ContentSize:    v.ContentSize,
						EncodingFormat: v.EncodingFormat,
						Width:          v.Width,
						Height:         v.Height,
					})
				}
			case ActionRelatedSearches:
				for _, v := range action.Data.Value {
					title := v.DisplayText
					if title == "" {
						title = v.Text
					}
					results = append(results, vision.VisualSearchResult{
						Type:         vision.ResultImageSearch,
						ActionType:   action.ActionType,
						Title:        title,
						URL:          v.WebSearchURL,
						Snippet:      "Related search",
						ThumbnailURL: v.ThumbnailURL,
					})
				}
			}
		}
	}
	return results
}

var _ vision.VisualSearcher = (*BingClient)(nil)

package server

import (
	"context"
	"errors"
	"image"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/MeKo-Tech/litelens/internal/overlay"
	"github.com/MeKo-Tech/litelens/internal/pipeline"
	"github.com/MeKo-Tech/litelens/internal/state"
	"github.com/MeKo-Tech/litelens/internal/store"
	"github.com/MeKo-Tech/litelens/internal/vision"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// frameAnalyzer is the part of the pipeline the server drives.
type frameAnalyzer interface {
	Analyze(frame vision.Frame) string
	Store() *state.Store
	SetMode(m vision.Mode) uint64
	SetViewport(w, h int)
	Viewport() pipeline.Viewport
}

// searchStore persists saved searches.
type searchStore interface {
	Save(ctx context.Context, img image.Image, result vision.VisualSearchResult) (store.SavedSearch, error)
	List(ctx context.Context) ([]store.SavedSearch, error)
	Get(ctx context.Context, id string) (store.SavedSearch, error)
	Image(ctx context.Context, id string) ([]byte, error)
	Delete(ctx context.Context, id string) error
}

// Server exposes the analyzer over HTTP and websocket.
type Server struct {
	analyzer    frameAnalyzer
	searches    searchStore
	renderer    *overlay.Renderer
	rateLimiter *RateLimiter
	corsOrigin  string
	maxFrameMB  int64
	frameSeq    atomic.Uint64
}

// RateLimitConfig limits frame uploads per client.
type RateLimitConfig struct {
	Enabled           bool
	RequestsPerMinute int
	RequestsPerHour   int
	MaxRequestsPerDay int
	MaxDataPerDay     int64
}

// Config holds server configuration.
type Config struct {
	Host            string
	Port            int
	CORSOrigin      string
	MaxFrameMB      int64
	ShutdownTimeout time.Duration
	RateLimit       RateLimitConfig
}

// DefaultConfig returns the server defaults.
func DefaultConfig() Config {
	return Config{
		Host:            "localhost",
		Port:            8080,
		CORSOrigin:      "*",
		MaxFrameMB:      8,
		ShutdownTimeout: 10 * time.Second,
	}
}

// HealthResponse is returned by /health.
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version,omitempty"`
	Time    string `json:"time"`
}

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

// FrameResponse reports what the analyzer did with an uploaded frame.
type FrameResponse struct {
	Seq     uint64 `json:"seq"`
	Outcome string `json:"outcome"`
}

// ModeRequest switches the analysis mode.
type ModeRequest struct {
	Mode string `json:"mode"`
}

// ModeResponse echoes the active mode and its generation.
type ModeResponse struct {
	Mode       vision.Mode `json:"mode"`
	Generation uint64      `json:"generation"`
}

// ViewportRequest sets the on-screen viewport used for cropping.
type ViewportRequest struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// SaveSearchRequest picks the result to save. Translation selects the text
// mode translation; otherwise Index picks from the search results.
type SaveSearchRequest struct {
	Index       int  `json:"index"`
	Translation bool `json:"translation"`
}

// SavedSearchesResponse lists saved searches.
type SavedSearchesResponse struct {
	Searches []store.SavedSearch `json:"searches"`
	Count    int                 `json:"count"`
}

// NewServer wires a server around an analyzer. searches may be nil, which
// disables the saved search endpoints.
func NewServer(cfg Config, analyzer frameAnalyzer, searches searchStore) (*Server, error) {
	if analyzer == nil {
		return nil, errors.New("analyzer is required")
	}
	s := &Server{
		analyzer:   analyzer,
		searches:   searches,
		renderer:   overlay.NewRenderer(),
		corsOrigin: cfg.CORSOrigin,
		maxFrameMB: cfg.MaxFrameMB,
	}
	if s.maxFrameMB <= 0 {
		s.maxFrameMB = DefaultConfig().MaxFrameMB
	}
	if rl := cfg.RateLimit; rl.Enabled {
		s.rateLimiter = NewRateLimiter(rl.RequestsPerMinute, rl.RequestsPerHour, rl.MaxRequestsPerDay, rl.MaxDataPerDay)
	}
	return s, nil
}

// Handler returns the HTTP handler serving every route.
func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()
	s.SetupRoutes(r)
	return s.corsMiddleware(r)
}

// SetupRoutes configures the HTTP routes.
func (s *Server) SetupRoutes(r *mux.Router) {
	r.Use(s.metricsMiddleware)

	r.HandleFunc("/health", s.healthHandler).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	r.HandleFunc("/state", s.stateHandler).Methods(http.MethodGet)
	r.HandleFunc("/mode", s.modeHandler).Methods(http.MethodPost)
	r.HandleFunc("/viewport", s.viewportHandler).Methods(http.MethodPut)
	r.HandleFunc("/sheet/dismiss", s.dismissHandler).Methods(http.MethodPost)
	r.Handle("/frames", s.rateLimitMiddleware(http.HandlerFunc(s.frameHandler))).Methods(http.MethodPost)
	r.HandleFunc("/ws/camera", s.cameraWebSocketHandler).Methods(http.MethodGet)

	r.HandleFunc("/searches", s.listSearchesHandler).Methods(http.MethodGet)
	r.HandleFunc("/searches", s.saveSearchHandler).Methods(http.MethodPost)
	r.HandleFunc("/searches/{id}", s.getSearchHandler).Methods(http.MethodGet)
	r.HandleFunc("/searches/{id}", s.deleteSearchHandler).Methods(http.MethodDelete)
	r.HandleFunc("/searches/{id}/image", s.searchImageHandler).Methods(http.MethodGet)
}

func (s *Server) nextSeq() uint64 { return s.frameSeq.Add(1) }

package config

import (
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/MeKo-Tech/litelens/internal/detector"
	"github.com/MeKo-Tech/litelens/internal/enhance"
	"github.com/MeKo-Tech/litelens/internal/geometry"
	"github.com/MeKo-Tech/litelens/internal/onnx"
	"github.com/MeKo-Tech/litelens/internal/pipeline"
	"github.com/MeKo-Tech/litelens/internal/recognizer"
	"github.com/MeKo-Tech/litelens/internal/server"
	"github.com/MeKo-Tech/litelens/internal/store"
	"github.com/MeKo-Tech/litelens/internal/translate"
	"github.com/MeKo-Tech/litelens/internal/vision"
	"github.com/MeKo-Tech/litelens/internal/visualsearch"
)

// Detector backends.
const (
	BackendONNX = "onnx"
	BackendNone = "none"
)

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() Config {
	p := pipeline.DefaultConfig()
	rec := recognizer.DefaultConfig()
	tr := translate.DefaultConfig()
	vs := visualsearch.DefaultConfig()
	st := store.DefaultConfig()
	srv := server.DefaultConfig()

	return Config{
		LogLevel: "info",
		Verbose:  false,
		Mode:     "object",
		Viewport: ViewportConfig{Width: p.Viewport.Width, Height: p.Viewport.Height},
		Object: ObjectConfig{
			ConfidenceThreshold: p.Object.ConfidenceThreshold,
			MaxResults:          p.Object.MaxResults,
			FrameInterval:       p.Object.FrameInterval,
			BoxWidth:            p.Object.Crop.BoxWidth,
			BoxHeight:           p.Object.Crop.BoxHeight,
			Padding:             p.Object.Crop.Padding,
			FlipWhenUpright:     p.Object.Crop.FlipWhenUpright,
			Contrast:            p.Object.Enhance.Contrast,
			Brightness:          p.Object.Enhance.Brightness,
			Sharpness:           p.Object.Enhance.Sharpness,
			InputSize:           p.Object.Enhance.InputSize,
		},
		Text: TextConfig{
			FrameInterval:        p.Text.FrameInterval,
			BoxWidth:             p.Text.Crop.BoxWidth,
			BoxHeight:            p.Text.Crop.BoxHeight,
			Padding:              p.Text.Crop.Padding,
			FlipWhenUpright:      p.Text.Crop.FlipWhenUpright,
			Gain:                 p.Text.Enhance.Gain,
			Offset:               p.Text.Enhance.Offset,
			TargetLanguage:       p.Text.TargetLanguage,
			UndeterminedFallback: p.Text.UndeterminedFallback,
		},
		Detector: DetectorConfig{
			Backend:     BackendONNX,
			ModelPath:   "models/ssd_mobilenet_v1.onnx",
			LabelsPath:  "models/coco_labels.txt",
			NumThreads:  0,
			LabelOffset: detector.DefaultConfig().LabelOffset,
			GPU:         GPUConfig{Enabled: false, Device: 0, MemoryLimit: "auto"},
		},
		Recognizer: RecognizerConfig{
			Endpoint:   rec.Endpoint,
			Language:   rec.Language,
			TimeoutSec: int(rec.Timeout / time.Second),
		},
		Translate: TranslateConfig{
			Endpoint:   tr.Endpoint,
			TimeoutSec: int(tr.Timeout / time.Second),
		},
		Search: SearchConfig{
			Endpoint:   vs.Endpoint,
			Market:     vs.Market,
			SafeSearch: vs.SafeSearch,
			TimeoutSec: int(vs.Timeout / time.Second),
		},
		Storage: StorageConfig{
			Driver:  st.Driver,
			DSN:     st.DSN,
			BlobDir: st.BlobDir,
		},
		Server: ServerConfig{
			Host:              srv.Host,
			Port:              srv.Port,
			CORSOrigin:        srv.CORSOrigin,
			MaxFrameMB:        int(srv.MaxFrameMB),
			ShutdownTimeout:   int(srv.ShutdownTimeout / time.Second),
			RateLimitEnabled:  false,
			RequestsPerMinute: 600,
			RequestsPerHour:   20000,
			MaxRequestsPerDay: 200000,
			MaxDataPerDay:     2 * 1024 * 1024 * 1024,
		},
		State: StateConfig{AutoPresent: true},
	}
}

// Validate validates the configuration and returns the first problem found.
func (c *Config) Validate() error {
	validLogLevels := []string{"debug", "info", "warn", "error"}
	if !slices.Contains(validLogLevels, c.LogLevel) {
		return fmt.Errorf("invalid log level: %s (must be one of: %s)", c.LogLevel, strings.Join(validLogLevels, ", "))
	}
	if _, ok := vision.ParseMode(c.Mode); !ok {
		return fmt.Errorf("invalid mode: %s (must be object or text)", c.Mode)
	}
	if c.Viewport.Width <= 0 || c.Viewport.Height <= 0 {
		return fmt.Errorf("invalid viewport: %dx%d (must be positive)", c.Viewport.Width, c.Viewport.Height)
	}

	if err := validateThreshold(c.Object.ConfidenceThreshold, "object.confidence_threshold"); err != nil {
		return err
	}
	if c.Object.MaxResults <= 0 {
		return fmt.Errorf("invalid object.max_results: %d (must be positive)", c.Object.MaxResults)
	}
	if c.Object.InputSize <= 0 {
		return fmt.Errorf("invalid object.input_size: %d (must be positive)", c.Object.InputSize)
	}
	for _, iv := range []struct {
		name  string
		value int
	}{{"object.frame_interval", c.Object.FrameInterval}, {"text.frame_interval", c.Text.FrameInterval}} {
		if iv.value <= 0 {
			return fmt.Errorf("invalid %s: %d (must be positive)", iv.name, iv.value)
		}
	}
	if err := validateBox("object", c.Object.BoxWidth, c.Object.BoxHeight, c.Object.Padding); err != nil {
		return err
	}
	if err := validateBox("text", c.Text.BoxWidth, c.Text.BoxHeight, c.Text.Padding); err != nil {
		return err
	}

	if _, err := translate.ResolveLanguage(c.Text.TargetLanguage); err != nil {
		return fmt.Errorf("invalid text.target_language: %w", err)
	}
	if c.Text.UndeterminedFallback != "" {
		if _, err := translate.ResolveLanguage(c.Text.UndeterminedFallback); err != nil {
			return fmt.Errorf("invalid text.undetermined_fallback: %w", err)
		}
	}

	validBackends := []string{BackendONNX, BackendNone}
	if !slices.Contains(validBackends, c.Detector.Backend) {
		return fmt.Errorf("invalid detector backend: %s (must be one of: %s)", c.Detector.Backend, strings.Join(validBackends, ", "))
	}
	if c.Detector.GPU.Enabled && c.Detector.GPU.Device < 0 {
		return fmt.Errorf("invalid GPU device: %d (must be non-negative)", c.Detector.GPU.Device)
	}
	if _, err := parseMemoryLimit(c.Detector.GPU.MemoryLimit); err != nil {
		return fmt.Errorf("invalid GPU memory limit: %w", err)
	}

	if c.Recognizer.Endpoint == "" {
		return fmt.Errorf("recognizer.endpoint cannot be empty")
	}
	if c.Translate.Endpoint == "" {
		return fmt.Errorf("translate.endpoint cannot be empty")
	}

	validDrivers := []string{store.DriverSQLite, store.DriverPostgres}
	if !slices.Contains(validDrivers, c.Storage.Driver) {
		return fmt.Errorf("invalid storage driver: %s (must be one of: %s)", c.Storage.Driver, strings.Join(validDrivers, ", "))
	}
	if c.Storage.Driver == store.DriverPostgres && c.Storage.DSN == "" {
		return fmt.Errorf("storage.dsn is required for postgres")
	}

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d (must be between 1 and 65535)", c.Server.Port)
	}
	if c.Server.MaxFrameMB <= 0 {
		return fmt.Errorf("invalid max frame size: %d (must be positive)", c.Server.MaxFrameMB)
	}
	if c.Server.ShutdownTimeout <= 0 {
		return fmt.Errorf("invalid shutdown timeout: %d (must be positive)", c.Server.ShutdownTimeout)
	}
	return nil
}

// StartMode returns the configured initial analysis mode.
func (c *Config) StartMode() vision.Mode {
	if m, ok := vision.ParseMode(c.Mode); ok {
		return m
	}
	return vision.ModeObject
}

// ToPipelineConfig converts the config to the pipeline configuration.
func (c *Config) ToPipelineConfig() pipeline.Config {
	return pipeline.Config{
		Viewport: pipeline.Viewport{Width: c.Viewport.Width, Height: c.Viewport.Height},
		Object: pipeline.ObjectConfig{
			ConfidenceThreshold: c.Object.ConfidenceThreshold,
			MaxResults:          c.Object.MaxResults,
			FrameInterval:       c.Object.FrameInterval,
			Crop: geometry.Config{
				BoxWidth:        c.Object.BoxWidth,
				BoxHeight:       c.Object.BoxHeight,
				Padding:         c.Object.Padding,
				FlipWhenUpright: c.Object.FlipWhenUpright,
			},
			Enhance: enhance.Config{
				Contrast:   c.Object.Contrast,
				Brightness: c.Object.Brightness,
				Sharpness:  c.Object.Sharpness,
				InputSize:  c.Object.InputSize,
			},
		},
		Text: pipeline.TextConfig{
			FrameInterval: c.Text.FrameInterval,
			Crop: geometry.Config{
				BoxWidth:        c.Text.BoxWidth,
				BoxHeight:       c.Text.BoxHeight,
				Padding:         c.Text.Padding,
				FlipWhenUpright: c.Text.FlipWhenUpright,
			},
			Enhance:              enhance.TextConfig{Gain: c.Text.Gain, Offset: c.Text.Offset},
			TargetLanguage:       c.Text.TargetLanguage,
			UndeterminedFallback: c.Text.UndeterminedFallback,
		},
	}
}

// ToDetectorConfig converts to detector.Config. The detector is asked for
// the same number of objects the pipeline keeps.
func (c *Config) ToDetectorConfig() detector.Config {
	cfg := detector.DefaultConfig()
	cfg.ModelPath = c.Detector.ModelPath
	cfg.LabelsPath = c.Detector.LabelsPath
	cfg.NumThreads = c.Detector.NumThreads
	cfg.LabelOffset = c.Detector.LabelOffset
	cfg.MaxResults = c.Object.MaxResults
	limit, _ := parseMemoryLimit(c.Detector.GPU.MemoryLimit)
	cfg.GPU = onnx.GPUConfig{
		UseGPU:      c.Detector.GPU.Enabled,
		DeviceID:    c.Detector.GPU.Device,
		GPUMemLimit: limit,
	}
	return cfg
}

// ToRecognizerConfig converts to recognizer.Config.
func (c *Config) ToRecognizerConfig() recognizer.Config {
	return recognizer.Config{
		Endpoint: c.Recognizer.Endpoint,
		Language: c.Recognizer.Language,
		Timeout:  seconds(c.Recognizer.TimeoutSec),
	}
}

// ToTranslateConfig converts to translate.Config.
func (c *Config) ToTranslateConfig() translate.Config {
	return translate.Config{
		Endpoint: c.Translate.Endpoint,
		APIKey:   c.Translate.APIKey,
		Timeout:  seconds(c.Translate.TimeoutSec),
	}
}

// ToSearchConfig converts to visualsearch.Config.
func (c *Config) ToSearchConfig() visualsearch.Config {
	return visualsearch.Config{
		Endpoint:   c.Search.Endpoint,
		APIKey:     c.Search.APIKey,
		Market:     c.Search.Market,
		SafeSearch: c.Search.SafeSearch,
		Timeout:    seconds(c.Search.TimeoutSec),
	}
}

// SearchEnabled reports whether visual search has credentials.
func (c *Config) SearchEnabled() bool {
	return c.Search.APIKey != ""
}

// ToStoreConfig converts to store.Config.
func (c *Config) ToStoreConfig() store.Config {
	return store.Config{
		Driver:  c.Storage.Driver,
		DSN:     c.Storage.DSN,
		BlobDir: c.Storage.BlobDir,
		Debug:   c.Verbose || c.LogLevel == "debug",
	}
}

// ToServerConfig converts to server.Config.
func (c *Config) ToServerConfig() server.Config {
	return server.Config{
		Host:            c.Server.Host,
		Port:            c.Server.Port,
		CORSOrigin:      c.Server.CORSOrigin,
		MaxFrameMB:      int64(c.Server.MaxFrameMB),
		ShutdownTimeout: seconds(c.Server.ShutdownTimeout),
		RateLimit: server.RateLimitConfig{
			Enabled:           c.Server.RateLimitEnabled,
			RequestsPerMinute: c.Server.RequestsPerMinute,
			RequestsPerHour:   c.Server.RequestsPerHour,
			MaxRequestsPerDay: c.Server.MaxRequestsPerDay,
			MaxDataPerDay:     c.Server.MaxDataPerDay,
		},
	}
}

// Helper functions

func seconds(n int) time.Duration { return time.Duration(n) * time.Second }

// validateThreshold validates that a value is between 0.0 and 1.0.
func validateThreshold(value float64, name string) error {
	if value < 0.0 || value > 1.0 {
		return fmt.Errorf("invalid %s: %.2f (must be between 0.0 and 1.0)", name, value)
	}
	return nil
}

func validateBox(mode string, w, h, padding float64) error {
	if w <= 0 || w > 1 || h <= 0 || h > 1 {
		return fmt.Errorf("invalid %s box: %.2fx%.2f (fractions must be in (0, 1])", mode, w, h)
	}
	if padding < 0 {
		return fmt.Errorf("invalid %s.padding: %.2f (must not be negative)", mode, padding)
	}
	return nil
}

// parseMemoryLimit parses GPU memory limits such as "512MB" or "1.5GB".
// "" and "auto" mean unlimited and return 0.
func parseMemoryLimit(limit string) (uint64, error) {
	if limit == "" || strings.EqualFold(limit, "auto") {
		return 0, nil
	}
	units := []struct {
		suffix string
		mult   float64
	}{{"GB", 1 << 30}, {"MB", 1 << 20}, {"KB", 1 << 10}, {"B", 1}}

	upper := strings.ToUpper(strings.TrimSpace(limit))
	for _, u := range units {
		num, ok := strings.CutSuffix(upper, u.suffix)
		if !ok {
			continue
		}
		v, err := strconv.ParseFloat(strings.TrimSpace(num), 64)
		if err != nil || v < 0 {
			return 0, fmt.Errorf("invalid number in memory limit: %s", limit)
		}
		return uint64(v * u.mult), nil
	}
	return 0, fmt.Errorf("memory limit must end with one of: GB, MB, KB, B")
}

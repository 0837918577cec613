package config

import (
	"strings"
	"testing"
	"time"

	"github.com/MeKo-Tech/litelens/internal/pipeline"
	"github.com/MeKo-Tech/litelens/internal/store"
	"github.com/MeKo-Tech/litelens/internal/vision"
	"github.com/MeKo-Tech/litelens/internal/visualsearch"
)

const infoLevel = "info"

// TestDefaultConfig verifies that DefaultConfig returns expected values.
func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.LogLevel != infoLevel {
		t.Errorf("Expected log_level '%s', got %s", infoLevel, cfg.LogLevel)
	}
	if cfg.Verbose {
		t.Error("Expected verbose to be false")
	}
	if cfg.Mode != "object" {
		t.Errorf("Expected mode 'object', got %s", cfg.Mode)
	}
	if cfg.Viewport.Width != 1080 || cfg.Viewport.Height != 1920 {
		t.Errorf("Expected viewport 1080x1920, got %dx%d", cfg.Viewport.Width, cfg.Viewport.Height)
	}

	// Object mode
	if cfg.Object.ConfidenceThreshold != 0.5 {
		t.Errorf("Expected confidence_threshold 0.5, got %f", cfg.Object.ConfidenceThreshold)
	}
	if cfg.Object.MaxResults != 1 {
		t.Errorf("Expected max_results 1, got %d", cfg.Object.MaxResults)
	}
	if cfg.Object.FrameInterval != 15 {
		t.Errorf("Expected frame_interval 15, got %d", cfg.Object.FrameInterval)
	}
	if cfg.Object.BoxWidth != 0.8 || cfg.Object.BoxHeight != 0.5 {
		t.Errorf("Expected object box 0.8x0.5, got %.2fx%.2f", cfg.Object.BoxWidth, cfg.Object.BoxHeight)
	}
	if cfg.Object.InputSize != 300 {
		t.Errorf("Expected input_size 300, got %d", cfg.Object.InputSize)
	}

	// Text mode
	if cfg.Text.BoxWidth != 0.8 || cfg.Text.BoxHeight != 0.2 {
		t.Errorf("Expected text box 0.8x0.2, got %.2fx%.2f", cfg.Text.BoxWidth, cfg.Text.BoxHeight)
	}
	if !cfg.Text.FlipWhenUpright {
		t.Error("Expected text flip_when_upright to be true")
	}
	if cfg.Text.TargetLanguage != "en" {
		t.Errorf("Expected target_language 'en', got %s", cfg.Text.TargetLanguage)
	}
	if cfg.Text.UndeterminedFallback != "" {
		t.Errorf("Expected empty undetermined_fallback, got %s", cfg.Text.UndeterminedFallback)
	}

	// Backends
	if cfg.Detector.Backend != BackendONNX {
		t.Errorf("Expected detector backend onnx, got %s", cfg.Detector.Backend)
	}
	if cfg.Detector.GPU.MemoryLimit != "auto" {
		t.Errorf("Expected GPU memory limit 'auto', got %s", cfg.Detector.GPU.MemoryLimit)
	}
	if cfg.Search.Endpoint != visualsearch.DefaultEndpoint {
		t.Errorf("Expected search endpoint %s, got %s", visualsearch.DefaultEndpoint, cfg.Search.Endpoint)
	}
	if cfg.Search.APIKey != "" {
		t.Error("Expected visual search to be disabled by default")
	}
	if cfg.Storage.Driver != store.DriverSQLite {
		t.Errorf("Expected storage driver sqlite, got %s", cfg.Storage.Driver)
	}

	// Server
	if cfg.Server.Host != "localhost" {
		t.Errorf("Expected server host 'localhost', got %s", cfg.Server.Host)
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("Expected server port 8080, got %d", cfg.Server.Port)
	}
	if cfg.Server.MaxFrameMB != 8 {
		t.Errorf("Expected max_frame_mb 8, got %d", cfg.Server.MaxFrameMB)
	}

	if !cfg.State.AutoPresent {
		t.Error("Expected auto_present to be true")
	}

	if err := cfg.Validate(); err != nil {
		t.Errorf("DefaultConfig should validate, got %v", err)
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid default", func(*Config) {}, ""},
		{"invalid log level", func(c *Config) { c.LogLevel = "trace" }, "invalid log level"},
		{"invalid mode", func(c *Config) { c.Mode = "barcode" }, "invalid mode"},
		{"text mode", func(c *Config) { c.Mode = "text" }, ""},
		{"zero viewport", func(c *Config) { c.Viewport.Width = 0 }, "invalid viewport"},
		{"threshold too high", func(c *Config) { c.Object.ConfidenceThreshold = 1.5 }, "object.confidence_threshold"},
		{"threshold negative", func(c *Config) { c.Object.ConfidenceThreshold = -0.1 }, "object.confidence_threshold"},
		{"threshold at bounds", func(c *Config) { c.Object.ConfidenceThreshold = 1.0 }, ""},
		{"no results", func(c *Config) { c.Object.MaxResults = 0 }, "object.max_results"},
		{"zero input size", func(c *Config) { c.Object.InputSize = 0 }, "object.input_size"},
		{"zero object interval", func(c *Config) { c.Object.FrameInterval = 0 }, "object.frame_interval"},
		{"negative text interval", func(c *Config) { c.Text.FrameInterval = -1 }, "text.frame_interval"},
		{"box wider than frame", func(c *Config) { c.Object.BoxWidth = 1.2 }, "invalid object box"},
		{"empty text box", func(c *Config) { c.Text.BoxHeight = 0 }, "invalid text box"},
		{"negative padding", func(c *Config) { c.Text.Padding = -0.1 }, "text.padding"},
		{"unknown target language", func(c *Config) { c.Text.TargetLanguage = "not a language" }, "text.target_language"},
		{"language by name", func(c *Config) { c.Text.TargetLanguage = "German" }, ""},
		{"unknown fallback", func(c *Config) { c.Text.UndeterminedFallback = "??" }, "text.undetermined_fallback"},
		{"unknown backend", func(c *Config) { c.Detector.Backend = "tflite" }, "invalid detector backend"},
		{"no detector", func(c *Config) { c.Detector.Backend = BackendNone }, ""},
		{"negative GPU device", func(c *Config) {
			c.Detector.GPU.Enabled = true
			c.Detector.GPU.Device = -1
		}, "invalid GPU device"},
		{"bad memory limit", func(c *Config) { c.Detector.GPU.MemoryLimit = "lots" }, "invalid GPU memory limit"},
		{"memory limit in MB", func(c *Config) { c.Detector.GPU.MemoryLimit = "512MB" }, ""},
		{"empty recognizer endpoint", func(c *Config) { c.Recognizer.Endpoint = "" }, "recognizer.endpoint"},
		{"empty translate endpoint", func(c *Config) { c.Translate.Endpoint = "" }, "translate.endpoint"},
		{"unknown driver", func(c *Config) { c.Storage.Driver = "mysql" }, "invalid storage driver"},
		{"postgres without dsn", func(c *Config) {
			c.Storage.Driver = store.DriverPostgres
			c.Storage.DSN = ""
		}, "storage.dsn"},
		{"port too high", func(c *Config) { c.Server.Port = 70000 }, "invalid server port"},
		{"zero frame size", func(c *Config) { c.Server.MaxFrameMB = 0 }, "invalid max frame size"},
		{"zero shutdown timeout", func(c *Config) { c.Server.ShutdownTimeout = 0 }, "invalid shutdown timeout"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() unexpected error: %v", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("Validate() expected error containing %q", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %v, want substring %q", err, tt.wantErr)
			}
		})
	}
}

func TestParseMemoryLimit(t *testing.T) {
	tests := []struct {
		in      string
		want    uint64
		wantErr bool
	}{
		{"", 0, false},
		{"auto", 0, false},
		{"AUTO", 0, false},
		{"512MB", 512 << 20, false},
		{"1.5GB", 3 << 29, false},
		{"2gb", 2 << 30, false},
		{"64KB", 64 << 10, false},
		{"100B", 100, false},
		{" 8 MB ", 8 << 20, false},
		{"512", 0, true},
		{"MB", 0, true},
		{"-1MB", 0, true},
		{"lotsGB", 0, true},
	}
	for _, tt := range tests {
		got, err := parseMemoryLimit(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("parseMemoryLimit(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("parseMemoryLimit(%q) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestStartMode(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.StartMode() != vision.ModeObject {
		t.Errorf("Expected object mode, got %v", cfg.StartMode())
	}
	cfg.Mode = "text"
	if cfg.StartMode() != vision.ModeText {
		t.Errorf("Expected text mode, got %v", cfg.StartMode())
	}
	cfg.Mode = "bogus"
	if cfg.StartMode() != vision.ModeObject {
		t.Errorf("Expected fallback to object mode, got %v", cfg.StartMode())
	}
}

func TestToPipelineConfig(t *testing.T) {
	if got, want := func() pipeline.Config { c := DefaultConfig(); return c.ToPipelineConfig() }(), pipeline.DefaultConfig(); got != want {
		t.Errorf("default conversion mismatch:\n got %+v\nwant %+v", got, want)
	}

	cfg := DefaultConfig()
	cfg.Viewport = ViewportConfig{Width: 720, Height: 1280}
	cfg.Object.ConfidenceThreshold = 0.7
	cfg.Object.MaxResults = 3
	cfg.Object.Contrast = 2
	cfg.Text.FrameInterval = 5
	cfg.Text.FlipWhenUpright = false
	cfg.Text.Gain = 1.5
	cfg.Text.TargetLanguage = "de"
	cfg.Text.UndeterminedFallback = "fr"

	p := cfg.ToPipelineConfig()
	if p.Viewport != (pipeline.Viewport{Width: 720, Height: 1280}) {
		t.Errorf("viewport = %+v", p.Viewport)
	}
	if p.Object.ConfidenceThreshold != 0.7 || p.Object.MaxResults != 3 || p.Object.Enhance.Contrast != 2 {
		t.Errorf("object config not carried over: %+v", p.Object)
	}
	if p.Text.FrameInterval != 5 || p.Text.Crop.FlipWhenUpright || p.Text.Enhance.Gain != 1.5 {
		t.Errorf("text config not carried over: %+v", p.Text)
	}
	if p.Text.TargetLanguage != "de" || p.Text.UndeterminedFallback != "fr" {
		t.Errorf("languages not carried over: %+v", p.Text)
	}
}

func TestToDetectorConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Detector.ModelPath = "/m/ssd.onnx"
	cfg.Detector.LabelsPath = "/m/labels.txt"
	cfg.Detector.NumThreads = 4
	cfg.Detector.LabelOffset = -1
	cfg.Detector.GPU = GPUConfig{Enabled: true, Device: 1, MemoryLimit: "1GB"}
	cfg.Object.MaxResults = 5

	d := cfg.ToDetectorConfig()
	if d.ModelPath != "/m/ssd.onnx" || d.LabelsPath != "/m/labels.txt" {
		t.Errorf("paths not carried over: %+v", d)
	}
	if d.NumThreads != 4 || d.LabelOffset != -1 || d.MaxResults != 5 {
		t.Errorf("settings not carried over: %+v", d)
	}
	if !d.GPU.UseGPU || d.GPU.DeviceID != 1 || d.GPU.GPUMemLimit != 1<<30 {
		t.Errorf("GPU not carried over: %+v", d.GPU)
	}
	if d.BoxesOutput == "" {
		t.Error("expected detector output names from detector defaults")
	}
}

func TestBackendConversions(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Recognizer.TimeoutSec = 3
	cfg.Translate.APIKey = "tk"
	cfg.Search.APIKey = "sk"
	cfg.Search.TimeoutSec = 7
	cfg.Verbose = true

	if r := cfg.ToRecognizerConfig(); r.Timeout != 3*time.Second || r.Endpoint != cfg.Recognizer.Endpoint {
		t.Errorf("recognizer config = %+v", r)
	}
	if tr := cfg.ToTranslateConfig(); tr.APIKey != "tk" || tr.Timeout != 10*time.Second {
		t.Errorf("translate config = %+v", tr)
	}
	if s := cfg.ToSearchConfig(); s.APIKey != "sk" || s.Timeout != 7*time.Second || s.Market != "en-US" {
		t.Errorf("search config = %+v", s)
	}
	if !cfg.SearchEnabled() {
		t.Error("expected search to be enabled with an API key")
	}
	if st := cfg.ToStoreConfig(); !st.Debug || st.Driver != store.DriverSQLite {
		t.Errorf("store config = %+v", st)
	}

	srv := cfg.ToServerConfig()
	if srv.ShutdownTimeout != 10*time.Second || srv.MaxFrameMB != 8 {
		t.Errorf("server config = %+v", srv)
	}
	if srv.RateLimit.Enabled || srv.RateLimit.RequestsPerMinute != cfg.Server.RequestsPerMinute {
		t.Errorf("rate limit config = %+v", srv.RateLimit)
	}
}

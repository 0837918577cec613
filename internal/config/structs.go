//nolint:lll
package config

// Config represents the complete configuration for litelens. It covers every
// command (serve, analyze, searches) and is loaded from configuration files,
// environment variables and command-line flags.
type Config struct {
	// Global settings
	LogLevel string `mapstructure:"log_level" yaml:"log_level" json:"log_level"`
	Verbose  bool   `mapstructure:"verbose" yaml:"verbose" json:"verbose"`
	Mode     string `mapstructure:"mode" yaml:"mode" json:"mode"`

	Viewport ViewportConfig `mapstructure:"viewport" yaml:"viewport" json:"viewport"`

	// Per-mode frame processing
	Object ObjectConfig `mapstructure:"object" yaml:"object" json:"object"`
	Text   TextConfig   `mapstructure:"text" yaml:"text" json:"text"`

	// Backends
	Detector   DetectorConfig   `mapstructure:"detector" yaml:"detector" json:"detector"`
	Recognizer RecognizerConfig `mapstructure:"recognizer" yaml:"recognizer" json:"recognizer"`
	Translate  TranslateConfig  `mapstructure:"translate" yaml:"translate" json:"translate"`
	Search     SearchConfig     `mapstructure:"search" yaml:"search" json:"search"`
	Storage    StorageConfig    `mapstructure:"storage" yaml:"storage" json:"storage"`

	// Server configuration (for serve command)
	Server ServerConfig `mapstructure:"server" yaml:"server" json:"server"`

	State StateConfig `mapstructure:"state" yaml:"state" json:"state"`
}

// ViewportConfig is the on-screen preview size the crop boxes refer to.
type ViewportConfig struct {
	Width  int `mapstructure:"width" yaml:"width" json:"width"`
	Height int `mapstructure:"height" yaml:"height" json:"height"`
}

// ObjectConfig contains object mode settings.
type ObjectConfig struct {
	ConfidenceThreshold float64 `mapstructure:"confidence_threshold" yaml:"confidence_threshold" json:"confidence_threshold"`
	MaxResults          int     `mapstructure:"max_results" yaml:"max_results" json:"max_results"`
	FrameInterval       int     `mapstructure:"frame_interval" yaml:"frame_interval" json:"frame_interval"`

	// Crop box
	BoxWidth        float64 `mapstructure:"box_width" yaml:"box_width" json:"box_width"`
	BoxHeight       float64 `mapstructure:"box_height" yaml:"box_height" json:"box_height"`
	Padding         float64 `mapstructure:"padding" yaml:"padding" json:"padding"`
	FlipWhenUpright bool    `mapstructure:"flip_when_upright" yaml:"flip_when_upright" json:"flip_when_upright"`

	// Enhancement
	Contrast   float64 `mapstructure:"contrast" yaml:"contrast" json:"contrast"`
	Brightness float64 `mapstructure:"brightness" yaml:"brightness" json:"brightness"`
	Sharpness  float64 `mapstructure:"sharpness" yaml:"sharpness" json:"sharpness"`
	InputSize  int     `mapstructure:"input_size" yaml:"input_size" json:"input_size"`
}

// TextConfig contains text mode settings.
type TextConfig struct {
	FrameInterval int `mapstructure:"frame_interval" yaml:"frame_interval" json:"frame_interval"`

	// Crop box
	BoxWidth        float64 `mapstructure:"box_width" yaml:"box_width" json:"box_width"`
	BoxHeight       float64 `mapstructure:"box_height" yaml:"box_height" json:"box_height"`
	Padding         float64 `mapstructure:"padding" yaml:"padding" json:"padding"`
	FlipWhenUpright bool    `mapstructure:"flip_when_upright" yaml:"flip_when_upright" json:"flip_when_upright"`

	// Contrast matrix
	Gain   float64 `mapstructure:"gain" yaml:"gain" json:"gain"`
	Offset float64 `mapstructure:"offset" yaml:"offset" json:"offset"`

	TargetLanguage       string `mapstructure:"target_language" yaml:"target_language" json:"target_language"`
	UndeterminedFallback string `mapstructure:"undetermined_fallback" yaml:"undetermined_fallback" json:"undetermined_fallback"`
}

// DetectorConfig contains object detector settings.
type DetectorConfig struct {
	Backend     string    `mapstructure:"backend" yaml:"backend" json:"backend"`
	ModelPath   string    `mapstructure:"model_path" yaml:"model_path" json:"model_path"`
	LabelsPath  string    `mapstructure:"labels_path" yaml:"labels_path" json:"labels_path"`
	NumThreads  int       `mapstructure:"num_threads" yaml:"num_threads" json:"num_threads"`
	LabelOffset int       `mapstructure:"label_offset" yaml:"label_offset" json:"label_offset"`
	GPU         GPUConfig `mapstructure:"gpu" yaml:"gpu" json:"gpu"`
}

// GPUConfig contains GPU acceleration settings.
type GPUConfig struct {
	Enabled     bool   `mapstructure:"enabled" yaml:"enabled" json:"enabled"`
	Device      int    `mapstructure:"device" yaml:"device" json:"device"`
	MemoryLimit string `mapstructure:"memory_limit" yaml:"memory_limit" json:"memory_limit"`
}

// RecognizerConfig points at the remote OCR service.
type RecognizerConfig struct {
	Endpoint   string `mapstructure:"endpoint" yaml:"endpoint" json:"endpoint"`
	Language   string `mapstructure:"language" yaml:"language" json:"language"`
	TimeoutSec int    `mapstructure:"timeout_sec" yaml:"timeout_sec" json:"timeout_sec"`
}

// TranslateConfig points at the translation service.
type TranslateConfig struct {
	Endpoint   string `mapstructure:"endpoint" yaml:"endpoint" json:"endpoint"`
	APIKey     string `mapstructure:"api_key" yaml:"api_key" json:"api_key"`
	TimeoutSec int    `mapstructure:"timeout_sec" yaml:"timeout_sec" json:"timeout_sec"`
}

// SearchConfig configures visual search. An empty API key disables it.
type SearchConfig struct {
	Endpoint   string `mapstructure:"endpoint" yaml:"endpoint" json:"endpoint"`
	APIKey     string `mapstructure:"api_key" yaml:"api_key" json:"api_key"`
	Market     string `mapstructure:"market" yaml:"market" json:"market"`
	SafeSearch string `mapstructure:"safe_search" yaml:"safe_search" json:"safe_search"`
	TimeoutSec int    `mapstructure:"timeout_sec" yaml:"timeout_sec" json:"timeout_sec"`
}

// StorageConfig configures the saved search store.
type StorageConfig struct {
	Driver  string `mapstructure:"driver" yaml:"driver" json:"driver"`
	DSN     string `mapstructure:"dsn" yaml:"dsn" json:"dsn"`
	BlobDir string `mapstructure:"blob_dir" yaml:"blob_dir" json:"blob_dir"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Host            string `mapstructure:"host" yaml:"host" json:"host"`
	Port            int    `mapstructure:"port" yaml:"port" json:"port"`
	CORSOrigin      string `mapstructure:"cors_origin" yaml:"cors_origin" json:"cors_origin"`
	MaxFrameMB      int    `mapstructure:"max_frame_mb" yaml:"max_frame_mb" json:"max_frame_mb"`
	ShutdownTimeout int    `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout" json:"shutdown_timeout"`

	// Rate limiting of frame uploads
	RateLimitEnabled  bool  `mapstructure:"rate_limit_enabled" yaml:"rate_limit_enabled" json:"rate_limit_enabled"`
	RequestsPerMinute int   `mapstructure:"requests_per_minute" yaml:"requests_per_minute" json:"requests_per_minute"`
	RequestsPerHour   int   `mapstructure:"requests_per_hour" yaml:"requests_per_hour" json:"requests_per_hour"`
	MaxRequestsPerDay int   `mapstructure:"max_requests_per_day" yaml:"max_requests_per_day" json:"max_requests_per_day"`
	MaxDataPerDay     int64 `mapstructure:"max_data_per_day" yaml:"max_data_per_day" json:"max_data_per_day"`
}

// StateConfig contains result state settings.
type StateConfig struct {
	AutoPresent bool `mapstructure:"auto_present" yaml:"auto_present" json:"auto_present"`
}

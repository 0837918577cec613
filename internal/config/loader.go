package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"
	"github.com/spf13/viper"
)

const (
	// ConfigFileName is the base name for configuration files (without extension).
	ConfigFileName = "litelens"

	// EnvPrefix is the prefix for environment variables.
	EnvPrefix = "LITELENS"
)

// Loader handles loading configuration from various sources.
type Loader struct {
	v  *viper.Viper
	fs afero.Fs
}

// NewLoader creates a loader on the global viper instance so flag bindings
// made by the CLI are honoured.
func NewLoader() *Loader {
	return &Loader{v: viper.GetViper(), fs: afero.NewOsFs()}
}

// NewLoaderWithFs creates a loader with its own viper instance that reads
// configuration files from fs.
func NewLoaderWithFs(fs afero.Fs) *Loader {
	v := viper.New()
	v.SetFs(fs)
	return &Loader{v: v, fs: fs}
}

// Load loads configuration from files, environment variables and defaults
// and validates the result.
func (l *Loader) Load() (*Config, error) {
	return l.load("", true)
}

// LoadWithoutValidation loads configuration like Load but skips validation.
func (l *Loader) LoadWithoutValidation() (*Config, error) {
	return l.load("", false)
}

// LoadWithFile loads configuration from a specific file path. An empty path
// falls back to the search paths.
func (l *Loader) LoadWithFile(configFile string) (*Config, error) {
	return l.load(configFile, true)
}

// LoadWithFileWithoutValidation loads a specific file without validation.
func (l *Loader) LoadWithFileWithoutValidation(configFile string) (*Config, error) {
	return l.load(configFile, false)
}

func (l *Loader) load(configFile string, validate bool) (*Config, error) {
	if configFile != "" {
		if _, err := l.fs.Stat(configFile); errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("config file does not exist: %s", configFile)
		}
		l.v.SetConfigFile(configFile)
	} else {
		l.v.SetConfigName(ConfigFileName)
		l.v.SetConfigType("yaml")
		l.addConfigPaths()
	}

	l.setupEnvironmentVariables()
	l.setDefaults()

	if err := l.v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// No config file: defaults and env vars apply.
	}

	var config Config
	if err := l.v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if validate {
		if err := config.Validate(); err != nil {
			return nil, fmt.Errorf("configuration validation failed: %w", err)
		}
	}
	return &config, nil
}

// Get returns a value from the configuration.
func (l *Loader) Get(key string) any {
	return l.v.Get(key)
}

// GetString returns a string value from the configuration.
func (l *Loader) GetString(key string) string {
	return l.v.GetString(key)
}

// Set sets a value in the configuration.
func (l *Loader) Set(key string, value any) {
	l.v.Set(key, value)
}

// GetConfigFileUsed returns the path of the config file used.
func (l *Loader) GetConfigFileUsed() string {
	return l.v.ConfigFileUsed()
}

// GetViper returns the underlying viper instance.
func (l *Loader) GetViper() *viper.Viper {
	return l.v
}

func (l *Loader) addConfigPaths() {
	for _, p := range GetConfigSearchPaths() {
		l.v.AddConfigPath(p)
	}
}

func (l *Loader) setupEnvironmentVariables() {
	l.v.SetEnvPrefix(EnvPrefix)
	l.v.AutomaticEnv()
	// server.port -> LITELENS_SERVER_PORT
	l.v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
}

// setDefaults registers every key. AutomaticEnv only resolves keys viper
// already knows about, so each leaf needs a default.
func (l *Loader) setDefaults() {
	d := DefaultConfig()

	l.v.SetDefault("log_level", d.LogLevel)
	l.v.SetDefault("verbose", d.Verbose)
	l.v.SetDefault("mode", d.Mode)

	l.v.SetDefault("viewport.width", d.Viewport.Width)
	l.v.SetDefault("viewport.height", d.Viewport.Height)

	l.v.SetDefault("object.confidence_threshold", d.Object.ConfidenceThreshold)
	l.v.SetDefault("object.max_results", d.Object.MaxResults)
	l.v.SetDefault("object.frame_interval", d.Object.FrameInterval)
	l.v.SetDefault("object.box_width", d.Object.BoxWidth)
	l.v.SetDefault("object.box_height", d.Object.BoxHeight)
	l.v.SetDefault("object.padding", d.Object.Padding)
	l.v.SetDefault("object.flip_when_upright", d.Object.FlipWhenUpright)
	l.v.SetDefault("object.contrast", d.Object.Contrast)
	l.v.SetDefault("object.brightness", d.Object.Brightness)
	l.v.SetDefault("object.sharpness", d.Object.Sharpness)
	l.v.SetDefault("object.input_size", d.Object.InputSize)

	l.v.SetDefault("text.frame_interval", d.Text.FrameInterval)
	l.v.SetDefault("text.box_width", d.Text.BoxWidth)
	l.v.SetDefault("text.box_height", d.Text.BoxHeight)
	l.v.SetDefault("text.padding", d.Text.Padding)
	l.v.SetDefault("text.flip_when_upright", d.Text.FlipWhenUpright)
	l.v.SetDefault("text.gain", d.Text.Gain)
	l.v.SetDefault("text.offset", d.Text.Offset)
	l.v.SetDefault("text.target_language", d.Text.TargetLanguage)
	l.v.SetDefault("text.undetermined_fallback", d.Text.UndeterminedFallback)

	l.v.SetDefault("detector.backend", d.Detector.Backend)
	l.v.SetDefault("detector.model_path", d.Detector.ModelPath)
	l.v.SetDefault("detector.labels_path", d.Detector.LabelsPath)
	l.v.SetDefault("detector.num_threads", d.Detector.NumThreads)
	l.v.SetDefault("detector.label_offset", d.Detector.LabelOffset)
	l.v.SetDefault("detector.gpu.enabled", d.Detector.GPU.Enabled)
	l.v.SetDefault("detector.gpu.device", d.Detector.GPU.Device)
	l.v.SetDefault("detector.gpu.memory_limit", d.Detector.GPU.MemoryLimit)

	l.v.SetDefault("recognizer.endpoint", d.Recognizer.Endpoint)
	l.v.SetDefault("recognizer.language", d.Recognizer.Language)
	l.v.SetDefault("recognizer.timeout_sec", d.Recognizer.TimeoutSec)

	l.v.SetDefault("translate.endpoint", d.Translate.Endpoint)
	l.v.SetDefault("translate.api_key", d.Translate.APIKey)
	l.v.SetDefault("translate.timeout_sec", d.Translate.TimeoutSec)

	l.v.SetDefault("search.endpoint", d.Search.Endpoint)
	l.v.SetDefault("search.api_key", d.Search.APIKey)
	l.v.SetDefault("search.market", d.Search.Market)
	l.v.SetDefault("search.safe_search", d.Search.SafeSearch)
	l.v.SetDefault("search.timeout_sec", d.Search.TimeoutSec)

	l.v.SetDefault("storage.driver", d.Storage.Driver)
	l.v.SetDefault("storage.dsn", d.Storage.DSN)
	l.v.SetDefault("storage.blob_dir", d.Storage.BlobDir)

	l.v.SetDefault("server.host", d.Server.Host)
	l.v.SetDefault("server.port", d.Server.Port)
	l.v.SetDefault("server.cors_origin", d.Server.CORSOrigin)
	l.v.SetDefault("server.max_frame_mb", d.Server.MaxFrameMB)
	l.v.SetDefault("server.shutdown_timeout", d.Server.ShutdownTimeout)
	l.v.SetDefault("server.rate_limit_enabled", d.Server.RateLimitEnabled)
	l.v.SetDefault("server.requests_per_minute", d.Server.RequestsPerMinute)
	l.v.SetDefault("server.requests_per_hour", d.Server.RequestsPerHour)
	l.v.SetDefault("server.max_requests_per_day", d.Server.MaxRequestsPerDay)
	l.v.SetDefault("server.max_data_per_day", d.Server.MaxDataPerDay)

	l.v.SetDefault("state.auto_present", d.State.AutoPresent)
}

// GetResolvedConfig returns the current resolved configuration for debugging.
func (l *Loader) GetResolvedConfig() map[string]any {
	return l.v.AllSettings()
}

// WriteConfigToFile writes the current configuration to a file.
func (l *Loader) WriteConfigToFile(filename string) error {
	return l.v.WriteConfigAs(filename)
}

// GenerateDefaultConfigFile writes a configuration file holding every default.
func GenerateDefaultConfigFile(filename string) error {
	return generateDefaultConfigFile(NewLoaderWithFs(afero.NewOsFs()), filename)
}

func generateDefaultConfigFile(l *Loader, filename string) error {
	if filename == "" {
		filename = ConfigFileName + ".yaml"
	}
	if _, err := l.fs.Stat(filename); err == nil {
		return fmt.Errorf("config file already exists: %s", filename)
	}
	l.setDefaults()
	return l.WriteConfigToFile(filename)
}

// GetConfigSearchPaths returns the paths where configuration files are searched.
func GetConfigSearchPaths() []string {
	paths := []string{"."}

	home, homeErr := os.UserHomeDir()
	if homeErr == nil {
		paths = append(paths, home)
	}
	if configDir, ok := os.LookupEnv("XDG_CONFIG_HOME"); ok && configDir != "" {
		paths = append(paths, filepath.Join(configDir, "litelens"))
	} else if homeErr == nil {
		paths = append(paths, filepath.Join(home, ".config", "litelens"))
	}

	return append(paths, "/etc/litelens")
}

// PrintConfigInfo prints information about configuration loading for debugging.
func (l *Loader) PrintConfigInfo() {
	fmt.Printf("Configuration file used: %s\n", l.GetConfigFileUsed())
	fmt.Printf("Configuration search paths: %v\n", GetConfigSearchPaths())
	fmt.Printf("Environment prefix: %s\n", EnvPrefix)
}

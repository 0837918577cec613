package config

import (
	"encoding/json"
	"testing"

	"gopkg.in/yaml.v3"
)

// TestConfigYAMLKeys checks that hand-written files use the documented
// snake_case keys.
func TestConfigYAMLKeys(t *testing.T) {
	yamlData := `
mode: text
viewport:
  width: 640
  height: 480
object:
  confidence_threshold: 0.4
  flip_when_upright: true
text:
  undetermined_fallback: en
detector:
  labels_path: /yaml/labels.txt
  gpu:
    memory_limit: 256MB
server:
  max_frame_mb: 4
  max_data_per_day: 1048576
state:
  auto_present: true
`
	var cfg Config
	if err := yaml.Unmarshal([]byte(yamlData), &cfg); err != nil {
		t.Fatalf("yaml.Unmarshal() error: %v", err)
	}

	if cfg.Mode != "text" {
		t.Errorf("Expected mode text, got %s", cfg.Mode)
	}
	if cfg.Viewport.Width != 640 || cfg.Viewport.Height != 480 {
		t.Errorf("Expected viewport 640x480, got %+v", cfg.Viewport)
	}
	if cfg.Object.ConfidenceThreshold != 0.4 || !cfg.Object.FlipWhenUpright {
		t.Errorf("Object config not decoded: %+v", cfg.Object)
	}
	if cfg.Text.UndeterminedFallback != "en" {
		t.Errorf("Expected fallback en, got %s", cfg.Text.UndeterminedFallback)
	}
	if cfg.Detector.LabelsPath != "/yaml/labels.txt" || cfg.Detector.GPU.MemoryLimit != "256MB" {
		t.Errorf("Detector config not decoded: %+v", cfg.Detector)
	}
	if cfg.Server.MaxFrameMB != 4 || cfg.Server.MaxDataPerDay != 1048576 {
		t.Errorf("Server config not decoded: %+v", cfg.Server)
	}
	if !cfg.State.AutoPresent {
		t.Error("Expected auto_present true")
	}
}

func TestConfigJSONKeys(t *testing.T) {
	data, err := json.Marshal(DefaultConfig())
	if err != nil {
		t.Fatalf("json.Marshal() error: %v", err)
	}

	var raw map[string]map[string]any
	var top map[string]json.RawMessage
	if err := json.Unmarshal(data, &top); err != nil {
		t.Fatalf("json.Unmarshal() error: %v", err)
	}
	for _, key := range []string{"log_level", "mode", "viewport", "object", "text", "detector", "recognizer", "translate", "search", "storage", "server", "state"} {
		if _, ok := top[key]; !ok {
			t.Errorf("Expected top-level key %q", key)
		}
	}

	raw = make(map[string]map[string]any)
	for _, section := range []string{"object", "server"} {
		var m map[string]any
		if err := json.Unmarshal(top[section], &m); err != nil {
			t.Fatalf("section %s: %v", section, err)
		}
		raw[section] = m
	}
	if _, ok := raw["object"]["confidence_threshold"]; !ok {
		t.Error("Expected object.confidence_threshold key")
	}
	if _, ok := raw["server"]["rate_limit_enabled"]; !ok {
		t.Error("Expected server.rate_limit_enabled key")
	}
}

// Package detector runs SSD-style object detection models through ONNX
// Runtime.
package detector

import (
	"errors"
	"fmt"
	"os"

	"github.com/MeKo-Tech/litelens/internal/onnx"
)

// Config holds detector settings.
type Config struct {
	ModelPath  string
	LabelsPath string
	NumThreads int
	GPU        onnx.GPUConfig

	// MaxResults caps the number of objects returned per frame.
	MaxResults int
	// LabelOffset is added to raw class ids before the label lookup; SSD
	// exports that reserve class 0 for background use -1.
	LabelOffset int

	BoxesOutput   string
	ScoresOutput  string
	ClassesOutput string

	Normalization onnx.Normalization
}

// DefaultConfig returns defaults for a COCO SSD MobileNet export.
func DefaultConfig() Config {
	return Config{
		MaxResults:    1,
		BoxesOutput:   "detection_boxes",
		ScoresOutput:  "detection_scores",
		ClassesOutput: "detection_classes",
		Normalization: onnx.UnitRange,
	}
}

func validateConfig(cfg Config) error {
	if cfg.ModelPath == "" {
		return errors.New("model path cannot be empty")
	}
	if _, err := os.Stat(cfg.ModelPath); os.IsNotExist(err) {
		return fmt.Errorf("model file not found: %s", cfg.ModelPath)
	}
	if cfg.BoxesOutput == "" || cfg.ScoresOutput == "" || cfg.ClassesOutput == "" {
		return errors.New("output tensor names cannot be empty")
	}
	return onnx.ValidateGPUConfig(cfg.GPU)
}

// Package models locates the on-device model files.
package models

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// Model file names.
const (
	ObjectDetector = "ssd_mobilenet_v1.onnx"
	CocoLabels     = "coco_labels.txt"
)

// Model type categories for the organized directory layout.
const (
	TypeDetection = "detection"
	TypeLabels    = "labels"
)

// DefaultModelsDir is the models directory below the project root.
const DefaultModelsDir = "models"

// EnvModelsDir overrides the models directory.
const EnvModelsDir = "LITELENS_MODELS_DIR"

// findProjectRoot walks up from the working directory to the nearest go.mod.
func findProjectRoot() (string, error) {
	dir, err := os.Getwd()
	if err != nil {
		return "", err
	}
	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return "", errors.New("could not find project root (go.mod not found)")
}

// ModelInfo contains metadata about a model file.
type ModelInfo struct {
	Name        string
	Type        string
	Description string
	Filename    string
}

// GetModelsDir returns the models directory.
// Priority: 1. Explicit modelsDir, 2. Environment variable, 3. Project root + default.
func GetModelsDir(modelsDir string) string {
	if modelsDir != "" {
		return modelsDir
	}
	if envDir := os.Getenv(EnvModelsDir); envDir != "" {
		return envDir
	}
	if projectRoot, err := findProjectRoot(); err == nil {
		return filepath.Join(projectRoot, DefaultModelsDir)
	}
	return DefaultModelsDir
}

// ResolveModelPath returns modelsDir/modelType/filename when it exists and
// the flat modelsDir/filename otherwise.
func ResolveModelPath(modelsDir, modelType, filename string) string {
	baseDir := GetModelsDir(modelsDir)
	if modelType != "" {
		organized := filepath.Join(baseDir, modelType, filename)
		if _, err := os.Stat(organized); err == nil {
			return organized
		}
	}
	return filepath.Join(baseDir, filename)
}

// DetectorModelPath returns the path of the default object detection model.
func DetectorModelPath(modelsDir string) string {
	return ResolveModelPath(modelsDir, TypeDetection, ObjectDetector)
}

// LabelsPath returns the path of the default label file.
func LabelsPath(modelsDir string) string {
	return ResolveModelPath(modelsDir, TypeLabels, CocoLabels)
}

// Resolve maps a configured path to a model file. Absolute and existing paths
// are kept; a relative path that does not exist is looked up by its base name
// in the models directory. An empty path stays empty.
func Resolve(path, modelType string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	if _, err := os.Stat(path); err == nil {
		return path
	}
	return ResolveModelPath("", modelType, filepath.Base(path))
}

// ValidateModelExists checks if a model file exists at the given path.
func ValidateModelExists(modelPath string) error {
	if _, err := os.Stat(modelPath); os.IsNotExist(err) {
		return fmt.Errorf("model file not found: %s", modelPath)
	}
	return nil
}

// ListAvailableModels returns the model files the detector can use.
func ListAvailableModels() []ModelInfo {
	return []ModelInfo{
		{
			Name:        "ssd-mobilenet-v1",
			Type:        TypeDetection,
			Description: "SSD MobileNet v1 COCO object detector",
			Filename:    ObjectDetector,
		},
		{
			Name:        "coco-labels",
			Type:        TypeLabels,
			Description: "COCO class labels, one per line",
			Filename:    CocoLabels,
		},
	}
}

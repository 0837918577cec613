package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"testing"

	"github.com/MeKo-Tech/litelens/internal/config"
	"github.com/MeKo-Tech/litelens/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestModelsCommand(t *testing.T) {
	dir := t.TempDir()
	modelPath := filepath.Join(dir, "detector.onnx")
	require.NoError(t, os.WriteFile(modelPath, []byte("onnx"), 0o600))
	cfgPath := filepath.Join(dir, "litelens.yaml")
	content := fmt.Sprintf("log_level: error\ndetector:\n  model_path: %s\n  labels_path: %s\n",
		modelPath, filepath.Join(dir, "missing.txt"))
	require.NoError(t, os.WriteFile(cfgPath, []byte(content), 0o600))

	output, err := executeCommand(t, "--config", cfgPath, "models")
	require.NoError(t, err)
	assert.Contains(t, output, "ssd-mobilenet-v1")
	assert.Regexp(t, `detection\s+present\s+`+regexp.QuoteMeta(modelPath), output)
	assert.Regexp(t, `labels\s+missing`, output)
	assert.Contains(t, output, "Models directory:")
}

func TestResolveDetectorPaths(t *testing.T) {
	dir := t.TempDir()
	t.Setenv(models.EnvModelsDir, dir)

	cfg := config.DefaultConfig()
	dc := resolveDetectorPaths(cfg.ToDetectorConfig())
	assert.Equal(t, filepath.Join(dir, models.ObjectDetector), dc.ModelPath)
	assert.Equal(t, filepath.Join(dir, models.CocoLabels), dc.LabelsPath)
}

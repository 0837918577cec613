package detector

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLabels(t *testing.T) {
	labels, err := ParseLabels(strings.NewReader("person\n bicycle \n\n???\ncar\n"))
	require.NoError(t, err)
	require.Len(t, labels, 5)

	assert.Equal(t, "person", labels.Name(0))
	assert.Equal(t, "bicycle", labels.Name(1))
	assert.Equal(t, "2", labels.Name(2))
	assert.Equal(t, "3", labels.Name(3))
	assert.Equal(t, "car", labels.Name(4))
	assert.Equal(t, "99", labels.Name(99))
	assert.Equal(t, "-1", labels.Name(-1))
}

func TestLoadLabels(t *testing.T) {
	path := filepath.Join(t.TempDir(), "labels.txt")
	require.NoError(t, os.WriteFile(path, []byte("cat\ndog\n"), 0o600))

	labels, err := LoadLabels(path)
	require.NoError(t, err)
	assert.Equal(t, Labels{"cat", "dog"}, labels)

	_, err = LoadLabels(filepath.Join(t.TempDir(), "missing.txt"))
	assert.Error(t, err)
}

func TestValidateConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Error(t, validateConfig(cfg))

	cfg.ModelPath = filepath.Join(t.TempDir(), "missing.onnx")
	assert.Error(t, validateConfig(cfg))

	model := filepath.Join(t.TempDir(), "model.onnx")
	require.NoError(t, os.WriteFile(model, []byte("x"), 0o600))
	cfg.ModelPath = model
	assert.NoError(t, validateConfig(cfg))

	cfg.ScoresOutput = ""
	assert.Error(t, validateConfig(cfg))
}

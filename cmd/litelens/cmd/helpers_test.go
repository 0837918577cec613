package cmd

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/MeKo-Tech/litelens/internal/config"
	"github.com/MeKo-Tech/litelens/internal/vision"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/require"
)

type fakeDetector struct{}

func (fakeDetector) Detect(_ context.Context, img image.Image, _ float64) ([]vision.RawObject, error) {
	b := img.Bounds()
	return []vision.RawObject{{Box: b.Inset(b.Dx() / 4), Label: "cup", Confidence: 0.9}}, nil
}

type fakeRecognizer struct{}

func (fakeRecognizer) Recognize(_ context.Context, img image.Image) ([]vision.TextBlock, error) {
	return []vision.TextBlock{{Text: "Hallo Welt", Box: img.Bounds()}}, nil
}

type fakeIdentifier struct{}

func (fakeIdentifier) Identify(context.Context, string) (string, error) { return "de", nil }

type fakeTranslator struct{}

func (fakeTranslator) Translate(_ context.Context, text, source, target string) (string, error) {
	return fmt.Sprintf("[%s->%s] %s", source, target, text), nil
}

// useFakeBackends swaps the backend factory for in-process fakes.
func useFakeBackends(t *testing.T) {
	t.Helper()
	orig := newBackends
	newBackends = func(*config.Config) (*backends, error) {
		return &backends{
			Detector:   fakeDetector{},
			Recognizer: fakeRecognizer{},
			Identifier: fakeIdentifier{},
			Translator: fakeTranslator{},
		}, nil
	}
	t.Cleanup(func() { newBackends = orig })
}

// writeTestConfig writes a config file keeping all state in a temp dir.
func writeTestConfig(t *testing.T, extra string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "litelens.yaml")
	content := fmt.Sprintf(`log_level: error
detector:
  backend: none
storage:
  driver: sqlite
  dsn: %s
  blob_dir: %s
%s`, filepath.Join(dir, "litelens.db"), filepath.Join(dir, "captures"), extra)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

// resetFlags restores every flag of cmd and its children to its default so
// state does not leak between executions of the shared command tree.
func resetFlags(cmd *cobra.Command) {
	reset := func(f *pflag.Flag) {
		_ = f.Value.Set(f.DefValue)
		f.Changed = false
	}
	cmd.Flags().VisitAll(reset)
	cmd.PersistentFlags().VisitAll(reset)
	for _, c := range cmd.Commands() {
		resetFlags(c)
	}
}

// executeCommand runs the root command with args and returns its output.
func executeCommand(t *testing.T, args ...string) (string, error) {
	t.Helper()
	for _, env := range os.Environ() {
		key, _, _ := strings.Cut(env, "=")
		if strings.HasPrefix(key, config.EnvPrefix+"_") {
			t.Setenv(key, "")
			require.NoError(t, os.Unsetenv(key))
		}
	}

	resetFlags(rootCmd)
	cfgFile = ""
	globalConfig = nil
	t.Cleanup(func() {
		resetFlags(rootCmd)
		globalConfig = nil
	})

	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetErr(new(bytes.Buffer))
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return buf.String(), err
}

// Package onnx wraps ONNX Runtime setup and tensor preparation shared by the
// model-backed detectors.
package onnx

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"sync"

	"github.com/yalue/onnxruntime_go"
)

// EnvLibraryPath overrides the shared library lookup.
const EnvLibraryPath = "LITELENS_ONNXRUNTIME_LIB"

// GPUConfig holds CUDA execution provider settings.
type GPUConfig struct {
	UseGPU      bool
	DeviceID    int
	GPUMemLimit uint64 // bytes, 0 = unlimited
}

// ValidateGPUConfig checks the CUDA settings.
func ValidateGPUConfig(cfg GPUConfig) error {
	if cfg.UseGPU && cfg.DeviceID < 0 {
		return fmt.Errorf("device ID must be non-negative, got %d", cfg.DeviceID)
	}
	return nil
}

var initMu sync.Mutex

// Init locates the shared library and initializes the runtime environment
// once per process.
func Init(useGPU bool) error {
	initMu.Lock()
	defer initMu.Unlock()

	if onnxruntime_go.IsInitialized() {
		return nil
	}
	path, err := FindLibrary(useGPU)
	if err != nil {
		return err
	}
	onnxruntime_go.SetSharedLibraryPath(path)
	if err := onnxruntime_go.InitializeEnvironment(); err != nil {
		return fmt.Errorf("failed to initialize ONNX Runtime: %w", err)
	}
	slog.Debug("ONNX Runtime initialized", "library", path, "gpu", useGPU)
	return nil
}

// NewSessionOptions builds session options with the thread count and, when
// requested, the CUDA provider. The caller destroys the options.
func NewSessionOptions(numThreads int, gpu GPUConfig) (*onnxruntime_go.SessionOptions, error) {
	opts, err := onnxruntime_go.NewSessionOptions()
	if err != nil {
		return nil, fmt.Errorf("failed to create session options: %w", err)
	}
	if numThreads > 0 {
		if err := opts.SetIntraOpNumThreads(numThreads); err != nil {
			_ = opts.Destroy()
			return nil, fmt.Errorf("failed to set thread count: %w", err)
		}
	}
	if gpu.UseGPU {
		if err := appendCUDA(opts, gpu); err != nil {
			_ = opts.Destroy()
			return nil, err
		}
	}
	return opts, nil
}

func appendCUDA(opts *onnxruntime_go.SessionOptions, gpu GPUConfig) error {
	cuda, err := onnxruntime_go.NewCUDAProviderOptions()
	if err != nil {
		return fmt.Errorf("failed to create CUDA provider options (GPU may not be available): %w", err)
	}
	defer func() {
		if err := cuda.Destroy(); err != nil {
			slog.Warn("Failed to destroy CUDA provider options", "error", err)
		}
	}()

	settings := map[string]string{"device_id": strconv.Itoa(gpu.DeviceID)}
	if gpu.GPUMemLimit > 0 {
		settings["gpu_mem_limit"] = strconv.FormatUint(gpu.GPUMemLimit, 10)
	}
	if err := cuda.Update(settings); err != nil {
		return fmt.Errorf("failed to update CUDA provider options: %w", err)
	}
	if err := opts.AppendExecutionProviderCUDA(cuda); err != nil {
		return fmt.Errorf("failed to append CUDA execution provider: %w", err)
	}
	return nil
}

// FindLibrary returns the first existing ONNX Runtime shared library among
// the environment override, system locations and ./onnxruntime.
func FindLibrary(useGPU bool) (string, error) {
	name, err := LibraryName(runtime.GOOS)
	if err != nil {
		return "", err
	}
	for _, p := range CandidatePaths(name, useGPU) {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}
	return "", errors.New("ONNX Runtime library not found; set " + EnvLibraryPath)
}

// CandidatePaths lists where the shared library is looked up, in order.
func CandidatePaths(name string, useGPU bool) []string {
	var paths []string
	if env := os.Getenv(EnvLibraryPath); env != "" {
		paths = append(paths, env)
	}
	if useGPU {
		paths = append(paths, filepath.Join("/opt/onnxruntime/gpu/lib", name))
	}
	paths = append(paths,
		filepath.Join("/usr/local/lib", name),
		filepath.Join("/usr/lib", name),
		filepath.Join("/opt/onnxruntime/cpu/lib", name),
	)
	if cwd, err := os.Getwd(); err == nil {
		if useGPU {
			paths = append(paths, filepath.Join(cwd, "onnxruntime", "gpu", "lib", name))
		}
		paths = append(paths, filepath.Join(cwd, "onnxruntime", "lib", name))
	}
	return paths
}

// LibraryName returns the shared library file name for goos.
func LibraryName(goos string) (string, error) {
	switch goos {
	case "linux":
		return "libonnxruntime.so", nil
	case "darwin":
		return "libonnxruntime.dylib", nil
	case "windows":
		return "onnxruntime.dll", nil
	default:
		return "", fmt.Errorf("unsupported operating system: %s", goos)
	}
}

package detector

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/MeKo-Tech/litelens/internal/onnx"
	"github.com/MeKo-Tech/litelens/internal/vision"
	"github.com/disintegration/imaging"
	"github.com/yalue/onnxruntime_go"
)

const defaultInputSize = 300

// Detector performs object detection with an ONNX SSD model.
type Detector struct {
	config    Config
	labels    Labels
	session   *onnxruntime_go.DynamicAdvancedSession
	inputInfo onnxruntime_go.InputOutputInfo
	inputW    int
	inputH    int
	mu        sync.RWMutex
}

// NewDetector loads the model and label map.
func NewDetector(config Config) (*Detector, error) {
	if err := validateConfig(config); err != nil {
		return nil, err
	}

	var labels Labels
	if config.LabelsPath != "" {
		l, err := LoadLabels(config.LabelsPath)
		if err != nil {
			return nil, err
		}
		labels = l
	}

	slog.Debug("Initializing object detector",
		"model_path", config.ModelPath,
		"labels", len(labels),
		"gpu_enabled", config.GPU.UseGPU,
		"max_results", config.MaxResults)

	if err := onnx.Init(config.GPU.UseGPU); err != nil {
		return nil, err
	}

	inputs, _, err := onnxruntime_go.GetInputOutputInfo(config.ModelPath)
	if err != nil {
		return nil, fmt.Errorf("failed to get model input/output info: %w", err)
	}
	if len(inputs) != 1 {
		return nil, fmt.Errorf("expected 1 input, got %d", len(inputs))
	}
	in := inputs[0]
	if len(in.Dimensions) != 4 {
		return nil, fmt.Errorf("expected 4D input tensor, got %dD", len(in.Dimensions))
	}

	opts, err := onnx.NewSessionOptions(config.NumThreads, config.GPU)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := opts.Destroy(); err != nil {
			slog.Warn("Failed to destroy session options", "error", err)
		}
	}()

	session, err := onnxruntime_go.NewDynamicAdvancedSession(config.ModelPath,
		[]string{in.Name},
		[]string{config.BoxesOutput, config.ScoresOutput, config.ClassesOutput},
		opts)
	if err != nil {
		return nil, fmt.Errorf("failed to create ONNX session: %w", err)
	}

	d := &Detector{
		config:    config,
		labels:    labels,
		session:   session,
		inputInfo: in,
		inputW:    dimOr(in.Dimensions[3], defaultInputSize),
		inputH:    dimOr(in.Dimensions[2], defaultInputSize),
	}
	slog.Debug("Object detector initialized", "input", in.Name, "width", d.inputW, "height", d.inputH)
	return d, nil
}

// Detect implements vision.ObjectDetector. Boxes are in the pixel space of img.
func (d *Detector) Detect(ctx context.Context, img image.Image, threshold float64) ([]vision.RawObject, error) {
	if img == nil {
		return nil, errors.New("input image is nil")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	start := time.Now()
	b := img.Bounds()

	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.session == nil {
		return nil, errors.New("detector session is closed")
	}

	input := img
	if b.Dx() != d.inputW || b.Dy() != d.inputH {
		input = imaging.Resize(img, d.inputW, d.inputH, imaging.Linear)
	}
	tensor, err := onnx.ImageTensor(input, d.config.Normalization)
	if err != nil {
		return nil, fmt.Errorf("preprocessing failed: %w", err)
	}
	defer tensor.Release()

	out, err := d.run(tensor)
	if err != nil {
		return nil, err
	}

	objs, err := decode(out, b.Dx(), b.Dy(), threshold, d.labels, d.config.LabelOffset, d.config.MaxResults)
	if err != nil {
		return nil, err
	}
	slog.Debug("Objects detected", "count", len(objs), "duration", time.Since(start))
	return objs, nil
}

func (d *Detector) run(tensor onnx.Tensor) (rawOutput, error) {
	if err := onnx.VerifyImageTensor(tensor); err != nil {
		return rawOutput{}, fmt.Errorf("invalid tensor: %w", err)
	}

	in, err := onnxruntime_go.NewTensor(onnxruntime_go.NewShape(tensor.Shape...), tensor.Data)
	if err != nil {
		return rawOutput{}, fmt.Errorf("failed to create input tensor: %w", err)
	}
	defer destroy(in)

	outputs := []onnxruntime_go.Value{nil, nil, nil}
	if err := d.session.Run([]onnxruntime_go.Value{in}, outputs); err != nil {
		return rawOutput{}, fmt.Errorf("inference failed: %w", err)
	}
	for _, o := range outputs {
		defer destroy(o)
	}

	boxes, err := floatData(outputs[0])
	if err != nil {
		return rawOutput{}, fmt.Errorf("boxes output: %w", err)
	}
	scores, err := floatData(outputs[1])
	if err != nil {
		return rawOutput{}, fmt.Errorf("scores output: %w", err)
	}
	classes, err := floatData(outputs[2])
	if err != nil {
		return rawOutput{}, fmt.Errorf("classes output: %w", err)
	}
	return rawOutput{Boxes: boxes, Scores: scores, Classes: classes}, nil
}

// Warmup runs blank frames through the model to reduce first-frame latency.
func (d *Detector) Warmup(iterations int) error {
	blank := image.NewNRGBA(image.Rect(0, 0, d.inputW, d.inputH))
	for range iterations {
		if _, err := d.Detect(context.Background(), blank, 1); err != nil {
			return err
		}
	}
	return nil
}

// Close releases the ONNX session.
func (d *Detector) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.session != nil {
		if err := d.session.Destroy(); err != nil {
			slog.Warn("Failed to destroy detector session", "error", err)
		}
		d.session = nil
	}
	return nil
}

// ModelInfo describes the loaded model.
func (d *Detector) ModelInfo() map[string]interface{} {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return map[string]interface{}{
		"model_path":  d.config.ModelPath,
		"input_name":  d.inputInfo.Name,
		"input_shape": d.inputInfo.Dimensions,
		"labels":      len(d.labels),
		"max_results": d.config.MaxResults,
		"gpu":         d.config.GPU.UseGPU,
	}
}

func floatData(v onnxruntime_go.Value) ([]float32, error) {
	switch t := v.(type) {
	case *onnxruntime_go.Tensor[float32]:
		// copy out, the tensor memory is freed with the output value
		return slices.Clone(t.GetData()), nil
	case *onnxruntime_go.Tensor[int64]:
		src := t.GetData()
		out := make([]float32, len(src))
		for i, x := range src {
			out[i] = float32(x)
		}
		return out, nil
	case nil:
		return nil, errors.New("missing output")
	default:
		return nil, fmt.Errorf("unsupported tensor type %T", v)
	}
}

func destroy(v onnxruntime_go.Value) {
	if v == nil {
		return
	}
	if err := v.Destroy(); err != nil {
		slog.Warn("Failed to destroy tensor", "error", err)
	}
}

func dimOr(v int64, def int) int {
	if v > 0 {
		return int(v)
	}
	return def
}

var _ vision.ObjectDetector = (*Detector)(nil)

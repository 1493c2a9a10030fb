// Package onnx implements ports.Predictor over an exported ONNX model using
// the onnxruntime shared library. One predictor owns one session and its
// input/output tensors; Predict is not safe for concurrent use, matching the
// single-threaded decision cycle that calls it.
package onnx

import (
	"fmt"
	"runtime"
	"sync"

	ort "github.com/yalue/onnxruntime_go"

	"neuroTradeBot/internal/ports"
)

var initOnce sync.Once
var initErr error

// initializeRuntime points onnxruntime_go at the platform's shared library
// and initializes the environment. Called once per process.
func initializeRuntime() error {
	initOnce.Do(func() {
		libPath := "/usr/lib/libonnxruntime.so"
		switch runtime.GOOS {
		case "windows":
			libPath = "onnxruntime.dll"
		case "darwin":
			libPath = "libonnxruntime.dylib"
		}
		ort.SetSharedLibraryPath(libPath)
		initErr = ort.InitializeEnvironment()
	})
	return initErr
}

// Config describes the model's tensor layout.
type Config struct {
	ModelPath    string
	FeatureCount int    // Length of the input vector
	InputName    string // Defaults to "input"
	OutputName   string // Defaults to "output"
}

// Predictor scores feature vectors with a binary up/down classifier exported
// to ONNX. The single output is the probability of an upward move.
type Predictor struct {
	session *ort.AdvancedSession
	input   *ort.Tensor[float32]
	output  *ort.Tensor[float32]
	nFeat   int
}

// NewPredictor loads the model and prepares the inference session.
func NewPredictor(cfg Config) (*Predictor, error) {
	if cfg.ModelPath == "" || cfg.FeatureCount <= 0 {
		return nil, fmt.Errorf("%w: model path and feature count are required", ports.ErrConfigurationError)
	}
	if cfg.InputName == "" {
		cfg.InputName = "input"
	}
	if cfg.OutputName == "" {
		cfg.OutputName = "output"
	}

	if err := initializeRuntime(); err != nil {
		return nil, fmt.Errorf("%w: initializing onnxruntime: %v", ports.ErrModelUnavailable, err)
	}

	inputShape := ort.NewShape(1, int64(cfg.FeatureCount))
	inputTensor, err := ort.NewTensor(inputShape, make([]float32, cfg.FeatureCount))
	if err != nil {
		return nil, fmt.Errorf("failed to create input tensor: %w", err)
	}

	outputShape := ort.NewShape(1, 1)
	outputTensor, err := ort.NewEmptyTensor[float32](outputShape)
	if err != nil {
		inputTensor.Destroy()
		return nil, fmt.Errorf("failed to create output tensor: %w", err)
	}

	session, err := ort.NewAdvancedSession(cfg.ModelPath,
		[]string{cfg.InputName}, []string{cfg.OutputName},
		[]ort.Value{inputTensor}, []ort.Value{outputTensor}, nil)
	if err != nil {
		inputTensor.Destroy()
		outputTensor.Destroy()
		return nil, fmt.Errorf("%w: loading %s: %v", ports.ErrModelUnavailable, cfg.ModelPath, err)
	}

	return &Predictor{
		session: session,
		input:   inputTensor,
		output:  outputTensor,
		nFeat:   cfg.FeatureCount,
	}, nil
}

// Predict scores one feature vector, returning the upward-move probability.
func (p *Predictor) Predict(features ports.FeatureVector) (float64, error) {
	if p.session == nil {
		return 0, ports.ErrModelUnavailable
	}
	if len(features) != p.nFeat {
		return 0, fmt.Errorf("%w: expected %d features, got %d", ports.ErrBadFeatureVector, p.nFeat, len(features))
	}

	copy(p.input.GetData(), features)
	if err := p.session.Run(); err != nil {
		return 0, fmt.Errorf("inference failed: %w", err)
	}
	return float64(p.output.GetData()[0]), nil
}

// Close releases the session and its tensors.
func (p *Predictor) Close() error {
	if p.session != nil {
		p.session.Destroy()
		p.session = nil
	}
	if p.input != nil {
		p.input.Destroy()
		p.input = nil
	}
	if p.output != nil {
		p.output.Destroy()
		p.output = nil
	}
	return nil
}

//go:build cgo
// +build cgo

// CLIP inference via ONNX Runtime (requires CGO and the onnxruntime library).
// The model ships as two graphs: visual.onnx for the image-encoding branch
// and textual.onnx for the text-encoding branch. The similarity head is never
// exported or evaluated.

package embedding

import (
	"context"
	"fmt"
	"sync"

	ort "github.com/yalue/onnxruntime_go"

	"github.com/hyperjump/umekomi/internal/vision"
)

// Tensor names of the standard CLIP ONNX export.
const (
	visualInputName   = "pixel_values"
	visualOutputName  = "image_embeds"
	textInputIDsName  = "input_ids"
	textAttentionName = "attention_mask"
	textOutputName    = "text_embeds"
)

var (
	runtimeInitOnce sync.Once
	runtimeInitErr  error
)

// initRuntime initializes the ONNX runtime environment once per process.
func initRuntime() error {
	runtimeInitOnce.Do(func() {
		runtimeInitErr = ort.InitializeEnvironment()
	})
	return runtimeInitErr
}

// CLIPEmbedder runs CLIP forward passes through ONNX Runtime. The sessions
// are loaded once and shared read-only by all requests; tensors are created
// per call, so concurrent forward passes are delegated to the runtime.
type CLIPEmbedder struct {
	visual     *ort.DynamicAdvancedSession
	textual    *ort.DynamicAdvancedSession
	tokenizer  Tokenizer
	dimensions int
	imageSize  int
	maxTokens  int
	backend    string
	cache      *EmbeddingCache
}

// NewCLIPEmbedder loads both model graphs and the tokenizer. Any failure
// means the model is unavailable and the caller must not begin serving.
func NewCLIPEmbedder(opts CLIPOptions) (*CLIPEmbedder, error) {
	if err := initRuntime(); err != nil {
		return nil, fmt.Errorf("failed to initialize ONNX runtime: %w", err)
	}

	tokenizer, err := NewBPETokenizer(opts.VocabPath, opts.MergesPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load tokenizer: %w", err)
	}

	sessOpts, err := ort.NewSessionOptions()
	if err != nil {
		return nil, fmt.Errorf("failed to create session options: %w", err)
	}
	defer sessOpts.Destroy()

	if opts.NumThreads > 0 {
		if err := sessOpts.SetIntraOpNumThreads(opts.NumThreads); err != nil {
			return nil, fmt.Errorf("failed to set threads: %w", err)
		}
	}

	// Accelerator when requested and available, general-purpose CPU otherwise.
	backend := "cpu"
	if opts.UseGPU {
		if cudaOpts, cudaErr := ort.NewCUDAProviderOptions(); cudaErr == nil {
			_ = cudaOpts.Update(map[string]string{
				"device_id": fmt.Sprintf("%d", opts.GPUDevice),
			})
			if appendErr := sessOpts.AppendExecutionProviderCUDA(cudaOpts); appendErr == nil {
				backend = "cuda"
			}
			cudaOpts.Destroy()
		}
	}

	visual, err := ort.NewDynamicAdvancedSession(
		opts.VisualModelPath,
		[]string{visualInputName},
		[]string{visualOutputName},
		sessOpts,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load visual model: %w", err)
	}

	textual, err := ort.NewDynamicAdvancedSession(
		opts.TextualModelPath,
		[]string{textInputIDsName, textAttentionName},
		[]string{textOutputName},
		sessOpts,
	)
	if err != nil {
		_ = visual.Destroy()
		return nil, fmt.Errorf("failed to load textual model: %w", err)
	}

	return &CLIPEmbedder{
		visual:     visual,
		textual:    textual,
		tokenizer:  tokenizer,
		dimensions: opts.Dimensions,
		imageSize:  opts.ImageSize,
		maxTokens:  opts.MaxTokens,
		backend:    backend,
		cache:      NewEmbeddingCache(opts.CacheSize),
	}, nil
}

// EmbedImage preprocesses img and runs the image-encoding branch.
// The output is returned in model-native order with no extra normalization.
func (e *CLIPEmbedder) EmbedImage(ctx context.Context, img *vision.Image) ([]float32, error) {
	pixels, err := vision.PreprocessCLIP(img, e.imageSize)
	if err != nil {
		return nil, fmt.Errorf("image preprocessing failed: %w", err)
	}

	inputShape := ort.NewShape(1, 3, int64(e.imageSize), int64(e.imageSize))
	inputTensor, err := ort.NewTensor(inputShape, pixels)
	if err != nil {
		return nil, fmt.Errorf("failed to create input tensor: %w", err)
	}
	defer inputTensor.Destroy()

	return e.run(e.visual, []ort.ArbitraryTensor{inputTensor})
}

// EmbedText tokenizes text with padding and runs the text-encoding branch.
func (e *CLIPEmbedder) EmbedText(ctx context.Context, text string) ([]float32, error) {
	if cached, ok := e.cache.Get(text); ok {
		return cached, nil
	}

	inputIDs, attentionMask := e.tokenizer.Tokenize(text, e.maxTokens)

	shape := ort.NewShape(1, int64(e.maxTokens))
	idsTensor, err := ort.NewTensor(shape, inputIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to create input_ids tensor: %w", err)
	}
	defer idsTensor.Destroy()
	maskTensor, err := ort.NewTensor(shape, attentionMask)
	if err != nil {
		return nil, fmt.Errorf("failed to create attention_mask tensor: %w", err)
	}
	defer maskTensor.Destroy()

	embedding, err := e.run(e.textual, []ort.ArbitraryTensor{idsTensor, maskTensor})
	if err != nil {
		return nil, err
	}
	e.cache.Set(text, embedding)
	return embedding, nil
}

// run executes one forward pass and copies out the embedding vector.
func (e *CLIPEmbedder) run(session *ort.DynamicAdvancedSession, inputs []ort.ArbitraryTensor) ([]float32, error) {
	outputData := make([]float32, e.dimensions)
	outputTensor, err := ort.NewTensor(ort.NewShape(1, int64(e.dimensions)), outputData)
	if err != nil {
		return nil, fmt.Errorf("failed to create output tensor: %w", err)
	}
	defer outputTensor.Destroy()

	if err := session.Run(inputs, []ort.ArbitraryTensor{outputTensor}); err != nil {
		return nil, fmt.Errorf("inference failed: %w", err)
	}

	embedding := make([]float32, e.dimensions)
	copy(embedding, outputTensor.GetData())
	return embedding, nil
}

// Dimensions returns the embedding dimension.
func (e *CLIPEmbedder) Dimensions() int {
	return e.dimensions
}

// Backend reports the execution backend ("cpu" or "cuda").
func (e *CLIPEmbedder) Backend() string {
	return e.backend
}

// CacheLen returns the number of cached text embeddings.
func (e *CLIPEmbedder) CacheLen() int {
	return e.cache.Len()
}

// Close destroys both sessions.
func (e *CLIPEmbedder) Close() error {
	var err error
	if e.visual != nil {
		err = e.visual.Destroy()
		e.visual = nil
	}
	if e.textual != nil {
		if destroyErr := e.textual.Destroy(); err == nil {
			err = destroyErr
		}
		e.textual = nil
	}
	return err
}

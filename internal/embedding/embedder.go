// Package embedding runs forward passes through the loaded model's image and
// text encoding branches.
package embedding

import (
	"context"

	"github.com/hyperjump/umekomi/internal/vision"
)

// Embedder produces vector embeddings for images and text. Both live in the
// model's shared embedding space. Implementations are safe for concurrent use.
type Embedder interface {
	EmbedImage(ctx context.Context, img *vision.Image) ([]float32, error)
	EmbedText(ctx context.Context, text string) ([]float32, error)
	Dimensions() int
	Backend() string
	Close() error
}

// CLIPOptions configures a CLIP ONNX embedder.
type CLIPOptions struct {
	VisualModelPath  string
	TextualModelPath string
	VocabPath        string
	MergesPath       string
	Dimensions       int
	ImageSize        int
	MaxTokens        int
	CacheSize        int
	NumThreads       int
	UseGPU           bool
	GPUDevice        int
}

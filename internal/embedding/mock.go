package embedding

import (
	"context"
	"math"

	"github.com/hyperjump/umekomi/internal/vision"
)

// MockEmbedder is a deterministic embedder for tests. It derives a
// fixed-dimension vector from a content hash so the same input always gets
// the same embedding.
type MockEmbedder struct {
	dimensions int
}

// NewMockEmbedder returns an embedder producing deterministic embeddings of
// the given dimensions.
func NewMockEmbedder(dimensions int) *MockEmbedder {
	if dimensions <= 0 {
		dimensions = 512
	}
	return &MockEmbedder{dimensions: dimensions}
}

// EmbedImage returns a deterministic embedding derived from the pixel data.
func (e *MockEmbedder) EmbedImage(ctx context.Context, img *vision.Image) ([]float32, error) {
	h := 0
	for _, b := range img.RGBA.Pix {
		h = 31*h + int(b)
	}
	return e.fromHash(h), nil
}

// EmbedText returns a deterministic embedding derived from the text hash.
func (e *MockEmbedder) EmbedText(ctx context.Context, text string) ([]float32, error) {
	return e.fromHash(hashString(text)), nil
}

func (e *MockEmbedder) fromHash(h int) []float32 {
	if h < 0 {
		h = -h
	}
	emb := make([]float32, e.dimensions)
	for i := 0; i < e.dimensions; i++ {
		emb[i] = float32(math.Sin(float64(h*(i+1)))*0.1 + 0.01)
	}
	return emb
}

// Dimensions returns the embedding dimension.
func (e *MockEmbedder) Dimensions() int {
	return e.dimensions
}

// Backend reports the execution backend.
func (e *MockEmbedder) Backend() string {
	return "mock"
}

// Close is a no-op for MockEmbedder.
func (e *MockEmbedder) Close() error {
	return nil
}

// hashString returns a deterministic hash of s.
func hashString(s string) int {
	h := 0
	for _, c := range s {
		h = 31*h + int(c)
	}
	return h
}

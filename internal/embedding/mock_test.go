package embedding

import (
	"context"
	"image"
	"reflect"
	"testing"

	"github.com/hyperjump/umekomi/internal/vision"
)

func testImage(fill uint8) *vision.Image {
	rgba := image.NewRGBA(image.Rect(0, 0, 2, 2))
	for i := range rgba.Pix {
		rgba.Pix[i] = fill
	}
	return &vision.Image{RGBA: rgba, Width: 2, Height: 2, Format: "png"}
}

func TestMockEmbedder_TextDeterministic(t *testing.T) {
	e := NewMockEmbedder(8)
	ctx := context.Background()
	a, err := e.EmbedText(ctx, "a photo of a cat")
	if err != nil {
		t.Fatal(err)
	}
	b, err := e.EmbedText(ctx, "a photo of a cat")
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(a, b) {
		t.Error("same text should yield identical embeddings")
	}
	if len(a) != 8 {
		t.Errorf("dimension: got %d, want 8", len(a))
	}
}

func TestMockEmbedder_ImageDeterministic(t *testing.T) {
	e := NewMockEmbedder(8)
	ctx := context.Background()
	a, err := e.EmbedImage(ctx, testImage(10))
	if err != nil {
		t.Fatal(err)
	}
	b, err := e.EmbedImage(ctx, testImage(10))
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(a, b) {
		t.Error("same image should yield identical embeddings")
	}
	c, err := e.EmbedImage(ctx, testImage(200))
	if err != nil {
		t.Fatal(err)
	}
	if reflect.DeepEqual(a, c) {
		t.Error("different images should yield different embeddings")
	}
}

func TestMockEmbedder_FixedDimensionAcrossInputs(t *testing.T) {
	e := NewMockEmbedder(16)
	ctx := context.Background()
	for _, text := range []string{"", "short", "a much longer input string with many words"} {
		emb, err := e.EmbedText(ctx, text)
		if err != nil {
			t.Fatal(err)
		}
		if len(emb) != e.Dimensions() {
			t.Errorf("text %q: dimension %d, want %d", text, len(emb), e.Dimensions())
		}
	}
}

func TestMockEmbedder_Defaults(t *testing.T) {
	e := NewMockEmbedder(0)
	if e.Dimensions() != 512 {
		t.Errorf("default dimensions: got %d", e.Dimensions())
	}
	if e.Backend() != "mock" {
		t.Errorf("backend: got %q", e.Backend())
	}
	if err := e.Close(); err != nil {
		t.Errorf("close: %v", err)
	}
}

package server

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"image"
	"image/png"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"

	"go.uber.org/zap"

	"github.com/hyperjump/umekomi/internal/config"
	"github.com/hyperjump/umekomi/internal/embedding"
	"github.com/hyperjump/umekomi/internal/models"
	"github.com/hyperjump/umekomi/internal/source"
)

func testServer(t *testing.T) *Server {
	t.Helper()
	cfg := &config.Config{ModelName: "clip-vit-base-patch32"}
	config.ApplyDefaults(cfg)
	return NewServer(embedding.NewMockEmbedder(8), source.NewResolver(nil), cfg, zap.NewNop())
}

func pngBase64(t *testing.T) string {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 2, 2))
	for i := range img.Pix {
		img.Pix[i] = 128
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes())
}

func postJSON(t *testing.T, handler http.Handler, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	data, err := json.Marshal(body)
	if err != nil {
		t.Fatal(err)
	}
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	return w
}

func decodeEmbedding(t *testing.T, w *httptest.ResponseRecorder) []float32 {
	t.Helper()
	var resp models.EmbeddingResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return resp.Embedding
}

func TestHandleEmbedImage_Base64(t *testing.T) {
	s := testServer(t)
	router := s.Router()

	w := postJSON(t, router, "/embed", models.EmbedImageRequest{Image: pngBase64(t)})
	if w.Code != http.StatusOK {
		t.Fatalf("status: got %d, body %s", w.Code, w.Body.String())
	}
	emb := decodeEmbedding(t, w)
	if len(emb) != 8 {
		t.Errorf("embedding length: got %d, want 8", len(emb))
	}
	if w.Header().Get("X-Request-ID") == "" {
		t.Error("expected X-Request-ID header")
	}
}

func TestHandleEmbedImage_Deterministic(t *testing.T) {
	s := testServer(t)
	router := s.Router()
	img := pngBase64(t)

	a := decodeEmbedding(t, postJSON(t, router, "/embed", models.EmbedImageRequest{Image: img}))
	b := decodeEmbedding(t, postJSON(t, router, "/embed", models.EmbedImageRequest{Image: img}))
	if !reflect.DeepEqual(a, b) {
		t.Error("same image should yield identical embeddings")
	}
}

func TestHandleEmbedImage_URL(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 2, 2))
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	var gotAuth string
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		_, _ = w.Write(buf.Bytes())
	}))
	defer upstream.Close()

	s := testServer(t)
	router := s.Router()

	data, _ := json.Marshal(models.EmbedImageRequest{Image: upstream.URL + "/img.png"})
	req := httptest.NewRequest(http.MethodPost, "/embed", bytes.NewReader(data))
	req.Header.Set("Authorization", "Bearer secret-token")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status: got %d, body %s", w.Code, w.Body.String())
	}
	if gotAuth != "Bearer secret-token" {
		t.Errorf("Authorization not forwarded verbatim: got %q", gotAuth)
	}
	if emb := decodeEmbedding(t, w); len(emb) != 8 {
		t.Errorf("embedding length: got %d, want 8", len(emb))
	}
}

func TestHandleEmbedImage_Errors(t *testing.T) {
	s := testServer(t)
	router := s.Router()

	tests := []struct {
		name string
		body string
		want int
	}{
		{"invalid json", "{not json", http.StatusBadRequest},
		{"missing image", `{}`, http.StatusBadRequest},
		{"invalid base64", `{"image": "!!!not-base64!!!"}`, http.StatusBadRequest},
		{"not an image", fmt.Sprintf(`{"image": %q}`, base64.StdEncoding.EncodeToString([]byte("plain text"))), http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/embed", bytes.NewReader([]byte(tt.body)))
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)
			if w.Code != tt.want {
				t.Errorf("status: got %d, want %d (body %s)", w.Code, tt.want, w.Body.String())
			}
		})
	}
}

func TestHandleEmbedImage_FetchFailure(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "forbidden", http.StatusForbidden)
	}))
	defer upstream.Close()

	s := testServer(t)
	router := s.Router()

	w := postJSON(t, router, "/embed", models.EmbedImageRequest{Image: upstream.URL})
	if w.Code != http.StatusBadGateway {
		t.Errorf("status: got %d, want %d", w.Code, http.StatusBadGateway)
	}
}

func TestHandleEmbedText(t *testing.T) {
	s := testServer(t)
	router := s.Router()

	w := postJSON(t, router, "/embed_text", models.EmbedTextRequest{Text: "a photo of a cat"})
	if w.Code != http.StatusOK {
		t.Fatalf("status: got %d, body %s", w.Code, w.Body.String())
	}
	if emb := decodeEmbedding(t, w); len(emb) != 8 {
		t.Errorf("embedding length: got %d, want 8", len(emb))
	}
}

func TestHandleEmbedText_Empty(t *testing.T) {
	s := testServer(t)
	router := s.Router()

	w := postJSON(t, router, "/embed_text", models.EmbedTextRequest{Text: ""})
	if w.Code != http.StatusOK {
		t.Fatalf("empty text should embed: got %d, body %s", w.Code, w.Body.String())
	}
	if emb := decodeEmbedding(t, w); len(emb) != 8 {
		t.Errorf("embedding length: got %d, want 8", len(emb))
	}
}

func TestHandleEmbedText_Deterministic(t *testing.T) {
	s := testServer(t)
	router := s.Router()

	a := decodeEmbedding(t, postJSON(t, router, "/embed_text", models.EmbedTextRequest{Text: "same"}))
	b := decodeEmbedding(t, postJSON(t, router, "/embed_text", models.EmbedTextRequest{Text: "same"}))
	if !reflect.DeepEqual(a, b) {
		t.Error("same text should yield identical embeddings")
	}
}

func TestHandleHealth(t *testing.T) {
	s := testServer(t)
	router := s.Router()

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("status: got %d", w.Code)
	}
	var resp map[string]string
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if resp["status"] != "ok" {
		t.Errorf("status field: got %q", resp["status"])
	}
}

func TestHandleStatus(t *testing.T) {
	s := testServer(t)
	router := s.Router()

	req := httptest.NewRequest(http.MethodGet, "/api/v1/status", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("status: got %d", w.Code)
	}
	var resp models.StatusResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if resp.ModelName != "clip-vit-base-patch32" {
		t.Errorf("model name: got %q", resp.ModelName)
	}
	if resp.Dimensions != 8 {
		t.Errorf("dimensions: got %d, want 8", resp.Dimensions)
	}
	if resp.Backend != "mock" {
		t.Errorf("backend: got %q", resp.Backend)
	}
}

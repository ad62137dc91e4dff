// Package models defines the transient request and response types of the API.
// Nothing here is persisted.
package models

// EmbedImageRequest is the body of POST /embed. Image is either an HTTP(S)
// URL or a base64-encoded image payload; the prefix disambiguates.
type EmbedImageRequest struct {
	Image string `json:"image"`
}

// EmbedTextRequest is the body of POST /embed_text.
type EmbedTextRequest struct {
	Text string `json:"text"`
}

// EmbeddingResponse carries an embedding vector in model-native order.
// The length is fixed by the model's output dimensionality.
type EmbeddingResponse struct {
	Embedding []float32 `json:"embedding"`
}

// StatusResponse is the shape of GET /api/v1/status.
type StatusResponse struct {
	ModelName  string `json:"model_name"`
	Dimensions int    `json:"dimensions"`
	ImageSize  int    `json:"image_size"`
	MaxTokens  int    `json:"max_tokens"`
	Backend    string `json:"backend"`
	CacheSize  int    `json:"cache_size,omitempty"`
}

package server

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"github.com/hyperjump/umekomi/internal/models"
	"github.com/hyperjump/umekomi/internal/source"
	"github.com/hyperjump/umekomi/internal/vision"
	"github.com/hyperjump/umekomi/pkg/utils"
)

// handleEmbedImage serves POST /embed. The image field holds either an
// HTTP(S) URL (fetched with the caller's Authorization header forwarded
// verbatim) or a base64-encoded payload.
func (s *Server) handleEmbedImage(w http.ResponseWriter, r *http.Request) {
	var req models.EmbedImageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Image == "" {
		s.respondError(w, http.StatusBadRequest, "image is required")
		return
	}

	kind := source.DetectKind(req.Image)
	data, err := s.resolver.Resolve(r.Context(), req.Image, r.Header.Get("Authorization"))
	if err != nil {
		s.logger.Error("image source resolution failed",
			zap.String("request_id", reqID(r.Context())),
			zap.Error(err))
		if kind == source.KindURL {
			s.respondError(w, http.StatusBadGateway, err.Error())
		} else {
			s.respondError(w, http.StatusBadRequest, err.Error())
		}
		return
	}

	img, err := vision.Decode(data)
	if err != nil {
		s.logger.Error("image decode failed",
			zap.String("request_id", reqID(r.Context())),
			zap.Error(err))
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.logger.Info("image decoded",
		zap.String("request_id", reqID(r.Context())),
		zap.String("format", img.Format),
		zap.Int("width", img.Width),
		zap.Int("height", img.Height),
		zap.String("mode", img.Mode()),
	)

	embedding, err := s.embedder.EmbedImage(r.Context(), img)
	if err != nil {
		s.logger.Error("image embedding failed",
			zap.String("request_id", reqID(r.Context())),
			zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.logger.Info("embedding generated",
		zap.String("request_id", reqID(r.Context())),
		zap.Int("length", len(embedding)))

	s.respondJSON(w, http.StatusOK, models.EmbeddingResponse{Embedding: embedding})
}

// handleEmbedText serves POST /embed_text. Empty text is valid: padding makes
// it a well-formed batch of one.
func (s *Server) handleEmbedText(w http.ResponseWriter, r *http.Request) {
	var req models.EmbedTextRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	s.logger.Info("processing text",
		zap.String("request_id", reqID(r.Context())),
		zap.String("preview", utils.Truncate(req.Text, 100)))

	embedding, err := s.embedder.EmbedText(r.Context(), req.Text)
	if err != nil {
		s.logger.Error("text embedding failed",
			zap.String("request_id", reqID(r.Context())),
			zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.logger.Info("embedding generated",
		zap.String("request_id", reqID(r.Context())),
		zap.Int("length", len(embedding)))

	s.respondJSON(w, http.StatusOK, models.EmbeddingResponse{Embedding: embedding})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	resp := models.StatusResponse{
		ModelName:  s.config.ModelName,
		Dimensions: s.embedder.Dimensions(),
		ImageSize:  s.config.Model.ImageSize,
		MaxTokens:  s.config.Model.MaxTokens,
		Backend:    s.embedder.Backend(),
	}
	if c, ok := s.embedder.(interface{ CacheLen() int }); ok {
		resp.CacheSize = c.CacheLen()
	}
	s.respondJSON(w, http.StatusOK, resp)
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}

// Package main is the umekomi CLI entry point.
package main

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/hyperjump/umekomi/internal/config"
	"github.com/hyperjump/umekomi/internal/embedding"
	"github.com/hyperjump/umekomi/internal/models"
	"github.com/hyperjump/umekomi/internal/server"
	"github.com/hyperjump/umekomi/internal/source"
	"github.com/hyperjump/umekomi/pkg/utils"
	"go.uber.org/zap"
)

var version = "dev"

const defaultConfigPath = "/usr/local/etc/umekomi/config.json"

// loadConfig loads config from path. When path is the default, it first looks for
// config.json in the current directory (for development); if that exists it is used,
// so that "umekomi server" from the project dir uses the project's config.
// Returns the config and the path that was actually loaded.
func loadConfig(path string) (*config.Config, string, error) {
	if path == defaultConfigPath {
		if cwd, cwdErr := os.Getwd(); cwdErr == nil {
			fallback := filepath.Join(cwd, "config.json")
			if _, statErr := os.Stat(fallback); statErr == nil {
				cfg, loadErr := config.Load(fallback)
				if loadErr != nil {
					return nil, "", loadErr
				}
				return cfg, fallback, nil
			}
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", err
	}
	return cfg, path, nil
}

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}
	command := os.Args[1]
	switch command {
	case "server":
		runServer()
	case "embed":
		runEmbedImage()
	case "embed-text":
		runEmbedText()
	case "status":
		runStatus()
	case "version", "--version", "-v":
		fmt.Printf("umekomi version %s\n", version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Printf("Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
}

func runServer() {
	fs := flag.NewFlagSet("server", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	debug := fs.Bool("debug", false, "enable debug logging (tokenization, preprocessing timings, etc.)")
	_ = fs.Parse(os.Args[2:])

	cfg, resolvedConfigPath, err := loadConfig(*configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}
	debugMode := cfg.Debug || *debug
	logger, err := utils.NewLogger(debugMode)
	if err != nil {
		fmt.Printf("Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("config loaded",
		zap.String("config_path", resolvedConfigPath),
		zap.String("model", cfg.ModelName),
		zap.Bool("debug", debugMode),
	)

	embedder, err := newEmbedder(cfg)
	if err != nil {
		// The whole point of the service is the loaded model; refuse to start
		// without it rather than serve garbage.
		logger.Fatal("Failed to load model", zap.Error(err))
	}
	defer embedder.Close()

	logger.Info("model loaded",
		zap.String("model", cfg.ModelName),
		zap.Int("dimensions", embedder.Dimensions()),
		zap.String("backend", embedder.Backend()),
	)

	srv := server.NewServer(embedder, source.NewResolver(nil), cfg, logger)
	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Server failed", zap.Error(err))
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("Shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Stop(ctx)
}

func newEmbedder(cfg *config.Config) (embedding.Embedder, error) {
	return embedding.NewCLIPEmbedder(embedding.CLIPOptions{
		VisualModelPath:  cfg.VisualModelPath(),
		TextualModelPath: cfg.TextualModelPath(),
		VocabPath:        cfg.VocabPath(),
		MergesPath:       cfg.MergesPath(),
		Dimensions:       cfg.Model.Dimensions,
		ImageSize:        cfg.Model.ImageSize,
		MaxTokens:        cfg.Model.MaxTokens,
		CacheSize:        cfg.Model.CacheSize,
		NumThreads:       cfg.Model.NumThreads,
		UseGPU:           cfg.Model.UseGPU,
		GPUDevice:        cfg.Model.GPUDevice,
	})
}

// buildImagePayload turns the CLI argument into the request's image field:
// an existing file is read and base64-encoded, an http(s) URL passes through,
// and anything else is assumed to already be base64.
func buildImagePayload(arg string) (string, error) {
	if strings.HasPrefix(arg, "http") {
		return arg, nil
	}
	if _, err := os.Stat(arg); err == nil {
		data, err := os.ReadFile(arg)
		if err != nil {
			return "", fmt.Errorf("read image file: %w", err)
		}
		return base64.StdEncoding.EncodeToString(data), nil
	}
	return arg, nil
}

func runEmbedImage() {
	fs := flag.NewFlagSet("embed", flag.ExitOnError)
	serverURL := fs.String("server", "http://localhost:8000", "server URL")
	auth := fs.String("auth", "", "Authorization header value forwarded to URL fetches")
	_ = fs.Parse(os.Args[2:])

	if fs.NArg() < 1 {
		fmt.Println("Usage: umekomi embed [flags] <file-or-url-or-base64>")
		os.Exit(1)
	}
	payload, err := buildImagePayload(fs.Arg(0))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Embed failed: %v\n", err)
		os.Exit(1)
	}

	emb, err := embedViaHTTP(*serverURL+"/embed", models.EmbedImageRequest{Image: payload}, *auth)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Embed failed: %v\n", err)
		os.Exit(1)
	}
	printEmbedding(emb)
}

func runEmbedText() {
	fs := flag.NewFlagSet("embed-text", flag.ExitOnError)
	serverURL := fs.String("server", "http://localhost:8000", "server URL")
	_ = fs.Parse(os.Args[2:])

	if fs.NArg() < 1 {
		fmt.Println("Usage: umekomi embed-text [flags] <text>")
		os.Exit(1)
	}
	text := strings.TrimSpace(strings.Join(fs.Args(), " "))

	emb, err := embedViaHTTP(*serverURL+"/embed_text", models.EmbedTextRequest{Text: text}, "")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Embed failed: %v\n", err)
		os.Exit(1)
	}
	printEmbedding(emb)
}

func embedViaHTTP(endpoint string, payload interface{}, auth string) ([]float32, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequest(http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if auth != "" {
		req.Header.Set("Authorization", auth)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("server returned %d: %s", resp.StatusCode, string(b))
	}
	var response models.EmbeddingResponse
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return response.Embedding, nil
}

func printEmbedding(emb []float32) {
	enc := json.NewEncoder(os.Stdout)
	if err := enc.Encode(models.EmbeddingResponse{Embedding: emb}); err != nil {
		fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
		os.Exit(1)
	}
}

func runStatus() {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	serverURL := fs.String("server", "http://localhost:8000", "server URL")
	outputFormat := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(os.Args[2:])

	resp, err := http.Get(*serverURL + "/api/v1/status")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Status failed: %v\n", err)
		os.Exit(1)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		fmt.Fprintf(os.Stderr, "Status failed: server returned %d: %s\n", resp.StatusCode, string(b))
		os.Exit(1)
	}
	var status models.StatusResponse
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		fmt.Fprintf(os.Stderr, "Status failed: decode response: %v\n", err)
		os.Exit(1)
	}

	switch *outputFormat {
	case "json":
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(status); err != nil {
			fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
			os.Exit(1)
		}
	case "text":
		fmt.Printf("model:        %s\n", status.ModelName)
		fmt.Printf("dimensions:   %d\n", status.Dimensions)
		fmt.Printf("image_size:   %d\n", status.ImageSize)
		fmt.Printf("max_tokens:   %d\n", status.MaxTokens)
		fmt.Printf("backend:      %s\n", status.Backend)
		fmt.Printf("cache_size:   %d   # cached text embeddings\n", status.CacheSize)
	default:
		fmt.Fprintf(os.Stderr, "Unknown output format %q; use text or json\n", *outputFormat)
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`umekomi - CLIP embedding server

Usage:
  umekomi server [flags]              Start the HTTP server
  umekomi embed [flags] <image>       Embed an image (file path, URL, or base64)
  umekomi embed-text [flags] <text>   Embed a text string
  umekomi status [flags]              Show model/server status
  umekomi version                     Show version
  umekomi help                        Show this help

Server Flags:
  --config string    Config file path (default: /usr/local/etc/umekomi/config.json)
  --debug            Enable debug logging (tokenization, preprocessing timings, etc.)

Embed Flags:
  --server string    Server URL (default: http://localhost:8000)
  --auth string      Authorization header value forwarded to URL fetches

Embed-Text Flags:
  --server string    Server URL (default: http://localhost:8000)

Status Flags:
  --server string    Server URL (default: http://localhost:8000)
  --output string    Output format: text or json (default: text)

Examples:
  umekomi server
  umekomi embed photo.jpg
  umekomi embed --auth "Bearer token" https://example.com/photo.jpg
  umekomi embed-text "a photo of a cat"
  umekomi status --output json`)
}

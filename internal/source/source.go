// Package source resolves the image field of an embed request into raw bytes.
// A value with an HTTP scheme is fetched over the network; anything else is
// treated as base64-encoded binary.
package source

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// Kind tags the two shapes an image source can take.
type Kind int

const (
	// KindURL is an http:// or https:// reference fetched over the network.
	KindURL Kind = iota
	// KindBase64 is an inline base64-encoded payload.
	KindBase64
)

// DetectKind classifies an image source string by its prefix.
func DetectKind(s string) Kind {
	if strings.HasPrefix(s, "http") {
		return KindURL
	}
	return KindBase64
}

// Resolver turns an image source string into raw image bytes.
type Resolver struct {
	client *http.Client
}

// NewResolver returns a resolver using the given HTTP client. A nil client
// gets a default one with no timeout: a slow fetch blocks its request only,
// and cancellation follows the request context.
func NewResolver(client *http.Client) *Resolver {
	if client == nil {
		client = &http.Client{}
	}
	return &Resolver{client: client}
}

// Resolve returns the raw bytes for src. For URL sources, authorization (when
// non-empty) is forwarded verbatim as the Authorization header.
func (r *Resolver) Resolve(ctx context.Context, src, authorization string) ([]byte, error) {
	switch DetectKind(src) {
	case KindURL:
		return r.fetch(ctx, src, authorization)
	default:
		data, err := base64.StdEncoding.DecodeString(src)
		if err != nil {
			return nil, fmt.Errorf("invalid base64 image: %w", err)
		}
		return data, nil
	}
}

func (r *Resolver) fetch(ctx context.Context, url, authorization string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("invalid image URL: %w", err)
	}
	if authorization != "" {
		req.Header.Set("Authorization", authorization)
	}
	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("image fetch failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("image fetch returned %d", resp.StatusCode)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("image fetch read failed: %w", err)
	}
	return data, nil
}

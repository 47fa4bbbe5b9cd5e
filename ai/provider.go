// Package ai implements the conversational pipeline against an AI
// backend: prompt composition, reply extraction with graceful fallback,
// and automatic conversation naming.
package ai

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"
)

// ImagePart is a base64-encoded image attachment.
type ImagePart struct {
	MIMEType string
	Data     string // base64, no data-URI prefix
}

// Provider generates a single completion for a composed prompt, with an
// optional image attachment.
type Provider interface {
	Generate(ctx context.Context, prompt string, image *ImagePart) (string, error)
}

// Config represents AI provider configuration.
type Config struct {
	Provider string // native, openai, siliconflow, ollama
	Model    string
	APIKey   string
	BaseURL  string
	Timeout  int // Request timeout in seconds (default: 60)
}

// NewProvider creates a provider for the configured backend. "native"
// speaks the contents/parts REST dialect directly; everything else goes
// through the OpenAI-compatible client.
func NewProvider(cfg Config) (Provider, error) {
	if cfg.Model == "" {
		return nil, fmt.Errorf("ai: model is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60
	}

	switch cfg.Provider {
	case "native", "":
		return newNativeProvider(cfg), nil
	default:
		return newOpenAIProvider(cfg), nil
	}
}

func newHTTPClient() *http.Client {
	return &http.Client{
		Transport: &http.Transport{
			DialContext: (&net.Dialer{
				Timeout:   30 * time.Second,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			MaxIdleConns:          100,
			IdleConnTimeout:       90 * time.Second,
			TLSHandshakeTimeout:   10 * time.Second,
			ExpectContinueTimeout: 1 * time.Second,
		},
	}
}

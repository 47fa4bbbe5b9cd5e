package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"
)

const defaultNativeBaseURL = "https://generativelanguage.googleapis.com"

// nativeProvider speaks the contents/parts REST dialect. The API key
// travels in the URL, not in a header.
type nativeProvider struct {
	baseURL string
	model   string
	apiKey  string
	http    *http.Client
	timeout time.Duration
}

func newNativeProvider(cfg Config) *nativeProvider {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultNativeBaseURL
	}
	return &nativeProvider{
		baseURL: baseURL,
		model:   cfg.Model,
		apiKey:  cfg.APIKey,
		http:    newHTTPClient(),
		timeout: time.Duration(cfg.Timeout) * time.Second,
	}
}

type nativePart struct {
	Text       string            `json:"text,omitempty"`
	InlineData *nativeInlineData `json:"inline_data,omitempty"`
}

type nativeInlineData struct {
	MIMEType string `json:"mime_type"`
	Data     string `json:"data"`
}

type nativeContent struct {
	Parts []nativePart `json:"parts"`
}

type nativeRequest struct {
	Contents []nativeContent `json:"contents"`
}

type nativeResponse struct {
	Candidates []struct {
		Content struct {
			Parts []struct {
				Text string `json:"text"`
			} `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
}

func (p *nativeProvider) Generate(ctx context.Context, prompt string, image *ImagePart) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	parts := []nativePart{{Text: prompt}}
	if image != nil {
		parts = append(parts, nativePart{
			InlineData: &nativeInlineData{MIMEType: image.MIMEType, Data: image.Data},
		})
	}
	payload := nativeRequest{Contents: []nativeContent{{Parts: parts}}}

	raw, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/v1beta/models/%s:generateContent?key=%s",
		p.baseURL, p.model, url.QueryEscape(p.apiKey))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(raw))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.http.Do(req)
	if err != nil {
		var netErr net.Error
		if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
			return "", fmt.Errorf("ai request timed out: %w", err)
		}
		return "", fmt.Errorf("ai request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", fmt.Errorf("ai endpoint returned status %d: %s", resp.StatusCode, body)
	}

	var decoded nativeResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	if len(decoded.Candidates) == 0 || len(decoded.Candidates[0].Content.Parts) == 0 {
		return "", fmt.Errorf("ai response carried no candidate text")
	}
	return decoded.Candidates[0].Content.Parts[0].Text, nil
}

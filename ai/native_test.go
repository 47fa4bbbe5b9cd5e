package ai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newNativeTestProvider(t *testing.T, handler http.HandlerFunc) *nativeProvider {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	p, err := NewProvider(Config{
		Provider: "native",
		Model:    "gemini-2.0-flash",
		APIKey:   "test-key",
		BaseURL:  srv.URL,
		Timeout:  5,
	})
	require.NoError(t, err)
	return p.(*nativeProvider)
}

func TestNativeGenerate(t *testing.T) {
	var gotPath, gotKey string
	var gotBody nativeRequest
	p := newNativeTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotKey = r.URL.Query().Get("key")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		_, _ = w.Write([]byte(`{"candidates":[{"content":{"parts":[{"text":"Check for bloat first."}]}}]}`))
	})

	reply, err := p.Generate(context.Background(), "A cow looks swollen on the left side.", nil)
	require.NoError(t, err)
	assert.Equal(t, "Check for bloat first.", reply)
	assert.Equal(t, "/v1beta/models/gemini-2.0-flash:generateContent", gotPath)
	assert.Equal(t, "test-key", gotKey)

	require.Len(t, gotBody.Contents, 1)
	require.Len(t, gotBody.Contents[0].Parts, 1)
	assert.Equal(t, "A cow looks swollen on the left side.", gotBody.Contents[0].Parts[0].Text)
}

func TestNativeGenerate_ImagePart(t *testing.T) {
	var gotBody nativeRequest
	p := newNativeTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		_, _ = w.Write([]byte(`{"candidates":[{"content":{"parts":[{"text":"Clover."}]}}]}`))
	})

	_, err := p.Generate(context.Background(), "What is this?", &ImagePart{MIMEType: "image/jpeg", Data: "aGk="})
	require.NoError(t, err)

	require.Len(t, gotBody.Contents[0].Parts, 2)
	assert.Equal(t, "What is this?", gotBody.Contents[0].Parts[0].Text)
	require.NotNil(t, gotBody.Contents[0].Parts[1].InlineData)
	assert.Equal(t, "image/jpeg", gotBody.Contents[0].Parts[1].InlineData.MIMEType)
	assert.Equal(t, "aGk=", gotBody.Contents[0].Parts[1].InlineData.Data)
}

func TestNativeGenerate_ErrorStatus(t *testing.T) {
	p := newNativeTestProvider(t, func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "quota exceeded", http.StatusTooManyRequests)
	})

	_, err := p.Generate(context.Background(), "hello", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "429")
}

func TestNativeGenerate_NoCandidates(t *testing.T) {
	p := newNativeTestProvider(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"candidates":[]}`))
	})

	_, err := p.Generate(context.Background(), "hello", nil)
	require.Error(t, err)
}

func TestNativeGenerate_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	t.Cleanup(srv.Close)

	p := &nativeProvider{
		baseURL: srv.URL,
		model:   "m",
		http:    newHTTPClient(),
		timeout: 50 * time.Millisecond,
	}
	_, err := p.Generate(context.Background(), "hello", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "timed out")
}

func TestNewProvider_RequiresModel(t *testing.T) {
	_, err := NewProvider(Config{Provider: "native"})
	require.Error(t, err)
}

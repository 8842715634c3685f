package artifact

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSiliconFlow_SynthesizeImage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/images/generations", r.URL.Path)
		var req sfImageReq
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "a prism splitting light", req.Prompt)
		_, _ = w.Write([]byte(`{"data":[{"url":"https://cdn.example/img.png"}]}`))
	}))
	defer srv.Close()

	sf := NewSiliconFlow(srv.URL, "k", "flux", "vl", "", time.Second, nil)
	require.Equal(t, "https://cdn.example/img.png", sf.SynthesizeImage(context.Background(), "a prism splitting light"))
}

func TestSiliconFlow_SynthesizeFailuresArePlaceholders(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	sf := NewSiliconFlow(srv.URL, "k", "flux", "vl", "", time.Second, nil)
	ref := sf.SynthesizeImage(context.Background(), "x")
	require.Equal(t, PlaceholderError, ref)
	require.True(t, IsPlaceholder(ref))

	sf.APIKey = ""
	require.Equal(t, PlaceholderMissingKey, sf.SynthesizeImage(context.Background(), "x"))
}

func TestSiliconFlow_AnalyzeImageFallsBackToSmallerModel(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		var req sfVisionReq
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		if req.Model == "big" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		assert.True(t, strings.HasPrefix(req.Messages[0].Content[0].ImageURL.URL, "data:image/jpeg;base64,"))
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"a red apple"}}]}`))
	}))
	defer srv.Close()

	path := filepath.Join(t.TempDir(), "apple.jpg")
	require.NoError(t, os.WriteFile(path, []byte("jpeg"), 0o600))

	sf := NewSiliconFlow(srv.URL, "k", "flux", "big", "small", time.Second, nil)
	out := sf.AnalyzeImage(context.Background(), Image{Ref: "/media/apple.jpg", Path: path}, "")
	require.Equal(t, "a red apple", out)
	require.Equal(t, int32(2), calls.Load())
}

func TestSiliconFlow_AnalyzeUnreadable(t *testing.T) {
	sf := NewSiliconFlow("http://127.0.0.1:1", "k", "flux", "vl", "", time.Second, nil)
	require.Equal(t, AnalysisFailed, sf.AnalyzeImage(context.Background(), Image{Ref: "/media/x.jpg"}, ""))
}

func TestPollinations(t *testing.T) {
	p := NewPollinations(&Stub{Analysis: "seen"})
	ref := p.SynthesizeImage(context.Background(), "blue sky")
	require.Equal(t, "https://image.pollinations.ai/prompt/blue%20sky?nologo=true&width=1024&height=1024&model=flux", ref)
	require.Equal(t, PlaceholderError, p.SynthesizeImage(context.Background(), "  "))
	require.Equal(t, "seen", p.AnalyzeImage(context.Background(), Image{}, ""))
	require.Equal(t, AnalysisFailed, NewPollinations(nil).AnalyzeImage(context.Background(), Image{}, ""))
}

package artifact

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"
)

const defaultAnalyzePrompt = "Describe this image in detail and relate it to the conversation."

// SiliconFlow generates images with FLUX and reads uploads with Qwen2-VL.
type SiliconFlow struct {
	BaseURL        string
	APIKey         string
	ImageModel     string
	VisionModel    string
	VisionFallback string
	Timeout        time.Duration
	Client         *http.Client
	Log            *zap.Logger
}

var _ Gateway = (*SiliconFlow)(nil)

func NewSiliconFlow(baseURL, apiKey, imageModel, visionModel, visionFallback string, timeout time.Duration, log *zap.Logger) *SiliconFlow {
	if baseURL == "" {
		baseURL = "https://api.siliconflow.cn/v1"
	}
	if log == nil {
		log = zap.NewNop()
	}
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &SiliconFlow{
		BaseURL:        strings.TrimRight(baseURL, "/"),
		APIKey:         apiKey,
		ImageModel:     imageModel,
		VisionModel:    visionModel,
		VisionFallback: visionFallback,
		Timeout:        timeout,
		Client:         &http.Client{},
		Log:            log,
	}
}

type sfImageReq struct {
	Model     string `json:"model"`
	Prompt    string `json:"prompt"`
	ImageSize string `json:"image_size"`
	Steps     int    `json:"num_inference_steps"`
}

type sfImageResp struct {
	Data []struct {
		URL string `json:"url"`
	} `json:"data"`
}

func (s *SiliconFlow) SynthesizeImage(ctx context.Context, description string) string {
	if strings.TrimSpace(s.APIKey) == "" {
		s.Log.Warn("siliconflow api key not set")
		return PlaceholderMissingKey
	}

	var out sfImageResp
	err := s.post(ctx, "/images/generations", sfImageReq{
		Model:     s.ImageModel,
		Prompt:    description,
		ImageSize: "1024x1024",
		Steps:     20,
	}, &out)
	if err == nil && (len(out.Data) == 0 || out.Data[0].URL == "") {
		err = errors.New("no image in response")
	}
	if err != nil {
		s.Log.Warn("siliconflow image generation failed", zap.Error(err))
		return PlaceholderError
	}
	return out.Data[0].URL
}

type sfContentPart struct {
	Type     string      `json:"type"`
	Text     string      `json:"text,omitempty"`
	ImageURL *sfImageURL `json:"image_url,omitempty"`
}

type sfImageURL struct {
	URL string `json:"url"`
}

type sfVisionMsg struct {
	Role    string          `json:"role"`
	Content []sfContentPart `json:"content"`
}

type sfVisionReq struct {
	Model     string        `json:"model"`
	Messages  []sfVisionMsg `json:"messages"`
	MaxTokens int           `json:"max_tokens"`
}

type sfChatResp struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

func (s *SiliconFlow) AnalyzeImage(ctx context.Context, img Image, prompt string) string {
	if strings.TrimSpace(s.APIKey) == "" {
		s.Log.Warn("siliconflow api key not set")
		return AnalysisFailed
	}

	src, err := imageSource(img)
	if err != nil {
		s.Log.Warn("read uploaded image", zap.String("ref", img.Ref), zap.Error(err))
		return AnalysisFailed
	}
	if strings.TrimSpace(prompt) == "" {
		prompt = defaultAnalyzePrompt
	}

	req := sfVisionReq{
		Model: s.VisionModel,
		Messages: []sfVisionMsg{{
			Role: "user",
			Content: []sfContentPart{
				{Type: "image_url", ImageURL: &sfImageURL{URL: src}},
				{Type: "text", Text: prompt},
			},
		}},
		MaxTokens: 1024,
	}

	var out sfChatResp
	err = s.post(ctx, "/chat/completions", req, &out)
	var se *statusError
	if errors.As(err, &se) && s.VisionFallback != "" && s.VisionFallback != s.VisionModel {
		s.Log.Warn("vision model failed, trying fallback",
			zap.String("model", s.VisionModel), zap.Int("status", se.code))
		req.Model = s.VisionFallback
		out = sfChatResp{}
		err = s.post(ctx, "/chat/completions", req, &out)
	}
	if err == nil && (len(out.Choices) == 0 || strings.TrimSpace(out.Choices[0].Message.Content) == "") {
		err = errors.New("empty vision response")
	}
	if err != nil {
		s.Log.Warn("siliconflow vision failed", zap.Error(err))
		return AnalysisFailed
	}
	return strings.TrimSpace(out.Choices[0].Message.Content)
}

// imageSource returns a data URL for local files, or the remote reference.
func imageSource(img Image) (string, error) {
	if img.Path != "" {
		b, err := os.ReadFile(img.Path)
		if err != nil {
			return "", err
		}
		return "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(b), nil
	}
	if strings.HasPrefix(img.Ref, "http://") || strings.HasPrefix(img.Ref, "https://") {
		return img.Ref, nil
	}
	return "", fmt.Errorf("image %q is not readable", img.Ref)
}

type statusError struct {
	code int
	body string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("siliconflow: status %d: %s", e.code, e.body)
}

func (s *SiliconFlow) post(ctx context.Context, path string, in, out any) error {
	cctx, cancel := context.WithTimeout(ctx, s.Timeout)
	defer cancel()

	b, err := json.Marshal(in)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(cctx, http.MethodPost, s.BaseURL+path, bytes.NewReader(b))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.APIKey)

	resp, err := s.Client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4*1024))
		return &statusError{code: resp.StatusCode, body: strings.TrimSpace(string(body))}
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

package media

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/richinex/strand/model"
)

// DefaultImageModel is the OpenAI image model used when none is configured.
const DefaultImageModel = openai.CreateImageModelDallE3

// Option configures the OpenAI-backed generators.
type Option func(*options)

type options struct {
	baseURL    string
	httpClient *http.Client
}

// WithBaseURL points the client at an OpenAI-compatible endpoint.
func WithBaseURL(url string) Option {
	return func(o *options) { o.baseURL = url }
}

// WithHTTPClient sets the client used for API calls and image downloads.
func WithHTTPClient(c *http.Client) Option {
	return func(o *options) { o.httpClient = c }
}

func newOpenAIClient(apiKey string, opts []Option) (*openai.Client, *http.Client) {
	o := options{httpClient: http.DefaultClient}
	for _, opt := range opts {
		opt(&o)
	}
	config := openai.DefaultConfig(apiKey)
	if o.baseURL != "" {
		config.BaseURL = o.baseURL
	}
	config.HTTPClient = o.httpClient
	return openai.NewClientWithConfig(config), o.httpClient
}

// OpenAIImageGenerator generates images with the OpenAI Images API.
type OpenAIImageGenerator struct {
	client *openai.Client
	http   *http.Client
	model  string
}

// NewOpenAIImageGenerator creates an image generator. An empty model
// selects DefaultImageModel.
func NewOpenAIImageGenerator(apiKey, model string, opts ...Option) *OpenAIImageGenerator {
	if model == "" {
		model = DefaultImageModel
	}
	client, httpClient := newOpenAIClient(apiKey, opts)
	return &OpenAIImageGenerator{client: client, http: httpClient, model: model}
}

// Name returns the provider name.
func (g *OpenAIImageGenerator) Name() string {
	return "openai"
}

// Generate requests the images. dall-e-3 only produces one image per call,
// so larger counts are issued as separate requests.
func (g *OpenAIImageGenerator) Generate(ctx context.Context, prompt string, cfg model.MediaConfig) ([]model.Asset, error) {
	count := imageCount(cfg)
	perCall := count
	calls := 1
	if g.model == openai.CreateImageModelDallE3 {
		perCall, calls = 1, count
	}

	var assets []model.Asset
	for i := 0; i < calls; i++ {
		req := openai.ImageRequest{
			Prompt:  prompt,
			Model:   g.model,
			N:       perCall,
			Size:    g.size(cfg.Size),
			Quality: g.quality(cfg.Quality),
			Style:   g.style(cfg.Style),
		}
		if g.isDallE() {
			req.ResponseFormat = openai.CreateImageResponseFormatB64JSON
		}

		resp, err := g.client.CreateImage(ctx, req)
		if err != nil {
			return assets, fmt.Errorf("openai image generation failed: %w", err)
		}
		for _, item := range resp.Data {
			data, err := g.imageBytes(ctx, item)
			if err != nil {
				return assets, err
			}
			assets = append(assets, model.Asset{
				Kind:          model.AssetImage,
				Data:          data,
				MIMEType:      "image/png",
				Ext:           ".png",
				Prompt:        prompt,
				RevisedPrompt: item.RevisedPrompt,
				Provider:      g.Name(),
				Model:         g.model,
			})
		}
	}
	return assets, nil
}

func (g *OpenAIImageGenerator) imageBytes(ctx context.Context, item openai.ImageResponseDataInner) ([]byte, error) {
	if item.B64JSON != "" {
		data, err := base64.StdEncoding.DecodeString(item.B64JSON)
		if err != nil {
			return nil, fmt.Errorf("failed to decode image: %w", err)
		}
		return data, nil
	}
	if item.URL == "" {
		return nil, ErrNoAssets
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, item.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create image download request: %w", err)
	}
	resp, err := g.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to download image: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("failed to download image: %s", resp.Status)
	}
	return io.ReadAll(resp.Body)
}

func (g *OpenAIImageGenerator) isDallE() bool {
	return strings.HasPrefix(g.model, "dall-e")
}

func (g *OpenAIImageGenerator) size(s string) string {
	switch s {
	case "square", "":
		return openai.CreateImageSize1024x1024
	case "portrait":
		if g.isDallE() {
			return openai.CreateImageSize1024x1792
		}
		return "1024x1536"
	case "landscape":
		if g.isDallE() {
			return openai.CreateImageSize1792x1024
		}
		return "1536x1024"
	default:
		return s
	}
}

func (g *OpenAIImageGenerator) quality(q string) string {
	if q == "" {
		return ""
	}
	if g.model == openai.CreateImageModelDallE3 {
		if q == "hd" || q == "high" {
			return openai.CreateImageQualityHD
		}
		return openai.CreateImageQualityStandard
	}
	return q
}

func (g *OpenAIImageGenerator) style(s string) string {
	if g.model != openai.CreateImageModelDallE3 {
		return ""
	}
	switch s {
	case openai.CreateImageStyleVivid, openai.CreateImageStyleNatural:
		return s
	default:
		return ""
	}
}

// DefaultSpeechModel and DefaultVoice are used when none is configured.
const (
	DefaultSpeechModel = openai.TTSModel1
	DefaultVoice       = openai.VoiceAlloy
)

// OpenAISpeechSynthesizer synthesizes speech with the OpenAI audio API.
type OpenAISpeechSynthesizer struct {
	client *openai.Client
	model  string
	voice  string
}

// NewOpenAISpeechSynthesizer creates a synthesizer. Empty model or voice
// select the defaults.
func NewOpenAISpeechSynthesizer(apiKey, model, voice string, opts ...Option) *OpenAISpeechSynthesizer {
	if model == "" {
		model = string(DefaultSpeechModel)
	}
	if voice == "" {
		voice = string(DefaultVoice)
	}
	client, _ := newOpenAIClient(apiKey, opts)
	return &OpenAISpeechSynthesizer{client: client, model: model, voice: voice}
}

// Name returns the provider name.
func (s *OpenAISpeechSynthesizer) Name() string {
	return "openai"
}

var speechFormats = map[string]string{
	"mp3":  "audio/mpeg",
	"opus": "audio/opus",
	"aac":  "audio/aac",
	"flac": "audio/flac",
	"wav":  "audio/wav",
	"pcm":  "audio/pcm",
}

// Synthesize renders text to audio. Per-call config overrides the
// synthesizer's model and voice.
func (s *OpenAISpeechSynthesizer) Synthesize(ctx context.Context, text string, cfg model.SpeechConfig) (model.Asset, error) {
	if strings.TrimSpace(text) == "" {
		return model.Asset{}, fmt.Errorf("speech text cannot be empty")
	}

	format := strings.ToLower(cfg.Format)
	mime, ok := speechFormats[format]
	if !ok {
		format, mime = "mp3", speechFormats["mp3"]
	}
	modelName := s.model
	if cfg.Model != "" {
		modelName = cfg.Model
	}
	voice := s.voice
	if cfg.Voice != "" {
		voice = strings.ToLower(cfg.Voice)
	}
	speed := cfg.Speed
	if speed != 0 && (speed < 0.25 || speed > 4.0) {
		speed = 1.0
	}

	resp, err := s.client.CreateSpeech(ctx, openai.CreateSpeechRequest{
		Model:          openai.SpeechModel(modelName),
		Input:          text,
		Voice:          openai.SpeechVoice(voice),
		Instructions:   cfg.Instructions,
		ResponseFormat: openai.SpeechResponseFormat(format),
		Speed:          speed,
	})
	if err != nil {
		return model.Asset{}, fmt.Errorf("openai speech synthesis failed: %w", err)
	}
	defer resp.Close()

	data, err := io.ReadAll(resp)
	if err != nil {
		return model.Asset{}, fmt.Errorf("failed to read speech audio: %w", err)
	}
	if len(data) == 0 {
		return model.Asset{}, ErrNoAssets
	}
	return model.Asset{
		Kind:     model.AssetSpeech,
		Data:     data,
		MIMEType: mime,
		Ext:      extFor(mime),
		Prompt:   text,
		Provider: s.Name(),
		Model:    modelName,
	}, nil
}

var (
	_ ImageGenerator    = (*OpenAIImageGenerator)(nil)
	_ SpeechSynthesizer = (*OpenAISpeechSynthesizer)(nil)
)

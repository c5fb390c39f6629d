package media

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"

	"github.com/richinex/strand/model"
)

func TestOpenAIImageGenerator_DallE3SplitsCount(t *testing.T) {
	var requests []map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/images/generations", r.URL.Path)
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		requests = append(requests, body)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"created": 1,
			"data": []any{map[string]any{
				"b64_json":       base64.StdEncoding.EncodeToString([]byte("PNGDATA")),
				"revised_prompt": "a calm lake at dawn",
			}},
		})
	}))
	defer srv.Close()

	g := NewOpenAIImageGenerator("sk-test", "", WithBaseURL(srv.URL))
	assets, err := g.Generate(context.Background(), "lake", model.MediaConfig{Count: 2, Size: "landscape", Quality: "high", Style: "vivid"})
	require.NoError(t, err)
	require.Len(t, assets, 2)
	require.Len(t, requests, 2)

	assert.Equal(t, []byte("PNGDATA"), assets[0].Data)
	assert.Equal(t, model.AssetImage, assets[0].Kind)
	assert.Equal(t, ".png", assets[0].Ext)
	assert.Equal(t, "a calm lake at dawn", assets[0].RevisedPrompt)

	req := requests[0]
	assert.Equal(t, "dall-e-3", req["model"])
	assert.EqualValues(t, 1, req["n"])
	assert.Equal(t, "1792x1024", req["size"])
	assert.Equal(t, "hd", req["quality"])
	assert.Equal(t, "vivid", req["style"])
	assert.Equal(t, "b64_json", req["response_format"])
}

func TestOpenAIImageGenerator_Error(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"message":"content policy","type":"invalid_request_error"}}`))
	}))
	defer srv.Close()

	_, err := NewOpenAIImageGenerator("sk-test", "", WithBaseURL(srv.URL)).Generate(context.Background(), "x", model.MediaConfig{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "content policy")
}

func TestOpenAISpeechSynthesizer(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/audio/speech", r.URL.Path)
		body, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(body, &got))
		w.Header().Set("Content-Type", "audio/wav")
		_, _ = w.Write([]byte("RIFFWAVE"))
	}))
	defer srv.Close()

	s := NewOpenAISpeechSynthesizer("sk-test", "", "", WithBaseURL(srv.URL))
	asset, err := s.Synthesize(context.Background(), "Bonjour", model.SpeechConfig{Voice: "Nova", Format: "wav"})
	require.NoError(t, err)

	assert.Equal(t, []byte("RIFFWAVE"), asset.Data)
	assert.Equal(t, model.AssetSpeech, asset.Kind)
	assert.Equal(t, ".wav", asset.Ext)
	assert.Equal(t, "tts-1", got["model"])
	assert.Equal(t, "nova", got["voice"])
	assert.Equal(t, "wav", got["response_format"])
	assert.Equal(t, "Bonjour", got["input"])

	_, err = s.Synthesize(context.Background(), "  ", model.SpeechConfig{})
	assert.Error(t, err)
}

type fakeImages struct {
	resp   *genai.GenerateImagesResponse
	err    error
	config *genai.GenerateImagesConfig
}

func (f *fakeImages) GenerateImages(_ context.Context, _, _ string, config *genai.GenerateImagesConfig) (*genai.GenerateImagesResponse, error) {
	f.config = config
	return f.resp, f.err
}

func TestGeminiImageGenerator(t *testing.T) {
	api := &fakeImages{resp: &genai.GenerateImagesResponse{GeneratedImages: []*genai.GeneratedImage{
		{Image: &genai.Image{ImageBytes: []byte("jpg"), MIMEType: "image/jpeg"}},
		{RAIFilteredReason: "blocked"},
	}}}
	g := &GeminiImageGenerator{api: api, model: DefaultGeminiImageModel}

	assets, err := g.Generate(context.Background(), "fox", model.MediaConfig{Count: 9, Size: "portrait"})
	require.NoError(t, err)
	require.Len(t, assets, 1)
	assert.Equal(t, ".jpg", assets[0].Ext)
	assert.EqualValues(t, MaxImages, api.config.NumberOfImages)
	assert.Equal(t, "9:16", api.config.AspectRatio)

	api.resp = &genai.GenerateImagesResponse{GeneratedImages: []*genai.GeneratedImage{{RAIFilteredReason: "blocked"}}}
	_, err = g.Generate(context.Background(), "fox", model.MediaConfig{})
	assert.ErrorIs(t, err, ErrNoAssets)

	api.err = errors.New("quota")
	_, err = g.Generate(context.Background(), "fox", model.MediaConfig{})
	assert.ErrorContains(t, err, "quota")
}

func TestExtFor(t *testing.T) {
	assert.Equal(t, ".png", extFor("image/png"))
	assert.Equal(t, ".mp3", extFor("audio/mpeg"))
	assert.Equal(t, ".mp3", extFor("audio/unknown"))
	assert.Equal(t, ".opus", extFor("audio/opus"))
}

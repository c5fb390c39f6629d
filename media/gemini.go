package media

import (
	"context"
	"fmt"

	"google.golang.org/genai"

	"github.com/richinex/strand/model"
)

// DefaultGeminiImageModel is the Imagen model used when none is configured.
const DefaultGeminiImageModel = "imagen-3.0-generate-002"

// imagesAPI is the slice of genai.Models the generator uses.
type imagesAPI interface {
	GenerateImages(ctx context.Context, model, prompt string, config *genai.GenerateImagesConfig) (*genai.GenerateImagesResponse, error)
}

// GeminiImageGenerator generates images with Imagen through the Gemini API.
type GeminiImageGenerator struct {
	api   imagesAPI
	model string
}

// NewGeminiImageGenerator creates a generator on an existing genai client.
func NewGeminiImageGenerator(client *genai.Client, model string) *GeminiImageGenerator {
	if model == "" {
		model = DefaultGeminiImageModel
	}
	return &GeminiImageGenerator{api: client.Models, model: model}
}

// Name returns the provider name.
func (g *GeminiImageGenerator) Name() string {
	return "gemini"
}

// Generate requests the images. Images withheld by safety filters are
// skipped; if every image was withheld the filter reason is returned.
func (g *GeminiImageGenerator) Generate(ctx context.Context, prompt string, cfg model.MediaConfig) ([]model.Asset, error) {
	resp, err := g.api.GenerateImages(ctx, g.model, prompt, &genai.GenerateImagesConfig{
		NumberOfImages: int32(imageCount(cfg)),
		AspectRatio:    aspectRatio(cfg.Size),
		OutputMIMEType: "image/png",
	})
	if err != nil {
		return nil, fmt.Errorf("gemini image generation failed: %w", err)
	}

	var assets []model.Asset
	filtered := ""
	for _, img := range resp.GeneratedImages {
		if img == nil || img.Image == nil || len(img.Image.ImageBytes) == 0 {
			if img != nil && img.RAIFilteredReason != "" {
				filtered = img.RAIFilteredReason
			}
			continue
		}
		mime := img.Image.MIMEType
		if mime == "" {
			mime = "image/png"
		}
		assets = append(assets, model.Asset{
			Kind:          model.AssetImage,
			Data:          img.Image.ImageBytes,
			MIMEType:      mime,
			Ext:           extFor(mime),
			Prompt:        prompt,
			RevisedPrompt: img.EnhancedPrompt,
			Provider:      g.Name(),
			Model:         g.model,
		})
	}
	if len(assets) == 0 && filtered != "" {
		return nil, fmt.Errorf("%w: %s", ErrNoAssets, filtered)
	}
	return assets, nil
}

// aspectRatio maps size names and pixel sizes to Imagen aspect ratios.
func aspectRatio(size string) string {
	switch size {
	case "portrait", "1024x1792", "1024x1536":
		return "9:16"
	case "landscape", "1792x1024", "1536x1024":
		return "16:9"
	case "1:1", "3:4", "4:3", "9:16", "16:9":
		return size
	default:
		return "1:1"
	}
}

var _ ImageGenerator = (*GeminiImageGenerator)(nil)

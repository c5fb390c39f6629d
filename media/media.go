// Package media generates images and speech for the engine's media and
// speech steps.
//
// Information Hiding:
// - Provider SDK request shapes hidden
// - Base64 and binary payload decoding hidden
// - Size, quality and voice normalization hidden
package media

import (
	"context"
	"errors"
	"strings"

	"github.com/richinex/strand/model"
)

// ErrNoAssets is returned when a provider answered without any usable asset.
var ErrNoAssets = errors.New("provider returned no assets")

// MaxImages caps how many images one request may ask for.
const MaxImages = 4

// ImageGenerator turns a prompt into zero or more images.
type ImageGenerator interface {
	Name() string
	Generate(ctx context.Context, prompt string, cfg model.MediaConfig) ([]model.Asset, error)
}

// SpeechSynthesizer turns text into one audio asset.
type SpeechSynthesizer interface {
	Name() string
	Synthesize(ctx context.Context, text string, cfg model.SpeechConfig) (model.Asset, error)
}

// imageCount clamps the requested count to [1, MaxImages].
func imageCount(cfg model.MediaConfig) int {
	switch {
	case cfg.Count <= 0:
		return 1
	case cfg.Count > MaxImages:
		return MaxImages
	default:
		return cfg.Count
	}
}

// extFor maps a MIME type to a file extension.
func extFor(mime string) string {
	switch strings.ToLower(mime) {
	case "image/jpeg", "image/jpg":
		return ".jpg"
	case "image/webp":
		return ".webp"
	case "audio/mpeg", "audio/mp3":
		return ".mp3"
	case "audio/wav", "audio/x-wav":
		return ".wav"
	case "audio/opus", "audio/ogg":
		return ".opus"
	case "audio/aac":
		return ".aac"
	case "audio/flac":
		return ".flac"
	case "audio/pcm", "audio/l16":
		return ".pcm"
	default:
		if strings.HasPrefix(mime, "audio/") {
			return ".mp3"
		}
		return ".png"
	}
}

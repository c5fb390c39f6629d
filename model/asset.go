package model

// AssetKind classifies a generated asset.
type AssetKind string

const (
	AssetImage  AssetKind = "image"
	AssetSpeech AssetKind = "speech"
)

// Asset is one generated media file, held in memory until it is stored.
type Asset struct {
	Kind     AssetKind
	Data     []byte
	MIMEType string
	// Ext is the file extension including the dot, e.g. ".png".
	Ext string
	// Prompt is the text the asset was generated from.
	Prompt string
	// RevisedPrompt is the provider's rewrite of Prompt, when it reports one.
	RevisedPrompt string
	Provider      string
	Model         string
	// RunID ties the asset to the run that produced it.
	RunID string
}

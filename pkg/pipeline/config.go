package pipeline

import "github.com/aretw0/moments/pkg/ports"

// Identifiers registered by the pipeline.
const (
	StickerSourceID              = "moments.stickers"
	StickerLibraryEntryID        = "moments.stickers.entry"
	BackgroundRemovalComponentID = "moments.background-removal.control"
)

// Config drives the pipeline steps.
type Config struct {
	BaseURL          string        `yaml:"base_url"`
	ExcludeSourceIDs []string      `yaml:"exclude_source_ids"`
	StickerTitle     string        `yaml:"sticker_title"`
	Stickers         []ports.Asset `yaml:"stickers"`
	DockOrder        []string      `yaml:"dock_order"`
	CanvasMenuOrder  []string      `yaml:"canvas_menu_order"`
	InspectorBar     []string      `yaml:"inspector_bar"`
}

// DefaultConfig returns the branded Moments setup.
func DefaultConfig() Config {
	return Config{
		ExcludeSourceIDs: []string{"moments.templates", "moments.typeface"},
		StickerTitle:     "Moments",
		Stickers: []ports.Asset{
			{ID: "moments-heart", Label: "Heart", URI: "stickers/heart.svg", MimeType: "image/svg+xml", Tags: []string{"moments"}},
			{ID: "moments-star", Label: "Star", URI: "stickers/star.svg", MimeType: "image/svg+xml", Tags: []string{"moments"}},
			{ID: "moments-badge", Label: "Badge", URI: "stickers/badge.svg", MimeType: "image/svg+xml", Tags: []string{"moments"}},
		},
		DockOrder: []string{
			ports.ImageUploadSourceID,
			StickerLibraryEntryID,
			"moments.text",
			"moments.shapes",
		},
		CanvasMenuOrder: []string{"duplicate", "delete", "bringForward", "sendBackward"},
		InspectorBar:    []string{"crop", "filters", "adjustments", BackgroundRemovalComponentID},
	}
}

package pipeline

// BackgroundRemoval is the plugin that cuts the subject out of an image block.
type BackgroundRemoval struct{}

// Name implements ports.Plugin.
func (BackgroundRemoval) Name() string { return "moments.background-removal" }

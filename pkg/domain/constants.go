package domain

import "time"

// Policy defaults. Hosts may override them through options; they are not invariants.
const (
	// DefaultStalenessThreshold is the age after which a draft is discarded without prompting.
	DefaultStalenessThreshold = 24 * time.Hour

	// DefaultAutosaveDebounce is the quiet period after the last scene mutation before an autosave runs.
	DefaultAutosaveDebounce = 2 * time.Second
)

// Raster bounds applied by the device profile resolver.
const (
	MobileMaxRasterDimension  = 2048
	DesktopMaxRasterDimension = 4096
)

// Namespaces of persisted draft keys. Neither prefix is a prefix of the other,
// so an image key can never spell a video key.
const (
	DraftKeyPrefix      = "moment-draft-"
	VideoDraftKeyPrefix = "moment-video-draft-"
)

package ports

import (
	"context"

	"github.com/aretw0/moments/pkg/domain"
)

// BlockID identifies a node of the engine scene graph.
type BlockID int64

// SceneMode is the engine's scene flavour.
type SceneMode string

const (
	SceneModeDesign SceneMode = "Design"
	SceneModeVideo  SceneMode = "Video"
)

// Size is a width/height pair in scene design units.
type Size struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// LayoutMode selects how size and position values are interpreted.
type LayoutMode string

const (
	LayoutAbsolute LayoutMode = "Absolute"
	LayoutPercent  LayoutMode = "Percent"
	LayoutAuto     LayoutMode = "Auto"
)

// EngineConfig is passed to the engine on creation.
type EngineConfig struct {
	License            string
	BaseURL            string
	UserID             string
	Role               string
	MaxRasterDimension int
}

// EngineFactory instantiates Capability Engines.
type EngineFactory interface {
	// SupportsVideo reports whether the runtime can host a video scene.
	// It is answered before any engine is created.
	SupportsVideo() bool

	// Create instantiates an engine bound to the view anchor.
	Create(ctx context.Context, anchor string, cfg EngineConfig) (Engine, error)
}

// SceneSerializer serializes the active scene.
type SceneSerializer interface {
	SaveToString(ctx context.Context) (string, error)
}

// SceneLoader replaces the active scene with serialized content.
type SceneLoader interface {
	LoadFromString(ctx context.Context, content string) error
}

// SceneAPI manages the engine's root document.
type SceneAPI interface {
	SceneSerializer
	SceneLoader

	CreateImageScene(ctx context.Context) (BlockID, error)
	CreateVideoScene(ctx context.Context) (BlockID, error)

	// Active returns the current scene, if any.
	Active() (BlockID, bool)
	Mode() SceneMode

	// CanvasSize returns the size of the current page of scene.
	CanvasSize(scene BlockID) (Size, error)
}

// MediaSpec describes media to insert as a block.
type MediaSpec struct {
	URL  string
	Kind domain.MediaType
}

// BlockAPI exposes block primitives.
type BlockAPI interface {
	// InsertMedia creates a media block under parent (a scene inserts on its
	// first page). The new block has no defined size until SetSize is called.
	InsertMedia(ctx context.Context, parent BlockID, media MediaSpec) (BlockID, error)
	SetSize(id BlockID, size Size, mode LayoutMode) error
	SetPosition(id BlockID, x, y float64, mode LayoutMode) error
	SendToBack(id BlockID) error
}

// DefaultAssetConfig configures the built-in catalog.
type DefaultAssetConfig struct {
	BaseURL          string
	ExcludeSourceIDs []string
}

// DemoAssetConfig configures the secondary demo catalog.
type DemoAssetConfig struct {
	BaseURL                string
	SceneMode              SceneMode
	WithUploadAssetSources bool
}

// Asset is an entry of an asset source.
type Asset struct {
	ID       string   `json:"id"`
	Label    string   `json:"label"`
	URI      string   `json:"uri"`
	ThumbURI string   `json:"thumb_uri,omitempty"`
	MimeType string   `json:"mime_type,omitempty"`
	Tags     []string `json:"tags,omitempty"`
}

// Upload sources created by AddDemoAssetSources when WithUploadAssetSources is set.
const (
	ImageUploadSourceID = "moments.image.upload"
	VideoUploadSourceID = "moments.video.upload"
)

// UploadSourceID returns the upload source receiving user files for mode.
func UploadSourceID(mode SceneMode) string {
	if mode == SceneModeVideo {
		return VideoUploadSourceID
	}
	return ImageUploadSourceID
}

// AssetAPI registers asset catalogs.
type AssetAPI interface {
	AddDefaultAssetSources(ctx context.Context, cfg DefaultAssetConfig) error
	AddDemoAssetSources(ctx context.Context, cfg DemoAssetConfig) error
	AddLocalSource(ctx context.Context, sourceID string) error
	AddAssetToSource(ctx context.Context, sourceID string, asset Asset) error
}

// Plugin augments the engine.
type Plugin interface {
	Name() string
}

// PluginHost accepts plugins.
type PluginHost interface {
	AddPlugin(ctx context.Context, plugin Plugin) error
}

// ActionHandler is invoked when a named action runs.
type ActionHandler func(ctx context.Context, args map[string]any) error

// ActionAPI binds named commands to handlers.
type ActionAPI interface {
	RegisterAction(name string, handler ActionHandler) error
	RunAction(ctx context.Context, name string, args map[string]any) error
}

// Unsubscribe releases an event subscription.
type Unsubscribe func()

// BlockEventType is the kind of block mutation.
type BlockEventType string

const (
	BlockCreated   BlockEventType = "created"
	BlockUpdated   BlockEventType = "updated"
	BlockDestroyed BlockEventType = "destroyed"
)

// BlockEvent reports one block mutation.
type BlockEvent struct {
	Block BlockID
	Type  BlockEventType
}

// EventAPI streams block mutations.
type EventAPI interface {
	// Subscribe delivers events for the blocks in filter; an empty filter means all blocks.
	Subscribe(filter []BlockID, handler func([]BlockEvent)) Unsubscribe
}

// HistoryAPI exposes the engine's undo history.
type HistoryAPI interface {
	OnUpdated(handler func()) Unsubscribe
	CanUndo() bool
	CanRedo() bool
	Undo() error
	Redo() error
}

// LibraryEntry is a section of the asset library panel.
type LibraryEntry struct {
	ID        string
	Title     string
	SourceIDs []string
}

// UIAPI customizes the engine's editor chrome.
type UIAPI interface {
	SetDockOrder(ids []string) error
	SetCanvasMenuOrder(ids []string) error
	SetInspectorBar(ids []string) error
	AddAssetLibraryEntry(entry LibraryEntry) error
	MountComponent(id, location string) error
}

// Exporter renders the current page to an encoded blob.
type Exporter interface {
	Export(ctx context.Context, mimeType string) ([]byte, error)
}

// Engine is a Capability Engine instance.
// It is exclusively owned by the session controller; other components receive
// only the narrow views above.
type Engine interface {
	PluginHost
	Exporter

	Scene() SceneAPI
	Block() BlockAPI
	Assets() AssetAPI
	Actions() ActionAPI
	Events() EventAPI
	History() HistoryAPI
	UI() UIAPI

	ApplyTheme(ctx context.Context, theme domain.Theme) error

	// Dispose releases the engine. Calling it twice is a programming error.
	Dispose()
}

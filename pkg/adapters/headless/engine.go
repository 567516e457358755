package headless

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/aretw0/moments/pkg/domain"
	"github.com/aretw0/moments/pkg/ports"
)

// Operation names accepted by FailOn / PanicOn and recorded by Calls.
const (
	OpApplyTheme             = "ApplyTheme"
	OpCreateImageScene       = "CreateImageScene"
	OpCreateVideoScene       = "CreateVideoScene"
	OpSaveToString           = "SaveToString"
	OpLoadFromString         = "LoadFromString"
	OpInsertMedia            = "InsertMedia"
	OpAddDefaultAssetSources = "AddDefaultAssetSources"
	OpAddDemoAssetSources    = "AddDemoAssetSources"
	OpAddLocalSource         = "AddLocalSource"
	OpAddAssetToSource       = "AddAssetToSource"
	OpAddPlugin              = "AddPlugin"
	OpSetDockOrder           = "SetDockOrder"
	OpSetCanvasMenuOrder     = "SetCanvasMenuOrder"
	OpSetInspectorBar        = "SetInspectorBar"
	OpAddAssetLibraryEntry   = "AddAssetLibraryEntry"
	OpMountComponent         = "MountComponent"
	OpExport                 = "Export"
	OpDispose                = "Dispose"
)

// Default page sizes per scene mode.
var (
	ImagePageSize = ports.Size{Width: 1080, Height: 1080}
	VideoPageSize = ports.Size{Width: 1080, Height: 1920}
)

// Block is a node of the headless scene graph.
type Block struct {
	ID       ports.BlockID    `json:"id"`
	Type     string           `json:"type"`
	Parent   ports.BlockID    `json:"parent,omitempty"`
	Children []ports.BlockID  `json:"children,omitempty"`
	URL      string           `json:"url,omitempty"`
	Size     ports.Size       `json:"size"`
	SizeMode ports.LayoutMode `json:"size_mode,omitempty"`
	X        float64          `json:"x"`
	Y        float64          `json:"y"`
	PosMode  ports.LayoutMode `json:"pos_mode,omitempty"`
}

// document is the serialized form of a scene.
type document struct {
	Version int                      `json:"version"`
	Mode    ports.SceneMode          `json:"mode"`
	Scene   ports.BlockID            `json:"scene"`
	NextID  ports.BlockID            `json:"next_id"`
	Blocks  map[ports.BlockID]*Block `json:"blocks"`
}

func (d *document) clone() *document {
	if d == nil {
		return nil
	}
	c := &document{Version: d.Version, Mode: d.Mode, Scene: d.Scene, NextID: d.NextID, Blocks: make(map[ports.BlockID]*Block, len(d.Blocks))}
	for id, b := range d.Blocks {
		cb := *b
		cb.Children = slices.Clone(b.Children)
		c.Blocks[id] = &cb
	}
	return c
}

// UIState is a snapshot of the editor chrome customization.
type UIState struct {
	Dock       []string
	CanvasMenu []string
	Inspector  []string
	Library    []ports.LibraryEntry
	Components map[string]string
}

type eventSub struct {
	filter  []ports.BlockID
	handler func([]ports.BlockEvent)
}

// Engine is an in-memory Capability Engine.
// It keeps a real scene graph with undo history and emits block and history events,
// which makes it usable both as a reference runtime and as a test double.
type Engine struct {
	mu sync.Mutex

	anchor string
	cfg    ports.EngineConfig
	theme  domain.Theme

	doc  *document
	undo []*document
	redo []*document

	defaultSources *ports.DefaultAssetConfig
	demoSources    *ports.DemoAssetConfig
	sources        map[string][]ports.Asset
	plugins        []string
	ui             UIState
	actions        map[string]ports.ActionHandler

	nextSub     int
	eventSubs   map[int]eventSub
	historySubs map[int]func()

	calls    []string
	failures map[string]error
	panics   map[string]bool
	disposed int
}

func newEngine(anchor string, cfg ports.EngineConfig) *Engine {
	return &Engine{
		anchor:      anchor,
		cfg:         cfg,
		sources:     make(map[string][]ports.Asset),
		actions:     make(map[string]ports.ActionHandler),
		eventSubs:   make(map[int]eventSub),
		historySubs: make(map[int]func()),
		failures:    make(map[string]error),
		panics:      make(map[string]bool),
		ui:          UIState{Components: make(map[string]string)},
	}
}

// FailOn makes the named operation return err from now on. A nil err clears it.
func (e *Engine) FailOn(op string, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err == nil {
		delete(e.failures, op)
		return
	}
	e.failures[op] = err
}

// PanicOn makes the named operation panic.
func (e *Engine) PanicOn(op string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.panics[op] = true
}

// enter records a call and applies injected failures. Callers hold e.mu.
func (e *Engine) enter(op string) error {
	e.calls = append(e.calls, op)
	if e.panics[op] {
		panic(fmt.Sprintf("headless: injected panic in %s", op))
	}
	if e.disposed > 0 && op != OpDispose {
		return fmt.Errorf("headless: %s on disposed engine", op)
	}
	return e.failures[op]
}

// Calls returns the operations invoked so far, in order.
func (e *Engine) Calls() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return slices.Clone(e.calls)
}

// CallCount returns how often op was invoked.
func (e *Engine) CallCount(op string) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	n := 0
	for _, c := range e.calls {
		if c == op {
			n++
		}
	}
	return n
}

// DisposeCount returns how often Dispose was called.
func (e *Engine) DisposeCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.disposed
}

// Subscribers returns the number of live event and history subscriptions.
func (e *Engine) Subscribers() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.eventSubs) + len(e.historySubs)
}

// Config returns the creation config.
func (e *Engine) Config() ports.EngineConfig { return e.cfg }

// Anchor returns the view anchor the engine was bound to.
func (e *Engine) Anchor() string { return e.anchor }

// Theme returns the applied theme.
func (e *Engine) Theme() domain.Theme {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.theme
}

// Plugins returns registered plugin names.
func (e *Engine) Plugins() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return slices.Clone(e.plugins)
}

// Sources returns assets per local source.
func (e *Engine) Sources() map[string][]ports.Asset {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make(map[string][]ports.Asset, len(e.sources))
	for k, v := range e.sources {
		out[k] = slices.Clone(v)
	}
	return out
}

// DemoSources returns the demo catalog config, if registered.
func (e *Engine) DemoSources() *ports.DemoAssetConfig {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.demoSources
}

// UI returns a snapshot of the chrome customization.
func (e *Engine) UIState() UIState {
	e.mu.Lock()
	defer e.mu.Unlock()
	s := UIState{
		Dock:       slices.Clone(e.ui.Dock),
		CanvasMenu: slices.Clone(e.ui.CanvasMenu),
		Inspector:  slices.Clone(e.ui.Inspector),
		Library:    slices.Clone(e.ui.Library),
		Components: make(map[string]string, len(e.ui.Components)),
	}
	for k, v := range e.ui.Components {
		s.Components[k] = v
	}
	return s
}

// BlockByID returns a copy of a block.
func (e *Engine) BlockByID(id ports.BlockID) (Block, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.doc == nil {
		return Block{}, false
	}
	b, ok := e.doc.Blocks[id]
	if !ok {
		return Block{}, false
	}
	c := *b
	c.Children = slices.Clone(b.Children)
	return c, true
}

// Page returns the first page of the scene.
func (e *Engine) Page() (Block, bool) {
	e.mu.Lock()
	id, ok := e.pageLocked()
	e.mu.Unlock()
	if !ok {
		return Block{}, false
	}
	return e.BlockByID(id)
}

func (e *Engine) pageLocked() (ports.BlockID, bool) {
	if e.doc == nil {
		return 0, false
	}
	scene := e.doc.Blocks[e.doc.Scene]
	if scene == nil || len(scene.Children) == 0 {
		return 0, false
	}
	return scene.Children[0], true
}

// Scene implements ports.Engine.
func (e *Engine) Scene() ports.SceneAPI { return sceneAPI{e} }

// Block implements ports.Engine.
func (e *Engine) Block() ports.BlockAPI { return blockAPI{e} }

// Assets implements ports.Engine.
func (e *Engine) Assets() ports.AssetAPI { return assetAPI{e} }

// Actions implements ports.Engine.
func (e *Engine) Actions() ports.ActionAPI { return actionAPI{e} }

// Events implements ports.Engine.
func (e *Engine) Events() ports.EventAPI { return eventAPI{e} }

// History implements ports.Engine.
func (e *Engine) History() ports.HistoryAPI { return historyAPI{e} }

// UI implements ports.Engine.
func (e *Engine) UI() ports.UIAPI { return uiAPI{e} }

// ApplyTheme implements ports.Engine.
func (e *Engine) ApplyTheme(ctx context.Context, theme domain.Theme) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.enter(OpApplyTheme); err != nil {
		return err
	}
	e.theme = theme
	return nil
}

// AddPlugin implements ports.PluginHost.
func (e *Engine) AddPlugin(ctx context.Context, plugin ports.Plugin) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.enter(OpAddPlugin); err != nil {
		return err
	}
	e.plugins = append(e.plugins, plugin.Name())
	return nil
}

// Export implements ports.Exporter. The blob is a deterministic digest of the scene.
func (e *Engine) Export(ctx context.Context, mimeType string) ([]byte, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.enter(OpExport); err != nil {
		return nil, err
	}
	if e.doc == nil {
		return nil, domain.ErrNoActiveScene
	}
	raw, err := json.Marshal(e.doc)
	if err != nil {
		return nil, err
	}
	sum := sha256.Sum256(raw)
	return []byte(mimeType + ";" + hex.EncodeToString(sum[:])), nil
}

// Dispose implements ports.Engine. It is counted rather than guarded so tests can
// detect double disposal.
func (e *Engine) Dispose() {
	e.mu.Lock()
	defer e.mu.Unlock()
	_ = e.enter(OpDispose)
	e.disposed++
	e.eventSubs = make(map[int]eventSub)
	e.historySubs = make(map[int]func())
}

// mutate applies fn to the document as one undoable step and emits events.
func (e *Engine) mutate(op string, fn func(d *document) ([]ports.BlockEvent, error)) error {
	subs, hist, events, err := func() ([]func(), []func(), []ports.BlockEvent, error) {
		e.mu.Lock()
		defer e.mu.Unlock()
		if err := e.enter(op); err != nil {
			return nil, nil, nil, err
		}
		if e.doc == nil {
			return nil, nil, nil, domain.ErrNoActiveScene
		}
		before := e.doc.clone()
		events, err := fn(e.doc)
		if err != nil {
			e.doc = before
			return nil, nil, nil, err
		}
		e.undo = append(e.undo, before)
		e.redo = nil
		subs, hist := e.subscribersLocked(events)
		return subs, hist, events, nil
	}()
	if err != nil {
		return err
	}
	dispatch(subs, hist, events)
	return nil
}

func (e *Engine) subscribersLocked(events []ports.BlockEvent) ([]func(), []func()) {
	var subs []func()
	for _, s := range e.eventSubs {
		matched := matching(s.filter, events)
		if len(matched) == 0 {
			continue
		}
		h := s.handler
		subs = append(subs, func() { h(matched) })
	}
	var hist []func()
	for _, h := range e.historySubs {
		hist = append(hist, h)
	}
	return subs, hist
}

func matching(filter []ports.BlockID, events []ports.BlockEvent) []ports.BlockEvent {
	if len(filter) == 0 {
		return events
	}
	var out []ports.BlockEvent
	for _, ev := range events {
		if slices.Contains(filter, ev.Block) {
			out = append(out, ev)
		}
	}
	return out
}

// dispatch runs handlers outside the engine lock so they may call back into the engine.
func dispatch(subs, hist []func(), _ []ports.BlockEvent) {
	for _, h := range hist {
		h()
	}
	for _, s := range subs {
		s()
	}
}

func (e *Engine) newScene(op string, mode ports.SceneMode, size ports.Size) (ports.BlockID, error) {
	var scene ports.BlockID
	subs, hist, events, err := func() ([]func(), []func(), []ports.BlockEvent, error) {
		e.mu.Lock()
		defer e.mu.Unlock()
		if err := e.enter(op); err != nil {
			return nil, nil, nil, err
		}
		if e.doc != nil {
			return nil, nil, nil, errors.New("headless: scene already exists")
		}
		d := &document{Version: 1, Mode: mode, NextID: 1, Blocks: make(map[ports.BlockID]*Block)}
		scene = d.add(&Block{Type: "scene", Size: size})
		page := d.add(&Block{Type: "page", Parent: scene, Size: size})
		d.Blocks[scene].Children = []ports.BlockID{page}
		d.Scene = scene
		e.doc = d
		events := []ports.BlockEvent{{Block: scene, Type: ports.BlockCreated}, {Block: page, Type: ports.BlockCreated}}
		subs, hist := e.subscribersLocked(events)
		return subs, hist, events, nil
	}()
	if err != nil {
		return 0, err
	}
	dispatch(subs, hist, events)
	return scene, nil
}

func (d *document) add(b *Block) ports.BlockID {
	b.ID = d.NextID
	d.NextID++
	d.Blocks[b.ID] = b
	return b.ID
}

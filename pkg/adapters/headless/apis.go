package headless

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"

	"github.com/aretw0/moments/pkg/domain"
	"github.com/aretw0/moments/pkg/ports"
)

type sceneAPI struct{ e *Engine }

func (s sceneAPI) CreateImageScene(ctx context.Context) (ports.BlockID, error) {
	return s.e.newScene(OpCreateImageScene, ports.SceneModeDesign, ImagePageSize)
}

func (s sceneAPI) CreateVideoScene(ctx context.Context) (ports.BlockID, error) {
	return s.e.newScene(OpCreateVideoScene, ports.SceneModeVideo, VideoPageSize)
}

func (s sceneAPI) Active() (ports.BlockID, bool) {
	s.e.mu.Lock()
	defer s.e.mu.Unlock()
	if s.e.doc == nil {
		return 0, false
	}
	return s.e.doc.Scene, true
}

func (s sceneAPI) Mode() ports.SceneMode {
	s.e.mu.Lock()
	defer s.e.mu.Unlock()
	if s.e.doc == nil {
		return ""
	}
	return s.e.doc.Mode
}

func (s sceneAPI) CanvasSize(scene ports.BlockID) (ports.Size, error) {
	s.e.mu.Lock()
	defer s.e.mu.Unlock()
	if s.e.doc == nil || s.e.doc.Scene != scene {
		return ports.Size{}, domain.ErrNoActiveScene
	}
	page, ok := s.e.pageLocked()
	if !ok {
		return ports.Size{}, domain.ErrNoActiveScene
	}
	return s.e.doc.Blocks[page].Size, nil
}

func (s sceneAPI) SaveToString(ctx context.Context) (string, error) {
	s.e.mu.Lock()
	defer s.e.mu.Unlock()
	if err := s.e.enter(OpSaveToString); err != nil {
		return "", err
	}
	if s.e.doc == nil {
		return "", domain.ErrNoActiveScene
	}
	raw, err := json.Marshal(s.e.doc)
	if err != nil {
		return "", fmt.Errorf("headless: serialize scene: %w", err)
	}
	return string(raw), nil
}

// LoadFromString replaces the scene and resets history.
func (s sceneAPI) LoadFromString(ctx context.Context, content string) error {
	var d document
	if err := json.Unmarshal([]byte(content), &d); err != nil {
		return fmt.Errorf("headless: parse scene: %w", err)
	}
	if d.Blocks == nil || d.Blocks[d.Scene] == nil {
		return errors.New("headless: scene document has no root")
	}

	e := s.e
	subs, hist, events, err := func() ([]func(), []func(), []ports.BlockEvent, error) {
		e.mu.Lock()
		defer e.mu.Unlock()
		if err := e.enter(OpLoadFromString); err != nil {
			return nil, nil, nil, err
		}
		var events []ports.BlockEvent
		if e.doc != nil {
			for id := range e.doc.Blocks {
				events = append(events, ports.BlockEvent{Block: id, Type: ports.BlockDestroyed})
			}
		}
		for id := range d.Blocks {
			events = append(events, ports.BlockEvent{Block: id, Type: ports.BlockCreated})
		}
		e.doc = &d
		e.undo, e.redo = nil, nil
		subs, hist := e.subscribersLocked(events)
		return subs, hist, events, nil
	}()
	if err != nil {
		return err
	}
	dispatch(subs, hist, events)
	return nil
}

type blockAPI struct{ e *Engine }

// InsertMedia places a media block on the first page when parent is the scene.
func (b blockAPI) InsertMedia(ctx context.Context, parent ports.BlockID, media ports.MediaSpec) (ports.BlockID, error) {
	var created ports.BlockID
	err := b.e.mutate(OpInsertMedia, func(d *document) ([]ports.BlockEvent, error) {
		if parent == d.Scene {
			scene := d.Blocks[d.Scene]
			if len(scene.Children) == 0 {
				return nil, domain.ErrNoActiveScene
			}
			parent = scene.Children[0]
		}
		p, ok := d.Blocks[parent]
		if !ok {
			return nil, fmt.Errorf("headless: unknown parent block %d", parent)
		}
		kind := media.Kind.String()
		if kind == "" {
			kind = domain.MediaImage.String()
		}
		created = d.add(&Block{Type: kind, Parent: parent, URL: media.URL, SizeMode: ports.LayoutAuto, PosMode: ports.LayoutAuto})
		p.Children = append(p.Children, created)
		return []ports.BlockEvent{{Block: created, Type: ports.BlockCreated}, {Block: parent, Type: ports.BlockUpdated}}, nil
	})
	return created, err
}

func (b blockAPI) SetSize(id ports.BlockID, size ports.Size, mode ports.LayoutMode) error {
	return b.e.mutate("SetSize", func(d *document) ([]ports.BlockEvent, error) {
		blk, ok := d.Blocks[id]
		if !ok {
			return nil, fmt.Errorf("headless: unknown block %d", id)
		}
		blk.Size, blk.SizeMode = size, mode
		return []ports.BlockEvent{{Block: id, Type: ports.BlockUpdated}}, nil
	})
}

func (b blockAPI) SetPosition(id ports.BlockID, x, y float64, mode ports.LayoutMode) error {
	return b.e.mutate("SetPosition", func(d *document) ([]ports.BlockEvent, error) {
		blk, ok := d.Blocks[id]
		if !ok {
			return nil, fmt.Errorf("headless: unknown block %d", id)
		}
		blk.X, blk.Y, blk.PosMode = x, y, mode
		return []ports.BlockEvent{{Block: id, Type: ports.BlockUpdated}}, nil
	})
}

func (b blockAPI) SendToBack(id ports.BlockID) error {
	return b.e.mutate("SendToBack", func(d *document) ([]ports.BlockEvent, error) {
		blk, ok := d.Blocks[id]
		if !ok {
			return nil, fmt.Errorf("headless: unknown block %d", id)
		}
		p, ok := d.Blocks[blk.Parent]
		if !ok {
			return nil, fmt.Errorf("headless: block %d has no parent", id)
		}
		idx := slices.Index(p.Children, id)
		p.Children = slices.Delete(p.Children, idx, idx+1)
		p.Children = slices.Insert(p.Children, 0, id)
		return []ports.BlockEvent{{Block: blk.Parent, Type: ports.BlockUpdated}}, nil
	})
}

type assetAPI struct{ e *Engine }

func (a assetAPI) AddDefaultAssetSources(ctx context.Context, cfg ports.DefaultAssetConfig) error {
	a.e.mu.Lock()
	defer a.e.mu.Unlock()
	if err := a.e.enter(OpAddDefaultAssetSources); err != nil {
		return err
	}
	a.e.defaultSources = &cfg
	return nil
}

func (a assetAPI) AddDemoAssetSources(ctx context.Context, cfg ports.DemoAssetConfig) error {
	a.e.mu.Lock()
	defer a.e.mu.Unlock()
	if err := a.e.enter(OpAddDemoAssetSources); err != nil {
		return err
	}
	a.e.demoSources = &cfg
	if cfg.WithUploadAssetSources {
		for _, id := range []string{ports.ImageUploadSourceID, ports.UploadSourceID(cfg.SceneMode)} {
			if _, ok := a.e.sources[id]; !ok {
				a.e.sources[id] = nil
			}
		}
	}
	return nil
}

func (a assetAPI) AddLocalSource(ctx context.Context, sourceID string) error {
	a.e.mu.Lock()
	defer a.e.mu.Unlock()
	if err := a.e.enter(OpAddLocalSource); err != nil {
		return err
	}
	if _, ok := a.e.sources[sourceID]; ok {
		return fmt.Errorf("headless: asset source %q already exists", sourceID)
	}
	a.e.sources[sourceID] = nil
	return nil
}

func (a assetAPI) AddAssetToSource(ctx context.Context, sourceID string, asset ports.Asset) error {
	a.e.mu.Lock()
	defer a.e.mu.Unlock()
	if err := a.e.enter(OpAddAssetToSource); err != nil {
		return err
	}
	if _, ok := a.e.sources[sourceID]; !ok {
		return fmt.Errorf("headless: unknown asset source %q", sourceID)
	}
	a.e.sources[sourceID] = append(a.e.sources[sourceID], asset)
	return nil
}

type actionAPI struct{ e *Engine }

func (a actionAPI) RegisterAction(name string, handler ports.ActionHandler) error {
	a.e.mu.Lock()
	defer a.e.mu.Unlock()
	a.e.calls = append(a.e.calls, "RegisterAction:"+name)
	a.e.actions[name] = handler
	return nil
}

// RunAction invokes the bound handler outside the engine lock.
func (a actionAPI) RunAction(ctx context.Context, name string, args map[string]any) error {
	a.e.mu.Lock()
	if a.e.disposed > 0 {
		a.e.mu.Unlock()
		return fmt.Errorf("headless: action %q on disposed engine", name)
	}
	h, ok := a.e.actions[name]
	a.e.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", domain.ErrUnknownAction, name)
	}
	return h(ctx, args)
}

type eventAPI struct{ e *Engine }

func (ev eventAPI) Subscribe(filter []ports.BlockID, handler func([]ports.BlockEvent)) ports.Unsubscribe {
	e := ev.e
	e.mu.Lock()
	id := e.nextSub
	e.nextSub++
	e.eventSubs[id] = eventSub{filter: slices.Clone(filter), handler: handler}
	e.mu.Unlock()
	return func() {
		e.mu.Lock()
		delete(e.eventSubs, id)
		e.mu.Unlock()
	}
}

type historyAPI struct{ e *Engine }

func (h historyAPI) OnUpdated(handler func()) ports.Unsubscribe {
	e := h.e
	e.mu.Lock()
	id := e.nextSub
	e.nextSub++
	e.historySubs[id] = handler
	e.mu.Unlock()
	return func() {
		e.mu.Lock()
		delete(e.historySubs, id)
		e.mu.Unlock()
	}
}

func (h historyAPI) CanUndo() bool {
	h.e.mu.Lock()
	defer h.e.mu.Unlock()
	return len(h.e.undo) > 0
}

func (h historyAPI) CanRedo() bool {
	h.e.mu.Lock()
	defer h.e.mu.Unlock()
	return len(h.e.redo) > 0
}

func (h historyAPI) Undo() error {
	return h.e.step("Undo", &h.e.undo, &h.e.redo)
}

func (h historyAPI) Redo() error {
	return h.e.step("Redo", &h.e.redo, &h.e.undo)
}

// step pops a snapshot from src, pushes the current document onto dst and
// restores the snapshot.
func (e *Engine) step(op string, src, dst *[]*document) error {
	subs, hist, events, err := func() ([]func(), []func(), []ports.BlockEvent, error) {
		e.mu.Lock()
		defer e.mu.Unlock()
		if err := e.enter(op); err != nil {
			return nil, nil, nil, err
		}
		if len(*src) == 0 {
			return nil, nil, nil, fmt.Errorf("headless: nothing to %s", op)
		}
		last := len(*src) - 1
		snap := (*src)[last]
		*src = (*src)[:last]
		*dst = append(*dst, e.doc)
		e.doc = snap
		events := []ports.BlockEvent{{Block: snap.Scene, Type: ports.BlockUpdated}}
		subs, hist := e.subscribersLocked(events)
		return subs, hist, events, nil
	}()
	if err != nil {
		return err
	}
	dispatch(subs, hist, events)
	return nil
}

type uiAPI struct{ e *Engine }

func (u uiAPI) SetDockOrder(ids []string) error {
	return u.set(OpSetDockOrder, func(s *UIState) { s.Dock = slices.Clone(ids) })
}

func (u uiAPI) SetCanvasMenuOrder(ids []string) error {
	return u.set(OpSetCanvasMenuOrder, func(s *UIState) { s.CanvasMenu = slices.Clone(ids) })
}

func (u uiAPI) SetInspectorBar(ids []string) error {
	return u.set(OpSetInspectorBar, func(s *UIState) { s.Inspector = slices.Clone(ids) })
}

func (u uiAPI) AddAssetLibraryEntry(entry ports.LibraryEntry) error {
	return u.set(OpAddAssetLibraryEntry, func(s *UIState) { s.Library = append(s.Library, entry) })
}

func (u uiAPI) MountComponent(id, location string) error {
	return u.set(OpMountComponent, func(s *UIState) { s.Components[id] = location })
}

func (u uiAPI) set(op string, fn func(*UIState)) error {
	u.e.mu.Lock()
	defer u.e.mu.Unlock()
	if err := u.e.enter(op); err != nil {
		return err
	}
	fn(&u.e.ui)
	return nil
}

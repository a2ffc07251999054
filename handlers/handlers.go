// Package handlers implements the closed set of remote operations the target
// registers with the bridge dispatcher: property mutation, node deletion,
// reparenting, tile placement, input injection, and frame capture. Handlers
// consume params that have passed through the typed-value codec and the
// naming normalizer, and mutate the live scene tree. Frame capture is
// deferred: its response is resolved by the per-tick hook once the frame it
// was requested on has rendered.
package handlers

import (
	"fmt"
	mathrand "math/rand"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"

	"github.com/scenebridge/scenebridge/bridge"
	"github.com/scenebridge/scenebridge/codec"
	"github.com/scenebridge/scenebridge/scene"
)

type Handlers struct {
	log        *zap.SugaredLogger
	tree       *scene.Tree
	codec      *codec.Codec
	captureDir string

	mu       sync.Mutex
	captures []*pendingCapture

	entropyMu sync.Mutex
	entropy   *ulid.MonotonicEntropy
}

type pendingCapture struct {
	deferred *bridge.Deferred
}

type Option func(h *Handlers)

// WithCaptureDir sets the directory frame-capture artifacts are written to.
// Defaults to the OS temp dir.
func WithCaptureDir(dir string) Option {
	return func(h *Handlers) {
		h.captureDir = dir
	}
}

func WithLogger(l *zap.Logger) Option {
	return func(h *Handlers) {
		h.log = l.Named("handlers").Sugar()
	}
}

func New(tree *scene.Tree, opts ...Option) *Handlers {
	h := &Handlers{
		log:        zap.NewNop().Sugar(),
		tree:       tree,
		captureDir: os.TempDir(),
		entropy:    ulid.Monotonic(mathrand.New(mathrand.NewSource(time.Now().UnixNano())), 0),
	}
	for _, o := range opts {
		o(h)
	}
	h.codec = codec.New(h.log)
	return h
}

// Register installs every operation on the dispatcher, plus the tick hook that
// advances the frame, applies queued input, and resolves pending captures.
// Must be called before the server starts.
func (h *Handlers) Register(s *bridge.Server) {
	s.RegisterHandler("ping", h.ping)
	s.RegisterHandler("set_property", h.setProperty)
	s.RegisterHandler("get_property", h.getProperty)
	s.RegisterHandler("delete_node", h.deleteNode)
	s.RegisterHandler("reparent_node", h.reparentNode)
	s.RegisterHandler("place_tile", h.placeTile)
	s.RegisterHandler("clear_tile", h.clearTile)
	s.RegisterHandler("get_tile", h.getTile)
	s.RegisterHandler("inject_input", h.injectInput)
	s.RegisterHandler("capture_frame", h.captureFrame)
	s.OnTick(h.tick)
}

// tick runs after dispatch on every frame.
func (h *Handlers) tick() {
	frame := h.tree.AdvanceFrame()

	for _, ev := range h.tree.DrainInput() {
		h.log.Debugw("applying injected input", "Type", ev.Type, "Frame", frame)
	}

	h.mu.Lock()
	captures := h.captures
	h.captures = nil
	h.mu.Unlock()

	for _, pc := range captures {
		id := h.newCaptureID()
		artifact := filepath.Join(h.captureDir, fmt.Sprintf("frame-%s.capture", id))
		contents := fmt.Sprintf("frame %d\n", frame)
		if err := os.WriteFile(artifact, []byte(contents), 0644); err != nil {
			pc.deferred.Fail(fmt.Errorf("writing capture artifact: %w", err))
			continue
		}
		pc.deferred.Resolve(h.encodeResult(map[string]any{
			"CaptureID":    id,
			"Frame":        frame,
			"ArtifactPath": artifact,
		}))
	}
}

func (h *Handlers) newCaptureID() string {
	h.entropyMu.Lock()
	defer h.entropyMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now()), h.entropy).String()
}

// decodeParams reconstructs typed values first, then rewrites the remaining
// plain mapping keys to internal naming. Typed values decode before key
// normalization so their own wire fields are never rewritten.
func (h *Handlers) decodeParams(params any) (map[string]any, error) {
	if params == nil {
		return map[string]any{}, nil
	}
	m, ok := params.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("params must be an object, got %T", params)
	}
	decoded, ok := h.codec.Decode(m).(map[string]any)
	if !ok {
		return nil, fmt.Errorf("params must be a plain object, not a typed value")
	}
	return codec.ToInternalNaming(decoded), nil
}

func (h *Handlers) encodeResult(result map[string]any) map[string]any {
	encoded, _ := h.codec.Encode(result).(map[string]any)
	return codec.ToWireNaming(encoded)
}

func (h *Handlers) ping(params any) (any, error) {
	return h.encodeResult(map[string]any{"Frame": h.tree.Frame()}), nil
}

func (h *Handlers) setProperty(params any) (any, error) {
	p, err := h.decodeParams(params)
	if err != nil {
		return nil, err
	}
	path, err := strParam(p, "NodePath")
	if err != nil {
		return nil, err
	}
	name, err := strParam(p, "Property")
	if err != nil {
		return nil, err
	}
	value, ok := p["Value"]
	if !ok {
		return nil, fmt.Errorf("missing value param")
	}
	if err := h.tree.SetProperty(path, name, value); err != nil {
		return nil, err
	}
	return h.encodeResult(map[string]any{"NodePath": path, "Property": name}), nil
}

func (h *Handlers) getProperty(params any) (any, error) {
	p, err := h.decodeParams(params)
	if err != nil {
		return nil, err
	}
	path, err := strParam(p, "NodePath")
	if err != nil {
		return nil, err
	}
	name, err := strParam(p, "Property")
	if err != nil {
		return nil, err
	}
	value, err := h.tree.GetProperty(path, name)
	if err != nil {
		return nil, err
	}
	return h.encodeResult(map[string]any{"Value": value}), nil
}

func (h *Handlers) deleteNode(params any) (any, error) {
	p, err := h.decodeParams(params)
	if err != nil {
		return nil, err
	}
	path, err := strParam(p, "NodePath")
	if err != nil {
		return nil, err
	}
	if err := h.tree.Remove(path); err != nil {
		return nil, err
	}
	return h.encodeResult(map[string]any{"NodePath": path}), nil
}

func (h *Handlers) reparentNode(params any) (any, error) {
	p, err := h.decodeParams(params)
	if err != nil {
		return nil, err
	}
	path, err := strParam(p, "NodePath")
	if err != nil {
		return nil, err
	}
	newParent, err := strParam(p, "NewParentPath")
	if err != nil {
		return nil, err
	}
	if err := h.tree.Reparent(path, newParent); err != nil {
		return nil, err
	}
	return h.encodeResult(map[string]any{"NodePath": path, "NewParentPath": newParent}), nil
}

func (h *Handlers) placeTile(params any) (any, error) {
	p, err := h.decodeParams(params)
	if err != nil {
		return nil, err
	}
	path, err := strParam(p, "NodePath")
	if err != nil {
		return nil, err
	}
	coords, err := coordsParam(p)
	if err != nil {
		return nil, err
	}
	tileID, err := intParam(p, "TileID")
	if err != nil {
		return nil, err
	}
	if err := h.tree.PlaceTile(path, coords.X, coords.Y, tileID); err != nil {
		return nil, err
	}
	return h.encodeResult(map[string]any{"NodePath": path, "Coords": coords}), nil
}

func (h *Handlers) clearTile(params any) (any, error) {
	p, err := h.decodeParams(params)
	if err != nil {
		return nil, err
	}
	path, err := strParam(p, "NodePath")
	if err != nil {
		return nil, err
	}
	coords, err := coordsParam(p)
	if err != nil {
		return nil, err
	}
	if err := h.tree.ClearTile(path, coords.X, coords.Y); err != nil {
		return nil, err
	}
	return h.encodeResult(map[string]any{"NodePath": path, "Coords": coords}), nil
}

func (h *Handlers) getTile(params any) (any, error) {
	p, err := h.decodeParams(params)
	if err != nil {
		return nil, err
	}
	path, err := strParam(p, "NodePath")
	if err != nil {
		return nil, err
	}
	coords, err := coordsParam(p)
	if err != nil {
		return nil, err
	}
	tileID, found, err := h.tree.TileAt(path, coords.X, coords.Y)
	if err != nil {
		return nil, err
	}
	return h.encodeResult(map[string]any{"TileID": tileID, "Found": found}), nil
}

func (h *Handlers) injectInput(params any) (any, error) {
	p, err := h.decodeParams(params)
	if err != nil {
		return nil, err
	}
	evType, err := strParam(p, "EventType")
	if err != nil {
		return nil, err
	}
	ev := scene.InputEvent{Type: evType, Data: map[string]any{}}
	if pressed, ok := p["Pressed"].(bool); ok {
		ev.Pressed = pressed
	}
	if keycode, ok := p["Keycode"].(float64); ok {
		ev.Keycode = int(keycode)
	}
	for k, v := range p {
		switch k {
		case "EventType", "Pressed", "Keycode":
		default:
			ev.Data[k] = v
		}
	}
	h.tree.QueueInput(ev)
	return h.encodeResult(map[string]any{"EventType": evType}), nil
}

// captureFrame defers its response until the tick hook has rendered the frame
// and written the artifact.
func (h *Handlers) captureFrame(params any) (any, error) {
	if _, err := h.decodeParams(params); err != nil {
		return nil, err
	}
	d := bridge.NewDeferred()
	h.mu.Lock()
	h.captures = append(h.captures, &pendingCapture{deferred: d})
	h.mu.Unlock()
	return d, nil
}

func strParam(p map[string]any, key string) (string, error) {
	s, ok := p[key].(string)
	if !ok || s == "" {
		return "", fmt.Errorf("missing %s param", codec.DeriveWireKey(key))
	}
	return s, nil
}

func intParam(p map[string]any, key string) (int, error) {
	switch n := p[key].(type) {
	case float64:
		return int(n), nil
	case int:
		return n, nil
	default:
		return 0, fmt.Errorf("missing %s param", codec.DeriveWireKey(key))
	}
}

// coordsParam accepts either a typed integer vector or a bare {x,y} mapping.
func coordsParam(p map[string]any) (codec.Vector2i, error) {
	switch c := p["Coords"].(type) {
	case codec.Vector2i:
		return c, nil
	case codec.Vector2:
		return codec.Vector2i{X: int(c.X), Y: int(c.Y)}, nil
	case map[string]any:
		if v, ok := codec.PromoteXY(c).(codec.Vector2); ok {
			return codec.Vector2i{X: int(v.X), Y: int(v.Y)}, nil
		}
	}
	return codec.Vector2i{}, fmt.Errorf("missing or malformed coords param")
}

package handlers

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/scenebridge/scenebridge/bridge"
	"github.com/scenebridge/scenebridge/codec"
	internalnet "github.com/scenebridge/scenebridge/internal/net"
	"github.com/scenebridge/scenebridge/scene"
)

var logger *zap.Logger

func init() {
	l, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	logger = l
}

// startTarget spins up a full target: scene tree, handlers, bridge server with
// a running tick loop. Returns a connected client.
func startTarget(t *testing.T) (*bridge.Client, string) {
	t.Helper()

	tree := scene.NewTree()
	_, err := tree.Add("/root", "Main", "Node2D")
	require.NoError(t, err)
	_, err = tree.Add("/root/Main", "Player", "CharacterBody2D")
	require.NoError(t, err)
	_, err = tree.Add("/root/Main", "Ground", "TileMap")
	require.NoError(t, err)

	captureDir := t.TempDir()
	h := New(tree, WithLogger(logger), WithCaptureDir(captureDir))

	addr, port, err := internalnet.EphemeralListenAddr()
	require.NoError(t, err)
	server, err := bridge.NewServer(bridge.WithListenAddr(addr), bridge.WithServerLogger(logger))
	require.NoError(t, err)
	h.Register(server)

	ctx, cancel := context.WithCancel(context.Background())
	serverDone := make(chan struct{})
	go func() {
		defer close(serverDone)
		_ = server.Run(ctx, 2*time.Millisecond)
	}()
	t.Cleanup(func() {
		cancel()
		<-serverDone
	})

	client, err := bridge.NewClient("127.0.0.1", port,
		bridge.WithClientLogger(logger),
		bridge.WithCustomizeRetryableClient(func(r *retryablehttp.Client) {
			r.RetryMax = 2
		}),
	)
	require.NoError(t, err)
	t.Cleanup(client.Disconnect)

	waitCtx, waitCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer waitCancel()
	require.NoError(t, client.WaitForTarget(waitCtx))

	return client, captureDir
}

func call(t *testing.T, c *bridge.Client, method string, params any) any {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	res, err := c.Call(ctx, method, params, 5*time.Second)
	require.NoError(t, err)
	return res
}

func TestPing(t *testing.T) {
	client, _ := startTarget(t)

	res := call(t, client, "ping", nil).(map[string]any)
	assert.Contains(t, res, "frame")
}

func TestSetAndGetProperty(t *testing.T) {
	client, _ := startTarget(t)

	call(t, client, "set_property", map[string]any{
		"node_path": "/root/Main/Player",
		"property":  "Position",
		"value":     map[string]any{codec.TypeField: "Vector2", "x": 10.0, "y": 20.0},
	})

	res := call(t, client, "get_property", map[string]any{
		"node_path": "/root/Main/Player",
		"property":  "Position",
	}).(map[string]any)

	assert.Equal(t, map[string]any{
		codec.TypeField: "Vector2", "x": 10.0, "y": 20.0,
	}, res["value"])
}

func TestPropertyDefaultsAppliedOnDecode(t *testing.T) {
	client, _ := startTarget(t)

	// A color with no alpha decodes to alpha = 1, visible on readback.
	call(t, client, "set_property", map[string]any{
		"node_path": "/root/Main/Player",
		"property":  "Modulate",
		"value":     map[string]any{codec.TypeField: "Color", "r": 1.0, "g": 0.0, "b": 0.0},
	})

	res := call(t, client, "get_property", map[string]any{
		"node_path": "/root/Main/Player",
		"property":  "Modulate",
	}).(map[string]any)

	assert.Equal(t, map[string]any{
		codec.TypeField: "Color", "r": 1.0, "g": 0.0, "b": 0.0, "a": 1.0,
	}, res["value"])
}

func TestSetPropertyUnknownNode(t *testing.T) {
	client, _ := startTarget(t)

	ctx := context.Background()
	_, err := client.Call(ctx, "set_property", map[string]any{
		"node_path": "/root/Main/Ghost",
		"property":  "Position",
		"value":     1.0,
	}, 5*time.Second)
	var respErr *bridge.ResponseError
	require.ErrorAs(t, err, &respErr)
	assert.Equal(t, bridge.CodeHandlerError, respErr.Code)
	assert.Contains(t, respErr.Message, "node not found")
}

func TestDeleteNode(t *testing.T) {
	client, _ := startTarget(t)

	call(t, client, "delete_node", map[string]any{"node_path": "/root/Main/Player"})

	ctx := context.Background()
	_, err := client.Call(ctx, "get_property", map[string]any{
		"node_path": "/root/Main/Player",
		"property":  "Position",
	}, 5*time.Second)
	var respErr *bridge.ResponseError
	require.ErrorAs(t, err, &respErr)
	assert.Contains(t, respErr.Message, "node not found")
}

func TestReparentNode(t *testing.T) {
	client, _ := startTarget(t)

	call(t, client, "set_property", map[string]any{
		"node_path": "/root/Main/Player",
		"property":  "Tag",
		"value":     "hero",
	})
	call(t, client, "reparent_node", map[string]any{
		"node_path":       "/root/Main/Player",
		"new_parent_path": "/root/Main/Ground",
	})

	// The node is gone from its old path and reachable at the new one,
	// properties intact.
	ctx := context.Background()
	_, err := client.Call(ctx, "get_property", map[string]any{
		"node_path": "/root/Main/Player",
		"property":  "Tag",
	}, 5*time.Second)
	require.Error(t, err)

	res := call(t, client, "get_property", map[string]any{
		"node_path": "/root/Main/Ground/Player",
		"property":  "Tag",
	}).(map[string]any)
	assert.Equal(t, "hero", res["value"])
}

func TestTilePlacement(t *testing.T) {
	client, _ := startTarget(t)

	call(t, client, "place_tile", map[string]any{
		"node_path": "/root/Main/Ground",
		"coords":    map[string]any{"x": 2.0, "y": 3.0},
		"tile_id":   7.0,
	})

	res := call(t, client, "get_tile", map[string]any{
		"node_path": "/root/Main/Ground",
		"coords":    map[string]any{"x": 2.0, "y": 3.0},
	}).(map[string]any)
	assert.Equal(t, true, res["found"])
	assert.Equal(t, 7.0, res["tile_id"])

	call(t, client, "clear_tile", map[string]any{
		"node_path": "/root/Main/Ground",
		"coords":    map[string]any{"x": 2.0, "y": 3.0},
	})

	res = call(t, client, "get_tile", map[string]any{
		"node_path": "/root/Main/Ground",
		"coords":    map[string]any{"x": 2.0, "y": 3.0},
	}).(map[string]any)
	assert.Equal(t, false, res["found"])
}

func TestTileCoordsAcceptTypedVector(t *testing.T) {
	client, _ := startTarget(t)

	call(t, client, "place_tile", map[string]any{
		"node_path": "/root/Main/Ground",
		"coords":    map[string]any{codec.TypeField: "Vector2i", "x": 5.0, "y": 6.0},
		"tile_id":   1.0,
	})

	res := call(t, client, "get_tile", map[string]any{
		"node_path": "/root/Main/Ground",
		"coords":    map[string]any{"x": 5.0, "y": 6.0},
	}).(map[string]any)
	assert.Equal(t, true, res["found"])
}

func TestInjectInput(t *testing.T) {
	client, _ := startTarget(t)

	res := call(t, client, "inject_input", map[string]any{
		"event_type": "key",
		"pressed":    true,
		"keycode":    32.0,
	}).(map[string]any)
	assert.Equal(t, "key", res["event_type"])
}

func TestCaptureFrameDeferred(t *testing.T) {
	client, captureDir := startTarget(t)

	res := call(t, client, "capture_frame", nil).(map[string]any)

	id, ok := res["capture_id"].(string)
	require.True(t, ok)
	assert.Len(t, id, 26)

	frame, ok := res["frame"].(float64)
	require.True(t, ok)
	assert.Greater(t, frame, 0.0)

	artifact, ok := res["artifact_path"].(string)
	require.True(t, ok)
	assert.Contains(t, artifact, captureDir)

	contents, err := os.ReadFile(artifact)
	require.NoError(t, err)
	assert.Equal(t, fmt.Sprintf("frame %d\n", int(frame)), string(contents))
}

func TestConcurrentCaptures(t *testing.T) {
	client, _ := startTarget(t)

	type outcome struct {
		res any
		err error
	}
	const n = 3
	results := make(chan outcome, n)
	for i := 0; i < n; i++ {
		go func() {
			res, err := client.Call(context.Background(), "capture_frame", nil, 10*time.Second)
			results <- outcome{res: res, err: err}
		}()
	}

	ids := map[string]bool{}
	for i := 0; i < n; i++ {
		o := <-results
		require.NoError(t, o.err)
		ids[o.res.(map[string]any)["capture_id"].(string)] = true
	}
	assert.Len(t, ids, n)
}

package codec

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoundTrip(t *testing.T) {
	c := New(nil)

	cases := []struct {
		name string
		v    any
	}{
		{name: "vector2", v: Vector2{X: 1.5, Y: -2}},
		{name: "vector2i", v: Vector2i{X: 3, Y: 4}},
		{name: "vector3", v: Vector3{X: 1, Y: 2, Z: 3}},
		{name: "vector3i", v: Vector3i{X: -1, Y: 0, Z: 7}},
		{name: "color", v: Color{R: 0.25, G: 0.5, B: 0.75, A: 0.5}},
		{name: "rect2", v: Rect2{Position: Vector2{X: 1, Y: 2}, Size: Vector2{X: 3, Y: 4}}},
		{name: "node path", v: NodePath{Path: "/root/Player"}},
		{name: "resource", v: Resource{Path: "res://sprites/player.png"}},
		{name: "rectangle shape", v: RectangleShape2D{Extents: Vector2{X: 5, Y: 6}}},
		{name: "circle shape", v: CircleShape2D{Radius: 32}},
		{name: "capsule shape", v: CapsuleShape2D{Radius: 8, Height: 24}},
		{name: "segment shape", v: SegmentShape2D{A: Vector2{X: 0, Y: 0}, B: Vector2{X: 10, Y: 10}}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.v, c.Decode(c.Encode(tc.v)))
		})
	}
}

func TestRegistryCoversEveryEncodedDiscriminator(t *testing.T) {
	c := New(nil)

	// Every value the encoder can tag must decode through a registry rule
	// rather than degrading to Opaque.
	values := []any{
		Vector2{}, Vector2i{}, Vector3{}, Vector3i{},
		Color{}, Rect2{}, NodePath{}, Resource{},
		RectangleShape2D{}, CircleShape2D{}, CapsuleShape2D{}, SegmentShape2D{},
	}
	require.Len(t, registry, len(values))
	for _, v := range values {
		wire, ok := c.Encode(v).(map[string]any)
		require.True(t, ok)
		_, known := registry[wire[TypeField].(string)]
		assert.True(t, known, "no rule for %s", wire[TypeField])
		assert.IsType(t, v, c.Decode(wire))
	}
}

func TestDecodeDefaults(t *testing.T) {
	c := New(nil)

	cases := []struct {
		name string
		wire map[string]any
		exp  any
	}{
		{
			name: "color without alpha",
			wire: map[string]any{TypeField: "Color", "r": 1.0, "g": 0.0, "b": 0.0},
			exp:  Color{R: 1, G: 0, B: 0, A: 1},
		},
		{
			name: "vector2 with missing y",
			wire: map[string]any{TypeField: "Vector2", "x": 5.0},
			exp:  Vector2{X: 5, Y: 0},
		},
		{
			name: "rectangle shape without extents",
			wire: map[string]any{TypeField: "RectangleShape2D"},
			exp:  RectangleShape2D{Extents: Vector2{X: 10, Y: 10}},
		},
		{
			name: "circle shape without radius",
			wire: map[string]any{TypeField: "CircleShape2D"},
			exp:  CircleShape2D{Radius: 10},
		},
		{
			name: "capsule shape without fields",
			wire: map[string]any{TypeField: "CapsuleShape2D"},
			exp:  CapsuleShape2D{Radius: 10, Height: 20},
		},
		{
			name: "segment shape without b",
			wire: map[string]any{TypeField: "SegmentShape2D", "a": map[string]any{"x": 1.0, "y": 2.0}},
			exp:  SegmentShape2D{A: Vector2{X: 1, Y: 2}, B: Vector2{X: 0, Y: 10}},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.exp, c.Decode(tc.wire))
		})
	}
}

func TestDecodeNestedTypedSubfields(t *testing.T) {
	c := New(nil)

	// The rect's corner point is itself a typed vector on the wire.
	wire := map[string]any{
		TypeField: "Rect2",
		"position": map[string]any{
			TypeField: "Vector2", "x": 1.0, "y": 2.0,
		},
		"size": map[string]any{"x": 3.0, "y": 4.0},
	}
	assert.Equal(t, Rect2{Position: Vector2{X: 1, Y: 2}, Size: Vector2{X: 3, Y: 4}}, c.Decode(wire))
}

func TestDecodeUntaggedMappingUnchanged(t *testing.T) {
	c := New(nil)

	in := map[string]any{"a": map[string]any{"x": 1.0, "y": 2.0}}
	out := c.Decode(in)
	assert.Equal(t, in, out)
}

func TestDecodeUnknownDiscriminatorPassesThrough(t *testing.T) {
	c := New(nil)

	in := map[string]any{TypeField: "Quaternion", "x": 1.0, "y": 2.0, "z": 3.0, "w": 4.0}
	out := c.Decode(in)
	require.IsType(t, Opaque{}, out)
	assert.Equal(t, "Quaternion", out.(Opaque).TypeName())

	// And it survives re-encoding byte for byte.
	assert.Equal(t, in, c.Encode(out))
}

func TestDecodeNestedStructures(t *testing.T) {
	c := New(nil)

	wire := map[string]any{
		"nodes": []any{
			map[string]any{
				"position": map[string]any{TypeField: "Vector2", "x": 1.0, "y": 2.0},
				"name":     "Player",
			},
			"scalar",
		},
		"count": 2.0,
	}
	out, ok := c.Decode(wire).(map[string]any)
	require.True(t, ok)
	nodes := out["nodes"].([]any)
	first := nodes[0].(map[string]any)
	assert.Equal(t, Vector2{X: 1, Y: 2}, first["position"])
	assert.Equal(t, "Player", first["name"])
	assert.Equal(t, "scalar", nodes[1])
	assert.Equal(t, 2.0, out["count"])
}

func TestEncodeScalarsPassThrough(t *testing.T) {
	c := New(nil)

	assert.Equal(t, "hello", c.Encode("hello"))
	assert.Equal(t, 1.5, c.Encode(1.5))
	assert.Equal(t, true, c.Encode(true))
	assert.Nil(t, c.Encode(nil))
}

func TestPromoteXY(t *testing.T) {
	cases := []struct {
		name string
		in   any
		exp  any
	}{
		{
			name: "plain xy promotes",
			in:   map[string]any{"x": 1.0, "y": 2.0},
			exp:  Vector2{X: 1, Y: 2},
		},
		{
			name: "z blocks promotion",
			in:   map[string]any{"x": 1.0, "y": 2.0, "z": 3.0},
			exp:  map[string]any{"x": 1.0, "y": 2.0, "z": 3.0},
		},
		{
			name: "tagged mapping untouched",
			in:   map[string]any{TypeField: "Vector2", "x": 1.0},
			exp:  map[string]any{TypeField: "Vector2", "x": 1.0},
		},
		{
			name: "non-numeric fields untouched",
			in:   map[string]any{"x": "a", "y": 2.0},
			exp:  map[string]any{"x": "a", "y": 2.0},
		},
		{
			name: "extra fields untouched",
			in:   map[string]any{"x": 1.0, "y": 2.0, "name": "p"},
			exp:  map[string]any{"x": 1.0, "y": 2.0, "name": "p"},
		},
		{
			name: "non-mapping untouched",
			in:   "str",
			exp:  "str",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.exp, PromoteXY(tc.in))
		})
	}
}

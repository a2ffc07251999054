// Package codec converts between the wire-safe generic JSON data model and the
// target's structured value model. Structured values travel as mappings tagged
// with the TypeField discriminator; everything else is walked recursively and
// passed through untouched.
package codec

import (
	"go.uber.org/zap"
)

// Codec encodes and decodes typed values. The zero registry of known types is
// fixed at compile time; unknown discriminators degrade to Opaque pass-through
// rather than failing, so newer peers can speak to older ones.
type Codec struct {
	log *zap.SugaredLogger
}

func New(log *zap.SugaredLogger) *Codec {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Codec{log: log.Named("codec")}
}

// Encode converts a native value into its wire representation. Structured
// values become tagged mappings, plain maps and slices are encoded
// element-wise, scalars pass through unchanged.
func (c *Codec) Encode(v any) any {
	switch t := v.(type) {
	case Vector2:
		return map[string]any{TypeField: t.TypeName(), "x": t.X, "y": t.Y}
	case Vector2i:
		return map[string]any{TypeField: t.TypeName(), "x": float64(t.X), "y": float64(t.Y)}
	case Vector3:
		return map[string]any{TypeField: t.TypeName(), "x": t.X, "y": t.Y, "z": t.Z}
	case Vector3i:
		return map[string]any{TypeField: t.TypeName(), "x": float64(t.X), "y": float64(t.Y), "z": float64(t.Z)}
	case Color:
		return map[string]any{TypeField: t.TypeName(), "r": t.R, "g": t.G, "b": t.B, "a": t.A}
	case Rect2:
		return map[string]any{TypeField: t.TypeName(), "position": c.Encode(t.Position), "size": c.Encode(t.Size)}
	case NodePath:
		return map[string]any{TypeField: t.TypeName(), "path": t.Path}
	case Resource:
		return map[string]any{TypeField: t.TypeName(), "path": t.Path}
	case RectangleShape2D:
		return map[string]any{TypeField: t.TypeName(), "extents": c.Encode(t.Extents)}
	case CircleShape2D:
		return map[string]any{TypeField: t.TypeName(), "radius": t.Radius}
	case CapsuleShape2D:
		return map[string]any{TypeField: t.TypeName(), "radius": t.Radius, "height": t.Height}
	case SegmentShape2D:
		return map[string]any{TypeField: t.TypeName(), "a": c.Encode(t.A), "b": c.Encode(t.B)}
	case Opaque:
		out := make(map[string]any, len(t))
		for k, v := range t {
			out[k] = v
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[k] = c.Encode(val)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = c.Encode(val)
		}
		return out
	default:
		return v
	}
}

// Decode converts a wire value into its native representation. Mappings
// carrying a known discriminator are reconstructed with per-field defaults,
// mappings without one are walked recursively, and everything else passes
// through unchanged.
func (c *Codec) Decode(v any) any {
	switch t := v.(type) {
	case map[string]any:
		name, tagged := t[TypeField].(string)
		if !tagged {
			out := make(map[string]any, len(t))
			for k, val := range t {
				out[k] = c.Decode(val)
			}
			return out
		}
		build, known := registry[name]
		if !known {
			c.log.Debugw("unknown typed value discriminator, passing through", "Type", name)
			return Opaque(t)
		}
		return build(c, t)
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = c.Decode(val)
		}
		return out
	default:
		return v
	}
}

// PromoteXY promotes a plain mapping with exactly numeric x and y fields (no
// discriminator, no z) to a Vector2. Anything else is returned unchanged. The
// promotion is opt-in at the call site; Decode never applies it.
func PromoteXY(v any) any {
	m, ok := v.(map[string]any)
	if !ok || len(m) != 2 {
		return v
	}
	if _, tagged := m[TypeField]; tagged {
		return v
	}
	x, okX := asNumber(m["x"])
	y, okY := asNumber(m["y"])
	if !okX || !okY {
		return v
	}
	return Vector2{X: x, Y: y}
}

// registry maps each known discriminator to its reconstruction rule. It is
// populated in init rather than at declaration because the Rect2 and shape
// rules reach back through Decode for their vector sub-fields.
var registry map[string]func(c *Codec, m map[string]any) any

func init() {
	registry = map[string]func(c *Codec, m map[string]any) any{
		"Vector2": func(c *Codec, m map[string]any) any {
			return Vector2{X: numField(m, "x", 0), Y: numField(m, "y", 0)}
		},
		"Vector2i": func(c *Codec, m map[string]any) any {
			return Vector2i{X: int(numField(m, "x", 0)), Y: int(numField(m, "y", 0))}
		},
		"Vector3": func(c *Codec, m map[string]any) any {
			return Vector3{X: numField(m, "x", 0), Y: numField(m, "y", 0), Z: numField(m, "z", 0)}
		},
		"Vector3i": func(c *Codec, m map[string]any) any {
			return Vector3i{X: int(numField(m, "x", 0)), Y: int(numField(m, "y", 0)), Z: int(numField(m, "z", 0))}
		},
		"Color": func(c *Codec, m map[string]any) any {
			return Color{
				R: numField(m, "r", 0),
				G: numField(m, "g", 0),
				B: numField(m, "b", 0),
				A: numField(m, "a", 1),
			}
		},
		"Rect2": func(c *Codec, m map[string]any) any {
			return Rect2{
				Position: c.vec2Field(m, "position", Vector2{}),
				Size:     c.vec2Field(m, "size", Vector2{}),
			}
		},
		"NodePath": func(c *Codec, m map[string]any) any {
			return NodePath{Path: strField(m, "path")}
		},
		"Resource": func(c *Codec, m map[string]any) any {
			return Resource{Path: strField(m, "path")}
		},
		"RectangleShape2D": func(c *Codec, m map[string]any) any {
			return RectangleShape2D{
				Extents: c.vec2Field(m, "extents", Vector2{X: defaultShapeExtent, Y: defaultShapeExtent}),
			}
		},
		"CircleShape2D": func(c *Codec, m map[string]any) any {
			return CircleShape2D{Radius: numField(m, "radius", defaultShapeRadius)}
		},
		"CapsuleShape2D": func(c *Codec, m map[string]any) any {
			return CapsuleShape2D{
				Radius: numField(m, "radius", defaultShapeRadius),
				Height: numField(m, "height", defaultCapsuleH),
			}
		},
		"SegmentShape2D": func(c *Codec, m map[string]any) any {
			return SegmentShape2D{
				A: c.vec2Field(m, "a", Vector2{}),
				B: c.vec2Field(m, "b", Vector2{Y: defaultSegmentReach}),
			}
		},
	}
}

func numField(m map[string]any, key string, def float64) float64 {
	n, ok := asNumber(m[key])
	if !ok {
		return def
	}
	return n
}

func strField(m map[string]any, key string) string {
	s, _ := m[key].(string)
	return s
}

// vec2Field reconstructs a nested vector sub-field. The sub-field may itself
// carry a discriminator or arrive as a bare {x,y} mapping.
func (c *Codec) vec2Field(m map[string]any, key string, def Vector2) Vector2 {
	sub, ok := m[key].(map[string]any)
	if !ok {
		return def
	}
	if v, ok := c.Decode(sub).(Vector2); ok {
		return v
	}
	return Vector2{X: numField(sub, "x", def.X), Y: numField(sub, "y", def.Y)}
}

func asNumber(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}

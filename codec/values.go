package codec

// TypeField is the reserved discriminator key that marks a wire mapping as a
// typed value. A mapping without this key is always treated as a plain nested
// object.
const TypeField = "_type"

// Value is implemented by every native structured value the codec knows how to
// reconstruct from a tagged wire mapping.
type Value interface {
	// TypeName returns the discriminator this value carries on the wire.
	TypeName() string
}

type Vector2 struct {
	X float64
	Y float64
}

func (Vector2) TypeName() string { return "Vector2" }

type Vector2i struct {
	X int
	Y int
}

func (Vector2i) TypeName() string { return "Vector2i" }

type Vector3 struct {
	X float64
	Y float64
	Z float64
}

func (Vector3) TypeName() string { return "Vector3" }

type Vector3i struct {
	X int
	Y int
	Z int
}

func (Vector3i) TypeName() string { return "Vector3i" }

// Color carries RGBA channels in the 0..1 range. Alpha defaults to 1 when
// absent on the wire.
type Color struct {
	R float64
	G float64
	B float64
	A float64
}

func (Color) TypeName() string { return "Color" }

type Rect2 struct {
	Position Vector2
	Size     Vector2
}

func (Rect2) TypeName() string { return "Rect2" }

// NodePath references a node in the target's live tree by absolute path.
type NodePath struct {
	Path string
}

func (NodePath) TypeName() string { return "NodePath" }

// Resource references an engine resource by its storage path.
type Resource struct {
	Path string
}

func (Resource) TypeName() string { return "Resource" }

type RectangleShape2D struct {
	Extents Vector2
}

func (RectangleShape2D) TypeName() string { return "RectangleShape2D" }

type CircleShape2D struct {
	Radius float64
}

func (CircleShape2D) TypeName() string { return "CircleShape2D" }

type CapsuleShape2D struct {
	Radius float64
	Height float64
}

func (CapsuleShape2D) TypeName() string { return "CapsuleShape2D" }

type SegmentShape2D struct {
	A Vector2
	B Vector2
}

func (SegmentShape2D) TypeName() string { return "SegmentShape2D" }

// Opaque holds a tagged wire mapping whose discriminator is not in the
// registry. It round-trips through encode unchanged so that unknown future
// types survive older handlers.
type Opaque map[string]any

func (o Opaque) TypeName() string {
	name, _ := o[TypeField].(string)
	return name
}

// Shape defaults match the engine's constructors.
const (
	defaultShapeExtent  = 10.0
	defaultShapeRadius  = 10.0
	defaultCapsuleH     = 20.0
	defaultSegmentReach = 10.0
)

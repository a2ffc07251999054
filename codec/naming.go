package codec

import "strings"

// keyTable is the fixed bidirectional mapping between wire naming
// (word_separated) and the target's internal naming (CapitalizedCompound).
// Keys absent from the table pass through ToInternal unchanged; ToWire derives
// the wire form programmatically for unknown internal keys.
var keyTable = map[string]string{
	"node_path":       "NodePath",
	"parent_path":     "ParentPath",
	"new_parent_path": "NewParentPath",
	"property":        "Property",
	"value":           "Value",
	"coords":          "Coords",
	"tile_id":         "TileID",
	"event_type":      "EventType",
	"pressed":         "Pressed",
	"keycode":         "Keycode",
	"position":        "Position",
	"size":            "Size",
	"keep_transform":  "KeepTransform",
	"capture_id":      "CaptureID",
	"frame":           "Frame",
	"artifact_path":   "ArtifactPath",
}

var reverseKeyTable = func() map[string]string {
	m := make(map[string]string, len(keyTable))
	for wire, internal := range keyTable {
		m[internal] = wire
	}
	return m
}()

// ToInternalNaming rewrites mapping keys from wire form to internal form,
// recursing into nested mappings. Sequence elements are normalized only when
// they are themselves mappings; the sequence structure is untouched.
func ToInternalNaming(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		if internal, ok := keyTable[k]; ok {
			k = internal
		}
		out[k] = normalizeNested(v, ToInternalNaming)
	}
	return out
}

// ToWireNaming is the inverse of ToInternalNaming. Internal keys absent from
// the table are converted by splitting at capitals, lowercasing, and joining
// with underscores; the derivation is idempotent for keys already in wire form.
func ToWireNaming(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		if wire, ok := reverseKeyTable[k]; ok {
			k = wire
		} else {
			k = DeriveWireKey(k)
		}
		out[k] = normalizeNested(v, ToWireNaming)
	}
	return out
}

func normalizeNested(v any, f func(map[string]any) map[string]any) any {
	switch t := v.(type) {
	case map[string]any:
		return f(t)
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			if m, ok := e.(map[string]any); ok {
				out[i] = f(m)
			} else {
				out[i] = e
			}
		}
		return out
	default:
		return v
	}
}

// DeriveWireKey converts a CapitalizedCompound key to word_separated form.
// Runs of capitals (acronyms) stay together: "TileID" becomes "tile_id".
func DeriveWireKey(k string) string {
	var b strings.Builder
	runes := []rune(k)
	for i, r := range runes {
		if isUpper(r) {
			prevLower := i > 0 && !isUpper(runes[i-1]) && runes[i-1] != '_'
			nextLower := i+1 < len(runes) && !isUpper(runes[i+1]) && runes[i+1] != '_'
			if i > 0 && (prevLower || (isUpper(runes[i-1]) && nextLower)) {
				b.WriteRune('_')
			}
			b.WriteRune(r - 'A' + 'a')
		} else {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func isUpper(r rune) bool { return r >= 'A' && r <= 'Z' }

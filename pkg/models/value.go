// Package models defines the core domain models for durable graph workflow execution.
package models

// ValueKind classifies the data a node parameter carries. Scalar kinds travel
// inline in node outputs; media kinds travel as object store references so
// execution records stay small.
type ValueKind string

const (
	ValueKindString  ValueKind = "string"
	ValueKindNumber  ValueKind = "number"
	ValueKindBoolean ValueKind = "boolean"
	ValueKindJSON    ValueKind = "json"
	ValueKindImage   ValueKind = "image"
	ValueKindAudio   ValueKind = "audio"
	ValueKindVideo   ValueKind = "video"
	ValueKindObject  ValueKind = "object"
)

// IsMedia reports whether the kind is carried as an object store reference.
func (k ValueKind) IsMedia() bool {
	switch k {
	case ValueKindImage, ValueKindAudio, ValueKindVideo, ValueKindObject:
		return true
	default:
		return false
	}
}

// Valid reports whether k is one of the declared value kinds.
func (k ValueKind) Valid() bool {
	switch k {
	case ValueKindString, ValueKindNumber, ValueKindBoolean, ValueKindJSON,
		ValueKindImage, ValueKindAudio, ValueKindVideo, ValueKindObject:
		return true
	default:
		return false
	}
}

// CompatibleWith reports whether a value of kind k may flow into a parameter
// declared as target. Identical kinds always match, "json" accepts anything,
// and the media kinds are interchangeable with the generic "object" kind
// since both sides exchange references rather than payloads.
func (k ValueKind) CompatibleWith(target ValueKind) bool {
	if k == target {
		return true
	}

	if target == ValueKindJSON {
		return true
	}

	if k.IsMedia() && target == ValueKindObject {
		return true
	}

	if k == ValueKindObject && target.IsMedia() {
		return true
	}

	return false
}

// schemaType maps a value kind to its JSON Schema type.
func (k ValueKind) schemaType() string {
	switch k {
	case ValueKindString:
		return "string"
	case ValueKindNumber:
		return "number"
	case ValueKindBoolean:
		return "boolean"
	default:
		// json payloads and object references validate structurally elsewhere
		return ""
	}
}

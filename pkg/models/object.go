package models

import "time"

// ObjectRef is a handle to a blob in the object store. Node outputs of media
// kinds carry references like this instead of inline bytes, so execution and
// step records stay small.
type ObjectRef struct {
	ID        string    `json:"id"   validate:"required"`
	MIME      string    `json:"mime,omitempty"`
	Size      int64     `json:"size,omitempty"`
	CreatedAt time.Time `json:"created_at,omitempty"`
}

// AsValue renders the reference in the map form node outputs use.
func (r ObjectRef) AsValue() map[string]any {
	value := map[string]any{"id": r.ID}

	if r.MIME != "" {
		value["mime"] = r.MIME
	}

	if r.Size > 0 {
		value["size"] = float64(r.Size)
	}

	return value
}

// ObjectRefFromValue recovers a reference from a node input value. It accepts
// the map form produced by AsValue (including its JSON round-trip).
func ObjectRefFromValue(value any) (ObjectRef, bool) {
	m, ok := value.(map[string]any)
	if !ok {
		return ObjectRef{}, false
	}

	id, ok := m["id"].(string)
	if !ok || id == "" {
		return ObjectRef{}, false
	}

	ref := ObjectRef{ID: id}

	if mime, ok := m["mime"].(string); ok {
		ref.MIME = mime
	}

	if size, ok := m["size"].(float64); ok {
		ref.Size = int64(size)
	}

	return ref, true
}

// Package models defines the entities synchronized from the platform's backend services.
package models

// Entity is anything stored in a resource slice. The ID must be stable across fetches.
type Entity interface {
	EntityID() string
}

// IDs returns the IDs of the given entities, in order.
func IDs[T Entity](items []T) []string {
	ids := make([]string, len(items))
	for i, item := range items {
		ids[i] = item.EntityID()
	}
	return ids
}

// AsEntities widens a typed slice for storage.
func AsEntities[T Entity](items []T) []Entity {
	out := make([]Entity, len(items))
	for i, item := range items {
		out[i] = item
	}
	return out
}

// Narrow converts stored entities back to a concrete type, skipping any that don't match.
func Narrow[T Entity](items []Entity) []T {
	out := make([]T, 0, len(items))
	for _, item := range items {
		if v, ok := item.(T); ok {
			out = append(out, v)
		}
	}
	return out
}

// Package surrogate assigns small sequential integer keys to external
// dataset identifiers so that correlated dataset/unit rows can be
// joined without repeating the (potentially long) external id.
package surrogate

// Registry maps external dataset ids to surrogate keys, assigning new
// keys sequentially starting at 1.
type Registry struct {
	idToKey map[string]int
	next    int
}

// NewRegistry returns an empty Registry whose first assigned key is 1.
func NewRegistry() *Registry {
	return &Registry{
		idToKey: make(map[string]int),
		next:    1,
	}
}

// For returns the surrogate key for id, assigning and recording a new
// one if id has not been seen before. existing reports whether the key
// was already present.
func (r *Registry) For(id string) (key int, existing bool) {
	if key, ok := r.idToKey[id]; ok {
		return key, true
	}
	key = r.next
	r.idToKey[id] = key
	r.next++
	return key, false
}

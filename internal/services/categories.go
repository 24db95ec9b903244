package services

import (
	"sort"
	"strings"
	"sync"
)

// DefaultCategory is assigned when a location is created without one.
const DefaultCategory = "general"

var defaultCategories = []string{
	DefaultCategory, "restaurant", "cafe", "shopping", "temple",
	"transportation", "hotel", "park", "museum", "hospital",
}

// CategoryRegistry is the set of accepted location categories.
type CategoryRegistry struct {
	mu  sync.RWMutex
	set map[string]struct{}
}

// NewCategoryRegistry returns the default categories plus extra.
func NewCategoryRegistry(extra ...string) *CategoryRegistry {
	r := &CategoryRegistry{set: make(map[string]struct{})}
	r.Add(defaultCategories...)
	r.Add(extra...)
	return r
}

// Add registers categories, ignoring blanks.
func (r *CategoryRegistry) Add(categories ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range categories {
		c = normalizeCategory(c)
		if c != "" {
			r.set[c] = struct{}{}
		}
	}
}

func (r *CategoryRegistry) Contains(category string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.set[normalizeCategory(category)]
	return ok
}

// List returns the categories sorted.
func (r *CategoryRegistry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.set))
	for c := range r.set {
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}

func normalizeCategory(c string) string {
	return strings.ToLower(strings.TrimSpace(c))
}

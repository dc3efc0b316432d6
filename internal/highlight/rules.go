package highlight

import (
	"fmt"
	"os"
	"sync"

	"gopkg.in/yaml.v3"

	"signalscribe/pkg/logger"
)

// Entry is one color's set of phrases, kept in the order they appeared in
// colors.yaml so Highlight can honor "colors in dictionary-iteration order".
type Entry struct {
	Color   string
	Phrases []string
}

// Rules is the parsed, validated contents of colors.yaml. Mutated wholesale
// on reload, read by Highlight; access is serialized through mu and readers
// take a snapshot to minimize hold time, per the shared mutable state
// discipline the pipeline uses for cross-stage state.
type Rules struct {
	mu      sync.RWMutex
	entries []Entry
}

// New returns an empty rule set (used before any colors.yaml exists).
func New() *Rules {
	return &Rules{}
}

// Load parses colors.yaml at path and returns a populated Rules. Unknown
// color names are dropped with a warning; other entries are retained.
func Load(path string) (*Rules, error) {
	r := New()
	if err := r.Reload(path); err != nil {
		return nil, err
	}
	return r, nil
}

// Reload re-parses path and atomically swaps the rule set. On a parse
// failure the previous rules are retained and the error is returned so the
// caller can log it; this matches the "invalid YAML is reported and the
// previous rules are retained" contract.
func (r *Rules) Reload(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("highlight: read %s: %w", path, err)
	}

	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("highlight: parse %s: %w", path, err)
	}

	entries, err := decodeOrdered(&doc)
	if err != nil {
		return fmt.Errorf("highlight: parse %s: %w", path, err)
	}

	var kept []Entry
	for _, e := range entries {
		if !ValidColorName(e.Color) {
			logger.Warn("dropping colors.yaml entry with unknown color", "color", e.Color)
			continue
		}
		kept = append(kept, e)
	}

	r.mu.Lock()
	r.entries = kept
	r.mu.Unlock()
	return nil
}

// decodeOrdered walks the raw YAML document tree so the top-level mapping's
// key order is preserved; a plain map[string][]string decode would
// randomize it, breaking the "colors in dictionary-iteration order" rule.
func decodeOrdered(doc *yaml.Node) ([]Entry, error) {
	if len(doc.Content) == 0 {
		return nil, nil
	}
	root := doc.Content[0]
	if root.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("expected a top-level mapping, got %v", root.Kind)
	}

	var entries []Entry
	for i := 0; i+1 < len(root.Content); i += 2 {
		keyNode := root.Content[i]
		valNode := root.Content[i+1]

		var phrases []string
		if err := valNode.Decode(&phrases); err != nil {
			return nil, fmt.Errorf("color %q: %w", keyNode.Value, err)
		}
		entries = append(entries, Entry{Color: keyNode.Value, Phrases: phrases})
	}
	return entries, nil
}

// Entries returns a copy of the current rule set.
func (r *Rules) Entries() []Entry {
	return r.snapshot()
}

// snapshot copies the current rule set so Highlight can iterate without
// holding the lock.
func (r *Rules) snapshot() []Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Entry, len(r.entries))
	copy(out, r.entries)
	return out
}

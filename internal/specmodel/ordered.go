// Package specmodel holds the typed representation of a merged Resinker
// specification document: schemas, entities, event types, scenarios,
// simulation settings, and outputs.
//
// The engine's determinism contract requires iterating spec-declared
// collections in declaration order, not map order, so the top-level
// schemas, entities, event_types, and scenarios collections, object
// properties, and state_attributes are OrderedMaps rather than plain Go
// maps. Smaller keyed settings (initial_entity_counts, params,
// set_attributes, increment_attributes, payload_overrides, topic_mapping)
// are plain maps.
package specmodel

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// OrderedMap decodes a YAML mapping node while preserving key declaration
// order, which a plain map[string]V cannot do. Lookups are O(1) via the
// backing map; iteration follows Keys().
type OrderedMap[V any] struct {
	keys   []string
	values map[string]V
}

// NewOrderedMap returns an empty ordered map.
func NewOrderedMap[V any]() *OrderedMap[V] {
	return &OrderedMap[V]{values: make(map[string]V)}
}

// Set assigns a key, appending it to declared order the first time it's seen.
func (m *OrderedMap[V]) Set(key string, v V) {
	if m.values == nil {
		m.values = make(map[string]V)
	}
	if _, ok := m.values[key]; !ok {
		m.keys = append(m.keys, key)
	}
	m.values[key] = v
}

// Get returns the value for key and whether it was present.
func (m *OrderedMap[V]) Get(key string) (V, bool) {
	v, ok := m.values[key]
	return v, ok
}

// Keys returns keys in declaration order.
func (m *OrderedMap[V]) Keys() []string {
	out := make([]string, len(m.keys))
	copy(out, m.keys)
	return out
}

// Len returns the number of entries.
func (m *OrderedMap[V]) Len() int { return len(m.keys) }

// UnmarshalYAML implements yaml.Unmarshaler, preserving mapping key order.
func (m *OrderedMap[V]) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("expected mapping node, got kind %d", node.Kind)
	}
	m.values = make(map[string]V, len(node.Content)/2)
	m.keys = nil
	for i := 0; i < len(node.Content); i += 2 {
		keyNode := node.Content[i]
		valNode := node.Content[i+1]
		var v V
		if err := valNode.Decode(&v); err != nil {
			return fmt.Errorf("field %q: %w", keyNode.Value, err)
		}
		m.Set(keyNode.Value, v)
	}
	return nil
}

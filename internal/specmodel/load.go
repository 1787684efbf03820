package specmodel

import (
	"fmt"
	"io"

	"gopkg.in/yaml.v3"
)

// Load decodes a single merged, already-validated Resinker specification
// document. Import resolution and deep-merge are external collaborators'
// job; this decodes exactly one YAML document.
func Load(r io.Reader) (*Spec, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(false)

	var spec Spec
	if err := dec.Decode(&spec); err != nil {
		return nil, fmt.Errorf("decode spec: %w", err)
	}
	return &spec, nil
}

// ResolveSchemaRef strips the "#/schemas/" prefix a $ref or payload_schema
// value may carry, returning the bare schema name used to look it up in
// Spec.Schemas.
func ResolveSchemaRef(ref string) string {
	const prefix = "#/schemas/"
	if len(ref) > len(prefix) && ref[:len(prefix)] == prefix {
		return ref[len(prefix):]
	}
	return ref
}

// Schema looks up a schema node by name or $ref-qualified reference.
func (s *Spec) Schema(nameOrRef string) (*SchemaNode, bool) {
	if s.Schemas == nil {
		return nil, false
	}
	return s.Schemas.Get(ResolveSchemaRef(nameOrRef))
}

// Entity looks up an entity definition by kind name.
func (s *Spec) Entity(kind string) (*EntityDef, bool) {
	if s.Entities == nil {
		return nil, false
	}
	return s.Entities.Get(kind)
}

// EventType looks up an event type definition by name.
func (s *Spec) EventType(name string) (*EventTypeDef, bool) {
	if s.EventTypes == nil {
		return nil, false
	}
	return s.EventTypes.Get(name)
}

// Scenario looks up a scenario definition by name.
func (s *Spec) Scenario(name string) (*ScenarioDef, bool) {
	if s.Scenarios == nil {
		return nil, false
	}
	return s.Scenarios.Get(name)
}

// SchemaCount, EntityCount, EventTypeCount, and ScenarioCount report the
// size of each top-level collection, nil-safe since an empty section
// decodes to a nil OrderedMap rather than an empty one.
func SchemaCount(s *Spec) int {
	if s.Schemas == nil {
		return 0
	}
	return s.Schemas.Len()
}

func EntityCount(s *Spec) int {
	if s.Entities == nil {
		return 0
	}
	return s.Entities.Len()
}

func EventTypeCount(s *Spec) int {
	if s.EventTypes == nil {
		return 0
	}
	return s.EventTypes.Len()
}

func ScenarioCount(s *Spec) int {
	if s.Scenarios == nil {
		return 0
	}
	return s.Scenarios.Len()
}

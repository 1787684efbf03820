package specmodel

// Spec is the root of a merged, already-validated Resinker specification
// document. The engine receives a single already-merged, already-validated
// document; import resolution is an external collaborator's job — Spec
// never carries an `imports` field.
type Spec struct {
	Version            string                        `yaml:"version"`
	SimulationSettings SimulationSettings             `yaml:"simulation_settings"`
	Schemas            *OrderedMap[*SchemaNode]       `yaml:"schemas"`
	Entities           *OrderedMap[*EntityDef]        `yaml:"entities"`
	EventTypes         *OrderedMap[*EventTypeDef]     `yaml:"event_types"`
	Scenarios          *OrderedMap[*ScenarioDef]      `yaml:"scenarios"`
	Outputs            []OutputConfig                 `yaml:"outputs"`
}

// TimeProgression controls how the simulation clock is seeded and scaled.
type TimeProgression struct {
	StartTime      string  `yaml:"start_time"`      // "now" or ISO 8601
	TimeMultiplier float64 `yaml:"time_multiplier"` // advisory only
}

// SimulationSettings are the global run parameters.
type SimulationSettings struct {
	Duration            string          `yaml:"duration,omitempty"` // "<n>s|m|h"
	TotalEvents         *int            `yaml:"total_events,omitempty"`
	InitialEntityCounts map[string]int  `yaml:"initial_entity_counts"`
	TimeProgression     TimeProgression `yaml:"time_progression"`
	RandomSeed          int64           `yaml:"random_seed"`
}

// SchemaKind discriminates the tagged-variant SchemaNode.
type SchemaKind int

const (
	SchemaPrimitive SchemaKind = iota
	SchemaObject
	SchemaArray
	SchemaReference
)

// SchemaNode is a tagged variant: primitive, object, array, or $ref. Kind
// is derived at load time from the raw fields present.
type SchemaNode struct {
	Kind SchemaKind `yaml:"-"`

	// Raw discriminating fields, as they appear in YAML.
	Type string `yaml:"type,omitempty"`
	Ref  string `yaml:"$ref,omitempty"`

	// Primitive fields.
	Generator string         `yaml:"generator,omitempty"`
	Params    map[string]any `yaml:"params,omitempty"`
	Format    string         `yaml:"format,omitempty"`

	// Object fields.
	Properties *OrderedMap[*SchemaNode] `yaml:"properties,omitempty"`

	// Array fields.
	Items    *SchemaNode `yaml:"items,omitempty"`
	MinItems int         `yaml:"min_items,omitempty"`
	MaxItems int         `yaml:"max_items,omitempty"`

	// Modifiers applicable to any node.
	NullableProbability float64 `yaml:"nullable_probability,omitempty"`
	FromEntity          string  `yaml:"from_entity,omitempty"`
	Field               string  `yaml:"field,omitempty"`
	Description         string  `yaml:"description,omitempty"`
}

// UnmarshalYAML decodes a schema node and derives its Kind from the
// combination of fields present.
func (n *SchemaNode) UnmarshalYAML(unmarshal func(any) error) error {
	type rawNode SchemaNode
	var raw rawNode
	if err := unmarshal(&raw); err != nil {
		return err
	}
	*n = SchemaNode(raw)
	switch {
	case n.Ref != "":
		n.Kind = SchemaReference
	case n.Type == "object":
		n.Kind = SchemaObject
	case n.Type == "array":
		n.Kind = SchemaArray
	default:
		n.Kind = SchemaPrimitive
	}
	return nil
}

// StateAttribute describes one engine-managed field on an entity kind,
// outside its payload schema.
type StateAttribute struct {
	Type      string `yaml:"type"`
	Default   any    `yaml:"default,omitempty"`
	Nullable  bool   `yaml:"nullable,omitempty"`
	FromField string `yaml:"from_field,omitempty"`
}

// EntityDef is one entry of the top-level `entities` mapping.
type EntityDef struct {
	Schema          string                    `yaml:"schema"`
	PrimaryKey      string                    `yaml:"primary_key"`
	StateAttributes *OrderedMap[StateAttribute] `yaml:"state_attributes"`
}

// FilterOperator enumerates the closed set of selection-filter comparisons.
type FilterOperator string

const (
	OpEquals         FilterOperator = "equals"
	OpNotEquals      FilterOperator = "not_equals"
	OpGreaterThan    FilterOperator = "greater_than"
	OpLessThan       FilterOperator = "less_than"
	OpGreaterOrEqual FilterOperator = "greater_or_equal"
	OpLessOrEqual    FilterOperator = "less_or_equal"
	OpIn             FilterOperator = "in"
	OpNotIn          FilterOperator = "not_in"
)

// SelectionClause is one clause of a selection filter conjunction.
type SelectionClause struct {
	Field    string         `yaml:"field"`
	Operator FilterOperator `yaml:"operator"`
	Value    any            `yaml:"value"`
}

// SelectionFilter is a conjunction of clauses.
type SelectionFilter []SelectionClause

// EntityConsumption is one element of an event type's `consumes_entities`.
type EntityConsumption struct {
	Name            string          `yaml:"name"`
	Alias           string          `yaml:"alias"`
	SelectionFilter SelectionFilter `yaml:"selection_filter"`
	MinRequired     int             `yaml:"min_required"`
}

// EntityStateUpdate is one element of an event type's `updates_entity_state`.
type EntityStateUpdate struct {
	EntityAlias         string         `yaml:"entity_alias"`
	SetAttributes       map[string]any `yaml:"set_attributes"`
	IncrementAttributes map[string]any `yaml:"increment_attributes"`
}

// MaxActiveInstancesOfState bounds concurrently-active entities in a given
// state.
type MaxActiveInstancesOfState struct {
	Entity    string `yaml:"entity"`
	Attribute string `yaml:"attribute"`
	Value     any    `yaml:"value"`
	MaxCount  int    `yaml:"max_count"`
}

// EventTypeDef is one entry of the top-level `event_types` mapping.
type EventTypeDef struct {
	PayloadSchema             string                     `yaml:"payload_schema"`
	ProducesEntity            string                     `yaml:"produces_entity,omitempty"`
	ProducesOrUpdatesEntity   string                     `yaml:"produces_or_updates_entity,omitempty"`
	UpdateExistingProbability float64                    `yaml:"update_existing_probability,omitempty"`
	ConsumesEntities          []EntityConsumption        `yaml:"consumes_entities"`
	UpdatesEntityState        []EntityStateUpdate        `yaml:"updates_entity_state"`
	FrequencyWeight           float64                    `yaml:"frequency_weight"`
	MaxActiveInstancesOfState *MaxActiveInstancesOfState `yaml:"max_active_instances_of_state,omitempty"`
}

// ScenarioStepDelay samples an inter-step delay.
type ScenarioStepDelay struct {
	MinSeconds float64 `yaml:"min_seconds"`
	MaxSeconds float64 `yaml:"max_seconds"`
}

// ScenarioStepLoop repeats a step.
type ScenarioStepLoop struct {
	MinCount          int     `yaml:"min_count"`
	MaxCount          int     `yaml:"max_count"`
	DelayBetweenLoops float64 `yaml:"delay_between_loops"`
}

// ScenarioStep is one element of a scenario's `steps` list.
type ScenarioStep struct {
	EventType         string             `yaml:"event_type"`
	PayloadOverrides  map[string]any     `yaml:"payload_overrides"`
	DelayAfterPrevious *ScenarioStepDelay `yaml:"delay_after_previous_step,omitempty"`
	Loop              *ScenarioStepLoop  `yaml:"loop,omitempty"`
}

// ScenarioEntityRequirement is one element of a scenario's
// `requires_initial_entities`.
type ScenarioEntityRequirement struct {
	Name            string          `yaml:"name"`
	Alias           string          `yaml:"alias"`
	SelectionFilter SelectionFilter `yaml:"selection_filter"`
}

// ScenarioDef is one entry of the top-level `scenarios` mapping.
type ScenarioDef struct {
	Description             string                      `yaml:"description,omitempty"`
	InitiationWeight        float64                     `yaml:"initiation_weight"`
	RequiresInitialEntities []ScenarioEntityRequirement `yaml:"requires_initial_entities"`
	Steps                   []ScenarioStep              `yaml:"steps"`
}

// OutputConfig is one entry of the top-level `outputs` list.
type OutputConfig struct {
	Type    string `yaml:"type"`
	Enabled bool   `yaml:"enabled"`
	Format  string `yaml:"format"` // json | json_pretty

	// file
	FilePath     string `yaml:"file_path,omitempty"`
	FileRotation string `yaml:"file_rotation,omitempty"`

	// kafka
	TopicMapping       map[string]string `yaml:"topic_mapping,omitempty"`
	DefaultTopic       string            `yaml:"default_topic,omitempty"`
	KafkaBrokers       string            `yaml:"kafka_brokers,omitempty"`
	SecurityProtocol   string            `yaml:"security_protocol,omitempty"`
	SASLMechanism      string            `yaml:"sasl_mechanism,omitempty"`
	SASLPlainUsername  string            `yaml:"sasl_plain_username,omitempty"`
	SASLPlainPassword  string            `yaml:"sasl_plain_password,omitempty"`
}

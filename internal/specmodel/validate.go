package specmodel

import "fmt"

// ValidationError reports one structural problem found while cross
// checking a spec's internal references: a field/message/code triple
// used for both text and JSON CLI output.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
}

const (
	errCodeUnknownSchema   = "E_UNKNOWN_SCHEMA"
	errCodeUnknownEntity   = "E_UNKNOWN_ENTITY"
	errCodeUnknownEvent    = "E_UNKNOWN_EVENT_TYPE"
	errCodeMissingField    = "E_MISSING_FIELD"
	errCodeInvalidSchema   = "E_INVALID_SCHEMA_NODE"
	errCodeDuplicateOutput = "E_DUPLICATE_OUTPUT"
)

// Validate cross-checks every reference a spec makes against its own
// declared collections (schemas, entities, event types): entity.schema,
// event_type.payload_schema, produces_entity/produces_or_updates_entity,
// consumes_entities/requires_initial_entities kinds, and $ref targets
// inside schema trees. It does not re-validate YAML syntax, since Load
// already failed fast on that.
func (s *Spec) Validate() []ValidationError {
	var errs []ValidationError

	if s.Schemas != nil {
		for _, name := range s.Schemas.Keys() {
			node, _ := s.Schemas.Get(name)
			errs = append(errs, validateSchemaNode(s, fmt.Sprintf("schemas.%s", name), node)...)
		}
	}

	if s.Entities != nil {
		for _, kind := range s.Entities.Keys() {
			def, _ := s.Entities.Get(kind)
			if _, ok := s.Schema(def.Schema); !ok {
				errs = append(errs, ValidationError{
					Field:   fmt.Sprintf("entities.%s.schema", kind),
					Message: fmt.Sprintf("references unknown schema %q", def.Schema),
					Code:    errCodeUnknownSchema,
				})
			}
			if def.PrimaryKey == "" {
				errs = append(errs, ValidationError{
					Field:   fmt.Sprintf("entities.%s.primary_key", kind),
					Message: "primary_key is required",
					Code:    errCodeMissingField,
				})
			}
		}
	}

	if s.EventTypes != nil {
		for _, name := range s.EventTypes.Keys() {
			def, _ := s.EventTypes.Get(name)
			errs = append(errs, validateEventType(s, name, def)...)
		}
	}

	if s.Scenarios != nil {
		for _, name := range s.Scenarios.Keys() {
			def, _ := s.Scenarios.Get(name)
			errs = append(errs, validateScenario(s, name, def)...)
		}
	}

	seenOutput := make(map[string]bool)
	for i, out := range s.Outputs {
		if out.Type == "" {
			errs = append(errs, ValidationError{
				Field:   fmt.Sprintf("outputs[%d].type", i),
				Message: "type is required",
				Code:    errCodeMissingField,
			})
			continue
		}
		key := out.Type + ":" + out.FilePath
		if seenOutput[key] && out.Type == "file" {
			errs = append(errs, ValidationError{
				Field:   fmt.Sprintf("outputs[%d]", i),
				Message: fmt.Sprintf("duplicate file sink for path %q", out.FilePath),
				Code:    errCodeDuplicateOutput,
			})
		}
		seenOutput[key] = true
	}

	return errs
}

func validateSchemaNode(s *Spec, path string, node *SchemaNode) []ValidationError {
	if node == nil {
		return nil
	}
	var errs []ValidationError
	switch node.Kind {
	case SchemaReference:
		if _, ok := s.Schema(node.Ref); !ok {
			errs = append(errs, ValidationError{
				Field:   path,
				Message: fmt.Sprintf("$ref %q does not resolve", node.Ref),
				Code:    errCodeUnknownSchema,
			})
		}
	case SchemaObject:
		if node.Properties == nil || node.Properties.Len() == 0 {
			errs = append(errs, ValidationError{
				Field:   path,
				Message: "object schema has no properties",
				Code:    errCodeInvalidSchema,
			})
		} else {
			for _, field := range node.Properties.Keys() {
				child, _ := node.Properties.Get(field)
				errs = append(errs, validateSchemaNode(s, path+"."+field, child)...)
			}
		}
	case SchemaArray:
		if node.Items == nil {
			errs = append(errs, ValidationError{
				Field:   path,
				Message: "array schema has no items",
				Code:    errCodeInvalidSchema,
			})
		} else {
			errs = append(errs, validateSchemaNode(s, path+"[]", node.Items)...)
		}
	case SchemaPrimitive:
		if node.Generator == "" && node.FromEntity == "" {
			errs = append(errs, ValidationError{
				Field:   path,
				Message: "primitive schema has neither generator nor from_entity",
				Code:    errCodeInvalidSchema,
			})
		}
	}
	return errs
}

func validateEventType(s *Spec, name string, def *EventTypeDef) []ValidationError {
	var errs []ValidationError
	if _, ok := s.Schema(def.PayloadSchema); !ok {
		errs = append(errs, ValidationError{
			Field:   fmt.Sprintf("event_types.%s.payload_schema", name),
			Message: fmt.Sprintf("references unknown schema %q", def.PayloadSchema),
			Code:    errCodeUnknownSchema,
		})
	}
	if def.ProducesEntity != "" {
		if _, ok := s.Entity(def.ProducesEntity); !ok {
			errs = append(errs, ValidationError{
				Field:   fmt.Sprintf("event_types.%s.produces_entity", name),
				Message: fmt.Sprintf("references unknown entity %q", def.ProducesEntity),
				Code:    errCodeUnknownEntity,
			})
		}
	}
	if def.ProducesOrUpdatesEntity != "" {
		if _, ok := s.Entity(def.ProducesOrUpdatesEntity); !ok {
			errs = append(errs, ValidationError{
				Field:   fmt.Sprintf("event_types.%s.produces_or_updates_entity", name),
				Message: fmt.Sprintf("references unknown entity %q", def.ProducesOrUpdatesEntity),
				Code:    errCodeUnknownEntity,
			})
		}
	}
	for _, c := range def.ConsumesEntities {
		if _, ok := s.Entity(c.Name); !ok {
			errs = append(errs, ValidationError{
				Field:   fmt.Sprintf("event_types.%s.consumes_entities", name),
				Message: fmt.Sprintf("references unknown entity %q", c.Name),
				Code:    errCodeUnknownEntity,
			})
		}
	}
	for _, u := range def.UpdatesEntityState {
		found := false
		for _, c := range def.ConsumesEntities {
			if c.Alias == u.EntityAlias {
				found = true
				break
			}
		}
		if !found && u.EntityAlias != def.ProducesEntity && u.EntityAlias != def.ProducesOrUpdatesEntity {
			errs = append(errs, ValidationError{
				Field:   fmt.Sprintf("event_types.%s.updates_entity_state", name),
				Message: fmt.Sprintf("entity_alias %q does not match any consumed alias or produced entity", u.EntityAlias),
				Code:    errCodeUnknownEntity,
			})
		}
	}
	return errs
}

func validateScenario(s *Spec, name string, def *ScenarioDef) []ValidationError {
	var errs []ValidationError
	for _, req := range def.RequiresInitialEntities {
		if _, ok := s.Entity(req.Name); !ok {
			errs = append(errs, ValidationError{
				Field:   fmt.Sprintf("scenarios.%s.requires_initial_entities", name),
				Message: fmt.Sprintf("references unknown entity %q", req.Name),
				Code:    errCodeUnknownEntity,
			})
		}
	}
	if len(def.Steps) == 0 {
		errs = append(errs, ValidationError{
			Field:   fmt.Sprintf("scenarios.%s.steps", name),
			Message: "scenario has no steps",
			Code:    errCodeMissingField,
		})
	}
	for i, step := range def.Steps {
		if _, ok := s.EventType(step.EventType); !ok {
			errs = append(errs, ValidationError{
				Field:   fmt.Sprintf("scenarios.%s.steps[%d].event_type", name, i),
				Message: fmt.Sprintf("references unknown event type %q", step.EventType),
				Code:    errCodeUnknownEvent,
			})
		}
	}
	return errs
}

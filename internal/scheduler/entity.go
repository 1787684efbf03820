package scheduler

import (
	"fmt"

	"github.com/roach88/resinker/internal/entitystore"
	"github.com/roach88/resinker/internal/specmodel"
	"github.com/roach88/resinker/internal/value"
)

// instantiateEntity builds a new Instance for kind from a generated
// payload, initializing its engine-managed state attributes from
// state_attributes.from_field/default.
func instantiateEntity(kind string, def *specmodel.EntityDef, payload *value.Object) (*entitystore.Instance, error) {
	pkValue, ok := payload.Get(def.PrimaryKey)
	if !ok {
		return nil, fmt.Errorf("entity %q: payload missing declared primary_key field %q", kind, def.PrimaryKey)
	}
	state := value.NewObject()
	if def.StateAttributes != nil {
		for _, name := range def.StateAttributes.Keys() {
			attr, _ := def.StateAttributes.Get(name)
			if attr.FromField != "" {
				if v, ok := payload.Get(attr.FromField); ok {
					state.Set(name, v)
					continue
				}
				if attr.Nullable {
					state.Set(name, value.Null{})
				}
				continue
			}
			if attr.Default != nil {
				state.Set(name, value.FromNative(attr.Default))
			} else if attr.Nullable {
				state.Set(name, value.Null{})
			}
		}
	}
	return &entitystore.Instance{
		Kind:            kind,
		PrimaryKeyValue: pkValue,
		Payload:         payload,
		State:           state,
	}, nil
}

// applyStateUpdates runs one event's updates_entity_state list against the
// bound entities, in declared order. The whole list is applied as one
// unit: every touched instance's state is snapshotted before the first
// mutation, and if any entry fails partway through, every snapshot is
// restored before returning the error. This keeps a multi-item list from
// ever leaving a partial mutation behind when the overall commit fails.
func applyStateUpdates(binding *entitystore.Binding, updates []specmodel.EntityStateUpdate, payload *value.Object) error {
	if len(updates) == 0 {
		return nil
	}

	targets := make([]*entitystore.Instance, len(updates))
	snapshots := make(map[*entitystore.Instance]*value.Object, len(updates))
	for i, update := range updates {
		inst, ok := binding.Resolve(update.EntityAlias)
		if !ok {
			return fmt.Errorf("updates_entity_state: no bound entity for alias %q", update.EntityAlias)
		}
		targets[i] = inst
		if _, seen := snapshots[inst]; !seen {
			snapshots[inst] = inst.State.Clone()
		}
	}
	restore := func() {
		for inst, snapshot := range snapshots {
			inst.State = snapshot
		}
	}

	for i, update := range updates {
		target := targets[i]
		for attr, raw := range update.SetAttributes {
			v, err := resolveUpdateValue(raw, payload)
			if err != nil {
				restore()
				return fmt.Errorf("set_attributes[%s]: %w", attr, err)
			}
			target.State.Set(attr, v)
		}
		for attr, raw := range update.IncrementAttributes {
			delta, err := resolveUpdateValue(raw, payload)
			if err != nil {
				restore()
				return fmt.Errorf("increment_attributes[%s]: %w", attr, err)
			}
			deltaNum, ok := asNumeric(delta)
			if !ok {
				restore()
				return fmt.Errorf("increment_attributes[%s]: delta is not numeric", attr)
			}
			current, _ := target.State.Get(attr)
			currentNum, _ := asNumeric(current)
			target.State.Set(attr, value.Float(currentNum+deltaNum))
		}
	}
	return nil
}

// resolveUpdateValue interprets one set_attributes/increment_attributes
// entry: either a literal, or {from_payload_field: "<path>", negate: bool}.
func resolveUpdateValue(raw any, payload *value.Object) (value.Value, error) {
	m, ok := raw.(map[string]any)
	if !ok {
		return value.FromNative(raw), nil
	}
	fieldPath, ok := m["from_payload_field"].(string)
	if !ok {
		return value.FromNative(raw), nil
	}
	v, ok := nestedPayloadField(payload, fieldPath)
	if !ok {
		return nil, fmt.Errorf("from_payload_field %q not present in generated payload", fieldPath)
	}
	if negate, _ := m["negate"].(bool); negate {
		n, ok := asNumeric(v)
		if !ok {
			return nil, fmt.Errorf("from_payload_field %q: negate requires a numeric value", fieldPath)
		}
		return value.Float(-n), nil
	}
	return v, nil
}

func nestedPayloadField(obj *value.Object, path string) (value.Value, bool) {
	cur := value.Value(obj)
	for _, part := range splitDot(path) {
		o, ok := cur.(*value.Object)
		if !ok {
			return nil, false
		}
		v, ok := o.Get(part)
		if !ok {
			return nil, false
		}
		cur = v
	}
	return cur, true
}

func splitDot(s string) []string {
	var parts []string
	start := 0
	for i := 0; i < len(s); i++ {
		if s[i] == '.' {
			parts = append(parts, s[start:i])
			start = i + 1
		}
	}
	parts = append(parts, s[start:])
	return parts
}

func asNumeric(v value.Value) (float64, bool) {
	switch val := v.(type) {
	case value.Int:
		return float64(val), true
	case value.Float:
		return float64(val), true
	default:
		return 0, false
	}
}

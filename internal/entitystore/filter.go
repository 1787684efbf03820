package entitystore

import (
	"reflect"
	"strings"

	"github.com/roach88/resinker/internal/specmodel"
	"github.com/roach88/resinker/internal/value"
)

// Matches reports whether inst satisfies every clause of filter
// (conjunction). A filter with no clauses matches everything.
func Matches(inst *Instance, filter specmodel.SelectionFilter) bool {
	for _, clause := range filter {
		if !matchesClause(inst, clause) {
			return false
		}
	}
	return true
}

// FieldValue resolves field against inst's payload or state, using the
// same resolution rules as selection filters: "state.<name>" against
// state, "payload.<path>" (or a bare path) against payload. Used by the
// generator interpreter's from_entity modifier.
func FieldValue(inst *Instance, field string) (value.Value, bool) {
	return resolveField(inst, field)
}

func matchesClause(inst *Instance, clause specmodel.SelectionClause) bool {
	actual, ok := resolveField(inst, clause.Field)
	if !ok {
		return false
	}
	return evalOperator(clause.Operator, actual, clause.Value)
}

// resolveField resolves "state.<name>" against State, "payload.<path>"
// (or a bare, unprefixed path) against Payload.
func resolveField(inst *Instance, field string) (value.Value, bool) {
	switch {
	case strings.HasPrefix(field, "state."):
		name := strings.TrimPrefix(field, "state.")
		return inst.State.Get(name)
	case strings.HasPrefix(field, "payload."):
		path := strings.TrimPrefix(field, "payload.")
		return resolvePath(inst.Payload, path)
	default:
		return resolvePath(inst.Payload, field)
	}
}

func resolvePath(obj *value.Object, path string) (value.Value, bool) {
	if obj == nil {
		return nil, false
	}
	parts := strings.Split(path, ".")
	var cur value.Value = obj
	for _, p := range parts {
		o, ok := cur.(*value.Object)
		if !ok {
			return nil, false
		}
		v, ok := o.Get(p)
		if !ok {
			return nil, false
		}
		cur = v
	}
	return cur, true
}

// evalOperator applies one of the closed set of filter operators. Type
// mismatches are not fatal: the clause simply fails.
func evalOperator(op specmodel.FilterOperator, actual value.Value, want any) bool {
	switch op {
	case specmodel.OpEquals:
		return deepEqual(actual, want)
	case specmodel.OpNotEquals:
		return !deepEqual(actual, want)
	case specmodel.OpGreaterThan:
		a, w, ok := numericPair(actual, want)
		return ok && a > w
	case specmodel.OpLessThan:
		a, w, ok := numericPair(actual, want)
		return ok && a < w
	case specmodel.OpGreaterOrEqual:
		a, w, ok := numericPair(actual, want)
		return ok && a >= w
	case specmodel.OpLessOrEqual:
		a, w, ok := numericPair(actual, want)
		return ok && a <= w
	case specmodel.OpIn:
		return containsValue(want, actual)
	case specmodel.OpNotIn:
		return !containsValue(want, actual)
	default:
		return false
	}
}

func deepEqual(actual value.Value, want any) bool {
	return reflect.DeepEqual(value.ToNative(actual), normalizeNative(want))
}

// normalizeNative coerces a YAML-decoded scalar to the same representation
// value.ToNative would produce (int64 for whole numbers), so equality
// comparisons between a generated value.Int and a YAML int literal agree.
func normalizeNative(v any) any {
	switch val := v.(type) {
	case int:
		return int64(val)
	default:
		return val
	}
}

func numericPair(actual value.Value, want any) (float64, float64, bool) {
	a, ok := asFloat(actual)
	if !ok {
		return 0, 0, false
	}
	w, ok := asFloat(value.FromNative(normalizeNative(want)))
	if !ok {
		return 0, 0, false
	}
	return a, w, true
}

func asFloat(v value.Value) (float64, bool) {
	switch val := v.(type) {
	case value.Int:
		return float64(val), true
	case value.Float:
		return float64(val), true
	default:
		return 0, false
	}
}

// containsValue reports whether needle appears in the array-valued rhs.
// in/not_in require an array-valued RHS; a non-array RHS makes the
// clause fail (not fatal).
func containsValue(rhs any, needle value.Value) bool {
	list, ok := rhs.([]any)
	if !ok {
		return false
	}
	needleNative := value.ToNative(needle)
	for _, item := range list {
		if reflect.DeepEqual(needleNative, normalizeNative(item)) {
			return true
		}
	}
	return false
}

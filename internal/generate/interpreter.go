// Package generate implements the generator interpreter: it evaluates a
// schema node against a rendering context to produce a conforming payload
// value, supporting entity references, derived expressions, and
// conditional generators.
package generate

import (
	"crypto/md5"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math"
	"math/rand"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/roach88/resinker/internal/entitystore"
	"github.com/roach88/resinker/internal/prng"
	"github.com/roach88/resinker/internal/simclock"
	"github.com/roach88/resinker/internal/specmodel"
	"github.com/roach88/resinker/internal/value"
)

// RenderContext carries every collaborator the interpreter needs to
// evaluate one schema node.
type RenderContext struct {
	Clock    *simclock.Clock
	PRNG     *prng.Streams
	Store    *entitystore.Store
	Binding  *entitystore.Binding
	Provider Provider
}

// Interpreter evaluates schema nodes against a spec's schema registry,
// resolving $ref nodes and guarding against accidental infinite
// recursion. Resolved $refs are not memoized; every evaluation looks the
// target up again, and nesting deeper than maxRefDepth is an error.
type Interpreter struct {
	spec *specmodel.Spec
}

// New returns an interpreter resolving $refs against spec's schema registry.
func New(spec *specmodel.Spec) *Interpreter {
	return &Interpreter{spec: spec}
}

const maxRefDepth = 64

// GenerateObject evaluates an object schema node (typically a payload_schema
// or entity schema) into a *value.Object, the interpreter's standard entry
// point for a whole payload.
func (interp *Interpreter) GenerateObject(node *specmodel.SchemaNode, ctx *RenderContext) (*value.Object, error) {
	v, err := interp.eval(node, ctx, nil, 0, -1)
	if err != nil {
		return nil, err
	}
	obj, ok := v.(*value.Object)
	if !ok {
		return nil, fmt.Errorf("generate: expected object schema, got %T", v)
	}
	return obj, nil
}

// Generate evaluates any schema node to a value.Value.
func (interp *Interpreter) Generate(node *specmodel.SchemaNode, ctx *RenderContext, partial *value.Object) (value.Value, error) {
	return interp.eval(node, ctx, partial, 0, -1)
}

// eval evaluates node. itemIndex is the enclosing array's item position
// when node is (part of) one item of an array, or -1 outside any array
// context; it lets a from_entity reference inside an array item resolve a
// distinct bound instance per item instead of reusing one instance for the
// whole event.
func (interp *Interpreter) eval(node *specmodel.SchemaNode, ctx *RenderContext, partial *value.Object, depth, itemIndex int) (value.Value, error) {
	if depth > maxRefDepth {
		return nil, fmt.Errorf("generate: $ref recursion exceeded %d levels (cyclic schema?)", maxRefDepth)
	}

	// Modifier 1: from_entity + field is late-bound against the binding.
	if node.FromEntity != "" && node.Field != "" {
		return interp.evalFromEntity(node, ctx, itemIndex)
	}

	// Modifier 2: $ref resolution, merging local from_entity/field
	// overrides onto the referenced node.
	if node.Kind == specmodel.SchemaReference {
		referenced, ok := interp.spec.Schema(node.Ref)
		if !ok {
			return nil, fmt.Errorf("generate: $ref %q not found in schema registry", node.Ref)
		}
		merged := mergeRefOverrides(referenced, node)
		return interp.eval(merged, ctx, partial, depth+1, itemIndex)
	}

	// Modifier 3: nullable_probability.
	if node.NullableProbability > 0 {
		if ctx.PRNG.Stream(prng.StreamGenerator).Float64() < node.NullableProbability {
			return value.Null{}, nil
		}
	}

	var v value.Value
	var err error
	switch node.Kind {
	case specmodel.SchemaObject:
		v, err = interp.evalObject(node, ctx, depth, itemIndex)
	case specmodel.SchemaArray:
		v, err = interp.evalArray(node, ctx, depth)
	default:
		v, err = interp.evalPrimitive(node, ctx, partial)
	}
	if err != nil {
		return nil, err
	}

	// Modifier 5: precision rounds numeric outputs.
	if node.Params != nil {
		if p, ok := node.Params["precision"]; ok {
			v = applyPrecision(v, p)
		}
	}
	return v, nil
}

// mergeRefOverrides combines a referenced schema node with any
// additionally-specified fields on the referencing node ($ref plus
// siblings).
func mergeRefOverrides(referenced, ref *specmodel.SchemaNode) *specmodel.SchemaNode {
	merged := *referenced
	if ref.FromEntity != "" {
		merged.FromEntity = ref.FromEntity
	}
	if ref.Field != "" {
		merged.Field = ref.Field
	}
	if ref.NullableProbability > 0 {
		merged.NullableProbability = ref.NullableProbability
	}
	return &merged
}

func (interp *Interpreter) evalFromEntity(node *specmodel.SchemaNode, ctx *RenderContext, itemIndex int) (value.Value, error) {
	if ctx.Binding == nil {
		return nil, fmt.Errorf("generate: from_entity %q requires a binding, none provided", node.FromEntity)
	}
	var inst *entitystore.Instance
	var ok bool
	if itemIndex >= 0 {
		// Inside an array item: prefer a distinct bound instance per item
		// position over the single-instance resolution below.
		inst, ok = ctx.Binding.ByKindIndexed(node.FromEntity, itemIndex)
	}
	if !ok {
		inst, ok = ctx.Binding.Resolve(node.FromEntity)
	}
	if !ok {
		return nil, fmt.Errorf("generate: no binding for from_entity %q", node.FromEntity)
	}
	v, ok := entitystore.FieldValue(inst, node.Field)
	if !ok {
		return value.Null{}, nil
	}
	return v, nil
}

func (interp *Interpreter) evalObject(node *specmodel.SchemaNode, ctx *RenderContext, depth, itemIndex int) (value.Value, error) {
	obj := value.NewObject()
	if node.Properties == nil {
		return obj, nil
	}
	for _, name := range node.Properties.Keys() {
		propNode, _ := node.Properties.Get(name)
		v, err := interp.eval(propNode, ctx, obj, depth+1, itemIndex)
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", name, err)
		}
		obj.Set(name, v)
	}
	return obj, nil
}

func (interp *Interpreter) evalArray(node *specmodel.SchemaNode, ctx *RenderContext, depth int) (value.Value, error) {
	if node.Items == nil {
		return nil, fmt.Errorf("generate: array schema missing items")
	}
	minItems, maxItems := node.MinItems, node.MaxItems
	if maxItems < minItems {
		maxItems = minItems + 5
	}
	r := ctx.PRNG.Stream(prng.StreamGenerator)
	count := minItems
	if maxItems > minItems {
		count = minItems + r.Intn(maxItems-minItems+1)
	}

	arr := make(value.Array, 0, count)
	for i := 0; i < count; i++ {
		item, err := interp.eval(node.Items, ctx, nil, depth+1, i)
		if err != nil {
			return nil, fmt.Errorf("array item %d: %w", i, err)
		}
		arr = append(arr, item)
	}
	return arr, nil
}

func (interp *Interpreter) evalPrimitive(node *specmodel.SchemaNode, ctx *RenderContext, partial *value.Object) (value.Value, error) {
	gen := node.Generator
	if gen == "" {
		return value.Null{}, nil
	}
	if len(gen) > 6 && gen[:6] == "faker." {
		if ctx.Provider == nil {
			return nil, fmt.Errorf("generate: no realistic-value provider configured for %q", gen)
		}
		return ctx.Provider.Generate(gen[6:], node.Params)
	}

	switch gen {
	case "uuid_v4":
		return value.String(newUUIDv4(ctx.PRNG.Stream(prng.StreamGenerator))), nil
	case "random_int":
		return evalRandomInt(node, ctx)
	case "random_float":
		return evalRandomFloat(node, ctx)
	case "random_alphanumeric":
		return evalRandomAlphanumeric(node, ctx)
	case "choice":
		return evalChoice(node.Params, ctx)
	case "conditional_choice":
		return evalConditionalChoice(node, ctx, partial)
	case "current_timestamp":
		return evalCurrentTimestamp(node, ctx), nil
	case "static":
		return value.FromNative(node.Params["value"]), nil
	case "static_hashed":
		return interp.evalStaticHashed(node, ctx)
	case "derived":
		return evalDerived(node, partial)
	default:
		return nil, fmt.Errorf("generate: unknown generator %q", gen)
	}
}

func evalRandomInt(node *specmodel.SchemaNode, ctx *RenderContext) (value.Value, error) {
	minV, maxV := paramInt(node.Params, "min", 0), paramInt(node.Params, "max", 100)
	if maxV < minV {
		return nil, fmt.Errorf("generate: random_int max < min")
	}
	r := ctx.PRNG.Stream(prng.StreamGenerator)
	return value.Int(int64(minV) + int64(r.Intn(maxV-minV+1))), nil
}

func evalRandomFloat(node *specmodel.SchemaNode, ctx *RenderContext) (value.Value, error) {
	minV, maxV := paramFloat(node.Params, "min", 0), paramFloat(node.Params, "max", 1)
	r := ctx.PRNG.Stream(prng.StreamGenerator)
	v := prng.Uniform(r, minV, maxV)
	if p, ok := node.Params["precision"]; ok {
		v = roundToPrecision(v, paramIntFromAny(p, 2))
	}
	return value.Float(v), nil
}

func evalRandomAlphanumeric(node *specmodel.SchemaNode, ctx *RenderContext) (value.Value, error) {
	length := paramInt(node.Params, "length", 10)
	const alphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"
	r := ctx.PRNG.Stream(prng.StreamGenerator)
	buf := make([]byte, length)
	for i := range buf {
		buf[i] = alphabet[r.Intn(len(alphabet))]
	}
	return value.String(string(buf)), nil
}

func evalChoice(params map[string]any, ctx *RenderContext) (value.Value, error) {
	choices, ok := params["choices"].([]any)
	if !ok || len(choices) == 0 {
		return nil, fmt.Errorf("generate: choice generator requires non-empty choices")
	}
	weights, err := paramWeights(params["weights"], len(choices))
	if err != nil {
		return nil, err
	}
	r := ctx.PRNG.Stream(prng.StreamGenerator)
	idx := prng.WeightedIndex(r, weights)
	if idx < 0 {
		return nil, fmt.Errorf("generate: choice weights summed to <= 0")
	}
	return value.FromNative(choices[idx]), nil
}

func paramWeights(raw any, n int) ([]float64, error) {
	if raw == nil {
		uniform := make([]float64, n)
		for i := range uniform {
			uniform[i] = 1
		}
		return uniform, nil
	}
	list, ok := raw.([]any)
	if !ok || len(list) != n {
		return nil, fmt.Errorf("generate: number of weights must match number of choices")
	}
	total := 0.0
	out := make([]float64, n)
	for i, w := range list {
		f, ok := asNumber(w)
		if !ok {
			return nil, fmt.Errorf("generate: weight %v is not numeric", w)
		}
		out[i] = f
		total += f
	}
	if total <= 0 {
		return nil, fmt.Errorf("generate: weights must sum > 0")
	}
	return out, nil
}

func evalConditionalChoice(node *specmodel.SchemaNode, ctx *RenderContext, partial *value.Object) (value.Value, error) {
	conditionField, _ := node.Params["condition_field"].(string)
	casesRaw, _ := node.Params["cases"].([]any)
	if conditionField == "" || len(casesRaw) == 0 {
		return nil, fmt.Errorf("generate: conditional_choice requires condition_field and cases")
	}

	var conditionValue value.Value
	if partial != nil {
		conditionValue, _ = partial.Get(conditionField)
	}

	var defaultCase map[string]any
	for _, raw := range casesRaw {
		c, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		if _, isDefault := c["default"]; isDefault {
			if defaultCase == nil {
				defaultCase = c
			}
			continue
		}
		if conditionValue == nil {
			continue
		}
		if matched, err := conditionCaseMatches(c, conditionValue); err != nil {
			return nil, err
		} else if matched {
			return chooseFromCase(c, ctx)
		}
	}
	if defaultCase != nil {
		return chooseFromCase(defaultCase, ctx)
	}
	return nil, fmt.Errorf("generate: conditional_choice has no matching case and no default")
}

func conditionCaseMatches(c map[string]any, actual value.Value) (bool, error) {
	actualNum, isNum := asNumber(value.ToNative(actual))
	if v, ok := c["condition_value_equals"]; ok {
		return valuesEqual(actual, v), nil
	}
	if v, ok := c["condition_value"]; ok {
		return valuesEqual(actual, v), nil
	}
	if v, ok := c["condition_value_greater_than"]; ok {
		want, ok2 := asNumber(v)
		return isNum && ok2 && actualNum > want, nil
	}
	if v, ok := c["condition_value_less_than"]; ok {
		want, ok2 := asNumber(v)
		return isNum && ok2 && actualNum < want, nil
	}
	if list, ok := c["condition_value_in"].([]any); ok {
		for _, v := range list {
			if valuesEqual(actual, v) {
				return true, nil
			}
		}
		return false, nil
	}
	return false, nil
}

func valuesEqual(actual value.Value, want any) bool {
	an := value.ToNative(actual)
	switch w := want.(type) {
	case int:
		wn, ok := asNumber(an)
		return ok && wn == float64(w)
	case float64:
		wn, ok := asNumber(an)
		return ok && wn == w
	default:
		return fmt.Sprint(an) == fmt.Sprint(want)
	}
}

func chooseFromCase(c map[string]any, ctx *RenderContext) (value.Value, error) {
	choices, ok := c["choices"].([]any)
	if !ok || len(choices) == 0 {
		return nil, fmt.Errorf("generate: conditional_choice case has no choices")
	}
	weights, err := paramWeights(c["weights"], len(choices))
	if err != nil {
		return nil, err
	}
	r := ctx.PRNG.Stream(prng.StreamGenerator)
	idx := prng.WeightedIndex(r, weights)
	if idx < 0 {
		idx = 0
	}
	return value.FromNative(choices[idx]), nil
}

func evalCurrentTimestamp(node *specmodel.SchemaNode, ctx *RenderContext) value.Value {
	t := ctx.Clock.Now()
	switch node.Format {
	case "unix":
		return value.Int(t.Unix())
	case "unix_ms":
		return value.Int(t.UnixMilli())
	default:
		return value.String(t.Format("2006-01-02T15:04:05Z07:00"))
	}
}

func (interp *Interpreter) evalStaticHashed(node *specmodel.SchemaNode, ctx *RenderContext) (value.Value, error) {
	algorithm, _ := node.Params["algorithm"].(string)
	if algorithm == "" {
		algorithm = "bcrypt"
	}

	raw, err := interp.rawHashSource(node.Params["raw_value_source"], ctx)
	if err != nil {
		return nil, err
	}

	switch algorithm {
	case "bcrypt":
		hash, err := bcrypt.GenerateFromPassword([]byte(raw), bcrypt.DefaultCost)
		if err != nil {
			return nil, fmt.Errorf("generate: bcrypt: %w", err)
		}
		return value.String(string(hash)), nil
	case "sha256":
		sum := sha256.Sum256([]byte(raw))
		return value.String(hex.EncodeToString(sum[:])), nil
	case "md5":
		sum := md5.Sum([]byte(raw))
		return value.String(hex.EncodeToString(sum[:])), nil
	default:
		return nil, fmt.Errorf("generate: unknown static_hashed algorithm %q", algorithm)
	}
}

func (interp *Interpreter) rawHashSource(source any, ctx *RenderContext) (string, error) {
	m, ok := source.(map[string]any)
	if !ok || m == nil {
		return evalRandomAlphanumericRaw(ctx.PRNG.Stream(prng.StreamGenerator), 12), nil
	}
	generator, _ := m["generator"].(string)
	params, _ := m["params"].(map[string]any)
	node := &specmodel.SchemaNode{Generator: generator, Params: params}
	node.Kind = specmodel.SchemaPrimitive
	v, err := interp.evalPrimitive(node, ctx, nil)
	if err != nil {
		return "", fmt.Errorf("static_hashed raw_value_source: %w", err)
	}
	s, ok := v.(value.String)
	if !ok {
		return fmt.Sprint(value.ToNative(v)), nil
	}
	return string(s), nil
}

func evalRandomAlphanumericRaw(r *rand.Rand, length int) string {
	const alphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"
	buf := make([]byte, length)
	for i := range buf {
		buf[i] = alphabet[r.Intn(len(alphabet))]
	}
	return string(buf)
}

func evalDerived(node *specmodel.SchemaNode, partial *value.Object) (value.Value, error) {
	expression, _ := node.Params["expression"].(string)
	if expression == "" {
		return nil, fmt.Errorf("generate: derived generator requires expression")
	}
	if partial == nil {
		return nil, fmt.Errorf("generate: derived generator has no enclosing object context")
	}
	result, err := evalDerivedExpression(expression, partial)
	if err != nil {
		return nil, err
	}
	if p, ok := node.Params["precision"]; ok {
		result = roundToPrecision(result, paramIntFromAny(p, 2))
	}
	return value.Float(result), nil
}

func applyPrecision(v value.Value, precisionParam any) value.Value {
	precision := paramIntFromAny(precisionParam, 2)
	switch val := v.(type) {
	case value.Float:
		return value.Float(roundToPrecision(float64(val), precision))
	case value.Int:
		return val
	default:
		return v
	}
}

// roundToPrecision rounds v to the given number of decimal places using
// round-half-away-from-zero.
func roundToPrecision(v float64, precision int) float64 {
	mult := math.Pow(10, float64(precision))
	if v >= 0 {
		return math.Floor(v*mult+0.5) / mult
	}
	return math.Ceil(v*mult-0.5) / mult
}

func paramInt(params map[string]any, key string, def int) int {
	if params == nil {
		return def
	}
	if v, ok := params[key]; ok {
		if n, ok := asNumber(v); ok {
			return int(n)
		}
	}
	return def
}

func paramFloat(params map[string]any, key string, def float64) float64 {
	if params == nil {
		return def
	}
	if v, ok := params[key]; ok {
		if n, ok := asNumber(v); ok {
			return n
		}
	}
	return def
}

func paramIntFromAny(v any, def int) int {
	if n, ok := asNumber(v); ok {
		return int(n)
	}
	return def
}

func asNumber(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case float64:
		return n, true
	case float32:
		return float64(n), true
	default:
		return 0, false
	}
}

// newUUIDv4 generates a version-4 UUID via github.com/google/uuid, reading
// its randomness from r (the seeded "generator" sub-stream) rather than
// the library's default crypto/rand source, so the draw stays part of the
// engine's deterministic replay contract.
func newUUIDv4(r *rand.Rand) string {
	id, err := uuid.NewRandomFromReader(r)
	if err != nil {
		// r.Read never errors for math/rand.Rand; this path is unreachable
		// in practice but keeps the function total.
		return uuid.New().String()
	}
	return id.String()
}

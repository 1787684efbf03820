package entitystore

// Binding is an alias→instance mapping for a single event generation. It
// lives only for the duration of one event's payload generation and
// mutation apply; it is never stored on the spec or on a scenario run.
type Binding struct {
	byAlias map[string]*Instance
	byKind  map[string][]*Instance
}

// NewBinding returns an empty binding.
func NewBinding() *Binding {
	return &Binding{
		byAlias: make(map[string]*Instance),
		byKind:  make(map[string][]*Instance),
	}
}

// Bind records that alias (within consumes_entities/produces_entity of the
// event being generated) resolves to inst, a kind-kind instance.
func (b *Binding) Bind(alias, kind string, inst *Instance) {
	if alias != "" {
		b.byAlias[alias] = inst
	}
	b.byKind[kind] = append(b.byKind[kind], inst)
}

// ByAlias resolves a from_entity reference by alias.
func (b *Binding) ByAlias(alias string) (*Instance, bool) {
	inst, ok := b.byAlias[alias]
	return inst, ok
}

// ByKind resolves a from_entity reference by entity kind, succeeding only
// when exactly one instance of that kind is bound.
func (b *Binding) ByKind(kind string) (*Instance, bool) {
	instances := b.byKind[kind]
	if len(instances) != 1 {
		return nil, false
	}
	return instances[0], true
}

// ByKindIndexed returns the idx-th instance bound under kind, wrapping
// around if idx exceeds the bound count. Used to give each array item a
// distinct instance of kind when more than one is bound (e.g.
// `items[].product_id` with `from_entity: Product` against several
// consumed Products); callers fall back to ByKind/Resolve when this
// returns false.
func (b *Binding) ByKindIndexed(kind string, idx int) (*Instance, bool) {
	instances := b.byKind[kind]
	if idx < 0 || len(instances) == 0 {
		return nil, false
	}
	return instances[idx%len(instances)], true
}

func containsInstance(instances []*Instance, target *Instance) bool {
	for _, inst := range instances {
		if inst == target {
			return true
		}
	}
	return false
}

// Resolve looks up a from_entity reference first by alias, falling back
// to kind-uniqueness.
func (b *Binding) Resolve(aliasOrKind string) (*Instance, bool) {
	if inst, ok := b.ByAlias(aliasOrKind); ok {
		return inst, true
	}
	return b.ByKind(aliasOrKind)
}

// MergeFrom copies every alias and kind binding from other into b,
// without overwriting an alias b already has bound — scenario-captured
// bindings are reused where alias names match, otherwise resolved fresh.
func (b *Binding) MergeFrom(other *Binding) {
	if other == nil {
		return
	}
	for alias, inst := range other.byAlias {
		if _, exists := b.byAlias[alias]; !exists {
			b.byAlias[alias] = inst
		}
	}
	for kind, instances := range other.byKind {
		for _, inst := range instances {
			if !containsInstance(b.byKind[kind], inst) {
				b.byKind[kind] = append(b.byKind[kind], inst)
			}
		}
	}
}

package value

import "sync"

// Arena owns the mutable cells backing Cons and Map values. A Value of
// kind Cons or Map never holds a raw pointer into the arena — only a
// handle — so identity and mutation are always mediated by Arena's
// methods, the way the original runtime's pointer-tagged heap cells were
// only ever touched through mv_value_cons_*/mv_value_map_* accessors.
//
// One Arena is created per Runtime (see internal/runtime) and shared by
// every Context and continuation that Runtime ever evaluates — a
// suspended invocation's saved Context and the inbound reply that
// eventually resumes it necessarily share the same Arena, which is
// exactly what lets resume push a reply's Value straight onto the
// parked stack. A handle is only meaningful against the Arena that
// produced it, so a Value must never be handed to a different Runtime's
// Arena.
type Arena struct {
	mu   sync.Mutex
	cons []consCell
	maps []mapCell
}

type consCell struct {
	car, cdr Value
}

type mapCell struct {
	// bindings is Null or a Cons-kind Value (from this same arena) whose
	// elements are Pair(key, value) bindings, most recently added first.
	bindings Value
}

// NewArena returns an empty Arena.
func NewArena() *Arena {
	return &Arena{}
}

// NewCons allocates a fresh Cons cell with Null car/cdr.
func (a *Arena) NewCons() Value {
	a.mu.Lock()
	defer a.mu.Unlock()
	h := uint32(len(a.cons))
	a.cons = append(a.cons, consCell{car: Null(), cdr: Null()})
	return Value{kind: KindCons, handle: h, owner: a}
}

// Cons builds a Cons cell in one step, car=head, cdr=tail.
func (a *Arena) Cons(head, tail Value) Value {
	v := a.NewCons()
	a.ConsSetCar(v, head)
	a.ConsSetCdr(v, tail)
	return v
}

func (a *Arena) requireCons(v Value, op string) *consCell {
	if v.kind != KindCons || v.owner != a {
		panic("value: " + op + " on non-cons or foreign-arena value")
	}
	return &a.cons[v.handle]
}

// ConsCar returns the car slot of a Cons value.
func (a *Arena) ConsCar(v Value) Value {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.requireCons(v, "ConsCar").car
}

// ConsCdr returns the cdr slot of a Cons value.
func (a *Arena) ConsCdr(v Value) Value {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.requireCons(v, "ConsCdr").cdr
}

// ConsSetCar mutates the car slot of a Cons value, returning v.
func (a *Arena) ConsSetCar(v, car Value) Value {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.requireCons(v, "ConsSetCar").car = car
	return v
}

// ConsSetCdr mutates the cdr slot of a Cons value, returning v.
func (a *Arena) ConsSetCdr(v, cdr Value) Value {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.requireCons(v, "ConsSetCdr").cdr = cdr
	return v
}

// NewMap allocates a fresh, empty Map.
func (a *Arena) NewMap() Value {
	a.mu.Lock()
	defer a.mu.Unlock()
	h := uint32(len(a.maps))
	a.maps = append(a.maps, mapCell{bindings: Null()})
	return Value{kind: KindMap, handle: h, owner: a}
}

func (a *Arena) requireMap(v Value, op string) *mapCell {
	if v.kind != KindMap || v.owner != a {
		panic("value: " + op + " on non-map or foreign-arena value")
	}
	return &a.maps[v.handle]
}

// MapLookup searches a Map's bindings for key, most-recently-added first
// (last write wins), returning Null if absent.
func (a *Arena) MapLookup(m, key Value) Value {
	a.mu.Lock()
	defer a.mu.Unlock()
	bindings := a.requireMap(m, "MapLookup").bindings
	for !bindings.IsNull() {
		cell := a.requireCons(bindings, "MapLookup")
		binding := cell.car
		if binding.kind == KindPair && Eq(binding.pair.first, key) {
			return binding.pair.second
		}
		bindings = cell.cdr
	}
	return Null()
}

// MapAdd prepends a new key/value binding to m, returning m. Lookups see
// the new binding first, so re-adding an existing key shadows rather than
// replaces — matching mv_value_map_add's prepend-only bindings list.
func (a *Arena) MapAdd(m, key, val Value) Value {
	binding := Pair(key, val)

	a.mu.Lock()
	mc := a.requireMap(m, "MapAdd")
	prev := mc.bindings
	a.mu.Unlock()

	cons := a.NewCons()
	a.ConsSetCar(cons, binding)
	a.ConsSetCdr(cons, prev)

	a.mu.Lock()
	defer a.mu.Unlock()
	mc = a.requireMap(m, "MapAdd")
	mc.bindings = cons
	return m
}

// MapBindings returns the raw Cons spine of a Map's bindings (Null if
// empty), for callers that need to iterate without going through
// MapLookup (e.g. the codec's serializer).
func (a *Arena) MapBindings(m Value) Value {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.requireMap(m, "MapBindings").bindings
}

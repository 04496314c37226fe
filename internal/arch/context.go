package arch

import (
	"fmt"

	"github.com/pkg/errors"
)

// Context is the root of an architecture: globals, segment prototypes,
// modules, the top-level array, the set of applied passes and the side
// tables passes annotate the architecture with.
type Context struct {
	name     string
	globals  ordered[*Global]
	segments ordered[*SegmentPrototype]
	modules  ordered[*Module]
	top      *Module
	applied  []string
	tables   map[string]*tableEntry
}

// NewContext creates an empty context.
func NewContext(name string) *Context {
	return &Context{
		name:     name,
		globals:  newOrdered[*Global](),
		segments: newOrdered[*SegmentPrototype](),
		modules:  newOrdered[*Module](),
		tables:   make(map[string]*tableEntry),
	}
}

func (c *Context) Name() string { return c.name }

// CreateGlobal declares a global wire.
func (c *Context) CreateGlobal(name string, width int, isClock bool) (*Global, error) {
	if name == "" || width < 1 {
		return nil, errors.Wrapf(ErrInvalidArg, "global %q width %d", name, width)
	}
	g := &Global{Name: name, IsClock: isClock, Width: width}
	if !c.globals.put(name, g) {
		return nil, errors.Wrapf(ErrDuplicate, "global %s", name)
	}
	return g, nil
}

// BindGlobal binds a global to the IO sub-block at pos.
func (c *Context) BindGlobal(name string, pos Position, subblock int) error {
	g, ok := c.globals.get(name)
	if !ok {
		return errors.Wrapf(ErrUnknown, "global %s", name)
	}
	if subblock < 0 {
		return errors.Wrapf(ErrInvalidArg, "global %s subblock %d", name, subblock)
	}
	g.Binding = &GlobalBinding{Position: pos, Subblock: subblock}
	return nil
}

func (c *Context) Global(name string) *Global {
	g, _ := c.globals.get(name)
	return g
}

func (c *Context) Globals() []*Global { return c.globals.values() }

// CreateSegment declares a segment prototype.
func (c *Context) CreateSegment(name string, width, length int) (*SegmentPrototype, error) {
	if name == "" || width < 1 || length < 1 {
		return nil, errors.Wrapf(ErrInvalidArg, "segment %q width %d length %d", name, width, length)
	}
	s := &SegmentPrototype{Name: name, Width: width, Length: length}
	if !c.segments.put(name, s) {
		return nil, errors.Wrapf(ErrDuplicate, "segment %s", name)
	}
	return s, nil
}

func (c *Context) Segment(name string) *SegmentPrototype {
	s, _ := c.segments.get(name)
	return s
}

func (c *Context) Segments() []*SegmentPrototype { return c.segments.values() }

// AddModule registers a module under its name.
func (c *Context) AddModule(m *Module) error {
	if !c.modules.put(m.name, m) {
		return errors.Wrapf(ErrDuplicate, "module %s", m.name)
	}
	return nil
}

func (c *Context) Module(name string) *Module {
	m, _ := c.modules.get(name)
	return m
}

// Modules returns all registered modules in registration order.
func (c *Context) Modules() []*Module { return c.modules.values() }

// SetTop selects the top-level array.
func (c *Context) SetTop(m *Module) error {
	if !m.IsArray() {
		return errors.Wrapf(ErrInvalidArg, "top %s is not an array", m.name)
	}
	if c.Module(m.name) != m {
		return errors.Wrapf(ErrUnknown, "top %s is not registered", m.name)
	}
	c.top = m
	return nil
}

func (c *Context) Top() *Module { return c.top }

func (c *Context) builtin(name string, create func() (*Module, error)) (*Module, error) {
	if m := c.Module(name); m != nil {
		return m, nil
	}
	m, err := create()
	if err != nil {
		return nil, err
	}
	if err := c.AddModule(m); err != nil {
		return nil, err
	}
	return m, nil
}

// LUT returns the shared lutK primitive.
func (c *Context) LUT(k int) (*Module, error) {
	return c.builtin(fmt.Sprintf("lut%d", k), func() (*Module, error) { return NewLUT(k) })
}

// Flipflop returns the shared flip-flop primitive.
func (c *Context) Flipflop() (*Module, error) {
	return c.builtin("flipflop", func() (*Module, error) { return NewFlipflop(), nil })
}

// IOPad returns the shared IO pad primitive.
func (c *Context) IOPad() (*Module, error) {
	return c.builtin("iopad", func() (*Module, error) { return NewIOPad(), nil })
}

// Mux returns the shared cmuxN switch.
func (c *Context) Mux(n int) (*Module, error) {
	return c.builtin(fmt.Sprintf("cmux%d", n), func() (*Module, error) { return NewMux(n) })
}

// MarkApplied records that the pass with key has run.
func (c *Context) MarkApplied(key string) {
	if !c.IsApplied(key) {
		c.applied = append(c.applied, key)
	}
}

// IsApplied reports whether the pass with key has run.
func (c *Context) IsApplied(key string) bool {
	for _, k := range c.applied {
		if k == key {
			return true
		}
	}
	return false
}

// Applied returns the applied pass keys in application order.
func (c *Context) Applied() []string { return append([]string(nil), c.applied...) }

type tableEntry struct {
	owner string
	table any
}

// Table is a typed side table attaching pass-specific annotations to
// architecture objects.
type Table[K comparable, V any] struct {
	name   string
	owner  string
	values map[K]V
	keys   []K
}

func (t *Table[K, V]) Name() string  { return t.name }
func (t *Table[K, V]) Owner() string { return t.owner }
func (t *Table[K, V]) Len() int      { return len(t.keys) }

func (t *Table[K, V]) Get(k K) (V, bool) {
	v, ok := t.values[k]
	return v, ok
}

// Lookup returns the value for k or the zero value.
func (t *Table[K, V]) Lookup(k K) V { return t.values[k] }

func (t *Table[K, V]) Set(k K, v V) {
	if _, ok := t.values[k]; !ok {
		t.keys = append(t.keys, k)
	}
	t.values[k] = v
}

// Keys returns the keys in first-insertion order.
func (t *Table[K, V]) Keys() []K { return append([]K(nil), t.keys...) }

// RegisterTable creates the side table name owned by owner. Registering
// again with the same owner returns the existing table; another owner may
// not take it over.
func RegisterTable[K comparable, V any](c *Context, name, owner string) (*Table[K, V], error) {
	if e, ok := c.tables[name]; ok {
		if e.owner != owner {
			return nil, errors.Wrapf(ErrDuplicate, "side table %s is owned by %s, not %s", name, e.owner, owner)
		}
		t, ok := e.table.(*Table[K, V])
		if !ok {
			return nil, errors.Wrapf(ErrInvalidArg, "side table %s has another type", name)
		}
		return t, nil
	}
	t := &Table[K, V]{name: name, owner: owner, values: make(map[K]V)}
	c.tables[name] = &tableEntry{owner: owner, table: t}
	return t, nil
}

// TableOf returns a registered side table.
func TableOf[K comparable, V any](c *Context, name string) (*Table[K, V], error) {
	e, ok := c.tables[name]
	if !ok {
		return nil, errors.Wrapf(ErrMissingTable, "%s", name)
	}
	t, ok := e.table.(*Table[K, V])
	if !ok {
		return nil, errors.Wrapf(ErrMissingTable, "%s has another type", name)
	}
	return t, nil
}

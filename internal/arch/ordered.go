package arch

// ordered is a map that iterates in insertion order.
type ordered[V any] struct {
	keys  []string
	items map[string]V
}

func newOrdered[V any]() ordered[V] {
	return ordered[V]{items: make(map[string]V)}
}

func (o *ordered[V]) get(key string) (V, bool) {
	v, ok := o.items[key]
	return v, ok
}

// put inserts a new key and reports false when it already exists.
func (o *ordered[V]) put(key string, v V) bool {
	if o.items == nil {
		o.items = make(map[string]V)
	}
	if _, ok := o.items[key]; ok {
		return false
	}
	o.keys = append(o.keys, key)
	o.items[key] = v
	return true
}

func (o *ordered[V]) values() []V {
	out := make([]V, 0, len(o.keys))
	for _, k := range o.keys {
		out = append(out, o.items[k])
	}
	return out
}

func (o *ordered[V]) len() int { return len(o.keys) }

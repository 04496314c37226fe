package arch

// Instance is a placement of a module inside another module. It holds only
// its name, parent and model; pins are materialized on demand from the
// model's ports.
type Instance struct {
	name   string
	parent *Module
	model  *Module
	view   View
	pins   map[string]*Pin
}

func (i *Instance) Name() string { return i.name }
func (i *Instance) Parent() *Module { return i.parent }
func (i *Instance) Model() *Module { return i.model }
func (i *Instance) View() View { return i.view }
func (i *Instance) String() string { return i.parent.name + "." + i.name }

// Pin returns the static pin for the named model port if one exists, or a
// dynamic view otherwise. It returns nil when the model has no such port.
// Callers must not retain dynamic pins.
func (i *Instance) Pin(name string) *Pin {
	if p, ok := i.pins[name]; ok {
		return p
	}
	port := i.model.Port(name)
	if port == nil {
		return nil
	}
	return &Pin{inst: i, model: port}
}

// Pins returns one pin per model port, in model port order.
func (i *Instance) Pins() []*Pin {
	ports := i.model.Ports()
	out := make([]*Pin, 0, len(ports))
	for _, port := range ports {
		out = append(out, i.Pin(port.name))
	}
	return out
}

// StaticPinCount returns how many pins have been promoted.
func (i *Instance) StaticPinCount() int { return len(i.pins) }

// Pin is the instance-side counterpart of a model port.
type Pin struct {
	inst   *Instance
	model  *Port
	static bool
	state  *netState
}

func (p *Pin) Type() NetType { return NetPin }
func (p *Pin) Width() int { return p.model.width }

// Bit returns bit i of the pin. The returned value stays valid after the
// pin is promoted.
func (p *Pin) Bit(i int) Bit {
	if i < 0 || i >= p.model.width {
		panic("pin bit index out of range")
	}
	return Bit{typ: NetPin, inst: p.inst, port: p.model, index: i}
}

func (p *Pin) Name() string { return p.model.name }
func (p *Pin) Model() *Port { return p.model }
func (p *Pin) Instance() *Instance { return p.inst }
func (p *Pin) IsStatic() bool { return p.static }
func (p *Pin) Direction() PortDirection { return p.model.direction }
func (p *Pin) String() string { return p.inst.String() + "." + p.model.name }
func (p *Pin) busRef() busRef { return busRef{typ: NetPin, inst: p.inst, port: p.model} }

// promote returns the static pin for this key, registering p itself when no
// static pin exists yet.
func (p *Pin) promote() *Pin {
	if p.static {
		return p
	}
	if s, ok := p.inst.pins[p.model.name]; ok {
		return s
	}
	if p.inst.pins == nil {
		p.inst.pins = make(map[string]*Pin)
	}
	p.static = true
	p.state = &netState{}
	p.inst.pins[p.model.name] = p
	return p
}

// Promote forces the pin to become static and returns the static object.
func (p *Pin) Promote() *Pin { return p.promote() }

package arch

import (
	"github.com/pkg/errors"
)

const (
	prefixStubIn  = "si"
	prefixStubOut = "so"
)

type childPin struct {
	pin  *Pin
	node RoutingNode
}

// routingPins lists the pins of every instance placed in m that carry a
// routing node, with nodes translated into m's coordinates.
func (m *Module) routingPins() []childPin {
	var out []childPin
	g := m.grid
	for x := 0; x < g.width; x++ {
		for y := 0; y < g.height; y++ {
			for kind := TileKind(0); kind < numTileKinds; kind++ {
				pl := g.cells[x][y][kind]
				if pl == nil || pl.Root != (Position{x, y}) {
					continue
				}
				for sub, inst := range pl.Instances {
					model := pl.Model
					if model.kind == ModBlock && (model.block == BlockLogic || model.block == BlockIO) {
						for _, port := range model.RoutingPorts() {
							n := BlockPinNode{Position: pl.Root, Subblock: sub, Port: port}
							out = append(out, childPin{pin: inst.Pin(port.name), node: n})
						}
						continue
					}
					for _, port := range model.Ports() {
						if port.node == nil {
							continue
						}
						out = append(out, childPin{pin: inst.Pin(port.name), node: MoveNode(port.node, pl.Root)})
					}
				}
			}
		}
	}
	return out
}

type driverKey struct {
	node   RoutingNode
	bridge bool
}

func keyOf(n RoutingNode, bridge bool) driverKey {
	if s, ok := n.(SegmentNode); ok && !bridge {
		return driverKey{node: s.OriginEquivalent()}
	}
	return driverKey{node: n, bridge: bridge}
}

// AutoCompletePorts connects the routing pins of everything placed in the
// array to each other by routing node. In a nested array, pins that cannot
// be resolved locally and wires leaving the array become stub ports. Every
// array also gets one input per global used inside it and one port per
// external pad pin. It returns the routing pins left unconnected in the
// top-level array.
func (m *Module) AutoCompletePorts(isTop bool) ([]string, error) {
	if _, err := m.arrayGrid(); err != nil {
		return nil, err
	}
	pins := m.routingPins()
	drivers := map[driverKey]*Pin{}
	for _, cp := range pins {
		if cp.pin.Direction() != Output {
			continue
		}
		k := keyOf(cp.node, cp.pin.model.bridge)
		if prev, ok := drivers[k]; ok && prev != cp.pin {
			return nil, errors.Wrapf(ErrInvalidArg, "%s: %s and %s drive the same routing node %s", m.name, prev, cp.pin, k.node)
		}
		drivers[k] = cp.pin
	}
	consumed := map[*Pin]bool{}
	var unconnected []string
	for _, cp := range pins {
		if cp.pin.Direction() != Input {
			continue
		}
		k := keyOf(cp.node, cp.pin.model.bridge)
		var src Net
		if d, ok := drivers[k]; ok {
			src = d
			consumed[d] = true
		} else if !isTop {
			stub, err := nodePort(m, prefixStubIn, k.node, Input, k.bridge)
			if err != nil {
				return nil, err
			}
			src = stub
		} else {
			unconnected = append(unconnected, cp.pin.String())
			continue
		}
		if err := Connect(src, cp.pin); err != nil {
			return nil, err
		}
	}
	if !isTop {
		for _, cp := range pins {
			if cp.pin.Direction() != Output || !m.exports(cp, consumed[cp.pin]) {
				continue
			}
			stub, err := nodePort(m, prefixStubOut, cp.node, Output, cp.pin.model.bridge)
			if err != nil {
				return nil, err
			}
			if err := Connect(cp.pin, stub); err != nil {
				return nil, err
			}
		}
	}
	if err := m.completeGlobals(isTop); err != nil {
		return nil, err
	}
	if err := m.completeExternals(); err != nil {
		return nil, err
	}
	return unconnected, nil
}

// exports reports whether a child output must leave a nested array. Block
// output pins always leave since channels of the parent may read them too.
func (m *Module) exports(cp childPin, consumed bool) bool {
	n, ok := cp.node.(SegmentNode)
	if !ok {
		return true
	}
	if cp.pin.model.bridge {
		return !consumed
	}
	for s := 0; s < n.Prototype.Length; s++ {
		sec := n.AtSection(s)
		if !m.ChannelExists(sec.Dimension, sec.Position, false) {
			return true
		}
	}
	return false
}

func (m *Module) completeGlobals(isTop bool) error {
	for _, inst := range m.Instances() {
		for _, port := range inst.model.Ports() {
			g := port.global
			if g == nil || port.direction != Input {
				continue
			}
			if gp := m.Port(g.Name); gp != nil {
				if gp.global != g || gp.width != port.width {
					return errors.Wrapf(ErrWidthMismatch, "global %s in %s", g.Name, m.name)
				}
				continue
			}
			opts := []PortOption{WithGlobal(g)}
			if isTop {
				opts = append(opts, AsExternal())
			}
			if _, err := m.CreatePort(g.Name, g.Width, Input, opts...); err != nil {
				return err
			}
		}
	}
	return nil
}

func (m *Module) completeExternals() error {
	for _, inst := range m.Instances() {
		for _, port := range inst.model.Ports() {
			if !port.external || port.global != nil {
				continue
			}
			name := Sanitize(inst.name + "_" + port.name)
			ext := m.Port(name)
			if ext == nil {
				var err error
				ext, err = m.CreatePort(name, port.width, port.direction, WithView(ViewPhysical), AsExternal())
				if err != nil {
					return err
				}
			}
			pin := inst.Pin(port.name)
			var err error
			if port.direction == Input {
				err = SetPhysicalSource(pin, ext)
			} else {
				err = SetPhysicalSource(ext, pin)
			}
			if err != nil {
				return err
			}
		}
	}
	return nil
}

package arch

import (
	"github.com/pkg/errors"
)

// busRef is the storable identity of a whole bus or a constant.
type busRef struct {
	typ  NetType
	inst *Instance
	port *Port
}

func (r busRef) valid() bool { return r.typ != netInvalid }

func (r busRef) bit(i int) Bit {
	switch r.typ {
	case NetPort:
		return Bit{typ: NetPort, port: r.port, index: i}
	case NetPin:
		return Bit{typ: NetPin, inst: r.inst, port: r.port, index: i}
	}
	return Bit{typ: r.typ}
}

// slot stores a per-bus value either at bus granularity or, once any bit
// diverges, at bit granularity. An invalid Bit marks an unset entry.
type slot struct {
	bus  busRef
	bits []Bit
}

func (s *slot) get(i int) Bit {
	if s.bits != nil {
		return s.bits[i]
	}
	if s.bus.valid() {
		return s.bus.bit(i)
	}
	return Bit{}
}

func (s *slot) setBus(r busRef) {
	s.bus = r
	s.bits = nil
}

func (s *slot) setBit(i, width int, b Bit) {
	if s.bits == nil {
		bits := make([]Bit, width)
		for j := range bits {
			bits[j] = s.get(j)
		}
		s.bits = bits
		s.bus = busRef{}
	}
	s.bits[i] = b
}

// netState holds everything recorded at a port or static pin.
type netState struct {
	logical  [][]Bit
	physical slot
	cp       slot
}

func (st *netState) addLogical(i, width int, src Bit) {
	if st.logical == nil {
		st.logical = make([][]Bit, width)
	}
	for _, s := range st.logical[i] {
		if s == src {
			return
		}
	}
	st.logical[i] = append(st.logical[i], src)
}

func readState(b Bit) *netState {
	switch b.typ {
	case NetPort:
		return &b.port.state
	case NetPin:
		if p, ok := b.inst.pins[b.port.name]; ok {
			return p.state
		}
	}
	return nil
}

func writeState(b Bit) *netState {
	switch b.typ {
	case NetPort:
		return &b.port.state
	case NetPin:
		return b.inst.Pin(b.port.name).promote().state
	}
	return nil
}

// wholeBus reports the storable identity of n when n is an entire port, pin
// or constant.
func wholeBus(n Net) (busRef, bool) {
	switch v := n.(type) {
	case *Port:
		return v.busRef(), true
	case *Pin:
		return v.busRef(), true
	case Bit:
		if v.IsConst() {
			return busRef{typ: v.typ}, true
		}
	}
	return busRef{}, false
}

// Connect adds logical connections bit by bit from source to sink. Both nets
// must have the same width.
func Connect(source, sink Net) error {
	if source.Width() != sink.Width() {
		return errors.Wrapf(ErrWidthMismatch, "connect %s (%d) -> %s (%d)", source, source.Width(), sink, sink.Width())
	}
	pairs := make([][2]Bit, 0, sink.Width())
	for i := 0; i < sink.Width(); i++ {
		pairs = append(pairs, [2]Bit{source.Bit(i), sink.Bit(i)})
	}
	return connectPairs(pairs)
}

// ConnectFanout connects a single-bit source to every bit of sink.
func ConnectFanout(source, sink Net) error {
	if source.Width() != 1 {
		return errors.Wrapf(ErrWidthMismatch, "fan-out source %s must be a single bit", source)
	}
	pairs := make([][2]Bit, 0, sink.Width())
	for i := 0; i < sink.Width(); i++ {
		pairs = append(pairs, [2]Bit{source.Bit(0), sink.Bit(i)})
	}
	return connectPairs(pairs)
}

// ConnectCrossbar connects every bit of source to every bit of sink.
func ConnectCrossbar(source, sink Net) error {
	pairs := make([][2]Bit, 0, source.Width()*sink.Width())
	for j := 0; j < sink.Width(); j++ {
		for i := 0; i < source.Width(); i++ {
			pairs = append(pairs, [2]Bit{source.Bit(i), sink.Bit(j)})
		}
	}
	return connectPairs(pairs)
}

func connectPairs(pairs [][2]Bit) error {
	for _, p := range pairs {
		src, sink := p[0], p[1]
		if !sink.IsLogicalSink() {
			return errors.Wrapf(ErrNotSink, "%s", sink)
		}
		if !src.IsLogicalSource() {
			return errors.Wrapf(ErrNotSource, "%s", src)
		}
		if !src.IsConst() && src.Parent() != sink.Parent() {
			return errors.Wrapf(ErrInvalidArg, "%s and %s belong to different modules", src, sink)
		}
	}
	for _, p := range pairs {
		src, sink := p[0], p[1]
		writeState(sink).addLogical(sink.index, sink.port.width, src)
	}
	return nil
}

// LogicalSources returns the logical sources of a sink bit in insertion
// order.
func LogicalSources(sink Bit) []Bit {
	st := readState(sink)
	if st == nil || st.logical == nil {
		return nil
	}
	return append([]Bit(nil), st.logical[sink.index]...)
}

// DefaultPhysicalSource returns the source a physical sink bit has before
// anything is assigned. Global input pins default to the parent module's
// port of the same name.
func DefaultPhysicalSource(sink Bit) Bit {
	if sink.typ == NetPin && sink.port.global != nil && sink.port.direction == Input {
		if gp := sink.inst.parent.Port(sink.port.global.Name); gp != nil && gp.direction == Input && sink.index < gp.width {
			return gp.Bit(sink.index)
		}
	}
	return Open
}

// PhysicalSource returns the physical source of a sink bit. It never fails:
// bits that are not physical sinks read as Open.
func PhysicalSource(sink Bit) Bit {
	if !sink.IsPhysicalSink() {
		return Open
	}
	st := readState(sink)
	if st != nil {
		if b := st.physical.get(sink.index); b.Valid() {
			return b
		}
	}
	return DefaultPhysicalSource(sink)
}

// PhysicalSourceOf returns the physical source of a whole sink bus. When the
// source is stored at bus granularity the source bus itself is returned.
func PhysicalSourceOf(sink Net) Net {
	switch sink.(type) {
	case *Port, *Pin:
		st := readState(sink.Bit(0))
		if st != nil && st.physical.bits == nil && st.physical.bus.valid() {
			switch st.physical.bus.typ {
			case NetPort:
				return st.physical.bus.port
			case NetPin:
				return st.physical.bus.inst.Pin(st.physical.bus.port.name)
			}
		}
	}
	out := make(Concat, sink.Width())
	for i := range out {
		out[i] = PhysicalSource(sink.Bit(i))
	}
	return out
}

// PhysicalSourceStoredAsBus reports whether a sink bus currently stores its
// physical source at bus granularity.
func PhysicalSourceStoredAsBus(sink Net) bool {
	st := readState(sink.Bit(0))
	return st == nil || st.physical.bits == nil
}

// SetPhysicalSource sets the physical source of sink. Writing a whole bus
// stores the value at bus granularity; writing individual bits forces bit
// granularity. Constants may drive buses of any width.
func SetPhysicalSource(sink, source Net) error {
	if source.Width() != sink.Width() && !(source.Width() == 1 && source.Bit(0).IsConst()) {
		return errors.Wrapf(ErrWidthMismatch, "physical source %s (%d) for %s (%d)", source, source.Width(), sink, sink.Width())
	}
	srcBit := func(i int) Bit {
		if source.Width() == 1 {
			return source.Bit(0)
		}
		return source.Bit(i)
	}
	for i := 0; i < sink.Width(); i++ {
		s, b := sink.Bit(i), srcBit(i)
		if !s.IsPhysicalSink() {
			return errors.Wrapf(ErrNotPhysicalSink, "%s", s)
		}
		if !b.IsConst() && (!b.IsPhysicalSource() || b.Parent() != s.Parent()) {
			return errors.Wrapf(ErrNotSource, "%s cannot drive %s physically", b, s)
		}
	}
	same := true
	for i := 0; i < sink.Width(); i++ {
		if PhysicalSource(sink.Bit(i)) != srcBit(i) {
			same = false
			break
		}
	}
	if same {
		return nil
	}
	sinkBus, sinkWhole := wholeBus(sink)
	srcBus, srcWhole := wholeBus(source)
	if sinkWhole && sinkBus.typ != NetOpen && srcWhole {
		writeState(sink.Bit(0)).physical.setBus(srcBus)
		return nil
	}
	for i := 0; i < sink.Width(); i++ {
		s := sink.Bit(i)
		writeState(s).physical.setBit(s.index, s.port.width, srcBit(i))
	}
	return nil
}

// PhysicalCounterpart returns the alias of b, if any.
func PhysicalCounterpart(b Bit) (Bit, bool) {
	st := readState(b)
	if st == nil {
		return Bit{}, false
	}
	cp := st.cp.get(b.index)
	return cp, cp.Valid()
}

// SetPhysicalCounterpart makes a and b aliases of each other. Both must have
// the same width, role and physicality. Previous aliases are dropped so the
// relation stays an involution.
func SetPhysicalCounterpart(a, b Net) error {
	if a.Width() != b.Width() {
		return errors.Wrapf(ErrWidthMismatch, "counterparts %s and %s", a, b)
	}
	for i := 0; i < a.Width(); i++ {
		x, y := a.Bit(i), b.Bit(i)
		if x.IsConst() || y.IsConst() || x == y {
			return errors.Wrapf(ErrCounterpart, "%s and %s", x, y)
		}
		if x.IsSink() != y.IsSink() || x.IsPhysical() != y.IsPhysical() {
			return errors.Wrapf(ErrCounterpart, "%s and %s differ in role or physicality", x, y)
		}
	}
	for i := 0; i < a.Width(); i++ {
		x, y := a.Bit(i), b.Bit(i)
		if old, ok := PhysicalCounterpart(x); ok && old != y {
			writeState(old).cp.setBit(old.index, old.port.width, Bit{})
		}
		if old, ok := PhysicalCounterpart(y); ok && old != x {
			writeState(old).cp.setBit(old.index, old.port.width, Bit{})
		}
	}
	ra, wa := wholeBus(a)
	rb, wb := wholeBus(b)
	if wa && wb {
		writeState(a.Bit(0)).cp.setBus(rb)
		writeState(b.Bit(0)).cp.setBus(ra)
		return nil
	}
	for i := 0; i < a.Width(); i++ {
		x, y := a.Bit(i), b.Bit(i)
		writeState(x).cp.setBit(x.index, x.port.width, y)
		writeState(y).cp.setBit(y.index, y.port.width, x)
	}
	return nil
}

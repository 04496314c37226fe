package rrg

import (
	"fmt"

	"prga/internal/arch"
)

// Action rewrites part of the fabric configuration memory.
type Action interface {
	// Shift returns the action moved by offset bits.
	Shift(offset int) Action
	String() string
}

// SetValue stores Value in the Width bits starting at Offset.
type SetValue struct {
	Offset, Width, Value int
}

func (a SetValue) Shift(offset int) Action {
	a.Offset += offset
	return a
}

func (a SetValue) String() string {
	return fmt.Sprintf("set[%d+:%d]=%d", a.Offset, a.Width, a.Value)
}

// CopyValue stores the user bits [Begin, Begin+Width) at [Offset,
// Offset+Width).
type CopyValue struct {
	Offset, Width, Begin int
}

func (a CopyValue) Shift(offset int) Action {
	a.Offset += offset
	return a
}

func (a CopyValue) String() string {
	return fmt.Sprintf("copy[%d+:%d]<-%d", a.Offset, a.Width, a.Begin)
}

func shiftAll(actions []Action, offset int) []Action {
	out := make([]Action, len(actions))
	for i, a := range actions {
		out[i] = a.Shift(offset)
	}
	return out
}

// DFSPhysicalPaths searches the physical view upstream of sink for each
// candidate source. Switches are traversed from their output to each data
// input and contribute the selector setting for that input; offsets are
// relative to the cfg_d bus of the module sink lives in. The result has one
// entry per candidate, nil where the candidate cannot reach sink.
func DFSPhysicalPaths(sink arch.Bit, candidates []arch.Bit, offsets *arch.Table[*arch.Instance, int]) [][]Action {
	want := make(map[arch.Bit]int, len(candidates))
	for i, c := range candidates {
		if _, ok := want[c]; !ok {
			want[c] = i
		}
	}
	out := make([][]Action, len(candidates))
	found := make([]bool, len(candidates))
	var visit func(b arch.Bit, path []Action)
	visit = func(b arch.Bit, path []Action) {
		src := arch.PhysicalSource(b)
		if src.IsConst() {
			return
		}
		if i, ok := want[src]; ok && !found[i] {
			found[i] = true
			out[i] = append([]Action{}, path...)
			return
		}
		inst := src.Instance()
		if inst == nil || inst.Model().Kind() != arch.ModSwitch || src.Port().Name() != "o" {
			return
		}
		model := inst.Model()
		offset := 0
		if offsets != nil {
			offset = offsets.Lookup(inst)
		}
		in := inst.Pin("i")
		for k := 0; k < in.Width(); k++ {
			step := SetValue{Offset: offset, Width: model.CfgWidth(), Value: k}
			visit(in.Bit(k), append(path[:len(path):len(path)], step))
		}
	}
	visit(sink, nil)
	for i, c := range candidates {
		if j := want[c]; j != i && found[j] {
			out[i] = out[j]
		}
	}
	return out
}

// Package bitdb writes and reads the bitstream database: a framed stream of
// protobuf packets that tells a bitstream generator which configuration bits
// realize each block placement and routing edge of a fabric.
package bitdb

import (
	"github.com/pkg/errors"
	"google.golang.org/protobuf/encoding/protowire"

	"prga/internal/rrg"
)

// Signature identifies a database built for bit-chain configuration.
const Signature uint64 = 0xaf27dbd3ad76bbdd

// ErrMalformed is returned for packets that cannot be decoded.
var ErrMalformed = errors.New("malformed packet")

// Packet is one framed record of the database.
type Packet interface {
	number() protowire.Number
	appendTo(b []byte) []byte
}

// Header describes the fabric the database belongs to.
type Header struct {
	Signature     uint64
	Width, Height int
	NodeSize      int
	TotalCfgSize  int
}

// Port is a routing pin of a block.
type Port struct {
	Name   string
	Width  int
	Output bool
}

// BlockConnection is a connection inside a block, named by its endpoints.
type BlockConnection struct {
	Src, Sink string
	Actions   []rrg.Action
}

// Block describes a logic or IO block type and the configuration of every
// connection inside it. Action offsets are relative to the block.
type Block struct {
	Name        string
	CfgSize     int
	Ports       []Port
	Connections []BlockConnection
}

// Placement is a sub-block instance at its anchor tile.
type Placement struct {
	X, Y     int
	Subblock int
	Block    string
	Actions  []rrg.Action
}

// Edge is a routing edge between two routing-graph nodes.
type Edge struct {
	Src, Sink int
	Actions   []rrg.Action
}

// Field numbers of the packet envelope.
const (
	fieldHeader    protowire.Number = 1
	fieldBlock     protowire.Number = 2
	fieldPlacement protowire.Number = 3
	fieldEdge      protowire.Number = 4
)

// Field numbers of an action.
const (
	fieldSetValue  protowire.Number = 1
	fieldCopyValue protowire.Number = 2
)

func (*Header) number() protowire.Number    { return fieldHeader }
func (*Block) number() protowire.Number     { return fieldBlock }
func (*Placement) number() protowire.Number { return fieldPlacement }
func (*Edge) number() protowire.Number      { return fieldEdge }

func appendUint(b []byte, num protowire.Number, v int) []byte {
	if v == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, uint64(v))
}

func appendString(b []byte, num protowire.Number, s string) []byte {
	if s == "" {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendString(b, s)
}

func appendMessage(b []byte, num protowire.Number, msg []byte) []byte {
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, msg)
}

func appendActions(b []byte, num protowire.Number, actions []rrg.Action) []byte {
	for _, a := range actions {
		var (
			inner []byte
			kind  protowire.Number
		)
		switch a := a.(type) {
		case rrg.SetValue:
			kind = fieldSetValue
			inner = appendUint(inner, 1, a.Offset)
			inner = appendUint(inner, 2, a.Width)
			inner = appendUint(inner, 3, a.Value)
		case rrg.CopyValue:
			kind = fieldCopyValue
			inner = appendUint(inner, 1, a.Offset)
			inner = appendUint(inner, 2, a.Width)
			inner = appendUint(inner, 3, a.Begin)
		default:
			continue
		}
		b = appendMessage(b, num, appendMessage(nil, kind, inner))
	}
	return b
}

func (h *Header) appendTo(b []byte) []byte {
	b = protowire.AppendTag(b, 1, protowire.Fixed64Type)
	b = protowire.AppendFixed64(b, h.Signature)
	b = appendUint(b, 2, h.Width)
	b = appendUint(b, 3, h.Height)
	b = appendUint(b, 4, h.NodeSize)
	return appendUint(b, 5, h.TotalCfgSize)
}

func (blk *Block) appendTo(b []byte) []byte {
	b = appendString(b, 1, blk.Name)
	b = appendUint(b, 2, blk.CfgSize)
	for _, p := range blk.Ports {
		var inner []byte
		inner = appendString(inner, 1, p.Name)
		inner = appendUint(inner, 2, p.Width)
		if p.Output {
			inner = appendUint(inner, 3, 1)
		}
		b = appendMessage(b, 3, inner)
	}
	for _, c := range blk.Connections {
		var inner []byte
		inner = appendString(inner, 1, c.Src)
		inner = appendString(inner, 2, c.Sink)
		inner = appendActions(inner, 3, c.Actions)
		b = appendMessage(b, 4, inner)
	}
	return b
}

func (p *Placement) appendTo(b []byte) []byte {
	b = appendUint(b, 1, p.X)
	b = appendUint(b, 2, p.Y)
	b = appendUint(b, 3, p.Subblock)
	b = appendString(b, 4, p.Block)
	return appendActions(b, 5, p.Actions)
}

func (e *Edge) appendTo(b []byte) []byte {
	b = appendUint(b, 1, e.Src)
	b = appendUint(b, 2, e.Sink)
	return appendActions(b, 3, e.Actions)
}

// Marshal encodes p wrapped in its packet envelope.
func Marshal(p Packet) []byte {
	return appendMessage(nil, p.number(), p.appendTo(nil))
}

// field is one decoded field. Varint and fixed values are kept in v,
// length-delimited values in bytes.
type field struct {
	num   protowire.Number
	v     uint64
	bytes []byte
}

func fields(b []byte) ([]field, error) {
	var out []field
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return nil, errors.Wrap(ErrMalformed, protowire.ParseError(n).Error())
		}
		b = b[n:]
		f := field{num: num}
		switch typ {
		case protowire.VarintType:
			f.v, n = protowire.ConsumeVarint(b)
		case protowire.Fixed64Type:
			f.v, n = protowire.ConsumeFixed64(b)
		case protowire.BytesType:
			f.bytes, n = protowire.ConsumeBytes(b)
		default:
			n = protowire.ConsumeFieldValue(num, typ, b)
		}
		if n < 0 {
			return nil, errors.Wrapf(ErrMalformed, "field %d: %v", num, protowire.ParseError(n))
		}
		b = b[n:]
		out = append(out, f)
	}
	return out, nil
}

func decodeAction(b []byte) (rrg.Action, error) {
	fs, err := fields(b)
	if err != nil {
		return nil, err
	}
	if len(fs) != 1 {
		return nil, errors.Wrap(ErrMalformed, "action must hold exactly one value")
	}
	inner, err := fields(fs[0].bytes)
	if err != nil {
		return nil, err
	}
	var v [4]int
	for _, f := range inner {
		if f.num >= 1 && f.num <= 3 {
			v[f.num] = int(f.v)
		}
	}
	switch fs[0].num {
	case fieldSetValue:
		return rrg.SetValue{Offset: v[1], Width: v[2], Value: v[3]}, nil
	case fieldCopyValue:
		return rrg.CopyValue{Offset: v[1], Width: v[2], Begin: v[3]}, nil
	}
	return nil, errors.Wrapf(ErrMalformed, "unknown action %d", fs[0].num)
}

// Unmarshal decodes one packet envelope.
func Unmarshal(b []byte) (Packet, error) {
	env, err := fields(b)
	if err != nil {
		return nil, err
	}
	if len(env) != 1 {
		return nil, errors.Wrapf(ErrMalformed, "envelope holds %d fields", len(env))
	}
	body, err := fields(env[0].bytes)
	if err != nil {
		return nil, err
	}
	switch env[0].num {
	case fieldHeader:
		h := &Header{}
		for _, f := range body {
			switch f.num {
			case 1:
				h.Signature = f.v
			case 2:
				h.Width = int(f.v)
			case 3:
				h.Height = int(f.v)
			case 4:
				h.NodeSize = int(f.v)
			case 5:
				h.TotalCfgSize = int(f.v)
			}
		}
		return h, nil
	case fieldBlock:
		return decodeBlock(body)
	case fieldPlacement:
		p := &Placement{}
		for _, f := range body {
			switch f.num {
			case 1:
				p.X = int(f.v)
			case 2:
				p.Y = int(f.v)
			case 3:
				p.Subblock = int(f.v)
			case 4:
				p.Block = string(f.bytes)
			case 5:
				a, err := decodeAction(f.bytes)
				if err != nil {
					return nil, err
				}
				p.Actions = append(p.Actions, a)
			}
		}
		return p, nil
	case fieldEdge:
		e := &Edge{}
		for _, f := range body {
			switch f.num {
			case 1:
				e.Src = int(f.v)
			case 2:
				e.Sink = int(f.v)
			case 3:
				a, err := decodeAction(f.bytes)
				if err != nil {
					return nil, err
				}
				e.Actions = append(e.Actions, a)
			}
		}
		return e, nil
	}
	return nil, errors.Wrapf(ErrMalformed, "unknown packet %d", env[0].num)
}

func decodeBlock(body []field) (*Block, error) {
	blk := &Block{}
	for _, f := range body {
		switch f.num {
		case 1:
			blk.Name = string(f.bytes)
		case 2:
			blk.CfgSize = int(f.v)
		case 3:
			inner, err := fields(f.bytes)
			if err != nil {
				return nil, err
			}
			var p Port
			for _, g := range inner {
				switch g.num {
				case 1:
					p.Name = string(g.bytes)
				case 2:
					p.Width = int(g.v)
				case 3:
					p.Output = g.v != 0
				}
			}
			blk.Ports = append(blk.Ports, p)
		case 4:
			inner, err := fields(f.bytes)
			if err != nil {
				return nil, err
			}
			var c BlockConnection
			for _, g := range inner {
				switch g.num {
				case 1:
					c.Src = string(g.bytes)
				case 2:
					c.Sink = string(g.bytes)
				case 3:
					a, err := decodeAction(g.bytes)
					if err != nil {
						return nil, err
					}
					c.Actions = append(c.Actions, a)
				}
			}
			blk.Connections = append(blk.Connections, c)
		}
	}
	return blk, nil
}

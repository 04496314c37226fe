package arch

import "fmt"

// Dimension is the axis a routing channel runs along.
type Dimension int

const (
	DimX Dimension = iota
	DimY
)

func (d Dimension) String() string {
	if d == DimY {
		return "y"
	}
	return "x"
}

// Perpendicular returns the other dimension.
func (d Dimension) Perpendicular() Dimension { return 1 - d }

// Direction is the direction a unidirectional wire travels in.
type Direction int

const (
	DirInc Direction = iota
	DirDec
)

func (d Direction) String() string {
	if d == DirDec {
		return "n"
	}
	return "p"
}

// Opposite returns the reverse direction.
func (d Direction) Opposite() Direction { return 1 - d }

// Sign returns +1 for increasing and -1 for decreasing.
func (d Direction) Sign() int {
	if d == DirDec {
		return -1
	}
	return 1
}

// Orientation names a side of a tile.
type Orientation int

const (
	OrientNone Orientation = iota
	North
	East
	South
	West
)

func (o Orientation) String() string {
	switch o {
	case North:
		return "north"
	case East:
		return "east"
	case South:
		return "south"
	case West:
		return "west"
	default:
		return "none"
	}
}

// Short returns a one-letter abbreviation.
func (o Orientation) Short() string {
	switch o {
	case North:
		return "n"
	case East:
		return "e"
	case South:
		return "s"
	case West:
		return "w"
	default:
		return "x"
	}
}

// Opposite returns the side facing o.
func (o Orientation) Opposite() Orientation {
	switch o {
	case North:
		return South
	case East:
		return West
	case South:
		return North
	case West:
		return East
	}
	return OrientNone
}

// ParseOrientation accepts full names and abbreviations.
func ParseOrientation(s string) (Orientation, error) {
	switch s {
	case "north", "n", "top":
		return North, nil
	case "east", "e", "right":
		return East, nil
	case "south", "s", "bottom":
		return South, nil
	case "west", "w", "left":
		return West, nil
	case "", "none":
		return OrientNone, nil
	}
	return OrientNone, fmt.Errorf("invalid side %q", s)
}

// Position is a grid location.
type Position struct {
	X, Y int
}

func (p Position) Add(o Position) Position { return Position{p.X + o.X, p.Y + o.Y} }
func (p Position) Sub(o Position) Position { return Position{p.X - o.X, p.Y - o.Y} }

// Step moves n tiles along dim in direction dir.
func (p Position) Step(dim Dimension, dir Direction, n int) Position {
	if dim == DimX {
		return Position{p.X + dir.Sign()*n, p.Y}
	}
	return Position{p.X, p.Y + dir.Sign()*n}
}

func (p Position) String() string { return fmt.Sprintf("(%d, %d)", p.X, p.Y) }

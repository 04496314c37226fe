package arch

import (
	"github.com/pkg/errors"
)

// Kind classifies errors raised by the architecture model and the passes
// operating on it.
type Kind int

const (
	KindUnknown Kind = iota
	// KindUsage marks invalid API input, detected before any mutation.
	KindUsage
	// KindInvariant marks a failed internal consistency check.
	KindInvariant
	// KindDependence marks pass scheduling failures.
	KindDependence
	// KindUnresolvedRouting marks a routing node without a physical path.
	KindUnresolvedRouting
)

func (k Kind) String() string {
	switch k {
	case KindUsage:
		return "usage"
	case KindInvariant:
		return "invariant"
	case KindDependence:
		return "dependence"
	case KindUnresolvedRouting:
		return "unresolved routing"
	default:
		return "unknown"
	}
}

type kindError struct {
	kind Kind
	msg  string
}

func (e *kindError) Error() string { return e.msg }

// Kind reports the error classification.
func (e *kindError) Kind() Kind { return e.kind }

// NewKindError creates a sentinel error tagged with kind.
func NewKindError(kind Kind, msg string) error {
	return &kindError{kind: kind, msg: msg}
}

// KindOf walks the error chain and returns the first classification found.
func KindOf(err error) Kind {
	var ke interface{ Kind() Kind }
	if errors.As(err, &ke) {
		return ke.Kind()
	}
	return KindUnknown
}

var (
	ErrNotSink         = NewKindError(KindUsage, "not a logical sink")
	ErrNotSource       = NewKindError(KindUsage, "not a logical source")
	ErrWidthMismatch   = NewKindError(KindUsage, "width mismatch")
	ErrDuplicate       = NewKindError(KindUsage, "duplicate name")
	ErrUnknown         = NewKindError(KindUsage, "unknown name")
	ErrInvalidOffset   = NewKindError(KindUsage, "invalid offset")
	ErrInvalidArg      = NewKindError(KindUsage, "invalid argument")
	ErrOccupied        = NewKindError(KindUsage, "location occupied")
	ErrCounterpart     = NewKindError(KindUsage, "incompatible physical counterpart")
	ErrNotPhysicalSink = NewKindError(KindInvariant, "not a physical sink")
	ErrCyclicInstance  = NewKindError(KindInvariant, "cyclic instantiation")
	ErrPhysicalCycle   = NewKindError(KindInvariant, "cycle in physical view")
	ErrMissingTable    = NewKindError(KindInvariant, "side table not registered")
	ErrUnresolved      = NewKindError(KindUnresolvedRouting, "unresolved routing")
)

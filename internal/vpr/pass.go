package vpr

import (
	"io"
	"os"
	"path/filepath"

	"github.com/pkg/errors"

	"prga/internal/arch"
	"prga/internal/diag"
	"prga/internal/flow"
	"prga/internal/passes"
)

// Pass keys of the VPR writers.
const (
	KeyArchXML = "vpr.xml.arch"
	KeyRRGXML  = "vpr.xml.rrg"
)

type writeFunc func(ctx *arch.Context, w io.Writer, timing Timing) error

// Pass writes one VPR file.
type Pass struct {
	flow.Base
	key      string
	deps     []string
	write    writeFunc
	reporter *diag.Reporter
	path     string
	timing   Timing
}

// NewArchPass writes arch.xml to path. timing may be nil.
func NewArchPass(reporter *diag.Reporter, path string, timing Timing) *Pass {
	return &Pass{
		key:      KeyArchXML,
		deps:     []string{passes.KeyCompleter},
		write:    WriteArch,
		reporter: reporter,
		path:     path,
		timing:   timing,
	}
}

// NewRRGPass writes rr_graph.xml to path. timing may be nil.
func NewRRGPass(reporter *diag.Reporter, path string, timing Timing) *Pass {
	return &Pass{
		key:      KeyRRGXML,
		deps:     []string{passes.KeySwitches, passes.KeyVPRID},
		write:    WriteRRGraph,
		reporter: reporter,
		path:     path,
		timing:   timing,
	}
}

func (p *Pass) Key() string { return p.key }

func (p *Pass) Dependences() []string { return p.deps }

// PassesBeforeSelf orders configuration allocation first when it is
// scheduled.
func (p *Pass) PassesBeforeSelf() []string { return []string{"config"} }

func (p *Pass) Run(ctx *arch.Context) error {
	if err := os.MkdirAll(filepath.Dir(p.path), 0o755); err != nil {
		return errors.Wrap(err, "vpr: create output dir")
	}
	f, err := os.Create(p.path)
	if err != nil {
		return errors.Wrapf(err, "vpr: create %s", p.path)
	}
	defer f.Close()
	if err := p.write(ctx, f, p.timing); err != nil {
		return err
	}
	if p.reporter != nil {
		p.reporter.Infof("wrote %s", p.path)
	}
	return f.Close()
}

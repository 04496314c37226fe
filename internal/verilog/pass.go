package verilog

import (
	"bytes"
	"os"
	"path/filepath"

	"github.com/pkg/errors"

	"prga/internal/arch"
	"prga/internal/diag"
	"prga/internal/flow"
	"prga/internal/passes"
)

// KeyRTL is the pass key of the Verilog writer.
const KeyRTL = "rtl.verilog"

// Options configures Verilog emission.
type Options struct {
	// OutputDir receives one <module>.v file per module.
	OutputDir string
	// Reporter, when set, is told about skipped custom primitives.
	Reporter *diag.Reporter
}

// Result lists the files written by Emit.
type Result struct {
	TopPath string
	Paths   []string
	// Skipped names custom primitives without a Verilog body.
	Skipped []string
}

// Emit writes the Verilog of every module used by the physical view of the
// top-level array.
func Emit(ctx *arch.Context, opts Options) (Result, error) {
	var res Result
	top := ctx.Top()
	if top == nil {
		return res, errors.Wrap(arch.ErrInvalidArg, "verilog: no top-level array")
	}
	e, err := NewEmitter(ctx)
	if err != nil {
		return res, err
	}
	if err := os.MkdirAll(opts.OutputDir, 0o755); err != nil {
		return res, errors.Wrap(err, "verilog: create output dir")
	}
	for _, m := range e.Modules() {
		var buf bytes.Buffer
		err := e.Render(&buf, m)
		if errors.Is(err, ErrNoBody) {
			res.Skipped = append(res.Skipped, m.Name())
			if opts.Reporter != nil {
				opts.Reporter.Warningf(m.Name(), "custom primitive has no Verilog body; supply %s.v separately", m.Name())
			}
			continue
		}
		if err != nil {
			return res, err
		}
		path := filepath.Join(opts.OutputDir, m.Name()+".v")
		if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
			return res, errors.Wrapf(err, "verilog: write %s", path)
		}
		res.Paths = append(res.Paths, path)
		if m == top {
			res.TopPath = path
		}
	}
	return res, nil
}

// Pass writes the fabric RTL.
type Pass struct {
	flow.Base
	reporter *diag.Reporter
	dir      string
}

func NewPass(reporter *diag.Reporter, dir string) *Pass {
	return &Pass{reporter: reporter, dir: dir}
}

func (p *Pass) Key() string { return KeyRTL }

func (p *Pass) Dependences() []string { return []string{passes.KeySwitches} }

// PassesBeforeSelf orders configuration allocation first so cfg_d buses
// exist when it is scheduled.
func (p *Pass) PassesBeforeSelf() []string { return []string{"config"} }

func (p *Pass) Run(ctx *arch.Context) error {
	res, err := Emit(ctx, Options{OutputDir: p.dir, Reporter: p.reporter})
	if err != nil {
		return err
	}
	if p.reporter != nil {
		p.reporter.Infof("wrote %d Verilog modules to %s", len(res.Paths), p.dir)
	}
	return nil
}

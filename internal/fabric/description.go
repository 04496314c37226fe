// Package fabric reads YAML fabric descriptions and builds the architecture
// context they describe.
package fabric

import (
	"io"
	"os"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v2"

	"prga/internal/arch"
)

// Description is the top-level document.
type Description struct {
	Name       string      `yaml:"name"`
	Globals    []Global    `yaml:"globals"`
	Segments   []Segment   `yaml:"segments"`
	Primitives []Primitive `yaml:"primitives"`
	Blocks     []Block     `yaml:"blocks"`
	Arrays     []Array     `yaml:"arrays"`
}

type Global struct {
	Name  string   `yaml:"name"`
	Width int      `yaml:"width"`
	Clock bool     `yaml:"clock"`
	Bind  *Binding `yaml:"bind"`
}

// Binding places a global on an IO sub-block.
type Binding struct {
	X        int `yaml:"x"`
	Y        int `yaml:"y"`
	Subblock int `yaml:"subblock"`
}

type Segment struct {
	Name   string `yaml:"name"`
	Width  int    `yaml:"width"`
	Length int    `yaml:"length"`
}

type Port struct {
	Name    string `yaml:"name"`
	Dir     string `yaml:"dir"`
	Width   int    `yaml:"width"`
	Side    string `yaml:"side"`
	XOffset int    `yaml:"xoffset"`
	YOffset int    `yaml:"yoffset"`
	Global  string `yaml:"global"`
	Clock   bool   `yaml:"clock"`
}

// Primitive declares a user primitive. Kind is custom, memory or
// multimode; Verilog optionally holds the body of custom primitives and
// modes.
type Primitive struct {
	Name      string `yaml:"name"`
	Kind      string `yaml:"kind"`
	Ports     []Port `yaml:"ports"`
	AddrWidth int    `yaml:"addr_width"`
	DataWidth int    `yaml:"data_width"`
	Modes     []Mode `yaml:"modes"`
	Verilog   string `yaml:"verilog"`
}

type Mode struct {
	Name    string `yaml:"name"`
	Ports   []Port `yaml:"ports"`
	Verilog string `yaml:"verilog"`
}

type Block struct {
	Name     string `yaml:"name"`
	Kind     string `yaml:"kind"`
	Width    int    `yaml:"width"`
	Height   int    `yaml:"height"`
	Capacity int    `yaml:"capacity"`
	// Pad names the IO pad primitive of an IO block; iopad by default.
	Pad         string       `yaml:"pad"`
	Ports       []Port       `yaml:"ports"`
	FC          *FC          `yaml:"fc"`
	Instances   []Instance   `yaml:"instances"`
	Connections []Connection `yaml:"connections"`
}

type FC struct {
	In   FCValue            `yaml:"in"`
	Out  FCValue            `yaml:"out"`
	Pins map[string]FCValue `yaml:"pins"`
}

// FCValue decodes integers as track counts and floats as fractions.
type FCValue struct {
	arch.FCValue
}

func (v *FCValue) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var raw interface{}
	if err := unmarshal(&raw); err != nil {
		return err
	}
	switch n := raw.(type) {
	case int:
		if n < 0 {
			return errors.Errorf("negative Fc count %d", n)
		}
		v.FCValue = arch.FCCount(n)
	case float64:
		if n <= 0 || n > 1 {
			return errors.Errorf("Fc fraction %g is not in (0, 1]", n)
		}
		v.FCValue = arch.FCFraction(n)
	default:
		return errors.Errorf("Fc value %v is not a number", raw)
	}
	return nil
}

type Instance struct {
	Name  string `yaml:"name"`
	Model string `yaml:"model"`
}

// Connection endpoints are port, inst.port, each optionally followed by
// [i] or [hi:lo]. Mode is pairwise (default), fanout or crossbar.
type Connection struct {
	From string `yaml:"from"`
	To   string `yaml:"to"`
	Mode string `yaml:"mode"`
}

type Array struct {
	Name       string      `yaml:"name"`
	Width      int         `yaml:"width"`
	Height     int         `yaml:"height"`
	Top        bool        `yaml:"top"`
	Placements []Placement `yaml:"placements"`
}

type Placement struct {
	Model string `yaml:"model"`
	X     int    `yaml:"x"`
	Y     int    `yaml:"y"`
}

// Parse decodes a description. Unknown keys are rejected.
func Parse(data []byte) (*Description, error) {
	var d Description
	if err := yaml.UnmarshalStrict(data, &d); err != nil {
		return nil, errors.Wrap(err, "fabric: parse")
	}
	return &d, nil
}

// Read parses a description from r.
func Read(r io.Reader) (*Description, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, errors.Wrap(err, "fabric: read")
	}
	return Parse(data)
}

// ReadFile parses the description stored at path.
func ReadFile(path string) (*Description, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "fabric: open")
	}
	defer f.Close()
	return Read(f)
}

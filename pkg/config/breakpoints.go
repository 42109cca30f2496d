package config

import (
	"fmt"
	"io/ioutil"
	"strconv"
	"strings"

	multierror "github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	"github.com/solo-io/squash-session/pkg/breakpoints"
	"gopkg.in/yaml.v2"
)

// BreakpointSpec is a breakpoint as written in a breakpoints file or on the
// command line. Line is 1-based, as editors show it.
type BreakpointSpec struct {
	File    string `yaml:"file"`
	Line    int    `yaml:"line"`
	Enabled *bool  `yaml:"enabled,omitempty"`
}

func (s BreakpointSpec) IsEnabled() bool {
	return s.Enabled == nil || *s.Enabled
}

func (s BreakpointSpec) String() string {
	return fmt.Sprintf("%s:%d", s.File, s.Line)
}

// ParseBreakpoint parses file:line.
func ParseBreakpoint(s string) (BreakpointSpec, error) {
	idx := strings.LastIndex(s, ":")
	if idx <= 0 || idx == len(s)-1 {
		return BreakpointSpec{}, errors.Errorf("invalid breakpoint %q, expected file:line", s)
	}
	line, err := strconv.Atoi(s[idx+1:])
	if err != nil || line < 1 {
		return BreakpointSpec{}, errors.Errorf("invalid line in breakpoint %q", s)
	}
	return BreakpointSpec{File: s[:idx], Line: line}, nil
}

func LoadBreakpoints(path string) ([]BreakpointSpec, error) {
	b, err := ioutil.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "reading breakpoints file %v", path)
	}
	var specs []BreakpointSpec
	if err := yaml.Unmarshal(b, &specs); err != nil {
		return nil, errors.Wrapf(err, "parsing breakpoints file %v", path)
	}
	for _, s := range specs {
		if s.File == "" || s.Line < 1 {
			return nil, errors.Errorf("invalid breakpoint %v in %v", s, path)
		}
	}
	return specs, nil
}

// SaveBreakpoints writes the registry's breakpoints to path.
func SaveBreakpoints(path string, registry *breakpoints.Registry) error {
	var specs []BreakpointSpec
	for _, bp := range registry.All() {
		enabled := bp.Enabled()
		specs = append(specs, BreakpointSpec{File: bp.File(), Line: bp.Line() + 1, Enabled: &enabled})
	}
	b, err := yaml.Marshal(specs)
	if err != nil {
		return err
	}
	return ioutil.WriteFile(path, b, 0644)
}

// ApplyBreakpoints adds specs to registry, skipping the ones already there.
func ApplyBreakpoints(registry *breakpoints.Registry, specs []BreakpointSpec) error {
	var result *multierror.Error
	for _, s := range specs {
		_, err := registry.Add(s.File, s.Line-1, s.IsEnabled())
		if err != nil && errors.Cause(err) != breakpoints.ErrBreakpointExists {
			result = multierror.Append(result, err)
		}
	}
	return result.ErrorOrNil()
}

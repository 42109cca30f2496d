package squashctl

import (
	"context"
	"io"

	"github.com/solo-io/squash-session/pkg/config"
	"github.com/spf13/viper"
)

type Options struct {
	ctx context.Context
	v   *viper.Viper

	// ConfigFile overrides ~/.squash/config.yaml
	ConfigFile string
	Config     config.Session

	Debug DebugOptions

	// Machine disables prompts and decorations, for use from other tools.
	Machine bool

	In  io.Reader
	Out io.Writer
}

type DebugOptions struct {
	Breaks     []string
	WorkingDir string
}

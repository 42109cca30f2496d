package squashctl

import (
	"github.com/solo-io/squash-session/pkg/config"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

func applyRootFlags(o *Options, f *pflag.FlagSet) {
	f.StringVar(&o.ConfigFile, "config", "", "config file (default is $HOME/.squash/config.yaml)")
	f.BoolVar(&o.Machine, "machine", false, "machine mode input and output")
	f.String("log-level", "info", "log level: debug, info, warn or error")
	f.String("log-spool-url", "", "also post engine logs to this url")
	f.Bool("verbose", false, "log everything, including a dump of every engine event")
}

func applyDebugFlags(o *Options, f *pflag.FlagSet) {
	f.StringArrayVar(&o.Debug.Breaks, "break", nil, "set a breakpoint at file:line before starting (repeatable)")
	f.StringVar(&o.Debug.WorkingDir, "wd", "", "working directory of the debuggee")
	f.String("breakpoints", "", "yaml file with the breakpoints to set")
	f.String("on-exception", "ask", "what to do on an unhandled exception: ask, break, continue or ignore")
	f.String("debugger", "dlv", "debugger to use")
	f.String("dlv-path", "dlv", "path of the dlv binary")
	f.Int("start-timeout", 10, "seconds to wait for the debugger to come up")
}

var flagKeys = map[string]string{
	"log-level":     config.KeyLogLevel,
	"log-spool-url": config.KeyLogSpoolURL,
	"verbose":       config.KeyVerbose,
	"breakpoints":   config.KeyBreakpointsFile,
	"on-exception":  config.KeyOnException,
	"debugger":      config.KeyDebugger,
	"dlv-path":      config.KeyDlvPath,
	"start-timeout": config.KeyStartTimeout,
}

// bindFlags lets flags the user set override the config file.
func bindFlags(v *viper.Viper, f *pflag.FlagSet) error {
	for name, key := range flagKeys {
		flag := f.Lookup(name)
		if flag == nil {
			continue
		}
		if err := v.BindPFlag(key, flag); err != nil {
			return err
		}
	}
	return nil
}

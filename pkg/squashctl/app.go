package squashctl

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/solo-io/squash-session/pkg/breakpoints"
	"github.com/solo-io/squash-session/pkg/config"
	"github.com/solo-io/squash-session/pkg/debuggers"
	"github.com/solo-io/squash-session/pkg/debuggers/dlv"
	"github.com/solo-io/squash-session/pkg/debuglog"
	"github.com/solo-io/squash-session/pkg/session"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/crypto/ssh/terminal"
)

const descriptionUsage = `Squash runs a program under a debugger and gives you a console to drive it.
Breakpoints can be given on the command line, in a breakpoints file, or added
from the console while the program runs.
Find more information at https://solo.io
`

func App(version string) (*cobra.Command, error) {
	opts := &Options{
		ctx: context.Background(),
		v:   viper.New(),
		In:  os.Stdin,
		Out: os.Stdout,
	}
	app := &cobra.Command{
		Use:           "squashctl",
		Short:         "debug programs with squash",
		Long:          descriptionUsage,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := opts.loadConfig(cmd); err != nil {
				return err
			}
			opts.logCmd(cmd, args)
			return nil
		},
	}

	applyRootFlags(opts, app.PersistentFlags())

	app.SuggestionsMinimumDistance = 1
	app.AddCommand(
		DebugCmd(opts),
		RunCmd(opts),
		SpoolCmd(opts),
		completionCmd(),
	)
	return app, nil
}

func (o *Options) loadConfig(cmd *cobra.Command) error {
	if err := bindFlags(o.v, cmd.Flags()); err != nil {
		return err
	}
	cfg, err := config.Load(o.v, o.ConfigFile)
	if err != nil {
		return err
	}
	o.Config = cfg

	ctx, err := debuglog.Setup(o.ctx, debuglog.Options{
		Level:    cfg.LogLevel,
		SpoolURL: cfg.LogSpoolURL,
		Verbose:  cfg.Verbose,
	})
	if err != nil {
		return err
	}
	o.ctx = ctx
	return nil
}

func (o *Options) interactive() bool {
	if o.Machine {
		return false
	}
	f, ok := o.In.(*os.File)
	return ok && terminal.IsTerminal(int(f.Fd()))
}

func DebugCmd(o *Options) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "debug [flags] -- PROGRAM [ARGS...]",
		Short:   "run a program under the debugger",
		Example: "squashctl debug --break main.go:12 -- ./server --port 8080",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := o.ensureProgram(&args); err != nil {
				return err
			}
			return o.runDebug(args)
		},
	}
	applyDebugFlags(o, cmd.Flags())
	return cmd
}

func RunCmd(o *Options) *cobra.Command {
	return &cobra.Command{
		Use:   "run -- PROGRAM [ARGS...]",
		Short: "run a program without debugging it",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctrl := session.NewController(session.Options{NewEngine: o.engineFactory()})
			defer ctrl.Close()
			wd, _ := os.Getwd()
			if err := ctrl.StartWithoutDebugging(args[0], wd, args[1:]); err != nil {
				return err
			}
			o.info(fmt.Sprintf("started %v", args[0]))
			return nil
		},
	}
}

func (o *Options) engineFactory() debuggers.Factory {
	switch o.Config.Debugger {
	case "dlv", "":
		return dlv.Factory(o.ctx, dlv.Options{
			DlvPath:      o.Config.DlvPath,
			StartTimeout: time.Duration(o.Config.StartTimeoutSeconds) * time.Second,
		})
	}
	debugger := o.Config.Debugger
	return func() (debuggers.Engine, error) {
		return nil, errors.Errorf("unsupported debugger %v", debugger)
	}
}

func (o *Options) loadBreakpoints(registry *breakpoints.Registry) error {
	var specs []config.BreakpointSpec
	if o.Config.BreakpointsFile != "" {
		fromFile, err := config.LoadBreakpoints(o.Config.BreakpointsFile)
		if err != nil {
			return err
		}
		specs = append(specs, fromFile...)
	}
	for _, b := range o.Debug.Breaks {
		spec, err := config.ParseBreakpoint(b)
		if err != nil {
			return err
		}
		specs = append(specs, spec)
	}
	return config.ApplyBreakpoints(registry, specs)
}

func (o *Options) exceptionPolicy(c *console) (session.ExceptionPolicy, error) {
	if o.Config.OnException == "ask" {
		if o.Machine {
			return session.FixedPolicy(session.DecisionBreak), nil
		}
		return c, nil
	}
	d, err := session.ParseDecision(o.Config.OnException)
	if err != nil {
		return nil, err
	}
	return session.FixedPolicy(d), nil
}

func (o *Options) runDebug(args []string) error {
	if err := session.RegisterViews(); err != nil {
		log.WithField("err", err).Debug("metrics views not registered")
	}
	defer session.UnregisterViews()

	registry := breakpoints.NewRegistry()
	if err := o.loadBreakpoints(registry); err != nil {
		return err
	}

	c := newConsole(o.Out, o.interactive())
	policy, err := o.exceptionPolicy(c)
	if err != nil {
		return err
	}
	ctrl := session.NewController(session.Options{
		NewEngine:       o.engineFactory(),
		Registry:        registry,
		ExceptionPolicy: policy,
		Locator:         locator{out: o.Out},
		Output:          func(msg string) { fmt.Fprintln(o.Out, msg) },
	})
	defer ctrl.Close()
	c.attach(ctrl)

	wd := o.Debug.WorkingDir
	if wd == "" {
		wd, _ = os.Getwd()
	}
	if err := ctrl.Start(args[0], wd, args[1:]); err != nil {
		return err
	}
	o.info(fmt.Sprintf("debugging %v, type help for commands", args[0]))
	return c.run(o.In)
}

package squashctl

import (
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/solo-io/squash-session/pkg/config"
	"github.com/solo-io/squash-session/pkg/debuglog"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"gopkg.in/AlecAivazis/survey.v1"
)

// ensureProgram asks for the program to debug when none was given.
func (o *Options) ensureProgram(args *[]string) error {
	if len(*args) > 0 {
		return nil
	}
	if !o.interactive() {
		return errors.New("no program given, usage: squashctl debug -- PROGRAM [ARGS...]")
	}
	program := ""
	prompt := &survey.Input{Message: "Program to debug"}
	if err := survey.AskOne(prompt, &program, survey.Required); err != nil {
		return err
	}
	*args = strings.Fields(program)

	if o.Config.OnException == "ask" {
		choice := ""
		if err := o.chooseString("On unhandled exceptions", &choice, []string{"ask", "break", "continue", "ignore"}); err != nil {
			return err
		}
		o.Config.OnException = choice
	}
	return nil
}

func (o *Options) chooseString(message string, choice *string, options []string) error {
	question := &survey.Select{
		Message: message,
		Options: options,
	}
	if err := survey.AskOne(question, choice, survey.Required); err != nil {
		return err
	}
	return nil
}

func SpoolCmd(o *Options) *cobra.Command {
	addr := ""
	cmd := &cobra.Command{
		Use:    "log-spool",
		Short:  "print engine logs posted by squashctl --log-spool-url",
		Hidden: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			o.info(fmt.Sprintf("listening on %v", addr))
			return http.ListenAndServe(addr, debuglog.SpoolHandler(o.Out))
		},
	}
	cmd.Flags().StringVar(&addr, "listen", "localhost:8080", "address to listen on")
	return cmd
}

// only print info if squashctl is being used by a human
// machine mode currently expects an exact output
func (o *Options) info(msg string) {
	if !o.Machine {
		fmt.Fprintln(o.Out, msg)
	}
}

var logFileName = "cmd.log"

func (o *Options) logCmd(cmd *cobra.Command, args []string) {
	if !o.Config.LogCommands {
		return
	}

	cmdWithArgs := fmt.Sprintf("%v %v", cmd.CommandPath(), strings.Join(args, " "))
	flagSpec := getFlagSpec(cmd)
	cmdSpec := fmt.Sprintf("%v %v", cmdWithArgs, flagSpec)

	squashDir, err := config.SquashDir()
	if err != nil {
		fmt.Println(err)
		return
	}
	f, err := os.OpenFile(filepath.Join(squashDir, logFileName), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		fmt.Println(err)
		return
	}
	defer f.Close()
	content := fmt.Sprintf("%v, %v\n", time.Now(), cmdSpec)
	if _, err := f.Write([]byte(content)); err != nil {
		fmt.Println(err)
	}
}

func getChangedFlags(cmd *cobra.Command) map[string]pflag.Value {
	setFlags := make(map[string]pflag.Value)
	ff := func(f *pflag.Flag) {
		if f.Changed {
			setFlags[f.Name] = f.Value
		}
	}
	cmd.Flags().VisitAll(ff)
	return setFlags
}

func getFlagSpec(cmd *cobra.Command) string {
	flagsChanged := getChangedFlags(cmd)
	str := ""
	for k, v := range flagsChanged {
		switch v.Type() {
		case "bool":
			str += fmt.Sprintf("--%v ", k)
		default:
			str += fmt.Sprintf("--%v \"%v\" ", k, v)
		}
	}
	return str
}

package config

import (
	"fmt"
	"io/ioutil"
	"os"
	"path/filepath"

	homedir "github.com/mitchellh/go-homedir"
	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

// Session holds the settings a debug session is started with.
type Session struct {
	Debugger            string
	DlvPath             string
	OnException         string
	LogLevel            string
	LogSpoolURL         string
	BreakpointsFile     string
	StartTimeoutSeconds int
	Verbose             bool
	LogCommands         bool
}

// Config file keys. Flags bound to the same keys override the file.
const (
	KeyDebugger        = "debugger"
	KeyDlvPath         = "dlv_path"
	KeyOnException     = "on_exception"
	KeyLogLevel        = "log_level"
	KeyLogSpoolURL     = "log_spool_url"
	KeyBreakpointsFile = "breakpoints_file"
	KeyStartTimeout    = "start_timeout_seconds"
	KeyVerbose         = "verbose"
	KeyLogCommands     = "log_commands"
)

var defaultConfigYaml = []byte(`# Squash configuration file
debugger: dlv
dlv_path: dlv
# what to do when the debuggee crashes: ask, break, continue or ignore
on_exception: ask
log_level: info
start_timeout_seconds: 10
verbose: false
log_commands: false
createdby: squash-initialization
`)

func setDefaults(v *viper.Viper) {
	v.SetDefault(KeyDebugger, "dlv")
	v.SetDefault(KeyDlvPath, "dlv")
	v.SetDefault(KeyOnException, "ask")
	v.SetDefault(KeyLogLevel, "info")
	v.SetDefault(KeyStartTimeout, 10)
}

// SquashDir is ~/.squash.
func SquashDir() (string, error) {
	// Find home directory.
	home, err := homedir.Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".squash"), nil
}

func writeDefaultConfigFile(fp string) error {
	fmt.Printf("Squash config file not found. Writing default config to %v.\n", fp)
	return ioutil.WriteFile(fp, defaultConfigYaml, 0644)
}

// DefaultConfigFile returns ~/.squash/config.yaml, writing the default one if it is missing.
func DefaultConfigFile() (string, error) {
	squashDir, err := SquashDir()
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(squashDir, 0755); err != nil {
		return "", err
	}
	squashConfigFile := filepath.Join(squashDir, "config.yaml")
	if _, err := os.Stat(squashConfigFile); err != nil {
		if err := writeDefaultConfigFile(squashConfigFile); err != nil {
			return "", err
		}
	}
	return squashConfigFile, nil
}

// Load reads cfgFile into v and returns the resulting settings. Values
// already set on v, for example bound flags, take precedence over the file.
func Load(v *viper.Viper, cfgFile string) (Session, error) {
	setDefaults(v)
	if cfgFile == "" {
		fp, err := DefaultConfigFile()
		if err != nil {
			return Session{}, err
		}
		cfgFile = fp
	}
	v.SetConfigFile(cfgFile)
	v.SetConfigType("yaml")
	if err := v.ReadInConfig(); err != nil {
		return Session{}, errors.Wrapf(err, "Can't read config %v", cfgFile)
	}
	return fromViper(v), nil
}

func fromViper(v *viper.Viper) Session {
	return Session{
		Debugger:            v.GetString(KeyDebugger),
		DlvPath:             v.GetString(KeyDlvPath),
		OnException:         v.GetString(KeyOnException),
		LogLevel:            v.GetString(KeyLogLevel),
		LogSpoolURL:         v.GetString(KeyLogSpoolURL),
		BreakpointsFile:     v.GetString(KeyBreakpointsFile),
		StartTimeoutSeconds: v.GetInt(KeyStartTimeout),
		Verbose:             v.GetBool(KeyVerbose),
		LogCommands:         v.GetBool(KeyLogCommands),
	}
}

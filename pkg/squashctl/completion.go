package squashctl

import (
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

const completionExample = `  # load completion into the current bash session
  source <(squashctl completion bash)

  # install it for every new bash session
  squashctl completion bash > ~/.squash/completion.bash.inc
  echo "source ~/.squash/completion.bash.inc" >> ~/.bash_profile

  # zsh 5.2 or newer
  squashctl completion zsh > "${fpath[1]}/_squashctl"`

func completionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:       "completion SHELL",
		Short:     "generate auto completion for your shell",
		Long:      "Print the shell code that completes squashctl commands and flags (bash or zsh).",
		Example:   completionExample,
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{"bash", "zsh"},
		RunE: func(c *cobra.Command, a []string) error {
			out := c.OutOrStdout()
			switch strings.ToLower(a[0]) {
			case "bash":
				return errors.Wrap(c.Root().GenBashCompletion(out), "Unable to generate bash completion")
			case "zsh":
				return errors.Wrap(c.Root().GenZshCompletion(out), "Unable to generate zsh completion")
			}
			return errors.Errorf("Unsupported shell %v", a[0])
		},
	}
	return cmd
}

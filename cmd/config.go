package cmd

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/babelcloud/framerelay/config"
)

func NewConfigCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration as TOML",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConfig(cmd.OutOrStdout())
		},
	}
}

func runConfig(out io.Writer) error {
	data, err := config.Current().TOML()
	if err != nil {
		return err
	}
	if file := config.ConfigFileUsed(); file != "" {
		fmt.Fprintf(out, "# loaded from %s\n", file)
	}
	_, err = out.Write(data)
	return err
}

package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/babelcloud/framerelay/config"
	"github.com/babelcloud/framerelay/internal/util"
	"github.com/babelcloud/framerelay/internal/version"
)

type RootOptions struct {
	Verbose    bool
	ConfigFile string
}

var (
	rootOpts = &RootOptions{}

	rootCmd = &cobra.Command{
		Use:   "framerelay",
		Short: "Shared-memory video frame relay",
		Long: `framerelay relays raw video frames from a producer process to a consumer through a
named shared-memory segment and a wake signal. It can view, watch and probe a segment,
and produce test patterns into one.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			util.InitLogger(rootOpts.Verbose)
			if err := bindRootFlags(cmd.Root().PersistentFlags()); err != nil {
				return err
			}
			return config.Load(rootOpts.ConfigFile)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flag("version").Changed {
				fmt.Fprintln(cmd.OutOrStdout(), version.Get().Short())
				return nil
			}
			return cmd.Help()
		},
	}
)

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.Flags().BoolP("version", "v", false, "Print version information and exit")

	flags := rootCmd.PersistentFlags()
	flags.BoolVar(&rootOpts.Verbose, "verbose", false, "Enable debug logging")
	flags.StringVar(&rootOpts.ConfigFile, "config", "", "Config file (default: ./config.yaml, $XDG_CONFIG_HOME/framerelay/config.yaml)")
	flags.String("dir", "", "Shared memory directory")
	flags.String("segment", "", "Shared segment name")
	flags.String("signal", "", "Wake signal name")
	flags.Bool("debug", false, "Crash on internal assertion failures")

	rootCmd.AddCommand(NewViewCommand())
	rootCmd.AddCommand(NewWatchCommand())
	rootCmd.AddCommand(NewProbeCommand())
	rootCmd.AddCommand(NewProduceCommand())
	rootCmd.AddCommand(NewConfigCommand())
	rootCmd.AddCommand(NewVersionCommand())
}

// bindRootFlags lets the global flags override their config keys.
func bindRootFlags(flags *pflag.FlagSet) error {
	for key, name := range map[string]string{
		"shm.dir":     "dir",
		"shm.segment": "segment",
		"shm.signal":  "signal",
		"debug":       "debug",
	} {
		if err := config.BindFlag(key, flags.Lookup(name)); err != nil {
			return err
		}
	}
	return nil
}

package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/adrg/xdg"
	"github.com/gdamore/tcell/v2"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/babelcloud/framerelay/config"
	"github.com/babelcloud/framerelay/internal/framesource"
	"github.com/babelcloud/framerelay/internal/render"
	"github.com/babelcloud/framerelay/internal/util"
	"github.com/babelcloud/framerelay/internal/viewer"
)

type ViewOptions struct {
	Strategy string
	Format   string
	LogFile  string
}

func NewViewCommand() *cobra.Command {
	opts := &ViewOptions{}

	cmd := &cobra.Command{
		Use:   "view",
		Short: "Show frames from a shared segment in the terminal",
		Long: `Open the configured shared segment and wake signal and draw every frame in the
terminal with half-block characters. Press q, Esc or Ctrl-C to quit.`,
		Example: `  framerelay view
  framerelay view --segment cam0 --signal cam0-ready --strategy copy`,
		RunE: func(cmd *cobra.Command, args []string) error {
			applySourceFlags(cmd, opts.Strategy, opts.Format)
			return runView(cmd.Context(), opts)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&opts.Strategy, "strategy", "", "Render target strategy (zerocopy or copy)")
	flags.StringVar(&opts.Format, "format", "", "Expected pixel format (gray8 or rgb24)")
	flags.StringVar(&opts.LogFile, "log-file", "", "Write logs here while the screen is in use (default: $XDG_STATE_HOME/framerelay/view.log)")

	cmd.RegisterFlagCompletionFunc("strategy", func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
		return config.StrategyNames(), cobra.ShellCompDirectiveNoFileComp
	})
	cmd.RegisterFlagCompletionFunc("format", func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
		return config.FormatNames(), cobra.ShellCompDirectiveNoFileComp
	})

	return cmd
}

// applySourceFlags lets per-command flags override the source settings.
func applySourceFlags(cmd *cobra.Command, strategy, format string) {
	if cmd.Flags().Changed("strategy") {
		config.Set("source.strategy", strategy)
	}
	if cmd.Flags().Changed("format") {
		config.Set("source.format", format)
	}
}

func runView(ctx context.Context, opts *ViewOptions) error {
	if !term.IsTerminal(int(os.Stdout.Fd())) {
		return errors.New("view needs a terminal; use watch for headless consumption")
	}

	// Logs would scribble over the screen.
	logPath := opts.LogFile
	if logPath == "" {
		p, err := xdg.StateFile("framerelay/view.log")
		if err != nil {
			return errors.Wrap(err, "resolve log file")
		}
		logPath = p
	}
	logFile, err := os.OpenFile(logPath, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o644)
	if err != nil {
		return errors.Wrap(err, "open log file")
	}
	defer logFile.Close()
	util.InitLoggerTo(logFile, rootOpts.Verbose)
	defer util.InitLogger(rootOpts.Verbose)

	screen, err := tcell.NewScreen()
	if err != nil {
		return errors.Wrap(err, "create screen")
	}
	v, err := viewer.New(screen, viewer.Options{Title: config.GetSegmentName()})
	if err != nil {
		return errors.Wrap(err, "init screen")
	}
	defer v.Close()

	sourceOpts, err := sourceOptions(v, render.Default{OnInvalidate: v.Invalidate})
	if err != nil {
		return err
	}
	src := framesource.New(sourceOpts)
	if err := src.Open(); err != nil {
		return err
	}
	defer src.Close()

	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	return v.Run(ctx, src)
}

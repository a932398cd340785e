package cmd

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/babelcloud/framerelay/config"
	"github.com/babelcloud/framerelay/internal/producer"
	"github.com/babelcloud/framerelay/internal/util"
)

type ProduceOptions struct {
	Pattern  string
	Format   string
	Width    int
	Height   int
	Interval time.Duration
	Frames   uint64
}

func NewProduceCommand() *cobra.Command {
	opts := &ProduceOptions{}

	cmd := &cobra.Command{
		Use:   "produce",
		Short: "Write test patterns into a shared segment",
		Long: `Create the configured shared segment and wake signal and publish a test pattern at a
fixed interval. Both objects are removed on exit.`,
		Example: `  framerelay produce
  framerelay produce --pattern noise --interval 16ms
  framerelay produce --width 320 --height 240 --format rgb24 --frames 100`,
		RunE: func(cmd *cobra.Command, args []string) error {
			flags := cmd.Flags()
			if flags.Changed("width") {
				config.Set("producer.width", opts.Width)
			}
			if flags.Changed("height") {
				config.Set("producer.height", opts.Height)
			}
			if flags.Changed("interval") {
				config.Set("producer.interval", opts.Interval)
			}
			if flags.Changed("pattern") {
				config.Set("producer.pattern", opts.Pattern)
			}
			if flags.Changed("format") {
				config.Set("source.format", opts.Format)
			}

			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runProduce(ctx, opts.Frames)
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&opts.Pattern, "pattern", "p", "", "Test pattern ("+strings.Join(producer.PatternNames(), ", ")+")")
	flags.StringVar(&opts.Format, "format", "", "Pixel format (gray8 or rgb24)")
	flags.IntVar(&opts.Width, "width", 0, "Frame width in pixels")
	flags.IntVar(&opts.Height, "height", 0, "Frame height in pixels")
	flags.DurationVar(&opts.Interval, "interval", 0, "Time between frames")
	flags.Uint64Var(&opts.Frames, "frames", 0, "Stop after this many frames (0 runs until interrupted)")

	cmd.RegisterFlagCompletionFunc("pattern", func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
		return producer.PatternNames(), cobra.ShellCompDirectiveNoFileComp
	})

	return cmd
}

func runProduce(ctx context.Context, frames uint64) error {
	log := util.GetLogger().WithField("component", "produce")

	pattern, ok := producer.PatternByName(config.GetProducerPattern())
	if !ok {
		return errors.Errorf("unknown pattern %q, want one of %s",
			config.GetProducerPattern(), strings.Join(producer.PatternNames(), ", "))
	}
	format, err := config.GetFormat()
	if err != nil {
		return err
	}
	interval := config.GetProducerInterval()
	if interval <= 0 {
		return errors.Errorf("interval must be positive, got %s", interval)
	}

	w, err := producer.Create(producer.Options{
		Dir:         config.GetShmDir(),
		SegmentName: config.GetSegmentName(),
		SignalName:  config.GetSignalName(),
		Width:       config.GetProducerWidth(),
		Height:      config.GetProducerHeight(),
		Format:      format,
	})
	if err != nil {
		return err
	}
	defer w.Close()

	g := w.Geometry()
	pix := make([]byte, g.PackedSize())
	log.WithFields(logrus.Fields{
		"pattern":  config.GetProducerPattern(),
		"interval": interval,
	}).Info("Producing frames")

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for n := uint64(0); frames == 0 || n < frames; n++ {
		pattern(pix, g, n)
		if err := w.WriteImage(pix); err != nil {
			return err
		}
		select {
		case <-ctx.Done():
			log.WithField("frames", w.Frames()).Info("Stopped producing")
			return nil
		case <-ticker.C:
		}
	}
	log.WithField("frames", w.Frames()).Info("Produced requested frames")
	return nil
}

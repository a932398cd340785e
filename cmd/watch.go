package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/babelcloud/framerelay/internal/dispatch"
	"github.com/babelcloud/framerelay/internal/framesource"
	"github.com/babelcloud/framerelay/internal/render"
	"github.com/babelcloud/framerelay/internal/util"
)

type WatchOptions struct {
	Duration time.Duration
	Every    time.Duration
	Strategy string
	Format   string
}

func NewWatchCommand() *cobra.Command {
	opts := &WatchOptions{}

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Consume frames headlessly and report refresh statistics",
		Example: `  framerelay watch --duration 10s
  framerelay watch --every 1s --strategy copy`,
		RunE: func(cmd *cobra.Command, args []string) error {
			applySourceFlags(cmd, opts.Strategy, opts.Format)
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runWatch(ctx, cmd.OutOrStdout(), opts)
		},
	}

	flags := cmd.Flags()
	flags.DurationVar(&opts.Duration, "duration", 0, "Stop after this long (0 runs until interrupted)")
	flags.DurationVar(&opts.Every, "every", 5*time.Second, "Log statistics this often")
	flags.StringVar(&opts.Strategy, "strategy", "", "Render target strategy (zerocopy or copy)")
	flags.StringVar(&opts.Format, "format", "", "Expected pixel format (gray8 or rgb24)")

	return cmd
}

func runWatch(ctx context.Context, out io.Writer, opts *WatchOptions) error {
	log := util.GetLogger().WithField("component", "watch")

	queue := dispatch.NewQueue(dispatch.DefaultQueueSize)
	queueCtx, cancelQueue := context.WithCancel(context.Background())
	go queue.Run(queueCtx)
	defer func() {
		queue.Close()
		<-queue.Done()
		cancelQueue()
	}()

	sourceOpts, err := sourceOptions(queue, render.Default{})
	if err != nil {
		return err
	}

	if opts.Duration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Duration)
		defer cancel()
	}

	var watched *framesource.Source
	err = framesource.With(sourceOpts, func(src *framesource.Source) error {
		watched = src
		g := src.Geometry()
		log.WithFields(logrus.Fields{
			"width":  g.Width,
			"height": g.Height,
			"format": g.Format,
		}).Info("Watching frames")

		ticker := time.NewTicker(opts.Every)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
				logStats(log, src.Stats())
			}
		}
	})
	if err != nil {
		return err
	}

	printStats(out, watched.Stats(), queue.Dropped())
	return nil
}

func logStats(log *logrus.Entry, st framesource.Stats) {
	log.WithFields(logrus.Fields{
		"signaled":  st.Loop.Signaled,
		"timed_out": st.Loop.TimedOut,
		"refreshes": st.Refreshes,
		"dropped":   st.Loop.Dropped,
	}).Info("Refresh statistics")
}

func printStats(out io.Writer, st framesource.Stats, queueDropped uint64) {
	rows := []map[string]interface{}{
		{"metric": "wait iterations", "value": st.Loop.Iterations},
		{"metric": "producer signals", "value": st.Loop.Signaled},
		{"metric": "timeouts", "value": st.Loop.TimedOut},
		{"metric": "notifications dispatched", "value": st.Loop.Dispatched},
		{"metric": "notifications dropped", "value": st.Loop.Dropped + queueDropped},
		{"metric": "refreshes handled", "value": st.Refreshes},
		{"metric": "handler errors", "value": st.HandlerErrors},
		{"metric": "wait errors", "value": st.Loop.WaitErrors},
	}
	util.RenderTable(out, []util.TableColumn{
		{Header: "METRIC", Key: "metric"},
		{Header: "VALUE", Key: "value"},
	}, rows)
	if !st.Loop.LastDispatch.IsZero() {
		fmt.Fprintf(out, "\nlast refresh at %s\n", st.Loop.LastDispatch.Format(time.RFC3339Nano))
	}
}

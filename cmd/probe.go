package cmd

import (
	"fmt"
	"io"

	"github.com/fatih/color"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/babelcloud/framerelay/config"
	"github.com/babelcloud/framerelay/internal/frame"
	"github.com/babelcloud/framerelay/internal/shm"
	"github.com/babelcloud/framerelay/internal/util"
)

type ProbeOptions struct {
	Format string
}

func NewProbeCommand() *cobra.Command {
	opts := &ProbeOptions{}

	cmd := &cobra.Command{
		Use:   "probe",
		Short: "Inspect the header of a shared segment",
		Long:  "Map the configured shared segment, decode its frame header and report the geometry and whether the wake signal exists.",
		Example: `  framerelay probe
  framerelay probe --segment cam0 --format rgb24`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("format") {
				config.Set("source.format", opts.Format)
			}
			return runProbe(cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVar(&opts.Format, "format", "", "Expected pixel format (gray8 or rgb24)")

	return cmd
}

func runProbe(out io.Writer) error {
	format, err := config.GetFormat()
	if err != nil {
		return err
	}
	dir := config.GetShmDir()

	seg, err := shm.OpenSegment(dir, config.GetSegmentName())
	if err != nil {
		return err
	}
	defer seg.Close()

	all, err := seg.View(0, 0)
	if err != nil {
		return err
	}
	hdr, err := frame.ParseFormat(all, format)
	if err != nil {
		return errors.Wrapf(err, "segment %s", seg.Name())
	}
	g := hdr.Geometry()

	fits := color.GreenString("yes")
	if g.PayloadOffset+g.Size() > seg.Size() {
		fits = color.RedString("no")
	}

	signalStatus := color.GreenString("present")
	if sig, err := shm.OpenSignal(dir, config.GetSignalName()); err != nil {
		signalStatus = color.RedString("unavailable: %v", err)
	} else {
		sig.Close()
	}

	rows := []map[string]interface{}{
		{"field": "segment", "value": shm.Path(dir, seg.Name())},
		{"field": "segment size", "value": seg.Size()},
		{"field": "width", "value": g.Width},
		{"field": "height", "value": g.Height},
		{"field": "stride", "value": fmt.Sprintf("%d (header %d)", g.Stride, hdr.Stride)},
		{"field": "format", "value": config.FormatName(g.Format)},
		{"field": "planes", "value": hdr.Planes},
		{"field": "payload offset", "value": g.PayloadOffset},
		{"field": "payload size", "value": g.Size()},
		{"field": "payload fits", "value": fits},
		{"field": "signal", "value": signalStatus},
	}
	util.RenderTable(out, []util.TableColumn{
		{Header: "FIELD", Key: "field"},
		{Header: "VALUE", Key: "value"},
	}, rows)
	return nil
}

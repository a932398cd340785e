package cmd

import (
	"github.com/babelcloud/framerelay/config"
	"github.com/babelcloud/framerelay/internal/dispatch"
	"github.com/babelcloud/framerelay/internal/framesource"
	"github.com/babelcloud/framerelay/internal/render"
)

// sourceOptions builds frame source options from the effective config.
func sourceOptions(d dispatch.Dispatcher, r render.Renderer) (framesource.Options, error) {
	format, err := config.GetFormat()
	if err != nil {
		return framesource.Options{}, err
	}
	strategy, err := config.GetStrategy()
	if err != nil {
		return framesource.Options{}, err
	}
	return framesource.Options{
		Dir:         config.GetShmDir(),
		SegmentName: config.GetSegmentName(),
		SignalName:  config.GetSignalName(),
		Format:      format,
		Strategy:    strategy,
		WaitTimeout: config.GetWaitTimeout(),
		Renderer:    r,
		Dispatcher:  d,
		Debug:       config.IsDebug(),
	}, nil
}

// Package viewer is a terminal consumer for a frame source. The tcell event
// loop is the consumer context: refresh notifications arrive as interrupt
// events and run on the same goroutine that draws.
package viewer

import (
	"context"
	"fmt"
	"image"
	"sync/atomic"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/sirupsen/logrus"

	"github.com/babelcloud/framerelay/internal/frame"
	"github.com/babelcloud/framerelay/internal/framesource"
	"github.com/babelcloud/framerelay/internal/util"
)

// Frames is what the viewer reads from a frame source.
type Frames interface {
	Image() image.Image
	Geometry() frame.Geometry
	Stats() framesource.Stats
}

// Options configures a Viewer.
type Options struct {
	Title  string
	Logger *logrus.Entry
}

// Viewer draws frames on a tcell screen.
type Viewer struct {
	screen tcell.Screen
	title  string
	log    *logrus.Entry

	src     Frames
	dirty   bool
	redraws atomic.Uint64
	dropped atomic.Uint64
}

// quit asks the event loop to return.
type quit struct{}

// New initializes screen and returns a viewer drawing on it. The caller
// owns the screen's lifetime through Close.
func New(screen tcell.Screen, opts Options) (*Viewer, error) {
	if err := screen.Init(); err != nil {
		return nil, err
	}
	log := opts.Logger
	if log == nil {
		log = util.GetLogger().WithField("component", "viewer")
	}
	title := opts.Title
	if title == "" {
		title = "framerelay"
	}
	screen.HideCursor()
	screen.Clear()
	return &Viewer{screen: screen, title: title, log: log}, nil
}

// Dispatch implements dispatch.Dispatcher by posting action to the event
// loop. It returns false when the event queue is full.
func (v *Viewer) Dispatch(action func()) bool {
	if err := v.screen.PostEvent(tcell.NewEventInterrupt(action)); err != nil {
		v.dropped.Add(1)
		return false
	}
	return true
}

// Invalidate marks the picture stale. Use it as the renderer's
// invalidation callback; it must run on the event loop.
func (v *Viewer) Invalidate() {
	v.dirty = true
}

// Redraws returns how many times the screen was painted.
func (v *Viewer) Redraws() uint64 {
	return v.redraws.Load()
}

// Dropped returns how many notifications the event queue refused.
func (v *Viewer) Dropped() uint64 {
	return v.dropped.Load()
}

// Run processes events until the user quits or ctx is done.
func (v *Viewer) Run(ctx context.Context, src Frames) error {
	v.src = src
	done := make(chan struct{})
	defer close(done)
	go v.quitOnCancel(ctx, done)

	v.draw()
	for {
		switch ev := v.screen.PollEvent().(type) {
		case nil:
			return nil
		case *tcell.EventInterrupt:
			switch data := ev.Data().(type) {
			case quit:
				return nil
			case func():
				v.runAction(data)
				if v.dirty {
					v.draw()
				}
			}
		case *tcell.EventResize:
			v.screen.Sync()
			v.draw()
		case *tcell.EventKey:
			if isQuitKey(ev) {
				return nil
			}
		}
	}
}

// Close restores the terminal.
func (v *Viewer) Close() {
	v.screen.Fini()
}

func (v *Viewer) quitOnCancel(ctx context.Context, done <-chan struct{}) {
	select {
	case <-done:
		return
	case <-ctx.Done():
	}
	for v.screen.PostEvent(tcell.NewEventInterrupt(quit{})) != nil {
		select {
		case <-done:
			return
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func (v *Viewer) runAction(action func()) {
	defer func() {
		if r := recover(); r != nil {
			v.log.WithField("panic", r).Error("Viewer action panicked")
		}
	}()
	action()
}

func isQuitKey(ev *tcell.EventKey) bool {
	switch ev.Key() {
	case tcell.KeyCtrlC, tcell.KeyEsc:
		return true
	case tcell.KeyRune:
		return ev.Rune() == 'q' || ev.Rune() == 'Q'
	}
	return false
}

func (v *Viewer) draw() {
	v.dirty = false
	v.screen.Clear()

	w, h := v.screen.Size()
	if v.src != nil {
		if img := v.src.Image(); img != nil {
			drawImage(v.screen, img, 0, 1, w, h-1)
		}
	}
	v.drawStatus(w)

	v.screen.Show()
	v.redraws.Add(1)
}

func (v *Viewer) drawStatus(width int) {
	status := v.title + "  no frame"
	if v.src != nil {
		g := v.src.Geometry()
		st := v.src.Stats()
		status = fmt.Sprintf("%s  %dx%d %s  %s  refreshes %d  q quit",
			v.title, g.Width, g.Height, g.Format, st.State, st.Refreshes)
	}
	style := tcell.StyleDefault.Reverse(true)
	x := 0
	for _, r := range status {
		if x >= width {
			break
		}
		v.screen.SetContent(x, 0, r, nil, style)
		x++
	}
	for ; x < width; x++ {
		v.screen.SetContent(x, 0, ' ', nil, style)
	}
}

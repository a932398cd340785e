// Package framesource connects a producer's shared segment and wake signal to
// a rendering layer. A Source opens both handles, exposes the current frame
// as an image and keeps it fresh from a background refresh loop that hands
// every repaint to the consumer's own execution context.
package framesource

import (
	"image"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"go.uber.org/multierr"
	"k8s.io/utils/clock"

	"github.com/babelcloud/framerelay/internal/dispatch"
	"github.com/babelcloud/framerelay/internal/frame"
	"github.com/babelcloud/framerelay/internal/refresh"
	"github.com/babelcloud/framerelay/internal/render"
	"github.com/babelcloud/framerelay/internal/shm"
	"github.com/babelcloud/framerelay/internal/util"
)

var (
	ErrAlreadyOpen            = errors.New("frame source already open")
	ErrUnexpectedRenderTarget = errors.New("render target does not support invalidation")
	ErrNoDispatcher           = errors.New("frame source has no dispatcher")
)

// State is the lifecycle position of a Source.
type State int32

const (
	StateUnopened State = iota
	StateOpening
	StateOpen
	StateClosing
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateOpening:
		return "opening"
	case StateOpen:
		return "open"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	default:
		return "unopened"
	}
}

// Options configures a Source. The strategy is fixed for the lifetime of
// the source.
type Options struct {
	Dir         string
	SegmentName string
	SignalName  string
	Format      frame.PixelFormat
	Strategy    Strategy
	WaitTimeout time.Duration

	Renderer   render.Renderer
	Dispatcher dispatch.Dispatcher

	Logger *logrus.Entry
	Clock  clock.Clock
	Debug  bool
}

// Stats is a snapshot of source activity.
type Stats struct {
	State         State
	Refreshes     uint64
	HandlerErrors uint64
	Loop          refresh.Stats
}

// Source is a frame source. Close it when done; a Source dropped while
// open is eventually stopped by the garbage collector, but the timing is
// not guaranteed and zero-copy images must not outlive it either way.
type Source struct {
	core *core
}

// core holds all state. The refresh loop and dispatched handlers reference
// only the core, so an abandoned Source stays collectable.
type core struct {
	opts Options
	id   string
	log  *logrus.Entry

	mu          sync.Mutex
	state       State
	signal      *shm.Signal
	segment     *shm.Segment
	geometry    frame.Geometry
	payload     []byte
	scratch     []byte
	image       image.Image
	invalidator render.Invalidator
	loop        *refresh.Loop

	// liveLoop mirrors loop for the cleanup, which must not take mu.
	liveLoop  atomic.Pointer[refresh.Loop]
	abandoned atomic.Bool

	refreshes     atomic.Uint64
	handlerErrors atomic.Uint64
	lastLoop      refresh.Stats
}

// New creates an unopened source.
func New(opts Options) *Source {
	if opts.Dir == "" {
		opts.Dir = shm.DefaultDir
	}
	if opts.SegmentName == "" {
		opts.SegmentName = shm.DefaultSegmentName
	}
	if opts.SignalName == "" {
		opts.SignalName = shm.DefaultSignalName
	}
	if opts.WaitTimeout <= 0 {
		opts.WaitTimeout = shm.DefaultWaitTimeout
	}
	if opts.Renderer == nil {
		opts.Renderer = render.Default{}
	}
	if opts.Clock == nil {
		opts.Clock = clock.RealClock{}
	}

	id := uuid.New().String()
	log := opts.Logger
	if log == nil {
		log = util.GetLogger().WithField("component", "framesource")
	}
	c := &core{
		opts: opts,
		id:   id,
		log:  log.WithField("source", id),
	}

	s := &Source{core: c}
	runtime.AddCleanup(s, (*core).abandon, c)
	return s
}

// With opens a source, runs fn and closes the source whatever fn returns.
func With(opts Options, fn func(*Source) error) (err error) {
	s := New(opts)
	if err := s.Open(); err != nil {
		return err
	}
	defer func() {
		err = multierr.Append(err, s.Close())
	}()
	return fn(s)
}

// Open acquires the wake signal and segment, builds the render target and
// starts the refresh loop. On failure everything acquired is released and
// the source is left closed.
func (s *Source) Open() error {
	defer runtime.KeepAlive(s)
	return s.core.open()
}

// Close stops the refresh loop, waits for it to exit and releases all
// handles. It is safe to call from the consumer context while a
// notification is queued, and calling it again is a no-op.
func (s *Source) Close() error {
	defer runtime.KeepAlive(s)
	return s.core.close()
}

// Image returns the render target, nil unless the source is open.
func (s *Source) Image() image.Image {
	c := s.core
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateOpen {
		return nil
	}
	return c.image
}

// Geometry returns the geometry read at open.
func (s *Source) Geometry() frame.Geometry {
	c := s.core
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.geometry
}

// State returns the current lifecycle state.
func (s *Source) State() State {
	c := s.core
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// ID identifies the source in logs.
func (s *Source) ID() string {
	return s.core.id
}

// Stats returns a snapshot of source and refresh loop counters.
func (s *Source) Stats() Stats {
	c := s.core
	c.mu.Lock()
	st := Stats{State: c.state, Loop: c.lastLoop}
	loop := c.loop
	c.mu.Unlock()

	if loop != nil {
		st.Loop = loop.Stats()
	}
	st.Refreshes = c.refreshes.Load()
	st.HandlerErrors = c.handlerErrors.Load()
	return st
}

func (c *core) open() (err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.state {
	case StateOpening, StateOpen, StateClosing:
		return errors.Wrapf(ErrAlreadyOpen, "source is %s", c.state)
	}
	if c.opts.Dispatcher == nil {
		return ErrNoDispatcher
	}
	c.state = StateOpening

	defer func() {
		if err == nil {
			return
		}
		if rerr := c.releaseLocked(); rerr != nil {
			c.log.WithError(rerr).Warn("Failed to release handles after open failure")
		}
		c.state = StateClosed
		c.log.WithError(err).Warn("Failed to open frame source")
	}()

	signal, err := shm.OpenSignal(c.opts.Dir, c.opts.SignalName)
	if err != nil {
		return errors.Wrap(err, "open wake signal")
	}
	c.signal = signal

	segment, err := shm.OpenSegment(c.opts.Dir, c.opts.SegmentName)
	if err != nil {
		return errors.Wrap(err, "open shared segment")
	}
	c.segment = segment

	all, err := segment.View(0, 0)
	if err != nil {
		return err
	}
	header, err := frame.ParseFormat(all, c.opts.Format)
	if err != nil {
		return errors.Wrapf(err, "segment %s", segment.Name())
	}
	g := header.Geometry()

	payload, err := segment.View(g.PayloadOffset, g.Size())
	if err != nil {
		return errors.Wrapf(err, "%dx%d frame at offset %d in %d byte segment",
			g.Width, g.Height, g.PayloadOffset, segment.Size())
	}

	t, err := buildTarget(c.opts.Strategy, c.opts.Renderer, payload, g)
	if err != nil {
		return errors.Wrap(err, "build render target")
	}
	invalidator, ok := t.image.(render.Invalidator)
	if !ok {
		return errors.Wrapf(ErrUnexpectedRenderTarget, "%T", t.image)
	}

	c.geometry = g
	c.payload = payload
	c.scratch = t.scratch
	c.image = t.image
	c.invalidator = invalidator

	loop := refresh.New(signal, c.opts.Dispatcher, c.refresh, refresh.Options{
		Timeout: c.opts.WaitTimeout,
		Clock:   c.opts.Clock,
		Logger:  c.log.WithField("component", "refresh"),
		Debug:   c.opts.Debug,
		OnExit:  c.loopExited,
	})
	if err := loop.Start(); err != nil {
		return err
	}
	c.loop = loop
	c.liveLoop.Store(loop)
	c.state = StateOpen

	c.log.WithFields(logrus.Fields{
		"segment":  segment.Name(),
		"signal":   signal.Name(),
		"width":    g.Width,
		"height":   g.Height,
		"stride":   g.Stride,
		"format":   g.Format,
		"strategy": c.opts.Strategy,
	}).Info("Frame source opened")
	return nil
}

func (c *core) close() error {
	c.mu.Lock()
	switch c.state {
	case StateOpen:
	case StateClosing:
		// Another Close is releasing; return once the loop is gone.
		loop := c.loop
		c.mu.Unlock()
		if loop != nil {
			loop.Stop()
		}
		return nil
	default:
		c.mu.Unlock()
		return nil
	}
	c.state = StateClosing
	loop := c.loop
	c.mu.Unlock()

	// Join without mu: the dispatcher may run handlers on the loop goroutine.
	loop.Stop()

	c.mu.Lock()
	defer c.mu.Unlock()
	err := c.releaseLocked()
	c.state = StateClosed
	c.log.WithField("refreshes", c.refreshes.Load()).Info("Frame source closed")
	return err
}

// releaseLocked drops everything in reverse acquisition order. The loop
// must already have exited.
func (c *core) releaseLocked() error {
	var err error
	if c.loop != nil {
		c.lastLoop = c.loop.Stats()
		c.loop = nil
		c.liveLoop.Store(nil)
	}
	if c.signal != nil {
		err = multierr.Append(err, errors.Wrap(c.signal.Close(), "close wake signal"))
		c.signal = nil
	}
	if c.segment != nil {
		err = multierr.Append(err, errors.Wrap(c.segment.Close(), "close shared segment"))
		c.segment = nil
	}
	c.image = nil
	c.invalidator = nil
	c.payload = nil
	c.scratch = nil
	return err
}

// refresh runs on the consumer context for every loop notification.
func (c *core) refresh() {
	defer func() {
		if r := recover(); r != nil {
			c.handlerErrors.Add(1)
			c.log.WithField("panic", r).Error("Frame refresh handler panicked")
		}
	}()

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != StateOpen || c.invalidator == nil {
		return
	}
	if c.opts.Strategy == StrategyCopy {
		copyRows(c.scratch, c.payload, c.geometry)
	}
	c.invalidator.Invalidate()
	c.refreshes.Add(1)
}

// abandon is the garbage collector's safety net for a Source dropped while
// open. It runs on the cleanup goroutine and must not block, so it only
// stops the loop; the loop releases the handles on its way out.
func (c *core) abandon() {
	c.abandoned.Store(true)
	if loop := c.liveLoop.Load(); loop != nil {
		c.log.Warn("Frame source abandoned while open")
		loop.RequestStop()
	}
}

// loopExited runs on the refresh goroutine as it finishes.
func (c *core) loopExited() {
	if !c.abandoned.Load() {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateOpen {
		return
	}
	c.state = StateClosing
	if err := c.releaseLocked(); err != nil {
		c.log.WithError(err).Warn("Failed to release abandoned frame source")
	}
	c.state = StateClosed
}

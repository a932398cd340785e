//go:build linux

package producer

import (
	"os"
	"sync"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"go.uber.org/multierr"
	"golang.org/x/sys/unix"

	"github.com/babelcloud/framerelay/internal/frame"
	"github.com/babelcloud/framerelay/internal/shm"
	"github.com/babelcloud/framerelay/internal/util"
)

// Writer owns a shared segment and wake signal and publishes frames into
// them.
type Writer struct {
	mu       sync.Mutex
	log      *logrus.Entry
	segPath  string
	sigPath  string
	file     *os.File
	data     []byte
	fifo     int
	geometry frame.Geometry
	closed   bool
	frames   uint64
}

// Create makes the segment file and signal FIFO, maps the segment
// read-write and writes the header so consumers can open it before the
// first frame arrives.
func Create(opts Options) (*Writer, error) {
	opts = opts.withDefaults()
	g, err := Layout(opts.Width, opts.Height, opts.Format)
	if err != nil {
		return nil, err
	}

	log := opts.Logger
	if log == nil {
		log = util.GetLogger().WithField("component", "producer")
	}
	w := &Writer{
		log:      log,
		segPath:  shm.Path(opts.Dir, opts.SegmentName),
		sigPath:  shm.Path(opts.Dir, opts.SignalName),
		fifo:     -1,
		geometry: g,
	}

	if err := w.create(); err != nil {
		_ = w.Close()
		return nil, err
	}

	log.WithFields(logrus.Fields{
		"segment": w.segPath,
		"signal":  w.sigPath,
		"width":   g.Width,
		"height":  g.Height,
		"stride":  g.Stride,
		"format":  g.Format,
	}).Info("Created shared frame segment")
	return w, nil
}

func (w *Writer) create() error {
	g := w.geometry
	size := g.PayloadOffset + g.Size()

	f, err := os.OpenFile(w.segPath, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return errors.Wrapf(err, "create segment %s", w.segPath)
	}
	w.file = f
	if err := f.Truncate(size); err != nil {
		return errors.Wrapf(err, "resize segment %s to %d bytes", w.segPath, size)
	}

	data, err := unix.Mmap(int(f.Fd()), 0, int(size), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return errors.Wrapf(err, "map segment %s", w.segPath)
	}
	w.data = data

	hdr := frame.NewHeader(g.Width, g.Height, g.Stride, g.Format, g.PayloadOffset)
	if err := frame.Encode(hdr, w.data); err != nil {
		return err
	}

	if err := unix.Mkfifo(w.sigPath, 0o644); err != nil {
		if !errors.Is(err, unix.EEXIST) {
			return errors.Wrapf(err, "create signal %s", w.sigPath)
		}
		fi, statErr := os.Stat(w.sigPath)
		if statErr != nil {
			return errors.Wrapf(statErr, "stat signal %s", w.sigPath)
		}
		if fi.Mode()&os.ModeNamedPipe == 0 {
			return errors.Errorf("%s exists and is not a FIFO", w.sigPath)
		}
	}

	// Read-write so opening never blocks waiting for a reader.
	fd, err := unix.Open(w.sigPath, unix.O_RDWR|unix.O_NONBLOCK|unix.O_CLOEXEC, 0)
	if err != nil {
		return errors.Wrapf(err, "open signal %s", w.sigPath)
	}
	w.fifo = fd
	return nil
}

// Geometry returns the layout frames are published with.
func (w *Writer) Geometry() frame.Geometry {
	return w.geometry
}

// Frames returns the number of frames written so far.
func (w *Writer) Frames() uint64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.frames
}

// WriteImage copies packed rows into the strided payload and signals the
// consumer.
func (w *Writer) WriteImage(pix []byte) error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return shm.ErrClosed
	}
	g := w.geometry
	if len(pix) != g.PackedSize() {
		w.mu.Unlock()
		return errors.Wrapf(ErrInvalidSize, "got %d bytes, want %d", len(pix), g.PackedSize())
	}

	rb := g.RowBytes()
	payload := w.data[g.PayloadOffset:]
	for y := 0; y < g.Height; y++ {
		copy(payload[y*g.Stride:y*g.Stride+rb], pix[y*rb:(y+1)*rb])
	}
	w.frames++
	w.mu.Unlock()

	return w.SignalReady()
}

// SignalReady announces a new frame. A full pipe already guarantees a
// pending wake, so it is not an error.
func (w *Writer) SignalReady() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return shm.ErrClosed
	}
	if _, err := unix.Write(w.fifo, []byte{1}); err != nil && !errors.Is(err, unix.EAGAIN) {
		return errors.Wrap(err, "signal frame ready")
	}
	return nil
}

// Close unmaps the segment and removes both names. Consumers that still
// hold handles keep working on the unlinked objects. Idempotent.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil
	}
	w.closed = true

	var err error
	if w.data != nil {
		err = multierr.Append(err, unix.Munmap(w.data))
		w.data = nil
	}
	if w.file != nil {
		err = multierr.Append(err, w.file.Close())
		w.file = nil
		err = multierr.Append(err, removeIfExists(w.segPath))
	}
	if w.fifo >= 0 {
		err = multierr.Append(err, unix.Close(w.fifo))
		w.fifo = -1
		err = multierr.Append(err, removeIfExists(w.sigPath))
	}

	w.log.WithField("frames", w.frames).Debug("Closed shared frame segment")
	return err
}

func removeIfExists(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

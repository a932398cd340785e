//go:build linux

package shm

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func writeSegment(t *testing.T, dir, name string, data []byte) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), data, 0o644))
}

func makeFifo(t *testing.T, dir, name string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, unix.Mkfifo(path, 0o666))
	return path
}

// poke plays the producer: one byte into the FIFO per frame.
func poke(t *testing.T, path string, times int) {
	t.Helper()
	fd, err := unix.Open(path, unix.O_RDWR|unix.O_NONBLOCK, 0)
	require.NoError(t, err)
	defer unix.Close(fd)
	for i := 0; i < times; i++ {
		_, err := unix.Write(fd, []byte{1})
		require.NoError(t, err)
	}
}

func TestOpenSegmentMissing(t *testing.T) {
	_, err := OpenSegment(t.TempDir(), "nope")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrSegmentNotFound), "got %v", err)
}

func TestOpenSegmentRejectsDirectoryAndEmptyFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub"), 0o755))
	_, err := OpenSegment(dir, "sub")
	assert.True(t, errors.Is(err, ErrSegmentNotFound), "got %v", err)

	writeSegment(t, dir, "empty", nil)
	_, err = OpenSegment(dir, "empty")
	assert.True(t, errors.Is(err, ErrOutOfRange), "got %v", err)
}

func TestOpenSegmentAccessDenied(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("permission bits are not enforced for root")
	}
	dir := t.TempDir()
	writeSegment(t, dir, "locked", make([]byte, 64))
	require.NoError(t, os.Chmod(filepath.Join(dir, "locked"), 0))

	_, err := OpenSegment(dir, "locked")
	assert.True(t, errors.Is(err, ErrAccessDenied), "got %v", err)
}

func TestSegmentView(t *testing.T) {
	dir := t.TempDir()
	data := make([]byte, 128)
	for i := range data {
		data[i] = byte(i)
	}
	writeSegment(t, dir, "seg", data)

	seg, err := OpenSegment(dir, "seg")
	require.NoError(t, err)
	defer seg.Close()

	assert.Equal(t, "seg", seg.Name())
	assert.Equal(t, int64(128), seg.Size())
	assert.NotZero(t, seg.RawAddress())

	v, err := seg.View(10, 4)
	require.NoError(t, err)
	assert.Equal(t, []byte{10, 11, 12, 13}, v)
	assert.Equal(t, 4, cap(v))

	rest, err := seg.View(100, 0)
	require.NoError(t, err)
	assert.Len(t, rest, 28)

	tests := []struct {
		name           string
		offset, length int64
	}{
		{"past end", 120, 16},
		{"offset beyond size", 129, 0},
		{"negative offset", -1, 4},
		{"negative length", 0, -4},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := seg.View(tt.offset, tt.length)
			assert.True(t, errors.Is(err, ErrOutOfRange), "got %v", err)
		})
	}
}

func TestSegmentSeesProducerWrites(t *testing.T) {
	dir := t.TempDir()
	writeSegment(t, dir, "seg", make([]byte, 16))

	seg, err := OpenSegment(dir, "seg")
	require.NoError(t, err)
	defer seg.Close()

	f, err := os.OpenFile(filepath.Join(dir, "seg"), os.O_WRONLY, 0)
	require.NoError(t, err)
	_, err = f.WriteAt([]byte{0xAB}, 3)
	require.NoError(t, err)
	require.NoError(t, f.Close())

	v, err := seg.View(3, 1)
	require.NoError(t, err)
	assert.Equal(t, byte(0xAB), v[0])
}

func TestSegmentCloseIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	writeSegment(t, dir, "seg", make([]byte, 32))

	seg, err := OpenSegment(dir, "seg")
	require.NoError(t, err)

	require.NoError(t, seg.Close())
	require.NoError(t, seg.Close())
	assert.Zero(t, seg.RawAddress())
	assert.Zero(t, seg.Size())

	_, err = seg.View(0, 1)
	assert.True(t, errors.Is(err, ErrClosed))
}

func TestOpenSignalMissingOrWrongType(t *testing.T) {
	dir := t.TempDir()
	_, err := OpenSignal(dir, "nope")
	assert.True(t, errors.Is(err, ErrSignalNotFound), "got %v", err)

	writeSegment(t, dir, "plain", []byte{0})
	_, err = OpenSignal(dir, "plain")
	assert.True(t, errors.Is(err, ErrSignalNotFound), "got %v", err)
}

func TestSignalWaitTimesOut(t *testing.T) {
	dir := t.TempDir()
	makeFifo(t, dir, "ready")

	sig, err := OpenSignal(dir, "ready")
	require.NoError(t, err)
	defer sig.Close()

	start := time.Now()
	res, err := sig.Wait(50 * time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, WaitTimedOut, res)
	assert.GreaterOrEqual(t, time.Since(start), 45*time.Millisecond)
}

func TestSignalWaitCoalescesProducerSignals(t *testing.T) {
	dir := t.TempDir()
	path := makeFifo(t, dir, "ready")

	sig, err := OpenSignal(dir, "ready")
	require.NoError(t, err)
	defer sig.Close()

	poke(t, path, 5)

	res, err := sig.Wait(time.Second)
	require.NoError(t, err)
	assert.Equal(t, WaitSignaled, res)

	res, err = sig.Wait(20 * time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, WaitTimedOut, res)
}

func TestSignalLocalInterruptsWait(t *testing.T) {
	dir := t.TempDir()
	path := makeFifo(t, dir, "ready")

	sig, err := OpenSignal(dir, "ready")
	require.NoError(t, err)
	defer sig.Close()

	done := make(chan WaitResult, 1)
	go func() {
		res, _ := sig.Wait(5 * time.Second)
		done <- res
	}()

	time.Sleep(20 * time.Millisecond)
	require.NoError(t, sig.SignalLocal())

	select {
	case res := <-done:
		assert.Equal(t, WaitInterrupted, res)
	case <-time.After(time.Second):
		t.Fatal("wait was not interrupted")
	}

	// The kick is sticky and takes priority over producer signals.
	poke(t, path, 1)
	res, err := sig.Wait(time.Second)
	require.NoError(t, err)
	assert.Equal(t, WaitInterrupted, res)
}

func TestSignalCloseIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	makeFifo(t, dir, "ready")

	sig, err := OpenSignal(dir, "ready")
	require.NoError(t, err)

	require.NoError(t, sig.Close())
	require.NoError(t, sig.Close())

	_, err = sig.Wait(time.Millisecond)
	assert.True(t, errors.Is(err, ErrClosed))
	assert.True(t, errors.Is(sig.SignalLocal(), ErrClosed))
}

func TestWaitResultString(t *testing.T) {
	assert.Equal(t, "signaled", WaitSignaled.String())
	assert.Equal(t, "timed-out", WaitTimedOut.String())
	assert.Equal(t, "interrupted", WaitInterrupted.String())
	assert.Equal(t, filepath.Join(DefaultDir, "x"), Path("", "x"))
}

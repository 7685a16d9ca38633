// Package telemetry records build spans with OpenTelemetry and forwards them to a renderer.
package telemetry

import (
	"bytes"
	"sync"
	"time"

	"go.trai.ch/zerr"
)

const (
	// DefaultSizeLimit is the buffered byte count that forces a flush.
	DefaultSizeLimit = 4096
	// DefaultTimeLimit is the longest a chunk of tool output stays buffered.
	DefaultTimeLimit = 50 * time.Millisecond
)

// errBatcherClosed is returned by Write after Close.
var errBatcherClosed = zerr.New("log batcher is closed")

// LogBatcher coalesces small writes of compiler output into larger chunks.
// A chunk is handed to onFlush when it reaches the size limit or has been
// pending for the time limit, whichever comes first. It is safe for concurrent use.
type LogBatcher struct {
	sizeLimit int
	timeLimit time.Duration
	onFlush   func([]byte)

	mu     sync.Mutex
	buf    bytes.Buffer
	timer  *time.Timer
	closed bool
}

// NewLogBatcher returns a LogBatcher. Non-positive limits select the defaults.
// Call Close to flush the tail and release the timer.
func NewLogBatcher(sizeLimit int, timeLimit time.Duration, onFlush func([]byte)) *LogBatcher {
	if sizeLimit <= 0 {
		sizeLimit = DefaultSizeLimit
	}
	if timeLimit <= 0 {
		timeLimit = DefaultTimeLimit
	}
	return &LogBatcher{
		sizeLimit: sizeLimit,
		timeLimit: timeLimit,
		onFlush:   onFlush,
	}
}

// Write buffers p.
func (b *LogBatcher) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return 0, errBatcherClosed
	}

	n, _ := b.buf.Write(p)
	switch {
	case b.buf.Len() >= b.sizeLimit:
		b.flushLocked()
	case b.timer == nil:
		b.timer = time.AfterFunc(b.timeLimit, b.Flush)
	}
	return n, nil
}

// Flush hands any pending output to the callback.
func (b *LogBatcher) Flush() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.flushLocked()
}

// Close flushes the pending output. Later writes fail.
func (b *LogBatcher) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}
	b.closed = true
	b.flushLocked()
	return nil
}

// flushLocked must be called with mu held.
func (b *LogBatcher) flushLocked() {
	if b.timer != nil {
		b.timer.Stop()
		b.timer = nil
	}
	if b.buf.Len() == 0 {
		return
	}

	data := bytes.Clone(b.buf.Bytes())
	b.buf.Reset()

	// The callback runs under the lock to keep chunks in order.
	if b.onFlush != nil {
		b.onFlush(data)
	}
}

package logger

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"sync"
)

var errWriterClosed = errors.New("logger: writer closed")

// sink is one buffered output. A sink that failed is skipped from then on so the
// remaining outputs keep receiving records.
type sink struct {
	buf    *bufio.Writer
	failed error
}

// asyncWriter fans log lines out to several sinks from a single goroutine.
// Sinks are flushed whenever the queue runs empty, so bursts share one flush.
type asyncWriter struct {
	queue    chan []byte
	flushReq chan chan error
	done     chan struct{}

	mu     sync.RWMutex
	closed bool

	errMu sync.Mutex
	sinks []*sink
}

func newAsyncWriter(writers []io.Writer, bufSize int) *asyncWriter {
	if bufSize <= 0 {
		bufSize = 64 * 1024
	}
	sinks := make([]*sink, 0, len(writers))
	for _, w := range writers {
		if w != nil {
			sinks = append(sinks, &sink{buf: bufio.NewWriterSize(w, bufSize)})
		}
	}
	aw := &asyncWriter{
		queue:    make(chan []byte, 256),
		flushReq: make(chan chan error),
		done:     make(chan struct{}),
		sinks:    sinks,
	}
	go aw.loop()
	return aw
}

func (w *asyncWriter) loop() {
	defer close(w.done)
	for {
		select {
		case data, ok := <-w.queue:
			if !ok {
				w.flushSinks()
				return
			}
			w.writeSinks(data)
			if len(w.queue) == 0 {
				w.flushSinks()
			}
		case ack := <-w.flushReq:
			w.drain()
			ack <- w.flushSinks()
		}
	}
}

// drain writes whatever is already queued without waiting for more.
func (w *asyncWriter) drain() {
	for {
		select {
		case data, ok := <-w.queue:
			if !ok {
				return
			}
			w.writeSinks(data)
		default:
			return
		}
	}
}

// Write copies p and queues it. It blocks when the queue is full rather than drop a record.
func (w *asyncWriter) Write(p []byte) error {
	if len(p) == 0 {
		return nil
	}
	data := append([]byte(nil), p...)

	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.closed {
		return errWriterClosed
	}
	w.queue <- data
	return nil
}

// Flush waits until everything written so far reached the sinks.
func (w *asyncWriter) Flush() error {
	ack := make(chan error, 1)
	select {
	case w.flushReq <- ack:
		return <-ack
	case <-w.done:
		return w.err()
	}
}

// Close drains the queue, flushes the sinks and reports the sink failures.
func (w *asyncWriter) Close() error {
	w.mu.Lock()
	if !w.closed {
		w.closed = true
		close(w.queue)
	}
	w.mu.Unlock()
	<-w.done
	return w.err()
}

func (w *asyncWriter) writeSinks(p []byte) {
	w.errMu.Lock()
	defer w.errMu.Unlock()
	for _, s := range w.sinks {
		if s.failed != nil {
			continue
		}
		if _, err := s.buf.Write(p); err != nil {
			s.failed = err
		}
	}
}

func (w *asyncWriter) flushSinks() error {
	w.errMu.Lock()
	defer w.errMu.Unlock()
	for _, s := range w.sinks {
		if s.failed == nil {
			s.failed = s.buf.Flush()
		}
	}
	return w.errLocked()
}

func (w *asyncWriter) err() error {
	w.errMu.Lock()
	defer w.errMu.Unlock()
	return w.errLocked()
}

func (w *asyncWriter) errLocked() error {
	var errs []error
	for i, s := range w.sinks {
		if s.failed != nil {
			errs = append(errs, fmt.Errorf("sink %d: %w", i, s.failed))
		}
	}
	return errors.Join(errs...)
}

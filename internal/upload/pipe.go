package upload

import (
	"errors"
	"io"
	"sync"
)

// DefaultPipeCapacity is the buffer size between the state machine and the transport.
const DefaultPipeCapacity = 1_000_000

var ErrClosedPipe = errors.New("upload: read/write on closed pipe")

// pipe is a fixed-capacity ring buffer shared by exactly one writer (the job
// coordinator) and one reader (the HTTP transport).
type pipe struct {
	mu   sync.Mutex
	buf  []byte
	head int // next byte to read
	n    int // bytes buffered

	wclosed bool
	werr    error // error the reader sees once drained; nil means io.EOF
	rclosed bool
	rerr    error // error the writer sees

	readable chan struct{}
	space    chan struct{}
}

// PipeWriter is the producer end. It never blocks.
type PipeWriter struct{ p *pipe }

// PipeReader is the consumer end, usable as an HTTP request body.
type PipeReader struct{ p *pipe }

// NewPipe creates a bounded pipe. Capacity below 1 falls back to DefaultPipeCapacity.
func NewPipe(capacity int) (*PipeReader, *PipeWriter) {
	if capacity < 1 {
		capacity = DefaultPipeCapacity
	}
	p := &pipe{
		buf:      make([]byte, capacity),
		readable: make(chan struct{}, 1),
		space:    make(chan struct{}, 1),
	}
	return &PipeReader{p: p}, &PipeWriter{p: p}
}

func notify(ch chan struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}

// TryWrite copies as much of b as currently fits and returns the count.
// A short count is not an error; wait on Space before retrying the rest.
func (w *PipeWriter) TryWrite(b []byte) (int, error) {
	p := w.p
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.wclosed {
		return 0, ErrClosedPipe
	}
	if p.rclosed {
		if p.rerr != nil {
			return 0, p.rerr
		}
		return 0, ErrClosedPipe
	}

	written := 0
	for written < len(b) && p.n < len(p.buf) {
		tail := (p.head + p.n) % len(p.buf)
		end := len(p.buf)
		if tail < p.head {
			end = p.head
		}
		c := copy(p.buf[tail:end], b[written:])
		p.n += c
		written += c
	}

	if written > 0 {
		notify(p.readable)
	}
	return written, nil
}

// Space fires after the reader frees buffer space. The signal is edge
// triggered and coalesced: one pending wake at most.
func (w *PipeWriter) Space() <-chan struct{} {
	return w.p.space
}

// Buffered returns the number of bytes waiting for the reader.
func (w *PipeWriter) Buffered() int {
	w.p.mu.Lock()
	defer w.p.mu.Unlock()
	return w.p.n
}

func (w *PipeWriter) Close() error {
	return w.CloseWithError(nil)
}

// CloseWithError closes the writer. Once the buffered bytes are drained the
// reader returns err, or io.EOF when err is nil.
func (w *PipeWriter) CloseWithError(err error) error {
	p := w.p
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.wclosed {
		return nil
	}
	p.wclosed = true
	p.werr = err
	if err != nil {
		// Nothing buffered is worth delivering after a failure.
		p.n = 0
	}
	notify(p.readable)
	return nil
}

// Closed reports whether the writer end has been closed.
func (w *PipeWriter) Closed() bool {
	w.p.mu.Lock()
	defer w.p.mu.Unlock()
	return w.p.wclosed
}

func (r *PipeReader) Read(b []byte) (int, error) {
	if len(b) == 0 {
		return 0, nil
	}
	p := r.p
	for {
		p.mu.Lock()
		if p.rclosed {
			p.mu.Unlock()
			return 0, ErrClosedPipe
		}
		if p.n > 0 {
			end := p.head + p.n
			if end > len(p.buf) {
				end = len(p.buf)
			}
			c := copy(b, p.buf[p.head:end])
			p.head = (p.head + c) % len(p.buf)
			p.n -= c
			if p.n == 0 {
				p.head = 0
			}
			p.mu.Unlock()
			notify(p.space)
			return c, nil
		}
		if p.wclosed {
			err := p.werr
			p.mu.Unlock()
			if err == nil {
				err = io.EOF
			}
			return 0, err
		}
		p.mu.Unlock()
		<-p.readable
	}
}

func (r *PipeReader) Close() error {
	return r.CloseWithError(nil)
}

// CloseWithError closes the reader; the writer's next TryWrite returns err
// (or ErrClosedPipe when err is nil).
func (r *PipeReader) CloseWithError(err error) error {
	p := r.p
	p.mu.Lock()
	if p.rclosed {
		p.mu.Unlock()
		return nil
	}
	p.rclosed = true
	p.rerr = err
	p.n = 0
	p.mu.Unlock()
	// Wake both sides so they observe the closure.
	notify(p.space)
	notify(p.readable)
	return nil
}

package upload

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// coordinator owns a job for its whole life. It ticks the job while the pipe
// has room and otherwise sleeps until an event or cancellation arrives.
type coordinator struct {
	job    *Job
	events chan jobEvent
	done   chan struct{}

	ready         bool
	transportDone bool
	resp          *http.Response
	transportErr  error
}

func newCoordinator(job *Job) *coordinator {
	return &coordinator{
		job:    job,
		events: make(chan jobEvent, 64),
		done:   make(chan struct{}),
	}
}

// run drives the job to a terminal state and then waits for the transport's
// final result. It returns after the transport goroutine has reported.
func (c *coordinator) run(ctx context.Context) {
	defer close(c.done)

	j := c.job
	j.start()
	c.ready = true
	cancelled := ctx.Done()

	for !c.transportDone {
		if !j.state.Terminal() && ctx.Err() != nil {
			j.fail(fmt.Errorf("%w: %w", ErrCancelled, ctx.Err()))
		}

		if c.ready && !j.state.Terminal() {
			c.ready = !j.tick()
			select {
			case ev := <-c.events:
				c.handle(ev)
			default:
			}
			continue
		}

		var space <-chan struct{}
		if !j.state.Terminal() {
			space = j.w.Space()
		}
		select {
		case <-space:
			c.handle(jobEvent{kind: eventSpace})
		case ev := <-c.events:
			c.handle(ev)
		case <-cancelled:
			cancelled = nil
		}
	}
}

func (c *coordinator) handle(ev jobEvent) {
	j := c.job
	switch ev.kind {
	case eventSpace:
		c.ready = true
	case eventBytesSent:
		if !j.state.Terminal() {
			j.progress.wire(ev.n)
		}
	case eventCompleted:
		c.transportDone = true
		c.resp = ev.resp
		if !j.state.Terminal() {
			j.fail(fmt.Errorf("%w: server answered %d before the body was sent", ErrTransport, ev.resp.StatusCode))
		}
	case eventFailed:
		c.transportDone = true
		c.transportErr = ev.err
		switch {
		case !j.state.Terminal():
			j.fail(fmt.Errorf("%w: %w", ErrTransport, ev.err))
		case j.state == StateError && errors.Is(j.err, ErrClosedPipe):
			// The pipe only told us the consumer went away; the call knows why.
			j.err = fmt.Errorf("%w: %w", ErrTransport, ev.err)
		}
	}
}

// resolve turns the terminal job and the transport outcome into the caller's result.
func (c *coordinator) resolve(ctx context.Context) (*Response, error) {
	j := c.job
	if c.resp != nil && j.state != StateComplete {
		_ = c.resp.Body.Close()
	}

	if j.state == StateError {
		return nil, j.err
	}
	if c.transportErr != nil {
		j.err = classifyCallError(ctx, c.transportErr)
		return nil, j.err
	}

	out, err := decodeResponse(c.resp)
	if err != nil {
		j.err = err
		return nil, err
	}
	j.result = out
	return out, nil
}

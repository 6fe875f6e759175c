package upload

import (
	"fmt"

	"go.uber.org/zap"
)

// DefaultChunkSize is the largest file slice offered to the pipe per tick.
const DefaultChunkSize = 4096

// pipeWriter is the producer side of the bounded pipe as seen by a job.
type pipeWriter interface {
	TryWrite(b []byte) (int, error)
	Space() <-chan struct{}
	CloseWithError(err error) error
}

// Job is one in-flight upload. Only the coordinator goroutine touches it.
type Job struct {
	ID       string
	source   *ChunkSource
	envelope Envelope
	chunk    int
	w        pipeWriter
	progress *progressReporter
	logger   *zap.Logger

	state          State
	bytesSent      int64
	envelopeCursor int
	writes         int
	err            error
	result         *Response
}

func newJob(id string, src *ChunkSource, env Envelope, chunk int, w pipeWriter, fn ProgressFunc, l *zap.Logger) *Job {
	if chunk <= 0 {
		chunk = DefaultChunkSize
	}
	return &Job{
		ID:       id,
		source:   src,
		envelope: env,
		chunk:    chunk,
		w:        w,
		progress: newProgressReporter(src.Size(), fn),
		logger:   l.With(zap.String("job", id)),
		state:    StateInvalid,
	}
}

func (j *Job) State() State       { return j.state }
func (j *Job) BytesSent() int64   { return j.bytesSent }
func (j *Job) Err() error         { return j.err }
func (j *Job) Result() *Response  { return j.result }
func (j *Job) WriteAttempts() int { return j.writes }

func (j *Job) start() {
	j.transition(StateStarted)
}

// tick advances the machine by at most one pipe write. It returns true when
// the pipe took less than offered, meaning the next tick has to wait for space.
func (j *Job) tick() (wait bool) {
	switch j.state {
	case StateStarted:
		j.envelopeCursor = 0
		j.transition(StateIntro)
	case StateIntro:
		return j.writeEnvelope(j.envelope.Intro, j.afterIntro)
	case StateFile:
		return j.writeFile()
	case StateOutro:
		return j.writeEnvelope(j.envelope.Outro, func() { j.transition(StateComplete) })
	}
	return false
}

func (j *Job) write(b []byte) (int, error) {
	j.writes++
	n, err := j.w.TryWrite(b)
	if err != nil {
		return n, fmt.Errorf("%w: %w", ErrTransport, err)
	}
	return n, nil
}

// writeEnvelope offers the unsent tail of an envelope buffer. Shortfall is
// remembered in envelopeCursor, never through the file cursor.
func (j *Job) writeEnvelope(b []byte, next func()) bool {
	pending := b[j.envelopeCursor:]
	n, err := j.write(pending)
	if err != nil {
		j.fail(err)
		return false
	}
	j.envelopeCursor += n
	if j.envelopeCursor == len(b) {
		next()
		return false
	}
	return true
}

func (j *Job) afterIntro() {
	if j.source.Done() {
		// Empty file: no file write will report, so report completion here.
		j.progress.fileAccepted(j.bytesSent)
		j.enterOutro()
		return
	}
	j.transition(StateFile)
}

func (j *Job) enterOutro() {
	j.envelopeCursor = 0
	j.transition(StateOutro)
}

// writeFile offers the next chunk. Bytes the pipe refused are given back to
// the chunk source so the next tick reads them again.
func (j *Job) writeFile() bool {
	chunk, err := j.source.ReadChunk(j.chunk)
	if err != nil {
		j.fail(err)
		return false
	}
	if len(chunk) == 0 {
		j.enterOutro()
		return false
	}

	n, err := j.write(chunk)
	if err != nil {
		j.fail(err)
		return false
	}
	if short := len(chunk) - n; short > 0 {
		if err := j.source.SeekBack(int64(short)); err != nil {
			j.fail(err)
			return false
		}
	}
	if n > 0 {
		j.bytesSent += int64(n)
		j.progress.fileAccepted(j.bytesSent)
	}

	if j.source.Done() {
		j.enterOutro()
		return false
	}
	return n < len(chunk)
}

func (j *Job) transition(to State) {
	if err := ValidateTransition(j.state, to); err != nil {
		j.fail(err)
		return
	}
	j.logger.Debug("upload state", zap.Stringer("from", j.state), zap.Stringer("to", to))
	j.state = to

	if to == StateComplete {
		j.w.CloseWithError(nil)
		j.source.Close()
	}
}

// fail moves the job to the error state, closing the pipe with err so the
// transport sees the failure instead of a clean end of body.
func (j *Job) fail(err error) {
	if j.state.Terminal() {
		return
	}
	j.logger.Debug("upload failed", zap.Stringer("state", j.state), zap.Error(err))
	j.state = StateError
	j.err = err
	j.w.CloseWithError(err)
	j.source.Close()
}

package upload

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/docker/go-units"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"parcel/internal/utils"
)

// Uploader sends local files to a file host.
type Uploader struct {
	sender       Sender
	logger       *zap.Logger
	chunkSize    int
	pipeCapacity int
	endpoint     string
}

type Option func(*Uploader)

func WithChunkSize(n int) Option {
	return func(u *Uploader) {
		if n > 0 {
			u.chunkSize = n
		}
	}
}

func WithPipeCapacity(n int) Option {
	return func(u *Uploader) {
		if n > 0 {
			u.pipeCapacity = n
		}
	}
}

func WithEndpoint(path string) Option {
	return func(u *Uploader) {
		if path != "" {
			u.endpoint = path
		}
	}
}

func New(sender Sender, l *zap.Logger, opts ...Option) *Uploader {
	if l == nil {
		l = zap.NewNop()
	}
	u := &Uploader{
		sender:       sender,
		logger:       l.With(zap.String("component", "uploader")),
		chunkSize:    DefaultChunkSize,
		pipeCapacity: DefaultPipeCapacity,
		endpoint:     DefaultEndpoint,
	}
	for _, opt := range opts {
		opt(u)
	}
	return u
}

// UploadFileStreamed uploads the file at path without holding it in memory.
// It blocks until the host has answered or the upload failed. progress may
// be nil.
func (u *Uploader) UploadFileStreamed(ctx context.Context, dst Destination, path, fileName string, progress ProgressFunc) (*Response, error) {
	fileName, err := announcedName(path, fileName)
	if err != nil {
		return nil, err
	}
	src, err := OpenChunkSource(path)
	if err != nil {
		return nil, err
	}
	defer src.Close()

	job, body := u.newStreamJob(src, fileName, progress)
	return u.runStreamJob(ctx, dst, job, body)
}

// announcedName picks the name sent in Content-Disposition. It is written
// there verbatim, so names that would break the header are refused.
func announcedName(path, fileName string) (string, error) {
	if fileName == "" {
		fileName = filepath.Base(path)
	}
	if !utils.IsSafeFilename(fileName) {
		return "", fmt.Errorf("%w: %q", ErrInvalidName, fileName)
	}
	return fileName, nil
}

func (u *Uploader) newStreamJob(src *ChunkSource, fileName string, progress ProgressFunc) (*Job, *PipeReader) {
	env := NewEnvelope(NewBoundary(), fileName)
	r, w := NewPipe(u.pipeCapacity)
	return newJob(uuid.NewString(), src, env, u.chunkSize, w, progress, u.logger), r
}

// runStreamJob starts the transport, drives the job and resolves it.
func (u *Uploader) runStreamJob(ctx context.Context, dst Destination, job *Job, body *PipeReader) (*Response, error) {
	start := time.Now()
	c := newCoordinator(job)

	job.logger.Info("upload started",
		zap.String("file", job.envelope.FileName),
		zap.String("size", units.HumanSize(float64(job.source.Size()))),
		zap.String("server", dst.Server))

	length := job.envelope.ContentLength(job.source.Size())
	reader := &countingReader{r: body, events: c.events, done: c.done}
	opts := uploadOpts(dst, u.endpoint, reader, length, job.envelope.ContentType())
	sendAsync(ctx, u.sender, opts, c.events)

	c.run(ctx)
	_ = body.Close()

	resp, err := c.resolve(ctx)
	if err != nil {
		job.logger.Warn("upload failed",
			zap.Stringer("state", job.state),
			zap.Int64("sent", job.bytesSent),
			zap.Error(err))
		return nil, err
	}

	job.logger.Info("upload finished",
		zap.String("url", resp.URL),
		zap.Duration("took", time.Since(start)))
	return resp, nil
}

package service

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	apperrors "parcel/internal/errors"
	"parcel/internal/event"
	"parcel/internal/model"
	"parcel/internal/store"
	"parcel/internal/upload"
)

// Uploader sends one file to the host. *upload.Uploader implements it.
type Uploader interface {
	UploadFileStreamed(ctx context.Context, dst upload.Destination, path, fileName string, progress upload.ProgressFunc) (*upload.Response, error)
	UploadFile(ctx context.Context, dst upload.Destination, path, fileName string, progress upload.ProgressFunc) (*upload.Response, error)
}

type Options struct {
	// Files smaller than StreamThreshold are sent with the buffered uploader.
	StreamThreshold int64
	MaxUploads      int
}

// running is the registry entry of an upload started by Enqueue.
type running struct {
	cancel  context.CancelFunc
	tracker *progressTracker
}

type UploadService struct {
	db       *store.DB
	uploader Uploader
	bus      *event.Bus
	dst      upload.Destination
	opts     Options
	logger   *zap.Logger

	slots chan struct{}
	wg    sync.WaitGroup

	mu sync.Mutex
	// ctx is the parent of enqueued uploads, set by Start.
	ctx     context.Context
	running map[string]*running
}

func NewUploadService(db *store.DB, uploader Uploader, bus *event.Bus, dst upload.Destination, opts Options, l *zap.Logger) *UploadService {
	if opts.MaxUploads < 1 {
		opts.MaxUploads = 1
	}
	return &UploadService{
		db:       db,
		uploader: uploader,
		bus:      bus,
		dst:      dst,
		opts:     opts,
		logger:   l.With(zap.String("service", "upload")),
		ctx:      context.Background(),
		slots:    make(chan struct{}, opts.MaxUploads),
		running:  make(map[string]*running),
	}
}

// Start resets records a previous run left behind. ctx bounds uploads
// started later with Enqueue.
func (s *UploadService) Start(ctx context.Context) error {
	s.mu.Lock()
	s.ctx = ctx
	s.mu.Unlock()
	n, err := s.db.ResetStuckUploads("interrupted")
	if err != nil {
		return fmt.Errorf("reset stale uploads: %w", err)
	}
	if n > 0 {
		s.logger.Info("marked stale uploads as failed", zap.Int("count", n))
	}
	return nil
}

// Stop cancels queued and running uploads and waits for them to settle.
func (s *UploadService) Stop() {
	s.mu.Lock()
	for _, r := range s.running {
		r.cancel()
	}
	s.mu.Unlock()
	s.wg.Wait()
}

// Upload sends the file at path and blocks until it is done. An empty mode
// picks buffered or streamed by file size.
func (s *UploadService) Upload(ctx context.Context, path, fileName string, mode model.UploadMode) (*model.UploadRecord, error) {
	rec, err := s.create(path, fileName, mode)
	if err != nil {
		return nil, err
	}
	return s.run(ctx, rec, newProgressTracker(rec.ID, rec.Size, s.bus))
}

// Enqueue records the upload and runs it in the background once a slot is free.
func (s *UploadService) Enqueue(path, fileName string, mode model.UploadMode) (*model.UploadRecord, error) {
	rec, err := s.create(path, fileName, mode)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	ctx, cancel := context.WithCancel(s.ctx)
	entry := &running{cancel: cancel, tracker: newProgressTracker(rec.ID, rec.Size, s.bus)}
	s.running[rec.ID] = entry
	s.mu.Unlock()

	queued := *rec
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer func() {
			s.mu.Lock()
			delete(s.running, rec.ID)
			s.mu.Unlock()
			cancel()
		}()

		select {
		case s.slots <- struct{}{}:
			defer func() { <-s.slots }()
		case <-ctx.Done():
			s.finishQueuedCancel(rec)
			return
		}
		_, _ = s.run(ctx, rec, entry.tracker)
	}()

	return &queued, nil
}

// UploadMany uploads paths with at most MaxUploads in flight. Every path
// gets a record; the returned error joins the individual failures.
func (s *UploadService) UploadMany(ctx context.Context, paths []string, mode model.UploadMode) ([]*model.UploadRecord, error) {
	records := make([]*model.UploadRecord, len(paths))
	errs := make([]error, len(paths))

	var g errgroup.Group
	g.SetLimit(s.opts.MaxUploads)
	for i, p := range paths {
		i, p := i, p
		g.Go(func() error {
			records[i], errs[i] = s.Upload(ctx, p, "", mode)
			if errs[i] != nil {
				errs[i] = fmt.Errorf("%s: %w", filepath.Base(p), errs[i])
			}
			return nil
		})
	}
	_ = g.Wait()

	return records, errors.Join(errs...)
}

// Cancel stops a queued or running upload.
func (s *UploadService) Cancel(id string) error {
	rec, err := s.Get(id)
	if err != nil {
		return err
	}
	if rec.Status.Terminal() {
		return apperrors.New(apperrors.CodeInvalidOperation, fmt.Sprintf("upload %s is %s", id, rec.Status))
	}

	s.mu.Lock()
	r, ok := s.running[id]
	s.mu.Unlock()
	if !ok {
		return apperrors.New(apperrors.CodeInvalidOperation, fmt.Sprintf("upload %s is not running here", id))
	}
	r.cancel()
	return nil
}

// Get returns the stored record, with live progress for running uploads.
func (s *UploadService) Get(id string) (*model.UploadRecord, error) {
	rec, err := s.db.GetUpload(id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, apperrors.NotFound("upload", id)
	}
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeInternalError, "load upload")
	}

	s.mu.Lock()
	r, ok := s.running[id]
	s.mu.Unlock()
	if ok && !rec.Status.Terminal() {
		rec.Sent = r.tracker.Sent()
	}
	return rec, nil
}

func (s *UploadService) List(status model.UploadStatus, limit int) ([]*model.UploadRecord, error) {
	recs, err := s.db.ListUploads(status, limit)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeInternalError, "list uploads")
	}
	return recs, nil
}

func (s *UploadService) chooseMode(size int64, requested model.UploadMode) model.UploadMode {
	if requested != "" {
		return requested
	}
	if size < s.opts.StreamThreshold {
		return model.ModeBuffered
	}
	return model.ModeStreamed
}

func (s *UploadService) create(path, fileName string, mode model.UploadMode) (*model.UploadRecord, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, apperrors.Wrap(fmt.Errorf("%w: %w", upload.ErrFileUnreadable, err), apperrors.CodeValidationFailed, upload.Describe(upload.ErrFileUnreadable))
	}
	if info.IsDir() {
		return nil, apperrors.New(apperrors.CodeValidationFailed, path+" is a directory")
	}
	if fileName == "" {
		fileName = filepath.Base(path)
	}

	now := time.Now()
	rec := &model.UploadRecord{
		ID:        uuid.NewString(),
		Path:      path,
		FileName:  fileName,
		Server:    s.dst.Server,
		Size:      info.Size(),
		Mode:      s.chooseMode(info.Size(), mode),
		CreatedAt: now,
	}
	if err := rec.TransitionTo(model.StatusQueued); err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeInvalidTransition, "queue upload")
	}
	if err := s.db.SaveUpload(rec); err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeInternalError, "save upload")
	}

	s.bus.PublishLifecycle(event.UploadQueued, rec.ID, rec, nil)
	return rec, nil
}

func (s *UploadService) run(ctx context.Context, rec *model.UploadRecord, tracker *progressTracker) (*model.UploadRecord, error) {
	l := s.logger.With(zap.String("id", rec.ID), zap.String("file", rec.FileName))

	if err := rec.TransitionTo(model.StatusUploading); err != nil {
		return rec, apperrors.Wrap(err, apperrors.CodeInvalidTransition, "start upload")
	}
	s.save(rec)
	s.bus.PublishLifecycle(event.UploadStarted, rec.ID, rec, nil)
	l.Debug("upload running", zap.String("mode", string(rec.Mode)))

	tracker.Begin()
	send := s.uploader.UploadFileStreamed
	if rec.Mode == model.ModeBuffered {
		send = s.uploader.UploadFile
	}
	resp, err := send(ctx, s.dst, rec.Path, rec.FileName, tracker.Update)
	rec.Sent = tracker.Sent()

	if err != nil {
		return rec, s.fail(rec, err)
	}

	rec.URL = resp.URL
	rec.Raw = resp.Raw
	rec.RemoteID = resp.ID
	rec.Sent = rec.Size
	_ = rec.TransitionTo(model.StatusComplete)
	s.save(rec)
	if err := s.db.AddCompleted(rec.Size); err != nil {
		l.Warn("failed to update stats", zap.Error(err))
	}

	l.Info("upload complete", zap.String("url", rec.URL))
	s.bus.PublishLifecycle(event.UploadCompleted, rec.ID, rec, nil)
	return rec, nil
}

func (s *UploadService) fail(rec *model.UploadRecord, err error) error {
	rec.Error = upload.Describe(err)

	if errors.Is(err, upload.ErrCancelled) {
		_ = rec.TransitionTo(model.StatusCancelled)
		s.save(rec)
		s.bus.PublishLifecycle(event.UploadCancelled, rec.ID, rec, nil)
		return apperrors.Wrap(err, apperrors.CodeCancelled, rec.Error)
	}

	_ = rec.TransitionTo(model.StatusError)
	s.save(rec)
	if statErr := s.db.AddFailed(); statErr != nil {
		s.logger.Warn("failed to update stats", zap.Error(statErr))
	}
	s.logger.Warn("upload failed", zap.String("id", rec.ID), zap.Error(err))
	s.bus.PublishLifecycle(event.UploadError, rec.ID, rec, err)
	return apperrors.Wrap(err, apperrors.CodeUploadFailed, rec.Error)
}

func (s *UploadService) finishQueuedCancel(rec *model.UploadRecord) {
	rec.Error = upload.Describe(upload.ErrCancelled)
	_ = rec.TransitionTo(model.StatusCancelled)
	s.save(rec)
	s.bus.PublishLifecycle(event.UploadCancelled, rec.ID, rec, nil)
}

func (s *UploadService) save(rec *model.UploadRecord) {
	if err := s.db.SaveUpload(rec); err != nil {
		s.logger.Error("failed to persist upload", zap.String("id", rec.ID), zap.Error(err))
	}
}

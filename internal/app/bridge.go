package app

import (
	"context"
	"errors"

	"parcel/internal/event"
	"parcel/internal/hostapi"
	"parcel/internal/model"
	"parcel/internal/notify"
)

// Bridge is the surface the command line drives, one call per command.
type Bridge struct {
	app *App
}

func NewBridge(a *App) *Bridge {
	return &Bridge{app: a}
}

// Uploads
func (b *Bridge) GetUploads(status model.UploadStatus, limit int) ([]*model.UploadRecord, error) {
	return b.app.uploadService.List(status, limit)
}

func (b *Bridge) GetUpload(id string) (*model.UploadRecord, error) {
	return b.app.uploadService.Get(id)
}

// Upload sends paths and blocks until all are done. name only applies when
// a single path is given.
func (b *Bridge) Upload(ctx context.Context, paths []string, name string, mode model.UploadMode) ([]*model.UploadRecord, error) {
	if err := b.app.config.RequireServer(); err != nil {
		return nil, err
	}
	if len(paths) == 1 {
		rec, err := b.app.uploadService.Upload(ctx, paths[0], name, mode)
		return []*model.UploadRecord{rec}, err
	}
	return b.app.uploadService.UploadMany(ctx, paths, mode)
}

// Stats
func (b *Bridge) GetStats() (*model.Stats, error) {
	return b.app.statsService.GetCurrent()
}

// Remote account
func (b *Bridge) GetAccount(ctx context.Context) (*hostapi.User, error) {
	if err := b.app.config.RequireServer(); err != nil {
		return nil, err
	}
	return b.app.host.User(ctx)
}

func (b *Bridge) ListFiles(ctx context.Context, page int) (*hostapi.FileList, error) {
	if err := b.app.config.RequireServer(); err != nil {
		return nil, err
	}
	return b.app.host.Files(ctx, page)
}

// Subscribe returns local bus events until the returned func is called.
func (b *Bridge) Subscribe() (<-chan event.Event, func()) {
	ch := b.app.bus.Subscribe()
	return ch, func() { b.app.bus.Unsubscribe(ch) }
}

// Watch forwards events pushed by the file host to fn until ctx ends.
func (b *Bridge) Watch(ctx context.Context, fn func(event.RemoteEvent)) error {
	if err := b.app.config.RequireServer(); err != nil {
		return err
	}
	ln, err := notify.NewListener(b.app.config.Server, b.app.config.Token, b.app.bus, b.app.logger)
	if err != nil {
		return err
	}

	events, unsubscribe := b.Subscribe()
	defer unsubscribe()

	done := make(chan error, 1)
	go func() { done <- ln.Listen(ctx) }()

	for {
		select {
		case ev := <-events:
			if r, ok := ev.Data.(event.RemoteEvent); ok {
				fn(r)
			}
		case err := <-done:
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil
			}
			return err
		}
	}
}

package service

import (
	"sync/atomic"
	"time"

	"parcel/internal/event"
	"parcel/internal/upload"
)

const progressInterval = 200 * time.Millisecond

// progressTracker turns upload callbacks into throttled bus events and keeps
// the latest byte count for readers on other goroutines.
type progressTracker struct {
	id    string
	size  int64
	bus   *event.Bus
	sent  atomic.Int64
	start time.Time
	last  time.Time
}

func newProgressTracker(id string, size int64, bus *event.Bus) *progressTracker {
	return &progressTracker{id: id, size: size, bus: bus}
}

func (t *progressTracker) Begin() {
	t.start = time.Now()
}

func (t *progressTracker) Sent() int64 {
	return t.sent.Load()
}

func (t *progressTracker) Update(p upload.Progress) {
	t.sent.Store(p.Sent)

	now := time.Now()
	final := p.Sent >= p.Total
	if !final && now.Sub(t.last) < progressInterval {
		return
	}
	t.last = now

	var speed int64
	if elapsed := now.Sub(t.start).Seconds(); elapsed > 0 {
		speed = int64(float64(p.Sent) / elapsed)
	}
	t.bus.PublishProgress(event.ProgressEvent{
		ID:          t.id,
		Sent:        p.Sent,
		Size:        p.Total,
		Transmitted: p.Transmitted,
		Fraction:    p.Fraction(),
		Speed:       speed,
		ETA:         event.CalculateETA(p.Total-p.Sent, speed),
	})
}

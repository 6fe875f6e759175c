package upload

// Progress is a snapshot of how much of the file payload has left the device.
type Progress struct {
	// Sent counts file bytes accepted by the pipe. Envelope bytes are excluded.
	Sent int64 `json:"sent"`
	// Total is the file size.
	Total int64 `json:"total"`
	// Transmitted counts body bytes (envelope included) read by the transport so far.
	Transmitted int64 `json:"transmitted"`
}

func (p Progress) Fraction() float64 {
	return Fraction(p.Sent, p.Total)
}

// ProgressFunc receives progress snapshots in increasing order of Sent.
// Calls for one upload never overlap; a slow callback slows the upload.
type ProgressFunc func(Progress)

// Fraction maps sent/size to [0,1]. An empty file is complete by definition.
func Fraction(sent, size int64) float64 {
	if size <= 0 {
		return 1
	}
	if sent <= 0 {
		return 0
	}
	if sent >= size {
		return 1
	}
	return float64(sent) / float64(size)
}

// progressReporter turns the job's byte accounting into observer calls.
type progressReporter struct {
	fn          ProgressFunc
	total       int64
	last        int64
	transmitted int64
}

func newProgressReporter(total int64, fn ProgressFunc) *progressReporter {
	return &progressReporter{fn: fn, total: total}
}

// fileAccepted is called after every accepted write in the file state, and
// once after the intro for an empty file.
func (r *progressReporter) fileAccepted(sent int64) {
	if sent < r.last {
		return
	}
	r.last = sent
	if r.fn != nil {
		r.fn(Progress{Sent: sent, Total: r.total, Transmitted: r.transmitted})
	}
}

// wire records bytes the transport has pulled from the pipe. It only
// updates the snapshot; reports stay tied to accepted file writes.
func (r *progressReporter) wire(n int64) {
	r.transmitted += n
}

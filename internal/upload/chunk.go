package upload

import (
	"errors"
	"fmt"
	"io"
	"os"
)

// ChunkSource reads a local file in fixed-size chunks and keeps its own
// cursor, so a short write can be retried by moving the cursor back.
type ChunkSource struct {
	f      *os.File
	path   string
	size   int64
	offset int64
	buf    []byte
	closed bool
}

func OpenChunkSource(path string) (*ChunkSource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFileUnreadable, err)
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("%w: %w", ErrFileUnreadable, err)
	}
	if info.IsDir() {
		f.Close()
		return nil, fmt.Errorf("%w: %s is a directory", ErrFileUnreadable, path)
	}

	return &ChunkSource{f: f, path: path, size: info.Size()}, nil
}

// ReadChunk returns up to max bytes starting at the cursor and advances it.
// The result is shorter than max only at end of file. The returned slice is
// reused by the next call.
func (s *ChunkSource) ReadChunk(max int) ([]byte, error) {
	if s.closed {
		return nil, fmt.Errorf("%w: %s already closed", ErrFileUnreadable, s.path)
	}
	if max <= 0 {
		return nil, nil
	}
	if cap(s.buf) < max {
		s.buf = make([]byte, max)
	}
	buf := s.buf[:max]
	if remaining := s.size - s.offset; remaining < int64(max) {
		buf = buf[:remaining]
	}

	n, err := s.f.ReadAt(buf, s.offset)
	if err != nil && !(errors.Is(err, io.EOF) && n == len(buf)) {
		return nil, fmt.Errorf("%w: read %s at %d: %w", ErrFileUnreadable, s.path, s.offset, err)
	}
	s.offset += int64(n)
	return buf[:n], nil
}

// SeekBack moves the cursor n bytes backward.
func (s *ChunkSource) SeekBack(n int64) error {
	if n < 0 || n > s.offset {
		return fmt.Errorf("%w: cannot rewind %d bytes at offset %d", ErrSeekFailure, n, s.offset)
	}
	s.offset -= n
	return nil
}

func (s *ChunkSource) Offset() int64 { return s.offset }
func (s *ChunkSource) Size() int64   { return s.size }
func (s *ChunkSource) Path() string  { return s.path }

// Done reports whether every byte of the file has been consumed.
func (s *ChunkSource) Done() bool { return s.offset >= s.size }

// Closed reports whether the file handle has been released.
func (s *ChunkSource) Closed() bool { return s.closed }

func (s *ChunkSource) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	s.buf = nil
	return s.f.Close()
}

package upload

import (
	"bytes"
	"context"
	"fmt"
	"mime/multipart"
	"net/textproto"
	"os"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"go.uber.org/zap"
)

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

// UploadFile uploads a file by building the whole request body in memory.
// It suits small files; progress follows the transport reading the body.
func (u *Uploader) UploadFile(ctx context.Context, dst Destination, path, fileName string, progress ProgressFunc) (*Response, error) {
	fileName, err := announcedName(path, fileName)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFileUnreadable, err)
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename="%s"`, quoteEscaper.Replace(fileName)))
	h.Set("Content-Type", mimetype.Detect(data).String())
	part, err := mw.CreatePart(h)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFileUnreadable, err)
	}
	header := int64(body.Len())
	if _, err := part.Write(data); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFileUnreadable, err)
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFileUnreadable, err)
	}

	l := u.logger.With(zap.String("file", fileName))
	l.Debug("buffered upload", zap.Int("size", len(data)), zap.Int("body", body.Len()))

	reader := &payloadReader{
		r:        bytes.NewReader(body.Bytes()),
		reporter: newProgressReporter(int64(len(data)), progress),
		offset:   header,
	}
	opts := uploadOpts(dst, u.endpoint, reader, int64(body.Len()), mw.FormDataContentType())

	resp, err := u.sender.Call(ctx, opts)
	if err != nil {
		if resp != nil && resp.Body != nil {
			_ = resp.Body.Close()
		}
		err = classifyCallError(ctx, err)
		l.Warn("upload failed", zap.Error(err))
		return nil, err
	}

	out, err := decodeResponse(resp)
	if err != nil {
		l.Warn("upload failed", zap.Error(err))
		return nil, err
	}
	l.Info("upload finished", zap.String("url", out.URL))
	return out, nil
}

// payloadReader counts body bytes and reports the part of them that
// belongs to the file payload.
type payloadReader struct {
	r        *bytes.Reader
	reporter *progressReporter
	offset   int64
	read     int64
}

func (p *payloadReader) Read(b []byte) (int, error) {
	n, err := p.r.Read(b)
	if n > 0 {
		p.read += int64(n)
		p.reporter.wire(int64(n))
		sent := p.read - p.offset
		if sent > p.reporter.total {
			sent = p.reporter.total
		}
		if sent > p.reporter.last {
			p.reporter.fileAccepted(sent)
		}
	}
	return n, err
}

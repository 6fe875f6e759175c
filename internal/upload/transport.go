package upload

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/rclone/rclone/lib/rest"
)

// DefaultEndpoint is the upload path on the file host.
const DefaultEndpoint = "/api/upload"

// Sender performs one HTTP call. *rest.Client satisfies it.
type Sender interface {
	Call(ctx context.Context, opts *rest.Opts) (*http.Response, error)
}

// Destination identifies the file host and the credential presented to it.
type Destination struct {
	Server string
	Token  string
}

// Response is the host's description of a stored file.
type Response struct {
	ID   string `json:"id,omitempty"`
	Name string `json:"name"`
	URL  string `json:"url"`
	Raw  string `json:"raw"`
	Size int64  `json:"size"`
	Type string `json:"type,omitempty"`
}

type eventKind int

const (
	eventSpace eventKind = iota
	eventBytesSent
	eventCompleted
	eventFailed
)

// jobEvent is the only thing the coordinator waits on besides cancellation.
type jobEvent struct {
	kind eventKind
	n    int64
	resp *http.Response
	err  error
}

// countingReader reports every successful read of the request body.
type countingReader struct {
	r      io.ReadCloser
	events chan<- jobEvent
	done   <-chan struct{}
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	if n > 0 {
		select {
		case c.events <- jobEvent{kind: eventBytesSent, n: int64(n)}:
		case <-c.done:
		}
	}
	return n, err
}

func (c *countingReader) Close() error {
	return c.r.Close()
}

func requestHeaders(dst Destination) map[string]string {
	h := map[string]string{}
	if dst.Token != "" {
		h["Authorization"] = dst.Token
	}
	if origin := serverOrigin(dst.Server); origin != "" {
		h["Referer"] = origin
	}
	return h
}

func serverOrigin(server string) string {
	u, err := url.Parse(server)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return ""
	}
	return u.Scheme + "://" + u.Host
}

func uploadOpts(dst Destination, endpoint string, body io.Reader, length int64, contentType string) *rest.Opts {
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	return &rest.Opts{
		Method:        http.MethodPost,
		RootURL:       strings.TrimRight(dst.Server, "/"),
		Path:          endpoint,
		Body:          body,
		ContentLength: &length,
		ContentType:   contentType,
		ExtraHeaders:  requestHeaders(dst),
	}
}

// sendAsync runs the request on its own goroutine and delivers exactly one
// completed or failed event.
func sendAsync(ctx context.Context, sender Sender, opts *rest.Opts, events chan<- jobEvent) {
	go func() {
		resp, err := sender.Call(ctx, opts)
		if err != nil {
			if resp != nil && resp.Body != nil {
				_ = resp.Body.Close()
			}
			events <- jobEvent{kind: eventFailed, err: err}
			return
		}
		if resp == nil {
			events <- jobEvent{kind: eventFailed, err: errors.New("no response")}
			return
		}
		events <- jobEvent{kind: eventCompleted, resp: resp}
	}()
}

// decodeResponse parses a successful reply. The body is always closed.
func decodeResponse(resp *http.Response) (*Response, error) {
	var out Response
	if err := rest.DecodeJSON(resp, &out); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDecode, err)
	}
	if out.URL == "" {
		return nil, fmt.Errorf("%w: response has no url", ErrDecode)
	}
	return &out, nil
}

// classifyCallError maps a failed call to the upload error taxonomy.
func classifyCallError(ctx context.Context, err error) error {
	if ctx.Err() != nil || errors.Is(err, context.Canceled) {
		return fmt.Errorf("%w: %w", ErrCancelled, err)
	}
	return fmt.Errorf("%w: %w", ErrTransport, err)
}

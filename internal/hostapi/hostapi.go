// Package hostapi talks to the file host's JSON API.
package hostapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rclone/rclone/fs"
	"github.com/rclone/rclone/fs/fserrors"
	"github.com/rclone/rclone/lib/pacer"
	"github.com/rclone/rclone/lib/rest"
	"go.uber.org/zap"

	"parcel/internal/client"
	"parcel/internal/upload"
)

const (
	minSleep = 10 * time.Millisecond
	maxSleep = 2 * time.Second
)

var retryErrorCodes = []int{
	429,
	500, 502, 503, 504,
}

func shouldRetry(ctx context.Context, resp *http.Response, err error) (bool, error) {
	if fserrors.ContextError(ctx, &err) {
		return false, err
	}
	return fserrors.ShouldRetry(err) || fserrors.ShouldRetryHTTP(resp, retryErrorCodes), err
}

// APIError is a non-2xx answer from the host.
type APIError struct {
	StatusCode int    `json:"-"`
	Code       string `json:"error"`
	Message    string `json:"message"`
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("host returned %d: %s", e.StatusCode, e.Code)
	}
	return fmt.Sprintf("host returned %d: %s: %s", e.StatusCode, e.Code, e.Message)
}

func errorHandler(resp *http.Response) error {
	apiErr := &APIError{StatusCode: resp.StatusCode}
	body, err := rest.ReadBody(resp)
	if err == nil && len(body) > 0 {
		_ = json.Unmarshal(body, apiErr)
	}
	if apiErr.Code == "" {
		apiErr.Code = strings.ToLower(http.StatusText(resp.StatusCode))
	}
	return apiErr
}

type Client struct {
	srv    *rest.Client
	pacer  *fs.Pacer
	server string
	token  string
	logger *zap.Logger
}

func New(ctx context.Context, server, token string, l *zap.Logger, opts ...client.Option) *Client {
	server = strings.TrimRight(server, "/")
	srv := client.New(ctx, server, opts...)
	srv.SetErrorHandler(errorHandler)

	return &Client{
		srv:    srv,
		pacer:  fs.NewPacer(ctx, pacer.NewDefault(pacer.MinSleep(minSleep), pacer.MaxSleep(maxSleep))),
		server: server,
		token:  token,
		logger: l.With(zap.String("component", "hostapi")),
	}
}

// SetRetries overrides how many times a retryable call is attempted.
func (c *Client) SetRetries(n int) {
	c.pacer.SetRetries(n)
}

// Sender returns the transport used for uploads.
func (c *Client) Sender() upload.Sender {
	return c.srv
}

func (c *Client) Destination() upload.Destination {
	return upload.Destination{Server: c.server, Token: c.token}
}

func (c *Client) Server() string {
	return c.server
}

func (c *Client) headers(extra map[string]string) map[string]string {
	h := make(map[string]string, len(extra)+2)
	if c.token != "" {
		h["Authorization"] = c.token
	}
	if u, err := url.Parse(c.server); err == nil && u.Host != "" {
		h["Referer"] = u.Scheme + "://" + u.Host
	}
	for k, v := range extra {
		h[k] = v
	}
	return h
}

func idempotent(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodPut, http.MethodDelete, http.MethodOptions:
		return true
	}
	return false
}

// Do sends a request and returns the raw response body. Idempotent calls
// are retried on throttling and transient server errors.
func (c *Client) Do(ctx context.Context, method, path string, query url.Values, headers map[string]string, body []byte) ([]byte, error) {
	var out []byte
	err := c.pacer.Call(func() (bool, error) {
		opts := rest.Opts{
			Method:       method,
			Path:         path,
			Parameters:   query,
			ExtraHeaders: c.headers(headers),
		}
		if body != nil {
			opts.Body = bytes.NewReader(body)
			opts.ContentType = "application/json"
		}

		resp, err := c.srv.Call(ctx, &opts)
		if err == nil {
			out, err = rest.ReadBody(resp)
		}
		retry, err := shouldRetry(ctx, resp, err)
		if retry && idempotent(method) {
			c.logger.Debug("retrying", zap.String("method", method), zap.String("path", path), zap.Error(err))
			return true, err
		}
		return false, err
	})
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	return out, nil
}

func (c *Client) getJSON(ctx context.Context, path string, query url.Values, v any) error {
	body, err := c.Do(ctx, http.MethodGet, path, query, nil, nil)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

type User struct {
	ID           string `json:"id"`
	Username     string `json:"username"`
	Email        string `json:"email,omitempty"`
	StorageUsed  int64  `json:"storageUsed"`
	StorageQuota int64  `json:"storageQuota"`
}

func (c *Client) User(ctx context.Context) (*User, error) {
	var u User
	if err := c.getJSON(ctx, "/api/user", nil, &u); err != nil {
		return nil, err
	}
	return &u, nil
}

// File is a file stored on the host.
type File struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	URL       string    `json:"url"`
	Raw       string    `json:"raw"`
	Size      int64     `json:"size"`
	Type      string    `json:"type"`
	CreatedAt time.Time `json:"createdAt"`
}

type FileList struct {
	Files []File `json:"files"`
	Page  int    `json:"page"`
	Pages int    `json:"pages"`
	Total int    `json:"total"`
}

// Files lists one page of the user's files. Pages start at 1.
func (c *Client) Files(ctx context.Context, page int) (*FileList, error) {
	if page < 1 {
		page = 1
	}
	var list FileList
	query := url.Values{"page": {strconv.Itoa(page)}}
	if err := c.getJSON(ctx, "/api/user/files", query, &list); err != nil {
		return nil, err
	}
	return &list, nil
}

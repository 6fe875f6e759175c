package client

import (
	"context"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/rclone/rclone/fs"
	"github.com/rclone/rclone/fs/fshttp"
	"github.com/rclone/rclone/lib/rest"
	"golang.org/x/net/proxy"

	"parcel/internal/config"
)

// Client is the rest client used for every call to the file host.
type Client = rest.Client

type settings struct {
	ci    *fs.ConfigInfo
	proxy *url.URL
}

// Option tweaks how the underlying fshttp client is built.
type Option func(*settings)

// New returns a rest.Client rooted at baseURL. The options apply to a private
// copy of the rclone config, so clients never affect each other.
func New(ctx context.Context, baseURL string, opts ...Option) *Client {
	ctx, ci := fs.AddConfig(ctx)
	s := &settings{ci: ci}
	for _, opt := range opts {
		opt(s)
	}

	var hc *http.Client
	if s.proxy == nil {
		hc = fshttp.NewClient(ctx)
	} else {
		hc = &http.Client{Transport: fshttp.NewTransportCustom(ctx, s.applyProxy)}
	}

	rc := rest.NewClient(hc)
	if baseURL != "" {
		rc.SetRoot(baseURL)
	}
	return rc
}

func (s *settings) applyProxy(t *http.Transport) {
	switch s.proxy.Scheme {
	case "socks5", "socks5h":
		dialer, err := proxy.FromURL(s.proxy, proxy.Direct)
		if err != nil {
			return
		}
		t.Proxy = nil
		if cd, ok := dialer.(proxy.ContextDialer); ok {
			t.DialContext = cd.DialContext
		} else {
			t.DialContext = func(ctx context.Context, network, addr string) (net.Conn, error) {
				return dialer.Dial(network, addr)
			}
		}
	default:
		t.Proxy = http.ProxyURL(s.proxy)
	}
}

// FromConfig derives client options from the application config.
func FromConfig(cfg *config.Config) []Option {
	opts := []Option{
		WithConnectTimeout(cfg.ConnectTimeout),
		WithUserAgent(cfg.UserAgent),
	}
	if cfg.Timeout > 0 {
		opts = append(opts, WithTimeout(cfg.Timeout))
	}
	if cfg.Proxy != "" {
		opts = append(opts, WithProxy(cfg.Proxy))
	}
	if cfg.Dev {
		opts = append(opts, WithDump(true, false, false, false, false))
	}
	return opts
}

// WithTimeout bounds idle time on a connection. Uploads that keep sending
// data are not cut off by it.
func WithTimeout(d time.Duration) Option {
	return func(s *settings) {
		s.ci.Timeout = d
	}
}

func WithConnectTimeout(d time.Duration) Option {
	return func(s *settings) {
		s.ci.ConnectTimeout = d
	}
}

func WithUserAgent(ua string) Option {
	return func(s *settings) {
		if ua != "" {
			s.ci.UserAgent = ua
		}
	}
}

func WithInsecureSkipVerify(skip bool) Option {
	return func(s *settings) {
		s.ci.InsecureSkipVerify = skip
	}
}

// WithHeader adds a header to every request.
func WithHeader(key, value string) Option {
	return func(s *settings) {
		s.ci.Headers = append(s.ci.Headers, &fs.HTTPOption{
			Key:   key,
			Value: value,
		})
	}
}

// WithDump logs HTTP traffic through rclone's dumper.
func WithDump(headers, bodies, requests, responses, auth bool) Option {
	return func(s *settings) {
		var flags fs.DumpFlags
		if headers {
			flags |= fs.DumpHeaders
		}
		if bodies {
			flags |= fs.DumpBodies
		}
		if requests {
			flags |= fs.DumpRequests
		}
		if responses {
			flags |= fs.DumpResponses
		}
		if auth {
			flags |= fs.DumpAuth
		}
		s.ci.Dump = flags
	}
}

// WithProxy routes requests through an http(s) or socks5 proxy. An
// unparsable URL leaves the client direct.
func WithProxy(rawURL string) Option {
	return func(s *settings) {
		u, err := url.Parse(rawURL)
		if err != nil || u.Host == "" {
			return
		}
		s.proxy = u
	}
}

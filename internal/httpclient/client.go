// Package httpclient implements the HTTP Client component: a pooled
// request pipeline that emits metrics samples and never throws for
// protocol-level failures (spec §4.5).
package httpclient

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/nogcio/wrkr/internal/metrics"
	"github.com/nogcio/wrkr/internal/value"
)

// Config controls connection pooling, grounded on the teacher's
// DefaultHTTPClientConfig (keep-alive, HTTP/1.1+HTTP/2 negotiation, 90s idle
// timeout per origin).
type Config struct {
	Timeout             time.Duration
	MaxIdleConns        int
	MaxIdleConnsPerHost int
	MaxConnsPerHost     int
	IdleConnTimeout     time.Duration
	DisableKeepAlives   bool
	InsecureSkipVerify  bool
}

func DefaultConfig() Config {
	return Config{
		Timeout:             30 * time.Second,
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 100,
		MaxConnsPerHost:     0,
		IdleConnTimeout:     90 * time.Second,
	}
}

// Client is the shared per-scenario HTTP client handed to every VU, backed
// by one pooled *http.Client.
type Client struct {
	http *http.Client
	cfg  Config
	m    *metrics.Engine
}

func New(cfg Config, m *metrics.Engine) *Client {
	transport := &http.Transport{
		MaxIdleConns:        cfg.MaxIdleConns,
		MaxIdleConnsPerHost: cfg.MaxIdleConnsPerHost,
		MaxConnsPerHost:     cfg.MaxConnsPerHost,
		IdleConnTimeout:     cfg.IdleConnTimeout,
		DisableKeepAlives:   cfg.DisableKeepAlives,
		TLSClientConfig: &tls.Config{
			InsecureSkipVerify: cfg.InsecureSkipVerify,
		},
	}
	return &Client{
		http: &http.Client{Transport: transport, Timeout: cfg.Timeout},
		cfg:  cfg,
		m:    m,
	}
}

// Close releases pooled idle connections.
func (c *Client) Close() { c.http.CloseIdleConnections() }

// Request describes one HTTP call, matching spec §4.5's operation inputs.
type Request struct {
	Method      string
	URL         string
	Headers     map[string]string
	QueryParams map[string]string
	Body        value.Value // Null means no body
	Timeout     time.Duration
	Name        string // logical name for metric grouping; defaults to URL
	Tags        value.Tags
}

// Response matches spec §4.5's documented shape exactly.
type Response struct {
	Status    int
	Body      []byte
	Headers   map[string]string
	Error     string
	ErrorKind string
}

// InvalidUsageError reports caller misuse: a malformed URL, a URL scheme
// other than http/https, or a timeout outside [1ms, 1h].
type InvalidUsageError struct{ Msg string }

func (e *InvalidUsageError) Error() string { return "invalid usage: " + e.Msg }

const defaultTimeout = 30 * time.Second

// Do performs req. For caller misuse (bad URL, unsupported scheme, timeout
// out of range) it returns a nil Response and an InvalidUsageError per
// spec §4.5; otherwise it returns a non-nil Response and a nil error —
// transport/DNS failures are reported on the Response, never as a Go error.
func (c *Client) Do(ctx context.Context, req Request) (*Response, error) {
	if req.Method == "" {
		req.Method = http.MethodGet
	}
	parsed, err := url.Parse(req.URL)
	if err != nil || parsed.Host == "" {
		return nil, &InvalidUsageError{Msg: fmt.Sprintf("invalid URL %q: %v", req.URL, err)}
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return nil, &InvalidUsageError{Msg: fmt.Sprintf("unsupported scheme %q", parsed.Scheme)}
	}

	timeout := req.Timeout
	if timeout == 0 {
		timeout = c.cfg.Timeout
	}
	if timeout == 0 {
		timeout = defaultTimeout
	}
	if timeout < time.Millisecond {
		return nil, &InvalidUsageError{Msg: "timeout below 1ms minimum"}
	}
	if timeout > time.Hour {
		return nil, &InvalidUsageError{Msg: "timeout exceeds 1h maximum"}
	}

	if len(req.QueryParams) > 0 {
		q := parsed.Query()
		for k, v := range req.QueryParams {
			q.Set(k, v)
		}
		parsed.RawQuery = q.Encode()
	}

	bodyBytes, contentType, bodySent := encodeBody(req.Body)

	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(reqCtx, req.Method, parsed.String(), bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, &InvalidUsageError{Msg: err.Error()}
	}
	if contentType != "" {
		httpReq.Header.Set("Content-Type", contentType)
	}
	for k, v := range req.Headers {
		httpReq.Header.Set(k, v)
	}

	name := req.Name
	if name == "" {
		name = req.URL
	}
	baseTags := req.Tags.With("method", value.TagString(req.Method)).With("name", value.TagString(name))

	start := time.Now()
	resp, err := c.http.Do(httpReq)
	duration := time.Since(start)

	if err != nil {
		kind := classifyError(err)
		c.recordSamples(baseTags.With("status", value.TagI64(0)), duration, 0, int64(len(bodyBytes)), true)
		return &Response{Status: 0, Error: err.Error(), ErrorKind: kind}, nil
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)
	headers := make(map[string]string, len(resp.Header))
	headerBytes := 0
	for k, vs := range resp.Header {
		headers[strings.ToLower(k)] = strings.Join(vs, ", ")
		for _, v := range vs {
			headerBytes += len(k) + len(v)
		}
	}

	statusTags := baseTags.With("status", value.TagI64(int64(resp.StatusCode)))
	c.recordSamples(statusTags, duration, int64(len(respBody)+headerBytes), int64(len(bodyBytes)), false)

	_ = bodySent
	return &Response{Status: resp.StatusCode, Body: respBody, Headers: headers}, nil
}

func (c *Client) recordSamples(tags value.Tags, duration time.Duration, bytesReceived, bytesSent int64, transportFailed bool) {
	c.m.Record("http_reqs", metrics.Counter, tags, 1)
	c.m.Record("http_req_duration", metrics.Trend, tags, float64(duration.Microseconds()))
	failed := 0.0
	if transportFailed {
		failed = 1.0
	}
	c.m.Record("http_req_failed", metrics.Rate, tags, failed)
	c.m.Record("data_received", metrics.Counter, tags, float64(bytesReceived))
	c.m.Record("data_sent", metrics.Counter, tags, float64(bytesSent))
}

func classifyError(err error) string {
	msg := err.Error()
	switch {
	case strings.Contains(msg, "timeout") || strings.Contains(msg, "deadline exceeded"):
		return "timeout"
	case strings.Contains(msg, "no such host") || strings.Contains(msg, "lookup"):
		return "dns"
	case strings.Contains(msg, "connection refused") || strings.Contains(msg, "connect:"):
		return "connect"
	case strings.Contains(msg, "reset by peer"):
		return "reset"
	default:
		return "transport"
	}
}

// encodeBody implements spec §4.5's body rules: byte/string as-is with a
// text/plain default; anything else serialized as JSON.
func encodeBody(v value.Value) (data []byte, contentType string, sent bool) {
	switch v.Kind() {
	case value.KindNull:
		return nil, "", false
	case value.KindString:
		s, _ := v.AsString()
		return []byte(s), "text/plain; charset=utf-8", true
	case value.KindBytes:
		b, _ := v.AsBytes()
		return b, "text/plain; charset=utf-8", true
	default:
		out, err := json.Marshal(v.ToGo())
		if err != nil {
			return nil, "", false
		}
		return out, "application/json; charset=utf-8", true
	}
}

// BuildURL joins a base URL with a path the way the teacher's request
// builder does, tolerating either a leading slash or none.
func BuildURL(base, path string) string {
	if path == "" {
		return base
	}
	if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		return path
	}
	base = strings.TrimSuffix(base, "/")
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return base + path
}

// ParseStatusBucket buckets a status code for display ("2xx", "4xx", ...;
// "error" for status 0).
func ParseStatusBucket(status int) string {
	if status == 0 {
		return "error"
	}
	return strconv.Itoa(status/100) + "xx"
}

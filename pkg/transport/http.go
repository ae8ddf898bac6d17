// Package transport implements the HTTP client used by the make_request
// action.
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/devicelab-dev/botrunner/pkg/core"
)

const (
	// DefaultTimeout bounds a request when Options.Timeout is zero.
	DefaultTimeout = 30 * time.Second

	// DefaultMaxResponseBody bounds a response body when
	// Options.MaxResponseBody is zero.
	DefaultMaxResponseBody = 10 * 1024 * 1024 // 10 MB
)

// Options configures a Client.
type Options struct {
	Timeout time.Duration
	// UserAgent is sent unless the step sets its own.
	UserAgent string
	// MaxResponseBody is the largest body accepted, in bytes. A larger
	// response fails the request rather than being cut short.
	MaxResponseBody int64
}

// Client sends step requests over net/http.
type Client struct {
	http      *http.Client
	userAgent string
	maxBody   int64
}

// New creates a Client.
func New(opts Options) *Client {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	maxBody := opts.MaxResponseBody
	if maxBody <= 0 {
		maxBody = DefaultMaxResponseBody
	}
	return &Client{
		http:      &http.Client{Timeout: timeout},
		userAgent: opts.UserAgent,
		maxBody:   maxBody,
	}
}

// Send performs req. Any HTTP status is a successful exchange; only
// transport failures are errors. Content is the decoded JSON body when the
// body is JSON and the raw bytes otherwise.
func (c *Client) Send(ctx context.Context, req *core.HTTPRequest) (*core.HTTPResponse, error) {
	httpReq, err := c.buildRequest(ctx, req)
	if err != nil {
		return nil, core.ErrRequestFailed.WithMessage("build request").WithCause(err)
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return nil, core.ErrCancelled.WithCause(ctx.Err())
		}
		return nil, core.ErrServerUnreachable.
			WithMessage(fmt.Sprintf("%s %s", httpReq.Method, req.URL)).
			WithCause(err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBody+1))
	if err != nil {
		return nil, core.ErrRequestFailed.WithMessage("read response body").WithCause(err)
	}
	if int64(len(body)) > c.maxBody {
		return nil, core.ErrRequestFailed.WithMessage(
			fmt.Sprintf("%s %s: response body exceeds %d bytes", httpReq.Method, req.URL, c.maxBody))
	}

	return &core.HTTPResponse{
		StatusCode: resp.StatusCode,
		Content:    decodeContent(body),
	}, nil
}

func (c *Client) buildRequest(ctx context.Context, req *core.HTTPRequest) (*http.Request, error) {
	method := strings.ToUpper(req.Method)
	if method == "" {
		method = http.MethodGet
	}

	var bodyReader io.Reader
	if req.Body != nil {
		data, err := serializeBody(req.Body)
		if err != nil {
			return nil, fmt.Errorf("serialize body: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, req.URL, bodyReader)
	if err != nil {
		return nil, err
	}
	if req.Body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	if c.userAgent != "" {
		httpReq.Header.Set("User-Agent", c.userAgent)
	}
	for key, value := range req.Headers {
		httpReq.Header.Set(key, value)
	}
	return httpReq, nil
}

func serializeBody(body any) ([]byte, error) {
	switch v := body.(type) {
	case string:
		return []byte(v), nil
	case []byte:
		return v, nil
	default:
		return json.Marshal(v)
	}
}

func decodeContent(body []byte) any {
	var decoded any
	if len(bytes.TrimSpace(body)) > 0 && json.Unmarshal(body, &decoded) == nil {
		return decoded
	}
	return body
}

var _ core.HTTPClient = (*Client)(nil)

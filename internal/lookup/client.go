// Package lookup wraps the outbound HTTP client used to query the IP
// geolocation API. A single Client is built at startup and shared by every
// session.
package lookup

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	wserrors "ipgeo-ws/pkg/errors"
)

const maxBodySize = 4 << 20

// Client is safe for concurrent use. It holds no per-call state.
type Client struct {
	http    *http.Client
	baseURL string
}

// NewClient returns a client that issues GET requests under baseURL with the given timeout.
func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		http:    &http.Client{Timeout: timeout},
		baseURL: baseURL,
	}
}

// BaseURL returns the configured API root.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// URL builds <base>/<api>?ip=<ip>. Query separators in ip are kept as-is;
// only bytes that cannot appear in a request line are percent-encoded.
func (c *Client) URL(api, ip string) string {
	return c.baseURL + "/" + api + "?ip=" + escapeQueryValue(ip)
}

const upperhex = "0123456789ABCDEF"

// escapeQueryValue applies the WHATWG special-query percent-encode set:
// controls, space, non-ASCII and " ' < >.
func escapeQueryValue(s string) string {
	n := 0
	for i := 0; i < len(s); i++ {
		if shouldEscape(s[i]) {
			n++
		}
	}
	if n == 0 {
		return s
	}

	var b strings.Builder
	b.Grow(len(s) + 2*n)
	for i := 0; i < len(s); i++ {
		c := s[i]
		if !shouldEscape(c) {
			b.WriteByte(c)
			continue
		}
		b.WriteByte('%')
		b.WriteByte(upperhex[c>>4])
		b.WriteByte(upperhex[c&0x0f])
	}
	return b.String()
}

func shouldEscape(c byte) bool {
	return c <= ' ' || c >= 0x7f || c == '"' || c == '\'' || c == '<' || c == '>'
}

// RequestError reports a request that never produced a response: bad URL,
// dial failure, timeout. It matches wserrors.ErrUpstream.
type RequestError struct {
	Err error
}

func (e *RequestError) Error() string {
	return e.Err.Error()
}

func (e *RequestError) Unwrap() []error {
	return []error{wserrors.ErrUpstream, e.Err}
}

// ParseError reports a response body that could not be decoded as JSON.
type ParseError struct {
	Err error
}

func (e *ParseError) Error() string {
	return e.Err.Error()
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// Fetch queries the API and returns the JSON body as-is. Transport failures
// return a *RequestError; bodies that are not valid JSON return a *ParseError.
func (c *Client) Fetch(ctx context.Context, api, ip string) (json.RawMessage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.URL(api, ip), nil)
	if err != nil {
		return nil, &RequestError{Err: err}
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &RequestError{Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, &ParseError{Err: fmt.Errorf("error reading body: %w", err)}
	}

	var data json.RawMessage
	if err := json.Unmarshal(body, &data); err != nil {
		return nil, &ParseError{Err: err}
	}
	return data, nil
}

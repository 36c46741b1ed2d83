package delivery

import (
	"bytes"
	"context"
	"io"
	"net"
	"net/http"
	"time"
)

const (
	defaultConnectTimeout = 5 * time.Second
	defaultSocketTimeout  = 15 * time.Second
	defaultRequestTimeout = 30 * time.Second

	// responseDrainLimit caps how much of the destination's response body is
	// read before the connection is released back to the pool.
	responseDrainLimit = 1 << 20
)

// Timeouts carries the three independent timeout axes of one dispatch.
type Timeouts struct {
	// Connect bounds TCP/TLS establishment.
	Connect time.Duration
	// Socket bounds each individual read or write: a stream that stops
	// making progress mid-transfer fails even though the total budget has
	// headroom left.
	Socket time.Duration
	// Request bounds the full round trip wall clock.
	Request time.Duration
}

// DefaultTimeouts returns the production timeout set.
func DefaultTimeouts() Timeouts {
	return Timeouts{
		Connect: defaultConnectTimeout,
		Socket:  defaultSocketTimeout,
		Request: defaultRequestTimeout,
	}
}

func (t Timeouts) withDefaults() Timeouts {
	def := DefaultTimeouts()
	if t.Connect <= 0 {
		t.Connect = def.Connect
	}
	if t.Socket <= 0 {
		t.Socket = def.Socket
	}
	if t.Request <= 0 {
		t.Request = def.Request
	}
	return t
}

// Dispatcher is the dispatch surface the worker consumes.
type Dispatcher interface {
	Post(ctx context.Context, url string, payload []byte) Result
}

// Client posts webhook payloads to destinations. One client is shared across
// all in-flight deliveries; pooling lives inside the transport.
type Client struct {
	http *http.Client
}

// NewClient builds a Client with the provided timeout set.
func NewClient(timeouts Timeouts) *Client {
	timeouts = timeouts.withDefaults()
	dialer := &net.Dialer{Timeout: timeouts.Connect}
	transport := &http.Transport{
		DialContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
			conn, err := dialer.DialContext(ctx, network, addr)
			if err != nil {
				return nil, err
			}
			return &idleTimeoutConn{Conn: conn, timeout: timeouts.Socket}, nil
		},
		TLSHandshakeTimeout:   timeouts.Connect,
		ResponseHeaderTimeout: timeouts.Socket,
		MaxIdleConnsPerHost:   8,
		IdleConnTimeout:       90 * time.Second,
	}
	return &Client{
		http: &http.Client{
			Transport: transport,
			Timeout:   timeouts.Request,
		},
	}
}

// Post delivers payload to url as application/json and classifies the
// outcome. The payload is the event's stored raw body, byte-for-byte.
func (c *Client) Post(ctx context.Context, url string, payload []byte) Result {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return Failure{Message: err.Error(), StatusCode: 0, Retryable: false}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return Classify(0, err)
	}
	defer resp.Body.Close()
	// Drain so the connection can be reused; the response body itself is
	// irrelevant to the outcome.
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, responseDrainLimit))
	return Classify(resp.StatusCode, nil)
}

// Close releases pooled connections.
func (c *Client) Close() {
	c.http.CloseIdleConnections()
}

// idleTimeoutConn enforces the socket axis: every read and write refreshes a
// deadline, so a stalled stream fails after the idle window rather than
// running the whole request budget down.
type idleTimeoutConn struct {
	net.Conn
	timeout time.Duration
}

func (c *idleTimeoutConn) Read(p []byte) (int, error) {
	if err := c.Conn.SetReadDeadline(time.Now().Add(c.timeout)); err != nil {
		return 0, err
	}
	return c.Conn.Read(p)
}

func (c *idleTimeoutConn) Write(p []byte) (int, error) {
	if err := c.Conn.SetWriteDeadline(time.Now().Add(c.timeout)); err != nil {
		return 0, err
	}
	return c.Conn.Write(p)
}

var _ Dispatcher = (*Client)(nil)

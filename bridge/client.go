package bridge

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"go.uber.org/zap"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"
)

var (
	// ErrConnClosed rejects every call still pending when the connection to
	// the target is lost. Rejected calls are not retried automatically.
	ErrConnClosed = errors.New("bridge: connection closed")

	// ErrTimeout rejects a call whose deadline elapsed before a matching
	// response arrived. The target is not informed; a late response for the
	// call's id is silently discarded.
	ErrTimeout = errors.New("bridge: call timed out")
)

// DefaultCallTimeout applies to calls issued with a non-positive timeout.
const DefaultCallTimeout = 10 * time.Second

// Client is the controller side of the bridge protocol. It owns at most one
// live connection to the target and correlates every outbound call with its
// eventual response by id. Responses may arrive out of send order; id
// correlation is the only ordering guarantee.
type Client struct {
	Logger     *zap.SugaredLogger
	HTTPClient *http.Client

	wsURL   string
	baseURL string

	callTimeout  time.Duration
	waitInterval time.Duration

	customizeRetryableClient func(*retryablehttp.Client)

	mu      sync.Mutex
	conn    *websocket.Conn
	attempt *connectAttempt
	pending map[string]*pendingCall
	nextID  uint64
}

type ClientOption func(c *Client)

func WithClientLogger(l *zap.Logger) ClientOption {
	return func(c *Client) {
		c.Logger = l.Named("bridge_client").Sugar()
	}
}

func WithCallTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		c.callTimeout = d
	}
}

func WithClientWaitInterval(d time.Duration) ClientOption {
	return func(c *Client) {
		c.waitInterval = d
	}
}

func WithCustomizeRetryableClient(f func(r *retryablehttp.Client)) ClientOption {
	return func(c *Client) {
		c.customizeRetryableClient = f
	}
}

type logAdapter struct {
	*zap.SugaredLogger
}

func (a *logAdapter) Printf(msg string, args ...interface{}) { a.Debugf(msg, args...) }

func NewClient(host string, port int, opts ...ClientOption) (*Client, error) {
	logger, err := zap.NewDevelopment()
	if err != nil {
		return nil, fmt.Errorf("building logger: %w", err)
	}

	c := &Client{
		Logger:       logger.Named("bridge_client").Sugar(),
		wsURL:        fmt.Sprintf("ws://%s:%d/bridge", host, port),
		baseURL:      fmt.Sprintf("http://%s:%d", host, port),
		callTimeout:  DefaultCallTimeout,
		waitInterval: 100 * time.Millisecond,
		pending:      map[string]*pendingCall{},
	}

	for _, opt := range opts {
		opt(c)
	}

	retryClient := retryablehttp.NewClient()
	retryClient.Backoff = func(min, max time.Duration, attemptNum int, resp *http.Response) time.Duration {
		return 10 * time.Millisecond
	}
	retryClient.RetryMax = 10
	retryClient.Logger = &logAdapter{SugaredLogger: c.Logger}

	if c.customizeRetryableClient != nil {
		c.customizeRetryableClient(retryClient)
	}

	c.HTTPClient = retryClient.StandardClient()

	return c, nil
}

// connectAttempt is shared by every caller awaiting the same in-flight dial,
// so concurrent Connect calls never race to open duplicate sockets.
type connectAttempt struct {
	done chan struct{}
	err  error
}

// Connect ensures a live connection to the target. It is idempotent: if the
// connection is already open it returns immediately, and if a dial is already
// in flight the caller joins that attempt. A failed attempt clears state so a
// later Connect may retry.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.conn != nil {
		c.mu.Unlock()
		return nil
	}
	if c.attempt != nil {
		att := c.attempt
		c.mu.Unlock()
		select {
		case <-att.done:
			return att.err
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	att := &connectAttempt{done: make(chan struct{})}
	c.attempt = att
	c.mu.Unlock()

	c.Logger.Debugw("dialing bridge endpoint", "URL", c.wsURL)
	conn, _, err := websocket.Dial(ctx, c.wsURL, &websocket.DialOptions{HTTPClient: c.HTTPClient})

	c.mu.Lock()
	c.attempt = nil
	if err != nil {
		c.mu.Unlock()
		att.err = fmt.Errorf("connecting to bridge endpoint %s (is the target running its listener?): %w", c.wsURL, err)
		close(att.done)
		return att.err
	}
	c.conn = conn
	c.mu.Unlock()
	close(att.done)

	go c.readLoop(conn)
	return nil
}

// Disconnect closes the connection if one is open. It is idempotent. Pending
// calls are rejected by the close handling in the read loop, not here.
func (c *Client) Disconnect() {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn != nil {
		_ = conn.Close(websocket.StatusNormalClosure, "")
	}
}

// Call connects if needed, sends {id, method, params} and blocks until the
// matching response arrives, the timeout elapses, or the connection is lost.
// A non-positive timeout falls back to DefaultCallTimeout. Calls issued
// concurrently from multiple goroutines complete independently and possibly
// out of send order.
func (c *Client) Call(ctx context.Context, method string, params any, timeout time.Duration) (any, error) {
	if timeout <= 0 {
		timeout = c.callTimeout
	}
	if err := c.Connect(ctx); err != nil {
		return nil, err
	}

	c.mu.Lock()
	conn := c.conn
	if conn == nil {
		c.mu.Unlock()
		return nil, ErrConnClosed
	}
	c.nextID++
	id := strconv.FormatUint(c.nextID, 10)
	pc := &pendingCall{method: method, done: make(chan struct{})}
	pc.timer = time.AfterFunc(timeout, func() { c.expire(id, timeout) })
	c.pending[id] = pc
	c.mu.Unlock()

	if err := wsjson.Write(ctx, conn, Request{ID: id, Method: method, Params: params}); err != nil {
		if p := c.takePending(id); p != nil {
			p.timer.Stop()
		}
		return nil, fmt.Errorf("sending %s request: %w", method, err)
	}

	select {
	case <-pc.done:
		return pc.result, pc.err
	case <-ctx.Done():
		if p := c.takePending(id); p != nil {
			p.timer.Stop()
		}
		return nil, ctx.Err()
	}
}

// Health checks the target's health endpoint once.
func (c *Client) Health(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/healthz", nil)
	if err != nil {
		return fmt.Errorf("building health request: %w", err)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("HTTP error: %w", err)
	}
	if resp.Body != nil {
		defer resp.Body.Close()
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected health status code %d", resp.StatusCode)
	}
	return nil
}

// WaitForTarget polls the target's health endpoint until it responds or the
// context is done.
func (c *Client) WaitForTarget(ctx context.Context) error {
	ticker := time.NewTicker(c.waitInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			err := c.Health(ctx)
			if err == nil {
				c.Logger.Debug("health check succeeded, done waiting for target")
				return nil
			}
			c.Logger.Debugf("got health check error: %s", err)
		}
	}
}

type pendingCall struct {
	method string
	timer  *time.Timer

	done   chan struct{}
	result any
	err    error
}

// takePending removes and returns the call for id, or nil if there is none.
// Removal under the lock guarantees each call completes exactly once.
func (c *Client) takePending(id string) *pendingCall {
	c.mu.Lock()
	defer c.mu.Unlock()
	pc, ok := c.pending[id]
	if !ok {
		return nil
	}
	delete(c.pending, id)
	return pc
}

func (c *Client) expire(id string, timeout time.Duration) {
	pc := c.takePending(id)
	if pc == nil {
		return
	}
	pc.err = fmt.Errorf("%w: %s got no response within %s", ErrTimeout, pc.method, timeout)
	close(pc.done)
}

func (c *Client) readLoop(conn *websocket.Conn) {
	for {
		var resp Response
		err := wsjson.Read(context.Background(), conn, &resp)
		if err != nil {
			c.Logger.Debugf("read loop ended: %s", err)
			c.handleClose(conn)
			return
		}
		c.handleResponse(&resp)
	}
}

func (c *Client) handleResponse(resp *Response) {
	pc := c.takePending(resp.ID)
	if pc == nil {
		// Late or orphaned response; the call already timed out or was
		// canceled.
		c.Logger.Debugw("dropping response with no pending call", "ID", resp.ID)
		return
	}
	pc.timer.Stop()
	if resp.Error != nil {
		pc.err = resp.Error
	} else {
		pc.result = resp.Result
	}
	close(pc.done)
}

// handleClose rejects every outstanding call and returns the client to the
// disconnected state so a later Connect may succeed again.
func (c *Client) handleClose(conn *websocket.Conn) {
	c.mu.Lock()
	if c.conn == conn {
		c.conn = nil
	}
	orphaned := c.pending
	c.pending = map[string]*pendingCall{}
	c.mu.Unlock()

	_ = conn.Close(websocket.StatusNormalClosure, "")

	for _, pc := range orphaned {
		pc.timer.Stop()
		pc.err = fmt.Errorf("%w while awaiting %s response", ErrConnClosed, pc.method)
		close(pc.done)
	}
}

// numPending reports the size of the pending-call table.
func (c *Client) numPending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

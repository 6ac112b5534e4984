// Package client is the floor-operator side of the alert channel: one
// connection manager per session owning a reconnecting websocket, the
// snapshot fetch path and the reconciled view. Screens come and go;
// the manager and its subscription outlive them.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"alert-service/internal/domain"
)

const (
	reconnectMin = time.Second
	reconnectMax = 30 * time.Second
)

// FetchQuery filters a snapshot fetch.
type FetchQuery struct {
	State   domain.State
	Station string
	Route   string
	Flight  string
	Limit   int
	Offset  int
}

// Option configures a Client.
type Option func(*Client)

// WithLogger replaces the default nop logger.
func WithLogger(l *zap.Logger) Option { return func(c *Client) { c.logger = l } }

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(h *http.Client) Option { return func(c *Client) { c.httpc = h } }

// WithCacheFile persists the view to path on every change and preloads
// it on construction, so a restarted client starts from its last view.
func WithCacheFile(path string) Option { return func(c *Client) { c.cachePath = path } }

// Client owns the client session: the live connection, the declared
// subscription context and the reconciled view. Create one at session
// start and hand it to every screen that shows alerts.
type Client struct {
	baseURL   string
	httpc     *http.Client
	dialer    *websocket.Dialer
	logger    *zap.Logger
	view      *View
	cachePath string

	mu        sync.Mutex
	sub       domain.SubscribeContext
	conn      *websocket.Conn
	listeners map[int]func()
	nextID    int

	// writeMu serializes data writes on the live connection; gorilla
	// allows only one concurrent writer.
	writeMu sync.Mutex
}

// New builds a session client for the service at baseURL (http or https
// scheme; the websocket endpoint is derived from it).
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:   strings.TrimRight(baseURL, "/"),
		httpc:     &http.Client{Timeout: 15 * time.Second},
		dialer:    websocket.DefaultDialer,
		logger:    zap.NewNop(),
		view:      NewView(),
		listeners: make(map[int]func()),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.cachePath != "" {
		c.loadCache()
	}
	return c
}

// View exposes the reconciled view. Shared by every listener; read-only
// from their side.
func (c *Client) View() *View { return c.view }

// AddListener registers a callback fired after every view change. The
// returned detach func removes only the listener: the connection and the
// subscription stay up for the rest of the session.
func (c *Client) AddListener(fn func()) (detach func()) {
	c.mu.Lock()
	id := c.nextID
	c.nextID++
	c.listeners[id] = fn
	c.mu.Unlock()
	return func() {
		c.mu.Lock()
		delete(c.listeners, id)
		c.mu.Unlock()
	}
}

func (c *Client) notify() {
	c.mu.Lock()
	fns := make([]func(), 0, len(c.listeners))
	for _, fn := range c.listeners {
		fns = append(fns, fn)
	}
	c.mu.Unlock()
	for _, fn := range fns {
		fn()
	}
}

// Subscribe replaces the session's subscription context. On a live
// connection the new context is sent immediately; otherwise the next
// (re)connect declares it. Changing scope never drops the connection.
func (c *Client) Subscribe(sub domain.SubscribeContext) error {
	c.mu.Lock()
	c.sub = sub
	conn := c.conn
	c.mu.Unlock()

	if conn == nil {
		return nil
	}
	return c.sendSubscribe(conn, sub)
}

func (c *Client) sendSubscribe(conn *websocket.Conn, sub domain.SubscribeContext) error {
	frame := struct {
		Type string                  `json:"type"`
		Data domain.SubscribeContext `json:"data"`
	}{Type: "subscribe", Data: sub}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return conn.WriteJSON(frame)
}

// Run keeps the push channel alive until ctx is cancelled, reconnecting
// with capped backoff. Each (re)connect re-declares the subscription and
// pulls a fresh snapshot, so anything pushed while offline is recovered.
func (c *Client) Run(ctx context.Context) error {
	backoff := reconnectMin
	for {
		connected, err := c.runOnce(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err != nil {
			c.logger.Warn("alert channel dropped", zap.Error(err))
		}
		if connected {
			// A drop after a working session retries quickly; only
			// consecutive failed dials escalate the wait.
			backoff = reconnectMin
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > reconnectMax {
			backoff = reconnectMax
		}
	}
}

// runOnce runs one connection to completion. connected reports whether
// the session got past dial and subscribe.
func (c *Client) runOnce(ctx context.Context) (connected bool, err error) {
	wsURL, err := c.websocketURL()
	if err != nil {
		return false, err
	}

	conn, _, err := c.dialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return false, fmt.Errorf("dial %s: %w", wsURL, err)
	}
	defer conn.Close()

	c.mu.Lock()
	c.conn = conn
	sub := c.sub
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		if c.conn == conn {
			c.conn = nil
		}
		c.mu.Unlock()
	}()

	if err := c.sendSubscribe(conn, sub); err != nil {
		return false, fmt.Errorf("subscribe: %w", err)
	}

	// Catch up on whatever was pushed while we were away.
	if err := c.Fetch(ctx, FetchQuery{}); err != nil {
		c.logger.Warn("snapshot fetch failed", zap.Error(err))
	}

	// Server pings are answered by gorilla's default handler, which pongs
	// through WriteControl and may run alongside sendSubscribe.

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return true, err
		}
		c.handleFrame(data)
	}
}

func (c *Client) websocketURL() (string, error) {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return "", fmt.Errorf("parse base url: %w", err)
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/ws"
	return u.String(), nil
}

func (c *Client) handleFrame(data []byte) {
	var env domain.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		c.logger.Warn("bad push frame", zap.Error(err))
		return
	}

	changed := false
	switch env.Event {
	case domain.PushNew:
		var n domain.Notification
		if err := json.Unmarshal(env.Data, &n); err != nil {
			c.logger.Warn("bad notification push", zap.Error(err))
			return
		}
		changed = c.view.MergeRecord(&n)
	case domain.PushAck, domain.PushResolved:
		var ref domain.TransitionRef
		if err := json.Unmarshal(env.Data, &ref); err != nil {
			c.logger.Warn("bad transition push", zap.Error(err))
			return
		}
		target := domain.StateAck
		if env.Event == domain.PushResolved {
			target = domain.StateResolved
		}
		changed = c.view.MergeTransition(ref.ID, target)
	default:
		c.logger.Debug("ignoring push", zap.String("event", env.Event))
	}

	if changed {
		c.saveCache()
		c.notify()
	}
}

// Fetch pulls a snapshot page and merges it into the view. A failed
// fetch leaves the current records in place and flags the view's error
// state so the UI can show "store unreadable" with a retry, instead of
// a misleading empty list.
func (c *Client) Fetch(ctx context.Context, q FetchQuery) error {
	u := c.baseURL + "/notifications?" + q.values().Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	resp, err := c.httpc.Do(req)
	if err != nil {
		c.view.SetLastError(err)
		c.notify()
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		err := fmt.Errorf("fetch notifications: status %d", resp.StatusCode)
		c.view.SetLastError(err)
		c.notify()
		return err
	}

	var body struct {
		Data []*domain.Notification `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		c.view.SetLastError(err)
		c.notify()
		return err
	}

	changed := false
	for _, n := range body.Data {
		if c.view.MergeRecord(n) {
			changed = true
		}
	}
	c.view.SetLastError(nil)
	if changed {
		c.saveCache()
	}
	c.notify()
	return nil
}

// Acknowledge applies the ack optimistically, then confirms it with the
// server. A failed confirmation rolls the local state back and returns
// the error so the UI can offer a retry.
func (c *Client) Acknowledge(ctx context.Context, id int64) error {
	return c.transition(ctx, id, domain.StateAck, "ack")
}

// Resolve applies the resolve optimistically, then confirms it with the
// server, rolling back on failure.
func (c *Client) Resolve(ctx context.Context, id int64) error {
	return c.transition(ctx, id, domain.StateResolved, "resolve")
}

func (c *Client) transition(ctx context.Context, id int64, target domain.State, action string) error {
	snap, known := c.view.captureState(id)
	if known && c.view.MergeTransition(id, target) {
		c.notify()
	}

	err := c.postAction(ctx, id, action)
	if err != nil {
		if known {
			c.view.restoreState(id, snap)
			c.notify()
		}
		return err
	}
	c.saveCache()
	return nil
}

func (c *Client) postAction(ctx context.Context, id int64, action string) error {
	u := c.baseURL + "/notifications/" + strconv.FormatInt(id, 10) + "/" + action
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(nil))
	if err != nil {
		return err
	}
	resp, err := c.httpc.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
		return nil
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("%s notification %d: %w", action, id, errNotFound)
	default:
		return fmt.Errorf("%s notification %d: status %d", action, id, resp.StatusCode)
	}
}

var errNotFound = errors.New("not found")

func (q FetchQuery) values() url.Values {
	v := url.Values{}
	if q.State != "" {
		v.Set("state", string(q.State))
	}
	if q.Station != "" {
		v.Set("station", q.Station)
	}
	if q.Route != "" {
		v.Set("route", q.Route)
	}
	if q.Flight != "" {
		v.Set("flight", q.Flight)
	}
	if q.Limit > 0 {
		v.Set("limit", strconv.Itoa(q.Limit))
	}
	if q.Offset > 0 {
		v.Set("offset", strconv.Itoa(q.Offset))
	}
	return v
}

// ----------------------
// Local cache
// ----------------------

func (c *Client) loadCache() {
	data, err := os.ReadFile(c.cachePath)
	if err != nil {
		if !os.IsNotExist(err) {
			c.logger.Warn("cache unreadable", zap.Error(err))
		}
		return
	}
	var list []*domain.Notification
	if err := json.Unmarshal(data, &list); err != nil {
		c.logger.Warn("cache corrupt, starting empty", zap.Error(err))
		return
	}
	for _, n := range list {
		c.view.MergeRecord(n)
	}
}

func (c *Client) saveCache() {
	if c.cachePath == "" {
		return
	}
	data, err := json.Marshal(c.view.Snapshot())
	if err != nil {
		c.logger.Warn("cache encode failed", zap.Error(err))
		return
	}
	tmp := filepath.Join(filepath.Dir(c.cachePath), "."+filepath.Base(c.cachePath)+".tmp")
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		c.logger.Warn("cache write failed", zap.Error(err))
		return
	}
	if err := os.Rename(tmp, c.cachePath); err != nil {
		c.logger.Warn("cache replace failed", zap.Error(err))
	}
}

package core

// core/connection.go — the client side of the sync transport: a websocket
// carrying the binary protocol, request/response correlation by request id,
// subscription routing, and reconnection with exponential backoff.

import (
	"context"
	"net/url"
	"regexp"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

// ConnState is the connection's lifecycle state.
type ConnState int32

const (
	StateDisconnected ConnState = iota
	StateConnecting
	StateConnected
)

func (s ConnState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	}
	return "invalid"
}

// TokenProvider supplies a bearer token per connect so callers can refresh
// credentials between reconnects.
type TokenProvider func(ctx context.Context) (string, error)

// SubscriptionHandler receives decoded changes pushed for a subscription.
type SubscriptionHandler func(changes []Fact)

// Reconnect defaults.
const (
	defaultMaxRetries = 5
	defaultBaseDelay  = 1000 * time.Millisecond
	defaultFactor     = 2.0
)

var (
	apiKeyRE = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)
	tokenRE  = regexp.MustCompile(`^[A-Za-z0-9_-]+\.[A-Za-z0-9_-]+\.[A-Za-z0-9_-]+$`)
)

// ConnConfig configures a Connection.
type ConnConfig struct {
	URL    string // ws:// or wss://
	APIKey string

	// Token and TokenProvider are alternatives; the provider wins when both
	// are set.
	Token         string
	TokenProvider TokenProvider

	MaxRetries int           // reconnect attempts after an unexpected close
	BaseDelay  time.Duration // first reconnect delay
	Factor     float64       // delay multiplier per attempt

	Dialer    *websocket.Dialer
	Logger    *logrus.Logger
	Telemetry *Telemetry
}

func (c *ConnConfig) validate() error {
	u, err := url.Parse(c.URL)
	if err != nil {
		return WrapErr(ErrValidation, err, "server url")
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return Errf(ErrValidation, "server url scheme must be ws or wss, got %q", u.Scheme)
	}
	if !apiKeyRE.MatchString(c.APIKey) {
		return Errf(ErrValidation, "api key must be non-empty [A-Za-z0-9_-]")
	}
	if c.Token != "" && !tokenRE.MatchString(c.Token) {
		return Errf(ErrValidation, "bearer token is not of the form a.b.c")
	}
	return nil
}

func (c *ConnConfig) withDefaults() ConnConfig {
	out := *c
	if out.MaxRetries == 0 {
		out.MaxRetries = defaultMaxRetries
	}
	if out.BaseDelay == 0 {
		out.BaseDelay = defaultBaseDelay
	}
	if out.Factor == 0 {
		out.Factor = defaultFactor
	}
	if out.Dialer == nil {
		out.Dialer = websocket.DefaultDialer
	}
	if out.Logger == nil {
		out.Logger = logrus.StandardLogger()
	}
	return out
}

// Connection owns the transport, the pending-request map and the
// subscription handlers. All exported methods are safe for concurrent use.
type Connection struct {
	cfg ConnConfig
	log *logrus.Entry
	tel *Telemetry

	mu       sync.Mutex
	state    ConnState
	ws       *websocket.Conn
	gen      int // transport generation; stale read loops are ignored
	nextID   uint32
	pending  map[uint32]chan *Response
	subs     map[ID]SubscriptionHandler
	closed   bool
	ready    chan struct{} // closed when CONNECTING resolves
	readyErr error

	writeMu sync.Mutex
}

// NewConnection validates the config and returns an unconnected Connection.
func NewConnection(cfg ConnConfig) (*Connection, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	cfg = cfg.withDefaults()
	return &Connection{
		cfg:     cfg,
		log:     cfg.Logger.WithField("component", "connection"),
		tel:     cfg.Telemetry,
		pending: map[uint32]chan *Response{},
		subs:    map[ID]SubscriptionHandler{},
	}, nil
}

// State returns the current lifecycle state.
func (c *Connection) State() ConnState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Connect dials the server and performs the protocol handshake. It returns
// once the connection is CONNECTED or the attempt has failed.
func (c *Connection) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return Errf(ErrConnection, "connection is closed")
	}
	if c.state != StateDisconnected {
		c.mu.Unlock()
		return Errf(ErrConnection, "connect while %s", c.state)
	}
	c.setStateLocked(StateConnecting)
	c.ready = make(chan struct{})
	c.mu.Unlock()

	err := c.connectTransport(ctx)
	c.finishConnecting(err)
	return err
}

// connectTransport resolves the token, dials, starts the read loop and runs
// the handshake. Caller is responsible for state bookkeeping.
func (c *Connection) connectTransport(ctx context.Context) error {
	token := c.cfg.Token
	if c.cfg.TokenProvider != nil {
		t, err := c.cfg.TokenProvider(ctx)
		if err != nil {
			return WrapErr(ErrConnection, err, "token provider")
		}
		token = t
	}
	if token != "" && !tokenRE.MatchString(token) {
		return Errf(ErrValidation, "bearer token is not of the form a.b.c")
	}

	ws, _, err := c.cfg.Dialer.DialContext(ctx, c.cfg.URL, nil)
	if err != nil {
		return WrapErr(ErrConnection, err, "dial")
	}

	c.mu.Lock()
	c.ws = ws
	c.gen++
	c.nextID = 0
	gen := c.gen
	c.mu.Unlock()
	go c.readLoop(ws, gen)

	if _, err := c.request(ctx, &ClientMessage{
		Kind:    MsgConnect,
		Connect: &ConnectRequest{APIKey: c.cfg.APIKey, Token: token},
	}, true); err != nil {
		ws.Close()
		return err
	}
	return nil
}

// finishConnecting resolves the CONNECTING state in either direction and
// wakes senders awaiting the handshake.
func (c *Connection) finishConnecting(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err == nil && !c.closed {
		c.setStateLocked(StateConnected)
	} else {
		c.setStateLocked(StateDisconnected)
		c.ws = nil
	}
	c.readyErr = err
	if c.ready != nil {
		close(c.ready)
		c.ready = nil
	}
}

// Close tears the connection down for good: reconnection is disabled, every
// pending request is rejected and all subscription handlers are dropped.
func (c *Connection) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	ws := c.ws
	c.ws = nil
	c.setStateLocked(StateDisconnected)
	c.rejectPendingLocked()
	c.subs = map[ID]SubscriptionHandler{}
	if c.ready != nil {
		c.readyErr = Errf(ErrConnection, "connection closed")
		close(c.ready)
		c.ready = nil
	}
	c.mu.Unlock()
	if ws != nil {
		ws.Close()
	}
	return nil
}

// Request sends a client message and awaits the correlated response. A
// non-zero status code is surfaced as a REMOTE error carrying the server's
// message. Sends issued while CONNECTING await the handshake outcome.
func (c *Connection) Request(ctx context.Context, m *ClientMessage) (*Response, error) {
	return c.request(ctx, m, false)
}

func (c *Connection) request(ctx context.Context, m *ClientMessage, handshake bool) (*Response, error) {
	c.mu.Lock()
	if !handshake {
		for c.state == StateConnecting {
			ready := c.ready
			c.mu.Unlock()
			if ready == nil {
				return nil, Errf(ErrConnection, "not connected")
			}
			select {
			case <-ready:
			case <-ctx.Done():
				return nil, WrapErr(ErrConnection, ctx.Err(), "send aborted")
			}
			c.mu.Lock()
		}
		if c.state != StateConnected {
			err := c.readyErr
			c.mu.Unlock()
			if err != nil {
				return nil, WrapErr(ErrConnection, err, "not connected")
			}
			return nil, Errf(ErrConnection, "not connected")
		}
	}
	ws := c.ws
	if ws == nil {
		c.mu.Unlock()
		return nil, Errf(ErrConnection, "not connected")
	}
	c.nextID++
	m.RequestID = c.nextID
	ch := make(chan *Response, 1)
	c.pending[m.RequestID] = ch
	c.mu.Unlock()

	frame, err := EncodeClientMessage(m)
	if err != nil {
		c.dropPending(m.RequestID)
		return nil, err
	}
	c.writeMu.Lock()
	err = ws.WriteMessage(websocket.BinaryMessage, frame)
	c.writeMu.Unlock()
	if err != nil {
		c.dropPending(m.RequestID)
		return nil, WrapErr(ErrConnection, err, "send")
	}

	select {
	case resp, ok := <-ch:
		if !ok || resp == nil {
			return nil, Errf(ErrConnection, "connection closed")
		}
		if resp.Code != 0 {
			return nil, Errf(ErrRemote, "server status %d: %s", resp.Code, resp.Message)
		}
		return resp, nil
	case <-ctx.Done():
		c.dropPending(m.RequestID)
		return nil, WrapErr(ErrConnection, ctx.Err(), "awaiting response")
	}
}

// Subscribe registers the handler and asks the server to start pushing
// updates for id. On a failed request the handler is unregistered before the
// error propagates.
func (c *Connection) Subscribe(ctx context.Context, id ID, handler SubscriptionHandler) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return Errf(ErrConnection, "connection is closed")
	}
	c.subs[id] = handler
	c.mu.Unlock()

	_, err := c.Request(ctx, &ClientMessage{
		Kind:      MsgSubscribe,
		Subscribe: &SubscribeRequest{SubscriptionID: id},
	})
	if err != nil {
		c.mu.Lock()
		delete(c.subs, id)
		c.mu.Unlock()
		return err
	}
	return nil
}

// Unsubscribe withdraws the subscription and unregisters its handler.
func (c *Connection) Unsubscribe(ctx context.Context, id ID) error {
	defer func() {
		c.mu.Lock()
		delete(c.subs, id)
		c.mu.Unlock()
	}()
	_, err := c.Request(ctx, &ClientMessage{
		Kind:        MsgUnsubscribe,
		Unsubscribe: &UnsubscribeRequest{SubscriptionID: id},
	})
	return err
}

// readLoop drains server frames until the transport fails, then hands off to
// the close handler. Stale loops from an earlier transport are ignored via
// the generation counter.
func (c *Connection) readLoop(ws *websocket.Conn, gen int) {
	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			c.handleTransportClose(gen, err)
			return
		}
		m, derr := DecodeServerMessage(data)
		if derr != nil {
			c.log.WithError(derr).Warn("dropping undecodable frame")
			continue
		}
		switch m.Kind {
		case MsgResponse:
			c.dispatchResponse(m.Response)
		case MsgSubscriptionUpdate:
			c.dispatchUpdate(m.Update)
		default:
			c.log.WithField("kind", m.Kind).Debug("ignoring unknown server message")
		}
	}
}

func (c *Connection) dispatchResponse(resp *Response) {
	c.mu.Lock()
	ch, ok := c.pending[resp.RequestID]
	if ok {
		delete(c.pending, resp.RequestID)
	}
	c.mu.Unlock()
	if !ok {
		c.log.WithField("requestId", resp.RequestID).Warn("response for unknown request")
		return
	}
	ch <- resp
}

func (c *Connection) dispatchUpdate(u *SubscriptionUpdate) {
	c.mu.Lock()
	handler := c.subs[u.SubscriptionID]
	c.mu.Unlock()
	if handler == nil {
		return // no handler registered; drop silently
	}
	changes := make([]Fact, 0, len(u.Changes))
	for _, t := range u.Changes {
		changes = append(changes, WireToFact(t))
	}
	handler(changes)
}

// handleTransportClose reacts to the read loop failing: pending requests are
// rejected, and if the connection was established a background reconnect is
// scheduled.
func (c *Connection) handleTransportClose(gen int, cause error) {
	c.mu.Lock()
	if gen != c.gen || c.closed {
		c.mu.Unlock()
		return
	}
	wasConnected := c.state == StateConnected
	c.setStateLocked(StateDisconnected)
	c.ws = nil
	c.rejectPendingLocked()
	c.mu.Unlock()

	if wasConnected {
		c.log.WithError(cause).Warn("transport closed, scheduling reconnect")
		go c.reconnectLoop()
	}
}

// reconnectLoop retries the connect sequence with exponential backoff until
// it succeeds, the attempts are exhausted, or the connection is closed.
func (c *Connection) reconnectLoop() {
	delay := c.cfg.BaseDelay
	for attempt := 1; attempt <= c.cfg.MaxRetries; attempt++ {
		time.Sleep(delay)
		delay = time.Duration(float64(delay) * c.cfg.Factor)

		c.mu.Lock()
		if c.closed || c.state != StateDisconnected {
			c.mu.Unlock()
			return
		}
		c.setStateLocked(StateConnecting)
		c.ready = make(chan struct{})
		c.mu.Unlock()
		c.tel.countReconnect()

		err := c.connectTransport(context.Background())
		c.finishConnecting(err)
		if err == nil {
			c.log.WithField("attempt", attempt).Info("reconnected")
			c.resubscribe()
			return
		}
		c.log.WithError(err).WithField("attempt", attempt).Warn("reconnect failed")
	}
	c.log.Warn("reconnect attempts exhausted")
}

// resubscribe re-issues subscribe requests for every registered handler
// after a successful reconnect.
func (c *Connection) resubscribe() {
	c.mu.Lock()
	ids := make([]ID, 0, len(c.subs))
	for id := range c.subs {
		ids = append(ids, id)
	}
	c.mu.Unlock()
	for _, id := range ids {
		_, err := c.Request(context.Background(), &ClientMessage{
			Kind:      MsgSubscribe,
			Subscribe: &SubscribeRequest{SubscriptionID: id},
		})
		if err != nil {
			c.log.WithError(err).WithField("subscription", id.Hex()).Warn("resubscribe failed")
		}
	}
}

func (c *Connection) dropPending(id uint32) {
	c.mu.Lock()
	delete(c.pending, id)
	c.mu.Unlock()
}

// rejectPendingLocked rejects every in-flight request. Caller holds the lock.
func (c *Connection) rejectPendingLocked() {
	for id, ch := range c.pending {
		close(ch)
		delete(c.pending, id)
	}
}

func (c *Connection) setStateLocked(s ConnState) {
	c.state = s
	c.tel.setConnState(s)
}

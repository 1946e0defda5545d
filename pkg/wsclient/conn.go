package wsclient

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/coder/websocket"
	"go.uber.org/zap"

	"github.com/DoyleJ11/cyberlab-sim/pkg/protocol"
)

// State is the lifecycle of a managed connection.
type State int

const (
	StateConnecting State = iota
	StateOpen
	StateReconnecting
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateReconnecting:
		return "reconnecting"
	case StateClosed:
		return "closed"
	}
	return "unknown"
}

var (
	ErrNotOpen     = errors.New("wsclient: connection not open")
	ErrGaveUp      = errors.New("wsclient: reconnect attempts exhausted")
	ErrRejected    = errors.New("wsclient: server rejected credentials")
	ErrNoLobby     = errors.New("wsclient: lobby does not exist")
	ErrRemoved     = errors.New("wsclient: removed by server")
	ErrClosedByApp = errors.New("wsclient: closed")
)

// Close codes the server uses for failures that retrying cannot fix.
const (
	StatusMissingToken websocket.StatusCode = 4401
	StatusBadToken     websocket.StatusCode = 4403
	StatusUnknownLobby websocket.StatusCode = 4404
	StatusKicked       websocket.StatusCode = 4003
	StatusReplaced     websocket.StatusCode = 4009 // same name joined from another connection
)

type options struct {
	initial      time.Duration
	maxInterval  time.Duration
	multiplier   float64
	jitter       float64
	maxAttempts  int
	heartbeat    time.Duration
	pingTimeout  time.Duration
	writeTimeout time.Duration
	readLimit    int64
	header       http.Header
	handler      Handler
	onState      func(from, to State)
	log          *zap.Logger
}

func defaultOptions() options {
	return options{
		initial:      500 * time.Millisecond,
		maxInterval:  30 * time.Second,
		multiplier:   2,
		jitter:       0.5,
		maxAttempts:  10,
		heartbeat:    20 * time.Second,
		pingTimeout:  10 * time.Second,
		writeTimeout: 5 * time.Second,
		readLimit:    1 << 20,
		log:          zap.NewNop(),
	}
}

type Option func(*options)

// WithBackoff overrides the reconnect schedule. maxAttempts <= 0 retries forever.
func WithBackoff(initial, max time.Duration, multiplier, jitter float64, maxAttempts int) Option {
	return func(o *options) {
		o.initial, o.maxInterval = initial, max
		o.multiplier, o.jitter = multiplier, jitter
		o.maxAttempts = maxAttempts
	}
}

// WithHeartbeat sets the ping interval. Zero disables pings.
func WithHeartbeat(d time.Duration) Option { return func(o *options) { o.heartbeat = d } }

func WithWriteTimeout(d time.Duration) Option { return func(o *options) { o.writeTimeout = d } }

func WithHeader(h http.Header) Option { return func(o *options) { o.header = h } }

func WithHandler(h Handler) Option { return func(o *options) { o.handler = h } }

func WithLogger(l *zap.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.log = l
		}
	}
}

// OnStateChange registers fn to observe every transition. fn runs on the
// connection's goroutine and must not block.
func OnStateChange(fn func(from, to State)) Option { return func(o *options) { o.onState = fn } }

func (o options) newBackoff() backoff.BackOff {
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = o.initial
	eb.MaxInterval = o.maxInterval
	eb.Multiplier = o.multiplier
	eb.RandomizationFactor = o.jitter
	eb.MaxElapsedTime = 0
	eb.Reset()
	if o.maxAttempts <= 0 {
		return eb
	}
	return backoff.WithMaxRetries(eb, uint64(o.maxAttempts))
}

// Conn is a WebSocket connection that keeps itself open until closed or
// until the reconnect budget runs out.
type Conn struct {
	url  string
	opts options

	mu      sync.Mutex
	state   State
	ws      *websocket.Conn
	hello   protocol.Outbound
	err     error
	closing bool

	ctx       context.Context
	cancel    context.CancelFunc
	done      chan struct{}
	closeOnce sync.Once
}

// Dial starts connecting to url in the background and returns immediately.
func Dial(ctx context.Context, url string, opts ...Option) *Conn {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	cctx, cancel := context.WithCancel(ctx)
	c := &Conn{
		url:    url,
		opts:   o,
		state:  StateConnecting,
		ctx:    cctx,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	go c.run()
	return c
}

func (c *Conn) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// ReadyState lets a Conn be used with SafeSend.
func (c *Conn) ReadyState() ReadyState {
	switch c.State() {
	case StateOpen:
		return Open
	case StateClosed:
		return Closed
	default:
		return Connecting
	}
}

// Done is closed once the connection reaches StateClosed.
func (c *Conn) Done() <-chan struct{} { return c.done }

// Err reports why the connection closed. Nil while still running.
func (c *Conn) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// SetHello sets the message sent on every successful (re)connect. If the
// connection is open it is also sent right away.
func (c *Conn) SetHello(m protocol.Outbound) error {
	c.mu.Lock()
	c.hello = m
	open := c.state == StateOpen
	c.mu.Unlock()
	if open && m != nil {
		return c.SendMessage(m)
	}
	return nil
}

func (c *Conn) Send(data []byte) error {
	c.mu.Lock()
	ws, st := c.ws, c.state
	c.mu.Unlock()
	if st != StateOpen || ws == nil {
		return ErrNotOpen
	}
	ctx, cancel := context.WithTimeout(c.ctx, c.opts.writeTimeout)
	defer cancel()
	return ws.Write(ctx, websocket.MessageText, data)
}

func (c *Conn) SendMessage(m protocol.Outbound) error {
	if err := m.Validate(); err != nil {
		return err
	}
	data, err := protocol.Encode(m)
	if err != nil {
		return err
	}
	return c.Send(data)
}

// Close sends a normal closure, stops reconnecting and waits for the
// connection goroutines to exit. Safe to call more than once.
func (c *Conn) Close() error {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closing = true
		ws := c.ws
		c.mu.Unlock()
		if ws != nil {
			_ = ws.Close(websocket.StatusNormalClosure, "client closing")
		}
		c.cancel()
	})
	<-c.done
	return nil
}

func (c *Conn) stopping() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closing || c.ctx.Err() != nil
}

func (c *Conn) transition(to State) {
	c.mu.Lock()
	from := c.state
	c.state = to
	c.mu.Unlock()
	c.notify(from, to)
}

func (c *Conn) notify(from, to State) {
	if from != to && c.opts.onState != nil {
		c.opts.onState(from, to)
	}
}

func (c *Conn) run() {
	var final error
	defer func() {
		c.mu.Lock()
		c.ws = nil
		if final == nil {
			final = ErrClosedByApp
		}
		c.err = final
		c.mu.Unlock()
		c.transition(StateClosed)
		close(c.done)
	}()

	log := c.opts.log.With(zap.String("url", c.url))
	b := backoff.WithContext(c.opts.newBackoff(), c.ctx)

	for {
		ws, err := c.dial()
		if err == nil {
			b.Reset()
			err = c.session(ws)
			if c.stopping() {
				return
			}
			switch code := websocket.CloseStatus(err); code {
			case StatusMissingToken, StatusBadToken:
				log.Warn("server rejected credentials", zap.Int("code", int(code)))
				final = fmt.Errorf("%w: close %d", ErrRejected, code)
				return
			case StatusUnknownLobby:
				log.Warn("lobby does not exist")
				final = ErrNoLobby
				return
			case StatusKicked, StatusReplaced:
				log.Info("removed by server", zap.Int("code", int(code)))
				final = fmt.Errorf("%w: close %d", ErrRemoved, code)
				return
			}
			log.Info("connection lost", zap.Error(err))
		} else if c.stopping() {
			return
		} else {
			log.Debug("dial failed", zap.Error(err))
		}

		wait := b.NextBackOff()
		if wait == backoff.Stop {
			if c.stopping() {
				return
			}
			log.Warn("giving up on reconnect")
			final = fmt.Errorf("%w: %v", ErrGaveUp, err)
			return
		}
		c.transition(StateReconnecting)

		t := time.NewTimer(wait)
		select {
		case <-c.ctx.Done():
			t.Stop()
			return
		case <-t.C:
		}
	}
}

func (c *Conn) dial() (*websocket.Conn, error) {
	ws, _, err := websocket.Dial(c.ctx, c.url, &websocket.DialOptions{HTTPHeader: c.opts.header})
	if err != nil {
		return nil, err
	}
	ws.SetReadLimit(c.opts.readLimit)
	return ws, nil
}

// session runs one connected period: hello, reader, heartbeat.
func (c *Conn) session(ws *websocket.Conn) error {
	c.mu.Lock()
	if c.closing {
		c.mu.Unlock()
		ws.CloseNow()
		return ErrClosedByApp
	}
	// Open and the hello read happen together so SetHello cannot slip between them.
	c.ws = ws
	from := c.state
	c.state = StateOpen
	hello := c.hello
	c.mu.Unlock()
	c.notify(from, StateOpen)

	// Leave Open together with dropping ws, so State and Send agree.
	defer func() {
		c.mu.Lock()
		c.ws = nil
		from := c.state
		if !c.closing && c.ctx.Err() == nil {
			c.state = StateReconnecting
		}
		to := c.state
		c.mu.Unlock()
		c.notify(from, to)
	}()

	ctx, cancel := context.WithCancel(c.ctx)
	defer cancel()

	errc := make(chan error, 1)
	go func() { errc <- c.readLoop(ctx, ws) }()

	if hello != nil {
		if err := c.SendMessage(hello); err != nil {
			ws.CloseNow()
			<-errc
			return fmt.Errorf("hello: %w", err)
		}
	}

	var tick <-chan time.Time
	if c.opts.heartbeat > 0 {
		t := time.NewTicker(c.opts.heartbeat)
		defer t.Stop()
		tick = t.C
	}

	for {
		select {
		case err := <-errc:
			return err
		case <-ctx.Done():
			ws.CloseNow()
			<-errc
			return ctx.Err()
		case <-tick:
			pctx, pcancel := context.WithTimeout(ctx, c.opts.pingTimeout)
			err := ws.Ping(pctx)
			pcancel()
			if err != nil {
				ws.CloseNow()
				<-errc
				return fmt.Errorf("heartbeat: %w", err)
			}
		}
	}
}

func (c *Conn) readLoop(ctx context.Context, ws *websocket.Conn) error {
	for {
		_, data, err := ws.Read(ctx)
		if err != nil {
			return err
		}
		Dispatch(data, c.opts.handler, c.opts.log)
	}
}

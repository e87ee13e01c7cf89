package deriv

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"
)

// State is the connection lifecycle phase.
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected // transport open, not yet authenticated
	StateAuthenticated
	StateReconnecting
	StateShutdown
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "DISCONNECTED"
	case StateConnecting:
		return "CONNECTING"
	case StateConnected:
		return "CONNECTED"
	case StateAuthenticated:
		return "AUTHENTICATED"
	case StateReconnecting:
		return "RECONNECTING"
	case StateShutdown:
		return "SHUTDOWN"
	default:
		return "UNKNOWN"
	}
}

// Options configures a Client.
type Options struct {
	URL   string
	AppID string
	Token string

	RequestTimeout time.Duration // default per-request timeout
	PingInterval   time.Duration
	StallMultiple  int // inbound silence tolerated, in ping intervals

	ReconnectBase        time.Duration
	ReconnectCap         time.Duration
	MaxReconnectAttempts int

	RateLimitCalls   int
	RateLimitWindow  time.Duration
	RateLimitMaxWait time.Duration

	Dialer *websocket.Dialer
}

func (o *Options) withDefaults() {
	if o.RequestTimeout <= 0 {
		o.RequestTimeout = 15 * time.Second
	}
	if o.PingInterval <= 0 {
		o.PingInterval = 30 * time.Second
	}
	if o.StallMultiple <= 0 {
		o.StallMultiple = 3
	}
	if o.ReconnectBase <= 0 {
		o.ReconnectBase = 5 * time.Second
	}
	if o.ReconnectCap <= 0 {
		o.ReconnectCap = 300 * time.Second
	}
	if o.MaxReconnectAttempts <= 0 {
		o.MaxReconnectAttempts = 10
	}
	if o.RateLimitCalls <= 0 {
		o.RateLimitCalls = 30
	}
	if o.RateLimitWindow <= 0 {
		o.RateLimitWindow = time.Minute
	}
	if o.RateLimitMaxWait <= 0 {
		o.RateLimitMaxWait = 30 * time.Second
	}
	if o.Dialer == nil {
		o.Dialer = websocket.DefaultDialer
	}
}

// ConnectionInfo is a read-only snapshot for health checks.
type ConnectionInfo struct {
	State         string    `json:"state"`
	LastInbound   time.Time `json:"last_inbound"`
	Reconnects    int       `json:"reconnects"`
	LastError     string    `json:"last_error,omitempty"`
	Subscriptions []string  `json:"subscriptions"`
}

type subscription struct {
	topic   string
	newReq  func() Request // fresh request per replay, fresh correlation id
	handler func(*Message)
}

type dispatchItem struct {
	handler func(*Message)
	msg     *Message
}

// Client owns one logical connection to the venue: request/response
// correlation, push subscriptions, heartbeat, and reconnection with backoff.
type Client struct {
	opts    Options
	limiter *rate.Limiter

	reqID atomic.Int64

	mu          sync.Mutex
	conn        *websocket.Conn
	gen         int // connection generation, guards stale read pumps
	state       State
	lastErr     error
	lastInbound time.Time
	reconnects  int
	pending     map[int64]chan *Message
	subs        []*subscription
	started     bool

	writeMu sync.Mutex

	dispatch  chan dispatchItem
	connLost  chan struct{}
	done      chan struct{}
	closeOnce sync.Once
	fatalErr  error
	fatalMu   sync.Mutex

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewClient builds a client; Connect must be called before use.
func NewClient(opts Options) *Client {
	opts.withDefaults()
	ctx, cancel := context.WithCancel(context.Background())
	return &Client{
		opts:     opts,
		limiter:  rate.NewLimiter(rate.Every(opts.RateLimitWindow/time.Duration(opts.RateLimitCalls)), opts.RateLimitCalls),
		state:    StateDisconnected,
		pending:  make(map[int64]chan *Message),
		dispatch: make(chan dispatchItem, 256),
		connLost: make(chan struct{}, 1),
		done:     make(chan struct{}),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Connect opens the transport, authenticates, and starts the background
// loops. Authentication rejection is returned as *AuthError and is never
// retried; transport failures are retried only by later reconnection, not
// by Connect itself.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.state == StateShutdown {
		c.mu.Unlock()
		return ErrShutdown
	}
	if c.started {
		c.mu.Unlock()
		return errors.New("deriv: already connected")
	}
	c.mu.Unlock()

	if err := c.dialAndAuth(ctx); err != nil {
		return err
	}

	c.mu.Lock()
	c.started = true
	c.mu.Unlock()

	c.wg.Add(3)
	go c.dispatchLoop()
	go c.heartbeatLoop()
	go c.superviseLoop()
	return nil
}

func (c *Client) dialAndAuth(ctx context.Context) error {
	c.setState(StateConnecting)

	u := fmt.Sprintf("%s?app_id=%s", c.opts.URL, c.opts.AppID)
	conn, _, err := c.opts.Dialer.DialContext(ctx, u, nil)
	if err != nil {
		c.mu.Lock()
		c.state = StateDisconnected
		c.lastErr = err
		c.mu.Unlock()
		return fmt.Errorf("deriv: dial: %w", err)
	}

	c.mu.Lock()
	c.conn = conn
	c.gen++
	gen := c.gen
	c.state = StateConnected
	c.lastInbound = time.Now()
	c.mu.Unlock()

	c.wg.Add(1)
	go c.readPump(conn, gen)

	if err := c.authorize(ctx); err != nil {
		c.connFailed(gen, err)
		return err
	}

	c.setState(StateAuthenticated)
	log.Printf("deriv: connected and authenticated")
	return nil
}

func (c *Client) authorize(ctx context.Context) error {
	msg, err := c.doRequest(ctx, &AuthorizeRequest{Authorize: c.opts.Token}, c.opts.RequestTimeout)
	if err != nil {
		return fmt.Errorf("deriv: authorize: %w", err)
	}
	if msg.Err != nil {
		// Credential rejection is distinct from transport failure.
		return &AuthError{Code: msg.Err.Code, Message: msg.Err.Message}
	}
	return nil
}

// Request sends req with a fresh correlation id and waits for the matching
// response, the timeout, or a disconnect. Outbound calls are rate limited;
// a call that cannot get a slot within the bounded wait fails with
// ErrRateLimited instead of being dropped.
func (c *Client) Request(ctx context.Context, req Request, timeout time.Duration) (*Message, error) {
	if timeout <= 0 {
		timeout = c.opts.RequestTimeout
	}

	waitCtx, cancel := context.WithTimeout(ctx, c.opts.RateLimitMaxWait)
	err := c.limiter.Wait(waitCtx)
	cancel()
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, ErrRateLimited
	}

	c.mu.Lock()
	ok := c.state == StateAuthenticated
	c.mu.Unlock()
	if !ok {
		return nil, ErrNotConnected
	}

	return c.doRequest(ctx, req, timeout)
}

// doRequest is the correlation core; it does not consult the rate limiter or
// the authenticated-state gate, so authorize and heartbeat can use it too.
func (c *Client) doRequest(ctx context.Context, req Request, timeout time.Duration) (*Message, error) {
	id := c.reqID.Add(1)
	req.setReqID(id)

	ch := make(chan *Message, 1)

	c.mu.Lock()
	if c.state == StateShutdown {
		c.mu.Unlock()
		return nil, ErrShutdown
	}
	conn := c.conn
	if conn == nil {
		c.mu.Unlock()
		return nil, ErrNotConnected
	}
	c.pending[id] = ch
	c.mu.Unlock()

	if err := c.writeJSON(conn, req); err != nil {
		c.removePending(id)
		return nil, fmt.Errorf("%w: %v", ErrConnectionLost, err)
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case msg := <-ch:
		if msg == nil {
			return nil, ErrConnectionLost
		}
		return msg, nil
	case <-timer.C:
		c.removePending(id)
		return nil, ErrTimeout
	case <-ctx.Done():
		// Late responses for a cancelled call are silently discarded.
		c.removePending(id)
		return nil, ctx.Err()
	case <-c.done:
		c.removePending(id)
		return nil, ErrShutdown
	}
}

func (c *Client) writeJSON(conn *websocket.Conn, v any) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return conn.WriteJSON(v)
}

func (c *Client) removePending(id int64) {
	c.mu.Lock()
	delete(c.pending, id)
	c.mu.Unlock()
}

// readPump is the single message pump for one connection generation. Every
// inbound frame is routed here: correlated responses complete their pending
// request exactly once, everything else is dispatched by topic. Unroutable
// frames are logged and dropped, never fatal.
func (c *Client) readPump(conn *websocket.Conn, gen int) {
	defer c.wg.Done()
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			c.connFailed(gen, err)
			return
		}

		msg, err := parseMessage(data)
		if err != nil {
			log.Printf("deriv: dropping unparseable frame: %v", err)
			continue
		}

		c.mu.Lock()
		c.lastInbound = time.Now()
		if msg.ReqID != 0 {
			if ch, ok := c.pending[msg.ReqID]; ok {
				delete(c.pending, msg.ReqID)
				c.mu.Unlock()
				ch <- msg
				continue
			}
		}
		var handler func(*Message)
		for _, sub := range c.subs {
			if sub.topic == msg.MsgType {
				handler = sub.handler
				break
			}
		}
		c.mu.Unlock()

		if handler == nil {
			if msg.MsgType != "" {
				log.Printf("deriv: no handler for push %q, dropped", msg.MsgType)
			}
			continue
		}

		// Hand off so a slow handler cannot stall the pump.
		select {
		case c.dispatch <- dispatchItem{handler: handler, msg: msg}:
		default:
			log.Printf("deriv: dispatch queue full, dropping %q push", msg.MsgType)
		}
	}
}

func (c *Client) dispatchLoop() {
	defer c.wg.Done()
	for {
		select {
		case <-c.ctx.Done():
			return
		case item := <-c.dispatch:
			item.handler(item.msg)
		}
	}
}

// connFailed tears down one connection generation: pending requests are
// failed immediately rather than left to time out, and the supervisor is
// signaled to reconnect.
func (c *Client) connFailed(gen int, err error) {
	c.mu.Lock()
	if gen != c.gen || c.state == StateShutdown {
		c.mu.Unlock()
		return
	}
	if c.conn != nil {
		_ = c.conn.Close()
	}
	c.conn = nil
	c.state = StateReconnecting
	c.lastErr = err
	failed := c.pending
	c.pending = make(map[int64]chan *Message)
	c.mu.Unlock()

	for _, ch := range failed {
		ch <- nil
	}
	log.Printf("deriv: connection lost (%v), %d in-flight requests failed", err, len(failed))

	select {
	case c.connLost <- struct{}{}:
	default:
	}
}

func (c *Client) superviseLoop() {
	defer c.wg.Done()
	for {
		select {
		case <-c.ctx.Done():
			return
		case <-c.connLost:
			// Signals raised by connections that already recovered (or by
			// failed attempts inside a reconnect cycle) are stale.
			c.mu.Lock()
			stale := c.state != StateReconnecting
			c.mu.Unlock()
			if stale {
				continue
			}
			if err := c.reconnect(); err != nil {
				if c.ctx.Err() != nil {
					return
				}
				c.fail(err)
				return
			}
		}
	}
}

// reconnect retries with exponential backoff until it succeeds, hits the
// attempt cap, or sees an authentication rejection (fatal, not retried).
func (c *Client) reconnect() error {
	delay := c.opts.ReconnectBase
	var lastErr error

	for attempt := 1; attempt <= c.opts.MaxReconnectAttempts; attempt++ {
		log.Printf("deriv: reconnect attempt %d/%d in %v", attempt, c.opts.MaxReconnectAttempts, delay)

		select {
		case <-time.After(delay):
		case <-c.ctx.Done():
			return c.ctx.Err()
		}

		c.mu.Lock()
		c.reconnects++
		c.mu.Unlock()

		err := c.dialAndAuth(c.ctx)
		if err == nil {
			c.replaySubscriptions()
			log.Printf("deriv: reconnected after %d attempt(s)", attempt)
			return nil
		}

		var authErr *AuthError
		if errors.As(err, &authErr) {
			return authErr
		}
		lastErr = err

		delay *= 2
		if delay > c.opts.ReconnectCap {
			delay = c.opts.ReconnectCap
		}
	}
	return fmt.Errorf("%w after %d attempts: %v", ErrReconnectExhausted, c.opts.MaxReconnectAttempts, lastErr)
}

// replaySubscriptions re-issues every live subscription after a successful
// re-authentication. Individual failures are logged, not fatal: the invariant
// is that replay is always attempted for every topic.
func (c *Client) replaySubscriptions() {
	c.mu.Lock()
	subs := make([]*subscription, len(c.subs))
	copy(subs, c.subs)
	c.mu.Unlock()

	for _, sub := range subs {
		msg, err := c.doRequest(c.ctx, sub.newReq(), c.opts.RequestTimeout)
		if err != nil {
			log.Printf("deriv: replay of %q subscription failed: %v", sub.topic, err)
			continue
		}
		if msg.Err != nil {
			log.Printf("deriv: replay of %q subscription rejected: %v", sub.topic, msg.Err)
		}
	}
}

func (c *Client) heartbeatLoop() {
	defer c.wg.Done()
	ticker := time.NewTicker(c.opts.PingInterval)
	defer ticker.Stop()

	stall := time.Duration(c.opts.StallMultiple) * c.opts.PingInterval
	for {
		select {
		case <-c.ctx.Done():
			return
		case <-ticker.C:
			c.mu.Lock()
			state := c.state
			last := c.lastInbound
			gen := c.gen
			c.mu.Unlock()

			if state != StateAuthenticated {
				continue
			}
			if time.Since(last) > stall {
				c.connFailed(gen, fmt.Errorf("no inbound traffic for %v", time.Since(last).Round(time.Second)))
				continue
			}
			go func() {
				if _, err := c.doRequest(c.ctx, &PingRequest{Ping: 1}, c.opts.PingInterval); err != nil && c.ctx.Err() == nil {
					log.Printf("deriv: ping failed: %v", err)
				}
			}()
		}
	}
}

// subscribe registers a standing subscription and issues the subscribe
// request. The registration survives reconnects via replay.
func (c *Client) subscribe(ctx context.Context, topic string, newReq func() Request, handler func(*Message)) error {
	sub := &subscription{topic: topic, newReq: newReq, handler: handler}

	c.mu.Lock()
	c.subs = append(c.subs, sub)
	c.mu.Unlock()

	msg, err := c.Request(ctx, newReq(), c.opts.RequestTimeout)
	if err != nil {
		c.unsubscribe(topic)
		return err
	}
	if msg.Err != nil {
		c.unsubscribe(topic)
		return msg.Err
	}
	return nil
}

func (c *Client) unsubscribe(topic string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, sub := range c.subs {
		if sub.topic == topic {
			c.subs = append(c.subs[:i], c.subs[i+1:]...)
			return
		}
	}
}

// SubscribeTicks streams price updates for symbol into handler.
func (c *Client) SubscribeTicks(ctx context.Context, symbol string, handler func(Tick)) error {
	return c.subscribe(ctx, TopicTick,
		func() Request { return &TicksRequest{Ticks: symbol, Subscribe: 1} },
		func(msg *Message) {
			var tick Tick
			if err := msg.Decode(&tick); err != nil {
				log.Printf("deriv: bad tick push: %v", err)
				return
			}
			handler(tick)
		})
}

// SubscribeContractStatus streams open-contract updates into handler.
func (c *Client) SubscribeContractStatus(ctx context.Context, handler func(ContractStatus)) error {
	return c.subscribe(ctx, TopicOpenContract,
		func() Request { return &OpenContractRequest{ProposalOpenContract: 1, Subscribe: 1} },
		func(msg *Message) {
			var status ContractStatus
			if err := msg.Decode(&status); err != nil {
				log.Printf("deriv: bad contract push: %v", err)
				return
			}
			handler(status)
		})
}

// Buy places a contract and returns the venue's placement result.
func (c *Client) Buy(ctx context.Context, params BuyParameters) (*BuyResult, error) {
	msg, err := c.Request(ctx, &BuyRequest{Buy: 1, Price: params.Amount, Parameters: params}, c.opts.RequestTimeout)
	if err != nil {
		return nil, err
	}
	if msg.Err != nil {
		return nil, msg.Err
	}
	var res BuyResult
	if err := msg.Decode(&res); err != nil {
		return nil, err
	}
	return &res, nil
}

// QueryBalance returns the current account balance.
func (c *Client) QueryBalance(ctx context.Context) (float64, error) {
	msg, err := c.Request(ctx, &BalanceRequest{Balance: 1}, c.opts.RequestTimeout)
	if err != nil {
		return 0, err
	}
	if msg.Err != nil {
		return 0, msg.Err
	}
	var res BalanceResult
	if err := msg.Decode(&res); err != nil {
		return 0, err
	}
	return res.Balance, nil
}

func (c *Client) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

// fail marks the client permanently dead and releases all waiters.
func (c *Client) fail(err error) {
	c.fatalMu.Lock()
	if c.fatalErr == nil {
		c.fatalErr = err
	}
	c.fatalMu.Unlock()

	c.mu.Lock()
	c.state = StateShutdown
	failed := c.pending
	c.pending = make(map[int64]chan *Message)
	c.mu.Unlock()
	for _, ch := range failed {
		ch <- nil
	}

	log.Printf("deriv: fatal: %v", err)
	c.closeOnce.Do(func() { close(c.done) })
	c.cancel()
}

// Done is closed when the client has failed permanently or been closed.
func (c *Client) Done() <-chan struct{} { return c.done }

// Err returns the fatal error after Done is closed.
func (c *Client) Err() error {
	c.fatalMu.Lock()
	defer c.fatalMu.Unlock()
	return c.fatalErr
}

// Info returns a snapshot of the connection for health checks.
func (c *Client) Info() ConnectionInfo {
	c.mu.Lock()
	defer c.mu.Unlock()
	info := ConnectionInfo{
		State:       c.state.String(),
		LastInbound: c.lastInbound,
		Reconnects:  c.reconnects,
	}
	if c.lastErr != nil {
		info.LastError = c.lastErr.Error()
	}
	for _, sub := range c.subs {
		info.Subscriptions = append(info.Subscriptions, sub.topic)
	}
	return info
}

// Close shuts the client down. Terminal: the client cannot be reused.
func (c *Client) Close() {
	c.mu.Lock()
	if c.state == StateShutdown {
		c.mu.Unlock()
		return
	}
	c.state = StateShutdown
	c.gen++ // invalidate any live read pump
	conn := c.conn
	c.conn = nil
	failed := c.pending
	c.pending = make(map[int64]chan *Message)
	c.mu.Unlock()

	if conn != nil {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
		_ = conn.Close()
	}
	for _, ch := range failed {
		ch <- nil
	}

	c.cancel()
	c.closeOnce.Do(func() { close(c.done) })
	c.wg.Wait()
	log.Printf("deriv: client closed")
}

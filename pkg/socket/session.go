package socket

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/avast/retry-go"
	"github.com/veiloq/coinex-connector/pkg/logging"
	"github.com/veiloq/coinex-connector/pkg/ratelimit"
)

// State is the session connection state
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected     // transport open, not authenticated
	StateAuthenticated // signed handshake completed on this connection
	StateClosed        // terminal; no further operations accepted
)

// String returns the string representation of a session state
func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateAuthenticated:
		return "authenticated"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Config holds session configuration. It is an immutable value passed to
// NewSession; there is no process-wide mutable default.
type Config struct {
	// URL is the WebSocket endpoint address; reconnects reuse it
	URL string

	// RequestTimeout bounds how long Query, Subscribe and Ping wait for a
	// correlated response
	RequestTimeout time.Duration

	// PingInterval is the keep-alive cadence
	PingInterval time.Duration

	// ReconnectInterval is the initial delay between reconnect attempts;
	// attempts back off from it
	ReconnectInterval time.Duration

	// MaxRetries caps reconnect attempts per disconnect
	MaxRetries int

	// AutoReconnect governs whether a dropped connection may be
	// re-established and replayed
	AutoReconnect bool

	// SendsPerSecond paces outbound requests; zero means unlimited
	SendsPerSecond int

	// Credentials supplies API credentials for signed operations; nil
	// restricts the session to public requests
	Credentials CredentialStore

	// Nonce overrides the tonce source for signed requests. See NonceFunc
	// for the contract an external source must uphold.
	Nonce NonceFunc

	// Dial overrides the transport; nil uses DialWebSocket
	Dial DialFunc

	// Logger receives session logs; nil uses the default logger
	Logger logging.Logger
}

// Metrics holds connection and message statistics
type Metrics struct {
	ConnectedTime  time.Time
	MessageCount   int64
	ReconnectCount int64
	ErrorCount     int64
}

// Session owns one physical connection and guarantees correlated
// request/response semantics over it. Concurrent callers may issue queries
// and subscriptions from multiple goroutines; one read loop dispatches
// inbound frames strictly in arrival order.
type Session struct {
	cfg     Config
	logger  logging.Logger
	limiter ratelimit.RateLimiter
	dial    DialFunc
	nonce   NonceFunc

	pending *pendingRegistry
	subs    *subscriptionRegistry
	nextID  atomic.Int64

	connectMu sync.Mutex
	writeMu   sync.Mutex
	pingMu    sync.Mutex

	mu         sync.Mutex
	state      State
	conn       Transport
	generation int
	connDone   chan struct{}

	authMu sync.Mutex

	reconnectMu  sync.Mutex
	reconnecting bool

	metrics   Metrics
	metricsMu sync.RWMutex
}

// NewSession creates a session with the given configuration. Zero-valued
// timing fields get defaults; the session does not connect until Connect.
func NewSession(cfg Config) *Session {
	if cfg.RequestTimeout == 0 {
		cfg.RequestTimeout = 15 * time.Second
	}
	if cfg.PingInterval == 0 {
		cfg.PingInterval = 60 * time.Second
	}
	if cfg.ReconnectInterval == 0 {
		cfg.ReconnectInterval = 5 * time.Second
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 3
	}

	s := &Session{
		cfg:     cfg,
		logger:  cfg.Logger,
		dial:    cfg.Dial,
		nonce:   cfg.Nonce,
		pending: newPendingRegistry(),
		subs:    newSubscriptionRegistry(),
	}
	if s.logger == nil {
		s.logger = logging.NewLogger()
	}
	if s.dial == nil {
		s.dial = DialWebSocket
	}
	if s.nonce == nil {
		src := &nonceSource{}
		s.nonce = src.next
	}
	if cfg.SendsPerSecond > 0 {
		s.limiter = ratelimit.NewTokenBucketLimiter(ratelimit.Rate{
			Limit:    cfg.SendsPerSecond,
			Interval: time.Second,
		})
	}
	return s
}

// State returns the current session state
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// IsConnected reports whether the transport is open
func (s *Session) IsConnected() bool {
	state := s.State()
	return state == StateConnected || state == StateAuthenticated
}

// GetMetrics returns the current connection metrics
func (s *Session) GetMetrics() Metrics {
	s.metricsMu.RLock()
	defer s.metricsMu.RUnlock()
	return s.metrics
}

// Connect establishes the transport and starts the read and keep-alive
// loops. It does not retry; a dial failure is returned to the caller.
// Concurrent calls are serialized so at most one dial is in flight and the
// session never holds more than one connection.
func (s *Session) Connect(ctx context.Context) error {
	s.connectMu.Lock()
	defer s.connectMu.Unlock()

	s.mu.Lock()
	switch s.state {
	case StateClosed:
		s.mu.Unlock()
		return ErrClosed
	case StateConnected, StateAuthenticated:
		s.mu.Unlock()
		return nil
	}
	s.state = StateConnecting
	s.mu.Unlock()

	s.logger.Debug("dialing",
		logging.String("url", s.cfg.URL),
		logging.Duration("ping_interval", s.cfg.PingInterval),
	)

	conn, err := s.dial(ctx, s.cfg.URL)
	if err != nil {
		s.mu.Lock()
		if s.state == StateConnecting {
			s.state = StateDisconnected
		}
		s.mu.Unlock()

		s.metricsMu.Lock()
		s.metrics.ErrorCount++
		s.metricsMu.Unlock()
		return err
	}

	s.mu.Lock()
	if s.state == StateClosed {
		s.mu.Unlock()
		_ = conn.Close()
		return ErrClosed
	}
	s.state = StateConnected
	s.conn = conn
	s.generation++
	gen := s.generation
	done := make(chan struct{})
	s.connDone = done
	s.mu.Unlock()

	s.metricsMu.Lock()
	s.metrics.ConnectedTime = time.Now()
	s.metricsMu.Unlock()

	go s.readLoop(conn, gen)
	go s.pingLoop(done)

	s.logger.Info("session connected", logging.String("url", s.cfg.URL))
	return nil
}

// Close permanently shuts the session down. All outstanding waits fail with
// ErrClosed, subscriptions are torn down, and every later operation returns
// ErrClosed.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.state == StateClosed {
		s.mu.Unlock()
		return nil
	}
	s.state = StateClosed
	conn := s.conn
	s.conn = nil
	if s.connDone != nil {
		close(s.connDone)
		s.connDone = nil
	}
	s.mu.Unlock()

	s.pending.failAll(ErrClosed)
	for _, sub := range s.subs.all() {
		s.subs.remove(sub)
		sub.close(ErrClosed)
	}

	if conn != nil {
		return conn.Close()
	}
	return nil
}

// nextRequestID allocates a correlation id, unique for the lifetime of the
// session
func (s *Session) nextRequestID() int64 {
	return s.nextID.Add(1)
}

// Send serializes and writes a request without waiting for a response. A
// zero id is assigned at write time.
func (s *Session) Send(req Request) error {
	if req.ID == 0 {
		req.ID = s.nextRequestID()
	}
	return s.write(context.Background(), req)
}

// write serializes one request and puts it on the wire. Writes are
// serialized so each request is fully written before the next.
func (s *Session) write(ctx context.Context, req Request) error {
	data, err := req.Marshal()
	if err != nil {
		return err
	}

	if s.limiter != nil {
		if err := s.limiter.Wait(ctx); err != nil {
			return err
		}
	}

	s.mu.Lock()
	if s.state == StateClosed {
		s.mu.Unlock()
		return ErrClosed
	}
	conn := s.conn
	s.mu.Unlock()

	if conn == nil {
		return ErrNotConnected
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if err := conn.WriteMessage(data); err != nil {
		return fmt.Errorf("failed to write %s request: %w", req.Method(), err)
	}
	return nil
}

// roundTrip registers a wait, sends the request and suspends until the
// correlated response, a timeout, or cancellation. The wait is registered
// before the write so the response cannot race past it.
func (s *Session) roundTrip(ctx context.Context, channel Channel, req Request) (json.RawMessage, error) {
	req.ID = s.nextRequestID()
	handle := s.pending.register(channel, req.ID)
	if err := s.write(ctx, req); err != nil {
		s.pending.remove(channel, req.ID)
		return nil, err
	}
	return s.pending.await(ctx, handle, s.cfg.RequestTimeout)
}

// Query sends a request on the data channel and decodes the result into
// out. Exactly one outcome reaches the caller: the decoded response, a
// ServerError from the error envelope, ErrTimeout, or a connection error.
func (s *Session) Query(ctx context.Context, req Request, out interface{}) error {
	if req.Signed {
		if err := s.ensureAuthenticated(ctx); err != nil {
			return err
		}
	}

	raw, err := s.roundTrip(ctx, ChannelData, req)
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return &DeserializationError{Subject: req.Subject, Err: err}
	}
	return nil
}

// Subscribe performs the subscribe handshake and, on success, registers the
// subscription so its handler fires for every matching push frame until it
// is closed. Signed subscriptions authenticate first.
func (s *Session) Subscribe(ctx context.Context, req Request, handler PushHandler) (*Subscription, error) {
	if req.Signed {
		if err := s.ensureAuthenticated(ctx); err != nil {
			return nil, err
		}
	}

	// the stored request keeps a zero id so replay assigns a fresh one
	stored := req
	stored.ID = 0
	sub := newSubscription(stored, handler)

	// register before the handshake: the first push can arrive ahead of
	// the ack
	s.subs.add(sub)

	if err := s.subscribeHandshake(ctx, req); err != nil {
		s.subs.remove(sub)
		sub.close(nil)
		return nil, err
	}
	return sub, nil
}

// subscribeHandshake performs one subscribe round trip and validates the ack
func (s *Session) subscribeHandshake(ctx context.Context, req Request) error {
	raw, err := s.roundTrip(ctx, ChannelSubscription, req)
	if err != nil {
		return err
	}

	var ack ackStatus
	if err := json.Unmarshal(raw, &ack); err == nil && ack.Status != "" && ack.Status != "success" {
		return &ServerError{Message: fmt.Sprintf("subscribe %s rejected: %s", req.Subject, ack.Status)}
	}
	return nil
}

// Unsubscribe removes the subscription locally. The server treats
// unsubscribe as best-effort, so no acknowledgment is awaited.
func (s *Session) Unsubscribe(sub *Subscription) {
	if sub == nil {
		return
	}
	s.subs.remove(sub)
	sub.close(nil)
}

// Ping sends a keep-alive and waits for the pong marker. Pongs are
// recognized by marker, not id, so the wait lives on its own channel and
// pings are serialized to keep at most one pong wait outstanding.
func (s *Session) Ping(ctx context.Context) error {
	s.pingMu.Lock()
	defer s.pingMu.Unlock()

	handle := s.pending.register(ChannelPong, 0)
	req := NewRequest("server", ActionPing, false)
	req.ID = s.nextRequestID()
	if err := s.write(ctx, req); err != nil {
		s.pending.remove(ChannelPong, 0)
		return err
	}
	_, err := s.pending.await(ctx, handle, s.cfg.RequestTimeout)
	return err
}

// ensureAuthenticated runs the signed handshake once per connection. The
// authenticated flag is cleared on every disconnect, so a reconnected
// session re-authenticates before the next signed request.
func (s *Session) ensureAuthenticated(ctx context.Context) error {
	creds := s.cfg.Credentials
	if creds == nil || creds.Key() == "" {
		return ErrNoCredentials
	}

	s.authMu.Lock()
	defer s.authMu.Unlock()

	if s.State() == StateAuthenticated {
		return nil
	}

	raw, err := s.roundTrip(ctx, ChannelAuthentication, signRequest(creds, s.nonce()))
	if err != nil {
		return err
	}

	var ack ackStatus
	if err := json.Unmarshal(raw, &ack); err != nil {
		return &DeserializationError{Subject: "server.sign", Err: err}
	}
	if ack.Status != "success" {
		return fmt.Errorf("%w: status %q", ErrAuthenticationFailed, ack.Status)
	}

	s.mu.Lock()
	if s.state == StateConnected {
		s.state = StateAuthenticated
	}
	s.mu.Unlock()

	s.logger.Debug("session authenticated")
	return nil
}

// readLoop is the single inbound-dispatch path for one connection. Frames
// are processed strictly in arrival order; push handlers run synchronously,
// so slow handlers delay subsequent frames by contract.
func (s *Session) readLoop(conn Transport, gen int) {
	for {
		data, err := conn.ReadMessage()
		if err != nil {
			s.handleDisconnect(conn, gen, err)
			return
		}

		s.metricsMu.Lock()
		s.metrics.MessageCount++
		s.metricsMu.Unlock()

		s.dispatch(data)
	}
}

// dispatch classifies one inbound frame and routes it
func (s *Session) dispatch(data []byte) {
	frame := Classify(data)
	switch frame.Kind {
	case FramePong:
		if !s.pending.resolve(ChannelPong, 0, outcome{result: frame.Result}) {
			s.logger.Debug("pong with no waiter")
		}

	case FramePush:
		s.dispatchPush(frame)

	case FrameResponse:
		var out outcome
		if frame.Err != nil {
			out.err = frame.Err
		} else {
			out.result = frame.Result
		}
		if !s.pending.resolveResponse(frame.ID, out) {
			s.logger.Debug("response with no waiter", logging.Int64("id", frame.ID))
		}

	case FrameUnroutable:
		s.logger.Warn("discarding unroutable frame", logging.String("frame", truncate(data, 256)))
	}
}

// dispatchPush fans a push frame out to every subscription on its subject.
// The full parameter list goes to all of them; per-market filtering belongs
// to the handlers.
func (s *Session) dispatchPush(frame Frame) {
	subs := s.subs.forSubject(frame.Subject)
	if len(subs) == 0 {
		s.logger.Debug("push with no subscription", logging.String("subject", frame.Subject))
		return
	}

	for _, sub := range subs {
		s.invokeHandler(sub, frame.Params)
	}
}

// invokeHandler calls one push handler, containing panics so a misbehaving
// callback cannot take down the dispatch path
func (s *Session) invokeHandler(sub *Subscription, params []json.RawMessage) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("push handler panicked",
				logging.String("subject", sub.Subject()),
				logging.String("panic", fmt.Sprintf("%v", r)),
			)
		}
	}()
	sub.handler(params)
}

// handleDisconnect transitions the session to disconnected, fails all
// outstanding waits and kicks off reconnection when permitted. Stale read
// loops from a previous connection are ignored.
func (s *Session) handleDisconnect(conn Transport, gen int, cause error) {
	s.mu.Lock()
	if s.generation != gen || s.state == StateClosed {
		s.mu.Unlock()
		return
	}
	s.state = StateDisconnected
	s.conn = nil
	if s.connDone != nil {
		close(s.connDone)
		s.connDone = nil
	}
	auto := s.cfg.AutoReconnect
	s.mu.Unlock()

	_ = conn.Close()

	s.metricsMu.Lock()
	s.metrics.ErrorCount++
	s.metricsMu.Unlock()

	s.logger.Warn("connection lost", logging.Error(cause))
	s.pending.failAll(fmt.Errorf("%w: %w", ErrConnectionLost, cause))

	if auto {
		go s.reconnect()
	}
}

// reconnect re-establishes the transport with backoff and replays state.
// If every attempt fails, surviving subscriptions are marked dead and their
// owners notified; nothing is dropped silently.
func (s *Session) reconnect() {
	s.reconnectMu.Lock()
	if s.reconnecting {
		s.reconnectMu.Unlock()
		return
	}
	s.reconnecting = true
	s.reconnectMu.Unlock()

	defer func() {
		s.reconnectMu.Lock()
		s.reconnecting = false
		s.reconnectMu.Unlock()
	}()

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	s.metricsMu.Lock()
	s.metrics.ReconnectCount++
	s.metricsMu.Unlock()

	err := retry.Do(
		func() error {
			if s.State() == StateClosed {
				return retry.Unrecoverable(ErrClosed)
			}
			if err := s.Connect(ctx); err != nil {
				return err
			}
			return s.replay(ctx)
		},
		retry.Attempts(uint(s.cfg.MaxRetries)),
		retry.Delay(s.cfg.ReconnectInterval),
		retry.DelayType(retry.BackOffDelay),
		retry.Context(ctx),
		retry.OnRetry(func(n uint, err error) {
			s.logger.Warn("reconnection attempt failed",
				logging.Int("attempt", int(n+1)),
				logging.Error(err),
			)
		}),
	)

	if err != nil {
		s.logger.Error("reconnection failed", logging.Error(err))
		s.metricsMu.Lock()
		s.metrics.ErrorCount++
		s.metricsMu.Unlock()

		for _, sub := range s.subs.all() {
			s.subs.remove(sub)
			sub.close(fmt.Errorf("subscription lost: %w", err))
		}
		return
	}

	s.logger.Info("reconnection successful")
}

// replay re-establishes session state on a fresh connection: authenticate
// if any signed subscription survives, then resend each original subscribe
// request with a fresh id. An authentication failure kills only the signed
// subscriptions; unsigned ones keep running.
func (s *Session) replay(ctx context.Context) error {
	subs := s.subs.all()
	if len(subs) == 0 {
		return nil
	}

	var authErr error
	for _, sub := range subs {
		if sub.Signed() {
			authErr = s.ensureAuthenticated(ctx)
			break
		}
	}
	if authErr != nil && isConnectionError(authErr) {
		return authErr
	}

	for _, sub := range subs {
		if sub.Signed() && authErr != nil {
			s.subs.remove(sub)
			sub.close(fmt.Errorf("resubscribe failed: %w", authErr))
			s.logger.Warn("signed subscription dropped after auth failure",
				logging.String("subject", sub.Subject()),
				logging.Error(authErr),
			)
			continue
		}

		if err := s.subscribeHandshake(ctx, sub.request); err != nil {
			if isConnectionError(err) {
				return err
			}
			s.subs.remove(sub)
			sub.close(fmt.Errorf("resubscribe failed: %w", err))
			s.logger.Warn("subscription dropped during replay",
				logging.String("subject", sub.Subject()),
				logging.Error(err),
			)
			continue
		}

		s.logger.Debug("subscription replayed", logging.String("subject", sub.Subject()))
	}
	return nil
}

// pingLoop keeps the connection alive until it is torn down
func (s *Session) pingLoop(done chan struct{}) {
	ticker := time.NewTicker(s.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), s.cfg.RequestTimeout)
			if err := s.Ping(ctx); err != nil {
				s.logger.Warn("keep-alive ping failed", logging.Error(err))
			}
			cancel()
		}
	}
}

// isConnectionError reports whether err means the transport is unusable and
// the whole reconnect attempt should be retried
func isConnectionError(err error) bool {
	return errors.Is(err, ErrConnectionLost) || errors.Is(err, ErrNotConnected)
}

func truncate(data []byte, n int) string {
	if len(data) <= n {
		return string(data)
	}
	return string(data[:n]) + "..."
}

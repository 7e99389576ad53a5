package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"sort"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/teris-io/shortid"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingInterval   = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
)

var (
	ErrNotConnected = errors.New("transport: not connected")
	ErrBufferFull   = errors.New("transport: send buffer full")
	ErrClosed       = errors.New("transport: closed")
)

type ConnState int

const (
	Disconnected ConnState = iota
	Connecting
	Connected
)

func (s ConnState) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	}
	return "unknown"
}

// Handler receives the raw payload of one inbound event.
type Handler func(data json.RawMessage)

type Options struct {
	ReconnectAttempts int
	ReconnectDelay    time.Duration
}

// Handle owns one physical websocket connection to the chat service.
// Inbound events are dispatched to registered handlers in subscription
// order from a single read loop, so per-room delivery order is preserved.
type Handle struct {
	url    string
	token  string
	sid    string
	dialer *websocket.Dialer
	log    *log.Logger

	reconnectAttempts int
	reconnectDelay    time.Duration

	mu           sync.Mutex
	conn         *websocket.Conn
	state        ConnState
	nextSub      int
	handlers     map[string]map[int]Handler
	reconnectFns map[int]func()
	stateFns     map[int]func(ConnState)

	send      chan *Envelope
	stop      chan struct{}
	closeOnce sync.Once
}

func NewHandle(serverURL, token string, logger *log.Logger, opts Options) (*Handle, error) {
	u, err := url.Parse(serverURL)
	if err != nil {
		return nil, fmt.Errorf("parse server url: %w", err)
	}

	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return nil, fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	if u.Path == "" || u.Path == "/" {
		u.Path = "/ws"
	}

	sid, err := shortid.Generate()
	if err != nil {
		return nil, fmt.Errorf("generate session id: %w", err)
	}

	q := u.Query()
	q.Set("sid", sid)
	u.RawQuery = q.Encode()

	if opts.ReconnectAttempts <= 0 {
		opts.ReconnectAttempts = 5
	}
	if opts.ReconnectDelay <= 0 {
		opts.ReconnectDelay = 3 * time.Second
	}

	return &Handle{
		url:               u.String(),
		token:             token,
		sid:               sid,
		dialer:            websocket.DefaultDialer,
		log:               logger,
		reconnectAttempts: opts.ReconnectAttempts,
		reconnectDelay:    opts.ReconnectDelay,
		handlers:          make(map[string]map[int]Handler),
		reconnectFns:      make(map[int]func()),
		stateFns:          make(map[int]func(ConnState)),
		send:              make(chan *Envelope, 256),
		stop:              make(chan struct{}),
	}, nil
}

// SessionId is the identifier sent in the dial query string, unique per
// physical connection.
func (h *Handle) SessionId() string {
	return h.sid
}

func (h *Handle) State() ConnState {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state
}

func (h *Handle) Connect(ctx context.Context) error {
	h.mu.Lock()
	if h.state != Disconnected {
		h.mu.Unlock()
		return nil
	}
	h.state = Connecting
	h.mu.Unlock()
	h.notifyState(Connecting)

	conn, err := h.dial(ctx)
	if err != nil {
		h.setState(Disconnected)
		return fmt.Errorf("dial: %w", err)
	}

	h.startPumps(conn)
	return nil
}

func (h *Handle) dial(ctx context.Context) (*websocket.Conn, error) {
	hdr := http.Header{}
	hdr.Set("Authorization", "Bearer "+h.token)

	conn, resp, err := h.dialer.DialContext(ctx, h.url, hdr)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("%w: status %d", err, resp.StatusCode)
		}
		return nil, err
	}

	return conn, nil
}

func (h *Handle) startPumps(conn *websocket.Conn) {
	h.mu.Lock()
	h.conn = conn
	h.state = Connected
	h.mu.Unlock()
	h.notifyState(Connected)

	go h.writePump(conn)
	go h.readPump(conn)
}

func (h *Handle) readPump(conn *websocket.Conn) {
	defer conn.Close()

	conn.SetReadLimit(maxMessageSize)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(appData string) error { conn.SetReadDeadline(time.Now().Add(pongWait)); return nil })

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure,
				websocket.CloseNormalClosure) {
				h.log.Printf("ws: read: %v", err)
			}
			break
		}

		var env Envelope
		if err := json.Unmarshal(raw, &env); err != nil {
			h.log.Println("error parsing envelope:", err)
			continue
		}

		h.dispatch(env.Event, env.Data)
	}

	select {
	case <-h.stop:
		h.setState(Disconnected)
	default:
		go h.reconnect()
	}
}

func (h *Handle) writePump(conn *websocket.Conn) {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		conn.Close()
	}()

	for {
		select {
		case env := <-h.send:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(env); err != nil {
				h.log.Printf("ws: write %s: %v", env.Event, err)
				return
			}
		case <-h.stop:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// reconnect re-dials with a fixed delay between attempts, giving up after
// the configured attempt limit. On success the reconnect listeners fire so callers
// can re-join their rooms; the server forgets membership on a drop.
func (h *Handle) reconnect() {
	h.mu.Lock()
	if h.state == Connecting {
		h.mu.Unlock()
		return
	}
	h.state = Connecting
	h.conn = nil
	h.mu.Unlock()
	h.notifyState(Connecting)

	for attempt := 1; attempt <= h.reconnectAttempts; attempt++ {
		select {
		case <-h.stop:
			h.setState(Disconnected)
			return
		case <-time.After(h.reconnectDelay):
		}

		conn, err := h.dial(context.Background())
		if err != nil {
			h.log.Printf("reconnect attempt %d/%d: %v", attempt, h.reconnectAttempts, err)
			continue
		}

		h.log.Printf("reconnected after %d attempt(s)", attempt)
		h.startPumps(conn)
		h.fireReconnect()
		return
	}

	h.log.Printf("giving up after %d reconnect attempts", h.reconnectAttempts)
	h.setState(Disconnected)
	h.notifyState(Disconnected)
}

// Emit queues one outbound event. It fails fast when the transport is not
// connected or the send buffer is full; it never blocks the caller.
func (h *Handle) Emit(event string, data any) error {
	if h.State() != Connected {
		return ErrNotConnected
	}

	env, err := NewEnvelope(event, data)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", event, err)
	}

	select {
	case h.send <- env:
		return nil
	case <-h.stop:
		return ErrClosed
	default:
		return ErrBufferFull
	}
}

// On registers a handler for an inbound event and returns a subscription
// id for Off.
func (h *Handle) On(event string, fn Handler) int {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.nextSub++
	if h.handlers[event] == nil {
		h.handlers[event] = make(map[int]Handler)
	}
	h.handlers[event][h.nextSub] = fn

	return h.nextSub
}

func (h *Handle) Off(event string, id int) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if subs, ok := h.handlers[event]; ok {
		delete(subs, id)
		if len(subs) == 0 {
			delete(h.handlers, event)
		}
	}
}

// OnReconnect registers a listener invoked after a dropped connection has
// been re-established.
func (h *Handle) OnReconnect(fn func()) int {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.nextSub++
	h.reconnectFns[h.nextSub] = fn

	return h.nextSub
}

func (h *Handle) OffReconnect(id int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.reconnectFns, id)
}

func (h *Handle) OnStateChange(fn func(ConnState)) int {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.nextSub++
	h.stateFns[h.nextSub] = fn

	return h.nextSub
}

func (h *Handle) OffStateChange(id int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.stateFns, id)
}

func (h *Handle) dispatch(event string, data json.RawMessage) {
	h.mu.Lock()
	subs := h.handlers[event]
	ids := make([]int, 0, len(subs))
	for id := range subs {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	fns := make([]Handler, 0, len(ids))
	for _, id := range ids {
		fns = append(fns, subs[id])
	}
	h.mu.Unlock()

	for _, fn := range fns {
		fn(data)
	}
}

func (h *Handle) fireReconnect() {
	h.mu.Lock()
	ids := make([]int, 0, len(h.reconnectFns))
	for id := range h.reconnectFns {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	fns := make([]func(), 0, len(ids))
	for _, id := range ids {
		fns = append(fns, h.reconnectFns[id])
	}
	h.mu.Unlock()

	for _, fn := range fns {
		fn()
	}
}

func (h *Handle) setState(s ConnState) {
	h.mu.Lock()
	h.state = s
	h.mu.Unlock()
}

func (h *Handle) notifyState(s ConnState) {
	h.mu.Lock()
	fns := make([]func(ConnState), 0, len(h.stateFns))
	for _, fn := range h.stateFns {
		fns = append(fns, fn)
	}
	h.mu.Unlock()

	for _, fn := range fns {
		fn(s)
	}
}

// Close tears the connection down for good; the handle cannot be reused.
func (h *Handle) Close() {
	h.closeOnce.Do(func() {
		close(h.stop)
	})

	h.mu.Lock()
	conn := h.conn
	h.conn = nil
	h.state = Disconnected
	h.mu.Unlock()

	if conn != nil {
		conn.Close()
	}
}

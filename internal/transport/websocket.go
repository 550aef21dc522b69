package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"google.golang.org/protobuf/encoding/protowire"

	"driftpursuit/netplay/internal/logging"
)

// JoinTokenHeader carries the optional join token on the upgrade request.
const JoinTokenHeader = "X-Join-Token"

const (
	frameData byte = iota + 1
	frameWelcome
	framePeerJoined
	framePeerLeft
)

const (
	writeWait       = 5 * time.Second
	peerSendBuffer  = 256
	defaultWSPath   = "/netplay"
	defaultWSPing   = 15 * time.Second
	defaultWSDial   = 5 * time.Second
	defaultWSLimit  = 64 << 10
	welcomeDeadline = 5 * time.Second
)

// WebSocketOptions tunes a WebSocketTransport.
type WebSocketOptions struct {
	Path            string
	PingInterval    time.Duration
	MaxPayloadBytes int64
	// MaxClients bounds concurrent clients on a host. Zero disables the limit.
	MaxClients  int
	DialTimeout time.Duration
	// Authenticate vets upgrade requests on the host. Nil admits everyone.
	Authenticate func(r *http.Request) error
	// JoinToken supplies the token a client presents when dialing. Nil sends none.
	JoinToken func() (string, error)
	Logger    *logging.Logger
}

type wsRole int

const (
	wsIdle wsRole = iota
	wsHost
	wsClient
)

// WebSocketTransport implements Transport as a star: the host accepts WebSocket
// upgrades and relays join/leave notices; clients only talk to the host.
type WebSocketTransport struct {
	opts  WebSocketOptions
	log   *logging.Logger
	queue eventQueue

	mu       sync.Mutex
	role     wsRole
	local    PeerID
	gen      uint64
	listener net.Listener
	server   *http.Server
	peers    map[PeerID]*wsPeer
	nextID   PeerID
	upstream *wsPeer
	cancel   context.CancelFunc
}

var _ Transport = (*WebSocketTransport)(nil)

type wsPeer struct {
	id        PeerID
	conn      *websocket.Conn
	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once
}

func newWSPeer(id PeerID, conn *websocket.Conn) *wsPeer {
	return &wsPeer{id: id, conn: conn, send: make(chan []byte, peerSendBuffer), done: make(chan struct{})}
}

// close signals the writer to send a close frame and stop; send is never closed
// so concurrent enqueues cannot panic.
func (p *wsPeer) close() {
	p.closeOnce.Do(func() {
		close(p.done)
	})
}

// NewWebSocketTransport applies defaults to opts and returns an idle transport.
func NewWebSocketTransport(opts WebSocketOptions) *WebSocketTransport {
	if strings.TrimSpace(opts.Path) == "" {
		opts.Path = defaultWSPath
	}
	if opts.PingInterval <= 0 {
		opts.PingInterval = defaultWSPing
	}
	if opts.MaxPayloadBytes <= 0 {
		opts.MaxPayloadBytes = defaultWSLimit
	}
	if opts.DialTimeout <= 0 {
		opts.DialTimeout = defaultWSDial
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.L()
	}
	return &WebSocketTransport{
		opts:  opts,
		log:   logger.With(logging.String("component", "ws_transport")),
		local: Unassigned,
	}
}

// Listen binds a TCP listener on port and starts serving upgrades.
func (t *WebSocketTransport) Listen(port int) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.role != wsIdle {
		return ErrAlreadyOpen
	}
	listener, err := net.Listen("tcp", net.JoinHostPort("", strconv.Itoa(port)))
	if err != nil {
		return fmt.Errorf("listen on port %d: %w", port, err)
	}
	return t.serveLocked(listener)
}

// ListenOn serves on an existing listener, letting tests bind an ephemeral port.
func (t *WebSocketTransport) ListenOn(listener net.Listener) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.role != wsIdle {
		return ErrAlreadyOpen
	}
	return t.serveLocked(listener)
}

func (t *WebSocketTransport) serveLocked(listener net.Listener) error {
	t.gen++
	gen := t.gen
	mux := http.NewServeMux()
	mux.HandleFunc(t.opts.Path, func(w http.ResponseWriter, r *http.Request) {
		t.serveUpgrade(gen, w, r)
	})
	t.listener = listener
	t.server = &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	t.role = wsHost
	t.local = HostID
	t.peers = make(map[PeerID]*wsPeer)
	t.nextID = HostID + 1
	server := t.server
	go func() {
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			t.log.Error("websocket server stopped", logging.Error(err))
		}
	}()
	t.log.Info("listening", logging.String("addr", listener.Addr().String()), logging.String("path", t.opts.Path))
	return nil
}

// Addr reports the bound listener address while hosting.
func (t *WebSocketTransport) Addr() net.Addr {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.listener == nil {
		return nil
	}
	return t.listener.Addr()
}

func (t *WebSocketTransport) serveUpgrade(gen uint64, w http.ResponseWriter, r *http.Request) {
	if t.opts.Authenticate != nil {
		if err := t.opts.Authenticate(r); err != nil {
			t.log.Warn("join rejected", logging.String("remote", r.RemoteAddr), logging.Error(err))
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
	}
	t.mu.Lock()
	full := t.opts.MaxClients > 0 && len(t.peers) >= t.opts.MaxClients
	t.mu.Unlock()
	if full {
		http.Error(w, "session full", http.StatusServiceUnavailable)
		return
	}

	upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		t.log.Warn("upgrade failed", logging.String("remote", r.RemoteAddr), logging.Error(err))
		return
	}
	conn.SetReadLimit(t.opts.MaxPayloadBytes)

	t.mu.Lock()
	if t.gen != gen || t.role != wsHost {
		t.mu.Unlock()
		_ = conn.Close()
		return
	}
	peer := newWSPeer(t.nextID, conn)
	t.nextID++
	//1.- The welcome frame goes first so the client knows its id before any relay.
	peer.send <- protowire.AppendVarint([]byte{frameWelcome}, uint64(peer.id))
	for _, other := range t.sortedPeersLocked() {
		t.enqueueFrameLocked(peer, protowire.AppendVarint([]byte{framePeerJoined}, uint64(other.id)))
		t.enqueueFrameLocked(other, protowire.AppendVarint([]byte{framePeerJoined}, uint64(peer.id)))
	}
	t.peers[peer.id] = peer
	t.queue.push(Event{Kind: EventPeerConnected, Peer: peer.id})
	t.mu.Unlock()

	t.log.Info("peer connected", logging.Int32("peer", int32(peer.id)), logging.String("remote", r.RemoteAddr))
	go t.writeLoop(peer)
	t.hostReadLoop(gen, peer)
}

func (t *WebSocketTransport) hostReadLoop(gen uint64, peer *wsPeer) {
	defer t.dropPeer(gen, peer)
	peer.conn.SetPongHandler(func(string) error {
		return peer.conn.SetReadDeadline(time.Now().Add(2 * t.opts.PingInterval))
	})
	_ = peer.conn.SetReadDeadline(time.Now().Add(2 * t.opts.PingInterval))
	for {
		kind, msg, err := peer.conn.ReadMessage()
		if err != nil {
			return
		}
		_ = peer.conn.SetReadDeadline(time.Now().Add(2 * t.opts.PingInterval))
		if kind != websocket.BinaryMessage || len(msg) == 0 || msg[0] != frameData {
			t.log.Debug("ignoring frame from peer", logging.Int32("peer", int32(peer.id)))
			continue
		}
		t.emit(gen, packet(peer.id, msg[1:]))
	}
}

func (t *WebSocketTransport) dropPeer(gen uint64, peer *wsPeer) {
	peer.close()
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.gen != gen || t.peers[peer.id] != peer {
		return
	}
	delete(t.peers, peer.id)
	t.queue.push(Event{Kind: EventPeerDisconnected, Peer: peer.id})
	for _, other := range t.sortedPeersLocked() {
		t.enqueueFrameLocked(other, protowire.AppendVarint([]byte{framePeerLeft}, uint64(peer.id)))
	}
	t.log.Info("peer disconnected", logging.Int32("peer", int32(peer.id)))
}

// writeLoop owns all writes to a connection, interleaving keepalive pings.
func (t *WebSocketTransport) writeLoop(peer *wsPeer) {
	ticker := time.NewTicker(t.opts.PingInterval)
	defer func() {
		ticker.Stop()
		_ = peer.conn.Close()
	}()
	for {
		select {
		case <-peer.done:
			_ = peer.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
			return
		case msg := <-peer.send:
			_ = peer.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := peer.conn.WriteMessage(websocket.BinaryMessage, msg); err != nil {
				peer.close()
				return
			}
		case <-ticker.C:
			_ = peer.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := peer.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				peer.close()
				return
			}
		}
	}
}

// Dial starts connecting to ws://address:port/path in the background.
func (t *WebSocketTransport) Dial(address string, port int) error {
	address = strings.TrimSpace(address)
	if address == "" || port <= 0 || port > 65535 {
		return ErrInvalidAddress
	}
	target := url.URL{Scheme: "ws", Host: net.JoinHostPort(address, strconv.Itoa(port)), Path: t.opts.Path}

	header := http.Header{}
	if t.opts.JoinToken != nil {
		token, err := t.opts.JoinToken()
		if err != nil {
			return fmt.Errorf("join token: %w", err)
		}
		header.Set(JoinTokenHeader, token)
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.role != wsIdle {
		return ErrAlreadyOpen
	}
	t.gen++
	t.role = wsClient
	ctx, cancel := context.WithCancel(context.Background())
	t.cancel = cancel
	go t.dialLoop(ctx, t.gen, target.String(), header)
	return nil
}

func (t *WebSocketTransport) dialLoop(ctx context.Context, gen uint64, target string, header http.Header) {
	dialCtx, cancel := context.WithTimeout(ctx, t.opts.DialTimeout)
	defer cancel()
	conn, _, err := websocket.DefaultDialer.DialContext(dialCtx, target, header)
	if err != nil {
		t.emit(gen, Event{Kind: EventConnectFailed, Err: err})
		return
	}
	conn.SetReadLimit(t.opts.MaxPayloadBytes)

	//1.- The host always opens with the welcome frame carrying our id.
	_ = conn.SetReadDeadline(time.Now().Add(welcomeDeadline))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		_ = conn.Close()
		t.emit(gen, Event{Kind: EventConnectFailed, Err: err})
		return
	}
	id, ok := decodePeerFrame(msg, frameWelcome)
	if !ok {
		_ = conn.Close()
		t.emit(gen, Event{Kind: EventConnectFailed, Err: errors.New("malformed welcome frame")})
		return
	}

	upstream := newWSPeer(HostID, conn)
	t.mu.Lock()
	if t.gen != gen {
		t.mu.Unlock()
		_ = conn.Close()
		return
	}
	t.local = id
	t.upstream = upstream
	t.queue.push(Event{Kind: EventConnected})
	t.queue.push(Event{Kind: EventPeerConnected, Peer: HostID})
	t.mu.Unlock()

	go t.writeLoop(upstream)
	t.clientReadLoop(gen, upstream)
}

func (t *WebSocketTransport) clientReadLoop(gen uint64, upstream *wsPeer) {
	conn := upstream.conn
	conn.SetPingHandler(func(data string) error {
		_ = conn.SetReadDeadline(time.Now().Add(3 * t.opts.PingInterval))
		return conn.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(writeWait))
	})
	_ = conn.SetReadDeadline(time.Now().Add(3 * t.opts.PingInterval))
	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			upstream.close()
			t.emit(gen, Event{Kind: EventServerDisconnected, Err: err})
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(3 * t.opts.PingInterval))
		if len(msg) == 0 {
			continue
		}
		switch msg[0] {
		case frameData:
			t.emit(gen, packet(HostID, msg[1:]))
		case framePeerJoined:
			if id, ok := decodePeerFrame(msg, framePeerJoined); ok {
				t.emit(gen, Event{Kind: EventPeerConnected, Peer: id})
			}
		case framePeerLeft:
			if id, ok := decodePeerFrame(msg, framePeerLeft); ok {
				t.emit(gen, Event{Kind: EventPeerDisconnected, Peer: id})
			}
		}
	}
}

// Close stops hosting or drops the upstream connection and discards queued events.
func (t *WebSocketTransport) Close() error {
	t.mu.Lock()
	t.gen++
	var (
		server *http.Server
		peers  []*wsPeer
	)
	switch t.role {
	case wsHost:
		server = t.server
		peers = t.sortedPeersLocked()
	case wsClient:
		if t.cancel != nil {
			t.cancel()
		}
		if t.upstream != nil {
			peers = []*wsPeer{t.upstream}
		}
	}
	t.role = wsIdle
	t.local = Unassigned
	t.listener = nil
	t.server = nil
	t.peers = nil
	t.upstream = nil
	t.cancel = nil
	t.queue.reset()
	t.mu.Unlock()

	for _, peer := range peers {
		peer.close()
	}
	if server != nil {
		return server.Close()
	}
	return nil
}

// Send frames payload as a data message.
func (t *WebSocketTransport) Send(to PeerID, payload []byte) error {
	frame := append([]byte{frameData}, payload...)
	t.mu.Lock()
	defer t.mu.Unlock()
	switch t.role {
	case wsHost:
		if to == Broadcast {
			for _, peer := range t.sortedPeersLocked() {
				t.enqueueFrameLocked(peer, frame)
			}
			return nil
		}
		peer, ok := t.peers[to]
		if !ok {
			return fmt.Errorf("send to %d: %w", to, ErrUnknownPeer)
		}
		t.enqueueFrameLocked(peer, frame)
		return nil
	case wsClient:
		if t.upstream == nil {
			return ErrNotOpen
		}
		if to != HostID {
			return ErrNotRoutable
		}
		t.enqueueFrameLocked(t.upstream, frame)
		return nil
	default:
		return ErrNotOpen
	}
}

// Drain returns queued events.
func (t *WebSocketTransport) Drain() []Event {
	return t.queue.drain()
}

// LocalID reports the assigned identity.
func (t *WebSocketTransport) LocalID() PeerID {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.local
}

// enqueueFrameLocked hands a frame to the peer's writer, dropping peers whose
// buffer is full rather than blocking the simulation goroutine.
func (t *WebSocketTransport) enqueueFrameLocked(peer *wsPeer, frame []byte) {
	select {
	case <-peer.done:
	case peer.send <- frame:
	default:
		t.log.Warn("peer send buffer full, disconnecting", logging.Int32("peer", int32(peer.id)))
		peer.close()
	}
}

func (t *WebSocketTransport) emit(gen uint64, ev Event) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.gen != gen {
		return
	}
	t.queue.push(ev)
}

func (t *WebSocketTransport) sortedPeersLocked() []*wsPeer {
	out := make([]*wsPeer, 0, len(t.peers))
	for _, peer := range t.peers {
		out = append(out, peer)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].id < out[j].id })
	return out
}

func decodePeerFrame(msg []byte, want byte) (PeerID, bool) {
	if len(msg) < 2 || msg[0] != want {
		return 0, false
	}
	value, n := protowire.ConsumeVarint(msg[1:])
	if n < 0 || value > uint64(1<<31-1) {
		return 0, false
	}
	return PeerID(value), true
}

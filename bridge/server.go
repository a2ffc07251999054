package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/julienschmidt/httprouter"
	"go.uber.org/zap"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"
)

// Handler is the callable registered for a method. Params arrive already
// JSON-decoded. A handler either returns an immediate result, an error carried
// back as a handler-error response, or a *Deferred whose response is sent once
// it completes.
type Handler func(params any) (any, error)

// Server is the target-side dispatcher. It accepts peer connections over an
// HTTP server and processes their inbound frames from a cooperative tick loop
// meant to be driven by the host application's own frame tick. Handlers run on
// the tick goroutine; only deferred completions leave it.
type Server struct {
	log *zap.SugaredLogger

	listenAddr string

	mu       sync.Mutex
	handlers map[string]Handler
	tickFns  []func()
	started  bool

	httpServer *http.Server
	listener   net.Listener

	incoming chan *peer

	// peers is owned by the tick loop and must only be touched from Tick.
	peers map[string]*peer
}

type ServerOption func(s *Server)

func WithListenAddr(addr string) ServerOption {
	return func(s *Server) {
		s.listenAddr = addr
	}
}

func WithServerLogger(l *zap.Logger) ServerOption {
	return func(s *Server) {
		s.log = l.Named("bridge_server").Sugar()
	}
}

func NewServer(opts ...ServerOption) (*Server, error) {
	logger, err := zap.NewDevelopment()
	if err != nil {
		return nil, fmt.Errorf("building logger: %w", err)
	}
	s := &Server{
		log:        logger.Named("bridge_server").Sugar(),
		listenAddr: "127.0.0.1:9080",
		handlers:   map[string]Handler{},
		incoming:   make(chan *peer, 16),
		peers:      map[string]*peer{},
	}
	for _, o := range opts {
		o(s)
	}
	return s, nil
}

// RegisterHandler installs the callable for a method name. The registry is
// fixed once the server starts; late registrations are ignored.
func (s *Server) RegisterHandler(method string, h Handler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		s.log.Warnw("ignoring handler registered after start", "Method", method)
		return
	}
	s.handlers[method] = h
}

// OnTick installs a hook invoked at the end of every tick, after inbound
// frames have been dispatched. Hosts use this to advance frame state and
// resolve deferred results. Fixed once the server starts.
func (s *Server) OnTick(f func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		s.log.Warn("ignoring tick hook registered after start")
		return
	}
	s.tickFns = append(s.tickFns, f)
}

// Start begins listening and accepting peer connections. Frames are not
// processed until the host drives Tick or Run.
func (s *Server) Start() error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return errors.New("server already started")
	}
	s.started = true
	s.mu.Unlock()

	listener, err := net.Listen("tcp", s.listenAddr)
	if err != nil {
		s.mu.Lock()
		s.started = false
		s.mu.Unlock()
		return fmt.Errorf("listening TCP: %w", err)
	}
	s.listener = listener

	router := httprouter.New()
	router.GET("/bridge", s.bridgeWS)
	router.GET("/healthz", s.healthz)

	s.httpServer = &http.Server{Handler: router}
	go func() {
		err := s.httpServer.Serve(listener)
		if !errors.Is(err, http.ErrServerClosed) {
			s.log.Debugf("HTTP server stopped: %s", err)
		}
	}()

	s.log.Debugw("listening", "Addr", listener.Addr().String())
	return nil
}

// Addr returns the bound listen address. Only valid after Start.
func (s *Server) Addr() string {
	return s.listener.Addr().String()
}

// Run starts the server and drives the tick loop itself, for hosts without a
// frame loop of their own. It returns when the context is done.
func (s *Server) Run(ctx context.Context, tickInterval time.Duration) error {
	if err := s.Start(); err != nil {
		return err
	}
	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return s.Stop()
		case <-ticker.C:
			s.Tick()
		}
	}
}

func (s *Server) Stop() error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Close()
}

func (s *Server) healthz(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	w.Header().Add("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}

// bridgeWS upgrades an inbound connection and hands the peer to the tick loop.
// The HTTP handler parks until the peer closes so the hijacked connection
// stays valid.
func (s *Server) bridgeWS(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	wsConn, err := websocket.Accept(w, r, nil)
	if err != nil {
		s.log.Debugf("bridge WebSocket accept error: %s", err)
		return
	}

	p := newPeer(s.log, wsConn)
	select {
	case s.incoming <- p:
	default:
		s.log.Debugw("accept queue full, rejecting peer", "Peer", p.id)
		p.shutdown(websocket.StatusTryAgainLater, "accept queue full")
		return
	}

	s.log.Debugw("accepted peer", "Peer", p.id)
	<-p.closed
}

// Tick runs one scheduling step: admit newly accepted peers, dispatch every
// frame that has arrived since the last tick, run tick hooks, and reap peers
// whose transport has closed. It must be called from a single goroutine.
func (s *Server) Tick() {
	for admitting := true; admitting; {
		select {
		case p := <-s.incoming:
			s.peers[p.id] = p
		default:
			admitting = false
		}
	}

	for _, p := range s.peers {
		s.drainFrames(p)
	}

	for _, f := range s.tickFns {
		f()
	}

	for id, p := range s.peers {
		select {
		case <-p.closed:
			// Drain frames queued before the close so the peer passes through
			// closing before removal; responses for them fail to send and are
			// dropped.
			s.drainFrames(p)
			s.log.Debugw("reaping closed peer", "Peer", id)
			delete(s.peers, id)
		default:
		}
	}
}

func (s *Server) drainFrames(p *peer) {
	for {
		select {
		case frame := <-p.frames:
			s.dispatch(p, frame)
		default:
			return
		}
	}
}

// NumPeers reports the size of the active peer set. Owned by the tick loop;
// call it only from the goroutine driving Tick, or between ticks in tests.
func (s *Server) NumPeers() int {
	return len(s.peers)
}

// dispatch decodes one inbound frame and invokes the registered handler.
// Decode and validation failures are reported to the offending peer with the
// reserved error codes; they never affect other peers or calls.
func (s *Server) dispatch(p *peer, frame []byte) {
	var req rawRequest
	if err := json.Unmarshal(frame, &req); err != nil {
		p.send(&Response{ID: sentinelID, Error: &ResponseError{
			Code:    CodeParseError,
			Message: fmt.Sprintf("Parse error: %s", err),
		}})
		return
	}
	if req.Method == nil || *req.Method == "" {
		p.send(&Response{ID: req.ID, Error: &ResponseError{
			Code:    CodeInvalidRequest,
			Message: "Invalid request: missing method",
		}})
		return
	}
	method := *req.Method

	handler, ok := s.handlers[method]
	if !ok {
		p.send(&Response{ID: req.ID, Error: &ResponseError{
			Code:    CodeMethodNotFound,
			Message: fmt.Sprintf("Method not found: %s", method),
		}})
		return
	}

	result, err := handler(req.Params)
	if err != nil {
		p.send(&Response{ID: req.ID, Error: &ResponseError{
			Code:    CodeHandlerError,
			Message: err.Error(),
		}})
		return
	}

	if d, ok := result.(*Deferred); ok {
		// Await the deferred off the tick goroutine so neither this peer's
		// later frames nor other peers are held up.
		go s.sendWhenDone(p, req.ID, d)
		return
	}

	p.send(&Response{ID: req.ID, Result: result})
}

func (s *Server) sendWhenDone(p *peer, id string, d *Deferred) {
	select {
	case <-d.Done():
	case <-p.closed:
		s.log.Debugw("peer closed before deferred result completed", "Peer", p.id, "ID", id)
		return
	}
	result, err := d.outcome()
	if err != nil {
		p.send(&Response{ID: id, Error: &ResponseError{Code: CodeHandlerError, Message: err.Error()}})
		return
	}
	p.send(&Response{ID: id, Result: result})
}

// peer is one accepted controller connection.
type peer struct {
	id   string
	log  *zap.SugaredLogger
	conn *websocket.Conn

	ctx    context.Context
	cancel func()

	frames chan []byte
	closed chan struct{}

	writeMu   sync.Mutex
	closeOnce sync.Once
}

func newPeer(log *zap.SugaredLogger, conn *websocket.Conn) *peer {
	ctx, cancel := context.WithCancel(context.Background())
	p := &peer{
		id:     uuid.NewString(),
		log:    log.Named("peer"),
		conn:   conn,
		ctx:    ctx,
		cancel: cancel,
		frames: make(chan []byte, 64),
		closed: make(chan struct{}),
	}
	go p.readFrames()
	return p
}

func (p *peer) readFrames() {
	for {
		_, data, err := p.conn.Read(p.ctx)
		if err != nil {
			p.log.Debugf("peer read ended: %s", err)
			p.shutdown(websocket.StatusNormalClosure, "")
			return
		}
		select {
		case p.frames <- data:
		case <-p.ctx.Done():
			return
		}
	}
}

func (p *peer) send(resp *Response) {
	p.writeMu.Lock()
	defer p.writeMu.Unlock()
	if err := wsjson.Write(p.ctx, p.conn, resp); err != nil {
		p.log.Debugf("error sending response: %s", err)
	}
}

func (p *peer) shutdown(code websocket.StatusCode, reason string) {
	p.closeOnce.Do(func() {
		_ = p.conn.Close(code, reason)
		p.cancel()
		close(p.closed)
	})
}

/*
 * Copyright (c) 2026 Firefly Software Solutions Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

/*
Package server implements the TopicMQ TCP listener and event loop.

ARCHITECTURE OVERVIEW:
======================

	acceptLoop ──▶ serveConn (one per connection) ──events──▶ loop ──▶ broker.Broker
	                 │ handshake (JSON CONNECT)                   │
	                 └ read frames, decode with session codec     └ fan-out writes

Readers never touch the broker. They post events (register, message, closed)
onto a single channel, and the loop goroutine applies them one at a time.
The broker, its session registry and its topic tree are therefore owned by
exactly one goroutine. Events from one connection keep their order because a
single reader posts them.

HANDSHAKE:
==========
The first frame on every connection must be a JSON-encoded CONNECT naming a
negotiable codec. It is bounded by handshake_timeout_ms. On any failure the
connection is closed without a reply.

SHUTDOWN:
=========
Stop closes stopCh and the listener, closes every tracked connection so that
readers unblock, waits for them, and lets the loop unregister all sessions.
*/
package server

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"topicmq/internal/broker"
	"topicmq/internal/codec"
	"topicmq/internal/config"
	"topicmq/internal/crypto"
	"topicmq/internal/logging"
	"topicmq/internal/metrics"
	"topicmq/internal/protocol"
)

// Server errors.
var (
	ErrServerClosed   = errors.New("server closed")
	ErrHandshake      = errors.New("handshake failed")
	ErrAlreadyStarted = errors.New("server already started")
)

// Transport names reported in logs and metrics.
const (
	TransportTCP = "tcp"
	TransportWS  = "ws"
)

type readDeadliner interface {
	SetReadDeadline(t time.Time) error
}

type eventKind int

const (
	evRegister eventKind = iota
	evMessage
	evClosed
	evCall
)

// event is the only way readers talk to the loop.
type event struct {
	kind eventKind

	// evRegister
	codec  string
	remote string
	conn   broker.Conn
	reply  chan registration

	// evMessage, evClosed
	session *broker.Session
	msg     protocol.Message
	reason  string

	// evCall
	fn   func(*broker.Broker)
	done chan struct{}
}

type registration struct {
	session *broker.Session
	err     error
}

// Server accepts connections and feeds them to a single broker event loop.
type Server struct {
	config  *config.Config
	broker  *broker.Broker
	metrics *metrics.Metrics

	logger  *logging.Logger
	connLog *logging.ConnectionLogger
	errLog  *logging.ErrorLogger

	ln        net.Listener
	tlsConfig *tls.Config

	events   chan event
	stopCh   chan struct{}
	loopDone chan struct{}
	wg       sync.WaitGroup

	mu       sync.Mutex
	started  bool
	stopped  bool
	conns    map[io.Closer]struct{}
	stopOnce sync.Once
}

// NewServer builds a server from cfg. m may be nil.
func NewServer(cfg *config.Config, m *metrics.Metrics) (*Server, error) {
	codecs, err := codec.Default().Subset(cfg.Codecs)
	if err != nil {
		return nil, fmt.Errorf("server: %w", err)
	}
	queue := cfg.EventQueueSize
	if queue <= 0 {
		queue = 1
	}

	logger := logging.NewLogger("server")
	return &Server{
		config: cfg,
		broker: broker.NewBroker(broker.Options{
			Codecs:       codecs,
			WriteTimeout: cfg.WriteTimeout(),
			Metrics:      m,
		}),
		metrics:  m,
		logger:   logger,
		connLog:  logging.NewConnectionLogger(logger),
		errLog:   logging.NewErrorLogger(logger),
		events:   make(chan event, queue),
		stopCh:   make(chan struct{}),
		loopDone: make(chan struct{}),
		conns:    make(map[io.Closer]struct{}),
	}, nil
}

// Start opens the listener and runs the accept loop and the event loop.
// It returns once the listener is bound.
func (s *Server) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return ErrServerClosed
	}
	if s.started {
		return ErrAlreadyStarted
	}

	ln, err := net.Listen("tcp", s.config.BindAddr)
	if err != nil {
		return err
	}
	if s.config.IsTLSEnabled() {
		clientAuth, err := crypto.ParseClientAuth(s.config.Security.TLSClientAuth)
		if err != nil {
			ln.Close()
			return err
		}
		tlsCfg, err := crypto.NewServerTLSConfig(crypto.TLSConfig{
			CertFile:   s.config.Security.TLSCertFile,
			KeyFile:    s.config.Security.TLSKeyFile,
			CAFile:     s.config.Security.TLSCAFile,
			ClientAuth: clientAuth,
		})
		if err != nil {
			ln.Close()
			return fmt.Errorf("failed to configure TLS: %w", err)
		}
		s.tlsConfig = tlsCfg
		ln = tls.NewListener(ln, tlsCfg)
		s.logger.Info("Server started with TLS", "addr", ln.Addr().String())
	} else {
		s.logger.Info("Server started", "addr", ln.Addr().String())
	}

	s.ln = ln
	s.started = true

	go s.loop()
	s.wg.Add(1)
	go s.acceptLoop()
	return nil
}

// Addr returns the bound listener address, or nil before Start.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln == nil {
		return nil
	}
	return s.ln.Addr()
}

// IsTLS reports whether the listener terminates TLS.
func (s *Server) IsTLS() bool {
	return s.tlsConfig != nil
}

// TLSConfig returns the listener's TLS configuration, or nil. The WebSocket
// gateway reuses it so both transports present the same certificate.
func (s *Server) TLSConfig() *tls.Config {
	return s.tlsConfig
}

// Attach hands an already established stream to the server, which must be
// started. The server owns rwc from here on and closes it when the peer
// disconnects or on Stop.
// The WebSocket gateway uses this to share the event loop with TCP clients.
func (s *Server) Attach(rwc io.ReadWriteCloser, remote, transport string) error {
	if !s.track(rwc) {
		rwc.Close()
		return ErrServerClosed
	}
	go s.serveConn(rwc, remote, transport)
	return nil
}

// Do runs fn on the event loop goroutine with exclusive access to the broker
// and waits for it to finish.
func (s *Server) Do(ctx context.Context, fn func(*broker.Broker)) error {
	select {
	case <-s.stopCh:
		return ErrServerClosed
	default:
	}
	done := make(chan struct{})
	select {
	case s.events <- event{kind: evCall, fn: fn, done: done}:
	case <-s.stopCh:
		return ErrServerClosed
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-done:
		return nil
	case <-s.loopDone:
		select {
		case <-done:
			return nil
		default:
			return ErrServerClosed
		}
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stop shuts the server down and waits for every connection goroutine.
// It is safe to call more than once.
func (s *Server) Stop() error {
	s.stopOnce.Do(func() {
		s.mu.Lock()
		s.stopped = true
		started := s.started
		close(s.stopCh)
		if s.ln != nil {
			s.ln.Close()
		}
		for c := range s.conns {
			c.Close()
		}
		s.mu.Unlock()

		s.wg.Wait()
		if started {
			<-s.loopDone
		} else {
			s.broker.Close()
		}
		s.logger.Info("Server stopped")
	})
	return nil
}

func (s *Server) acceptLoop() {
	defer s.wg.Done()
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			select {
			case <-s.stopCh:
				return
			default:
			}
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				continue
			}
			if errors.Is(err, net.ErrClosed) {
				return
			}
			s.logger.Error("Accept error", "error", err)
			continue
		}

		if tcpConn, ok := conn.(*net.TCPConn); ok {
			tcpConn.SetNoDelay(true)
			tcpConn.SetKeepAlive(true)
			tcpConn.SetKeepAlivePeriod(30 * time.Second)
		}
		if err := s.Attach(conn, conn.RemoteAddr().String(), TransportTCP); err != nil {
			return
		}
	}
}

// serveConn is the reader for one connection.
func (s *Server) serveConn(rwc io.ReadWriteCloser, remote, transport string) {
	defer s.wg.Done()
	defer s.untrack(rwc)

	s.metrics.ConnectionAccepted(transport)
	s.connLog.LogNewConnection(remote, transport, transport == TransportTCP && s.IsTLS())

	session, err := s.handshake(rwc, remote)
	if err != nil {
		rwc.Close()
		if !errors.Is(err, ErrServerClosed) {
			s.connLog.LogHandshakeFailed(remote, err)
		}
		return
	}

	for {
		msg, err := protocol.Receive(rwc, session.Codec)
		if err != nil {
			s.post(event{kind: evClosed, session: session, reason: s.closeReason(err)})
			return
		}
		if !s.post(event{kind: evMessage, session: session, msg: msg}) {
			return
		}
	}
}

// handshake reads the CONNECT frame and registers the connection with the loop.
func (s *Server) handshake(rwc io.ReadWriteCloser, remote string) (*broker.Session, error) {
	if timeout := s.config.HandshakeTimeout(); timeout > 0 {
		if d, ok := rwc.(readDeadliner); ok {
			d.SetReadDeadline(time.Now().Add(timeout))
			defer d.SetReadDeadline(time.Time{})
		}
	}

	msg, err := protocol.Receive(rwc, codec.JSON{})
	if err != nil {
		s.metrics.HandshakeFailed(handshakeReason(err))
		return nil, fmt.Errorf("%w: %w", ErrHandshake, err)
	}
	connect, ok := msg.(protocol.Connect)
	if !ok {
		s.metrics.HandshakeFailed("unexpected_command")
		return nil, fmt.Errorf("%w: expected %s, got %s", ErrHandshake, protocol.CmdConnect, msg.Command())
	}

	reply := make(chan registration, 1)
	if !s.post(event{kind: evRegister, codec: connect.Codec, remote: remote, conn: rwc, reply: reply}) {
		return nil, ErrServerClosed
	}
	var r registration
	select {
	case r = <-reply:
	case <-s.stopCh:
		return nil, ErrServerClosed
	}
	if r.err != nil {
		s.metrics.HandshakeFailed("unknown_codec")
		return nil, fmt.Errorf("%w: %w", ErrHandshake, r.err)
	}
	return r.session, nil
}

// post delivers ev to the loop. It returns false once the server is stopping.
func (s *Server) post(ev event) bool {
	select {
	case s.events <- ev:
		return true
	case <-s.stopCh:
		return false
	}
}

// loop is the only goroutine that touches the broker.
func (s *Server) loop() {
	defer close(s.loopDone)
	for {
		select {
		case ev := <-s.events:
			s.handle(ev)
		case <-s.stopCh:
			s.broker.Close()
			return
		}
	}
}

func (s *Server) handle(ev event) {
	switch ev.kind {
	case evRegister:
		session, err := s.broker.Register(ev.codec, ev.remote, ev.conn)
		ev.reply <- registration{session: session, err: err}

	case evMessage:
		if err := s.broker.Dispatch(ev.session, ev.msg); err != nil {
			if errors.Is(err, broker.ErrSessionNotFound) {
				return
			}
			s.logger.Warn("Closing connection after rejected message",
				"session", ev.session.ID.String(), "command", string(ev.msg.Command()), "error", err)
			s.broker.Unregister(ev.session, "protocol error")
		}

	case evClosed:
		s.broker.Unregister(ev.session, ev.reason)

	case evCall:
		ev.fn(s.broker)
		close(ev.done)
	}
}

func (s *Server) closeReason(err error) string {
	switch {
	case errors.Is(err, io.EOF):
		return "client disconnect"
	case errors.Is(err, protocol.ErrBadFormat):
		s.metrics.BadFrame()
		s.errLog.LogError(err, "read frame", nil)
		return "bad format"
	default:
		return "read error"
	}
}

func handshakeReason(err error) string {
	var ne net.Error
	switch {
	case errors.As(err, &ne) && ne.Timeout():
		return "timeout"
	case errors.Is(err, io.EOF):
		return "eof"
	case errors.Is(err, protocol.ErrBadFormat):
		return "bad_format"
	default:
		return "read_error"
	}
}

func (s *Server) track(c io.Closer) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return false
	}
	s.conns[c] = struct{}{}
	s.wg.Add(1)
	return true
}

func (s *Server) untrack(c io.Closer) {
	s.mu.Lock()
	delete(s.conns, c)
	s.mu.Unlock()
}

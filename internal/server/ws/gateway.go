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

// Package ws provides a WebSocket gateway for TopicMQ.
//
// A WebSocket peer speaks exactly the TCP protocol: length-prefixed frames
// starting with a JSON CONNECT. Binary (or text) messages are concatenated
// into one byte stream, so a frame may span messages. Every frame the broker
// sends goes out as one binary message.
//
// The gateway does not route anything itself. Each upgraded connection is
// handed to an Attacher (the TCP server) and shares its event loop.
package ws

import (
	"context"
	"crypto/tls"
	"errors"
	"io"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"topicmq/internal/config"
	"topicmq/internal/logging"
)

// Default configuration values for the WebSocket gateway.
const (
	DefaultReadBufferSize  = 4096
	DefaultWriteBufferSize = 4096
	// DefaultPingInterval is the interval for sending ping frames.
	DefaultPingInterval = 30 * time.Second
	// DefaultPongTimeout is how long past a missed ping the peer is still trusted.
	DefaultPongTimeout = 10 * time.Second
	// DefaultControlTimeout bounds ping and close frames.
	DefaultControlTimeout = 10 * time.Second
)

// Transport is the name the gateway reports to the Attacher.
const Transport = "ws"

// Attacher accepts an established stream for the broker event loop.
type Attacher interface {
	Attach(rwc io.ReadWriteCloser, remote, transport string) error
}

// createUpgrader creates a WebSocket upgrader. An empty allowedOrigins list
// or a "*" entry allows every origin.
func createUpgrader(allowedOrigins []string) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  DefaultReadBufferSize,
		WriteBufferSize: DefaultWriteBufferSize,
		CheckOrigin: func(r *http.Request) bool {
			if len(allowedOrigins) == 0 {
				return true
			}
			origin := r.Header.Get("Origin")
			if origin == "" {
				// not a browser
				return true
			}
			for _, allowed := range allowedOrigins {
				if allowed == "*" || strings.EqualFold(origin, allowed) {
					return true
				}
			}
			return false
		},
	}
}

// stream adapts a websocket.Conn to io.ReadWriteCloser.
//
// Read is only called from the connection's reader goroutine and Write only
// from the broker loop. Pings go through WriteControl, which gorilla allows
// concurrently with the other methods.
type stream struct {
	conn   *websocket.Conn
	reader io.Reader

	mu       sync.Mutex
	lastPong time.Time

	pingInterval time.Duration
	done         chan struct{}
	closeOnce    sync.Once
}

func newStream(conn *websocket.Conn, pingInterval time.Duration) *stream {
	s := &stream{
		conn:         conn,
		lastPong:     time.Now(),
		pingInterval: pingInterval,
		done:         make(chan struct{}),
	}
	conn.SetPongHandler(func(string) error {
		s.mu.Lock()
		s.lastPong = time.Now()
		s.mu.Unlock()
		return nil
	})
	if pingInterval > 0 {
		go s.pingLoop()
	}
	return s
}

func (s *stream) Read(p []byte) (int, error) {
	for {
		if s.reader == nil {
			_, r, err := s.conn.NextReader()
			if err != nil {
				if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) {
					return 0, io.EOF
				}
				return 0, err
			}
			s.reader = r
		}
		n, err := s.reader.Read(p)
		if errors.Is(err, io.EOF) {
			s.reader = nil
			if n > 0 {
				return n, nil
			}
			continue
		}
		return n, err
	}
}

func (s *stream) Write(p []byte) (int, error) {
	if err := s.conn.WriteMessage(websocket.BinaryMessage, p); err != nil {
		return 0, err
	}
	return len(p), nil
}

func (s *stream) SetReadDeadline(t time.Time) error {
	return s.conn.SetReadDeadline(t)
}

func (s *stream) SetWriteDeadline(t time.Time) error {
	return s.conn.SetWriteDeadline(t)
}

// Close sends a close frame and closes the underlying connection.
func (s *stream) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.done)
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		_ = s.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(DefaultControlTimeout))
		err = s.conn.Close()
	})
	return err
}

// pingLoop sends periodic pings and closes the stream when pongs stop.
func (s *stream) pingLoop() {
	ticker := time.NewTicker(s.pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			s.mu.Lock()
			stale := time.Since(s.lastPong) > s.pingInterval+DefaultPongTimeout
			s.mu.Unlock()
			if stale {
				s.conn.Close()
				return
			}
			if err := s.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(DefaultControlTimeout)); err != nil {
				return
			}
		}
	}
}

// Gateway upgrades HTTP requests on the configured path and attaches the
// resulting streams to the broker.
type Gateway struct {
	config       config.WSConfig
	target       Attacher
	tlsConfig    *tls.Config
	logger       *logging.Logger
	upgrader     websocket.Upgrader
	pingInterval time.Duration

	mu     sync.Mutex
	server *http.Server
	ln     net.Listener
}

// NewGateway creates a gateway. tlsConfig may be nil for plain ws://.
func NewGateway(cfg config.WSConfig, target Attacher, tlsConfig *tls.Config) *Gateway {
	if cfg.Path == "" {
		cfg.Path = "/ws"
	}
	return &Gateway{
		config:       cfg,
		target:       target,
		tlsConfig:    tlsConfig,
		logger:       logging.NewLogger("ws"),
		upgrader:     createUpgrader(cfg.AllowedOrigins),
		pingInterval: DefaultPingInterval,
	}
}

// Handler returns the HTTP handler serving the gateway path.
func (g *Gateway) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc(g.config.Path, g.handleWebSocket)
	return mux
}

// Start binds the listener and serves in the background.
func (g *Gateway) Start() error {
	ln, err := net.Listen("tcp", g.config.Addr)
	if err != nil {
		return err
	}
	if g.tlsConfig != nil {
		ln = tls.NewListener(ln, g.tlsConfig)
	}

	server := &http.Server{
		Handler:           g.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	g.mu.Lock()
	g.server = server
	g.ln = ln
	g.mu.Unlock()

	g.logger.Info("WebSocket gateway listening", "addr", ln.Addr().String(), "path", g.config.Path, "tls", g.tlsConfig != nil)
	go func() {
		if err := server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			g.logger.Error("WebSocket server failed", "error", err)
		}
	}()
	return nil
}

// Addr returns the bound address, or nil before Start.
func (g *Gateway) Addr() net.Addr {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.ln == nil {
		return nil
	}
	return g.ln.Addr()
}

// Stop stops accepting upgrades. Attached streams are closed by the server.
func (g *Gateway) Stop() error {
	g.mu.Lock()
	server := g.server
	g.mu.Unlock()
	if server == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(ctx)
}

func (g *Gateway) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		g.logger.Warn("Failed to upgrade to WebSocket", "remote", r.RemoteAddr, "error", err)
		return
	}

	s := newStream(conn, g.pingInterval)
	if err := g.target.Attach(s, conn.RemoteAddr().String(), Transport); err != nil {
		g.logger.Warn("Rejected WebSocket connection", "remote", conn.RemoteAddr().String(), "error", err)
		s.Close()
	}
}

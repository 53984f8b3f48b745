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

package server

import (
	"context"
	"crypto/tls"
	"errors"
	"io"
	"net"
	"reflect"
	"testing"
	"time"

	"topicmq/internal/broker"
	"topicmq/internal/codec"
	"topicmq/internal/config"
	"topicmq/internal/crypto"
	"topicmq/internal/metrics"
	"topicmq/internal/protocol"
)

func newTestServer(t *testing.T, modify func(*config.Config)) *Server {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.BindAddr = "127.0.0.1:0"
	if modify != nil {
		modify(cfg)
	}
	server, err := NewServer(cfg, metrics.New())
	if err != nil {
		t.Fatalf("NewServer failed: %v", err)
	}
	if err := server.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	t.Cleanup(func() { server.Stop() })
	return server
}

// peer is a raw protocol client used to drive the server.
type peer struct {
	t     *testing.T
	conn  net.Conn
	codec codec.Codec
}

func dialPeer(t *testing.T, s *Server, codecName string) *peer {
	t.Helper()
	conn, err := net.Dial("tcp", s.Addr().String())
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	t.Cleanup(func() { conn.Close() })

	if err := protocol.Send(conn, protocol.Connect{Codec: codecName}, codec.JSON{}); err != nil {
		t.Fatalf("CONNECT failed: %v", err)
	}
	c, err := codec.Default().Lookup(codecName)
	if err != nil {
		t.Fatalf("Lookup(%q) failed: %v", codecName, err)
	}
	return &peer{t: t, conn: conn, codec: c}
}

func (p *peer) send(msg protocol.Message) {
	p.t.Helper()
	if err := protocol.Send(p.conn, msg, p.codec); err != nil {
		p.t.Fatalf("Send(%s) failed: %v", msg.Command(), err)
	}
}

func (p *peer) recv() protocol.Message {
	p.t.Helper()
	p.conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	msg, err := protocol.Receive(p.conn, p.codec)
	if err != nil {
		p.t.Fatalf("Receive failed: %v", err)
	}
	return msg
}

// barrier waits until every message sent so far has been applied, using the
// per-connection ordering of a topic listing.
func (p *peer) barrier() []string {
	p.t.Helper()
	p.send(protocol.RequestListTopics{})
	for {
		if resp, ok := p.recv().(protocol.ResponseListTopics); ok {
			return resp.Topics
		}
	}
}

// expectClosed asserts the server closes the connection without replying.
func expectClosed(t *testing.T, conn net.Conn) {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	buf := make([]byte, 1)
	n, err := conn.Read(buf)
	if n != 0 {
		t.Fatalf("expected no reply, got %d bytes", n)
	}
	var ne net.Error
	if err == nil || (errors.As(err, &ne) && ne.Timeout()) {
		t.Fatalf("expected the server to close the connection, got %v", err)
	}
	if !errors.Is(err, io.EOF) {
		t.Logf("connection closed with %v", err)
	}
}

func sessions(t *testing.T, s *Server) int {
	t.Helper()
	var n int
	if err := s.Do(context.Background(), func(b *broker.Broker) { n = b.Sessions() }); err != nil {
		t.Fatalf("Do failed: %v", err)
	}
	return n
}

func waitFor(t *testing.T, cond func() bool, what string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestServerStartStop(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.BindAddr = "127.0.0.1:0"
	server, err := NewServer(cfg, nil)
	if err != nil {
		t.Fatalf("NewServer failed: %v", err)
	}
	if server.Addr() != nil {
		t.Error("Addr should be nil before Start")
	}
	if err := server.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if err := server.Start(); !errors.Is(err, ErrAlreadyStarted) {
		t.Errorf("second Start = %v, want ErrAlreadyStarted", err)
	}
	if server.IsTLS() {
		t.Error("IsTLS() should be false without TLS config")
	}

	if err := server.Stop(); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	if err := server.Stop(); err != nil {
		t.Fatalf("second Stop failed: %v", err)
	}

	a, b := net.Pipe()
	defer b.Close()
	if err := server.Attach(a, "pipe", TransportTCP); !errors.Is(err, ErrServerClosed) {
		t.Errorf("Attach after Stop = %v, want ErrServerClosed", err)
	}
}

func TestNewServerUnknownCodec(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Codecs = []string{"PICKLE"}
	if _, err := NewServer(cfg, nil); err == nil {
		t.Fatal("expected error for unknown codec")
	}
}

func TestPublishSubscribeAcrossCodecs(t *testing.T) {
	server := newTestServer(t, nil)

	sub := dialPeer(t, server, "JSON")
	pub := dialPeer(t, server, "XML")

	sub.send(protocol.Subscribe{Topic: "/temperature"})
	sub.barrier()

	pub.send(protocol.Publish{Topic: "/temperature/porto", Value: int64(21)})

	got := sub.recv()
	want := protocol.Publish{Topic: "/temperature/porto", Value: int64(21)}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %#v, want %#v", got, want)
	}

	topics := pub.barrier()
	if !reflect.DeepEqual(topics, []string{"/temperature/porto"}) {
		t.Errorf("topics = %v", topics)
	}
}

func TestCancelSubscriptionOverWire(t *testing.T) {
	server := newTestServer(t, nil)

	sub := dialPeer(t, server, "PROTOBUF")
	pub := dialPeer(t, server, "GOB")

	sub.send(protocol.Subscribe{Topic: "/a"})
	sub.send(protocol.CancelSubscription{Topic: "/a"})
	sub.barrier()

	pub.send(protocol.Publish{Topic: "/a/b", Value: "x"})
	pub.barrier()

	// the next frame the subscriber sees is its own listing, not the publish
	sub.send(protocol.RequestListTopics{})
	got := sub.recv()
	if !reflect.DeepEqual(got, protocol.ResponseListTopics{Topics: []string{"/a/b"}}) {
		t.Errorf("got %#v", got)
	}
}

func TestHandshakeUnknownCodec(t *testing.T) {
	server := newTestServer(t, nil)

	conn, err := net.Dial("tcp", server.Addr().String())
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	defer conn.Close()

	if err := protocol.Send(conn, protocol.Connect{Codec: "PICKLE"}, codec.JSON{}); err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	expectClosed(t, conn)
	if n := sessions(t, server); n != 0 {
		t.Errorf("sessions = %d, want 0", n)
	}
}

func TestHandshakeRestrictedCodecs(t *testing.T) {
	server := newTestServer(t, func(c *config.Config) { c.Codecs = []string{"JSON"} })

	conn, err := net.Dial("tcp", server.Addr().String())
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	defer conn.Close()

	protocol.Send(conn, protocol.Connect{Codec: "GOB"}, codec.JSON{})
	expectClosed(t, conn)
}

func TestHandshakeRequiresConnect(t *testing.T) {
	server := newTestServer(t, nil)

	conn, err := net.Dial("tcp", server.Addr().String())
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	defer conn.Close()

	protocol.Send(conn, protocol.Subscribe{Topic: "/a"}, codec.JSON{})
	expectClosed(t, conn)
}

func TestHandshakeMustBeJSON(t *testing.T) {
	server := newTestServer(t, nil)

	conn, err := net.Dial("tcp", server.Addr().String())
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	defer conn.Close()

	protocol.Send(conn, protocol.Connect{Codec: "XML"}, codec.XML{})
	expectClosed(t, conn)
}

func TestHandshakeTimeout(t *testing.T) {
	server := newTestServer(t, func(c *config.Config) { c.HandshakeTimeoutMs = 100 })

	conn, err := net.Dial("tcp", server.Addr().String())
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	defer conn.Close()

	expectClosed(t, conn)
}

func TestBadFrameClosesOnlyThatConnection(t *testing.T) {
	server := newTestServer(t, nil)

	good := dialPeer(t, server, "JSON")
	good.send(protocol.Subscribe{Topic: "/t"})
	good.barrier()

	bad := dialPeer(t, server, "JSON")
	bad.conn.Write([]byte{0x00, 0x03, '{', '{', '{'})
	expectClosed(t, bad.conn)

	pub := dialPeer(t, server, "JSON")
	pub.send(protocol.Publish{Topic: "/t", Value: true})
	if got := good.recv(); !reflect.DeepEqual(got, protocol.Publish{Topic: "/t", Value: true}) {
		t.Errorf("good subscriber got %#v", got)
	}
}

func TestInvalidTopicClosesConnection(t *testing.T) {
	server := newTestServer(t, nil)

	p := dialPeer(t, server, "JSON")
	p.send(protocol.Subscribe{Topic: "/"})
	expectClosed(t, p.conn)
}

func TestDisconnectUnregisters(t *testing.T) {
	server := newTestServer(t, nil)

	p := dialPeer(t, server, "JSON")
	p.send(protocol.Subscribe{Topic: "/a"})
	p.barrier()
	if n := sessions(t, server); n != 1 {
		t.Fatalf("sessions = %d, want 1", n)
	}

	p.conn.Close()
	waitFor(t, func() bool { return sessions(t, server) == 0 }, "session cleanup")
}

func TestAttachPipe(t *testing.T) {
	server := newTestServer(t, nil)

	client, srv := net.Pipe()
	defer client.Close()
	if err := server.Attach(srv, "pipe", TransportWS); err != nil {
		t.Fatalf("Attach failed: %v", err)
	}

	p := &peer{t: t, conn: client, codec: codec.JSON{}}
	p.send(protocol.Connect{Codec: "JSON"})
	p.send(protocol.Subscribe{Topic: "/pipe"})
	p.send(protocol.Publish{Topic: "/pipe/x", Value: "self"})

	if got := p.recv(); !reflect.DeepEqual(got, protocol.Publish{Topic: "/pipe/x", Value: "self"}) {
		t.Errorf("got %#v", got)
	}
}

func TestStopClosesClients(t *testing.T) {
	server := newTestServer(t, nil)

	p := dialPeer(t, server, "JSON")
	p.barrier()
	pending, err := net.Dial("tcp", server.Addr().String())
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	defer pending.Close()

	done := make(chan struct{})
	go func() {
		server.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("Stop did not return")
	}

	expectClosed(t, p.conn)
	expectClosed(t, pending)
	if err := server.Do(context.Background(), func(*broker.Broker) {}); !errors.Is(err, ErrServerClosed) {
		t.Errorf("Do after Stop = %v, want ErrServerClosed", err)
	}
}

func TestServerTLS(t *testing.T) {
	certFile, keyFile, err := crypto.GenerateSelfSigned(t.TempDir(), []string{"127.0.0.1"}, time.Hour)
	if err != nil {
		t.Fatalf("GenerateSelfSigned failed: %v", err)
	}
	server := newTestServer(t, func(c *config.Config) {
		c.Security.TLSEnabled = true
		c.Security.TLSCertFile = certFile
		c.Security.TLSKeyFile = keyFile
	})
	if !server.IsTLS() || server.TLSConfig() == nil {
		t.Fatal("IsTLS() should be true")
	}

	tlsCfg, err := crypto.NewClientTLSConfig(crypto.TLSConfig{CAFile: certFile})
	if err != nil {
		t.Fatalf("NewClientTLSConfig failed: %v", err)
	}
	conn, err := tls.Dial("tcp", server.Addr().String(), tlsCfg)
	if err != nil {
		t.Fatalf("tls.Dial failed: %v", err)
	}
	defer conn.Close()

	p := &peer{t: t, conn: conn, codec: codec.JSON{}}
	p.send(protocol.Connect{Codec: "JSON"})
	if topics := p.barrier(); len(topics) != 0 {
		t.Errorf("topics = %v, want none", topics)
	}
}

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
Package client provides the TopicMQ Go client library.

QUICK START:
============

	// Connect and declare the codec used after the handshake
	c, err := client.NewClientWithOptions("localhost:5000", client.ClientOptions{Codec: "XML"})
	defer c.Close()

	// Subscribe to a subtree and publish into it
	err = c.Subscribe("/temperature")
	err = c.Publish("/temperature/porto", 21)

	// Wait for the next delivery
	msg, err := c.Receive(ctx)
	fmt.Println(msg.Topic, msg.Value)

QUEUE HANDLES:
==============
Producer and Consumer bind a client to a single topic:

	p, _ := client.NewProducer("localhost:5000", "/temperature/porto", client.ClientOptions{})
	p.Push(21)

	q, _ := client.NewConsumer("localhost:5000", "/temperature", client.ClientOptions{})
	msg, _ := q.Pull(ctx) // subscribes on first use

TLS CONNECTION:
===============

	c, err := client.NewClientWithOptions("localhost:5000", client.ClientOptions{
	    TLSEnabled: true,
	    TLSCAFile:  "/path/to/ca.crt",
	})

THREAD SAFETY:
==============
A Client is safe for concurrent use. Writes are serialized, and a single
background reader demultiplexes deliveries from topic listings.
*/
package client

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"sync"
	"time"

	"topicmq/internal/codec"
	"topicmq/internal/crypto"
	"topicmq/internal/protocol"
	"topicmq/internal/topic"
)

// ErrClosed is returned once the connection to the broker is gone.
var ErrClosed = errors.New("client: connection closed")

// ClientOptions configures the client connection.
type ClientOptions struct {
	// Bootstrap servers tried in order (e.g. "host1:5000,host2:5000")
	BootstrapServers []string

	// Codec declared in the handshake: JSON, XML, GOB or PROTOBUF (default: JSON)
	Codec string

	// TLS configuration
	TLSEnabled            bool   // Enable TLS connection
	TLSCertFile           string // Client certificate file (for mTLS)
	TLSKeyFile            string // Client key file (for mTLS)
	TLSCAFile             string // CA certificate file for server verification
	TLSServerName         string // Override the name checked against the server certificate
	TLSInsecureSkipVerify bool   // Skip server certificate verification (testing only)

	// Connection behavior
	MaxRetries     int // Maximum connection rounds over all servers (default: 3)
	RetryDelayMs   int // Delay between rounds in milliseconds (default: 1000)
	ConnectTimeout int // Connection timeout in seconds (default: 10)
}

// Client is a connection to a TopicMQ broker.
type Client struct {
	servers   []string
	addr      string
	conn      net.Conn
	codec     codec.Codec
	tlsConfig *tls.Config
	opts      ClientOptions

	writeMu sync.Mutex

	// listMu serializes topic listings.
	listMu   sync.Mutex
	listings chan []string

	mu      sync.Mutex
	stale   int // listing responses owed to callers that gave up
	pending []protocol.Publish
	notify  chan struct{}
	err     error

	done      chan struct{}
	closeOnce sync.Once
}

// NewClient creates a client connected to addr using the JSON codec.
func NewClient(addr string) (*Client, error) {
	return NewClientWithOptions(addr, ClientOptions{})
}

// NewClusterClient creates a client that tries each comma-separated server in turn.
func NewClusterClient(bootstrapServers string, opts ClientOptions) (*Client, error) {
	servers := ParseBootstrapServers(bootstrapServers)
	if len(servers) == 0 {
		return nil, fmt.Errorf("no bootstrap servers provided")
	}
	opts.BootstrapServers = servers
	return NewClientWithOptions(servers[0], opts)
}

// ParseBootstrapServers parses a comma-separated list of servers.
func ParseBootstrapServers(servers string) []string {
	var result []string
	for _, s := range strings.Split(servers, ",") {
		s = strings.TrimSpace(s)
		if s != "" {
			result = append(result, s)
		}
	}
	return result
}

// NewClientWithOptions creates a client, performs the handshake and starts
// the background reader.
func NewClientWithOptions(addr string, opts ClientOptions) (*Client, error) {
	if opts.Codec == "" {
		opts.Codec = "JSON"
	}
	if opts.MaxRetries == 0 {
		opts.MaxRetries = 3
	}
	if opts.RetryDelayMs == 0 {
		opts.RetryDelayMs = 1000
	}
	if opts.ConnectTimeout == 0 {
		opts.ConnectTimeout = 10
	}

	c, err := codec.Default().Lookup(opts.Codec)
	if err != nil {
		return nil, err
	}

	servers := opts.BootstrapServers
	if len(servers) == 0 {
		servers = []string{addr}
	}

	client := &Client{
		servers:  servers,
		codec:    c,
		opts:     opts,
		listings: make(chan []string, 1),
		notify:   make(chan struct{}, 1),
		done:     make(chan struct{}),
	}

	if opts.TLSEnabled {
		tlsCfg, err := crypto.NewClientTLSConfig(crypto.TLSConfig{
			CertFile:           opts.TLSCertFile,
			KeyFile:            opts.TLSKeyFile,
			CAFile:             opts.TLSCAFile,
			ServerName:         opts.TLSServerName,
			InsecureSkipVerify: opts.TLSInsecureSkipVerify,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to configure TLS: %w", err)
		}
		client.tlsConfig = tlsCfg
	}

	if err := client.connectWithRetry(); err != nil {
		return nil, err
	}

	// The handshake is always JSON, whatever codec it announces.
	if err := protocol.Send(client.conn, protocol.Connect{Codec: c.Name()}, codec.JSON{}); err != nil {
		client.conn.Close()
		return nil, fmt.Errorf("handshake failed: %w", err)
	}

	go client.readLoop()
	return client, nil
}

// connectWithRetry attempts to connect to any available server.
func (c *Client) connectWithRetry() error {
	var lastErr error

	for attempt := 0; attempt < c.opts.MaxRetries; attempt++ {
		for _, server := range c.servers {
			if err := c.connectToServer(server); err != nil {
				lastErr = err
				continue
			}
			return nil
		}

		if attempt < c.opts.MaxRetries-1 {
			time.Sleep(time.Duration(c.opts.RetryDelayMs) * time.Millisecond)
		}
	}

	return fmt.Errorf("failed to connect to any server after %d attempts: %w", c.opts.MaxRetries, lastErr)
}

// connectToServer connects to a specific server.
func (c *Client) connectToServer(addr string) error {
	var conn net.Conn
	var err error

	dialer := &net.Dialer{
		Timeout: time.Duration(c.opts.ConnectTimeout) * time.Second,
	}

	if c.tlsConfig != nil {
		conn, err = tls.DialWithDialer(dialer, "tcp", addr, c.tlsConfig)
	} else {
		conn, err = dialer.Dial("tcp", addr)
	}

	if err != nil {
		return fmt.Errorf("failed to connect to %s: %w", addr, err)
	}

	c.conn = conn
	c.addr = addr
	return nil
}

// Close closes the client connection. Pending Receive and ListTopics calls
// return ErrClosed.
func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		err = c.conn.Close()
	})
	<-c.done
	if errors.Is(err, net.ErrClosed) {
		return nil
	}
	return err
}

// IsTLS returns true if the client is using TLS.
func (c *Client) IsTLS() bool {
	return c.tlsConfig != nil
}

// Codec returns the name of the codec declared in the handshake.
func (c *Client) Codec() string {
	return c.codec.Name()
}

// CurrentServer returns the address the client is connected to.
func (c *Client) CurrentServer() string {
	return c.addr
}

// Servers returns the bootstrap server list.
func (c *Client) Servers() []string {
	return c.servers
}

// Publish stores value under topicPath and delivers it to every subscriber of
// the path or one of its ancestors.
func (c *Client) Publish(topicPath string, value any) error {
	if _, err := topic.ParsePath(topicPath); err != nil {
		return fmt.Errorf("publish %q: %w", topicPath, err)
	}
	return c.send(protocol.Publish{Topic: topicPath, Value: value})
}

// Subscribe registers interest in topicPath and every topic below it.
func (c *Client) Subscribe(topicPath string) error {
	if _, err := topic.ParsePath(topicPath); err != nil {
		return fmt.Errorf("subscribe %q: %w", topicPath, err)
	}
	return c.send(protocol.Subscribe{Topic: topicPath})
}

// Unsubscribe cancels a subscription made with Subscribe.
func (c *Client) Unsubscribe(topicPath string) error {
	if _, err := topic.ParsePath(topicPath); err != nil {
		return fmt.Errorf("unsubscribe %q: %w", topicPath, err)
	}
	return c.send(protocol.CancelSubscription{Topic: topicPath})
}

// Receive blocks until the next delivery arrives, ctx is done, or the
// connection closes.
func (c *Client) Receive(ctx context.Context) (protocol.Publish, error) {
	for {
		c.mu.Lock()
		if len(c.pending) > 0 {
			msg := c.pending[0]
			c.pending[0] = protocol.Publish{}
			c.pending = c.pending[1:]
			c.mu.Unlock()
			return msg, nil
		}
		err := c.err
		c.mu.Unlock()
		if err != nil {
			return protocol.Publish{}, err
		}

		select {
		case <-c.notify:
		case <-c.done:
		case <-ctx.Done():
			return protocol.Publish{}, ctx.Err()
		}
	}
}

// ListTopics returns every topic that has received a value, in first-publish
// order. Deliveries that arrive meanwhile stay queued for Receive.
func (c *Client) ListTopics(ctx context.Context) ([]string, error) {
	c.listMu.Lock()
	defer c.listMu.Unlock()

	if err := c.send(protocol.RequestListTopics{}); err != nil {
		return nil, err
	}

	select {
	case topics := <-c.listings:
		return topics, nil
	case <-c.done:
		return nil, c.closedErr()
	case <-ctx.Done():
		c.mu.Lock()
		select {
		case <-c.listings:
		default:
			c.stale++
		}
		c.mu.Unlock()
		return nil, ctx.Err()
	}
}

func (c *Client) send(msg protocol.Message) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	select {
	case <-c.done:
		return c.closedErr()
	default:
	}
	if err := protocol.Send(c.conn, msg, c.codec); err != nil {
		return fmt.Errorf("%s: %w", msg.Command(), err)
	}
	return nil
}

// readLoop decodes frames until the connection fails. Deliveries are queued
// without bound so a slow Receive never stalls topic listings.
func (c *Client) readLoop() {
	defer close(c.done)

	for {
		msg, err := protocol.Receive(c.conn, c.codec)
		if err != nil {
			c.fail(err)
			return
		}

		switch m := msg.(type) {
		case protocol.Publish:
			c.mu.Lock()
			c.pending = append(c.pending, m)
			c.mu.Unlock()
			select {
			case c.notify <- struct{}{}:
			default:
			}
		case protocol.ResponseListTopics:
			c.mu.Lock()
			if c.stale > 0 {
				c.stale--
			} else {
				select {
				case c.listings <- m.Topics:
				default:
				}
			}
			c.mu.Unlock()
		default:
			c.fail(fmt.Errorf("unexpected %s from broker: %w", m.Command(), protocol.ErrBadFormat))
			return
		}
	}
}

func (c *Client) fail(err error) {
	if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) {
		err = ErrClosed
	}
	c.mu.Lock()
	if c.err == nil {
		c.err = err
	}
	c.mu.Unlock()
	c.conn.Close()
}

func (c *Client) closedErr() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return c.err
	}
	return ErrClosed
}

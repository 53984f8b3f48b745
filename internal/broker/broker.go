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
Package broker implements the TopicMQ routing core.

ARCHITECTURE OVERVIEW:
======================
The Broker owns three things:

	Broker
	 ├── codecs    (*codec.Registry)  names a client may announce
	 ├── sessions  (map[*Session])    registered connections and their codec
	 └── tree      (*topic.Tree)      topic values and subscribers

CONNECTION LIFECYCLE:
=====================

	Connecting ──CONNECT(codec)──▶ Registered ──EOF / error──▶ Closed

Register creates a Session once the handshake names a known codec.
Unregister removes it exactly once, purges it from every topic node and
closes its connection.

DISPATCH:
=========

	PUBLISH              store value, fan out to subscribers of the topic and its ancestors
	SUBSCRIBE            attach session to topic
	CANCEL_SUBSCRIPTION  detach session from topic
	REQUEST_LIST_TOPICS  reply with every published topic

Every other message is a protocol violation and Dispatch returns an error;
the caller closes the connection.

THREAD SAFETY:
==============
None. The Broker is owned by a single goroutine (the server event loop).
Publish fan-out writes to subscribers synchronously from that goroutine.
*/
package broker

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"

	"topicmq/internal/codec"
	"topicmq/internal/logging"
	"topicmq/internal/metrics"
	"topicmq/internal/protocol"
	"topicmq/internal/topic"
)

// Broker errors.
var (
	ErrUnknownCodec      = codec.ErrUnknownCodec
	ErrUnexpectedCommand = errors.New("unexpected command")
	ErrSessionNotFound   = errors.New("session not registered")
	ErrBrokerClosed      = errors.New("broker closed")
)

// Conn is the write side of a client connection.
type Conn interface {
	io.Writer
	io.Closer
}

type deadlineSetter interface {
	SetWriteDeadline(t time.Time) error
}

// Session is a registered connection.
type Session struct {
	ID          uuid.UUID
	Remote      string
	Codec       codec.Codec
	ConnectedAt time.Time

	conn   Conn
	closed bool
}

// Options configures a Broker.
type Options struct {
	// Codecs lists the codecs a client may announce. Defaults to codec.Default().
	Codecs *codec.Registry

	// WriteTimeout bounds each frame written to a subscriber. Zero means no bound.
	WriteTimeout time.Duration

	Metrics *metrics.Metrics
}

// Broker is the routing context: codec registry, session registry and topic tree.
type Broker struct {
	codecs       *codec.Registry
	writeTimeout time.Duration
	sessions     map[*Session]struct{}
	tree         *topic.Tree[*Session]
	closed       bool

	logger  *logging.Logger
	connLog *logging.ConnectionLogger
	msgLog  *logging.MessageLogger
	metrics *metrics.Metrics
}

// NewBroker creates a Broker.
func NewBroker(opts Options) *Broker {
	codecs := opts.Codecs
	if codecs == nil {
		codecs = codec.Default()
	}
	logger := logging.NewLogger("broker")
	return &Broker{
		codecs:       codecs,
		writeTimeout: opts.WriteTimeout,
		sessions:     make(map[*Session]struct{}),
		tree:         topic.NewTree[*Session](),
		logger:       logger,
		connLog:      logging.NewConnectionLogger(logger),
		msgLog:       logging.NewMessageLogger(logger),
		metrics:      opts.Metrics,
	}
}

// Codecs returns the registry of negotiable codecs.
func (b *Broker) Codecs() *codec.Registry {
	return b.codecs
}

// Register completes a handshake. conn is owned by the broker from here on.
func (b *Broker) Register(codecName, remote string, conn Conn) (*Session, error) {
	if b.closed {
		return nil, ErrBrokerClosed
	}
	c, err := b.codecs.Lookup(codecName)
	if err != nil {
		return nil, err
	}

	s := &Session{
		ID:          uuid.New(),
		Remote:      remote,
		Codec:       c,
		ConnectedAt: time.Now(),
		conn:        conn,
	}
	b.sessions[s] = struct{}{}
	b.metrics.ConnectionRegistered()
	b.connLog.LogRegistered(s.ID.String(), remote, c.Name())
	return s, nil
}

// Unregister removes a session, purges it from the tree and closes its
// connection. Calls after the first are no-ops.
func (b *Broker) Unregister(s *Session, reason string) {
	if s == nil || s.closed {
		return
	}
	s.closed = true
	delete(b.sessions, s)
	b.tree.RemoveEverywhere(s)
	_ = s.conn.Close()

	b.metrics.ConnectionClosed()
	b.connLog.LogConnectionClosed(s.ID.String(), s.Remote, reason, time.Since(s.ConnectedAt))
}

// Sessions returns the number of registered sessions.
func (b *Broker) Sessions() int {
	return len(b.sessions)
}

// Dispatch applies one message from a registered session.
func (b *Broker) Dispatch(s *Session, msg protocol.Message) error {
	if s.closed {
		return ErrSessionNotFound
	}
	b.metrics.MessageReceived(string(msg.Command()))

	switch m := msg.(type) {
	case protocol.Publish:
		return b.Publish(s, m.Topic, m.Value)
	case protocol.Subscribe:
		return b.Subscribe(s, m.Topic)
	case protocol.CancelSubscription:
		return b.Unsubscribe(s, m.Topic)
	case protocol.RequestListTopics:
		return b.send(s, protocol.ResponseListTopics{Topics: b.ListTopics()})
	case protocol.Connect, protocol.ResponseListTopics:
		return fmt.Errorf("%w: %s after handshake", ErrUnexpectedCommand, m.Command())
	}
	return fmt.Errorf("%w: %T", ErrUnexpectedCommand, msg)
}

// Publish stores value under path and delivers it to every subscriber of
// path or one of its ancestors, each in its own codec. A subscriber whose
// write fails is unregistered; delivery to the others continues.
//
// from may be nil for publishes that do not originate from a session.
func (b *Broker) Publish(from *Session, path string, value any) error {
	start := time.Now()

	canonical, err := b.tree.Put(path, value)
	if err != nil {
		return err
	}
	subs, err := b.tree.Subscribers(canonical)
	if err != nil {
		return err
	}

	msg := protocol.Publish{Topic: canonical, Value: value}
	bodies := make(map[string][]byte, 1)
	delivered := 0
	for _, sub := range subs {
		body, ok := bodies[sub.Codec.Name()]
		if !ok {
			body, err = protocol.Encode(msg, sub.Codec)
			if err == nil && len(body) > protocol.MaxFrameSize {
				err = fmt.Errorf("%w: %d bytes", protocol.ErrFrameTooLarge, len(body))
			}
			if err != nil {
				// The value cannot be represented in this codec.
				b.metrics.EncodeFailed(sub.Codec.Name())
				b.logger.Warn("Cannot encode publish for subscriber codec",
					"topic", canonical, "codec", sub.Codec.Name(), "error", err)
				continue
			}
			bodies[sub.Codec.Name()] = body
		}
		if err := b.writeFrame(sub, body); err != nil {
			b.metrics.DeliveryFailed()
			b.msgLog.LogDeliveryFailed(sub.ID.String(), canonical, err)
			b.Unregister(sub, "delivery failed")
			continue
		}
		delivered++
		b.metrics.Delivered(sub.Codec.Name())
	}

	took := time.Since(start)
	b.metrics.Published(len(subs), took)
	b.metrics.SetTopicStats(b.tree.PublishedCount(), b.tree.Len())
	fromID := ""
	if from != nil {
		fromID = from.ID.String()
	}
	b.msgLog.LogPublish(fromID, canonical, delivered, took)
	return nil
}

// Subscribe attaches s to path and everything below it.
func (b *Broker) Subscribe(s *Session, path string) error {
	if err := b.tree.Subscribe(path, s); err != nil {
		return err
	}
	b.metrics.SetTopicStats(b.tree.PublishedCount(), b.tree.Len())
	b.logger.Debug("Subscribed", "session", s.ID.String(), "topic", path)
	return nil
}

// Unsubscribe detaches s from path.
func (b *Broker) Unsubscribe(s *Session, path string) error {
	removed, err := b.tree.Unsubscribe(path, s)
	if err != nil {
		return err
	}
	b.logger.Debug("Subscription cancelled", "session", s.ID.String(), "topic", path, "was_subscribed", removed)
	return nil
}

// ListTopics returns every topic that has received a publish.
func (b *Broker) ListTopics() []string {
	return b.tree.PublishedTopics()
}

// Value returns the last value published to path.
func (b *Broker) Value(path string) (any, bool, error) {
	return b.tree.Value(path)
}

// SubscribedTopics returns the topics s is attached to.
func (b *Broker) SubscribedTopics(s *Session) []string {
	return b.tree.SubscribedTopics(s)
}

// Close unregisters every session. The broker rejects new registrations afterwards.
func (b *Broker) Close() {
	if b.closed {
		return
	}
	b.closed = true
	for s := range b.sessions {
		b.Unregister(s, "broker shutdown")
	}
}

func (b *Broker) send(s *Session, msg protocol.Message) error {
	body, err := protocol.Encode(msg, s.Codec)
	if err != nil {
		return err
	}
	return b.writeFrame(s, body)
}

func (b *Broker) writeFrame(s *Session, body []byte) error {
	if b.writeTimeout > 0 {
		if d, ok := s.conn.(deadlineSetter); ok {
			_ = d.SetWriteDeadline(time.Now().Add(b.writeTimeout))
			defer d.SetWriteDeadline(time.Time{})
		}
	}
	return protocol.WriteFrame(s.conn, body)
}

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

package client

import (
	"context"
	"fmt"
	"sync"

	"topicmq/internal/protocol"
	"topicmq/internal/topic"
)

// Producer publishes to a single topic over its own connection.
type Producer struct {
	client *Client
	topic  string
}

// NewProducer connects to addr and binds the connection to topicPath.
func NewProducer(addr, topicPath string, opts ClientOptions) (*Producer, error) {
	if _, err := topic.ParsePath(topicPath); err != nil {
		return nil, fmt.Errorf("producer %q: %w", topicPath, err)
	}
	c, err := NewClientWithOptions(addr, opts)
	if err != nil {
		return nil, err
	}
	return &Producer{client: c, topic: topicPath}, nil
}

// Topic returns the bound topic.
func (p *Producer) Topic() string { return p.topic }

// Push publishes value to the bound topic.
func (p *Producer) Push(value any) error {
	return p.client.Publish(p.topic, value)
}

// ListTopics returns every topic that has received a value.
func (p *Producer) ListTopics(ctx context.Context) ([]string, error) {
	return p.client.ListTopics(ctx)
}

// Close closes the connection.
func (p *Producer) Close() error {
	return p.client.Close()
}

// Consumer receives values published to a topic or any topic below it.
// The subscription is made on the first Pull.
type Consumer struct {
	client *Client
	topic  string

	mu         sync.Mutex
	subscribed bool
}

// NewConsumer connects to addr and binds the connection to topicPath.
func NewConsumer(addr, topicPath string, opts ClientOptions) (*Consumer, error) {
	if _, err := topic.ParsePath(topicPath); err != nil {
		return nil, fmt.Errorf("consumer %q: %w", topicPath, err)
	}
	c, err := NewClientWithOptions(addr, opts)
	if err != nil {
		return nil, err
	}
	return &Consumer{client: c, topic: topicPath}, nil
}

// Topic returns the bound topic.
func (q *Consumer) Topic() string { return q.topic }

// Subscribed reports whether the subscription is active.
func (q *Consumer) Subscribed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.subscribed
}

// Pull blocks for the next delivery, subscribing first if needed.
func (q *Consumer) Pull(ctx context.Context) (protocol.Publish, error) {
	if err := q.ensureSubscribed(); err != nil {
		return protocol.Publish{}, err
	}
	return q.client.Receive(ctx)
}

// Cancel drops the subscription. A later Pull subscribes again.
func (q *Consumer) Cancel() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if !q.subscribed {
		return nil
	}
	if err := q.client.Unsubscribe(q.topic); err != nil {
		return err
	}
	q.subscribed = false
	return nil
}

// ListTopics returns every topic that has received a value.
func (q *Consumer) ListTopics(ctx context.Context) ([]string, error) {
	return q.client.ListTopics(ctx)
}

// Close closes the connection.
func (q *Consumer) Close() error {
	return q.client.Close()
}

func (q *Consumer) ensureSubscribed() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.subscribed {
		return nil
	}
	if err := q.client.Subscribe(q.topic); err != nil {
		return err
	}
	q.subscribed = true
	return nil
}

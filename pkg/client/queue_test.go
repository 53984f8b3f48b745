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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"topicmq/internal/topic"
)

func pullNothing(t *testing.T, q *Consumer) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	msg, err := q.Pull(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded, "unexpected delivery %+v", msg)
}

func TestQueueHandlesRejectInvalidTopic(t *testing.T) {
	_, err := NewProducer("127.0.0.1:1", "", ClientOptions{})
	assert.ErrorIs(t, err, topic.ErrInvalidPath)
	_, err = NewConsumer("127.0.0.1:1", "/", ClientOptions{})
	assert.ErrorIs(t, err, topic.ErrInvalidPath)
}

func TestProducerConsumer(t *testing.T) {
	s := startServer(t, nil)
	addr := s.Addr().String()

	p, err := NewProducer(addr, "/temperature/porto", ClientOptions{Codec: "XML", MaxRetries: 1})
	require.NoError(t, err)
	defer p.Close()
	q, err := NewConsumer(addr, "/temperature", ClientOptions{Codec: "JSON", MaxRetries: 1})
	require.NoError(t, err)
	defer q.Close()

	assert.Equal(t, "/temperature/porto", p.Topic())
	assert.Equal(t, "/temperature", q.Topic())
	assert.False(t, q.Subscribed())

	// The first Pull subscribes.
	pullNothing(t, q)
	assert.True(t, q.Subscribed())
	settle(t, q)

	require.NoError(t, p.Push(21))
	msg, err := q.Pull(testContext(t))
	require.NoError(t, err)
	assert.Equal(t, "/temperature/porto", msg.Topic)
	assert.Equal(t, int64(21), msg.Value)

	require.NoError(t, q.Cancel())
	assert.False(t, q.Subscribed())
	settle(t, q)

	require.NoError(t, p.Push(22))
	assert.Equal(t, []string{"/temperature/porto"}, settle(t, p))

	// Pulling again re-subscribes; 22 was published while cancelled.
	pullNothing(t, q)
	settle(t, q)
	require.NoError(t, p.Push(23))
	msg, err = q.Pull(testContext(t))
	require.NoError(t, err)
	assert.Equal(t, int64(23), msg.Value)
}

func TestConsumerCancelWithoutSubscription(t *testing.T) {
	s := startServer(t, nil)
	q, err := NewConsumer(s.Addr().String(), "/a", ClientOptions{MaxRetries: 1})
	require.NoError(t, err)
	defer q.Close()

	assert.NoError(t, q.Cancel())
	assert.False(t, q.Subscribed())
}

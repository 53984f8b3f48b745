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

package main

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"topicmq/internal/codec"
	"topicmq/internal/config"
	"topicmq/internal/metrics"
	"topicmq/internal/server"
	"topicmq/pkg/client"
)

func init() {
	color.NoColor = true
}

func startServer(t *testing.T) string {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.BindAddr = "127.0.0.1:0"
	s, err := server.NewServer(cfg, metrics.New())
	require.NoError(t, err)
	require.NoError(t, s.Start())
	t.Cleanup(func() { s.Stop() })
	return s.Addr().String()
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	app := newApp()
	app.Writer = &out
	app.ErrWriter = &errOut
	err := app.Run(context.Background(), append([]string{"topicmq-cli"}, args...))
	return out.String(), err
}

func TestParseValue(t *testing.T) {
	tests := []struct {
		in   string
		want any
	}{
		{"21", int64(21)},
		{"2.5", 2.5},
		{"true", true},
		{"null", nil},
		{`"quoted"`, "quoted"},
		{"hello world", "hello world"},
		{"1 2", "1 2"},
		{`{"x":[1,"y"]}`, map[string]any{"x": []any{int64(1), "y"}}},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, parseValue(tt.in), tt.in)
	}
}

func TestPublishAndListTopics(t *testing.T) {
	addr := startServer(t)

	out, err := run(t, "--addr", addr, "--codec", "XML", "pub", "/temperature/porto", "21")
	require.NoError(t, err)
	assert.Contains(t, out, "Published to /temperature/porto")

	out, err = run(t, "--addr", addr, "topics", "--json")
	require.NoError(t, err)
	assert.Equal(t, `["/temperature/porto"]`, strings.TrimSpace(out))

	out, err = run(t, "--addr", addr, "ls")
	require.NoError(t, err)
	assert.Contains(t, out, "Topics (1)")
	assert.Contains(t, out, "/temperature/porto")
}

func TestPublishArgs(t *testing.T) {
	_, err := run(t, "pub", "/only-topic")
	assert.Error(t, err)
}

func TestUnknownCodec(t *testing.T) {
	_, err := run(t, "--codec", "YAML", "topics")
	require.Error(t, err)
	assert.ErrorIs(t, err, codec.ErrUnknownCodec)
	assert.Contains(t, hintFor(err), "JSON")
}

func TestSubscribeJSON(t *testing.T) {
	addr := startServer(t)

	type result struct {
		out string
		err error
	}
	done := make(chan result, 1)
	go func() {
		var out bytes.Buffer
		app := newApp()
		app.Writer = &out
		err := app.Run(context.Background(), []string{"topicmq-cli", "--addr", addr, "--codec", "PROTOBUF",
			"sub", "--json", "--count", "1", "--timeout", "5s", "/temperature"})
		done <- result{out.String(), err}
	}()

	p, err := client.NewProducer(addr, "/temperature/porto", client.ClientOptions{MaxRetries: 1})
	require.NoError(t, err)
	defer p.Close()

	// Publish until the subscriber has attached and printed one message.
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()
	deadline := time.After(5 * time.Second)
	for {
		select {
		case r := <-done:
			require.NoError(t, r.err)
			assert.Equal(t, `{"topic":"/temperature/porto","value":21}`, strings.TrimSpace(r.out))
			return
		case <-ticker.C:
			require.NoError(t, p.Push(21))
		case <-deadline:
			t.Fatal("subscriber did not receive a message")
		}
	}
}

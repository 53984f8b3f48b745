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
TopicMQ CLI - Command Line Interface.

COMMANDS:
=========

	publish, pub     Publish a value to a topic
	subscribe, sub   Print values published to a topic or below it
	topics, ls       List topics that have received a value

EXAMPLES:
=========

	# Publish a number (values are parsed as JSON when possible)
	topicmq-cli pub /temperature/porto 21

	# Follow a subtree using the XML codec
	topicmq-cli --codec XML sub /temperature

	# List topics
	topicmq-cli topics
*/
package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/goccy/go-json"
	"github.com/urfave/cli/v3"

	"topicmq/internal/banner"
	"topicmq/internal/codec"
	pcli "topicmq/pkg/cli"
	"topicmq/pkg/client"
)

const defaultAddr = "localhost:5000"

func main() {
	if err := newApp().Run(context.Background(), os.Args); err != nil {
		pcli.ErrorWithHint(err.Error(), hintFor(err))
		os.Exit(1)
	}
}

func newApp() *cli.Command {
	return &cli.Command{
		Name:      "topicmq-cli",
		Usage:     "Publish, subscribe and inspect topics on a TopicMQ broker",
		Version:   banner.Version,
		Writer:    os.Stdout,
		ErrWriter: os.Stderr,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "addr",
				Aliases: []string{"a"},
				Usage:   "broker address; comma-separate several to fail over",
				Value:   defaultAddr,
				Sources: cli.EnvVars("TOPICMQ_ADDR"),
			},
			&cli.StringFlag{
				Name:    "codec",
				Usage:   "codec declared in the handshake (JSON, XML, GOB, PROTOBUF)",
				Value:   "JSON",
				Sources: cli.EnvVars("TOPICMQ_CODEC"),
			},
			&cli.BoolFlag{
				Name:    "tls",
				Usage:   "connect with TLS",
				Sources: cli.EnvVars("TOPICMQ_TLS_ENABLED"),
			},
			&cli.StringFlag{
				Name:    "ca-cert",
				Usage:   "CA certificate used to verify the broker",
				Sources: cli.EnvVars("TOPICMQ_TLS_CA_FILE"),
			},
			&cli.StringFlag{
				Name:  "cert",
				Usage: "client certificate (mutual TLS)",
			},
			&cli.StringFlag{
				Name:  "key",
				Usage: "client key (mutual TLS)",
			},
			&cli.BoolFlag{
				Name:  "insecure",
				Usage: "skip broker certificate verification (testing only)",
			},
			&cli.BoolFlag{
				Name:  "no-color",
				Usage: "disable colored output",
			},
		},
		Before: func(ctx context.Context, c *cli.Command) (context.Context, error) {
			if c.Bool("no-color") {
				pcli.SetColorsEnabled(false)
			}
			return ctx, nil
		},
		Commands: []*cli.Command{
			publishCommand(),
			subscribeCommand(),
			topicsCommand(),
		},
	}
}

func printer(c *cli.Command) *pcli.Printer {
	return pcli.NewPrinter(c.Root().Writer, c.Root().ErrWriter)
}

func clientOptions(c *cli.Command) client.ClientOptions {
	return client.ClientOptions{
		BootstrapServers:      client.ParseBootstrapServers(c.String("addr")),
		Codec:                 c.String("codec"),
		TLSEnabled:            c.Bool("tls"),
		TLSCAFile:             c.String("ca-cert"),
		TLSCertFile:           c.String("cert"),
		TLSKeyFile:            c.String("key"),
		TLSInsecureSkipVerify: c.Bool("insecure"),
		MaxRetries:            1,
	}
}

func publishCommand() *cli.Command {
	return &cli.Command{
		Name:      "publish",
		Aliases:   []string{"pub"},
		Usage:     "Publish a value to a topic",
		ArgsUsage: "<topic> <value>",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "raw",
				Usage: "send the value as a string instead of parsing it as JSON",
			},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			if c.Args().Len() != 2 {
				return fmt.Errorf("publish needs a topic and a value")
			}
			topicPath, text := c.Args().Get(0), c.Args().Get(1)

			value := any(text)
			if !c.Bool("raw") {
				value = parseValue(text)
			}

			p, err := client.NewProducer(c.String("addr"), topicPath, clientOptions(c))
			if err != nil {
				return err
			}
			defer p.Close()

			if err := p.Push(value); err != nil {
				return err
			}
			// The listing round trip confirms the broker applied the publish.
			if _, err := p.ListTopics(ctx); err != nil {
				return err
			}
			printer(c).Success("Published to %s", topicPath)
			return nil
		},
	}
}

func subscribeCommand() *cli.Command {
	return &cli.Command{
		Name:      "subscribe",
		Aliases:   []string{"sub"},
		Usage:     "Print values published to a topic or any topic below it",
		ArgsUsage: "<topic>",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "count",
				Aliases: []string{"n"},
				Usage:   "exit after this many messages (0 = unlimited)",
			},
			&cli.DurationFlag{
				Name:  "timeout",
				Usage: "exit after this long (0 = until interrupted)",
			},
			&cli.BoolFlag{
				Name:  "json",
				Usage: "print one JSON object per message",
			},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			if c.Args().Len() != 1 {
				return fmt.Errorf("subscribe needs exactly one topic")
			}
			topicPath := c.Args().First()

			q, err := client.NewConsumer(c.String("addr"), topicPath, clientOptions(c))
			if err != nil {
				return err
			}
			defer q.Close()

			ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			if d := c.Duration("timeout"); d > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, d)
				defer cancel()
			}

			p := printer(c)
			if !c.Bool("json") {
				p.Info("Subscribed to %s (%s)", topicPath, c.String("codec"))
			}

			limit := c.Int("count")
			for received := 0; limit == 0 || received < limit; received++ {
				msg, err := q.Pull(ctx)
				if err != nil {
					if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
						return nil
					}
					return err
				}
				if c.Bool("json") {
					line, err := json.Marshal(map[string]any{"topic": msg.Topic, "value": msg.Value})
					if err != nil {
						return err
					}
					fmt.Fprintln(p.Out, string(line))
					continue
				}
				p.Publish(msg.Topic, msg.Value)
			}
			return nil
		},
	}
}

func topicsCommand() *cli.Command {
	return &cli.Command{
		Name:    "topics",
		Aliases: []string{"ls"},
		Usage:   "List topics that have received a value",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "json",
				Usage: "print the list as a JSON array",
			},
			&cli.DurationFlag{
				Name:  "timeout",
				Usage: "how long to wait for the broker",
				Value: 5 * time.Second,
			},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			cl, err := client.NewClusterClient(c.String("addr"), clientOptions(c))
			if err != nil {
				return err
			}
			defer cl.Close()

			ctx, cancel := context.WithTimeout(ctx, c.Duration("timeout"))
			defer cancel()
			topics, err := cl.ListTopics(ctx)
			if err != nil {
				return err
			}

			p := printer(c)
			if c.Bool("json") {
				data, err := json.Marshal(topics)
				if err != nil {
					return err
				}
				fmt.Fprintln(p.Out, string(data))
				return nil
			}
			if len(topics) == 0 {
				p.Info("No topics yet")
				return nil
			}
			p.Header(fmt.Sprintf("Topics (%d)", len(topics)))
			p.List(topics)
			return nil
		},
	}
}

// parseValue reads text as a JSON value, falling back to the plain string.
func parseValue(text string) any {
	dec := json.NewDecoder(bytes.NewReader([]byte(text)))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil || dec.More() {
		return text
	}
	nv, err := codec.Normalize(v)
	if err != nil {
		return text
	}
	return nv
}

func hintFor(err error) string {
	switch {
	case errors.Is(err, codec.ErrUnknownCodec):
		return "supported codecs are " + fmt.Sprint(codec.Default().Names())
	case errors.Is(err, client.ErrClosed):
		return "the broker closed the connection; check that it accepts this codec"
	case errors.As(err, new(*net.OpError)):
		return "check --addr and that the broker is running"
	default:
		return ""
	}
}

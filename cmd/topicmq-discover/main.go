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
topicmq-discover - TopicMQ Broker Discovery Tool

Finds brokers on the local network that run with discovery enabled.

Usage:

	topicmq-discover                  # Discover brokers (5 second timeout)
	topicmq-discover --timeout 10s    # Custom timeout
	topicmq-discover --json           # Output as JSON
	topicmq-discover --quiet          # Only output addresses (for scripting)
*/
package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/urfave/cli/v3"

	"topicmq/internal/banner"
	"topicmq/internal/config"
	"topicmq/internal/discovery"
	pcli "topicmq/pkg/cli"
)

func main() {
	if err := newApp().Run(context.Background(), os.Args); err != nil {
		pcli.Error("Discovery failed: %v", err)
		os.Exit(1)
	}
}

func newApp() *cli.Command {
	defaults := config.DefaultConfig().Discovery
	return &cli.Command{
		Name:      "topicmq-discover",
		Usage:     "Find TopicMQ brokers on the local network with mDNS",
		Version:   banner.Version,
		Writer:    os.Stdout,
		ErrWriter: os.Stderr,
		Flags: []cli.Flag{
			&cli.DurationFlag{
				Name:    "timeout",
				Aliases: []string{"t"},
				Usage:   "how long to listen for answers",
				Value:   5 * time.Second,
			},
			&cli.StringFlag{
				Name:    "service",
				Usage:   "mDNS service type",
				Value:   defaults.Service,
				Sources: cli.EnvVars("TOPICMQ_DISCOVERY_SERVICE"),
			},
			&cli.StringFlag{
				Name:    "domain",
				Usage:   "mDNS domain",
				Value:   defaults.Domain,
				Sources: cli.EnvVars("TOPICMQ_DISCOVERY_DOMAIN"),
			},
			&cli.BoolFlag{
				Name:  "json",
				Usage: "output results as JSON",
			},
			&cli.BoolFlag{
				Name:    "quiet",
				Aliases: []string{"q"},
				Usage:   "only output addresses, comma separated",
			},
		},
		Action: run,
	}
}

func run(ctx context.Context, c *cli.Command) error {
	// hashicorp/mdns logs non-fatal IPv6 socket errors through the std logger.
	log.SetOutput(io.Discard)

	p := pcli.NewPrinter(c.Writer, c.ErrWriter)
	human := !c.Bool("quiet") && !c.Bool("json")
	timeout := c.Duration("timeout")

	if human {
		banner.PrintTo(p.Out, "TopicMQ Discover")
		p.Info("Scanning for TopicMQ brokers on the network (timeout: %s)...", timeout)
		fmt.Fprintln(p.Out)
	}

	nodes, err := discovery.Discover(config.DiscoveryConfig{
		Service: c.String("service"),
		Domain:  c.String("domain"),
	}, timeout)
	if err != nil {
		return err
	}

	switch {
	case c.Bool("json"):
		return outputJSON(p.Out, nodes)
	case c.Bool("quiet"):
		outputQuiet(p.Out, nodes)
	default:
		outputHuman(p, nodes)
	}
	return nil
}

func outputJSON(w io.Writer, nodes []discovery.Node) error {
	if nodes == nil {
		nodes = []discovery.Node{}
	}
	data, err := json.MarshalIndent(nodes, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}

func outputQuiet(w io.Writer, nodes []discovery.Node) {
	if len(nodes) == 0 {
		return
	}
	addrs := make([]string, len(nodes))
	for i, n := range nodes {
		addrs[i] = n.Addr
	}
	fmt.Fprintln(w, strings.Join(addrs, ","))
}

func outputHuman(p *pcli.Printer, nodes []discovery.Node) {
	if len(nodes) == 0 {
		p.Warning("No TopicMQ brokers found on the network.")
		fmt.Fprintln(p.Out)
		p.Header("TROUBLESHOOTING")
		p.Hint("Brokers must run with discovery enabled (TOPICMQ_DISCOVERY_ENABLED=true)")
		p.Hint("mDNS uses UDP port 5353 (multicast); firewalls must allow it")
		p.Hint("Brokers must be on the same network segment")
		fmt.Fprintln(p.Out)
		p.Example("Increase the timeout", "topicmq-discover --timeout 10s")
		return
	}

	p.Success("Found %d TopicMQ broker(s)", len(nodes))
	fmt.Fprintln(p.Out)
	for i, n := range nodes {
		p.Header(fmt.Sprintf("[%d] %s", i+1, n.NodeID))
		p.KeyValue("Address", n.Addr)
		if n.Host != "" {
			p.KeyValue("Host", n.Host)
		}
		if len(n.Codecs) > 0 {
			p.KeyValue("Codecs", strings.Join(n.Codecs, ", "))
		}
		p.KeyValue("TLS", n.TLS)
		if n.Version != "" {
			p.KeyValue("Version", n.Version)
		}
		fmt.Fprintln(p.Out)
	}
	p.Hint("Use --json for machine-readable output")
}

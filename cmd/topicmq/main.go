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
TopicMQ Server - Main Entry Point.

USAGE:
======

	topicmq [options]
	topicmq gen-cert --dir ./certs --host localhost

CONFIGURATION ORDER:
====================
1. Built-in defaults
2. .env file in the working directory
3. Config file (--config, TOPICMQ_CONFIG, or the first default path found)
4. TOPICMQ_* environment variables
5. Command line flags

STARTUP SEQUENCE:
=================
1. Load and validate configuration
2. Initialize logging
3. Start the TCP/TLS broker
4. Start the WebSocket gateway, metrics/health endpoint and mDNS advertiser
5. Wait for SIGINT/SIGTERM, then stop everything
*/
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v3"
	"golang.org/x/sync/errgroup"

	"topicmq/internal/banner"
	"topicmq/internal/broker"
	"topicmq/internal/config"
	"topicmq/internal/crypto"
	"topicmq/internal/discovery"
	"topicmq/internal/health"
	"topicmq/internal/logging"
	"topicmq/internal/metrics"
	"topicmq/internal/server"
	"topicmq/internal/server/ws"
	pcli "topicmq/pkg/cli"
)

func main() {
	if err := newApp().Run(context.Background(), os.Args); err != nil {
		pcli.Error("%v", err)
		os.Exit(1)
	}
}

func newApp() *cli.Command {
	return &cli.Command{
		Name:    "topicmq",
		Usage:   "Hierarchical publish/subscribe broker",
		Version: banner.Version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "path to a JSON or YAML configuration file",
				Sources: cli.EnvVars("TOPICMQ_CONFIG"),
			},
			&cli.StringFlag{
				Name:  "bind",
				Usage: "broker listen address (e.g. :5000)",
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "log level (debug, info, warn, error)",
			},
			&cli.BoolFlag{
				Name:  "log-json",
				Usage: "write logs as JSON lines",
			},
			&cli.StringSliceFlag{
				Name:  "codec",
				Usage: "codec clients may negotiate (repeatable; default: all)",
			},
			&cli.BoolFlag{
				Name:  "ws",
				Usage: "enable the WebSocket gateway",
			},
			&cli.BoolFlag{
				Name:  "metrics",
				Usage: "enable the Prometheus endpoint",
			},
			&cli.BoolFlag{
				Name:  "mdns",
				Usage: "advertise the broker over mDNS",
			},
			&cli.BoolFlag{
				Name:    "quiet",
				Aliases: []string{"q"},
				Usage:   "skip the banner and configuration summary",
			},
		},
		Action: runServer,
		Commands: []*cli.Command{
			genCertCommand(),
		},
	}
}

// loadConfig layers defaults, .env, the config file, the environment and
// explicitly set flags, in that order.
func loadConfig(c *cli.Command) (*config.Config, error) {
	if err := config.LoadDotEnv(); err != nil {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	mgr := config.NewManager()
	path := c.String("config")
	if path == "" {
		path = config.FindConfigFile()
	}
	if path != "" {
		if err := mgr.LoadFromFile(path); err != nil {
			return nil, fmt.Errorf("load config file: %w", err)
		}
	}
	if err := mgr.LoadFromEnv(); err != nil {
		return nil, err
	}

	cfg := mgr.Get()
	if c.IsSet("bind") {
		cfg.BindAddr = c.String("bind")
	}
	if c.IsSet("log-level") {
		cfg.LogLevel = c.String("log-level")
	}
	if c.IsSet("log-json") {
		cfg.LogJSON = c.Bool("log-json")
	}
	if c.IsSet("codec") {
		cfg.Codecs = c.StringSlice("codec")
	}
	if c.IsSet("ws") {
		cfg.WS.Enabled = c.Bool("ws")
	}
	if c.IsSet("metrics") {
		cfg.Metrics.Enabled = c.Bool("metrics")
	}
	if c.IsSet("mdns") {
		cfg.Discovery.Enabled = c.Bool("mdns")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	config.Global().Set(cfg)
	return cfg, nil
}

func runServer(ctx context.Context, c *cli.Command) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}

	if !c.Bool("quiet") {
		banner.PrintServerWithConfigTo(os.Stdout, cfg)
	}

	logging.SetGlobalLevel(logging.ParseLevel(cfg.LogLevel))
	logging.SetJSONMode(cfg.LogJSON)
	logger := logging.NewLogger("main")
	logger.Info("Starting TopicMQ", "version", banner.Version, "node_id", cfg.NodeID)

	m := metrics.New()
	srv, err := server.NewServer(cfg, m)
	if err != nil {
		return err
	}
	if err := srv.Start(); err != nil {
		return fmt.Errorf("start broker: %w", err)
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	g, gctx := errgroup.WithContext(ctx)

	if cfg.WS.Enabled {
		gateway := ws.NewGateway(cfg.WS, srv, srv.TLSConfig())
		g.Go(func() error {
			if err := gateway.Start(); err != nil {
				return fmt.Errorf("start websocket gateway: %w", err)
			}
			<-gctx.Done()
			return gateway.Stop()
		})
	}

	if cfg.Metrics.Enabled {
		checker := health.NewChecker(banner.Version)
		checker.RegisterCheck("event_loop", health.LoopCheck(2*time.Second, 100*time.Millisecond, func(ctx context.Context) error {
			return srv.Do(ctx, func(*broker.Broker) {})
		}))
		checker.RegisterCheck("listener", health.ListenerCheck(func() string {
			if addr := srv.Addr(); addr != nil {
				return addr.String()
			}
			return ""
		}))

		metricsServer := metrics.NewServer(cfg.Metrics, m)
		metricsServer.Handle("/health", checker.Handler())
		metricsServer.Handle("/health/", checker.Handler())
		g.Go(func() error {
			if err := metricsServer.Start(); err != nil {
				return fmt.Errorf("start metrics server: %w", err)
			}
			<-gctx.Done()
			return metricsServer.Stop()
		})
	}

	if cfg.Discovery.Enabled {
		advertiser := discovery.NewAdvertiser(cfg.Discovery, discovery.Info{
			NodeID:  cfg.NodeID,
			Port:    discovery.PortOf(srv.Addr()),
			Codecs:  cfg.Codecs,
			Version: banner.Version,
			TLS:     srv.IsTLS(),
		})
		g.Go(func() error {
			if err := advertiser.Start(); err != nil {
				// Multicast is often unavailable in containers.
				logger.Warn("mDNS advertisement unavailable", "error", err)
				return nil
			}
			<-gctx.Done()
			return advertiser.Stop()
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutting down...")
		return srv.Stop()
	})

	if err := g.Wait(); err != nil {
		logger.Error("Shutdown with error", "error", err)
		return err
	}
	logger.Info("Shutdown complete")
	return nil
}

func genCertCommand() *cli.Command {
	return &cli.Command{
		Name:  "gen-cert",
		Usage: "write a self-signed certificate and key for development",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "dir",
				Usage: "output directory",
				Value: "./certs",
			},
			&cli.StringSliceFlag{
				Name:  "host",
				Usage: "DNS name or IP the certificate is valid for (repeatable)",
				Value: []string{"localhost", "127.0.0.1"},
			},
			&cli.DurationFlag{
				Name:  "valid-for",
				Usage: "certificate lifetime",
				Value: 365 * 24 * time.Hour,
			},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			dir := c.String("dir")
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return err
			}
			certFile, keyFile, err := crypto.GenerateSelfSigned(dir, c.StringSlice("host"), c.Duration("valid-for"))
			if err != nil {
				return err
			}
			pcli.Success("Certificate written")
			pcli.KeyValue("cert", certFile)
			pcli.KeyValue("key", keyFile)
			pcli.Hint("TOPICMQ_TLS_ENABLED=true TOPICMQ_TLS_CERT_FILE=%s TOPICMQ_TLS_KEY_FILE=%s topicmq", certFile, keyFile)
			return nil
		},
	}
}

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
Package discovery advertises TopicMQ brokers on the local network with mDNS
and finds them again.

TXT RECORDS:
============
Every advertisement carries

	id=<node id>
	codecs=JSON,XML,...
	version=<broker version>
	tls=true|false

Each record stays under the 255-byte DNS TXT limit; the codec list is
truncated at a name boundary if needed.
*/
package discovery

import (
	"errors"
	"fmt"
	"net"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/mdns"

	"topicmq/internal/config"
	"topicmq/internal/logging"
)

const maxTXTLen = 255

// ErrNoPort is returned when the advertised listener has no usable port.
var ErrNoPort = errors.New("discovery: listener port unknown")

// Node is a broker found on the network.
type Node struct {
	NodeID  string   `json:"node_id"`
	Host    string   `json:"host"`
	Addr    string   `json:"addr"`
	Port    int      `json:"port"`
	Codecs  []string `json:"codecs,omitempty"`
	Version string   `json:"version,omitempty"`
	TLS     bool     `json:"tls"`
}

// Info describes the local broker for advertisement.
type Info struct {
	NodeID  string
	Port    int
	Codecs  []string
	Version string
	TLS     bool
}

// Advertiser publishes the local broker over mDNS.
type Advertiser struct {
	cfg    config.DiscoveryConfig
	info   Info
	logger *logging.Logger

	mu     sync.Mutex
	server *mdns.Server
}

// NewAdvertiser creates an advertiser. Nothing is sent until Start.
func NewAdvertiser(cfg config.DiscoveryConfig, info Info) *Advertiser {
	return &Advertiser{
		cfg:    cfg,
		info:   info,
		logger: logging.NewLogger("discovery"),
	}
}

// Start begins answering mDNS queries for the broker.
func (a *Advertiser) Start() error {
	if a.info.Port <= 0 {
		return ErrNoPort
	}
	instance := "topicmq-" + a.info.NodeID
	service, err := mdns.NewMDNSService(instance, a.cfg.Service, a.cfg.Domain, "", a.info.Port, nil, BuildTXT(a.info))
	if err != nil {
		return fmt.Errorf("discovery: create service: %w", err)
	}
	server, err := mdns.NewServer(&mdns.Config{Zone: service})
	if err != nil {
		return fmt.Errorf("discovery: start responder: %w", err)
	}

	a.mu.Lock()
	a.server = server
	a.mu.Unlock()
	a.logger.Info("Advertising broker", "instance", instance, "service", a.cfg.Service, "port", a.info.Port)
	return nil
}

// Stop withdraws the advertisement.
func (a *Advertiser) Stop() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.server == nil {
		return nil
	}
	err := a.server.Shutdown()
	a.server = nil
	return err
}

// Discover queries the network for brokers until timeout elapses.
// Results are deduplicated by address and sorted by node id.
func Discover(cfg config.DiscoveryConfig, timeout time.Duration) ([]Node, error) {
	entries := make(chan *mdns.ServiceEntry, 16)
	params := &mdns.QueryParam{
		Service:     cfg.Service,
		Domain:      cfg.Domain,
		Timeout:     timeout,
		Entries:     entries,
		DisableIPv6: true,
	}

	var (
		nodes []Node
		seen  = make(map[string]bool)
		done  = make(chan struct{})
	)
	go func() {
		defer close(done)
		for entry := range entries {
			node, ok := ParseEntry(entry)
			if !ok || seen[node.Addr] {
				continue
			}
			seen[node.Addr] = true
			nodes = append(nodes, node)
		}
	}()

	err := mdns.Query(params)
	close(entries)
	<-done
	if err != nil {
		return nil, fmt.Errorf("discovery: query: %w", err)
	}

	sort.Slice(nodes, func(i, j int) bool {
		if nodes[i].NodeID != nodes[j].NodeID {
			return nodes[i].NodeID < nodes[j].NodeID
		}
		return nodes[i].Addr < nodes[j].Addr
	})
	return nodes, nil
}

// BuildTXT renders the TXT records for info.
func BuildTXT(info Info) []string {
	txt := []string{
		truncate("id=" + info.NodeID),
		"tls=" + strconv.FormatBool(info.TLS),
	}
	if info.Version != "" {
		txt = append(txt, truncate("version="+info.Version))
	}
	if len(info.Codecs) > 0 {
		rec := "codecs="
		for i, name := range info.Codecs {
			next := name
			if i > 0 {
				next = "," + name
			}
			if len(rec)+len(next) > maxTXTLen {
				break
			}
			rec += next
		}
		txt = append(txt, rec)
	}
	return txt
}

// ParseEntry converts an mDNS answer into a Node. Entries without an
// address or port are dropped.
func ParseEntry(entry *mdns.ServiceEntry) (Node, bool) {
	if entry == nil || entry.Port <= 0 {
		return Node{}, false
	}

	node := Node{
		Host: strings.TrimSuffix(entry.Host, "."),
		Port: entry.Port,
	}
	switch {
	case entry.AddrV4 != nil:
		node.Addr = net.JoinHostPort(entry.AddrV4.String(), strconv.Itoa(entry.Port))
	case entry.AddrV6 != nil:
		node.Addr = net.JoinHostPort(entry.AddrV6.String(), strconv.Itoa(entry.Port))
	default:
		return Node{}, false
	}

	for _, field := range entry.InfoFields {
		key, value, ok := strings.Cut(field, "=")
		if !ok {
			continue
		}
		switch key {
		case "id":
			node.NodeID = value
		case "version":
			node.Version = value
		case "tls":
			node.TLS, _ = strconv.ParseBool(value)
		case "codecs":
			if value != "" {
				node.Codecs = strings.Split(value, ",")
			}
		}
	}
	return node, true
}

// PortOf returns the port of a listener address, or 0.
func PortOf(addr net.Addr) int {
	if addr == nil {
		return 0
	}
	if tcp, ok := addr.(*net.TCPAddr); ok {
		return tcp.Port
	}
	_, port, err := net.SplitHostPort(addr.String())
	if err != nil {
		return 0
	}
	n, _ := strconv.Atoi(port)
	return n
}

func truncate(s string) string {
	if len(s) > maxTXTLen {
		return s[:maxTXTLen]
	}
	return s
}

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
Package banner provides the startup banner for TopicMQ binaries.

USAGE:
======

	banner.PrintTo(os.Stdout, "TopicMQ CLI")
	banner.PrintServerWithConfigTo(os.Stdout, cfg)

The ASCII art is embedded at compile time from banner.txt. Colors follow
github.com/fatih/color, so NO_COLOR and non-terminal output disable them.
*/
package banner

import (
	_ "embed"
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"

	"topicmq/internal/config"
)

//go:embed banner.txt
var bannerText string

// Version information
const (
	Version   = "1.0.0"
	Copyright = "Copyright (c) 2026 Firefly Software Solutions Inc."
	License   = "Licensed under Apache License 2.0"
)

var (
	artColor    = color.New(color.FgCyan, color.Bold)
	titleColor  = color.New(color.FgGreen, color.Bold)
	dim         = color.New(color.Faint)
	sectionName = color.New(color.FgCyan, color.Bold)
	onColor     = color.New(color.FgGreen)
	offColor    = color.New(color.FgYellow)
)

// GetBanner returns the raw ASCII banner text.
func GetBanner() string {
	return bannerText
}

// GetBannerLines returns the banner as individual lines.
func GetBannerLines() []string {
	return strings.Split(strings.TrimRight(bannerText, "\n"), "\n")
}

// PrintTo writes the banner with a title line such as "TopicMQ CLI".
func PrintTo(w io.Writer, title string) {
	printArt(w)
	fmt.Fprintf(w, "  %s %s\n", titleColor.Sprint(title), dim.Sprint("v"+Version))
	fmt.Fprintln(w, dim.Sprint("  Hierarchical publish/subscribe broker"))
	fmt.Fprintln(w)
}

// PrintVersion writes the version block used by --version flags.
func PrintVersion(w io.Writer, title string) {
	fmt.Fprintln(w)
	fmt.Fprintf(w, "  %s %s\n", titleColor.Sprint(title), dim.Sprint("v"+Version))
	fmt.Fprintln(w, dim.Sprint("  "+Copyright))
	fmt.Fprintln(w, dim.Sprint("  "+License))
	fmt.Fprintln(w)
}

// PrintServerWithConfigTo writes the server banner followed by a summary of cfg.
func PrintServerWithConfigTo(w io.Writer, cfg *config.Config) {
	printArt(w)
	fmt.Fprintf(w, "  %s %s\n\n", titleColor.Sprint("TopicMQ Server"), dim.Sprint("v"+Version))

	source := "defaults + environment"
	if cfg.ConfigFile != "" {
		source = cfg.ConfigFile
	}
	fmt.Fprintf(w, "  %s %s\n\n", dim.Sprint("Config:"), source)

	section(w, "Server")
	row(w, kv("Listen", onColor.Sprint(cfg.BindAddr)), kv("Node", cfg.NodeID), kv("Log", cfg.LogLevel))
	row(w, kv("Codecs", strings.Join(cfg.Codecs, ",")), kv("Handshake", fmt.Sprintf("%dms", cfg.HandshakeTimeoutMs)), kv("Write", writeTimeout(cfg)))
	fmt.Fprintln(w)

	section(w, "Security")
	row(w, kv("TLS", toggle(cfg.Security.TLSEnabled)), kv("Client auth", orDefault(cfg.Security.TLSClientAuth, "none")), "")
	fmt.Fprintln(w)

	section(w, "Endpoints")
	row(w, kv("WebSocket", endpoint(cfg.WS.Enabled, cfg.WS.Addr+cfg.WS.Path)),
		kv("Metrics", endpoint(cfg.Metrics.Enabled, cfg.Metrics.Addr+"/metrics")),
		kv("mDNS", endpoint(cfg.Discovery.Enabled, cfg.Discovery.Service)))
	fmt.Fprintln(w)

	fmt.Fprintln(w, dim.Sprint("  "+Copyright))
	fmt.Fprintln(w)
}

func printArt(w io.Writer) {
	fmt.Fprintln(w)
	for _, line := range GetBannerLines() {
		fmt.Fprintln(w, artColor.Sprint("  "+line))
	}
	fmt.Fprintln(w)
}

func section(w io.Writer, title string) {
	const width = 78
	pad := width - len(title) - 6
	if pad < 0 {
		pad = 0
	}
	fmt.Fprintf(w, "  %s %s %s\n", dim.Sprint("--["), sectionName.Sprint(title), dim.Sprint("]"+strings.Repeat("-", pad)))
}

func row(w io.Writer, cols ...string) {
	fmt.Fprintf(w, "  %-32s %-28s %s\n", cols[0], cols[1], cols[2])
}

func kv(key, value string) string {
	return dim.Sprint(key+":") + " " + value
}

func toggle(on bool) string {
	if on {
		return onColor.Sprint("on")
	}
	return offColor.Sprint("off")
}

func endpoint(on bool, addr string) string {
	if !on {
		return dim.Sprint("off")
	}
	return onColor.Sprint(addr)
}

func writeTimeout(cfg *config.Config) string {
	if cfg.WriteTimeoutMs == 0 {
		return "unbounded"
	}
	return fmt.Sprintf("%dms", cfg.WriteTimeoutMs)
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

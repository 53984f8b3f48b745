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
Connection and message logging helpers.

CONNECTION LOGGING:
===================
- Accepted: remote address, transport, TLS status
- Registered: session ID, negotiated codec
- Closed: session ID, reason, duration

MESSAGE LOGGING:
================
- Publish: topic, fan-out size, payload size (never the payload itself)
- Delivery failure: subscriber session, topic, error

Every entry after the handshake carries the session ID so one connection
can be followed through the log.
*/
package logging

import (
	"fmt"
	"net"
	"strings"
	"time"
)

// ConnectionLogger logs connection lifecycle events.
type ConnectionLogger struct {
	logger *Logger
}

// NewConnectionLogger creates a new connection logger.
func NewConnectionLogger(logger *Logger) *ConnectionLogger {
	return &ConnectionLogger{logger: logger}
}

// LogNewConnection logs an accepted connection before its handshake.
func (cl *ConnectionLogger) LogNewConnection(remote, transport string, tlsEnabled bool) {
	cl.logger.Debug("Connection accepted",
		"remote_addr", remote,
		"transport", transport,
		"tls_enabled", tlsEnabled,
	)
}

// LogRegistered logs a completed handshake.
func (cl *ConnectionLogger) LogRegistered(sessionID, remote, codec string) {
	cl.logger.Info("Client registered",
		"session", sessionID,
		"remote_addr", remote,
		"codec", codec,
	)
}

// LogHandshakeFailed logs an abandoned handshake.
func (cl *ConnectionLogger) LogHandshakeFailed(remote string, err error) {
	cl.logger.Warn("Handshake failed",
		"remote_addr", remote,
		"error", err,
	)
}

// LogConnectionClosed logs when a registered connection is closed.
func (cl *ConnectionLogger) LogConnectionClosed(sessionID, remote, reason string, duration time.Duration) {
	cl.logger.Info("Client disconnected",
		"session", sessionID,
		"remote_addr", remote,
		"reason", reason,
		"duration_seconds", duration.Seconds(),
	)
}

// MessageLogger logs message routing.
type MessageLogger struct {
	logger *Logger
}

// NewMessageLogger creates a new message logger.
func NewMessageLogger(logger *Logger) *MessageLogger {
	return &MessageLogger{logger: logger}
}

// LogPublish logs a routed publish without exposing its value.
func (ml *MessageLogger) LogPublish(sessionID, topic string, fanout int, latency time.Duration) {
	ml.logger.Debug("Publish routed",
		"session", sessionID,
		"topic", topic,
		"fanout", fanout,
		"latency_ms", float64(latency.Microseconds())/1000,
	)
}

// LogDeliveryFailed logs a failed send to one subscriber.
func (ml *MessageLogger) LogDeliveryFailed(sessionID, topic string, err error) {
	ml.logger.Warn("Delivery failed, dropping subscriber",
		"session", sessionID,
		"topic", topic,
		"error", err,
	)
}

// ErrorLogger provides detailed error logging.
type ErrorLogger struct {
	logger *Logger
}

// NewErrorLogger creates a new error logger.
func NewErrorLogger(logger *Logger) *ErrorLogger {
	return &ErrorLogger{logger: logger}
}

// LogError logs errors with context.
func (el *ErrorLogger) LogError(err error, operation string, context map[string]interface{}) {
	fields := make([]interface{}, 0, len(context)*2+4)
	fields = append(fields, "operation", operation, "error", err)
	for k, v := range context {
		fields = append(fields, k, v)
	}
	el.logger.Error("Operation failed", fields...)
}

// SanitizePayload describes raw bytes without exposing them.
func SanitizePayload(data []byte) string {
	if len(data) == 0 {
		return "[empty]"
	}
	return fmt.Sprintf("[%d bytes]", len(data))
}

// MaskIP partially masks IP addresses for privacy.
func MaskIP(addr string) string {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return "unknown"
	}

	ip := net.ParseIP(host)
	if ip == nil {
		return addr
	}

	if ip.To4() != nil {
		parts := strings.Split(host, ".")
		if len(parts) == 4 {
			return fmt.Sprintf("%s.%s.*.*:%s", parts[0], parts[1], port)
		}
	} else {
		parts := strings.Split(host, ":")
		if len(parts) > 2 {
			return fmt.Sprintf("%s:%s:*:%s", parts[0], parts[1], port)
		}
	}

	return addr
}

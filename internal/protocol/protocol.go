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
Package protocol defines the TopicMQ wire protocol.

FRAME FORMAT:
=============
Every frame is a 2-byte big-endian length followed by a codec-encoded body:

	+-------+-------+---------------------------------------+
	| Length (u16)  |  Body (Length bytes, codec-encoded)   |
	+-------+-------+---------------------------------------+

A length of zero, or a stream that ends before the first length byte,
marks end-of-stream. Bodies are limited to MaxFrameSize (65535) bytes.

BODY:
=====
Before encoding, a body is a structured value:

	{"command": <TAG>, "args": {...}}

"args" is omitted when the message has no arguments.

	CONNECT              codec   (string)
	PUBLISH              topic   (string), value (any)
	SUBSCRIBE            topic   (string)
	CANCEL_SUBSCRIPTION  topic   (string)
	REQUEST_LIST_TOPICS  -
	RESPONSE_LIST_TOPICS topics  (list of string)

HANDSHAKE:
==========
The first frame on a connection is CONNECT, always encoded with the JSON
codec. Every later frame in either direction uses the codec it names.

ERRORS:
=======
Framing failures, decode failures and unknown or malformed commands all
surface as *BadFormatError, which matches ErrBadFormat under errors.Is.
*/
package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"topicmq/internal/codec"
)

const (
	// PrefixSize is the size of the length prefix in bytes.
	PrefixSize = 2

	// MaxFrameSize is the largest body the prefix can describe.
	MaxFrameSize = 0xFFFF
)

// Protocol errors.
var (
	// ErrBadFormat matches every framing, decode or command error.
	ErrBadFormat = errors.New("bad format")

	// ErrFrameTooLarge is returned by WriteFrame for bodies above MaxFrameSize.
	ErrFrameTooLarge = errors.New("frame too large")
)

// BadFormatError carries the raw bytes that could not be turned into a message.
type BadFormatError struct {
	Raw []byte
	Err error
}

func (e *BadFormatError) Error() string {
	if e.Err == nil {
		return ErrBadFormat.Error()
	}
	return fmt.Sprintf("%s: %v", ErrBadFormat, e.Err)
}

func (e *BadFormatError) Unwrap() error { return e.Err }

func (e *BadFormatError) Is(target error) bool { return target == ErrBadFormat }

func badFormat(raw []byte, format string, args ...any) *BadFormatError {
	return &BadFormatError{Raw: raw, Err: fmt.Errorf(format, args...)}
}

// WriteFrame writes a length-prefixed body with a single Write call.
func WriteFrame(w io.Writer, body []byte) error {
	if len(body) > MaxFrameSize {
		return fmt.Errorf("%w: %d bytes (max %d)", ErrFrameTooLarge, len(body), MaxFrameSize)
	}
	if len(body) == 0 {
		return fmt.Errorf("empty frame body is reserved for end-of-stream")
	}

	buf := make([]byte, PrefixSize+len(body))
	binary.BigEndian.PutUint16(buf, uint16(len(body)))
	copy(buf[PrefixSize:], body)
	_, err := w.Write(buf)
	return err
}

// ReadFrame reads one frame body.
//
// RETURNS:
// - io.EOF if the stream ended before the prefix or the length is zero
// - *BadFormatError if the prefix or body was cut short
// - other I/O errors from r unchanged
func ReadFrame(r io.Reader) ([]byte, error) {
	var prefix [PrefixSize]byte
	n, err := io.ReadFull(r, prefix[:])
	switch {
	case errors.Is(err, io.EOF):
		return nil, io.EOF
	case errors.Is(err, io.ErrUnexpectedEOF):
		return nil, badFormat(prefix[:n], "short length prefix")
	case err != nil:
		return nil, err
	}

	length := binary.BigEndian.Uint16(prefix[:])
	if length == 0 {
		return nil, io.EOF
	}

	body := make([]byte, length)
	n, err = io.ReadFull(r, body)
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return nil, badFormat(body[:n], "short body: got %d of %d bytes", n, length)
	}
	if err != nil {
		return nil, err
	}
	return body, nil
}

// Encode turns a message into a frame body using c.
func Encode(msg Message, c codec.Codec) ([]byte, error) {
	return c.Encode(ToValue(msg))
}

// Decode resolves a frame body into a message using c.
func Decode(body []byte, c codec.Codec) (Message, error) {
	v, err := c.Decode(body)
	if err != nil {
		return nil, &BadFormatError{Raw: body, Err: err}
	}
	msg, err := FromValue(v)
	if err != nil {
		var bf *BadFormatError
		if errors.As(err, &bf) {
			bf.Raw = body
		}
		return nil, err
	}
	return msg, nil
}

// Send encodes msg with c and writes it as one frame.
func Send(w io.Writer, msg Message, c codec.Codec) error {
	body, err := Encode(msg, c)
	if err != nil {
		return err
	}
	return WriteFrame(w, body)
}

// Receive reads one frame and decodes it with c. io.EOF marks a clean close.
func Receive(r io.Reader, c codec.Codec) (Message, error) {
	body, err := ReadFrame(r)
	if err != nil {
		return nil, err
	}
	return Decode(body, c)
}

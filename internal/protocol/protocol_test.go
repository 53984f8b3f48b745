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

package protocol

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"reflect"
	"testing"

	"topicmq/internal/codec"
)

// countingWriter records how many Write calls it received.
type countingWriter struct {
	bytes.Buffer
	writes int
}

func (w *countingWriter) Write(p []byte) (int, error) {
	w.writes++
	return w.Buffer.Write(p)
}

func TestReadFrame(t *testing.T) {
	tests := []struct {
		name    string
		input   []byte
		want    []byte
		wantEOF bool
		wantBad bool
	}{
		{
			name:  "valid frame",
			input: []byte{0x00, 0x03, 'a', 'b', 'c'},
			want:  []byte("abc"),
		},
		{
			name:    "empty stream",
			input:   nil,
			wantEOF: true,
		},
		{
			name:    "zero length",
			input:   []byte{0x00, 0x00, 'x'},
			wantEOF: true,
		},
		{
			name:    "short prefix",
			input:   []byte{0x00},
			wantBad: true,
		},
		{
			name:    "short body",
			input:   []byte{0x00, 0x05, 'a', 'b'},
			wantBad: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ReadFrame(bytes.NewReader(tt.input))
			switch {
			case tt.wantEOF:
				if err != io.EOF {
					t.Fatalf("ReadFrame() error = %v, want io.EOF", err)
				}
			case tt.wantBad:
				if !errors.Is(err, ErrBadFormat) {
					t.Fatalf("ReadFrame() error = %v, want ErrBadFormat", err)
				}
			default:
				if err != nil {
					t.Fatalf("ReadFrame() unexpected error: %v", err)
				}
				if !bytes.Equal(got, tt.want) {
					t.Errorf("ReadFrame() = %q, want %q", got, tt.want)
				}
			}
		})
	}
}

func TestBadFormatCarriesRawBytes(t *testing.T) {
	_, err := ReadFrame(bytes.NewReader([]byte{0x00, 0x04, 'a', 'b'}))
	var bf *BadFormatError
	if !errors.As(err, &bf) {
		t.Fatalf("expected *BadFormatError, got %T", err)
	}
	if string(bf.Raw) != "ab" {
		t.Errorf("Raw = %q, want %q", bf.Raw, "ab")
	}
}

func TestWriteFrame(t *testing.T) {
	w := &countingWriter{}
	if err := WriteFrame(w, []byte("hello")); err != nil {
		t.Fatalf("WriteFrame() error: %v", err)
	}
	if w.writes != 1 {
		t.Errorf("WriteFrame() used %d writes, want 1", w.writes)
	}

	out := w.Bytes()
	if got := binary.BigEndian.Uint16(out); got != 5 {
		t.Errorf("prefix = %d, want 5", got)
	}
	if string(out[PrefixSize:]) != "hello" {
		t.Errorf("body = %q", out[PrefixSize:])
	}
}

func TestWriteFrameLimits(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteFrame(&buf, make([]byte, MaxFrameSize)); err != nil {
		t.Fatalf("max size frame rejected: %v", err)
	}

	buf.Reset()
	err := WriteFrame(&buf, make([]byte, MaxFrameSize+1))
	if !errors.Is(err, ErrFrameTooLarge) {
		t.Fatalf("expected ErrFrameTooLarge, got %v", err)
	}
	if buf.Len() != 0 {
		t.Errorf("oversized frame wrote %d bytes", buf.Len())
	}

	if err := WriteFrame(&buf, nil); err == nil {
		t.Error("expected error for empty body")
	}
}

func TestSendReceiveEveryCodec(t *testing.T) {
	messages := []Message{
		Connect{Codec: "XML"},
		Publish{Topic: "/temperature/porto", Value: int64(21)},
		Publish{Topic: "/a/b", Value: map[string]any{"x": int64(1)}},
		Subscribe{Topic: "/temperature"},
		CancelSubscription{Topic: "/temperature"},
		RequestListTopics{},
		ResponseListTopics{Topics: []string{"/a/b", "/temperature/porto"}},
		ResponseListTopics{Topics: []string{}},
	}

	for _, c := range []codec.Codec{codec.JSON{}, codec.XML{}, codec.Gob{}, codec.Protobuf{}} {
		var buf bytes.Buffer
		for _, msg := range messages {
			if err := Send(&buf, msg, c); err != nil {
				t.Fatalf("%s: Send(%T) error: %v", c.Name(), msg, err)
			}
		}
		for _, want := range messages {
			got, err := Receive(&buf, c)
			if err != nil {
				t.Fatalf("%s: Receive() error: %v", c.Name(), err)
			}
			if !reflect.DeepEqual(got, want) {
				t.Errorf("%s: got %#v, want %#v", c.Name(), got, want)
			}
		}
		if _, err := Receive(&buf, c); err != io.EOF {
			t.Errorf("%s: expected io.EOF after last frame, got %v", c.Name(), err)
		}
	}
}

func TestToValueOmitsEmptyArgs(t *testing.T) {
	v := ToValue(RequestListTopics{})
	if _, ok := v[KeyArgs]; ok {
		t.Errorf("args present for REQUEST_LIST_TOPICS: %v", v)
	}
	if v[KeyCommand] != "REQUEST_LIST_TOPICS" {
		t.Errorf("command = %v", v[KeyCommand])
	}
}

func TestFromValueErrors(t *testing.T) {
	tests := []struct {
		name  string
		value codec.Value
	}{
		{"missing command", codec.Value{"args": map[string]any{}}},
		{"command not string", codec.Value{"command": int64(1)}},
		{"unknown command", codec.Value{"command": "DELETE"}},
		{"args not map", codec.Value{"command": "SUBSCRIBE", "args": "x"}},
		{"missing topic", codec.Value{"command": "SUBSCRIBE", "args": map[string]any{}}},
		{"topic not string", codec.Value{"command": "PUBLISH", "args": map[string]any{"topic": int64(3), "value": "v"}}},
		{"missing value", codec.Value{"command": "PUBLISH", "args": map[string]any{"topic": "/a"}}},
		{"missing codec", codec.Value{"command": "CONNECT"}},
		{"topics not list", codec.Value{"command": "RESPONSE_LIST_TOPICS", "args": map[string]any{"topics": "/a"}}},
		{"topics element", codec.Value{"command": "RESPONSE_LIST_TOPICS", "args": map[string]any{"topics": []any{int64(1)}}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := FromValue(tt.value)
			if !errors.Is(err, ErrBadFormat) {
				t.Errorf("FromValue() error = %v, want ErrBadFormat", err)
			}
		})
	}
}

func TestReceiveUndecodableBody(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteFrame(&buf, []byte("{not json")); err != nil {
		t.Fatal(err)
	}

	_, err := Receive(&buf, codec.JSON{})
	var bf *BadFormatError
	if !errors.As(err, &bf) {
		t.Fatalf("expected *BadFormatError, got %v", err)
	}
	if string(bf.Raw) != "{not json" {
		t.Errorf("Raw = %q", bf.Raw)
	}
	if !errors.Is(err, codec.ErrDecode) {
		t.Errorf("expected wrapped codec.ErrDecode, got %v", err)
	}
}

func TestReceiveUnknownCommandKeepsRaw(t *testing.T) {
	var buf bytes.Buffer
	body := []byte(`{"command":"SHUTDOWN"}`)
	if err := WriteFrame(&buf, body); err != nil {
		t.Fatal(err)
	}

	_, err := Receive(&buf, codec.JSON{})
	var bf *BadFormatError
	if !errors.As(err, &bf) {
		t.Fatalf("expected *BadFormatError, got %v", err)
	}
	if !bytes.Equal(bf.Raw, body) {
		t.Errorf("Raw = %q, want %q", bf.Raw, body)
	}
}

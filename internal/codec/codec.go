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
Package codec converts TopicMQ message values to and from frame bodies.

VALUE MODEL:
============
A message value is a map of named fields. Leaves are nil, string, bool,
int64 or float64; containers are []any and map[string]any. Every codec
returns values in this normalized shape so that a value decoded by one
codec can be re-encoded by any other.
JSON, XML and GOB round-trip every value exactly. PROTOBUF stores numbers
as doubles, so whole-number floats come back as int64.

CODECS:
=======

	JSON      structured text (github.com/goccy/go-json)
	XML       markup, command as a root attribute, typed <arg> children
	GOB       native Go object graph (encoding/gob)
	PROTOBUF  google.protobuf.Struct

A client announces its codec by name in the CONNECT handshake. The broker
looks the name up in a Registry and uses the result for every later frame
on that connection.

SECURITY:
=========
The GOB codec decodes arbitrary object graphs from untrusted peers. It runs
no constructors, but it allocates according to the peer's type stream. The
frame size limit bounds that cost; deployments that do not need GOB can
leave it out of the enabled codec list.
*/
package codec

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Codec errors
var (
	ErrEncode       = errors.New("codec: encode failed")
	ErrDecode       = errors.New("codec: decode failed")
	ErrUnknownCodec = errors.New("codec: unknown codec")
)

// Value is the generic structured value exchanged with codecs.
type Value = map[string]any

// Codec encodes and decodes message values.
// Implementations must be safe for concurrent use.
type Codec interface {
	// Name is the identifier announced during the handshake.
	Name() string

	// Encode serializes a value. Failures wrap ErrEncode.
	Encode(v Value) ([]byte, error)

	// Decode parses a frame body. Failures wrap ErrDecode.
	Decode(data []byte) (Value, error)
}

// Registry maps handshake names to codecs. It is immutable once built.
type Registry struct {
	codecs map[string]Codec
}

// NewRegistry builds a registry holding the given codecs.
func NewRegistry(codecs ...Codec) *Registry {
	r := &Registry{codecs: make(map[string]Codec, len(codecs))}
	for _, c := range codecs {
		r.codecs[strings.ToUpper(c.Name())] = c
	}
	return r
}

// Default returns a registry with every built-in codec.
func Default() *Registry {
	return NewRegistry(JSON{}, XML{}, Gob{}, Protobuf{})
}

// Lookup finds a codec by name, ignoring case.
func (r *Registry) Lookup(name string) (Codec, error) {
	c, ok := r.codecs[strings.ToUpper(strings.TrimSpace(name))]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownCodec, name)
	}
	return c, nil
}

// Names returns the registered codec names in sorted order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.codecs))
	for name := range r.codecs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Subset returns a registry restricted to the named codecs.
// An empty list keeps every codec.
func (r *Registry) Subset(names []string) (*Registry, error) {
	if len(names) == 0 {
		return r, nil
	}
	out := &Registry{codecs: make(map[string]Codec, len(names))}
	for _, name := range names {
		c, err := r.Lookup(name)
		if err != nil {
			return nil, err
		}
		out.codecs[strings.ToUpper(c.Name())] = c
	}
	return out, nil
}

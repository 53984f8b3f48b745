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

package codec

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/goccy/go-json"
)

// JSON is the structured-text codec. The handshake always uses it.
type JSON struct{}

func (JSON) Name() string { return "JSON" }

func (JSON) Encode(v Value) ([]byte, error) {
	data, err := json.Marshal(jsonWire(v))
	if err != nil {
		return nil, fmt.Errorf("%w: json: %v", ErrEncode, err)
	}
	return data, nil
}

func (JSON) Decode(data []byte) (Value, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var raw map[string]any
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("%w: json: %v", ErrDecode, err)
	}
	if raw == nil {
		return nil, fmt.Errorf("%w: json: body is not an object", ErrDecode)
	}
	if err := dec.Decode(new(any)); !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: json: trailing data after object", ErrDecode)
	}

	v, err := NormalizeValue(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: json: %v", ErrDecode, err)
	}
	return v, nil
}

// jsonWire copies v with whole-number floats written as json.Number "2.0",
// so they decode as float64 instead of int64.
func jsonWire(v any) any {
	switch x := v.(type) {
	case float32:
		return jsonFloat(float64(x))
	case float64:
		return jsonFloat(x)
	case []any:
		out := make([]any, len(x))
		for i, e := range x {
			out[i] = jsonWire(e)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, e := range x {
			out[k] = jsonWire(e)
		}
		return out
	}
	return v
}

func jsonFloat(f float64) any {
	if math.IsNaN(f) || math.IsInf(f, 0) || f != math.Trunc(f) {
		return f
	}
	s := strconv.FormatFloat(f, 'g', -1, 64)
	if !strings.ContainsAny(s, ".eE") {
		s += ".0"
	}
	return json.Number(s)
}

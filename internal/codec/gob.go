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
	"encoding/gob"
	"fmt"
)

func init() {
	// Container types travel inside interface values and must be registered.
	gob.Register([]any{})
	gob.Register(map[string]any{})
}

// Gob is the native-object codec. Each frame is a self-describing gob
// stream holding one map.
type Gob struct{}

func (Gob) Name() string { return "GOB" }

func (Gob) Encode(v Value) ([]byte, error) {
	nv, err := NormalizeValue(v)
	if err != nil {
		return nil, fmt.Errorf("%w: gob: %v", ErrEncode, err)
	}
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(nv); err != nil {
		return nil, fmt.Errorf("%w: gob: %v", ErrEncode, err)
	}
	return buf.Bytes(), nil
}

func (Gob) Decode(data []byte) (Value, error) {
	var raw map[string]any
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&raw); err != nil {
		return nil, fmt.Errorf("%w: gob: %v", ErrDecode, err)
	}
	v, err := NormalizeValue(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: gob: %v", ErrDecode, err)
	}
	if v == nil {
		v = Value{}
	}
	return v, nil
}

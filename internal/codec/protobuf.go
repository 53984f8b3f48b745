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
	"fmt"
	"math"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

// maxExactFloat is the largest magnitude at which every integer is a float64.
const maxExactFloat = 1 << 53

// Protobuf encodes values as a google.protobuf.Struct.
//
// Struct numbers are doubles, so integral numbers decode as int64 and a
// float such as 2.0 comes back as the integer 2.
type Protobuf struct{}

func (Protobuf) Name() string { return "PROTOBUF" }

func (Protobuf) Encode(v Value) ([]byte, error) {
	nv, err := NormalizeValue(v)
	if err != nil {
		return nil, fmt.Errorf("%w: protobuf: %v", ErrEncode, err)
	}
	s, err := structpb.NewStruct(nv)
	if err != nil {
		return nil, fmt.Errorf("%w: protobuf: %v", ErrEncode, err)
	}
	data, err := proto.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("%w: protobuf: %v", ErrEncode, err)
	}
	return data, nil
}

func (Protobuf) Decode(data []byte) (Value, error) {
	var s structpb.Struct
	if err := proto.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("%w: protobuf: %v", ErrDecode, err)
	}
	return integralMap(s.AsMap()), nil
}

func integralMap(m map[string]any) Value {
	for k, v := range m {
		m[k] = integral(v)
	}
	return m
}

func integral(v any) any {
	switch x := v.(type) {
	case float64:
		if x == math.Trunc(x) && math.Abs(x) <= maxExactFloat {
			return int64(x)
		}
		return x
	case []any:
		for i, e := range x {
			x[i] = integral(e)
		}
		return x
	case map[string]any:
		return integralMap(x)
	}
	return v
}

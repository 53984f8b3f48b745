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
	"encoding/base64"
	"encoding/xml"
	"fmt"
	"sort"
	"strconv"
	"unicode/utf8"
)

// XML is the markup codec.
//
// A PUBLISH to /a with value {"x": [1, "y"]} is encoded as:
//
//	<message command="PUBLISH">
//	  <arg name="topic" type="str" value="/a"></arg>
//	  <arg name="value" type="dict">
//	    <arg name="x" type="list">
//	      <item type="int" value="1"></item>
//	      <item type="str" value="y"></item>
//	    </arg>
//	  </arg>
//	</message>
//
// Lists and maps are written as nested children, so every kind round-trips.
// Strings holding characters XML cannot carry (control characters, invalid
// UTF-8) are written base64-encoded with type "str64".
type XML struct{}

const (
	xmlStr   = "str"
	xmlStr64 = "str64"
	xmlInt   = "int"
	xmlFloat = "float"
	xmlBool  = "bool"
	xmlNull  = "null"
	xmlList  = "list"
	xmlDict  = "dict"
)

type xmlMessage struct {
	XMLName xml.Name  `xml:"message"`
	Command string    `xml:"command,attr"`
	Args    []xmlNode `xml:"arg"`
}

// xmlNode is either a named <arg> (map member) or an <item> (list element).
type xmlNode struct {
	Name  string    `xml:"name,attr,omitempty"`
	Type  string    `xml:"type,attr"`
	Value string    `xml:"value,attr,omitempty"`
	Args  []xmlNode `xml:"arg"`
	Items []xmlNode `xml:"item"`
}

func (XML) Name() string { return "XML" }

func (XML) Encode(v Value) ([]byte, error) {
	msg := xmlMessage{}
	for k, e := range v {
		switch k {
		case "command":
			cmd, ok := e.(string)
			if !ok {
				return nil, fmt.Errorf("%w: xml: command must be a string, got %T", ErrEncode, e)
			}
			if !xmlSafe(cmd) {
				return nil, fmt.Errorf("%w: xml: command %q has characters XML cannot carry", ErrEncode, cmd)
			}
			msg.Command = cmd
		case "args":
			args, ok := e.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("%w: xml: args must be a map, got %T", ErrEncode, e)
			}
			nodes, err := xmlEncodeMap(args)
			if err != nil {
				return nil, fmt.Errorf("%w: xml: %v", ErrEncode, err)
			}
			msg.Args = nodes
		default:
			return nil, fmt.Errorf("%w: xml: unsupported top-level field %q", ErrEncode, k)
		}
	}

	data, err := xml.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("%w: xml: %v", ErrEncode, err)
	}
	return data, nil
}

func (XML) Decode(data []byte) (Value, error) {
	var msg xmlMessage
	if err := xml.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("%w: xml: %v", ErrDecode, err)
	}

	v := Value{"command": msg.Command}
	if len(msg.Args) > 0 {
		args, err := xmlDecodeMap(msg.Args)
		if err != nil {
			return nil, fmt.Errorf("%w: xml: %v", ErrDecode, err)
		}
		v["args"] = args
	}
	return v, nil
}

func xmlEncodeMap(m map[string]any) ([]xmlNode, error) {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	nodes := make([]xmlNode, 0, len(keys))
	for _, k := range keys {
		if !xmlSafe(k) {
			return nil, fmt.Errorf("key %q has characters XML cannot carry", k)
		}
		n, err := xmlEncodeNode(m[k])
		if err != nil {
			return nil, fmt.Errorf("%s: %w", k, err)
		}
		n.Name = k
		nodes = append(nodes, n)
	}
	return nodes, nil
}

func xmlEncodeNode(v any) (xmlNode, error) {
	v, err := Normalize(v)
	if err != nil {
		return xmlNode{}, err
	}

	switch x := v.(type) {
	case nil:
		return xmlNode{Type: xmlNull}, nil
	case string:
		if !xmlSafe(x) {
			return xmlNode{Type: xmlStr64, Value: base64.StdEncoding.EncodeToString([]byte(x))}, nil
		}
		return xmlNode{Type: xmlStr, Value: x}, nil
	case bool:
		return xmlNode{Type: xmlBool, Value: strconv.FormatBool(x)}, nil
	case int64:
		return xmlNode{Type: xmlInt, Value: strconv.FormatInt(x, 10)}, nil
	case float64:
		return xmlNode{Type: xmlFloat, Value: strconv.FormatFloat(x, 'g', -1, 64)}, nil
	case []any:
		n := xmlNode{Type: xmlList, Items: make([]xmlNode, 0, len(x))}
		for _, e := range x {
			item, err := xmlEncodeNode(e)
			if err != nil {
				return xmlNode{}, err
			}
			n.Items = append(n.Items, item)
		}
		return n, nil
	case map[string]any:
		args, err := xmlEncodeMap(x)
		if err != nil {
			return xmlNode{}, err
		}
		return xmlNode{Type: xmlDict, Args: args}, nil
	}
	return xmlNode{}, fmt.Errorf("unsupported value type %T", v)
}

func xmlDecodeMap(nodes []xmlNode) (map[string]any, error) {
	m := make(map[string]any, len(nodes))
	for _, n := range nodes {
		v, err := xmlDecodeNode(n)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", n.Name, err)
		}
		m[n.Name] = v
	}
	return m, nil
}

func xmlDecodeNode(n xmlNode) (any, error) {
	switch n.Type {
	case xmlNull:
		return nil, nil
	case xmlStr:
		return n.Value, nil
	case xmlStr64:
		b, err := base64.StdEncoding.DecodeString(n.Value)
		if err != nil {
			return nil, err
		}
		return string(b), nil
	case xmlBool:
		return strconv.ParseBool(n.Value)
	case xmlInt:
		return strconv.ParseInt(n.Value, 10, 64)
	case xmlFloat:
		return strconv.ParseFloat(n.Value, 64)
	case xmlList:
		out := make([]any, 0, len(n.Items))
		for _, item := range n.Items {
			v, err := xmlDecodeNode(item)
			if err != nil {
				return nil, err
			}
			out = append(out, v)
		}
		return out, nil
	case xmlDict:
		return xmlDecodeMap(n.Args)
	}
	return nil, fmt.Errorf("unknown type %q", n.Type)
}

// xmlSafe reports whether s survives an XML attribute unchanged.
func xmlSafe(s string) bool {
	for i := 0; i < len(s); {
		r, size := utf8.DecodeRuneInString(s[i:])
		if r == utf8.RuneError && size == 1 {
			return false
		}
		if !xmlChar(r) {
			return false
		}
		i += size
	}
	return true
}

// xmlChar follows the Char production of XML 1.0.
func xmlChar(r rune) bool {
	return r == 0x09 || r == 0x0A || r == 0x0D ||
		(r >= 0x20 && r <= 0xD7FF) ||
		(r >= 0xE000 && r <= 0xFFFD) ||
		(r >= 0x10000 && r <= 0x10FFFF)
}

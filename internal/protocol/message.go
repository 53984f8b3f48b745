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
	"topicmq/internal/codec"
)

// Command is the tag that selects a message variant.
type Command string

const (
	CmdConnect            Command = "CONNECT"
	CmdPublish            Command = "PUBLISH"
	CmdSubscribe          Command = "SUBSCRIBE"
	CmdCancelSubscription Command = "CANCEL_SUBSCRIPTION"
	CmdRequestListTopics  Command = "REQUEST_LIST_TOPICS"
	CmdResponseListTopics Command = "RESPONSE_LIST_TOPICS"
)

// Body and argument keys.
const (
	KeyCommand = "command"
	KeyArgs    = "args"
	ArgCodec   = "codec"
	ArgTopic   = "topic"
	ArgValue   = "value"
	ArgTopics  = "topics"
)

// Message is one of the six protocol messages. The set is closed.
type Message interface {
	Command() Command
	args() map[string]any
}

// Connect is the handshake announcing the codec for the rest of the connection.
type Connect struct {
	Codec string
}

// Publish stores Value under Topic and fans it out to subscribers.
type Publish struct {
	Topic string
	Value any
}

// Subscribe registers interest in Topic and every topic below it.
type Subscribe struct {
	Topic string
}

// CancelSubscription removes interest in Topic.
type CancelSubscription struct {
	Topic string
}

// RequestListTopics asks for every topic that has been published to.
type RequestListTopics struct{}

// ResponseListTopics answers RequestListTopics.
type ResponseListTopics struct {
	Topics []string
}

func (Connect) Command() Command            { return CmdConnect }
func (Publish) Command() Command            { return CmdPublish }
func (Subscribe) Command() Command          { return CmdSubscribe }
func (CancelSubscription) Command() Command { return CmdCancelSubscription }
func (RequestListTopics) Command() Command  { return CmdRequestListTopics }
func (ResponseListTopics) Command() Command { return CmdResponseListTopics }

func (m Connect) args() map[string]any { return map[string]any{ArgCodec: m.Codec} }
func (m Publish) args() map[string]any {
	return map[string]any{ArgTopic: m.Topic, ArgValue: m.Value}
}
func (m Subscribe) args() map[string]any          { return map[string]any{ArgTopic: m.Topic} }
func (m CancelSubscription) args() map[string]any { return map[string]any{ArgTopic: m.Topic} }
func (RequestListTopics) args() map[string]any    { return nil }
func (m ResponseListTopics) args() map[string]any {
	topics := make([]any, len(m.Topics))
	for i, t := range m.Topics {
		topics[i] = t
	}
	return map[string]any{ArgTopics: topics}
}

// ToValue converts a message into the structured value codecs consume.
func ToValue(msg Message) codec.Value {
	v := codec.Value{KeyCommand: string(msg.Command())}
	if args := msg.args(); len(args) > 0 {
		v[KeyArgs] = args
	}
	return v
}

// FromValue resolves a decoded value into a message. Every failure is a
// *BadFormatError without Raw bytes; Decode fills them in.
func FromValue(v codec.Value) (Message, error) {
	tag, ok := v[KeyCommand].(string)
	if !ok {
		return nil, badFormat(nil, "missing command")
	}

	var args map[string]any
	if raw, present := v[KeyArgs]; present && raw != nil {
		args, ok = raw.(map[string]any)
		if !ok {
			return nil, badFormat(nil, "%s: args is %T, not a map", tag, raw)
		}
	}

	switch Command(tag) {
	case CmdConnect:
		name, err := stringArg(tag, args, ArgCodec)
		if err != nil {
			return nil, err
		}
		return Connect{Codec: name}, nil
	case CmdPublish:
		topic, err := stringArg(tag, args, ArgTopic)
		if err != nil {
			return nil, err
		}
		value, ok := args[ArgValue]
		if !ok {
			return nil, badFormat(nil, "%s: missing argument %q", tag, ArgValue)
		}
		return Publish{Topic: topic, Value: value}, nil
	case CmdSubscribe:
		topic, err := stringArg(tag, args, ArgTopic)
		if err != nil {
			return nil, err
		}
		return Subscribe{Topic: topic}, nil
	case CmdCancelSubscription:
		topic, err := stringArg(tag, args, ArgTopic)
		if err != nil {
			return nil, err
		}
		return CancelSubscription{Topic: topic}, nil
	case CmdRequestListTopics:
		return RequestListTopics{}, nil
	case CmdResponseListTopics:
		raw, ok := args[ArgTopics]
		if !ok {
			return nil, badFormat(nil, "%s: missing argument %q", tag, ArgTopics)
		}
		topics, err := stringList(tag, raw)
		if err != nil {
			return nil, err
		}
		return ResponseListTopics{Topics: topics}, nil
	}
	return nil, badFormat(nil, "unknown command %q", tag)
}

func stringArg(tag string, args map[string]any, key string) (string, error) {
	raw, ok := args[key]
	if !ok {
		return "", badFormat(nil, "%s: missing argument %q", tag, key)
	}
	s, ok := raw.(string)
	if !ok {
		return "", badFormat(nil, "%s: argument %q is %T, not a string", tag, key, raw)
	}
	return s, nil
}

func stringList(tag string, raw any) ([]string, error) {
	if raw == nil {
		return []string{}, nil
	}
	items, ok := raw.([]any)
	if !ok {
		return nil, badFormat(nil, "%s: topics is %T, not a list", tag, raw)
	}
	out := make([]string, len(items))
	for i, item := range items {
		s, ok := item.(string)
		if !ok {
			return nil, badFormat(nil, "%s: topics[%d] is %T, not a string", tag, i, item)
		}
		out[i] = s
	}
	return out, nil
}

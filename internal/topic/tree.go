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

// Package topic implements the hierarchical topic namespace.
//
// Topics are "/"-separated paths. A subscriber attached to a node receives
// publishes made to that node and to every node below it. Nodes are created
// by Put and Subscribe and never removed; read-only operations walk the
// tree without creating anything.
package topic

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidPath is returned for paths with no usable segments.
var ErrInvalidPath = errors.New("invalid topic path")

// Separator splits topic segments.
const Separator = "/"

// ParsePath splits a topic into its segments. A leading separator and a
// single trailing separator are ignored; an empty path or an empty
// interior segment is invalid.
func ParsePath(path string) ([]string, error) {
	trimmed := strings.TrimPrefix(path, Separator)
	trimmed = strings.TrimSuffix(trimmed, Separator)
	if trimmed == "" {
		return nil, fmt.Errorf("%w: %q", ErrInvalidPath, path)
	}
	segments := strings.Split(trimmed, Separator)
	for _, s := range segments {
		if s == "" {
			return nil, fmt.Errorf("%w: empty segment in %q", ErrInvalidPath, path)
		}
	}
	return segments, nil
}

// Canonical returns the normalized "/a/b" form of a topic.
func Canonical(path string) (string, error) {
	segments, err := ParsePath(path)
	if err != nil {
		return "", err
	}
	return Separator + strings.Join(segments, Separator), nil
}

type node[S comparable] struct {
	segment     string
	parent      *node[S]
	value       any
	hasValue    bool
	subscribers map[S]struct{}
	children    []*node[S]
	index       map[string]*node[S]
}

func newNode[S comparable](segment string, parent *node[S]) *node[S] {
	return &node[S]{
		segment:     segment,
		parent:      parent,
		subscribers: make(map[S]struct{}),
		index:       make(map[string]*node[S]),
	}
}

func (n *node[S]) child(segment string) *node[S] {
	return n.index[segment]
}

func (n *node[S]) addChild(segment string) *node[S] {
	c := newNode(segment, n)
	n.children = append(n.children, c)
	n.index[segment] = c
	return c
}

// path rebuilds the canonical topic of n from its ancestors.
func (n *node[S]) path() string {
	if n.parent == nil {
		return Separator
	}
	var segments []string
	for cur := n; cur.parent != nil; cur = cur.parent {
		segments = append(segments, cur.segment)
	}
	var b strings.Builder
	for i := len(segments) - 1; i >= 0; i-- {
		b.WriteString(Separator)
		b.WriteString(segments[i])
	}
	return b.String()
}

// Tree is the topic namespace. S identifies a subscriber.
//
// Tree is not safe for concurrent use; the broker event loop owns it.
type Tree[S comparable] struct {
	root      *node[S]
	nodes     int
	published []string
	seen      map[string]struct{}
}

// NewTree creates an empty tree.
func NewTree[S comparable]() *Tree[S] {
	return &Tree[S]{
		root:  newNode[S](Separator, nil),
		nodes: 1,
		seen:  make(map[string]struct{}),
	}
}

// resolve walks to the node for path, creating missing segments.
func (t *Tree[S]) resolve(path string) (*node[S], error) {
	segments, err := ParsePath(path)
	if err != nil {
		return nil, err
	}
	n := t.root
	for _, s := range segments {
		c := n.child(s)
		if c == nil {
			c = n.addChild(s)
			t.nodes++
		}
		n = c
	}
	return n, nil
}

// lookup walks to the node for path without creating anything.
// It returns nil if some segment does not exist.
func (t *Tree[S]) lookup(path string) (*node[S], error) {
	segments, err := ParsePath(path)
	if err != nil {
		return nil, err
	}
	n := t.root
	for _, s := range segments {
		if n = n.child(s); n == nil {
			return nil, nil
		}
	}
	return n, nil
}

// Put stores value at path and records path as published.
// It returns the canonical form of path.
func (t *Tree[S]) Put(path string, value any) (string, error) {
	n, err := t.resolve(path)
	if err != nil {
		return "", err
	}
	n.value = value
	n.hasValue = true

	canonical := n.path()
	if _, ok := t.seen[canonical]; !ok {
		t.seen[canonical] = struct{}{}
		t.published = append(t.published, canonical)
	}
	return canonical, nil
}

// Value returns the last value stored at path.
func (t *Tree[S]) Value(path string) (any, bool, error) {
	n, err := t.lookup(path)
	if err != nil || n == nil {
		return nil, false, err
	}
	return n.value, n.hasValue, nil
}

// Subscribe attaches sub to path, creating the node if needed.
func (t *Tree[S]) Subscribe(path string, sub S) error {
	n, err := t.resolve(path)
	if err != nil {
		return err
	}
	n.subscribers[sub] = struct{}{}
	return nil
}

// Unsubscribe detaches sub from path. It reports whether sub was attached.
func (t *Tree[S]) Unsubscribe(path string, sub S) (bool, error) {
	n, err := t.lookup(path)
	if err != nil || n == nil {
		return false, err
	}
	if _, ok := n.subscribers[sub]; !ok {
		return false, nil
	}
	delete(n.subscribers, sub)
	return true, nil
}

// Subscribers returns every subscriber attached to path or to any of its
// ancestors, each once, ordered from the shallowest node down.
func (t *Tree[S]) Subscribers(path string) ([]S, error) {
	segments, err := ParsePath(path)
	if err != nil {
		return nil, err
	}

	var out []S
	seen := make(map[S]struct{})
	collect := func(n *node[S]) {
		for s := range n.subscribers {
			if _, dup := seen[s]; !dup {
				seen[s] = struct{}{}
				out = append(out, s)
			}
		}
	}

	n := t.root
	for _, s := range segments {
		if n = n.child(s); n == nil {
			break
		}
		collect(n)
	}
	return out, nil
}

// RemoveEverywhere detaches sub from every node and returns how many
// nodes it was removed from. Nodes are kept.
func (t *Tree[S]) RemoveEverywhere(sub S) int {
	removed := 0
	stack := []*node[S]{t.root}
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if _, ok := n.subscribers[sub]; ok {
			delete(n.subscribers, sub)
			removed++
		}
		stack = append(stack, n.children...)
	}
	return removed
}

// PublishedTopics lists every topic that received a Put, in first-publish order.
func (t *Tree[S]) PublishedTopics() []string {
	out := make([]string, len(t.published))
	copy(out, t.published)
	return out
}

// PublishedCount returns len(PublishedTopics()) without copying.
func (t *Tree[S]) PublishedCount() int {
	return len(t.published)
}

// Len returns the number of nodes, including the root.
func (t *Tree[S]) Len() int {
	return t.nodes
}

// SubscribedTopics returns every topic sub is attached to.
func (t *Tree[S]) SubscribedTopics(sub S) []string {
	var out []string
	var walk func(n *node[S])
	walk = func(n *node[S]) {
		if _, ok := n.subscribers[sub]; ok {
			out = append(out, n.path())
		}
		for _, c := range n.children {
			walk(c)
		}
	}
	walk(t.root)
	return out
}

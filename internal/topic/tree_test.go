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

package topic

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePath(t *testing.T) {
	tests := []struct {
		path    string
		want    []string
		wantErr bool
	}{
		{"/temperature/porto", []string{"temperature", "porto"}, false},
		{"temperature/porto", []string{"temperature", "porto"}, false},
		{"/a/", []string{"a"}, false},
		{"/a", []string{"a"}, false},
		{"", nil, true},
		{"/", nil, true},
		{"//", nil, true},
		{"/a//b", nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			got, err := ParsePath(tt.path)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidPath)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestPrefixFanOut(t *testing.T) {
	tree := NewTree[string]()
	require.NoError(t, tree.Subscribe("/temperature", "S"))
	require.NoError(t, tree.Subscribe("/temperature/porto", "P"))
	require.NoError(t, tree.Subscribe("/humidity", "H"))

	subs, err := tree.Subscribers("/temperature/porto")
	require.NoError(t, err)
	assert.Equal(t, []string{"S", "P"}, subs)

	subs, err = tree.Subscribers("/temperature")
	require.NoError(t, err)
	assert.Equal(t, []string{"S"}, subs)

	subs, err = tree.Subscribers("/temperature/lisbon/center")
	require.NoError(t, err)
	assert.Equal(t, []string{"S"}, subs)
}

func TestSubscribersDeduplicated(t *testing.T) {
	tree := NewTree[string]()
	require.NoError(t, tree.Subscribe("/a", "S"))
	require.NoError(t, tree.Subscribe("/a/b", "S"))
	require.NoError(t, tree.Subscribe("/a/b", "S"))

	subs, err := tree.Subscribers("/a/b")
	require.NoError(t, err)
	assert.Equal(t, []string{"S"}, subs)
}

func TestUnsubscribe(t *testing.T) {
	tree := NewTree[string]()
	require.NoError(t, tree.Subscribe("/temperature", "S"))

	ok, err := tree.Unsubscribe("/temperature", "S")
	require.NoError(t, err)
	assert.True(t, ok)

	subs, err := tree.Subscribers("/temperature/porto")
	require.NoError(t, err)
	assert.Empty(t, subs)

	ok, err = tree.Unsubscribe("/temperature", "S")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = tree.Unsubscribe("/never/created", "S")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRemoveEverywhere(t *testing.T) {
	tree := NewTree[int]()
	require.NoError(t, tree.Subscribe("/a", 1))
	require.NoError(t, tree.Subscribe("/a/b/c", 1))
	require.NoError(t, tree.Subscribe("/x", 1))
	require.NoError(t, tree.Subscribe("/x", 2))

	assert.Equal(t, 3, tree.RemoveEverywhere(1))
	assert.Empty(t, tree.SubscribedTopics(1))
	assert.Equal(t, []string{"/x"}, tree.SubscribedTopics(2))

	subs, err := tree.Subscribers("/a/b/c")
	require.NoError(t, err)
	assert.Empty(t, subs)

	// nodes survive the purge
	assert.Equal(t, 5, tree.Len())
}

func TestPublishedTopics(t *testing.T) {
	tree := NewTree[string]()
	require.NoError(t, tree.Subscribe("/only/subscribed", "S"))

	_, err := tree.Put("/temperature/porto", int64(21))
	require.NoError(t, err)
	_, err = tree.Put("/a/b", "x")
	require.NoError(t, err)
	canonical, err := tree.Put("temperature/porto/", int64(22))
	require.NoError(t, err)
	assert.Equal(t, "/temperature/porto", canonical)

	assert.Equal(t, []string{"/temperature/porto", "/a/b"}, tree.PublishedTopics())
}

func TestValueIsLookupOnly(t *testing.T) {
	tree := NewTree[string]()
	before := tree.Len()

	_, found, err := tree.Value("/missing/topic")
	require.NoError(t, err)
	assert.False(t, found)
	assert.Equal(t, before, tree.Len())

	_, err = tree.Subscribers("/missing/topic")
	require.NoError(t, err)
	assert.Equal(t, before, tree.Len())

	_, err = tree.Put("/a/b", int64(5))
	require.NoError(t, err)
	v, found, err := tree.Value("/a/b")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, int64(5), v)

	_, found, err = tree.Value("/a")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestInvalidPathOperations(t *testing.T) {
	tree := NewTree[string]()
	for _, path := range []string{"", "/"} {
		_, err := tree.Put(path, 1)
		assert.ErrorIs(t, err, ErrInvalidPath)
		assert.ErrorIs(t, tree.Subscribe(path, "S"), ErrInvalidPath)
		_, err = tree.Unsubscribe(path, "S")
		assert.ErrorIs(t, err, ErrInvalidPath)
		_, err = tree.Subscribers(path)
		assert.ErrorIs(t, err, ErrInvalidPath)
	}
	assert.Empty(t, tree.PublishedTopics())
	assert.Equal(t, 1, tree.Len())
}

func TestChildrenUniquePerParent(t *testing.T) {
	tree := NewTree[string]()
	require.NoError(t, tree.Subscribe("/a/b", "S"))
	require.NoError(t, tree.Subscribe("/a/b", "T"))
	_, err := tree.Put("/a/b", 1)
	require.NoError(t, err)

	assert.Len(t, tree.root.children, 1)
	assert.Len(t, tree.root.children[0].children, 1)
	assert.Equal(t, 3, tree.Len())
}

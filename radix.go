package enode

// Forked from https://github.com/armon/go-radix
// Made generic, migrated to Go 1.23 iterators, and trimmed down to the
// operations the registry needs.

import (
	"iter"
	"sort"
	"strings"
)

// radixLeaf is used to represent a value
type radixLeaf[T any] struct {
	key string
	val T
}

// radixEdge is used to represent an edge node
type radixEdge[T any] struct {
	label byte
	node  *radixNode[T]
}

type radixNode[T any] struct {
	// leaf is used to store possible leaf
	leaf *radixLeaf[T]

	// prefix is the common prefix we ignore
	prefix string

	// Edges should be stored in-order for iteration.
	// We avoid a fully materialized slice to save memory,
	// since in most cases we expect to be sparse
	edges radixEdges[T]
}

func (n *radixNode[T]) isLeaf() bool {
	return n.leaf != nil
}

func (n *radixNode[T]) addEdge(e radixEdge[T]) {
	num := len(n.edges)
	idx := sort.Search(num, func(i int) bool {
		return n.edges[i].label >= e.label
	})

	n.edges = append(n.edges, radixEdge[T]{})
	copy(n.edges[idx+1:], n.edges[idx:])
	n.edges[idx] = e
}

func (n *radixNode[T]) updateEdge(label byte, node *radixNode[T]) {
	num := len(n.edges)
	idx := sort.Search(num, func(i int) bool {
		return n.edges[i].label >= label
	})
	if idx < num && n.edges[idx].label == label {
		n.edges[idx].node = node
		return
	}
	panic("replacing missing edge")
}

func (n *radixNode[T]) getEdge(label byte) *radixNode[T] {
	num := len(n.edges)
	idx := sort.Search(num, func(i int) bool {
		return n.edges[i].label >= label
	})
	if idx < num && n.edges[idx].label == label {
		return n.edges[idx].node
	}
	return nil
}

func (n *radixNode[T]) delEdge(label byte) {
	num := len(n.edges)
	idx := sort.Search(num, func(i int) bool {
		return n.edges[i].label >= label
	})
	if idx < num && n.edges[idx].label == label {
		copy(n.edges[idx:], n.edges[idx+1:])
		n.edges[len(n.edges)-1] = radixEdge[T]{}
		n.edges = n.edges[:len(n.edges)-1]
	}
}

func (n *radixNode[T]) mergeChild() {
	e := n.edges[0]
	child := e.node
	n.prefix = n.prefix + child.prefix
	n.leaf = child.leaf
	n.edges = child.edges
}

type radixEdges[T any] []radixEdge[T]

// radixTree implements a radix tree. The main advantage over a standard
// hash map is prefix-based lookups and ordered iteration.
type radixTree[T any] struct {
	root *radixNode[T]
	size int
}

func newRadixTree[T any]() *radixTree[T] {
	return &radixTree[T]{root: &radixNode[T]{}}
}

// Len is used to return the number of elements in the tree
func (t *radixTree[T]) Len() int {
	return t.size
}

// longestPrefix finds the length of the shared prefix
// of two strings
func longestPrefix(k1, k2 string) int {
	max := len(k1)
	if l := len(k2); l < max {
		max = l
	}
	var i int
	for i = 0; i < max; i++ {
		if k1[i] != k2[i] {
			break
		}
	}
	return i
}

// Insert is used to add a new entry or update
// an existing entry. Returns true if an existing record is updated.
func (t *radixTree[T]) Insert(s string, v T) (old T, updated bool) {
	var parent *radixNode[T]
	n := t.root
	search := s
	for {
		// Handle key exhaution
		if len(search) == 0 {
			if n.isLeaf() {
				old = n.leaf.val
				n.leaf.val = v
				return old, true
			}

			n.leaf = &radixLeaf[T]{
				key: s,
				val: v,
			}
			t.size++
			return old, false
		}

		// Look for the edge
		parent = n
		n = n.getEdge(search[0])

		// No edge, create one
		if n == nil {
			e := radixEdge[T]{
				label: search[0],
				node: &radixNode[T]{
					leaf: &radixLeaf[T]{
						key: s,
						val: v,
					},
					prefix: search,
				},
			}
			parent.addEdge(e)
			t.size++
			return old, false
		}

		// Determine longest prefix of the search key on match
		commonPrefix := longestPrefix(search, n.prefix)
		if commonPrefix == len(n.prefix) {
			search = search[commonPrefix:]
			continue
		}

		// Split the node
		t.size++
		child := &radixNode[T]{
			prefix: search[:commonPrefix],
		}
		parent.updateEdge(search[0], child)

		// Restore the existing node
		child.addEdge(radixEdge[T]{
			label: n.prefix[commonPrefix],
			node:  n,
		})
		n.prefix = n.prefix[commonPrefix:]

		// Create a new leaf node
		leaf := &radixLeaf[T]{
			key: s,
			val: v,
		}

		// If the new key is a subset, add to this node
		search = search[commonPrefix:]
		if len(search) == 0 {
			child.leaf = leaf
			return old, false
		}

		// Create a new edge for the node
		child.addEdge(radixEdge[T]{
			label: search[0],
			node: &radixNode[T]{
				leaf:   leaf,
				prefix: search,
			},
		})
		return old, false
	}
}

// Delete is used to delete a key, returning the previous
// value and if it was deleted
func (t *radixTree[T]) Delete(s string) (removed T, hasRemoved bool) {
	var parent *radixNode[T]
	var label byte
	n := t.root
	search := s
	for {
		// Check for key exhaution
		if len(search) == 0 {
			if !n.isLeaf() {
				break
			}
			goto DELETE
		}

		// Look for an edge
		parent = n
		label = search[0]
		n = n.getEdge(label)
		if n == nil {
			break
		}

		// Consume the search prefix
		if strings.HasPrefix(search, n.prefix) {
			search = search[len(n.prefix):]
		} else {
			break
		}
	}
	return

DELETE:
	// Delete the leaf
	leaf := n.leaf
	n.leaf = nil
	t.size--

	// Check if we should delete this node from the parent
	if parent != nil && len(n.edges) == 0 {
		parent.delEdge(label)
	}

	// Check if we should merge this node
	if n != t.root && len(n.edges) == 1 {
		n.mergeChild()
	}

	// Check if we should merge the parent's other child
	if parent != nil && parent != t.root && len(parent.edges) == 1 && !parent.isLeaf() {
		parent.mergeChild()
	}

	return leaf.val, true
}

// Get is used to lookup a specific key, returning
// the value and if it was found
func (t *radixTree[T]) Get(s string) (val T, found bool) {
	n := t.root
	search := s
	for {
		// Check for key exhaution
		if len(search) == 0 {
			if n.isLeaf() {
				return n.leaf.val, true
			}
			break
		}

		// Look for an edge
		n = n.getEdge(search[0])
		if n == nil {
			break
		}

		// Consume the search prefix
		if strings.HasPrefix(search, n.prefix) {
			search = search[len(n.prefix):]
		} else {
			break
		}
	}
	return
}

// Walk is used to walk the tree
func (t *radixTree[T]) Walk() iter.Seq2[string, T] {
	return recursiveWalk(t.root)
}

// WalkPrefix is used to walk the tree under a prefix
func (t *radixTree[T]) WalkPrefix(prefix string) iter.Seq2[string, T] {
	return func(yield func(string, T) bool) {
		n := t.root
		search := prefix
		for {
			// Check for key exhaustion
			if len(search) == 0 {
				recursiveWalk(n)(yield)
				return
			}

			// Look for an edge
			n = n.getEdge(search[0])
			if n == nil {
				return
			}

			// Consume the search prefix
			if strings.HasPrefix(search, n.prefix) {
				search = search[len(n.prefix):]
				continue
			}
			if strings.HasPrefix(n.prefix, search) {
				// Child may be under our search prefix
				recursiveWalk(n)(yield)
			}
			return
		}
	}
}

func recursiveWalk[T any](n *radixNode[T]) iter.Seq2[string, T] {
	return func(yield func(string, T) bool) {
		recursiveWalkInner(n, yield)
	}
}

// recursiveWalkInner is used to do a pre-order walk of a node
// recursively. Returns true if the walk should be aborted
func recursiveWalkInner[T any](n *radixNode[T], yield func(string, T) bool) bool {
	// Visit the leaf values if any
	if n.leaf != nil && !yield(n.leaf.key, n.leaf.val) {
		return true
	}

	// Recurse on the children
	i := 0
	k := len(n.edges) // keeps track of number of edges in previous iteration
	for i < k {
		e := n.edges[i]
		if recursiveWalkInner(e.node, yield) {
			return true
		}
		// It is a possibility that the yield modified the node we are
		// iterating on. If there are no more edges, mergeChild happened,
		// so the last edge became the current node n, on which we'll
		// iterate one last time.
		if len(n.edges) == 0 {
			return recursiveWalkInner(n, yield)
		}
		// If there are now less edges than in the previous iteration,
		// then do not increment the loop index, since the current index
		// points to a new edge. Otherwise, get to the next index.
		if len(n.edges) >= k {
			i++
		}
		k = len(n.edges)
	}
	return false
}

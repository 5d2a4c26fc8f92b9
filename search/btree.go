// Package search implements C4: the B-tree-over-HTTP tag index reader,
// query intersection, and pagination. The B-tree wire format (spec §3,
// §4.4) is a binary layout with no library in the retrieval pack that reads
// it, so this file is built directly on encoding/binary, the same way the
// teacher reaches for the standard library whenever a format is bespoke
// enough that no ecosystem package covers it (see DESIGN.md).
package search

import (
	"encoding/binary"
	"fmt"
)

// branchingFactor is the B-tree's fixed fan-out (spec §3).
const branchingFactor = 16

// nodeKey is one key entry inside a TagNode: the looked-up byte string
// (normally sha256(term)[:4]) plus the byte range of its posting list.
type nodeKey struct {
	bytes           []byte
	postingOffset   uint64
	postingLength   uint32
}

// TagNode is one decoded B-tree node (spec §3).
type TagNode struct {
	keys     []nodeKey
	children []uint64 // branchingFactor+1 child byte offsets; 0 means "no child"
}

// DecodeTagNode parses a TagNode from its on-disk big-endian layout:
// uint32 key count; per key {uint32 len, bytes, uint64 posting offset,
// uint32 posting length}; then branchingFactor+1 uint64 child offsets.
func DecodeTagNode(data []byte) (*TagNode, error) {
	if len(data) < 4 {
		return nil, fmt.Errorf("node data too short: %d bytes", len(data))
	}

	pos := 0
	keyCount := binary.BigEndian.Uint32(data[pos:])
	pos += 4

	node := &TagNode{keys: make([]nodeKey, 0, keyCount)}

	for i := uint32(0); i < keyCount; i++ {
		if pos+4 > len(data) {
			return nil, fmt.Errorf("truncated node: missing key %d length", i)
		}
		keyLen := binary.BigEndian.Uint32(data[pos:])
		pos += 4

		if pos+int(keyLen) > len(data) {
			return nil, fmt.Errorf("truncated node: missing key %d bytes", i)
		}
		keyBytes := append([]byte(nil), data[pos:pos+int(keyLen)]...)
		pos += int(keyLen)

		if pos+12 > len(data) {
			return nil, fmt.Errorf("truncated node: missing key %d posting range", i)
		}
		offset := binary.BigEndian.Uint64(data[pos:])
		pos += 8
		length := binary.BigEndian.Uint32(data[pos:])
		pos += 4

		node.keys = append(node.keys, nodeKey{bytes: keyBytes, postingOffset: offset, postingLength: length})
	}

	node.children = make([]uint64, 0, branchingFactor+1)
	for i := 0; i < branchingFactor+1; i++ {
		if pos+8 > len(data) {
			break // leaf nodes may omit trailing zero child offsets
		}
		node.children = append(node.children, binary.BigEndian.Uint64(data[pos:]))
		pos += 8
	}

	return node, nil
}

// IsLeaf reports whether node has no non-zero child offsets.
func (n *TagNode) IsLeaf() bool {
	for _, c := range n.children {
		if c != 0 {
			return false
		}
	}
	return true
}

// compareKey does lexicographic byte comparison, matching spec §4.4 step 2.
func compareKey(a, b []byte) int {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		if a[i] != b[i] {
			if a[i] < b[i] {
				return -1
			}
			return 1
		}
	}
	switch {
	case len(a) < len(b):
		return -1
	case len(a) > len(b):
		return 1
	default:
		return 0
	}
}

// Find does a binary search within node's decoded keys, returning the
// matching key's posting range, or ok=false along with the child index to
// descend into.
func (n *TagNode) Find(key []byte) (match *nodeKey, childIndex int, ok bool) {
	lo, hi := 0, len(n.keys)
	for lo < hi {
		mid := (lo + hi) / 2
		cmp := compareKey(key, n.keys[mid].bytes)
		switch {
		case cmp == 0:
			return &n.keys[mid], 0, true
		case cmp < 0:
			hi = mid
		default:
			lo = mid + 1
		}
	}
	return nil, lo, false
}

// DecodePosting parses a posting list: uint32 entry count then that many
// big-endian uint32 gallery IDs in descending popularity order (spec §3).
func DecodePosting(data []byte) ([]int, error) {
	if len(data) < 4 {
		return nil, fmt.Errorf("posting data too short: %d bytes", len(data))
	}

	count := binary.BigEndian.Uint32(data)
	ids := make([]int, 0, count)

	pos := 4
	for i := uint32(0); i < count; i++ {
		if pos+4 > len(data) {
			return nil, fmt.Errorf("truncated posting list: expected %d entries, got %d", count, i)
		}
		ids = append(ids, int(binary.BigEndian.Uint32(data[pos:])))
		pos += 4
	}

	return ids, nil
}

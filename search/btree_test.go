package search

import (
	"bytes"
	"encoding/binary"
	"testing"
)

// encodeLeafNode builds the on-disk bytes for a leaf node with no children,
// mirroring the layout DecodeTagNode expects.
func encodeLeafNode(keys []nodeKey) []byte {
	buf := &bytes.Buffer{}
	binary.Write(buf, binary.BigEndian, uint32(len(keys)))
	for _, k := range keys {
		binary.Write(buf, binary.BigEndian, uint32(len(k.bytes)))
		buf.Write(k.bytes)
		binary.Write(buf, binary.BigEndian, k.postingOffset)
		binary.Write(buf, binary.BigEndian, k.postingLength)
	}
	return buf.Bytes()
}

func encodePosting(ids []int) []byte {
	buf := &bytes.Buffer{}
	binary.Write(buf, binary.BigEndian, uint32(len(ids)))
	for _, id := range ids {
		binary.Write(buf, binary.BigEndian, uint32(id))
	}
	return buf.Bytes()
}

func TestDecodeTagNodeLeaf(t *testing.T) {
	data := encodeLeafNode([]nodeKey{
		{bytes: []byte{0x01, 0x02, 0x03, 0x04}, postingOffset: 100, postingLength: 16},
		{bytes: []byte{0x05, 0x06, 0x07, 0x08}, postingOffset: 200, postingLength: 32},
	})

	node, err := DecodeTagNode(data)
	if err != nil {
		t.Fatalf("DecodeTagNode failed: %s", err)
	}
	if len(node.keys) != 2 {
		t.Fatalf("got %d keys, want 2", len(node.keys))
	}
	if !node.IsLeaf() {
		t.Errorf("expected leaf node")
	}
	if node.keys[1].postingOffset != 200 || node.keys[1].postingLength != 32 {
		t.Errorf("unexpected posting range for key 1: %+v", node.keys[1])
	}
}

func TestTagNodeFind(t *testing.T) {
	data := encodeLeafNode([]nodeKey{
		{bytes: []byte{0x01, 0x02, 0x03, 0x04}, postingOffset: 100, postingLength: 16},
		{bytes: []byte{0x05, 0x06, 0x07, 0x08}, postingOffset: 200, postingLength: 32},
		{bytes: []byte{0x09, 0x0a, 0x0b, 0x0c}, postingOffset: 300, postingLength: 8},
	})
	node, err := DecodeTagNode(data)
	if err != nil {
		t.Fatalf("DecodeTagNode failed: %s", err)
	}

	match, _, ok := node.Find([]byte{0x05, 0x06, 0x07, 0x08})
	if !ok {
		t.Fatalf("expected to find key 0x05060708")
	}
	if match.postingOffset != 200 {
		t.Errorf("match.postingOffset = %d, want 200", match.postingOffset)
	}

	_, childIdx, ok := node.Find([]byte{0x00, 0x00, 0x00, 0x00})
	if ok {
		t.Fatalf("did not expect a match for a key below every entry")
	}
	if childIdx != 0 {
		t.Errorf("childIdx = %d, want 0", childIdx)
	}
}

func TestDecodePosting(t *testing.T) {
	data := encodePosting([]int{300, 200, 100})

	ids, err := DecodePosting(data)
	if err != nil {
		t.Fatalf("DecodePosting failed: %s", err)
	}
	if len(ids) != 3 || ids[0] != 300 || ids[2] != 100 {
		t.Errorf("DecodePosting = %v, want [300 200 100]", ids)
	}
}

func TestDecodePostingTruncated(t *testing.T) {
	data := encodePosting([]int{1, 2, 3})
	if _, err := DecodePosting(data[:len(data)-2]); err == nil {
		t.Fatalf("expected error decoding truncated posting list")
	}
}

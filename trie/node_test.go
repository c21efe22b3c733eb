package trie

import (
	"bytes"
	"errors"
	"testing"

	"github.com/triekit/triekit/crypto"
)

func TestEmptyNodeEncoding(t *testing.T) {
	enc, err := emptyNode{}.encode()
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if !bytes.Equal(enc, []byte{0x80}) {
		t.Fatalf("empty node encodes to %x, want 80", enc)
	}
}

func TestLeafEncodeDecode(t *testing.T) {
	leaf := &leafNode{
		nibbles: []byte{0x1, 0x2, 0x3, 0x4},
		value:   rawValue([]byte("test_value")),
	}
	enc, err := leaf.encode()
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	decoded, err := decodeNode(enc)
	if err != nil {
		t.Fatalf("decodeNode: %v", err)
	}
	got, ok := decoded.(*leafNode)
	if !ok {
		t.Fatalf("decoded to %T, want *leafNode", decoded)
	}
	if !bytes.Equal(got.nibbles, leaf.nibbles) {
		t.Errorf("nibbles = %v, want %v", got.nibbles, leaf.nibbles)
	}
	if !bytes.Equal(got.value.raw, []byte("test_value")) {
		t.Errorf("value = %q", got.value.raw)
	}
}

func TestExtensionEncodeDecode(t *testing.T) {
	next := crypto.Keccak256Hash([]byte("branch"))
	ext := &extensionNode{nibbles: []byte{0xa, 0xb}, next: hashRef(next)}
	enc, err := ext.encode()
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	decoded, err := decodeNode(enc)
	if err != nil {
		t.Fatalf("decodeNode: %v", err)
	}
	got, ok := decoded.(*extensionNode)
	if !ok {
		t.Fatalf("decoded to %T, want *extensionNode", decoded)
	}
	if !bytes.Equal(got.nibbles, ext.nibbles) || got.next.ref != next {
		t.Errorf("decoded extension mismatch: %v -> %s", got.nibbles, got.next.ref)
	}
}

func TestBranchEncodeDecode(t *testing.T) {
	branch := &branchNode{}
	h3 := crypto.Keccak256Hash([]byte("three"))
	hB := crypto.Keccak256Hash([]byte("eleven"))
	branch.setChild(3, hashRef(h3))
	branch.setChild(11, hashRef(hB))
	v := rawValue([]byte("terminal"))
	branch.value = &v

	enc, err := branch.encode()
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	decoded, err := decodeNode(enc)
	if err != nil {
		t.Fatalf("decodeNode: %v", err)
	}
	got, ok := decoded.(*branchNode)
	if !ok {
		t.Fatalf("decoded to %T, want *branchNode", decoded)
	}
	if got.mask != branch.mask {
		t.Errorf("mask = %016b, want %016b", got.mask, branch.mask)
	}
	if got.children[3] == nil || got.children[3].ref != h3 {
		t.Errorf("child 3 not preserved")
	}
	if got.children[11] == nil || got.children[11].ref != hB {
		t.Errorf("child 11 not preserved")
	}
	if got.value == nil || !bytes.Equal(got.value.raw, []byte("terminal")) {
		t.Errorf("terminal value not preserved")
	}
}

func TestBranchMaskInvariant(t *testing.T) {
	branch := &branchNode{}
	for i := 0; i < 16; i++ {
		branch.setChild(i, hashRef(crypto.Keccak256Hash([]byte{byte(i)})))
	}
	if branch.mask != 0xffff {
		t.Fatalf("full mask = %016b", branch.mask)
	}
	if branch.childCount() != 16 {
		t.Fatalf("childCount = %d", branch.childCount())
	}
	for i := 0; i < 16; i += 2 {
		branch.clearChild(i)
	}
	if branch.mask != 0xaaaa {
		t.Fatalf("mask after clears = %016b", branch.mask)
	}
	for i := 0; i < 16; i++ {
		present := branch.children[i] != nil
		masked := branch.mask&(1<<uint(i)) != 0
		if present != masked {
			t.Errorf("slot %d: present=%v masked=%v", i, present, masked)
		}
	}
}

func TestHashDeterminism(t *testing.T) {
	build := func() node {
		branch := &branchNode{}
		branch.setChild(5, hashRef(crypto.Keccak256Hash([]byte("child"))))
		v := rawValue([]byte("value"))
		branch.value = &v
		return branch
	}
	h1, err := nodeHash(build())
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	h2, err := nodeHash(build())
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if h1 != h2 {
		t.Fatalf("structurally identical nodes hash differently: %s vs %s", h1, h2)
	}

	l1 := &leafNode{nibbles: []byte{1, 2}, value: rawValue([]byte("v"))}
	l2 := &leafNode{nibbles: []byte{1, 2}, value: rawValue([]byte("v"))}
	g1, _ := nodeHash(l1)
	g2, _ := nodeHash(l2)
	if g1 != g2 {
		t.Fatalf("identical leaves hash differently")
	}
	l3 := &leafNode{nibbles: []byte{1, 3}, value: rawValue([]byte("v"))}
	g3, _ := nodeHash(l3)
	if g1 == g3 {
		t.Fatalf("distinct leaves hash identically")
	}
}

func TestHashValueCommitment(t *testing.T) {
	ref := crypto.Keccak256Hash([]byte("somewhere"))
	c, err := hashRef(ref).commitment()
	if err != nil {
		t.Fatalf("commitment: %v", err)
	}
	if c != ref {
		t.Fatalf("hash reference commitment = %s, want itself", c)
	}

	// A raw payload commits to keccak(rlp(payload)).
	raw := rawValue([]byte("abc"))
	c, err = raw.commitment()
	if err != nil {
		t.Fatalf("commitment: %v", err)
	}
	want := crypto.Keccak256Hash([]byte{0x83, 'a', 'b', 'c'})
	if c != want {
		t.Fatalf("raw commitment = %s, want %s", c, want)
	}
}

func TestRawValueOwnership(t *testing.T) {
	buf := []byte("mutable")
	v := rawValue(buf)
	buf[0] = 'X'
	if !bytes.Equal(v.raw, []byte("mutable")) {
		t.Fatalf("rawValue aliases caller buffer: %q", v.raw)
	}
}

func TestDecodeNodeCorrupted(t *testing.T) {
	tests := [][]byte{
		nil,
		{0x01},                   // bare string, not a list
		{0xc0},                   // empty list
		{0xc3, 0x01, 0x02, 0x03}, // 3-element list
	}
	for _, data := range tests {
		if _, err := decodeNode(data); !errors.Is(err, ErrCorruptedNode) {
			t.Errorf("decodeNode(%x): got %v, want ErrCorruptedNode", data, err)
		}
	}
}

func TestDecodeExtensionRequiresHashTarget(t *testing.T) {
	// A 2-item list with an extension path but a short second item.
	enc, err := encodeList([][]byte{encodePath([]byte{0x1}, false), []byte("short")})
	if err != nil {
		t.Fatalf("encodeList: %v", err)
	}
	if _, err := decodeNode(enc); !errors.Is(err, ErrCorruptedNode) {
		t.Fatalf("got %v, want ErrCorruptedNode", err)
	}
}

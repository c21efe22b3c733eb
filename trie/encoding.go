package trie

// Hex-prefix (HP) path encoding as specified in the Ethereum Yellow Paper,
// Appendix C.
//
// Trie paths are nibble sequences: each key byte splits into a high and a
// low nibble, so a key of N bytes becomes 2N nibbles. Leaf and extension
// nodes serialize their path with a prefix that encodes both the parity of
// the nibble count and a flag distinguishing leaves from extensions.
//
// Unlike go-ethereum's in-memory convention there is no terminator nibble
// here; the leaf flag travels alongside the nibbles explicitly.

// keyToNibbles converts a raw byte key to its nibble sequence, high nibble
// first. The result always has length 2*len(key).
func keyToNibbles(key []byte) []byte {
	return appendNibbles(make([]byte, 0, len(key)*2), key)
}

// appendNibbles appends key's nibbles to dst and returns the extended
// slice. Used by the optimized engine to reuse one buffer across calls.
func appendNibbles(dst, key []byte) []byte {
	for _, b := range key {
		dst = append(dst, b>>4, b&0x0f)
	}
	return dst
}

// nibblesToKey packs a nibble sequence back into bytes. The nibble count
// must be even; an odd count cannot correspond to a byte key and returns
// ErrInvalidKey.
func nibblesToKey(nibbles []byte) ([]byte, error) {
	if len(nibbles)&1 != 0 {
		return nil, ErrInvalidKey
	}
	key := make([]byte, len(nibbles)/2)
	for i := 0; i < len(key); i++ {
		key[i] = nibbles[i*2]<<4 | nibbles[i*2+1]
	}
	return key, nil
}

// encodePath hex-prefix encodes a nibble sequence. The high nibble of the
// first byte carries two flag bits:
//   - 0x20: set if the path belongs to a leaf node
//   - 0x10: set if the nibble count is odd
//
// With an odd count the first data nibble is packed into the low nibble of
// the flag byte; the remaining nibbles are packed two per byte. An empty
// sequence encodes to the bare flag byte (0x00 extension, 0x20 leaf).
func encodePath(nibbles []byte, isLeaf bool) []byte {
	buf := make([]byte, len(nibbles)/2+1)
	if isLeaf {
		buf[0] = 0x20
	}
	if len(nibbles)&1 == 1 {
		buf[0] |= 0x10
		buf[0] |= nibbles[0]
		nibbles = nibbles[1:]
	}
	for i := 0; i < len(nibbles); i += 2 {
		buf[i/2+1] = nibbles[i]<<4 | nibbles[i+1]
	}
	return buf
}

// decodePath inverts encodePath, returning the nibble sequence and the
// leaf flag. Empty input, an unknown flag nibble, or a stray data nibble
// in an even-length flag byte fails with ErrInvalidPath.
func decodePath(encoded []byte) ([]byte, bool, error) {
	if len(encoded) == 0 {
		return nil, false, ErrInvalidPath
	}
	flags := encoded[0] >> 4
	if flags > 3 {
		return nil, false, ErrInvalidPath
	}
	isLeaf := flags&2 != 0
	odd := flags&1 != 0
	if !odd && encoded[0]&0x0f != 0 {
		// The low nibble of the flag byte carries data only for odd paths.
		return nil, false, ErrInvalidPath
	}

	n := (len(encoded) - 1) * 2
	if odd {
		n++
	}
	nibbles := make([]byte, 0, n)
	if odd {
		nibbles = append(nibbles, encoded[0]&0x0f)
	}
	for _, b := range encoded[1:] {
		nibbles = append(nibbles, b>>4, b&0x0f)
	}
	return nibbles, isLeaf, nil
}

// prefixLen returns the length of the common prefix of a and b.
func prefixLen(a, b []byte) int {
	i, n := 0, len(a)
	if len(b) < n {
		n = len(b)
	}
	for i < n && a[i] == b[i] {
		i++
	}
	return i
}

// hasNibblePrefix reports whether path starts with prefix.
func hasNibblePrefix(path, prefix []byte) bool {
	return len(path) >= len(prefix) && prefixLen(path, prefix) == len(prefix)
}

// cloneNibbles copies a nibble slice. Node constructors must not alias
// caller-owned buffers (the optimized engine reuses its key buffer across
// operations).
func cloneNibbles(nibbles []byte) []byte {
	if len(nibbles) == 0 {
		return nil
	}
	cp := make([]byte, len(nibbles))
	copy(cp, nibbles)
	return cp
}

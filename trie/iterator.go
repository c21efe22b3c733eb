package trie

// Iterator walks all key-value pairs of a trie in lexicographic key order.
// Traversal is depth-first with ascending nibbles at every branch, and a
// branch's own terminal value is emitted before its children so that a key
// sorts before every extension of it.
//
// Usage:
//
//	it := tr.Iterator()
//	for it.Next() {
//	    _ = it.Key
//	    _ = it.Value
//	}
//	if err := it.Err(); err != nil {
//	    // store corruption surfaced during traversal
//	}
//
// An iterator borrows read-only access to the engine. Mutating the trie
// while an iterator is live is a precondition violation; a fresh iterator
// over unchanged state reproduces the same sequence.
type Iterator struct {
	src   nodeSource
	Key   []byte // current key in raw bytes
	Value []byte // current value

	stack []iterFrame
	err   error
}

// iterFrame is one level of the traversal stack.
type iterFrame struct {
	n          node
	prefix     []byte // nibble path accumulated down to this node
	childIndex int    // next branch child to visit; for short nodes 0=unvisited
	valueDone  bool   // branch terminal value already emitted
}

func newIterator(src nodeSource) *Iterator {
	it := &Iterator{src: src}
	root, _, ok, err := src.rootNode()
	if err != nil {
		it.err = err
		return it
	}
	if ok {
		it.stack = []iterFrame{{n: root}}
	}
	return it
}

// Next advances to the next key-value pair, returning false when the
// sequence is exhausted or an error occurred.
func (it *Iterator) Next() bool {
	if it.err != nil {
		return false
	}
	for len(it.stack) > 0 {
		top := &it.stack[len(it.stack)-1]

		switch n := top.n.(type) {
		case *leafNode:
			if top.childIndex > 0 {
				it.pop()
				continue
			}
			top.childIndex = 1
			if !it.emit(concatNibbles(top.prefix, n.nibbles), n.value) {
				return false
			}
			return true

		case *extensionNode:
			if top.childIndex > 0 {
				it.pop()
				continue
			}
			top.childIndex = 1
			child, err := it.src.resolveNode(n.next)
			if err != nil {
				it.err = err
				return false
			}
			it.push(child, concatNibbles(top.prefix, n.nibbles))

		case *branchNode:
			if !top.valueDone {
				top.valueDone = true
				if n.value != nil {
					if !it.emit(top.prefix, *n.value) {
						return false
					}
					return true
				}
			}
			advanced := false
			for top.childIndex < 16 {
				idx := top.childIndex
				top.childIndex++
				cell := n.children[idx]
				if cell == nil {
					continue
				}
				child, err := it.src.resolveNode(*cell)
				if err != nil {
					it.err = err
					return false
				}
				it.push(child, concatNibbles(top.prefix, []byte{byte(idx)}))
				advanced = true
				break
			}
			if !advanced {
				it.pop()
			}

		default:
			it.pop()
		}
	}
	return false
}

// Err returns the first error encountered during traversal, if any.
func (it *Iterator) Err() error {
	return it.err
}

func (it *Iterator) push(n node, prefix []byte) {
	it.stack = append(it.stack, iterFrame{n: n, prefix: prefix})
}

func (it *Iterator) pop() {
	it.stack = it.stack[:len(it.stack)-1]
}

// emit materializes the pair at the given nibble path. Reports false when
// the path or value cannot be resolved.
func (it *Iterator) emit(nibbles []byte, v hashValue) bool {
	key, err := nibblesToKey(nibbles)
	if err != nil {
		it.err = err
		return false
	}
	val, err := resolveValue(it.src, v)
	if err != nil {
		it.err = err
		return false
	}
	it.Key = key
	it.Value = val
	return true
}

// Package etf implements the Erlang external term format: the self-describing,
// tag-prefixed binary serialization exchanged over the distribution protocol.
//
// Only the subset of terms the introspection RPCs produce is supported:
// atoms, integers (fixed and arbitrary precision), floats, tuples, lists
// (proper and improper), binaries, maps, pids, and references.
package etf

import (
	"fmt"
	"math/big"
	"strings"
)

// Term is the tagged union over all supported Erlang values.
// Every implementation round-trips through Encode/Decode to an equal value.
type Term interface {
	fmt.Stringer
	isTerm()
}

// Atom is an Erlang atom. The on-wire representation may be legacy latin-1
// or UTF-8; both decode to the same Atom value.
type Atom string

// Int is a fixed-size Erlang integer. Values outside the int64 range are
// represented as BigInt.
type Int int64

// BigInt is an arbitrary-precision Erlang integer. Values that fit in an
// int64 are normalized to Int on decode, so BigInt only ever carries values
// beyond that range.
type BigInt struct {
	Value *big.Int
}

// Float is an Erlang float, always 64-bit on the wire.
type Float float64

// Tuple is an ordered, fixed-arity sequence of terms.
type Tuple []Term

// List is an ordered sequence of terms with an explicit tail. A nil Tail
// denotes a proper list (the conventional empty-list terminator); a non-nil
// Tail denotes an improper list.
type List struct {
	Elements []Term
	Tail     Term
}

// Binary is an Erlang binary: an opaque byte sequence.
type Binary []byte

// MapPair is a single key/value entry of a Map.
type MapPair struct {
	Key   Term
	Value Term
}

// Map is an ordered sequence of key/value pairs. Order is preserved from the
// wire; no deduplication is performed.
type Map []MapPair

// Pid identifies an Erlang process.
type Pid struct {
	Node     Atom
	ID       uint32
	Serial   uint32
	Creation uint32
}

// Ref is an Erlang reference: a node-scoped unique identifier. The ID words
// are stored in wire order.
type Ref struct {
	Node     Atom
	Creation uint32
	IDs      []uint32
}

func (Atom) isTerm()   {}
func (Int) isTerm()    {}
func (BigInt) isTerm() {}
func (Float) isTerm()  {}
func (Tuple) isTerm()  {}
func (List) isTerm()   {}
func (Binary) isTerm() {}
func (Map) isTerm()    {}
func (Pid) isTerm()    {}
func (Ref) isTerm()    {}

// Nil is the empty proper list.
var Nil = List{}

// MakeInt returns the normalized integer term for v: Int when it fits in an
// int64, BigInt otherwise. Normalization keeps the round-trip invariant
// independent of which wire representation a peer chose.
func MakeInt(v *big.Int) Term {
	if v.IsInt64() {
		return Int(v.Int64())
	}
	return BigInt{Value: new(big.Int).Set(v)}
}

// ProperList builds a proper list from the given elements.
func ProperList(elements ...Term) List {
	return List{Elements: elements}
}

func (a Atom) String() string { return string(a) }

func (i Int) String() string { return fmt.Sprintf("%d", int64(i)) }

func (b BigInt) String() string { return b.Value.String() }

func (f Float) String() string { return fmt.Sprintf("%g", float64(f)) }

func (t Tuple) String() string {
	parts := make([]string, len(t))
	for i, e := range t {
		parts[i] = e.String()
	}
	return "{" + strings.Join(parts, ",") + "}"
}

func (l List) String() string {
	parts := make([]string, len(l.Elements))
	for i, e := range l.Elements {
		parts[i] = e.String()
	}
	if l.Tail != nil {
		return "[" + strings.Join(parts, ",") + "|" + l.Tail.String() + "]"
	}
	return "[" + strings.Join(parts, ",") + "]"
}

func (b Binary) String() string { return fmt.Sprintf("<<%d bytes>>", len(b)) }

func (m Map) String() string {
	parts := make([]string, len(m))
	for i, p := range m {
		parts[i] = p.Key.String() + "=>" + p.Value.String()
	}
	return "#{" + strings.Join(parts, ",") + "}"
}

func (p Pid) String() string {
	return fmt.Sprintf("<%s.%d.%d>", p.Node, p.ID, p.Serial)
}

func (r Ref) String() string {
	return fmt.Sprintf("#Ref<%s.%v>", r.Node, r.IDs)
}

// IsProper reports whether the list has no explicit improper tail.
func (l List) IsProper() bool { return l.Tail == nil }

// CharlistString interprets a proper list of small integers as text, the
// shape erlang:system_info(system_version) returns. Returns false when the
// list contains anything but byte-range integers.
func CharlistString(t Term) (string, bool) {
	l, ok := t.(List)
	if !ok || !l.IsProper() {
		return "", false
	}
	var sb strings.Builder
	for _, e := range l.Elements {
		i, ok := e.(Int)
		if !ok || i < 0 || i > 0x10FFFF {
			return "", false
		}
		sb.WriteRune(rune(i))
	}
	return sb.String(), true
}

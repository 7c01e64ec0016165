package etf

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"math/big"
	"strconv"
	"strings"
)

// Decode error categories. Callers treat any of them as fatal to the stream
// that produced the bytes, since the stream can no longer be trusted to be
// in sync.
var (
	ErrTruncated  = errors.New("etf: truncated input")
	ErrUnknownTag = errors.New("etf: unknown tag")
	ErrMalformed  = errors.New("etf: malformed term")
)

// maxDepth bounds the nesting of decoded terms. The wire format cannot
// express back-references, so depth is bounded only by input size; without a
// guard a pathological input could exhaust the goroutine stack.
const maxDepth = 512

type decoder struct {
	buf []byte
	pos int
}

// Decode parses one term from b, which must start with the version byte.
// It returns the term and the number of bytes consumed, so several
// concatenated terms can be read from one buffer.
func Decode(b []byte) (Term, int, error) {
	d := &decoder{buf: b}
	v, err := d.u8()
	if err != nil {
		return nil, 0, err
	}
	if v != versionTag {
		return nil, 0, fmt.Errorf("%w: bad version byte %d", ErrMalformed, v)
	}
	t, err := d.term(0)
	if err != nil {
		return nil, 0, err
	}
	return t, d.pos, nil
}

func (d *decoder) term(depth int) (Term, error) {
	if depth > maxDepth {
		return nil, fmt.Errorf("%w: nesting deeper than %d", ErrMalformed, maxDepth)
	}
	tag, err := d.u8()
	if err != nil {
		return nil, err
	}
	switch tag {
	case tagSmallInteger:
		v, err := d.u8()
		if err != nil {
			return nil, err
		}
		return Int(v), nil
	case tagInteger:
		v, err := d.u32()
		if err != nil {
			return nil, err
		}
		return Int(int32(v)), nil
	case tagNewFloat:
		v, err := d.u64()
		if err != nil {
			return nil, err
		}
		return Float(math.Float64frombits(v)), nil
	case tagFloatString:
		// Legacy float: 31 bytes of zero-padded decimal text.
		raw, err := d.bytes(31)
		if err != nil {
			return nil, err
		}
		s := strings.TrimRight(string(raw), "\x00")
		f, perr := strconv.ParseFloat(s, 64)
		if perr != nil {
			return nil, fmt.Errorf("%w: bad float string %q", ErrMalformed, s)
		}
		return Float(f), nil
	case tagAtomLatin1, tagAtomUTF8:
		n, err := d.u16()
		if err != nil {
			return nil, err
		}
		return d.atom(int(n), tag == tagAtomLatin1)
	case tagSmallAtom, tagSmallAtomUTF8:
		n, err := d.u8()
		if err != nil {
			return nil, err
		}
		return d.atom(int(n), tag == tagSmallAtom)
	case tagSmallTuple:
		n, err := d.u8()
		if err != nil {
			return nil, err
		}
		return d.tuple(int(n), depth)
	case tagLargeTuple:
		n, err := d.u32()
		if err != nil {
			return nil, err
		}
		return d.tuple(int(n), depth)
	case tagNil:
		return List{}, nil
	case tagString:
		// Byte-list shorthand; decodes to the equivalent proper list.
		n, err := d.u16()
		if err != nil {
			return nil, err
		}
		raw, err := d.bytes(int(n))
		if err != nil {
			return nil, err
		}
		elements := make([]Term, len(raw))
		for i, b := range raw {
			elements[i] = Int(b)
		}
		return List{Elements: elements}, nil
	case tagList:
		n, err := d.u32()
		if err != nil {
			return nil, err
		}
		return d.list(int(n), depth)
	case tagBinary:
		n, err := d.u32()
		if err != nil {
			return nil, err
		}
		raw, err := d.bytes(int(n))
		if err != nil {
			return nil, err
		}
		bin := make(Binary, len(raw))
		copy(bin, raw)
		return bin, nil
	case tagSmallBig:
		n, err := d.u8()
		if err != nil {
			return nil, err
		}
		return d.big(int(n))
	case tagLargeBig:
		n, err := d.u32()
		if err != nil {
			return nil, err
		}
		return d.big(int(n))
	case tagMap:
		n, err := d.u32()
		if err != nil {
			return nil, err
		}
		if int(n) > d.remaining()/2 {
			return nil, fmt.Errorf("%w: map arity %d exceeds input", ErrMalformed, n)
		}
		m := make(Map, 0, n)
		for i := 0; i < int(n); i++ {
			k, err := d.term(depth + 1)
			if err != nil {
				return nil, err
			}
			v, err := d.term(depth + 1)
			if err != nil {
				return nil, err
			}
			m = append(m, MapPair{Key: k, Value: v})
		}
		return m, nil
	case tagNewPid, tagPid:
		return d.pid(tag, depth)
	case tagNewerRef, tagNewRef:
		return d.ref(tag, depth)
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnknownTag, tag)
	}
}

func (d *decoder) atom(n int, latin1 bool) (Term, error) {
	raw, err := d.bytes(n)
	if err != nil {
		return nil, err
	}
	if !latin1 {
		return Atom(raw), nil
	}
	// Latin-1 code points map 1:1 onto the first 256 Unicode code points.
	var sb strings.Builder
	sb.Grow(n)
	for _, b := range raw {
		sb.WriteRune(rune(b))
	}
	return Atom(sb.String()), nil
}

func (d *decoder) tuple(n, depth int) (Term, error) {
	if n > d.remaining() {
		return nil, fmt.Errorf("%w: tuple arity %d exceeds input", ErrMalformed, n)
	}
	t := make(Tuple, 0, n)
	for i := 0; i < n; i++ {
		e, err := d.term(depth + 1)
		if err != nil {
			return nil, err
		}
		t = append(t, e)
	}
	return t, nil
}

func (d *decoder) list(n, depth int) (Term, error) {
	if n > d.remaining() {
		return nil, fmt.Errorf("%w: list length %d exceeds input", ErrMalformed, n)
	}
	elements := make([]Term, 0, n)
	for i := 0; i < n; i++ {
		e, err := d.term(depth + 1)
		if err != nil {
			return nil, err
		}
		elements = append(elements, e)
	}
	tail, err := d.term(depth + 1)
	if err != nil {
		return nil, err
	}
	if l, ok := tail.(List); ok && len(l.Elements) == 0 && l.Tail == nil {
		tail = nil // proper list
	}
	return List{Elements: elements, Tail: tail}, nil
}

func (d *decoder) big(n int) (Term, error) {
	sign, err := d.u8()
	if err != nil {
		return nil, err
	}
	digits, err := d.bytes(n)
	if err != nil {
		return nil, err
	}
	// Little-endian magnitude on the wire; big.Int wants big-endian.
	mag := make([]byte, len(digits))
	for i, b := range digits {
		mag[len(digits)-1-i] = b
	}
	v := new(big.Int).SetBytes(mag)
	if sign == 1 {
		v.Neg(v)
	}
	return MakeInt(v), nil
}

func (d *decoder) pid(tag byte, depth int) (Term, error) {
	node, err := d.term(depth + 1)
	if err != nil {
		return nil, err
	}
	name, ok := node.(Atom)
	if !ok {
		return nil, fmt.Errorf("%w: pid node is not an atom", ErrMalformed)
	}
	id, err := d.u32()
	if err != nil {
		return nil, err
	}
	serial, err := d.u32()
	if err != nil {
		return nil, err
	}
	var creation uint32
	if tag == tagNewPid {
		creation, err = d.u32()
	} else {
		var c byte
		c, err = d.u8()
		creation = uint32(c)
	}
	if err != nil {
		return nil, err
	}
	return Pid{Node: name, ID: id, Serial: serial, Creation: creation}, nil
}

func (d *decoder) ref(tag byte, depth int) (Term, error) {
	n, err := d.u16()
	if err != nil {
		return nil, err
	}
	node, err := d.term(depth + 1)
	if err != nil {
		return nil, err
	}
	name, ok := node.(Atom)
	if !ok {
		return nil, fmt.Errorf("%w: ref node is not an atom", ErrMalformed)
	}
	var creation uint32
	if tag == tagNewerRef {
		creation, err = d.u32()
	} else {
		var c byte
		c, err = d.u8()
		creation = uint32(c)
	}
	if err != nil {
		return nil, err
	}
	if int(n)*4 > d.remaining() {
		return nil, fmt.Errorf("%w: ref length %d exceeds input", ErrMalformed, n)
	}
	ids := make([]uint32, n)
	for i := range ids {
		ids[i], err = d.u32()
		if err != nil {
			return nil, err
		}
	}
	return Ref{Node: name, Creation: creation, IDs: ids}, nil
}

func (d *decoder) remaining() int { return len(d.buf) - d.pos }

func (d *decoder) bytes(n int) ([]byte, error) {
	if n < 0 || d.remaining() < n {
		return nil, ErrTruncated
	}
	b := d.buf[d.pos : d.pos+n]
	d.pos += n
	return b, nil
}

func (d *decoder) u8() (byte, error) {
	b, err := d.bytes(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

func (d *decoder) u16() (uint16, error) {
	b, err := d.bytes(2)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint16(b), nil
}

func (d *decoder) u32() (uint32, error) {
	b, err := d.bytes(4)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(b), nil
}

func (d *decoder) u64() (uint64, error) {
	b, err := d.bytes(8)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint64(b), nil
}

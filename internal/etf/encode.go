package etf

import (
	"encoding/binary"
	"math"
	"math/big"
)

// Wire tags of the external term format. Decode accepts the full set below;
// Encode emits only the newer forms (UTF-8 atoms, new floats, new pids and
// references) since the handshake always negotiates them.
const (
	versionTag = 131

	tagSmallInteger  = 97  // 'a' 1-byte unsigned
	tagInteger       = 98  // 'b' 4-byte signed
	tagFloatString   = 99  // 'c' legacy 31-byte string float
	tagNewFloat      = 70  // 'F' 8-byte IEEE 754
	tagAtomLatin1    = 100 // 'd' 2-byte length, latin-1
	tagSmallAtom     = 115 // 's' 1-byte length, latin-1
	tagAtomUTF8      = 118 // 'v' 2-byte length, UTF-8
	tagSmallAtomUTF8 = 119 // 'w' 1-byte length, UTF-8
	tagSmallTuple    = 104 // 'h' 1-byte arity
	tagLargeTuple    = 105 // 'i' 4-byte arity
	tagNil           = 106 // 'j' empty list
	tagString        = 107 // 'k' byte list shorthand
	tagList          = 108 // 'l' 4-byte length + elements + tail
	tagBinary        = 109 // 'm' 4-byte length
	tagSmallBig      = 110 // 'n' 1-byte digit count
	tagLargeBig      = 111 // 'o' 4-byte digit count
	tagPid           = 103 // 'g' legacy pid, 1-byte creation
	tagNewPid        = 88  // 'X' pid with 4-byte creation
	tagNewRef        = 114 // 'r' reference, 1-byte creation
	tagNewerRef      = 90  // 'Z' reference, 4-byte creation
	tagMap           = 116 // 't' 4-byte arity + key/value pairs
)

// Encode serializes a term to the external term format, including the
// leading version byte. Integers use the smallest tag that fits.
func Encode(t Term) []byte {
	buf := make([]byte, 1, 64)
	buf[0] = versionTag
	return appendTerm(buf, t)
}

func appendTerm(buf []byte, t Term) []byte {
	switch v := t.(type) {
	case Atom:
		return appendAtom(buf, v)
	case Int:
		return appendInt(buf, int64(v))
	case BigInt:
		return appendBig(buf, v.Value)
	case Float:
		buf = append(buf, tagNewFloat)
		return binary.BigEndian.AppendUint64(buf, math.Float64bits(float64(v)))
	case Tuple:
		if len(v) < 256 {
			buf = append(buf, tagSmallTuple, byte(len(v)))
		} else {
			buf = append(buf, tagLargeTuple)
			buf = binary.BigEndian.AppendUint32(buf, uint32(len(v)))
		}
		for _, e := range v {
			buf = appendTerm(buf, e)
		}
		return buf
	case List:
		if len(v.Elements) == 0 && v.Tail == nil {
			return append(buf, tagNil)
		}
		buf = append(buf, tagList)
		buf = binary.BigEndian.AppendUint32(buf, uint32(len(v.Elements)))
		for _, e := range v.Elements {
			buf = appendTerm(buf, e)
		}
		if v.Tail == nil {
			return append(buf, tagNil)
		}
		return appendTerm(buf, v.Tail)
	case Binary:
		buf = append(buf, tagBinary)
		buf = binary.BigEndian.AppendUint32(buf, uint32(len(v)))
		return append(buf, v...)
	case Map:
		buf = append(buf, tagMap)
		buf = binary.BigEndian.AppendUint32(buf, uint32(len(v)))
		for _, p := range v {
			buf = appendTerm(buf, p.Key)
			buf = appendTerm(buf, p.Value)
		}
		return buf
	case Pid:
		buf = append(buf, tagNewPid)
		buf = appendAtom(buf, v.Node)
		buf = binary.BigEndian.AppendUint32(buf, v.ID)
		buf = binary.BigEndian.AppendUint32(buf, v.Serial)
		return binary.BigEndian.AppendUint32(buf, v.Creation)
	case Ref:
		buf = append(buf, tagNewerRef)
		buf = binary.BigEndian.AppendUint16(buf, uint16(len(v.IDs)))
		buf = appendAtom(buf, v.Node)
		buf = binary.BigEndian.AppendUint32(buf, v.Creation)
		for _, id := range v.IDs {
			buf = binary.BigEndian.AppendUint32(buf, id)
		}
		return buf
	default:
		// The Term interface is sealed within this package; reaching this
		// arm means a new variant was added without an encoder.
		panic("etf: unencodable term")
	}
}

func appendAtom(buf []byte, a Atom) []byte {
	name := []byte(a)
	if len(name) < 256 {
		buf = append(buf, tagSmallAtomUTF8, byte(len(name)))
	} else {
		buf = append(buf, tagAtomUTF8)
		buf = binary.BigEndian.AppendUint16(buf, uint16(len(name)))
	}
	return append(buf, name...)
}

func appendInt(buf []byte, v int64) []byte {
	switch {
	case v >= 0 && v <= 255:
		return append(buf, tagSmallInteger, byte(v))
	case v >= math.MinInt32 && v <= math.MaxInt32:
		buf = append(buf, tagInteger)
		return binary.BigEndian.AppendUint32(buf, uint32(int32(v)))
	default:
		return appendBig(buf, big.NewInt(v))
	}
}

func appendBig(buf []byte, v *big.Int) []byte {
	var sign byte
	if v.Sign() < 0 {
		sign = 1
	}
	// Big integers are little-endian magnitude on the wire.
	mag := new(big.Int).Abs(v).Bytes()
	digits := make([]byte, len(mag))
	for i, b := range mag {
		digits[len(mag)-1-i] = b
	}
	if len(digits) < 256 {
		buf = append(buf, tagSmallBig, byte(len(digits)), sign)
	} else {
		buf = append(buf, tagLargeBig)
		buf = binary.BigEndian.AppendUint32(buf, uint32(len(digits)))
		buf = append(buf, sign)
	}
	return append(buf, digits...)
}

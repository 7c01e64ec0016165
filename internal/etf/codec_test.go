package etf

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoundTrip(t *testing.T) {
	big1, _ := new(big.Int).SetString("123456789012345678901234567890", 10)
	bigNeg, _ := new(big.Int).SetString("-98765432109876543210987654321", 10)

	tests := []struct {
		name string
		term Term
	}{
		{"atom", Atom("ok")},
		{"empty atom", Atom("")},
		{"unicode atom", Atom("héllo_wörld")},
		{"small int", Int(0)},
		{"byte int", Int(255)},
		{"negative int", Int(-1)},
		{"int32", Int(1 << 30)},
		{"large int64", Int(1 << 40)},
		{"min int64", Int(-9223372036854775808)},
		{"big int", BigInt{Value: big1}},
		{"negative big int", BigInt{Value: bigNeg}},
		{"float", Float(3.14159)},
		{"negative float", Float(-0.001)},
		{"empty tuple", Tuple{}},
		{"flat tuple", Tuple{Atom("a"), Int(1), Float(2.5)}},
		{"empty list", List{}},
		{"proper list", ProperList(Int(1), Int(2), Int(3))},
		{"improper list", List{Elements: []Term{Int(1), Int(2)}, Tail: Atom("tail")}},
		{"binary", Binary{0, 1, 2, 255}},
		{"empty binary", Binary{}},
		{"map", Map{{Key: Atom("k"), Value: Int(1)}, {Key: Atom("v"), Value: Atom("x")}}},
		{"pid", Pid{Node: Atom("node@host"), ID: 42, Serial: 1, Creation: 123456}},
		{"ref", Ref{Node: Atom("node@host"), Creation: 7, IDs: []uint32{1, 2, 3}}},
		{
			// Nested depth >= 3: tuple -> list -> map -> tuple
			"nested containers",
			Tuple{
				Atom("stats"),
				ProperList(
					Map{{
						Key:   Atom("counters"),
						Value: Tuple{Int(1), ProperList(Binary("deep"))},
					}},
				),
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			encoded := Encode(tt.term)
			decoded, consumed, err := Decode(encoded)
			require.NoError(t, err)
			assert.Equal(t, len(encoded), consumed)
			assert.Equal(t, tt.term, decoded)
		})
	}
}

func TestDecodeConsumedAllowsConcatenatedTerms(t *testing.T) {
	first := Encode(Atom("first"))
	second := Encode(Int(2))
	buf := append(append([]byte{}, first...), second...)

	t1, n1, err := Decode(buf)
	require.NoError(t, err)
	assert.Equal(t, Atom("first"), t1)

	t2, n2, err := Decode(buf[n1:])
	require.NoError(t, err)
	assert.Equal(t, Int(2), t2)
	assert.Equal(t, len(buf), n1+n2)
}

func TestAtomWireFormats(t *testing.T) {
	// The same atom text must decode identically from every historical
	// on-wire representation.
	tests := []struct {
		name  string
		bytes []byte
		want  Atom
	}{
		{"latin-1 2-byte length", []byte{131, tagAtomLatin1, 0, 2, 'o', 'k'}, Atom("ok")},
		{"small latin-1", []byte{131, tagSmallAtom, 2, 'o', 'k'}, Atom("ok")},
		{"utf-8 2-byte length", []byte{131, tagAtomUTF8, 0, 2, 'o', 'k'}, Atom("ok")},
		{"small utf-8", []byte{131, tagSmallAtomUTF8, 2, 'o', 'k'}, Atom("ok")},
		{"latin-1 high byte", []byte{131, tagSmallAtom, 1, 0xE9}, Atom("é")},
		{"utf-8 high byte", []byte{131, tagSmallAtomUTF8, 2, 0xC3, 0xA9}, Atom("é")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			decoded, _, err := Decode(tt.bytes)
			require.NoError(t, err)
			assert.Equal(t, tt.want, decoded)
		})
	}
}

func TestIntegerRepresentationsNormalize(t *testing.T) {
	// A small value arriving as a big integer decodes to the same Int a
	// small-integer tag would produce.
	asBig := []byte{131, tagSmallBig, 1, 0, 42}
	asSmall := []byte{131, tagSmallInteger, 42}

	fromBig, _, err := Decode(asBig)
	require.NoError(t, err)
	fromSmall, _, err := Decode(asSmall)
	require.NoError(t, err)
	assert.Equal(t, fromSmall, fromBig)
	assert.Equal(t, Int(42), fromBig)
}

func TestDecodeLegacyForms(t *testing.T) {
	t.Run("string tag decodes to byte list", func(t *testing.T) {
		decoded, _, err := Decode([]byte{131, tagString, 0, 3, 'a', 'b', 'c'})
		require.NoError(t, err)
		assert.Equal(t, ProperList(Int('a'), Int('b'), Int('c')), decoded)
	})

	t.Run("legacy float string", func(t *testing.T) {
		raw := make([]byte, 0, 33)
		raw = append(raw, 131, tagFloatString)
		text := "1.50000000000000000000e+00"
		pad := make([]byte, 31-len(text))
		raw = append(append(raw, text...), pad...)
		decoded, _, err := Decode(raw)
		require.NoError(t, err)
		assert.Equal(t, Float(1.5), decoded)
	})

	t.Run("legacy pid creation byte", func(t *testing.T) {
		raw := []byte{131, tagPid, tagSmallAtomUTF8, 1, 'n',
			0, 0, 0, 5, // id
			0, 0, 0, 1, // serial
			3, // creation
		}
		decoded, _, err := Decode(raw)
		require.NoError(t, err)
		assert.Equal(t, Pid{Node: Atom("n"), ID: 5, Serial: 1, Creation: 3}, decoded)
	})
}

func TestDecodeErrors(t *testing.T) {
	tests := []struct {
		name  string
		bytes []byte
		want  error
	}{
		{"empty input", []byte{}, ErrTruncated},
		{"version only", []byte{131}, ErrTruncated},
		{"bad version", []byte{42, tagNil}, ErrMalformed},
		{"unknown tag", []byte{131, 200}, ErrUnknownTag},
		{"truncated atom", []byte{131, tagSmallAtomUTF8, 10, 'a'}, ErrTruncated},
		{"truncated binary length", []byte{131, tagBinary, 0, 0}, ErrTruncated},
		{"binary claims more than buffer", []byte{131, tagBinary, 0, 0, 1, 0, 'x'}, ErrTruncated},
		{"tuple arity exceeds input", []byte{131, tagLargeTuple, 0, 1, 0, 0, tagNil}, ErrMalformed},
		{"list missing tail", []byte{131, tagList, 0, 0, 0, 1, tagSmallInteger, 1}, ErrTruncated},
		{"map arity exceeds input", []byte{131, tagMap, 255, 255, 255, 255}, ErrMalformed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := Decode(tt.bytes)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestDecodeDepthGuard(t *testing.T) {
	// A chain of single-element lists deeper than the guard must error
	// instead of recursing without bound.
	depth := maxDepth + 10
	raw := []byte{131}
	for i := 0; i < depth; i++ {
		raw = append(raw, tagList, 0, 0, 0, 1)
	}
	raw = append(raw, tagNil)
	for i := 0; i < depth; i++ {
		raw = append(raw, tagNil)
	}

	_, _, err := Decode(raw)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestCharlistString(t *testing.T) {
	s, ok := CharlistString(ProperList(Int('O'), Int('T'), Int('P')))
	require.True(t, ok)
	assert.Equal(t, "OTP", s)

	_, ok = CharlistString(Tuple{Int(1)})
	assert.False(t, ok)

	_, ok = CharlistString(List{Elements: []Term{Int(1)}, Tail: Atom("x")})
	assert.False(t, ok)
}

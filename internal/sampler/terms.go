package sampler

import (
	"fmt"

	"github.com/beamtop/beamtop/internal/etf"
)

// Conversion helpers from raw terms to the shapes the introspection calls
// return. All of them fail loudly on unexpected shapes; a misshapen result
// marks the metric missing for that tick rather than guessing.

func termToUint64(t etf.Term) (uint64, error) {
	switch v := t.(type) {
	case etf.Int:
		if v < 0 {
			return 0, fmt.Errorf("unexpected negative integer %d", int64(v))
		}
		return uint64(v), nil
	case etf.BigInt:
		if !v.Value.IsUint64() {
			return 0, fmt.Errorf("integer %s out of range", v.Value)
		}
		return v.Value.Uint64(), nil
	default:
		return 0, fmt.Errorf("%s is not an integer", t)
	}
}

func termToTuple(t etf.Term) (etf.Tuple, error) {
	tuple, ok := t.(etf.Tuple)
	if !ok {
		return nil, fmt.Errorf("%s is not a tuple", t)
	}
	return tuple, nil
}

func termToList(t etf.Term) (etf.List, error) {
	list, ok := t.(etf.List)
	if !ok {
		return etf.List{}, fmt.Errorf("%s is not a list", t)
	}
	if !list.IsProper() {
		return etf.List{}, fmt.Errorf("%s is not a proper list", t)
	}
	return list, nil
}

func termToAtom(t etf.Term) (string, error) {
	atom, ok := t.(etf.Atom)
	if !ok {
		return "", fmt.Errorf("%s is not an atom", t)
	}
	return string(atom), nil
}

func termToMap(t etf.Term) (etf.Map, error) {
	m, ok := t.(etf.Map)
	if !ok {
		return nil, fmt.Errorf("%s is not a map", t)
	}
	return m, nil
}

// tupleElemUint64 extracts the n-th element of a tuple as an unsigned
// integer, the shape of statistics(context_switches) and friends.
func tupleElemUint64(t etf.Term, n int) (uint64, error) {
	tuple, err := termToTuple(t)
	if err != nil {
		return 0, err
	}
	if len(tuple) <= n {
		return 0, fmt.Errorf("expected a tuple with more than %d elements, got %s", n, t)
	}
	return termToUint64(tuple[n])
}

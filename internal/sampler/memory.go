package sampler

import (
	"fmt"
	"sort"

	"github.com/beamtop/beamtop/internal/etf"
)

// Memory is the erlang:memory/0 breakdown in bytes. Categories the runtime
// reports beyond the well-known set land in Unknowns.
type Memory struct {
	Total         uint64 `yaml:"total"`
	Processes     uint64 `yaml:"processes"`
	ProcessesUsed uint64 `yaml:"processes_used"`
	System        uint64 `yaml:"system"`
	Atom          uint64 `yaml:"atom"`
	AtomUsed      uint64 `yaml:"atom_used"`
	Binary        uint64 `yaml:"binary"`
	Code          uint64 `yaml:"code"`
	ETS           uint64 `yaml:"ets"`

	Unknowns map[string]uint64 `yaml:"unknowns,omitempty"`
}

// decodeMemory parses the [{Category, Bytes}] list erlang:memory/0 returns.
func decodeMemory(t etf.Term) (*Memory, error) {
	list, err := termToList(t)
	if err != nil {
		return nil, err
	}

	mem := &Memory{}
	for _, e := range list.Elements {
		pair, err := termToTuple(e)
		if err != nil {
			return nil, err
		}
		if len(pair) != 2 {
			return nil, fmt.Errorf("expected a two-element tuple, got %s", e)
		}
		category, err := termToAtom(pair[0])
		if err != nil {
			return nil, err
		}
		bytes, err := termToUint64(pair[1])
		if err != nil {
			return nil, err
		}
		switch category {
		case "total":
			mem.Total = bytes
		case "processes":
			mem.Processes = bytes
		case "processes_used":
			mem.ProcessesUsed = bytes
		case "system":
			mem.System = bytes
		case "atom":
			mem.Atom = bytes
		case "atom_used":
			mem.AtomUsed = bytes
		case "binary":
			mem.Binary = bytes
		case "code":
			mem.Code = bytes
		case "ets":
			mem.ETS = bytes
		default:
			if mem.Unknowns == nil {
				mem.Unknowns = make(map[string]uint64)
			}
			mem.Unknowns[category] = bytes
		}
	}
	return mem, nil
}

// MemoryCategory is one labeled entry of the breakdown.
type MemoryCategory struct {
	Name  string
	Bytes uint64
}

// Categories returns the breakdown in display order: the well-known set
// first, then unknown categories alphabetically.
func (m *Memory) Categories() []MemoryCategory {
	out := []MemoryCategory{
		{"total", m.Total},
		{"processes", m.Processes},
		{"processes_used", m.ProcessesUsed},
		{"system", m.System},
		{"atom", m.Atom},
		{"atom_used", m.AtomUsed},
		{"binary", m.Binary},
		{"code", m.Code},
		{"ets", m.ETS},
	}
	unknown := make([]string, 0, len(m.Unknowns))
	for name := range m.Unknowns {
		unknown = append(unknown, name)
	}
	sort.Strings(unknown)
	for _, name := range unknown {
		out = append(out, MemoryCategory{Name: name, Bytes: m.Unknowns[name]})
	}
	return out
}

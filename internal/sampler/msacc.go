package sampler

import (
	"fmt"

	"github.com/beamtop/beamtop/internal/etf"
)

// MSAccThread is one thread's microstate accounting record:
// statistics(microstate_accounting) returns one map per scheduler, async,
// aux, or dirty thread with a counter per runtime state.
type MSAccThread struct {
	ID       uint64            `yaml:"id"`
	Type     string            `yaml:"type"`
	Counters map[string]uint64 `yaml:"counters"`
}

// decodeMSAcc parses the list of per-thread maps.
func decodeMSAcc(t etf.Term) ([]MSAccThread, error) {
	list, err := termToList(t)
	if err != nil {
		return nil, err
	}
	threads := make([]MSAccThread, 0, len(list.Elements))
	for _, e := range list.Elements {
		thread, err := decodeMSAccThread(e)
		if err != nil {
			return nil, err
		}
		threads = append(threads, thread)
	}
	return threads, nil
}

func decodeMSAccThread(t etf.Term) (MSAccThread, error) {
	m, err := termToMap(t)
	if err != nil {
		return MSAccThread{}, err
	}

	thread := MSAccThread{Counters: make(map[string]uint64)}
	var haveID, haveType bool
	for _, pair := range m {
		key, err := termToAtom(pair.Key)
		if err != nil {
			return MSAccThread{}, err
		}
		switch key {
		case "id":
			thread.ID, err = termToUint64(pair.Value)
			if err != nil {
				return MSAccThread{}, err
			}
			haveID = true
		case "type":
			thread.Type, err = termToAtom(pair.Value)
			if err != nil {
				return MSAccThread{}, err
			}
			haveType = true
		case "counters":
			counters, err := termToMap(pair.Value)
			if err != nil {
				return MSAccThread{}, err
			}
			for _, c := range counters {
				name, err := termToAtom(c.Key)
				if err != nil {
					return MSAccThread{}, err
				}
				thread.Counters[name], err = termToUint64(c.Value)
				if err != nil {
					return MSAccThread{}, err
				}
			}
		}
	}
	if !haveID || !haveType {
		return MSAccThread{}, fmt.Errorf("msacc record missing id or type: %s", t)
	}
	return thread, nil
}

// SchedulerUtilization derives the busy fraction (0..1) of each scheduler
// thread from the delta between two msacc readings. Sleep counters count as
// idle; everything else is work.
func SchedulerUtilization(prev, cur []MSAccThread) map[uint64]float64 {
	prevByID := make(map[uint64]MSAccThread, len(prev))
	for _, th := range prev {
		if th.Type == "scheduler" {
			prevByID[th.ID] = th
		}
	}

	util := make(map[uint64]float64)
	for _, th := range cur {
		if th.Type != "scheduler" {
			continue
		}
		before, ok := prevByID[th.ID]
		if !ok {
			continue
		}
		var busy, total uint64
		for state, v := range th.Counters {
			d := v - before.Counters[state]
			total += d
			if state != "sleep" {
				busy += d
			}
		}
		if total > 0 {
			util[th.ID] = float64(busy) / float64(total)
		}
	}
	return util
}

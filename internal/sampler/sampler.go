// Package sampler drives the metrics collection loop: on a fixed cadence it
// issues a pipelined batch of introspection RPCs against the target node,
// decodes the typed results, and feeds the history store and the dashboard.
package sampler

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/beamtop/beamtop/internal/etf"
	"github.com/beamtop/beamtop/internal/history"
	"github.com/beamtop/beamtop/internal/logger"
)

// Series names written to the history store. Rate series carry per-second
// deltas of cumulative VM counters; the rest are point-in-time gauges.
const (
	SeriesProcesses       = "processes"
	SeriesPorts           = "ports"
	SeriesRunQueue        = "run_queue"
	SeriesContextSwitches = "context_switches"
	SeriesGC              = "gc"
	SeriesIOIn            = "io_in"
	SeriesIOOut           = "io_out"
	SeriesMemTotal        = "mem_total"
	SeriesMemProcesses    = "mem_processes"
	SeriesMemBinary       = "mem_binary"
	SeriesMemETS          = "mem_ets"
	SeriesMemCode         = "mem_code"
	SeriesMemAtom         = "mem_atom"
)

// Caller is the RPC surface the sampler needs. Satisfied by dist.RpcClient;
// kept narrow so tests can script responses.
type Caller interface {
	Call(ctx context.Context, module, function string, args etf.List) (etf.Term, error)
}

// Sample is one collection round. Values holds exactly the series that were
// successfully measured this tick; a metric whose call failed is absent, so
// its history series does not grow this round. Partial is set whenever at
// least one call in the batch failed, with the diagnostics in Errors.
type Sample struct {
	Time    time.Time          `yaml:"time"`
	Values  map[string]float64 `yaml:"values"`
	Memory  *Memory            `yaml:"memory,omitempty"`
	MSAcc   []MSAccThread      `yaml:"-"`
	Partial bool               `yaml:"partial,omitempty"`
	Errors  []string           `yaml:"errors,omitempty"`
}

// Sampler collects a fixed batch of metrics on a fixed cadence.
type Sampler struct {
	rpc      Caller
	interval time.Duration
	timeout  time.Duration
	store    *history.Store
	log      logger.Logger

	msacc    bool
	recorder io.Writer

	// Previous readings of cumulative counters and when each was taken,
	// for rate derivation. Tracked per counter: a counter that missed a
	// tick keeps its older baseline, so its next delta is divided by the
	// full time it actually spans.
	prev   map[string]uint64
	prevAt map[string]time.Time

	prevMSAcc []MSAccThread
}

// Option configures optional sampler behavior.
type Option func(*Sampler)

// WithMSAcc enables the microstate accounting call in each batch.
func WithMSAcc() Option {
	return func(s *Sampler) { s.msacc = true }
}

// WithRecorder appends every completed sample to w as a YAML document.
func WithRecorder(w io.Writer) Option {
	return func(s *Sampler) { s.recorder = w }
}

// WithCallTimeout overrides the per-call deadline within a batch.
func WithCallTimeout(d time.Duration) Option {
	return func(s *Sampler) { s.timeout = d }
}

// New creates a sampler that collects every interval and appends completed
// series values to store.
func New(rpc Caller, store *history.Store, interval time.Duration, log logger.Logger, opts ...Option) *Sampler {
	if log == nil {
		log = logger.Noop()
	}
	s := &Sampler{
		rpc:      rpc,
		interval: interval,
		timeout:  interval, // a call slower than the cadence is useless
		store:    store,
		log:      log,
		prev:     make(map[string]uint64),
		prevAt:   make(map[string]time.Time),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run samples immediately and then on every interval tick until ctx is
// canceled, sending each sample to out. The channel is closed on return.
func (s *Sampler) Run(ctx context.Context, out chan<- *Sample) {
	defer close(out)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		sample := s.Collect(ctx)
		if sample != nil {
			select {
			case out <- sample:
			case <-ctx.Done():
				return
			}
		}
		select {
		case <-ticker.C:
		case <-ctx.Done():
			return
		}
	}
}

// Collect runs one batch: all calls are issued without waiting on each
// other, and the batch completes when every call has resolved. Results are
// appended to the history store and returned. Returns nil only when ctx is
// already canceled.
func (s *Sampler) Collect(ctx context.Context) *Sample {
	if ctx.Err() != nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	sample := &Sample{Time: time.Now(), Values: make(map[string]float64)}
	var mu sync.Mutex
	var wg sync.WaitGroup

	counters := make(map[string]uint64)
	fail := func(name string, err error) {
		mu.Lock()
		sample.Partial = true
		sample.Errors = append(sample.Errors, name+": "+err.Error())
		mu.Unlock()
		s.log.Debug("sample %s failed: %v", name, err)
	}

	gauge := func(name string, fetch func(context.Context) (uint64, error)) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			v, err := fetch(ctx)
			if err != nil {
				fail(name, err)
				return
			}
			mu.Lock()
			sample.Values[name] = float64(v)
			mu.Unlock()
		}()
	}
	counter := func(name string, fetch func(context.Context) (uint64, error)) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			v, err := fetch(ctx)
			if err != nil {
				fail(name, err)
				return
			}
			mu.Lock()
			counters[name] = v
			mu.Unlock()
		}()
	}

	gauge(SeriesProcesses, func(ctx context.Context) (uint64, error) {
		return s.systemInfoUint64(ctx, "process_count")
	})
	gauge(SeriesPorts, func(ctx context.Context) (uint64, error) {
		return s.systemInfoUint64(ctx, "port_count")
	})
	gauge(SeriesRunQueue, func(ctx context.Context) (uint64, error) {
		t, err := s.statistics(ctx, "run_queue")
		if err != nil {
			return 0, err
		}
		return termToUint64(t)
	})
	counter(SeriesContextSwitches, func(ctx context.Context) (uint64, error) {
		t, err := s.statistics(ctx, "context_switches")
		if err != nil {
			return 0, err
		}
		return tupleElemUint64(t, 0)
	})
	counter(SeriesGC, func(ctx context.Context) (uint64, error) {
		t, err := s.statistics(ctx, "garbage_collection")
		if err != nil {
			return 0, err
		}
		return tupleElemUint64(t, 0)
	})

	// statistics(io) yields {{input,In},{output,Out}}: one call, two series.
	wg.Add(1)
	go func() {
		defer wg.Done()
		t, err := s.statistics(ctx, "io")
		if err != nil {
			fail("io", err)
			return
		}
		tuple, err := termToTuple(t)
		if err == nil && len(tuple) < 2 {
			err = fmt.Errorf("expected {{input,_},{output,_}}, got %s", t)
		}
		if err != nil {
			fail("io", err)
			return
		}
		in, errIn := tupleElemUint64(tuple[0], 1)
		out, errOut := tupleElemUint64(tuple[1], 1)
		if errIn != nil || errOut != nil {
			fail("io", firstError(errIn, errOut))
			return
		}
		mu.Lock()
		counters[SeriesIOIn] = in
		counters[SeriesIOOut] = out
		mu.Unlock()
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		t, err := s.rpc.Call(ctx, "erlang", "memory", etf.Nil)
		if err != nil {
			fail("memory", err)
			return
		}
		mem, err := decodeMemory(t)
		if err != nil {
			fail("memory", err)
			return
		}
		mu.Lock()
		sample.Memory = mem
		sample.Values[SeriesMemTotal] = float64(mem.Total)
		sample.Values[SeriesMemProcesses] = float64(mem.Processes)
		sample.Values[SeriesMemBinary] = float64(mem.Binary)
		sample.Values[SeriesMemETS] = float64(mem.ETS)
		sample.Values[SeriesMemCode] = float64(mem.Code)
		sample.Values[SeriesMemAtom] = float64(mem.Atom)
		mu.Unlock()
	}()

	if s.msacc {
		wg.Add(1)
		go func() {
			defer wg.Done()
			t, err := s.statistics(ctx, "microstate_accounting")
			if err != nil {
				fail("microstate_accounting", err)
				return
			}
			threads, err := decodeMSAcc(t)
			if err != nil {
				fail("microstate_accounting", err)
				return
			}
			mu.Lock()
			sample.MSAcc = threads
			mu.Unlock()
		}()
	}

	wg.Wait()

	s.deriveRates(sample, counters)
	s.prevMSAcc = sample.MSAcc

	for name, v := range sample.Values {
		s.store.Append(name, v, sample.Time)
	}
	if sample.Partial {
		s.log.Warn("partial sample: %v", sample.Errors)
	}
	s.record(sample)
	return sample
}

// PrevMSAcc returns the previous tick's microstate accounting reading, the
// baseline for SchedulerUtilization.
func (s *Sampler) PrevMSAcc() []MSAccThread {
	return s.prevMSAcc
}

// deriveRates turns cumulative counters into per-second rates against the
// previous tick. A counter with no previous reading (first tick, or a tick
// it was missing) stores its baseline and emits nothing, so its series
// simply does not grow that round.
func (s *Sampler) deriveRates(sample *Sample, counters map[string]uint64) {
	for name, v := range counters {
		prev, ok := s.prev[name]
		at := s.prevAt[name]
		s.prev[name] = v
		s.prevAt[name] = sample.Time
		if !ok {
			continue // no baseline yet
		}
		elapsed := sample.Time.Sub(at).Seconds()
		if elapsed <= 0 || v < prev {
			continue // clock went backwards, or the counter was reset
		}
		sample.Values[name] = float64(v-prev) / elapsed
	}
}

func (s *Sampler) record(sample *Sample) {
	if s.recorder == nil {
		return
	}
	enc := yaml.NewEncoder(s.recorder)
	if err := enc.Encode(sample); err != nil {
		s.log.Warn("recording sample failed: %v", err)
	}
	enc.Close()
}

func (s *Sampler) statistics(ctx context.Context, item string) (etf.Term, error) {
	return s.rpc.Call(ctx, "erlang", "statistics", etf.ProperList(etf.Atom(item)))
}

func (s *Sampler) systemInfoUint64(ctx context.Context, item string) (uint64, error) {
	t, err := s.rpc.Call(ctx, "erlang", "system_info", etf.ProperList(etf.Atom(item)))
	if err != nil {
		return 0, err
	}
	return termToUint64(t)
}

// EnableMSAcc turns microstate accounting on in the target VM via
// erlang:system_flag/2. It must succeed before msacc samples mean anything;
// callers treat a failure as "feature unavailable", not fatal.
func EnableMSAcc(ctx context.Context, rpc Caller) error {
	t, err := rpc.Call(ctx, "erlang", "system_flag",
		etf.ProperList(etf.Atom("microstate_accounting"), etf.Atom("true")))
	if err != nil {
		return err
	}
	if atom, ok := t.(etf.Atom); !ok || (atom != "true" && atom != "false") {
		return fmt.Errorf("unexpected system_flag result %s", t)
	}
	return nil
}

// SystemVersion fetches the erlang:system_info(system_version) banner, a
// one-off call made right after connecting.
func SystemVersion(ctx context.Context, rpc Caller) (string, error) {
	t, err := rpc.Call(ctx, "erlang", "system_info", etf.ProperList(etf.Atom("system_version")))
	if err != nil {
		return "", err
	}
	s, ok := etf.CharlistString(t)
	if !ok {
		return "", &shapeError{got: t}
	}
	return s, nil
}

type shapeError struct{ got etf.Term }

func (e *shapeError) Error() string {
	return "system_version is not a charlist: " + e.got.String()
}

func firstError(errs ...error) error {
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}

package dashboard

import (
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/beamtop/beamtop/internal/history"
	"github.com/beamtop/beamtop/internal/sampler"
)

func newTestModel(t *testing.T) (Model, chan *sampler.Sample, *history.Store) {
	t.Helper()
	store := history.NewStore(32)
	samples := make(chan *sampler.Sample, 4)
	m := New("demo@myhost", "Erlang/OTP 27", store, samples, time.Second)
	m.width = 120
	m.height = 40
	return m, samples, store
}

func testSample(values map[string]float64) *sampler.Sample {
	return &sampler.Sample{
		Time:   time.Now(),
		Values: values,
	}
}

func TestModelWaitsForFirstSample(t *testing.T) {
	m, _, _ := newTestModel(t)

	assert.False(t, m.Connected())
	view := m.View()
	assert.Contains(t, view, "waiting for first sample")
	assert.Contains(t, view, "demo@myhost")
}

func TestModelAppliesSample(t *testing.T) {
	m, _, store := newTestModel(t)
	store.Append(sampler.SeriesProcesses, 184, time.Now())

	sample := testSample(map[string]float64{sampler.SeriesProcesses: 184})
	updated, cmd := m.Update(sampleMsg{sample: sample})
	m = updated.(Model)

	assert.True(t, m.Connected())
	require.NotNil(t, cmd, "must keep waiting for the next sample")
	assert.Contains(t, m.View(), "processes")
	assert.Contains(t, m.View(), "184")
}

func TestModelSampleMsgChainsWait(t *testing.T) {
	m, samples, _ := newTestModel(t)

	updated, cmd := m.Update(sampleMsg{sample: testSample(nil)})
	m = updated.(Model)
	require.NotNil(t, cmd)

	// The returned command blocks on the channel; feed it and run it.
	next := testSample(map[string]float64{sampler.SeriesPorts: 12})
	samples <- next
	msg := cmd()
	got, ok := msg.(sampleMsg)
	require.True(t, ok)
	assert.Same(t, next, got.sample)
}

func TestModelChannelCloseShowsDisconnect(t *testing.T) {
	m, samples, _ := newTestModel(t)
	close(samples)

	msg := m.waitForSample()()
	_, ok := msg.(samplesClosedMsg)
	require.True(t, ok)

	updated, _ := m.Update(msg)
	m = updated.(Model)
	assert.Contains(t, m.View(), "connection lost")
}

func TestModelQuitKeys(t *testing.T) {
	tests := []struct {
		name string
		msg  tea.KeyMsg
	}{
		{"q", tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")}},
		{"ctrl+c", tea.KeyMsg{Type: tea.KeyCtrlC}},
		{"esc", tea.KeyMsg{Type: tea.KeyEsc}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, _, _ := newTestModel(t)
			_, cmd := m.Update(tt.msg)
			require.NotNil(t, cmd)
			assert.Equal(t, tea.Quit(), cmd())
		})
	}
}

func TestModelWindowResize(t *testing.T) {
	m, _, _ := newTestModel(t)
	updated, _ := m.Update(tea.WindowSizeMsg{Width: 60, Height: 20})
	m = updated.(Model)
	assert.Equal(t, 60, m.width)
	assert.Equal(t, 20, m.height)
}

func TestViewShowsPartialIndicator(t *testing.T) {
	m, _, _ := newTestModel(t)
	sample := testSample(nil)
	sample.Partial = true
	sample.Errors = []string{"memory: timeout"}
	updated, _ := m.Update(sampleMsg{sample: sample})
	m = updated.(Model)

	view := m.View()
	assert.Contains(t, view, "partial sample")
	assert.Contains(t, view, "memory: timeout")
}

func TestViewShowsMemoryBreakdown(t *testing.T) {
	m, _, _ := newTestModel(t)
	sample := testSample(nil)
	sample.Memory = &sampler.Memory{
		Total:     50_000_000,
		Processes: 20_000_000,
		System:    30_000_000,
		Binary:    5_000_000,
	}
	updated, _ := m.Update(sampleMsg{sample: sample})
	m = updated.(Model)

	view := m.View()
	assert.Contains(t, view, "memory")
	assert.Contains(t, view, "processes")
	assert.Contains(t, view, "binary")
}

func TestViewShowsSchedulerUtilization(t *testing.T) {
	m, _, _ := newTestModel(t)

	first := testSample(nil)
	first.MSAcc = []sampler.MSAccThread{{
		ID: 1, Type: "scheduler",
		Counters: map[string]uint64{"emulator": 0, "sleep": 0},
	}}
	second := testSample(nil)
	second.MSAcc = []sampler.MSAccThread{{
		ID: 1, Type: "scheduler",
		Counters: map[string]uint64{"emulator": 750, "sleep": 250},
	}}

	updated, _ := m.Update(sampleMsg{sample: first})
	m = updated.(Model)
	assert.NotContains(t, m.View(), "scheduler utilization", "one reading is not enough for a delta")

	updated, _ = m.Update(sampleMsg{sample: second})
	m = updated.(Model)
	view := m.View()
	assert.Contains(t, view, "scheduler utilization")
	assert.Contains(t, view, "75.0%")
}

func TestUtilizationBarThresholds(t *testing.T) {
	lipgloss.SetColorProfile(termenv.TrueColor)
	defer lipgloss.SetColorProfile(termenv.ColorProfile())

	assert.Contains(t, utilizationBar(50, 10), "50.0%")
	assert.Contains(t, utilizationBar(120, 10), "100.0%", "values are clamped")
	assert.Contains(t, utilizationBar(-5, 10), "0.0%")
}

func TestQuitViewIsEmpty(t *testing.T) {
	m, _, _ := newTestModel(t)
	m.quitting = true
	assert.Empty(t, m.View())
}

package dashboard

import (
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/beamtop/beamtop/internal/history"
	"github.com/beamtop/beamtop/internal/sampler"
	"github.com/beamtop/beamtop/internal/ui"
)

// sampleMsg carries a fresh sample from the collection loop.
type sampleMsg struct {
	sample *sampler.Sample
}

// samplesClosedMsg signals that the sample channel was closed, which means
// the connection to the node is gone.
type samplesClosedMsg struct{}

// row pairs a history series with its display label and formatter.
type row struct {
	series string
	label  string
	format func(float64) string
}

// metricRows is the display order of the scrolling graphs.
var metricRows = []row{
	{sampler.SeriesProcesses, "processes", ui.FormatCount},
	{sampler.SeriesPorts, "ports", ui.FormatCount},
	{sampler.SeriesRunQueue, "run queue", ui.FormatCount},
	{sampler.SeriesContextSwitches, "ctx switches/s", ui.FormatCount},
	{sampler.SeriesGC, "gc/s", ui.FormatCount},
	{sampler.SeriesIOIn, "io in/s", ui.FormatBytes},
	{sampler.SeriesIOOut, "io out/s", ui.FormatBytes},
	{sampler.SeriesMemTotal, "memory", ui.FormatBytes},
}

// Model is the Bubble Tea model for the node dashboard.
type Model struct {
	node       string
	sysVersion string
	store      *history.Store
	samples    <-chan *sampler.Sample
	interval   time.Duration

	spinner  spinner.Model
	last     *sampler.Sample
	sched    map[uint64]float64
	lastTime time.Time
	width    int
	height   int
	closed   bool
	quitting bool
}

// New builds a dashboard for one node. The samples channel is owned by the
// sampler's Run loop; the model only receives from it.
func New(node, sysVersion string, store *history.Store, samples <-chan *sampler.Sample, interval time.Duration) Model {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(ui.ColorInfo)

	return Model{
		node:       node,
		sysVersion: sysVersion,
		store:      store,
		samples:    samples,
		interval:   interval,
		spinner:    sp,
	}
}

// Init starts the spinner and the first sample wait.
func (m Model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.waitForSample())
}

// waitForSample blocks on the sample channel in a command goroutine, so the
// UI loop stays responsive between ticks.
func (m Model) waitForSample() tea.Cmd {
	return func() tea.Msg {
		sample, ok := <-m.samples
		if !ok {
			return samplesClosedMsg{}
		}
		return sampleMsg{sample: sample}
	}
}

// Update handles messages and updates the model state.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			m.quitting = true
			return m, tea.Quit
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case sampleMsg:
		m.applySample(msg.sample)
		return m, m.waitForSample()

	case samplesClosedMsg:
		m.closed = true
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	return m, nil
}

func (m *Model) applySample(sample *sampler.Sample) {
	if len(sample.MSAcc) > 0 && m.last != nil && len(m.last.MSAcc) > 0 {
		m.sched = sampler.SchedulerUtilization(m.last.MSAcc, sample.MSAcc)
	}
	m.last = sample
	m.lastTime = sample.Time
}

// Connected reports whether at least one sample has arrived.
func (m Model) Connected() bool {
	return m.last != nil
}

// SecondsSinceUpdate returns how long ago the last sample landed.
func (m Model) SecondsSinceUpdate() int {
	if m.lastTime.IsZero() {
		return 0
	}
	return int(time.Since(m.lastTime).Seconds())
}

// View renders the dashboard.
func (m Model) View() string {
	if m.quitting {
		return ""
	}
	return m.render()
}

// Package ui renders translation progress in a terminal.
package ui

import (
	"fmt"
	"slices"
	"strings"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"

	"tapgen/internal/driver"
)

type progressModel struct {
	title      string
	events     <-chan driver.Event
	spinner    spinner.Model
	prog       progress.Model
	items      []unitItem
	index      map[string]int
	stageLabel string
	width      int
	height     int
	done       bool
}

type unitItem struct {
	name   string
	status string
	stage  driver.Stage
}

type eventMsg driver.Event
type doneMsg struct{}

// NewProgressModel returns a Bubble Tea model that follows translation
// events for the given units until the channel is closed.
func NewProgressModel(title string, units []string, events <-chan driver.Event) tea.Model {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("6"))

	prog := progress.New(progress.WithDefaultGradient())
	prog.Width = 76

	m := &progressModel{
		title:   title,
		events:  events,
		spinner: sp,
		prog:    prog,
		items:   make([]unitItem, 0, len(units)),
		index:   make(map[string]int, len(units)),
		width:   80,
	}
	for _, u := range units {
		m.add(u)
	}
	return m
}

func (m *progressModel) add(name string) int {
	m.index[name] = len(m.items)
	m.items = append(m.items, unitItem{name: name, status: "queued"})
	return len(m.items) - 1
}

func (m *progressModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.listenForEvent())
}

func (m *progressModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case eventMsg:
		cmd := m.applyEvent(driver.Event(msg))
		return m, tea.Batch(cmd, m.listenForEvent())
	case doneMsg:
		m.done = true
		return m, tea.Quit
	case spinner.TickMsg:
		if m.done {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	case tea.WindowSizeMsg:
		if msg.Width > 0 {
			m.width = msg.Width
			m.prog.Width = msg.Width - 4
		}
		m.height = msg.Height
		return m, nil
	case progress.FrameMsg:
		pm, cmd := m.prog.Update(msg)
		m.prog = pm.(progress.Model)
		return m, cmd
	}
	return m, nil
}

func (m *progressModel) View() string {
	if len(m.items) == 0 && m.stageLabel == "" {
		return ""
	}
	header := m.title
	if m.stageLabel != "" {
		header = fmt.Sprintf("%s (%s)", header, m.stageLabel)
	}
	if m.done {
		header = "done: " + header
	} else {
		header = m.spinner.View() + " " + header
	}

	var b strings.Builder
	b.WriteString(titleStyle.Render(header))
	b.WriteString("\n")
	b.WriteString(summaryStyle.Render(m.summary()))
	b.WriteString("\n\n")

	nameWidth := max(m.width-16, 20)
	shown := m.visible()
	for _, i := range shown {
		item := m.items[i]
		status := styleStatus(item.status).Render(fmt.Sprintf("%12s", item.status))
		fmt.Fprintf(&b, "  %s %s\n", status, truncate(item.name, nameWidth))
	}
	if hidden := len(m.items) - len(shown); hidden > 0 {
		b.WriteString(summaryStyle.Render(fmt.Sprintf("  ... %d more units", hidden)))
		b.WriteString("\n")
	}

	b.WriteString("\n")
	if m.done {
		b.WriteString(m.prog.ViewAs(1.0))
	} else {
		b.WriteString(m.prog.View())
	}
	b.WriteString("\n")
	return b.String()
}

var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("7"))
	summaryStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
)

// summary counts units per outcome.
func (m *progressModel) summary() string {
	var done, failed, cached int
	for _, it := range m.items {
		switch it.status {
		case "done":
			done++
		case "cached":
			cached++
		case "error":
			failed++
		}
	}
	s := fmt.Sprintf("%d/%d units", done+cached+failed, len(m.items))
	if cached > 0 {
		s += fmt.Sprintf(", %d cached", cached)
	}
	if failed > 0 {
		s += fmt.Sprintf(", %d failed", failed)
	}
	return s
}

// visible picks the rows that fit the terminal: units still in flight and
// failures first, then the rest in declaration order.
func (m *progressModel) visible() []int {
	limit := m.height - 8
	if m.height == 0 || limit >= len(m.items) {
		limit = len(m.items)
	}
	limit = max(limit, 1)
	out := make([]int, 0, limit)
	pick := func(keep func(unitItem) bool) {
		for i, it := range m.items {
			if len(out) == limit {
				return
			}
			if keep(it) && !slices.Contains(out, i) {
				out = append(out, i)
			}
		}
	}
	pick(func(it unitItem) bool { return it.status != "done" && it.status != "cached" && it.status != "queued" })
	pick(func(unitItem) bool { return true })
	slices.Sort(out)
	return out
}

func (m *progressModel) listenForEvent() tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-m.events
		if !ok {
			return doneMsg{}
		}
		return eventMsg(ev)
	}
}

func (m *progressModel) applyEvent(ev driver.Event) tea.Cmd {
	label := statusLabel(ev.Stage, ev.Status)
	if ev.Unit == "" {
		if label != "" {
			m.stageLabel = label
		}
		return nil
	}
	idx, ok := m.index[ev.Unit]
	if !ok {
		idx = m.add(ev.Unit)
	}
	if label != "" {
		m.items[idx].status = label
		m.items[idx].stage = ev.Stage
	}
	return m.prog.SetPercent(m.percent())
}

func (m *progressModel) percent() float64 {
	if len(m.items) == 0 {
		return 0
	}
	total := 0.0
	for _, item := range m.items {
		if item.status == "done" || item.status == "error" {
			total += 1.0
		} else {
			total += progressFromStage(item.stage)
		}
	}
	return total / float64(len(m.items))
}

// stageInfo is how far a unit in a stage counts towards completion and
// what the row shows while it works.
var stageInfo = map[driver.Stage]struct {
	weight float64
	label  string
}{
	driver.StageValidate: {0.1, "validating"},
	driver.StageAnalyze:  {0.4, "analyzing"},
	driver.StageEmit:     {0.8, "emitting"},
	driver.StageCache:    {0.9, "caching"},
}

func progressFromStage(stage driver.Stage) float64 { return stageInfo[stage].weight }

func statusLabel(stage driver.Stage, status driver.Status) string {
	switch status {
	case driver.StatusQueued, driver.StatusError:
		return string(status)
	case driver.StatusDone:
		if stage == driver.StageCache {
			return "cached"
		}
		return "done"
	case driver.StatusWorking:
		return stageInfo[stage].label
	}
	return ""
}

func styleStatus(status string) lipgloss.Style {
	c := lipgloss.Color("6") // in flight
	switch status {
	case "done", "cached":
		c = lipgloss.Color("2")
	case "error":
		c = lipgloss.Color("1")
	case "queued":
		c = lipgloss.Color("7")
	}
	return lipgloss.NewStyle().Foreground(c)
}

func truncate(value string, width int) string {
	if width <= 0 || runewidth.StringWidth(value) <= width {
		return value
	}
	if width <= 3 {
		return runewidth.Truncate(value, width, "")
	}
	return runewidth.Truncate(value, width, "...")
}

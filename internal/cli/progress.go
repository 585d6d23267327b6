package cli

import (
	"context"
	"fmt"

	"charm.land/bubbles/v2/progress"
	tea "charm.land/bubbletea/v2"
	"github.com/charmbracelet/lipgloss"

	"github.com/vaulttag/vaulttag/internal/pipeline"
)

// Theme holds the color scheme for the progress display.
type Theme struct {
	Status  lipgloss.Color
	Success lipgloss.Color
	Error   lipgloss.Color
	Hint    lipgloss.Color
}

// defaultTheme provides default colors.
var defaultTheme = Theme{
	Status:  lipgloss.Color("#5FAFD7"), // light blue
	Success: lipgloss.Color("#00D787"), // green
	Error:   lipgloss.Color("#FF005F"), // red
	Hint:    lipgloss.Color("#6C6C6C"), // dim gray
}

func (t Theme) statusStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Status)
}

func (t Theme) completedStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Success).Bold(true)
}

func (t Theme) errorStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Error).Bold(true)
}

func (t Theme) hintStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Hint).Italic(true)
}

// progressMsg carries a pipeline progress update.
type progressMsg struct {
	done  int
	total int
}

// passDoneMsg carries the finished report.
type passDoneMsg struct {
	report *pipeline.Report
}

// progressModel is the bubbletea model for a running pass.
type progressModel struct {
	events    <-chan tea.Msg
	cancel    context.CancelFunc
	progress  progress.Model
	theme     Theme
	done      int
	total     int
	report    *pipeline.Report
	cancelled bool
}

func newProgressModel(events <-chan tea.Msg, cancel context.CancelFunc, total int) progressModel {
	prog := progress.New(
		progress.WithDefaultBlend(),
		progress.WithWidth(40),
	)

	return progressModel{
		events:   events,
		cancel:   cancel,
		progress: prog,
		theme:    defaultTheme,
		total:    total,
	}
}

// listen waits for the next pipeline event.
func listen(events <-chan tea.Msg) tea.Cmd {
	return func() tea.Msg {
		return <-events
	}
}

// Init returns the initial command (start listening).
func (m progressModel) Init() tea.Cmd {
	return tea.Batch(
		listen(m.events),
		m.progress.Init(),
	)
}

// Update handles messages and returns the updated model.
func (m progressModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyPressMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			// Cancel the run but keep listening: the pool drains the
			// remaining queue before the report arrives.
			m.cancelled = true
			m.cancel()
			return m, nil
		}

	case progressMsg:
		m.done = msg.done
		m.total = msg.total
		return m, listen(m.events)

	case passDoneMsg:
		m.report = msg.report
		return m, tea.Quit

	case progress.FrameMsg:
		var cmd tea.Cmd
		m.progress, cmd = m.progress.Update(msg)
		return m, cmd
	}

	return m, nil
}

// View renders the progress display.
func (m progressModel) View() tea.View {
	return tea.NewView(m.renderContent())
}

// renderContent builds the display string.
func (m progressModel) renderContent() string {
	if m.report != nil {
		return ""
	}

	var pct float64
	if m.total > 0 {
		pct = float64(m.done) / float64(m.total)
	}

	label := "[tagging]"
	if m.cancelled {
		label = "[stopping]"
	}
	status := m.theme.statusStyle().Render(label)

	bar := m.progress.ViewAs(pct)
	counts := fmt.Sprintf("%d/%d documents", m.done, m.total)

	hint := m.theme.hintStyle().Render("Press Ctrl+C to stop after in-flight documents")

	return fmt.Sprintf("%s %s %s\n%s\n", status, bar, counts, hint)
}

// runWithProgress drives the coordinator under the interactive progress
// UI. Ctrl+C cancels the pass; the report still covers every document.
func runWithProgress(ctx context.Context, coordinator *pipeline.Coordinator, files []string, opts pipeline.Options) (*pipeline.Report, error) {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	events := make(chan tea.Msg, 64)
	opts.Progress = func(done, total int) {
		// Drop updates rather than block a worker on a busy UI; the
		// final report is delivered with a guaranteed send below.
		select {
		case events <- progressMsg{done: done, total: total}:
		default:
		}
	}

	go func() {
		report := coordinator.Run(runCtx, files, opts)
		events <- passDoneMsg{report: report}
	}()

	model := newProgressModel(events, cancel, len(files))
	p := tea.NewProgram(model)

	finalModel, err := p.Run()
	if err != nil {
		return nil, fmt.Errorf("progress UI error: %w", err)
	}

	m, ok := finalModel.(progressModel)
	if !ok || m.report == nil {
		return nil, fmt.Errorf("pass ended without a report")
	}
	if m.cancelled {
		fmt.Println(m.theme.hintStyle().Render("Run cancelled; partial results follow."))
	} else {
		fmt.Println(m.theme.completedStyle().Render("✓ Pass complete"))
	}
	return m.report, nil
}

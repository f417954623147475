package ui

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/Aman-CERP/amanidx/internal/index"
)

// quitTimeout bounds how long Stop waits for the program to exit.
const quitTimeout = 2 * time.Second

// TUIRenderer draws live progress with bubbletea.
type TUIRenderer struct {
	mu      sync.Mutex
	cfg     Config
	program *tea.Program
	model   *indexingModel
	tracker *ProgressTracker
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewTUIRenderer creates a TUI renderer. It fails when output is not a
// terminal.
func NewTUIRenderer(cfg Config) (*TUIRenderer, error) {
	if !IsTTY(cfg.Output) {
		return nil, fmt.Errorf("output is not a TTY")
	}

	tracker := NewProgressTracker()
	model := newIndexingModel(tracker, cfg.Workspace)
	if cfg.NoColor || DetectNoColor() {
		model.styles = NoColorStyles()
	}

	return &TUIRenderer{
		cfg:     cfg,
		tracker: tracker,
		model:   model,
		done:    make(chan struct{}),
	}, nil
}

// Start implements Renderer.
func (r *TUIRenderer) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.program != nil {
		return nil
	}

	ctx, r.cancel = context.WithCancel(ctx)
	opts := []tea.ProgramOption{tea.WithContext(ctx)}
	if f, ok := r.cfg.Output.(*os.File); ok {
		opts = append(opts, tea.WithOutput(f))
	}
	r.program = tea.NewProgram(r.model, opts...)

	go func() {
		defer close(r.done)
		_, _ = r.program.Run()
	}()
	return nil
}

// Update implements Renderer.
func (r *TUIRenderer) Update(st index.IndexStatus) {
	r.tracker.Observe(st)

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.program != nil {
		r.program.Send(statusMsg(st))
	}
}

// Complete implements Renderer.
func (r *TUIRenderer) Complete(s Summary) {
	r.tracker.Observe(s.Status)

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.program != nil {
		r.program.Send(completeMsg(s))
	}
}

// Stop implements Renderer.
func (r *TUIRenderer) Stop() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.program == nil {
		return nil
	}
	r.program.Quit()
	select {
	case <-r.done:
	case <-time.After(quitTimeout):
	}
	if r.cancel != nil {
		r.cancel()
	}
	return nil
}

var _ Renderer = (*TUIRenderer)(nil)

type statusMsg index.IndexStatus
type completeMsg Summary
type tickMsg time.Time

// indexingModel is the bubbletea model for a running build.
type indexingModel struct {
	tracker     *ProgressTracker
	workspace   string
	width       int
	quitting    bool
	complete    bool
	summary     Summary
	spinner     spinner.Model
	progressBar progress.Model
	styles      Styles
}

func newIndexingModel(tracker *ProgressTracker, workspace string) *indexingModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color(ColorAccent))

	p := progress.New(
		progress.WithSolidFill(ColorAccent),
		progress.WithWidth(50),
		progress.WithoutPercentage(),
	)

	return &indexingModel{
		tracker:     tracker,
		workspace:   workspace,
		width:       80,
		spinner:     s,
		progressBar: p,
		styles:      DefaultStyles(),
	}
}

// Init implements tea.Model.
func (m *indexingModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, tickCmd())
}

func tickCmd() tea.Cmd {
	return tea.Tick(100*time.Millisecond, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// Update implements tea.Model.
func (m *indexingModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			m.quitting = true
			return m, tea.Quit
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.progressBar.Width = max(msg.Width-20, 20)

	case statusMsg:
		return m, nil

	case completeMsg:
		m.complete = true
		m.summary = Summary(msg)
		return m, tea.Quit

	case tickMsg:
		return m, tickCmd()

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

// View implements tea.Model.
func (m *indexingModel) View() string {
	if m.quitting {
		return "Cancelled.\n"
	}
	if m.complete {
		return m.renderComplete()
	}

	width := max(m.width-4, 40)
	stats := m.tracker.Stats()

	sections := []string{
		m.renderHeader(stats.Status),
		m.renderDivider(width),
		m.renderProgress(stats),
		m.renderSpeed(stats),
		m.styles.Success.Render(m.tracker.Sparkline(max(width-14, 10))) + " " + m.styles.Dim.Render("files/sec"),
	}
	if msg := stats.Status.ErrorMessage; msg != "" {
		sections = append(sections, m.renderDivider(width), m.styles.Warning.Render(truncate(msg, width)))
	}

	title := "amanidx"
	if m.workspace != "" {
		title += " • " + m.workspace
	}
	panel := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color(ColorDarkGray)).
		Padding(0, 1).
		Width(width)

	return lipgloss.JoinVertical(lipgloss.Left,
		m.styles.Header.Render(title),
		panel.Render(strings.Join(sections, "\n")),
	) + "\n" + m.styles.Dim.Render("q to quit")
}

func (m *indexingModel) renderHeader(st index.IndexStatus) string {
	state := string(st.State)
	if state == "" {
		state = string(index.StateIndexing)
	}
	line := m.spinner.View() + " " + m.styles.stateStyle(state).Render(state)
	if st.Paused {
		line += "  " + m.styles.Warning.Render("paused")
	}
	if st.EmbeddingModel != "" {
		line += "  " + m.styles.Label.Render(fmt.Sprintf("%s (%d dims)", st.EmbeddingModel, st.Dimension))
	}
	return line
}

func (m *indexingModel) renderProgress(stats ProgressStats) string {
	st := stats.Status
	if st.TotalFiles == 0 {
		return m.styles.Dim.Render("Scanning workspace...")
	}
	bar := m.progressBar.ViewAs(stats.Progress)
	pct := m.styles.Active.Render(fmt.Sprintf("%3.0f%%", stats.Progress*100))
	counts := fmt.Sprintf("%d / %d files  •  %d chunks  •  %d embedded",
		st.IndexedFiles+st.FailedFiles, st.TotalFiles, st.TotalChunks, st.EmbeddedChunks)
	if st.FailedFiles > 0 {
		counts += "  •  " + m.styles.Error.Render(fmt.Sprintf("%d failed", st.FailedFiles))
	}
	return fmt.Sprintf("%s  %s\n%s", bar, pct, m.styles.Label.Render(counts))
}

func (m *indexingModel) renderSpeed(stats ProgressStats) string {
	parts := []string{fmt.Sprintf("Speed: %.1f/s", stats.Speed.Current)}
	if stats.Speed.Avg > 0 {
		parts[0] += fmt.Sprintf(" (avg %.1f, peak %.1f)", stats.Speed.Avg, stats.Speed.Peak)
	}
	if stats.ETA > 0 {
		parts = append(parts, "ETA: "+formatDuration(stats.ETA))
	}
	return m.styles.Label.Render(strings.Join(parts, "  •  "))
}

func (m *indexingModel) renderDivider(width int) string {
	return m.styles.Dim.Render(strings.Repeat("─", width))
}

func (m *indexingModel) renderComplete() string {
	st := m.summary.Status
	header := m.styles.Success.Render("✓ Indexing complete")
	if st.Incomplete {
		header = m.styles.Warning.Render("⚠ Indexing cancelled")
	} else if st.State == index.StateError {
		header = m.styles.Error.Render("✗ Indexing failed")
	}

	lines := []string{
		header,
		"",
		m.styles.Label.Render("State:     ") + m.styles.stateStyle(string(st.State)).Render(string(st.State)),
		m.styles.Label.Render("Files:     ") + m.styles.Active.Render(fmt.Sprint(st.IndexedFiles)),
		m.styles.Label.Render("Chunks:    ") + m.styles.Active.Render(fmt.Sprint(st.TotalChunks)),
		m.styles.Label.Render("Embedded:  ") + m.styles.Active.Render(fmt.Sprint(st.EmbeddedChunks)),
		m.styles.Label.Render("Duration:  ") + m.styles.Active.Render(formatDuration(m.summary.Duration)),
	}
	if st.FailedFiles > 0 {
		lines = append(lines, m.styles.Error.Render(fmt.Sprintf("✗ %d files failed", st.FailedFiles)))
	}
	if st.ErrorMessage != "" {
		lines = append(lines, "", m.styles.Warning.Render(st.ErrorMessage))
	}

	return lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color(ColorAccent)).
		Padding(1, 2).
		Width(max(m.width-4, 40)).
		Render(strings.Join(lines, "\n")) + "\n"
}

// formatDuration formats a duration as "42s", "3m 5s" or "1h 2m".
func formatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	switch {
	case d < time.Minute:
		return fmt.Sprintf("%ds", int(d.Seconds()))
	case d < time.Hour:
		m, s := int(d.Minutes()), int(d.Seconds())%60
		if s == 0 {
			return fmt.Sprintf("%dm", m)
		}
		return fmt.Sprintf("%dm %ds", m, s)
	default:
		return fmt.Sprintf("%dh %dm", int(d.Hours()), int(d.Minutes())%60)
	}
}

// truncate shortens s to at most n runes, marking the cut with "...".
func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	if n <= 3 {
		return string(r[:n])
	}
	return string(r[:n-3]) + "..."
}

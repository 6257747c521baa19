package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/klauern/memsync/internal/sync"
)

// ConflictAction represents the action to perform after conflict resolution.
type ConflictAction int

const (
	// ConflictActionNone means no action was taken (user quit).
	ConflictActionNone ConflictAction = iota
	// ConflictActionResolve means the user resolved conflicts and wants to apply.
	ConflictActionResolve
	// ConflictActionCancel means the user cancelled.
	ConflictActionCancel
)

// ConflictResolution holds the chosen strategy for a single conflict.
type ConflictResolution struct {
	ID       string
	Strategy sync.ResolutionStrategy
}

// ConflictListResult contains the result of the conflict resolution
// interaction. Skipped conflicts carry no resolution and stay pending.
type ConflictListResult struct {
	Action      ConflictAction
	Resolutions []ConflictResolution
}

// resolutionSkip marks a conflict the user chose to leave pending.
const resolutionSkip sync.ResolutionStrategy = "skip"

// conflictPhase represents the current phase of conflict resolution.
type conflictPhase int

const (
	phaseList conflictPhase = iota
	phaseDetail
)

// conflictKeyMap defines the key bindings for conflict resolution.
type conflictKeyMap struct {
	Up      key.Binding
	Down    key.Binding
	Select  key.Binding
	Local   key.Binding
	Remote  key.Binding
	Merge   key.Binding
	Skip    key.Binding
	Confirm key.Binding
	Back    key.Binding
	Help    key.Binding
	Quit    key.Binding
}

func defaultConflictKeyMap() conflictKeyMap {
	return conflictKeyMap{
		Up: key.NewBinding(
			key.WithKeys("up", "k"),
			key.WithHelp("↑/k", "up"),
		),
		Down: key.NewBinding(
			key.WithKeys("down", "j"),
			key.WithHelp("↓/j", "down"),
		),
		Select: key.NewBinding(
			key.WithKeys("enter"),
			key.WithHelp("enter", "view details"),
		),
		Local: key.NewBinding(
			key.WithKeys("l", "1"),
			key.WithHelp("l/1", "keep local"),
		),
		Remote: key.NewBinding(
			key.WithKeys("r", "2"),
			key.WithHelp("r/2", "keep remote"),
		),
		Merge: key.NewBinding(
			key.WithKeys("m", "3"),
			key.WithHelp("m/3", "merge"),
		),
		Skip: key.NewBinding(
			key.WithKeys("x", "4"),
			key.WithHelp("x/4", "skip"),
		),
		Confirm: key.NewBinding(
			key.WithKeys("y"),
			key.WithHelp("y", "apply resolutions"),
		),
		Back: key.NewBinding(
			key.WithKeys("b", "esc"),
			key.WithHelp("b/esc", "back"),
		),
		Help: key.NewBinding(
			key.WithKeys("?"),
			key.WithHelp("?", "help"),
		),
		Quit: key.NewBinding(
			key.WithKeys("q", "ctrl+c"),
			key.WithHelp("q", "quit"),
		),
	}
}

// ConflictListModel is the BubbleTea model for conflict resolution.
type ConflictListModel struct {
	conflicts   []*sync.Conflict
	resolutions map[string]sync.ResolutionStrategy
	table       table.Model
	viewport    viewport.Model
	keys        conflictKeyMap
	result      ConflictListResult
	phase       conflictPhase
	cursor      int
	showHelp    bool
	confirmMode bool
	width       int
	height      int
	quitting    bool
	ready       bool
}

// Styles for the conflict resolution TUI.
var conflictStyles = struct {
	Title       lipgloss.Style
	Help        lipgloss.Style
	Status      lipgloss.Style
	Local       lipgloss.Style
	Remote      lipgloss.Style
	Context     lipgloss.Style
	Info        lipgloss.Style
	Confirm     lipgloss.Style
	LocalLabel  lipgloss.Style
	RemoteLabel lipgloss.Style
}{
	Title:       lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("6")).Padding(0, 1),
	Help:        lipgloss.NewStyle().Foreground(lipgloss.Color("241")),
	Status:      lipgloss.NewStyle().Foreground(lipgloss.Color("241")).Padding(0, 1),
	Local:       lipgloss.NewStyle().Foreground(lipgloss.Color("2")),
	Remote:      lipgloss.NewStyle().Foreground(lipgloss.Color("1")),
	Context:     lipgloss.NewStyle().Foreground(lipgloss.Color("7")),
	Info:        lipgloss.NewStyle().Foreground(lipgloss.Color("3")).Italic(true),
	Confirm:     lipgloss.NewStyle().Foreground(lipgloss.Color("3")).Bold(true).Padding(0, 1),
	LocalLabel:  lipgloss.NewStyle().Foreground(lipgloss.Color("4")).Bold(true),
	RemoteLabel: lipgloss.NewStyle().Foreground(lipgloss.Color("5")).Bold(true),
}

// NewConflictListModel creates a new conflict resolution model.
func NewConflictListModel(conflicts []*sync.Conflict) ConflictListModel {
	columns := []table.Column{
		{Title: "Status", Width: 8},
		{Title: "Entry", Width: 24},
		{Title: "Tier", Width: 12},
		{Title: "Changes", Width: 24},
		{Title: "Resolution", Width: 16},
	}

	rows := make([]table.Row, len(conflicts))
	for i, c := range conflicts {
		rows[i] = buildConflictRow(c, "")
	}

	t := table.New(
		table.WithColumns(columns),
		table.WithRows(rows),
		table.WithFocused(true),
		table.WithHeight(15),
	)

	s := table.DefaultStyles()
	s.Header = s.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(lipgloss.Color("240")).
		BorderBottom(true).
		Bold(true)
	s.Selected = s.Selected.
		Foreground(lipgloss.Color("229")).
		Background(lipgloss.Color("57")).
		Bold(false)
	t.SetStyles(s)

	return ConflictListModel{
		conflicts:   conflicts,
		resolutions: make(map[string]sync.ResolutionStrategy),
		table:       t,
		keys:        defaultConflictKeyMap(),
		phase:       phaseList,
	}
}

func buildConflictRow(c *sync.Conflict, resolution string) table.Row {
	status := "○"
	if resolution != "" {
		status = "✓"
	}

	resStr := "-"
	if resolution != "" {
		resStr = resolution
	}

	return table.Row{
		status,
		c.ID,
		string(c.Local.Tier),
		conflictChanges(c),
		resStr,
	}
}

func conflictChanges(c *sync.Conflict) string {
	parts := make([]string, 0, 3)
	if c.Diff.ContentChanged {
		parts = append(parts, "content")
	}
	if c.Diff.ImportanceChanged {
		parts = append(parts, "importance")
	}
	if c.Diff.MetadataChanged {
		parts = append(parts, "metadata")
	}
	return strings.Join(parts, ", ")
}

// Init implements tea.Model.
func (m ConflictListModel) Init() tea.Cmd {
	return nil
}

// Update implements tea.Model.
func (m ConflictListModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch m.phase {
	case phaseList:
		return m.updateList(msg)
	case phaseDetail:
		return m.updateDetail(msg)
	}
	return m, nil
}

func (m ConflictListModel) updateList(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		newHeight := max(msg.Height-10, 5)
		m.table.SetHeight(newHeight)

	case tea.KeyMsg:
		// Handle confirmation mode first
		if m.confirmMode {
			switch msg.String() {
			case "y", "Y":
				m.result = ConflictListResult{
					Action:      ConflictActionResolve,
					Resolutions: m.buildResolutions(),
				}
				m.quitting = true
				return m, tea.Quit
			case "n", "N", "esc":
				m.confirmMode = false
				return m, nil
			}
			return m, nil
		}

		switch {
		case key.Matches(msg, m.keys.Quit):
			m.quitting = true
			return m, tea.Quit

		case key.Matches(msg, m.keys.Help):
			m.showHelp = !m.showHelp
			return m, nil

		case key.Matches(msg, m.keys.Select):
			if len(m.conflicts) > 0 {
				m.cursor = m.table.Cursor()
				m.phase = phaseDetail
				m.ready = false
				return m, nil
			}

		case key.Matches(msg, m.keys.Local):
			m.resolveCurrentConflict(sync.StrategyPreferLocal)
			return m, nil

		case key.Matches(msg, m.keys.Remote):
			m.resolveCurrentConflict(sync.StrategyPreferRemote)
			return m, nil

		case key.Matches(msg, m.keys.Merge):
			m.resolveCurrentConflict(sync.StrategyMerge)
			return m, nil

		case key.Matches(msg, m.keys.Skip):
			m.resolveCurrentConflict(resolutionSkip)
			return m, nil

		case key.Matches(msg, m.keys.Confirm):
			if m.allResolved() {
				m.confirmMode = true
				return m, nil
			}

		case key.Matches(msg, m.keys.Back):
			m.result = ConflictListResult{Action: ConflictActionCancel}
			m.quitting = true
			return m, tea.Quit
		}
	}

	m.table, cmd = m.table.Update(msg)
	return m, cmd
}

func (m ConflictListModel) updateDetail(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

		headerHeight := 6
		footerHeight := 4
		viewportHeight := max(msg.Height-headerHeight-footerHeight, 5)

		if !m.ready {
			m.viewport = viewport.New(msg.Width-2, viewportHeight)
			m.viewport.SetContent(m.buildDetailContent())
			m.ready = true
		} else {
			m.viewport.Width = msg.Width - 2
			m.viewport.Height = viewportHeight
		}

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.keys.Quit):
			m.quitting = true
			return m, tea.Quit

		case key.Matches(msg, m.keys.Back):
			m.phase = phaseList
			return m, nil

		case key.Matches(msg, m.keys.Local):
			m.resolveConflictAt(m.cursor, sync.StrategyPreferLocal)
			m.viewport.SetContent(m.buildDetailContent())
			return m, nil

		case key.Matches(msg, m.keys.Remote):
			m.resolveConflictAt(m.cursor, sync.StrategyPreferRemote)
			m.viewport.SetContent(m.buildDetailContent())
			return m, nil

		case key.Matches(msg, m.keys.Merge):
			m.resolveConflictAt(m.cursor, sync.StrategyMerge)
			m.viewport.SetContent(m.buildDetailContent())
			return m, nil

		case key.Matches(msg, m.keys.Skip):
			m.resolveConflictAt(m.cursor, resolutionSkip)
			m.viewport.SetContent(m.buildDetailContent())
			return m, nil
		}
	}

	m.viewport, cmd = m.viewport.Update(msg)
	return m, cmd
}

func (m *ConflictListModel) resolveCurrentConflict(strategy sync.ResolutionStrategy) {
	if len(m.conflicts) == 0 {
		return
	}
	m.resolveConflictAt(m.table.Cursor(), strategy)
}

func (m *ConflictListModel) resolveConflictAt(idx int, strategy sync.ResolutionStrategy) {
	if idx < 0 || idx >= len(m.conflicts) {
		return
	}

	c := m.conflicts[idx]
	m.resolutions[c.ID] = strategy
	m.updateTableRow(idx)
}

func (m *ConflictListModel) updateTableRow(idx int) {
	if idx < 0 || idx >= len(m.conflicts) {
		return
	}

	c := m.conflicts[idx]
	resolution := ""
	if res, ok := m.resolutions[c.ID]; ok {
		resolution = string(res)
	}

	rows := m.table.Rows()
	if idx < len(rows) {
		rows[idx] = buildConflictRow(c, resolution)
		m.table.SetRows(rows)
	}
}

func (m ConflictListModel) allResolved() bool {
	for _, c := range m.conflicts {
		if _, ok := m.resolutions[c.ID]; !ok {
			return false
		}
	}
	return len(m.conflicts) > 0
}

// buildResolutions collects the chosen strategies, dropping skipped
// conflicts so they stay pending.
func (m ConflictListModel) buildResolutions() []ConflictResolution {
	out := make([]ConflictResolution, 0, len(m.conflicts))
	for _, c := range m.conflicts {
		strategy, ok := m.resolutions[c.ID]
		if !ok || strategy == resolutionSkip {
			continue
		}
		out = append(out, ConflictResolution{ID: c.ID, Strategy: strategy})
	}
	return out
}

// Result returns the interaction outcome after the program exits.
func (m ConflictListModel) Result() ConflictListResult {
	return m.result
}

// View implements tea.Model.
func (m ConflictListModel) View() string {
	if m.quitting {
		return ""
	}

	switch m.phase {
	case phaseDetail:
		return m.viewDetail()
	default:
		return m.viewList()
	}
}

func (m ConflictListModel) viewList() string {
	var sb strings.Builder

	sb.WriteString(conflictStyles.Title.Render(fmt.Sprintf("Resolve %d conflict(s)", len(m.conflicts))))
	sb.WriteString("\n\n")
	sb.WriteString(m.table.View())
	sb.WriteString("\n")

	if m.confirmMode {
		sb.WriteString(conflictStyles.Confirm.Render("Apply these resolutions? (y/n)"))
		sb.WriteString("\n")
		return sb.String()
	}

	resolved := len(m.resolutions)
	sb.WriteString(conflictStyles.Status.Render(fmt.Sprintf("%d/%d resolved", resolved, len(m.conflicts))))
	sb.WriteString("\n")

	if m.showHelp {
		sb.WriteString(conflictStyles.Help.Render(
			"enter: details • l/1: local • r/2: remote • m/3: merge • x/4: skip • y: apply • b: cancel • q: quit"))
	} else {
		sb.WriteString(conflictStyles.Help.Render("?: help"))
	}
	sb.WriteString("\n")

	return sb.String()
}

func (m ConflictListModel) viewDetail() string {
	if m.cursor < 0 || m.cursor >= len(m.conflicts) {
		return ""
	}
	c := m.conflicts[m.cursor]

	var sb strings.Builder
	sb.WriteString(conflictStyles.Title.Render("Conflict: " + c.ID))
	sb.WriteString("\n")
	sb.WriteString(conflictStyles.Info.Render(fmt.Sprintf(
		"auto-resolvable: %t, suggested: %s", c.AutoResolvable, c.SuggestedResolution)))
	sb.WriteString("\n\n")

	if m.ready {
		sb.WriteString(m.viewport.View())
		sb.WriteString("\n")
	}

	sb.WriteString(conflictStyles.Help.Render(
		"l/1: local • r/2: remote • m/3: merge • x/4: skip • b/esc: back • q: quit"))
	sb.WriteString("\n")

	return sb.String()
}

// buildDetailContent renders both sides of the selected conflict.
func (m ConflictListModel) buildDetailContent() string {
	if m.cursor < 0 || m.cursor >= len(m.conflicts) {
		return ""
	}
	c := m.conflicts[m.cursor]

	var sb strings.Builder

	sb.WriteString(conflictStyles.LocalLabel.Render(fmt.Sprintf(
		"LOCAL (importance %.1f, touched %s)", c.Local.Importance, c.Local.LastTouched().Format("15:04:05"))))
	sb.WriteString("\n")
	sb.WriteString(formatContentWithLineNumbers(c.Local.Content, conflictStyles.Local))
	sb.WriteString("\n\n")

	sb.WriteString(conflictStyles.RemoteLabel.Render(fmt.Sprintf(
		"REMOTE (importance %.1f, touched %s)", c.Remote.Importance, c.Remote.LastTouched().Format("15:04:05"))))
	sb.WriteString("\n")
	sb.WriteString(formatContentWithLineNumbers(c.Remote.Content, conflictStyles.Remote))

	if resolution, ok := m.resolutions[c.ID]; ok {
		sb.WriteString("\n\n")
		sb.WriteString(conflictStyles.Info.Render("resolution: " + string(resolution)))
	}

	return sb.String()
}

// formatContentWithLineNumbers formats content with line numbers for display.
func formatContentWithLineNumbers(content string, style lipgloss.Style) string {
	lines := strings.Split(content, "\n")
	var b strings.Builder

	for i, line := range lines {
		lineNum := fmt.Sprintf("%4d │ ", i+1)
		b.WriteString(conflictStyles.Context.Render(lineNum))
		b.WriteString(style.Render(line))
		if i < len(lines)-1 {
			b.WriteString("\n")
		}
	}

	return b.String()
}

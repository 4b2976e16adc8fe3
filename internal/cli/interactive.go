package cli

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// menuItem represents a single configurable option in the TUI.
type menuItem struct {
	label    string
	value    string
	options  []menuOption // non-empty for option pickers; empty means free text
	required bool
	editing  bool
	cursor   int // cursor within options when editing
}

type menuOption struct {
	label string
	value string
}

// menuState tracks which phase the TUI is in.
type menuState int

const (
	stateMenu menuState = iota
	stateEditing
)

// tuiModel is the Bubble Tea model for the interactive submission wizard.
type tuiModel struct {
	items     []menuItem
	cursor    int
	state     menuState
	err       error
	confirmed bool
	cancelled bool
}

// style constants
var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#7D56F4")).
			MarginBottom(1)

	menuLabelStyle = lipgloss.NewStyle().
			Width(20).
			Align(lipgloss.Right).
			MarginRight(2)

	menuValueStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#04B575"))

	menuValueDimStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("#555555")).
				Italic(true)

	cursorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#7D56F4")).
			Bold(true)

	requiredStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF5555")).
			Bold(true)

	optionStyle = lipgloss.NewStyle().
			PaddingLeft(4)

	selectedOptionStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("#04B575")).
				Bold(true).
				PaddingLeft(2)

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#555555"))

	buttonStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 3)

	buttonDimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#555555")).
			Padding(0, 3)

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#626262")).
			MarginTop(1)

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF5555")).
			Bold(true)

	headerBorder = lipgloss.NewStyle().
			BorderStyle(lipgloss.NormalBorder()).
			BorderBottom(true).
			BorderForeground(lipgloss.Color("#7D56F4")).
			MarginBottom(1).
			PaddingBottom(0)
)

const (
	idxSourceURLs    = 0
	idxSourcePDF     = 1
	idxPersons       = 2
	idxLength        = 3
	idxOutlinePrompt = 4
	idxDialogue      = 5
	idxHostName      = 6
	idxHostGender    = 7
	idxWebhook       = 8
	idxModel         = 9
)

func initialTUIModel() tuiModel {
	items := []menuItem{
		{label: "Source URL(s)", required: true, value: strings.Join(flagSourceURLs, ", ")},
		{label: "Source PDF path", value: flagSourcePDF},
		{label: "Prominent persons", value: strings.Join(flagProminentPersons, ", ")},
		{label: "Desired length", value: flagDesiredLength},
		{label: "Outline prompt", value: flagOutlinePrompt},
		{label: "Dialogue prompt", value: flagDialoguePrompt},
		{label: "Host invented name", value: flagHostName},
		{
			label: "Host gender",
			value: flagHostGender,
			options: []menuOption{
				{label: "(auto)", value: ""},
				{label: "male", value: "male"},
				{label: "female", value: "female"},
				{label: "neutral", value: "neutral"},
			},
		},
		{label: "Webhook URL", value: flagWebhookURL},
		{
			label: "Script model",
			value: flagModel,
			options: []menuOption{
				{label: "haiku", value: "haiku"},
				{label: "sonnet", value: "sonnet"},
			},
		},
	}
	return tuiModel{items: items, cursor: idxSourceURLs}
}

func (m tuiModel) isTextInput(idx int) bool {
	return len(m.items[idx].options) == 0
}

func (m tuiModel) generateIdx() int {
	return len(m.items)
}

func (m tuiModel) Init() tea.Cmd {
	return nil
}

func (m tuiModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch m.state {
		case stateEditing:
			return m.updateEditing(msg)
		default:
			return m.updateMenu(msg)
		}
	}
	return m, nil
}

func (m tuiModel) updateMenu(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c", "q":
		m.cancelled = true
		return m, tea.Quit

	case "up", "k":
		if m.cursor > 0 {
			m.cursor--
		}

	case "down", "j":
		if m.cursor < m.generateIdx() {
			m.cursor++
		}

	case "enter", " ":
		if m.cursor == m.generateIdx() {
			if err := m.validate(); err != nil {
				m.err = err
				return m, nil
			}
			m.confirmed = true
			return m, tea.Quit
		}
		m.items[m.cursor].editing = true
		m.state = stateEditing
		m.err = nil
	}
	return m, nil
}

func (m tuiModel) validate() error {
	if m.items[idxSourceURLs].value == "" && m.items[idxSourcePDF].value == "" {
		return fmt.Errorf("at least one source URL or a source PDF path is required")
	}
	return nil
}

func (m tuiModel) updateEditing(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	idx := m.cursor
	item := &m.items[idx]

	if m.isTextInput(idx) {
		switch msg.String() {
		case "enter":
			item.editing = false
			m.state = stateMenu
			if m.cursor < m.generateIdx() {
				m.cursor++
			}
			return m, nil
		case "esc":
			item.editing = false
			m.state = stateMenu
			return m, nil
		case "backspace":
			if len(item.value) > 0 {
				item.value = item.value[:len(item.value)-1]
			}
			return m, nil
		case "ctrl+u":
			item.value = ""
			return m, nil
		default:
			if msg.Type == tea.KeyRunes {
				item.value += string(msg.Runes)
			}
			return m, nil
		}
	}

	switch msg.String() {
	case "enter", " ":
		if item.cursor >= 0 && item.cursor < len(item.options) {
			item.value = item.options[item.cursor].value
		}
		item.editing = false
		m.state = stateMenu
		if m.cursor < m.generateIdx() {
			m.cursor++
		}
		return m, nil

	case "esc":
		item.editing = false
		m.state = stateMenu
		return m, nil

	case "up", "k":
		if item.cursor > 0 {
			item.cursor--
		}

	case "down", "j":
		if item.cursor < len(item.options)-1 {
			item.cursor++
		}
	}
	return m, nil
}

func (m tuiModel) View() string {
	var b strings.Builder

	header := headerBorder.Render(titleStyle.Render("Podcaster"))
	b.WriteString(header)
	b.WriteString("\n")

	genIdx := m.generateIdx()

	for i, item := range m.items {
		isActive := m.cursor == i

		cursor := "  "
		if isActive {
			cursor = cursorStyle.Render("> ")
		}

		label := item.label
		if item.required {
			label = label + requiredStyle.Render("*")
		}
		renderedLabel := menuLabelStyle.Render(label)

		var renderedValue string
		switch {
		case item.editing && m.isTextInput(i):
			renderedValue = menuValueStyle.Render(item.value + "_")
		case item.value == "":
			renderedValue = menuValueDimStyle.Render("(not set)")
		default:
			displayVal := item.value
			for _, opt := range item.options {
				if opt.value == item.value {
					displayVal = opt.label
					break
				}
			}
			renderedValue = menuValueStyle.Render(displayVal)
		}

		b.WriteString(cursor + renderedLabel + " " + renderedValue + "\n")

		if item.editing && len(item.options) > 0 {
			for j, opt := range item.options {
				if j == item.cursor {
					b.WriteString(selectedOptionStyle.Render("> "+opt.label) + "\n")
				} else {
					b.WriteString(optionStyle.Render("  "+opt.label) + "\n")
				}
			}
		}
	}

	b.WriteString("\n")
	if m.cursor == genIdx {
		b.WriteString("  " + buttonStyle.Render(" Generate "))
	} else {
		b.WriteString("  " + buttonDimStyle.Render(" Generate "))
	}
	b.WriteString("\n")

	if m.err != nil {
		b.WriteString("\n" + errorStyle.Render("  Error: "+m.err.Error()) + "\n")
	}

	switch m.state {
	case stateMenu:
		b.WriteString(helpStyle.Render("  j/k or arrows to navigate | enter to edit | q to quit"))
	case stateEditing:
		if m.isTextInput(m.cursor) {
			b.WriteString(helpStyle.Render("  type value | enter to confirm | esc to cancel | ctrl+u to clear"))
		} else {
			b.WriteString(helpStyle.Render("  j/k or arrows to pick | enter to select | esc to cancel"))
		}
	}
	b.WriteString("\n")

	return b.String()
}

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}

func runInteractiveSetup() error {
	m := initialTUIModel()

	p := tea.NewProgram(m, tea.WithAltScreen())
	result, err := p.Run()
	if err != nil {
		return fmt.Errorf("TUI error: %w", err)
	}

	final := result.(tuiModel)
	if final.cancelled || !final.confirmed {
		return fmt.Errorf("generation cancelled")
	}

	flagSourceURLs = splitList(final.items[idxSourceURLs].value)
	flagSourcePDF = final.items[idxSourcePDF].value
	flagProminentPersons = splitList(final.items[idxPersons].value)
	flagDesiredLength = final.items[idxLength].value
	flagOutlinePrompt = final.items[idxOutlinePrompt].value
	flagDialoguePrompt = final.items[idxDialogue].value
	flagHostName = final.items[idxHostName].value
	flagHostGender = final.items[idxHostGender].value
	flagWebhookURL = final.items[idxWebhook].value
	flagModel = final.items[idxModel].value

	return nil
}

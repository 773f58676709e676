package onboarding

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"herald/internal/config"
)

// --- Styles ---

var (
	helpStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	errStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	titleStyle = lipgloss.NewStyle().
			Background(lipgloss.Color("62")).
			Foreground(lipgloss.Color("230")).
			Padding(0, 1).
			Bold(true)

	docStyle = lipgloss.NewStyle().Padding(1, 2)

	activeTabStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("205")).
			Border(lipgloss.NormalBorder(), false, false, true, false).
			BorderForeground(lipgloss.Color("205")).
			Padding(0, 1)

	inactiveTabStyle = lipgloss.NewStyle().
				Padding(0, 1)

	windowStyle = lipgloss.NewStyle().
			Border(lipgloss.NormalBorder()).
			BorderForeground(lipgloss.Color("62")).
			Padding(1)
)

// --- Types ---

type state int

const (
	stateToken state = iota
	stateOffset
	stateDomainName
	stateSourceType
	stateSourceDetail
	stateChat
	stateLang
	stateSummaryChat
	stateTranslation
	stateDone
)

type item struct {
	title, desc string
}

func (i item) Title() string       { return i.title }
func (i item) Description() string { return i.desc }
func (i item) FilterValue() string { return i.title }

// TUIModel drives the interactive setup screen. It configures one domain;
// more can be added in the YAML file afterwards.
type TUIModel struct {
	state      state
	configPath string
	cfg        *config.Config
	domain     config.DomainConfig

	list     list.Model
	input    textinput.Model
	errMsg   string
	quitting bool
	saveErr  error
	width    int
	height   int
}

// --- Initial Model ---

func NewTUIModel(configPath string) TUIModel {
	sources := []list.Item{
		item{title: "google", desc: "Google Calendar (calendar id + credentials)"},
		item{title: "ics", desc: "Any ICS feed URL"},
	}

	l := list.New(sources, list.NewDefaultDelegate(), 0, 0)
	l.Title = "Calendar Source"
	l.SetShowHelp(false)

	ti := textinput.New()
	ti.Placeholder = "123456:ABC-DEF..."
	ti.Prompt = "Bot token: "
	ti.Focus()

	return TUIModel{
		state:      stateToken,
		configPath: configPath,
		cfg:        config.DefaultConfig(),
		list:       l,
		input:      ti,
	}
}

func (m TUIModel) Init() tea.Cmd {
	return nil
}

func (m TUIModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			m.quitting = true
			return m, tea.Quit
		}

	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.list.SetSize(msg.Width-10, msg.Height-15)

	case error:
		m.saveErr = msg
		m.quitting = true
		return m, tea.Quit
	}

	var cmd tea.Cmd
	enter := false
	if keyMsg, ok := msg.(tea.KeyMsg); ok && keyMsg.String() == "enter" {
		enter = true
	}

	switch m.state {
	case stateToken:
		m.input, cmd = m.input.Update(msg)
		if enter {
			m.cfg.BotToken = strings.TrimSpace(m.input.Value())
			m.toInput(stateOffset, "Fixed UTC offset (hours): ", "0")
		}

	case stateOffset:
		m.input, cmd = m.input.Update(msg)
		if enter {
			n, err := strconv.Atoi(valueOr(m.input.Value(), "0"))
			if err != nil {
				m.errMsg = "offset must be a number"
				break
			}
			m.cfg.UTCOffsetHours = n
			m.toInput(stateDomainName, "Domain name: ", "events")
		}

	case stateDomainName:
		m.input, cmd = m.input.Update(msg)
		if enter {
			m.domain.Name = valueOr(m.input.Value(), "events")
			m.state = stateSourceType
		}

	case stateSourceType:
		m.list, cmd = m.list.Update(msg)
		if enter {
			if i, ok := m.list.SelectedItem().(item); ok {
				m.domain.Source.Type = i.title
				if i.title == "ics" {
					m.toInput(stateSourceDetail, "Feed URL: ", "")
				} else {
					m.toInput(stateSourceDetail, "Calendar id: ", "")
				}
			}
		}

	case stateSourceDetail:
		m.input, cmd = m.input.Update(msg)
		if enter {
			v := strings.TrimSpace(m.input.Value())
			if m.domain.Source.Type == "ics" {
				m.domain.Source.URL = v
			} else {
				m.domain.Source.CalendarID = v
			}
			m.toInput(stateChat, "Announcement chat id: ", "")
		}

	case stateChat:
		m.input, cmd = m.input.Update(msg)
		if enter {
			id, err := strconv.ParseInt(strings.TrimSpace(m.input.Value()), 10, 64)
			if err != nil {
				m.errMsg = "chat id must be a number"
				break
			}
			m.domain.Announce = &config.AnnounceConfig{
				Audiences: []config.Audience{{Chat: id}},
			}
			m.toInput(stateLang, "Audience language: ", "en")
		}

	case stateLang:
		m.input, cmd = m.input.Update(msg)
		if enter {
			m.domain.Announce.Audiences[0].Lang = valueOr(m.input.Value(), "en")
			m.toInput(stateSummaryChat, "Summary chat id (empty to skip): ", "")
		}

	case stateSummaryChat:
		m.input, cmd = m.input.Update(msg)
		if enter {
			if v := strings.TrimSpace(m.input.Value()); v != "" {
				id, err := strconv.ParseInt(v, 10, 64)
				if err != nil {
					m.errMsg = "chat id must be a number"
					break
				}
				m.domain.Summary = &config.SummaryConfig{Chat: id, At: []string{"13:00", "01:00"}}
			}
			m.state = stateTranslation
			m.list.SetItems([]list.Item{
				item{title: "off", desc: "No translation"},
				item{title: "google", desc: "Google Translate v2 (API key via HERALD_TRANSLATE_KEY)"},
				item{title: "llm", desc: "LLM-backed translation (Ollama or OpenAI)"},
			})
			m.list.Title = "Translation Backend"
		}

	case stateTranslation:
		m.list, cmd = m.list.Update(msg)
		if enter {
			if i, ok := m.list.SelectedItem().(item); ok {
				m.cfg.Translation.Backend = i.title
				m.state = stateDone
				return m, m.saveConfig()
			}
		}

	case stateDone:
		m.quitting = true
		return m, tea.Quit
	}

	if enter {
		m.errMsg = ""
	}
	return m, cmd
}

func (m *TUIModel) toInput(next state, prompt, placeholder string) {
	m.state = next
	m.input.Prompt = prompt
	m.input.Placeholder = placeholder
	m.input.SetValue("")
	m.errMsg = ""
}

func (m TUIModel) View() string {
	if m.quitting {
		return ""
	}

	var s strings.Builder
	s.WriteString(titleStyle.Render(" herald setup "))
	s.WriteString("\n\n")

	tabs := []string{"Telegram", "Display", "Domain", "Translation", "Finish"}
	currentTab := 0
	switch m.state {
	case stateOffset:
		currentTab = 1
	case stateDomainName, stateSourceType, stateSourceDetail, stateChat, stateLang, stateSummaryChat:
		currentTab = 2
	case stateTranslation:
		currentTab = 3
	case stateDone:
		currentTab = 4
	}

	var renderedTabs []string
	for i, t := range tabs {
		if i == currentTab {
			renderedTabs = append(renderedTabs, activeTabStyle.Render(t))
		} else {
			renderedTabs = append(renderedTabs, inactiveTabStyle.Render(t))
		}
	}
	s.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, renderedTabs...))
	s.WriteString("\n\n")

	var content string
	switch m.state {
	case stateSourceType, stateTranslation:
		content = m.list.View()
	case stateDone:
		content = fmt.Sprintf("\nSaving configuration to %s...\nDone! Press any key to exit.", m.configPath)
	default:
		content = "\n" + m.input.View() + "\n\n" + helpStyle.Render("Press enter to continue")
		if m.errMsg != "" {
			content += "\n" + errStyle.Render("❌ "+m.errMsg)
		}
	}

	s.WriteString(windowStyle.Width(m.width - 10).Height(m.height - 15).Render(content))

	if m.state != stateDone {
		s.WriteString("\n\n" + helpStyle.Render("ctrl+c: quit • ↑/↓: navigate • enter: select"))
	}

	return docStyle.Render(s.String())
}

func (m TUIModel) saveConfig() tea.Cmd {
	cfg := m.cfg
	domain := m.domain
	path := m.configPath
	return func() tea.Msg {
		cfg.Domains = append(cfg.Domains, domain)
		if err := cfg.Save(path); err != nil {
			return err
		}
		return nil
	}
}

func valueOr(v, fallback string) string {
	if strings.TrimSpace(v) == "" {
		return fallback
	}
	return strings.TrimSpace(v)
}

// --- Runner ---

// RunTUI runs the interactive setup and writes the config at configPath.
func RunTUI(configPath string) error {
	p := tea.NewProgram(NewTUIModel(configPath), tea.WithAltScreen())
	model, err := p.Run()
	if err != nil {
		return err
	}
	if m, ok := model.(TUIModel); ok && m.saveErr != nil {
		return m.saveErr
	}
	return nil
}

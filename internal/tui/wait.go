package tui

import (
	"fmt"
	"os"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

var dimStyle = lipgloss.NewStyle().Faint(true)

// PendingFunc reports the outstanding batch and process counts while a
// join is in flight.
type PendingFunc func() (batches, procs int)

type waitDoneMsg struct {
	err error
}

type waitModel struct {
	spinner spinner.Model
	pending PendingFunc
	done    <-chan error

	err error
}

func initWaitModel(pending PendingFunc, done <-chan error) waitModel {
	s := spinner.New(
		spinner.WithSpinner(spinner.Dot),
		spinner.WithStyle(lipgloss.NewStyle().Foreground(lipgloss.Color("2"))),
	)

	return waitModel{
		spinner: s,
		pending: pending,
		done:    done,
	}
}

func (m waitModel) waitForDone() tea.Cmd {
	return func() tea.Msg {
		return waitDoneMsg{err: <-m.done}
	}
}

func (m waitModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.waitForDone())
}

func (m waitModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case waitDoneMsg:
		m.err = msg.err
		return m, tea.Quit

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	return m, nil
}

func (m waitModel) View() string {
	batches, procs := m.pending()
	if batches == 0 {
		return ""
	}

	return fmt.Sprintf(
		"%s waiting for background commands %s\n",
		m.spinner.View(),
		dimStyle.Render(fmt.Sprintf("(%d batches, %d processes)", batches, procs)),
	)
}

// RunWait renders a spinner until the channel delivers the result of a
// Wait call running elsewhere, then returns that result.
func RunWait(pending PendingFunc, done <-chan error) error {
	p := tea.NewProgram(
		initWaitModel(pending, done),
		// Output on stderr so that command output stays on stdout
		tea.WithOutput(os.Stderr),
		tea.WithInput(nil),
		tea.WithFPS(30),
	)

	m, err := p.Run()
	if err != nil {
		return err
	}

	return m.(waitModel).err
}

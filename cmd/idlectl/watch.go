package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	cl "idleforge/internal/cli"
	"idleforge/internal/game"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

var (
	titleStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("14")).Bold(true)
	goodStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	dimStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	errStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	boxStyle   = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("6")).Padding(0, 1)
)

type stateMsg struct {
	state game.StateView
	err   error
}

type refreshMsg struct{}

type actionMsg struct {
	status string
	err    error
}

type watchModel struct {
	ctx    context.Context
	client *cl.Client
	every  time.Duration

	state  game.StateView
	loaded bool
	status string
	err    error
}

func runWatch(ctx context.Context, client *cl.Client, every time.Duration) error {
	m := watchModel{ctx: ctx, client: client, every: every}
	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx))
	_, err := p.Run()
	if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		return nil
	}
	return err
}

func (m watchModel) Init() tea.Cmd {
	return m.fetch()
}

func (m watchModel) fetch() tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(m.ctx, 10*time.Second)
		defer cancel()
		st, err := m.client.State(ctx)
		return stateMsg{state: st, err: err}
	}
}

func (m watchModel) schedule() tea.Cmd {
	return tea.Tick(m.every, func(time.Time) tea.Msg { return refreshMsg{} })
}

func (m watchModel) act(label string, fn func(context.Context) error) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(m.ctx, 10*time.Second)
		defer cancel()
		if err := fn(ctx); err != nil {
			return actionMsg{err: err}
		}
		return actionMsg{status: label}
	}
}

func (m watchModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			return m, tea.Quit
		case "g", " ":
			return m, m.act("gathered by hand", func(ctx context.Context) error {
				_, err := m.client.Gain(ctx, "gold", "")
				return err
			})
		case "s":
			action := "start"
			if m.state.Scheduler.State == "running" {
				action = "stop"
			}
			return m, m.act("scheduler "+action, func(ctx context.Context) error {
				_, err := m.client.Scheduler(ctx, action)
				return err
			})
		case "w":
			return m, m.act("saved", func(ctx context.Context) error {
				_, err := m.client.Save(ctx)
				return err
			})
		case "r":
			return m, m.fetch()
		}
	case stateMsg:
		m.err = msg.err
		if msg.err == nil {
			m.state = msg.state
			m.loaded = true
		}
		return m, m.schedule()
	case refreshMsg:
		return m, m.fetch()
	case actionMsg:
		m.err = msg.err
		if msg.err == nil {
			m.status = msg.status
		}
		return m, m.fetch()
	}
	return m, nil
}

func (m watchModel) View() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("IDLEFORGE"))
	if m.loaded {
		sch := m.state.Scheduler
		b.WriteString(dimStyle.Render(fmt.Sprintf("  %s  tick %d  played %s", sch.State, sch.Ticks, sch.PlayTime.Truncate(time.Second))))
	}
	b.WriteString("\n\n")

	if !m.loaded {
		b.WriteString(dimStyle.Render("loading...") + "\n")
	} else {
		var rows []string
		for _, r := range m.state.Resources {
			if !r.Visible {
				continue
			}
			rate := dimStyle.Render("idle")
			if r.Rate.IsPositive() {
				rate = goodStyle.Render("+" + formatDec(r.Rate) + "/s")
			}
			rows = append(rows, fmt.Sprintf("%-10s %12s  %s", r.Name, formatDec(r.Amount), rate))
		}
		b.WriteString(boxStyle.Render(strings.Join(rows, "\n")) + "\n")

		var owned []string
		for _, p := range m.state.Producers {
			if p.Owned > 0 {
				owned = append(owned, fmt.Sprintf("%s x%d", p.Name, p.Owned))
			}
		}
		if len(owned) > 0 {
			b.WriteString("\n" + strings.Join(owned, dimStyle.Render("  |  ")) + "\n")
		}
		if m.state.Prestige.Available.IsPositive() {
			b.WriteString(goodStyle.Render(fmt.Sprintf("\nprestige ready: %s points", formatDec(m.state.Prestige.Available))) + "\n")
		}
	}

	if m.err != nil {
		b.WriteString("\n" + errStyle.Render(m.err.Error()) + "\n")
	} else if m.status != "" {
		b.WriteString("\n" + goodStyle.Render(m.status) + "\n")
	}
	b.WriteString("\n" + dimStyle.Render("g gather  s start/stop  w save  r refresh  q quit") + "\n")
	return b.String()
}

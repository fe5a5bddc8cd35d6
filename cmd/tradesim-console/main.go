// Terminal browser for persisted backtest runs.
//
// Usage:
//
//	go run ./cmd/tradesim-console [-limit 200]
//
// Keys: j/k or arrows to move, enter to open a run's trade log, esc to go
// back, q to quit.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"tradesim/internal/config"
	"tradesim/internal/domain"
	"tradesim/internal/store"
	"tradesim/internal/summary"
)

// Styles.
var (
	headerStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("0")).Background(lipgloss.Color("6"))
	colHeaderStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	symbolStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	gainStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	lossStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	dimStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	highlightBG    = lipgloss.Color("236")
)

func plStyle(v float64) lipgloss.Style {
	switch {
	case v > 0:
		return gainStyle
	case v < 0:
		return lossStyle
	}
	return dimStyle
}

type tradesLoadedMsg struct {
	run    store.RunSummary
	trades []domain.TradeEvent
	err    error
}

type model struct {
	db     store.ResultStore
	runs   []store.RunSummary
	cursor int

	// Set while a run's trade log is shown.
	open   *store.RunSummary
	trades []domain.TradeEvent
	err    error

	viewport viewport.Model
	ready    bool
	width    int
	height   int
}

func (m model) Init() tea.Cmd { return nil }

func (m model) loadTradesCmd(run store.RunSummary) tea.Cmd {
	return func() tea.Msg {
		trades, err := m.db.ListTrades(context.Background(), run.ID)
		return tradesLoadedMsg{run: run, trades: trades, err: err}
	}
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case "esc", "backspace":
			if m.open != nil {
				m.open, m.trades, m.err = nil, nil, nil
				m.viewport.SetContent(m.renderContent())
				m.ensureVisible()
			}
			return m, nil
		}
		if m.open == nil {
			switch msg.String() {
			case "up", "k":
				if m.cursor > 0 {
					m.cursor--
				}
			case "down", "j":
				if m.cursor < len(m.runs)-1 {
					m.cursor++
				}
			case "enter":
				if len(m.runs) > 0 {
					return m, m.loadTradesCmd(m.runs[m.cursor])
				}
				return m, nil
			default:
				return m, nil
			}
			m.viewport.SetContent(m.renderContent())
			m.ensureVisible()
			return m, nil
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		vpHeight := m.height - 2
		if vpHeight < 1 {
			vpHeight = 1
		}
		if !m.ready {
			m.viewport = viewport.New(m.width, vpHeight)
			m.viewport.MouseWheelEnabled = true
			m.ready = true
		} else {
			m.viewport.Width = m.width
			m.viewport.Height = vpHeight
		}
		m.viewport.SetContent(m.renderContent())
		return m, nil

	case tradesLoadedMsg:
		run := msg.run
		m.open, m.trades, m.err = &run, msg.trades, msg.err
		m.viewport.SetContent(m.renderContent())
		m.viewport.GotoTop()
		return m, nil
	}

	if m.open != nil {
		m.viewport, cmd = m.viewport.Update(msg)
	}
	return m, cmd
}

// ensureVisible scrolls the viewport so the cursor row is on screen. The
// list has one header line above the first run.
func (m *model) ensureVisible() {
	line := m.cursor + 1
	if line < m.viewport.YOffset {
		m.viewport.SetYOffset(line)
	} else if line >= m.viewport.YOffset+m.viewport.Height {
		m.viewport.SetYOffset(line - m.viewport.Height + 1)
	}
}

func (m model) View() string {
	if !m.ready {
		return "loading..."
	}
	title := fmt.Sprintf(" tradesim runs (%d) ", len(m.runs))
	footer := dimStyle.Render("j/k move  enter open  q quit")
	if m.open != nil {
		title = fmt.Sprintf(" %s  %s  %s ", m.open.Symbol, m.open.Interval, m.open.ID)
		footer = dimStyle.Render("arrows scroll  esc back  q quit")
	}
	return headerStyle.Width(m.width).Render(title) + "\n" + m.viewport.View() + "\n" + footer
}

func (m model) renderContent() string {
	if m.open != nil {
		return m.renderTrades()
	}
	return m.renderRuns()
}

func (m model) renderRuns() string {
	var b strings.Builder
	b.WriteString(colHeaderStyle.Render(fmt.Sprintf("%-19s  %-12s  %-12s  %14s  %8s  %6s",
		"Created", "Symbol", "Interval", "P/L", "Win %", "Trades")))
	b.WriteByte('\n')
	if len(m.runs) == 0 {
		b.WriteString(dimStyle.Render("no runs recorded"))
		return b.String()
	}
	for i, r := range m.runs {
		line := fmt.Sprintf("%-19s  %s  %-12s  %s  %8s  %6d",
			r.CreatedAt.Local().Format("2006-01-02 15:04:05"),
			symbolStyle.Render(fmt.Sprintf("%-12s", r.Symbol)),
			r.Interval,
			plStyle(r.TotalProfitLoss).Render(fmt.Sprintf("%14s", summary.FormatAmount(r.TotalProfitLoss))),
			summary.FormatPct(r.WinRate),
			r.TotalTrades)
		if i == m.cursor {
			line = lipgloss.NewStyle().Background(highlightBG).Width(m.width).Render(line)
		}
		b.WriteString(line)
		b.WriteByte('\n')
	}
	return b.String()
}

func (m model) renderTrades() string {
	var b strings.Builder
	if m.err != nil {
		b.WriteString(lossStyle.Render("error: " + m.err.Error()))
		return b.String()
	}
	b.WriteString(colHeaderStyle.Render(fmt.Sprintf("%-19s  %-10s  %-30s  %10s  %7s  %12s  %9s",
		"Time", "Type", "Reason", "Price", "Shares", "P/L", "Charges")))
	b.WriteByte('\n')
	for _, t := range m.trades {
		pl := dimStyle.Render(fmt.Sprintf("%12s", "-"))
		if t.Type.Completed() {
			pl = plStyle(t.ProfitLoss).Render(fmt.Sprintf("%12s", summary.FormatAmount(t.ProfitLoss)))
		}
		fmt.Fprintf(&b, "%-19s  %-10s  %-30s  %10.2f  %7d  %s  %9.2f\n",
			t.Time.Format("2006-01-02 15:04:05"), t.Type, t.Reason, t.Price, t.Shares, pl, t.Charges.Total)
	}
	return b.String()
}

func main() {
	limit := flag.Int("limit", 200, "number of runs to load")
	flag.Parse()

	path := os.Getenv("TRADESIM_SQLITE_PATH")
	if path == "" {
		cfgPath := "config/tradesim.yaml"
		if p := os.Getenv("TRADESIM_CONFIG"); p != "" {
			cfgPath = p
		}
		cfg, err := config.Load(cfgPath)
		if err != nil {
			log.Fatalf("failed to load config: %v", err)
		}
		path = cfg.Storage.SQLitePath
	}

	db, err := store.NewSQLiteStore(path)
	if err != nil {
		log.Fatalf("failed to open result store: %v", err)
	}
	defer db.Close()

	runs, err := db.ListRuns(context.Background(), *limit)
	if err != nil {
		log.Fatalf("listing runs: %v", err)
	}

	p := tea.NewProgram(model{db: db, runs: runs}, tea.WithAltScreen(), tea.WithMouseCellMotion())
	if _, err := p.Run(); err != nil {
		log.Fatalf("console: %v", err)
	}
}

// Package tui is a live view of a running scenario: one row per actor with
// its current state, refreshed from the event stream until the run ends.
package tui

import (
	"fmt"
	"sort"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	inversion "github.com/seoyhaein/inversion-go"
	"github.com/seoyhaein/inversion-go/report"
)

var (
	headStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	dimStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	blockedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	holdStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	yieldStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
)

const tickInterval = 100 * time.Millisecond

type eventMsg inversion.Event

type streamClosedMsg struct{}

type tickMsg time.Time

// ResultMsg carries the finished run into the model.
type ResultMsg struct {
	Result *inversion.Result
	Err    error
}

type actorRow struct {
	id      string
	role    inversion.Role
	state   inversion.ActorState
	since   time.Time
	changes int
}

// Model is the bubbletea model of the live view.
type Model struct {
	scenario string
	events   <-chan inversion.Event
	rows     map[string]*actorRow
	started  time.Time
	now      time.Time

	result *inversion.Result
	err    error
	closed bool
	quit   bool
}

// New returns a Model reading from events, usually Stream.C().
func New(scenario string, events <-chan inversion.Event) Model {
	now := time.Now()
	return Model{
		scenario: scenario,
		events:   events,
		rows:     make(map[string]*actorRow),
		started:  now,
		now:      now,
	}
}

func waitForEvent(ch <-chan inversion.Event) tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-ch
		if !ok {
			return streamClosedMsg{}
		}
		return eventMsg(ev)
	}
}

func tick() tea.Cmd {
	return tea.Tick(tickInterval, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(waitForEvent(m.events), tick())
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			m.quit = true
			return m, tea.Quit
		}
	case eventMsg:
		ev := inversion.Event(msg)
		r, ok := m.rows[ev.ActorID]
		if !ok {
			r = &actorRow{id: ev.ActorID, role: ev.Role}
			m.rows[ev.ActorID] = r
		}
		r.state = ev.To
		r.since = ev.At
		r.changes++
		return m, waitForEvent(m.events)
	case streamClosedMsg:
		m.closed = true
		return m, m.maybeQuit()
	case tickMsg:
		m.now = time.Time(msg)
		if m.result != nil && m.closed {
			return m, nil
		}
		return m, tick()
	case ResultMsg:
		m.result = msg.Result
		m.err = msg.Err
		return m, m.maybeQuit()
	}
	return m, nil
}

func (m Model) maybeQuit() tea.Cmd {
	if m.closed && (m.result != nil || m.err != nil) {
		return tea.Quit
	}
	return nil
}

// Quit reports whether the user left before the run finished.
func (m Model) Quit() bool {
	return m.quit
}

// State returns the last state seen for actor id.
func (m Model) State(id string) (inversion.ActorState, bool) {
	r, ok := m.rows[id]
	if !ok {
		return inversion.StateIdle, false
	}
	return r.state, true
}

func (m Model) View() string {
	var b strings.Builder
	b.WriteString(headStyle.Render(fmt.Sprintf("scenario %s  %s", m.scenario,
		m.now.Sub(m.started).Round(100*time.Millisecond))))
	b.WriteString("\n\n")

	ids := make([]string, 0, len(m.rows))
	for id := range m.rows {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		a, c := m.rows[ids[i]], m.rows[ids[j]]
		if a.role != c.role {
			return a.role < c.role
		}
		return a.id < c.id
	})
	for _, id := range ids {
		r := m.rows[id]
		fmt.Fprintf(&b, "%-10s %-7s %s %s\n",
			r.id, r.role, stateStyle(r.state).Width(13).Render(r.state.String()),
			dimStyle.Render(fmt.Sprintf("%d transitions", r.changes)))
	}

	switch {
	case m.err != nil:
		b.WriteString("\n" + blockedStyle.Render("error: "+m.err.Error()) + "\n")
	case m.result != nil:
		b.WriteString("\n" + report.Result(m.result) + "\n")
	default:
		b.WriteString("\n" + dimStyle.Render("q to quit") + "\n")
	}
	return b.String()
}

func stateStyle(s inversion.ActorState) lipgloss.Style {
	switch s {
	case inversion.StateBlocked, inversion.StateStalled, inversion.StateTerminated, inversion.StateAborted:
		return blockedStyle
	case inversion.StateHolding, inversion.StateWorking, inversion.StateDone:
		return holdStyle
	case inversion.StateYielding:
		return yieldStyle
	}
	return lipgloss.NewStyle()
}

// Run shows the live view while run executes. The stream is closed once run
// returns. cancel is called only when the view ends before the run does,
// either because the user left or because the terminal failed; run is
// still waited for.
func Run(scenario string, stream *inversion.Stream, cancel func(), run func() (*inversion.Result, error), opts ...tea.ProgramOption) (*inversion.Result, error) {
	p := tea.NewProgram(New(scenario, stream.C()), opts...)
	done := make(chan ResultMsg, 1)
	go func() {
		res, err := run()
		_ = stream.Close()
		done <- ResultMsg{Result: res, Err: err}
		p.Send(ResultMsg{Result: res, Err: err})
	}()
	final, err := p.Run()
	var msg ResultMsg
	select {
	case msg = <-done:
	default:
		if interrupted(final, err) {
			cancel()
		}
		msg = <-done
	}
	if err != nil {
		return nil, err
	}
	return msg.Result, msg.Err
}

// interrupted reports whether the view ended while the run was still going.
func interrupted(final tea.Model, err error) bool {
	if err != nil {
		return true
	}
	m, ok := final.(Model)
	if !ok {
		return true
	}
	return m.Quit() && m.result == nil && m.err == nil
}

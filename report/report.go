// Package report renders scenario outcomes for a terminal.
package report

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	inversion "github.com/seoyhaein/inversion-go"
)

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	labelStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("8")).Width(14)
	okStyle     = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("10"))
	failStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("9"))
	forcedStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("11"))
	headerStyle = lipgloss.NewStyle().Bold(true).Underline(true)
	cellStyle   = lipgloss.NewStyle().PaddingRight(2)
	boxStyle    = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
)

// Result renders one run.
func Result(r *inversion.Result) string {
	acquired := failStyle.Render("no")
	if r.Acquired {
		acquired = okStyle.Render("yes")
	}
	exit := okStyle.Render(string(r.ExitMode))
	if r.ExitMode == inversion.ExitForced {
		exit = forcedStyle.Render(string(r.ExitMode) + " (escape hatch)")
	}

	lines := []string{
		titleStyle.Render(fmt.Sprintf("Scenario %s", r.Scenario)),
		row("run", r.RunID),
		row("policy", r.Policy.String()),
		row("window", r.Window.String()),
		row("acquired", acquired),
		row("elapsed", round(r.Elapsed).String()),
		row("high blocked", round(r.HighWait).String()),
		row("low released", fmt.Sprintf("%t", r.LowReleased)),
		row("exit", exit),
		"",
		actorTable(r.Actors),
	}
	return boxStyle.Render(strings.Join(lines, "\n"))
}

// Suite renders the per-scenario summaries of a suite run.
func Suite(sr *inversion.SuiteResult) string {
	cols := []string{"scenario", "policy", "acquired", "forced", "min", "mean", "max"}
	rows := [][]string{cols}
	for _, s := range sr.Summaries {
		rows = append(rows, []string{
			s.Scenario,
			s.Policy.String(),
			fmt.Sprintf("%d/%d", s.Acquired, s.Trials),
			fmt.Sprintf("%d", s.Forced),
			round(s.MinElapsed).String(),
			round(s.MeanElapsed).String(),
			round(s.MaxElapsed).String(),
		})
	}
	title := titleStyle.Render(fmt.Sprintf("Suite %s", sr.ID))
	return boxStyle.Render(title + "\n" + table(rows))
}

func actorTable(actors []inversion.ActorReport) string {
	rows := [][]string{{"actor", "prio", "final", "path"}}
	for _, a := range actors {
		path := make([]string, 0, len(a.Path))
		for _, s := range a.Path {
			path = append(path, s.String())
		}
		rows = append(rows, []string{
			a.ID,
			fmt.Sprintf("%d", a.Priority),
			a.Final.String(),
			compress(path),
		})
	}
	return table(rows)
}

func table(rows [][]string) string {
	if len(rows) == 0 {
		return ""
	}
	widths := make([]int, len(rows[0]))
	for _, r := range rows {
		for i, c := range r {
			if w := lipgloss.Width(c); w > widths[i] {
				widths[i] = w
			}
		}
	}
	var b strings.Builder
	for ri, r := range rows {
		cells := make([]string, len(r))
		for i, c := range r {
			st := cellStyle.Width(widths[i] + 2)
			if ri == 0 {
				st = st.Inherit(headerStyle)
			}
			cells[i] = st.Render(c)
		}
		b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, cells...))
		if ri < len(rows)-1 {
			b.WriteByte('\n')
		}
	}
	return b.String()
}

// compress folds repeated Looping/Yielding alternations so long Medium
// histories stay on one line.
func compress(path []string) string {
	var out []string
	for i := 0; i < len(path); {
		j := i
		for j+2 < len(path) && path[j+2] == path[i] && path[j+1] == path[i+1] {
			j += 2
		}
		if j > i {
			out = append(out, fmt.Sprintf("(%s>%s)x%d", path[i], path[i+1], (j-i)/2+1))
			i = j + 2
			continue
		}
		out = append(out, path[i])
		i++
	}
	return strings.Join(out, ">")
}

func row(label, value string) string {
	return labelStyle.Render(label) + value
}

func round(d time.Duration) time.Duration {
	return d.Round(time.Millisecond)
}

package scenario

import (
	"fmt"
	"io"
	"time"

	"github.com/fatih/color"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

// Report collects the results of a run.
type Report struct {
	Results  []Result
	Duration time.Duration
}

func (r Report) Passed() bool { return r.Failed() == 0 }

// Failed counts scenarios that did not pass.
func (r Report) Failed() int {
	n := 0
	for _, res := range r.Results {
		if !res.Passed() {
			n++
		}
	}
	return n
}

// Render writes the report as a table followed by a summary line.
func (r Report) Render(w io.Writer) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleRounded)
	t.AppendHeader(table.Row{
		text.FgHiCyan.Sprint("SCENARIO"),
		text.FgHiCyan.Sprint("RESULT"),
		text.FgHiCyan.Sprint("STEPS"),
		text.FgHiCyan.Sprint("DURATION"),
		text.FgHiCyan.Sprint("DETAIL"),
	})
	for _, res := range r.Results {
		t.AppendRow(table.Row{
			res.Scenario,
			status(res),
			fmt.Sprintf("%d", len(res.Steps)),
			res.Duration.Round(time.Millisecond),
			detail(res),
		})
	}
	t.Render()

	summary := color.New(color.FgHiGreen).Sprintf("%d passed", len(r.Results)-r.Failed())
	if r.Failed() > 0 {
		summary += ", " + color.New(color.FgRed).Sprintf("%d failed", r.Failed())
	}
	fmt.Fprintf(w, "%s in %s\n", summary, r.Duration.Round(time.Millisecond))
}

func status(res Result) string {
	switch {
	case res.Err != nil:
		return color.New(color.FgRed, color.Bold).Sprint("ERROR")
	case res.Failure != "":
		return color.New(color.FgRed).Sprint("FAIL")
	default:
		return color.New(color.FgHiGreen).Sprint("PASS")
	}
}

func detail(res Result) string {
	if res.Err != nil {
		return res.Err.Error()
	}
	return res.Failure
}

package presenter

import (
	"bytes"
	"fmt"
	"io"
	"strconv"
	"sync"

	"jubi-watch/internal/interfaces"
	"jubi-watch/internal/types"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/tw"
)

const (
	clearScreen = "\x1b[2J"
	cursorHome  = "\x1b[0;0H"
	clearLine   = "\x1b[K"
	clearBelow  = "\x1b[J"
)

// Headers are the eight fixed columns of the portfolio table.
var Headers = []string{"Name", "Amount", "Price", "Cost", "Today %", "Today P/L", "Total P/L", "P/L %"}

type Options struct {
	Color  bool
	Footer bool
}

// Terminal draws frames in place: every write homes the cursor first, so
// the table refreshes instead of scrolling.
type Terminal struct {
	out    io.Writer
	opts   Options
	green  *color.Color
	red    *color.Color
	mu     sync.Mutex
	status string
}

var _ interfaces.Presenter = (*Terminal)(nil)

func New(out io.Writer, opts Options) *Terminal {
	t := &Terminal{
		out:   out,
		opts:  opts,
		green: color.New(color.FgGreen),
		red:   color.New(color.FgRed),
	}
	if opts.Color {
		t.green.EnableColor()
		t.red.EnableColor()
	} else {
		t.green.DisableColor()
		t.red.DisableColor()
	}
	return t
}

// Clear wipes the whole screen; called once at startup.
func (t *Terminal) Clear() {
	t.mu.Lock()
	defer t.mu.Unlock()
	fmt.Fprint(t.out, clearScreen)
}

// Status overwrites the first line with msg.
func (t *Terminal) Status(msg string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.status = msg
	fmt.Fprint(t.out, cursorHome+"\n"+clearLine+msg+"\n")
}

// Error shows err in place of the table.
func (t *Terminal) Error(err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	fmt.Fprint(t.out, cursorHome+"\n"+clearLine+err.Error()+"\n"+clearBelow)
}

// Render draws rows as a bordered table under the status line.
func (t *Terminal) Render(rows []types.Row, summary types.Summary) error {
	var buf bytes.Buffer
	table := tablewriter.NewTable(&buf,
		tablewriter.WithHeader(Headers),
		tablewriter.WithHeaderAutoFormat(tw.Off),
		tablewriter.WithHeaderAlignment(tw.AlignCenter),
		tablewriter.WithRowAlignment(tw.AlignCenter),
		tablewriter.WithFooterAlignmentConfig(tw.CellAlignment{Global: tw.AlignCenter}),
	)

	for _, r := range rows {
		if err := table.Append(t.cells(r)); err != nil {
			return fmt.Errorf("failed to append row %q: %w", r.Name, err)
		}
	}
	if t.opts.Footer {
		table.Footer("Total", "", Number(summary.Value), "", "",
			t.signed(summary.TodayProfit, Number(summary.TodayProfit)),
			t.signed(summary.TotalProfit, Number(summary.TotalProfit)),
			"")
	}
	if err := table.Render(); err != nil {
		return fmt.Errorf("failed to render table: %w", err)
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	_, err := fmt.Fprint(t.out, cursorHome+"\n"+clearLine+t.status+"\n"+buf.String()+clearBelow)
	return err
}

func (t *Terminal) cells(r types.Row) []string {
	return []string{
		r.Name,
		Number(r.Balance),
		Number(r.Price),
		Number(r.CostPrice),
		t.signed(r.TodayRate, Percent(r.TodayRate)),
		t.signed(r.TodayProfit, Number(r.TodayProfit)),
		t.signed(r.TotalProfit, Number(r.TotalProfit)),
		t.signed(r.ProfitRate, Percent(r.ProfitRate)),
	}
}

func (t *Terminal) signed(v float64, s string) string {
	switch {
	case !types.Finite(v) || v == 0:
		return s
	case v > 0:
		return t.green.Sprint(s)
	default:
		return t.red.Sprint(s)
	}
}

// Number prints f in its shortest form; values that are not finite print as "-".
func Number(f float64) string {
	if !types.Finite(f) {
		return "-"
	}
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// Percent prints "-" for exactly zero and "N%" otherwise.
func Percent(f float64) string {
	if f == 0 || !types.Finite(f) {
		return "-"
	}
	return Number(f) + "%"
}

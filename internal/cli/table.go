package cli

import (
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"golang.org/x/term"
)

// Table renders column-aligned rows through text/tabwriter. The header
// row is bolded when the destination is a terminal.
type Table struct {
	tw    *tabwriter.Writer
	color bool
}

// NewTable returns a Table writing to w with an optional header row.
func NewTable(w io.Writer, headers ...string) *Table {
	t := &Table{
		tw:    tabwriter.NewWriter(w, 0, 4, 2, ' ', 0),
		color: isTTY(w),
	}
	if len(headers) > 0 {
		cells := make([]string, len(headers))
		for i, h := range headers {
			cells[i] = bold(h, t.color)
		}
		t.Row(cells...)
	}
	return t
}

// Row writes one tab-separated data row.
func (t *Table) Row(vals ...string) {
	fmt.Fprintln(t.tw, strings.Join(vals, "\t"))
}

// Flush flushes the underlying tabwriter.
func (t *Table) Flush() error {
	return t.tw.Flush()
}

func isTTY(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return term.IsTerminal(int(f.Fd()))
}

func bold(s string, enable bool) string {
	if !enable {
		return s
	}
	return "\033[1m" + s + "\033[0m"
}

// truncate caps s at max characters, appending "..." when cut.
func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	if max < 4 {
		return s[:max]
	}
	return s[:max-3] + "..."
}

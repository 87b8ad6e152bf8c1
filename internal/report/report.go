// Package report renders analytics results as aligned text tables.
package report

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"
)

// Table is the result of one analytics task.
type Table struct {
	Task    int
	Title   string
	Columns []string
	Rows    [][]string
	Notes   []string
}

// AddRow appends a row, formatting each value with %v.
func (t *Table) AddRow(values ...any) {
	row := make([]string, len(values))
	for i, v := range values {
		switch x := v.(type) {
		case string:
			row[i] = x
		case float64:
			row[i] = fmt.Sprintf("%.3f", x)
		default:
			row[i] = fmt.Sprint(x)
		}
	}
	t.Rows = append(t.Rows, row)
}

// Note appends a free text line printed under the table.
func (t *Table) Note(format string, args ...any) {
	t.Notes = append(t.Notes, fmt.Sprintf(format, args...))
}

// Render writes the table to w.
func (t *Table) Render(w io.Writer) error {
	if _, err := fmt.Fprintf(w, "Task %d: %s\n", t.Task, t.Title); err != nil {
		return err
	}
	if len(t.Columns) > 0 {
		tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, strings.Join(t.Columns, "\t"))
		rule := make([]string, len(t.Columns))
		for i, c := range t.Columns {
			rule[i] = strings.Repeat("-", len(c))
		}
		fmt.Fprintln(tw, strings.Join(rule, "\t"))
		for _, r := range t.Rows {
			fmt.Fprintln(tw, strings.Join(r, "\t"))
		}
		if err := tw.Flush(); err != nil {
			return err
		}
		if len(t.Rows) == 0 {
			fmt.Fprintln(w, "(no rows)")
		}
	}
	for _, n := range t.Notes {
		if _, err := fmt.Fprintln(w, n); err != nil {
			return err
		}
	}
	return nil
}

func (t *Table) String() string {
	var buf bytes.Buffer
	_ = t.Render(&buf)
	return buf.String()
}

// FileName is the per-task file name used by Persist.
func (t *Table) FileName() string { return fmt.Sprintf("task_%02d.txt", t.Task) }

// Persist writes the rendered table to dir/task_NN.txt, creating dir if needed.
func (t *Table) Persist(dir string) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create report dir: %w", err)
	}
	path := filepath.Join(dir, t.FileName())
	if err := os.WriteFile(path, []byte(t.String()), 0o644); err != nil {
		return "", fmt.Errorf("write report: %w", err)
	}
	return path, nil
}

package session

import (
	"fmt"
	"html"
	"strings"
	"text/tabwriter"
)

// PlainText renders the result as an aligned text table, or as a row count for
// statements without a row set.
func (r *Result) PlainText() string {
	if !r.HasRows() {
		return fmt.Sprintf("%d row(s) affected", r.RowsAffected)
	}

	var sb strings.Builder
	w := tabwriter.NewWriter(&sb, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, strings.Join(r.Columns, "\t"))
	for _, row := range r.Rows {
		fmt.Fprintln(w, strings.Join(row, "\t"))
	}
	w.Flush()

	return strings.TrimRight(sb.String(), "\n")
}

// HTML renders the result as an HTML table. It returns an empty string for
// statements without a row set.
func (r *Result) HTML() string {
	if !r.HasRows() {
		return ""
	}

	var sb strings.Builder
	sb.WriteString("<table>\n<thead><tr>")
	for _, col := range r.Columns {
		sb.WriteString("<th>" + html.EscapeString(col) + "</th>")
	}
	sb.WriteString("</tr></thead>\n<tbody>\n")
	for _, row := range r.Rows {
		sb.WriteString("<tr>")
		for _, cell := range row {
			sb.WriteString("<td>" + html.EscapeString(cell) + "</td>")
		}
		sb.WriteString("</tr>\n")
	}
	sb.WriteString("</tbody>\n</table>")

	return sb.String()
}

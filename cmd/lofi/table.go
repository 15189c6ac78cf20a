package main

import (
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

// column describes one table column. Cells longer than maxWidth are cut
// with an ellipsis; zero means unbounded.
type column struct {
	title    string
	align    text.Align
	maxWidth int
}

func col(title string) column { return column{title: title, align: text.AlignLeft} }

func numeric(title string) column { return column{title: title, align: text.AlignRight} }

func capped(title string, width int) column {
	return column{title: title, align: text.AlignLeft, maxWidth: width}
}

// renderTable renders rows under columns. Blank cells show as "-" and
// missing trailing cells are padded.
func renderTable(columns []column, rows [][]string) string {
	if len(columns) == 0 {
		return ""
	}

	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)

	header := make(table.Row, len(columns))
	configs := make([]table.ColumnConfig, len(columns))
	for i, c := range columns {
		header[i] = c.title
		configs[i] = table.ColumnConfig{
			Number:      i + 1,
			Align:       c.align,
			AlignHeader: text.AlignLeft,
		}
		if c.maxWidth > 0 {
			configs[i].WidthMax = c.maxWidth
			configs[i].WidthMaxEnforcer = ellipsize
		}
	}
	tw.AppendHeader(header)
	tw.SetColumnConfigs(configs)

	for _, row := range rows {
		r := make(table.Row, len(columns))
		for i := range columns {
			cell := ""
			if i < len(row) {
				cell = row[i]
			}
			r[i] = dash(cell)
		}
		tw.AppendRow(r)
	}
	return tw.Render()
}

// renderKeyValues renders label/value pairs as a two column table.
func renderKeyValues(pairs [][2]string) string {
	rows := make([][]string, 0, len(pairs))
	for _, p := range pairs {
		rows = append(rows, []string{p[0], p[1]})
	}
	return renderTable([]column{col("Field"), col("Value")}, rows)
}

// ellipsize satisfies table.WidthEnforcer. Multi-line cells are folded
// first so one cell keeps one row.
func ellipsize(cell string, maxLen int) string {
	cell = strings.Join(strings.Fields(cell), " ")
	if maxLen <= 3 || text.RuneWidthWithoutEscSequences(cell) <= maxLen {
		return text.Trim(cell, maxLen)
	}
	return text.Trim(cell, maxLen-3) + "..."
}

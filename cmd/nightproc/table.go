package main

import (
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"nightproc/internal/proctable"
)

type columnAlignment int

const (
	alignLeft columnAlignment = iota
	alignRight
)

func renderTable(headers []string, rows [][]string, aligns []columnAlignment) string {
	columns := len(headers)
	if columns == 0 {
		return ""
	}

	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)

	header := make(table.Row, columns)
	for i := range columns {
		header[i] = headers[i]
	}
	tw.AppendHeader(header)

	for _, row := range rows {
		r := make(table.Row, columns)
		for i := range columns {
			if i < len(row) {
				r[i] = row[i]
			} else {
				r[i] = ""
			}
		}
		tw.AppendRow(r)
	}

	columnConfigs := make([]table.ColumnConfig, 0, columns)
	for i := range columns {
		align := text.AlignLeft
		if i < len(aligns) && aligns[i] == alignRight {
			align = text.AlignRight
		}
		columnConfigs = append(columnConfigs, table.ColumnConfig{
			Number:      i + 1,
			Align:       align,
			AlignHeader: text.AlignLeft,
		})
	}
	tw.SetColumnConfigs(columnConfigs)

	return tw.Render()
}

// statusCell colours a status for terminal output.
func statusCell(status proctable.Status, colorize bool) string {
	label := string(status)
	if !colorize {
		return label
	}
	switch {
	case status == proctable.StatusCompleted:
		return text.Colors{text.FgGreen}.Sprint(label)
	case status.IsActive():
		return text.Colors{text.FgCyan}.Sprint(label)
	case status.IsFailure():
		return text.Colors{text.FgRed, text.Bold}.Sprint(label)
	case status == proctable.StatusCancelled:
		return text.Colors{text.FgYellow}.Sprint(label)
	default:
		return label
	}
}
